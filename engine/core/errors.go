package core

import (
	"errors"
)

// Every failure in the frame pipeline falls into one of four buckets:
// initialization, asset production, synchronization, or a caller
// precondition violation. None of them is recoverable; callers log and
// surface immediately rather than retrying.
var (
	// ErrNoAdapter - adapter enumeration found no device usable at any
	// capability tier.
	ErrNoAdapter = errors.New("no adapter supports the required capability tier")
	// ErrDeviceLost - the GPU reported device removal during a wait or
	// submission. Terminates the session.
	ErrDeviceLost = errors.New("device lost")
	// ErrContextInFlight - recording was started on a command context whose
	// previous submission has not been waited on. Programming error.
	ErrContextInFlight = errors.New("command context still in flight")
	// ErrContextNotRecording - a record or submit call arrived outside a
	// Begin/Submit pair. Programming error.
	ErrContextNotRecording = errors.New("command context is not recording")
	// ErrShutdown - an operation was issued after Shutdown completed.
	ErrShutdown = errors.New("renderer already shut down")
	// ErrAssetDecode - an external supplier could not produce the asset.
	ErrAssetDecode = errors.New("asset could not be decoded")
)
