package core

import "github.com/google/uuid"

// Identifier tags GPU resources and assets so log lines and the soft
// device's event journal can name them stably.
type Identifier string

func NewIdentifier() Identifier {
	return Identifier(uuid.NewString())
}

func (id Identifier) String() string {
	return string(id)
}
