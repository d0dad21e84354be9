package math

import (
	m "math"
	"time"

	"golang.org/x/exp/rand"
)

const (
	/** @brief An approximate representation of PI. */
	K_PI float32 = 3.14159265358979323846
	/** @brief A multiplier used to convert degrees to radians. */
	K_DEG2RAD_MULTIPLIER float32 = K_PI / 180.0
	/** @brief A multiplier used to convert radians to degrees. */
	K_RAD2DEG_MULTIPLIER float32 = 180.0 / K_PI
)

var rand_seeded bool = false

func ksin(x float32) float32 {
	return float32(m.Sin(float64(x)))
}

func kcos(x float32) float32 {
	return float32(m.Cos(float64(x)))
}

func ktan(x float32) float32 {
	return float32(m.Tan(float64(x)))
}

func ksqrt(x float32) float32 {
	return float32(m.Sqrt(float64(x)))
}

func Sin(x float32) float32 {
	return ksin(x)
}

func Cos(x float32) float32 {
	return kcos(x)
}

func DegToRad(degrees float32) float32 {
	return degrees * K_DEG2RAD_MULTIPLIER
}

func RadToDeg(radians float32) float32 {
	return radians * K_RAD2DEG_MULTIPLIER
}

// RandomFloatRange returns a random float32 in [min, max). Used to scatter
// the initial particle cloud.
func RandomFloatRange(min, max float32) float32 {
	if !rand_seeded {
		rand.Seed(uint64(time.Now().UnixNano()))
		rand_seeded = true
	}
	return min + rand.Float32()*(max-min)
}
