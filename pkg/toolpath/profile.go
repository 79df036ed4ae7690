package toolpath

import "github.com/google/uuid"

// Profile is a named set of laser process parameters.
type Profile struct {
	UUID       uuid.UUID
	Name       string
	LaserPower float64
	LaserSpeed float64
	LaserFocus float64
	LaserIndex uint32
}

// Part is a build object referenced by segments.
type Part struct {
	UUID uuid.UUID
	Name string
}

// NewPart returns a part with a fresh UUID.
func NewPart(name string) Part {
	return Part{UUID: uuid.New(), Name: name}
}
