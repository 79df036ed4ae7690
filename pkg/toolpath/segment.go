package toolpath

import "fmt"

// SegmentType is the closed set of segment variants.
type SegmentType uint8

const (
	SegmentUnknown SegmentType = iota
	SegmentHatch
	SegmentLoop
	SegmentPolyline
)

func (t SegmentType) String() string {
	switch t {
	case SegmentHatch:
		return "hatch"
	case SegmentLoop:
		return "loop"
	case SegmentPolyline:
		return "polyline"
	default:
		return "unknown"
	}
}

// ParseSegmentType parses the value of a segment's type attribute.
func ParseSegmentType(s string) (SegmentType, error) {
	switch s {
	case "hatch":
		return SegmentHatch, nil
	case "loop":
		return SegmentLoop, nil
	case "polyline":
		return SegmentPolyline, nil
	}
	return SegmentUnknown, fmt.Errorf("%w: %q", ErrInvalidSegmentType, s)
}

// Segment is a decoded segment. Its points are [StartPoint, StartPoint+PointCount)
// of the layer's point array. A hatch contributes two points per line.
type Segment struct {
	Type       SegmentType
	ProfileID  uint32
	PartID     uint32
	StartPoint int
	PointCount int
}

// Point is a coordinate pair in layer units. Multiply by the toolpath unit
// factor to get model units.
type Point struct {
	X float32
	Y float32
}

// Scale converts p to model units.
func (p Point) Scale(units float64) (x, y float64) {
	return float64(p.X) * units, float64(p.Y) * units
}
