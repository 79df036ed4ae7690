package toolpath

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cjgriscom/lib3mf/internal/logger"
	"github.com/cjgriscom/lib3mf/internal/paged"
)

const (
	segmentPageSize = 1024
	pointPageSize   = 16384
)

// ReadData is the decoded content of one layer. It is filled by the layer
// parser through BeginSegment, AddPoint and EndSegment and is read-only
// afterwards.
type ReadData struct {
	toolpath *Toolpath
	log      logger.Logger

	segments *paged.Vector[Segment]
	points   *paged.Vector[Point]
	open     int // index of the open segment, -1 when none

	ids      map[uint32]uuid.UUID
	warnings []Warning
}

// NewReadData returns an empty read session bound to t.
func NewReadData(t *Toolpath) (*ReadData, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil toolpath", ErrInvalidParam)
	}
	return &ReadData{
		toolpath: t,
		segments: paged.New[Segment](segmentPageSize),
		points:   paged.New[Point](pointPageSize),
		open:     -1,
		ids:      make(map[uint32]uuid.UUID),
	}, nil
}

// Units returns the unit factor of the owning toolpath.
func (d *ReadData) Units() float64 {
	return d.toolpath.Units()
}

// BeginSegment opens a segment. Only one segment may be open at a time.
func (d *ReadData) BeginSegment(typ SegmentType, profileID, partID uint32) error {
	if d.open >= 0 {
		return ErrSegmentAlreadyOpen
	}
	d.open = d.segments.Append(Segment{
		Type:       typ,
		ProfileID:  profileID,
		PartID:     partID,
		StartPoint: d.points.Len(),
	})
	return nil
}

// AddPoint appends a point to the open segment.
func (d *ReadData) AddPoint(x, y float32) error {
	if d.open < 0 {
		return ErrSegmentNotOpen
	}
	d.points.Append(Point{X: x, Y: y})
	return nil
}

// EndSegment closes the open segment and fixes its point range.
func (d *ReadData) EndSegment() error {
	if d.open < 0 {
		return ErrSegmentNotOpen
	}
	s := d.segments.Ptr(d.open)
	s.PointCount = d.points.Len() - s.StartPoint
	d.open = -1
	return nil
}

// RegisterUUID binds a layer-local id to a UUID. Each id may be bound once.
func (d *ReadData) RegisterUUID(id uint32, u uuid.UUID) error {
	if _, ok := d.ids[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}
	d.ids[id] = u
	return nil
}

// MapIDToUUID resolves a layer-local id.
func (d *ReadData) MapIDToUUID(id uint32) (uuid.UUID, error) {
	u, ok := d.ids[id]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %d", ErrMissingID, id)
	}
	return u, nil
}

func (d *ReadData) SegmentCount() int {
	return d.segments.Len()
}

// SegmentInfo returns the segment at index i.
func (d *ReadData) SegmentInfo(i int) (Segment, error) {
	if i < 0 || i >= d.segments.Len() {
		return Segment{}, fmt.Errorf("%w: segment %d of %d", ErrInvalidIndex, i, d.segments.Len())
	}
	return d.segments.At(i), nil
}

// SegmentPoint returns point j of segment i.
func (d *ReadData) SegmentPoint(i, j int) (Point, error) {
	s, err := d.SegmentInfo(i)
	if err != nil {
		return Point{}, err
	}
	if j < 0 || j >= s.PointCount {
		return Point{}, fmt.Errorf("%w: point %d of %d", ErrInvalidIndex, j, s.PointCount)
	}
	return d.points.At(s.StartPoint + j), nil
}

// SegmentPoints copies all points of segment i.
func (d *ReadData) SegmentPoints(i int) ([]Point, error) {
	s, err := d.SegmentInfo(i)
	if err != nil {
		return nil, err
	}
	return d.points.Range(s.StartPoint, s.PointCount), nil
}

func (d *ReadData) SegmentProfileUUID(i int) (uuid.UUID, error) {
	s, err := d.SegmentInfo(i)
	if err != nil {
		return uuid.Nil, err
	}
	return d.MapIDToUUID(s.ProfileID)
}

func (d *ReadData) SegmentPartUUID(i int) (uuid.UUID, error) {
	s, err := d.SegmentInfo(i)
	if err != nil {
		return uuid.Nil, err
	}
	return d.MapIDToUUID(s.PartID)
}

// SegmentProfile resolves the profile of segment i against the toolpath.
// ok is false when the UUID is not a known profile.
func (d *ReadData) SegmentProfile(i int) (p *Profile, ok bool, err error) {
	u, err := d.SegmentProfileUUID(i)
	if err != nil {
		return nil, false, err
	}
	p, ok = d.toolpath.ProfileByUUID(u)
	return p, ok, nil
}
