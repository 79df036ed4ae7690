package toolpath

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/cjgriscom/lib3mf/pkg/attachment"
)

// Layer is one Z slice of a toolpath. Its segments live in the attachment at
// Path.
type Layer struct {
	Path string
	ZMax uint32
}

// Toolpath owns the ordered layers and profiles of a toolpath resource.
// Layers and profiles are append-only.
type Toolpath struct {
	unitFactor float64
	layers     []Layer
	profiles   []*Profile
	byUUID     map[uuid.UUID]*Profile
}

// New returns an empty toolpath. unitFactor is the number of model units per
// coordinate unit and must be positive.
func New(unitFactor float64) (*Toolpath, error) {
	if !(unitFactor > 0) || math.IsInf(unitFactor, 0) {
		return nil, fmt.Errorf("%w: unit factor %v", ErrInvalidParam, unitFactor)
	}
	return &Toolpath{
		unitFactor: unitFactor,
		byUUID:     make(map[uuid.UUID]*Profile),
	}, nil
}

// Units returns the unit factor applied to every layer.
func (t *Toolpath) Units() float64 {
	return t.unitFactor
}

// AppendLayer records a layer whose data is stored at path.
func (t *Toolpath) AppendLayer(path string, zMax uint32) (int, error) {
	if _, err := attachment.CleanPath(path); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	t.layers = append(t.layers, Layer{Path: path, ZMax: zMax})
	return len(t.layers) - 1, nil
}

func (t *Toolpath) LayerCount() int {
	return len(t.layers)
}

func (t *Toolpath) Layer(i int) (Layer, error) {
	if i < 0 || i >= len(t.layers) {
		return Layer{}, fmt.Errorf("%w: layer %d of %d", ErrInvalidIndex, i, len(t.layers))
	}
	return t.layers[i], nil
}

// AddProfile adds a profile under a freshly generated UUID.
func (t *Toolpath) AddProfile(name string, power, speed, focus float64, laserIndex uint32) *Profile {
	p := &Profile{
		UUID:       uuid.New(),
		Name:       name,
		LaserPower: power,
		LaserSpeed: speed,
		LaserFocus: focus,
		LaserIndex: laserIndex,
	}
	t.profiles = append(t.profiles, p)
	t.byUUID[p.UUID] = p
	return p
}

// AddExistingProfile adds a profile that keeps a previously serialized UUID.
func (t *Toolpath) AddExistingProfile(id string, name string, power, speed, focus float64, laserIndex uint32) (*Profile, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUUID, id)
	}
	if _, ok := t.byUUID[u]; ok {
		return nil, fmt.Errorf("%w: profile %s", ErrDuplicateID, u)
	}
	p := &Profile{
		UUID:       u,
		Name:       name,
		LaserPower: power,
		LaserSpeed: speed,
		LaserFocus: focus,
		LaserIndex: laserIndex,
	}
	t.profiles = append(t.profiles, p)
	t.byUUID[u] = p
	return p, nil
}

func (t *Toolpath) ProfileCount() int {
	return len(t.profiles)
}

func (t *Toolpath) Profile(i int) (*Profile, error) {
	if i < 0 || i >= len(t.profiles) {
		return nil, fmt.Errorf("%w: profile %d of %d", ErrInvalidIndex, i, len(t.profiles))
	}
	return t.profiles[i], nil
}

// ProfileByUUID looks up a profile. A missing profile is reported with
// ok == false, not as an error.
func (t *Toolpath) ProfileByUUID(u uuid.UUID) (p *Profile, ok bool) {
	p, ok = t.byUUID[u]
	return p, ok
}

// AddLayer appends a layer and opens a write session for it. When path is
// empty the layer is stored under a path derived from the session UUID.
func (t *Toolpath) AddLayer(zMax uint32, path string, pw *PackageWriter) (*LayerWriter, error) {
	if pw == nil {
		return nil, fmt.Errorf("%w: nil package writer", ErrInvalidParam)
	}
	lw, err := newLayerWriter(t, pw, path)
	if err != nil {
		return nil, err
	}
	if _, err := t.AppendLayer(lw.Path(), zMax); err != nil {
		return nil, err
	}
	return lw, nil
}

// ReadLayer parses layer i from store.
func (t *Toolpath) ReadLayer(i int, store attachment.Store, opts ReadOptions) (*ReadData, error) {
	layer, err := t.Layer(i)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: nil attachment store", ErrInvalidParam)
	}
	a, err := store.Find(layer.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: layer %d: %v", ErrMissingAttachment, i, err)
	}
	defer func() { _ = a.Close() }()
	return ReadLayerXML(a.Data, t, store, opts)
}
