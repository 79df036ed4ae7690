package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/cjgriscom/lib3mf/pkg/attachment"
	"github.com/cjgriscom/lib3mf/pkg/toolpath"
)

// Job describes a package to build with `tpx pack`.
type Job struct {
	Units    float64      `yaml:"units"`
	Profiles []JobProfile `yaml:"profiles"`
	Parts    []JobPart    `yaml:"parts"`
	Layers   []JobLayer   `yaml:"layers"`
}

type JobProfile struct {
	Name       string  `yaml:"name"`
	UUID       string  `yaml:"uuid"`
	LaserPower float64 `yaml:"laser_power"`
	LaserSpeed float64 `yaml:"laser_speed"`
	LaserFocus float64 `yaml:"laser_focus"`
	LaserIndex uint32  `yaml:"laser_index"`
}

type JobPart struct {
	Name string `yaml:"name"`
	UUID string `yaml:"uuid"`
}

type JobLayer struct {
	ZMax     uint32       `yaml:"zmax"`
	Path     string       `yaml:"path"`
	Segments []JobSegment `yaml:"segments"`
}

// JobSegment lists points in layer units. A hatch takes two points per line.
type JobSegment struct {
	Type    string     `yaml:"type"`
	Profile string     `yaml:"profile"`
	Part    string     `yaml:"part"`
	Points  [][2]int32 `yaml:"points"`
}

func loadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseJob(data)
}

func parseJob(data []byte) (*Job, error) {
	var job Job
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&job); err != nil {
		return nil, fmt.Errorf("parse job: %w", err)
	}
	if err := job.validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

func (j *Job) validate() error {
	if !(j.Units > 0) {
		return fmt.Errorf("job: units must be positive, got %v", j.Units)
	}
	profiles := make(map[string]bool, len(j.Profiles))
	for i, p := range j.Profiles {
		if p.Name == "" {
			return fmt.Errorf("job: profile %d has no name", i)
		}
		if profiles[p.Name] {
			return fmt.Errorf("job: duplicate profile %q", p.Name)
		}
		profiles[p.Name] = true
	}
	parts := make(map[string]bool, len(j.Parts))
	for i, p := range j.Parts {
		if p.Name == "" {
			return fmt.Errorf("job: part %d has no name", i)
		}
		if parts[p.Name] {
			return fmt.Errorf("job: duplicate part %q", p.Name)
		}
		parts[p.Name] = true
	}
	for li, l := range j.Layers {
		if l.Path != "" {
			if _, err := attachment.CleanPath(l.Path); err != nil {
				return fmt.Errorf("job: layer %d: %w", li, err)
			}
		}
		for si, s := range l.Segments {
			typ, err := toolpath.ParseSegmentType(s.Type)
			if err != nil {
				return fmt.Errorf("job: layer %d segment %d: %w", li, si, err)
			}
			if !profiles[s.Profile] {
				return fmt.Errorf("job: layer %d segment %d: unknown profile %q", li, si, s.Profile)
			}
			if !parts[s.Part] {
				return fmt.Errorf("job: layer %d segment %d: unknown part %q", li, si, s.Part)
			}
			if typ == toolpath.SegmentHatch && len(s.Points)%2 != 0 {
				return fmt.Errorf("job: layer %d segment %d: hatch needs an even number of points, got %d", li, si, len(s.Points))
			}
		}
	}
	return nil
}

type packOptions struct {
	binary bool
	writer toolpath.WriterOptions
}

// buildPackage writes every layer of job into store followed by the toolpath
// resource document.
func buildPackage(job *Job, store attachment.Store, opts packOptions) (*toolpath.Toolpath, error) {
	tp, err := toolpath.New(job.Units)
	if err != nil {
		return nil, err
	}
	profiles := make(map[string]*toolpath.Profile, len(job.Profiles))
	for _, p := range job.Profiles {
		var prof *toolpath.Profile
		if p.UUID != "" {
			prof, err = tp.AddExistingProfile(p.UUID, p.Name, p.LaserPower, p.LaserSpeed, p.LaserFocus, p.LaserIndex)
			if err != nil {
				return nil, fmt.Errorf("profile %q: %w", p.Name, err)
			}
		} else {
			prof = tp.AddProfile(p.Name, p.LaserPower, p.LaserSpeed, p.LaserFocus, p.LaserIndex)
		}
		profiles[p.Name] = prof
	}
	parts := make(map[string]toolpath.Part, len(job.Parts))
	for _, p := range job.Parts {
		part := toolpath.NewPart(p.Name)
		if p.UUID != "" {
			u, err := uuid.Parse(p.UUID)
			if err != nil {
				return nil, fmt.Errorf("part %q: %w", p.Name, toolpath.ErrInvalidUUID)
			}
			part.UUID = u
		}
		parts[p.Name] = part
	}

	opts.writer.AllowBinaryStreams = opts.binary
	pw, err := toolpath.NewPackageWriter(store, opts.writer)
	if err != nil {
		return nil, err
	}
	for li, l := range job.Layers {
		err := toolpath.WithLayer(tp, l.ZMax, l.Path, pw, func(lw *toolpath.LayerWriter) error {
			if opts.binary {
				if _, err := pw.NewLayerBinaryStream(lw.UUID()); err != nil {
					return err
				}
			}
			return writeLayer(lw, l, profiles, parts)
		})
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", li, err)
		}
	}
	if err := pw.Close(); err != nil {
		return nil, err
	}

	var res bytes.Buffer
	if err := toolpath.EncodeResource(&res, tp); err != nil {
		return nil, err
	}
	if err := store.Add(toolpath.ResourcePath, res.Bytes(), toolpath.RelationshipToolpath); err != nil {
		return nil, err
	}
	return tp, nil
}

// writeLayer registers the profiles and parts the layer uses, in order of
// first use, then writes its segments.
func writeLayer(lw *toolpath.LayerWriter, l JobLayer, profiles map[string]*toolpath.Profile, parts map[string]toolpath.Part) error {
	profileIDs := make(map[string]uint32)
	partIDs := make(map[string]uint32)
	for _, s := range l.Segments {
		if _, ok := profileIDs[s.Profile]; !ok {
			id, err := lw.RegisterProfile(profiles[s.Profile])
			if err != nil {
				return err
			}
			profileIDs[s.Profile] = id
		}
		if _, ok := partIDs[s.Part]; !ok {
			id, err := lw.RegisterPart(parts[s.Part])
			if err != nil {
				return err
			}
			partIDs[s.Part] = id
		}
	}

	for _, s := range l.Segments {
		typ, _ := toolpath.ParseSegmentType(s.Type)
		profileID, partID := profileIDs[s.Profile], partIDs[s.Part]
		var err error
		switch typ {
		case toolpath.SegmentHatch:
			n := len(s.Points) / 2
			x1, y1 := make([]int32, n), make([]int32, n)
			x2, y2 := make([]int32, n), make([]int32, n)
			for i := range n {
				a, b := s.Points[2*i], s.Points[2*i+1]
				x1[i], y1[i], x2[i], y2[i] = a[0], a[1], b[0], b[1]
			}
			err = lw.WriteHatch(profileID, partID, x1, y1, x2, y2)
		default:
			x, y := make([]int32, len(s.Points)), make([]int32, len(s.Points))
			for i, p := range s.Points {
				x[i], y[i] = p[0], p[1]
			}
			if typ == toolpath.SegmentLoop {
				err = lw.WriteLoop(profileID, partID, x, y)
			} else {
				err = lw.WritePolyline(profileID, partID, x, y)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// openPackage opens a package directory written by buildPackage.
func openPackage(dir string) (*attachment.DirStore, *toolpath.Toolpath, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, nil, err
	}
	store, err := attachment.OpenDir(dir)
	if err != nil {
		return nil, nil, err
	}
	a, err := store.Find(toolpath.ResourcePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", dir, err)
	}
	defer func() { _ = a.Close() }()
	tp, err := toolpath.DecodeResource(bytes.NewReader(a.Data))
	if err != nil {
		return nil, nil, err
	}
	return store, tp, nil
}
