package main

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/cjgriscom/lib3mf/internal/logger"
	"github.com/cjgriscom/lib3mf/pkg/attachment"
	"github.com/cjgriscom/lib3mf/pkg/toolpath"
)

type inspectReport struct {
	UnitFactor float64          `json:"unit_factor"`
	Profiles   []inspectProfile `json:"profiles"`
	Layers     []inspectLayer   `json:"layers"`
}

type inspectProfile struct {
	UUID       string  `json:"uuid"`
	Name       string  `json:"name"`
	LaserPower float64 `json:"laser_power"`
	LaserSpeed float64 `json:"laser_speed"`
	LaserFocus float64 `json:"laser_focus"`
	LaserIndex uint32  `json:"laser_index"`
}

type inspectLayer struct {
	Index    int              `json:"index"`
	Path     string           `json:"path"`
	ZMax     uint32           `json:"zmax"`
	Segments []inspectSegment `json:"segments,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
}

type inspectSegment struct {
	Type    string       `json:"type"`
	Profile string       `json:"profile"`
	Part    string       `json:"part"`
	Count   int          `json:"point_count"`
	Points  [][2]float32 `json:"points,omitempty"`
}

func inspectCmd() *cli.Command {
	var (
		pkgDir     string
		layer      int
		showPoints bool
		asJSON     bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Print the toolpath resource and layer contents of a package",
		Flags: []cli.Flag{
			packageFlag(&pkgDir),
			&cli.IntFlag{Name: "layer", Aliases: []string{"l"}, Usage: "only decode this layer (-1 = all layers)", Value: -1, Destination: &layer},
			&cli.BoolFlag{Name: "points", Usage: "include segment points", Destination: &showPoints},
			jsonFlag(&asJSON),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			store, tp, err := openPackage(pkgDir)
			if err != nil {
				return err
			}
			opts := toolpath.ReadOptions{Logger: log}
			if cfg.CacheChunks != nil {
				opts.CacheChunks = *cfg.CacheChunks
			}
			report, err := buildReport(tp, store, layer, showPoints, opts)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(c.Root().Writer, report)
			}
			printReport(c.Root().Writer, report)
			return nil
		},
	}
}

// buildReport describes tp. Layers are decoded when layer is -1 or names
// the layer; other layers are listed without segments.
func buildReport(tp *toolpath.Toolpath, store attachment.Store, layer int, points bool, opts toolpath.ReadOptions) (*inspectReport, error) {
	if layer >= tp.LayerCount() {
		return nil, fmt.Errorf("%w: layer %d of %d", toolpath.ErrInvalidIndex, layer, tp.LayerCount())
	}
	r := &inspectReport{UnitFactor: tp.Units()}
	for i := range tp.ProfileCount() {
		p, err := tp.Profile(i)
		if err != nil {
			return nil, err
		}
		r.Profiles = append(r.Profiles, inspectProfile{
			UUID:       p.UUID.String(),
			Name:       p.Name,
			LaserPower: p.LaserPower,
			LaserSpeed: p.LaserSpeed,
			LaserFocus: p.LaserFocus,
			LaserIndex: p.LaserIndex,
		})
	}
	for i := range tp.LayerCount() {
		l, err := tp.Layer(i)
		if err != nil {
			return nil, err
		}
		il := inspectLayer{Index: i, Path: l.Path, ZMax: l.ZMax}
		if layer < 0 || layer == i {
			d, err := tp.ReadLayer(i, store, opts)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			if il.Segments, err = describeSegments(d, points); err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			for _, w := range d.Warnings() {
				il.Warnings = append(il.Warnings, w.String())
			}
		}
		r.Layers = append(r.Layers, il)
	}
	return r, nil
}

func describeSegments(d *toolpath.ReadData, points bool) ([]inspectSegment, error) {
	out := make([]inspectSegment, 0, d.SegmentCount())
	for j := range d.SegmentCount() {
		s, err := d.SegmentInfo(j)
		if err != nil {
			return nil, err
		}
		seg := inspectSegment{Type: s.Type.String(), Count: s.PointCount}
		if p, ok, err := d.SegmentProfile(j); err != nil {
			return nil, err
		} else if ok {
			seg.Profile = p.Name
		} else {
			u, _ := d.SegmentProfileUUID(j)
			seg.Profile = u.String()
		}
		part, err := d.SegmentPartUUID(j)
		if err != nil {
			return nil, err
		}
		seg.Part = part.String()
		if points {
			pts, err := d.SegmentPoints(j)
			if err != nil {
				return nil, err
			}
			seg.Points = make([][2]float32, len(pts))
			for k, p := range pts {
				seg.Points[k] = [2]float32{p.X, p.Y}
			}
		}
		out = append(out, seg)
	}
	return out, nil
}

func printReport(w io.Writer, r *inspectReport) {
	_, _ = fmt.Fprintf(w, "unit factor: %g\n", r.UnitFactor)
	_, _ = fmt.Fprintf(w, "profiles:    %d\n", len(r.Profiles))
	for _, p := range r.Profiles {
		_, _ = fmt.Fprintf(w, "  %-16s %s power=%g speed=%g focus=%g laser=%d\n",
			p.Name, p.UUID, p.LaserPower, p.LaserSpeed, p.LaserFocus, p.LaserIndex)
	}
	_, _ = fmt.Fprintf(w, "layers:      %d\n", len(r.Layers))
	for _, l := range r.Layers {
		_, _ = fmt.Fprintf(w, "  [%d] zmax=%d %s\n", l.Index, l.ZMax, l.Path)
		for j, s := range l.Segments {
			_, _ = fmt.Fprintf(w, "      %3d %-8s points=%-6d profile=%s part=%s\n", j, s.Type, s.Count, s.Profile, s.Part)
			for _, p := range s.Points {
				_, _ = fmt.Fprintf(w, "          (%g, %g)\n", p[0], p[1])
			}
		}
		for _, warn := range l.Warnings {
			_, _ = fmt.Fprintf(w, "      warning: %s\n", warn)
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
