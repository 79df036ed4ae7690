package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cjgriscom/lib3mf/pkg/attachment"
	"github.com/cjgriscom/lib3mf/pkg/chunkstream"
	"github.com/cjgriscom/lib3mf/pkg/toolpath"
)

const testJob = `
units: 0.001
profiles:
  - name: contour
    uuid: 3c4b5a69-7d8e-4f01-9a2b-c3d4e5f60718
    laser_power: 200
    laser_speed: 1200
  - name: fill
    laser_power: 150
    laser_speed: 1500
parts:
  - name: bracket
layers:
  - zmax: 30
    segments:
      - type: loop
        profile: contour
        part: bracket
        points: [[0, 0], [1000, 0], [1000, 1000], [0, 1000]]
      - type: hatch
        profile: fill
        part: bracket
        points: [[0, 100], [1000, 100], [0, 200], [1000, 200]]
  - zmax: 60
    path: /3D/Toolpath/top.xml
    segments:
      - type: polyline
        profile: fill
        part: bracket
        points: [[5, 5], [10, 10]]
`

func TestParseJob(t *testing.T) {
	t.Parallel()
	job, err := parseJob([]byte(testJob))
	if err != nil {
		t.Fatalf("parseJob: %v", err)
	}
	if job.Units != 0.001 || len(job.Profiles) != 2 || len(job.Layers) != 2 {
		t.Fatalf("unexpected job: %+v", job)
	}
	hatch := job.Layers[0].Segments[1]
	if hatch.Type != "hatch" || len(hatch.Points) != 4 || hatch.Points[3] != [2]int32{1000, 200} {
		t.Fatalf("unexpected hatch: %+v", hatch)
	}
}

func TestParseJobErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		job  string
		want string
	}{
		{"no units", "profiles: []", "units must be positive"},
		{"unknown field", "units: 1\nspeed: 3", "field speed not found"},
		{"duplicate profile", "units: 1\nprofiles: [{name: a}, {name: a}]", "duplicate profile"},
		{"unknown profile", "units: 1\nparts: [{name: p}]\nlayers: [{segments: [{type: loop, profile: x, part: p}]}]", "unknown profile"},
		{"unknown part", "units: 1\nprofiles: [{name: a}]\nlayers: [{segments: [{type: loop, profile: a, part: x}]}]", "unknown part"},
		{"bad type", "units: 1\nprofiles: [{name: a}]\nparts: [{name: p}]\nlayers: [{segments: [{type: arc, profile: a, part: p}]}]", "invalid segment type"},
		{"odd hatch", "units: 1\nprofiles: [{name: a}]\nparts: [{name: p}]\nlayers: [{segments: [{type: hatch, profile: a, part: p, points: [[0, 0]]}]}]", "even number"},
		{"bad layer path", "units: 1\nlayers: [{path: top.xml}]", "invalid path"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseJob([]byte(tc.job))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("got %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func packTestJob(t *testing.T, binary bool, codec chunkstream.Codec) string {
	t.Helper()
	job, err := parseJob([]byte(testJob))
	if err != nil {
		t.Fatalf("parseJob: %v", err)
	}
	dir := filepath.Join(t.TempDir(), "pkg")
	store, err := attachment.OpenDir(dir)
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	opts := packOptions{
		binary: binary,
		writer: toolpath.WriterOptions{Stream: chunkstream.WriterOptions{Codec: codec}},
	}
	if _, err := buildPackage(job, store, opts); err != nil {
		t.Fatalf("buildPackage: %v", err)
	}
	return dir
}

func TestPackAndInspect(t *testing.T) {
	t.Parallel()
	for _, binary := range []bool{false, true} {
		dir := packTestJob(t, binary, chunkstream.CodecZstd)
		store, tp, err := openPackage(dir)
		if err != nil {
			t.Fatalf("openPackage: %v", err)
		}
		report, err := buildReport(tp, store, -1, true, toolpath.ReadOptions{})
		if err != nil {
			t.Fatalf("buildReport(binary=%v): %v", binary, err)
		}
		if report.UnitFactor != 0.001 || len(report.Layers) != 2 {
			t.Fatalf("unexpected report: %+v", report)
		}
		if report.Layers[1].Path != "/3D/Toolpath/top.xml" || report.Layers[1].ZMax != 60 {
			t.Fatalf("unexpected layer 1: %+v", report.Layers[1])
		}
		segs := report.Layers[0].Segments
		if len(segs) != 2 || segs[0].Type != "loop" || segs[0].Profile != "contour" {
			t.Fatalf("unexpected segments: %+v", segs)
		}
		if segs[1].Count != 4 || segs[1].Points[1] != [2]float32{1000, 100} {
			t.Fatalf("unexpected hatch: %+v", segs[1])
		}

		var buf bytes.Buffer
		printReport(&buf, report)
		if !strings.Contains(buf.String(), "zmax=60 /3D/Toolpath/top.xml") {
			t.Fatalf("unexpected text report:\n%s", buf.String())
		}

		streams := streamPaths(store)
		if binary && len(streams) != 2 {
			t.Fatalf("binary package has %d streams, want 2", len(streams))
		}
		if !binary && len(streams) != 0 {
			t.Fatalf("inline package has %d streams", len(streams))
		}
	}
}

func TestInspectSingleLayer(t *testing.T) {
	t.Parallel()
	store, tp, err := openPackage(packTestJob(t, false, chunkstream.CodecLZMA))
	if err != nil {
		t.Fatalf("openPackage: %v", err)
	}
	report, err := buildReport(tp, store, 1, false, toolpath.ReadOptions{})
	if err != nil {
		t.Fatalf("buildReport: %v", err)
	}
	if report.Layers[0].Segments != nil || len(report.Layers[1].Segments) != 1 {
		t.Fatalf("only layer 1 should be decoded: %+v", report.Layers)
	}
	if report.Layers[1].Segments[0].Points != nil {
		t.Fatal("points included without --points")
	}
	if _, err := buildReport(tp, store, 2, false, toolpath.ReadOptions{}); err == nil {
		t.Fatal("expected error for layer out of range")
	}
}

func TestDumpStream(t *testing.T) {
	t.Parallel()
	store, _, err := openPackage(packTestJob(t, true, chunkstream.CodecLZMA))
	if err != nil {
		t.Fatalf("openPackage: %v", err)
	}
	streams := streamPaths(store)
	if len(streams) == 0 {
		t.Fatal("no binary streams in package")
	}
	r, err := dumpStream(store, streams[0], true)
	if err != nil {
		t.Fatalf("dumpStream: %v", err)
	}
	if !r.Verified || len(r.Chunks) != 1 {
		t.Fatalf("unexpected dump: %+v", r)
	}
	// First layer: a loop (2 arrays) and a hatch (4 arrays).
	if n := len(r.Chunks[0].Entries); n != 6 {
		t.Fatalf("chunk 0 has %d entries, want 6", n)
	}
	if r.Chunks[0].Codec != "lzma" || r.Chunks[0].PropsSize != 13 {
		t.Fatalf("unexpected chunk: %+v", r.Chunks[0])
	}

	var buf bytes.Buffer
	printDump(&buf, r)
	if !strings.Contains(buf.String(), "verified") {
		t.Fatalf("unexpected dump output:\n%s", buf.String())
	}
	if err := writeJSON(&buf, r); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}

	if _, err := dumpStream(store, "/3D/Toolpath/none.bin", false); err == nil {
		t.Fatal("expected error for missing stream")
	}
}
