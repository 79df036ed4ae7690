package toolpath

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cjgriscom/lib3mf/pkg/attachment"
	"github.com/cjgriscom/lib3mf/pkg/chunkstream"
)

const (
	testPartUUID    = "9a0d5e2c-8b1f-4d3e-a6c7-1f2e3d4c5b6a"
	testProfileUUID = "3c4b5a69-7d8e-4f01-9a2b-c3d4e5f60718"
	testStreamPath  = "/3D/Toolpath/test.bin"
)

// layerDoc wraps segments in a layer that declares part 1 and profile 2.
func layerDoc(segmentsAttr, segments string) []byte {
	return fmt.Appendf(nil, `<?xml version="1.0" encoding="UTF-8"?>
<layer xmlns="%s" xmlns:z="%s">
  <parts><part id="1" uuid="%s"/></parts>
  <profiles><profile id="2" uuid="%s"/></profiles>
  <segments%s>%s</segments>
</layer>`, NamespaceToolpath, NamespaceCompression, testPartUUID, testProfileUUID, segmentsAttr, segments)
}

func hatchSegment(inner string) string {
	return `<segment type="hatch" profileid="2" partid="1">` + inner + `</segment>`
}

func readDoc(t *testing.T, doc []byte, store attachment.Store) (*ReadData, error) {
	t.Helper()
	tp, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ReadLayerXML(doc, tp, store, ReadOptions{})
}

// testStream stores a stream holding, in key order: the hatch columns
// {0,10} {0,0} {100,110} {5,5}, a three element column and an array whose
// value is out of coordinate range.
func testStream(t *testing.T) (attachment.Store, []uint32) {
	t.Helper()
	w := chunkstream.NewWriter(chunkstream.WriterOptions{Codec: chunkstream.CodecNone})
	var keys []uint32
	for _, a := range [][]int32{{0, 10}, {0, 0}, {100, 110}, {5, 5}, {1, 2, 3}, {2_000_000_000}} {
		k, err := w.AddIntArray(a, chunkstream.PredictDelta)
		if err != nil {
			t.Fatalf("AddIntArray: %v", err)
		}
		keys = append(keys, k)
	}
	f, err := w.AddFloatArray([]float32{0.5, 1.5}, chunkstream.PredictNone)
	if err != nil {
		t.Fatalf("AddFloatArray: %v", err)
	}
	keys = append(keys, f)
	data, err := w.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	store := attachment.NewMemoryStore()
	if err := store.Add(testStreamPath, data, RelationshipBinaryStream); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return store, keys
}

func TestReadInlineHatch(t *testing.T) {
	t.Parallel()
	d, err := readDoc(t, layerDoc("", hatchSegment(
		`<hatch x1="0" y1="0" x2="10" y2="0"/><hatch x1="-1e9" y1="1e9" x2="2.5" y2="-3"/>`)), nil)
	if err != nil {
		t.Fatalf("ReadLayerXML: %v", err)
	}
	pts, err := d.SegmentPoints(0)
	if err != nil {
		t.Fatalf("SegmentPoints: %v", err)
	}
	want := []Point{{0, 0}, {10, 0}, {-1e9, 1e9}, {2.5, -3}}
	if len(pts) != len(want) {
		t.Fatalf("got %d points, want %d", len(pts), len(want))
	}
	for i := range want {
		if pts[i] != want[i] {
			t.Fatalf("point %d = %+v, want %+v", i, pts[i], want[i])
		}
	}
	u, err := d.SegmentProfileUUID(0)
	if err != nil || u.String() != testProfileUUID {
		t.Fatalf("SegmentProfileUUID = %v, %v", u, err)
	}
	if _, ok, err := d.SegmentProfile(0); err != nil || ok {
		t.Fatalf("profile unknown to the toolpath should give ok=false, got %v, %v", ok, err)
	}
}

func TestReadLayerErrors(t *testing.T) {
	t.Parallel()
	point := func(attrs string) string {
		return `<segment type="loop" profileid="2" partid="1"><point ` + attrs + `/></segment>`
	}
	tests := []struct {
		name string
		doc  []byte
		want error
	}{
		{"wrong root", []byte(`<model xmlns="` + NamespaceToolpath + `"/>`), ErrInvalidXML},
		{"root without namespace", []byte(`<layer/>`), ErrInvalidXML},
		{"truncated", layerDoc("", hatchSegment(`<hatch x1="0"`))[:200], ErrInvalidXML},
		{"empty", nil, ErrInvalidXML},
		{"nan", layerDoc("", hatchSegment(`<hatch x1="NaN" y1="0" x2="0" y2="0"/>`)), ErrInvalidCoordinate},
		{"above range", layerDoc("", point(`x="1000000001" y="0"`)), ErrInvalidCoordinate},
		{"below range", layerDoc("", point(`x="0" y="-1.5e9"`)), ErrInvalidCoordinate},
		{"not a number", layerDoc("", point(`x="one" y="0"`)), ErrInvalidCoordinate},
		{"duplicate coordinate", layerDoc("", point(`x="1" x="2" y="0"`)), ErrInvalidCoordinate},
		{"missing coordinate", layerDoc("", hatchSegment(`<hatch x1="0" y1="0" x2="0"/>`)), ErrMissingCoordinate},
		{"missing point y", layerDoc("", point(`x="0"`)), ErrMissingCoordinate},
		{"undeclared profile", layerDoc("", `<segment type="loop" profileid="9" partid="1"/>`), ErrMissingID},
		{"undeclared part", layerDoc("", `<segment type="loop" profileid="2" partid="5"/>`), ErrMissingID},
		{"missing profileid", layerDoc("", `<segment type="loop" partid="1"/>`), ErrMissingID},
		{"bad segment type", layerDoc("", `<segment type="spiral" profileid="2" partid="1"/>`), ErrInvalidSegmentType},
		{"missing segment type", layerDoc("", `<segment profileid="2" partid="1"/>`), ErrInvalidSegmentType},
		{"point in hatch", layerDoc("", hatchSegment(`<point x="0" y="0"/>`)), ErrInvalidXML},
		{"hatch in loop", layerDoc("", `<segment type="loop" profileid="2" partid="1"><hatch x1="0" y1="0" x2="0" y2="0"/></segment>`), ErrInvalidXML},
		{"binary hatch without stream", layerDoc("", hatchSegment(`<z:hatch z:x1="0" z:y1="1" z:x2="2" z:y2="3"/>`)), ErrBinaryStreamNotFound},
		{"stream without store", layerDoc(` z:binary="`+testStreamPath+`"`, ""), ErrMissingAttachment},
		{"bad part uuid", []byte(`<layer xmlns="` + NamespaceToolpath + `"><parts><part id="1" uuid="nope"/></parts></layer>`), ErrInvalidUUID},
		{"part without id", []byte(`<layer xmlns="` + NamespaceToolpath + `"><parts><part uuid="` + testPartUUID + `"/></parts></layer>`), ErrMissingID},
		{"duplicate local id", []byte(`<layer xmlns="` + NamespaceToolpath + `"><parts><part id="1" uuid="` + testPartUUID + `"/></parts><profiles><profile id="1" uuid="` + testProfileUUID + `"/></profiles></layer>`), ErrDuplicateID},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := readDoc(t, tc.doc, nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestReadAttributeErrorDetails(t *testing.T) {
	t.Parallel()
	_, err := readDoc(t, layerDoc("", hatchSegment(`<hatch x1="0" y1="0" x2="2e9" y2="0"/>`)), nil)
	var ae *AttributeError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *AttributeError, got %T: %v", err, err)
	}
	if ae.Element != "hatch" || ae.Attribute != "x2" || ae.Value != "2e9" {
		t.Fatalf("unexpected attribute error: %+v", ae)
	}
}

func TestReadWarnings(t *testing.T) {
	t.Parallel()
	doc := layerDoc(` flavour="x"`, hatchSegment(
		`<hatch x1="0" y1="0" x2="1" y2="1" speed="3"/><marker/>`+
			`<ext:note xmlns:ext="urn:example:ext">ignored</ext:note>`)+
		`<ext:block xmlns:ext="urn:example:ext"><segment type="bogus"/></ext:block>`)
	d, err := readDoc(t, doc, nil)
	if err != nil {
		t.Fatalf("ReadLayerXML: %v", err)
	}
	got := d.Warnings()
	want := []Warning{
		{Element: "segments", Attribute: "flavour", Message: "unknown attribute"},
		{Element: "hatch", Attribute: "speed", Message: "unknown attribute"},
		{Element: "marker", Message: "unexpected element in <segment>"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d warnings %v, want %v", len(got), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("warning %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if d.SegmentCount() != 1 {
		t.Fatalf("SegmentCount = %d, want 1", d.SegmentCount())
	}
	if !strings.Contains(got[2].String(), "<marker>") {
		t.Fatalf("Warning.String() = %q", got[2].String())
	}
}

func TestReadBinarySegments(t *testing.T) {
	t.Parallel()
	store, k := testStream(t)
	attr := ` z:binary="` + testStreamPath + `"`

	doc := layerDoc(attr, hatchSegment(fmt.Sprintf(`<z:hatch z:x1="%d" z:y1="%d" z:x2="%d" y2="%d"/>`, k[0], k[1], k[2], k[3]))+
		fmt.Sprintf(`<segment type="polyline" profileid="2" partid="1"><z:point x1="%d" z:y1="%d"/></segment>`, k[6], k[3]))
	d, err := readDoc(t, doc, store)
	if err != nil {
		t.Fatalf("ReadLayerXML: %v", err)
	}
	hatch, _ := d.SegmentPoints(0)
	wantHatch := []Point{{0, 0}, {100, 5}, {10, 0}, {110, 5}}
	for i := range wantHatch {
		if hatch[i] != wantHatch[i] {
			t.Fatalf("hatch point %d = %+v, want %+v", i, hatch[i], wantHatch[i])
		}
	}
	line, _ := d.SegmentPoints(1)
	if len(line) != 2 || line[0] != (Point{0.5, 5}) || line[1] != (Point{1.5, 5}) {
		t.Fatalf("polyline points = %+v", line)
	}
}

func TestReadBinaryErrors(t *testing.T) {
	t.Parallel()
	store, k := testStream(t)
	attr := ` z:binary="` + testStreamPath + `"`
	hatch := func(x1, y1, x2, y2 string) []byte {
		return layerDoc(attr, hatchSegment(fmt.Sprintf(`<z:hatch z:x1="%s" z:y1="%s" z:x2="%s" z:y2="%s"/>`, x1, y1, x2, y2)))
	}
	key := func(i int) string { return fmt.Sprint(k[i]) }

	tests := []struct {
		name string
		doc  []byte
		want error
	}{
		{"negative key", hatch("-1", key(1), key(2), key(3)), ErrInvalidBinaryElementID},
		{"key above index range", hatch("2147483648", key(1), key(2), key(3)), ErrInvalidBinaryElementID},
		{"unknown key", hatch(fmt.Sprint(chunkstream.MakeKey(5, 0)), key(1), key(2), key(3)), chunkstream.ErrUnknownKey},
		{"length mismatch", hatch(key(4), key(1), key(2), key(3)), ErrInvalidXML},
		{"value out of range", layerDoc(attr, `<segment type="loop" profileid="2" partid="1"><z:point z:x1="`+key(5)+`" z:y1="`+key(5)+`"/></segment>`), ErrInvalidCoordinate},
		{"missing key", layerDoc(attr, hatchSegment(`<z:hatch z:x1="0" z:y1="1" z:x2="2"/>`)), ErrMissingID},
		{"duplicate key", layerDoc(attr, `<segment type="loop" profileid="2" partid="1"><z:point z:x1="0" x1="0" z:y1="1"/></segment>`), ErrInvalidBinaryElementID},
		{"missing stream", layerDoc(` z:binary="/3D/Toolpath/absent.bin"`, ""), ErrBinaryStreamNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := readDoc(t, tc.doc, store)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestReadCorruptStream(t *testing.T) {
	t.Parallel()
	store := attachment.NewMemoryStore()
	if err := store.Add(testStreamPath, []byte("not a container"), RelationshipBinaryStream); err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, err := readDoc(t, layerDoc(` z:binary="`+testStreamPath+`"`, ""), store)
	if err == nil {
		t.Fatal("expected error for corrupt stream")
	}
}
