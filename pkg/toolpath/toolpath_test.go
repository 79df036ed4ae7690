package toolpath

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/cjgriscom/lib3mf/pkg/attachment"
	"github.com/cjgriscom/lib3mf/pkg/chunkstream"
)

func TestNewRejectsBadUnitFactor(t *testing.T) {
	t.Parallel()
	for _, f := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := New(f); !errors.Is(err, ErrInvalidParam) {
			t.Fatalf("New(%v): got %v, want ErrInvalidParam", f, err)
		}
	}
}

func TestToolpathLayersAndProfiles(t *testing.T) {
	t.Parallel()
	tp, err := New(0.001)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tp.Units() != 0.001 {
		t.Fatalf("Units = %v", tp.Units())
	}

	if _, err := tp.Layer(0); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("Layer(0) on empty toolpath: got %v", err)
	}
	if _, err := tp.AppendLayer("relative.xml", 1); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("AppendLayer with relative path: got %v", err)
	}
	i, err := tp.AppendLayer("/3D/Toolpath/layer_0.xml", 30)
	if err != nil || i != 0 {
		t.Fatalf("AppendLayer = %d, %v", i, err)
	}
	l, _ := tp.Layer(0)
	if l.Path != "/3D/Toolpath/layer_0.xml" || l.ZMax != 30 {
		t.Fatalf("Layer(0) = %+v", l)
	}

	p := tp.AddProfile("contour", 250, 900, -0.5, 2)
	if tp.ProfileCount() != 1 || p.UUID == uuid.Nil {
		t.Fatalf("AddProfile: count %d, uuid %v", tp.ProfileCount(), p.UUID)
	}
	got, ok := tp.ProfileByUUID(p.UUID)
	if !ok || got != p {
		t.Fatalf("ProfileByUUID = %v, %v", got, ok)
	}
	if _, ok := tp.ProfileByUUID(uuid.New()); ok {
		t.Fatal("ProfileByUUID found an unknown profile")
	}
	if _, err := tp.Profile(1); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("Profile(1): got %v", err)
	}

	if _, err := tp.AddExistingProfile("not-a-uuid", "x", 0, 0, 0, 0); !errors.Is(err, ErrInvalidUUID) {
		t.Fatalf("AddExistingProfile bad uuid: got %v", err)
	}
	if _, err := tp.AddExistingProfile(p.UUID.String(), "x", 0, 0, 0, 0); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("AddExistingProfile duplicate: got %v", err)
	}
	const kept = "11111111-2222-4333-8444-555555555555"
	q, err := tp.AddExistingProfile(kept, "skin", 100, 1500, 0, 0)
	if err != nil || q.UUID.String() != kept {
		t.Fatalf("AddExistingProfile = %v, %v", q, err)
	}
}

func TestResourceRoundTrip(t *testing.T) {
	t.Parallel()
	tp, _ := New(0.005)
	tp.AddProfile("contour", 250, 900, -0.5, 2)
	tp.AddProfile(`hatch "A" & <B>`, 180, 1200, 0, 0)
	_, _ = tp.AppendLayer("/3D/Toolpath/a.xml", 30)
	_, _ = tp.AppendLayer("/3D/Toolpath/b.xml", 60)

	var buf bytes.Buffer
	if err := EncodeResource(&buf, tp); err != nil {
		t.Fatalf("EncodeResource: %v", err)
	}
	got, err := DecodeResource(&buf)
	if err != nil {
		t.Fatalf("DecodeResource: %v", err)
	}
	if got.Units() != tp.Units() || got.LayerCount() != 2 || got.ProfileCount() != 2 {
		t.Fatalf("decoded toolpath: units %v, %d layers, %d profiles", got.Units(), got.LayerCount(), got.ProfileCount())
	}
	for i := range 2 {
		a, _ := tp.Profile(i)
		b, _ := got.Profile(i)
		if *a != *b {
			t.Fatalf("profile %d = %+v, want %+v", i, b, a)
		}
		la, _ := tp.Layer(i)
		lb, _ := got.Layer(i)
		if la != lb {
			t.Fatalf("layer %d = %+v, want %+v", i, lb, la)
		}
	}
}

func TestDecodeResourceErrors(t *testing.T) {
	t.Parallel()
	if _, err := DecodeResource(bytes.NewReader([]byte("<toolpath"))); !errors.Is(err, ErrInvalidXML) {
		t.Fatalf("truncated resource: got %v", err)
	}
	doc := `<toolpath xmlns="` + NamespaceToolpath + `" unitfactor="0"/>`
	if _, err := DecodeResource(bytes.NewReader([]byte(doc))); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("zero unit factor: got %v", err)
	}
}

func TestReadLayerMissingAttachment(t *testing.T) {
	t.Parallel()
	tp, _ := New(1)
	_, _ = tp.AppendLayer("/3D/Toolpath/gone.xml", 1)
	if _, err := tp.ReadLayer(0, attachment.NewMemoryStore(), ReadOptions{}); !errors.Is(err, ErrMissingAttachment) {
		t.Fatalf("got %v, want ErrMissingAttachment", err)
	}
	if _, err := tp.ReadLayer(1, attachment.NewMemoryStore(), ReadOptions{}); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("got %v, want ErrInvalidIndex", err)
	}
}

func TestPackageWriterStreamRegistry(t *testing.T) {
	t.Parallel()
	store := attachment.NewMemoryStore()

	if _, err := NewPackageWriter(nil, WriterOptions{}); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("nil store: got %v", err)
	}

	inline, _ := NewPackageWriter(store, WriterOptions{})
	if inline.AllowBinaryStreams() {
		t.Fatal("binary streams allowed by default")
	}
	if _, err := inline.NewLayerBinaryStream(uuid.NewString()); !errors.Is(err, ErrBinaryStreamsNotAllowed) {
		t.Fatalf("NewLayerBinaryStream: got %v", err)
	}

	pw, _ := NewPackageWriter(store, WriterOptions{AllowBinaryStreams: true})
	w := chunkstream.NewWriter(chunkstream.WriterOptions{})
	const s1 = "aaaaaaaa-0000-4000-8000-000000000001"
	if err := pw.RegisterBinaryStream("/3D/Toolpath/one.bin", s1, w); err != nil {
		t.Fatalf("RegisterBinaryStream: %v", err)
	}
	if err := pw.RegisterBinaryStream("/3D/Toolpath/one.bin", "other", w); !errors.Is(err, ErrDuplicateBinaryStreamPath) {
		t.Fatalf("duplicate path: got %v", err)
	}
	if err := pw.RegisterBinaryStream("/3D/Toolpath/two.bin", s1, w); !errors.Is(err, ErrDuplicateBinaryStreamUUID) {
		t.Fatalf("duplicate uuid: got %v", err)
	}
	if err := pw.RegisterBinaryStream("3D/two.bin", "x", w); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("relative path: got %v", err)
	}
	if err := pw.RegisterBinaryStream("/3D/two.bin", "x", nil); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("nil writer: got %v", err)
	}

	const inst = "instance"
	if err := pw.AssignBinaryStream(inst, "missing"); !errors.Is(err, ErrBinaryStreamNotFound) {
		t.Fatalf("assign unknown stream: got %v", err)
	}
	if _, _, ok := pw.FindBinaryStream(inst); ok {
		t.Fatal("unassigned instance has a stream")
	}
	if err := pw.AssignBinaryStream(inst, s1); err != nil {
		t.Fatalf("AssignBinaryStream: %v", err)
	}
	got, path, ok := pw.FindBinaryStream(inst)
	if !ok || got != w || path != "/3D/Toolpath/one.bin" {
		t.Fatalf("FindBinaryStream = %v, %q, %v", got, path, ok)
	}
	if err := pw.AssignBinaryStream(inst, ""); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if _, _, ok := pw.FindBinaryStream(inst); ok {
		t.Fatal("stream still assigned after unassign")
	}

	if _, err := w.AddIntArray([]int32{1, 2, 3}, chunkstream.PredictNone); err != nil {
		t.Fatalf("AddIntArray: %v", err)
	}
	if err := pw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	a, err := store.Find("/3D/Toolpath/one.bin")
	if err != nil {
		t.Fatalf("Close did not store the stream: %v", err)
	}
	if a.RelationshipType != RelationshipBinaryStream {
		t.Fatalf("relationship = %q", a.RelationshipType)
	}
	if err := pw.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
