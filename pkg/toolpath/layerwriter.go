package toolpath

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/cjgriscom/lib3mf/internal/logger"
	"github.com/cjgriscom/lib3mf/internal/metrics"
	"github.com/cjgriscom/lib3mf/pkg/chunkstream"
)

type writeState uint8

const (
	writingHeader writeState = iota
	writingData
	writingFinished
)

type localRef struct {
	id   uint32
	uuid uuid.UUID
}

// LayerWriter is the write session of one layer. It starts in the header
// state where profiles and parts are registered, moves to the data state on
// the first segment (or BeginData) and ends with Finish.
//
// A LayerWriter is not safe for concurrent use.
type LayerWriter struct {
	toolpath *Toolpath
	pw       *PackageWriter
	log      logger.Logger

	uuid  string
	path  string
	state writeState

	nextID   uint32
	parts    []localRef
	profiles []localRef

	buf bytes.Buffer
	enc *xml.Encoder
	err error

	stream     *chunkstream.Writer
	streamPath string
}

func newLayerWriter(t *Toolpath, pw *PackageWriter, path string) (*LayerWriter, error) {
	if t == nil || pw == nil {
		return nil, fmt.Errorf("%w: layer writer", ErrInvalidParam)
	}
	id := uuid.NewString()
	if path == "" {
		path = LayerDir + id + LayerExt
	}
	lw := &LayerWriter{
		toolpath: t,
		pw:       pw,
		log:      pw.log.With("layer", id),
		uuid:     id,
		path:     path,
		nextID:   1,
	}
	lw.enc = xml.NewEncoder(&lw.buf)
	lw.token(xml.ProcInst{Target: "xml", Inst: []byte(`version="1.0" encoding="UTF-8"`)})
	lw.start(elemLayer,
		xml.Attr{Name: xml.Name{Local: "xmlns"}, Value: NamespaceToolpath},
		xml.Attr{Name: xml.Name{Local: "xmlns:" + CompressionPrefix}, Value: NamespaceCompression},
	)
	if lw.err != nil {
		return nil, lw.err
	}
	return lw, nil
}

// UUID identifies the session; binary streams are assigned to it.
func (lw *LayerWriter) UUID() string { return lw.uuid }

// Path is the attachment path the layer document is stored under.
func (lw *LayerWriter) Path() string { return lw.path }

// Units returns the unit factor of the owning toolpath.
func (lw *LayerWriter) Units() float64 { return lw.toolpath.Units() }

func (lw *LayerWriter) token(t xml.Token) {
	if lw.err != nil {
		return
	}
	lw.err = lw.enc.EncodeToken(t)
}

func (lw *LayerWriter) start(name string, attrs ...xml.Attr) {
	lw.token(xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs})
}

func (lw *LayerWriter) end(name string) {
	lw.token(xml.EndElement{Name: xml.Name{Local: name}})
}

func attr(name string, v string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: v}
}

func uattr(name string, v uint32) xml.Attr {
	return attr(name, strconv.FormatUint(uint64(v), 10))
}

func iattr(name string, v int32) xml.Attr {
	return attr(name, strconv.FormatInt(int64(v), 10))
}

func zname(name string) string {
	return CompressionPrefix + ":" + name
}

func (lw *LayerWriter) register(list *[]localRef, u uuid.UUID) (uint32, error) {
	switch lw.state {
	case writingFinished:
		return 0, ErrDataAlreadyWritten
	case writingData:
		return 0, ErrNotWritingHeader
	}
	id := lw.nextID
	lw.nextID++
	*list = append(*list, localRef{id: id, uuid: u})
	return id, nil
}

// RegisterProfile assigns a layer-local id to a profile. Profiles and parts
// share one id sequence starting at 1.
func (lw *LayerWriter) RegisterProfile(p *Profile) (uint32, error) {
	if p == nil {
		return 0, fmt.Errorf("%w: nil profile", ErrInvalidParam)
	}
	return lw.register(&lw.profiles, p.UUID)
}

// RegisterPart assigns a layer-local id to a part.
func (lw *LayerWriter) RegisterPart(p Part) (uint32, error) {
	return lw.register(&lw.parts, p.UUID)
}

// BeginData leaves the header state: the part and profile tables are written
// and the segments element is opened.
func (lw *LayerWriter) BeginData() error {
	switch lw.state {
	case writingFinished:
		return ErrDataAlreadyWritten
	case writingData:
		return ErrNotWritingHeader
	}

	if w, path, ok := lw.pw.FindBinaryStream(lw.uuid); ok {
		lw.stream, lw.streamPath = w, path
	}

	lw.start(elemParts)
	for _, p := range lw.parts {
		lw.start(elemPart, uattr(attrID, p.id), attr(attrUUID, p.uuid.String()))
		lw.end(elemPart)
	}
	lw.end(elemParts)

	lw.start(elemProfiles)
	for _, p := range lw.profiles {
		lw.start(elemProfile, uattr(attrID, p.id), attr(attrUUID, p.uuid.String()))
		lw.end(elemProfile)
	}
	lw.end(elemProfiles)

	if lw.stream != nil {
		lw.start(elemSegments, attr(zname(attrBinary), lw.streamPath))
	} else {
		lw.start(elemSegments)
	}
	lw.state = writingData
	return lw.err
}

func (lw *LayerWriter) beginSegment(typ SegmentType, profileID, partID uint32) error {
	if lw.state == writingFinished {
		return ErrDataAlreadyWritten
	}
	if lw.state == writingHeader {
		if err := lw.BeginData(); err != nil {
			return err
		}
	}
	if lw.state != writingData {
		return ErrNotWritingData
	}
	lw.start(elemSegment,
		attr(attrType, typ.String()),
		uattr(attrProfileID, profileID),
		uattr(attrPartID, partID),
	)
	return lw.err
}

func (lw *LayerWriter) addKeys(arrays ...[]int32) ([]uint32, error) {
	keys := make([]uint32, len(arrays))
	for i, a := range arrays {
		k, err := lw.stream.AddIntArray(a, chunkstream.PredictDelta)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	return keys, nil
}

// WriteHatch writes a hatch segment of len(x1) lines. All four buffers must
// be non-nil and of equal length.
func (lw *LayerWriter) WriteHatch(profileID, partID uint32, x1, y1, x2, y2 []int32) error {
	if lw.state == writingFinished {
		return ErrDataAlreadyWritten
	}
	if x1 == nil || y1 == nil || x2 == nil || y2 == nil {
		return fmt.Errorf("%w: nil hatch buffer", ErrInvalidParam)
	}
	n := len(x1)
	if len(y1) != n || len(x2) != n || len(y2) != n {
		return fmt.Errorf("%w: hatch buffer lengths %d/%d/%d/%d", ErrInvalidParam, len(x1), len(y1), len(x2), len(y2))
	}
	if err := lw.beginSegment(SegmentHatch, profileID, partID); err != nil {
		return err
	}

	if lw.stream != nil {
		keys, err := lw.addKeys(x1, y1, x2, y2)
		if err != nil {
			lw.err = err
			return err
		}
		lw.start(zname(elemHatch),
			uattr(zname(attrX1), keys[0]),
			uattr(zname(attrY1), keys[1]),
			uattr(zname(attrX2), keys[2]),
			uattr(zname(attrY2), keys[3]),
		)
		lw.end(zname(elemHatch))
	} else {
		for i := 0; i < n; i++ {
			lw.start(elemHatch,
				iattr(attrX1, x1[i]),
				iattr(attrY1, y1[i]),
				iattr(attrX2, x2[i]),
				iattr(attrY2, y2[i]),
			)
			lw.end(elemHatch)
		}
	}
	lw.end(elemSegment)
	return lw.err
}

// WriteLoop writes a closed loop through the given points.
func (lw *LayerWriter) WriteLoop(profileID, partID uint32, x, y []int32) error {
	return lw.writePoints(SegmentLoop, profileID, partID, x, y)
}

// WritePolyline writes an open polyline through the given points.
func (lw *LayerWriter) WritePolyline(profileID, partID uint32, x, y []int32) error {
	return lw.writePoints(SegmentPolyline, profileID, partID, x, y)
}

func (lw *LayerWriter) writePoints(typ SegmentType, profileID, partID uint32, x, y []int32) error {
	if lw.state == writingFinished {
		return ErrDataAlreadyWritten
	}
	if x == nil || y == nil {
		return fmt.Errorf("%w: nil %s buffer", ErrInvalidParam, typ)
	}
	if len(x) != len(y) {
		return fmt.Errorf("%w: %s buffer lengths %d/%d", ErrInvalidParam, typ, len(x), len(y))
	}
	if err := lw.beginSegment(typ, profileID, partID); err != nil {
		return err
	}

	if lw.stream != nil {
		keys, err := lw.addKeys(x, y)
		if err != nil {
			lw.err = err
			return err
		}
		lw.start(zname(elemPoint), uattr(zname(attrX1), keys[0]), uattr(zname(attrY1), keys[1]))
		lw.end(zname(elemPoint))
	} else {
		for i := range x {
			lw.start(elemPoint, iattr(attrX, x[i]), iattr(attrY, y[i]))
			lw.end(elemPoint)
		}
	}
	lw.end(elemSegment)
	return lw.err
}

// Finish seals the layer document, stores the binary stream the layer wrote
// to (if any) and stores the document under Path. It may be called once.
func (lw *LayerWriter) Finish() error {
	if lw.state == writingFinished {
		return ErrDataAlreadyWritten
	}
	if lw.state == writingHeader {
		if err := lw.BeginData(); err != nil {
			return err
		}
	}
	lw.state = writingFinished

	lw.end(elemSegments)
	lw.end(elemLayer)
	if lw.err == nil {
		lw.err = lw.enc.Close()
	}
	if lw.err != nil {
		return lw.err
	}

	if lw.stream != nil {
		if err := lw.pw.storeStream(lw.streamPath); err != nil {
			return err
		}
	}
	if err := lw.pw.AddAttachment(lw.path, lw.buf.Bytes(), RelationshipLayer); err != nil {
		return err
	}
	metrics.RecordLayerWritten(lw.stream != nil)
	lw.log.Debug("layer written", "path", lw.path, "bytes", lw.buf.Len(), "binary", lw.streamPath)
	return nil
}

// Close finishes the layer if Finish has not been called. It is safe to call
// more than once.
func (lw *LayerWriter) Close() error {
	if lw.state == writingFinished {
		return nil
	}
	return lw.Finish()
}

// WithLayer opens a layer session, runs fn and finishes the layer on every
// exit path. Errors from fn take precedence over errors from finishing.
func WithLayer(t *Toolpath, zMax uint32, path string, pw *PackageWriter, fn func(*LayerWriter) error) error {
	lw, err := t.AddLayer(zMax, path, pw)
	if err != nil {
		return err
	}
	defer func() { _ = lw.Close() }()
	if err := fn(lw); err != nil {
		return err
	}
	return lw.Close()
}
