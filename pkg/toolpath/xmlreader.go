package toolpath

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/cjgriscom/lib3mf/internal/logger"
	"github.com/cjgriscom/lib3mf/internal/metrics"
	"github.com/cjgriscom/lib3mf/pkg/attachment"
	"github.com/cjgriscom/lib3mf/pkg/chunkstream"
)

// ReadOptions configures layer reading.
type ReadOptions struct {
	Logger logger.Logger

	// CacheChunks is passed to the binary stream reader.
	CacheChunks int
}

type layerParser struct {
	dec   *xml.Decoder
	data  *ReadData
	store attachment.Store
	opts  ReadOptions

	binary   *chunkstream.Reader
	attached []*attachment.Attachment
}

// ReadLayerXML parses a layer document. Binary streams referenced by the
// document are looked up in store, which may be nil for inline layers.
func ReadLayerXML(data []byte, t *Toolpath, store attachment.Store, opts ReadOptions) (*ReadData, error) {
	d, err := NewReadData(t)
	if err != nil {
		return nil, err
	}
	d.log = opts.Logger

	p := &layerParser{
		dec:   xml.NewDecoder(bytes.NewReader(data)),
		data:  d,
		store: store,
		opts:  opts,
	}
	defer p.close()

	if err := p.parse(); err != nil {
		return nil, err
	}
	return d, nil
}

func (p *layerParser) close() {
	for _, a := range p.attached {
		_ = a.Close()
	}
	p.attached = nil
	p.binary = nil
}

func (p *layerParser) token() (xml.Token, error) {
	tok, err := p.dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected end of document", ErrInvalidXML)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidXML, err)
	}
	return tok, nil
}

func (p *layerParser) skip() error {
	if err := p.dec.Skip(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidXML, err)
	}
	return nil
}

// children calls fn for every child element of the current element. fn must
// consume the child up to and including its end element.
func (p *layerParser) children(fn func(xml.StartElement) error) error {
	for {
		tok, err := p.token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := fn(t); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

func (p *layerParser) parse() error {
	for {
		tok, err := p.token()
		if err != nil {
			return err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Space != NamespaceToolpath || start.Name.Local != elemLayer {
			return fmt.Errorf("%w: root element {%s}%s", ErrInvalidXML, start.Name.Space, start.Name.Local)
		}
		return p.parseLayer()
	}
}

// unknown handles a child that no handler claims: toolpath namespace elements
// produce a warning, foreign elements are skipped silently.
func (p *layerParser) unknown(parent string, e xml.StartElement) error {
	if e.Name.Space == NamespaceToolpath {
		p.data.warn(e.Name.Local, "", "unexpected element in <"+parent+">")
	}
	return p.skip()
}

func (p *layerParser) parseLayer() error {
	return p.children(func(e xml.StartElement) error {
		if e.Name.Space != NamespaceToolpath {
			return p.skip()
		}
		switch e.Name.Local {
		case elemParts:
			return p.parseRefs(e, elemPart)
		case elemProfiles:
			return p.parseRefs(e, elemProfile)
		case elemSegments:
			return p.parseSegments(e)
		default:
			return p.unknown(elemLayer, e)
		}
	})
}

func isNamespaceDecl(a xml.Attr) bool {
	return a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns")
}

// attrs collects the named attributes of e. Unprefixed attributes are always
// considered; attributes in the compression namespace only when binary is
// set. Unknown unprefixed attributes produce warnings.
func (p *layerParser) attrs(e xml.StartElement, binary bool, dupErr, missingErr error, names ...string) ([]string, error) {
	vals := make([]string, len(names))
	seen := make([]bool, len(names))
	for _, a := range e.Attr {
		if isNamespaceDecl(a) {
			continue
		}
		if a.Name.Space != "" && !(binary && a.Name.Space == NamespaceCompression) {
			continue
		}
		i := slices.Index(names, a.Name.Local)
		if i < 0 {
			if a.Name.Space == "" {
				p.data.warn(e.Name.Local, a.Name.Local, "unknown attribute")
			}
			continue
		}
		if seen[i] {
			return nil, attrErr(e.Name.Local, a.Name.Local, a.Value, dupErr)
		}
		seen[i] = true
		vals[i] = a.Value
	}
	for i, n := range names {
		if !seen[i] {
			return nil, attrErr(e.Name.Local, n, "", missingErr)
		}
	}
	return vals, nil
}

func parseLocalID(elem, name, v string) (uint32, error) {
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, attrErr(elem, name, v, ErrInvalidXML)
	}
	return uint32(n), nil
}

func (p *layerParser) parseRefs(container xml.StartElement, item string) error {
	return p.children(func(e xml.StartElement) error {
		if e.Name.Space != NamespaceToolpath || e.Name.Local != item {
			return p.unknown(container.Name.Local, e)
		}
		vals, err := p.attrs(e, false, ErrInvalidXML, ErrMissingID, attrID, attrUUID)
		if err != nil {
			return err
		}
		id, err := parseLocalID(item, attrID, vals[0])
		if err != nil {
			return err
		}
		u, err := uuid.Parse(vals[1])
		if err != nil {
			return attrErr(item, attrUUID, vals[1], ErrInvalidUUID)
		}
		if err := p.data.RegisterUUID(id, u); err != nil {
			return attrErr(item, attrID, vals[0], err)
		}
		return p.skip()
	})
}

func (p *layerParser) parseSegments(e xml.StartElement) error {
	for _, a := range e.Attr {
		switch {
		case isNamespaceDecl(a):
		case a.Name.Space == NamespaceCompression && a.Name.Local == attrBinary:
			if err := p.openBinary(a.Value); err != nil {
				return err
			}
		case a.Name.Space == "":
			p.data.warn(elemSegments, a.Name.Local, "unknown attribute")
		}
	}
	return p.children(func(c xml.StartElement) error {
		if c.Name.Space != NamespaceToolpath || c.Name.Local != elemSegment {
			return p.unknown(elemSegments, c)
		}
		return p.parseSegment(c)
	})
}

func (p *layerParser) openBinary(path string) error {
	if p.store == nil {
		return attrErr(elemSegments, attrBinary, path, ErrMissingAttachment)
	}
	a, err := p.store.Find(path)
	if err != nil {
		return attrErr(elemSegments, attrBinary, path, fmt.Errorf("%w: %v", ErrBinaryStreamNotFound, err))
	}
	p.attached = append(p.attached, a)
	r, err := chunkstream.Open(a.Data, chunkstream.ReaderOptions{CacheChunks: p.opts.CacheChunks})
	if err != nil {
		return attrErr(elemSegments, attrBinary, path, err)
	}
	p.binary = r
	return nil
}

func (p *layerParser) parseSegment(e xml.StartElement) error {
	vals, err := p.attrs(e, false, ErrInvalidXML, ErrMissingID, attrType, attrProfileID, attrPartID)
	if err != nil {
		var ae *AttributeError
		if errors.As(err, &ae) && ae.Attribute == attrType && errors.Is(err, ErrMissingID) {
			ae.Err = ErrInvalidSegmentType
		}
		return err
	}
	typ, err := ParseSegmentType(vals[0])
	if err != nil {
		return attrErr(elemSegment, attrType, vals[0], ErrInvalidSegmentType)
	}
	profileID, err := parseLocalID(elemSegment, attrProfileID, vals[1])
	if err != nil {
		return err
	}
	partID, err := parseLocalID(elemSegment, attrPartID, vals[2])
	if err != nil {
		return err
	}
	if _, err := p.data.MapIDToUUID(profileID); err != nil {
		return attrErr(elemSegment, attrProfileID, vals[1], ErrMissingID)
	}
	if _, err := p.data.MapIDToUUID(partID); err != nil {
		return attrErr(elemSegment, attrPartID, vals[2], ErrMissingID)
	}

	if err := p.data.BeginSegment(typ, profileID, partID); err != nil {
		return err
	}
	err = p.children(func(c xml.StartElement) error {
		switch {
		case c.Name.Space == NamespaceToolpath && c.Name.Local == elemHatch && typ == SegmentHatch:
			return p.inlineHatch(c)
		case c.Name.Space == NamespaceToolpath && c.Name.Local == elemPoint && typ != SegmentHatch:
			return p.inlinePoint(c)
		case c.Name.Space == NamespaceCompression && c.Name.Local == elemHatch && typ == SegmentHatch:
			return p.binaryHatch(c)
		case c.Name.Space == NamespaceCompression && c.Name.Local == elemPoint && typ != SegmentHatch:
			return p.binaryPoints(c)
		case c.Name.Local == elemHatch || c.Name.Local == elemPoint:
			if c.Name.Space == NamespaceToolpath || c.Name.Space == NamespaceCompression {
				return fmt.Errorf("%w: <%s> in %s segment", ErrInvalidXML, c.Name.Local, typ)
			}
		}
		return p.unknown(elemSegment, c)
	})
	if err != nil {
		return err
	}
	if err := p.data.EndSegment(); err != nil {
		return err
	}
	metrics.SegmentsRead.WithLabelValues(typ.String()).Inc()
	return nil
}

func checkCoordinate(elem, name, raw string, v float64) (float32, error) {
	if math.IsNaN(v) || math.Abs(v) > MaxCoordinate {
		return 0, attrErr(elem, name, raw, ErrInvalidCoordinate)
	}
	return float32(v), nil
}

// parseCoordinate parses an inline coordinate attribute value.
func parseCoordinate(elem, name, v string) (float32, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, attrErr(elem, name, v, ErrInvalidCoordinate)
	}
	return checkCoordinate(elem, name, v, f)
}

// parseBinaryID parses a binary array key attribute value.
func parseBinaryID(elem, name, v string) (uint32, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 || n > MaxResourceIndex {
		return 0, attrErr(elem, name, v, ErrInvalidBinaryElementID)
	}
	return uint32(n), nil
}

func (p *layerParser) coordinates(e xml.StartElement, names ...string) ([]float32, error) {
	vals, err := p.attrs(e, false, ErrInvalidCoordinate, ErrMissingCoordinate, names...)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(vals))
	for i, v := range vals {
		if out[i], err = parseCoordinate(e.Name.Local, names[i], v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *layerParser) inlineHatch(e xml.StartElement) error {
	c, err := p.coordinates(e, attrX1, attrY1, attrX2, attrY2)
	if err != nil {
		return err
	}
	if err := p.data.AddPoint(c[0], c[1]); err != nil {
		return err
	}
	if err := p.data.AddPoint(c[2], c[3]); err != nil {
		return err
	}
	return p.skip()
}

func (p *layerParser) inlinePoint(e xml.StartElement) error {
	c, err := p.coordinates(e, attrX, attrY)
	if err != nil {
		return err
	}
	if err := p.data.AddPoint(c[0], c[1]); err != nil {
		return err
	}
	return p.skip()
}

// arrays decodes the binary arrays referenced by the named attributes of e.
// All arrays must have the same length.
func (p *layerParser) arrays(e xml.StartElement, names ...string) ([][]float32, error) {
	elem := CompressionPrefix + ":" + e.Name.Local
	vals, err := p.attrs(e, true, ErrInvalidBinaryElementID, ErrMissingID, names...)
	if err != nil {
		return nil, err
	}
	if p.binary == nil {
		return nil, fmt.Errorf("%w: <%s> without a binary stream on <%s>", ErrBinaryStreamNotFound, elem, elemSegments)
	}

	out := make([][]float32, len(names))
	for i, v := range vals {
		key, err := parseBinaryID(elem, names[i], v)
		if err != nil {
			return nil, err
		}
		a, err := p.binary.DecodeArray(key)
		if err != nil {
			return nil, attrErr(elem, names[i], v, err)
		}
		col := make([]float32, a.Len())
		for j := range col {
			var f float64
			if a.Type == chunkstream.DataFloat32 {
				f = float64(a.Floats[j])
			} else {
				f = float64(a.Ints[j])
			}
			if col[j], err = checkCoordinate(elem, names[i], v, f); err != nil {
				return nil, err
			}
		}
		if i > 0 && len(col) != len(out[0]) {
			return nil, attrErr(elem, names[i], v, fmt.Errorf("%w: array length %d, expected %d", ErrInvalidXML, len(col), len(out[0])))
		}
		out[i] = col
	}
	return out, nil
}

func (p *layerParser) binaryHatch(e xml.StartElement) error {
	cols, err := p.arrays(e, attrX1, attrY1, attrX2, attrY2)
	if err != nil {
		return err
	}
	for i := range cols[0] {
		if err := p.data.AddPoint(cols[0][i], cols[1][i]); err != nil {
			return err
		}
		if err := p.data.AddPoint(cols[2][i], cols[3][i]); err != nil {
			return err
		}
	}
	return p.skip()
}

func (p *layerParser) binaryPoints(e xml.StartElement) error {
	cols, err := p.arrays(e, attrX1, attrY1)
	if err != nil {
		return err
	}
	for i := range cols[0] {
		if err := p.data.AddPoint(cols[0][i], cols[1][i]); err != nil {
			return err
		}
	}
	return p.skip()
}
