package toolpath

import (
	"encoding/xml"
	"fmt"
	"io"
)

type resourceDoc struct {
	XMLName    xml.Name          `xml:"http://schemas.microsoft.com/3dmanufacturing/toolpath/2019/05 toolpath"`
	UnitFactor float64           `xml:"unitfactor,attr"`
	Profiles   []resourceProfile `xml:"profiles>profile"`
	Layers     []resourceLayer   `xml:"layers>layer"`
}

type resourceProfile struct {
	UUID       string  `xml:"uuid,attr"`
	Name       string  `xml:"name,attr"`
	LaserPower float64 `xml:"laserpower,attr"`
	LaserSpeed float64 `xml:"laserspeed,attr"`
	LaserFocus float64 `xml:"laserfocus,attr"`
	LaserIndex uint32  `xml:"laserindex,attr"`
}

type resourceLayer struct {
	Path string `xml:"path,attr"`
	ZMax uint32 `xml:"zmax,attr"`
}

// EncodeResource writes the toolpath resource document: unit factor,
// profiles and the layer table.
func EncodeResource(w io.Writer, t *Toolpath) error {
	if t == nil {
		return fmt.Errorf("%w: nil toolpath", ErrInvalidParam)
	}
	doc := resourceDoc{UnitFactor: t.unitFactor}
	for _, p := range t.profiles {
		doc.Profiles = append(doc.Profiles, resourceProfile{
			UUID:       p.UUID.String(),
			Name:       p.Name,
			LaserPower: p.LaserPower,
			LaserSpeed: p.LaserSpeed,
			LaserFocus: p.LaserFocus,
			LaserIndex: p.LaserIndex,
		})
	}
	for _, l := range t.layers {
		doc.Layers = append(doc.Layers, resourceLayer{Path: l.Path, ZMax: l.ZMax})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// DecodeResource reads a toolpath resource document written by
// EncodeResource. Profile UUIDs are preserved.
func DecodeResource(r io.Reader) (*Toolpath, error) {
	var doc resourceDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: toolpath resource: %v", ErrInvalidXML, err)
	}
	t, err := New(doc.UnitFactor)
	if err != nil {
		return nil, err
	}
	for _, p := range doc.Profiles {
		if _, err := t.AddExistingProfile(p.UUID, p.Name, p.LaserPower, p.LaserSpeed, p.LaserFocus, p.LaserIndex); err != nil {
			return nil, err
		}
	}
	for _, l := range doc.Layers {
		if _, err := t.AppendLayer(l.Path, l.ZMax); err != nil {
			return nil, err
		}
	}
	return t, nil
}
