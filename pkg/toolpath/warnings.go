package toolpath

import (
	"fmt"

	"github.com/cjgriscom/lib3mf/internal/metrics"
)

// Warning is a recoverable problem found while reading a layer. Unknown
// elements and attributes in the toolpath namespace produce warnings instead
// of failing the parse.
type Warning struct {
	Element   string
	Attribute string
	Message   string
}

func (w Warning) String() string {
	if w.Attribute != "" {
		return fmt.Sprintf("<%s %s>: %s", w.Element, w.Attribute, w.Message)
	}
	return fmt.Sprintf("<%s>: %s", w.Element, w.Message)
}

func (d *ReadData) warn(elem, attr, msg string) {
	w := Warning{Element: elem, Attribute: attr, Message: msg}
	d.warnings = append(d.warnings, w)
	metrics.ReadWarnings.Inc()
	if d.log != nil {
		d.log.Warn("toolpath layer warning", "element", elem, "attribute", attr, "message", msg)
	}
}

// Warnings returns the warnings collected while reading the layer.
func (d *ReadData) Warnings() []Warning {
	out := make([]Warning, len(d.warnings))
	copy(out, d.warnings)
	return out
}
