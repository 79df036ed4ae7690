package toolpath

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParam = errors.New("toolpath: invalid parameter")
	ErrInvalidIndex = errors.New("toolpath: index out of range")

	ErrNotWritingHeader   = errors.New("toolpath: layer is not writing header")
	ErrNotWritingData     = errors.New("toolpath: layer is not writing data")
	ErrDataAlreadyWritten = errors.New("toolpath: layer data already written")

	ErrSegmentAlreadyOpen = errors.New("toolpath: layer segment already open")
	ErrSegmentNotOpen     = errors.New("toolpath: layer segment not open")

	ErrDuplicateID = errors.New("toolpath: duplicate id")
	ErrMissingID   = errors.New("toolpath: missing id")
	ErrInvalidUUID = errors.New("toolpath: invalid uuid")

	ErrInvalidCoordinate      = errors.New("toolpath: invalid coordinate")
	ErrMissingCoordinate      = errors.New("toolpath: missing coordinate")
	ErrInvalidBinaryElementID = errors.New("toolpath: invalid binary element id")
	ErrInvalidSegmentType     = errors.New("toolpath: invalid segment type")

	ErrBinaryStreamsNotAllowed   = errors.New("toolpath: binary streams not allowed")
	ErrDuplicateBinaryStreamPath = errors.New("toolpath: duplicate binary stream path")
	ErrDuplicateBinaryStreamUUID = errors.New("toolpath: duplicate binary stream uuid")
	ErrBinaryStreamNotFound      = errors.New("toolpath: binary stream not found")

	ErrMissingAttachment = errors.New("toolpath: missing attachment")
	ErrInvalidXML        = errors.New("toolpath: invalid layer xml")
)

// AttributeError reports a content violation on a single XML attribute.
type AttributeError struct {
	Element   string
	Attribute string
	Value     string
	Err       error
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("%v: <%s %s=%q>", e.Err, e.Element, e.Attribute, e.Value)
}

func (e *AttributeError) Unwrap() error {
	return e.Err
}

func attrErr(elem, attr, value string, err error) error {
	return &AttributeError{Element: elem, Attribute: attr, Value: value, Err: err}
}
