// Package toolpath implements the toolpath extension of a 3D manufacturing
// package: the toolpath document model, the per-layer write session that
// emits layer XML (optionally moving coordinate arrays into a chunked binary
// stream) and the per-layer read session that parses it back.
package toolpath

// XML namespaces.
const (
	NamespaceToolpath    = "http://schemas.microsoft.com/3dmanufacturing/toolpath/2019/05"
	NamespaceCompression = "http://schemas.microsoft.com/3dmanufacturing/zcompression/2019/05"

	// CompressionPrefix is the prefix bound to NamespaceCompression in
	// written layer documents.
	CompressionPrefix = "z"
)

// Relationship types used when storing attachments.
const (
	RelationshipToolpath     = "http://schemas.microsoft.com/3dmanufacturing/2019/05/toolpath"
	RelationshipLayer        = "http://schemas.microsoft.com/3dmanufacturing/2019/05/toolpathlayer"
	RelationshipBinaryStream = "http://schemas.microsoft.com/3dmanufacturing/2019/05/binarystream"
)

// Package paths.
const (
	ResourcePath = "/3D/toolpath.model"
	LayerDir     = "/3D/Toolpath/"
	LayerExt     = ".xml"
	BinaryExt    = ".bin"
)

const (
	// MaxCoordinate bounds the magnitude of every coordinate read from a
	// layer. The boundary value itself is accepted.
	MaxCoordinate = 1e9

	// MaxResourceIndex bounds binary element ids.
	MaxResourceIndex = 2147483647
)

const (
	elemLayer    = "layer"
	elemParts    = "parts"
	elemPart     = "part"
	elemProfiles = "profiles"
	elemProfile  = "profile"
	elemSegments = "segments"
	elemSegment  = "segment"
	elemHatch    = "hatch"
	elemPoint    = "point"

	attrID        = "id"
	attrUUID      = "uuid"
	attrType      = "type"
	attrProfileID = "profileid"
	attrPartID    = "partid"
	attrBinary    = "binary"
	attrX         = "x"
	attrY         = "y"
	attrX1        = "x1"
	attrY1        = "y1"
	attrX2        = "x2"
	attrY2        = "y2"
)
