package chunkstream

import "errors"

var (
	ErrInvalidSignature   = errors.New("chunkstream: invalid container signature")
	ErrUnsupportedVersion = errors.New("chunkstream: unsupported container version")
	ErrCorruptContainer   = errors.New("chunkstream: corrupt container")
	ErrCapacityExceeded   = errors.New("chunkstream: capacity exceeded")
	ErrChecksumMismatch   = errors.New("chunkstream: chunk checksum mismatch")
	ErrUnknownKey         = errors.New("chunkstream: unknown entry key")
	ErrInvalidEntryType   = errors.New("chunkstream: invalid entry type")
	ErrTypeMismatch       = errors.New("chunkstream: entry type mismatch")
	ErrUnsupportedCodec   = errors.New("chunkstream: unsupported codec")
	ErrSealed             = errors.New("chunkstream: writer already serialized")
)
