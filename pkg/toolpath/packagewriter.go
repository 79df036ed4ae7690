package toolpath

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cjgriscom/lib3mf/internal/logger"
	"github.com/cjgriscom/lib3mf/pkg/attachment"
	"github.com/cjgriscom/lib3mf/pkg/chunkstream"
)

// WriterOptions configures a PackageWriter.
type WriterOptions struct {
	// AllowBinaryStreams enables binary stream registration. When false every
	// layer is written with inline coordinates.
	AllowBinaryStreams bool

	// Stream configures binary streams created by NewLayerBinaryStream.
	Stream chunkstream.WriterOptions

	Logger logger.Logger
}

type binaryStream struct {
	uuid   string
	path   string
	w      *chunkstream.Writer
	stored bool
}

// PackageWriter is the writer context shared by the layer write sessions of
// one package. It owns the attachment store and the registry of binary
// streams that layers may delegate coordinate arrays to.
type PackageWriter struct {
	store attachment.Store
	opts  WriterOptions
	log   logger.Logger

	streams     map[string]*binaryStream // by stream uuid
	paths       map[string]string        // stream path -> stream uuid
	order       []string
	assignments map[string]string // instance uuid -> stream uuid
	closed      bool

	mu sync.Mutex
}

// NewPackageWriter returns a writer context backed by store.
func NewPackageWriter(store attachment.Store, opts WriterOptions) (*PackageWriter, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil attachment store", ErrInvalidParam)
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &PackageWriter{
		store:       store,
		opts:        opts,
		log:         log,
		streams:     make(map[string]*binaryStream),
		paths:       make(map[string]string),
		assignments: make(map[string]string),
	}, nil
}

// Store returns the underlying attachment store.
func (pw *PackageWriter) Store() attachment.Store {
	return pw.store
}

// AllowBinaryStreams reports whether binary streams may be registered.
func (pw *PackageWriter) AllowBinaryStreams() bool {
	return pw.opts.AllowBinaryStreams
}

// RegisterBinaryStream makes w available under the given package path and
// stream UUID.
func (pw *PackageWriter) RegisterBinaryStream(path, streamUUID string, w *chunkstream.Writer) error {
	if w == nil || streamUUID == "" {
		return fmt.Errorf("%w: binary stream", ErrInvalidParam)
	}
	if _, err := attachment.CleanPath(path); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}

	pw.mu.Lock()
	defer pw.mu.Unlock()

	if !pw.opts.AllowBinaryStreams {
		return ErrBinaryStreamsNotAllowed
	}
	if _, ok := pw.paths[path]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBinaryStreamPath, path)
	}
	if _, ok := pw.streams[streamUUID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBinaryStreamUUID, streamUUID)
	}
	pw.streams[streamUUID] = &binaryStream{uuid: streamUUID, path: path, w: w}
	pw.paths[path] = streamUUID
	pw.order = append(pw.order, streamUUID)
	return nil
}

// AssignBinaryStream routes the arrays of the instance (a layer session UUID)
// to a registered stream. An empty streamUUID removes the assignment.
func (pw *PackageWriter) AssignBinaryStream(instanceUUID, streamUUID string) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if streamUUID == "" {
		delete(pw.assignments, instanceUUID)
		return nil
	}
	if _, ok := pw.streams[streamUUID]; !ok {
		return fmt.Errorf("%w: %s", ErrBinaryStreamNotFound, streamUUID)
	}
	pw.assignments[instanceUUID] = streamUUID
	return nil
}

// FindBinaryStream returns the stream assigned to an instance, if any.
func (pw *PackageWriter) FindBinaryStream(instanceUUID string) (*chunkstream.Writer, string, bool) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	id, ok := pw.assignments[instanceUUID]
	if !ok {
		return nil, "", false
	}
	s, ok := pw.streams[id]
	if !ok {
		return nil, "", false
	}
	return s.w, s.path, true
}

// NewLayerBinaryStream creates a stream for one layer session, registers it
// under LayerDir and assigns it to the session. It returns the stream path.
func (pw *PackageWriter) NewLayerBinaryStream(instanceUUID string) (string, error) {
	streamUUID := uuid.NewString()
	path := LayerDir + streamUUID + BinaryExt
	if err := pw.RegisterBinaryStream(path, streamUUID, chunkstream.NewWriter(pw.opts.Stream)); err != nil {
		return "", err
	}
	if err := pw.AssignBinaryStream(instanceUUID, streamUUID); err != nil {
		return "", err
	}
	return path, nil
}

// AddAttachment stores a finished part.
func (pw *PackageWriter) AddAttachment(path string, data []byte, relationshipType string) error {
	return pw.store.Add(path, data, relationshipType)
}

// storeStream serializes the stream at path and adds it to the store. A
// stream is stored once; later calls are no-ops.
func (pw *PackageWriter) storeStream(path string) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	id, ok := pw.paths[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBinaryStreamNotFound, path)
	}
	return pw.storeLocked(pw.streams[id])
}

func (pw *PackageWriter) storeLocked(s *binaryStream) error {
	if s.stored {
		return nil
	}
	data, err := s.w.Serialize()
	if err != nil {
		return fmt.Errorf("serialize binary stream %s: %w", s.path, err)
	}
	if err := pw.store.Add(s.path, data, RelationshipBinaryStream); err != nil {
		return err
	}
	s.stored = true
	pw.log.Debug("stored binary stream", "path", s.path, "bytes", len(data))
	return nil
}

// Close stores every registered stream that no layer has stored yet.
func (pw *PackageWriter) Close() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.closed {
		return nil
	}
	pw.closed = true

	var errs []error
	for _, id := range pw.order {
		if err := pw.storeLocked(pw.streams[id]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
