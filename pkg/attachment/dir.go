package attachment

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"
)

// IndexFile is the name of the relationship index kept at the store root.
const IndexFile = ".rels.yaml"

type indexEntry struct {
	Path         string `yaml:"path"`
	Relationship string `yaml:"relationship,omitempty"`
}

type indexDoc struct {
	Attachments []indexEntry `yaml:"attachments"`
}

// DirStore keeps attachments as files below a root directory. Attachments are
// memory-mapped on Find when the platform allows it.
type DirStore struct {
	root   string
	mu     sync.RWMutex
	index  []indexEntry
	byPath map[string]int
}

// OpenDir opens or creates a directory store rooted at root.
func OpenDir(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	s := &DirStore{root: root, byPath: make(map[string]int)}

	raw, err := os.ReadFile(filepath.Join(root, IndexFile))
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	var doc indexDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("attachment: parse %s: %w", IndexFile, err)
	}
	for _, e := range doc.Attachments {
		if _, err := CleanPath(e.Path); err != nil {
			return nil, err
		}
		if _, ok := s.byPath[e.Path]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePath, e.Path)
		}
		s.byPath[e.Path] = len(s.index)
		s.index = append(s.index, e)
	}
	return s, nil
}

// Root returns the store directory.
func (s *DirStore) Root() string {
	return s.root
}

func (s *DirStore) file(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(p[1:]))
}

func (s *DirStore) Add(p string, data []byte, relationshipType string) error {
	p, err := CleanPath(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byPath[p]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, p)
	}
	name := s.file(p)
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, p)
	}
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	s.byPath[p] = len(s.index)
	s.index = append(s.index, indexEntry{Path: p, Relationship: relationshipType})
	return s.writeIndex()
}

func (s *DirStore) writeIndex() error {
	raw, err := yaml.Marshal(indexDoc{Attachments: s.index})
	if err != nil {
		return err
	}
	tmp := filepath.Join(s.root, IndexFile+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(s.root, IndexFile))
}

// Find maps the attachment read-only. If mmap is unavailable it falls back
// to reading the file. The returned attachment must be closed.
func (s *DirStore) Find(p string) (*Attachment, error) {
	s.mu.RLock()
	i, ok := s.byPath[p]
	var rel string
	if ok {
		rel = s.index[i].Relationship
	}
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}

	f, err := os.Open(s.file(p))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s (listed in index, missing on disk)", ErrNotFound, p)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := st.Size()
	if size64 > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("attachment: %s too large to map", p)
	}
	size := int(size64)

	a := &Attachment{Path: p, RelationshipType: rel}
	if size > 0 {
		data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
		if err == nil {
			a.Data = data
			a.release = func() error { return unix.Munmap(data) }
			return a, nil
		}
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, err
	}
	a.Data = data
	return a, nil
}

// Paths returns attachment paths in insertion order.
func (s *DirStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.index))
	for i, e := range s.index {
		out[i] = e.Path
	}
	return out
}
