// Package attachment stores the parts of a toolpath package: the toolpath
// resource, layer XML documents and binary stream containers. Each part is
// addressed by an absolute slash-separated path and carries the relationship
// type it was added with.
package attachment

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	ErrNotFound      = errors.New("attachment: not found")
	ErrDuplicatePath = errors.New("attachment: duplicate path")
	ErrInvalidPath   = errors.New("attachment: invalid path")
)

// Attachment is one stored part. Data must be treated as read-only and is
// only valid until Close.
type Attachment struct {
	Path             string
	RelationshipType string
	Data             []byte

	release func() error
}

// Close releases any resources backing Data.
func (a *Attachment) Close() error {
	if a == nil || a.release == nil {
		return nil
	}
	err := a.release()
	a.release = nil
	a.Data = nil
	return err
}

// Store is the package attachment collaborator used by toolpath readers and
// writers.
type Store interface {
	Find(path string) (*Attachment, error)
	Add(path string, data []byte, relationshipType string) error
	Paths() []string
}

// CleanPath validates a part path. Paths are absolute, slash-separated and
// already in canonical form.
func CleanPath(p string) (string, error) {
	if p == "" || p[0] != '/' || p == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	if path.Clean(p) != p || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q is not canonical", ErrInvalidPath, p)
	}
	for _, seg := range strings.Split(p[1:], "/") {
		if seg == ".." || seg == "." || strings.HasPrefix(seg, ".rels") {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return p, nil
}
