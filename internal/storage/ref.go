package storage

import (
	"fmt"
	"path"
	"strings"

	"travelchat/internal/model"
)

// Reference schemes understood by ParseRef.
const (
	SchemeGCS   = "gs"
	SchemeR2    = "r2"
	SchemeLocal = "local"
)

// Ref identifies a stored object: gs://bucket/key, r2://bucket/key or /uploads/<name>.
type Ref struct {
	Scheme string
	Bucket string
	Key    string
}

// String renders the ref in the form ParseRef accepts.
func (r Ref) String() string {
	if r.Scheme == SchemeLocal {
		return model.LocalURLPrefix + r.Key
	}
	return fmt.Sprintf("%s://%s/%s", r.Scheme, r.Bucket, r.Key)
}

// IsLocal reports whether the ref points at the local upload directory.
func (r Ref) IsLocal() bool {
	return r.Scheme == SchemeLocal
}

// LocalRef builds the ref served from the local upload directory.
func LocalRef(name string) Ref {
	return Ref{Scheme: SchemeLocal, Key: name}
}

// ParseRef parses a stored object reference.
func ParseRef(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)

	if name, ok := strings.CutPrefix(raw, model.LocalURLPrefix); ok {
		if !validLocalName(name) {
			return Ref{}, fmt.Errorf("%w: %q", model.ErrInvalidReference, raw)
		}
		return LocalRef(name), nil
	}

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || (scheme != SchemeGCS && scheme != SchemeR2) {
		return Ref{}, fmt.Errorf("%w: %q", model.ErrInvalidReference, raw)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" || strings.Contains(key, "..") {
		return Ref{}, fmt.Errorf("%w: %q", model.ErrInvalidReference, raw)
	}
	return Ref{Scheme: scheme, Bucket: bucket, Key: key}, nil
}

// validLocalName rejects anything that could escape the upload directory.
func validLocalName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return path.Base(name) == name && !strings.ContainsAny(name, `/\`)
}
