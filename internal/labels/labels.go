// Package labels defines the ordered pathology label set shared by
// predictions, caches, and ground truth. Column order in every matrix is
// defined by a Set, so the same Set value must be passed to every boundary
// that produces or consumes a matrix.
package labels

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Set is an ordered, duplicate-free collection of label names.
// The zero value is empty and invalid; construct with New.
type Set struct {
	names []string
	index map[string]int
}

// New validates the given names and returns a Set preserving their order.
func New(names []string) (Set, error) {
	if len(names) == 0 {
		return Set{}, fmt.Errorf("label set must contain at least one label")
	}

	index := make(map[string]int, len(names))
	ordered := make([]string, len(names))
	for i, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return Set{}, fmt.Errorf("label %d is empty", i)
		}
		if _, exists := index[trimmed]; exists {
			return Set{}, fmt.Errorf("duplicate label %q", trimmed)
		}
		index[trimmed] = i
		ordered[i] = trimmed
	}

	return Set{names: ordered, index: index}, nil
}

// Len returns the number of labels, i.e. the column count of every
// matrix aligned to this set.
func (s Set) Len() int {
	return len(s.names)
}

// Names returns a copy of the label names in column order.
func (s Set) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// At returns the label name at column i.
func (s Set) At(i int) string {
	return s.names[i]
}

// Index returns the column index of the named label.
func (s Set) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Equal reports whether both sets contain the same labels in the same order.
func (s Set) Equal(other Set) bool {
	if len(s.names) != len(other.names) {
		return false
	}
	for i, name := range s.names {
		if other.names[i] != name {
			return false
		}
	}
	return true
}

// Fingerprint returns a stable hex digest of the ordered label names,
// used as a cache key component.
func (s Set) Fingerprint() string {
	h := sha256.New()
	for _, name := range s.names {
		h.Write([]byte(name))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s Set) String() string {
	return strings.Join(s.names, ",")
}
