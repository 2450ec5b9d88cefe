// Package keys provides hierarchical, time-sortable identifiers for graph
// nodes and artifacts. A key is an ordered sequence of ULID segments joined
// by "/"; the first segment is the root shared by every descendant, and the
// encoded form of any ancestor is a prefix of its descendants' encoding.
package keys

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Separator joins key segments in the encoded string form.
const Separator = "/"

// ErrNoParent indicates a root key has no parent.
var ErrNoParent = errors.New("root key has no parent")

// Key is an immutable hierarchical identifier. The zero value is invalid;
// construct keys with NewRoot, Child, or Parse.
type Key struct {
	segments []string
}

// NewRoot generates a fresh single-segment key. Segments are ULIDs, so keys
// created later sort lexicographically after keys created earlier.
func NewRoot() Key {
	return Key{segments: []string{ulid.Make().String()}}
}

// Child returns a new key extending k by one fresh segment.
// The result's Root equals k's Root at any depth.
func (k Key) Child() Key {
	segs := make([]string, len(k.segments)+1)
	copy(segs, k.segments)
	segs[len(k.segments)] = ulid.Make().String()
	return Key{segments: segs}
}

// Root returns the first-segment-only key. For a root key it returns the key
// itself.
func (k Key) Root() Key {
	if len(k.segments) == 0 {
		return Key{}
	}
	return Key{segments: k.segments[:1]}
}

// Parent returns the key with the last segment dropped. Fails with ErrNoParent
// when k is already a root.
func (k Key) Parent() (Key, error) {
	if len(k.segments) <= 1 {
		return Key{}, ErrNoParent
	}
	segs := make([]string, len(k.segments)-1)
	copy(segs, k.segments[:len(k.segments)-1])
	return Key{segments: segs}, nil
}

// IsRoot reports whether k has exactly one segment.
func (k Key) IsRoot() bool {
	return len(k.segments) == 1
}

// IsZero reports whether k is the zero (invalid) key.
func (k Key) IsZero() bool {
	return len(k.segments) == 0
}

// Depth returns the number of segments.
func (k Key) Depth() int {
	return len(k.segments)
}

// Segments returns a copy of the segment sequence.
func (k Key) Segments() []string {
	segs := make([]string, len(k.segments))
	copy(segs, k.segments)
	return segs
}

// String returns the encoded form: segments joined by Separator.
func (k Key) String() string {
	return strings.Join(k.segments, Separator)
}

// Equal reports value equality of the full segment sequence.
func (k Key) Equal(other Key) bool {
	if len(k.segments) != len(other.segments) {
		return false
	}
	for i, s := range k.segments {
		if s != other.segments[i] {
			return false
		}
	}
	return true
}

// HasAncestor reports whether ancestor's segments are a strict-or-equal prefix
// of k's segments. This is what makes prefix-range queries over the encoded
// form correct.
func (k Key) HasAncestor(ancestor Key) bool {
	if len(ancestor.segments) > len(k.segments) {
		return false
	}
	for i, s := range ancestor.segments {
		if k.segments[i] != s {
			return false
		}
	}
	return true
}

// Parse decodes a key from its string form, validating every segment as a
// ULID.
func Parse(s string) (Key, error) {
	if s == "" {
		return Key{}, fmt.Errorf("parse key: empty string")
	}
	parts := strings.Split(s, Separator)
	for _, p := range parts {
		if _, err := ulid.Parse(p); err != nil {
			return Key{}, fmt.Errorf("parse key segment %q: %w", p, err)
		}
	}
	return Key{segments: parts}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constants.
func MustParse(s string) Key {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*k = Key{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
