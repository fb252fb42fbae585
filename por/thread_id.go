// Package por holds the small, dependency-free vocabulary shared by
// every layer of the unfolding engine: thread identifiers, lock and
// condition-variable identifiers, and the closed set of event kinds.
package por

import (
	"fmt"
	"strconv"
	"strings"
)

// ThreadId is a hierarchical, totally-ordered thread identifier: a
// sequence of positive 16-bit local ids forming a tree path. A child
// thread's id is its parent's id extended by one local id. The root
// main thread has id [1].
type ThreadId struct {
	ids []uint16
}

// RootThreadId returns the id of the main thread, [1].
func RootThreadId() ThreadId {
	return ThreadId{ids: []uint16{1}}
}

// NewThreadId builds a ThreadId from a slice of local ids. It panics if
// any id is zero or the slice is empty, mirroring the construction
// invariants of the original thread_id (no lᵢ = 0).
func NewThreadId(ids ...uint16) ThreadId {
	if len(ids) == 0 {
		panic("por: thread id must have at least one local id")
	}
	for _, id := range ids {
		if id == 0 {
			panic("por: local ids must be non-zero")
		}
	}
	cp := make([]uint16, len(ids))
	copy(cp, ids)
	return ThreadId{ids: cp}
}

// WithChild extends this thread id by one local id, forming the id of
// a child thread created by this thread.
func (t ThreadId) WithChild(localID uint16) ThreadId {
	if localID == 0 {
		panic("por: local ids must be non-zero")
	}
	cp := make([]uint16, len(t.ids)+1)
	copy(cp, t.ids)
	cp[len(t.ids)] = localID
	return ThreadId{ids: cp}
}

// Empty reports whether this is the zero-value thread id (no component
// ever has this id; it exists only as a sentinel for "no thread").
func (t ThreadId) Empty() bool {
	return len(t.ids) == 0
}

// Len returns the number of local ids in the path.
func (t ThreadId) Len() int {
	return len(t.ids)
}

// At returns the local id at the given position in the path.
func (t ThreadId) At(i int) uint16 {
	return t.ids[i]
}

// Equal reports whether two thread ids name the same thread.
func (t ThreadId) Equal(o ThreadId) bool {
	if len(t.ids) != len(o.ids) {
		return false
	}
	for i := range t.ids {
		if t.ids[i] != o.ids[i] {
			return false
		}
	}
	return true
}

// Less implements the total lexicographic order over thread ids: the
// path with the smaller local id at the first differing position is
// smaller; a strict prefix is smaller than its extension.
func (t ThreadId) Less(o ThreadId) bool {
	n := len(t.ids)
	if len(o.ids) < n {
		n = len(o.ids)
	}
	for i := 0; i < n; i++ {
		if t.ids[i] != o.ids[i] {
			return t.ids[i] < o.ids[i]
		}
	}
	return len(t.ids) < len(o.ids)
}

// String renders the thread id as a comma-joined path, e.g. "1,2,1".
func (t ThreadId) String() string {
	var b strings.Builder
	for i, id := range t.ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return b.String()
}

// ParseThreadId parses the comma-joined representation produced by
// String. It returns an error if the string is empty, malformed, or
// contains a zero local id.
func ParseThreadId(s string) (ThreadId, error) {
	if s == "" {
		return ThreadId{}, fmt.Errorf("por: empty thread id")
	}
	parts := strings.Split(s, ",")
	ids := make([]uint16, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return ThreadId{}, fmt.Errorf("por: invalid thread id %q: %w", s, err)
		}
		if v == 0 {
			return ThreadId{}, fmt.Errorf("por: invalid thread id %q: local ids must be non-zero", s)
		}
		ids = append(ids, uint16(v))
	}
	return ThreadId{ids: ids}, nil
}
