package todo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidID reports a malformed hierarchical item ID.
var ErrInvalidID = errors.New("invalid item id: segments must be positive integers separated by dots")

// ItemID is the resolved form of a hierarchical string ID such as "3.1".
// The string stays at the boundary; traversal uses explicit segments.
type ItemID struct {
	segments []int
}

// ParseID resolves a hierarchical string ID into an ItemID.
func ParseID(s string) (ItemID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ItemID{}, ErrInvalidID
	}
	parts := strings.Split(s, ".")
	segs := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return ItemID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
		}
		segs[i] = n
	}
	return ItemID{segments: segs}, nil
}

// String returns the boundary representation, e.g. "3.1".
func (id ItemID) String() string {
	parts := make([]string, len(id.segments))
	for i, n := range id.segments {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// Depth returns the nesting depth; top-level items have depth 1.
func (id ItemID) Depth() int { return len(id.segments) }

// Parent returns the parent ID. ok is false for top-level items.
func (id ItemID) Parent() (ItemID, bool) {
	if len(id.segments) <= 1 {
		return ItemID{}, false
	}
	parent := make([]int, len(id.segments)-1)
	copy(parent, id.segments)
	return ItemID{segments: parent}, true
}

// Child returns the n-th child ID, e.g. ("3").Child(2) == "3.2".
func (id ItemID) Child(n int) ItemID {
	child := make([]int, len(id.segments)+1)
	copy(child, id.segments)
	child[len(id.segments)] = n
	return ItemID{segments: child}
}

// IsChildOf reports whether id is a direct child of parent.
func (id ItemID) IsChildOf(parent ItemID) bool {
	if len(id.segments) != len(parent.segments)+1 {
		return false
	}
	for i, n := range parent.segments {
		if id.segments[i] != n {
			return false
		}
	}
	return true
}

// IsDescendantOf reports whether id sits anywhere below parent.
func (id ItemID) IsDescendantOf(parent ItemID) bool {
	if len(id.segments) <= len(parent.segments) {
		return false
	}
	for i, n := range parent.segments {
		if id.segments[i] != n {
			return false
		}
	}
	return true
}

// ChildrenOf returns the IDs in candidates that are direct children of
// parentID, in candidate order. Malformed candidates are ignored.
func ChildrenOf(parentID string, candidates []string) []string {
	parent, err := ParseID(parentID)
	if err != nil {
		return nil
	}
	var children []string
	for _, c := range candidates {
		cid, err := ParseID(c)
		if err != nil {
			continue
		}
		if cid.IsChildOf(parent) {
			children = append(children, c)
		}
	}
	return children
}
