package todo

import (
	"errors"
	"fmt"
)

// List is an insertion-order-preserving collection of items owned by a
// single orchestration run. It is not safe for concurrent use; the
// owning run serializes all mutation.
type List struct {
	// Request is the original high-level request the list decomposes.
	Request string

	order []string
	byID  map[string]*Item
}

// Errors for list operations.
var (
	ErrDuplicateItem = errors.New("item id already present in list")
	ErrItemNotFound  = errors.New("item not found in list")
)

// NewList creates an empty list for the given request.
func NewList(request string) *List {
	return &List{
		Request: request,
		byID:    make(map[string]*Item),
	}
}

// Add appends an item, preserving insertion order.
func (l *List) Add(item *Item) error {
	if item == nil || item.ID == "" {
		return fmt.Errorf("%w: empty id", ErrItemNotFound)
	}
	if _, ok := l.byID[item.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateItem, item.ID)
	}
	if item.MaxAttempts <= 0 {
		item.MaxAttempts = DefaultMaxAttempts
	}
	if item.Priority == "" {
		item.Priority = PriorityNormal
	}
	if item.Status == "" {
		item.Status = StatusPending
	}
	l.order = append(l.order, item.ID)
	l.byID[item.ID] = item
	return nil
}

// Get returns the item with the given ID.
func (l *List) Get(id string) (*Item, bool) {
	item, ok := l.byID[id]
	return item, ok
}

// Items returns all items in insertion order.
func (l *List) Items() []*Item {
	items := make([]*Item, 0, len(l.order))
	for _, id := range l.order {
		items = append(items, l.byID[id])
	}
	return items
}

// Len returns the number of items.
func (l *List) Len() int { return len(l.order) }

// Remove deletes an item. It fails while any other item still lists the
// removed item as a dependency; teardown of the whole list is the only
// unconditional destructor.
func (l *List) Remove(id string) error {
	if _, ok := l.byID[id]; !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	for _, other := range l.byID {
		if other.ID == id {
			continue
		}
		for _, dep := range other.Dependencies {
			if dep == id {
				return fmt.Errorf("cannot remove %s: still referenced by %s", id, other.ID)
			}
		}
	}
	delete(l.byID, id)
	for i, oid := range l.order {
		if oid == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return nil
}

// Children returns the direct children of parentID present in the list,
// in insertion order. Used to substitute a replanned dependency by its
// decomposition.
func (l *List) Children(parentID string) []*Item {
	ids := ChildrenOf(parentID, l.order)
	items := make([]*Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, l.byID[id])
	}
	return items
}

// NextChildID returns the first unused child ID under parentID,
// e.g. "3" -> "3.1" then "3.2".
func (l *List) NextChildID(parentID string) (string, error) {
	parent, err := ParseID(parentID)
	if err != nil {
		return "", err
	}
	for n := 1; ; n++ {
		candidate := parent.Child(n).String()
		if _, ok := l.byID[candidate]; !ok {
			return candidate, nil
		}
	}
}

// CountByStatus tallies items per status.
func (l *List) CountByStatus() map[Status]int {
	counts := make(map[Status]int)
	for _, id := range l.order {
		counts[l.byID[id].Status]++
	}
	return counts
}
