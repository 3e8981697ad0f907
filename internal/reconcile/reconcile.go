// Package reconcile keeps a locally held, duplicate-free collection of records
// consistent with full snapshots and single-record change events.
//
// A Collection has exactly one writer. It performs no I/O and holds no locks;
// callers that touch it from several goroutines must serialise access (see
// package live).
package reconcile

import (
	"errors"
	"fmt"
)

// Record is anything with a stable identifier and a mutable status.
type Record interface {
	RecordID() string
	RecordStatus() string
}

// Ordering decides where records that enter through ApplyUpdate are placed.
type Ordering int

const (
	// NewestFirst prepends newly seen records.
	NewestFirst Ordering = iota
	// FetchOrder appends newly seen records.
	FetchOrder
)

func (o Ordering) String() string {
	switch o {
	case NewestFirst:
		return "newest-first"
	case FetchOrder:
		return "fetch-order"
	default:
		return fmt.Sprintf("ordering(%d)", int(o))
	}
}

// Outcome reports what ApplyUpdate did to the collection.
type Outcome int

const (
	Ignored Outcome = iota
	Removed
	Inserted
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case Removed:
		return "removed"
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ErrInvalidRecord is matched by every *InvalidRecordError.
var ErrInvalidRecord = errors.New("invalid record")

// InvalidRecordError is returned by ApplyUpdate for a record without an id.
type InvalidRecordError struct {
	Status string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid record: missing id (status=%q)", e.Status)
}

func (e *InvalidRecordError) Unwrap() error { return ErrInvalidRecord }

// Collection is an ordered sequence of records, unique by id.
type Collection[T Record] struct {
	ordering  Ordering
	partition Partition[T]
	records   []T
	index     map[string]int
}

// New creates an empty collection. A nil partition includes every record.
func New[T Record](ordering Ordering, partition Partition[T]) *Collection[T] {
	if partition == nil {
		partition = IncludeAll[T]()
	}
	return &Collection[T]{
		ordering:  ordering,
		partition: partition,
		index:     make(map[string]int),
	}
}

// Ordering returns the rule the collection was built with.
func (c *Collection[T]) Ordering() Ordering { return c.ordering }

// ReplaceAll discards the current contents and installs the snapshot.
// Records the partition does not include are dropped. For duplicate ids the
// last occurrence wins, at the position of that occurrence. Snapshot order is
// otherwise preserved for both ordering rules.
func (c *Collection[T]) ReplaceAll(records []T) {
	seen := make(map[string]struct{}, len(records))
	kept := make([]T, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		id := r.RecordID()
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if c.partition(r) != Include {
			continue
		}
		kept = append(kept, r)
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	c.records = kept
	c.index = make(map[string]int, len(kept))
	c.reindex(0)
}

// ApplyUpdate folds one changed record into the collection.
func (c *Collection[T]) ApplyUpdate(r T) (Outcome, error) {
	id := r.RecordID()
	if id == "" {
		return Ignored, &InvalidRecordError{Status: r.RecordStatus()}
	}
	switch c.partition(r) {
	case Exclude:
		return Ignored, nil
	case TerminalRemove:
		c.remove(id)
		return Removed, nil
	}
	if pos, ok := c.index[id]; ok {
		c.records[pos] = r
		return Updated, nil
	}
	if c.ordering == NewestFirst {
		c.records = append(c.records, r)
		copy(c.records[1:], c.records[:len(c.records)-1])
		c.records[0] = r
		c.reindex(0)
	} else {
		c.records = append(c.records, r)
		c.index[id] = len(c.records) - 1
	}
	return Inserted, nil
}

// ApplyFilter returns the records matching pred, in collection order.
// The result is a fresh slice; the collection is not modified.
func (c *Collection[T]) ApplyFilter(pred func(T) bool) []T {
	out := make([]T, 0, len(c.records))
	for _, r := range c.records {
		if pred == nil || pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// Records returns a copy of the collection.
func (c *Collection[T]) Records() []T { return c.ApplyFilter(nil) }

// Get returns the record stored under id.
func (c *Collection[T]) Get(id string) (T, bool) {
	pos, ok := c.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.records[pos], true
}

// Len returns the number of records held.
func (c *Collection[T]) Len() int { return len(c.records) }

func (c *Collection[T]) remove(id string) {
	pos, ok := c.index[id]
	if !ok {
		return
	}
	delete(c.index, id)
	c.records = append(c.records[:pos], c.records[pos+1:]...)
	c.reindex(pos)
}

func (c *Collection[T]) reindex(from int) {
	for i := from; i < len(c.records); i++ {
		c.index[c.records[i].RecordID()] = i
	}
}
