package reconcile

import (
	"fmt"
	"strings"
)

// Policy classifies a record for one view.
type Policy int

const (
	// Include keeps the record in the view.
	Include Policy = iota
	// Exclude never admits the record; an existing copy is left alone.
	Exclude
	// TerminalRemove evicts the record from the view.
	TerminalRemove
)

func (p Policy) String() string {
	switch p {
	case Include:
		return "include"
	case Exclude:
		return "exclude"
	case TerminalRemove:
		return "terminal-remove"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Partition maps a record to the policy of the view that owns the collection.
type Partition[T Record] func(T) Policy

// IncludeAll admits every record.
func IncludeAll[T Record]() Partition[T] {
	return func(T) Policy { return Include }
}

// ByStatus builds a partition from a status table. Lookups ignore case and
// surrounding whitespace; statuses missing from the table get def.
func ByStatus[T Record](table map[string]Policy, def Policy) Partition[T] {
	norm := make(map[string]Policy, len(table))
	for status, p := range table {
		norm[normalize(status)] = p
	}
	return func(r T) Policy {
		if p, ok := norm[normalize(r.RecordStatus())]; ok {
			return p
		}
		return def
	}
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
