package resolver

import (
	"fmt"
	"time"
)

// OwnerKind tells how an owner was identified
type OwnerKind int

const (
	KindNone OwnerKind = iota
	KindUsername
	KindDisplayName
)

// OwnerInfo is an owner as found by the structured path
type OwnerInfo struct {
	Kind  OwnerKind
	Value string
}

// Display renders the owner for output; usernames get an @ prefix
func (o OwnerInfo) Display() string {
	if o.Kind == KindUsername {
		return "@" + o.Value
	}
	return o.Value
}

// Status is the outcome of resolving one ID
type Status int

const (
	StatusNotFound Status = iota
	StatusResolved
	StatusTransientError
	StatusRateLimited
)

func (s Status) String() string {
	switch s {
	case StatusResolved:
		return "resolved"
	case StatusNotFound:
		return "not_found"
	case StatusTransientError:
		return "transient_error"
	case StatusRateLimited:
		return "rate_limited"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Source names the strategy that produced an owner
type Source string

const (
	SourceNone       Source = ""
	SourceStructured Source = "structured"
	SourcePage       Source = "page"
)

// Result is the resolution of one gift ID
type Result struct {
	ID     int64
	Status Status
	// Owner is the display form; empty unless Status is StatusResolved
	Owner string
	Kind  OwnerKind
	// SourceURL is the canonical page URL, set whenever an owner was found
	SourceURL string
	Source    Source
	// RetryAfter is the provider-imposed wait for StatusRateLimited
	RetryAfter time.Duration
	Err        error
}

// Resolved reports whether the result carries an owner
func (r Result) Resolved() bool {
	return r.Status == StatusResolved && r.Owner != ""
}

// HasLink reports whether the result produces a valid-link record
func (r Result) HasLink() bool {
	return r.Resolved() && r.SourceURL != ""
}
