package sink

import (
	"errors"
	"fmt"
	"os"
)

// ErrOutOfOrder is returned when a record does not advance past the last
// ID written to its table
var ErrOutOfOrder = errors.New("record id does not advance")

// Sink persists resolved records. Writes are ordered by ID and become
// durable on Flush.
type Sink interface {
	AppendOwner(id int64, owner string) error
	AppendValidLink(id int64, url string) error
	Flush() error
	Close() error
}

// Mode tells whether prior output is continued or replaced
type Mode int

const (
	ModeFresh Mode = iota
	ModeAppend
)

func (m Mode) String() string {
	if m == ModeAppend {
		return "append"
	}
	return "fresh"
}

// ModeFor returns ModeAppend only when a run is resuming and output already
// exists at path
func ModeFor(resuming bool, path string) Mode {
	if !resuming {
		return ModeFresh
	}
	if _, err := os.Stat(path); err != nil {
		return ModeFresh
	}
	return ModeAppend
}

// cursor enforces strictly increasing IDs within one table
type cursor struct {
	table string
	last  int64
	set   bool
}

func (c *cursor) check(id int64) error {
	if c.set && id <= c.last {
		return fmt.Errorf("%s: id %d after %d: %w", c.table, id, c.last, ErrOutOfOrder)
	}
	return nil
}

// accept records id as written; call it only once the write succeeded
func (c *cursor) accept(id int64) {
	c.last, c.set = id, true
}
