// Package models defines the shared entity types for the Tez relay: teams,
// conversations, contacts, Tez messages and their context layers, peers, and
// audit entries. Types carry JSON tags for API serialization and match the
// PostgreSQL schema in internal/database/migrations exactly.
package models

import (
	"crypto/rand"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// entropy is a thread-safe monotonic entropy source for ULID generation.
var entropy = &lockedMonotonicReader{r: ulid.Monotonic(rand.Reader, 0)}

type lockedMonotonicReader struct {
	mu sync.Mutex
	r  io.Reader
}

func (lr *lockedMonotonicReader) Read(p []byte) (int, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.r.Read(p)
}

// ID is a wrapper around oklog/ulid.ULID used for every entity identifier in
// the relay (Team, Tez, Peer, AuditEntry, ...). It marshals as a plain JSON
// string and scans from PostgreSQL TEXT columns.
type ID struct {
	ulid.ULID
}

// NewID generates a new ID using the current time and thread-safe monotonic
// entropy. Safe for concurrent use.
func NewID() ID {
	return ID{ulid.MustNew(ulid.Timestamp(time.Now()), entropy)}
}

// ParseID parses an ID from its canonical string representation.
func ParseID(s string) (ID, error) {
	u, err := ulid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("parsing id %q: %w", s, err)
	}
	return ID{u}, nil
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id.ULID.Compare(ulid.ULID{}) == 0
}

// String returns the canonical string representation of id.
func (id ID) String() string {
	return id.ULID.String()
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unmarshaling id: %w", err)
	}
	if s == "" {
		*id = ID{}
		return nil
	}
	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Scan implements sql.Scanner for reading IDs from TEXT columns.
func (id *ID) Scan(src interface{}) error {
	if src == nil {
		*id = ID{}
		return nil
	}
	switch v := src.(type) {
	case string:
		parsed, err := ParseID(v)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	case []byte:
		parsed, err := ParseID(string(v))
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	default:
		return fmt.Errorf("unsupported id scan source type: %T", src)
	}
}

// Value implements driver.Valuer for writing IDs to TEXT columns.
func (id ID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}
	return id.String(), nil
}
