package swap

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ID is the 128-bit opaque swap identifier generated by the initiator
// and carried in every message and persisted record.
type ID uuid.UUID

// NewID generates a fresh, randomly-sourced swap id.
func NewID() ID {
	return ID(uuid.New())
}

// ParseID parses the canonical string form of a swap id.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("swap: invalid id %q: %w", s, err)
	}
	return ID(u), nil
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Value implements driver.Valuer so an ID can be written to a SQLite
// BLOB column directly.
func (id ID) Value() (driver.Value, error) {
	return uuid.UUID(id).MarshalBinary()
}

// Scan implements sql.Scanner for the reverse direction.
func (id *ID) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		u, err := uuid.FromBytes(v)
		if err != nil {
			return err
		}
		*id = ID(u)
		return nil
	case string:
		return id.Scan([]byte(v))
	default:
		return fmt.Errorf("swap: cannot scan %T into ID", src)
	}
}
