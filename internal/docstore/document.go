package docstore

import (
	"time"
)

// wireTimeLayout is the fixed fractional-seconds UTC format documents carry
// on the wire. Three fractional digits, always Z.
const wireTimeLayout = "2006-01-02T15:04:05.000Z"

// Time is a wall-clock timestamp with millisecond wire precision. The zero
// value is omitted on encode and tolerated as absent on decode.
type Time struct {
	time.Time
}

// Now returns the current time truncated to wire precision, so a value
// survives an encode/decode round trip unchanged.
func Now() Time {
	return Time{time.Now().UTC().Truncate(time.Millisecond)}
}

func (t Time) MarshalJSON() ([]byte, error) {
	b := make([]byte, 0, len(wireTimeLayout)+2)
	b = append(b, '"')
	b = t.UTC().AppendFormat(b, wireTimeLayout)
	b = append(b, '"')
	return b, nil
}

func (t *Time) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	parsed, err := time.Parse(`"`+wireTimeLayout+`"`, string(data))
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// NextUpdatedAt returns the timestamp for a mutation that follows one stamped
// at previous. Normally that is the current wall clock; when the local clock
// runs behind previous (drift against the host that produced it) the result
// is previous plus one unit instead, so the sequence never regresses.
func NextUpdatedAt(previous Time) Time {
	now := Now()
	if previous.After(now.Time) {
		return Time{previous.Add(time.Millisecond)}
	}
	return now
}

// Meta is the persistence metadata every stored document embeds. The key and
// CAS token never travel inside the payload: the key is re-attached from the
// caller's argument after a read, the token comes from the backend.
type Meta struct {
	Key       string `json:"-"`
	Type      string `json:"doc_type,omitzero"`
	CreatedAt Time   `json:"created_at,omitzero"`
	UpdatedAt Time   `json:"updated_at,omitzero"`
	Version   int64  `json:"version,omitzero"`
	CAS       uint64 `json:"-"`
}

// DocumentMeta implements Document for any type embedding Meta.
func (m *Meta) DocumentMeta() *Meta { return m }

// Document is the capability set the repository requires of a stored type:
// embed Meta (key, timestamps, version, token) and declare a fixed type tag.
type Document interface {
	DocumentMeta() *Meta
	DocumentType() string
}
