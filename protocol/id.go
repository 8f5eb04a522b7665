package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a JSON-RPC request id: a string or an integer, never a float, never
// silently coerced between the two on round-trip. The zero value (IsZero
// true) represents an absent id, used for notifications and for error
// responses to unparseable requests.
type ID struct {
	str    string
	num    int64
	isStr  bool
	isSet  bool
}

// NewStringID builds a string-valued id.
func NewStringID(s string) ID { return ID{str: s, isStr: true, isSet: true} }

// NewIntID builds an integer-valued id.
func NewIntID(n int64) ID { return ID{num: n, isSet: true} }

// IsZero reports whether the id is absent (no id was present on the wire).
func (id ID) IsZero() bool { return !id.isSet }

// IsString reports whether the id is a string (vs. an integer).
func (id ID) IsString() bool { return id.isSet && id.isStr }

// String renders the id for logging and for use as a correlator map key.
func (id ID) String() string {
	if !id.isSet {
		return "<none>"
	}
	if id.isStr {
		return id.str
	}
	return strconv.FormatInt(id.num, 10)
}

// Equal reports whether two ids have the same type and value.
func (id ID) Equal(other ID) bool {
	return id.isSet == other.isSet && id.isStr == other.isStr && id.str == other.str && id.num == other.num
}

func (id ID) MarshalJSON() ([]byte, error) {
	if !id.isSet {
		return []byte("null"), nil
	}
	if id.isStr {
		return json.Marshal(id.str)
	}
	return json.Marshal(id.num)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ID{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID{str: s, isStr: true, isSet: true}
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = ID{num: n, isSet: true}
		return nil
	}
	return fmt.Errorf("protocol: request id must be a string or integer, got %s", data)
}
