package llmjson

import (
	"encoding/json"
	"strconv"
	"strings"
)

// String tolerates model output that swaps strings and numbers, e.g. a table
// number emitted as 3 instead of "3". null decodes to "".
type String string

func (s *String) UnmarshalJSON(b []byte) error {
	t := strings.TrimSpace(string(b))
	if t == "null" {
		*s = ""
		return nil
	}
	if len(t) > 0 && t[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = String(str)
		return nil
	}
	*s = String(t)
	return nil
}

// Float is a nullable float that tolerates quoted numbers and treats
// unparseable values ("NR", "n.s.") as absent rather than failing the whole
// payload.
type Float struct {
	Val   float64
	Valid bool
}

func (f *Float) UnmarshalJSON(b []byte) error {
	t := strings.TrimSpace(string(b))
	if t == "null" || t == `""` {
		return nil
	}
	if len(t) > 0 && t[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return nil
		}
		t = strings.TrimSpace(strings.ReplaceAll(str, ",", ""))
		if t == "" {
			return nil
		}
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return nil
	}
	f.Val = v
	f.Valid = true
	return nil
}

// Ptr converts to the pointer representation used by the domain records.
func (f Float) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Val
	return &v
}

// Int is the integer counterpart of Float. Thousands separators in quoted
// values are stripped.
type Int struct {
	Val   int
	Valid bool
}

func (i *Int) UnmarshalJSON(b []byte) error {
	var f Float
	if err := f.UnmarshalJSON(b); err != nil || !f.Valid {
		return nil
	}
	i.Val = int(f.Val)
	i.Valid = true
	return nil
}

// Ptr converts to the pointer representation used by the domain records.
func (i Int) Ptr() *int {
	if !i.Valid {
		return nil
	}
	v := i.Val
	return &v
}
