package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const msgMissingIDs = "Missing or invalid user_ids array"

var errMissingIDs = errors.New("missing or invalid user_ids")

// flexID accepts a JSON number or a numeric string.
type flexID int64

func (f *flexID) UnmarshalJSON(b []byte) error {
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexID(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("user id must be a number")
	}
	id, err := parseID(s)
	if err != nil {
		return err
	}
	*f = flexID(id)
	return nil
}

func parseID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

// userIDsFromJSON accepts an array of numbers or numeric strings, or a single delimited string.
func userIDsFromJSON(raw json.RawMessage) ([]int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errMissingIDs
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]int64, 0, len(list))
		for _, item := range list {
			var id flexID
			if err := id.UnmarshalJSON(item); err != nil {
				return nil, err
			}
			if id <= 0 {
				return nil, fmt.Errorf("invalid user id %s", item)
			}
			out = append(out, int64(id))
		}
		if len(out) == 0 {
			return nil, errMissingIDs
		}
		return out, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errMissingIDs
	}
	return userIDsFromStrings([]string{s})
}

// userIDsFromStrings parses form values. Each value may hold several ids
// separated by commas, semicolons or whitespace.
func userIDsFromStrings(values []string) ([]int64, error) {
	out := make([]int64, 0, len(values))
	for _, v := range values {
		fields := strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
		})
		for _, f := range fields {
			id, err := parseID(f)
			if err != nil {
				return nil, err
			}
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, errMissingIDs
	}
	return out, nil
}
