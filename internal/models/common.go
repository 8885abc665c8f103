package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// APIError is the body the service sends with a 4xx/5xx response.
type APIError struct {
	Message string `json:"message"`
}

// DocID identifies a document. The service echoes back whatever id was
// pushed, so it accepts both JSON strings and numbers.
type DocID string

func (id *DocID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = DocID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("document id must be a string or number, got %s", data)
	}
	*id = DocID(n.String())
	return nil
}

// MarshalJSON writes ids in canonical integer form as JSON numbers, matching
// the enumerated ids the service assigns, and everything else as a string.
func (id DocID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseUint(string(id), 10, 64); err == nil && strconv.FormatUint(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// IndexID returns the id used for the i-th document of an enumerated batch.
func IndexID(i int) DocID {
	return DocID(strconv.Itoa(i))
}
