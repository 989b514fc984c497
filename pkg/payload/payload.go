package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNoResultSets is returned when a body carries neither resultSets nor resultSet.
	ErrNoResultSets = errors.New("response has no result sets")

	// ErrNoRows is returned when every result set is empty.
	ErrNoRows = errors.New("response has no rows")
)

// ResultSet is one table in a response.
type ResultSet struct {
	Name    string   `json:"name"`
	Headers []string `json:"headers"`
	RowSet  [][]any  `json:"rowSet"`
}

// Payload is the parsed tabular response handed to downstream code.
type Payload struct {
	Resource   string          `json:"resource,omitempty"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	ResultSets []ResultSet     `json:"resultSets"`
}

// MalformedError describes a body whose shape does not match the expected
// header/row structure. Body is the raw response for diagnosis.
type MalformedError struct {
	Reason string
	Body   []byte
}

func (e *MalformedError) Error() string {
	return "malformed response: " + e.Reason
}

type rawResponse struct {
	Resource   string          `json:"resource"`
	Parameters json.RawMessage `json:"parameters"`
	ResultSets json.RawMessage `json:"resultSets"`
	ResultSet  json.RawMessage `json:"resultSet"`
}

type rawResultSet struct {
	Name    string            `json:"name"`
	Headers json.RawMessage   `json:"headers"`
	RowSet  []json.RawMessage `json:"rowSet"`
}

// Parse decodes and validates a response body. It returns a *MalformedError
// for an unexpected shape and ErrNoRows when no result set has any rows.
func Parse(body []byte) (*Payload, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &MalformedError{Reason: "empty body", Body: body}
	}

	var raw rawResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &MalformedError{Reason: fmt.Sprintf("invalid json: %v", err), Body: body}
	}

	sets, err := decodeResultSets(raw)
	if err != nil {
		return nil, &MalformedError{Reason: err.Error(), Body: body}
	}

	p := &Payload{
		Resource:   raw.Resource,
		Parameters: raw.Parameters,
		ResultSets: make([]ResultSet, 0, len(sets)),
	}
	for i, set := range sets {
		rs, err := decodeResultSet(set)
		if err != nil {
			return nil, &MalformedError{Reason: fmt.Sprintf("result set %d: %v", i, err), Body: body}
		}
		p.ResultSets = append(p.ResultSets, rs)
	}

	if p.RowCount() == 0 {
		return p, ErrNoRows
	}
	return p, nil
}

// decodeResultSets accepts the array form under resultSets and either the
// object or array form under resultSet.
func decodeResultSets(raw rawResponse) ([]rawResultSet, error) {
	source := raw.ResultSets
	if isNull(source) {
		source = raw.ResultSet
	}
	if isNull(source) {
		return nil, ErrNoResultSets
	}

	trimmed := bytes.TrimSpace(source)
	switch trimmed[0] {
	case '[':
		var sets []rawResultSet
		if err := json.Unmarshal(trimmed, &sets); err != nil {
			return nil, fmt.Errorf("invalid result sets: %w", err)
		}
		if len(sets) == 0 {
			return nil, ErrNoResultSets
		}
		return sets, nil
	case '{':
		var set rawResultSet
		if err := json.Unmarshal(trimmed, &set); err != nil {
			return nil, fmt.Errorf("invalid result set: %w", err)
		}
		return []rawResultSet{set}, nil
	default:
		return nil, errors.New("result sets must be an array or object")
	}
}

func decodeResultSet(set rawResultSet) (ResultSet, error) {
	if isNull(set.Headers) {
		return ResultSet{}, errors.New("missing headers")
	}

	var headers []string
	if err := json.Unmarshal(set.Headers, &headers); err != nil {
		return ResultSet{}, fmt.Errorf("headers must be a list of strings: %w", err)
	}

	rs := ResultSet{
		Name:    set.Name,
		Headers: headers,
		RowSet:  make([][]any, 0, len(set.RowSet)),
	}
	for i, rawRow := range set.RowSet {
		var row []any
		decoder := json.NewDecoder(bytes.NewReader(rawRow))
		decoder.UseNumber()
		if err := decoder.Decode(&row); err != nil {
			return ResultSet{}, fmt.Errorf("row %d is not a list: %w", i, err)
		}
		if len(row) != len(headers) {
			return ResultSet{}, fmt.Errorf("row %d has %d values for %d headers", i, len(row), len(headers))
		}
		rs.RowSet = append(rs.RowSet, row)
	}
	return rs, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// RowCount returns the number of rows across all result sets
func (p *Payload) RowCount() int {
	total := 0
	for _, rs := range p.ResultSets {
		total += len(rs.RowSet)
	}
	return total
}

// Set returns the result set with the given name
func (p *Payload) Set(name string) (ResultSet, bool) {
	for _, rs := range p.ResultSets {
		if rs.Name == name {
			return rs, true
		}
	}
	return ResultSet{}, false
}

// Primary returns the first result set, which holds the main table for
// every dashboard endpoint.
func (p *Payload) Primary() (ResultSet, bool) {
	if len(p.ResultSets) == 0 {
		return ResultSet{}, false
	}
	return p.ResultSets[0], true
}

// Column returns the index of a header, or -1
func (rs ResultSet) Column(header string) int {
	for i, h := range rs.Headers {
		if h == header {
			return i
		}
	}
	return -1
}

// Records returns each row as a map keyed by header
func (rs ResultSet) Records() []map[string]any {
	records := make([]map[string]any, 0, len(rs.RowSet))
	for _, row := range rs.RowSet {
		record := make(map[string]any, len(rs.Headers))
		for i, h := range rs.Headers {
			if i < len(row) {
				record[h] = row[i]
			}
		}
		records = append(records, record)
	}
	return records
}
