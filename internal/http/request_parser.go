package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"ledger/internal/core"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// RequestBodyParser reads a JSON request body once and exposes it as
// column-keyed row values.
type RequestBodyParser struct {
	body   []byte
	object map[string]any
	rows   []map[string]any
	parsed bool
	err    error
}

func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = fmt.Errorf("%w: body exceeds %d bytes", errBadRequest, maxBodyBytes)
	}
	return p
}

// Parse accepts either a single object ({"Client": "Acme", ...}) or a
// {"rows": [...]} envelope.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		return p.err
	}
	if len(p.body) == 0 {
		p.err = fmt.Errorf("%w: empty body", errBadRequest)
		return p.err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(p.body, &raw); err != nil {
		p.err = fmt.Errorf("%w: %v", errBadRequest, err)
		return p.err
	}
	if rows, ok := raw["rows"]; ok && len(raw) == 1 {
		if err := json.Unmarshal(rows, &p.rows); err != nil {
			p.err = fmt.Errorf("%w: rows: %v", errBadRequest, err)
			return p.err
		}
		if p.rows == nil {
			p.rows = []map[string]any{}
		}
		return nil
	}
	if err := json.Unmarshal(p.body, &p.object); err != nil {
		p.err = fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return p.err
}

// Row builds the canonical row of t from the single-object body.
func (p *RequestBodyParser) Row(t core.TableName) (core.Row, error) {
	if err := p.Parse(); err != nil {
		return nil, err
	}
	if p.object == nil {
		return nil, fmt.Errorf("%w: expected a row object", errBadRequest)
	}
	return rowFrom(t, p.object), nil
}

// Rows builds every row of the {"rows": [...]} envelope.
func (p *RequestBodyParser) Rows(t core.TableName) ([]core.Row, error) {
	if err := p.Parse(); err != nil {
		return nil, err
	}
	if p.rows == nil {
		return nil, fmt.Errorf("%w: expected {\"rows\": [...]}", errBadRequest)
	}
	out := make([]core.Row, len(p.rows))
	for i, obj := range p.rows {
		out[i] = rowFrom(t, obj)
	}
	return out, nil
}

func rowFrom(t core.TableName, obj map[string]any) core.Row {
	values := make(map[string]string, len(obj))
	for k, v := range obj {
		values[k] = sanitizeInput(stringValue(v))
	}
	return core.RowFromMap(t, values)
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
