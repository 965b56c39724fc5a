package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is a fixed-width RFC 3339 layout. Backends that persist times as text
// use it so lexical and chronological order agree.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Lookup resolves a dotted path against nested documents
func (d Document) Lookup(path string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(d)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// ID returns the string identity of the document
func (d Document) ID() string {
	if id, ok := d[IDField].(string); ok {
		return id
	}
	return ""
}

// WithoutID returns a shallow copy of the document minus its identity
func (d Document) WithoutID() Document {
	out := make(Document, len(d))
	for k, v := range d {
		if k == IDField {
			continue
		}
		out[k] = v
	}
	return out
}

// Clone deep-copies maps and slices so callers never share state with a store
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies nested documents and arrays
func CloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Document:
		return Document(cloneMap(t))
	case map[string]interface{}:
		return cloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case Document:
		return t, true
	case map[string]interface{}:
		return t, true
	default:
		return nil, false
	}
}

// AsMap exposes nested-document detection to backends
func AsMap(v interface{}) (map[string]interface{}, bool) {
	return asMap(v)
}

// EncodeTimes returns a copy of v with every time.Time rendered with TimeLayout in UTC
func EncodeTimes(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(TimeLayout)
	case Document:
		return encodeTimesMap(t)
	case map[string]interface{}:
		return encodeTimesMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = EncodeTimes(e)
		}
		return out
	default:
		return v
	}
}

func encodeTimesMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = EncodeTimes(v)
	}
	return out
}

// DecodeTime accepts the representations backends hand back for a stored time
func DecodeTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", t, err)
		}
		return parsed.UTC(), nil
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

// ReadAll drains and closes the cursor
func ReadAll(ctx context.Context, cur Cursor) ([]Document, error) {
	defer cur.Close(ctx)

	var docs []Document
	for cur.Next(ctx) {
		docs = append(docs, cur.Document())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// SliceCursor serves documents already held in memory
type SliceCursor struct {
	docs []Document
	pos  int
	cur  Document
	err  error
}

// NewSliceCursor wraps docs in a Cursor
func NewSliceCursor(docs []Document) *SliceCursor {
	return &SliceCursor{docs: docs}
}

func (c *SliceCursor) Next(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.pos >= len(c.docs) {
		return false
	}
	c.cur = c.docs[c.pos]
	c.pos++
	return true
}

func (c *SliceCursor) Document() Document { return c.cur }

func (c *SliceCursor) Err() error { return c.err }

func (c *SliceCursor) Close(ctx context.Context) error {
	c.docs = nil
	return nil
}
