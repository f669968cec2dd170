// Package mongojson renders MongoDB documents as plain JSON.
//
// BSON-specific values are mapped onto JSON natives: ObjectIDs become hex
// strings, dates become RFC 3339 strings, binaries become base64 (or a UUID
// string for UUID subtypes) and non-finite floats become null. Documents
// stored as bson.D keep their field order.
package mongojson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Encoder writes MongoDB values as JSON
type Encoder struct {
	// Indent is repeated once per nesting level. Empty means compact output.
	Indent     string
	EscapeHTML bool
}

// Marshal returns the JSON encoding of v
func (e Encoder) Marshal(v any) ([]byte, error) {
	tree, err := convert(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := e.write(&buf, tree); err != nil {
		return nil, err
	}
	if e.Indent == "" {
		return buf.Bytes(), nil
	}

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", e.Indent); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Encode writes the JSON encoding of v followed by a newline to w
func (e Encoder) Encode(w io.Writer, v any) error {
	b, err := e.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

func (e Encoder) write(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case orderedDoc:
		buf.WriteByte('{')
		for i, f := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.scalar(buf, f.key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := e.write(buf, f.value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.scalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := e.write(buf, x[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, elem := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.write(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return e.scalar(buf, x)
	}
	return nil
}

func (e Encoder) scalar(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(e.EscapeHTML)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// json.Encoder terminates every value with a newline
	buf.Truncate(buf.Len() - 1)
	return nil
}

// Serialize returns v as two-space indented JSON
func Serialize(v any) (string, error) {
	b, err := Encoder{Indent: "  "}.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CleanDocument converts a MongoDB document into a map holding only JSON-native
// values, ready to be embedded in other structures passed to encoding/json.
func CleanDocument(doc any) (map[string]any, error) {
	if !isDocument(doc) {
		return nil, fmt.Errorf("mongojson: %T is not a document", doc)
	}
	tree, err := convert(doc)
	if err != nil {
		return nil, err
	}
	m, ok := plain(tree).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("mongojson: %T is not a document", doc)
	}
	return m, nil
}

func isDocument(v any) bool {
	switch v.(type) {
	case bson.D, bson.M, bson.Raw, map[string]any:
		return true
	case nil:
		return false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		return true
	case reflect.Map:
		return rv.Type().Key().Kind() == reflect.String
	}
	return false
}
