package mongojson

import (
	"encoding/base64"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// orderedDoc is a document whose keys keep their stored order
type orderedDoc []field

type field struct {
	key   string
	value any
}

// binarySubtypeUUID is the BSON binary subtype of RFC 4122 UUIDs
const binarySubtypeUUID = 0x04

var timeType = reflect.TypeOf(time.Time{})

// convert turns a value read from MongoDB into a tree of JSON-friendly values:
// nil, bool, string, integers, float64, []any, map[string]any and orderedDoc.
func convert(v any) (any, error) {
	switch x := v.(type) {
	case nil, bson.Null, bson.Undefined:
		return nil, nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return x, nil
	case float32:
		return convertFloat(float64(x)), nil
	case float64:
		return convertFloat(x), nil
	case bson.ObjectID:
		return x.Hex(), nil
	case bson.DateTime:
		return formatTime(x.Time()), nil
	case time.Time:
		return formatTime(x), nil
	case bson.Decimal128:
		return x.String(), nil
	case bson.Binary:
		return convertBinary(x), nil
	case []byte:
		return base64.StdEncoding.EncodeToString(x), nil
	case bson.Regex:
		return "/" + x.Pattern + "/" + x.Options, nil
	case bson.Timestamp:
		return orderedDoc{{"t", x.T}, {"i", x.I}}, nil
	case bson.JavaScript:
		return string(x), nil
	case bson.Symbol:
		return string(x), nil
	case bson.CodeWithScope:
		scope, err := convert(x.Scope)
		if err != nil {
			return nil, err
		}
		return orderedDoc{{"code", string(x.Code)}, {"scope", scope}}, nil
	case bson.DBPointer:
		return orderedDoc{{"$ref", x.DB}, {"$id", x.Pointer.Hex()}}, nil
	case bson.MinKey:
		return orderedDoc{{"$minKey", 1}}, nil
	case bson.MaxKey:
		return orderedDoc{{"$maxKey", 1}}, nil
	case bson.D:
		return convertD(x)
	case bson.E:
		return convertD(bson.D{x})
	case bson.M:
		return convertMap(x)
	case map[string]any:
		return convertMap(x)
	case bson.A:
		return convertSlice(x)
	case []any:
		return convertSlice(x)
	case bson.Raw:
		return convertRaw(x)
	case bson.RawValue:
		var decoded any
		if err := x.Unmarshal(&decoded); err != nil {
			return nil, fmt.Errorf("decode %s value: %w", x.Type, err)
		}
		return convert(decoded)
	}
	return convertReflect(reflect.ValueOf(v))
}

func convertFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func convertBinary(b bson.Binary) string {
	if b.Subtype == binarySubtypeUUID && len(b.Data) == 16 {
		if id, err := uuid.FromBytes(b.Data); err == nil {
			return id.String()
		}
	}
	return base64.StdEncoding.EncodeToString(b.Data)
}

func convertD(d bson.D) (orderedDoc, error) {
	doc := make(orderedDoc, 0, len(d))
	for _, e := range d {
		v, err := convert(e.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", e.Key, err)
		}
		doc = append(doc, field{e.Key, v})
	}
	return doc, nil
}

func convertMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		c, err := convert(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = c
	}
	return out, nil
}

func convertSlice(s []any) ([]any, error) {
	out := make([]any, len(s))
	for i, v := range s {
		c, err := convert(v)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

func convertRaw(raw bson.Raw) (orderedDoc, error) {
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return convertD(d)
}

func convertReflect(rv reflect.Value) (any, error) {
	switch rv.Kind() {
	case reflect.Invalid:
		return nil, nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return convert(rv.Elem().Interface())
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return convertFloat(rv.Float()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			c, err := convert(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		if rv.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			c, err := convert(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			out[k] = c
		}
		return out, nil
	case reflect.Struct:
		if rv.Type().ConvertibleTo(timeType) {
			return formatTime(rv.Convert(timeType).Interface().(time.Time)), nil
		}
		raw, err := bson.Marshal(rv.Interface())
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", rv.Type(), err)
		}
		return convertRaw(raw)
	}
	return nil, fmt.Errorf("unsupported type %s", rv.Type())
}

// plain replaces ordered documents in a converted tree with maps
func plain(v any) any {
	switch x := v.(type) {
	case orderedDoc:
		m := make(map[string]any, len(x))
		for _, f := range x {
			m[f.key] = plain(f.value)
		}
		return m
	case map[string]any:
		for k, e := range x {
			x[k] = plain(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = plain(e)
		}
		return x
	}
	return v
}
