package mongodb

import (
	"sort"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// maxSchemaDepth bounds how deep embedded documents are walked
const maxSchemaDepth = 8

// Field is one inferred field of a collection
type Field struct {
	// Path is the dotted path of the field
	Path string `json:"path"`
	// Types are the BSON type names seen for the field
	Types []string `json:"types"`
	// Count is the number of sampled documents holding the field
	Count int `json:"count"`
}

// Schema is the result of SampleSchema
type Schema struct {
	SampleSize int     `json:"sample_size"`
	Fields     []Field `json:"fields"`
}

type schemaBuilder struct {
	docs   int
	fields map[string]*fieldStats
}

type fieldStats struct {
	types map[string]struct{}
	count int
}

func newSchemaBuilder() *schemaBuilder {
	return &schemaBuilder{fields: make(map[string]*fieldStats)}
}

func (b *schemaBuilder) add(doc bson.Raw) error {
	b.docs++
	return b.walk("", doc, 0)
}

func (b *schemaBuilder) walk(prefix string, doc bson.Raw, depth int) error {
	elems, err := doc.Elements()
	if err != nil {
		return err
	}
	for _, e := range elems {
		path := e.Key()
		if prefix != "" {
			path = prefix + "." + path
		}
		v := e.Value()

		st, ok := b.fields[path]
		if !ok {
			st = &fieldStats{types: make(map[string]struct{})}
			b.fields[path] = st
		}
		st.count++
		st.types[v.Type.String()] = struct{}{}

		if sub, ok := v.DocumentOK(); ok && depth < maxSchemaDepth {
			if err := b.walk(path, sub, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *schemaBuilder) schema() Schema {
	paths := lo.Keys(b.fields)
	sort.Strings(paths)

	return Schema{
		SampleSize: b.docs,
		Fields: lo.Map(paths, func(p string, _ int) Field {
			st := b.fields[p]
			types := lo.Keys(st.types)
			sort.Strings(types)
			return Field{Path: p, Types: types, Count: st.count}
		}),
	}
}
