// Package schemahint resolves an optional declared DDML schema into the
// render hints mparse attaches to parsed field paths: whether a dotted path
// in a given collection is declared as a numeric field, so the renderer can
// emit CAST(... AS NUMBER) instead of leaving Oracle to compare
// the default VARCHAR2 projection against a numeric literal.
//
// The flattening walk mirrors zoobzio-docql's own schema-to-field-path index
// (instance.go's indexFields): descend into TypeObject fields and the
// TypeObject element of a TypeArray field, joining path segments with ".".
package schemahint

import "github.com/zoobzio/ddml"

// Resolver answers numeric-field questions against a flattened schema. A nil
// *Resolver always answers false, so a Translator built without a declared
// schema behaves exactly as if schemahint did not exist.
type Resolver struct {
	fields map[string]ddml.FieldType // "collection/dotted.path" -> declared type
}

// New flattens schema's collections into a path index. A nil schema yields a
// nil *Resolver.
func New(schema *ddml.Schema) *Resolver {
	if schema == nil {
		return nil
	}
	r := &Resolver{fields: make(map[string]ddml.FieldType)}
	for name, coll := range schema.Collections {
		if coll == nil {
			continue
		}
		r.index(name, "", coll.Fields)
	}
	return r
}

func (r *Resolver) index(collection, prefix string, fields []*ddml.Field) {
	for _, f := range fields {
		if f == nil {
			continue
		}
		path := f.Name
		if prefix != "" {
			path = prefix + "." + f.Name
		}
		r.fields[collection+"/"+path] = f.Type
		if f.Type == ddml.TypeObject && len(f.Fields) > 0 {
			r.index(collection, path, f.Fields)
		}
		if f.Type == ddml.TypeArray && f.ArrayOf != nil && f.ArrayOf.Type == ddml.TypeObject {
			r.index(collection, path, f.ArrayOf.Fields)
		}
	}
}

// IsNumeric reports whether collection's dotted field path is declared
// TypeInt or TypeFloat. Always false for a nil Resolver or an undeclared
// field, the common case when no schema was supplied.
func (r *Resolver) IsNumeric(collection, path string) bool {
	if r == nil {
		return false
	}
	t, ok := r.fields[collection+"/"+path]
	if !ok {
		return false
	}
	return t == ddml.TypeInt || t == ddml.TypeFloat
}
