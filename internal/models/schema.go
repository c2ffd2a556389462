package models

import (
	"fmt"
	"time"

	"github.com/markdave123-py/prescodata/internal/core"
)

// FieldType is the inferred value type of a dynamic column.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
	FieldMixed  FieldType = "mixed"
)

// FieldDef describes one column of a collection.
type FieldDef struct {
	Name    string    `json:"name"`
	Type    FieldType `json:"type"`
	Indexed bool      `json:"indexed"`
	Text    bool      `json:"text"`
}

// CollectionSchema is the registered shape of a dynamic collection.
type CollectionSchema struct {
	Name      string     `json:"name"`
	Fields    []FieldDef `json:"fields"`
	Builtin   bool       `json:"builtin"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Field returns the definition of name, if present.
func (s *CollectionSchema) Field(name string) (FieldDef, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

func (s *CollectionSchema) FieldNames() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

func (s *CollectionSchema) ToDocument() core.Document {
	fields := make([]any, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = map[string]any{
			"name":    f.Name,
			"type":    string(f.Type),
			"indexed": f.Indexed,
			"text":    f.Text,
		}
	}
	return core.Document{
		"name":       s.Name,
		"fields":     fields,
		FieldCreated: s.CreatedAt,
	}
}

// SchemaFromDocument rebuilds a stored collection definition.
func SchemaFromDocument(doc core.Document) (*CollectionSchema, error) {
	s := &CollectionSchema{Name: stringField(doc, "name")}
	if s.Name == "" {
		return nil, fmt.Errorf("collection schema without a name")
	}
	raw, _ := doc["fields"].([]any)
	for _, item := range raw {
		m, ok := asMap(item)
		if !ok {
			return nil, fmt.Errorf("collection schema %q: malformed field entry", s.Name)
		}
		indexed, _ := m["indexed"].(bool)
		text, _ := m["text"].(bool)
		s.Fields = append(s.Fields, FieldDef{
			Name:    stringField(m, "name"),
			Type:    FieldType(stringField(m, "type")),
			Indexed: indexed,
			Text:    text,
		})
	}
	s.CreatedAt, _ = core.AsTime(doc[FieldCreated])
	return s, nil
}
