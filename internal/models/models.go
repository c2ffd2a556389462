package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/markdave123-py/prescodata/internal/core"
)

// Collection names owned by the services.
const (
	UsersCollection    = "users"
	RecordsCollection  = "prescodatas"
	MetadataCollection = "uploadmetadatas"
	SchemaCollection   = "collectionschemas"
)

// IsReserved reports whether name is an internal collection that uploads may not target.
func IsReserved(name string) bool {
	switch name {
	case UsersCollection, MetadataCollection, SchemaCollection:
		return true
	}
	return false
}

// Row is one parsed spreadsheet row keyed by cleaned header.
type Row map[string]any

// User represents an authenticated user of the system.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u *User) ToDocument() core.Document {
	return core.Document{
		"id":           u.ID,
		"email":        u.Email,
		"passwordHash": u.PasswordHash,
		FieldCreated:   u.CreatedAt,
	}
}

// UserFromDocument rebuilds a user from its stored form.
func UserFromDocument(doc core.Document) (*User, error) {
	u := &User{
		ID:           stringField(doc, "id"),
		Email:        stringField(doc, "email"),
		PasswordHash: stringField(doc, "passwordHash"),
	}
	if u.ID == "" || u.Email == "" {
		return nil, fmt.Errorf("user document missing id or email")
	}
	u.CreatedAt, _ = core.AsTime(doc[FieldCreated])
	return u, nil
}

// FieldCreated is the creation timestamp key stamped by the store.
const FieldCreated = core.FieldCreatedAt

func stringField(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case core.Document:
		return m, true
	}
	return nil, false
}

func toStrings(v any) []string {
	switch xs := v.(type) {
	case []string:
		return append([]string(nil), xs...)
	case []any:
		out := make([]string, 0, len(xs))
		for _, x := range xs {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
