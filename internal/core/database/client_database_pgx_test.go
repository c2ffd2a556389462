package db

import (
	"fmt"
	"strings"
	"testing"

	"github.com/markdave123-py/prescodata/internal/core"
)

func TestBuildWhere(t *testing.T) {
	where, args, err := buildWhere(core.Or(
		core.Contains("name", "50%_off"),
		core.Equals("account_number", int64(1001)),
	), 2)
	if err != nil {
		t.Fatalf("buildWhere: %v", err)
	}
	want := `(doc->>'name' ILIKE $2 ESCAPE '\' OR doc->'account_number' = $3::jsonb)`
	if where != want {
		t.Fatalf("where =\n%s\nwant\n%s", where, want)
	}
	if args[0] != `%50\%\_off%` || args[1] != "1001" {
		t.Fatalf("args = %q", args)
	}
}

func TestBuildWhereEmpty(t *testing.T) {
	where, args, err := buildWhere(core.MatchAll(), 2)
	if err != nil || where != "" || len(args) != 0 {
		t.Fatalf("buildWhere(empty) = %q, %v, %v", where, args, err)
	}
}

func TestIndexDDL(t *testing.T) {
	unique, err := indexDDL("users", core.IndexSpec{Name: "email_unique", Fields: []string{"email"}, Unique: true})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(unique, "CREATE UNIQUE INDEX IF NOT EXISTS ix_users_email_unique_") ||
		!strings.HasSuffix(unique, "ON documents ((doc->>'email')) WHERE collection = 'users'") {
		t.Fatalf("unexpected DDL: %s", unique)
	}

	text, err := indexDDL("investors", core.IndexSpec{Name: "text", Fields: []string{"full_name", "email"}, Text: true})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "USING gin ((doc->>'full_name') gin_trgm_ops, (doc->>'email') gin_trgm_ops)") {
		t.Fatalf("unexpected DDL: %s", text)
	}

	if _, err := indexDDL("x", core.IndexSpec{Name: "empty"}); err == nil {
		t.Fatal("expected an error for an index without fields")
	}
}

func TestIndexNameFitsIdentifierLimit(t *testing.T) {
	long := strings.Repeat("column_", 20)
	a := indexName("collection", long+"a")
	b := indexName("collection", long+"b")
	if len(a) > 63 {
		t.Fatalf("index name too long: %d", len(a))
	}
	if a == b {
		t.Fatal("names that differ past the truncation point must not collide")
	}
}

func TestDecodeDocumentKeepsNumbersExact(t *testing.T) {
	doc, err := decodeDocument([]byte(`{"account_number": 12345678901234567, "amount": 2.5}`))
	if err != nil {
		t.Fatal(err)
	}
	n, ok := core.AsInt64(doc["account_number"])
	if !ok || n != 12345678901234567 {
		t.Fatalf("account_number = %v", doc["account_number"])
	}
}

func TestInitScriptRecordsSchemaVersion(t *testing.T) {
	want := fmt.Sprintf("INSERT INTO presco_meta (version) VALUES (%d)", schemaVersion)
	if !strings.Contains(initScript, want) {
		t.Fatalf("init script does not record schema version %d", schemaVersion)
	}
	for _, stmt := range []string{"CREATE TABLE IF NOT EXISTS presco_meta", "CREATE TABLE IF NOT EXISTS documents", "ON CONFLICT (version) DO NOTHING"} {
		if !strings.Contains(initScript, stmt) {
			t.Fatalf("init script is missing %q", stmt)
		}
	}
}
