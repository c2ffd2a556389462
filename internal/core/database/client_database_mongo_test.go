package db

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/markdave123-py/prescodata/internal/core"
)

func TestToBSONEmptyFilter(t *testing.T) {
	if got := toBSON(core.MatchAll()); len(got) != 0 {
		t.Fatalf("expected empty query, got %v", got)
	}
}

func TestToBSONSingleContainsIsEscapedRegex(t *testing.T) {
	got := toBSON(core.Or(core.Contains("name", "a.b(")))
	if len(got) != 1 || got[0].Key != "name" {
		t.Fatalf("unexpected query %v", got)
	}
	re, ok := got[0].Value.(primitive.Regex)
	if !ok {
		t.Fatalf("expected a regex, got %T", got[0].Value)
	}
	if re.Pattern != `a\.b\(` || re.Options != "i" {
		t.Fatalf("unexpected regex %+v", re)
	}
}

func TestToBSONOrOfConditions(t *testing.T) {
	got := toBSON(core.Or(core.Contains("email", "x"), core.Equals("account_number", int64(1001))))
	if len(got) != 1 || got[0].Key != "$or" {
		t.Fatalf("expected $or, got %v", got)
	}
	clauses, ok := got[0].Value.(bson.A)
	if !ok || len(clauses) != 2 {
		t.Fatalf("unexpected clauses %v", got[0].Value)
	}
	eq := clauses[1].(bson.D)
	if eq[0].Key != "account_number" || eq[0].Value != int64(1001) {
		t.Fatalf("unexpected equality clause %v", eq)
	}
}

func TestNormalizeDocument(t *testing.T) {
	oid := primitive.NewObjectID()
	when := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	doc := normalizeDocument(bson.M{
		"_id":       oid,
		"createdAt": primitive.NewDateTimeFromTime(when),
		"n":         int32(7),
		"fields":    primitive.A{bson.M{"name": "a"}, "b"},
	})
	if doc["_id"] != oid.Hex() {
		t.Fatalf("_id = %v", doc["_id"])
	}
	if got, ok := doc["createdAt"].(time.Time); !ok || !got.Equal(when) {
		t.Fatalf("createdAt = %v", doc["createdAt"])
	}
	if doc["n"] != int64(7) {
		t.Fatalf("n = %#v", doc["n"])
	}
	fields := doc["fields"].([]any)
	if m, ok := fields[0].(map[string]any); !ok || m["name"] != "a" {
		t.Fatalf("nested document not normalized: %#v", fields[0])
	}
}

func TestStampForInsertDropsEmptyID(t *testing.T) {
	now := time.Now().UTC()
	out := stampForInsert(core.Document{"_id": "", "a": 1}, now)
	if _, ok := out["_id"]; ok {
		t.Fatal("empty _id should be left for the server to assign")
	}
	if out["createdAt"] != now || out["updatedAt"] != now {
		t.Fatalf("missing stamps: %v", out)
	}
}

func TestPartialInsertClassifiesWriteErrors(t *testing.T) {
	err := fmt.Errorf("driver: %w", mongo.BulkWriteException{
		WriteErrors: []mongo.BulkWriteError{
			{WriteError: mongo.WriteError{Index: 1, Code: duplicateKeyCode, Message: "E11000 duplicate key"}},
			{WriteError: mongo.WriteError{Index: 3, Code: 121, Message: "Document failed validation"}},
		},
	})

	out, ok := partialInsert(err, 5)
	if !ok {
		t.Fatal("expected a partial insert")
	}
	if out.Inserted != 3 || len(out.Failed) != 2 {
		t.Fatalf("unexpected result %+v", out)
	}
	if out.Failed[0].Index != 1 || !errors.Is(out.Failed[0].Err, core.ErrDuplicateKey) {
		t.Fatalf("duplicate not classified: %v", out.Failed[0])
	}
	if out.Failed[1].Index != 3 || errors.Is(out.Failed[1].Err, core.ErrDuplicateKey) {
		t.Fatalf("validation failure classified as duplicate: %v", out.Failed[1])
	}
}

func TestPartialInsertRejectsOtherErrors(t *testing.T) {
	cases := map[string]error{
		"plain": errors.New("connection reset"),
		"write concern": mongo.BulkWriteException{
			WriteConcernError: &mongo.WriteConcernError{Code: 64, Message: "waiting for replication timed out"},
			WriteErrors:       []mongo.BulkWriteError{{WriteError: mongo.WriteError{Index: 0, Code: duplicateKeyCode}}},
		},
		"no write errors": mongo.BulkWriteException{},
	}
	for name, err := range cases {
		if _, ok := partialInsert(err, 2); ok {
			t.Fatalf("%s: treated as a partial insert", name)
		}
	}
}
