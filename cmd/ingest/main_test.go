package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCopyToTempKeepsSource(t *testing.T) {
	src := filepath.Join(t.TempDir(), "book.xlsx")
	if err := os.WriteFile(src, []byte("PK"), 0o600); err != nil {
		t.Fatal(err)
	}
	tmp, err := copyToTemp(src)
	if err != nil {
		t.Fatalf("copyToTemp: %v", err)
	}
	defer os.Remove(tmp)

	if filepath.Ext(tmp) != ".xlsx" {
		t.Fatalf("copy %q lost the extension", tmp)
	}
	got, _ := os.ReadFile(tmp)
	if string(got) != "PK" {
		t.Fatalf("copy content = %q", got)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("source gone: %v", err)
	}
}
