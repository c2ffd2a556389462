package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/markdave123-py/prescodata/internal/api/respond"
	"github.com/markdave123-py/prescodata/internal/core/ingestion_engine"
	"github.com/markdave123-py/prescodata/internal/logging"
	"github.com/markdave123-py/prescodata/internal/services"
)

const testLimit = 4096

type recordingIngestor struct {
	reqs  []ingestion_engine.IngestRequest
	sizes []int64
}

func (i *recordingIngestor) Ingest(_ context.Context, req ingestion_engine.IngestRequest) (*ingestion_engine.IngestResult, error) {
	info, err := os.Stat(req.FilePath)
	if err != nil {
		return nil, err
	}
	i.reqs = append(i.reqs, req)
	i.sizes = append(i.sizes, info.Size())
	return &ingestion_engine.IngestResult{CollectionName: req.CollectionName, TotalRows: 1}, nil
}

func newUploadHandler(t *testing.T) (*UploadHandler, *recordingIngestor) {
	t.Helper()
	ing := &recordingIngestor{}
	logger := logging.Discard()
	h := NewUploadHandler(ing, services.NewArchiveService(nil, "", logger), respond.New(logger, false), t.TempDir(), testLimit, logger)
	return h, ing
}

func multipartUpload(t *testing.T, filename string, size int) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(bytes.Repeat([]byte("x"), size)); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("collectionName", "holders"); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serveUpload(h *UploadHandler, req *http.Request) (int, respond.Envelope) {
	rec := httptest.NewRecorder()
	h.Upload(rec, req)
	var env respond.Envelope
	_ = json.NewDecoder(rec.Body).Decode(&env)
	return rec.Code, env
}

func TestUploadAcceptsFileAtLimit(t *testing.T) {
	h, ing := newUploadHandler(t)

	code, env := serveUpload(h, multipartUpload(t, "holders.xlsx", testLimit))
	if code != http.StatusOK || !env.Success {
		t.Fatalf("upload at the limit: %d %q", code, env.Error)
	}
	if len(ing.reqs) != 1 || ing.sizes[0] != testLimit {
		t.Fatalf("ingested %d files, sizes %v", len(ing.reqs), ing.sizes)
	}
	if ing.reqs[0].CollectionName != "holders" || ing.reqs[0].OriginalFileName != "holders.xlsx" {
		t.Fatalf("unexpected request %+v", ing.reqs[0])
	}
	if _, err := os.Stat(ing.reqs[0].FilePath); !os.IsNotExist(err) {
		t.Fatalf("saved upload left on disk: %v", err)
	}
}

func TestUploadRejectsFileOverLimit(t *testing.T) {
	h, ing := newUploadHandler(t)

	code, env := serveUpload(h, multipartUpload(t, "holders.xlsx", testLimit+1))
	if code != http.StatusBadRequest || env.Error != "File too large, the limit is 4096 bytes" {
		t.Fatalf("oversized file: %d %q", code, env.Error)
	}
	if len(ing.reqs) != 0 {
		t.Fatal("oversized file reached the ingestor")
	}
}

func TestUploadRejectsOversizedBody(t *testing.T) {
	h, ing := newUploadHandler(t)

	code, env := serveUpload(h, multipartUpload(t, "holders.xlsx", testLimit+multipartOverhead+1))
	if code != http.StatusBadRequest || env.Error != "File too large, the limit is 4096 bytes" {
		t.Fatalf("oversized body: %d %q", code, env.Error)
	}
	if len(ing.reqs) != 0 {
		t.Fatal("oversized body reached the ingestor")
	}
}

func TestUploadRejectsOtherExtensions(t *testing.T) {
	h, _ := newUploadHandler(t)
	code, env := serveUpload(h, multipartUpload(t, "holders.csv", 10))
	if code != http.StatusBadRequest || env.Error != "Only .xlsx and .xls files are allowed" {
		t.Fatalf("csv upload: %d %q", code, env.Error)
	}
}
