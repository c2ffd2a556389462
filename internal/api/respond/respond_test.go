package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/markdave123-py/prescodata/internal/apperr"
	"github.com/markdave123-py/prescodata/internal/core"
	"github.com/markdave123-py/prescodata/internal/logging"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	New(logging.Discard(), false).JSON(rec, http.StatusCreated, map[string]int{"n": 1}, map[string]int{"total": 1})
	if rec.Code != http.StatusCreated || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("status %d, content type %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	env := decode(t, rec)
	if !env.Success || env.Data == nil || env.Meta == nil || env.Error != "" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{apperr.Validation("bad"), http.StatusBadRequest, "bad"},
		{apperr.Conflict("User already exists"), http.StatusBadRequest, "User already exists"},
		{apperr.Unauthorized("Invalid credentials"), http.StatusUnauthorized, "Invalid credentials"},
		{apperr.Forbidden("Invalid or missing API key"), http.StatusForbidden, "Invalid or missing API key"},
		{core.ErrNotFound, http.StatusNotFound, "Resource not found"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "Server Error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
		New(logging.Discard(), false).Error(rec, req, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: status %d, want %d", tc.err, rec.Code, tc.status)
		}
		env := decode(t, rec)
		if env.Success || env.Error != tc.msg || env.Stack != "" {
			t.Fatalf("%v: envelope %+v", tc.err, env)
		}
	}
}

func TestErrorStackOutsideProduction(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	New(logging.Discard(), true).Error(rec, req, apperr.Internal(errors.New("boom")))
	env := decode(t, rec)
	if !strings.Contains(env.Stack, "respond") {
		t.Fatalf("stack missing or unexpected: %q", env.Stack)
	}
}

func TestErrorDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	err := apperr.Validation("Invalid search field").WithDetails(map[string]any{"allowedFields": []string{"name"}})
	New(logging.Discard(), false).Error(rec, req, err)
	env := decode(t, rec)
	if env.Details == nil {
		t.Fatal("details dropped")
	}
}
