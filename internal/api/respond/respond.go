// Package respond writes the JSON envelope shared by every endpoint.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/markdave123-py/prescodata/internal/apperr"
)

type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
	Meta    any    `json:"meta,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// Responder renders results and errors. Stacks are only exposed outside production.
type Responder struct {
	logger      *slog.Logger
	exposeStack bool
}

func New(logger *slog.Logger, exposeStack bool) *Responder {
	return &Responder{logger: logger, exposeStack: exposeStack}
}

func (rs *Responder) JSON(w http.ResponseWriter, status int, data, meta any) {
	Write(w, status, Envelope{Success: true, Data: data, Meta: meta})
}

// Error classifies err, logs it and writes the failure envelope.
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	rs.Status(w, r, apperr.From(err).Kind.Status(), err)
}

// Status is Error with an explicit status code, for statuses no error kind maps to.
func (rs *Responder) Status(w http.ResponseWriter, r *http.Request, status int, err error) {
	ae := apperr.From(err)

	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		rs.logger.Error("request failed", attrs...)
	} else {
		rs.logger.Debug("request rejected", attrs...)
	}

	env := Envelope{Error: ae.Message, Details: ae.Details}
	if rs.exposeStack {
		env.Stack = apperr.Stack(err)
	}
	Write(w, status, env)
}

// Write sends env as is.
func Write(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
