package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/prescodata/internal/api/respond"
	"github.com/markdave123-py/prescodata/internal/services"
)

type DataHandler struct {
	records *services.RecordService
	rs      *respond.Responder
}

func NewDataHandler(records *services.RecordService, rs *respond.Responder) *DataHandler {
	return &DataHandler{records: records, rs: rs}
}

type countMeta struct {
	Count int `json:"count"`
}

type pageMeta struct {
	Count int   `json:"count"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit,omitempty"`
}

// Search handles GET /api/search?query=&collection=.
func (h *DataHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.records.FreeText(r.Context(), q.Get("query"), q.Get("collection"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusOK, res, countMeta{Count: len(res)})
}

// SearchByField handles GET /api/search/{field}?value=&collection=.
func (h *DataHandler) SearchByField(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.records.ByField(r.Context(), chi.URLParam(r, "field"), q.Get("value"), q.Get("collection"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusOK, res, countMeta{Count: len(res)})
}

// ListAll handles GET /api/data?collection=&page=&limit=.
func (h *DataHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := services.ParsePage(q.Get("page"), q.Get("limit"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	res, err := h.records.List(r.Context(), q.Get("collection"), page)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusOK, res.Records, pageMeta{
		Count: len(res.Records),
		Total: res.Total,
		Page:  page.Page,
		Limit: page.Limit,
	})
}

func (h *DataHandler) Stats(w http.ResponseWriter, r *http.Request) {
	res, err := h.records.Stats(r.Context(), r.URL.Query().Get("collection"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusOK, res, nil)
}

func (h *DataHandler) Collections(w http.ResponseWriter, r *http.Request) {
	res, err := h.records.Collections(r.Context())
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusOK, res, countMeta{Count: len(res)})
}

// FetchWithAccount handles the public GET /api/fetch-with-account/{id}.
func (h *DataHandler) FetchWithAccount(w http.ResponseWriter, r *http.Request) {
	res, err := h.records.ByAccount(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("collection"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusOK, res, nil)
}
