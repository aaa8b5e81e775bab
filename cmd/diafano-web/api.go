package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	diafano "github.com/eldiafano/diafano"
	"github.com/eldiafano/diafano/internal/auth"
	"github.com/eldiafano/diafano/internal/ranking"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error any `json:"error"`
}

type issuesBody struct {
	Issues []diafano.Issue `json:"issues"`
}

// writeFailure answers a write request with the status HTTPStatus picks.
// Only validation issues and safe messages reach the client.
func (h *handlers) writeFailure(w http.ResponseWriter, err error) {
	status := diafano.HTTPStatus(err)

	var (
		validErr *diafano.ValidationError
		dbErr    *diafano.DatabaseError
	)
	switch {
	case status == http.StatusUnauthorized:
		writeJSON(w, status, errorBody{Error: "Unauthorized"})
	case errors.As(err, &validErr):
		writeJSON(w, status, errorBody{Error: issuesBody{Issues: validErr.Issues}})
	case errors.As(err, &dbErr):
		writeJSON(w, status, errorBody{Error: dbErr.Error()})
	case status == http.StatusNotFound:
		writeJSON(w, status, errorBody{Error: "Not Found"})
	default:
		h.log.Error("write request failed", "error", err)
		writeJSON(w, status, errorBody{Error: "Internal Server Error"})
	}
}

// --- JSON reads ---

func (h *handlers) apiHistorias(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.engine.Stories(r.Context(), ranking.ParseTab(q.Get("tab")), q.Get("fecha"))
	if err != nil {
		if diafano.HTTPStatus(err) == http.StatusBadRequest {
			h.writeFailure(w, err)
			return
		}
		h.log.Error("load stories", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Error al obtener historias"})
		return
	}
	if limit := parseIntParam(r, "limit", 0); limit > 0 {
		page.Stories, _ = ranking.Paginate(page.Stories, limit)
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) apiHistoria(w http.ResponseWriter, r *http.Request) {
	id := idFromRequest(r)
	if id < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "id inválido"})
		return
	}
	detail, err := h.engine.Story(r.Context(), id)
	switch {
	case errors.Is(err, diafano.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Historia no encontrada"})
		return
	case err != nil:
		h.log.Error("load story", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Error al obtener la historia"})
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *handlers) apiCategoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.CategoryStats(r.Context())
	if err != nil {
		h.log.Error("category stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Error al obtener estadísticas"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) apiDailyBias(w http.ResponseWriter, r *http.Request) {
	counts, err := h.engine.DailyBias(r.Context(), r.URL.Query().Get("fecha"))
	if err != nil {
		if diafano.HTTPStatus(err) == http.StatusBadRequest {
			h.writeFailure(w, err)
			return
		}
		h.log.Error("daily bias", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Error al obtener sesgos"})
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *handlers) apiBuscar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	limit := parseIntParam(r, "limit", 0)

	switch medio := parseInt64Param(r, "medio"); {
	case medio > 0:
		writeJSON(w, http.StatusOK, h.engine.SearchByOutlet(r.Context(), medio, limit))
	case q.Get("semantic") == "1" || q.Get("semantic") == "true":
		writeJSON(w, http.StatusOK, h.engine.SemanticSearch(r.Context(), query, limit))
	default:
		writeJSON(w, http.StatusOK, h.engine.Search(r.Context(), query, limit))
	}
}

func (h *handlers) apiMedios(w http.ResponseWriter, r *http.Request) {
	medios, err := h.engine.Medios(r.Context())
	if err != nil {
		h.log.Error("list medios", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Error al obtener medios"})
		return
	}
	writeJSON(w, http.StatusOK, medios)
}

func (h *handlers) apiPersonajes(w http.ResponseWriter, r *http.Request) {
	pp, err := h.engine.TopPersonajes(r.Context(), parseIntParam(r, "limit", 10))
	if err != nil {
		h.log.Error("top personajes", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Error al obtener personajes"})
		return
	}
	writeJSON(w, http.StatusOK, pp)
}

// --- ingestion ---

func (h *handlers) apiIngestNoticia(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.CheckSecret(r.Header.Get(auth.SecretHeader)); err != nil {
		h.writeFailure(w, err)
		return
	}
	p, err := diafano.DecodeNoticia(r.Body)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	res, err := h.engine.IngestNoticia(r.Context(), p)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) apiIngestHistoria(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.CheckSecret(r.Header.Get(auth.SecretHeader)); err != nil {
		h.writeFailure(w, err)
		return
	}
	p, err := diafano.DecodeHistoria(r.Body)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	res, err := h.engine.IngestHistoria(r.Context(), p)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) apiIngestMedio(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.CheckSecret(r.Header.Get(auth.SecretHeader)); err != nil {
		h.writeFailure(w, err)
		return
	}
	p, err := diafano.DecodeMedio(r.Body)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	res, err := h.engine.IngestMedio(r.Context(), p)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) apiAnnotateNoticia(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.CheckSecret(r.Header.Get(auth.SecretHeader)); err != nil {
		h.writeFailure(w, err)
		return
	}
	id := idFromRequest(r)
	if id < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "id inválido"})
		return
	}
	p, err := diafano.DecodeAnotacion(r.Body)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	res, err := h.engine.AnnotateNoticia(r.Context(), id, p)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- personaje review ---

type approvalRequest struct {
	Nombre  *string `json:"nombre"`
	Cargo   *string `json:"cargo"`
	Partido *string `json:"partido"`
	Bio     *string `json:"bio"`
	FotoURL *string `json:"foto_url"`
}

func (h *handlers) apiPendingPersonajes(w http.ResponseWriter, r *http.Request) {
	pp, err := h.engine.PendingPersonajes(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pp)
}

func (h *handlers) apiApprovePersonaje(w http.ResponseWriter, r *http.Request) {
	id := idFromRequest(r)
	if id < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "id inválido"})
		return
	}

	// The body is optional; an empty one approves without overrides.
	var req approvalRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, diafano.MaxPayloadBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "JSON inválido"})
		return
	}

	err := h.engine.ApprovePersonaje(r.Context(), id, diafano.Approval{
		Name:     req.Nombre,
		Role:     req.Cargo,
		Party:    req.Partido,
		Bio:      req.Bio,
		PhotoURL: req.FotoURL,
	})
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.log.Info("personaje reviewed", "id", id, "action", "aprobar", "by", auth.Subject(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (h *handlers) apiRejectPersonaje(w http.ResponseWriter, r *http.Request) {
	id := idFromRequest(r)
	if id < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "id inválido"})
		return
	}
	if err := h.engine.RejectPersonaje(r.Context(), id); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.log.Info("personaje reviewed", "id", id, "action", "rechazar", "by", auth.Subject(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}
