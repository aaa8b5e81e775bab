package main

import (
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	diafano "github.com/eldiafano/diafano"
	"github.com/eldiafano/diafano/internal/bias"
	"github.com/eldiafano/diafano/internal/ranking"
	"github.com/eldiafano/diafano/internal/search"
	"github.com/eldiafano/diafano/internal/story"
)

// handlers holds dependencies for all HTTP handler methods.
type handlers struct {
	engine *diafano.Engine
	log    *slog.Logger

	once  sync.Once
	pages map[string]*template.Template // per-page template sets
}

// init parses templates on first use. Each page gets its own template tree
// (base.html + shared partials + page template) so that blocks with the
// same name in different pages do not overwrite each other.
func (h *handlers) init() {
	h.once.Do(func() {
		funcMap := template.FuncMap{
			"segments":     func(s story.Story) []bias.Segment { return bias.Segments(s.BiasCounts) },
			"leaningColor": bias.LeaningColor,
			"credibility":  func(name string) string { return bias.CredibilityBadge(bias.Classify(name).Credibility) },
			"ago":          func(t time.Time) string { return formatDate(t, time.Now()) },
			"day":          func(t time.Time) string { return t.Format("02/01/2006") },
			"pct":          func(n, total int) int { return percent(n, total) },
			"noCoverage":   func() string { return bias.NoCoverage },
			"grade":        func(g *float64) string { return strconv.FormatFloat(*g, 'f', 1, 64) },
		}

		tmplFS, _ := fs.Sub(embedded, "templates")

		// Shared partials included in every page template.
		shared := []string{"base.html", "story_card.html", "error.html"}

		pages := []string{"index.html", "historia.html", "buscar.html", "personaje.html"}

		h.pages = make(map[string]*template.Template, len(pages))
		for _, page := range pages {
			files := append(append([]string{}, shared...), page)
			h.pages[page] = template.Must(template.New("").Funcs(funcMap).ParseFS(tmplFS, files...))
		}
	})
}

// --- Template data types ---

type tabLink struct {
	Tab    ranking.Tab
	Label  string
	Active bool
}

type indexData struct {
	Page  *diafano.FrontPage
	Tabs  []tabLink
	Dates []string
	Fecha string
}

type historiaData struct {
	Detail *diafano.StoryDetail
}

type buscarData struct {
	Query   string
	MedioID int64
	Label   string
	Medios  []diafano.Medio
	Result  search.Result
}

type personajeData struct {
	Coverage *diafano.PersonajeCoverage
}

type errorData struct {
	Message string
}

var tabLabels = []struct {
	tab   ranking.Tab
	label string
}{
	{ranking.Relevance, "Relevancia"},
	{ranking.Top, "Top"},
	{ranking.Coverage, "Cobertura"},
	{ranking.Recent, "Recientes"},
	{ranking.Score, "Score"},
	{ranking.Category, "Categoría"},
}

// --- Helper methods ---

func (h *handlers) renderPage(w http.ResponseWriter, name string, data any) {
	h.init()

	t, ok := h.pages[name]
	if !ok {
		h.log.Error("unknown page template", "name", name)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "base.html", data); err != nil {
		h.log.Error("template error", "name", name, "error", err)
	}
}

func (h *handlers) renderError(w http.ResponseWriter, status int, msg string) {
	h.init()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	// error.html is shared across all page trees.
	for _, t := range h.pages {
		if tmpl := t.Lookup("error"); tmpl != nil {
			if err := tmpl.Execute(w, errorData{Message: msg}); err != nil {
				h.log.Error("template error", "name", "error", "error", err)
			}
			return
		}
	}
}

// formatDate renders t relative to now, falling back to the calendar day
// after a week.
func formatDate(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "recién"
	case diff < time.Hour:
		return fmt.Sprintf("hace %d min", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("hace %d h", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("hace %d d", int(diff.Hours()/24))
	default:
		return t.Format("02/01/2006")
	}
}

func percent(n, total int) int {
	if total <= 0 {
		return 0
	}
	return n * 100 / total
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}

func parseInt64Param(r *http.Request, name string) int64 {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0
	}
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

// --- Full-page handlers ---

func (h *handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	tab := ranking.ParseTab(r.URL.Query().Get("tab"))
	fecha := r.URL.Query().Get("fecha")

	page, err := h.engine.Stories(r.Context(), tab, fecha)
	if err != nil {
		if diafano.HTTPStatus(err) == http.StatusBadRequest {
			h.renderError(w, http.StatusBadRequest, "Fecha inválida")
			return
		}
		// The front page degrades to an empty feed.
		h.log.Error("load stories", "tab", tab, "fecha", fecha, "error", err)
		page = &diafano.FrontPage{Tab: tab, Fecha: fecha, Stories: []diafano.Story{}}
	}

	// The archive picker is a convenience; a failure leaves it empty.
	dates, _ := h.engine.ActiveDates(r.Context(), 30)

	data := indexData{Page: page, Dates: dates, Fecha: fecha}
	for _, t := range tabLabels {
		data.Tabs = append(data.Tabs, tabLink{Tab: t.tab, Label: t.label, Active: t.tab == tab})
	}
	h.renderPage(w, "index.html", data)
}

func (h *handlers) handleHistoria(w http.ResponseWriter, r *http.Request) {
	id := idFromRequest(r)
	if id < 0 {
		h.renderError(w, http.StatusBadRequest, "Historia inválida")
		return
	}

	detail, err := h.engine.Story(r.Context(), id)
	switch {
	case errors.Is(err, diafano.ErrNotFound):
		h.renderError(w, http.StatusNotFound, "Historia no encontrada")
		return
	case err != nil:
		h.log.Error("load story", "id", id, "error", err)
		h.renderError(w, http.StatusInternalServerError, "No se pudo cargar la historia")
		return
	}
	h.renderPage(w, "historia.html", historiaData{Detail: detail})
}

func (h *handlers) handleBuscar(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	data := buscarData{Query: q, Label: q, MedioID: parseInt64Param(r, "medio")}

	medios, err := h.engine.Medios(r.Context())
	if err != nil {
		h.log.Error("list medios", "error", err)
	}
	data.Medios = medios

	switch {
	case data.MedioID > 0:
		data.Result = h.engine.SearchByOutlet(r.Context(), data.MedioID, 0)
		data.Label = "medio " + strconv.FormatInt(data.MedioID, 10)
		for _, m := range medios {
			if m.ID == data.MedioID {
				data.Label = m.Nombre
				break
			}
		}
	case q != "":
		data.Result = h.engine.Search(r.Context(), q, 0)
	}
	h.renderPage(w, "buscar.html", data)
}

func (h *handlers) handlePersonaje(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	cov, err := h.engine.PersonajeCoverage(r.Context(), slug, parseIntParam(r, "dias", 0))
	switch {
	case errors.Is(err, diafano.ErrNotFound):
		h.renderError(w, http.StatusNotFound, "Personaje no encontrado")
		return
	case err != nil:
		h.log.Error("load personaje", "slug", slug, "error", err)
		h.renderError(w, http.StatusInternalServerError, "No se pudo cargar el personaje")
		return
	}
	h.renderPage(w, "personaje.html", personajeData{Coverage: cov})
}
