package diafano

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eldiafano/diafano/internal/bias"
	"github.com/eldiafano/diafano/internal/config"
	"github.com/eldiafano/diafano/internal/ranking"
	"github.com/eldiafano/diafano/internal/storage"
)

func newTestEngine(t *testing.T, secret string) (*Engine, *storage.SQLiteStore) {
	t.Helper()
	store, err := storage.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	engine, err := NewEngine(EngineConfig{Store: store, APISecret: secret})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine, store
}

func ptr[T any](v T) *T { return &v }

// seedStory registers El Mostrador (izquierda) and Emol (derecha) and a
// story covered twice from the left and once from the right.
func seedStory(t *testing.T, e *Engine, store *storage.SQLiteStore, first time.Time) int64 {
	t.Helper()
	ctx := context.Background()

	left, err := e.IngestMedio(ctx, &MedioPayload{Nombre: "El Mostrador", Slug: "el-mostrador", SesgoPolitico: "izquierda"})
	if err != nil {
		t.Fatal(err)
	}
	right, err := e.IngestMedio(ctx, &MedioPayload{Nombre: "Emol", Slug: "emol", SesgoPolitico: "derecha"})
	if err != nil {
		t.Fatal(err)
	}
	h, err := e.IngestHistoria(ctx, &HistoriaPayload{
		TituloGenerado:     "Reforma de pensiones avanza",
		Categoria:          "Política",
		PesoRelevancia:     ptr(80.0),
		FechaPrimerReporte: first.UTC().Format(time.RFC3339),
	})
	if err != nil {
		t.Fatal(err)
	}

	for i, medio := range []int64{left.ID, left.ID, right.ID} {
		n, err := e.IngestNoticia(ctx, &NoticiaPayload{
			Titulo:  "Nota",
			Link:    "https://example.cl/nota-" + string(rune('a'+i)),
			MedioID: ptr(medio),
			Fecha:   first.UTC().Format(time.RFC3339),
		})
		if err != nil {
			t.Fatal(err)
		}
		label := "izquierda"
		if medio == right.ID {
			label = "derecha"
		}
		if _, err := e.AnnotateNoticia(ctx, n.ID, &AnotacionPayload{HistoriaID: &h.ID, Sesgo: label}); err != nil {
			t.Fatal(err)
		}
	}
	return h.ID
}

func TestNewEngineRequiresStore(t *testing.T) {
	if _, err := NewEngine(EngineConfig{}); err == nil {
		t.Fatal("expected error without a store")
	}
}

func TestOpenSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "open.db")

	engine, err := Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer engine.Close()

	if err := engine.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if engine.search.Limit() != cfg.Search.Limit {
		t.Errorf("search limit: got %d", engine.search.Limit())
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "mysql"
	if _, err := Open(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestCheckSecret(t *testing.T) {
	engine, _ := newTestEngine(t, "s3cret")
	if err := engine.CheckSecret("s3cret"); err != nil {
		t.Errorf("matching secret: %v", err)
	}
	err := engine.CheckSecret("nope")
	if HTTPStatus(err) != http.StatusUnauthorized {
		t.Errorf("wrong secret: %v (%d)", err, HTTPStatus(err))
	}

	open, _ := newTestEngine(t, "")
	if err := open.CheckSecret(""); HTTPStatus(err) != http.StatusUnauthorized {
		t.Errorf("unconfigured secret must reject, got %v", err)
	}
}

func TestIngestNoticia_SameLinkSameID(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, "x")

	p, err := DecodeNoticia(strings.NewReader(`{"titulo":"<b>Senado</b> vota","link":"https://www.latercera.com/a"}`))
	if err != nil {
		t.Fatalf("DecodeNoticia: %v", err)
	}
	if p.Titulo != "Senado vota" {
		t.Errorf("title not sanitized: %q", p.Titulo)
	}

	first, err := engine.IngestNoticia(ctx, p)
	if err != nil {
		t.Fatalf("IngestNoticia: %v", err)
	}
	p.Titulo = "Senado vota hoy"
	second, err := engine.IngestNoticia(ctx, p)
	if err != nil {
		t.Fatalf("second IngestNoticia: %v", err)
	}
	if first.ID != second.ID || !second.Success {
		t.Errorf("ids differ: %d vs %d", first.ID, second.ID)
	}

	labels, err := store.DailyBiasLabels(ctx, time.Now())
	if err != nil || len(labels) != 0 {
		t.Errorf("pending article has no bias label yet: %v %v", labels, err)
	}
}

func TestIngestHistoria_UpdatesByID(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, "x")

	p, err := DecodeHistoria(strings.NewReader(`{"titulo_generado":"Incendios en Valparaíso","vector_centro":"[0.1, 0.2, 0.3]"}`))
	if err != nil {
		t.Fatalf("DecodeHistoria: %v", err)
	}
	if len(p.VectorCentro) != 3 || p.VectorCentro[2] != 0.3 {
		t.Fatalf("vector from string: %v", p.VectorCentro)
	}
	created, err := engine.IngestHistoria(ctx, p)
	if err != nil {
		t.Fatalf("IngestHistoria: %v", err)
	}

	p.ID = &created.ID
	p.TituloGenerado = "Incendios en Valparaíso: balance"
	updated, err := engine.IngestHistoria(ctx, p)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != created.ID {
		t.Errorf("update created a new row: %d vs %d", updated.ID, created.ID)
	}

	detail, err := engine.Story(ctx, created.ID)
	if err != nil {
		t.Fatalf("Story: %v", err)
	}
	if detail.Story.Title != "Incendios en Valparaíso: balance" {
		t.Errorf("title: %q", detail.Story.Title)
	}
}

func TestIngestMedio(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, "x")

	p, err := DecodeMedio(strings.NewReader(`{"nombre":"BioBio Chile","slug":"biobio","sesgo_politico":"Centro-Derecha","sitio_web":"https://www.biobiochile.cl","logo_url":null}`))
	if err != nil {
		t.Fatalf("DecodeMedio: %v", err)
	}
	res, err := engine.IngestMedio(ctx, p)
	if err != nil {
		t.Fatalf("IngestMedio: %v", err)
	}
	if res.Medio != "BioBio Chile" || res.ID == 0 {
		t.Errorf("result: %+v", res)
	}

	again, _ := engine.IngestMedio(ctx, p)
	if again.ID != res.ID {
		t.Errorf("slug upsert created a new row")
	}

	medios, err := engine.Medios(ctx)
	if err != nil || len(medios) != 1 {
		t.Fatalf("Medios: %v %d", err, len(medios))
	}
	if medios[0].SesgoPolitico != "centro_derecha" || medios[0].LogoURL != nil {
		t.Errorf("medio: %+v", medios[0])
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name   string
		decode func(string) error
		body   string
		path   string
	}{
		{"noticia without title", decodeNoticia, `{"link":"https://a.cl/x"}`, "titulo"},
		{"noticia bad link", decodeNoticia, `{"titulo":"a","link":"no es url"}`, "link"},
		{"noticia bad fecha", decodeNoticia, `{"titulo":"a","link":"https://a.cl","fecha":"ayer"}`, "fecha"},
		{"noticia title only markup", decodeNoticia, `{"titulo":"<br/>","link":"https://a.cl"}`, "titulo"},
		{"noticia wrong type", decodeNoticia, `{"titulo":"a","link":"https://a.cl","medio_id":"uno"}`, "medio_id"},
		{"historia without title", decodeHistoria, `{"resumen":"x"}`, "titulo_generado"},
		{"historia bad vector", decodeHistoria, `{"titulo_generado":"a","vector_centro":"[1, 2"}`, "vector_centro"},
		{"historia empty tag", decodeHistoria, `{"titulo_generado":"a","tags":["ok",""]}`, "tags[1]"},
		{"medio without slug", decodeMedio, `{"nombre":"Emol"}`, "slug"},
		{"medio bad site", decodeMedio, `{"nombre":"Emol","slug":"emol","sitio_web":"emol"}`, "sitio_web"},
		{"anotacion bad historia", decodeAnotacion, `{"historia_id":0}`, "historia_id"},
		{"anotacion personaje without name", decodeAnotacion, `{"personajes":[{"nombre":"Ana"},{"nombre":"<b></b>"}]}`, "personajes[1].nombre"},
		{"malformed json", decodeMedio, `{"nombre":`, ""},
		{"empty body", decodeNoticia, ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decode(tt.body)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if HTTPStatus(err) != http.StatusBadRequest {
				t.Errorf("status: %d", HTTPStatus(err))
			}
			if verr.Issues[0].Path != tt.path {
				t.Errorf("path: got %q, want %q", verr.Issues[0].Path, tt.path)
			}
		})
	}
}

func decodeNoticia(s string) error  { _, err := DecodeNoticia(strings.NewReader(s)); return err }
func decodeHistoria(s string) error { _, err := DecodeHistoria(strings.NewReader(s)); return err }
func decodeMedio(s string) error    { _, err := DecodeMedio(strings.NewReader(s)); return err }
func decodeAnotacion(s string) error {
	_, err := DecodeAnotacion(strings.NewReader(s))
	return err
}

func TestHTTPStatus(t *testing.T) {
	dbErr := &DatabaseError{Op: "upsert noticia", Err: errors.New("duplicate key")}
	if HTTPStatus(dbErr) != http.StatusInternalServerError {
		t.Errorf("database error: %d", HTTPStatus(dbErr))
	}
	if strings.Contains(dbErr.Error(), "duplicate") {
		t.Errorf("database error leaks cause: %q", dbErr.Error())
	}
	if HTTPStatus(nil) != http.StatusOK {
		t.Error("nil should be 200")
	}
	if HTTPStatus(errors.Join(errors.New("wrapped"), ErrNotFound)) != http.StatusNotFound {
		t.Error("not found should be 404")
	}
}

func TestStories_LiveFeed(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, "x")
	now := time.Now()
	storyID := seedStory(t, engine, store, now.Add(-time.Hour))

	// Dated in the future: dropped from the live feed.
	if _, err := engine.IngestHistoria(ctx, &HistoriaPayload{
		TituloGenerado:     "Programada",
		FechaPrimerReporte: now.Add(3 * time.Hour).UTC().Format(time.RFC3339),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.IngestHistoria(ctx, &HistoriaPayload{
		TituloGenerado:     "Temporal en el sur",
		Categoria:          "Sociedad",
		PesoRelevancia:     ptr(90.0),
		FechaPrimerReporte: now.Add(-2 * time.Hour).UTC().Format(time.RFC3339),
	}); err != nil {
		t.Fatal(err)
	}

	page, err := engine.Stories(ctx, ranking.Coverage, "")
	if err != nil {
		t.Fatalf("Stories: %v", err)
	}
	if len(page.Stories) != 2 {
		t.Fatalf("expected 2 stories, got %d", len(page.Stories))
	}
	top := page.Stories[0]
	if top.ID != storyID || top.OutletCount != 2 || top.ArticleCount != 3 {
		t.Errorf("cobertura order: %+v", top)
	}
	if top.Left != 2 || top.Right != 1 {
		t.Errorf("bias counts: %+v", top.BiasCounts)
	}
	if len(page.Columns.Politica) != 1 || len(page.Columns.Sociedad) != 1 {
		t.Errorf("columns: %+v", page.Columns)
	}
	if page.LastUpdate == nil {
		t.Error("last update missing")
	}
}

func TestStories_Archive(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, "x")
	day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedStory(t, engine, store, day)

	page, err := engine.Stories(ctx, ranking.Top, "2026-03-01")
	if err != nil {
		t.Fatalf("Stories: %v", err)
	}
	if len(page.Stories) != 1 || page.Stories[0].ArticleCount != 3 || page.Fecha != "2026-03-01" {
		t.Errorf("archive: %+v", page)
	}

	empty, err := engine.Stories(ctx, ranking.Top, "2026-03-02")
	if err != nil || len(empty.Stories) != 0 {
		t.Errorf("other day: %v %+v", err, empty)
	}

	if _, err := engine.Stories(ctx, ranking.Top, "01-03-2026"); HTTPStatus(err) != http.StatusBadRequest {
		t.Errorf("bad fecha: %v", err)
	}

	dates, err := engine.ActiveDates(ctx, 10)
	if err != nil || len(dates) != 1 || dates[0] != "2026-03-01" {
		t.Errorf("ActiveDates: %v %v", dates, err)
	}
}

func TestStoryDetail(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, "x")
	id := seedStory(t, engine, store, time.Now().Add(-time.Hour))

	d, err := engine.Story(ctx, id)
	if err != nil {
		t.Fatalf("Story: %v", err)
	}
	if len(d.Noticias) != 3 || len(d.Medios) != 2 || d.Story.OutletCount != 2 {
		t.Fatalf("detail: %d noticias, %d medios", len(d.Noticias), len(d.Medios))
	}
	want := bias.Distribution{Left: 67, Center: 0, Right: 33, Unknown: 0}
	if d.Analysis.Distribution != want {
		t.Errorf("distribution: got %+v, want %+v", d.Analysis.Distribution, want)
	}
	if !d.Analysis.Balanced || len(d.Analysis.BlindSpots) != 1 || d.Analysis.BlindSpots[0].Leaning != bias.Center {
		t.Errorf("analysis: %+v", d.Analysis)
	}
	if d.Summary.Message == "" {
		t.Error("summary message empty")
	}

	if _, err := engine.Story(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown story: %v", err)
	}
}

func TestClassifyMedioPrefersRegisteredLeaning(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, "x")

	if got := engine.ClassifyMedio(ctx, "Radio Nueva"); got.Leaning != bias.Unknown {
		t.Errorf("unregistered: %+v", got)
	}
	if _, err := engine.IngestMedio(ctx, &MedioPayload{Nombre: "Radio Nueva", Slug: "radio-nueva", SesgoPolitico: "centro"}); err != nil {
		t.Fatal(err)
	}
	if got := engine.ClassifyMedio(ctx, "Radio Nueva"); got.Leaning != bias.Center {
		t.Errorf("registered: %+v", got)
	}
	if got := engine.ClassifyMedio(ctx, "El Mercurio"); got.Leaning != bias.Right {
		t.Errorf("built-in table: %+v", got)
	}
}

func TestDailyBiasAndCategoryStats(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, "x")
	first := time.Now().UTC().Add(-time.Minute)
	seedStory(t, engine, store, first)

	counts, err := engine.DailyBias(ctx, first.Format(DayLayout))
	if err != nil {
		t.Fatalf("DailyBias: %v", err)
	}
	if counts["izquierda"] != 2 || counts["derecha"] != 1 {
		t.Errorf("counts: %v", counts)
	}
	if _, err := engine.DailyBias(ctx, "hoy"); HTTPStatus(err) != http.StatusBadRequest {
		t.Errorf("bad fecha: %v", err)
	}

	stats, err := engine.CategoryStats(ctx)
	if err != nil {
		t.Fatalf("CategoryStats: %v", err)
	}
	if len(stats) != 1 || stats[0].Category != "Política" || stats[0].Articles != 3 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestPersonajeLifecycle(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, "x")
	seedStory(t, engine, store, time.Now().Add(-time.Hour))

	for i, label := range []string{"positivo", "positivo", "negativo"} {
		p := &AnotacionPayload{Personajes: []MencionPayload{{Nombre: "Ana Pérez", Sentimiento: label}}}
		if _, err := engine.AnnotateNoticia(ctx, int64(i+1), p); err != nil {
			t.Fatal(err)
		}
	}

	pending, err := engine.PendingPersonajes(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending: %v %d", err, len(pending))
	}
	pid := pending[0].ID
	if _, err := engine.PersonajeCoverage(ctx, "ana-perez", 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("pending personaje must not be public: %v", err)
	}

	if err := engine.ApprovePersonaje(ctx, pid, Approval{Role: ptr("Senadora")}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	cov, err := engine.PersonajeCoverage(ctx, "ana-perez", 0)
	if err != nil {
		t.Fatalf("PersonajeCoverage: %v", err)
	}
	if cov.Personaje.Cargo != "Senadora" || cov.Totales.Total() != 3 || cov.Totales.Positive != 2 {
		t.Errorf("coverage: %+v", cov)
	}
	if cov.Nota == nil || cov.Etiqueta == "" || len(cov.Timeline) == 0 {
		t.Errorf("reputation: %+v", cov)
	}

	top, err := engine.TopPersonajes(ctx, 5)
	if err != nil || len(top) != 1 {
		t.Errorf("top: %v %d", err, len(top))
	}

	if err := engine.RejectPersonaje(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("reject unknown: %v", err)
	}
}

func TestAnnotateNoticia(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, "x")
	storyID := seedStory(t, engine, store, time.Now().Add(-time.Hour))

	n, err := engine.IngestNoticia(ctx, &NoticiaPayload{Titulo: "Nueva", Link: "https://example.cl/nueva"})
	if err != nil {
		t.Fatal(err)
	}
	p := &AnotacionPayload{
		HistoriaID: &storyID,
		Resumen:    "Resumen breve",
		Sesgo:      "centro",
		Tono:       "neutral",
		Personajes: []MencionPayload{
			{Nombre: "Ana Pérez", Sentimiento: "positivo"},
			{Nombre: "Ana Pérez", Sentimiento: "positivo"},
			{Nombre: "???"},
		},
	}
	res, err := engine.AnnotateNoticia(ctx, n.ID, p)
	if err != nil {
		t.Fatalf("AnnotateNoticia: %v", err)
	}
	if !res.Success || res.ID != n.ID || res.Personajes != 2 {
		t.Errorf("result: %+v", res)
	}

	articles, err := store.StoryArticles(ctx, storyID)
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 4 {
		t.Errorf("story should now hold 4 noticias, got %d", len(articles))
	}

	// A repeated mention of the same article counts once, so two more
	// articles reach the review threshold.
	var others []int64
	for _, a := range articles {
		if a.ID != n.ID {
			others = append(others, a.ID)
		}
	}
	for _, id := range others[:2] {
		m := &AnotacionPayload{Personajes: []MencionPayload{{Nombre: "Ana Pérez", Slug: "ana-perez", Sentimiento: "negativo"}}}
		if _, err := engine.AnnotateNoticia(ctx, id, m); err != nil {
			t.Fatal(err)
		}
	}
	pending, err := engine.PendingPersonajes(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending: %v %+v", err, pending)
	}
	if pending[0].Slug != "ana-perez" || pending[0].Menciones != 3 || pending[0].Positivas != 1 {
		t.Errorf("candidate: %+v", pending[0])
	}

	if _, err := engine.AnnotateNoticia(ctx, 9999, &AnotacionPayload{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown noticia: %v", err)
	}
	missing := int64(9999)
	if _, err := engine.AnnotateNoticia(ctx, n.ID, &AnotacionPayload{HistoriaID: &missing}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown historia: %v", err)
	}
}

func TestSearchThroughEngine(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, "x")
	id := seedStory(t, engine, store, time.Now().Add(-time.Hour))

	res := engine.Search(ctx, "pensiones", 0)
	if len(res.Results) != 1 || res.Results[0].ID != id || len(res.Results[0].Outlets) != 2 {
		t.Errorf("text search: %+v", res)
	}

	medios, _ := engine.Medios(ctx)
	byOutlet := engine.SearchByOutlet(ctx, medios[0].ID, 5)
	if len(byOutlet.Results) != 1 {
		t.Errorf("by outlet: %+v", byOutlet)
	}

	if sem := engine.SemanticSearch(ctx, "pensiones", 5); len(sem.Results) != 0 {
		t.Errorf("semantic without embedder: %+v", sem)
	}
}
