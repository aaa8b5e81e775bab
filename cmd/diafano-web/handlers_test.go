package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	diafano "github.com/eldiafano/diafano"
	"github.com/eldiafano/diafano/internal/auth"
	"github.com/eldiafano/diafano/internal/storage"
)

const testSecret = "s3cret"

type testFixtures struct {
	router   http.Handler
	engine   *diafano.Engine
	store    *storage.SQLiteStore
	jwt      *auth.JWTManager
	storyID  int64
	leftID   int64
	noticias []int64
}

// newTestFixtures seeds one story covered by El Mostrador twice and Emol once.
func newTestFixtures(t *testing.T) *testFixtures {
	t.Helper()
	ctx := context.Background()

	st, err := storage.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := diafano.NewEngine(diafano.EngineConfig{Store: st, APISecret: testSecret, Logger: log})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	jwt, err := auth.NewJWTManager("admin-secret", "", time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	left, err := engine.IngestMedio(ctx, &diafano.MedioPayload{Nombre: "El Mostrador", Slug: "el-mostrador", SesgoPolitico: "izquierda"})
	if err != nil {
		t.Fatal(err)
	}
	right, err := engine.IngestMedio(ctx, &diafano.MedioPayload{Nombre: "Emol", Slug: "emol", SesgoPolitico: "derecha"})
	if err != nil {
		t.Fatal(err)
	}
	first := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	h, err := engine.IngestHistoria(ctx, &diafano.HistoriaPayload{
		TituloGenerado:     "Reforma de pensiones avanza",
		Categoria:          "Política",
		FechaPrimerReporte: first,
	})
	if err != nil {
		t.Fatal(err)
	}
	var noticias []int64
	for i, medio := range []int64{left.ID, left.ID, right.ID} {
		id := medio
		n, err := engine.IngestNoticia(ctx, &diafano.NoticiaPayload{
			Titulo:  "Nota " + string(rune('a'+i)),
			Link:    "https://example.cl/nota-" + string(rune('a'+i)),
			MedioID: &id,
			Fecha:   first,
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := engine.AnnotateNoticia(ctx, n.ID, &diafano.AnotacionPayload{HistoriaID: &h.ID}); err != nil {
			t.Fatal(err)
		}
		noticias = append(noticias, n.ID)
	}

	return &testFixtures{
		router:   newRouter(engine, jwt, log),
		engine:   engine,
		store:    st,
		jwt:      jwt,
		storyID:  h.ID,
		leftID:   left.ID,
		noticias: noticias,
	}
}

// request is a convenience helper for making test HTTP requests.
func request(t *testing.T, handler http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

var withSecret = map[string]string{auth.SecretHeader: testSecret, "Content-Type": "application/json"}

// --- Pages ---

func TestHandleIndex(t *testing.T) {
	tf := newTestFixtures(t)

	rr := request(t, tf.router, "GET", "/", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("index status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("content-type: got %q, want text/html", ct)
	}
	if !strings.Contains(rr.Body.String(), "Reforma de pensiones avanza") {
		t.Error("index should list the seeded story")
	}
}

func TestHandleIndex_BadFecha(t *testing.T) {
	tf := newTestFixtures(t)

	rr := request(t, tf.router, "GET", "/?fecha=ayer", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad fecha status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestHandleHistoria(t *testing.T) {
	tf := newTestFixtures(t)

	rr := request(t, tf.router, "GET", "/historia/"+itoa(tf.storyID), "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("historia status: got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Reforma de pensiones avanza", "El Mostrador", "Emol", "Izquierda 67%", "Alta Credibilidad"} {
		if !strings.Contains(body, want) {
			t.Errorf("historia page missing %q", want)
		}
	}

	if rr := request(t, tf.router, "GET", "/historia/9999", "", nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing historia: got %d", rr.Code)
	}
	if rr := request(t, tf.router, "GET", "/historia/abc", "", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("invalid id: got %d", rr.Code)
	}
}

func TestHandleBuscar(t *testing.T) {
	tf := newTestFixtures(t)

	rr := request(t, tf.router, "GET", "/buscar?q=pensiones", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("buscar status: got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Reforma de pensiones avanza") {
		t.Error("search page should list the match")
	}
}

func TestHandleBuscar_ByMedio(t *testing.T) {
	tf := newTestFixtures(t)

	rr := request(t, tf.router, "GET", "/buscar?medio="+itoa(tf.leftID), "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("buscar status: got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Reforma de pensiones avanza") {
		t.Error("outlet search should list the covered story")
	}
	if !strings.Contains(body, `<select name="medio"`) || !strings.Contains(body, "selected>El Mostrador") {
		t.Error("outlet selector should mark the chosen medio")
	}

	res, err := tf.engine.IngestMedio(context.Background(), &diafano.MedioPayload{Nombre: "La Tercera", Slug: "la-tercera"})
	if err != nil {
		t.Fatal(err)
	}
	rr = request(t, tf.router, "GET", "/buscar?medio="+itoa(res.ID), "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Sin resultados para “La Tercera”") {
		t.Errorf("outlet without coverage: %d", rr.Code)
	}
}

func TestHandlePersonaje_NotFound(t *testing.T) {
	tf := newTestFixtures(t)

	rr := request(t, tf.router, "GET", "/personaje/nadie", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("personaje status: got %d, want 404", rr.Code)
	}
}

// --- JSON reads ---

func TestAPIHistorias(t *testing.T) {
	tf := newTestFixtures(t)

	rr := request(t, tf.router, "GET", "/api/historias?tab=cobertura", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("cache-control: got %q", cc)
	}
	var page struct {
		Tab       string `json:"tab"`
		Historias []struct {
			ID            int64 `json:"id"`
			TotalNoticias int   `json:"total_noticias"`
			TotalMedios   int   `json:"total_medios"`
		} `json:"historias"`
	}
	decodeBody(t, rr, &page)
	if page.Tab != "cobertura" || len(page.Historias) != 1 {
		t.Fatalf("page: %+v", page)
	}
	if h := page.Historias[0]; h.ID != tf.storyID || h.TotalNoticias != 3 || h.TotalMedios != 2 {
		t.Errorf("story: %+v", h)
	}
}

func TestAPIHistoria(t *testing.T) {
	tf := newTestFixtures(t)

	rr := request(t, tf.router, "GET", "/api/historias/"+itoa(tf.storyID), "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var detail struct {
		Noticias []json.RawMessage `json:"noticias"`
		Analisis struct {
			Distribucion struct {
				Izquierda int `json:"izquierda"`
				Derecha   int `json:"derecha"`
			} `json:"distribucion"`
		} `json:"analisis"`
	}
	decodeBody(t, rr, &detail)
	if len(detail.Noticias) != 3 || detail.Analisis.Distribucion.Izquierda != 67 || detail.Analisis.Distribucion.Derecha != 33 {
		t.Errorf("detail: %+v", detail)
	}

	if rr := request(t, tf.router, "GET", "/api/historias/9999", "", nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing: got %d", rr.Code)
	}
}

func TestAPIMediosAndStats(t *testing.T) {
	tf := newTestFixtures(t)

	rr := request(t, tf.router, "GET", "/api/medios", "", nil)
	var medios []diafano.Medio
	decodeBody(t, rr, &medios)
	if len(medios) != 2 {
		t.Errorf("medios: %+v", medios)
	}

	rr = request(t, tf.router, "GET", "/api/stats/categories", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("stats status: got %d", rr.Code)
	}

	rr = request(t, tf.router, "GET", "/api/sesgos?fecha=hoy", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("sesgos bad fecha: got %d", rr.Code)
	}
}

func TestAPIBuscar(t *testing.T) {
	tf := newTestFixtures(t)

	rr := request(t, tf.router, "GET", "/api/buscar?q="+itoa(tf.storyID), "", nil)
	var res struct {
		Resultados []struct {
			ID int64 `json:"id"`
		} `json:"resultados"`
	}
	decodeBody(t, rr, &res)
	if len(res.Resultados) != 1 || res.Resultados[0].ID != tf.storyID {
		t.Errorf("search by id: %s", rr.Body.String())
	}
}

// --- Ingestion ---

func TestIngest_Unauthorized(t *testing.T) {
	tf := newTestFixtures(t)

	for _, path := range []string{"/api/noticias", "/api/historias", "/api/medios"} {
		rr := request(t, tf.router, "POST", path, `{}`, map[string]string{auth.SecretHeader: "wrong"})
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: got %d, want 401", path, rr.Code)
		}
		if got := strings.TrimSpace(rr.Body.String()); got != `{"error":"Unauthorized"}` {
			t.Errorf("%s body: %s", path, got)
		}
	}
}

func TestIngestNoticia_Invalid(t *testing.T) {
	tf := newTestFixtures(t)

	rr := request(t, tf.router, "POST", "/api/noticias", `{"titulo":"Sin link","link":"no es url"}`, withSecret)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
	var body struct {
		Error struct {
			Issues []diafano.Issue `json:"issues"`
		} `json:"error"`
	}
	decodeBody(t, rr, &body)
	if len(body.Error.Issues) != 1 || body.Error.Issues[0].Path != "link" {
		t.Errorf("issues: %+v", body.Error.Issues)
	}

	rr = request(t, tf.router, "POST", "/api/noticias", `{"titulo":`, withSecret)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: got %d, want 400", rr.Code)
	}
}

func TestIngestNoticia_Upsert(t *testing.T) {
	tf := newTestFixtures(t)

	payload := `{"titulo":"Cámara aprueba proyecto","link":"https://www.biobiochile.cl/x","fuente":"BioBio"}`
	var first, second diafano.IngestResult

	rr := request(t, tf.router, "POST", "/api/noticias", payload, withSecret)
	if rr.Code != http.StatusOK {
		t.Fatalf("first: %d %s", rr.Code, rr.Body.String())
	}
	decodeBody(t, rr, &first)

	rr = request(t, tf.router, "POST", "/api/noticias", strings.Replace(payload, "aprueba", "despacha", 1), withSecret)
	if rr.Code != http.StatusOK {
		t.Fatalf("second: %d %s", rr.Code, rr.Body.String())
	}
	decodeBody(t, rr, &second)

	if !first.Success || first.ID == 0 || second.ID != first.ID {
		t.Errorf("same link should keep its id: %+v %+v", first, second)
	}
}

func TestIngestHistoria_StringVector(t *testing.T) {
	tf := newTestFixtures(t)

	body := `{"id":` + itoa(tf.storyID) + `,"titulo_generado":"Reforma de pensiones se vota","vector_centro":"[0.1, 0.2]"}`
	rr := request(t, tf.router, "POST", "/api/historias", body, withSecret)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d %s", rr.Code, rr.Body.String())
	}
	var res diafano.IngestResult
	decodeBody(t, rr, &res)
	if res.ID != tf.storyID {
		t.Errorf("update should keep id %d, got %d", tf.storyID, res.ID)
	}
}

func TestIngestMedio(t *testing.T) {
	tf := newTestFixtures(t)

	rr := request(t, tf.router, "POST", "/api/medios", `{"nombre":"La Tercera","slug":"la-tercera","sesgo_politico":"centro-derecha"}`, withSecret)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d %s", rr.Code, rr.Body.String())
	}
	var res diafano.IngestResult
	decodeBody(t, rr, &res)
	if !res.Success || res.Medio != "La Tercera" {
		t.Errorf("result: %+v", res)
	}
}

func TestAnnotateNoticia(t *testing.T) {
	tf := newTestFixtures(t)

	path := func(id int64) string { return "/api/noticias/" + itoa(id) + "/anotar" }
	body := `{"sesgo_ia":"Centro-Derecha","tono_ia":"negativo","personajes":[{"nombre":"Camila Rojas","sentimiento":"negativo"}]}`

	if rr := request(t, tf.router, "POST", path(tf.noticias[0]), body, nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("no secret: got %d, want 401", rr.Code)
	}
	if rr := request(t, tf.router, "POST", "/api/noticias/abc/anotar", body, withSecret); rr.Code != http.StatusBadRequest {
		t.Errorf("bad id: got %d, want 400", rr.Code)
	}
	if rr := request(t, tf.router, "POST", path(9999), body, withSecret); rr.Code != http.StatusNotFound {
		t.Errorf("unknown noticia: got %d, want 404", rr.Code)
	}
	if rr := request(t, tf.router, "POST", path(tf.noticias[0]), `{"personajes":[{"sentimiento":"positivo"}]}`, withSecret); rr.Code != http.StatusBadRequest {
		t.Errorf("personaje without nombre: got %d, want 400", rr.Code)
	} else if !strings.Contains(rr.Body.String(), "personajes[0].nombre") {
		t.Errorf("issue path: %s", rr.Body.String())
	}

	for _, id := range tf.noticias {
		rr := request(t, tf.router, "POST", path(id), body, withSecret)
		if rr.Code != http.StatusOK {
			t.Fatalf("anotar %d: %d %s", id, rr.Code, rr.Body.String())
		}
		var res diafano.IngestResult
		decodeBody(t, rr, &res)
		if !res.Success || res.ID != id || res.Personajes != 1 {
			t.Errorf("result: %+v", res)
		}
	}

	// Three mentions put the candidate in the review queue.
	admin, _ := tf.jwt.Sign("admin@eldiafano.cl", auth.RoleAdmin)
	rr := request(t, tf.router, "GET", "/api/admin/personajes", "", map[string]string{"Authorization": "Bearer " + admin})
	var pending []diafano.Personaje
	decodeBody(t, rr, &pending)
	if len(pending) != 1 || pending[0].Slug != "camila-rojas" || pending[0].Negativas != 3 {
		t.Errorf("pending: %+v", pending)
	}

	detail, err := tf.engine.Story(context.Background(), tf.storyID)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range detail.Noticias {
		if n.Sesgo != "centro_derecha" {
			t.Errorf("noticia %d sesgo: %q", n.ID, n.Sesgo)
		}
	}
}

// --- Admin ---

func TestAdminPersonajes(t *testing.T) {
	tf := newTestFixtures(t)

	rr := request(t, tf.router, "GET", "/api/admin/personajes", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: got %d, want 401", rr.Code)
	}

	editor, _ := tf.jwt.Sign("editor@eldiafano.cl", auth.RoleEditor)
	rr = request(t, tf.router, "GET", "/api/admin/personajes", "", map[string]string{"Authorization": "Bearer " + editor})
	if rr.Code != http.StatusForbidden {
		t.Errorf("editor token: got %d, want 403", rr.Code)
	}

	admin, _ := tf.jwt.Sign("admin@eldiafano.cl", auth.RoleAdmin)
	bearer := map[string]string{"Authorization": "Bearer " + admin}

	rr = request(t, tf.router, "GET", "/api/admin/personajes", "", bearer)
	if rr.Code != http.StatusOK {
		t.Errorf("admin list: got %d", rr.Code)
	}

	rr = request(t, tf.router, "POST", "/api/admin/personajes/9999/aprobar", "", bearer)
	if rr.Code != http.StatusNotFound {
		t.Errorf("approve missing: got %d, want 404", rr.Code)
	}
}

func TestAdminPersonajes_ApproveFlow(t *testing.T) {
	tf := newTestFixtures(t)
	ctx := context.Background()

	id, err := tf.store.UpsertPersonaje(ctx, &storage.Personaje{Name: "Camila Rojas", Slug: "camila-rojas", Pending: true})
	if err != nil {
		t.Fatal(err)
	}

	admin, _ := tf.jwt.Sign("admin@eldiafano.cl", auth.RoleAdmin)
	bearer := map[string]string{"Authorization": "Bearer " + admin}

	rr := request(t, tf.router, "POST", "/api/admin/personajes/"+itoa(id)+"/aprobar", `{"cargo":"Diputada"}`, bearer)
	if rr.Code != http.StatusOK {
		t.Fatalf("approve: %d %s", rr.Code, rr.Body.String())
	}

	rr = request(t, tf.router, "GET", "/personaje/camila-rojas", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("personaje page: got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Diputada") {
		t.Error("approved cargo should be shown")
	}

	rr = request(t, tf.router, "POST", "/api/admin/personajes/"+itoa(id)+"/rechazar", "", bearer)
	if rr.Code != http.StatusOK {
		t.Errorf("reject: got %d", rr.Code)
	}
	if rr := request(t, tf.router, "GET", "/personaje/camila-rojas", "", nil); rr.Code != http.StatusNotFound {
		t.Errorf("rejected personaje page: got %d, want 404", rr.Code)
	}
}

// --- Helpers ---

func TestFormatDate(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Time{}, ""},
		{now.Add(-30 * time.Second), "recién"},
		{now.Add(-5 * time.Minute), "hace 5 min"},
		{now.Add(-3 * time.Hour), "hace 3 h"},
		{now.Add(-50 * time.Hour), "hace 2 d"},
		{now.Add(-10 * 24 * time.Hour), "30/04/2026"},
	}
	for _, tt := range tests {
		if got := formatDate(tt.t, now); got != tt.want {
			t.Errorf("formatDate(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
