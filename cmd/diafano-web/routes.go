package main

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"

	diafano "github.com/eldiafano/diafano"
	"github.com/eldiafano/diafano/internal/auth"
)

//go:embed templates static
var embedded embed.FS

// newRouter sets up all routes using Go 1.22+ enhanced routing. A nil jwt
// leaves the admin API unmounted.
func newRouter(engine *diafano.Engine, jwt *auth.JWTManager, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Static files
	staticFS, _ := fs.Sub(embedded, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	h := &handlers{engine: engine, log: log}

	// Full-page routes
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /historia/{id}", h.handleHistoria)
	mux.HandleFunc("GET /buscar", h.handleBuscar)
	mux.HandleFunc("GET /personaje/{slug}", h.handlePersonaje)

	// JSON reads
	mux.Handle("GET /api/historias", noStore(http.HandlerFunc(h.apiHistorias)))
	mux.Handle("GET /api/historias/{id}", noStore(http.HandlerFunc(h.apiHistoria)))
	mux.Handle("GET /api/stats/categories", noStore(http.HandlerFunc(h.apiCategoryStats)))
	mux.Handle("GET /api/sesgos", noStore(http.HandlerFunc(h.apiDailyBias)))
	mux.Handle("GET /api/buscar", noStore(http.HandlerFunc(h.apiBuscar)))
	mux.Handle("GET /api/medios", noStore(http.HandlerFunc(h.apiMedios)))
	mux.Handle("GET /api/personajes", noStore(http.HandlerFunc(h.apiPersonajes)))

	// Ingestion, guarded by x-api-secret
	mux.HandleFunc("POST /api/noticias", h.apiIngestNoticia)
	mux.HandleFunc("POST /api/noticias/{id}/anotar", h.apiAnnotateNoticia)
	mux.HandleFunc("POST /api/historias", h.apiIngestHistoria)
	mux.HandleFunc("POST /api/medios", h.apiIngestMedio)

	// Personaje review, guarded by an admin bearer token
	if jwt != nil {
		mux.Handle("GET /api/admin/personajes", jwt.RequireRole(auth.RoleAdmin, http.HandlerFunc(h.apiPendingPersonajes)))
		mux.Handle("POST /api/admin/personajes/{id}/aprobar", jwt.RequireRole(auth.RoleAdmin, http.HandlerFunc(h.apiApprovePersonaje)))
		mux.Handle("POST /api/admin/personajes/{id}/rechazar", jwt.RequireRole(auth.RoleAdmin, http.HandlerFunc(h.apiRejectPersonaje)))
	}

	return mux
}
