package diafano

import (
	"log/slog"
	"time"

	embedding "github.com/matthewjhunter/go-embedding"

	"github.com/eldiafano/diafano/internal/bias"
	"github.com/eldiafano/diafano/internal/ranking"
	"github.com/eldiafano/diafano/internal/sentiment"
	"github.com/eldiafano/diafano/internal/storage"
	"github.com/eldiafano/diafano/internal/story"
)

// EngineConfig configures the El Diáfano content engine. Store is required.
type EngineConfig struct {
	Store             storage.Store
	Embedder          embedding.Embedder // nil disables semantic search
	APISecret         string             // x-api-secret for the write endpoints
	SearchLimit       int
	SemanticThreshold float64
	FeedRPS           float64 // feed requests per second; <= 0 is unlimited
	Logger            *slog.Logger
	Now               func() time.Time
}

// Story is the normalized historia every view consumes.
type Story = story.Story

// FrontPage is the ranked feed for one tab and day.
type FrontPage struct {
	Tab        ranking.Tab  `json:"tab"`
	Fecha      string       `json:"fecha,omitempty"` // archive day, empty for the live feed
	Stories    []Story      `json:"historias"`
	Columns    ranking.Feed `json:"portada"`
	LastUpdate *time.Time   `json:"ultima_actualizacion,omitempty"`
}

// Noticia is an article as shown under a story.
type Noticia struct {
	ID      int64     `json:"id"`
	Titulo  string    `json:"titulo"`
	Link    string    `json:"link"`
	Fuente  string    `json:"fuente"`
	Medio   string    `json:"medio,omitempty"`
	MedioID *int64    `json:"medio_id,omitempty"`
	Resumen string    `json:"resumen_ia,omitempty"`
	Sesgo   string    `json:"sesgo_ia,omitempty"`
	Tono    string    `json:"tono_ia,omitempty"`
	Imagen  string    `json:"imagen_url,omitempty"`
	Fecha   time.Time `json:"fecha"`
}

// StoryDetail is one story with its articles and the coverage analysis of
// the outlets behind them.
type StoryDetail struct {
	Story    Story          `json:"historia"`
	Noticias []Noticia      `json:"noticias"`
	Medios   []story.Outlet `json:"medios"`
	Analysis bias.Analysis  `json:"analisis"`
	Summary  bias.Summary   `json:"resumen_cobertura"`
}

// Medio is a registered outlet.
type Medio struct {
	ID               int64   `json:"id"`
	Nombre           string  `json:"nombre"`
	Slug             string  `json:"slug"`
	SesgoPolitico    string  `json:"sesgo_politico,omitempty"`
	LineaEditorial   string  `json:"linea_editorial,omitempty"`
	GrupoEmpresarial string  `json:"grupo_empresarial,omitempty"`
	SitioWeb         *string `json:"sitio_web"`
	LogoURL          *string `json:"logo_url"`
	FeedURL          string  `json:"feed_url,omitempty"`
}

// Personaje is a public figure tracked across coverage.
type Personaje struct {
	ID             int64      `json:"id"`
	Nombre         string     `json:"nombre"`
	Slug           string     `json:"slug"`
	Cargo          string     `json:"cargo,omitempty"`
	Partido        string     `json:"partido,omitempty"`
	Bio            string     `json:"bio,omitempty"`
	FotoURL        *string    `json:"foto_url"`
	Menciones      int        `json:"menciones"`
	Positivas      int        `json:"menciones_positivas"`
	Neutrales      int        `json:"menciones_neutrales"`
	Negativas      int        `json:"menciones_negativas"`
	Pendiente      bool       `json:"pendiente"`
	Activo         bool       `json:"activo"`
	PrimeraMencion *time.Time `json:"primera_mencion,omitempty"`
	UltimaMencion  *time.Time `json:"ultima_mencion,omitempty"`
}

// PersonajeCoverage is how outlets covered one personaje.
type PersonajeCoverage struct {
	Personaje Personaje                  `json:"personaje"`
	Medios    []sentiment.OutletCoverage `json:"medios"`
	Totales   sentiment.Counts           `json:"totales"`
	Timeline  []sentiment.Day            `json:"timeline"`
	Nota      *float64                   `json:"nota"`
	Etiqueta  string                     `json:"etiqueta"`
}

// Approval is a reviewer's overrides when activating a personaje. Nil
// fields keep the stored value.
type Approval = storage.Approval

// IngestResult is the body returned by a successful write.
type IngestResult struct {
	Success bool   `json:"success"`
	ID      int64  `json:"id"`
	Medio   string `json:"medio,omitempty"`

	Personajes int `json:"personajes,omitempty"`
}

// --- internal type conversion helpers ---

func medioFromInternal(o storage.Outlet) Medio {
	return Medio{
		ID:               o.ID,
		Nombre:           o.Name,
		Slug:             o.Slug,
		SesgoPolitico:    o.Leaning,
		LineaEditorial:   o.EditorialLine,
		GrupoEmpresarial: o.Group,
		SitioWeb:         o.Website,
		LogoURL:          o.LogoURL,
		FeedURL:          o.FeedURL,
	}
}

func mediosFromInternal(oo []storage.Outlet) []Medio {
	out := make([]Medio, len(oo))
	for i, o := range oo {
		out[i] = medioFromInternal(o)
	}
	return out
}

func noticiaFromInternal(a storage.Article) Noticia {
	return Noticia{
		ID:      a.ID,
		Titulo:  a.Title,
		Link:    a.Link,
		Fuente:  a.Source,
		Medio:   a.OutletName,
		MedioID: a.OutletID,
		Resumen: a.Summary,
		Sesgo:   a.Bias,
		Tono:    a.Tone,
		Imagen:  a.ImageURL,
		Fecha:   a.Date,
	}
}

func personajeFromInternal(p storage.Personaje) Personaje {
	return Personaje{
		ID:             p.ID,
		Nombre:         p.Name,
		Slug:           p.Slug,
		Cargo:          p.Role,
		Partido:        p.Party,
		Bio:            p.Bio,
		FotoURL:        p.PhotoURL,
		Menciones:      p.Mentions,
		Positivas:      p.Positive,
		Neutrales:      p.Neutral,
		Negativas:      p.Negative,
		Pendiente:      p.Pending,
		Activo:         p.Active,
		PrimeraMencion: p.FirstMention,
		UltimaMencion:  p.LastMention,
	}
}

func personajesFromInternal(pp []storage.Personaje) []Personaje {
	out := make([]Personaje, len(pp))
	for i, p := range pp {
		out[i] = personajeFromInternal(p)
	}
	return out
}
