package diafano

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	embedding "github.com/matthewjhunter/go-embedding"

	"github.com/eldiafano/diafano/internal/ai"
	"github.com/eldiafano/diafano/internal/auth"
	"github.com/eldiafano/diafano/internal/bias"
	"github.com/eldiafano/diafano/internal/config"
	"github.com/eldiafano/diafano/internal/feeds"
	"github.com/eldiafano/diafano/internal/ranking"
	"github.com/eldiafano/diafano/internal/search"
	"github.com/eldiafano/diafano/internal/sentiment"
	"github.com/eldiafano/diafano/internal/storage"
	"github.com/eldiafano/diafano/internal/story"
)

// Read window of the live feed and of an archived day.
const (
	FeedDaysBack      = 2
	FeedLimit         = 100
	ArchiveLimit      = 100
	CategoryStatsDays = 7
	// MinPendingMentions is how often a candidate must be named before review.
	MinPendingMentions = 3
)

// DayLayout is the format of the fecha query parameter.
const DayLayout = "2006-01-02"

// Engine is the public API of the El Diáfano core: ranked feeds, story
// coverage analysis, search, personaje tracking and the write endpoints.
type Engine struct {
	store   storage.Store
	search  *search.Dispatcher
	fetcher *feeds.Fetcher
	secret  string
	log     *slog.Logger
	now     func() time.Time
}

// NewEngine wraps an opened store. The engine owns the store from here on.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("diafano: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	opts := []search.Option{
		search.WithLimit(cfg.SearchLimit),
		search.WithLogger(cfg.Logger),
	}
	if cfg.Embedder != nil {
		opts = append(opts, search.WithEmbedder(cfg.Embedder, cfg.SemanticThreshold))
	}

	return &Engine{
		store:   cfg.Store,
		search:  search.New(cfg.Store, opts...),
		fetcher: feeds.NewFetcher(cfg.Store, cfg.FeedRPS, cfg.Logger),
		secret:  cfg.APISecret,
		log:     cfg.Logger,
		now:     cfg.Now,
	}, nil
}

// Open builds the store and embedder described by cfg and returns an engine
// over them. Postgres runs on a pgx pool sized by database.max_conns.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var embedder embedding.Embedder
	if cfg.Ollama.EmbedModel != "" {
		e, err := ai.NewOllamaEmbedder(cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		embedder = e
	}

	return NewEngine(EngineConfig{
		Store:             store,
		Embedder:          embedder,
		APISecret:         cfg.API.Secret,
		SearchLimit:       cfg.Search.Limit,
		SemanticThreshold: cfg.Search.SemanticThreshold,
		FeedRPS:           cfg.Feeds.RPS,
		Logger:            logger,
	})
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := storage.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return storage.NewPostgresStore(pool), nil
	case config.DriverSQLite:
		s, err := storage.NewSQLiteStore(ctx, cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}

// Migrate creates any missing tables.
func (e *Engine) Migrate(ctx context.Context) error {
	return e.store.Init(ctx)
}

// Close releases the store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// --- read path ---

// ParseDay reads a YYYY-MM-DD archive day as UTC midnight.
func ParseDay(fecha string) (time.Time, error) {
	day, err := time.Parse(DayLayout, fecha)
	if err != nil {
		return time.Time{}, &ValidationError{Issues: []Issue{{
			Path: "fecha", Code: "invalid_date", Message: "debe tener formato AAAA-MM-DD",
		}}}
	}
	return day, nil
}

// Stories returns the feed for a tab. Without fecha it reads the last
// FeedDaysBack days with aggregated bias counts and drops stories dated in
// the future; with fecha it reads that archived UTC day.
func (e *Engine) Stories(ctx context.Context, tab ranking.Tab, fecha string) (*FrontPage, error) {
	now := e.now()

	var stories []Story
	if fecha == "" {
		rows, err := e.store.StoriesWithBias(ctx, FeedDaysBack, FeedLimit)
		if err != nil {
			return nil, fmt.Errorf("stories with bias: %w", err)
		}
		stories = story.FilterFuture(story.NormalizeRPC(rows), now)
	} else {
		day, err := ParseDay(fecha)
		if err != nil {
			return nil, err
		}
		rows, err := e.store.ArchiveStories(ctx, day, ArchiveLimit)
		if err != nil {
			return nil, fmt.Errorf("archive %s: %w", fecha, err)
		}
		stories = story.NormalizeArchive(rows)
	}
	stories = ranking.Dedupe(stories)

	page := &FrontPage{
		Tab:     tab,
		Fecha:   fecha,
		Stories: ranking.RankAt(stories, tab, now),
		Columns: ranking.PrepareFeedAt(stories, tab, now),
	}
	if last, err := e.store.LastUpdate(ctx); err != nil {
		e.log.Warn("last update", "err", err)
	} else if !last.IsZero() {
		page.LastUpdate = &last
	}
	return page, nil
}

// Story returns one story with its articles, outlets and coverage analysis.
// Outlet leanings registered in the medios table take precedence over the
// built-in table.
func (e *Engine) Story(ctx context.Context, id int64) (*StoryDetail, error) {
	row, err := e.store.StoryByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("historia %d: %w", id, err)
	}
	articles, err := e.store.StoryArticles(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("historia %d noticias: %w", id, err)
	}
	outlets, err := e.store.StoryOutlets(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("historia %d medios: %w", id, err)
	}

	s := story.Normalize(*row)
	if s.ArticleCount == 0 {
		s.ArticleCount = len(articles)
	}
	s.OutletCount = len(outlets)
	s.Outlets = outlets

	names := make([]string, 0, len(articles))
	noticias := make([]Noticia, len(articles))
	for i, a := range articles {
		noticias[i] = noticiaFromInternal(a)
		name := a.OutletName
		if name == "" {
			name = a.Source
		}
		names = append(names, name)
	}

	c := e.classifier(ctx)
	return &StoryDetail{
		Story:    s,
		Noticias: noticias,
		Medios:   outlets,
		Analysis: c.Analyze(names),
		Summary:  c.Summarize(names),
	}, nil
}

// classifier extends the built-in outlet table with the medios table. A
// failed read falls back to the built-in table.
func (e *Engine) classifier(ctx context.Context) *bias.Classifier {
	outlets, err := e.store.ListOutlets(ctx)
	if err != nil {
		e.log.Warn("list medios for classifier", "err", err)
		return bias.Default()
	}
	extra := make([]bias.Classification, 0, len(outlets))
	for _, o := range outlets {
		if o.Leaning == "" {
			continue
		}
		known := bias.Classify(o.Name)
		desc := o.EditorialLine
		if desc == "" {
			desc = known.Description
		}
		extra = append(extra, bias.Classification{
			Name:        o.Name,
			Leaning:     o.Leaning,
			Credibility: known.Credibility,
			Description: desc,
		})
	}
	return bias.NewClassifier(extra)
}

// ClassifyMedio reports the leaning and credibility of an outlet name.
func (e *Engine) ClassifyMedio(ctx context.Context, name string) bias.Classification {
	return e.classifier(ctx).Classify(name)
}

// Search runs the unified query: story id, then title, summary and tags.
// limit <= 0 uses the configured search limit.
func (e *Engine) Search(ctx context.Context, query string, limit int) search.Result {
	return e.search.SearchLimit(ctx, query, limit)
}

// SearchByOutlet lists stories an outlet covered.
func (e *Engine) SearchByOutlet(ctx context.Context, medioID int64, limit int) search.Result {
	return e.search.ByOutlet(ctx, medioID, limit)
}

// SemanticSearch matches the query against story centroids.
func (e *Engine) SemanticSearch(ctx context.Context, query string, limit int) search.Result {
	return e.search.Semantic(ctx, query, limit)
}

// ActiveDates lists the most recent days that have stories, newest first.
func (e *Engine) ActiveDates(ctx context.Context, limit int) ([]string, error) {
	return e.store.ActiveDates(ctx, limit)
}

// CategoryStats counts stories and articles per category over the last week.
func (e *Engine) CategoryStats(ctx context.Context) ([]storage.CategoryStat, error) {
	since := e.now().AddDate(0, 0, -CategoryStatsDays)
	return e.store.CategoryStats(ctx, since)
}

// DailyBias counts article bias labels for a day; empty fecha is today (UTC).
func (e *Engine) DailyBias(ctx context.Context, fecha string) (map[string]int, error) {
	day := e.now().UTC()
	if fecha != "" {
		d, err := ParseDay(fecha)
		if err != nil {
			return nil, err
		}
		day = d
	}
	labels, err := e.store.DailyBiasLabels(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("daily bias: %w", err)
	}
	return bias.DailyBias(labels), nil
}

// Medios lists registered outlets.
func (e *Engine) Medios(ctx context.Context) ([]Medio, error) {
	outlets, err := e.store.ListOutlets(ctx)
	if err != nil {
		return nil, err
	}
	return mediosFromInternal(outlets), nil
}

// --- personajes ---

// TopPersonajes lists active personajes, most mentioned first.
func (e *Engine) TopPersonajes(ctx context.Context, limit int) ([]Personaje, error) {
	pp, err := e.store.TopPersonajes(ctx, limit)
	if err != nil {
		return nil, err
	}
	return personajesFromInternal(pp), nil
}

// PersonajeCoverage tallies how each outlet covered an active personaje and
// grades the last week. days limits the timeline (sentiment.AllDays keeps it all).
func (e *Engine) PersonajeCoverage(ctx context.Context, slug string, days int) (*PersonajeCoverage, error) {
	p, err := e.store.PersonajeBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("personaje %s: %w", slug, err)
	}
	mentions, err := e.store.PersonajeMentions(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("personaje %s menciones: %w", slug, err)
	}

	outlets := sentiment.ByOutlet(mentions)
	timeline := sentiment.Timeline(mentions)
	nota := sentiment.Reputation(timeline)
	if days <= 0 {
		days = sentiment.Month
	}
	return &PersonajeCoverage{
		Personaje: personajeFromInternal(*p),
		Medios:    outlets,
		Totales:   sentiment.Totals(outlets),
		Timeline:  sentiment.Window(timeline, days),
		Nota:      nota,
		Etiqueta:  sentiment.Label(nota),
	}, nil
}

// PendingPersonajes lists candidates awaiting review.
func (e *Engine) PendingPersonajes(ctx context.Context) ([]Personaje, error) {
	pp, err := e.store.PendingPersonajes(ctx, MinPendingMentions)
	if err != nil {
		return nil, err
	}
	return personajesFromInternal(pp), nil
}

// ApprovePersonaje activates a candidate with optional overrides.
func (e *Engine) ApprovePersonaje(ctx context.Context, id int64, a Approval) error {
	if err := e.store.ApprovePersonaje(ctx, id, a); err != nil {
		return fmt.Errorf("approve personaje %d: %w", id, err)
	}
	e.log.Info("personaje approved", "id", id)
	return nil
}

// RejectPersonaje drops a candidate from the review queue.
func (e *Engine) RejectPersonaje(ctx context.Context, id int64) error {
	if err := e.store.RejectPersonaje(ctx, id); err != nil {
		return fmt.Errorf("reject personaje %d: %w", id, err)
	}
	e.log.Info("personaje rejected", "id", id)
	return nil
}

// --- write path ---

// CheckSecret verifies the x-api-secret header value. An engine configured
// without a secret rejects every write.
func (e *Engine) CheckSecret(got string) error {
	if !auth.SecretMatches(e.secret, got) {
		return &AuthError{}
	}
	return nil
}

func (e *Engine) dbError(op string, err error) error {
	e.log.Error(op, "err", err)
	return &DatabaseError{Op: op, Err: err}
}

// IngestNoticia upserts an article keyed on its link. A missing fecha is
// now; the article enters the pipeline as pendiente.
func (e *Engine) IngestNoticia(ctx context.Context, p *NoticiaPayload) (*IngestResult, error) {
	a := &storage.Article{
		Title:     p.Titulo,
		Link:      p.Link,
		Content:   p.Content,
		Source:    p.Fuente,
		OutletID:  p.MedioID,
		ImageURL:  p.ImagenURL,
		Status:    storage.StatusPending,
		Date:      parseDate(p.Fecha, e.now().UTC()),
		Embedding: p.Embedding,
	}
	id, err := e.store.UpsertArticle(ctx, a)
	if err != nil {
		return nil, e.dbError("upsert noticia", err)
	}
	return &IngestResult{Success: true, ID: id}, nil
}

// IngestHistoria creates a story, or updates it in place when the payload
// carries an id.
func (e *Engine) IngestHistoria(ctx context.Context, p *HistoriaPayload) (*IngestResult, error) {
	in := &storage.StoryInput{
		ID:          p.ID,
		Title:       p.TituloGenerado,
		Summary:     p.Resumen,
		Category:    p.Categoria,
		Relevance:   p.PesoRelevancia,
		Tags:        p.Tags,
		FirstReport: parseDate(p.FechaPrimerReporte, e.now().UTC()),
		Centroid:    []float32(p.VectorCentro),
	}
	id, err := e.store.UpsertStory(ctx, in)
	if err != nil {
		return nil, e.dbError("upsert historia", err)
	}
	return &IngestResult{Success: true, ID: id}, nil
}

// IngestMedio upserts an outlet keyed on its slug.
func (e *Engine) IngestMedio(ctx context.Context, p *MedioPayload) (*IngestResult, error) {
	o := &storage.Outlet{
		Name:          p.Nombre,
		Slug:          p.Slug,
		Leaning:       p.SesgoPolitico,
		EditorialLine: p.LineaEditorial,
		Group:         p.GrupoEmpresarial,
		Website:       p.SitioWeb,
		LogoURL:       p.LogoURL,
		FeedURL:       p.FeedURL,
	}
	id, err := e.store.UpsertOutlet(ctx, o)
	if err != nil {
		return nil, e.dbError("upsert medio", err)
	}
	return &IngestResult{Success: true, ID: id, Medio: p.Nombre}, nil
}

// AnnotateNoticia stores the pipeline's analysis of an article and marks it
// procesado. Mentioned figures are registered as pending candidates and
// linked to the article once each.
func (e *Engine) AnnotateNoticia(ctx context.Context, id int64, p *AnotacionPayload) (*IngestResult, error) {
	if p.HistoriaID != nil {
		if _, err := e.store.StoryByID(ctx, *p.HistoriaID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("historia %d: %w", *p.HistoriaID, err)
			}
			return nil, e.dbError("lookup historia", err)
		}
	}

	ann := storage.ArticleAnnotation{StoryID: p.HistoriaID, Summary: p.Resumen, Bias: p.Sesgo, Tone: p.Tono}
	if err := e.store.AnnotateArticle(ctx, id, ann); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("noticia %d: %w", id, err)
		}
		return nil, e.dbError("annotate noticia", err)
	}

	linked := 0
	for _, m := range p.Personajes {
		slug := m.Slug
		if slug == "" {
			slug = story.Slug(m.Nombre)
		}
		if slug == "" {
			continue
		}
		pid, err := e.store.UpsertPersonaje(ctx, &storage.Personaje{Name: m.Nombre, Slug: slug, Pending: true})
		if err != nil {
			return nil, e.dbError("upsert personaje", err)
		}
		if err := e.store.AddMention(ctx, pid, id, m.Sentimiento); err != nil {
			return nil, e.dbError("add mencion", err)
		}
		linked++
	}
	return &IngestResult{Success: true, ID: id, Personajes: linked}, nil
}

// --- ingestion ---

// FetchFeeds pulls every outlet with a feed URL and stores new items as
// pending noticias.
func (e *Engine) FetchFeeds(ctx context.Context) (*feeds.Stats, error) {
	return e.fetcher.FetchAll(ctx)
}

// ImportOPML registers the outlets listed in an OPML file.
func (e *Engine) ImportOPML(ctx context.Context, path string) (int, error) {
	return e.fetcher.ImportOPML(ctx, path)
}
