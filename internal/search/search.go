// Package search resolves a free-text query into stories: exact id first,
// then title/summary and tag matches in parallel, each result enriched with
// the outlets that covered it.
package search

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	embedding "github.com/matthewjhunter/go-embedding"
	"golang.org/x/sync/errgroup"

	"github.com/eldiafano/diafano/internal/storage"
	"github.com/eldiafano/diafano/internal/story"
)

// Match types reported with every result.
const (
	MatchNone     = ""
	MatchID       = "id"
	MatchText     = "texto"
	MatchEmpty    = "sin_resultados"
	MatchOutlet   = "medio"
	MatchSemantic = "semantica"
)

const (
	DefaultLimit     = 20
	DefaultThreshold = 0.5
	// MinQueryLen is the shortest query worth a text search.
	MinQueryLen = 2
	// SuggestBelow is the result count under which semantic search is offered.
	SuggestBelow = 3
	// enrichWorkers bounds concurrent outlet lookups.
	enrichWorkers = 8
)

// Backend is the part of storage.Store the dispatcher reads.
type Backend interface {
	StoryByID(ctx context.Context, id int64) (*story.ArchiveRow, error)
	StoriesByIDs(ctx context.Context, ids []int64) ([]story.ArchiveRow, error)
	StoryOutlets(ctx context.Context, storyID int64) ([]story.Outlet, error)
	SearchStoriesText(ctx context.Context, query string, limit int) ([]story.ArchiveRow, error)
	SearchStoriesTag(ctx context.Context, tag string, limit int) ([]story.ArchiveRow, error)
	StoryIDsByOutlet(ctx context.Context, outletID int64, limit int) ([]int64, error)
	MatchStories(ctx context.Context, emb []float32, threshold float64, limit int) ([]storage.StoryMatch, error)
}

// Result is what every search path returns. Similarity is filled only by
// Semantic and runs parallel to Results.
type Result struct {
	Results         []story.Story `json:"resultados"`
	MatchType       string        `json:"tipo"`
	Query           string        `json:"query"`
	SuggestSemantic bool          `json:"sugerir_semantica,omitempty"`
	Similarity      []float64     `json:"similitud,omitempty"`
}

type Dispatcher struct {
	backend   Backend
	embedder  embedding.Embedder
	limit     int
	threshold float64
	log       *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLimit caps every result list. Non-positive values keep the default.
func WithLimit(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.limit = n
		}
	}
}

// WithEmbedder enables Semantic with the given similarity threshold.
func WithEmbedder(e embedding.Embedder, threshold float64) Option {
	return func(d *Dispatcher) {
		d.embedder = e
		if threshold > 0 {
			d.threshold = threshold
		}
	}
}

// WithLogger sets the logger used for degraded backend calls.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

func New(backend Backend, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		backend:   backend,
		limit:     DefaultLimit,
		threshold: DefaultThreshold,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	d.log = d.log.With("component", "search")
	return d
}

// Limit is the effective result cap.
func (d *Dispatcher) Limit() int { return d.limit }

// Search runs the unified query. Backend failures are logged and produce
// fewer or no results, never an error.
func (d *Dispatcher) Search(ctx context.Context, query string) Result {
	return d.SearchLimit(ctx, query, 0)
}

// SearchLimit is Search capped at limit text matches. limit <= 0 uses the
// dispatcher's limit.
func (d *Dispatcher) SearchLimit(ctx context.Context, query string, limit int) Result {
	if limit <= 0 {
		limit = d.limit
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return Result{Results: []story.Story{}, MatchType: MatchNone, Query: q}
	}

	if isDigits(q) {
		if s, ok := d.byID(ctx, q); ok {
			return Result{Results: []story.Story{s}, MatchType: MatchID, Query: q}
		}
	}

	results := d.byText(ctx, q, limit)
	matchType := MatchText
	if len(results) == 0 {
		matchType = MatchEmpty
	}
	return Result{
		Results:         results,
		MatchType:       matchType,
		Query:           q,
		SuggestSemantic: len(results) < SuggestBelow,
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func (d *Dispatcher) byID(ctx context.Context, q string) (story.Story, bool) {
	id, err := strconv.ParseInt(q, 10, 64)
	if err != nil {
		return story.Story{}, false
	}
	row, err := d.backend.StoryByID(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			d.log.Error("search: id lookup", "id", id, "err", err)
		}
		return story.Story{}, false
	}
	enriched := d.enrich(ctx, []story.ArchiveRow{*row})
	return enriched[0], true
}

func (d *Dispatcher) byText(ctx context.Context, q string, limit int) []story.Story {
	if len([]rune(q)) < MinQueryLen {
		return []story.Story{}
	}

	var byTitle, byTag []story.ArchiveRow
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := d.backend.SearchStoriesText(gctx, q, limit)
		if err != nil {
			d.log.Warn("search: text query", "query", q, "err", err)
			return nil
		}
		byTitle = rows
		return nil
	})
	g.Go(func() error {
		rows, err := d.backend.SearchStoriesTag(gctx, strings.ToLower(q), limit)
		if err != nil {
			d.log.Warn("search: tag query", "query", q, "err", err)
			return nil
		}
		byTag = rows
		return nil
	})
	_ = g.Wait()

	return d.enrich(ctx, union(limit, byTitle, byTag))
}

// union concatenates the lists, keeps the first row per id and caps at limit.
func union(limit int, lists ...[]story.ArchiveRow) []story.ArchiveRow {
	seen := map[int64]struct{}{}
	out := []story.ArchiveRow{}
	for _, list := range lists {
		for _, r := range list {
			if _, ok := seen[r.ID]; ok {
				continue
			}
			seen[r.ID] = struct{}{}
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ByOutlet lists stories covered by one outlet, most relevant first. It
// scans three article rows per wanted story to survive repeats.
func (d *Dispatcher) ByOutlet(ctx context.Context, outletID int64, limit int) Result {
	if limit <= 0 {
		limit = d.limit
	}
	q := strconv.FormatInt(outletID, 10)
	empty := Result{Results: []story.Story{}, MatchType: MatchEmpty, Query: q}

	ids, err := d.backend.StoryIDsByOutlet(ctx, outletID, limit*3)
	if err != nil {
		d.log.Error("search: outlet story ids", "medio", outletID, "err", err)
		return empty
	}
	ids = uniqueIDs(ids, limit)
	if len(ids) == 0 {
		return empty
	}

	rows, err := d.backend.StoriesByIDs(ctx, ids)
	if err != nil {
		d.log.Error("search: outlet stories", "medio", outletID, "err", err)
		return empty
	}
	results := d.enrich(ctx, rows)
	if len(results) == 0 {
		return empty
	}
	return Result{Results: results, MatchType: MatchOutlet, Query: q}
}

func uniqueIDs(ids []int64, limit int) []int64 {
	seen := map[int64]struct{}{}
	out := []int64{}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Semantic embeds the query and returns stories whose centroid is at least
// the configured threshold similar. Without an embedder it returns nothing.
func (d *Dispatcher) Semantic(ctx context.Context, query string, limit int) Result {
	q := strings.TrimSpace(query)
	res := Result{Results: []story.Story{}, MatchType: MatchEmpty, Query: q}
	if d.embedder == nil || q == "" {
		return res
	}
	if limit <= 0 {
		limit = d.limit
	}

	vec, err := embedding.Single(ctx, d.embedder, q)
	if err != nil {
		d.log.Warn("search: embed query", "model", d.embedder.Model(), "err", err)
		return res
	}
	matches, err := d.backend.MatchStories(ctx, vec, d.threshold, limit)
	if err != nil {
		d.log.Warn("search: match stories", "err", err)
		return res
	}
	if len(matches) == 0 {
		return res
	}

	rows := make([]story.ArchiveRow, len(matches))
	res.Similarity = make([]float64, len(matches))
	for i, m := range matches {
		rows[i] = m.Row
		res.Similarity[i] = m.Similarity
	}
	res.Results = d.enrich(ctx, rows)
	res.MatchType = MatchSemantic
	return res
}

// enrich attaches each story's outlets with bounded concurrency and
// normalizes the rows. Order is preserved; a failed lookup leaves the
// story without outlets.
func (d *Dispatcher) enrich(ctx context.Context, rows []story.ArchiveRow) []story.Story {
	var g errgroup.Group
	g.SetLimit(enrichWorkers)
	for i := range rows {
		g.Go(func() error {
			outlets, err := d.backend.StoryOutlets(ctx, rows[i].ID)
			if err != nil {
				d.log.Warn("search: story outlets", "historia", rows[i].ID, "err", err)
				return nil
			}
			rows[i].Outlets = outlets
			return nil
		})
	}
	_ = g.Wait()

	out := make([]story.Story, len(rows))
	for i, r := range rows {
		out[i] = story.Normalize(r)
		if out[i].OutletCount == 0 {
			out[i].OutletCount = len(r.Outlets)
		}
	}
	return out
}
