package storage

import (
	"context"
	"errors"
	"time"

	"github.com/eldiafano/diafano/internal/sentiment"
	"github.com/eldiafano/diafano/internal/story"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("storage: not found")

// Store is the data layer behind the engine. PostgresStore is the
// production implementation; SQLiteStore serves local runs and tests.
type Store interface {
	Init(ctx context.Context) error
	Close() error

	// Stories
	StoriesWithBias(ctx context.Context, daysBack, limit int) ([]story.RPCRow, error)
	ArchiveStories(ctx context.Context, day time.Time, limit int) ([]story.ArchiveRow, error)
	StoryByID(ctx context.Context, id int64) (*story.ArchiveRow, error)
	StoriesByIDs(ctx context.Context, ids []int64) ([]story.ArchiveRow, error)
	StoryArticles(ctx context.Context, storyID int64) ([]Article, error)
	StoryOutlets(ctx context.Context, storyID int64) ([]story.Outlet, error)
	ActiveDates(ctx context.Context, limit int) ([]string, error)
	LastUpdate(ctx context.Context) (time.Time, error)
	CategoryStats(ctx context.Context, since time.Time) ([]CategoryStat, error)
	DailyBiasLabels(ctx context.Context, day time.Time) ([]string, error)
	UpsertStory(ctx context.Context, in *StoryInput) (int64, error)

	// Search primitives
	SearchStoriesText(ctx context.Context, query string, limit int) ([]story.ArchiveRow, error)
	SearchStoriesTag(ctx context.Context, tag string, limit int) ([]story.ArchiveRow, error)
	StoryIDsByOutlet(ctx context.Context, outletID int64, limit int) ([]int64, error)
	MatchStories(ctx context.Context, embedding []float32, threshold float64, limit int) ([]StoryMatch, error)

	// Articles
	UpsertArticle(ctx context.Context, a *Article) (int64, error)
	AnnotateArticle(ctx context.Context, id int64, ann ArticleAnnotation) error

	// Outlets
	UpsertOutlet(ctx context.Context, o *Outlet) (int64, error)
	ListOutlets(ctx context.Context) ([]Outlet, error)
	FeedOutlets(ctx context.Context) ([]Outlet, error)

	// Personajes
	UpsertPersonaje(ctx context.Context, p *Personaje) (int64, error)
	AddMention(ctx context.Context, personajeID, articleID int64, label string) error
	TopPersonajes(ctx context.Context, limit int) ([]Personaje, error)
	PersonajeBySlug(ctx context.Context, slug string) (*Personaje, error)
	PersonajeMentions(ctx context.Context, personajeID int64) ([]sentiment.Mention, error)
	PendingPersonajes(ctx context.Context, minMentions int) ([]Personaje, error)
	ApprovePersonaje(ctx context.Context, id int64, a Approval) error
	RejectPersonaje(ctx context.Context, id int64) error
}

// Article is a noticia row.
type Article struct {
	ID         int64
	Title      string
	Link       string
	Content    string
	Source     string
	OutletID   *int64
	OutletName string
	StoryID    *int64
	Summary    string
	Bias       string
	Tone       string
	ImageURL   string
	Status     string
	Date       time.Time
	Embedding  []float32
}

// Article states.
const (
	StatusPending   = "pendiente"
	StatusProcessed = "procesada"
)

// ArticleAnnotation is what the upstream pipeline writes back onto an article.
type ArticleAnnotation struct {
	StoryID *int64
	Summary string
	Bias    string
	Tone    string
}

// StoryInput is a historia to insert or update. A nil ID always inserts.
type StoryInput struct {
	ID          *int64
	Title       string
	Summary     string
	Category    string
	Relevance   *float64
	Tags        []string
	FirstReport time.Time
	Centroid    []float32
}

// Outlet is a medio row.
type Outlet struct {
	ID            int64
	Name          string
	Slug          string
	Leaning       string
	EditorialLine string
	Group         string
	Website       *string
	LogoURL       *string
	FeedURL       string
}

// CategoryStat counts recent stories and articles in one categoria_ia.
type CategoryStat struct {
	Category string `json:"categoria"`
	Stories  int    `json:"total_historias"`
	Articles int    `json:"total_noticias"`
}

// StoryMatch is a semantic search hit.
type StoryMatch struct {
	Row        story.ArchiveRow
	Similarity float64
}

// Personaje is a public figure tracked across coverage.
type Personaje struct {
	ID           int64
	Name         string
	Slug         string
	Role         string
	Party        string
	Bio          string
	PhotoURL     *string
	Mentions     int
	Positive     int
	Neutral      int
	Negative     int
	Pending      bool
	Active       bool
	FirstMention *time.Time
	LastMention  *time.Time
}

// Approval carries the fields a reviewer may override when approving a
// pending personaje. Nil fields keep the stored value.
type Approval struct {
	Name     *string
	Role     *string
	Party    *string
	Bio      *string
	PhotoURL *string
}

// DayBounds returns the first and last second of t's UTC calendar day.
func DayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return start, start.Add(24*time.Hour - time.Second)
}
