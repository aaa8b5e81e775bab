// Package story defines the canonical story ("historia") record and the
// conversion from the row shapes the database hands back.
package story

import (
	"time"
)

// Column categories that get their own sidebar on the front page.
const (
	CategoryPolitica      = "Política"
	CategoryEconomia      = "Economía"
	CategoryInternacional = "Internacional"
	CategorySociedad      = "Sociedad"
)

// Outlet is the minimal outlet info attached to a story in search results.
type Outlet struct {
	ID      int64  `json:"id"`
	Name    string `json:"nombre"`
	Leaning string `json:"sesgo_politico,omitempty"`
	LogoURL string `json:"logo_url,omitempty"`
}

// BiasCounts holds how many articles of a story came from each leaning.
type BiasCounts struct {
	Left        int `json:"sesgo_izquierda"`
	CenterLeft  int `json:"sesgo_centro_izq"`
	Center      int `json:"sesgo_centro"`
	CenterRight int `json:"sesgo_centro_der"`
	Right       int `json:"sesgo_derecha"`
}

// Total is the number of classified articles.
func (b BiasCounts) Total() int {
	return b.Left + b.CenterLeft + b.Center + b.CenterRight + b.Right
}

// Story is the single shape every view consumes. Numeric fields are never
// absent: sources that lack them produce zeros so that sorting stays total.
type Story struct {
	ID           int64     `json:"id"`
	Title        string    `json:"titulo_generado"`
	Summary      string    `json:"resumen_ia"`
	Category     string    `json:"categoria_ia"`
	Relevance    float64   `json:"peso_relevancia"`
	ArticleCount int       `json:"total_noticias"`
	OutletCount  int       `json:"total_medios"`
	Date         time.Time `json:"fecha"`
	Tags         []string  `json:"tags"`
	Outlets      []Outlet  `json:"medios_unicos,omitempty"`
	BiasCounts
}

// RawStory is a row as read from storage, before normalization.
// Implemented by RPCRow and ArchiveRow only.
type RawStory interface {
	rawStory()
}

// RPCRow is a story row with coverage and bias already aggregated
// (the "stories with bias" query over recent days).
type RPCRow struct {
	ID            int64
	Title         string
	Summary       string
	Category      string
	Relevance     *float64
	Date          time.Time
	Tags          []string
	TotalNoticias *int
	TotalMedios   *int
	Left          *int
	CenterLeft    *int
	Center        *int
	CenterRight   *int
	Right         *int
}

// ArchiveRow is a plain historias table row. Archived days carry no
// aggregates; the article count comes from the processed counter or the
// legacy conteo column.
type ArchiveRow struct {
	ID             int64
	Title          string
	Summary        string
	Category       string
	Relevance      *float64
	Date           time.Time
	Tags           []string
	Conteo         *int
	ProcessedCount *int
	Outlets        []Outlet
}

func (RPCRow) rawStory()     {}
func (ArchiveRow) rawStory() {}

// Normalize converts any raw row into a Story.
func Normalize(raw RawStory) Story {
	switch r := raw.(type) {
	case RPCRow:
		return Story{
			ID:           r.ID,
			Title:        r.Title,
			Summary:      r.Summary,
			Category:     r.Category,
			Relevance:    orZeroFloat(r.Relevance),
			ArticleCount: orZero(r.TotalNoticias),
			OutletCount:  orZero(r.TotalMedios),
			Date:         r.Date,
			Tags:         nonNilTags(r.Tags),
			BiasCounts: BiasCounts{
				Left:        orZero(r.Left),
				CenterLeft:  orZero(r.CenterLeft),
				Center:      orZero(r.Center),
				CenterRight: orZero(r.CenterRight),
				Right:       orZero(r.Right),
			},
		}
	case *RPCRow:
		return Normalize(*r)
	case ArchiveRow:
		return Story{
			ID:           r.ID,
			Title:        r.Title,
			Summary:      r.Summary,
			Category:     r.Category,
			Relevance:    orZeroFloat(r.Relevance),
			ArticleCount: firstPositive(r.ProcessedCount, r.Conteo),
			Date:         r.Date,
			Tags:         nonNilTags(r.Tags),
			Outlets:      r.Outlets,
		}
	case *ArchiveRow:
		return Normalize(*r)
	}
	return Story{}
}

// NormalizeAll normalizes a mixed batch of rows.
func NormalizeAll(rows []RawStory) []Story {
	out := make([]Story, len(rows))
	for i, r := range rows {
		out[i] = Normalize(r)
	}
	return out
}

// NormalizeRPC normalizes a batch of aggregated rows.
func NormalizeRPC(rows []RPCRow) []Story {
	out := make([]Story, len(rows))
	for i, r := range rows {
		out[i] = Normalize(r)
	}
	return out
}

// NormalizeArchive normalizes a batch of plain table rows.
func NormalizeArchive(rows []ArchiveRow) []Story {
	out := make([]Story, len(rows))
	for i, r := range rows {
		out[i] = Normalize(r)
	}
	return out
}

// FilterFuture drops stories without a date or dated after now.
func FilterFuture(stories []Story, now time.Time) []Story {
	out := make([]Story, 0, len(stories))
	for _, s := range stories {
		if s.Date.IsZero() || s.Date.After(now) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func orZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func orZeroFloat(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// firstPositive mirrors `a || b || 0`: a zero counter counts as missing.
func firstPositive(ps ...*int) int {
	for _, p := range ps {
		if p != nil && *p != 0 {
			return *p
		}
	}
	return 0
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
