// Package sentiment aggregates how outlets cover a personaje: per-outlet
// tone, a daily timeline and a 0-10 reputation grade.
package sentiment

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Normalized labels.
const (
	Positive = "positivo"
	Neutral  = "neutro"
	Negative = "negativo"
)

// Ranges offered by the timeline selector, in days. AllDays keeps everything.
const (
	Week    = 7
	TwoWeek = 14
	Month   = 30
	AllDays = 999
)

// Normalize maps the model's free-form labels onto the three tones.
// Anything unrecognized, blank included, is neutral.
func Normalize(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "positivo", "pos", "positive", "bueno":
		return Positive
	case "negativo", "neg", "negative", "malo":
		return Negative
	}
	return Neutral
}

// Mention is one article that names a personaje.
type Mention struct {
	ArticleID int64     `json:"noticia_id"`
	Outlet    string    `json:"medio"`
	Sentiment string    `json:"sentimiento"`
	Date      time.Time `json:"fecha"`
}

// Counts is a tone tally.
type Counts struct {
	Positive int `json:"positivo"`
	Neutral  int `json:"neutro"`
	Negative int `json:"negativo"`
}

// Total is the number of tallied mentions.
func (c Counts) Total() int { return c.Positive + c.Neutral + c.Negative }

func (c *Counts) add(label string, n int) {
	switch Normalize(label) {
	case Positive:
		c.Positive += n
	case Negative:
		c.Negative += n
	default:
		c.Neutral += n
	}
}

// Percentages returns rounded shares of each tone; all zero when empty.
func (c Counts) Percentages() (pos, neu, neg int) {
	total := c.Total()
	if total == 0 {
		return 0, 0, 0
	}
	pct := func(n int) int { return int(math.Floor(float64(n)/float64(total)*100 + 0.5)) }
	return pct(c.Positive), pct(c.Neutral), pct(c.Negative)
}

// OutletCoverage is the tone tally for one outlet.
type OutletCoverage struct {
	Outlet string `json:"nombre"`
	Counts
	Total int `json:"total"`
}

// ByOutlet tallies mentions per outlet, most active outlet first. Outlets
// with equal totals keep first-seen order.
func ByOutlet(mentions []Mention) []OutletCoverage {
	raw := make(map[string]map[string]int)
	var order []string
	for _, m := range mentions {
		if _, ok := raw[m.Outlet]; !ok {
			raw[m.Outlet] = make(map[string]int)
			order = append(order, m.Outlet)
		}
		raw[m.Outlet][m.Sentiment]++
	}
	return byOutlet(raw, order)
}

func byOutlet(raw map[string]map[string]int, order []string) []OutletCoverage {
	out := make([]OutletCoverage, 0, len(order))
	for _, name := range order {
		var c Counts
		for label, n := range raw[name] {
			c.add(label, n)
		}
		if c.Total() == 0 {
			continue
		}
		out = append(out, OutletCoverage{Outlet: name, Counts: c, Total: c.Total()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	return out
}

// Totals sums every outlet's tally.
func Totals(outlets []OutletCoverage) Counts {
	var c Counts
	for _, o := range outlets {
		c.Positive += o.Positive
		c.Neutral += o.Neutral
		c.Negative += o.Negative
	}
	return c
}

// Day is the tone tally for one UTC calendar day.
type Day struct {
	Day string `json:"dia"`
	Counts
	Total int `json:"total"`
}

// Timeline buckets mentions by UTC day, oldest first. Mentions without an
// article or a date are skipped.
func Timeline(mentions []Mention) []Day {
	byDay := make(map[string]*Counts)
	for _, m := range mentions {
		if m.ArticleID == 0 || m.Date.IsZero() {
			continue
		}
		key := m.Date.UTC().Format(time.DateOnly)
		c, ok := byDay[key]
		if !ok {
			c = &Counts{}
			byDay[key] = c
		}
		c.add(m.Sentiment, 1)
	}

	days := make([]Day, 0, len(byDay))
	for k, c := range byDay {
		days = append(days, Day{Day: k, Counts: *c, Total: c.Total()})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day < days[j].Day })
	return days
}

// Window keeps the last n days of a timeline. n >= AllDays keeps everything.
func Window(days []Day, n int) []Day {
	if n >= AllDays || n >= len(days) {
		return days
	}
	if n <= 0 {
		return []Day{}
	}
	return days[len(days)-n:]
}

// Reputation grades the last week of a timeline from 0 to 10, one decimal.
// Positive mentions weigh 1, neutral 0.5 and negative -0.8. It returns
// nil when there is nothing to grade.
func Reputation(days []Day) *float64 {
	if len(days) == 0 {
		return nil
	}
	var c Counts
	for _, d := range Window(days, Week) {
		c.Positive += d.Positive
		c.Neutral += d.Neutral
		c.Negative += d.Negative
	}
	total := c.Total()
	if total == 0 {
		return nil
	}
	score := (float64(c.Positive) + 0.5*float64(c.Neutral) - 0.8*float64(c.Negative)) / float64(total)
	grade := math.Min(10, math.Max(0, (score+0.8)/1.8*10))
	grade = math.Round(grade*10) / 10
	return &grade
}

// Label describes a reputation grade.
func Label(grade *float64) string {
	if grade == nil {
		return "Sin datos suficientes"
	}
	switch g := *grade; {
	case g >= 7.5:
		return "Cobertura muy favorable"
	case g >= 6:
		return "Cobertura favorable"
	case g >= 4.5:
		return "Cobertura mixta"
	case g >= 3:
		return "Bajo presión mediática"
	}
	return "Cobertura muy negativa"
}
