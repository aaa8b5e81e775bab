// Package ranking orders stories for the front page tabs and splits them
// into the main feed and the category columns.
package ranking

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/eldiafano/diafano/internal/story"
)

// Tab selects an ordering.
type Tab string

const (
	Relevance Tab = "relevancia"
	Top       Tab = "top"
	Coverage  Tab = "cobertura"
	Recent    Tab = "recientes"
	Score     Tab = "score"
	Category  Tab = "categoria"
)

// RelevanceLimit caps the relevance tab.
const RelevanceLimit = 5

// ParseTab resolves a tab name, accepting the legacy aliases "todas" and
// "cronologico". Unknown names are returned as-is so Rank can fall through
// to input order.
func ParseTab(s string) Tab {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "todas", "relevancia":
		return Relevance
	case "cronologico", "recientes":
		return Recent
	}
	return Tab(strings.ToLower(strings.TrimSpace(s)))
}

// Rank orders stories for a tab. The input is never modified and ties keep
// their input order. Unknown tabs return a copy in input order.
func Rank(stories []story.Story, tab Tab) []story.Story {
	return RankAt(stories, tab, time.Now())
}

// RankAt is Rank with an explicit clock for the time-decay score.
func RankAt(stories []story.Story, tab Tab, now time.Time) []story.Story {
	out := slices.Clone(stories)
	if out == nil {
		out = []story.Story{}
	}

	switch tab {
	case Relevance:
		slices.SortStableFunc(out, func(a, b story.Story) int {
			return cmpDesc(a.Relevance, b.Relevance)
		})
		if len(out) > RelevanceLimit {
			out = out[:RelevanceLimit]
		}
	case Top:
		slices.SortStableFunc(out, func(a, b story.Story) int {
			if c := cmpDesc(a.ArticleCount, b.ArticleCount); c != 0 {
				return c
			}
			return cmpDesc(a.OutletCount, b.OutletCount)
		})
	case Coverage:
		slices.SortStableFunc(out, byCoverage)
	case Recent:
		slices.SortStableFunc(out, func(a, b story.Story) int {
			return b.Date.Compare(a.Date)
		})
	case Score:
		type scored struct {
			s     story.Story
			score float64
		}
		tmp := make([]scored, len(out))
		for i, s := range out {
			tmp[i] = scored{s, TimeDecayScore(s, now)}
		}
		slices.SortStableFunc(tmp, func(a, b scored) int {
			return cmpDesc(a.score, b.score)
		})
		for i := range tmp {
			out[i] = tmp[i].s
		}
	case Category:
		slices.SortStableFunc(out, func(a, b story.Story) int {
			if c := cmpDesc(CategoryWeight(a.Tags), CategoryWeight(b.Tags)); c != 0 {
				return c
			}
			return cmpDesc(a.ArticleCount, b.ArticleCount)
		})
	}
	return out
}

func byCoverage(a, b story.Story) int {
	if c := cmpDesc(a.OutletCount, b.OutletCount); c != 0 {
		return c
	}
	return cmpDesc(a.ArticleCount, b.ArticleCount)
}

func cmpDesc[T int | float64](a, b T) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

// categoryWeights is checked in order; the first tag substring hit wins.
var categoryWeights = []struct {
	tag    string
	weight int
}{
	{"destacado", 40},
	{"urgente", 35},
	{"política", 25},
	{"economía", 20},
	{"internacional", 15},
	{"nacional", 15},
	{"sociedad", 10},
	{"deportes", 5},
	{"entretenimiento", 3},
}

// CategoryWeight scores a story's tags for the score and categoria tabs.
func CategoryWeight(tags []string) int {
	if len(tags) == 0 {
		return 0
	}
	joined := strings.ToLower(strings.Join(tags, " "))
	for _, cw := range categoryWeights {
		if strings.Contains(joined, cw.tag) {
			return cw.weight
		}
	}
	return 0
}

// TimeDecayScore favors stories with many articles that are still fresh:
// 15 points per article, up to 100 for freshness decaying with a 12h
// time constant, the tag weight, and 30 more during the first two hours.
func TimeDecayScore(s story.Story, now time.Time) float64 {
	hours := now.Sub(s.Date).Hours()
	score := float64(s.ArticleCount) * 15
	score += math.Max(0, 100*math.Exp(-hours/12))
	score += float64(CategoryWeight(s.Tags))
	if hours < 2 {
		score += 30
	}
	return score
}
