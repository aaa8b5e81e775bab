package ranking

import (
	"slices"
	"time"

	"github.com/eldiafano/diafano/internal/story"
)

// Front page sizes.
const (
	MainFeedLimit    = 5
	MajorColumnLimit = 6
	MinorColumnLimit = 4
)

// Feed is the composed front page.
type Feed struct {
	Main          []story.Story `json:"feed"`
	Politica      []story.Story `json:"politica"`
	Economia      []story.Story `json:"economia"`
	Internacional []story.Story `json:"internacional"`
	Sociedad      []story.Story `json:"sociedad"`
}

// PrepareFeed ranks stories for the tab and pulls politics and economy out
// of the main column into their own sidebars.
func PrepareFeed(stories []story.Story, tab Tab) Feed {
	return PrepareFeedAt(stories, tab, time.Now())
}

// PrepareFeedAt is PrepareFeed with an explicit clock for the score tab.
func PrepareFeedAt(stories []story.Story, tab Tab, now time.Time) Feed {
	ranked := RankAt(stories, tab, now)

	main := make([]story.Story, 0, MainFeedLimit)
	for _, s := range ranked {
		if len(main) == MainFeedLimit {
			break
		}
		if isColumnCategory(s.Category) {
			continue
		}
		main = append(main, s)
	}

	return Feed{
		Main:          main,
		Politica:      FilterByCategory(stories, story.CategoryPolitica, MajorColumnLimit),
		Economia:      FilterByCategory(stories, story.CategoryEconomia, MajorColumnLimit),
		Internacional: FilterByCategory(stories, story.CategoryInternacional, MinorColumnLimit),
		Sociedad:      FilterByCategory(stories, story.CategorySociedad, MinorColumnLimit),
	}
}

func isColumnCategory(c string) bool {
	k := foldKey(c)
	return k == foldKey(story.CategoryPolitica) || k == foldKey(story.CategoryEconomia)
}

// FilterByCategory keeps stories whose categoria_ia, or any tag, matches
// category ignoring case and accents, widest coverage first.
func FilterByCategory(stories []story.Story, category string, limit int) []story.Story {
	want := foldKey(category)
	out := []story.Story{}
	for _, s := range stories {
		if matchesCategory(s, want) {
			out = append(out, s)
		}
	}
	slices.SortStableFunc(out, byCoverage)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func matchesCategory(s story.Story, key string) bool {
	if foldKey(s.Category) == key {
		return true
	}
	for _, t := range s.Tags {
		if foldKey(t) == key {
			return true
		}
	}
	return false
}

func foldKey(s string) string {
	return story.Fold(s)
}

// Dedupe keeps the first story for each id.
func Dedupe(stories []story.Story) []story.Story {
	seen := make(map[int64]struct{}, len(stories))
	out := make([]story.Story, 0, len(stories))
	for _, s := range stories {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Paginate returns the first limit stories and whether more remain.
func Paginate(stories []story.Story, limit int) ([]story.Story, bool) {
	if limit <= 0 || len(stories) <= limit {
		return stories, false
	}
	return stories[:limit], true
}
