package bias

import (
	"math"
	"strings"

	"github.com/eldiafano/diafano/internal/story"
)

// Segment is one slice of a story's five-way bias bar.
type Segment struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
}

// NoCoverage is shown instead of a bar when no article was classified.
const NoCoverage = "Sin cobertura mediática"

// Segments turns a story's bias counts into the non-empty bar segments,
// ordered left to right. A zero total yields nil.
func Segments(c story.BiasCounts) []Segment {
	total := c.Total()
	if total == 0 {
		return nil
	}
	all := [...]Segment{
		{Key: "I", Label: "Izquierda", Count: c.Left},
		{Key: "CI", Label: "C. Izquierda", Count: c.CenterLeft},
		{Key: "C", Label: "Centro", Count: c.Center},
		{Key: "CD", Label: "C. Derecha", Count: c.CenterRight},
		{Key: "D", Label: "Derecha", Count: c.Right},
	}
	out := make([]Segment, 0, len(all))
	for _, s := range all {
		if s.Count == 0 {
			continue
		}
		s.Percent = int(math.Floor(float64(s.Count)/float64(total)*100 + 0.5))
		out = append(out, s)
	}
	return out
}

// DailyBias tallies article sesgo_ia labels, lower-cased. Blank labels
// count as desconocido.
func DailyBias(labels []string) map[string]int {
	out := make(map[string]int)
	for _, l := range labels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" {
			l = Unknown
		}
		out[l]++
	}
	return out
}
