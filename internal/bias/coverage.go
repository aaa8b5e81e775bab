package bias

import (
	"fmt"
	"math"
	"strings"
)

// DefaultMinLeanings is how many leanings must be present for a story to
// count as balanced.
const DefaultMinLeanings = 2

// Distribution is the share of sources per leaning, as integer percentages.
// Each value is rounded on its own so the sum may be off 100 by a point or
// two; callers must not rely on it summing exactly.
type Distribution struct {
	Left    int `json:"izquierda"`
	Center  int `json:"centro"`
	Right   int `json:"derecha"`
	Unknown int `json:"desconocido"`
}

func (d Distribution) present() int {
	n := 0
	for _, v := range [...]int{d.Left, d.Center, d.Right} {
		if v > 0 {
			n++
		}
	}
	return n
}

func (d Distribution) max() int {
	return max(d.Left, d.Center, d.Right)
}

// BlindSpot is a leaning that did not cover a story.
type BlindSpot struct {
	Leaning string `json:"sesgo"`
	Message string `json:"mensaje"`
}

// Analysis is the full coverage breakdown of one story.
type Analysis struct {
	TotalSources int          `json:"totalFuentes"`
	Distribution Distribution `json:"distribucion"`
	Balanced     bool         `json:"balanceada"`
	BlindSpots   []BlindSpot  `json:"blindSpots"`
	Score        int          `json:"calificacion"`
}

// Summary is the user-facing coverage text.
type Summary struct {
	Message string `json:"mensaje"`
	Score   int    `json:"calificacion"`
	Level   string `json:"nivel"`
}

// Distribution classifies each source (one entry per article, so an outlet
// with three articles weighs three) and returns percentages.
func (c *Classifier) Distribution(names []string) Distribution {
	if len(names) == 0 {
		return Distribution{}
	}
	var left, center, right, unknown int
	for _, n := range names {
		switch c.Classify(n).Leaning {
		case Left:
			left++
		case Center:
			center++
		case Right:
			right++
		default:
			unknown++
		}
	}
	total := float64(len(names))
	return Distribution{
		Left:    percent(left, total),
		Center:  percent(center, total),
		Right:   percent(right, total),
		Unknown: percent(unknown, total),
	}
}

// IsBalanced reports whether at least minLeanings of left, center and right
// have a non-zero share.
func (c *Classifier) IsBalanced(names []string, minLeanings int) bool {
	return c.Distribution(names).present() >= minLeanings
}

// BlindSpots lists left, center and right, in that order, when their share is zero.
func (c *Classifier) BlindSpots(names []string) []BlindSpot {
	return blindSpots(c.Distribution(names))
}

func blindSpots(d Distribution) []BlindSpot {
	spots := []BlindSpot{}
	if d.Left == 0 {
		spots = append(spots, BlindSpot{Left, "Sin cobertura de medios de izquierda"})
	}
	if d.Center == 0 {
		spots = append(spots, BlindSpot{Center, "Sin cobertura de medios de centro"})
	}
	if d.Right == 0 {
		spots = append(spots, BlindSpot{Right, "Sin cobertura de medios de derecha"})
	}
	return spots
}

// DiversityScore rates source diversity from 0 to 100.
func (c *Classifier) DiversityScore(names []string) int {
	return diversityScore(c.Distribution(names), distinct(names))
}

func diversityScore(d Distribution, outlets int) int {
	score := min(outlets*10, 40)
	score += d.present() * 20
	if d.max() > 60 {
		score -= 10
	}
	return min(max(score, 0), 100)
}

// Analyze computes the whole breakdown in one pass over the classifier.
func (c *Classifier) Analyze(names []string) Analysis {
	d := c.Distribution(names)
	outlets := distinct(names)
	return Analysis{
		TotalSources: outlets,
		Distribution: d,
		Balanced:     d.present() >= DefaultMinLeanings,
		BlindSpots:   blindSpots(d),
		Score:        diversityScore(d, outlets),
	}
}

// Summarize renders the analysis as a Spanish sentence plus a level.
func (c *Classifier) Summarize(names []string) Summary {
	a := c.Analyze(names)

	var b strings.Builder
	noun := "fuentes"
	if a.TotalSources == 1 {
		noun = "fuente"
	}
	fmt.Fprintf(&b, "Esta historia tiene %d %s. ", a.TotalSources, noun)
	if a.Balanced {
		b.WriteString("La cobertura es balanceada con representación del espectro político. ")
	} else {
		b.WriteString("La cobertura muestra sesgo hacia ciertos medios. ")
	}
	if len(a.BlindSpots) > 0 {
		msgs := make([]string, len(a.BlindSpots))
		for i, s := range a.BlindSpots {
			msgs[i] = s.Message
		}
		fmt.Fprintf(&b, "Puntos ciegos: %s.", strings.Join(msgs, ", "))
	}

	return Summary{Message: b.String(), Score: a.Score, Level: Level(a.Score)}
}

// Level buckets a diversity score into alta, media or baja.
func Level(score int) string {
	switch {
	case score >= 70:
		return CredibilityHigh
	case score >= 40:
		return CredibilityMedium
	}
	return CredibilityLow
}

// Package-level shortcuts over the built-in table.

func DistributionOf(names []string) Distribution { return defaultClassifier.Distribution(names) }
func IsBalanced(names []string, minLeanings int) bool {
	return defaultClassifier.IsBalanced(names, minLeanings)
}
func BlindSpots(names []string) []BlindSpot { return defaultClassifier.BlindSpots(names) }
func DiversityScore(names []string) int     { return defaultClassifier.DiversityScore(names) }
func Analyze(names []string) Analysis       { return defaultClassifier.Analyze(names) }
func Summarize(names []string) Summary      { return defaultClassifier.Summarize(names) }

func percent(n int, total float64) int {
	return int(math.Floor(float64(n)/total*100 + 0.5))
}

func distinct(names []string) int {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		seen[n] = struct{}{}
	}
	return len(seen)
}
