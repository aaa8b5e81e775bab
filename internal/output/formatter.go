package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	diafano "github.com/eldiafano/diafano"
	"github.com/eldiafano/diafano/internal/bias"
	"github.com/eldiafano/diafano/internal/feeds"
	"github.com/eldiafano/diafano/internal/search"
	"github.com/eldiafano/diafano/internal/story"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatHuman Format = "human"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatText, FormatHuman:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (valid: json, text, human)", s)
}

type Formatter struct {
	format Format
	out    io.Writer
	err    io.Writer
}

// NewFormatter creates a new output formatter
func NewFormatter(format Format) *Formatter {
	return &Formatter{
		format: format,
		out:    os.Stdout,
		err:    os.Stderr,
	}
}

// NewFormatterWithWriters creates a formatter with custom output writers for testability
func NewFormatterWithWriters(format Format, out, errW io.Writer) *Formatter {
	return &Formatter{
		format: format,
		out:    out,
		err:    errW,
	}
}

// OutputFetchStats reports a feed ingestion run.
func (f *Formatter) OutputFetchStats(stats *feeds.Stats) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(stats)
	case FormatText:
		fmt.Fprintf(f.out, "medios=%d\n", stats.Outlets)
		fmt.Fprintf(f.out, "descargados=%d\n", stats.Fetched)
		fmt.Fprintf(f.out, "con_error=%d\n", stats.Errored)
		fmt.Fprintf(f.out, "noticias=%d\n", stats.Articles)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "%d noticias desde %d de %d medios\n", stats.Articles, stats.Fetched, stats.Outlets)
		for _, e := range stats.Errors {
			fmt.Fprintf(f.out, "  ✗ %s\n", e)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputStories prints a ranked story list.
func (f *Formatter) OutputStories(stories []story.Story) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(stories)
	case FormatText:
		for _, s := range stories {
			fmt.Fprintf(f.out, "id=%d\tnoticias=%d\tmedios=%d\trelevancia=%.1f\tfecha=%s\ttitulo=%s\n",
				s.ID, s.ArticleCount, s.OutletCount, s.Relevance, formatTime(s.Date), s.Title)
		}
		return nil
	case FormatHuman:
		if len(stories) == 0 {
			fmt.Fprintln(f.out, "Sin historias")
			return nil
		}
		for i, s := range stories {
			fmt.Fprintf(f.out, "%2d. %s\n", i+1, s.Title)
			fmt.Fprintf(f.out, "    %d noticias · %d medios · %s", s.ArticleCount, s.OutletCount, s.Date.Local().Format("02/01 15:04"))
			if s.Category != "" {
				fmt.Fprintf(f.out, " · %s", s.Category)
			}
			fmt.Fprintln(f.out)
			if segs := bias.Segments(s.BiasCounts); len(segs) > 0 {
				fmt.Fprintf(f.out, "    %s\n", segmentLine(segs))
			}
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

func segmentLine(segs []bias.Segment) string {
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = fmt.Sprintf("%s %d%%", s.Key, s.Percent)
	}
	return strings.Join(parts, " | ")
}

// OutputSearch prints a search result with its match type.
func (f *Formatter) OutputSearch(res search.Result) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(res)
	case FormatText:
		fmt.Fprintf(f.out, "tipo=%s\tquery=%s\tresultados=%d\n", res.MatchType, res.Query, len(res.Results))
		for _, s := range res.Results {
			fmt.Fprintf(f.out, "id=%d\tmedios=%d\ttitulo=%s\n", s.ID, len(s.Outlets), s.Title)
		}
		return nil
	case FormatHuman:
		if len(res.Results) == 0 {
			fmt.Fprintf(f.out, "Sin resultados para %q\n", res.Query)
		} else {
			fmt.Fprintf(f.out, "%d resultados para %q (%s):\n\n", len(res.Results), res.Query, res.MatchType)
		}
		for _, s := range res.Results {
			fmt.Fprintf(f.out, "  • [%d] %s\n", s.ID, s.Title)
			if len(s.Outlets) > 0 {
				names := make([]string, len(s.Outlets))
				for i, o := range s.Outlets {
					names[i] = o.Name
				}
				fmt.Fprintf(f.out, "    %s\n", truncate(strings.Join(names, ", "), 120))
			}
		}
		if res.SuggestSemantic {
			fmt.Fprintln(f.out, "\nPrueba la búsqueda semántica: diafano search --semantic")
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputOutlets lists medios with their classification.
func (f *Formatter) OutputOutlets(outlets []diafano.Medio) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(outlets)
	case FormatText:
		for _, o := range outlets {
			fmt.Fprintf(f.out, "id=%d\tslug=%s\tsesgo=%s\tfeed=%s\tnombre=%s\n",
				o.ID, o.Slug, o.SesgoPolitico, o.FeedURL, o.Nombre)
		}
		return nil
	case FormatHuman:
		if len(outlets) == 0 {
			fmt.Fprintln(f.out, "Sin medios registrados")
			return nil
		}
		for _, o := range outlets {
			leaning := o.SesgoPolitico
			if leaning == "" {
				leaning = bias.Unknown
			}
			fmt.Fprintf(f.out, "%-30s %-18s %s\n", o.Nombre, leaning, o.FeedURL)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputStoryDetail prints one story with its coverage analysis.
func (f *Formatter) OutputStoryDetail(d *diafano.StoryDetail) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(d)
	case FormatText:
		dist := d.Analysis.Distribution
		fmt.Fprintf(f.out, "id=%d\tnoticias=%d\tmedios=%d\tizquierda=%d\tcentro=%d\tderecha=%d\tcalificacion=%d\ttitulo=%s\n",
			d.Story.ID, len(d.Noticias), len(d.Medios), dist.Left, dist.Center, dist.Right, d.Analysis.Score, d.Story.Title)
		for _, n := range d.Noticias {
			fmt.Fprintf(f.out, "noticia=%d\tmedio=%s\tfecha=%s\tlink=%s\n", n.ID, n.Medio, formatTime(n.Fecha), n.Link)
		}
		return nil
	case FormatHuman:
		dist := d.Analysis.Distribution
		fmt.Fprintf(f.out, "%s\n", d.Story.Title)
		if d.Story.Summary != "" {
			fmt.Fprintf(f.out, "%s\n", truncate(d.Story.Summary, 300))
		}
		fmt.Fprintf(f.out, "\nIzquierda %d%% · Centro %d%% · Derecha %d%%\n", dist.Left, dist.Center, dist.Right)
		fmt.Fprintf(f.out, "%s\n", d.Summary.Message)
		fmt.Fprintf(f.out, "Diversidad: %d/100 (%s)\n\n", d.Summary.Score, d.Summary.Level)
		for _, n := range d.Noticias {
			fmt.Fprintf(f.out, "  • %s: %s\n    %s\n", n.Medio, n.Titulo, n.Link)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputClassification prints how an outlet name is classified.
func (f *Formatter) OutputClassification(c bias.Classification) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(c)
	case FormatText:
		fmt.Fprintf(f.out, "nombre=%s\tsesgo=%s\tcredibilidad=%s\n", c.Name, c.Leaning, c.Credibility)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "%s: %s, credibilidad %s\n", c.Name, c.Leaning, c.Credibility)
		if c.Description != "" {
			fmt.Fprintf(f.out, "%s\n", c.Description)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// Error outputs an error message to stderr
func (f *Formatter) Error(format string, args ...interface{}) {
	fmt.Fprintf(f.err, format+"\n", args...)
}

// Warning outputs a warning message to stderr
func (f *Formatter) Warning(format string, args ...interface{}) {
	fmt.Fprintf(f.err, "Warning: "+format+"\n", args...)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// truncate cuts s to maxLen runes.
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
