package sentiment

import (
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"positivo":  Positive,
		" POS ":     Positive,
		"positive":  Positive,
		"bueno":     Positive,
		"Negativo":  Negative,
		"neg":       Negative,
		"malo":      Negative,
		"negative":  Negative,
		"neutral":   Neutral,
		"":          Neutral,
		"   ":       Neutral,
		"ambiguo":   Neutral,
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestByOutlet(t *testing.T) {
	mentions := []Mention{
		{ArticleID: 1, Outlet: "La Tercera", Sentiment: "pos"},
		{ArticleID: 2, Outlet: "Emol", Sentiment: "negativo"},
		{ArticleID: 3, Outlet: "Emol", Sentiment: "malo"},
		{ArticleID: 4, Outlet: "Emol", Sentiment: ""},
		{ArticleID: 5, Outlet: "CIPER", Sentiment: "positivo"},
	}

	got := ByOutlet(mentions)
	if len(got) != 3 {
		t.Fatalf("got %d outlets", len(got))
	}
	if got[0].Outlet != "Emol" || got[0].Total != 3 || got[0].Negative != 2 || got[0].Neutral != 1 {
		t.Errorf("first outlet: got %+v", got[0])
	}
	// Ties keep first-seen order.
	if got[1].Outlet != "La Tercera" || got[2].Outlet != "CIPER" {
		t.Errorf("tie order: got %s, %s", got[1].Outlet, got[2].Outlet)
	}

	tot := Totals(got)
	if tot.Positive != 2 || tot.Negative != 2 || tot.Neutral != 1 {
		t.Errorf("totals: got %+v", tot)
	}
	pos, neu, neg := tot.Percentages()
	if pos != 40 || neu != 20 || neg != 40 {
		t.Errorf("percentages: got %d/%d/%d", pos, neu, neg)
	}
}

func day(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t.Add(15 * time.Hour)
}

func TestTimeline(t *testing.T) {
	mentions := []Mention{
		{ArticleID: 1, Sentiment: "positivo", Date: day("2026-03-02")},
		{ArticleID: 2, Sentiment: "negativo", Date: day("2026-03-01")},
		{ArticleID: 3, Sentiment: "neutro", Date: day("2026-03-02")},
		{ArticleID: 0, Sentiment: "positivo", Date: day("2026-03-02")},
		{ArticleID: 4, Sentiment: "positivo"},
	}

	got := Timeline(mentions)
	if len(got) != 2 {
		t.Fatalf("got %+v", got)
	}
	if got[0].Day != "2026-03-01" || got[0].Negative != 1 {
		t.Errorf("first day: got %+v", got[0])
	}
	if got[1].Day != "2026-03-02" || got[1].Total != 2 {
		t.Errorf("second day: got %+v", got[1])
	}
}

func TestWindow(t *testing.T) {
	days := make([]Day, 20)
	for i := range days {
		days[i].Day = time.Date(2026, 3, i+1, 0, 0, 0, 0, time.UTC).Format(time.DateOnly)
	}

	if got := Window(days, Week); len(got) != 7 || got[0].Day != "2026-03-14" {
		t.Errorf("7 days: got %d starting %s", len(got), got[0].Day)
	}
	if got := Window(days, Month); len(got) != 20 {
		t.Errorf("window larger than data: got %d", len(got))
	}
	if got := Window(days, AllDays); len(got) != 20 {
		t.Errorf("all: got %d", len(got))
	}
}

func TestReputation(t *testing.T) {
	if Reputation(nil) != nil {
		t.Error("no data should have no grade")
	}
	if Label(nil) != "Sin datos suficientes" {
		t.Error("nil label")
	}

	tests := []struct {
		name  string
		c     Counts
		want  float64
		label string
	}{
		{"all positive", Counts{Positive: 4}, 10, "Cobertura muy favorable"},
		{"all negative", Counts{Negative: 4}, 0, "Cobertura muy negativa"},
		{"all neutral", Counts{Neutral: 4}, 7.2, "Cobertura favorable"},
		// (1 + 0.5 - 0.8) / 3 = 0.2333; (1.0333/1.8)*10 = 5.74
		{"mixed", Counts{Positive: 1, Neutral: 1, Negative: 1}, 5.7, "Cobertura mixta"},
		// (1 - 1.6) / 3 = -0.2; (0.6/1.8)*10 = 3.33
		{"pressured", Counts{Positive: 1, Negative: 2}, 3.3, "Bajo presión mediática"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days := []Day{{Day: "2026-03-01", Counts: tt.c, Total: tt.c.Total()}}
			got := Reputation(days)
			if got == nil || *got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			if l := Label(got); l != tt.label {
				t.Errorf("label: got %q, want %q", l, tt.label)
			}
		})
	}
}

func TestReputation_OnlyLastWeek(t *testing.T) {
	var days []Day
	// Eight days: the oldest is all negative and must be ignored.
	days = append(days, Day{Day: "2026-03-01", Counts: Counts{Negative: 50}})
	for i := 2; i <= 8; i++ {
		days = append(days, Day{
			Day:    time.Date(2026, 3, i, 0, 0, 0, 0, time.UTC).Format(time.DateOnly),
			Counts: Counts{Positive: 1},
		})
	}
	got := Reputation(days)
	if got == nil || *got != 10 {
		t.Errorf("got %v, want 10", got)
	}
}
