package story

import (
	"testing"
	"time"
)

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func TestNormalizeRPCRow(t *testing.T) {
	date := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := Normalize(RPCRow{
		ID:            7,
		Title:         "Reforma de pensiones",
		Category:      CategoryPolitica,
		Relevance:     floatp(86.5),
		Date:          date,
		Tags:          []string{"política"},
		TotalNoticias: intp(12),
		TotalMedios:   intp(5),
		Left:          intp(3),
		Center:        intp(6),
		Right:         intp(3),
	})

	if s.ID != 7 || s.ArticleCount != 12 || s.OutletCount != 5 {
		t.Fatalf("unexpected story: %+v", s)
	}
	if s.Relevance != 86.5 {
		t.Errorf("relevance: got %v, want 86.5", s.Relevance)
	}
	if s.Left != 3 || s.Center != 6 || s.Right != 3 || s.CenterLeft != 0 || s.CenterRight != 0 {
		t.Errorf("bias counts: got %+v", s.BiasCounts)
	}
	if s.Total() != 12 {
		t.Errorf("bias total: got %d, want 12", s.Total())
	}
}

func TestNormalizeRPCRow_NilFieldsBecomeZero(t *testing.T) {
	s := Normalize(&RPCRow{ID: 1})
	if s.Relevance != 0 || s.ArticleCount != 0 || s.OutletCount != 0 || s.Total() != 0 {
		t.Errorf("expected zero values, got %+v", s)
	}
	if s.Tags == nil {
		t.Error("tags should be an empty slice, not nil")
	}
}

func TestNormalizeArchiveRow(t *testing.T) {
	tests := []struct {
		name      string
		processed *int
		conteo    *int
		want      int
	}{
		{"processed count wins", intp(9), intp(4), 9},
		{"zero processed falls back to conteo", intp(0), intp(4), 4},
		{"nil processed falls back to conteo", nil, intp(3), 3},
		{"both missing", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Normalize(ArchiveRow{ID: 2, ProcessedCount: tt.processed, Conteo: tt.conteo})
			if s.ArticleCount != tt.want {
				t.Errorf("article count: got %d, want %d", s.ArticleCount, tt.want)
			}
			if s.OutletCount != 0 || s.Total() != 0 {
				t.Errorf("archive rows carry no coverage: got %+v", s)
			}
		})
	}
}

func TestFilterFuture(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := []Story{
		{ID: 1, Date: now.Add(-time.Hour)},
		{ID: 2, Date: now.Add(time.Hour)},
		{ID: 3},
		{ID: 4, Date: now},
	}

	got := FilterFuture(in, now)
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 4 {
		t.Errorf("FilterFuture: got %+v", got)
	}
}
