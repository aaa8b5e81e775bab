package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	diafano "github.com/eldiafano/diafano"
	"github.com/eldiafano/diafano/internal/ranking"
)

const defaultRankingLimit = 20

// server is the El Diáfano MCP server.
type server struct {
	engine *diafano.Engine
	log    *slog.Logger
	mcp    *mcp.Server

	fetchMu sync.Mutex // one feeds_fetch at a time
}

func newServer(engine *diafano.Engine, log *slog.Logger, allowFetch bool) *server {
	s := &server{
		engine: engine,
		log:    log,
		mcp:    mcp.NewServer(&mcp.Implementation{Name: "diafano", Version: "0.1.0"}, nil),
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "historias_ranking",
		Description: "List today's Chilean news stories ordered for a front page tab, with article and outlet counts and the left/center/right split of the outlets covering each one.",
	}, s.handleRanking)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cobertura_historia",
		Description: "Get one story with its articles, the outlets behind them, the coverage distribution by political leaning, blind spots and a diversity score.",
	}, s.handleStory)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "buscar",
		Description: "Search stories by numeric ID, title, summary or tag. Set semantic to match by meaning, or medio_id to list what one outlet covered.",
	}, s.handleSearch)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "clasificar_medio",
		Description: "Classify a Chilean outlet by name: political leaning, credibility and a short description.",
	}, s.handleClassify)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "medios_list",
		Description: "List registered outlets with their declared leaning and ownership group.",
	}, s.handleMedios)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "sesgo_diario",
		Description: "Count one day's articles by the bias label assigned to each.",
	}, s.handleDailyBias)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "categorias_stats",
		Description: "Count the last week's stories per category.",
	}, s.handleCategoryStats)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "personaje_cobertura",
		Description: "Show how each outlet covered a public figure: positive, neutral and negative mentions, a daily timeline and a 0-10 reputation grade for the last week.",
	}, s.handlePersonaje)
	if allowFetch {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "feeds_fetch",
			Description: "Fetch every outlet feed now and store new items as pending articles. Returns per-run counts.",
		}, s.handleFetch)
	}

	return s
}

// --- tool handlers ---

func (s *server) handleRanking(ctx context.Context, _ *mcp.CallToolRequest, in rankingInput) (*mcp.CallToolResult, any, error) {
	var tab, fecha string
	if in.Tab != nil {
		tab = *in.Tab
	}
	if in.Fecha != nil {
		fecha = *in.Fecha
	}
	limit := defaultRankingLimit
	if in.Limit != nil && *in.Limit > 0 {
		limit = *in.Limit
	}

	page, err := s.engine.Stories(ctx, ranking.ParseTab(tab), fecha)
	if err != nil {
		return mcpError("load stories: %v", err)
	}
	page.Stories, _ = ranking.Paginate(page.Stories, limit)
	return mcpJSON(page)
}

func (s *server) handleStory(ctx context.Context, _ *mcp.CallToolRequest, in storyIDInput) (*mcp.CallToolResult, any, error) {
	detail, err := s.engine.Story(ctx, in.ID)
	if errors.Is(err, diafano.ErrNotFound) {
		return mcpError("historia %d not found", in.ID)
	}
	if err != nil {
		return mcpError("load historia %d: %v", in.ID, err)
	}
	return mcpJSON(detail)
}

func (s *server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, any, error) {
	limit := 0
	if in.Limit != nil {
		limit = *in.Limit
	}
	switch {
	case in.MedioID != nil && *in.MedioID > 0:
		return mcpJSON(s.engine.SearchByOutlet(ctx, *in.MedioID, limit))
	case in.Semantic != nil && *in.Semantic:
		return mcpJSON(s.engine.SemanticSearch(ctx, in.Query, limit))
	}
	return mcpJSON(s.engine.Search(ctx, in.Query, limit))
}

func (s *server) handleClassify(ctx context.Context, _ *mcp.CallToolRequest, in classifyInput) (*mcp.CallToolResult, any, error) {
	return mcpJSON(s.engine.ClassifyMedio(ctx, in.Nombre))
}

func (s *server) handleMedios(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	medios, err := s.engine.Medios(ctx)
	if err != nil {
		return mcpError("list medios: %v", err)
	}
	return mcpJSON(medios)
}

func (s *server) handleDailyBias(ctx context.Context, _ *mcp.CallToolRequest, in dayInput) (*mcp.CallToolResult, any, error) {
	var fecha string
	if in.Fecha != nil {
		fecha = *in.Fecha
	}
	counts, err := s.engine.DailyBias(ctx, fecha)
	if err != nil {
		return mcpError("daily bias: %v", err)
	}
	return mcpJSON(counts)
}

func (s *server) handleCategoryStats(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	stats, err := s.engine.CategoryStats(ctx)
	if err != nil {
		return mcpError("category stats: %v", err)
	}
	return mcpJSON(stats)
}

func (s *server) handlePersonaje(ctx context.Context, _ *mcp.CallToolRequest, in personajeInput) (*mcp.CallToolResult, any, error) {
	days := 0
	if in.Dias != nil {
		days = *in.Dias
	}
	cov, err := s.engine.PersonajeCoverage(ctx, in.Slug, days)
	if errors.Is(err, diafano.ErrNotFound) {
		return mcpError("personaje %q not found", in.Slug)
	}
	if err != nil {
		return mcpError("personaje %q: %v", in.Slug, err)
	}
	return mcpJSON(cov)
}

func (s *server) handleFetch(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	if !s.fetchMu.TryLock() {
		return mcpError("a fetch is already running")
	}
	defer s.fetchMu.Unlock()

	stats, err := s.engine.FetchFeeds(ctx)
	if err != nil {
		return mcpError("fetch feeds: %v", err)
	}
	s.log.Info("feeds fetched via mcp", "medios", stats.Outlets, "noticias", stats.Articles, "con_error", stats.Errored)
	return mcpJSON(stats)
}

// --- MCP response helpers ---

func mcpText(format string, args ...any) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}, nil, nil
}

func mcpJSON(data any) (*mcp.CallToolResult, any, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return mcpError("marshal response: %v", err)
	}
	return mcpText("%s", b)
}

func mcpError(format string, args ...any) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error: "+format, args...)}},
		IsError: true,
	}, nil, nil
}
