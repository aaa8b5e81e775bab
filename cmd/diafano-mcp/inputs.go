package main

// Input types for MCP tools. The SDK infers JSON Schema from these structs.
// Pointer types are optional; value types are required.

type rankingInput struct {
	Tab   *string `json:"tab,omitempty"   jsonschema:"Ordering: relevancia, top, cobertura, recientes, score or categoria (default relevancia)"`
	Fecha *string `json:"fecha,omitempty" jsonschema:"Archived day as YYYY-MM-DD. If omitted returns the live feed of the last two days."`
	Limit *int    `json:"limit,omitempty" jsonschema:"Maximum number of stories to return (default 20)"`
}

type storyIDInput struct {
	ID int64 `json:"id" jsonschema:"The historia ID"`
}

type searchInput struct {
	Query    string `json:"query"              jsonschema:"Text to match against titles, summaries and tags, or a numeric historia ID"`
	Semantic *bool  `json:"semantic,omitempty" jsonschema:"Match by meaning with the embedding model instead of by text"`
	MedioID  *int64 `json:"medio_id,omitempty" jsonschema:"Restrict to stories covered by this outlet ID; query is ignored"`
	Limit    *int   `json:"limit,omitempty"    jsonschema:"Maximum number of results"`
}

type classifyInput struct {
	Nombre string `json:"nombre" jsonschema:"Outlet name, e.g. La Tercera or biobiochile"`
}

type dayInput struct {
	Fecha *string `json:"fecha,omitempty" jsonschema:"Day as YYYY-MM-DD (default today, UTC)"`
}

type personajeInput struct {
	Slug string `json:"slug"           jsonschema:"The personaje slug, e.g. gabriel-boric"`
	Dias *int   `json:"dias,omitempty" jsonschema:"Days of timeline to return (default 30)"`
}

type emptyInput struct{}
