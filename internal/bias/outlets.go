// Package bias classifies Chilean outlets by political leaning and derives
// coverage distribution, blind spots and diversity from a story's sources.
package bias

import "strings"

// Leaning values as stored in medios.sesgo_politico.
const (
	Left    = "izquierda"
	Center  = "centro"
	Right   = "derecha"
	Unknown = "desconocido"
)

// Credibility tiers.
const (
	CredibilityHigh    = "alta"
	CredibilityMedium  = "media"
	CredibilityLow     = "baja"
	CredibilityUnknown = "desconocida"
)

// Classification is what we know about one outlet.
type Classification struct {
	Name        string `json:"nombre,omitempty"`
	Leaning     string `json:"sesgo"`
	Credibility string `json:"credibilidad"`
	Description string `json:"descripcion"`
}

var unknownOutlet = Classification{
	Leaning:     Unknown,
	Credibility: CredibilityUnknown,
	Description: "Clasificación pendiente",
}

// chileanOutlets is ordered: the substring fallback returns the first hit.
var chileanOutlets = []Classification{
	{"El Mostrador", Left, CredibilityHigh, "Medio digital progresista con enfoque en investigación"},
	{"El Desconcierto", Left, CredibilityMedium, "Medio digital de izquierda, crítico del modelo económico"},
	{"The Clinic", Left, CredibilityMedium, "Semanario satírico y de actualidad con línea progresista"},
	{"Radio y Diario Universidad de Chile", Left, CredibilityHigh, "Medio universitario con enfoque social"},

	{"CIPER", Center, CredibilityHigh, "Centro de investigación periodística independiente"},
	{"La Tercera", Center, CredibilityHigh, "Diario de referencia del grupo Copesa"},
	{"T13", Center, CredibilityHigh, "Noticiero de Canal 13"},
	{"CNN Chile", Center, CredibilityHigh, "Canal de noticias 24 horas"},
	{"BioBioChile", Center, CredibilityHigh, "Radio y portal regional con cobertura nacional"},
	{"Meganoticias", Center, CredibilityMedium, "Área de prensa de Mega"},
	{"Chilevisión", Center, CredibilityMedium, "Noticiero de Chilevisión"},
	{"ADN Radio", Center, CredibilityHigh, "Radio de noticias del grupo Prisa"},

	{"El Mercurio", Right, CredibilityHigh, "Diario tradicional del grupo Edwards"},
	{"Las Últimas Noticias (LUN)", Right, CredibilityMedium, "Diario popular del grupo El Mercurio"},
	{"Emol", Right, CredibilityHigh, "Portal digital de El Mercurio"},
	{"La Segunda", Right, CredibilityHigh, "Vespertino del grupo El Mercurio"},
	{"El Líbero", Right, CredibilityMedium, "Medio digital liberal-conservador"},
	{"Pauta", Right, CredibilityHigh, "Medio digital de economía y política"},
}

// Classifier looks outlet names up in a table. The zero value is not
// usable; use NewClassifier or Default.
type Classifier struct {
	outlets []Classification
}

// NewClassifier builds a classifier over extra entries (typically loaded
// from the medios table) followed by the built-in Chilean table.
func NewClassifier(extra []Classification) *Classifier {
	outlets := make([]Classification, 0, len(extra)+len(chileanOutlets))
	for _, c := range extra {
		if c.Name == "" {
			continue
		}
		c.Leaning = NormalizeLeaning(c.Leaning)
		if c.Credibility == "" {
			c.Credibility = CredibilityUnknown
		}
		outlets = append(outlets, c)
	}
	outlets = append(outlets, chileanOutlets...)
	return &Classifier{outlets: outlets}
}

var defaultClassifier = &Classifier{outlets: chileanOutlets}

// Default returns the classifier over the built-in table.
func Default() *Classifier { return defaultClassifier }

// Classify looks up an outlet: exact name first, then a case-insensitive
// substring match in either direction. Unknown names get the default.
func (c *Classifier) Classify(name string) Classification {
	if name == "" {
		return unknownOutlet
	}
	for _, o := range c.outlets {
		if o.Name == name {
			return o
		}
	}
	lower := strings.ToLower(name)
	for _, o := range c.outlets {
		known := strings.ToLower(o.Name)
		if strings.Contains(lower, known) || strings.Contains(known, lower) {
			return o
		}
	}
	return unknownOutlet
}

// Classify uses the built-in table.
func Classify(name string) Classification {
	return defaultClassifier.Classify(name)
}

// Outlets returns a copy of the built-in table, in order.
func Outlets() []Classification {
	return append([]Classification(nil), chileanOutlets...)
}

// NormalizeLeaning folds the five-bucket sesgo_politico values into the
// three leanings the aggregator reports.
func NormalizeLeaning(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "izquierda", "centro_izquierda", "centro-izquierda", "centroizquierda":
		return Left
	case "centro":
		return Center
	case "derecha", "centro_derecha", "centro-derecha", "centroderecha":
		return Right
	}
	return Unknown
}

// LeaningColor is the UI color for a leaning.
func LeaningColor(leaning string) string {
	switch leaning {
	case Left:
		return "#3b82f6"
	case Center:
		return "#8b5cf6"
	case Right:
		return "#ef4444"
	}
	return "#64748b"
}

// CredibilityBadge is the label shown next to an outlet.
func CredibilityBadge(credibility string) string {
	switch credibility {
	case CredibilityHigh:
		return "Alta Credibilidad"
	case CredibilityMedium:
		return "Credibilidad Media"
	case CredibilityLow:
		return "Verificar Fuente"
	}
	return "Sin Clasificar"
}
