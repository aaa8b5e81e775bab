package diafano

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// MaxPayloadBytes bounds a single write request body.
const MaxPayloadBytes = 1 << 20

const isoLayout = "2006-01-02T15:04:05Z07:00"

// NoticiaPayload is the body of POST /api/noticias.
type NoticiaPayload struct {
	Titulo    string    `json:"titulo" validate:"required"`
	Link      string    `json:"link" validate:"required,url"`
	Content   string    `json:"content"`
	Fecha     string    `json:"fecha" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Fuente    string    `json:"fuente"`
	MedioID   *int64    `json:"medio_id" validate:"omitempty,gt=0"`
	ImagenURL string    `json:"imagen_url" validate:"omitempty,url"`
	Embedding []float32 `json:"embedding"`
}

// HistoriaPayload is the body of POST /api/historias. Without an id it
// creates a story; with one it updates that story in place.
type HistoriaPayload struct {
	ID                 *int64   `json:"id" validate:"omitempty,gt=0"`
	TituloGenerado     string   `json:"titulo_generado" validate:"required"`
	Resumen            string   `json:"resumen"`
	Categoria          string   `json:"categoria_ia"`
	PesoRelevancia     *float64 `json:"peso_relevancia" validate:"omitempty,gte=0"`
	Tags               []string `json:"tags" validate:"omitempty,dive,required"`
	FechaPrimerReporte string   `json:"fecha_primer_reporte" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	VectorCentro       Vector   `json:"vector_centro"`
}

// MedioPayload is the body of POST /api/medios.
type MedioPayload struct {
	Nombre           string  `json:"nombre" validate:"required"`
	Slug             string  `json:"slug" validate:"required"`
	LineaEditorial   string  `json:"linea_editorial"`
	GrupoEmpresarial string  `json:"grupo_empresarial"`
	SitioWeb         *string `json:"sitio_web" validate:"omitempty,url"`
	LogoURL          *string `json:"logo_url" validate:"omitempty,url"`
	SesgoPolitico    string  `json:"sesgo_politico"`
	FeedURL          string  `json:"feed_url" validate:"omitempty,url"`
}

// AnotacionPayload is the body of POST /api/noticias/{id}/anotar: the
// pipeline's analysis of one article and the figures it mentions.
type AnotacionPayload struct {
	HistoriaID *int64           `json:"historia_id" validate:"omitempty,gt=0"`
	Resumen    string           `json:"resumen_ia"`
	Sesgo      string           `json:"sesgo_ia"`
	Tono       string           `json:"tono_ia"`
	Personajes []MencionPayload `json:"personajes" validate:"omitempty,dive"`
}

// MencionPayload is one figure mentioned by an annotated article. A blank
// slug is derived from the name.
type MencionPayload struct {
	Nombre      string `json:"nombre" validate:"required"`
	Slug        string `json:"slug"`
	Sentimiento string `json:"sentimiento"`
}

// Vector is an embedding that also accepts its JSON array encoded as a
// string, which is how some workflow tools send it.
type Vector []float32

func (v *Vector) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	var out []float32
	if err := json.Unmarshal(data, &out); err != nil {
		return &json.UnmarshalTypeError{Value: "string", Type: reflect.TypeOf(Vector{}), Field: "vector_centro"}
	}
	*v = out
	return nil
}

var (
	validate = newValidator()
	strict   = bluemonday.StrictPolicy()
)

// leaningKey stores "centro-derecha" and "centro derecha" as centro_derecha.
var leaningKey = strings.NewReplacer("-", "_", " ", "_")

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeNoticia reads, sanitizes and validates a noticia body.
func DecodeNoticia(r io.Reader) (*NoticiaPayload, error) {
	var p NoticiaPayload
	if err := decode(r, &p); err != nil {
		return nil, err
	}
	p.Titulo = clean(p.Titulo)
	p.Content = clean(p.Content)
	p.Fuente = clean(p.Fuente)
	p.Link = strings.TrimSpace(p.Link)
	if err := check(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeHistoria reads, sanitizes and validates a historia body.
func DecodeHistoria(r io.Reader) (*HistoriaPayload, error) {
	var p HistoriaPayload
	if err := decode(r, &p); err != nil {
		return nil, err
	}
	p.TituloGenerado = clean(p.TituloGenerado)
	p.Resumen = clean(p.Resumen)
	p.Categoria = clean(p.Categoria)
	for i, t := range p.Tags {
		p.Tags[i] = strings.ToLower(clean(t))
	}
	if err := check(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeMedio reads, sanitizes and validates a medio body.
func DecodeMedio(r io.Reader) (*MedioPayload, error) {
	var p MedioPayload
	if err := decode(r, &p); err != nil {
		return nil, err
	}
	p.Nombre = clean(p.Nombre)
	p.Slug = strings.TrimSpace(p.Slug)
	p.LineaEditorial = clean(p.LineaEditorial)
	p.GrupoEmpresarial = clean(p.GrupoEmpresarial)
	p.SesgoPolitico = leaningKey.Replace(strings.ToLower(strings.TrimSpace(p.SesgoPolitico)))
	if err := check(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeAnotacion reads, sanitizes and validates an annotation body.
func DecodeAnotacion(r io.Reader) (*AnotacionPayload, error) {
	var p AnotacionPayload
	if err := decode(r, &p); err != nil {
		return nil, err
	}
	p.Resumen = clean(p.Resumen)
	p.Sesgo = leaningKey.Replace(strings.ToLower(strings.TrimSpace(p.Sesgo)))
	p.Tono = strings.ToLower(strings.TrimSpace(p.Tono))
	for i := range p.Personajes {
		m := &p.Personajes[i]
		m.Nombre = clean(m.Nombre)
		m.Slug = strings.TrimSpace(m.Slug)
		m.Sentimiento = strings.ToLower(strings.TrimSpace(m.Sentimiento))
	}
	if err := check(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// clean strips markup and returns plain text.
func clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

func decode(r io.Reader, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r, MaxPayloadBytes))
	if err := dec.Decode(dst); err != nil {
		return &ValidationError{Issues: []Issue{decodeIssue(err)}}
	}
	return nil
}

func decodeIssue(err error) Issue {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return Issue{
			Path:    typeErr.Field,
			Code:    "invalid_type",
			Message: fmt.Sprintf("se esperaba %s", typeErr.Type),
		}
	}
	if errors.Is(err, io.EOF) {
		return Issue{Code: "invalid_json", Message: "cuerpo vacío"}
	}
	return Issue{Code: "invalid_json", Message: err.Error()}
}

func check(p any) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate payload: %w", err)
	}
	issues := make([]Issue, len(fieldErrs))
	for i, fe := range fieldErrs {
		issues[i] = Issue{Path: fieldPath(fe), Code: fe.Tag(), Message: issueMessage(fe)}
	}
	return &ValidationError{Issues: issues}
}

// fieldPath drops the struct name from the namespace: "HistoriaPayload.tags[1]" → "tags[1]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func issueMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "es obligatorio"
	case "url":
		return "debe ser una URL válida"
	case "datetime":
		return "debe ser una fecha ISO 8601"
	case "gt":
		return "debe ser mayor que " + fe.Param()
	case "gte":
		return "debe ser mayor o igual a " + fe.Param()
	}
	return "no cumple la regla " + fe.Tag()
}

// parseDate reads an already validated timestamp, or returns fallback for "".
func parseDate(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		return fallback
	}
	return t.UTC()
}
