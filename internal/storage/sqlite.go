package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/matthewjhunter/go-embedding"
	_ "modernc.org/sqlite"

	"github.com/eldiafano/diafano/internal/sentiment"
	"github.com/eldiafano/diafano/internal/story"
)

// SQLiteStore keeps everything in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database file and applies the schema.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer avoids SQLITE_BUSY under concurrent search fan-out.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Init enables foreign keys and creates missing tables.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, SQLiteSchema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// utc normalizes times before they reach SQLite, which compares DATETIME
// columns as text.
func utc(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

const sqliteArchiveCols = `h.id, h.titulo_generado, COALESCE(h.resumen_ia, ''), COALESCE(h.categoria_ia, ''),
	h.peso_relevancia, h.fecha, h.tags, h.conteo, h.noticias_procesadas_count`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteArchive(sc rowScanner, extra ...any) (story.ArchiveRow, error) {
	var r story.ArchiveRow
	var tags string
	dest := append([]any{&r.ID, &r.Title, &r.Summary, &r.Category,
		&r.Relevance, &r.Date, &tags, &r.Conteo, &r.ProcessedCount}, extra...)
	if err := sc.Scan(dest...); err != nil {
		return r, err
	}
	r.Tags = decodeTags(tags)
	return r, nil
}

func decodeTags(raw string) []string {
	var tags []string
	if raw == "" {
		return []string{}
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil || tags == nil {
		return []string{}
	}
	return tags
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func (s *SQLiteStore) queryArchive(ctx context.Context, query string, args ...any) ([]story.ArchiveRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []story.ArchiveRow{}
	for rows.Next() {
		r, err := scanSQLiteArchive(rows)
		if err != nil {
			return nil, fmt.Errorf("scan historia: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StoriesWithBias returns the last daysBack days of stories with article,
// outlet and leaning counts aggregated from their noticias.
func (s *SQLiteStore) StoriesWithBias(ctx context.Context, daysBack, limit int) ([]story.RPCRow, error) {
	since := utc(time.Now().AddDate(0, 0, -daysBack))
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.id, h.titulo_generado, COALESCE(h.resumen_ia, ''), COALESCE(h.categoria_ia, ''),
		       h.peso_relevancia, h.fecha, h.tags,
		       COUNT(n.id), COUNT(DISTINCT n.medio_id),
		       SUM(CASE WHEN m.sesgo_politico = 'izquierda' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN m.sesgo_politico = 'centro_izquierda' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN m.sesgo_politico = 'centro' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN m.sesgo_politico = 'centro_derecha' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN m.sesgo_politico = 'derecha' THEN 1 ELSE 0 END)
		FROM historias h
		LEFT JOIN noticias n ON n.historia_final_id = h.id
		LEFT JOIN medios m ON m.id = n.medio_id
		WHERE h.fecha >= ?
		GROUP BY h.id
		ORDER BY h.peso_relevancia DESC, h.fecha DESC
		LIMIT ?`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("stories with bias: %w", err)
	}
	defer rows.Close()

	out := []story.RPCRow{}
	for rows.Next() {
		var r story.RPCRow
		var tags string
		if err := rows.Scan(&r.ID, &r.Title, &r.Summary, &r.Category, &r.Relevance, &r.Date, &tags,
			&r.TotalNoticias, &r.TotalMedios, &r.Left, &r.CenterLeft, &r.Center, &r.CenterRight, &r.Right); err != nil {
			return nil, fmt.Errorf("scan historia: %w", err)
		}
		r.Tags = decodeTags(tags)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ArchiveStories returns the stories of one UTC day, most relevant first.
func (s *SQLiteStore) ArchiveStories(ctx context.Context, day time.Time, limit int) ([]story.ArchiveRow, error) {
	start, end := DayBounds(day)
	out, err := s.queryArchive(ctx, `SELECT `+sqliteArchiveCols+` FROM historias h
		WHERE h.fecha >= ? AND h.fecha <= ?
		ORDER BY h.peso_relevancia DESC LIMIT ?`, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("archive stories: %w", err)
	}
	return out, nil
}

// StoryByID returns ErrNotFound for unknown ids.
func (s *SQLiteStore) StoryByID(ctx context.Context, id int64) (*story.ArchiveRow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteArchiveCols+` FROM historias h WHERE h.id = ?`, id)
	r, err := scanSQLiteArchive(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("story %d: %w", id, err)
	}
	return &r, nil
}

// StoriesByIDs returns the matching stories, most relevant first.
func (s *SQLiteStore) StoriesByIDs(ctx context.Context, ids []int64) ([]story.ArchiveRow, error) {
	if len(ids) == 0 {
		return []story.ArchiveRow{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	out, err := s.queryArchive(ctx, `SELECT `+sqliteArchiveCols+` FROM historias h
		WHERE h.id IN (`+placeholders+`) ORDER BY h.peso_relevancia DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("stories by ids: %w", err)
	}
	return out, nil
}

// StoryArticles lists a story's articles, newest first.
func (s *SQLiteStore) StoryArticles(ctx context.Context, storyID int64) ([]Article, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.titulo, n.link, COALESCE(n.content, ''), COALESCE(n.fuente, ''),
		       n.medio_id, COALESCE(m.nombre, ''), n.historia_final_id,
		       COALESCE(n.resumen_ia, ''), COALESCE(n.sesgo_ia, ''), COALESCE(n.tono_ia, ''),
		       COALESCE(n.imagen_url, ''), n.estado, n.fecha
		FROM noticias n
		LEFT JOIN medios m ON m.id = n.medio_id
		WHERE n.historia_final_id = ?
		ORDER BY n.fecha DESC`, storyID)
	if err != nil {
		return nil, fmt.Errorf("story articles: %w", err)
	}
	defer rows.Close()

	out := []Article{}
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Link, &a.Content, &a.Source, &a.OutletID, &a.OutletName,
			&a.StoryID, &a.Summary, &a.Bias, &a.Tone, &a.ImageURL, &a.Status, &a.Date); err != nil {
			return nil, fmt.Errorf("scan noticia: %w", err)
		}
		if a.OutletName == "" {
			a.OutletName = a.Source
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// StoryOutlets lists the distinct outlets that covered a story.
func (s *SQLiteStore) StoryOutlets(ctx context.Context, storyID int64) ([]story.Outlet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT m.id, m.nombre, COALESCE(m.sesgo_politico, ''), COALESCE(m.logo_url, '')
		FROM noticias n JOIN medios m ON m.id = n.medio_id
		WHERE n.historia_final_id = ?
		ORDER BY m.nombre`, storyID)
	if err != nil {
		return nil, fmt.Errorf("story outlets: %w", err)
	}
	defer rows.Close()

	out := []story.Outlet{}
	for rows.Next() {
		var o story.Outlet
		if err := rows.Scan(&o.ID, &o.Name, &o.Leaning, &o.LogoURL); err != nil {
			return nil, fmt.Errorf("scan medio: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ActiveDates returns the UTC days that have stories, newest first.
func (s *SQLiteStore) ActiveDates(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT substr(fecha, 1, 10) AS dia FROM historias ORDER BY dia DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("active dates: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LastUpdate is the date of the newest story, zero when there is none.
func (s *SQLiteStore) LastUpdate(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `SELECT fecha FROM historias ORDER BY fecha DESC LIMIT 1`).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	return t, err
}

// CategoryStats groups stories since the given time by categoria_ia.
func (s *SQLiteStore) CategoryStats(ctx context.Context, since time.Time) ([]CategoryStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(NULLIF(h.categoria_ia, ''), 'General'), COUNT(DISTINCT h.id), COUNT(n.id)
		FROM historias h
		LEFT JOIN noticias n ON n.historia_final_id = h.id
		WHERE h.fecha >= ?
		GROUP BY 1
		ORDER BY 2 DESC, 1`, utc(since))
	if err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	defer rows.Close()

	out := []CategoryStat{}
	for rows.Next() {
		var c CategoryStat
		if err := rows.Scan(&c.Category, &c.Stories, &c.Articles); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DailyBiasLabels returns the non-null sesgo_ia labels of one UTC day.
func (s *SQLiteStore) DailyBiasLabels(ctx context.Context, day time.Time) ([]string, error) {
	start, end := DayBounds(day)
	rows, err := s.db.QueryContext(ctx,
		`SELECT sesgo_ia FROM noticias WHERE fecha >= ? AND fecha <= ? AND sesgo_ia IS NOT NULL`, start, end)
	if err != nil {
		return nil, fmt.Errorf("daily bias: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpsertStory inserts a story, or updates it in place when in.ID is set.
func (s *SQLiteStore) UpsertStory(ctx context.Context, in *StoryInput) (int64, error) {
	var centroid any
	if len(in.Centroid) > 0 {
		centroid = embedding.EncodeFloat32s(in.Centroid)
	}
	first := utc(in.FirstReport)

	var id int64
	var err error
	if in.ID != nil {
		err = s.db.QueryRowContext(ctx, `
			INSERT INTO historias (id, titulo_generado, resumen_ia, categoria_ia, peso_relevancia, tags,
			                       fecha, fecha_primer_reporte, vector_centro)
			VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
			  titulo_generado = excluded.titulo_generado,
			  resumen_ia = excluded.resumen_ia,
			  categoria_ia = COALESCE(excluded.categoria_ia, historias.categoria_ia),
			  peso_relevancia = COALESCE(excluded.peso_relevancia, historias.peso_relevancia),
			  tags = CASE WHEN excluded.tags = '[]' THEN historias.tags ELSE excluded.tags END,
			  fecha_primer_reporte = excluded.fecha_primer_reporte,
			  vector_centro = COALESCE(excluded.vector_centro, historias.vector_centro)
			RETURNING id`,
			*in.ID, in.Title, in.Summary, in.Category, in.Relevance, encodeTags(in.Tags),
			first, first, centroid,
		).Scan(&id)
	} else {
		err = s.db.QueryRowContext(ctx, `
			INSERT INTO historias (titulo_generado, resumen_ia, categoria_ia, peso_relevancia, tags,
			                       fecha, fecha_primer_reporte, vector_centro)
			VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?)
			RETURNING id`,
			in.Title, in.Summary, in.Category, in.Relevance, encodeTags(in.Tags),
			first, first, centroid,
		).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("upsert historia: %w", err)
	}
	return id, nil
}

func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

// SearchStoriesText matches the query against title and summary.
func (s *SQLiteStore) SearchStoriesText(ctx context.Context, query string, limit int) ([]story.ArchiveRow, error) {
	p := likePattern(query)
	out, err := s.queryArchive(ctx, `SELECT `+sqliteArchiveCols+` FROM historias h
		WHERE h.titulo_generado LIKE ? ESCAPE '\' OR h.resumen_ia LIKE ? ESCAPE '\'
		ORDER BY h.peso_relevancia DESC LIMIT ?`, p, p, limit)
	if err != nil {
		return nil, fmt.Errorf("search text: %w", err)
	}
	return out, nil
}

// SearchStoriesTag returns stories whose tags contain tag exactly.
func (s *SQLiteStore) SearchStoriesTag(ctx context.Context, tag string, limit int) ([]story.ArchiveRow, error) {
	out, err := s.queryArchive(ctx, `SELECT `+sqliteArchiveCols+` FROM historias h
		WHERE EXISTS (SELECT 1 FROM json_each(h.tags) WHERE json_each.value = ?)
		ORDER BY h.peso_relevancia DESC LIMIT ?`, tag, limit)
	if err != nil {
		return nil, fmt.Errorf("search tag: %w", err)
	}
	return out, nil
}

// StoryIDsByOutlet returns story ids of the outlet's newest articles. Ids
// repeat when several articles share a story.
func (s *SQLiteStore) StoryIDsByOutlet(ctx context.Context, outletID int64, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT historia_final_id FROM noticias
		WHERE medio_id = ? AND historia_final_id IS NOT NULL
		ORDER BY fecha DESC LIMIT ?`, outletID, limit)
	if err != nil {
		return nil, fmt.Errorf("story ids by outlet: %w", err)
	}
	defer rows.Close()

	out := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MatchStories compares centroids in process; SQLite has no vector index.
func (s *SQLiteStore) MatchStories(ctx context.Context, emb []float32, threshold float64, limit int) ([]StoryMatch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteArchiveCols+`, h.vector_centro FROM historias h
		WHERE h.vector_centro IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("match stories: %w", err)
	}
	defer rows.Close()

	out := []StoryMatch{}
	for rows.Next() {
		var blob []byte
		r, err := scanSQLiteArchive(rows, &blob)
		if err != nil {
			return nil, fmt.Errorf("scan historia: %w", err)
		}
		centroid := embedding.DecodeFloat32s(blob)
		if len(centroid) != len(emb) {
			continue
		}
		sim := embedding.CosineSimilarity(emb, centroid)
		if sim >= threshold {
			out = append(out, StoryMatch{Row: r, Similarity: sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertArticle inserts an article keyed on link; posting the same link
// again updates the row and returns the same id.
func (s *SQLiteStore) UpsertArticle(ctx context.Context, a *Article) (int64, error) {
	var emb any
	if len(a.Embedding) > 0 {
		emb = embedding.EncodeFloat32s(a.Embedding)
	}
	status := a.Status
	if status == "" {
		status = StatusPending
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO noticias (titulo, link, content, fuente, medio_id, imagen_url, estado, fecha, embedding)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?)
		ON CONFLICT(link) DO UPDATE SET
		  titulo = excluded.titulo,
		  content = excluded.content,
		  fuente = excluded.fuente,
		  medio_id = COALESCE(excluded.medio_id, noticias.medio_id),
		  imagen_url = COALESCE(excluded.imagen_url, noticias.imagen_url),
		  estado = excluded.estado,
		  fecha = excluded.fecha,
		  embedding = COALESCE(excluded.embedding, noticias.embedding)
		RETURNING id`,
		a.Title, a.Link, a.Content, a.Source, a.OutletID, a.ImageURL, status, utc(a.Date), emb,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert noticia: %w", err)
	}
	return id, nil
}

// AnnotateArticle stores pipeline output and, when a story is given,
// attaches the article to it and refreshes the story's processed count.
func (s *SQLiteStore) AnnotateArticle(ctx context.Context, id int64, ann ArticleAnnotation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE noticias SET
		  historia_final_id = COALESCE(?, historia_final_id),
		  resumen_ia = COALESCE(NULLIF(?, ''), resumen_ia),
		  sesgo_ia = COALESCE(NULLIF(?, ''), sesgo_ia),
		  tono_ia = COALESCE(NULLIF(?, ''), tono_ia),
		  estado = ?
		WHERE id = ?`, ann.StoryID, ann.Summary, ann.Bias, ann.Tone, StatusProcessed, id)
	if err != nil {
		return fmt.Errorf("annotate noticia: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if ann.StoryID != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE historias SET noticias_procesadas_count =
			  (SELECT COUNT(*) FROM noticias WHERE historia_final_id = ?)
			WHERE id = ?`, *ann.StoryID, *ann.StoryID); err != nil {
			return fmt.Errorf("refresh historia count: %w", err)
		}
	}
	return tx.Commit()
}

// UpsertOutlet inserts or updates an outlet keyed on slug. Blank or nil
// fields keep the stored value.
func (s *SQLiteStore) UpsertOutlet(ctx context.Context, o *Outlet) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO medios (nombre, slug, sesgo_politico, linea_editorial, grupo_empresarial, sitio_web, logo_url, feed_url)
		VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?, NULLIF(?, ''))
		ON CONFLICT(slug) DO UPDATE SET
		  nombre = excluded.nombre,
		  sesgo_politico = COALESCE(excluded.sesgo_politico, medios.sesgo_politico),
		  linea_editorial = COALESCE(excluded.linea_editorial, medios.linea_editorial),
		  grupo_empresarial = COALESCE(excluded.grupo_empresarial, medios.grupo_empresarial),
		  sitio_web = COALESCE(excluded.sitio_web, medios.sitio_web),
		  logo_url = COALESCE(excluded.logo_url, medios.logo_url),
		  feed_url = COALESCE(excluded.feed_url, medios.feed_url)
		RETURNING id`,
		o.Name, o.Slug, o.Leaning, o.EditorialLine, o.Group, o.Website, o.LogoURL, o.FeedURL,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert medio: %w", err)
	}
	return id, nil
}

const sqliteOutletCols = `id, nombre, slug, COALESCE(sesgo_politico, ''), COALESCE(linea_editorial, ''),
	COALESCE(grupo_empresarial, ''), sitio_web, logo_url, COALESCE(feed_url, '')`

func (s *SQLiteStore) queryOutlets(ctx context.Context, query string) ([]Outlet, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Outlet{}
	for rows.Next() {
		var o Outlet
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug, &o.Leaning, &o.EditorialLine, &o.Group,
			&o.Website, &o.LogoURL, &o.FeedURL); err != nil {
			return nil, fmt.Errorf("scan medio: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListOutlets returns every outlet ordered by name.
func (s *SQLiteStore) ListOutlets(ctx context.Context) ([]Outlet, error) {
	out, err := s.queryOutlets(ctx, `SELECT `+sqliteOutletCols+` FROM medios ORDER BY nombre`)
	if err != nil {
		return nil, fmt.Errorf("list medios: %w", err)
	}
	return out, nil
}

// FeedOutlets returns outlets that publish an RSS feed.
func (s *SQLiteStore) FeedOutlets(ctx context.Context) ([]Outlet, error) {
	out, err := s.queryOutlets(ctx, `SELECT `+sqliteOutletCols+` FROM medios
		WHERE feed_url IS NOT NULL AND feed_url != '' ORDER BY nombre`)
	if err != nil {
		return nil, fmt.Errorf("feed medios: %w", err)
	}
	return out, nil
}

// UpsertPersonaje creates a pending personaje or refreshes its profile by slug.
func (s *SQLiteStore) UpsertPersonaje(ctx context.Context, p *Personaje) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO personajes (nombre, slug, cargo, partido, bio, foto_url, pendiente, activo)
		VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
		  nombre = excluded.nombre,
		  cargo = COALESCE(excluded.cargo, personajes.cargo),
		  partido = COALESCE(excluded.partido, personajes.partido),
		  bio = COALESCE(excluded.bio, personajes.bio),
		  foto_url = COALESCE(excluded.foto_url, personajes.foto_url)
		RETURNING id`,
		p.Name, p.Slug, p.Role, p.Party, p.Bio, p.PhotoURL, p.Pending, p.Active,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert personaje: %w", err)
	}
	return id, nil
}

// AddMention links a personaje to an article once and updates its counters.
func (s *SQLiteStore) AddMention(ctx context.Context, personajeID, articleID int64, label string) error {
	tone := sentiment.Normalize(label)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO personaje_menciones (personaje_id, noticia_id, sentimiento)
		VALUES (?, ?, ?) ON CONFLICT DO NOTHING`, personajeID, articleID, tone)
	if err != nil {
		return fmt.Errorf("insert mencion: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tx.Commit()
	}

	var date time.Time
	if err := tx.QueryRowContext(ctx, `SELECT fecha FROM noticias WHERE id = ?`, articleID).Scan(&date); err != nil {
		return fmt.Errorf("mention date: %w", err)
	}
	date = utc(date)
	if _, err := tx.ExecContext(ctx, `
		UPDATE personajes SET
		  menciones = menciones + 1,
		  sentimiento_positivo = sentimiento_positivo + ?,
		  sentimiento_neutro = sentimiento_neutro + ?,
		  sentimiento_negativo = sentimiento_negativo + ?,
		  primera_mencion = CASE WHEN primera_mencion IS NULL OR primera_mencion > ? THEN ? ELSE primera_mencion END,
		  ultima_mencion = CASE WHEN ultima_mencion IS NULL OR ultima_mencion < ? THEN ? ELSE ultima_mencion END
		WHERE id = ?`,
		b2i(tone == sentiment.Positive), b2i(tone == sentiment.Neutral), b2i(tone == sentiment.Negative),
		date, date, date, date, personajeID); err != nil {
		return fmt.Errorf("update personaje counters: %w", err)
	}
	return tx.Commit()
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

const sqlitePersonajeCols = `id, nombre, slug, COALESCE(cargo, ''), COALESCE(partido, ''), COALESCE(bio, ''),
	foto_url, menciones, sentimiento_positivo, sentimiento_neutro, sentimiento_negativo,
	pendiente, activo, primera_mencion, ultima_mencion`

func scanPersonaje(sc rowScanner) (Personaje, error) {
	var p Personaje
	err := sc.Scan(&p.ID, &p.Name, &p.Slug, &p.Role, &p.Party, &p.Bio, &p.PhotoURL, &p.Mentions,
		&p.Positive, &p.Neutral, &p.Negative, &p.Pending, &p.Active, &p.FirstMention, &p.LastMention)
	return p, err
}

func (s *SQLiteStore) queryPersonajes(ctx context.Context, query string, args ...any) ([]Personaje, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Personaje{}
	for rows.Next() {
		p, err := scanPersonaje(rows)
		if err != nil {
			return nil, fmt.Errorf("scan personaje: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TopPersonajes returns the most mentioned active personajes.
func (s *SQLiteStore) TopPersonajes(ctx context.Context, limit int) ([]Personaje, error) {
	out, err := s.queryPersonajes(ctx, `SELECT `+sqlitePersonajeCols+` FROM personajes
		WHERE activo = 1 ORDER BY menciones DESC, nombre LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("top personajes: %w", err)
	}
	return out, nil
}

// PersonajeBySlug returns an active personaje or ErrNotFound.
func (s *SQLiteStore) PersonajeBySlug(ctx context.Context, slug string) (*Personaje, error) {
	p, err := scanPersonaje(s.db.QueryRowContext(ctx,
		`SELECT `+sqlitePersonajeCols+` FROM personajes WHERE slug = ? AND activo = 1`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("personaje %q: %w", slug, err)
	}
	return &p, nil
}

// PersonajeMentions lists every mention with its article date and outlet.
func (s *SQLiteStore) PersonajeMentions(ctx context.Context, personajeID int64) ([]sentiment.Mention, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, COALESCE(m.nombre, n.fuente, ''), pm.sentimiento, n.fecha
		FROM personaje_menciones pm
		JOIN noticias n ON n.id = pm.noticia_id
		LEFT JOIN medios m ON m.id = n.medio_id
		WHERE pm.personaje_id = ?
		ORDER BY n.fecha`, personajeID)
	if err != nil {
		return nil, fmt.Errorf("personaje mentions: %w", err)
	}
	defer rows.Close()

	out := []sentiment.Mention{}
	for rows.Next() {
		var m sentiment.Mention
		if err := rows.Scan(&m.ArticleID, &m.Outlet, &m.Sentiment, &m.Date); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PendingPersonajes lists candidates awaiting review with at least
// minMentions mentions, most mentioned first.
func (s *SQLiteStore) PendingPersonajes(ctx context.Context, minMentions int) ([]Personaje, error) {
	out, err := s.queryPersonajes(ctx, `SELECT `+sqlitePersonajeCols+` FROM personajes
		WHERE pendiente = 1 AND activo = 0 AND menciones >= ?
		ORDER BY menciones DESC`, minMentions)
	if err != nil {
		return nil, fmt.Errorf("pending personajes: %w", err)
	}
	return out, nil
}

// ApprovePersonaje activates a pending personaje, applying overrides.
func (s *SQLiteStore) ApprovePersonaje(ctx context.Context, id int64, a Approval) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE personajes SET
		  nombre = COALESCE(?, nombre),
		  cargo = COALESCE(?, cargo),
		  partido = COALESCE(?, partido),
		  bio = COALESCE(?, bio),
		  foto_url = COALESCE(?, foto_url),
		  pendiente = 0,
		  activo = 1
		WHERE id = ?`, a.Name, a.Role, a.Party, a.Bio, a.PhotoURL, id)
	if err != nil {
		return fmt.Errorf("approve personaje: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RejectPersonaje takes a candidate out of the review queue for good.
func (s *SQLiteStore) RejectPersonaje(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE personajes SET pendiente = 0, activo = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("reject personaje: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
