package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/eldiafano/diafano/internal/sentiment"
	"github.com/eldiafano/diafano/internal/story"
)

// Pool defaults, matching what the web tier was sized for.
const (
	DefaultMaxConns       = 20
	DefaultIdleTimeout    = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// NewPool builds a pgx pool for url. maxConns <= 0 uses DefaultMaxConns.
func NewPool(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}
	cfg.MaxConns = maxConns
	cfg.MaxConnIdleTime = DefaultIdleTimeout
	cfg.ConnConfig.ConnectTimeout = DefaultConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// PostgresStore runs against an injected pool. Callers own the pool's
// lifetime; Close releases it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps pool. It does not touch the schema; call Init.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Init applies PostgresSchema.
func (s *PostgresStore) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func vectorArg(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

const pgArchiveCols = `h.id, h.titulo_generado, COALESCE(h.resumen_ia, ''), COALESCE(h.categoria_ia, ''),
	h.peso_relevancia, h.fecha, h.tags, h.conteo, h.noticias_procesadas_count`

func scanPgArchive(sc pgx.Row, extra ...any) (story.ArchiveRow, error) {
	var r story.ArchiveRow
	dest := append([]any{&r.ID, &r.Title, &r.Summary, &r.Category,
		&r.Relevance, &r.Date, &r.Tags, &r.Conteo, &r.ProcessedCount}, extra...)
	err := sc.Scan(dest...)
	if r.Tags == nil {
		r.Tags = []string{}
	}
	return r, err
}

func (s *PostgresStore) queryArchive(ctx context.Context, query string, args ...any) ([]story.ArchiveRow, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []story.ArchiveRow{}
	for rows.Next() {
		r, err := scanPgArchive(rows)
		if err != nil {
			return nil, fmt.Errorf("scan historia: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StoriesWithBias aggregates coverage and leaning counts per story.
func (s *PostgresStore) StoriesWithBias(ctx context.Context, daysBack, limit int) ([]story.RPCRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT h.id, h.titulo_generado, COALESCE(h.resumen_ia, ''), COALESCE(h.categoria_ia, ''),
		       h.peso_relevancia, h.fecha, h.tags,
		       COUNT(n.id)::int, COUNT(DISTINCT n.medio_id)::int,
		       COUNT(*) FILTER (WHERE m.sesgo_politico = 'izquierda')::int,
		       COUNT(*) FILTER (WHERE m.sesgo_politico = 'centro_izquierda')::int,
		       COUNT(*) FILTER (WHERE m.sesgo_politico = 'centro')::int,
		       COUNT(*) FILTER (WHERE m.sesgo_politico = 'centro_derecha')::int,
		       COUNT(*) FILTER (WHERE m.sesgo_politico = 'derecha')::int
		FROM historias h
		LEFT JOIN noticias n ON n.historia_final_id = h.id
		LEFT JOIN medios m ON m.id = n.medio_id
		WHERE h.fecha >= now() - make_interval(days => $1)
		GROUP BY h.id
		ORDER BY h.peso_relevancia DESC NULLS LAST, h.fecha DESC
		LIMIT $2`, daysBack, limit)
	if err != nil {
		return nil, fmt.Errorf("stories with bias: %w", err)
	}
	defer rows.Close()

	out := []story.RPCRow{}
	for rows.Next() {
		var r story.RPCRow
		if err := rows.Scan(&r.ID, &r.Title, &r.Summary, &r.Category, &r.Relevance, &r.Date, &r.Tags,
			&r.TotalNoticias, &r.TotalMedios, &r.Left, &r.CenterLeft, &r.Center, &r.CenterRight, &r.Right); err != nil {
			return nil, fmt.Errorf("scan historia: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ArchiveStories returns one UTC day of stories.
func (s *PostgresStore) ArchiveStories(ctx context.Context, day time.Time, limit int) ([]story.ArchiveRow, error) {
	start, end := DayBounds(day)
	out, err := s.queryArchive(ctx, `SELECT `+pgArchiveCols+` FROM historias h
		WHERE h.fecha >= $1 AND h.fecha <= $2
		ORDER BY h.peso_relevancia DESC NULLS LAST LIMIT $3`, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("archive stories: %w", err)
	}
	return out, nil
}

// StoryByID returns ErrNotFound for unknown ids.
func (s *PostgresStore) StoryByID(ctx context.Context, id int64) (*story.ArchiveRow, error) {
	r, err := scanPgArchive(s.pool.QueryRow(ctx, `SELECT `+pgArchiveCols+` FROM historias h WHERE h.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("story %d: %w", id, err)
	}
	return &r, nil
}

// StoriesByIDs returns the matching stories, most relevant first.
func (s *PostgresStore) StoriesByIDs(ctx context.Context, ids []int64) ([]story.ArchiveRow, error) {
	if len(ids) == 0 {
		return []story.ArchiveRow{}, nil
	}
	out, err := s.queryArchive(ctx, `SELECT `+pgArchiveCols+` FROM historias h
		WHERE h.id = ANY($1) ORDER BY h.peso_relevancia DESC NULLS LAST`, ids)
	if err != nil {
		return nil, fmt.Errorf("stories by ids: %w", err)
	}
	return out, nil
}

// StoryArticles lists a story's articles, newest first.
func (s *PostgresStore) StoryArticles(ctx context.Context, storyID int64) ([]Article, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT n.id, n.titulo, n.link, COALESCE(n.content, ''), COALESCE(n.fuente, ''),
		       n.medio_id, COALESCE(m.nombre, n.fuente, ''), n.historia_final_id,
		       COALESCE(n.resumen_ia, ''), COALESCE(n.sesgo_ia, ''), COALESCE(n.tono_ia, ''),
		       COALESCE(n.imagen_url, ''), n.estado, n.fecha
		FROM noticias n
		LEFT JOIN medios m ON m.id = n.medio_id
		WHERE n.historia_final_id = $1
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
		out = append(out, a)
	}
	return out, rows.Err()
}

// StoryOutlets lists the distinct outlets that covered a story.
func (s *PostgresStore) StoryOutlets(ctx context.Context, storyID int64) ([]story.Outlet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT m.id, m.nombre, COALESCE(m.sesgo_politico, ''), COALESCE(m.logo_url, '')
		FROM noticias n JOIN medios m ON m.id = n.medio_id
		WHERE n.historia_final_id = $1
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
func (s *PostgresStore) ActiveDates(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT to_char(fecha AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS dia
		FROM historias ORDER BY dia DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("active dates: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("active dates: %w", err)
	}
	return out, nil
}

// LastUpdate is the date of the newest story, zero when there is none.
func (s *PostgresStore) LastUpdate(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx, `SELECT fecha FROM historias ORDER BY fecha DESC LIMIT 1`).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	return t, err
}

// CategoryStats groups stories since the given time by categoria_ia.
func (s *PostgresStore) CategoryStats(ctx context.Context, since time.Time) ([]CategoryStat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT COALESCE(NULLIF(h.categoria_ia, ''), 'General'), COUNT(DISTINCT h.id)::int, COUNT(n.id)::int
		FROM historias h
		LEFT JOIN noticias n ON n.historia_final_id = h.id
		WHERE h.fecha >= $1
		GROUP BY 1
		ORDER BY 2 DESC, 1`, since)
	if err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (CategoryStat, error) {
		var c CategoryStat
		err := row.Scan(&c.Category, &c.Stories, &c.Articles)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	return out, nil
}

// DailyBiasLabels returns the non-null sesgo_ia labels of one UTC day.
func (s *PostgresStore) DailyBiasLabels(ctx context.Context, day time.Time) ([]string, error) {
	start, end := DayBounds(day)
	rows, err := s.pool.Query(ctx,
		`SELECT sesgo_ia FROM noticias WHERE fecha >= $1 AND fecha <= $2 AND sesgo_ia IS NOT NULL`, start, end)
	if err != nil {
		return nil, fmt.Errorf("daily bias: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("daily bias: %w", err)
	}
	return out, nil
}

// syncStorySequence moves the historias id sequence past explicitly
// inserted ids so later inserts without an id do not collide.
const syncStorySequence = `SELECT setval(pg_get_serial_sequence('historias', 'id'),
	GREATEST((SELECT max(id) FROM historias), 1))`

// UpsertStory inserts a story, or updates it in place when in.ID is set.
// An explicit id inserts and resyncs the id sequence in one transaction.
func (s *PostgresStore) UpsertStory(ctx context.Context, in *StoryInput) (int64, error) {
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	var id int64
	var err error
	if in.ID != nil {
		id, err = s.upsertStoryWithID(ctx, in, tags)
	} else {
		err = s.pool.QueryRow(ctx, `
			INSERT INTO historias (titulo_generado, resumen_ia, categoria_ia, peso_relevancia, tags,
			                       fecha, fecha_primer_reporte, vector_centro)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $6, $7::vector)
			RETURNING id`,
			in.Title, in.Summary, in.Category, in.Relevance, tags, in.FirstReport, vectorArg(in.Centroid),
		).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("upsert historia: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) upsertStoryWithID(ctx context.Context, in *StoryInput, tags []string) (int64, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	var id int64
	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO historias (id, titulo_generado, resumen_ia, categoria_ia, peso_relevancia, tags,
			                       fecha, fecha_primer_reporte, vector_centro)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $7, $8::vector)
			ON CONFLICT (id) DO UPDATE SET
			  titulo_generado = EXCLUDED.titulo_generado,
			  resumen_ia = EXCLUDED.resumen_ia,
			  categoria_ia = COALESCE(EXCLUDED.categoria_ia, historias.categoria_ia),
			  peso_relevancia = COALESCE(EXCLUDED.peso_relevancia, historias.peso_relevancia),
			  tags = CASE WHEN cardinality(EXCLUDED.tags) = 0 THEN historias.tags ELSE EXCLUDED.tags END,
			  fecha_primer_reporte = EXCLUDED.fecha_primer_reporte,
			  vector_centro = COALESCE(EXCLUDED.vector_centro, historias.vector_centro)
			RETURNING id`,
			*in.ID, in.Title, in.Summary, in.Category, in.Relevance, tags, in.FirstReport, vectorArg(in.Centroid),
		).Scan(&id)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, syncStorySequence); err != nil {
			return fmt.Errorf("sync id sequence: %w", err)
		}
		return nil
	})
	return id, err
}

// SearchStoriesText runs ILIKE over title and summary.
func (s *PostgresStore) SearchStoriesText(ctx context.Context, query string, limit int) ([]story.ArchiveRow, error) {
	out, err := s.queryArchive(ctx, `SELECT `+pgArchiveCols+` FROM historias h
		WHERE h.titulo_generado ILIKE $1 OR h.resumen_ia ILIKE $1
		ORDER BY h.peso_relevancia DESC NULLS LAST LIMIT $2`, likePattern(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search text: %w", err)
	}
	return out, nil
}

// SearchStoriesTag returns stories whose tags contain tag exactly.
func (s *PostgresStore) SearchStoriesTag(ctx context.Context, tag string, limit int) ([]story.ArchiveRow, error) {
	out, err := s.queryArchive(ctx, `SELECT `+pgArchiveCols+` FROM historias h
		WHERE h.tags @> ARRAY[$1::text]
		ORDER BY h.peso_relevancia DESC NULLS LAST LIMIT $2`, tag, limit)
	if err != nil {
		return nil, fmt.Errorf("search tag: %w", err)
	}
	return out, nil
}

// StoryIDsByOutlet returns story ids of the outlet's newest articles.
func (s *PostgresStore) StoryIDsByOutlet(ctx context.Context, outletID int64, limit int) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT historia_final_id FROM noticias
		WHERE medio_id = $1 AND historia_final_id IS NOT NULL
		ORDER BY fecha DESC LIMIT $2`, outletID, limit)
	if err != nil {
		return nil, fmt.Errorf("story ids by outlet: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("story ids by outlet: %w", err)
	}
	return out, nil
}

// MatchStories ranks centroids by cosine similarity using pgvector.
func (s *PostgresStore) MatchStories(ctx context.Context, emb []float32, threshold float64, limit int) ([]StoryMatch, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgArchiveCols+`, 1 - (h.vector_centro <=> $1::vector) AS similarity
		FROM historias h
		WHERE h.vector_centro IS NOT NULL AND 1 - (h.vector_centro <=> $1::vector) >= $2
		ORDER BY h.vector_centro <=> $1::vector
		LIMIT $3`, pgvector.NewVector(emb), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("match stories: %w", err)
	}
	defer rows.Close()

	out := []StoryMatch{}
	for rows.Next() {
		var sim float64
		r, err := scanPgArchive(rows, &sim)
		if err != nil {
			return nil, fmt.Errorf("scan historia: %w", err)
		}
		out = append(out, StoryMatch{Row: r, Similarity: sim})
	}
	return out, rows.Err()
}

// UpsertArticle inserts an article keyed on link and returns its id.
func (s *PostgresStore) UpsertArticle(ctx context.Context, a *Article) (int64, error) {
	status := a.Status
	if status == "" {
		status = StatusPending
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO noticias (titulo, link, content, fuente, medio_id, imagen_url, estado, fecha, embedding)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9::vector)
		ON CONFLICT (link) DO UPDATE SET
		  titulo = EXCLUDED.titulo,
		  content = EXCLUDED.content,
		  fuente = EXCLUDED.fuente,
		  medio_id = COALESCE(EXCLUDED.medio_id, noticias.medio_id),
		  imagen_url = COALESCE(EXCLUDED.imagen_url, noticias.imagen_url),
		  estado = EXCLUDED.estado,
		  fecha = EXCLUDED.fecha,
		  embedding = COALESCE(EXCLUDED.embedding, noticias.embedding)
		RETURNING id`,
		a.Title, a.Link, a.Content, a.Source, a.OutletID, a.ImageURL, status, a.Date, vectorArg(a.Embedding),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert noticia: %w", err)
	}
	return id, nil
}

// AnnotateArticle stores pipeline output and refreshes the story count.
// Both statements run on one acquired connection inside a transaction.
func (s *PostgresStore) AnnotateArticle(ctx context.Context, id int64, ann ArticleAnnotation) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE noticias SET
			  historia_final_id = COALESCE($1, historia_final_id),
			  resumen_ia = COALESCE(NULLIF($2, ''), resumen_ia),
			  sesgo_ia = COALESCE(NULLIF($3, ''), sesgo_ia),
			  tono_ia = COALESCE(NULLIF($4, ''), tono_ia),
			  estado = $5
			WHERE id = $6`, ann.StoryID, ann.Summary, ann.Bias, ann.Tone, StatusProcessed, id)
		if err != nil {
			return fmt.Errorf("annotate noticia: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if ann.StoryID == nil {
			return nil
		}
		if _, err := tx.Exec(ctx, `
			UPDATE historias SET noticias_procesadas_count =
			  (SELECT COUNT(*) FROM noticias WHERE historia_final_id = $1)
			WHERE id = $1`, *ann.StoryID); err != nil {
			return fmt.Errorf("refresh historia count: %w", err)
		}
		return nil
	})
}

// UpsertOutlet inserts or updates an outlet keyed on slug. Blank or nil
// fields keep the stored value.
func (s *PostgresStore) UpsertOutlet(ctx context.Context, o *Outlet) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO medios (nombre, slug, sesgo_politico, linea_editorial, grupo_empresarial, sitio_web, logo_url, feed_url)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7, NULLIF($8, ''))
		ON CONFLICT (slug) DO UPDATE SET
		  nombre = EXCLUDED.nombre,
		  sesgo_politico = COALESCE(EXCLUDED.sesgo_politico, medios.sesgo_politico),
		  linea_editorial = COALESCE(EXCLUDED.linea_editorial, medios.linea_editorial),
		  grupo_empresarial = COALESCE(EXCLUDED.grupo_empresarial, medios.grupo_empresarial),
		  sitio_web = COALESCE(EXCLUDED.sitio_web, medios.sitio_web),
		  logo_url = COALESCE(EXCLUDED.logo_url, medios.logo_url),
		  feed_url = COALESCE(EXCLUDED.feed_url, medios.feed_url)
		RETURNING id`,
		o.Name, o.Slug, o.Leaning, o.EditorialLine, o.Group, o.Website, o.LogoURL, o.FeedURL,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert medio: %w", err)
	}
	return id, nil
}

const pgOutletCols = `id, nombre, slug, COALESCE(sesgo_politico, ''), COALESCE(linea_editorial, ''),
	COALESCE(grupo_empresarial, ''), sitio_web, logo_url, COALESCE(feed_url, '')`

func (s *PostgresStore) queryOutlets(ctx context.Context, query string) ([]Outlet, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Outlet, error) {
		var o Outlet
		err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.Leaning, &o.EditorialLine, &o.Group,
			&o.Website, &o.LogoURL, &o.FeedURL)
		return o, err
	})
}

// ListOutlets returns every outlet ordered by name.
func (s *PostgresStore) ListOutlets(ctx context.Context) ([]Outlet, error) {
	out, err := s.queryOutlets(ctx, `SELECT `+pgOutletCols+` FROM medios ORDER BY nombre`)
	if err != nil {
		return nil, fmt.Errorf("list medios: %w", err)
	}
	return out, nil
}

// FeedOutlets returns outlets that publish an RSS feed.
func (s *PostgresStore) FeedOutlets(ctx context.Context) ([]Outlet, error) {
	out, err := s.queryOutlets(ctx, `SELECT `+pgOutletCols+` FROM medios
		WHERE COALESCE(feed_url, '') <> '' ORDER BY nombre`)
	if err != nil {
		return nil, fmt.Errorf("feed medios: %w", err)
	}
	return out, nil
}

// UpsertPersonaje creates a pending personaje or refreshes it by slug.
func (s *PostgresStore) UpsertPersonaje(ctx context.Context, p *Personaje) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO personajes (nombre, slug, cargo, partido, bio, foto_url, pendiente, activo)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)
		ON CONFLICT (slug) DO UPDATE SET
		  nombre = EXCLUDED.nombre,
		  cargo = COALESCE(EXCLUDED.cargo, personajes.cargo),
		  partido = COALESCE(EXCLUDED.partido, personajes.partido),
		  bio = COALESCE(EXCLUDED.bio, personajes.bio),
		  foto_url = COALESCE(EXCLUDED.foto_url, personajes.foto_url)
		RETURNING id`,
		p.Name, p.Slug, p.Role, p.Party, p.Bio, p.PhotoURL, p.Pending, p.Active,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert personaje: %w", err)
	}
	return id, nil
}

// AddMention links a personaje to an article once and bumps its counters.
func (s *PostgresStore) AddMention(ctx context.Context, personajeID, articleID int64, label string) error {
	tone := sentiment.Normalize(label)

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO personaje_menciones (personaje_id, noticia_id, sentimiento)
			VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, personajeID, articleID, tone)
		if err != nil {
			return fmt.Errorf("insert mencion: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `
			UPDATE personajes p SET
			  menciones = p.menciones + 1,
			  sentimiento_positivo = p.sentimiento_positivo + $2,
			  sentimiento_neutro = p.sentimiento_neutro + $3,
			  sentimiento_negativo = p.sentimiento_negativo + $4,
			  primera_mencion = LEAST(p.primera_mencion, n.fecha),
			  ultima_mencion = GREATEST(p.ultima_mencion, n.fecha)
			FROM noticias n
			WHERE p.id = $1 AND n.id = $5`,
			personajeID,
			b2i(tone == sentiment.Positive), b2i(tone == sentiment.Neutral), b2i(tone == sentiment.Negative),
			articleID)
		if err != nil {
			return fmt.Errorf("update personaje counters: %w", err)
		}
		return nil
	})
}

const pgPersonajeCols = `id, nombre, slug, COALESCE(cargo, ''), COALESCE(partido, ''), COALESCE(bio, ''),
	foto_url, menciones, sentimiento_positivo, sentimiento_neutro, sentimiento_negativo,
	pendiente, activo, primera_mencion, ultima_mencion`

func (s *PostgresStore) queryPersonajes(ctx context.Context, query string, args ...any) ([]Personaje, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Personaje, error) {
		return scanPersonaje(row)
	})
}

// TopPersonajes returns the most mentioned active personajes.
func (s *PostgresStore) TopPersonajes(ctx context.Context, limit int) ([]Personaje, error) {
	out, err := s.queryPersonajes(ctx, `SELECT `+pgPersonajeCols+` FROM personajes
		WHERE activo ORDER BY menciones DESC, nombre LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top personajes: %w", err)
	}
	return out, nil
}

// PersonajeBySlug returns an active personaje or ErrNotFound.
func (s *PostgresStore) PersonajeBySlug(ctx context.Context, slug string) (*Personaje, error) {
	p, err := scanPersonaje(s.pool.QueryRow(ctx,
		`SELECT `+pgPersonajeCols+` FROM personajes WHERE slug = $1 AND activo`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("personaje %q: %w", slug, err)
	}
	return &p, nil
}

// PersonajeMentions lists every mention with its article date and outlet.
func (s *PostgresStore) PersonajeMentions(ctx context.Context, personajeID int64) ([]sentiment.Mention, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT n.id, COALESCE(m.nombre, n.fuente, ''), pm.sentimiento, n.fecha
		FROM personaje_menciones pm
		JOIN noticias n ON n.id = pm.noticia_id
		LEFT JOIN medios m ON m.id = n.medio_id
		WHERE pm.personaje_id = $1
		ORDER BY n.fecha`, personajeID)
	if err != nil {
		return nil, fmt.Errorf("personaje mentions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (sentiment.Mention, error) {
		var m sentiment.Mention
		err := row.Scan(&m.ArticleID, &m.Outlet, &m.Sentiment, &m.Date)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("personaje mentions: %w", err)
	}
	return out, nil
}

// PendingPersonajes lists review candidates with at least minMentions.
func (s *PostgresStore) PendingPersonajes(ctx context.Context, minMentions int) ([]Personaje, error) {
	out, err := s.queryPersonajes(ctx, `SELECT `+pgPersonajeCols+` FROM personajes
		WHERE pendiente AND NOT activo AND menciones >= $1
		ORDER BY menciones DESC`, minMentions)
	if err != nil {
		return nil, fmt.Errorf("pending personajes: %w", err)
	}
	return out, nil
}

// ApprovePersonaje activates a pending personaje, applying overrides.
func (s *PostgresStore) ApprovePersonaje(ctx context.Context, id int64, a Approval) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE personajes SET
		  nombre = COALESCE($2, nombre),
		  cargo = COALESCE($3, cargo),
		  partido = COALESCE($4, partido),
		  bio = COALESCE($5, bio),
		  foto_url = COALESCE($6, foto_url),
		  pendiente = false,
		  activo = true
		WHERE id = $1`, id, a.Name, a.Role, a.Party, a.Bio, a.PhotoURL)
	if err != nil {
		return fmt.Errorf("approve personaje: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RejectPersonaje takes a candidate out of the review queue.
func (s *PostgresStore) RejectPersonaje(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE personajes SET pendiente = false, activo = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("reject personaje: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
