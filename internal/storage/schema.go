package storage

// SQLiteSchema mirrors PostgresSchema with SQLite types: tags are a JSON
// array and vectors are little-endian float32 blobs.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS medios (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    nombre TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE,
    sesgo_politico TEXT,
    linea_editorial TEXT,
    grupo_empresarial TEXT,
    sitio_web TEXT,
    logo_url TEXT,
    feed_url TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS historias (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    titulo_generado TEXT NOT NULL,
    resumen_ia TEXT,
    categoria_ia TEXT,
    peso_relevancia REAL,
    tags TEXT NOT NULL DEFAULT '[]',
    fecha DATETIME NOT NULL,
    fecha_primer_reporte DATETIME,
    conteo INTEGER,
    noticias_procesadas_count INTEGER,
    vector_centro BLOB
);

CREATE INDEX IF NOT EXISTS idx_historias_fecha ON historias(fecha DESC);

CREATE TABLE IF NOT EXISTS noticias (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    titulo TEXT NOT NULL,
    link TEXT NOT NULL UNIQUE,
    content TEXT,
    fuente TEXT,
    medio_id INTEGER REFERENCES medios(id) ON DELETE SET NULL,
    historia_final_id INTEGER REFERENCES historias(id) ON DELETE SET NULL,
    resumen_ia TEXT,
    sesgo_ia TEXT,
    tono_ia TEXT,
    imagen_url TEXT,
    estado TEXT NOT NULL DEFAULT 'pendiente',
    fecha DATETIME NOT NULL,
    embedding BLOB
);

CREATE INDEX IF NOT EXISTS idx_noticias_historia ON noticias(historia_final_id);
CREATE INDEX IF NOT EXISTS idx_noticias_medio ON noticias(medio_id);
CREATE INDEX IF NOT EXISTS idx_noticias_fecha ON noticias(fecha DESC);

CREATE TABLE IF NOT EXISTS personajes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    nombre TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE,
    cargo TEXT,
    partido TEXT,
    bio TEXT,
    foto_url TEXT,
    menciones INTEGER NOT NULL DEFAULT 0,
    sentimiento_positivo INTEGER NOT NULL DEFAULT 0,
    sentimiento_neutro INTEGER NOT NULL DEFAULT 0,
    sentimiento_negativo INTEGER NOT NULL DEFAULT 0,
    pendiente BOOLEAN NOT NULL DEFAULT 1,
    activo BOOLEAN NOT NULL DEFAULT 0,
    primera_mencion DATETIME,
    ultima_mencion DATETIME
);

CREATE TABLE IF NOT EXISTS personaje_menciones (
    personaje_id INTEGER NOT NULL,
    noticia_id INTEGER NOT NULL,
    sentimiento TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (personaje_id, noticia_id),
    FOREIGN KEY (personaje_id) REFERENCES personajes(id) ON DELETE CASCADE,
    FOREIGN KEY (noticia_id) REFERENCES noticias(id) ON DELETE CASCADE
);
`

// PostgresSchema is applied by Init. It is idempotent but is not a
// migration system; column changes need a manual ALTER.
const PostgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS medios (
    id BIGSERIAL PRIMARY KEY,
    nombre TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE,
    sesgo_politico TEXT,
    linea_editorial TEXT,
    grupo_empresarial TEXT,
    sitio_web TEXT,
    logo_url TEXT,
    feed_url TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS historias (
    id BIGSERIAL PRIMARY KEY,
    titulo_generado TEXT NOT NULL,
    resumen_ia TEXT,
    categoria_ia TEXT,
    peso_relevancia DOUBLE PRECISION,
    tags TEXT[] NOT NULL DEFAULT '{}',
    fecha TIMESTAMPTZ NOT NULL,
    fecha_primer_reporte TIMESTAMPTZ,
    conteo INTEGER,
    noticias_procesadas_count INTEGER,
    vector_centro vector
);

CREATE INDEX IF NOT EXISTS idx_historias_fecha ON historias(fecha DESC);
CREATE INDEX IF NOT EXISTS idx_historias_tags ON historias USING GIN (tags);

CREATE TABLE IF NOT EXISTS noticias (
    id BIGSERIAL PRIMARY KEY,
    titulo TEXT NOT NULL,
    link TEXT NOT NULL UNIQUE,
    content TEXT,
    fuente TEXT,
    medio_id BIGINT REFERENCES medios(id) ON DELETE SET NULL,
    historia_final_id BIGINT REFERENCES historias(id) ON DELETE SET NULL,
    resumen_ia TEXT,
    sesgo_ia TEXT,
    tono_ia TEXT,
    imagen_url TEXT,
    estado TEXT NOT NULL DEFAULT 'pendiente',
    fecha TIMESTAMPTZ NOT NULL,
    embedding vector
);

CREATE INDEX IF NOT EXISTS idx_noticias_historia ON noticias(historia_final_id);
CREATE INDEX IF NOT EXISTS idx_noticias_medio ON noticias(medio_id);
CREATE INDEX IF NOT EXISTS idx_noticias_fecha ON noticias(fecha DESC);

CREATE TABLE IF NOT EXISTS personajes (
    id BIGSERIAL PRIMARY KEY,
    nombre TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE,
    cargo TEXT,
    partido TEXT,
    bio TEXT,
    foto_url TEXT,
    menciones INTEGER NOT NULL DEFAULT 0,
    sentimiento_positivo INTEGER NOT NULL DEFAULT 0,
    sentimiento_neutro INTEGER NOT NULL DEFAULT 0,
    sentimiento_negativo INTEGER NOT NULL DEFAULT 0,
    pendiente BOOLEAN NOT NULL DEFAULT true,
    activo BOOLEAN NOT NULL DEFAULT false,
    primera_mencion TIMESTAMPTZ,
    ultima_mencion TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS personaje_menciones (
    personaje_id BIGINT NOT NULL REFERENCES personajes(id) ON DELETE CASCADE,
    noticia_id BIGINT NOT NULL REFERENCES noticias(id) ON DELETE CASCADE,
    sentimiento TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (personaje_id, noticia_id)
);
`
