package store

// schemaSQL creates the tables on first use. Every statement is idempotent.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS processed_data (
    id           BIGSERIAL PRIMARY KEY,
    filename     TEXT        NOT NULL,
    layout       TEXT        NOT NULL,
    line_number  INTEGER     NOT NULL,
    data         JSONB       NOT NULL,
    processed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS processed_data_filename_idx ON processed_data (filename);

CREATE TABLE IF NOT EXISTS ingested_files (
    checksum     TEXT PRIMARY KEY,
    filename     TEXT        NOT NULL,
    layout       TEXT        NOT NULL,
    record_count INTEGER     NOT NULL,
    ingested_at  TIMESTAMPTZ NOT NULL
);
`

const insertIngestedSQL = `
INSERT INTO ingested_files (checksum, filename, layout, record_count, ingested_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (checksum) DO NOTHING`

// Appending mode keeps a log row per delivery, so the checksum key must not
// reject repeats; the row is upserted instead.
const upsertIngestedSQL = `
INSERT INTO ingested_files (checksum, filename, layout, record_count, ingested_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (checksum) DO UPDATE SET
    filename = EXCLUDED.filename,
    record_count = EXCLUDED.record_count,
    ingested_at = EXCLUDED.ingested_at`

var processedColumns = []string{"filename", "layout", "line_number", "data", "processed_at"}
