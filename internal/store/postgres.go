package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/leadgen-cli/internal/db"
	"github.com/sells-group/leadgen-cli/internal/model"
)

// PostgresStore implements Store using pgxpool. Lead locations live in a
// PostGIS geometry(Point,4326) column.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	request      JSONB NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	error        TEXT NOT NULL DEFAULT '',
	total_leads  INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS leads (
	id               TEXT PRIMARY KEY,
	run_id           TEXT NOT NULL REFERENCES runs(id),
	business_name    TEXT NOT NULL,
	address          TEXT NOT NULL DEFAULT '',
	location         geometry(Point, 4326),
	phone            TEXT NOT NULL DEFAULT '',
	website          TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	best_email       TEXT NOT NULL DEFAULT '',
	confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	sources          JSONB NOT NULL,
	field_provenance JSONB,
	additional_data  JSONB,
	enrichment_data  JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS email_drafts (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	lead_id    TEXT NOT NULL REFERENCES leads(id),
	to_address TEXT NOT NULL,
	subject    TEXT NOT NULL,
	body       TEXT NOT NULL,
	language   TEXT NOT NULL,
	generator  TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'drafted',
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	sent_at    TIMESTAMPTZ
);

ALTER TABLE email_drafts ADD COLUMN IF NOT EXISTS status TEXT NOT NULL DEFAULT 'drafted';
ALTER TABLE email_drafts ADD COLUMN IF NOT EXISTS error TEXT NOT NULL DEFAULT '';
ALTER TABLE email_drafts ADD COLUMN IF NOT EXISTS sent_at TIMESTAMPTZ;

CREATE TABLE IF NOT EXISTS opt_outs (
	email      TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_logs (
	id         BIGSERIAL PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	level      TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS provider_usage (
	provider TEXT NOT NULL,
	day      DATE NOT NULL,
	credits  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (provider, day)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_leads_run_id ON leads(run_id);
CREATE INDEX IF NOT EXISTS idx_leads_location ON leads USING GIST(location);
CREATE INDEX IF NOT EXISTS idx_email_drafts_run_id ON email_drafts(run_id);
CREATE INDEX IF NOT EXISTS idx_run_logs_run_id ON run_logs(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, req model.RunRequest) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal request")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, request, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, reqJSON, string(model.RunStatusPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Request:   req,
		Status:    model.RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

const pgRunColumns = `id, request, status, error, total_leads, created_at, updated_at, completed_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx,
		`SELECT `+pgRunColumns+` FROM runs WHERE id = $1`,
		runID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + pgRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, totalLeads int) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, total_leads = $2, updated_at = $3, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusCompleted), totalLeads, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, msg string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), msg, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

const pgInsertLead = `INSERT INTO leads (
	id, run_id, business_name, address, location, phone, website, email,
	best_email, confidence_score, sources, field_provenance, additional_data, enrichment_data, created_at
) VALUES ($1, $2, $3, $4, ST_GeomFromEWKB($5), $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

func (s *PostgresStore) SaveLeads(ctx context.Context, runID string, leads []model.MergedLead) ([]model.Lead, error) {
	if len(leads) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	out := make([]model.Lead, 0, len(leads))

	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, l := range leads {
			j, err := encodeLead(l)
			if err != nil {
				return err
			}
			loc, err := EncodePoint(l.Latitude, l.Longitude)
			if err != nil {
				return err
			}
			id := uuid.New().String()
			_, err = tx.Exec(ctx, pgInsertLead,
				id, runID, l.Name, l.Address, loc, l.Phone, l.Website, l.Email,
				l.BestEmail, l.ConfidenceScore, j.sources, j.provenance, j.additional, j.enrichment, now,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: insert lead %q", l.Name)
			}
			out = append(out, model.Lead{ID: id, RunID: runID, CreatedAt: now, MergedLead: l})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, runID string, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT id, run_id, business_name, address, ST_AsEWKB(location), phone, website, email,
		best_email, confidence_score, sources, field_provenance, additional_data, enrichment_data, created_at
		FROM leads WHERE run_id = $1`
	args := []any{runID}
	argIdx := 2

	if filter.MinScore > 0 {
		query += fmt.Sprintf(` AND confidence_score >= $%d`, argIdx)
		args = append(args, filter.MinScore)
		argIdx++
	}
	if filter.HasEmail {
		query += ` AND best_email <> ''`
	}
	query += ` ORDER BY confidence_score DESC, business_name ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
		argIdx++
		if filter.Offset > 0 {
			query += fmt.Sprintf(` OFFSET $%d`, argIdx)
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list leads for run %s", runID)
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var l model.Lead
		var loc []byte
		var j leadJSON
		if err := rows.Scan(&l.ID, &l.RunID, &l.Name, &l.Address, &loc, &l.Phone, &l.Website, &l.Email,
			&l.BestEmail, &l.ConfidenceScore, &j.sources, &j.provenance, &j.additional, &j.enrichment, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		if l.Latitude, l.Longitude, err = DecodePoint(loc); err != nil {
			return nil, err
		}
		if err := decodeLead(&l, j); err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

var draftColumns = []string{"id", "run_id", "lead_id", "to_address", "subject", "body", "language", "generator", "status", "error", "created_at"}

func (s *PostgresStore) SaveEmailDrafts(ctx context.Context, drafts []model.EmailDraft) error {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(drafts))
	for i := range drafts {
		d := &drafts[i]
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
		d.Status = draftStatus(d.Status)
		rows = append(rows, []any{d.ID, d.RunID, d.LeadID, d.ToAddress, d.Subject, d.Body, d.Language, d.Generator, string(d.Status), d.Error, d.CreatedAt})
	}
	_, err := db.CopyFrom(ctx, s.pool, "email_drafts", draftColumns, rows)
	return eris.Wrap(err, "postgres: save drafts")
}

const pgDraftColumns = `id, run_id, lead_id, to_address, subject, body, language, generator, status, error, created_at, sent_at`

func (s *PostgresStore) ListEmailDrafts(ctx context.Context, runID string) ([]model.EmailDraft, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgDraftColumns+` FROM email_drafts WHERE run_id = $1 ORDER BY created_at, id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list drafts for run %s", runID)
	}
	defer rows.Close()

	var drafts []model.EmailDraft
	for rows.Next() {
		d, err := scanPgDraft(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan draft")
		}
		drafts = append(drafts, *d)
	}
	return drafts, eris.Wrap(rows.Err(), "postgres: list drafts iterate")
}

func (s *PostgresStore) GetEmailDraft(ctx context.Context, draftID string) (*model.EmailDraft, error) {
	d, err := scanPgDraft(s.pool.QueryRow(ctx,
		`SELECT `+pgDraftColumns+` FROM email_drafts WHERE id = $1`,
		draftID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get draft %s", draftID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get draft %s", draftID)
	}
	return d, nil
}

func (s *PostgresStore) UpdateEmailDraftStatus(ctx context.Context, draftID string, status model.EmailStatus, errMsg string) error {
	var sentAt *time.Time
	if status == model.EmailSent {
		now := time.Now().UTC()
		sentAt = &now
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE email_drafts SET status = $1, error = $2, sent_at = COALESCE($3, sent_at) WHERE id = $4`,
		string(status), errMsg, sentAt, draftID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update draft %s", draftID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update draft %s", draftID)
	}
	return nil
}

func (s *PostgresStore) AddOptOut(ctx context.Context, email string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO opt_outs (email) VALUES ($1) ON CONFLICT (email) DO NOTHING`,
		normalizeAddress(email),
	)
	return eris.Wrap(err, "postgres: add opt-out")
}

func (s *PostgresStore) IsOptedOut(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM opt_outs WHERE email = $1)`,
		normalizeAddress(email),
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "postgres: check opt-out")
	}
	return exists, nil
}

func (s *PostgresStore) AddLog(ctx context.Context, runID string, level model.LogLevel, msg string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_logs (run_id, level, message, created_at) VALUES ($1, $2, $3, $4)`,
		runID, string(level), msg, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: add log for run %s", runID)
}

func (s *PostgresStore) ListLogs(ctx context.Context, runID string) ([]model.LogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, level, message, created_at FROM run_logs WHERE run_id = $1 ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list logs for run %s", runID)
	}
	defer rows.Close()

	var logs []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Level, &e.Message, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan log")
		}
		logs = append(logs, e)
	}
	return logs, eris.Wrap(rows.Err(), "postgres: list logs iterate")
}

func (s *PostgresStore) AddUsage(ctx context.Context, provider string, day time.Time, credits int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO provider_usage (provider, day, credits) VALUES ($1, $2, $3)
		 ON CONFLICT (provider, day) DO UPDATE SET credits = provider_usage.credits + EXCLUDED.credits`,
		provider, Day(day), credits,
	)
	return eris.Wrapf(err, "postgres: add usage for %s", provider)
}

func (s *PostgresStore) UsageSince(ctx context.Context, provider string, since time.Time) (int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(credits), 0) FROM provider_usage WHERE provider = $1 AND day >= $2`,
		provider, Day(since),
	).Scan(&total)
	return total, eris.Wrapf(err, "postgres: usage for %s", provider)
}

func (s *PostgresStore) UsageByProvider(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT provider, SUM(credits) FROM provider_usage WHERE day >= $1 GROUP BY provider`,
		Day(since),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: usage by provider")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan usage")
		}
		out[p] = n
	}
	return out, eris.Wrap(rows.Err(), "postgres: usage iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var reqJSON []byte
	var completed *time.Time
	if err := row.Scan(&r.ID, &reqJSON, &r.Status, &r.Error, &r.TotalLeads, &r.CreatedAt, &r.UpdatedAt, &completed); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(reqJSON, &r.Request); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal request")
	}
	r.CompletedAt = completed
	return &r, nil
}

func scanPgDraft(row pgx.Row) (*model.EmailDraft, error) {
	var d model.EmailDraft
	if err := row.Scan(&d.ID, &d.RunID, &d.LeadID, &d.ToAddress, &d.Subject, &d.Body,
		&d.Language, &d.Generator, &d.Status, &d.Error, &d.CreatedAt, &d.SentAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// EncodePoint renders a lat/lon pair as EWKB with SRID 4326. A missing
// coordinate yields nil.
func EncodePoint(lat, lon *float64) ([]byte, error) {
	if lat == nil || lon == nil {
		return nil, nil
	}
	p := geom.NewPointFlat(geom.XY, []float64{*lon, *lat}).SetSRID(4326)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode point")
	}
	return data, nil
}

// DecodePoint parses an EWKB point back into lat/lon. Empty input yields
// nil coordinates.
func DecodePoint(data []byte) (*float64, *float64, error) {
	if len(data) == 0 {
		return nil, nil, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: decode point")
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return nil, nil, eris.Errorf("store: decode point: unexpected geometry %T", g)
	}
	lon, lat := p.X(), p.Y()
	return &lat, &lon, nil
}
