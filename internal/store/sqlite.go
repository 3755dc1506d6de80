package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadgen-cli/internal/model"
)

const dayLayout = "2006-01-02"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	request      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	error        TEXT NOT NULL DEFAULT '',
	total_leads  INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS leads (
	id               TEXT PRIMARY KEY,
	run_id           TEXT NOT NULL REFERENCES runs(id),
	business_name    TEXT NOT NULL,
	address          TEXT NOT NULL DEFAULT '',
	latitude         REAL,
	longitude        REAL,
	phone            TEXT NOT NULL DEFAULT '',
	website          TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	best_email       TEXT NOT NULL DEFAULT '',
	confidence_score REAL NOT NULL DEFAULT 0,
	sources          TEXT NOT NULL,
	field_provenance TEXT,
	additional_data  TEXT,
	enrichment_data  TEXT,
	created_at       DATETIME NOT NULL
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
	created_at DATETIME NOT NULL,
	sent_at    DATETIME
);

CREATE TABLE IF NOT EXISTS opt_outs (
	email      TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS run_logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	level      TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS provider_usage (
	provider TEXT NOT NULL,
	day      TEXT NOT NULL,
	credits  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (provider, day)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_leads_run_id ON leads(run_id);
CREATE INDEX IF NOT EXISTS idx_email_drafts_run_id ON email_drafts(run_id);
CREATE INDEX IF NOT EXISTS idx_run_logs_run_id ON run_logs(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, req model.RunRequest) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal request")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, request, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(reqJSON), string(model.RunStatusPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Request:   req,
		Status:    model.RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

const sqliteRunColumns = `id, request, status, error, total_leads, created_at, updated_at, completed_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, totalLeads int) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, total_leads = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusCompleted), totalLeads, now, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, msg string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), msg, now, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) SaveLeads(ctx context.Context, runID string, leads []model.MergedLead) ([]model.Lead, error) {
	if len(leads) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin save leads")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO leads (
		id, run_id, business_name, address, latitude, longitude, phone, website, email,
		best_email, confidence_score, sources, field_provenance, additional_data, enrichment_data, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare lead insert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	out := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		j, err := encodeLead(l)
		if err != nil {
			return nil, err
		}
		id := uuid.New().String()
		_, err = stmt.ExecContext(ctx,
			id, runID, l.Name, l.Address, l.Latitude, l.Longitude, l.Phone, l.Website, l.Email,
			l.BestEmail, l.ConfidenceScore, string(j.sources), string(j.provenance), string(j.additional), string(j.enrichment), now,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert lead %q", l.Name)
		}
		out = append(out, model.Lead{ID: id, RunID: runID, CreatedAt: now, MergedLead: l})
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit leads")
	}
	return out, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, runID string, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT id, run_id, business_name, address, latitude, longitude, phone, website, email,
		best_email, confidence_score, sources, field_provenance, additional_data, enrichment_data, created_at
		FROM leads WHERE run_id = ?`
	args := []any{runID}

	if filter.MinScore > 0 {
		query += ` AND confidence_score >= ?`
		args = append(args, filter.MinScore)
	}
	if filter.HasEmail {
		query += ` AND best_email != ''`
	}
	query += ` ORDER BY confidence_score DESC, business_name ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list leads for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var leads []model.Lead
	for rows.Next() {
		var l model.Lead
		var lat, lon sql.NullFloat64
		var sources string
		var provenance, additional, enrichment sql.NullString
		if err := rows.Scan(&l.ID, &l.RunID, &l.Name, &l.Address, &lat, &lon, &l.Phone, &l.Website, &l.Email,
			&l.BestEmail, &l.ConfidenceScore, &sources, &provenance, &additional, &enrichment, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		l.Latitude = nullFloat(lat)
		l.Longitude = nullFloat(lon)
		if err := decodeLead(&l, leadJSON{
			sources:    []byte(sources),
			provenance: []byte(provenance.String),
			additional: []byte(additional.String),
			enrichment: []byte(enrichment.String),
		}); err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) SaveEmailDrafts(ctx context.Context, drafts []model.EmailDraft) error {
	if len(drafts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save drafts")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for i := range drafts {
		d := &drafts[i]
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
		d.Status = draftStatus(d.Status)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO email_drafts (id, run_id, lead_id, to_address, subject, body, language, generator, status, error, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.RunID, d.LeadID, d.ToAddress, d.Subject, d.Body, d.Language, d.Generator, string(d.Status), d.Error, d.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert draft for lead %s", d.LeadID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit drafts")
}

const sqliteDraftColumns = `id, run_id, lead_id, to_address, subject, body, language, generator, status, error, created_at, sent_at`

func (s *SQLiteStore) ListEmailDrafts(ctx context.Context, runID string) ([]model.EmailDraft, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteDraftColumns+` FROM email_drafts WHERE run_id = ? ORDER BY created_at, id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list drafts for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var drafts []model.EmailDraft
	for rows.Next() {
		d, err := scanSQLiteDraft(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan draft")
		}
		drafts = append(drafts, *d)
	}
	return drafts, eris.Wrap(rows.Err(), "sqlite: list drafts iterate")
}

func (s *SQLiteStore) GetEmailDraft(ctx context.Context, draftID string) (*model.EmailDraft, error) {
	d, err := scanSQLiteDraft(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteDraftColumns+` FROM email_drafts WHERE id = ?`,
		draftID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get draft %s", draftID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get draft %s", draftID)
	}
	return d, nil
}

func (s *SQLiteStore) UpdateEmailDraftStatus(ctx context.Context, draftID string, status model.EmailStatus, errMsg string) error {
	var sentAt any
	if status == model.EmailSent {
		sentAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE email_drafts SET status = ?, error = ?, sent_at = COALESCE(?, sent_at) WHERE id = ?`,
		string(status), errMsg, sentAt, draftID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update draft %s", draftID)
	}
	return eris.Wrap(checkRowsAffected(res, "draft", draftID), "sqlite: update draft")
}

func (s *SQLiteStore) AddOptOut(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO opt_outs (email, created_at) VALUES (?, ?) ON CONFLICT (email) DO NOTHING`,
		normalizeAddress(email), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: add opt-out")
}

func (s *SQLiteStore) IsOptedOut(ctx context.Context, email string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM opt_outs WHERE email = ?`,
		normalizeAddress(email),
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: check opt-out")
	}
	return n > 0, nil
}

func (s *SQLiteStore) AddLog(ctx context.Context, runID string, level model.LogLevel, msg string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_logs (run_id, level, message, created_at) VALUES (?, ?, ?, ?)`,
		runID, string(level), msg, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: add log for run %s", runID)
}

func (s *SQLiteStore) ListLogs(ctx context.Context, runID string) ([]model.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, level, message, created_at FROM run_logs WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list logs for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var logs []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Level, &e.Message, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan log")
		}
		logs = append(logs, e)
	}
	return logs, eris.Wrap(rows.Err(), "sqlite: list logs iterate")
}

func (s *SQLiteStore) AddUsage(ctx context.Context, provider string, day time.Time, credits int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_usage (provider, day, credits) VALUES (?, ?, ?)
		 ON CONFLICT (provider, day) DO UPDATE SET credits = provider_usage.credits + excluded.credits`,
		provider, Day(day).Format(dayLayout), credits,
	)
	return eris.Wrapf(err, "sqlite: add usage for %s", provider)
}

func (s *SQLiteStore) UsageSince(ctx context.Context, provider string, since time.Time) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(credits), 0) FROM provider_usage WHERE provider = ? AND day >= ?`,
		provider, Day(since).Format(dayLayout),
	).Scan(&total)
	return total, eris.Wrapf(err, "sqlite: usage for %s", provider)
}

func (s *SQLiteStore) UsageByProvider(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, SUM(credits) FROM provider_usage WHERE day >= ? GROUP BY provider`,
		Day(since).Format(dayLayout),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: usage by provider")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string]int)
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan usage")
		}
		out[p] = n
	}
	return out, eris.Wrap(rows.Err(), "sqlite: usage iterate")
}

// helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row rowScanner) (*model.Run, error) {
	var r model.Run
	var reqJSON string
	var completed sql.NullTime
	if err := row.Scan(&r.ID, &reqJSON, &r.Status, &r.Error, &r.TotalLeads, &r.CreatedAt, &r.UpdatedAt, &completed); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(reqJSON), &r.Request); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal request")
	}
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func scanSQLiteDraft(row rowScanner) (*model.EmailDraft, error) {
	var d model.EmailDraft
	var sent sql.NullTime
	if err := row.Scan(&d.ID, &d.RunID, &d.LeadID, &d.ToAddress, &d.Subject, &d.Body,
		&d.Language, &d.Generator, &d.Status, &d.Error, &d.CreatedAt, &sent); err != nil {
		return nil, err
	}
	if sent.Valid {
		t := sent.Time
		d.SentAt = &t
	}
	return &d, nil
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
