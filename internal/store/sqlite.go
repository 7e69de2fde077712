package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
)

// SQLiteStore implements Store on a local SQLite file. It backs single-node
// deployments and local development; claim semantics rely on a transaction
// instead of row locks.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the SQLite database at path.
func NewSQLite(path string) (*SQLiteStore, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}

	// One writer at a time keeps the claim transaction simple.
	database.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := database.Exec(pragma); err != nil {
			database.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", pragma)
		}
	}

	return &SQLiteStore{db: database}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS resolutions (
	id            TEXT PRIMARY KEY,
	input_address TEXT NOT NULL,
	address       TEXT NOT NULL,
	canonical_key TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	owner_type    TEXT NOT NULL DEFAULT 'unknown',
	result        TEXT,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS candidate_scores (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	resolution_id TEXT NOT NULL REFERENCES resolutions(id),
	name_key      TEXT NOT NULL,
	full_name     TEXT NOT NULL,
	total         REAL NOT NULL,
	rank          INTEGER NOT NULL,
	created_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS candidate_signals (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	resolution_id TEXT NOT NULL REFERENCES resolutions(id),
	name_key      TEXT NOT NULL,
	signal_id     TEXT NOT NULL,
	label         TEXT NOT NULL,
	weight        REAL NOT NULL,
	value         REAL NOT NULL,
	contribution  REAL NOT NULL,
	reason        TEXT
);

CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	queue         TEXT NOT NULL,
	name          TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	payload       TEXT,
	output        TEXT,
	root_job_id   TEXT NOT NULL,
	parent_job_id TEXT,
	error         TEXT,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL,
	started_at    TIMESTAMP,
	finished_at   TIMESTAMP
);

CREATE TABLE IF NOT EXISTS corporate_owners (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_name     TEXT NOT NULL,
	company_number TEXT,
	title_number   TEXT,
	address_line1  TEXT NOT NULL,
	address_line2  TEXT,
	town           TEXT,
	postcode       TEXT NOT NULL,
	dataset        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS dataset_meta (
	dataset      TEXT PRIMARY KEY,
	row_count    INTEGER NOT NULL,
	refreshed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_resolutions_status ON resolutions(status);
CREATE INDEX IF NOT EXISTS idx_jobs_queue_status ON jobs(queue, status, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_root ON jobs(root_job_id, status);
CREATE INDEX IF NOT EXISTS idx_corporate_owners_postcode ON corporate_owners(postcode);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return eris.Wrap(s.db.Close(), "sqlite: close")
}

func (s *SQLiteStore) CreateResolution(ctx context.Context, res *model.PropertyResolution) error {
	addrJSON, err := json.Marshal(res.Address)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal address")
	}
	now := time.Now().UTC()
	res.CreatedAt = now
	res.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO resolutions (id, input_address, address, canonical_key, status, owner_type, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.InputAddress, string(addrJSON), res.Address.CanonicalKey,
		string(res.Status), string(res.OwnerType), now, now,
	)
	return eris.Wrap(err, "sqlite: insert resolution")
}

func (s *SQLiteStore) UpdateResolutionStatus(ctx context.Context, id string, status model.ResolutionStatus, ownerType model.OwnerType) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE resolutions SET status = ?, owner_type = ?, updated_at = ? WHERE id = ?`,
		string(status), string(ownerType), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update resolution status %s", id)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrNotFound, "resolution %s", id)
	}
	return nil
}

func (s *SQLiteStore) SetResolutionResult(ctx context.Context, id string, status model.ResolutionStatus, ownerType model.OwnerType, result *model.ResolutionResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE resolutions SET result = ?, status = ?, owner_type = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(status), string(ownerType), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set resolution result %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrNotFound, "resolution %s", id)
	}
	return nil
}

func (s *SQLiteStore) GetResolution(ctx context.Context, id string) (*model.PropertyResolution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, input_address, address, status, owner_type, result, created_at, updated_at
		 FROM resolutions WHERE id = ?`, id)
	return scanSQLiteResolution(row)
}

func (s *SQLiteStore) ListResolutions(ctx context.Context, filter ResolutionFilter) ([]model.PropertyResolution, error) {
	query := `SELECT id, input_address, address, status, owner_type, result, created_at, updated_at
	          FROM resolutions WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + strconv.Itoa(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list resolutions")
	}
	defer rows.Close()

	var out []model.PropertyResolution
	for rows.Next() {
		res, err := scanSQLiteResolution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list resolutions")
}

func (s *SQLiteStore) SaveCandidateScores(ctx context.Context, resolutionID string, scores []model.OccupantScore) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin scores tx")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, sc := range scores {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO candidate_scores (resolution_id, name_key, full_name, total, rank, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			resolutionID, sc.NameKey, sc.FullName, sc.Total, sc.Rank, now,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert candidate score")
		}
		for _, sig := range sc.Signals {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO candidate_signals (resolution_id, name_key, signal_id, label, weight, value, contribution, reason)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				resolutionID, sc.NameKey, sig.ID, sig.Label, sig.Weight, sig.Value, sig.Contribution, sig.Reason,
			); err != nil {
				return eris.Wrap(err, "sqlite: insert candidate signal")
			}
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit scores tx")
}

func (s *SQLiteStore) EnqueueJob(ctx context.Context, job model.JobRecord) (bool, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO jobs (id, queue, name, status, payload, root_job_id, parent_job_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Queue, job.Name, string(model.JobPending), string(job.Payload),
		job.RootID, nullable(job.ParentID), now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: enqueue job %s", job.ID)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: enqueue rows affected")
	}
	return n > 0, nil
}

// ClaimJob selects the oldest pending job and flips it to running inside one
// transaction. The single-connection pool serializes claimers.
func (s *SQLiteStore) ClaimJob(ctx context.Context, queue string) (*model.JobRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin claim tx")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id FROM jobs WHERE queue = ? AND status = 'pending' ORDER BY created_at LIMIT 1`,
		queue)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: select pending on %s", queue)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = 'running', started_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: mark running %s", id)
	}

	job, err := scanSQLiteJob(tx.QueryRowContext(ctx,
		`SELECT id, queue, name, status, payload, output, root_job_id, parent_job_id, error, created_at, updated_at, started_at, finished_at
		 FROM jobs WHERE id = ?`, id))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: read claimed job %s", id)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit claim tx")
	}
	return job, nil
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, id string, output []byte) error {
	now := time.Now().UTC()
	var out any
	if output != nil {
		out = string(output)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'completed', output = COALESCE(?, output), finished_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'running'`,
		out, now, now, id)
	return eris.Wrapf(err, "sqlite: complete job %s", id)
}

func (s *SQLiteStore) FailJob(ctx context.Context, id string, errMsg string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'failed', error = ?, finished_at = ?, updated_at = ? WHERE id = ?`,
		errMsg, now, now, id)
	return eris.Wrapf(err, "sqlite: fail job %s", id)
}

func (s *SQLiteStore) CancelPendingJobs(ctx context.Context, rootID, name, excludeID string) (int, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'cancelled', finished_at = ?, updated_at = ?
		 WHERE root_job_id = ? AND name = ? AND status = 'pending' AND id <> ?`,
		now, now, rootID, name, excludeID)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: cancel pending jobs under %s", rootID)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: cancel rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) CountActiveJobs(ctx context.Context, rootID, excludeID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM jobs
		 WHERE root_job_id = ? AND status IN ('pending', 'running') AND id <> ?`,
		rootID, excludeID).Scan(&count)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: count active jobs under %s", rootID)
	}
	return count, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.JobRecord, error) {
	job, err := scanSQLiteJob(s.db.QueryRowContext(ctx,
		`SELECT id, queue, name, status, payload, output, root_job_id, parent_job_id, error, created_at, updated_at, started_at, finished_at
		 FROM jobs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "job %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	return job, nil
}

func (s *SQLiteStore) ListJobsByRoot(ctx context.Context, rootID string) ([]model.JobRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, queue, name, status, payload, output, root_job_id, parent_job_id, error, created_at, updated_at, started_at, finished_at
		 FROM jobs WHERE root_job_id = ? ORDER BY created_at`, rootID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list jobs under %s", rootID)
	}
	defer rows.Close()

	var out []model.JobRecord
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job row")
		}
		out = append(out, *job)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: job rows")
}

func (s *SQLiteStore) ReplaceOwnershipDataset(ctx context.Context, dataset string, records []model.CorporateOwnerRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin dataset tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM corporate_owners WHERE dataset = ?`, dataset); err != nil {
		return eris.Wrap(err, "sqlite: delete old dataset rows")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO corporate_owners (owner_name, company_number, title_number, address_line1, address_line2, town, postcode, dataset)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare dataset insert")
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.OwnerName, r.CompanyNumber, r.TitleNumber,
			r.AddressLine1, r.AddressLine2, r.Town, r.Postcode, dataset,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert dataset row")
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dataset_meta (dataset, row_count, refreshed_at) VALUES (?, ?, ?)
		 ON CONFLICT (dataset) DO UPDATE SET row_count = excluded.row_count, refreshed_at = excluded.refreshed_at`,
		dataset, int64(len(records)), time.Now().UTC(),
	); err != nil {
		return eris.Wrap(err, "sqlite: update dataset meta")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit dataset tx")
}

func (s *SQLiteStore) OwnershipByPostcode(ctx context.Context, postcode string) ([]model.CorporateOwnerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_name, company_number, title_number, address_line1, address_line2, town, postcode, dataset
		 FROM corporate_owners WHERE postcode = ?`, postcode)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: ownership by postcode %s", postcode)
	}
	defer rows.Close()

	var out []model.CorporateOwnerRecord
	for rows.Next() {
		var r model.CorporateOwnerRecord
		var companyNumber, titleNumber, line2, town sql.NullString
		if err := rows.Scan(&r.ID, &r.OwnerName, &companyNumber, &titleNumber,
			&r.AddressLine1, &line2, &town, &r.Postcode, &r.Dataset); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ownership row")
		}
		r.CompanyNumber = companyNumber.String
		r.TitleNumber = titleNumber.String
		r.AddressLine2 = line2.String
		r.Town = town.String
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: ownership rows")
}

func (s *SQLiteStore) GetDatasetMeta(ctx context.Context, dataset string) (*model.DatasetMeta, error) {
	var meta model.DatasetMeta
	err := s.db.QueryRowContext(ctx,
		`SELECT dataset, row_count, refreshed_at FROM dataset_meta WHERE dataset = ?`, dataset).
		Scan(&meta.Dataset, &meta.RowCount, &meta.RefreshedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "dataset %s", dataset)
		}
		return nil, eris.Wrapf(err, "sqlite: dataset meta %s", dataset)
	}
	return &meta, nil
}

func scanSQLiteResolution(row rowScanner) (*model.PropertyResolution, error) {
	var res model.PropertyResolution
	var addrJSON string
	var resultJSON sql.NullString
	var status, ownerType string

	err := row.Scan(&res.ID, &res.InputAddress, &addrJSON, &status, &ownerType,
		&resultJSON, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrap(ErrNotFound, "resolution")
		}
		return nil, eris.Wrap(err, "sqlite: scan resolution")
	}

	if err := json.Unmarshal([]byte(addrJSON), &res.Address); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal address")
	}
	if resultJSON.Valid && resultJSON.String != "" {
		res.Result = &model.ResolutionResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), res.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	res.Status = model.ResolutionStatus(status)
	res.OwnerType = model.OwnerType(ownerType)
	return &res, nil
}

func scanSQLiteJob(row rowScanner) (*model.JobRecord, error) {
	var job model.JobRecord
	var status string
	var payload, output, parentID, errMsg sql.NullString
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(&job.ID, &job.Queue, &job.Name, &status, &payload, &output,
		&job.RootID, &parentID, &errMsg, &job.CreatedAt, &job.UpdatedAt,
		&startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	job.Status = model.JobStatus(status)
	if payload.Valid {
		job.Payload = []byte(payload.String)
	}
	if output.Valid {
		job.Output = []byte(output.String)
	}
	job.ParentID = parentID.String
	job.Error = errMsg.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return &job, nil
}
