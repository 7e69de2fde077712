package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/db"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool (or a pgxmock pool in tests).
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS resolutions (
	id            TEXT PRIMARY KEY,
	input_address TEXT NOT NULL,
	address       JSONB NOT NULL,
	canonical_key TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	owner_type    TEXT NOT NULL DEFAULT 'unknown',
	result        JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS candidate_scores (
	id            BIGSERIAL PRIMARY KEY,
	resolution_id TEXT NOT NULL REFERENCES resolutions(id),
	name_key      TEXT NOT NULL,
	full_name     TEXT NOT NULL,
	total         DOUBLE PRECISION NOT NULL,
	rank          INT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS candidate_signals (
	id            BIGSERIAL PRIMARY KEY,
	resolution_id TEXT NOT NULL REFERENCES resolutions(id),
	name_key      TEXT NOT NULL,
	signal_id     TEXT NOT NULL,
	label         TEXT NOT NULL,
	weight        DOUBLE PRECISION NOT NULL,
	value         DOUBLE PRECISION NOT NULL,
	contribution  DOUBLE PRECISION NOT NULL,
	reason        TEXT
);

CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	queue         TEXT NOT NULL,
	name          TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	payload       JSONB,
	output        JSONB,
	root_job_id   TEXT NOT NULL,
	parent_job_id TEXT,
	error         TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at    TIMESTAMPTZ,
	finished_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS corporate_owners (
	id             BIGSERIAL PRIMARY KEY,
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
	row_count    BIGINT NOT NULL,
	refreshed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_resolutions_status ON resolutions(status);
CREATE INDEX IF NOT EXISTS idx_resolutions_key ON resolutions(canonical_key);
CREATE INDEX IF NOT EXISTS idx_jobs_queue_status ON jobs(queue, status, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_root ON jobs(root_job_id, status);
CREATE INDEX IF NOT EXISTS idx_candidate_scores_resolution ON candidate_scores(resolution_id);
CREATE INDEX IF NOT EXISTS idx_candidate_signals_resolution ON candidate_signals(resolution_id);
CREATE INDEX IF NOT EXISTS idx_corporate_owners_postcode ON corporate_owners(postcode);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateResolution(ctx context.Context, res *model.PropertyResolution) error {
	addrJSON, err := json.Marshal(res.Address)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal address")
	}
	now := time.Now().UTC()
	res.CreatedAt = now
	res.UpdatedAt = now

	_, err = s.pool.Exec(ctx,
		`INSERT INTO resolutions (id, input_address, address, canonical_key, status, owner_type, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		res.ID, res.InputAddress, addrJSON, res.Address.CanonicalKey,
		string(res.Status), string(res.OwnerType), now, now,
	)
	return eris.Wrap(err, "postgres: insert resolution")
}

func (s *PostgresStore) UpdateResolutionStatus(ctx context.Context, id string, status model.ResolutionStatus, ownerType model.OwnerType) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE resolutions SET status = $1, owner_type = $2, updated_at = $3 WHERE id = $4`,
		string(status), string(ownerType), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update resolution status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "resolution %s", id)
	}
	return nil
}

func (s *PostgresStore) SetResolutionResult(ctx context.Context, id string, status model.ResolutionStatus, ownerType model.OwnerType, result *model.ResolutionResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE resolutions SET result = $1, status = $2, owner_type = $3, updated_at = $4 WHERE id = $5`,
		resultJSON, string(status), string(ownerType), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set resolution result %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "resolution %s", id)
	}
	return nil
}

func (s *PostgresStore) GetResolution(ctx context.Context, id string) (*model.PropertyResolution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, input_address, address, status, owner_type, result, created_at, updated_at
		 FROM resolutions WHERE id = $1`, id)
	return scanResolution(row)
}

func (s *PostgresStore) ListResolutions(ctx context.Context, filter ResolutionFilter) ([]model.PropertyResolution, error) {
	query := `SELECT id, input_address, address, status, owner_type, result, created_at, updated_at
	          FROM resolutions WHERE 1=1`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list resolutions")
	}
	defer rows.Close()

	var out []model.PropertyResolution
	for rows.Next() {
		res, err := scanResolution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list resolutions")
}

func (s *PostgresStore) SaveCandidateScores(ctx context.Context, resolutionID string, scores []model.OccupantScore) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin scores tx")
	}
	defer tx.Rollback(ctx)

	for _, sc := range scores {
		if _, err := tx.Exec(ctx,
			`INSERT INTO candidate_scores (resolution_id, name_key, full_name, total, rank)
			 VALUES ($1, $2, $3, $4, $5)`,
			resolutionID, sc.NameKey, sc.FullName, sc.Total, sc.Rank,
		); err != nil {
			return eris.Wrap(err, "postgres: insert candidate score")
		}
		for _, sig := range sc.Signals {
			if _, err := tx.Exec(ctx,
				`INSERT INTO candidate_signals (resolution_id, name_key, signal_id, label, weight, value, contribution, reason)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				resolutionID, sc.NameKey, sig.ID, sig.Label, sig.Weight, sig.Value, sig.Contribution, sig.Reason,
			); err != nil {
				return eris.Wrap(err, "postgres: insert candidate signal")
			}
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit scores tx")
}

func (s *PostgresStore) EnqueueJob(ctx context.Context, job model.JobRecord) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, queue, name, status, payload, root_job_id, parent_job_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		job.ID, job.Queue, job.Name, string(model.JobPending), []byte(job.Payload),
		job.RootID, nullable(job.ParentID), now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: enqueue job %s", job.ID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ClaimJob(ctx context.Context, queue string) (*model.JobRecord, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = 'running', started_at = now(), updated_at = now()
		 WHERE id = (
			SELECT id FROM jobs
			WHERE queue = $1 AND status = 'pending'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, queue, name, status, payload, output, root_job_id, parent_job_id, error, created_at, updated_at, started_at, finished_at`,
		queue)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: claim job on %s", queue)
	}
	return job, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id string, output []byte) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'completed', output = COALESCE($1, output), finished_at = now(), updated_at = now()
		 WHERE id = $2 AND status = 'running'`,
		output, id)
	return eris.Wrapf(err, "postgres: complete job %s", id)
}

func (s *PostgresStore) FailJob(ctx context.Context, id string, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'failed', error = $1, finished_at = now(), updated_at = now() WHERE id = $2`,
		errMsg, id)
	return eris.Wrapf(err, "postgres: fail job %s", id)
}

func (s *PostgresStore) CancelPendingJobs(ctx context.Context, rootID, name, excludeID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'cancelled', finished_at = now(), updated_at = now()
		 WHERE root_job_id = $1 AND name = $2 AND status = 'pending' AND id <> $3`,
		rootID, name, excludeID)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: cancel pending jobs under %s", rootID)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CountActiveJobs(ctx context.Context, rootID, excludeID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM jobs
		 WHERE root_job_id = $1 AND status IN ('pending', 'running') AND id <> $2`,
		rootID, excludeID).Scan(&count)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: count active jobs under %s", rootID)
	}
	return count, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.JobRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, queue, name, status, payload, output, root_job_id, parent_job_id, error, created_at, updated_at, started_at, finished_at
		 FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "job %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	return job, nil
}

func (s *PostgresStore) ListJobsByRoot(ctx context.Context, rootID string) ([]model.JobRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, queue, name, status, payload, output, root_job_id, parent_job_id, error, created_at, updated_at, started_at, finished_at
		 FROM jobs WHERE root_job_id = $1 ORDER BY created_at`, rootID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list jobs under %s", rootID)
	}
	defer rows.Close()

	var out []model.JobRecord
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job row")
		}
		out = append(out, *job)
	}
	return out, eris.Wrap(rows.Err(), "postgres: job rows")
}

// ReplaceOwnershipDataset swaps a dataset's rows in a single transaction:
// delete the old rows, COPY in the new ones, update the metadata row.
// Readers on other connections see either the old or the new dataset, never
// a mixture.
func (s *PostgresStore) ReplaceOwnershipDataset(ctx context.Context, dataset string, records []model.CorporateOwnerRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin dataset tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM corporate_owners WHERE dataset = $1`, dataset); err != nil {
		return eris.Wrap(err, "postgres: delete old dataset rows")
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			r.OwnerName, r.CompanyNumber, r.TitleNumber,
			r.AddressLine1, r.AddressLine2, r.Town, r.Postcode, dataset,
		})
	}
	if _, err := db.CopyFrom(ctx, tx, "corporate_owners",
		[]string{"owner_name", "company_number", "title_number", "address_line1", "address_line2", "town", "postcode", "dataset"},
		rows,
	); err != nil {
		return eris.Wrap(err, "postgres: copy dataset rows")
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO dataset_meta (dataset, row_count, refreshed_at) VALUES ($1, $2, $3)
		 ON CONFLICT (dataset) DO UPDATE SET row_count = EXCLUDED.row_count, refreshed_at = EXCLUDED.refreshed_at`,
		dataset, int64(len(records)), time.Now().UTC(),
	); err != nil {
		return eris.Wrap(err, "postgres: update dataset meta")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit dataset tx")
}

func (s *PostgresStore) OwnershipByPostcode(ctx context.Context, postcode string) ([]model.CorporateOwnerRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_name, company_number, title_number, address_line1, address_line2, town, postcode, dataset
		 FROM corporate_owners WHERE postcode = $1`, postcode)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: ownership by postcode %s", postcode)
	}
	defer rows.Close()

	var out []model.CorporateOwnerRecord
	for rows.Next() {
		var r model.CorporateOwnerRecord
		var companyNumber, titleNumber, line2, town *string
		if err := rows.Scan(&r.ID, &r.OwnerName, &companyNumber, &titleNumber,
			&r.AddressLine1, &line2, &town, &r.Postcode, &r.Dataset); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ownership row")
		}
		r.CompanyNumber = deref(companyNumber)
		r.TitleNumber = deref(titleNumber)
		r.AddressLine2 = deref(line2)
		r.Town = deref(town)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: ownership rows")
}

func (s *PostgresStore) GetDatasetMeta(ctx context.Context, dataset string) (*model.DatasetMeta, error) {
	var meta model.DatasetMeta
	err := s.pool.QueryRow(ctx,
		`SELECT dataset, row_count, refreshed_at FROM dataset_meta WHERE dataset = $1`, dataset).
		Scan(&meta.Dataset, &meta.RowCount, &meta.RefreshedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "dataset %s", dataset)
		}
		return nil, eris.Wrapf(err, "postgres: dataset meta %s", dataset)
	}
	return &meta, nil
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanResolution(row rowScanner) (*model.PropertyResolution, error) {
	var res model.PropertyResolution
	var addrJSON, resultJSON []byte
	var status, ownerType string

	err := row.Scan(&res.ID, &res.InputAddress, &addrJSON, &status, &ownerType,
		&resultJSON, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrap(ErrNotFound, "resolution")
		}
		return nil, eris.Wrap(err, "postgres: scan resolution")
	}

	if err := json.Unmarshal(addrJSON, &res.Address); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal address")
	}
	if len(resultJSON) > 0 {
		res.Result = &model.ResolutionResult{}
		if err := json.Unmarshal(resultJSON, res.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	res.Status = model.ResolutionStatus(status)
	res.OwnerType = model.OwnerType(ownerType)
	return &res, nil
}

func scanJob(row rowScanner) (*model.JobRecord, error) {
	var job model.JobRecord
	var status string
	var payload, output []byte
	var parentID, errMsg *string

	err := row.Scan(&job.ID, &job.Queue, &job.Name, &status, &payload, &output,
		&job.RootID, &parentID, &errMsg, &job.CreatedAt, &job.UpdatedAt,
		&job.StartedAt, &job.FinishedAt)
	if err != nil {
		return nil, err
	}

	job.Status = model.JobStatus(status)
	job.Payload = payload
	job.Output = output
	job.ParentID = deref(parentID)
	job.Error = deref(errMsg)
	return &job, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
