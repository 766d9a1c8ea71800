package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- Deployments
	CREATE TABLE IF NOT EXISTS deployments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		seq BIGSERIAL,
		contract_name TEXT NOT NULL,
		chain_id BIGINT NOT NULL,
		address TEXT NOT NULL,
		deployer_address TEXT,
		tx_hash TEXT,
		block_number BIGINT,
		args JSONB NOT NULL DEFAULT '[]',
		release_label TEXT,
		code_match TEXT,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		UNIQUE(chain_id, address)
	);

	-- Invocations
	CREATE TABLE IF NOT EXISTS invocations (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		seq BIGSERIAL,
		deployment_id UUID REFERENCES deployments(id) ON DELETE SET NULL,
		chain_id BIGINT NOT NULL,
		address TEXT NOT NULL,
		method TEXT NOT NULL,
		kind TEXT NOT NULL,
		tx_hash TEXT,
		status TEXT NOT NULL,
		revert_reason TEXT,
		block_number BIGINT,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_deployments_contract ON deployments(contract_name);
	CREATE INDEX IF NOT EXISTS idx_deployments_created ON deployments(created_at);
	CREATE INDEX IF NOT EXISTS idx_invocations_lookup ON invocations(chain_id, address);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("migrations completed")
	return nil
}

func dollar(n int) string {
	return "$" + strconv.Itoa(n)
}

// RecordDeployment records a deployment. Recording the same chain id and
// address twice returns ErrAlreadyRecorded.
func (s *PostgresStore) RecordDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == "" {
		d.ID = generateID()
	}
	args, err := encodeArgs(d.Args)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO deployments (id, contract_name, chain_id, address, deployer_address, tx_hash, block_number, args, release_label, code_match)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		d.ID, d.ContractName, d.ChainID, normalizeAddress(d.Address), normalizeAddress(d.DeployerAddress),
		strings.ToLower(d.TxHash), d.BlockNumber, args, d.ReleaseLabel, d.CodeMatch,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s on chain %d", ErrAlreadyRecorded, d.Address, d.ChainID)
	}
	return err
}

const postgresDeploymentColumns = `id, contract_name, chain_id, address, COALESCE(deployer_address, ''), COALESCE(tx_hash, ''),
	COALESCE(block_number, 0), args, COALESCE(release_label, ''), COALESCE(code_match, ''), created_at`

func scanPostgresDeployment(row interface{ Scan(...any) error }) (*Deployment, error) {
	var (
		d         Deployment
		args      []byte
		createdAt time.Time
	)
	err := row.Scan(&d.ID, &d.ContractName, &d.ChainID, &d.Address, &d.DeployerAddress, &d.TxHash,
		&d.BlockNumber, &args, &d.ReleaseLabel, &d.CodeMatch, &createdAt)
	if err != nil {
		return nil, err
	}
	d.Args = decodeArgs(args)
	d.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
	return &d, nil
}

// GetDeployment retrieves a deployment by chain id and address
func (s *PostgresStore) GetDeployment(ctx context.Context, chainID int64, address string) (*Deployment, error) {
	query := `SELECT ` + postgresDeploymentColumns + ` FROM deployments WHERE chain_id = $1 AND address = $2`
	d, err := scanPostgresDeployment(s.db.QueryRowContext(ctx, query, chainID, normalizeAddress(address)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDeployments lists deployments, newest first
func (s *PostgresStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	limit, offset, err := page(pagination)
	if err != nil {
		return nil, err
	}

	where, args := deploymentWhere(filter, dollar)
	query := fmt.Sprintf(`SELECT %s FROM deployments%s ORDER BY seq DESC LIMIT %s OFFSET %s`,
		postgresDeploymentColumns, where, dollar(len(args)+1), dollar(len(args)+2))
	args = append(args, limit+1, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		d, err := scanPostgresDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return paginate(deployments, limit, offset), nil
}

// RecordInvocation records an invocation, linking it to the deployment at
// the same address when one was recorded.
func (s *PostgresStore) RecordInvocation(ctx context.Context, inv *Invocation) error {
	if inv.ID == "" {
		inv.ID = generateID()
	}
	address := normalizeAddress(inv.Address)

	query := `
		INSERT INTO invocations (id, deployment_id, chain_id, address, method, kind, tx_hash, status, revert_reason, block_number)
		VALUES ($1, COALESCE($2::uuid, (SELECT id FROM deployments WHERE chain_id = $3 AND address = $4)), $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING COALESCE(deployment_id::text, '')
	`
	return s.db.QueryRowContext(ctx, query,
		inv.ID, nullString(inv.DeploymentID), inv.ChainID, address, inv.Method, inv.Kind,
		strings.ToLower(inv.TxHash), inv.Status, inv.RevertReason, inv.BlockNumber,
	).Scan(&inv.DeploymentID)
}

// ListInvocations lists invocations against an address, oldest first
func (s *PostgresStore) ListInvocations(ctx context.Context, chainID int64, address string, pagination PaginationParams) (*PaginatedResult[Invocation], error) {
	limit, offset, err := page(pagination)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, COALESCE(deployment_id::text, ''), chain_id, address, method, kind, COALESCE(tx_hash, ''), status,
			COALESCE(revert_reason, ''), COALESCE(block_number, 0), created_at
		FROM invocations
		WHERE chain_id = $1 AND address = $2
		ORDER BY seq
		LIMIT $3 OFFSET $4
	`
	rows, err := s.db.QueryContext(ctx, query, chainID, normalizeAddress(address), limit+1, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invocations []Invocation
	for rows.Next() {
		var (
			inv       Invocation
			createdAt time.Time
		)
		if err := rows.Scan(&inv.ID, &inv.DeploymentID, &inv.ChainID, &inv.Address, &inv.Method, &inv.Kind,
			&inv.TxHash, &inv.Status, &inv.RevertReason, &inv.BlockNumber, &createdAt); err != nil {
			return nil, err
		}
		inv.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return paginate(invocations, limit, offset), nil
}
