package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Deployments
	CREATE TABLE IF NOT EXISTS deployments (
		id TEXT PRIMARY KEY,
		contract_name TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		address TEXT NOT NULL,
		deployer_address TEXT,
		tx_hash TEXT,
		block_number INTEGER,
		args TEXT NOT NULL DEFAULT '[]',
		release_label TEXT,
		code_match TEXT,
		created_at TEXT DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now')),
		UNIQUE(chain_id, address)
	);

	-- Invocations
	CREATE TABLE IF NOT EXISTS invocations (
		id TEXT PRIMARY KEY,
		deployment_id TEXT REFERENCES deployments(id) ON DELETE SET NULL,
		chain_id INTEGER NOT NULL,
		address TEXT NOT NULL,
		method TEXT NOT NULL,
		kind TEXT NOT NULL,
		tx_hash TEXT,
		status TEXT NOT NULL,
		revert_reason TEXT,
		block_number INTEGER,
		created_at TEXT DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
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

// RecordDeployment records a deployment. Recording the same chain id and
// address twice returns ErrAlreadyRecorded.
func (s *SQLiteStore) RecordDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == "" {
		d.ID = generateID()
	}
	args, err := encodeArgs(d.Args)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO deployments (id, contract_name, chain_id, address, deployer_address, tx_hash, block_number, args, release_label, code_match)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		d.ID, d.ContractName, d.ChainID, normalizeAddress(d.Address), normalizeAddress(d.DeployerAddress),
		strings.ToLower(d.TxHash), d.BlockNumber, args, d.ReleaseLabel, d.CodeMatch,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s on chain %d", ErrAlreadyRecorded, d.Address, d.ChainID)
	}
	return err
}

const sqliteDeploymentColumns = `id, contract_name, chain_id, address, COALESCE(deployer_address, ''), COALESCE(tx_hash, ''),
	COALESCE(block_number, 0), args, COALESCE(release_label, ''), COALESCE(code_match, ''), created_at`

func scanSQLiteDeployment(row interface{ Scan(...any) error }) (*Deployment, error) {
	var (
		d    Deployment
		args string
	)
	err := row.Scan(&d.ID, &d.ContractName, &d.ChainID, &d.Address, &d.DeployerAddress, &d.TxHash,
		&d.BlockNumber, &args, &d.ReleaseLabel, &d.CodeMatch, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Args = decodeArgs([]byte(args))
	return &d, nil
}

// GetDeployment retrieves a deployment by chain id and address
func (s *SQLiteStore) GetDeployment(ctx context.Context, chainID int64, address string) (*Deployment, error) {
	query := `SELECT ` + sqliteDeploymentColumns + ` FROM deployments WHERE chain_id = ? AND address = ?`
	d, err := scanSQLiteDeployment(s.db.QueryRowContext(ctx, query, chainID, normalizeAddress(address)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDeployments lists deployments, newest first
func (s *SQLiteStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	limit, offset, err := page(pagination)
	if err != nil {
		return nil, err
	}

	where, args := deploymentWhere(filter, func(int) string { return "?" })
	query := `SELECT ` + sqliteDeploymentColumns + ` FROM deployments` + where +
		` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limit+1, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		d, err := scanSQLiteDeployment(rows)
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
func (s *SQLiteStore) RecordInvocation(ctx context.Context, inv *Invocation) error {
	if inv.ID == "" {
		inv.ID = generateID()
	}
	address := normalizeAddress(inv.Address)
	if inv.DeploymentID == "" {
		var id string
		err := s.db.QueryRowContext(ctx, "SELECT id FROM deployments WHERE chain_id = ? AND address = ?", inv.ChainID, address).Scan(&id)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		inv.DeploymentID = id
	}

	query := `
		INSERT INTO invocations (id, deployment_id, chain_id, address, method, kind, tx_hash, status, revert_reason, block_number)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		inv.ID, nullString(inv.DeploymentID), inv.ChainID, address, inv.Method, inv.Kind,
		strings.ToLower(inv.TxHash), inv.Status, inv.RevertReason, inv.BlockNumber,
	)
	return err
}

// ListInvocations lists invocations against an address, oldest first
func (s *SQLiteStore) ListInvocations(ctx context.Context, chainID int64, address string, pagination PaginationParams) (*PaginatedResult[Invocation], error) {
	limit, offset, err := page(pagination)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, COALESCE(deployment_id, ''), chain_id, address, method, kind, COALESCE(tx_hash, ''), status,
			COALESCE(revert_reason, ''), COALESCE(block_number, 0), created_at
		FROM invocations
		WHERE chain_id = ? AND address = ?
		ORDER BY created_at, rowid
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, chainID, normalizeAddress(address), limit+1, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invocations []Invocation
	for rows.Next() {
		var inv Invocation
		if err := rows.Scan(&inv.ID, &inv.DeploymentID, &inv.ChainID, &inv.Address, &inv.Method, &inv.Kind,
			&inv.TxHash, &inv.Status, &inv.RevertReason, &inv.BlockNumber, &inv.CreatedAt); err != nil {
			return nil, err
		}
		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return paginate(invocations, limit, offset), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
