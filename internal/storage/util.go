package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// normalizeAddress lowercases hex addresses so lookups ignore checksum casing
func normalizeAddress(addr string) string {
	return strings.ToLower(addr)
}

// page resolves the limit and offset of a request. Cursors are opaque
// offsets handed out as NextCursor.
func page(p PaginationParams) (limit, offset int, err error) {
	limit = p.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if p.Cursor != "" {
		offset, err = strconv.Atoi(p.Cursor)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCursor, p.Cursor)
		}
	}
	return limit, offset, nil
}

// paginate trims the extra row fetched to detect a following page
func paginate[T any](rows []T, limit, offset int) *PaginatedResult[T] {
	result := &PaginatedResult[T]{Data: rows}
	if len(rows) > limit {
		result.Data = rows[:limit]
		result.HasMore = true
		result.NextCursor = strconv.Itoa(offset + limit)
	}
	if result.Data == nil {
		result.Data = []T{}
	}
	return result
}

func encodeArgs(args []string) (string, error) {
	if args == nil {
		args = []string{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encoding args: %w", err)
	}
	return string(b), nil
}

func decodeArgs(raw []byte) []string {
	var args []string
	if len(raw) == 0 || json.Unmarshal(raw, &args) != nil {
		return []string{}
	}
	return args
}

// deploymentWhere builds the WHERE clause for a filter; ph renders the
// n-th placeholder for the backend.
func deploymentWhere(f DeploymentFilter, ph func(n int) string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.ContractName != "" {
		args = append(args, f.ContractName)
		conds = append(conds, "contract_name = "+ph(len(args)))
	}
	if f.ChainID != 0 {
		args = append(args, f.ChainID)
		conds = append(conds, "chain_id = "+ph(len(args)))
	}
	if f.ReleaseLabel != "" {
		args = append(args, strings.TrimPrefix(f.ReleaseLabel, "v"))
		conds = append(conds, "release_label = "+ph(len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
