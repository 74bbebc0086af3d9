// Package postgres реализует storage.Storage поверх PostgreSQL (pgx).
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/x-research-team/dtx-sync/sidecar"
	"github.com/x-research-team/dtx-sync/sidecar/storage"
)

const (
	// Коллекторы хранятся массивом JSONB, чтобы фильтр по коллектору
	// использовал оператор ?.
	createTablesQuery = `
CREATE TABLE IF NOT EXISTS sidecars (
    node_id VARCHAR(255) PRIMARY KEY,
    node_name VARCHAR(255) NOT NULL,
    active BOOLEAN NOT NULL,
    operating_system VARCHAR(255) NOT NULL DEFAULT '',
    sidecar_version VARCHAR(64) NOT NULL DEFAULT '',
    last_seen TIMESTAMPTZ NOT NULL,
    collectors JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_sidecars_node_name ON sidecars (node_name, node_id);

CREATE TABLE IF NOT EXISTS sidecar_actions (
    sidecar_id VARCHAR(255) PRIMARY KEY,
    id UUID NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    actions JSONB NOT NULL
);
`

	upsertSidecarQuery = `
INSERT INTO sidecars (node_id, node_name, active, operating_system, sidecar_version, last_seen, collectors)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (node_id) DO UPDATE SET
    node_name = EXCLUDED.node_name,
    active = EXCLUDED.active,
    operating_system = EXCLUDED.operating_system,
    sidecar_version = EXCLUDED.sidecar_version,
    last_seen = EXCLUDED.last_seen,
    collectors = EXCLUDED.collectors;
`

	selectSidecarsQuery = `
SELECT node_id, node_name, active, operating_system, sidecar_version, last_seen, collectors
FROM sidecars`

	countSidecarsQuery = `SELECT count(*) FROM sidecars`

	upsertActionsQuery = `
INSERT INTO sidecar_actions (sidecar_id, id, created_at, actions)
VALUES ($1, $2, $3, $4)
ON CONFLICT (sidecar_id) DO UPDATE SET
    id = EXCLUDED.id,
    created_at = EXCLUDED.created_at,
    actions = EXCLUDED.actions;
`

	findActionsQuery = `
SELECT id, sidecar_id, created_at, actions FROM sidecar_actions WHERE sidecar_id = $1;
`

	// Чтение с удалением выполняется одним запросом, поэтому два
	// одновременных опроса не получат одну очередь дважды.
	takeActionsQuery = `
DELETE FROM sidecar_actions WHERE sidecar_id = $1
RETURNING id, sidecar_id, created_at, actions;
`
)

// PostgresStorage — реализация storage.Storage для PostgreSQL.
type PostgresStorage struct {
	pool *pgxpool.Pool
	q    Querier
	// external означает, что q — транзакция вызывающего.
	external bool
}

var _ storage.Storage = (*PostgresStorage)(nil)

// NewPostgresStorage создает хранилище и выполняет миграцию схемы.
func NewPostgresStorage(ctx context.Context, pool *pgxpool.Pool) (*PostgresStorage, error) {
	if _, err := pool.Exec(ctx, createTablesQuery); err != nil {
		return nil, fmt.Errorf("не удалось создать таблицы сайдкаров: %w", err)
	}
	return &PostgresStorage{pool: pool, q: pool}, nil
}

// WithQuerier возвращает копию хранилища, выполняющую запросы через q
// (например, в рамках внешней транзакции).
func (s *PostgresStorage) WithQuerier(q Querier) *PostgresStorage {
	return &PostgresStorage{pool: s.pool, q: q, external: true}
}

// SaveSidecar реализует storage.Storage.
func (s *PostgresStorage) SaveSidecar(ctx context.Context, sc sidecar.Sidecar) error {
	collectors := sc.Collectors
	if collectors == nil {
		collectors = []string{}
	}
	raw, err := json.Marshal(collectors)
	if err != nil {
		return fmt.Errorf("не удалось сериализовать коллекторы: %w", err)
	}

	_, err = s.q.Exec(ctx, upsertSidecarQuery,
		sc.NodeID,
		sc.NodeName,
		sc.Active,
		sc.OperatingSystem,
		sc.SidecarVersion,
		sc.LastSeen,
		raw,
	)
	if err != nil {
		return fmt.Errorf("не удалось сохранить сайдкар %s: %w", sc.NodeID, err)
	}
	return nil
}

// ListSidecars реализует storage.Storage.
func (s *PostgresStorage) ListSidecars(ctx context.Context, f storage.Filter) ([]sidecar.Sidecar, int, error) {
	where, args := whereClause(f)

	var total int
	if err := s.q.QueryRow(ctx, countSidecarsQuery+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("не удалось подсчитать сайдкары: %w", err)
	}

	var limit *int
	if f.Limit > 0 {
		limit = &f.Limit
	}
	args = append(args, limit, max(f.Offset, 0))
	query := fmt.Sprintf("%s%s ORDER BY node_name, node_id LIMIT $%d OFFSET $%d", selectSidecarsQuery, where, len(args)-1, len(args))

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("не удалось извлечь сайдкары: %w", err)
	}
	defer rows.Close()

	list := make([]sidecar.Sidecar, 0)
	for rows.Next() {
		var sc sidecar.Sidecar
		var collectors []byte
		if err := rows.Scan(
			&sc.NodeID,
			&sc.NodeName,
			&sc.Active,
			&sc.OperatingSystem,
			&sc.SidecarVersion,
			&sc.LastSeen,
			&collectors,
		); err != nil {
			return nil, 0, fmt.Errorf("не удалось сканировать сайдкар: %w", err)
		}
		if err := json.Unmarshal(collectors, &sc.Collectors); err != nil {
			return nil, 0, fmt.Errorf("не удалось десериализовать коллекторы: %w", err)
		}
		list = append(list, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка при итерации по сайдкарам: %w", err)
	}

	return list, total, nil
}

// SaveActions реализует storage.Storage. Если хранилище не привязано к
// внешней транзакции, очереди сохраняются в собственной.
func (s *PostgresStorage) SaveActions(ctx context.Context, actions ...*storage.Actions) error {
	if len(actions) == 0 {
		return nil
	}
	if s.external {
		return saveActions(ctx, s.q, actions)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return saveActions(ctx, tx, actions)
	})
}

func saveActions(ctx context.Context, q Querier, actions []*storage.Actions) error {
	for _, a := range actions {
		raw, err := json.Marshal(a.Actions)
		if err != nil {
			return fmt.Errorf("не удалось сериализовать действия: %w", err)
		}
		if _, err := q.Exec(ctx, upsertActionsQuery, a.SidecarID, a.ID, a.CreatedAt, raw); err != nil {
			return fmt.Errorf("не удалось сохранить действия сайдкара %s: %w", a.SidecarID, err)
		}
	}
	return nil
}

// FindActions реализует storage.Storage.
func (s *PostgresStorage) FindActions(ctx context.Context, sidecarID string, remove bool) (*storage.Actions, error) {
	query := findActionsQuery
	if remove {
		query = takeActionsQuery
	}

	var a storage.Actions
	var raw []byte
	err := s.q.QueryRow(ctx, query, sidecarID).Scan(&a.ID, &a.SidecarID, &a.CreatedAt, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось извлечь действия сайдкара %s: %w", sidecarID, err)
	}
	if err := json.Unmarshal(raw, &a.Actions); err != nil {
		return nil, fmt.Errorf("не удалось десериализовать действия: %w", err)
	}
	return &a, nil
}

// whereClause строит условие выборки и его аргументы.
func whereClause(f storage.Filter) (string, []any) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q := strings.TrimSpace(f.Query); q != "" {
		p := arg("%" + q + "%")
		conds = append(conds, fmt.Sprintf("(node_name ILIKE %s OR node_id ILIKE %s)", p, p))
	}
	if v, ok := f.Filters["active"]; ok {
		conds = append(conds, "active = "+arg(v == "true"))
	}
	if v, ok := f.Filters["os"]; ok {
		conds = append(conds, "lower(operating_system) = lower("+arg(v)+")")
	}
	if v, ok := f.Filters["collector"]; ok {
		conds = append(conds, "collectors ? "+arg(v))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
