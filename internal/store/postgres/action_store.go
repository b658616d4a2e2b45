package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

// ActionStore implements domain.ActionJournal using PostgreSQL.
type ActionStore struct {
	pool *pgxpool.Pool
}

// NewActionStore creates a new ActionStore backed by the given connection pool.
func NewActionStore(pool *pgxpool.Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

const actionColumns = `id, cycle_id, strategy, kind, ticker, quantity, side,
	lease_id, news_id, dry_run, error, created_at`

// Record appends an action. Recording the same id twice is a no-op.
func (s *ActionStore) Record(ctx context.Context, a domain.Action) error {
	const query = `
		INSERT INTO actions (` + actionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.CycleID, a.Strategy, string(a.Kind), a.Ticker, a.Quantity,
		string(a.Side), a.LeaseID, a.NewsID, a.DryRun, a.Error, a.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: record action %s: %w", a.ID, err)
	}
	return nil
}

// Get returns a single action by id.
func (s *ActionStore) Get(ctx context.Context, id string) (domain.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE id = $1`
	a, err := scanAction(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Action{}, fmt.Errorf("postgres: action %s: %w", id, domain.ErrNotFound)
		}
		return domain.Action{}, fmt.Errorf("postgres: get action %s: %w", id, err)
	}
	return a, nil
}

// List returns actions with pagination and optional time filtering, newest
// first unless opts.Ascending is set.
func (s *ActionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Action, error) {
	query, args := listActionsQuery(opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list actions: %w", err)
	}
	defer rows.Close()

	var actions []domain.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan action: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list actions rows: %w", err)
	}
	return actions, nil
}

// listActionsQuery builds the filtered, paginated select for List. Since is
// inclusive and Until exclusive.
func listActionsQuery(opts domain.ListOpts) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT ` + actionColumns + ` FROM actions WHERE 1=1`)
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		fmt.Fprintf(&b, " AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		fmt.Fprintf(&b, " AND created_at < $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	if opts.Ascending {
		b.WriteString(" ORDER BY created_at ASC, id ASC")
	} else {
		b.WriteString(" ORDER BY created_at DESC, id DESC")
	}

	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return b.String(), args
}

func scanAction(row pgx.Row) (domain.Action, error) {
	var (
		a          domain.Action
		kind, side string
	)
	err := row.Scan(
		&a.ID, &a.CycleID, &a.Strategy, &kind, &a.Ticker, &a.Quantity, &side,
		&a.LeaseID, &a.NewsID, &a.DryRun, &a.Error, &a.At,
	)
	if err != nil {
		return domain.Action{}, err
	}
	a.Kind = domain.ActionKind(kind)
	a.Side = domain.OrderSide(side)
	a.At = a.At.UTC()
	return a, nil
}

// Compile-time interface check.
var _ domain.ActionJournal = (*ActionStore)(nil)
