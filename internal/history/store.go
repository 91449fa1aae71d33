package history

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hfidelis/order-relay/internal/broker"
)

// StoredEvent is a relayed status event as persisted in the status_events
// table. The relay itself holds no durable order record; this log exists for
// inspection and debugging only.
type StoredEvent struct {
	ID         int64     `json:"id"`
	OrderID    string    `json:"order_id"`
	Status     string    `json:"status"`
	TS         string    `json:"ts"`
	ReceivedAt time.Time `json:"received_at"`
}

// ListParams holds filters and pagination for listing stored events.
type ListParams struct {
	OrderID string
	Status  string
	Limit   int
}

// Store appends relayed events to Postgres and serves history queries.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Append records one relayed event. The relay treats failures here as
// best-effort; an insert error never blocks delivery.
func (s *Store) Append(ctx context.Context, event broker.StatusEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO status_events (order_id, status, ts) VALUES ($1, $2, $3)`,
		event.OrderID, string(event.Status), event.TS,
	)
	return err
}

// List returns the most recently received events matching the given filters.
func (s *Store) List(ctx context.Context, params ListParams) ([]StoredEvent, error) {
	if params.Limit <= 0 || params.Limit > 1000 {
		params.Limit = 100
	}

	query := `SELECT id, order_id, status, ts, received_at FROM status_events`
	args := []any{}
	argIdx := 1

	if params.OrderID != "" {
		query += ` WHERE order_id = $` + strconv.Itoa(argIdx)
		args = append(args, params.OrderID)
		argIdx++
	}
	if params.Status != "" {
		if argIdx == 1 {
			query += ` WHERE`
		} else {
			query += ` AND`
		}
		query += ` status = $` + strconv.Itoa(argIdx)
		args = append(args, params.Status)
		argIdx++
	}

	query += ` ORDER BY received_at DESC LIMIT $` + strconv.Itoa(argIdx)
	args = append(args, params.Limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Status, &e.TS, &e.ReceivedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
