package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"chargebook/backend/services/booking-gateway/internal/models"
)

// ErrInvalidTransition is returned when recording an incomplete transition.
var ErrInvalidTransition = errors.New("journal: reservation id, event and target status are required")

// TransitionJournal records acknowledged reservation transitions.
type TransitionJournal interface {
	Record(ctx context.Context, t *models.Transition) error
	ListByReservation(ctx context.Context, reservationID string) ([]models.Transition, error)
}

// PostgresJournal stores transitions in reservation_transitions.
type PostgresJournal struct {
	db *sql.DB
}

// NewPostgresJournal returns repository.
func NewPostgresJournal(db *sql.DB) *PostgresJournal {
	return &PostgresJournal{db: db}
}

// EnsureSchema creates the journal table when missing.
func (r *PostgresJournal) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS reservation_transitions (
			id             BIGSERIAL PRIMARY KEY,
			reservation_id TEXT        NOT NULL,
			event          TEXT        NOT NULL,
			from_status    TEXT        NOT NULL DEFAULT '',
			to_status      TEXT        NOT NULL,
			actor_id       TEXT        NOT NULL,
			occurred_at    TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS reservation_transitions_reservation_idx
			ON reservation_transitions (reservation_id, occurred_at);
	`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Record inserts t and fills its id.
func (r *PostgresJournal) Record(ctx context.Context, t *models.Transition) error {
	if err := validate(t); err != nil {
		return err
	}
	const query = `
		INSERT INTO reservation_transitions (reservation_id, event, from_status, to_status, actor_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		t.ReservationID,
		t.Event,
		string(t.FromStatus),
		string(t.ToStatus),
		t.ActorID,
		t.OccurredAt.UTC(),
	).Scan(&t.ID)
}

// ListByReservation returns a reservation's transitions, oldest first.
func (r *PostgresJournal) ListByReservation(ctx context.Context, reservationID string) ([]models.Transition, error) {
	const query = `
		SELECT id, reservation_id, event, from_status, to_status, actor_id, occurred_at
		FROM reservation_transitions
		WHERE reservation_id = $1
		ORDER BY occurred_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transition
	for rows.Next() {
		var (
			t          models.Transition
			from, to   string
			occurredAt time.Time
		)
		if err := rows.Scan(&t.ID, &t.ReservationID, &t.Event, &from, &to, &t.ActorID, &occurredAt); err != nil {
			return nil, err
		}
		t.FromStatus = models.ReservationStatus(from)
		t.ToStatus = models.ReservationStatus(to)
		t.OccurredAt = occurredAt.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// MemoryJournal keeps transitions in process memory.
type MemoryJournal struct {
	mu     sync.RWMutex
	nextID int64
	byRes  map[string][]models.Transition
}

// NewMemoryJournal builds an empty journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{byRes: make(map[string][]models.Transition)}
}

func (m *MemoryJournal) Record(_ context.Context, t *models.Transition) error {
	if err := validate(t); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	m.byRes[t.ReservationID] = append(m.byRes[t.ReservationID], *t)
	return nil
}

func (m *MemoryJournal) ListByReservation(_ context.Context, reservationID string) ([]models.Transition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]models.Transition(nil), m.byRes[reservationID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func validate(t *models.Transition) error {
	if t == nil || t.ReservationID == "" || t.Event == "" || t.ToStatus == "" {
		return ErrInvalidTransition
	}
	return nil
}
