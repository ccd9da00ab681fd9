// Package ledger tracks per-slot availability and the station directory.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"chargebook/backend/services/booking-gateway/internal/apperr"
	"chargebook/backend/services/booking-gateway/internal/models"
	"chargebook/backend/services/booking-gateway/internal/policy"
)

// Change is a committed availability update.
type Change struct {
	Key       models.SlotKey `json:"-"`
	StationID string         `json:"station_id"`
	Slot      int            `json:"slot_number"`
	Available bool           `json:"is_available"`
	Seq       uint64         `json:"seq"`
	Reason    string         `json:"reason"`
	At        time.Time      `json:"at"`
}

const (
	ReasonOperator = "operator"
	ReasonArrival  = "arrival"
	ReasonSnapshot = "snapshot"
)

// Observer receives committed changes. It is called outside the ledger locks.
type Observer func(Change)

// Ticket reserves an arrival position for a pending toggle on one slot.
type Ticket struct {
	Key models.SlotKey
	Seq uint64
}

type slotEntry struct {
	mu      sync.Mutex
	slot    models.Slot
	issued  uint64
	applied uint64
}

// Ledger is safe for concurrent use. Each slot serialises on its own lock.
type Ledger struct {
	clock policy.Clock

	mu        sync.RWMutex
	slots     map[models.SlotKey]*slotEntry
	stations  map[string]models.Station
	numbers   map[string][]int
	observers []Observer
}

// New builds an empty ledger.
func New(clock policy.Clock) *Ledger {
	if clock == nil {
		clock = policy.SystemClock{}
	}
	return &Ledger{
		clock:    clock,
		slots:    make(map[models.SlotKey]*slotEntry),
		stations: make(map[string]models.Station),
		numbers:  make(map[string][]int),
	}
}

// Observe registers fn for every committed change.
func (l *Ledger) Observe(fn Observer) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.observers = append(l.observers, fn)
	l.mu.Unlock()
}

// Load replaces the listed stations with an authoritative snapshot.
// A snapshot without an operator keeps the one already known.
// Sequence counters of surviving slots are kept so in-flight tickets still order correctly.
func (l *Ledger) Load(stations []models.Station) error {
	const op = "ledger.load"
	for _, st := range stations {
		if st.ID == "" {
			return apperr.New(apperr.Unknown, op, "station without id")
		}
		seen := make(map[int]struct{}, len(st.Slots))
		for _, s := range st.Slots {
			if s.SlotNumber <= 0 {
				return apperr.New(apperr.Unknown, op, fmt.Sprintf("station %s: invalid slot number %d", st.ID, s.SlotNumber))
			}
			if _, dup := seen[s.SlotNumber]; dup {
				return apperr.New(apperr.Unknown, op, fmt.Sprintf("station %s: duplicate slot %d", st.ID, s.SlotNumber))
			}
			seen[s.SlotNumber] = struct{}{}
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, st := range stations {
		nums := make([]int, 0, len(st.Slots))
		keep := make(map[int]struct{}, len(st.Slots))
		for _, s := range st.Slots {
			s.StationID = st.ID
			key := s.Key()
			nums = append(nums, s.SlotNumber)
			keep[s.SlotNumber] = struct{}{}

			if e, ok := l.slots[key]; ok {
				e.mu.Lock()
				e.slot = s
				e.mu.Unlock()
				continue
			}
			l.slots[key] = &slotEntry{slot: s}
		}
		for _, n := range l.numbers[st.ID] {
			if _, ok := keep[n]; !ok {
				delete(l.slots, models.SlotKey{StationID: st.ID, SlotNumber: n})
			}
		}
		sort.Ints(nums)

		meta := st
		meta.Slots = nil
		if prev, ok := l.stations[st.ID]; ok && meta.OperatorID == "" {
			meta.OperatorID = prev.OperatorID
		}
		l.stations[st.ID] = meta
		l.numbers[st.ID] = nums
	}
	return nil
}

// Begin issues the next arrival sequence for key.
func (l *Ledger) Begin(key models.SlotKey) (Ticket, error) {
	e, err := l.entry("ledger.begin", key)
	if err != nil {
		return Ticket{}, err
	}
	e.mu.Lock()
	e.issued++
	t := Ticket{Key: key, Seq: e.issued}
	e.mu.Unlock()
	return t, nil
}

// Commit applies the ticket's value unless a later-arrived ticket already committed.
// It reports whether the write was applied.
func (l *Ledger) Commit(t Ticket, available bool) (bool, error) {
	e, err := l.entry("ledger.commit", t.Key)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	if t.Seq <= e.applied || t.Seq > e.issued {
		e.mu.Unlock()
		return false, nil
	}
	e.applied = t.Seq
	e.slot.IsAvailable = available
	ch := l.change(t.Key, available, t.Seq, ReasonOperator)
	e.mu.Unlock()

	l.notify(ch)
	return true, nil
}

// Sync loads one authoritative station snapshot and publishes the slots whose
// availability differs from the ledger's view. Pending tickets keep their order.
func (l *Ledger) Sync(st models.Station, reason string) ([]Change, error) {
	before := make(map[int]bool)
	if cur, err := l.Station(st.ID); err == nil {
		for _, s := range cur.Slots {
			before[s.SlotNumber] = s.IsAvailable
		}
	}
	if err := l.Load([]models.Station{st}); err != nil {
		return nil, err
	}

	var changes []Change
	for _, s := range st.Slots {
		if prev, ok := before[s.SlotNumber]; ok && prev == s.IsAvailable {
			continue
		}
		key := models.SlotKey{StationID: st.ID, SlotNumber: s.SlotNumber}
		e, err := l.entry("ledger.sync", key)
		if err != nil {
			continue
		}
		e.mu.Lock()
		ch := l.change(key, e.slot.IsAvailable, e.applied, reason)
		e.mu.Unlock()
		changes = append(changes, ch)
	}
	for _, ch := range changes {
		l.notify(ch)
	}
	return changes, nil
}

// Get returns a copy of one slot.
func (l *Ledger) Get(key models.SlotKey) (models.Slot, error) {
	e, err := l.entry("ledger.get", key)
	if err != nil {
		return models.Slot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slot, nil
}

// CheckBookable fails with NotFound for unknown slots and Conflict for unavailable ones.
func (l *Ledger) CheckBookable(key models.SlotKey) error {
	s, err := l.Get(key)
	if err != nil {
		return err
	}
	if !s.IsAvailable {
		return apperr.New(apperr.Conflict, "ledger.check", fmt.Sprintf("slot %d at station %s is not available", key.SlotNumber, key.StationID))
	}
	return nil
}

// Station returns the station with its slots ordered by number.
func (l *Ledger) Station(id string) (models.Station, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stationLocked(id)
}

// Stations returns every known station, ordered by id.
func (l *Ledger) Stations() []models.Station {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.stations))
	for id := range l.stations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]models.Station, 0, len(ids))
	for _, id := range ids {
		st, _ := l.stationLocked(id)
		out = append(out, st)
	}
	return out
}

// OperatorOf returns the operator assigned to stationID.
func (l *Ledger) OperatorOf(stationID string) (string, error) {
	l.mu.RLock()
	st, ok := l.stations[stationID]
	l.mu.RUnlock()
	if !ok {
		return "", apperr.New(apperr.NotFound, "ledger.operator", fmt.Sprintf("station %s not found", stationID))
	}
	return st.OperatorID, nil
}

// HasStation reports whether stationID is in the directory.
func (l *Ledger) HasStation(stationID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.stations[stationID]
	return ok
}

func (l *Ledger) stationLocked(id string) (models.Station, error) {
	st, ok := l.stations[id]
	if !ok {
		return models.Station{}, apperr.New(apperr.NotFound, "ledger.station", fmt.Sprintf("station %s not found", id))
	}
	nums := l.numbers[id]
	st.Slots = make([]models.Slot, 0, len(nums))
	for _, n := range nums {
		e := l.slots[models.SlotKey{StationID: id, SlotNumber: n}]
		e.mu.Lock()
		st.Slots = append(st.Slots, e.slot)
		e.mu.Unlock()
	}
	return st, nil
}

func (l *Ledger) entry(op string, key models.SlotKey) (*slotEntry, error) {
	l.mu.RLock()
	e, ok := l.slots[key]
	l.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.NotFound, op, fmt.Sprintf("slot %d at station %s not found", key.SlotNumber, key.StationID))
	}
	return e, nil
}

func (l *Ledger) change(key models.SlotKey, available bool, seq uint64, reason string) Change {
	return Change{
		Key:       key,
		StationID: key.StationID,
		Slot:      key.SlotNumber,
		Available: available,
		Seq:       seq,
		Reason:    reason,
		At:        l.clock.Now().UTC(),
	}
}

func (l *Ledger) notify(ch Change) {
	l.mu.RLock()
	obs := make([]Observer, len(l.observers))
	copy(obs, l.observers)
	l.mu.RUnlock()

	for _, fn := range obs {
		fn(ch)
	}
}
