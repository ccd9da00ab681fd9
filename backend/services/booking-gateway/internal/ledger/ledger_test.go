package ledger

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chargebook/backend/services/booking-gateway/internal/apperr"
	"chargebook/backend/services/booking-gateway/internal/models"
	"chargebook/backend/services/booking-gateway/internal/policy"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	l := New(policy.ClockFunc(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }))
	require.NoError(t, l.Load([]models.Station{{
		ID:         "st-1",
		Name:       "Harbour",
		OperatorID: "op-1",
		Slots: []models.Slot{
			{SlotNumber: 2, ConnectorType: models.ConnectorCCS, PowerRatingKW: 50, IsAvailable: true},
			{SlotNumber: 1, ConnectorType: models.ConnectorType2, PowerRatingKW: 22, IsAvailable: true},
		},
	}}))
	return l
}

func key(n int) models.SlotKey { return models.SlotKey{StationID: "st-1", SlotNumber: n} }

func TestLoadOrdersSlotsAndRejectsDuplicates(t *testing.T) {
	l := newLedger(t)

	st, err := l.Station("st-1")
	require.NoError(t, err)
	require.Len(t, st.Slots, 2)
	require.Equal(t, 1, st.Slots[0].SlotNumber)
	require.Equal(t, "st-1", st.Slots[0].StationID)
	require.Equal(t, 2, st.AvailableSlots())

	err = l.Load([]models.Station{{ID: "st-2", Slots: []models.Slot{{SlotNumber: 1}, {SlotNumber: 1}}}})
	require.Error(t, err)
	require.False(t, l.HasStation("st-2"))
}

func TestLoadDropsRemovedSlots(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Load([]models.Station{{ID: "st-1", OperatorID: "op-1", Slots: []models.Slot{{SlotNumber: 1, IsAvailable: true}}}}))

	_, err := l.Get(key(2))
	require.ErrorIs(t, err, apperr.NotFound)
}

func TestToggleDoesNotTouchOtherSlots(t *testing.T) {
	l := newLedger(t)

	tk, err := l.Begin(key(1))
	require.NoError(t, err)
	ok, err := l.Commit(tk, false)
	require.NoError(t, err)
	require.True(t, ok)

	s1, _ := l.Get(key(1))
	s2, _ := l.Get(key(2))
	require.False(t, s1.IsAvailable)
	require.True(t, s2.IsAvailable)
}

func TestLaterArrivalWins(t *testing.T) {
	l := newLedger(t)

	first, _ := l.Begin(key(1))
	second, _ := l.Begin(key(1))

	// The second toggle is acknowledged first; the stale one must not overwrite it.
	ok, err := l.Commit(second, false)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Commit(first, true)
	require.NoError(t, err)
	require.False(t, ok)

	s, _ := l.Get(key(1))
	require.False(t, s.IsAvailable)
}

func TestConcurrentTogglesOnDifferentSlots(t *testing.T) {
	l := newLedger(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tk, err := l.Begin(key(1))
			if err != nil {
				return
			}
			_, _ = l.Commit(tk, i%2 == 0)
		}(i)
	}
	wg.Wait()

	s2, _ := l.Get(key(2))
	require.True(t, s2.IsAvailable)
}

func TestCheckBookable(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.CheckBookable(key(1)))

	tk, _ := l.Begin(key(1))
	_, _ = l.Commit(tk, false)
	require.ErrorIs(t, l.CheckBookable(key(1)), apperr.Conflict)
	require.ErrorIs(t, l.CheckBookable(key(9)), apperr.NotFound)
}

func TestSyncPublishesOnlyChangedSlots(t *testing.T) {
	l := newLedger(t)

	tk, _ := l.Begin(key(1))
	_, _ = l.Commit(tk, false)

	var got []Change
	l.Observe(func(c Change) { got = append(got, c) })

	pending, _ := l.Begin(key(2))
	st, err := l.Station("st-1")
	require.NoError(t, err)
	st.OperatorID = ""
	st.Slots[1].IsAvailable = false

	changes, err := l.Sync(st, ReasonArrival)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, 2, changes[0].Slot)
	require.False(t, changes[0].Available)
	require.Equal(t, ReasonArrival, changes[0].Reason)
	require.Equal(t, changes, got)

	require.ErrorIs(t, l.CheckBookable(key(1)), apperr.Conflict)
	op, err := l.OperatorOf("st-1")
	require.NoError(t, err)
	require.Equal(t, "op-1", op)

	ok, err := l.Commit(pending, true)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, l.CheckBookable(key(2)))
}

func TestOperatorOf(t *testing.T) {
	l := newLedger(t)

	op, err := l.OperatorOf("st-1")
	require.NoError(t, err)
	require.Equal(t, "op-1", op)

	_, err = l.OperatorOf("nope")
	require.ErrorIs(t, err, apperr.NotFound)
	require.Len(t, l.Stations(), 1)
}

func TestSnapshotWithoutOperatorKeepsOwnership(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Load([]models.Station{{ID: "st-1", Slots: []models.Slot{{SlotNumber: 1, IsAvailable: false}}}}))

	op, err := l.OperatorOf("st-1")
	require.NoError(t, err)
	require.Equal(t, "op-1", op)

	s, _ := l.Get(key(1))
	require.False(t, s.IsAvailable)
}
