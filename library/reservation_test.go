package library

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveTwiceForSameEntryFails(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()
	m := mustRegister(t, mgr, "Alice Martin", RoleStandard, day0)
	mustEntry(t, mgr, testEAN(1))

	r, err := mgr.Reserve(ctx, m.CardNumber, testEAN(1), day0)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, r.Status)
	assert.True(t, r.CreationDate.Equal(day0))
	assert.True(t, r.ExpirationDate.Equal(day0.AddDays(180)))

	_, err = mgr.Reserve(ctx, m.CardNumber, testEAN(1), day0.AddDays(1))
	assert.ErrorIs(t, err, ErrAlreadyReservedBySelf)
	_, err = mgr.ForceReserve(ctx, m.CardNumber, testEAN(1), day0.AddDays(1))
	assert.ErrorIs(t, err, ErrAlreadyReservedBySelf)
}

func TestReserveAgainAfterExpiry(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()
	m := mustRegister(t, mgr, "Alice Martin", RoleStandard, day0)
	mustEntry(t, mgr, testEAN(1))

	first, err := mgr.Reserve(ctx, m.CardNumber, testEAN(1), day0)
	require.NoError(t, err)

	second, err := mgr.Reserve(ctx, m.CardNumber, testEAN(1), day0.AddDays(181))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, countRows(t, mgr, `SELECT COUNT(*) FROM reservations WHERE id=? AND status='expired'`, first.ID))
}

func TestReserveCeiling(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxReservations = 2
	mgr := newManager(t, WithPolicy(policy))
	ctx := context.Background()
	m := mustRegister(t, mgr, "Alice Martin", RoleStandard, day0)
	for i := 1; i <= 4; i++ {
		mustEntry(t, mgr, testEAN(i))
	}

	for i := 1; i <= 2; i++ {
		_, err := mgr.Reserve(ctx, m.CardNumber, testEAN(i), day0)
		require.NoError(t, err)
	}
	_, err := mgr.Reserve(ctx, m.CardNumber, testEAN(3), day0)
	require.ErrorIs(t, err, ErrMaxReservationsReached)
	assert.True(t, IsSoftLimit(err))

	r, err := mgr.ForceReserve(ctx, m.CardNumber, testEAN(3), day0)
	require.NoError(t, err)
	assert.True(t, r.Forced)

	// Lapsed reservations no longer count against the member.
	_, err = mgr.Reserve(ctx, m.CardNumber, testEAN(4), day0.AddDays(181))
	assert.NoError(t, err)
}

func TestReserveUnknownIdentifiers(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()
	m := mustRegister(t, mgr, "Alice Martin", RoleStandard, day0)

	_, err := mgr.Reserve(ctx, m.CardNumber, testEAN(9), day0)
	require.ErrorIs(t, err, ErrUnknownCatalogEntry)
	assert.True(t, IsHard(err))

	mustEntry(t, mgr, testEAN(1))
	_, err = mgr.Reserve(ctx, "939999999", testEAN(1), day0)
	assert.ErrorIs(t, err, ErrUnknownMember)
}

func TestSelectNextForAvailabilityIsFIFO(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()
	m1 := mustRegister(t, mgr, "Alice Martin", RoleStandard, day0)
	m2 := mustRegister(t, mgr, "Bob Durand", RoleStandard, day0)
	m3 := mustRegister(t, mgr, "Chloe Petit", RoleStandard, day0)
	mustEntry(t, mgr, testEAN(1))

	next, err := mgr.SelectNextForAvailability(ctx, testEAN(1), day0)
	require.NoError(t, err)
	assert.Nil(t, next)

	// Created later but on an earlier day wins; same-day ties go by insertion.
	late, err := mgr.Reserve(ctx, m1.CardNumber, testEAN(1), day0.AddDays(2))
	require.NoError(t, err)
	early, err := mgr.Reserve(ctx, m2.CardNumber, testEAN(1), day0)
	require.NoError(t, err)
	tie, err := mgr.Reserve(ctx, m3.CardNumber, testEAN(1), day0)
	require.NoError(t, err)

	today := day0.AddDays(3)
	queue, err := mgr.ReservationQueue(ctx, testEAN(1), today)
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, []int64{early.ID, tie.ID, late.ID}, []int64{queue[0].ID, queue[1].ID, queue[2].ID})

	next, err = mgr.SelectNextForAvailability(ctx, testEAN(1), today)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, early.ID, next.ID)
}

func TestSelectNextSkipsAvailableReservations(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()
	m1 := mustRegister(t, mgr, "Alice Martin", RoleStandard, day0)
	m2 := mustRegister(t, mgr, "Bob Durand", RoleStandard, day0)
	m3 := mustRegister(t, mgr, "Chloe Petit", RoleStandard, day0)
	it1 := mustItem(t, mgr, testEAN(1), day0)
	it2 := mustItem(t, mgr, testEAN(1), day0)

	for _, it := range []*Item{it1, it2} {
		_, err := mgr.Borrow(ctx, m1.CardNumber, it.Barcode, day0)
		require.NoError(t, err)
	}
	r2, err := mgr.Reserve(ctx, m2.CardNumber, testEAN(1), day0.AddDays(1))
	require.NoError(t, err)
	r3, err := mgr.Reserve(ctx, m3.CardNumber, testEAN(1), day0.AddDays(2))
	require.NoError(t, err)

	first, err := mgr.ReturnItem(ctx, it1.Barcode, day0.AddDays(5))
	require.NoError(t, err)
	require.NotNil(t, first.Available)
	assert.Equal(t, r2.ID, first.Available.ID)

	second, err := mgr.ReturnItem(ctx, it2.Barcode, day0.AddDays(6))
	require.NoError(t, err)
	require.NotNil(t, second.Available)
	assert.Equal(t, r3.ID, second.Available.ID)
}

func TestReservationStatusMachine(t *testing.T) {
	p := DefaultPolicy()
	created := day0
	avail := day0.AddDays(30)
	pickup := day0.AddDays(32)

	tests := []struct {
		name  string
		res   Reservation
		today Date
		want  ReservationStatus
	}{
		{"pending on creation", Reservation{CreationDate: created, ExpirationDate: created.AddDays(180)}, created, StatusPending},
		{"pending on expiration day", Reservation{CreationDate: created, ExpirationDate: created.AddDays(180)}, created.AddDays(180), StatusPending},
		{"expired after expiration", Reservation{CreationDate: created, ExpirationDate: created.AddDays(180)}, created.AddDays(181), StatusExpired},
		{"available", Reservation{ExpirationDate: created.AddDays(180), AvailabilityDate: &avail}, avail, StatusAvailable},
		{"available on last pickup day", Reservation{ExpirationDate: created.AddDays(180), AvailabilityDate: &avail}, avail.AddDays(14), StatusAvailable},
		{"unclaimed", Reservation{ExpirationDate: created.AddDays(180), AvailabilityDate: &avail}, avail.AddDays(15), StatusUnclaimed},
		{"available ignores expiration", Reservation{ExpirationDate: created.AddDays(1), AvailabilityDate: &avail}, avail.AddDays(1), StatusAvailable},
		{"satisfied", Reservation{ExpirationDate: created.AddDays(180), AvailabilityDate: &avail, PickupDate: &pickup}, pickup, StatusSatisfied},
		{"satisfied stays satisfied", Reservation{ExpirationDate: created.AddDays(180), PickupDate: &pickup}, pickup.AddDays(400), StatusSatisfied},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := p.ReservationStatus(&tc.res, tc.today)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, p.ReservationStatus(&tc.res, tc.today), "status must be idempotent")
		})
	}
}
