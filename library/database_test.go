package library

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDB(t *testing.T) *Database {
	t.Helper()
	dir := t.TempDir()
	db, err := NewDatabase(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newManager(t *testing.T, opts ...Option) *LibraryManager {
	t.Helper()
	return NewLibraryManager(tempDB(t), opts...)
}

// testEAN returns a distinct, valid 13-digit EAN.
func testEAN(i int) string { return fmt.Sprintf("978000000%04d", i) }

func mustRegister(t *testing.T, mgr *LibraryManager, name string, role Role, day Date) *Member {
	t.Helper()
	m, err := mgr.Register(context.Background(), name, role, day)
	require.NoError(t, err)
	return m
}

func mustEntry(t *testing.T, mgr *LibraryManager, ean string) {
	t.Helper()
	_, err := mgr.AddCatalogEntry(context.Background(), ean, MediaBook)
	require.NoError(t, err)
}

// mustItem registers the entry if needed and adds one copy of it.
func mustItem(t *testing.T, mgr *LibraryManager, ean string, day Date) *Item {
	t.Helper()
	mustEntry(t, mgr, ean)
	it, err := mgr.AddItem(context.Background(), ean, day)
	require.NoError(t, err)
	return it
}

func countRows(t *testing.T, mgr *LibraryManager, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, mgr.db.db.Get(&n, query, args...))
	return n
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 2; i++ {
		db, err := NewDatabase(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		var version int
		require.NoError(t, db.db.Get(&version, `SELECT value FROM meta WHERE key='schema_version'`))
		assert.Equal(t, schemaVersion, version)
		require.NoError(t, db.Close())
	}
}

func TestOneOpenLoanPerItemIsEnforcedByStore(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()
	day := MustParseDate("2024-03-01")
	m1 := mustRegister(t, mgr, "Alice Martin", RoleStandard, day)
	m2 := mustRegister(t, mgr, "Bob Durand", RoleStandard, day)
	it := mustItem(t, mgr, testEAN(1), day)

	err := mgr.db.withTx(ctx, func(q *queries) error {
		if err := q.insertLoan(ctx, &Loan{CardNumber: m1.CardNumber, Barcode: it.Barcode, BorrowDate: day, DueDate: day.AddDays(28)}); err != nil {
			return err
		}
		return q.insertLoan(ctx, &Loan{CardNumber: m2.CardNumber, Barcode: it.Barcode, BorrowDate: day, DueDate: day.AddDays(28)})
	})
	require.Error(t, err)
	assert.Zero(t, countRows(t, mgr, `SELECT COUNT(*) FROM loans`), "failed transaction must leave no loan")
}

func TestOneActiveReservationPerPairIsEnforcedByStore(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()
	day := MustParseDate("2024-03-01")
	m := mustRegister(t, mgr, "Alice Martin", RoleStandard, day)
	mustEntry(t, mgr, testEAN(1))

	newRes := func() *Reservation {
		return &Reservation{CardNumber: m.CardNumber, EAN: testEAN(1), CreationDate: day,
			ExpirationDate: day.AddDays(180), Status: StatusPending}
	}
	err := mgr.db.withTx(ctx, func(q *queries) error {
		if err := q.insertReservation(ctx, newRes()); err != nil {
			return err
		}
		return q.insertReservation(ctx, newRes())
	})
	require.Error(t, err)

	// A terminal reservation does not block a new one.
	err = mgr.db.withTx(ctx, func(q *queries) error {
		old := newRes()
		old.Status = StatusExpired
		if err := q.insertReservation(ctx, old); err != nil {
			return err
		}
		return q.insertReservation(ctx, newRes())
	})
	require.NoError(t, err)
}

func TestDatesRoundTripThroughStore(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()
	day := MustParseDate("2024-02-29")
	m := mustRegister(t, mgr, "Alice Martin", RoleStaff, day)
	it := mustItem(t, mgr, testEAN(1), day)

	receipt, err := mgr.Borrow(ctx, m.CardNumber, it.Barcode, day)
	require.NoError(t, err)

	l, err := mgr.Loan(ctx, receipt.Loan.ID)
	require.NoError(t, err)
	assert.True(t, l.BorrowDate.Equal(day))
	assert.Equal(t, "2024-04-29", l.DueDate.String())
	assert.Nil(t, l.ReturnDate)
}

func TestResolvers(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()
	day := MustParseDate("2024-03-01")
	m := mustRegister(t, mgr, "Alice Martin", RoleStandard, day)
	it := mustItem(t, mgr, testEAN(1), day)

	got, err := mgr.ResolveMember(ctx, m.CardNumber)
	require.NoError(t, err)
	assert.Equal(t, "Alice MARTIN", got.Name)

	_, err = mgr.ResolveMember(ctx, "939999999")
	assert.ErrorIs(t, err, ErrUnknownMember)

	gotItem, err := mgr.ResolveItem(ctx, it.Barcode)
	require.NoError(t, err)
	assert.Equal(t, testEAN(1), gotItem.EAN)

	_, err = mgr.ResolveItem(ctx, "000009999999")
	assert.ErrorIs(t, err, ErrUnknownItem)

	_, err = mgr.ItemsOfEntry(ctx, testEAN(2))
	assert.ErrorIs(t, err, ErrUnknownCatalogEntry)
}
