package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Database owns the SQLite connection every engine operation runs against.
// It is opened once at process start and handed to NewLibraryManager.
type Database struct {
	db *sqlx.DB
}

// NewDatabase opens (or creates) the SQLite database at dbPath and applies
// schema migrations.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// busy_timeout and immediate transactions make each operation take the
	// write lock up front, so check-then-act runs atomically across processes.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", dbPath)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Database{db: db}, nil
}

// Close closes the DB.
func (d *Database) Close() error { return d.db.Close() }

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sqlx.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS members (
            card_number TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            role TEXT NOT NULL CHECK (role IN ('standard','staff')),
            membership_anchor TEXT NOT NULL,
            is_active INTEGER NOT NULL DEFAULT 1,
            registered_on TEXT NOT NULL,
            password_hash TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS catalog_entries (
            ean TEXT PRIMARY KEY,
            media_type TEXT NOT NULL CHECK (media_type IN ('book','film','music'))
        );`,
		`CREATE TABLE IF NOT EXISTS items (
            barcode TEXT PRIMARY KEY,
            ean TEXT NOT NULL REFERENCES catalog_entries(ean),
            added_on TEXT NOT NULL
        );`,
		// barcode carries no foreign key: closed loans outlive removed copies.
		`CREATE TABLE IF NOT EXISTS loans (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            card_number TEXT NOT NULL REFERENCES members(card_number),
            barcode TEXT NOT NULL,
            borrow_date TEXT NOT NULL,
            due_date TEXT NOT NULL,
            return_date TEXT,
            renewal_count INTEGER NOT NULL DEFAULT 0,
            overdue INTEGER NOT NULL DEFAULT 0,
            forced INTEGER NOT NULL DEFAULT 0
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_open_item ON loans(barcode) WHERE return_date IS NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_loans_member ON loans(card_number, return_date);`,
		`CREATE TABLE IF NOT EXISTS reservations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            card_number TEXT NOT NULL REFERENCES members(card_number),
            ean TEXT NOT NULL REFERENCES catalog_entries(ean),
            creation_date TEXT NOT NULL,
            expiration_date TEXT NOT NULL,
            availability_date TEXT,
            pickup_date TEXT,
            status TEXT NOT NULL,
            forced INTEGER NOT NULL DEFAULT 0
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_active
            ON reservations(card_number, ean) WHERE status IN ('pending','available');`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_queue ON reservations(ean, status, creation_date, id);`,
		`CREATE TABLE IF NOT EXISTS reconciliation_runs (
            id TEXT PRIMARY KEY,
            run_date TEXT NOT NULL,
            loans_overdue INTEGER NOT NULL,
            loans_cleared INTEGER NOT NULL,
            reservations_expired INTEGER NOT NULL,
            reservations_unclaimed INTEGER NOT NULL,
            members_deactivated INTEGER NOT NULL,
            members_reactivated INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_reconciliation_runs_date ON reconciliation_runs(run_date);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

// withTx runs fn inside one transaction and commits only if fn succeeds, so a
// failed operation leaves no partial writes behind.
func (d *Database) withTx(ctx context.Context, fn func(q *queries) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// read runs fn outside any transaction, for single-statement lookups.
func (d *Database) read(fn func(q *queries) error) error {
	return fn(&queries{tx: d.db})
}

// sqlxRunner is the subset of sqlx shared by *sqlx.DB and *sqlx.Tx.
type sqlxRunner interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
}

// queries holds the row-level helpers. Inside withTx they are all bound to
// one transaction.
type queries struct {
	tx sqlxRunner
}

const (
	memberColumns      = `card_number,name,role,membership_anchor,is_active,registered_on,password_hash`
	loanColumns        = `id,card_number,barcode,borrow_date,due_date,return_date,renewal_count,overdue,forced`
	reservationColumns = `id,card_number,ean,creation_date,expiration_date,availability_date,pickup_date,status,forced`
)

// ------------------ Members ------------------

func (q *queries) member(ctx context.Context, card string) (*Member, error) {
	var members []Member
	if err := q.tx.SelectContext(ctx, &members, `SELECT `+memberColumns+` FROM members WHERE card_number=?`, card); err != nil {
		return nil, err
	}
	switch len(members) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMember, card)
	case 1:
		return &members[0], nil
	default:
		return nil, fmt.Errorf("%w: card %s", ErrDataIntegrity, card)
	}
}

func (q *queries) allMembers(ctx context.Context) ([]Member, error) {
	var members []Member
	err := q.tx.SelectContext(ctx, &members, `SELECT `+memberColumns+` FROM members ORDER BY card_number`)
	return members, err
}

func (q *queries) highestCardNumber(ctx context.Context) (int64, error) {
	var highest sql.NullInt64
	if err := q.tx.GetContext(ctx, &highest, `SELECT MAX(CAST(card_number AS INTEGER)) FROM members`); err != nil {
		return 0, err
	}
	if !highest.Valid {
		return minimalCardNumber, nil
	}
	return highest.Int64, nil
}

func (q *queries) insertMember(ctx context.Context, m *Member) error {
	_, err := q.tx.NamedExecContext(ctx, `INSERT INTO members(`+memberColumns+`)
        VALUES(:card_number,:name,:role,:membership_anchor,:is_active,:registered_on,:password_hash)`, m)
	return err
}

func (q *queries) updateMemberStatus(ctx context.Context, m *Member) error {
	_, err := q.tx.ExecContext(ctx, `UPDATE members SET membership_anchor=?, is_active=? WHERE card_number=?`,
		m.MembershipAnchor, m.IsActive, m.CardNumber)
	return err
}

func (q *queries) setPasswordHash(ctx context.Context, card, hash string) error {
	_, err := q.tx.ExecContext(ctx, `UPDATE members SET password_hash=? WHERE card_number=?`, hash, card)
	return err
}

// ------------------ Catalog and items ------------------

func (q *queries) entry(ctx context.Context, ean string) (*CatalogEntry, error) {
	var entries []CatalogEntry
	if err := q.tx.SelectContext(ctx, &entries, `SELECT ean,media_type FROM catalog_entries WHERE ean=?`, ean); err != nil {
		return nil, err
	}
	switch len(entries) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCatalogEntry, ean)
	case 1:
		return &entries[0], nil
	default:
		return nil, fmt.Errorf("%w: ean %s", ErrDataIntegrity, ean)
	}
}

func (q *queries) insertEntry(ctx context.Context, e *CatalogEntry) error {
	_, err := q.tx.ExecContext(ctx, `INSERT INTO catalog_entries(ean,media_type) VALUES(?,?)
        ON CONFLICT(ean) DO NOTHING`, e.EAN, e.MediaType)
	return err
}

func (q *queries) item(ctx context.Context, barcode string) (*Item, error) {
	var items []Item
	if err := q.tx.SelectContext(ctx, &items, `SELECT barcode,ean,added_on FROM items WHERE barcode=?`, barcode); err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, barcode)
	case 1:
		return &items[0], nil
	default:
		return nil, fmt.Errorf("%w: barcode %s", ErrDataIntegrity, barcode)
	}
}

func (q *queries) itemsOfEntry(ctx context.Context, ean string) ([]Item, error) {
	var items []Item
	err := q.tx.SelectContext(ctx, &items, `SELECT barcode,ean,added_on FROM items WHERE ean=? ORDER BY barcode`, ean)
	return items, err
}

func (q *queries) highestBarcode(ctx context.Context) (int64, error) {
	var highest sql.NullInt64
	if err := q.tx.GetContext(ctx, &highest, `SELECT MAX(CAST(barcode AS INTEGER)) FROM items`); err != nil {
		return 0, err
	}
	// Removed copies keep their barcode in loan history; never reuse one.
	var highestLoaned sql.NullInt64
	if err := q.tx.GetContext(ctx, &highestLoaned, `SELECT MAX(CAST(barcode AS INTEGER)) FROM loans`); err != nil {
		return 0, err
	}
	return max(highest.Int64, highestLoaned.Int64), nil
}

func (q *queries) insertItem(ctx context.Context, it *Item) error {
	_, err := q.tx.ExecContext(ctx, `INSERT INTO items(barcode,ean,added_on) VALUES(?,?,?)`, it.Barcode, it.EAN, it.AddedOn)
	return err
}

func (q *queries) deleteItem(ctx context.Context, barcode string) error {
	_, err := q.tx.ExecContext(ctx, `DELETE FROM items WHERE barcode=?`, barcode)
	return err
}

// ------------------ Loans ------------------

func (q *queries) loan(ctx context.Context, id int64) (*Loan, error) {
	var l Loan
	err := q.tx.GetContext(ctx, &l, `SELECT `+loanColumns+` FROM loans WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLoan, id)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// openLoanForItem returns the current loan of a copy, or nil when the copy is
// on the shelf.
func (q *queries) openLoanForItem(ctx context.Context, barcode string) (*Loan, error) {
	var loans []Loan
	if err := q.tx.SelectContext(ctx, &loans, `SELECT `+loanColumns+` FROM loans WHERE barcode=? AND return_date IS NULL`, barcode); err != nil {
		return nil, err
	}
	switch len(loans) {
	case 0:
		return nil, nil
	case 1:
		return &loans[0], nil
	default:
		return nil, fmt.Errorf("%w: %d open loans on %s", ErrDataIntegrity, len(loans), barcode)
	}
}

func (q *queries) openLoansOfMember(ctx context.Context, card string) ([]Loan, error) {
	var loans []Loan
	err := q.tx.SelectContext(ctx, &loans, `SELECT `+loanColumns+` FROM loans
        WHERE card_number=? AND return_date IS NULL ORDER BY due_date, id`, card)
	return loans, err
}

func (q *queries) allOpenLoans(ctx context.Context) ([]Loan, error) {
	var loans []Loan
	err := q.tx.SelectContext(ctx, &loans, `SELECT `+loanColumns+` FROM loans WHERE return_date IS NULL ORDER BY id`)
	return loans, err
}

func (q *queries) countOpenLoans(ctx context.Context, card string) (int, error) {
	var n int
	err := q.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM loans WHERE card_number=? AND return_date IS NULL`, card)
	return n, err
}

func (q *queries) returnedToday(ctx context.Context, card, barcode string, today Date) (bool, error) {
	var exists bool
	err := q.tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM loans WHERE card_number=? AND barcode=? AND return_date=?)`,
		card, barcode, today)
	return exists, err
}

func (q *queries) insertLoan(ctx context.Context, l *Loan) error {
	res, err := q.tx.NamedExecContext(ctx, `INSERT INTO loans(card_number,barcode,borrow_date,due_date,return_date,renewal_count,overdue,forced)
        VALUES(:card_number,:barcode,:borrow_date,:due_date,:return_date,:renewal_count,:overdue,:forced)`, l)
	if err != nil {
		return err
	}
	l.ID, err = res.LastInsertId()
	return err
}

func (q *queries) updateLoan(ctx context.Context, l *Loan) error {
	_, err := q.tx.NamedExecContext(ctx, `UPDATE loans SET due_date=:due_date, return_date=:return_date,
        renewal_count=:renewal_count, overdue=:overdue WHERE id=:id`, l)
	return err
}

// ------------------ Reservations ------------------

func (q *queries) activeReservation(ctx context.Context, card, ean string) (*Reservation, error) {
	var rs []Reservation
	if err := q.tx.SelectContext(ctx, &rs, `SELECT `+reservationColumns+` FROM reservations
        WHERE card_number=? AND ean=? AND status IN ('pending','available')`, card, ean); err != nil {
		return nil, err
	}
	switch len(rs) {
	case 0:
		return nil, nil
	case 1:
		return &rs[0], nil
	default:
		return nil, fmt.Errorf("%w: %d active reservations for %s on %s", ErrDataIntegrity, len(rs), card, ean)
	}
}

func (q *queries) countActiveReservations(ctx context.Context, card string) (int, error) {
	var n int
	err := q.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM reservations WHERE card_number=? AND status IN ('pending','available')`, card)
	return n, err
}

func (q *queries) activeReservationsOfMember(ctx context.Context, card string) ([]Reservation, error) {
	var rs []Reservation
	err := q.tx.SelectContext(ctx, &rs, `SELECT `+reservationColumns+` FROM reservations
        WHERE card_number=? AND status IN ('pending','available') ORDER BY creation_date, id`, card)
	return rs, err
}

// activeReservationsOfEntry returns the queue of an entry, oldest first.
func (q *queries) activeReservationsOfEntry(ctx context.Context, ean string) ([]Reservation, error) {
	var rs []Reservation
	err := q.tx.SelectContext(ctx, &rs, `SELECT `+reservationColumns+` FROM reservations
        WHERE ean=? AND status IN ('pending','available') ORDER BY creation_date, id`, ean)
	return rs, err
}

func (q *queries) allActiveReservations(ctx context.Context) ([]Reservation, error) {
	var rs []Reservation
	err := q.tx.SelectContext(ctx, &rs, `SELECT `+reservationColumns+` FROM reservations
        WHERE status IN ('pending','available') ORDER BY id`)
	return rs, err
}

func (q *queries) insertReservation(ctx context.Context, r *Reservation) error {
	res, err := q.tx.NamedExecContext(ctx, `INSERT INTO reservations(card_number,ean,creation_date,expiration_date,availability_date,pickup_date,status,forced)
        VALUES(:card_number,:ean,:creation_date,:expiration_date,:availability_date,:pickup_date,:status,:forced)`, r)
	if err != nil {
		return err
	}
	r.ID, err = res.LastInsertId()
	return err
}

func (q *queries) updateReservation(ctx context.Context, r *Reservation) error {
	_, err := q.tx.NamedExecContext(ctx, `UPDATE reservations SET availability_date=:availability_date,
        pickup_date=:pickup_date, status=:status WHERE id=:id`, r)
	return err
}

// ------------------ Reconciliation runs ------------------

func (q *queries) hasRunOn(ctx context.Context, day Date) (bool, error) {
	var exists bool
	err := q.tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM reconciliation_runs WHERE run_date=?)`, day)
	return exists, err
}

func (q *queries) insertRun(ctx context.Context, r *ReconcileReport) error {
	_, err := q.tx.NamedExecContext(ctx, `INSERT INTO reconciliation_runs(id,run_date,loans_overdue,loans_cleared,
        reservations_expired,reservations_unclaimed,members_deactivated,members_reactivated)
        VALUES(:id,:run_date,:loans_overdue,:loans_cleared,:reservations_expired,:reservations_unclaimed,
        :members_deactivated,:members_reactivated)`, r)
	return err
}

// ---------------------------------------------------------------------------
// Resolvers
// ---------------------------------------------------------------------------

// ResolveMember looks a member up by card number.
func (d *Database) ResolveMember(ctx context.Context, card string) (*Member, error) {
	var m *Member
	err := d.read(func(q *queries) error {
		var err error
		m, err = q.member(ctx, card)
		return err
	})
	return m, err
}

// ResolveItem looks a copy up by barcode.
func (d *Database) ResolveItem(ctx context.Context, barcode string) (*Item, error) {
	var it *Item
	err := d.read(func(q *queries) error {
		var err error
		it, err = q.item(ctx, barcode)
		return err
	})
	return it, err
}

// ItemsOfEntry lists the copies of a catalog entry.
func (d *Database) ItemsOfEntry(ctx context.Context, ean string) ([]Item, error) {
	var items []Item
	err := d.read(func(q *queries) error {
		if _, err := q.entry(ctx, ean); err != nil {
			return err
		}
		var err error
		items, err = q.itemsOfEntry(ctx, ean)
		return err
	})
	return items, err
}
