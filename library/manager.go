package library

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// MemberResolver turns an external identifier into a member.
type MemberResolver interface {
	ResolveMember(ctx context.Context, card string) (*Member, error)
}

// ItemResolver turns a barcode into a copy and a catalog entry into its copies.
type ItemResolver interface {
	ResolveItem(ctx context.Context, barcode string) (*Item, error)
	ItemsOfEntry(ctx context.Context, ean string) ([]Item, error)
}

var (
	_ MemberResolver = (*Database)(nil)
	_ ItemResolver   = (*Database)(nil)
)

// LibraryManager is the lending and reservation engine. Every operation takes
// the current day explicitly and either commits its whole state transition or
// fails before writing anything.
type LibraryManager struct {
	db     *Database
	policy Policy
	logger *slog.Logger
	locks  *lockSet
	runs   singleflight.Group
}

// Option configures a LibraryManager.
type Option func(*LibraryManager)

// WithPolicy replaces the default library rules.
func WithPolicy(p Policy) Option {
	return func(lm *LibraryManager) { lm.policy = p }
}

// WithLogger sets the logger used for committed transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(lm *LibraryManager) {
		if logger != nil {
			lm.logger = logger
		}
	}
}

// NewLibraryManager builds an engine over an already opened database. The
// caller keeps ownership of db and closes it at shutdown.
func NewLibraryManager(db *Database, opts ...Option) *LibraryManager {
	lm := &LibraryManager{
		db:     db,
		policy: DefaultPolicy(),
		logger: slog.Default(),
		locks:  newLockSet(),
	}
	for _, opt := range opts {
		opt(lm)
	}
	return lm
}

// Policy returns the rules the engine enforces.
func (lm *LibraryManager) Policy() Policy { return lm.policy }

// ------------------ Resolvers ------------------

// ResolveMember looks a member up by card number.
func (lm *LibraryManager) ResolveMember(ctx context.Context, card string) (*Member, error) {
	return lm.db.ResolveMember(ctx, card)
}

// ResolveItem looks a copy up by barcode.
func (lm *LibraryManager) ResolveItem(ctx context.Context, barcode string) (*Item, error) {
	return lm.db.ResolveItem(ctx, barcode)
}

// ItemsOfEntry lists the copies of a catalog entry.
func (lm *LibraryManager) ItemsOfEntry(ctx context.Context, ean string) ([]Item, error) {
	return lm.db.ItemsOfEntry(ctx, ean)
}
