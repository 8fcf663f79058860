package library

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect registration
	"golang.org/x/sync/errgroup"
)

const (
	dialectSQLite         = "sqlite3"
	statisticsConcurrency = 4
)

var errBuildingQuery = errors.New("building query failed")

// Statistics summarizes the collection and its circulation for one year.
type Statistics struct {
	Year               int `json:"year"`
	ActiveMembers      int `json:"active_members"`
	NewMembers         int `json:"new_members"`
	Copies             int `json:"copies"`
	EntriesWithCopies  int `json:"entries_with_copies"`
	LoansInYear        int `json:"loans_in_year"`
	OpenLoans          int `json:"open_loans"`
	OverdueLoans       int `json:"overdue_loans"`
	ActiveReservations int `json:"active_reservations"`
}

// Statistics computes the yearly figures. Activity and overdue counts are
// derived from dates as of today, not from the stored flags.
func (lm *LibraryManager) Statistics(ctx context.Context, year int, today Date) (*Statistics, error) {
	builder := goqu.Dialect(dialectSQLite)
	first, last := fmt.Sprintf("%04d-01-01", year), fmt.Sprintf("%04d-12-31", year)
	lapsedBefore := today.AddDays(-lm.policy.MembershipPeriod).String()

	stats := &Statistics{Year: year}
	counters := []struct {
		dst *int
		ds  *goqu.SelectDataset
	}{
		{&stats.ActiveMembers, builder.From("members").Select(goqu.COUNT(goqu.Star())).
			Where(goqu.C("membership_anchor").Gte(lapsedBefore))},
		{&stats.NewMembers, builder.From("members").Select(goqu.COUNT(goqu.Star())).
			Where(goqu.C("registered_on").Between(goqu.Range(first, last)))},
		{&stats.Copies, builder.From("items").Select(goqu.COUNT(goqu.Star()))},
		{&stats.EntriesWithCopies, builder.From("items").Select(goqu.COUNT(goqu.DISTINCT("ean")))},
		{&stats.LoansInYear, builder.From("loans").Select(goqu.COUNT(goqu.Star())).
			Where(goqu.C("borrow_date").Between(goqu.Range(first, last)))},
		{&stats.OpenLoans, builder.From("loans").Select(goqu.COUNT(goqu.Star())).
			Where(goqu.C("return_date").IsNull())},
		{&stats.OverdueLoans, builder.From("loans").Select(goqu.COUNT(goqu.Star())).
			Where(goqu.C("return_date").IsNull(), goqu.C("due_date").Lt(today.String()))},
		{&stats.ActiveReservations, builder.From("reservations").Select(goqu.COUNT(goqu.Star())).
			Where(goqu.C("status").In(string(StatusPending), string(StatusAvailable)))},
	}

	err := lm.db.read(func(q *queries) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(statisticsConcurrency)
		for _, c := range counters {
			query, args, err := c.ds.Prepared(true).ToSQL()
			if err != nil {
				return errors.Join(errBuildingQuery, err)
			}
			g.Go(func() error {
				return q.tx.GetContext(gctx, c.dst, query, args...)
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, fmt.Errorf("statistics %d: %w", year, err)
	}
	return stats, nil
}

// LoansOfMember lists a member's loans, most recent first. Closed loans are
// only included on request.
func (lm *LibraryManager) LoansOfMember(ctx context.Context, card string, includeClosed bool) ([]Loan, error) {
	ds := goqu.Dialect(dialectSQLite).
		From("loans").
		Select(goqu.L(loanColumns)).
		Where(goqu.Ex{"card_number": card}).
		Order(goqu.I("borrow_date").Desc(), goqu.I("id").Desc())
	if !includeClosed {
		ds = ds.Where(goqu.C("return_date").IsNull())
	}
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, errors.Join(errBuildingQuery, err)
	}

	var loans []Loan
	err = lm.db.read(func(q *queries) error {
		if _, err := q.member(ctx, card); err != nil {
			return err
		}
		return q.tx.SelectContext(ctx, &loans, query, args...)
	})
	return loans, err
}
