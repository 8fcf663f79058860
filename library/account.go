package library

import "context"

// Account is a member's circulation summary as of one day.
type Account struct {
	Member       *Member       `json:"member"`
	Active       bool          `json:"active"`
	Loans        []Loan        `json:"loans"`
	Reservations []Reservation `json:"reservations"`
	OverdueCount int           `json:"overdue_count"`
}

// Account gathers the open loans and active reservations of a member, with
// overdue flags and statuses computed for today.
func (lm *LibraryManager) Account(ctx context.Context, card string, today Date) (*Account, error) {
	acc := &Account{}
	err := lm.db.read(func(q *queries) error {
		var err error
		if acc.Member, err = q.member(ctx, card); err != nil {
			return err
		}
		acc.Active = lm.policy.IsActive(acc.Member, today)

		loans, err := q.openLoansOfMember(ctx, card)
		if err != nil {
			return err
		}
		for _, l := range loans {
			l.Overdue = IsOverdue(&l, today)
			if l.Overdue {
				acc.OverdueCount++
			}
			acc.Loans = append(acc.Loans, l)
		}

		rs, err := q.activeReservationsOfMember(ctx, card)
		if err != nil {
			return err
		}
		for _, r := range rs {
			r.Status = lm.policy.ReservationStatus(&r, today)
			if r.Status.Active() {
				acc.Reservations = append(acc.Reservations, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}
