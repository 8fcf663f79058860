package library

import (
	"context"
	"fmt"
)

// BorrowReceipt describes everything a successful borrow committed.
type BorrowReceipt struct {
	Loan *Loan `json:"loan"`
	// Displaced is the other member's loan closed to hand the copy over.
	Displaced *Loan `json:"displaced,omitempty"`
	// Satisfied is the borrower's reservation picked up by this loan.
	Satisfied *Reservation `json:"satisfied,omitempty"`
}

// Notice returns ErrAlreadyBorrowedByOther when the borrow reassigned a copy
// that another member still held. The reassignment is already committed.
func (r *BorrowReceipt) Notice() error {
	if r.Displaced == nil {
		return nil
	}
	return fmt.Errorf("%w: loan %d of card %s closed", ErrAlreadyBorrowedByOther, r.Displaced.ID, r.Displaced.CardNumber)
}

// ReturnReceipt describes a committed return.
type ReturnReceipt struct {
	Loan *Loan `json:"loan"`
	// Available is the reservation that moved to available, if any.
	Available *Reservation `json:"available,omitempty"`
}

// ------------------ Borrow ------------------

// Borrow lends the copy to the member. Soft limits are reported as errors and
// leave the store untouched.
func (lm *LibraryManager) Borrow(ctx context.Context, card, barcode string, today Date) (*BorrowReceipt, error) {
	return lm.borrow(ctx, card, barcode, today, false)
}

// ForceBorrow is Borrow without the loan ceiling and same-day return checks.
func (lm *LibraryManager) ForceBorrow(ctx context.Context, card, barcode string, today Date) (*BorrowReceipt, error) {
	return lm.borrow(ctx, card, barcode, today, true)
}

func (lm *LibraryManager) borrow(ctx context.Context, card, barcode string, today Date, force bool) (*BorrowReceipt, error) {
	// A copy never changes entry, so its EAN can be read before locking.
	it, err := lm.db.ResolveItem(ctx, barcode)
	if err != nil {
		return nil, err
	}
	release := lm.locks.acquire(itemKey(barcode), memberKey(card), pairKey(card, it.EAN), entryKey(it.EAN))
	defer release()

	receipt := &BorrowReceipt{}
	err = lm.db.withTx(ctx, func(q *queries) error {
		if _, err := q.item(ctx, barcode); err != nil {
			return err
		}
		m, err := q.member(ctx, card)
		if err != nil {
			return err
		}

		current, err := q.openLoanForItem(ctx, barcode)
		if err != nil {
			return err
		}
		if current != nil && current.CardNumber == card {
			return fmt.Errorf("%w: loan %d", ErrAlreadyBorrowedBySelf, current.ID)
		}

		if !force {
			if err := lm.checkBorrowLimits(ctx, q, card, barcode, today); err != nil {
				return err
			}
		}

		if current != nil {
			current.ReturnDate = datePtr(today)
			current.Overdue = false
			if err := q.updateLoan(ctx, current); err != nil {
				return err
			}
			receipt.Displaced = current
		}

		loan := &Loan{
			CardNumber: card,
			Barcode:    barcode,
			BorrowDate: today,
			DueDate:    today.AddDays(lm.policy.BorrowPeriod(m.Role)),
			Forced:     force,
		}
		if err := q.insertLoan(ctx, loan); err != nil {
			return err
		}
		receipt.Loan = loan

		receipt.Satisfied, err = lm.pickUp(ctx, q, card, it.EAN, today)
		return err
	})
	if err != nil {
		if IsSoftLimit(err) {
			lm.logger.Debug("borrow refused", "card", card, "barcode", barcode, "reason", err)
		}
		return nil, err
	}

	if receipt.Displaced != nil {
		lm.logger.Info("loan reassigned", "barcode", barcode,
			"from", receipt.Displaced.CardNumber, "to", card, "closed_loan", receipt.Displaced.ID)
	}
	lm.logger.Info("loan opened", "loan", receipt.Loan.ID, "card", card, "barcode", barcode,
		"due", receipt.Loan.DueDate.String(), "forced", force)
	if receipt.Satisfied != nil {
		lm.logger.Info("reservation satisfied", "reservation", receipt.Satisfied.ID, "card", card, "ean", it.EAN)
	}
	return receipt, nil
}

func (lm *LibraryManager) checkBorrowLimits(ctx context.Context, q *queries, card, barcode string, today Date) error {
	returned, err := q.returnedToday(ctx, card, barcode, today)
	if err != nil {
		return err
	}
	if returned {
		return fmt.Errorf("%w: %s", ErrReturnedToday, barcode)
	}
	open, err := q.countOpenLoans(ctx, card)
	if err != nil {
		return err
	}
	if open >= lm.policy.MaxLoans {
		return fmt.Errorf("%w: %d open loans", ErrMaxLoansReached, open)
	}
	return nil
}

// pickUp marks the borrower's active reservation on ean as satisfied. A
// reservation that has lapsed by today only gets its terminal status stored.
func (lm *LibraryManager) pickUp(ctx context.Context, q *queries, card, ean string, today Date) (*Reservation, error) {
	r, err := q.activeReservation(ctx, card, ean)
	if err != nil || r == nil {
		return nil, err
	}
	status := lm.policy.ReservationStatus(r, today)
	if !status.Active() {
		r.Status = status
		return nil, q.updateReservation(ctx, r)
	}
	r.PickupDate = datePtr(today)
	r.Status = lm.policy.ReservationStatus(r, today)
	if err := q.updateReservation(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// ------------------ Renew ------------------

// Renew extends an open loan to today plus the renewal window.
func (lm *LibraryManager) Renew(ctx context.Context, loanID int64, today Date) (*Loan, error) {
	return lm.renew(ctx, loanID, today, false)
}

// ForceRenew is Renew without the renewal ceiling.
func (lm *LibraryManager) ForceRenew(ctx context.Context, loanID int64, today Date) (*Loan, error) {
	return lm.renew(ctx, loanID, today, true)
}

// RenewItem renews the open loan of a copy.
func (lm *LibraryManager) RenewItem(ctx context.Context, barcode string, today Date) (*Loan, error) {
	l, err := lm.openLoanOf(ctx, barcode)
	if err != nil {
		return nil, err
	}
	return lm.renew(ctx, l.ID, today, false)
}

// ForceRenewItem is RenewItem without the renewal ceiling.
func (lm *LibraryManager) ForceRenewItem(ctx context.Context, barcode string, today Date) (*Loan, error) {
	l, err := lm.openLoanOf(ctx, barcode)
	if err != nil {
		return nil, err
	}
	return lm.renew(ctx, l.ID, today, true)
}

func (lm *LibraryManager) renew(ctx context.Context, loanID int64, today Date, force bool) (*Loan, error) {
	l, err := lm.lookupLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	release := lm.locks.acquire(itemKey(l.Barcode))
	defer release()

	err = lm.db.withTx(ctx, func(q *queries) error {
		if l, err = q.loan(ctx, loanID); err != nil {
			return err
		}
		if !l.Open() {
			return fmt.Errorf("%w: loan %d returned on %s", ErrNotOpen, l.ID, l.ReturnDate)
		}
		if l.BorrowDate.Equal(today) {
			return fmt.Errorf("%w: loan %d", ErrSameDayRenewal, l.ID)
		}
		if !force && l.RenewalCount >= lm.policy.MaxRenewals {
			return fmt.Errorf("%w: loan %d renewed %d times", ErrMaxRenewalsReached, l.ID, l.RenewalCount)
		}
		l.RenewalCount++
		l.DueDate = today.AddDays(lm.policy.RenewalWindow)
		l.Overdue = IsOverdue(l, today)
		return q.updateLoan(ctx, l)
	})
	if err != nil {
		if IsSoftLimit(err) {
			lm.logger.Debug("renewal refused", "loan", loanID, "reason", err)
		}
		return nil, err
	}
	lm.logger.Info("loan renewed", "loan", l.ID, "card", l.CardNumber, "barcode", l.Barcode,
		"due", l.DueDate.String(), "renewals", l.RenewalCount, "forced", force)
	return l, nil
}

// ------------------ Return ------------------

// Return closes an open loan and hands the copy to the oldest pending
// reservation of its catalog entry.
func (lm *LibraryManager) Return(ctx context.Context, loanID int64, today Date) (*ReturnReceipt, error) {
	l, err := lm.lookupLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if !l.Open() {
		return nil, fmt.Errorf("%w: loan %d returned on %s", ErrNotOpen, l.ID, l.ReturnDate)
	}
	it, err := lm.db.ResolveItem(ctx, l.Barcode)
	if err != nil {
		return nil, err
	}
	release := lm.locks.acquire(itemKey(it.Barcode), entryKey(it.EAN))
	defer release()

	receipt := &ReturnReceipt{}
	err = lm.db.withTx(ctx, func(q *queries) error {
		if l, err = q.loan(ctx, loanID); err != nil {
			return err
		}
		if !l.Open() {
			return fmt.Errorf("%w: loan %d returned on %s", ErrNotOpen, l.ID, l.ReturnDate)
		}
		l.ReturnDate = datePtr(today)
		l.Overdue = false
		if err := q.updateLoan(ctx, l); err != nil {
			return err
		}
		receipt.Loan = l

		queue, err := lm.refreshQueue(ctx, q, it.EAN, today)
		if err != nil {
			return err
		}
		next := nextPending(queue)
		if next == nil {
			return nil
		}
		next.AvailabilityDate = datePtr(today)
		next.Status = lm.policy.ReservationStatus(next, today)
		if err := q.updateReservation(ctx, next); err != nil {
			return err
		}
		receipt.Available = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	lm.logger.Info("loan closed", "loan", l.ID, "card", l.CardNumber, "barcode", l.Barcode)
	if receipt.Available != nil {
		lm.logger.Info("reservation available", "reservation", receipt.Available.ID,
			"card", receipt.Available.CardNumber, "ean", it.EAN)
	}
	return receipt, nil
}

// ReturnItem returns the open loan of a copy.
func (lm *LibraryManager) ReturnItem(ctx context.Context, barcode string, today Date) (*ReturnReceipt, error) {
	l, err := lm.openLoanOf(ctx, barcode)
	if err != nil {
		return nil, err
	}
	return lm.Return(ctx, l.ID, today)
}

// ------------------ Lookups ------------------

// Overdue reports whether the loan is open and past its due date.
func (lm *LibraryManager) Overdue(l *Loan, today Date) bool { return IsOverdue(l, today) }

// Loan returns a loan by id.
func (lm *LibraryManager) Loan(ctx context.Context, loanID int64) (*Loan, error) {
	return lm.lookupLoan(ctx, loanID)
}

// OpenLoan returns the open loan of a copy, or ErrNotOpen when it is on the
// shelf.
func (lm *LibraryManager) OpenLoan(ctx context.Context, barcode string) (*Loan, error) {
	return lm.openLoanOf(ctx, barcode)
}

func (lm *LibraryManager) lookupLoan(ctx context.Context, loanID int64) (*Loan, error) {
	var l *Loan
	err := lm.db.read(func(q *queries) error {
		var err error
		l, err = q.loan(ctx, loanID)
		return err
	})
	return l, err
}

func (lm *LibraryManager) openLoanOf(ctx context.Context, barcode string) (*Loan, error) {
	var l *Loan
	err := lm.db.read(func(q *queries) error {
		if _, err := q.item(ctx, barcode); err != nil {
			return err
		}
		var err error
		l, err = q.openLoanForItem(ctx, barcode)
		return err
	})
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, fmt.Errorf("%w: no open loan on %s", ErrNotOpen, barcode)
	}
	return l, nil
}
