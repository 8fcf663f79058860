package library

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ReconcileReport counts the derived fields one reconciliation pass flipped.
type ReconcileReport struct {
	ID                    string `db:"id" json:"id"`
	RunDate               Date   `db:"run_date" json:"run_date"`
	LoansOverdue          int    `db:"loans_overdue" json:"loans_overdue"`
	LoansCleared          int    `db:"loans_cleared" json:"loans_cleared"`
	ReservationsExpired   int    `db:"reservations_expired" json:"reservations_expired"`
	ReservationsUnclaimed int    `db:"reservations_unclaimed" json:"reservations_unclaimed"`
	MembersDeactivated    int    `db:"members_deactivated" json:"members_deactivated"`
	MembersReactivated    int    `db:"members_reactivated" json:"members_reactivated"`
}

// Changes returns the total number of flipped fields.
func (r *ReconcileReport) Changes() int {
	return r.LoansOverdue + r.LoansCleared + r.ReservationsExpired + r.ReservationsUnclaimed +
		r.MembersDeactivated + r.MembersReactivated
}

// Reconcile re-derives every date-dependent field for today: overdue flags of
// open loans, statuses of active reservations and member activity. It waits
// for in-flight operations and blocks new ones until it commits. Running it
// again on the same day changes nothing.
func (lm *LibraryManager) Reconcile(ctx context.Context, today Date) (*ReconcileReport, error) {
	return lm.reconcile(ctx, today, false)
}

// EnsureReconciled runs Reconcile unless a run is already recorded for today.
// Concurrent callers share one run. The report is nil when nothing ran.
func (lm *LibraryManager) EnsureReconciled(ctx context.Context, today Date) (*ReconcileReport, error) {
	v, err, _ := lm.runs.Do(today.String(), func() (any, error) {
		return lm.reconcile(ctx, today, true)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ReconcileReport), nil
}

func (lm *LibraryManager) reconcile(ctx context.Context, today Date, onlyOnce bool) (*ReconcileReport, error) {
	release := lm.locks.exclusive()
	defer release()

	var report *ReconcileReport
	err := lm.db.withTx(ctx, func(q *queries) error {
		if onlyOnce {
			done, err := q.hasRunOn(ctx, today)
			if err != nil || done {
				return err
			}
		}
		report = &ReconcileReport{ID: uuid.NewString(), RunDate: today}

		if err := lm.reconcileLoans(ctx, q, today, report); err != nil {
			return err
		}
		if err := lm.reconcileReservations(ctx, q, today, report); err != nil {
			return err
		}
		if err := lm.reconcileMembers(ctx, q, today, report); err != nil {
			return err
		}
		return q.insertRun(ctx, report)
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", today, err)
	}
	if report != nil {
		lm.logger.Info("reconciliation finished", "run", report.ID, "date", today.String(),
			"loans_overdue", report.LoansOverdue, "loans_cleared", report.LoansCleared,
			"reservations_expired", report.ReservationsExpired,
			"reservations_unclaimed", report.ReservationsUnclaimed,
			"members_deactivated", report.MembersDeactivated,
			"members_reactivated", report.MembersReactivated)
	}
	return report, nil
}

func (lm *LibraryManager) reconcileLoans(ctx context.Context, q *queries, today Date, report *ReconcileReport) error {
	loans, err := q.allOpenLoans(ctx)
	if err != nil {
		return err
	}
	for i := range loans {
		l := &loans[i]
		overdue := IsOverdue(l, today)
		if overdue == l.Overdue {
			continue
		}
		l.Overdue = overdue
		if err := q.updateLoan(ctx, l); err != nil {
			return err
		}
		if overdue {
			report.LoansOverdue++
		} else {
			report.LoansCleared++
		}
	}
	return nil
}

func (lm *LibraryManager) reconcileReservations(ctx context.Context, q *queries, today Date, report *ReconcileReport) error {
	rs, err := q.allActiveReservations(ctx)
	if err != nil {
		return err
	}
	for i := range rs {
		r := &rs[i]
		status := lm.policy.ReservationStatus(r, today)
		if status == r.Status {
			continue
		}
		r.Status = status
		if err := q.updateReservation(ctx, r); err != nil {
			return err
		}
		switch status {
		case StatusExpired:
			report.ReservationsExpired++
		case StatusUnclaimed:
			report.ReservationsUnclaimed++
		}
	}
	return nil
}

func (lm *LibraryManager) reconcileMembers(ctx context.Context, q *queries, today Date, report *ReconcileReport) error {
	members, err := q.allMembers(ctx)
	if err != nil {
		return err
	}
	for i := range members {
		m := &members[i]
		active := lm.policy.IsActive(m, today)
		if active == m.IsActive {
			continue
		}
		m.IsActive = active
		if err := q.updateMemberStatus(ctx, m); err != nil {
			return err
		}
		if active {
			report.MembersReactivated++
		} else {
			report.MembersDeactivated++
		}
	}
	return nil
}
