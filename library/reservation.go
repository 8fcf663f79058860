package library

import (
	"context"
	"fmt"
)

// Reserve queues the member for the next available copy of a catalog entry.
func (lm *LibraryManager) Reserve(ctx context.Context, card, ean string, today Date) (*Reservation, error) {
	return lm.reserve(ctx, card, ean, today, false)
}

// ForceReserve is Reserve without the reservation ceiling.
func (lm *LibraryManager) ForceReserve(ctx context.Context, card, ean string, today Date) (*Reservation, error) {
	return lm.reserve(ctx, card, ean, today, true)
}

func (lm *LibraryManager) reserve(ctx context.Context, card, ean string, today Date, force bool) (*Reservation, error) {
	release := lm.locks.acquire(memberKey(card), pairKey(card, ean), entryKey(ean))
	defer release()

	var r *Reservation
	err := lm.db.withTx(ctx, func(q *queries) error {
		if _, err := q.member(ctx, card); err != nil {
			return err
		}
		if _, err := q.entry(ctx, ean); err != nil {
			return err
		}

		// Stored statuses may be stale since the last reconciliation; only
		// reservations still active today count.
		held, err := q.activeReservationsOfMember(ctx, card)
		if err != nil {
			return err
		}
		active, err := lm.refresh(ctx, q, held, today)
		if err != nil {
			return err
		}
		for _, existing := range active {
			if existing.EAN == ean {
				return fmt.Errorf("%w: reservation %d", ErrAlreadyReservedBySelf, existing.ID)
			}
		}
		if !force && len(active) >= lm.policy.MaxReservations {
			return fmt.Errorf("%w: %d active reservations", ErrMaxReservationsReached, len(active))
		}

		r = &Reservation{
			CardNumber:     card,
			EAN:            ean,
			CreationDate:   today,
			ExpirationDate: today.AddDays(lm.policy.ReservationValidity),
			Forced:         force,
		}
		r.Status = lm.policy.ReservationStatus(r, today)
		return q.insertReservation(ctx, r)
	})
	if err != nil {
		if IsSoftLimit(err) {
			lm.logger.Debug("reservation refused", "card", card, "ean", ean, "reason", err)
		}
		return nil, err
	}
	lm.logger.Info("reservation created", "reservation", r.ID, "card", card, "ean", ean,
		"expires", r.ExpirationDate.String(), "forced", force)
	return r, nil
}

// SelectNextForAvailability returns the oldest reservation of the entry that
// is still pending today, or nil when nobody is waiting.
func (lm *LibraryManager) SelectNextForAvailability(ctx context.Context, ean string, today Date) (*Reservation, error) {
	queue, err := lm.ReservationQueue(ctx, ean, today)
	if err != nil {
		return nil, err
	}
	for i := range queue {
		if queue[i].Status == StatusPending {
			return &queue[i], nil
		}
	}
	return nil, nil
}

// ReservationQueue lists the entry's reservations still active today, oldest
// first. Statuses are computed, not read from the store.
func (lm *LibraryManager) ReservationQueue(ctx context.Context, ean string, today Date) ([]Reservation, error) {
	var queue []Reservation
	err := lm.db.read(func(q *queries) error {
		if _, err := q.entry(ctx, ean); err != nil {
			return err
		}
		rs, err := q.activeReservationsOfEntry(ctx, ean)
		if err != nil {
			return err
		}
		for _, r := range rs {
			r.Status = lm.policy.ReservationStatus(&r, today)
			if r.Status.Active() {
				queue = append(queue, r)
			}
		}
		return nil
	})
	return queue, err
}

// ReservationStatus derives the reservation's status for today.
func (lm *LibraryManager) ReservationStatus(r *Reservation, today Date) ReservationStatus {
	return lm.policy.ReservationStatus(r, today)
}

// refreshQueue recomputes and stores the statuses of an entry's queue and
// returns the reservations still active, oldest first.
func (lm *LibraryManager) refreshQueue(ctx context.Context, q *queries, ean string, today Date) ([]*Reservation, error) {
	rs, err := q.activeReservationsOfEntry(ctx, ean)
	if err != nil {
		return nil, err
	}
	return lm.refresh(ctx, q, rs, today)
}

// refresh stores every status change of rs and keeps the active ones, in
// queue order.
func (lm *LibraryManager) refresh(ctx context.Context, q *queries, rs []Reservation, today Date) ([]*Reservation, error) {
	active := make([]*Reservation, 0, len(rs))
	for i := range rs {
		r := &rs[i]
		status := lm.policy.ReservationStatus(r, today)
		if status != r.Status {
			r.Status = status
			if err := q.updateReservation(ctx, r); err != nil {
				return nil, err
			}
		}
		if status.Active() {
			active = append(active, r)
		}
	}
	return active, nil
}

// nextPending picks the first pending reservation of a queue ordered by
// creation date then insertion.
func nextPending(queue []*Reservation) *Reservation {
	for _, r := range queue {
		if r.Status == StatusPending {
			return r
		}
	}
	return nil
}
