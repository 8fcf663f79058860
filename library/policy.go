package library

// Policy holds the periods (in days) and ceilings of the library rules.
type Policy struct {
	MembershipPeriod     int `yaml:"membershipPeriod"`
	StandardBorrowPeriod int `yaml:"standardBorrowPeriod"`
	StaffBorrowPeriod    int `yaml:"staffBorrowPeriod"`
	RenewalWindow        int `yaml:"renewalWindow"`
	ReservationValidity  int `yaml:"reservationValidity"`
	PickupWindow         int `yaml:"pickupWindow"`
	MaxLoans             int `yaml:"maxLoans"`
	MaxRenewals          int `yaml:"maxRenewals"`
	MaxReservations      int `yaml:"maxReservations"`
}

// DefaultPolicy returns the rules of the library.
func DefaultPolicy() Policy {
	return Policy{
		MembershipPeriod:     365,
		StandardBorrowPeriod: 28,
		StaffBorrowPeriod:    60,
		RenewalWindow:        28,
		ReservationValidity:  180,
		PickupWindow:         14,
		MaxLoans:             30,
		MaxRenewals:          1,
		MaxReservations:      5,
	}
}

// BorrowPeriod is fixed by the member's role at borrow time.
func (p Policy) BorrowPeriod(role Role) int {
	if role == RoleStaff {
		return p.StaffBorrowPeriod
	}
	return p.StandardBorrowPeriod
}

// IsActive reports whether the membership window still covers today.
func (p Policy) IsActive(m *Member, today Date) bool {
	return today.DaysSince(m.MembershipAnchor) <= p.MembershipPeriod
}

// ReservationStatus derives a reservation's status from its dates alone.
// It has no side effects and may be called any number of times.
func (p Policy) ReservationStatus(r *Reservation, today Date) ReservationStatus {
	switch {
	case r.PickupDate != nil:
		return StatusSatisfied
	case r.AvailabilityDate != nil:
		if today.DaysSince(*r.AvailabilityDate) > p.PickupWindow {
			return StatusUnclaimed
		}
		return StatusAvailable
	default:
		if today.After(r.ExpirationDate) {
			return StatusExpired
		}
		return StatusPending
	}
}

// IsOverdue reports whether an open loan's due date has passed.
func IsOverdue(l *Loan, today Date) bool {
	return l.ReturnDate == nil && today.After(l.DueDate)
}
