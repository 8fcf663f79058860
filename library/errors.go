package library

import "errors"

var (
	// ErrAlreadyBorrowedBySelf is returned when the member already holds the copy.
	ErrAlreadyBorrowedBySelf = errors.New("item already borrowed by this member")

	// ErrAlreadyBorrowedByOther marks a borrow that closed another member's
	// open loan on the copy. It is reported through BorrowReceipt.Notice, since
	// the reassignment is committed.
	ErrAlreadyBorrowedByOther = errors.New("item was borrowed by another member")

	ErrReturnedToday          = errors.New("item returned today by this member")
	ErrMaxLoansReached        = errors.New("maximal number of loans reached")
	ErrSameDayRenewal         = errors.New("loan started today, renewal impossible")
	ErrMaxRenewalsReached     = errors.New("maximal number of renewals reached")
	ErrAlreadyReservedBySelf  = errors.New("active reservation already exists for this member")
	ErrMaxReservationsReached = errors.New("maximal number of reservations reached")

	ErrNotOpen             = errors.New("loan is not open")
	ErrUnknownItem         = errors.New("unknown item barcode")
	ErrUnknownCatalogEntry = errors.New("unknown catalog entry")

	// ErrDataIntegrity means an identifier resolved to more than one record.
	ErrDataIntegrity = errors.New("identifier resolves to several records")

	ErrUnknownMember      = errors.New("unknown card number")
	ErrMembershipLapsed   = errors.New("membership is not active")
	ErrUnknownLoan        = errors.New("unknown loan")
	ErrItemOnLoan         = errors.New("item has an open loan")
	ErrUnknownMediaType   = errors.New("unknown media type")
	ErrUnknownRole        = errors.New("unknown member role")
	ErrInvalidCardNumber  = errors.New("invalid card number")
	ErrInvalidBarcode     = errors.New("invalid item barcode")
	ErrInvalidEAN         = errors.New("invalid EAN")
	ErrInvalidCredentials = errors.New("invalid card number or password")
	ErrEmptyName          = errors.New("member name required")
)

var softLimitErrors = []error{
	ErrMaxLoansReached,
	ErrMaxRenewalsReached,
	ErrMaxReservationsReached,
	ErrReturnedToday,
}

var hardErrors = []error{
	ErrUnknownItem,
	ErrUnknownCatalogEntry,
	ErrDataIntegrity,
	ErrNotOpen,
}

// IsSoftLimit reports whether err is an advisory refusal that a privileged
// caller may override with the matching force operation.
func IsSoftLimit(err error) bool {
	for _, target := range softLimitErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsHard reports whether err aborted the operation for a reason no force
// operation can override.
func IsHard(err error) bool {
	for _, target := range hardErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
