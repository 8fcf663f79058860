package library

import "fmt"

// Role decides the borrowing period granted to a member.
type Role string

const (
	RoleStandard Role = "standard"
	RoleStaff    Role = "staff"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r == RoleStandard || r == RoleStaff }

// MediaType is the closed set of document kinds a catalog entry can be.
type MediaType string

const (
	MediaBook  MediaType = "book"
	MediaFilm  MediaType = "film"
	MediaMusic MediaType = "music"
)

var classificationCodes = map[MediaType]string{
	MediaBook:  "LIV",
	MediaFilm:  "DVD",
	MediaMusic: "CD",
}

// ParseMediaType maps a user-supplied name onto the closed set.
func ParseMediaType(s string) (MediaType, error) {
	mt := MediaType(s)
	if _, ok := classificationCodes[mt]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMediaType, s)
	}
	return mt, nil
}

// Classification returns the shelf code prefix of the media type.
func (m MediaType) Classification() string { return classificationCodes[m] }

// ReservationStatus is the persisted result of Policy.ReservationStatus.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusAvailable ReservationStatus = "available"
	StatusSatisfied ReservationStatus = "satisfied"
	StatusExpired   ReservationStatus = "expired"
	StatusUnclaimed ReservationStatus = "unclaimed"
)

// Active reports whether the reservation still counts against the member.
func (s ReservationStatus) Active() bool {
	return s == StatusPending || s == StatusAvailable
}

// Terminal reports whether no further transition is possible.
func (s ReservationStatus) Terminal() bool { return !s.Active() }

// Member is a registered library user, identified by card number.
type Member struct {
	CardNumber       string `db:"card_number" json:"card_number"`
	Name             string `db:"name" json:"name"`
	Role             Role   `db:"role" json:"role"`
	MembershipAnchor Date   `db:"membership_anchor" json:"membership_anchor"`
	IsActive         bool   `db:"is_active" json:"is_active"`
	RegisteredOn     Date   `db:"registered_on" json:"registered_on"`
	PasswordHash     string `db:"password_hash" json:"-"` // Don't serialize password hash
}

// CatalogEntry is the bibliographic record a copy belongs to. The engine only
// knows its key and media type.
type CatalogEntry struct {
	EAN       string    `db:"ean" json:"ean"`
	MediaType MediaType `db:"media_type" json:"media_type"`
}

// Item is one physical, barcoded copy of a catalog entry.
type Item struct {
	Barcode string `db:"barcode" json:"barcode"`
	EAN     string `db:"ean" json:"ean"`
	AddedOn Date   `db:"added_on" json:"added_on"`
}

// Loan links a member to an item. A loan with no return date is open.
type Loan struct {
	ID           int64  `db:"id" json:"id"`
	CardNumber   string `db:"card_number" json:"card_number"`
	Barcode      string `db:"barcode" json:"barcode"`
	BorrowDate   Date   `db:"borrow_date" json:"borrow_date"`
	DueDate      Date   `db:"due_date" json:"due_date"`
	ReturnDate   *Date  `db:"return_date" json:"return_date,omitempty"`
	RenewalCount int    `db:"renewal_count" json:"renewal_count"`
	Overdue      bool   `db:"overdue" json:"overdue"`
	Forced       bool   `db:"forced" json:"forced"`
}

// Open reports whether the loan has not been returned.
func (l *Loan) Open() bool { return l.ReturnDate == nil }

// Reservation is a member's claim on the next available copy of an entry.
type Reservation struct {
	ID               int64             `db:"id" json:"id"`
	CardNumber       string            `db:"card_number" json:"card_number"`
	EAN              string            `db:"ean" json:"ean"`
	CreationDate     Date              `db:"creation_date" json:"creation_date"`
	ExpirationDate   Date              `db:"expiration_date" json:"expiration_date"`
	AvailabilityDate *Date             `db:"availability_date" json:"availability_date,omitempty"`
	PickupDate       *Date             `db:"pickup_date" json:"pickup_date,omitempty"`
	Status           ReservationStatus `db:"status" json:"status"`
	Forced           bool              `db:"forced" json:"forced"`
}
