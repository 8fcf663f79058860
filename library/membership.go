package library

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Register creates a member with a fresh card number, active from today.
func (lm *LibraryManager) Register(ctx context.Context, name string, role Role, today Date) (*Member, error) {
	name = normalizeName(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	var m *Member
	err := lm.db.withTx(ctx, func(q *queries) error {
		highest, err := q.highestCardNumber(ctx)
		if err != nil {
			return err
		}
		m = &Member{
			CardNumber:       strconv.FormatInt(highest+1, 10),
			Name:             name,
			Role:             role,
			MembershipAnchor: today,
			RegisteredOn:     today,
		}
		m.IsActive = lm.policy.IsActive(m, today)
		return q.insertMember(ctx, m)
	})
	if err != nil {
		return nil, fmt.Errorf("register member: %w", err)
	}
	lm.logger.Info("member registered", "card", m.CardNumber, "role", m.Role)
	return m, nil
}

// RenewMembership restarts the membership window at today.
func (lm *LibraryManager) RenewMembership(ctx context.Context, card string, today Date) (*Member, error) {
	release := lm.locks.acquire(memberKey(card))
	defer release()

	var m *Member
	err := lm.db.withTx(ctx, func(q *queries) error {
		var err error
		if m, err = q.member(ctx, card); err != nil {
			return err
		}
		m.MembershipAnchor = today
		m.IsActive = lm.policy.IsActive(m, today)
		return q.updateMemberStatus(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	lm.logger.Info("membership renewed", "card", card, "anchor", today.String())
	return m, nil
}

// IsActive reports whether the member's window covers today.
func (lm *LibraryManager) IsActive(m *Member, today Date) bool {
	return lm.policy.IsActive(m, today)
}

// ActiveMember is the check a caller performs before any circulation
// operation: resolve the card and refuse lapsed memberships.
func (lm *LibraryManager) ActiveMember(ctx context.Context, card string, today Date) (*Member, error) {
	m, err := lm.db.ResolveMember(ctx, card)
	if err != nil {
		return nil, err
	}
	if !lm.policy.IsActive(m, today) {
		return m, fmt.Errorf("%w: card %s, last renewed %s", ErrMembershipLapsed, card, m.MembershipAnchor)
	}
	return m, nil
}

// ------------------ Credentials ------------------

// SetPassword stores a bcrypt hash of password for the member.
func (lm *LibraryManager) SetPassword(ctx context.Context, card, password string) error {
	if strings.TrimSpace(password) == "" {
		return errors.New("password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return lm.db.withTx(ctx, func(q *queries) error {
		if _, err := q.member(ctx, card); err != nil {
			return err
		}
		return q.setPasswordHash(ctx, card, string(hash))
	})
}

// Authenticate verifies a member's password.
func (lm *LibraryManager) Authenticate(ctx context.Context, card, password string) (*Member, error) {
	m, err := lm.db.ResolveMember(ctx, card)
	if errors.Is(err, ErrUnknownMember) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if m.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return m, nil
}

// AuthenticateStaff verifies a staff member's password. Force operations are
// only offered to callers that passed it.
func (lm *LibraryManager) AuthenticateStaff(ctx context.Context, card, password string) (*Member, error) {
	m, err := lm.Authenticate(ctx, card, password)
	if err != nil {
		return nil, err
	}
	if m.Role != RoleStaff {
		return nil, ErrInvalidCredentials
	}
	return m, nil
}
