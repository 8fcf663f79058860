package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBorrowPeriod(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 28, p.BorrowPeriod(RoleStandard))
	assert.Equal(t, 60, p.BorrowPeriod(RoleStaff))
}

func TestIsOverdue(t *testing.T) {
	returned := day0.AddDays(40)
	tests := []struct {
		name  string
		loan  Loan
		today Date
		want  bool
	}{
		{"before due", Loan{DueDate: day0.AddDays(28)}, day0.AddDays(27), false},
		{"on due date", Loan{DueDate: day0.AddDays(28)}, day0.AddDays(28), false},
		{"after due", Loan{DueDate: day0.AddDays(28)}, day0.AddDays(29), true},
		{"returned late", Loan{DueDate: day0.AddDays(28), ReturnDate: &returned}, day0.AddDays(50), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsOverdue(&tc.loan, tc.today))
		})
	}
}

func TestPolicyIsActive(t *testing.T) {
	p := DefaultPolicy()
	m := &Member{MembershipAnchor: MustParseDate("2023-03-01")}
	// 2024 is a leap year: 366 days separate the two first-of-March.
	assert.True(t, p.IsActive(m, MustParseDate("2024-02-29")))
	assert.False(t, p.IsActive(m, MustParseDate("2024-03-01")))
}
