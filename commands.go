package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"library-circulation/library"
)

func (a *app) reconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "reconcile",
		Short:       "Recompute overdue flags, reservation statuses and memberships",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipReconcile: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.mgr.Reconcile(cmd.Context(), a.today)
			if err != nil {
				return err
			}
			fmt.Printf("Reconciliation %s for %s\n", report.ID, report.RunDate)
			fmt.Printf("  loans now overdue:       %d\n", report.LoansOverdue)
			fmt.Printf("  loans no longer overdue: %d\n", report.LoansCleared)
			fmt.Printf("  reservations expired:    %d\n", report.ReservationsExpired)
			fmt.Printf("  reservations unclaimed:  %d\n", report.ReservationsUnclaimed)
			fmt.Printf("  members deactivated:     %d\n", report.MembersDeactivated)
			fmt.Printf("  members reactivated:     %d\n", report.MembersReactivated)
			return nil
		},
	}
}

// ------------------ Members ------------------

func (a *app) memberCommand() *cobra.Command {
	member := &cobra.Command{Use: "member", Short: "Register and maintain members"}

	var staff bool
	register := &cobra.Command{
		Use:   "register <name>...",
		Short: "Register a new member",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := library.RoleStandard
			if staff {
				role = library.RoleStaff
			}
			m, err := a.mgr.Register(cmd.Context(), strings.Join(args, " "), role, a.today)
			if err != nil {
				return err
			}
			fmt.Printf("Registered %s (%s), card number %s\n", m.Name, m.Role, m.CardNumber)
			return nil
		},
	}
	register.Flags().BoolVar(&staff, "staff", false, "register a staff member")

	renew := &cobra.Command{
		Use:   "renew <card>",
		Short: "Renew a membership from today",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := library.ValidateCardNumber(args[0]); err != nil {
				return err
			}
			m, err := a.mgr.RenewMembership(cmd.Context(), args[0], a.today)
			if err != nil {
				return err
			}
			fmt.Printf("Membership of %s renewed until %s\n", m.Name,
				m.MembershipAnchor.AddDays(a.mgr.Policy().MembershipPeriod))
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <card>",
		Short: "Show a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := library.ValidateCardNumber(args[0]); err != nil {
				return err
			}
			m, err := a.mgr.ResolveMember(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			passwordStatus := "No"
			if m.PasswordHash != "" {
				passwordStatus = "Yes"
			}
			status := "active"
			if !a.mgr.IsActive(m, a.today) {
				status = "lapsed"
			}
			fmt.Printf("%-12s %-30s %-10s %-10s %-12s %s\n", "Card", "Name", "Role", "Status", "Renewed", "Password Set")
			fmt.Println(strings.Repeat("-", 90))
			fmt.Printf("%-12s %-30s %-10s %-10s %-12s %s\n", m.CardNumber, truncateString(m.Name, 30),
				m.Role, status, m.MembershipAnchor, passwordStatus)
			return nil
		},
	}

	password := &cobra.Command{
		Use:   "password <card>",
		Short: "Set a member's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			first, err := readPassword("New password: ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			second, err := readPassword("Confirm password: ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			if first != second {
				return fmt.Errorf("passwords do not match")
			}
			if err := a.mgr.SetPassword(cmd.Context(), args[0], first); err != nil {
				return err
			}
			fmt.Println("Password updated")
			return nil
		},
	}

	member.AddCommand(register, renew, show, password)
	return member
}

// ------------------ Catalog ------------------

func (a *app) catalogCommand() *cobra.Command {
	catalog := &cobra.Command{Use: "catalog", Short: "Maintain catalog entries"}

	var mediaType string
	add := &cobra.Command{
		Use:   "add <ean>",
		Short: "Register a catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mt, err := library.ParseMediaType(mediaType)
			if err != nil {
				return err
			}
			e, err := a.mgr.AddCatalogEntry(cmd.Context(), args[0], mt)
			if err != nil {
				return err
			}
			fmt.Printf("Catalog entry %s (%s, %s)\n", e.EAN, e.MediaType, e.MediaType.Classification())
			return nil
		},
	}
	add.Flags().StringVar(&mediaType, "type", string(library.MediaBook), "media type: book, film or music")

	catalog.AddCommand(add)
	return catalog
}

func (a *app) copyCommand() *cobra.Command {
	copies := &cobra.Command{Use: "copy", Short: "Add and withdraw copies"}

	var count int
	add := &cobra.Command{
		Use:   "add <ean>",
		Short: "Add copies of a catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for range count {
				it, err := a.mgr.AddItem(cmd.Context(), args[0], a.today)
				if err != nil {
					return err
				}
				fmt.Printf("Copy %s of %s\n", it.Barcode, it.EAN)
			}
			return nil
		},
	}
	add.Flags().IntVar(&count, "count", 1, "number of copies")

	remove := &cobra.Command{
		Use:   "remove <barcode>",
		Short: "Withdraw a copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := library.ValidateBarcode(args[0]); err != nil {
				return err
			}
			if err := a.mgr.RemoveItem(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Copy %s withdrawn\n", args[0])
			return nil
		},
	}

	copies.AddCommand(add, remove)
	return copies
}

// ------------------ Circulation ------------------

type forceFlags struct {
	force bool
	staff string
}

func (f *forceFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.force, "force", false, "override soft limits (staff only)")
	cmd.Flags().StringVar(&f.staff, "staff", "", "card number of the staff member authorizing --force")
}

func (a *app) borrowCommand() *cobra.Command {
	var ff forceFlags
	cmd := &cobra.Command{
		Use:   "borrow <card> <barcode>",
		Short: "Lend a copy to a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			card, barcode := args[0], args[1]
			if err := library.ValidateBarcode(barcode); err != nil {
				return err
			}
			m, err := a.mgr.ActiveMember(ctx, card, a.today)
			if err != nil {
				return err
			}

			borrow := a.mgr.Borrow
			if ff.force {
				if _, err := a.authenticateStaff(ctx, ff.staff); err != nil {
					return err
				}
				borrow = a.mgr.ForceBorrow
			}
			receipt, err := borrow(ctx, card, barcode, a.today)
			if err != nil {
				return err
			}

			if notice := receipt.Notice(); notice != nil {
				fmt.Printf("Note: %v\n", notice)
			}
			fmt.Printf("Copy %s lent to %s until %s (loan %d)\n", barcode, m.Name, receipt.Loan.DueDate, receipt.Loan.ID)
			if receipt.Satisfied != nil {
				fmt.Printf("Reservation %d picked up\n", receipt.Satisfied.ID)
			}
			return nil
		},
	}
	ff.register(cmd)
	return cmd
}

func (a *app) renewCommand() *cobra.Command {
	var ff forceFlags
	cmd := &cobra.Command{
		Use:   "renew <barcode>",
		Short: "Renew the open loan of a copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			barcode := args[0]
			if err := library.ValidateBarcode(barcode); err != nil {
				return err
			}
			current, err := a.mgr.OpenLoan(ctx, barcode)
			if err != nil {
				return err
			}
			if _, err := a.mgr.ActiveMember(ctx, current.CardNumber, a.today); err != nil {
				return err
			}

			renew := a.mgr.RenewItem
			if ff.force {
				if _, err := a.authenticateStaff(ctx, ff.staff); err != nil {
					return err
				}
				renew = a.mgr.ForceRenewItem
			}
			l, err := renew(ctx, barcode, a.today)
			if err != nil {
				return err
			}
			fmt.Printf("Loan %d renewed until %s (%d renewals)\n", l.ID, l.DueDate, l.RenewalCount)
			return nil
		},
	}
	ff.register(cmd)
	return cmd
}

func (a *app) returnCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "return <barcode>",
		Short: "Return a copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := library.ValidateBarcode(args[0]); err != nil {
				return err
			}
			receipt, err := a.mgr.ReturnItem(cmd.Context(), args[0], a.today)
			if err != nil {
				return err
			}
			fmt.Printf("Copy %s returned by card %s\n", args[0], receipt.Loan.CardNumber)
			if r := receipt.Available; r != nil {
				fmt.Printf("Hold for card %s (reservation %d) until %s\n", r.CardNumber, r.ID,
					r.AvailabilityDate.AddDays(a.mgr.Policy().PickupWindow))
			} else {
				fmt.Println("Copy can go back on the shelf")
			}
			return nil
		},
	}
}

func (a *app) reserveCommand() *cobra.Command {
	var ff forceFlags
	cmd := &cobra.Command{
		Use:   "reserve <card> <ean>",
		Short: "Reserve the next available copy of a catalog entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			card, ean := args[0], args[1]
			if err := library.ValidateEAN(ean); err != nil {
				return err
			}
			if _, err := a.mgr.ActiveMember(ctx, card, a.today); err != nil {
				return err
			}

			reserve := a.mgr.Reserve
			if ff.force {
				if _, err := a.authenticateStaff(ctx, ff.staff); err != nil {
					return err
				}
				reserve = a.mgr.ForceReserve
			}
			r, err := reserve(ctx, card, ean, a.today)
			if err != nil {
				return err
			}
			fmt.Printf("Reservation %d on %s valid until %s\n", r.ID, ean, r.ExpirationDate)

			queue, err := a.mgr.ReservationQueue(ctx, ean, a.today)
			if err == nil {
				for i, q := range queue {
					if q.ID == r.ID {
						fmt.Printf("Position in queue: %d\n", i+1)
						break
					}
				}
			}
			return nil
		},
	}
	ff.register(cmd)
	return cmd
}

// ------------------ Reports ------------------

func (a *app) accountCommand() *cobra.Command {
	var history bool
	cmd := &cobra.Command{
		Use:   "account <card>",
		Short: "Show a member's loans and reservations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			acc, err := a.mgr.Account(ctx, args[0], a.today)
			if err != nil {
				return err
			}
			status := "active"
			if !acc.Active {
				status = "lapsed"
			}
			fmt.Printf("%s, card %s (%s, membership %s)\n", acc.Member.Name, acc.Member.CardNumber, acc.Member.Role, status)

			loans := acc.Loans
			if history {
				if loans, err = a.mgr.LoansOfMember(ctx, args[0], true); err != nil {
					return err
				}
			}
			fmt.Printf("\n%-6s %-14s %-12s %-12s %-12s %-9s %s\n", "Loan", "Barcode", "Borrowed", "Due", "Returned", "Renewals", "Overdue")
			fmt.Println(strings.Repeat("-", 80))
			for _, l := range loans {
				overdue := ""
				if library.IsOverdue(&l, a.today) {
					overdue = "yes"
				}
				returned := "-"
				if l.ReturnDate != nil {
					returned = l.ReturnDate.String()
				}
				fmt.Printf("%-6d %-14s %-12s %-12s %-12s %-9d %s\n", l.ID, l.Barcode, l.BorrowDate, l.DueDate, returned, l.RenewalCount, overdue)
			}
			fmt.Printf("%d open loans, %d overdue\n", len(acc.Loans), acc.OverdueCount)

			fmt.Printf("\n%-6s %-14s %-12s %-12s %s\n", "Res.", "EAN", "Created", "Expires", "Status")
			fmt.Println(strings.Repeat("-", 60))
			for _, r := range acc.Reservations {
				fmt.Printf("%-6d %-14s %-12s %-12s %s\n", r.ID, r.EAN, r.CreationDate, r.ExpirationDate, r.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&history, "history", false, "include returned loans")
	return cmd
}

func (a *app) statsCommand() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show collection and circulation figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if year == 0 {
				year = a.today.Year()
			}
			s, err := a.mgr.Statistics(cmd.Context(), year, a.today)
			if err != nil {
				return err
			}
			rows := []struct {
				label string
				value int
			}{
				{"Active members", s.ActiveMembers},
				{"Members registered in " + strconv.Itoa(year), s.NewMembers},
				{"Copies", s.Copies},
				{"Catalog entries with copies", s.EntriesWithCopies},
				{"Loans in " + strconv.Itoa(year), s.LoansInYear},
				{"Open loans", s.OpenLoans},
				{"Overdue loans", s.OverdueLoans},
				{"Active reservations", s.ActiveReservations},
			}
			for _, r := range rows {
				fmt.Printf("%-32s %d\n", r.label, r.value)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year of the figures (defaults to the current one)")
	return cmd
}
