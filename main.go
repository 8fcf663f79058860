package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-circulation/internal/config"
	"library-circulation/internal/logging"
	"library-circulation/library"
)

// app carries what every command needs once the root pre-run has opened the
// store.
type app struct {
	cfgPath   string
	todayFlag string

	cfg    config.FileConfig
	logger *slog.Logger
	db     *library.Database
	mgr    *library.LibraryManager
	today  library.Date
}

// skipReconcile marks commands that must not trigger the daily pass first.
const skipReconcile = "skip-reconcile"

func main() {
	a := &app{}
	if err := a.execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if library.IsSoftLimit(err) {
			fmt.Fprintln(os.Stderr, "A staff member may override this limit with --force.")
		}
		os.Exit(1)
	}
}

// execute runs one command line and closes the store whether or not the
// command failed.
func (a *app) execute(ctx context.Context, args []string) error {
	root := a.rootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.close())
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "circ",
		Short:         "Lending and reservation desk of the media library",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context(), cmd.Annotations[skipReconcile] == "")
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", config.ConfigPath, "path to the YAML config file")
	root.PersistentFlags().StringVar(&a.todayFlag, "today", "", "act as if today were this date (YYYY-MM-DD)")

	root.AddCommand(
		a.reconcileCommand(),
		a.memberCommand(),
		a.catalogCommand(),
		a.copyCommand(),
		a.borrowCommand(),
		a.renewCommand(),
		a.returnCommand(),
		a.reserveCommand(),
		a.accountCommand(),
		a.statsCommand(),
	)
	return root
}

// open loads the configuration, opens the store and, unless told otherwise,
// brings date-derived state up to date before the command runs.
func (a *app) open(ctx context.Context, reconcile bool) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.InitLogger(cfg.LogLevel)

	a.today = library.Today()
	if a.todayFlag != "" {
		if a.today, err = library.ParseDate(a.todayFlag); err != nil {
			return err
		}
	}

	a.db, err = library.NewDatabase(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.mgr = library.NewLibraryManager(a.db,
		library.WithPolicy(cfg.Policy),
		library.WithLogger(a.logger),
	)

	if reconcile {
		if _, err := a.mgr.EnsureReconciled(ctx, a.today); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// readPassword securely reads a password with masking
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println() // Add newline after password input
	return strings.TrimSpace(string(bytePassword)), nil
}

// authenticateStaff prompts for and verifies the credentials of the staff
// member authorizing a force operation.
func (a *app) authenticateStaff(ctx context.Context, card string) (*library.Member, error) {
	if card == "" {
		return nil, errors.New("--force requires --staff <card number>")
	}
	password, err := readPassword(fmt.Sprintf("Password for staff card %s: ", card))
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	staff, err := a.mgr.AuthenticateStaff(ctx, card, password)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return staff, nil
}

func truncateString(s string, maxLength int) string {
	r := []rune(s)
	if len(r) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(r[:maxLength])
	}
	return string(r[:maxLength-3]) + "..."
}
