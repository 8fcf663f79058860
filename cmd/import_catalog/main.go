package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"library-circulation/internal/config"
	"library-circulation/internal/logging"
	"library-circulation/library"
)

// manifest lists the catalog entries to register and how many copies each
// should have on the shelf.
type manifest struct {
	Entries []manifestEntry `yaml:"entries"`
}

type manifestEntry struct {
	EAN    string `yaml:"ean"`
	Type   string `yaml:"type"`
	Copies int    `yaml:"copies"`
}

func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Entries) == 0 {
		return nil, errors.New("manifest has no entries")
	}
	return &m, nil
}

// importEntry registers one entry and tops its copies up to the requested
// count, so rerunning the same manifest adds nothing.
func importEntry(ctx context.Context, mgr *library.LibraryManager, e manifestEntry, today library.Date) (added int, err error) {
	mt, err := library.ParseMediaType(e.Type)
	if err != nil {
		return 0, err
	}
	if _, err := mgr.AddCatalogEntry(ctx, e.EAN, mt); err != nil {
		return 0, err
	}
	existing, err := mgr.ItemsOfEntry(ctx, e.EAN)
	if err != nil {
		return 0, err
	}
	for i := len(existing); i < e.Copies; i++ {
		if _, err := mgr.AddItem(ctx, e.EAN, today); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

func main() {
	if err := newImportCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newImportCommand() *cobra.Command {
	var cfgPath, manifestPath string
	cmd := &cobra.Command{
		Use:           "import_catalog",
		Short:         "Register catalog entries and copies from a YAML manifest",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), cfgPath, manifestPath, library.Today())
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", config.ConfigPath, "path to the YAML config file")
	cmd.Flags().StringVar(&manifestPath, "manifest", "catalog.yaml", "path to the catalog manifest")
	return cmd
}

func runImport(ctx context.Context, cfgPath, manifestPath string, today library.Date) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := logging.InitLogger(cfg.LogLevel)

	m, err := loadManifest(manifestPath)
	if err != nil {
		return err
	}

	db, err := library.NewDatabase(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	mgr := library.NewLibraryManager(db, library.WithPolicy(cfg.Policy), library.WithLogger(logger))

	fmt.Printf("Importing %d catalog entries from %s...\n", len(m.Entries), manifestPath)

	successCount, errorCount, copyCount := 0, 0, 0
	for _, e := range m.Entries {
		fmt.Printf("Importing: %s (%s)... ", e.EAN, e.Type)
		added, err := importEntry(ctx, mgr, e, today)
		copyCount += added
		if err != nil {
			fmt.Printf("ERROR - %v\n", err)
			errorCount++
			continue
		}
		fmt.Printf("SUCCESS (%d new copies)\n", added)
		successCount++
	}

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Successfully imported: %d entries, %d copies\n", successCount, copyCount)
	fmt.Printf("Errors: %d\n", errorCount)

	if successCount > 0 {
		fmt.Println("\nCopies per entry:")
		fmt.Printf("%-14s %-6s %s\n", "EAN", "Type", "Copies")
		fmt.Println(strings.Repeat("-", 30))
		for _, e := range m.Entries {
			items, err := mgr.ItemsOfEntry(ctx, e.EAN)
			if err != nil {
				continue
			}
			fmt.Printf("%-14s %-6s %d\n", e.EAN, e.Type, len(items))
		}
	}
	if errorCount > 0 {
		return fmt.Errorf("%d of %d entries failed", errorCount, len(m.Entries))
	}
	return nil
}
