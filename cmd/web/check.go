// cmd/web/check.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hotboxhair/site/internal/component"
	"github.com/hotboxhair/site/internal/form"
)

// runCheck loads everything serve would load, without opening sockets or
// the database, and reports what it found.
func runCheck(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := form.RegisterForms(formDirs(cfg)); err != nil {
		return fmt.Errorf("form definitions: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "config ok: root=%s listen=%s processor=%s\n",
		cfg.Paths.Root, cfg.HTTP.ListenAddr, cfg.Donation.Processor)
	for _, id := range form.FormIDs() {
		fd, _ := form.GetFormDef(id)
		fmt.Fprintf(out, "form %-20s %d fields, %d actions\n", id, len(fd.Fields), len(fd.Actions))
	}
	for _, c := range component.All() {
		fmt.Fprintf(out, "component %-12s %d migrations\n", c.Name(), len(c.Migrations()))
	}
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.DatabaseDSN() == "" {
		return fmt.Errorf("database.dsn is not set")
	}
	db, err := openDB(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "applied %d statements\n", len(component.Migrations())+1)
	return nil
}
