// Command migrate applies the pending schema migrations under
// internal/store/postgres/migrations to DATABASE_URL.
package main

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pautaradar/newsradar/infrastructure/config"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

func main() {
	var dir string

	root := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending news-radar schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			db, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("open postgres: %w", err)
			}
			defer db.Close()

			if err := postgres.Migrate(db, dir); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
	root.Flags().StringVar(&dir, "dir", postgres.MigrationsDir, "directory of .sql migration files")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
