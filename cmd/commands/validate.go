package commands

import (
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codycordova/codychain/pkg/core"
	"github.com/codycordova/codychain/pkg/db"
	"github.com/codycordova/codychain/pkg/store"
)

// validateCommand represents the validate command
var validateCommand = &cobra.Command{
	Use:   "validate",
	Short: "Check the integrity of the stored chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDirectory := viper.GetString("data-dir")
		backend := db.DBType(viper.GetString("db"))

		database, err := db.NewDatabase(backend)
		if err != nil {
			return err
		}
		if err := database.Open(databasePath(dataDirectory, backend)); err != nil {
			return fmt.Errorf("opening %s database: %w", backend, err)
		}
		defer database.Close()

		state, ok, err := store.New(database, slog.Default()).Load()
		if err != nil {
			return fmt.Errorf("loading snapshot: %w", err)
		}
		if !ok || len(state.Chain) == 0 {
			return fmt.Errorf("no usable chain snapshot under %s", dataDirectory)
		}

		if err := core.CheckChain(state.Chain); err != nil {
			color.Red("✗ %v", err)
			return err
		}

		color.Green("✓ Chain valid (%d blocks, %d pending transactions)",
			len(state.Chain), len(state.PendingTransactions))
		return nil
	},
}
