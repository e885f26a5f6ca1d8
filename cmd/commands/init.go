package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codycordova/codychain/pkg/keystore"
	"github.com/codycordova/codychain/pkg/registry"
)

// operatorUsers get keypairs generated at init time
var operatorUsers = []string{"cody", "ezzy"}

// initCommand represents the init command
var initCommand = &cobra.Command{
	Use:   "init",
	Short: "Initialize the data directory, config file and operator keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDirectory := viper.GetString("data-dir")
		if err := os.MkdirAll(dataDirectory, 0700); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		color.Green("✓ Data directory %s", dataDirectory)

		configPath := filepath.Join(dataDirectory, "config.yaml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			if err := viper.WriteConfigAs(configPath); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			color.Green("✓ Config written to %s", configPath)
		} else {
			fmt.Printf("Config already exists at %s\n", configPath)
		}

		keys := keystore.New(filepath.Join(dataDirectory, "keys"))
		for _, name := range operatorUsers {
			if keys.Has(name) {
				fmt.Printf("Keys already exist for %s\n", name)
				continue
			}
			_, publicKey, err := keys.Generate(name)
			if err != nil {
				return fmt.Errorf("generating keys for %s: %w", name, err)
			}
			color.Green("✓ Generated keypair for %s", name)
			fmt.Printf("  public key: %s\n", publicKey)
		}

		fmt.Println()
		fmt.Printf("Dev users: %v\n", registry.DevUserNames)
		fmt.Println("To start the node, run: codychain start")
		return nil
	},
}
