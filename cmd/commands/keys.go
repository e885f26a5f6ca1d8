package commands

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codycordova/codychain/pkg/keystore"
)

// keysCommand groups the key management subcommands
var keysCommand = &cobra.Command{
	Use:   "keys",
	Short: "Manage signing keys",
}

func init() {
	keysCommand.AddCommand(keysGenerateCommand)
	keysCommand.AddCommand(keysListCommand)
}

// keysGenerateCommand represents the keys generate command
var keysGenerateCommand = &cobra.Command{
	Use:   "generate <name>",
	Short: "Generate a keypair for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		keys := openKeystore()

		_, publicKey, err := keys.Generate(name)
		if err != nil {
			return err
		}

		color.Green("✓ Generated keypair for %s", name)
		fmt.Printf("  public key: %s\n", publicKey)
		fmt.Printf("  key files in %s\n", keys.Dir())
		fmt.Println("Never share the private key file.")
		return nil
	},
}

// keysListCommand represents the keys list command
var keysListCommand = &cobra.Command{
	Use:   "list",
	Short: "List stored keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys := openKeystore()

		names, err := keys.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No keys found.")
			return nil
		}

		for _, name := range names {
			publicKey, err := keys.LoadPublicKey(name)
			if err != nil {
				color.Red("%s (unreadable: %v)", name, err)
				continue
			}
			fmt.Printf("%s  %s\n", name, publicKey)
		}
		return nil
	},
}

// openKeystore opens the keystore under the configured data directory
func openKeystore() *keystore.KeyStore {
	return keystore.New(filepath.Join(viper.GetString("data-dir"), "keys"))
}
