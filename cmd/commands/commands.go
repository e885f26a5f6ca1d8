package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is the node version string
const Version = "0.1.0"

var (
	// Global flags
	dataDir              string
	dbBackend            string
	rpcAddr              string
	logLevel             string
	corsOrigin           string
	permissiveSignatures bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "codychain",
	Short: "Codychain - a proof-of-work ledger with signed transfers",
	Long: `Codychain is a proof-of-work ledger node. It keeps an append-only
hash-linked chain of transfer transactions, admits Ed25519-signed transfers
from registered dev users and serves the chain over an HTTP and WebSocket API.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	RootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "Data directory")
	RootCmd.PersistentFlags().StringVar(&dbBackend, "db", "pebble", "Database backend (leveldb, pebble, bolt, memory)")
	RootCmd.PersistentFlags().StringVar(&rpcAddr, "rpc", "0.0.0.0:8000", "RPC listen address")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	RootCmd.PersistentFlags().StringVar(&corsOrigin, "cors-origin", "*", "Allowed CORS origin")
	RootCmd.PersistentFlags().BoolVar(&permissiveSignatures, "permissive-signatures", false, "Admit signed transfers from senders without a registered key")

	viper.BindPFlag("data-dir", RootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("db", RootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("rpc", RootCmd.PersistentFlags().Lookup("rpc"))
	viper.BindPFlag("log-level", RootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("cors-origin", RootCmd.PersistentFlags().Lookup("cors-origin"))
	viper.BindPFlag("permissive-signatures", RootCmd.PersistentFlags().Lookup("permissive-signatures"))

	// Add commands
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(startCommand)
	RootCmd.AddCommand(initCommand)
	RootCmd.AddCommand(keysCommand)
	RootCmd.AddCommand(validateCommand)
}

// defaultDataDir returns the default data directory
func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.codychain"
	}
	return filepath.Join(homeDir, ".codychain")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	viper.SetDefault("data-dir", defaultDataDir())
	viper.SetDefault("db", "pebble")
	viper.SetDefault("rpc", "0.0.0.0:8000")
	viper.SetDefault("log-level", "info")
	viper.SetDefault("cors-origin", "*")
	viper.SetDefault("permissive-signatures", false)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(viper.GetString("data-dir"))
	viper.AddConfigPath("$HOME/.codychain")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("CODYCHAIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Codychain v" + Version)
	},
}
