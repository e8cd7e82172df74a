// Package commands implements the CLI commands for dce2watch.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowguard/dce2smb/internal/alerts"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile        string
	describeAlerts bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "dce2watch",
	Short: "Watch SMB1 traffic for DCE/RPC-over-SMB reassembly abuse",
	Long: `dce2watch reassembles SMB1 TRANSACTION/TRANSACTION2/NT_TRANSACT
fragments the way a Windows or Samba server would, and raises alerts when a
conversation's fragment usage looks like the DCE2 evasion family of attacks.

Use "dce2watch [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if describeAlerts {
			return printAlertSchema(cmd.OutOrStdout())
		}
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dce2watch/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&describeAlerts, "describe-alerts", false, "print the alert JSON schema and exit")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(reportCmd)
}

// printAlertSchema writes the alert wire-format JSON schema to w, for a
// SIEM integrator who wants to validate the feed without reading Go source.
func printAlertSchema(w io.Writer) error {
	data, err := json.MarshalIndent(alerts.Schema(), "", "  ")
	if err != nil {
		return fmt.Errorf("commands: marshal alert schema: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
