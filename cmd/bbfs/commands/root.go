// Package commands implements the bbfs CLI.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "bbfs <rootDir> <mountPoint> [host1:port1 host2:port2 ...]",
	Short: "Mount a striped, single-parity distributed file store",
	Long: `bbfs mounts mountPoint as a host filesystem backed by rootDir, a
local metadata shadow tree, and zero or more storage node endpoints.

File content is striped byte-by-byte in round-robin order across the
endpoints, with one XOR parity fragment per stripe. With zero endpoints,
bbfs falls back to pure pass-through against the shadow tree.

Use "bbfs [command] --help" for more information about a command.`,
	Args:          cobra.MinimumNArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runMount,
}

// Execute adds all child commands to the root command and runs it. Called
// once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: none, use flags/env)")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable go-fuse request-level debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
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
