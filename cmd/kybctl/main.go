// kybctl runs the KYB workflow from a terminal and inspects saved records.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	kybDir  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "kybctl",
	Short: "Know Your Business conversation toolkit",
	Long:  `Run the guided KYB interview locally and inspect the JSON records it produces.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&kybDir, "kyb-dir", envOr("KYB_DIR", "./data/kyb"), "directory holding KYB records")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log workflow activity to stderr")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(showCmd)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
