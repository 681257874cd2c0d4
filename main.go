package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "prevd",
	Short: "Classify survey responses into PRE_VD / VSD / NSD / ND",
	Long: `prevd classifies Pre-VD survey responses with Gemini, sampling the model
several times per row and taking the majority label.

Settings come from config.yaml (or --config), overridden by GEMINI_API_KEY,
GEMINI_MODEL, GEMINI_API_BASE, MODEL_BACKEND, KAFKA_BROKERS, DATABASE_URL,
HTTP_ADDR, LOG_LEVEL and MAX_SYNC_ROWS.`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config (default: config.yaml if present)")
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(classifyRowCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(overrideCmd)
	rootCmd.AddCommand(rubricCmd)
	rootCmd.Version = version
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "Received shutdown signal")
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
