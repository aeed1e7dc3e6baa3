package main

import (
	"fmt"
	"os"

	"github.com/fentz26/jml/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jml",
	Short: "JML - identity lifecycle workflow engine",
	Long: `jml automates Joiner, Mover and Leaver workflows: it turns HR lifecycle
events into ordered task plans (provisioning, revocation, notifications,
ownership transfer, access reviews) and runs them against the SaaS directory.`,
	SilenceUsage: true,
}

var (
	apiAddr    string
	configPath string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7480", "API server address")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to jml.yaml")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(eventCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(tuiCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
