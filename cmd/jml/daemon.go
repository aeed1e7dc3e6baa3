package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fentz26/jml/internal/audit"
	"github.com/fentz26/jml/internal/config"
	"github.com/fentz26/jml/internal/controlplane"
	"github.com/fentz26/jml/internal/lifecycle"
	"github.com/fentz26/jml/internal/notify"
	"github.com/fentz26/jml/internal/scheduler"
	"github.com/fentz26/jml/internal/store"
	"github.com/spf13/cobra"
)

var (
	listenAddr string
	dbPath     string
	detectFlag bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the JML daemon (jmld)",
	Long: `Starts the JML daemon which serves the HTTP API, resumes deferred
events once their effective date passes and delivers notifications.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	daemonCmd.Flags().BoolVar(&detectFlag, "detect", false, "Run joiner/leaver detection on the scheduler")
}

// loadDaemonConfig resolves the config file and applies command-line overrides.
func loadDaemonConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if cmd.Flags().Changed("detect") {
		cfg.Scheduler.DetectEnabled = detectFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func webhooksFromConfig(cfg *config.Config) []notify.Webhook {
	hooks := make([]notify.Webhook, len(cfg.Notify.Webhooks))
	for i, w := range cfg.Notify.Webhooks {
		hooks[i] = notify.Webhook{URL: w.URL, Topics: w.Topics}
	}
	return hooks
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadDaemonConfig(cmd)
	if err != nil {
		return err
	}
	log.Printf("Starting JML daemon for tenant %s...", cfg.TenantID)

	// Initialize store
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}

	// Initialize components
	dispatcher := notify.NewDispatcher(s, webhooksFromConfig(cfg), cfg.Notify.Timeout)
	engine := lifecycle.NewEngine(s, dispatcher, lifecycle.Options{
		AccessReviewHorizon: cfg.AccessReviewHorizon(),
	})
	pdr := audit.NewPDRWriter(s)

	// Create service and server
	service := controlplane.NewService(s, pdr, engine, dispatcher, cfg.TenantID, cfg.JoinerWindow())
	server := controlplane.NewServer(service, cfg.ListenAddr)

	// Create and start scheduler
	sched := scheduler.New(service, &scheduler.Config{
		GlobalMax:      cfg.Scheduler.Workers,
		Interval:       cfg.Scheduler.Interval,
		DetectEnabled:  cfg.Scheduler.DetectEnabled,
		DetectInterval: cfg.Scheduler.DetectInterval,
	})
	sched.Start()

	log.Printf("Notifications: %d webhook subscribers", len(cfg.Notify.Webhooks))

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErr := make(chan error, 1)

	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("Server error: %v", err)
			sched.Stop()
			dispatcher.Wait()
			s.Close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Workers and webhook deliveries must finish before the database closes.
	sched.Stop()
	dispatcher.Wait()

	log.Println("Closing database connection...")
	if err := s.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}
