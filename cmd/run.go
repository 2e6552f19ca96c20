package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/presence-guard/internal/action"
	"github.com/kozaktomas/presence-guard/internal/config"
	"github.com/kozaktomas/presence-guard/internal/guard"
	"github.com/kozaktomas/presence-guard/internal/presence"
	"github.com/kozaktomas/presence-guard/internal/recognizer"
	"github.com/kozaktomas/presence-guard/internal/web"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the presence monitor",
	Long: `Start the continuous presence monitor. Frames are pulled from the
camera on every tick, faces are matched against the enrolled
identities, and sustained absence or an unknown face locks the
session. Runs until interrupted.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("no-progress", false, "Disable the enrollment loading progress bar")
	runCmd.Flags().Bool("dry-run", false, "Log actions instead of locking the session")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	logger, closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := openAuditBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backends.close()

	// An empty enrollment set means every face would be unknown and the
	// session would lock forever. Refuse to start instead.
	rec, err := loadRecognizer(ctx, cfg, backends.cache, !mustGetBool(cmd, "no-progress"))
	if err != nil {
		if errors.Is(err, recognizer.ErrEnrollmentEmpty) {
			return fmt.Errorf("no enrolled faces in %s; add reference images first (see 'presence-guard enroll')", cfg.Enrollment.Dir)
		}
		return fmt.Errorf("loading enrollment: %w", err)
	}
	logger.Info("enrollment loaded", "identities", rec.EnrolledCount(), "dir", cfg.Enrollment.Dir)

	source, err := openFrameSource(cfg)
	if err != nil {
		return fmt.Errorf("opening camera: %w", err)
	}

	var locker action.Locker = action.NewCommandLocker()
	if mustGetBool(cmd, "dry-run") {
		locker = dryRunLocker{}
		logger.Info("dry run: session will not actually lock")
	}

	var notifier action.Notifier
	if cfg.Actions.WebhookURL != "" {
		notifier = action.NewWebhookNotifier(cfg.Actions.WebhookURL)
	}

	dispatcher := action.NewDispatcher(locker, notifier, map[presence.SecurityState]time.Duration{
		presence.Away:     cfg.Actions.LockCooldown,
		presence.Intruder: cfg.Actions.AlertCooldown,
	})

	var phone guard.PresenceHint
	if cfg.Monitor.PhoneMAC != "" {
		phone = guard.NewBluetoothHint(cfg.Monitor.PhoneMAC)
		logger.Info("bluetooth presence hint enabled", "mac", cfg.Monitor.PhoneMAC)
	}

	loop := guard.New(cfg.Monitor, source, rec, dispatcher, backends.store, phone, logger)

	started := make(chan struct{})
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx, started) }()
	<-started

	var server *web.Server
	serverDone := make(chan error, 1)
	if cfg.Web.Listen != "" {
		server = web.NewServer(cfg.Web.Listen, loop.Tracker(), backends.store)
		logger.Info("status server listening", "addr", cfg.Web.Listen)
		go func() { serverDone <- server.Start() }()
	}

	select {
	case err := <-loopDone:
		stop()
		if server != nil {
			shutdownServer(server)
		}
		return err
	case err := <-serverDone:
		stop()
		<-loopDone
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		if server != nil {
			shutdownServer(server)
		}
		return <-loopDone
	}
}

func shutdownServer(server *web.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = server.Shutdown(ctx)
}

// dryRunLocker satisfies action.Locker without touching the session.
type dryRunLocker struct{}

func (dryRunLocker) Lock(ctx context.Context) error {
	fmt.Println("dry run: would lock the session now")
	return nil
}
