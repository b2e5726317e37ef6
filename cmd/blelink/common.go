package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/devicefactory"
	"github.com/srg/blelink/internal/session"
	"github.com/srg/blelink/pkg/config"
)

// commandEnv is what every subcommand needs to talk to a peripheral.
type commandEnv struct {
	cfg     *config.Config
	logger  *logrus.Logger
	session *session.Session
}

// newCommandEnv loads config, builds the logger and opens the BLE stack.
func newCommandEnv(cmd *cobra.Command) (*commandEnv, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := configureLogger(logLevelFlag, verboseFlag, cfg)
	if err != nil {
		return nil, err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	stack, err := devicefactory.StackFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open BLE stack: %w", err)
	}

	sess := session.New(stack, logger, &session.Options{
		ScanDuration:   cfg.Scan.Duration,
		ConnectTimeout: cfg.ConnectTimeout,
		InboxCapacity:  cfg.InboxCapacity,
	})
	return &commandEnv{cfg: cfg, logger: logger, session: sess}, nil
}

// characteristic resolves --service/--char against the config defaults.
func (e *commandEnv) characteristic(service, char string) (string, string, error) {
	if service == "" {
		service = e.cfg.ServiceUUID
	}
	if char == "" {
		char = e.cfg.CharacteristicUUID
	}
	uuids, err := device.ValidateUUID(service, char)
	if err != nil {
		return "", "", fmt.Errorf("invalid service/characteristic UUID: %w", err)
	}
	return uuids[0], uuids[1], nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context, logger *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("Received interrupt signal, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
