package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/srg/blelink/internal/groutine"
	"github.com/srg/blelink/internal/ptyio"
)

// bridgeCmd represents the bridge command
var bridgeCmd = &cobra.Command{
	Use:   "bridge <peripheral-id>",
	Short: "Create a PTY bridge to a BLE peripheral",
	Long: `Creates a pseudoterminal bridged to a BLE peripheral, so applications that
expect a serial port (screen, minicom, pyserial) can talk to it.

Bytes written to the PTY are sent to the serial characteristic; notifications
from the peripheral are written back to the PTY.

Example:
  blelink bridge AA:BB:CC:DD:EE:01
  blelink bridge --symlink /tmp/hc08 AA:BB:CC:DD:EE:01`,
	Args: cobra.ExactArgs(1),
	RunE: runBridge,
}

var (
	bridgeServiceUUID string
	bridgeCharUUID    string
	bridgeSymlink     string
)

func init() {
	bridgeCmd.Flags().StringVar(&bridgeServiceUUID, "service", "", "Service UUID (default from config, ffe0)")
	bridgeCmd.Flags().StringVar(&bridgeCharUUID, "char", "", "Characteristic UUID (default from config, ffe1)")
	bridgeCmd.Flags().StringVar(&bridgeSymlink, "symlink", "", "Create a symlink to the PTY device (e.g., /tmp/ble-device)")
}

func runBridge(cmd *cobra.Command, args []string) error {
	env, err := newCommandEnv(cmd)
	if err != nil {
		return err
	}
	logger := env.logger

	svc, chr, err := env.characteristic(bridgeServiceUUID, bridgeCharUUID)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	conn, err := env.session.Connect(ctx, args[0])
	if err != nil {
		return err
	}
	defer func() { _ = env.session.Close() }()

	if _, err := env.session.Subscribe(svc, chr); err != nil {
		return err
	}

	ptyErr := make(chan error, 1)
	p, err := ptyio.Open(&ptyio.Options{
		Logger: logger,
		OnRead: func(data []byte) {
			if err := env.session.WriteBytes(svc, chr, data); err != nil {
				logger.WithError(err).Warn("Failed to forward PTY bytes to peripheral")
			}
		},
		OnError: func(err error) { ptyErr <- err },
	})
	if err != nil {
		return err
	}
	defer p.Close()

	if bridgeSymlink != "" {
		if err := os.Symlink(p.TTYName(), bridgeSymlink); err != nil {
			return fmt.Errorf("failed to create symlink %s: %w", bridgeSymlink, err)
		}
		defer os.Remove(bridgeSymlink)
	}

	inbox := env.session.Inbox()
	groutine.Go(ctx, "bridge-ble-to-pty", func(ctx context.Context) {
		for {
			data, err := inbox.Next(ctx)
			if err != nil {
				return
			}
			if _, err := p.Write(data); err != nil {
				logger.WithError(err).Warn("Failed to forward notification to PTY")
			}
		}
	})

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Bridging %s <-> %s\n", conn.ID, p.TTYName())
	if bridgeSymlink != "" {
		fmt.Fprintf(out, "Symlink: %s\n", bridgeSymlink)
	}
	fmt.Fprintln(out, "Press Ctrl+C to stop.")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-ptyErr:
		return fmt.Errorf("PTY failed: %w", err)
	case <-conn.Done():
		if conn.Lost() {
			return fmt.Errorf("%w: %s", ErrConnectionLost, conn.ID)
		}
		return nil
	}
}
