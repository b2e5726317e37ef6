package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <peripheral-id> <message>",
	Short: "Send one message to a peripheral",
	Long: `Connects to the peripheral, writes the message to the serial characteristic
without response and disconnects.

Each character is sent as one byte (its code point truncated to 8 bits).

Example:
  blelink send AA:BB:CC:DD:EE:01 AT
  blelink send --service ffe0 --char ffe1 AA:BB:CC:DD:EE:01 "AT+NAME?"`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

var (
	sendServiceUUID string
	sendCharUUID    string
)

func init() {
	sendCmd.Flags().StringVar(&sendServiceUUID, "service", "", "Service UUID (default from config, ffe0)")
	sendCmd.Flags().StringVar(&sendCharUUID, "char", "", "Characteristic UUID (default from config, ffe1)")
}

func runSend(cmd *cobra.Command, args []string) (err error) {
	env, err := newCommandEnv(cmd)
	if err != nil {
		return err
	}

	svc, chr, err := env.characteristic(sendServiceUUID, sendCharUUID)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context(), env.logger)
	defer cancel()

	conn, err := env.session.Connect(ctx, args[0])
	if err != nil {
		return err
	}
	defer func() {
		if derr := env.session.Disconnect(); derr != nil && err == nil {
			err = derr
		}
	}()

	message := args[1]
	if err := env.session.Write(svc, chr, message); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Sent %d bytes to %s\n", len([]rune(message)), conn.ID)
	return nil
}
