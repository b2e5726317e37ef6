package main

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/srg/blelink/internal/device"
	"github.com/srg/blelink/internal/groutine"
	"github.com/srg/blelink/internal/session"
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat <peripheral-id>",
	Short: "Interactive session with a peripheral",
	Long: `Connects to the peripheral and subscribes to the serial characteristic.
Every line typed on stdin is written to the peripheral; everything the
peripheral notifies is printed as it arrives.

Ctrl+D (end of input) or Ctrl+C disconnects. If the peripheral drops the link
the command fails with a connection lost error.

Example:
  blelink chat AA:BB:CC:DD:EE:01
  blelink chat --eol '\r\n' AA:BB:CC:DD:EE:01`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

var (
	chatServiceUUID string
	chatCharUUID    string
	chatEOL         string
)

func init() {
	chatCmd.Flags().StringVar(&chatServiceUUID, "service", "", "Service UUID (default from config, ffe0)")
	chatCmd.Flags().StringVar(&chatCharUUID, "char", "", "Characteristic UUID (default from config, ffe1)")
	chatCmd.Flags().StringVar(&chatEOL, "eol", "", `Line ending appended to each sent line (e.g. '\r\n')`)
}

func runChat(cmd *cobra.Command, args []string) error {
	env, err := newCommandEnv(cmd)
	if err != nil {
		return err
	}

	svc, chr, err := env.characteristic(chatServiceUUID, chatCharUUID)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context(), env.logger)
	defer cancel()

	conn, err := env.session.Connect(ctx, args[0])
	if err != nil {
		return err
	}
	defer func() { _ = env.session.Close() }()

	if _, err := env.session.Subscribe(svc, chr); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	name := conn.Name
	if name == "" {
		name = conn.ID
	}
	fmt.Fprintf(out, "Connected to %s. Type to send, Ctrl+D to quit.\n", name)

	return chat(ctx, env.session, conn, cmd.InOrStdin(), out, svc, chr, unescapeEOL(chatEOL))
}

// chat pumps stdin lines to the peripheral and received text to out until
// input ends, ctx is cancelled or the connection goes away.
func chat(ctx context.Context, sess *session.Session, conn *session.Connection, in io.Reader, out io.Writer, svc, chr, eol string) error {
	loopCtx, stop := context.WithCancel(ctx)

	lines := make(chan string)
	inputDone := make(chan error, 1)
	groutine.Go(loopCtx, "chat-stdin", func(ctx context.Context) {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		inputDone <- scanner.Err()
	})

	inbox := sess.Inbox()
	printerDone := make(chan struct{})
	groutine.Go(loopCtx, "chat-printer", func(ctx context.Context) {
		defer close(printerDone)
		for {
			data, err := inbox.Next(ctx)
			if err != nil {
				return
			}
			fmt.Fprint(out, device.DecodeMessage(data))
		}
	})

	err := chatLoop(ctx, sess, conn, lines, inputDone, svc, chr, eol)

	stop()
	<-printerDone
	flushInbox(inbox, out)
	return err
}

func chatLoop(ctx context.Context, sess *session.Session, conn *session.Connection, lines <-chan string, inputDone <-chan error, svc, chr, eol string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-conn.Done():
			if conn.Lost() {
				return fmt.Errorf("%w: %s", ErrConnectionLost, conn.ID)
			}
			return nil
		case line := <-lines:
			if err := sess.Write(svc, chr, line+eol); err != nil {
				return err
			}
		case err := <-inputDone:
			return err
		}
	}
}

// flushInbox prints whatever arrived after the printer stopped.
func flushInbox(inbox *session.Inbox, out io.Writer) {
	done, cancel := context.WithCancel(context.Background())
	cancel()
	for {
		data, err := inbox.Next(done)
		if err != nil {
			return
		}
		fmt.Fprint(out, device.DecodeMessage(data))
	}
}

// unescapeEOL understands the \r, \n and \t escapes typed on a shell command line.
func unescapeEOL(s string) string {
	var out []rune
	escaped := false
	for _, r := range s {
		if escaped {
			switch r {
			case 'r':
				out = append(out, '\r')
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			default:
				out = append(out, '\\', r)
			}
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		out = append(out, r)
	}
	if escaped {
		out = append(out, '\\')
	}
	return string(out)
}
