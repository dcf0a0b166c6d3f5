package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/momentics/wsproto/api"
	"github.com/momentics/wsproto/client"
	"github.com/momentics/wsproto/protocol"
	"github.com/spf13/cobra"
)

func dialCmd() *cobra.Command {
	var (
		timeout time.Duration
		headers []string
	)

	cmd := &cobra.Command{
		Use:   "dial <uri>",
		Short: "Connect to a WebSocket server",
		Long: `Connect to a WebSocket server, send every stdin line as a message and
print the messages the server sends. Accepts ws://host[:port]/path,
host[:port]/path and unix:///path/to.sock.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			opts := cfg.ClientOptions()
			if timeout > 0 {
				opts = append(opts, client.WithTimeout(timeout))
			}
			for _, h := range headers {
				name, value, err := parseHeader(h)
				if err != nil {
					return err
				}
				opts = append(opts, client.WithHeader(name, value))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := client.Dial(ctx, args[0], opts...)
			if err != nil {
				return err
			}
			defer c.Close()

			prompt := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
			return session(ctx, c, cmd.InOrStdin(), cmd.OutOrStdout(), prompt)
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "dial and read timeout (default from config)")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, `extra handshake header "Name: value" (repeatable)`)

	return cmd
}

func parseHeader(h string) (string, string, error) {
	name, value, ok := strings.Cut(h, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("%w: header %q, want \"Name: value\"", api.ErrInvalidOption, h)
	}
	return name, strings.TrimSpace(value), nil
}

// messenger is the part of client.Conn a session uses.
type messenger interface {
	Send(payload []byte) error
	Receive() (protocol.Message, error)
}

// session pumps lines from in to c and messages from c to out until the
// server closes, in is exhausted or ctx is done.
func session(ctx context.Context, c messenger, in io.Reader, out io.Writer, prompt bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	type result struct {
		msg protocol.Message
		err error
	}
	received := make(chan result)
	go func() {
		for {
			m, err := c.Receive()
			if errors.Is(err, api.ErrNoMessage) {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			select {
			case received <- result{m, err}:
			case <-ctx.Done():
				return
			}
			if err != nil || m.IsClosing() {
				return
			}
		}
	}()

	if prompt {
		fmt.Fprint(out, "> ")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.Send([]byte(line)); err != nil {
				return err
			}
		case r := <-received:
			if r.err != nil {
				return r.err
			}
			if r.msg.IsClosing() {
				fmt.Fprintf(out, "closed by server: %d %s\n", uint16(r.msg.Code), r.msg.Text())
				return nil
			}
			fmt.Fprintf(out, "< %s\n", r.msg.Text())
			if prompt {
				fmt.Fprint(out, "> ")
			}
		}
	}
}
