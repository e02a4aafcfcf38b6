package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/manimate/internal/domain"
	"github.com/xiaot623/manimate/internal/protocol"
)

// cancelGrace bounds how long generate waits for the final event after
// asking the server to cancel.
const cancelGrace = 30 * time.Second

var (
	genAddr   string
	genAPIKey string
)

var generateCmd = &cobra.Command{
	Use:   "generate [topic]",
	Short: "Generate an animation on a manimate server",
	Long: `Connect to a manimate server, start a run for the topic and print its
progress until it completes. Ctrl-C cancels the run on the server.`,
	Args: topicOrPDF,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&genAddr, "addr", "ws://localhost:8080/ws", "WebSocket server address")
	generateCmd.Flags().StringVar(&genAPIKey, "api-key", os.Getenv("MANIMATE_API_KEY"), "API key for authentication")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return generate(ctx, genAddr, genAPIKey, strings.Join(args, " "), runOptions(), cmd.OutOrStdout())
}

// generate runs topic on the server at addr and returns once the run has
// emitted its final event. Cancelling ctx cancels the run.
func generate(ctx context.Context, addr, apiKey, topic string, opts domain.RunOptions, out io.Writer) error {
	client, err := NewClient(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.SendHello(apiKey); err != nil {
		return err
	}
	fmt.Fprintf(out, "Session %s\n", client.SessionID())

	msgs, errs := client.readMessages()
	requestID, err := client.StartRun(topic, opts)
	if err != nil {
		return fmt.Errorf("send start_run: %w", err)
	}

	var runID string
	done := ctx.Done()
	var grace <-chan time.Time
	for {
		select {
		case <-done:
			done = nil
			fmt.Fprintln(out, "Cancelling...")
			if err := client.CancelRun(runID); err != nil {
				return fmt.Errorf("send cancel_run: %w", err)
			}
			grace = time.After(cancelGrace)

		case <-grace:
			return fmt.Errorf("no final event %s after cancelling", cancelGrace)

		case err := <-errs:
			return fmt.Errorf("connection closed: %w", err)

		case msg, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			switch msg.base.Type {
			case protocol.TypeRunStarted:
				if msg.base.RequestID == requestID {
					runID = msg.base.RunID
					fmt.Fprintf(out, "Run %s started\n", runID)
				}
			case protocol.TypeError:
				var errMsg protocol.ErrorMessage
				json.Unmarshal(msg.data, &errMsg)
				if msg.base.RequestID == requestID {
					return fmt.Errorf("start failed: %s - %s", errMsg.Code, errMsg.Message)
				}
				fmt.Fprintf(out, "server error: %s - %s\n", errMsg.Code, errMsg.Message)
			case protocol.TypeProgress:
				ev := msg.event
				// Events can precede run_started; the session runs one run at a time.
				if ev == nil || (runID != "" && ev.RunID != runID) {
					continue
				}
				printEvent(out, *ev)
				if ev.IsFinal() {
					return result(out, *ev)
				}
			}
		}
	}
}
