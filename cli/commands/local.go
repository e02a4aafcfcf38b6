package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xiaot623/manimate/internal/app"
	"github.com/xiaot623/manimate/internal/config"
	"github.com/xiaot623/manimate/internal/domain"
)

const localSession = "local"

var localCmd = &cobra.Command{
	Use:   "local [topic]",
	Short: "Generate an animation in this process",
	Long: `Run the whole pipeline in this process with the back ends selected by the
environment (see the server configuration). MANIMATE_MODE=MOCK runs offline.`,
	Args: topicOrPDF,
	RunE: runLocal,
}

func runLocal(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return local(ctx, config.Load(), strings.Join(args, " "), runOptions(), cmd.OutOrStdout())
}

// printer is a service channel writing events to a terminal.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) Emit(sessionID string, ev domain.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	printEvent(p.w, ev)
}

func local(ctx context.Context, cfg *config.Config, topic string, opts domain.RunOptions, out io.Writer) error {
	p := &printer{w: out}
	a, err := app.New(context.Background(), cfg, p)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.Service.Start(context.Background(), localSession, topic, opts)
	if err != nil {
		return err
	}

	final, err := a.Service.Wait(ctx, snap.RunID)
	if err != nil {
		p.mu.Lock()
		fmt.Fprintln(out, "Cancelling...")
		p.mu.Unlock()
		if err := a.Service.Cancel(context.Background(), snap.RunID); err != nil {
			return err
		}
		// The run stops at its next cancellation point.
		if final, err = a.Service.Wait(context.Background(), snap.RunID); err != nil {
			return err
		}
	}

	payload, _ := json.Marshal(map[string]string{"final_artifact": final.FinalArtifact})
	p.mu.Lock()
	defer p.mu.Unlock()
	return result(out, domain.ProgressEvent{
		RunID:   final.RunID,
		Stage:   final.State,
		Message: final.LastError,
		Payload: payload,
	})
}
