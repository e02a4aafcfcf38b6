package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xiaot623/manimate/internal/domain"
)

func runOptions() domain.RunOptions {
	return domain.RunOptions{
		Quality:     domain.Quality(quality),
		Voice:       voice,
		Theme:       domain.Theme(theme),
		SceneName:   sceneName,
		MaxAttempts: maxAttempts,
		PDFPath:     pdfPath,
	}
}

// formatEvent renders one progress event as a single line.
func formatEvent(ev domain.ProgressEvent) string {
	var b strings.Builder
	if ev.Ts > 0 {
		b.WriteString(time.UnixMilli(ev.Ts).Format("15:04:05 "))
	}
	fmt.Fprintf(&b, "[%s]", ev.Stage)
	if ev.Attempt > 0 && ev.Stage == domain.RunStateRendering {
		fmt.Fprintf(&b, " #%d", ev.Attempt)
	}
	if ev.Status == domain.EventStatusError {
		b.WriteString(" error:")
	}
	b.WriteString(" ")
	b.WriteString(ev.Message)
	return b.String()
}

func printEvent(w io.Writer, ev domain.ProgressEvent) {
	fmt.Fprintln(w, formatEvent(ev))
	if verbose && len(ev.Payload) > 0 {
		var v interface{}
		if err := json.Unmarshal(ev.Payload, &v); err == nil {
			formatted, _ := json.MarshalIndent(v, "    ", "  ")
			fmt.Fprintf(w, "    %s\n", formatted)
		}
	}
}

// finalArtifact reads the output path from a Completed event.
func finalArtifact(ev domain.ProgressEvent) string {
	var payload struct {
		FinalArtifact string `json:"final_artifact"`
	}
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return ""
	}
	return payload.FinalArtifact
}

// result turns the final event of a run into the command's outcome.
func result(w io.Writer, ev domain.ProgressEvent) error {
	switch ev.Stage {
	case domain.RunStateCompleted:
		fmt.Fprintf(w, "\nAnimation ready: %s\n", finalArtifact(ev))
		return nil
	case domain.RunStateCancelled:
		return fmt.Errorf("run %s cancelled", ev.RunID)
	default:
		return fmt.Errorf("run %s failed: %s", ev.RunID, ev.Message)
	}
}
