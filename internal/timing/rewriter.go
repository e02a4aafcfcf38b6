package timing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xiaot623/manimate/internal/domain"
	"github.com/xiaot623/manimate/internal/script"
)

// ErrNoEntryRoutine is returned when a script has no scene with a construct
// method.
var ErrNoEntryRoutine = errors.New("no entry routine found")

// Rewrite scales every timed directive of src by plan.SpeedFactor, binds the
// audio track at the top of the entry scene's construct method and pads the
// end of that method so the timeline covers plan.AudioDuration.
//
// On failure src is returned unchanged together with a SyncFailure.
func Rewrite(src string, plan domain.SyncPlan, audioRef, entry string) (string, error) {
	s, err := script.Parse(src)
	if err != nil {
		return src, syncError("script could not be parsed", err)
	}
	routine := s.EntryRoutine(entry)
	if routine == nil {
		return src, syncError(fmt.Sprintf("scene %q", entry), ErrNoEntryRoutine)
	}

	speed := plan.SpeedFactor
	if !finite(speed) || speed <= 0 {
		speed = 1
	}
	if speed != 1 {
		s.EditDirectives(func(d *script.Directive) bool {
			d.Scale(speed)
			return true
		})
	}

	routine.RemoveStatements(isAudioHook)
	routine.Prepend(
		"self.audio_file = "+strconv.Quote(audioRef),
		"self.add_sound(self.audio_file)",
	)

	if residual := plan.AudioDuration - AnalyzeScript(s); residual > Tolerance {
		routine.Append("self.wait(" + script.Literal(residual).String() + ")")
	}
	return s.String(), nil
}

func isAudioHook(code string) bool {
	c := strings.Join(strings.Fields(code), "")
	if strings.HasPrefix(c, "self.audio_file=") && !strings.HasPrefix(c, "self.audio_file==") {
		return true
	}
	return c == "self.add_sound(self.audio_file)"
}

func syncError(msg string, err error) error {
	return domain.NewStageError(domain.FailureSync, domain.RunStateSyncing, msg+": "+err.Error(), err)
}
