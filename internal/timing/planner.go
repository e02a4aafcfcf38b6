package timing

import (
	"math"

	"github.com/xiaot623/manimate/internal/domain"
)

// Plan computes how a timeline of declared seconds is stretched to audio
// seconds. Scaling alone reaches the audio length whenever there is something
// to scale; padding covers the rest.
func Plan(declared, audio float64) domain.SyncPlan {
	if !finite(declared) || declared < 0 {
		declared = 0
	}
	if !finite(audio) || audio < 0 {
		audio = 0
	}

	speed := 1.0
	if declared > 0 && audio > 0 {
		speed = audio / declared
	}

	padding := audio - declared*speed
	if padding < Tolerance {
		padding = 0
	}
	return domain.SyncPlan{
		DeclaredDuration: declared,
		AudioDuration:    audio,
		SpeedFactor:      speed,
		PaddingSeconds:   padding,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
