package engine

import (
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// The oto context is process-global and can only be created once, so the
// first Play pins the output sample rate for the lifetime of the process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func acquireContext(sampleRate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channelCount,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("opening audio device: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
		otoRate = sampleRate
	})

	if otoErr != nil {
		return nil, otoErr
	}
	if sampleRate != otoRate {
		return nil, fmt.Errorf("audio device is pinned at %d Hz; project wants %d Hz (restart to change)", otoRate, sampleRate)
	}
	return otoCtx, nil
}

// newPlayer opens the default output device at the given sample rate and
// starts pulling frames from src.
func newPlayer(sampleRate int, src io.Reader) (*oto.Player, error) {
	ctx, err := acquireContext(sampleRate)
	if err != nil {
		return nil, err
	}
	player := ctx.NewPlayer(src)
	player.Play()
	return player, nil
}
