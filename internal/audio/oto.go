package audio

import (
	"fmt"
	"io"
	"sync"

	"github.com/audiolibrelab/cliprec/internal/clip"
	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process. It is opened in the format of
// the first clip played; later clips must match it.
var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoFormat clip.Format
)

func getOtoContext(format clip.Format) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx == nil {
		if format.BitDepth != 16 {
			return nil, fmt.Errorf("unsupported bit depth %d", format.BitDepth)
		}
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			return nil, err
		}
		<-ready
		otoCtx, otoFormat = ctx, format
	}
	if otoFormat != format {
		return nil, fmt.Errorf("output already opened as %d Hz %d ch, cannot play %d Hz %d ch",
			otoFormat.SampleRate, otoFormat.Channels, format.SampleRate, format.Channels)
	}
	return otoCtx, nil
}

// OtoOutput plays through the process-wide oto context.
type OtoOutput struct{}

func NewOtoOutput() *OtoOutput {
	return &OtoOutput{}
}

// Resume resumes the context if one is open. The context itself is opened
// by the first NewVoice, in that clip's format.
func (o *OtoOutput) Resume() error {
	otoMu.Lock()
	ctx := otoCtx
	otoMu.Unlock()

	if ctx == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ctx.Resume()
}

func (o *OtoOutput) NewVoice(format clip.Format, src io.Reader) (Voice, error) {
	ctx, err := getOtoContext(format)
	if err != nil {
		return nil, err
	}
	return ctx.NewPlayer(src), nil
}
