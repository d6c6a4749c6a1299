package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/audiolibrelab/cliprec/internal/recorder"
	"github.com/audiolibrelab/cliprec/internal/service"
	"github.com/audiolibrelab/cliprec/internal/ui"
	"github.com/audiolibrelab/cliprec/internal/waveform"
)

const (
	liveCols    = 60
	liveRows    = 5
	liveRefresh = 80 * time.Millisecond
)

// liveView redraws the terminal waveform and a status line in place
type liveView struct {
	svc  service.Service
	term *waveform.Terminal
	out  io.Writer
	rows int
}

func (v *liveView) run(ctx context.Context) {
	ticker := time.NewTicker(liveRefresh)
	defer ticker.Stop()

	v.draw(false)
	for {
		select {
		case <-ctx.Done():
			v.draw(true)
			fmt.Fprintln(v.out)
			return
		case <-ticker.C:
			v.draw(true)
		}
	}
}

func (v *liveView) draw(redraw bool) {
	if redraw {
		fmt.Fprint(v.out, "\r")
		if v.rows > 0 {
			fmt.Fprintf(v.out, "\033[%dA", v.rows)
		}
	}
	if v.term != nil {
		fmt.Fprintln(v.out, v.term.Render())
	}
	fmt.Fprint(v.out, "\033[K"+statusLine(v.svc.State()))
}

func statusLine(st recorder.State) string {
	if st.Mode == recorder.ModeRecording {
		label := "READY"
		if st.IsRecording {
			label = "REC"
		}
		return ui.StatusLine(label, st.IsRecording, st.RecordingTimeDisplay)
	}

	label := "PAUSED"
	switch st.Phase {
	case recorder.PhasePlaybackActive:
		label = "PLAY"
	case recorder.PhasePlaybackEnded:
		label = "ENDED"
	}
	if !st.Ready {
		label = "LOADING"
	}
	return ui.StatusLine(label, st.IsPlaying, st.PlaybackTimeDisplay)
}

// interactive reports whether the live view can draw on stderr
func interactive() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// session runs one pipeline against a fresh service. prepare, when set, runs
// after the service loop is up and before the first step.
func session(ctx context.Context, steps string, prepare func(context.Context, *service.ClipService) error) error {
	live := interactive()

	var deps service.Deps
	var term *waveform.Terminal
	if live {
		term = waveform.NewTerminal(liveCols, liveRows, cfg.Waveform.Width, cfg.Waveform.Height)
		deps.Surface = term
	}

	svc, err := newService(deps)
	if err != nil {
		return err
	}
	defer svc.Close()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		svc.Run(runCtx)
	}()
	defer func() {
		cancelRun()
		<-loopDone
	}()

	notices, cancelNotices := svc.SubscribeNotices()
	var (
		collected []recorder.Notice
		noticesWG sync.WaitGroup
	)
	noticesWG.Add(1)
	go func() {
		defer noticesWG.Done()
		for n := range notices {
			collected = append(collected, n)
		}
	}()

	// First interrupt or Enter stops the recording, a second interrupt aborts
	stop := make(chan struct{})
	var stopOnce sync.Once
	requestStop := func() { stopOnce.Do(func() { close(stop) }) }

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for {
			select {
			case <-sigChan:
				select {
				case <-stop:
					slog.Warn("Aborting")
					cancelRun()
					return
				default:
					requestStop()
				}
			case <-runCtx.Done():
				return
			}
		}
	}()
	if containsStep(steps, 'r') {
		go func() {
			bufio.NewScanner(os.Stdin).Scan()
			requestStop()
		}()
	}

	if prepare != nil {
		if err := prepare(runCtx, svc); err != nil {
			return err
		}
	}

	if containsStep(steps, 'r') {
		ui.Info("%s recording up to %s - press Enter or Ctrl+C to stop", ui.Brand("cliprec"), cfg.Recorder.MaxDuration)
	}

	viewCtx, cancelView := context.WithCancel(runCtx)
	viewDone := make(chan struct{})
	if live {
		view := &liveView{svc: svc, term: term, out: ui.Out, rows: liveRows}
		go func() {
			defer close(viewDone)
			view.run(viewCtx)
		}()
	} else {
		close(viewDone)
	}

	err = svc.RunPipeline(runCtx, steps, stop)
	cancelView()
	<-viewDone

	cancelNotices()
	noticesWG.Wait()
	for _, n := range collected {
		switch n.Kind {
		case recorder.NoticeSaved:
			ui.Success("%s", n.Message)
		default:
			ui.Warn("%s", n.Message)
		}
	}
	return err
}

func containsStep(steps string, step rune) bool {
	for _, s := range steps {
		if s == step {
			return true
		}
	}
	return false
}
