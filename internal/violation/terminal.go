package violation

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"golang.org/x/term"
)

const (
	focusReportingOn  = "\x1b[?1004h"
	focusReportingOff = "\x1b[?1004l"
)

// TerminalSource watches an xterm-compatible terminal. Focus reports
// (ESC [ O) count as focus loss. Ctrl-Z and an external SIGTSTP count as
// the app being hidden. Everything else typed is echoed and delivered as
// lines on Lines.
type TerminalSource struct {
	In    *os.File
	Out   io.Writer
	Lines chan<- string
	Log   zerolog.Logger
}

// Run puts the terminal into raw mode and reports signals until ctx is done.
func (t *TerminalSource) Run(ctx context.Context, sink HostSignal) error {
	fd := int(t.In.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("stdin is not a terminal")
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("make raw: %w", err)
	}
	defer func() {
		fmt.Fprint(t.Out, focusReportingOff)
		if err := term.Restore(fd, state); err != nil {
			t.Log.Warn().Err(err).Msg("Failed to restore terminal")
		}
	}()
	fmt.Fprint(t.Out, focusReportingOn)

	bg := make(chan os.Signal, 1)
	if len(backgroundSignals) > 0 {
		signal.Notify(bg, backgroundSignals...)
		defer signal.Stop(bg)
	}

	input := make(chan []byte)
	go t.read(ctx, input)

	sc := &scanner{}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-bg:
			sink.OnSuspiciousActivity(model.SignalVisibilityHidden.Reason())
		case chunk, ok := <-input:
			if !ok {
				return nil
			}
			for _, b := range chunk {
				ev := sc.feed(b)
				if ev.echo != "" {
					fmt.Fprint(t.Out, ev.echo)
				}
				if ev.signal != "" {
					sink.OnSuspiciousActivity(ev.signal.Reason())
				}
				if ev.line != nil && t.Lines != nil {
					select {
					case t.Lines <- *ev.line:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				if ev.interrupt {
					return context.Canceled
				}
			}
		}
	}
}

func (t *TerminalSource) read(ctx context.Context, out chan<- []byte) {
	defer close(out)
	buf := make([]byte, 64)
	for {
		n, err := t.In.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

type scanEvent struct {
	echo      string
	line      *string
	signal    model.Signal
	interrupt bool
}

// scanner splits raw-mode input into focus reports and edited lines.
type scanner struct {
	esc  int // 0 none, 1 after ESC, 2 after ESC [
	line []byte
}

func (s *scanner) feed(b byte) scanEvent {
	switch s.esc {
	case 1:
		if b == '[' {
			s.esc = 2
		} else {
			s.esc = 0
		}
		return scanEvent{}
	case 2:
		s.esc = 0
		if b == 'O' {
			return scanEvent{signal: model.SignalFocusLost}
		}
		// ESC [ I (focus in), arrows and the rest are ignored.
		return scanEvent{}
	}

	switch b {
	case 0x1b:
		s.esc = 1
		return scanEvent{}
	case 0x03: // Ctrl-C
		return scanEvent{interrupt: true, echo: "^C\r\n"}
	case 0x1a: // Ctrl-Z; raw mode delivers it as a byte instead of SIGTSTP
		return scanEvent{signal: model.SignalVisibilityHidden}
	case '\r', '\n':
		line := string(s.line)
		s.line = s.line[:0]
		return scanEvent{line: &line, echo: "\r\n"}
	case 0x7f, 0x08:
		if len(s.line) == 0 {
			return scanEvent{}
		}
		s.line = s.line[:len(s.line)-1]
		return scanEvent{echo: "\b \b"}
	}
	if b < 0x20 {
		return scanEvent{}
	}
	s.line = append(s.line, b)
	return scanEvent{echo: string([]byte{b})}
}
