package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

const clearScreen = "\x1b[H\x1b[2J"

// screen redraws the exam view. The terminal is in raw mode, so every line
// ends with CRLF.
type screen struct {
	mu      sync.Mutex
	out     io.Writer
	pending string
	last    string
}

func newScreen(out io.Writer) *screen {
	return &screen{out: out}
}

// notice shows msg under the next frame.
func (s *screen) notice(msg string) {
	s.mu.Lock()
	s.pending = msg
	s.mu.Unlock()
}

func (s *screen) render(v session.View) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := s.frame(v)
	// Ticks that change nothing visible are skipped to avoid flicker.
	if frame == s.last {
		return
	}
	s.last = frame
	fmt.Fprint(s.out, clearScreen+frame)
}

func (s *screen) frame(v session.View) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteString("\r\n")
	}

	line("Ujian %s  [%s]", v.QuizID, v.Status)
	if v.State.Active() {
		line("Sisa waktu %s  |  Terjawab %d/%d  |  Peringatan %d/%d",
			clockText(v.RemainingSeconds), v.Answered(), len(v.Questions), v.WarningCount, v.StrikeLimit)
	}
	if v.Transient != "" {
		line("! %s", v.Transient)
	}
	line("%s", strings.Repeat("─", 60))

	switch {
	case v.Warning != nil:
		line("PERINGATAN %d dari %d: %s", v.Warning.Count, v.Warning.Limit, v.Warning.Reason)
		line("Jika mencapai %d, jawaban dikirim otomatis.", v.Warning.Limit)
		line("Ketik :ok untuk melanjutkan.")
	case v.State == session.StateSubmitting:
		if v.BlockedReason != "" {
			line("Ujian dihentikan: %s", v.BlockedReason)
		}
		line("Mengirim jawaban, jangan tutup aplikasi...")
	case v.State == session.StateSubmitted || v.State == session.StateAlreadySubmitted:
		s.result(line, v)
	case v.State == session.StateAborted:
		line("Ujian tidak dapat dilanjutkan.")
		if v.Err != nil {
			line("%v", v.Err)
		}
	case v.State.Active() && len(v.Questions) > 0:
		s.question(line, v)
	default:
		line("Menunggu server...")
	}

	if s.pending != "" {
		line("")
		line("» %s", s.pending)
		s.pending = ""
	}
	b.WriteString("> ")
	return b.String()
}

func (s *screen) question(line func(string, ...any), v session.View) {
	idx := v.CurrentQuestionIndex
	q := v.Questions[idx]
	line("Soal %d dari %d", idx+1, len(v.Questions))
	line("")
	line("%s", q.QuestionText)
	line("")

	current := v.Answers[q.ID]
	if q.QuestionType == model.QuestionTypeSingleChoice {
		for _, o := range q.Options {
			mark := " "
			if o.ID == current {
				mark = "x"
			}
			line("  [%s] %s. %s", mark, o.ID, o.Text)
		}
	} else if current != "" {
		line("  Jawaban: %s", current)
	}
	line("")
	line(":n <nomor> pindah soal  |  :clear hapus jawaban  |  :submit kirim")
}

func (s *screen) result(line func(string, ...any), v session.View) {
	if v.State == session.StateAlreadySubmitted {
		line("Ujian ini sudah pernah dikirim.")
	} else if v.Auto {
		line("Jawaban dikirim otomatis: %s", v.BlockedReason)
	} else {
		line("Jawaban berhasil dikirim.")
	}
	if r := v.Result; r != nil {
		line("Nilai %.1f  (%d benar dari %d)", r.Score, r.Correct, r.Total)
	}
	if len(v.Violations) > 0 {
		line("Pelanggaran tercatat: %d", len(v.Violations))
	}
}

func clockText(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
