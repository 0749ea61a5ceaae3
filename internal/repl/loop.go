// Package repl is the line-oriented front end: one command or prompt per line.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"querydesk/internal/app"
	"querydesk/internal/i18n"
	"querydesk/internal/session"

	"github.com/chzyer/readline"
	"github.com/mattn/go-runewidth"
)

const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[90m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiRed    = "\x1b[31m"
)

// Shell holds REPL state over the application services.
// Shell 持有 REPL 状态：应用服务、输入源与最近一次模型列表。
type Shell struct {
	svc    *app.App
	in     LineInput
	out    io.Writer
	locale *i18n.I18n
	color  bool

	// models is the last /models listing; /model <n> indexes into it.
	models []string
}

// New builds a shell. Colors are off unless EnableColor is called.
func New(svc *app.App, in LineInput, out io.Writer) *Shell {
	return &Shell{
		svc:    svc,
		in:     in,
		out:    out,
		locale: i18n.Global(),
	}
}

// UseInput replaces the line source.
func (s *Shell) UseInput(in LineInput) {
	s.in = in
}

// EnableColor turns on ANSI colors when the environment allows it.
func (s *Shell) EnableColor() {
	s.color = useColor()
}

// Run starts the services, prints the banner and reads lines until /quit or EOF.
func (s *Shell) Run(ctx context.Context) error {
	if err := s.svc.Start(ctx); err != nil {
		s.printErr(err)
	}
	s.printf("%s\n", s.locale.T("repl.welcome", s.svc.Backend.BaseURL(), s.svc.ActiveProject(), s.svc.Settings.Model()))
	s.printf("%s\n", s.dim(s.locale.T("repl.help_hint")))

	for {
		if ctx.Err() != nil {
			return nil
		}
		s.printStatusLine()
		line, err := s.readPrompt()
		if err != nil {
			switch {
			case errors.Is(err, readline.ErrInterrupt):
				s.printf("%s\n", s.dim(s.locale.T("repl.interrupted")))
				continue
			case errors.Is(err, io.EOF):
				s.printf("\n%s\n", s.locale.T("repl.bye"))
				return nil
			default:
				return fmt.Errorf("read input: %w", err)
			}
		}
		if exit := s.Execute(ctx, line); exit {
			s.printf("%s\n", s.locale.T("repl.bye"))
			return nil
		}
	}
}

// Execute handles one entry and reports whether the shell should exit.
// Prompts are sent as typed; commands are matched on the trimmed entry.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}
	if strings.HasPrefix(input, "/") {
		return s.handleCommand(ctx, input)
	}
	s.sendPrompt(ctx, line)
	return false
}

func (s *Shell) sendPrompt(ctx context.Context, prompt string) {
	s.printf("%s\n", s.dim(s.locale.T("status.loading")))
	turn, err := s.svc.Session.SendQuery(ctx, prompt)
	switch {
	case errors.Is(err, session.ErrStale):
		return
	case err != nil:
		snap := s.svc.Session.Snapshot()
		if snap.State != session.StateFailed {
			s.printErr(err)
			return
		}
		msg := snap.LastResponse
		if s.color {
			msg = ansiRed + msg + ansiReset
		}
		s.printf("%s\n", msg)
		return
	}
	s.printf("%s\n", turn.Response)
}

func (s *Shell) prompt() string {
	snap := s.svc.Session.Snapshot()
	p := fmt.Sprintf("[%s/%s]> ", s.svc.ActiveProject(), snap.Active)
	if s.color {
		return ansiGreen + p + ansiReset
	}
	return p
}

func (s *Shell) printStatusLine() {
	line := fmt.Sprintf("%s · %s", s.svc.Settings.Model(), s.locale.T("status.tokens", s.svc.TokenCount()))
	s.printf("%s\n", s.dim(line))
}

func (s *Shell) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) printErr(err error) {
	msg := s.locale.T("error.generic", err.Error())
	if s.color {
		msg = ansiRed + msg + ansiReset
	}
	s.printf("%s\n", msg)
}

func (s *Shell) dim(text string) string {
	if s.color {
		return ansiDim + text + ansiReset
	}
	return text
}

func (s *Shell) accent(text string) string {
	if s.color {
		return ansiCyan + text + ansiReset
	}
	return text
}

func (s *Shell) warn(text string) string {
	if s.color {
		return ansiYellow + text + ansiReset
	}
	return text
}

func useColor() bool {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("QUERYDESK_NO_COLOR")) != "" {
		return false
	}
	return strings.ToLower(strings.TrimSpace(os.Getenv("TERM"))) != "dumb"
}

// truncate shortens s to width terminal cells.
func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}
