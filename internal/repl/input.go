package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"querydesk/internal/settings"

	"github.com/chzyer/readline"
)

// continuation ends a line that goes on in the next one.
const continuation = `\`

// LineInput reads one line per call.
type LineInput interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// pipeInput reads newline-terminated lines without editing. A final line
// with no newline is still returned.
type pipeInput struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewBasicLineInput reads lines from in. Prompts go to out when it is not nil.
func NewBasicLineInput(in io.Reader, out io.Writer) LineInput {
	return &pipeInput{reader: bufio.NewReader(in), out: out}
}

func (p *pipeInput) ReadLine(prompt string) (string, error) {
	if p.out != nil {
		fmt.Fprint(p.out, prompt)
	}
	line, err := p.reader.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *pipeInput) Close() error { return nil }

// editor is a readline line editor with history and completion.
type editor struct {
	instance *readline.Instance
}

func newEditor(historyPath string, completer readline.AutoCompleter) (*editor, error) {
	if historyPath != "" {
		if err := os.MkdirAll(filepath.Dir(historyPath), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	instance, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       historyPath,
		HistorySearchFold: true,
		AutoComplete:      completer,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("start line editor: %w", err)
	}
	return &editor{instance: instance}, nil
}

func (e *editor) ReadLine(prompt string) (string, error) {
	e.instance.SetPrompt(prompt)
	return e.instance.Readline()
}

func (e *editor) Close() error {
	if e == nil || e.instance == nil {
		return nil
	}
	return e.instance.Close()
}

// NewLineInput prefers a readline editor with history at historyPath and
// completion from completer, which may be nil. It falls back to plain stdin;
// the error explains the fallback.
func NewLineInput(historyPath string, completer readline.AutoCompleter) (LineInput, error) {
	ed, err := newEditor(historyPath, completer)
	if err == nil {
		return ed, nil
	}
	return NewBasicLineInput(os.Stdin, os.Stdout), err
}

// Completer completes command names, and project, thread, note, parameter
// and model arguments from the current state.
func (s *Shell) Completer() readline.AutoCompleter {
	projects := func(string) []string { return s.svc.Projects.Projects() }
	threads := func(string) []string { return s.svc.Session.Snapshot().Threads }
	notes := func(string) []string { return s.svc.Notes.Snapshot().Notes }
	models := func(string) []string { return s.svc.Catalog.Models() }
	params := func(string) []string {
		var out []string
		for _, p := range settings.Params() {
			out = append(out, string(p))
		}
		return out
	}

	args := map[string]readline.DynamicCompleteFunc{
		"/project": projects,
		"/chat":    threads,
		"/note":    notes,
		"/model":   models,
		"/set":     params,
		"/inc":     params,
		"/dec":     params,
	}
	items := make([]readline.PrefixCompleterInterface, 0, len(commands))
	for _, c := range commands {
		if fn, ok := args[c.name]; ok {
			items = append(items, readline.PcItem(c.name, readline.PcItemDynamic(fn)))
			continue
		}
		items = append(items, readline.PcItem(c.name))
	}
	return readline.NewPrefixCompleter(items...)
}

// readPrompt reads one logical entry. Lines ending in a backslash continue
// on the next line; the pieces are joined with newlines.
func (s *Shell) readPrompt() (string, error) {
	line, err := s.in.ReadLine(s.prompt())
	if err != nil {
		return "", err
	}
	var parts []string
	for strings.HasSuffix(line, continuation) {
		parts = append(parts, strings.TrimSuffix(line, continuation))
		line, err = s.in.ReadLine("… ")
		if err != nil {
			return "", err
		}
	}
	return strings.Join(append(parts, line), "\n"), nil
}
