package repl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"querydesk/internal/app"
	"querydesk/internal/chat"
	"querydesk/internal/session"
	"querydesk/internal/settings"
	"querydesk/internal/storage"
)

const (
	defaultLogLimit = 10
	promptColumn    = 48
)

// command is one /help row. Args stay untranslated; the description is an
// i18n key.
type command struct {
	name string
	args string
	desc string
}

var commands = []command{
	{"/help", "", "cmd.help"},
	{"/quit", "", "cmd.quit"},
	{"/projects", "", "cmd.projects"},
	{"/project", "<name>", "cmd.project"},
	{"/mkproject", "<name>", "cmd.mkproject"},
	{"/chats", "", "cmd.chats"},
	{"/chat", "<id>", "cmd.chat"},
	{"/new", "", "cmd.new"},
	{"/clear", "", "cmd.clear"},
	{"/notes", "", "cmd.notes"},
	{"/note", "<name>", "cmd.note"},
	{"/mknote", "<name>", "cmd.mknote"},
	{"/save", "", "cmd.save"},
	{"/set", "<param> <value>", "cmd.set"},
	{"/inc", "<param>", "cmd.inc"},
	{"/dec", "<param>", "cmd.dec"},
	{"/settings", "", "cmd.settings"},
	{"/models", "[filter]", "cmd.models"},
	{"/model", "<id|index>", "cmd.model"},
	{"/log", "[n|chat]", "cmd.log"},
}

func (s *Shell) printHelp() {
	s.printf("%s\n", s.locale.T("repl.commands"))
	for _, c := range commands {
		usage := strings.TrimSpace(c.name + " " + c.args)
		s.printf("  %-26s%s\n", usage, s.locale.T(c.desc))
	}
	s.printf("%s\n", s.dim(s.locale.T("repl.prompt_hint")))
}

func (s *Shell) handleCommand(ctx context.Context, input string) bool {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return false
	}
	cmd := parts[0]
	arg := strings.TrimSpace(strings.TrimPrefix(input, cmd))

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		s.printHelp()
	case "/projects":
		s.listProjects()
	case "/project":
		if arg == "" {
			s.usage("/project <name>")
			break
		}
		if err := s.svc.SwitchProject(ctx, arg); err != nil {
			s.printErr(err)
		}
		s.printf("%s\n", s.locale.T("projects.switched", s.svc.ActiveProject()))
	case "/mkproject":
		if arg == "" {
			s.usage("/mkproject <name>")
			break
		}
		if err := s.svc.CreateProject(ctx, arg); err != nil {
			s.printErr(err)
			break
		}
		s.printf("%s\n", s.locale.T("projects.created", arg))
	case "/chats":
		s.listThreads()
	case "/chat":
		if arg == "" {
			s.usage("/chat <id>")
			break
		}
		if err := s.svc.Session.SelectThread(ctx, arg); err != nil {
			s.printErr(err)
			break
		}
		s.printTranscript()
	case "/new":
		id, err := s.svc.Session.CreateThread(ctx)
		if errors.Is(err, session.ErrThreadLimit) {
			s.printf("%s\n", s.warn(s.locale.T("chat.limit", chat.MaxThreads)))
			break
		}
		if err != nil {
			s.printErr(err)
			break
		}
		s.printf("%s\n", s.locale.T("chat.created", id))
	case "/clear":
		active := s.svc.Session.Snapshot().Active
		if err := s.svc.Session.ClearThread(ctx, active); err != nil {
			s.printErr(err)
			break
		}
		s.printf("%s\n", s.locale.T("chat.cleared", active))
	case "/notes":
		s.listNotes()
	case "/note":
		if arg == "" {
			s.usage("/note <name>")
			break
		}
		if err := s.svc.Notes.Select(ctx, arg); err != nil {
			s.printErr(err)
			break
		}
		s.printf("%s\n%s\n", s.accent(arg), s.svc.Notes.Snapshot().Content)
	case "/mknote":
		if arg == "" {
			s.usage("/mknote <name>")
			break
		}
		if err := s.svc.CreateNote(ctx, arg); err != nil {
			s.printErr(err)
			break
		}
		s.printf("%s\n", s.locale.T("notes.created", arg))
	case "/save":
		s.saveNote(ctx)
	case "/set":
		s.setParam(parts)
	case "/inc", "/dec":
		s.stepParam(cmd, parts)
	case "/settings":
		s.printSettings()
	case "/models":
		s.listModels(arg)
	case "/model":
		s.chooseModel(arg)
	case "/log":
		s.printLog(ctx, arg)
	default:
		s.printf("%s\n", s.warn(s.locale.T("repl.unknown", cmd)))
	}
	return false
}

func (s *Shell) usage(text string) {
	s.printf("%s\n", s.locale.T("repl.usage", text))
}

func (s *Shell) listProjects() {
	list := s.svc.Projects.Projects()
	if len(list) == 0 {
		s.printf("%s\n", s.dim(s.locale.T("projects.empty")))
		return
	}
	active := s.svc.ActiveProject()
	for _, name := range list {
		s.printf("%s\n", s.marked(name, name == active))
	}
}

func (s *Shell) listThreads() {
	snap := s.svc.Session.Snapshot()
	for _, id := range snap.Threads {
		s.printf("%s\n", s.marked(id, id == snap.Active))
	}
	if !snap.CanCreate {
		s.printf("%s\n", s.dim(s.locale.T("chat.limit", chat.MaxThreads)))
	}
}

func (s *Shell) printTranscript() {
	snap := s.svc.Session.Snapshot()
	if len(snap.Transcript) == 0 {
		s.printf("%s\n", s.dim(s.locale.T("chat.empty")))
		return
	}
	for _, turn := range snap.Transcript {
		s.printf("%s %s\n", s.accent(s.locale.T("chat.you")+":"), turn.Prompt)
		s.printf("%s %s\n\n", s.accent(s.locale.T("chat.assistant")+":"), turn.Response)
	}
}

func (s *Shell) listNotes() {
	snap := s.svc.Notes.Snapshot()
	if len(snap.Notes) == 0 {
		s.printf("%s\n", s.dim(s.locale.T("notes.empty")))
		return
	}
	for _, name := range snap.Notes {
		s.printf("%s\n", s.marked(name, name == snap.Selected))
	}
}

// saveNote reads the note body line by line until a lone "." and writes it
// to the selected note.
func (s *Shell) saveNote(ctx context.Context) {
	name := s.svc.Notes.Snapshot().Selected
	if name == "" {
		s.printf("%s\n", s.warn(s.locale.T("repl.no_note")))
		return
	}
	s.printf("%s\n", s.dim(s.locale.T("repl.note_input")))
	var lines []string
	for {
		line, err := s.in.ReadLine("… ")
		if err != nil {
			s.printErr(err)
			return
		}
		if strings.TrimSpace(line) == "." {
			break
		}
		lines = append(lines, line)
	}
	s.svc.Notes.SetContent(strings.Join(lines, "\n"))
	if err := s.svc.Notes.SaveSelected(ctx); err != nil {
		s.printErr(err)
		return
	}
	s.printf("%s\n", s.locale.T("notes.saved", name))
}

func (s *Shell) setParam(parts []string) {
	if len(parts) != 3 {
		s.usage("/set <param> <value>")
		return
	}
	p, err := settings.ParseParam(parts[1])
	if err != nil {
		s.printErr(err)
		return
	}
	value, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		s.printErr(fmt.Errorf("parse %s value %q: %w", p, parts[2], err))
		return
	}
	got, err := s.svc.Settings.Set(p, value)
	if err != nil {
		s.printErr(err)
		return
	}
	s.printf("%s = %s\n", p, settings.Format(p, got))
}

func (s *Shell) stepParam(cmd string, parts []string) {
	if len(parts) != 2 {
		s.usage(cmd + " <param>")
		return
	}
	p, err := settings.ParseParam(parts[1])
	if err != nil {
		s.printErr(err)
		return
	}
	step := s.svc.Settings.Increase
	if cmd == "/dec" {
		step = s.svc.Settings.Decrease
	}
	got, err := step(p)
	if err != nil {
		s.printErr(err)
		return
	}
	s.printf("%s = %s\n", p, settings.Format(p, got))
}

func (s *Shell) printSettings() {
	v := s.svc.Settings.Snapshot()
	s.printf("%-18s %s\n", "model", v.Model)
	for _, p := range settings.Params() {
		r, _ := settings.RangeOf(p)
		s.printf("%-18s %-6s %s\n", p, settings.Format(p, v.Get(p)),
			s.dim(fmt.Sprintf("[%s..%s]", settings.Format(p, r.Min), settings.Format(p, r.Max))))
	}
}

func (s *Shell) listModels(filter string) {
	s.models = s.svc.Catalog.Filter(filter)
	if s.svc.Catalog.Err() != nil {
		s.printf("%s\n", s.dim(s.locale.T("models.fallback")))
	}
	if len(s.models) == 0 {
		s.printf("%s\n", s.dim(s.locale.T("models.none")))
		return
	}
	current := s.svc.Settings.Model()
	for i, id := range s.models {
		s.printf("%3d. %s\n", i+1, s.marked(id, id == current))
	}
}

func (s *Shell) chooseModel(arg string) {
	if arg == "" {
		s.usage("/model <id|index>")
		return
	}
	available := s.models
	if len(available) == 0 {
		available = s.svc.Catalog.Models()
	}
	model, err := resolveModelTarget(arg, available)
	if err != nil {
		s.printErr(err)
		return
	}
	if err := s.svc.SelectModel(model); err != nil {
		s.printErr(err)
		return
	}
	s.printf("%s\n", s.locale.T("models.selected", model))
}

func (s *Shell) printLog(ctx context.Context, arg string) {
	var entries []storage.Entry
	var err error
	switch arg {
	case "chat":
		entries, err = s.svc.ThreadQueries(ctx)
	default:
		limit := defaultLogLimit
		if arg != "" {
			n, convErr := strconv.Atoi(arg)
			if convErr != nil || n < 1 {
				s.usage("/log [n|chat]")
				return
			}
			limit = n
		}
		entries, err = s.svc.RecentQueries(ctx, limit)
	}
	if errors.Is(err, app.ErrNoJournal) {
		s.printf("%s\n", s.dim(s.locale.T("repl.no_journal")))
		return
	}
	if err != nil {
		s.printErr(err)
		return
	}
	if len(entries) == 0 {
		s.printf("%s\n", s.dim(s.locale.T("repl.log_empty")))
		return
	}
	for _, e := range entries {
		outcome := fmt.Sprintf("%dms", e.ElapsedMS)
		if e.Failed() {
			outcome = s.warn("failed")
		}
		s.printf("%s  %s/%s  %s  %s  %s\n",
			s.dim(e.CreatedAt.Local().Format("01-02 15:04:05")),
			e.ProjectID, e.ChatID, e.Model, outcome,
			truncate(e.Prompt, promptColumn))
	}
}

func (s *Shell) marked(name string, active bool) string {
	if active {
		return "* " + s.accent(name)
	}
	return "  " + name
}

// resolveModelTarget accepts a model id (case-insensitive match against
// available, else taken as given), a quoted id, or a 1-based index.
func resolveModelTarget(input string, available []string) (string, error) {
	raw := strings.TrimSpace(input)
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	} else if len(raw) >= 2 {
		last := raw[len(raw)-1]
		if (raw[0] == '\'' && last == '\'') || (raw[0] == '"' && last == '"') {
			raw = strings.TrimSpace(raw[1 : len(raw)-1])
		}
	}
	if raw == "" {
		return "", fmt.Errorf("empty model")
	}
	for _, model := range available {
		if strings.EqualFold(strings.TrimSpace(model), raw) {
			return strings.TrimSpace(model), nil
		}
	}
	if index, err := strconv.Atoi(raw); err == nil {
		if index < 1 || index > len(available) {
			return "", fmt.Errorf("model index %d out of range", index)
		}
		return strings.TrimSpace(available[index-1]), nil
	}
	return raw, nil
}
