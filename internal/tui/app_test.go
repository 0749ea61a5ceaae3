package tui

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"querydesk/internal/app"
	"querydesk/internal/backend/backendtest"
	"querydesk/internal/chat"
	"querydesk/internal/config"
	"querydesk/internal/i18n"
	"querydesk/internal/tokenizer"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
)

func newTestModel(t *testing.T) (Model, *app.App, *backendtest.Server) {
	t.Helper()
	i18n.Init("en")
	srv := backendtest.New()
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Backend.BaseURL = srv.URL
	cfg.Catalog.BaseURL = "http://127.0.0.1:1"
	cfg.Catalog.TimeoutMS = 500
	cfg.Storage.BaseDir = filepath.Join(t.TempDir(), "qd")
	cfg.Storage.Journal = false

	svc := app.New(cfg, zerolog.Nop())
	svc.TokenizerFor = func(string) *tokenizer.Tokenizer { return tokenizer.Heuristic() }
	t.Cleanup(func() { _ = svc.Close() })

	m := NewModel(context.Background(), svc)
	m = feed(m, tea.WindowSizeMsg{Width: 140, Height: 40})
	return m, svc, srv
}

func started(t *testing.T, m Model) Model {
	t.Helper()
	return feed(m, runCmd(t, m.startCmd())...)
}

// runCmd 执行命令并展开 BatchMsg / runCmd executes cmd and expands batches
func runCmd(t *testing.T, cmd tea.Cmd) []tea.Msg {
	t.Helper()
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, runCmd(t, c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func feed(m Model, msgs ...tea.Msg) Model {
	for _, msg := range msgs {
		if _, ok := msg.(spinner.TickMsg); ok {
			continue
		}
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func press(m Model, msg tea.KeyMsg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestPanelsHiddenAtStart(t *testing.T) {
	m, _, _ := newTestModel(t)
	if m.showProjects || m.showSettings || m.showNotes {
		t.Fatal("all panels should start hidden")
	}
	if m.focus != focusChat {
		t.Fatalf("focus=%v, want chat", m.focus)
	}
}

func TestTogglePanels(t *testing.T) {
	m, _, _ := newTestModel(t)

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyCtrlP})
	if !m.showProjects || m.focus != focusProjects {
		t.Fatalf("ctrl+p should show and focus projects, show=%v focus=%v", m.showProjects, m.focus)
	}
	if m.chatWidth() != 140-projectsWidth {
		t.Fatalf("chatWidth=%d, want %d", m.chatWidth(), 140-projectsWidth)
	}

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyCtrlE})
	if !m.showNotes || m.focus != focusNotes {
		t.Fatal("ctrl+e should show and focus notes")
	}

	// 隐藏先前面板不改变当前焦点 / Hiding another panel keeps focus
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyCtrlP})
	if m.showProjects || m.focus != focusNotes {
		t.Fatalf("hiding projects should keep notes focus, focus=%v", m.focus)
	}

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyCtrlE})
	if m.showNotes || m.focus != focusChat {
		t.Fatal("hiding the focused panel should return to chat")
	}

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyCtrlO})
	if !m.showSettings || m.focus != focusSettings {
		t.Fatal("ctrl+o should show settings")
	}
	if !strings.Contains(m.View(), "Temp 0.7") {
		t.Fatal("settings bar should list temperature")
	}
}

func TestSubmitClearsInputOnSuccess(t *testing.T) {
	m, svc, srv := newTestModel(t)
	m = started(t, m)

	m.input.SetValue("hello")
	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.submitting {
		t.Fatal("enter should start submitting")
	}
	if !strings.Contains(m.View(), "Loading...") {
		t.Fatal("view should show loading while submitting")
	}

	// 发送中再次回车被忽略 / A second enter while busy is ignored
	if _, again := press(m, tea.KeyMsg{Type: tea.KeyEnter}); again != nil {
		t.Fatal("enter while submitting should be ignored")
	}

	m = feed(m, runCmd(t, cmd)...)
	if m.submitting {
		t.Fatal("submitting should end after the reply")
	}
	if m.input.Value() != "" {
		t.Fatalf("input=%q, want empty after success", m.input.Value())
	}
	snap := svc.Session.Snapshot()
	if len(snap.Transcript) != 1 || snap.Transcript[0].Response != "echo: hello" {
		t.Fatalf("transcript=%+v", snap.Transcript)
	}
	if got := len(srv.Queries()); got != 1 {
		t.Fatalf("queries=%d, want 1", got)
	}
}

func TestSubmitBlankIsIgnored(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = started(t, m)
	m.input.SetValue("   ")
	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil || m.submitting {
		t.Fatal("blank prompt should not be sent")
	}
}

func TestFailedQueryKeepsInput(t *testing.T) {
	m, _, srv := newTestModel(t)
	m = started(t, m)
	srv.SetReply(func(chat.QueryRequest) (string, error) { return "", errors.New("boom") })

	m.input.SetValue("hello")
	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	m = feed(m, runCmd(t, cmd)...)

	if m.input.Value() != "hello" {
		t.Fatalf("input=%q, want kept after failure", m.input.Value())
	}
	if !strings.Contains(m.View(), "Error: boom") {
		t.Fatal("view should show the error line")
	}
}

func TestNewThreadAndLimit(t *testing.T) {
	m, svc, _ := newTestModel(t)
	m = started(t, m)

	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyCtrlT})
	m = feed(m, runCmd(t, cmd)...)
	if got := svc.Session.Snapshot().Active; got != "chat2" {
		t.Fatalf("active=%q, want chat2", got)
	}

	// tab 切换到下一个线程 / tab cycles to the next thread
	m, cmd = press(m, tea.KeyMsg{Type: tea.KeyTab})
	m = feed(m, runCmd(t, cmd)...)
	if got := svc.Session.Snapshot().Active; got != "chat1" {
		t.Fatalf("active=%q, want chat1 after tab", got)
	}

	for svc.Session.CanCreateThread() {
		if _, err := svc.Session.CreateThread(context.Background()); err != nil {
			t.Fatalf("CreateThread: %v", err)
		}
	}
	m, cmd = press(m, tea.KeyMsg{Type: tea.KeyCtrlT})
	if cmd != nil {
		t.Fatal("ctrl+t at the limit should not issue a command")
	}
	if !m.flashErr || !strings.Contains(m.flash, "limit") {
		t.Fatalf("flash=%q, want limit warning", m.flash)
	}
	if len(svc.Session.Snapshot().Threads) != chat.MaxThreads {
		t.Fatalf("threads=%d, want %d", len(svc.Session.Snapshot().Threads), chat.MaxThreads)
	}
}

func TestClearThread(t *testing.T) {
	m, svc, _ := newTestModel(t)
	m = started(t, m)
	if _, err := svc.Session.SendQuery(context.Background(), "q"); err != nil {
		t.Fatalf("SendQuery: %v", err)
	}
	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyCtrlL})
	m = feed(m, runCmd(t, cmd)...)
	if got := svc.Session.Snapshot().Transcript; len(got) != 0 {
		t.Fatalf("transcript=%+v, want cleared", got)
	}
	if !strings.Contains(m.flash, "chat1") {
		t.Fatalf("flash=%q, want cleared message", m.flash)
	}
}

func TestSwitchProjectFromSidebar(t *testing.T) {
	m, svc, srv := newTestModel(t)
	srv.AddProject("p1", map[string]chat.Transcript{"chat4": {{Prompt: "a", Response: "b"}}}, "chat4")
	m = started(t, m)

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyCtrlP})
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	m = feed(m, runCmd(t, cmd)...)

	if svc.ActiveProject() != "p1" {
		t.Fatalf("active project=%q, want p1", svc.ActiveProject())
	}
	if got := svc.Session.Snapshot().Active; got != "chat4" {
		t.Fatalf("active thread=%q, want chat4", got)
	}
	if !strings.Contains(m.View(), "● p1") {
		t.Fatal("projects sidebar should mark p1 active")
	}
}

func TestCreateProjectFromSidebar(t *testing.T) {
	m, svc, srv := newTestModel(t)
	m = started(t, m)

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyCtrlP})
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyCtrlN})
	if m.focus != focusNewProject {
		t.Fatalf("focus=%v, want new project input", m.focus)
	}
	m, _ = press(m, runes("fresh"))
	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	m = feed(m, runCmd(t, cmd)...)

	if svc.ActiveProject() != "fresh" {
		t.Fatalf("active project=%q, want fresh", svc.ActiveProject())
	}
	found := false
	for _, p := range srv.Projects() {
		if p == "fresh" {
			found = true
		}
	}
	if !found {
		t.Fatal("backend should have the new project")
	}
	if m.focus != focusProjects || m.projectInput.Value() != "" {
		t.Fatal("input should reset and focus return to the list")
	}
}

func TestSettingsSteppers(t *testing.T) {
	m, svc, _ := newTestModel(t)
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyCtrlO})

	m, _ = press(m, runes("+"))
	if got := svc.Settings.Snapshot().Temperature; got != 0.8 {
		t.Fatalf("temperature=%v, want 0.8", got)
	}
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyRight})
	m, _ = press(m, runes("-"))
	if got := svc.Settings.Snapshot().TopP; got != 0.9 {
		t.Fatalf("top_p=%v, want 0.9", got)
	}

	m, _ = press(m, runes("m"))
	if m.focus != focusModels {
		t.Fatalf("m should open the model picker, focus=%v", m.focus)
	}
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.focus != focusSettings {
		t.Fatalf("esc should return to settings, focus=%v", m.focus)
	}
}

func TestModelPicker(t *testing.T) {
	m, svc, _ := newTestModel(t)
	m = started(t, m)

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyCtrlK})
	if m.focus != focusModels || len(m.modelMatches) != 1 {
		t.Fatalf("picker focus=%v matches=%v", m.focus, m.modelMatches)
	}
	if !strings.Contains(m.View(), "Model list unavailable") {
		t.Fatal("picker should note the fallback list")
	}

	m, _ = press(m, runes("zzz"))
	if len(m.modelMatches) != 0 || !strings.Contains(m.View(), "No models match") {
		t.Fatalf("filter should leave no matches, got %v", m.modelMatches)
	}
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.focus != focusChat {
		t.Fatalf("enter should close the picker, focus=%v", m.focus)
	}
	if svc.Settings.Model() != svc.Config.Model.Default {
		t.Fatalf("model=%q, want unchanged", svc.Settings.Model())
	}
}

func TestNotesCreateEditSave(t *testing.T) {
	m, _, srv := newTestModel(t)
	m = started(t, m)

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyCtrlE})
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyCtrlN})
	m, _ = press(m, runes("todo.md"))
	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	m = feed(m, runCmd(t, cmd)...)

	if m.focus != focusNoteEditor {
		t.Fatalf("focus=%v, want note editor", m.focus)
	}
	if _, ok := srv.Note("default", "todo.md"); !ok {
		t.Fatal("note should exist on the backend")
	}

	m, _ = press(m, runes("body"))
	m, cmd = press(m, tea.KeyMsg{Type: tea.KeyCtrlS})
	m = feed(m, runCmd(t, cmd)...)

	if got, _ := srv.Note("default", "todo.md"); got != "body" {
		t.Fatalf("saved note=%q, want body", got)
	}
	if !strings.Contains(m.flash, "Saved todo.md") {
		t.Fatalf("flash=%q, want saved message", m.flash)
	}
}

func TestOpenNote(t *testing.T) {
	m, _, srv := newTestModel(t)
	srv.AddNote("default", "plan.md", "step one")
	m = started(t, m)

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyCtrlE})
	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	m = feed(m, runCmd(t, cmd)...)

	if m.noteEditor.Value() != "step one" {
		t.Fatalf("editor=%q, want step one", m.noteEditor.Value())
	}
	if m.focus != focusNoteEditor {
		t.Fatalf("focus=%v, want editor", m.focus)
	}
}

func TestQuitKey(t *testing.T) {
	m, _, _ := newTestModel(t)
	_, cmd := press(m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("ctrl+c should quit")
	}
}
