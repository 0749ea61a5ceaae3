package tui

import (
	"querydesk/internal/chat"

	tea "github.com/charmbracelet/bubbletea"
)

// StartedMsg 启动加载完成
// StartedMsg reports that projects, models and the default project are loaded
type StartedMsg struct{ Err error }

// ProjectSwitchedMsg 项目切换完成
// ProjectSwitchedMsg reports a finished project switch
type ProjectSwitchedMsg struct {
	Project string
	Err     error
}

// ProjectCreatedMsg 项目创建完成
// ProjectCreatedMsg reports a finished project creation
type ProjectCreatedMsg struct {
	Project string
	Err     error
}

// ThreadMsg 对话线程操作完成 (选择、新建、清空)
// ThreadMsg reports a finished thread select, create or clear
type ThreadMsg struct {
	Thread string
	Action threadAction
	Err    error
}

type threadAction int

const (
	threadSelected threadAction = iota
	threadCreated
	threadCleared
)

// QueryDoneMsg 查询完成
// QueryDoneMsg carries the result of a submitted prompt
type QueryDoneMsg struct {
	Turn chat.Turn
	Err  error
}

// NoteMsg 笔记操作完成 (打开、保存、新建)
// NoteMsg reports a finished note open, save or create
type NoteMsg struct {
	Note   string
	Action noteAction
	Err    error
}

type noteAction int

const (
	noteOpened noteAction = iota
	noteSaved
	noteCreated
)

// TokensMsg 当前对话的 token 估算
// TokensMsg carries the token estimate of the active transcript
type TokensMsg struct{ Count int }

func (m Model) startCmd() tea.Cmd {
	svc, ctx := m.svc, m.ctx
	return func() tea.Msg {
		return StartedMsg{Err: svc.Start(ctx)}
	}
}

func (m Model) switchProjectCmd(project string) tea.Cmd {
	svc, ctx := m.svc, m.ctx
	return func() tea.Msg {
		return ProjectSwitchedMsg{Project: project, Err: svc.SwitchProject(ctx, project)}
	}
}

func (m Model) createProjectCmd(name string) tea.Cmd {
	svc, ctx := m.svc, m.ctx
	return func() tea.Msg {
		return ProjectCreatedMsg{Project: name, Err: svc.CreateProject(ctx, name)}
	}
}

func (m Model) selectThreadCmd(id string) tea.Cmd {
	svc, ctx := m.svc, m.ctx
	return func() tea.Msg {
		return ThreadMsg{Thread: id, Action: threadSelected, Err: svc.Session.SelectThread(ctx, id)}
	}
}

func (m Model) createThreadCmd() tea.Cmd {
	svc, ctx := m.svc, m.ctx
	return func() tea.Msg {
		id, err := svc.Session.CreateThread(ctx)
		return ThreadMsg{Thread: id, Action: threadCreated, Err: err}
	}
}

func (m Model) clearThreadCmd(id string) tea.Cmd {
	svc, ctx := m.svc, m.ctx
	return func() tea.Msg {
		return ThreadMsg{Thread: id, Action: threadCleared, Err: svc.Session.ClearThread(ctx, id)}
	}
}

func (m Model) queryCmd(prompt string) tea.Cmd {
	svc, ctx := m.svc, m.ctx
	return func() tea.Msg {
		turn, err := svc.Session.SendQuery(ctx, prompt)
		return QueryDoneMsg{Turn: turn, Err: err}
	}
}

func (m Model) openNoteCmd(name string) tea.Cmd {
	svc, ctx := m.svc, m.ctx
	return func() tea.Msg {
		return NoteMsg{Note: name, Action: noteOpened, Err: svc.Notes.Select(ctx, name)}
	}
}

func (m Model) saveNoteCmd(name string) tea.Cmd {
	svc, ctx := m.svc, m.ctx
	return func() tea.Msg {
		return NoteMsg{Note: name, Action: noteSaved, Err: svc.Notes.SaveSelected(ctx)}
	}
}

func (m Model) createNoteCmd(name string) tea.Cmd {
	svc, ctx := m.svc, m.ctx
	return func() tea.Msg {
		return NoteMsg{Note: name, Action: noteCreated, Err: svc.CreateNote(ctx, name)}
	}
}

func (m Model) tokensCmd() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		return TokensMsg{Count: svc.TokenCount()}
	}
}
