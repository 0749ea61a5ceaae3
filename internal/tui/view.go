package tui

import (
	"fmt"
	"strings"

	"querydesk/internal/session"
	"querydesk/internal/settings"

	"github.com/charmbracelet/lipgloss"
)

// View 实现 tea.Model
// View implements tea.Model
func (m Model) View() string {
	if !m.ready {
		return m.locale.T("status.loading")
	}

	middle := m.middleHeight()
	var center string
	if m.focus == focusModels {
		center = m.renderPicker(m.chatWidth(), middle)
	} else {
		center = m.renderChat(middle)
	}

	var cols []string
	if m.showProjects {
		cols = append(cols, m.renderProjects(middle))
	}
	cols = append(cols, center)
	if m.showNotes {
		cols = append(cols, m.renderNotes(middle))
	}

	var rows []string
	if m.showSettings {
		rows = append(rows, m.renderSettingsBar())
	}
	rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cols...))
	rows = append(rows, m.renderStatusBar())
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// renderChat 渲染线程标签、对话、最近结果行和输入框
// renderChat renders thread tabs, the transcript, the last result line and the input
func (m Model) renderChat(height int) string {
	w := m.chatWidth()
	snap := m.svc.Session.Snapshot()
	parts := []string{
		m.renderTabs(snap, w),
		m.viewport.View(),
		m.renderResultLine(snap, w),
		m.theme.InputStyle.Width(w).Render(m.input.View()),
	}
	return lipgloss.NewStyle().Width(w).Height(height).MaxHeight(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) renderTabs(snap session.Snapshot, width int) string {
	var tabs []string
	for _, id := range snap.Threads {
		if id == snap.Active {
			tabs = append(tabs, m.theme.ActiveTabStyle.Render(id))
		} else {
			tabs = append(tabs, m.theme.InactiveTabStyle.Render(id))
		}
	}
	newTab := "[" + m.locale.T("chat.new") + "]"
	if snap.CanCreate {
		tabs = append(tabs, m.theme.InactiveTabStyle.Render(newTab))
	} else {
		tabs = append(tabs, m.theme.DisabledTabStyle.Render(newTab))
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
}

func (m Model) renderResultLine(snap session.Snapshot, width int) string {
	switch {
	case m.submitting:
		return m.spinner.View() + " " + m.locale.T("status.loading")
	case snap.State == session.StateFailed:
		return m.theme.ErrorStyle.Render(truncate(firstLine(snap.LastResponse), width))
	}
	return ""
}

// renderSettingsBar 渲染顶部设置栏：模型和四个参数
// renderSettingsBar renders the top bar with the model and the four steppers
func (m Model) renderSettingsBar() string {
	v := m.svc.Settings.Snapshot()
	focused := m.focus == focusSettings

	items := []string{
		m.theme.TitleStyle.Render(m.locale.T("settings.model") + ":"),
		" " + truncate(v.Model, 40) + " ",
	}
	for i, p := range settings.Params() {
		r, _ := settings.RangeOf(p)
		label := fmt.Sprintf("%s %s", r.Label, settings.Format(p, v.Get(p)))
		if focused && i == m.paramCursor {
			items = append(items, m.theme.ActiveStepStyle.Render("◂ "+label+" ▸"))
		} else {
			items = append(items, m.theme.StepperStyle.Render(label))
		}
	}
	if focused {
		items = append(items, " "+m.theme.MutedStyle.Render(m.locale.T("settings.hint")))
	}
	line := lipgloss.JoinHorizontal(lipgloss.Top, items...)
	return m.theme.SettingsBarStyle.Width(m.width).MaxHeight(settingsHeight).Render(line)
}

// renderProjects 渲染左侧项目栏
// renderProjects renders the left projects sidebar
func (m Model) renderProjects(height int) string {
	inner := projectsWidth - 2
	focused := m.focus == focusProjects
	active := m.svc.ActiveProject()

	lines := []string{m.theme.TitleStyle.Render(m.locale.T("panel.projects")), ""}
	list := m.svc.Projects.Projects()
	if len(list) == 0 {
		lines = append(lines, m.theme.MutedStyle.Render(m.locale.T("projects.empty")))
	}
	for i, name := range list {
		marker := "  "
		if name == active {
			marker = "● "
		}
		line := marker + truncate(name, inner-2)
		if focused && i == m.projectCursor {
			line = m.theme.SelectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	lines = append(lines, "", m.projectInput.View())
	return m.sidebar(inner, height, lines, panelOf(m.focus) == focusProjects)
}

// renderNotes 渲染右侧笔记栏：列表、编辑器、新建输入
// renderNotes renders the right notes sidebar with list, editor and new-note input
func (m Model) renderNotes(height int) string {
	inner := notesWidth - 2
	focused := m.focus == focusNotes
	snap := m.svc.Notes.Snapshot()

	lines := []string{m.theme.TitleStyle.Render(m.locale.T("panel.notes")), ""}
	if len(snap.Notes) == 0 {
		lines = append(lines, m.theme.MutedStyle.Render(m.locale.T("notes.empty")))
	}
	for i, name := range snap.Notes {
		marker := "  "
		if name == snap.Selected {
			marker = "✎ "
		}
		line := marker + truncate(name, inner-2)
		if focused && i == m.noteCursor {
			line = m.theme.SelectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	lines = append(lines, "", m.noteInput.View(), "")

	if snap.Selected == "" {
		lines = append(lines, m.theme.MutedStyle.Render(m.locale.T("notes.none")))
	} else {
		lines = append(lines, m.theme.MutedStyle.Render(truncate(snap.Selected, inner)), m.noteEditor.View())
	}
	switch {
	case snap.Saving:
		lines = append(lines, m.theme.MutedStyle.Render(m.locale.T("status.saving")))
	case snap.Err != "":
		lines = append(lines, m.theme.ErrorStyle.Render(truncate(snap.Err, inner)))
	}
	lines = append(lines, m.theme.MutedStyle.Render(truncate(m.locale.T("notes.hint"), inner)))
	return m.sidebar(inner, height, lines, panelOf(m.focus) == focusNotes)
}

func (m Model) sidebar(inner, height int, lines []string, focused bool) string {
	style := m.theme.SidebarStyle.Width(inner).Height(height - 2).MaxHeight(height)
	if focused {
		style = style.BorderForeground(m.theme.Primary)
	}
	return style.Render(strings.Join(lines, "\n"))
}

// renderPicker 渲染模型选择器：过滤输入和匹配列表
// renderPicker renders the model picker with its filter and matches
func (m Model) renderPicker(width, height int) string {
	lines := []string{
		m.theme.TitleStyle.Render(m.locale.T("panel.models")),
		m.modelFilter.View(),
		"",
	}
	if m.svc.Catalog.Err() != nil {
		lines = append(lines, m.theme.MutedStyle.Render(m.locale.T("models.fallback")))
	}
	if len(m.modelMatches) == 0 {
		lines = append(lines, m.theme.MutedStyle.Render(m.locale.T("models.none")))
	}

	rows := height - len(lines) - 1
	if rows < 1 {
		rows = 1
	}
	start := 0
	if m.modelCursor >= rows {
		start = m.modelCursor - rows + 1
	}
	current := m.svc.Settings.Model()
	for i := start; i < len(m.modelMatches) && i < start+rows; i++ {
		id := m.modelMatches[i]
		marker := "  "
		if id == current {
			marker = "● "
		}
		line := marker + truncate(id, width-2)
		if i == m.modelCursor {
			line = m.theme.SelectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return lipgloss.NewStyle().Width(width).Height(height).MaxHeight(height).Render(strings.Join(lines, "\n"))
}

// renderStatusBar 渲染底部状态栏
// renderStatusBar renders the bottom status bar
func (m Model) renderStatusBar() string {
	snap := m.svc.Session.Snapshot()
	status := m.locale.T("status.ready")
	switch {
	case m.submitting:
		status = m.locale.T("status.loading")
	case snap.State == session.StateFailed:
		status = m.locale.T("status.failed")
	}
	left := fmt.Sprintf(" %s: %s · %s: %s · %s · %s · %s ",
		m.locale.T("status.project"), m.svc.ActiveProject(),
		m.locale.T("status.thread"), snap.Active,
		m.svc.Settings.Model(),
		m.locale.T("status.tokens", m.tokens),
		status)

	right := m.theme.MutedStyle.Render(m.locale.T("help.keys"))
	if m.flash != "" {
		if m.flashErr {
			right = m.theme.ErrorStyle.Render(m.flash)
		} else {
			right = m.theme.SuccessStyle.Render(m.flash)
		}
	}
	line := left + right
	return m.theme.StatusBarStyle.Width(m.width).MaxWidth(m.width).MaxHeight(1).Render(line)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
