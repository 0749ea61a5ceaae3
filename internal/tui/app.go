package tui

import (
	"context"
	"errors"
	"strings"

	"querydesk/internal/app"
	"querydesk/internal/chat"
	"querydesk/internal/i18n"
	"querydesk/internal/session"
	"querydesk/internal/settings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// focus 是接收按键的区域
// focus is the region that receives key presses
type focus int

const (
	focusChat focus = iota
	focusProjects
	focusNewProject
	focusSettings
	focusNotes
	focusNoteEditor
	focusNewNote
	focusModels
)

const (
	projectsWidth  = 26
	notesWidth     = 40
	inputHeight    = 3
	settingsHeight = 2
	minChatWidth   = 20
)

// Model 是 querydesk 的 Bubble Tea 模型
// Model is the querydesk Bubble Tea model
type Model struct {
	svc    *app.App
	ctx    context.Context
	theme  Theme
	keys   KeyMap
	locale *i18n.I18n

	width  int
	height int
	ready  bool

	viewport     viewport.Model
	input        textarea.Model
	spinner      spinner.Model
	projectInput textinput.Model
	noteInput    textinput.Model
	noteEditor   textarea.Model
	modelFilter  textinput.Model

	focus        focus
	showProjects bool
	showSettings bool
	showNotes    bool

	projectCursor int
	noteCursor    int
	paramCursor   int
	modelCursor   int
	modelMatches  []string

	submitting bool
	tokens     int
	flash      string
	flashErr   bool
}

// NewModel 创建 TUI 模型，所有侧栏初始隐藏
// NewModel creates the TUI model with every panel hidden
func NewModel(ctx context.Context, svc *app.App) Model {
	theme := DarkTheme()
	keys := DefaultKeyMap()
	locale := i18n.Global()

	ta := textarea.New()
	ta.Placeholder = locale.T("chat.placeholder")
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline = keys.Newline
	ta.Focus()

	editor := textarea.New()
	editor.Placeholder = locale.T("notes.none")
	editor.ShowLineNumbers = false
	editor.CharLimit = 0

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(theme.Secondary)),
	)

	return Model{
		svc:          svc,
		ctx:          ctx,
		theme:        theme,
		keys:         keys,
		locale:       locale,
		viewport:     viewport.New(80, 20),
		input:        ta,
		spinner:      sp,
		projectInput: newLineInput(locale.T("projects.placeholder")),
		noteInput:    newLineInput(locale.T("notes.placeholder")),
		noteEditor:   editor,
		modelFilter:  newLineInput(locale.T("models.placeholder")),
		focus:        focusChat,
	}
}

func newLineInput(placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Prompt = "> "
	ti.CharLimit = 128
	return ti
}

// Init 实现 tea.Model
// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.startCmd())
}

// Update 实现 tea.Model
// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		if !m.submitting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StartedMsg:
		m.reportErr(msg.Err)
		m.syncCursors()
		m.refreshChat()
		return m, m.tokensCmd()

	case ProjectSwitchedMsg:
		if msg.Err != nil {
			m.reportErr(msg.Err)
		} else {
			m.setFlash(m.locale.T("projects.switched", msg.Project), false)
		}
		m.afterProjectChange()
		return m, m.tokensCmd()

	case ProjectCreatedMsg:
		if msg.Err != nil {
			m.reportErr(msg.Err)
		} else {
			m.projectInput.Reset()
			m.setFocus(focusProjects)
			m.setFlash(m.locale.T("projects.created", strings.TrimSpace(msg.Project)), false)
		}
		m.afterProjectChange()
		return m, m.tokensCmd()

	case ThreadMsg:
		return m.handleThreadMsg(msg)

	case QueryDoneMsg:
		m.submitting = false
		switch {
		case msg.Err == nil:
			m.input.Reset()
		case errors.Is(msg.Err, session.ErrStale), errors.Is(msg.Err, session.ErrEmptyPrompt):
		default:
			m.reportErr(msg.Err)
		}
		m.refreshChat()
		return m, m.tokensCmd()

	case NoteMsg:
		return m.handleNoteMsg(msg)

	case TokensMsg:
		m.tokens = msg.Count
		return m, nil
	}

	return m.updateFocused(msg)
}

func (m Model) handleThreadMsg(msg ThreadMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Err == nil:
		switch msg.Action {
		case threadCreated:
			m.setFlash(m.locale.T("chat.created", msg.Thread), false)
		case threadCleared:
			m.setFlash(m.locale.T("chat.cleared", msg.Thread), false)
		}
	case errors.Is(msg.Err, session.ErrStale):
	case errors.Is(msg.Err, session.ErrThreadLimit):
		m.setFlash(m.locale.T("chat.limit", chat.MaxThreads), true)
	default:
		m.reportErr(msg.Err)
	}
	m.refreshChat()
	return m, m.tokensCmd()
}

func (m Model) handleNoteMsg(msg NoteMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.reportErr(msg.Err)
		if msg.Action == noteOpened {
			m.noteEditor.Reset()
		}
		return m, nil
	}
	snap := m.svc.Notes.Snapshot()
	switch msg.Action {
	case noteOpened:
		m.noteEditor.SetValue(snap.Content)
		m.setFocus(focusNoteEditor)
	case noteCreated:
		m.noteInput.Reset()
		m.noteEditor.Reset()
		m.noteCursor = indexOf(snap.Notes, snap.Selected)
		m.setFocus(focusNoteEditor)
		m.setFlash(m.locale.T("notes.created", msg.Note), false)
	case noteSaved:
		m.setFlash(m.locale.T("notes.saved", msg.Note), false)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.ToggleProjects):
		m.togglePanel(&m.showProjects, focusProjects)
		return m, nil
	case key.Matches(msg, m.keys.ToggleSettings):
		m.togglePanel(&m.showSettings, focusSettings)
		return m, nil
	case key.Matches(msg, m.keys.ToggleNotes):
		m.togglePanel(&m.showNotes, focusNotes)
		return m, nil
	}

	switch m.focus {
	case focusModels:
		return m.handlePickerKey(msg)
	case focusProjects:
		return m.handleProjectsKey(msg)
	case focusNewProject:
		return m.handleNewProjectKey(msg)
	case focusSettings:
		return m.handleSettingsKey(msg)
	case focusNotes:
		return m.handleNotesKey(msg)
	case focusNoteEditor:
		return m.handleEditorKey(msg)
	case focusNewNote:
		return m.handleNewNoteKey(msg)
	default:
		return m.handleChatKey(msg)
	}
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	snap := m.svc.Session.Snapshot()
	switch {
	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	case key.Matches(msg, m.keys.NextThread):
		if id, ok := cycle(snap.Threads, snap.Active, 1); ok {
			return m, m.selectThreadCmd(id)
		}
		return m, nil
	case key.Matches(msg, m.keys.PrevThread):
		if id, ok := cycle(snap.Threads, snap.Active, -1); ok {
			return m, m.selectThreadCmd(id)
		}
		return m, nil
	case key.Matches(msg, m.keys.NewThread):
		if !snap.CanCreate {
			m.setFlash(m.locale.T("chat.limit", chat.MaxThreads), true)
			return m, nil
		}
		return m, m.createThreadCmd()
	case key.Matches(msg, m.keys.ClearThread):
		if snap.Active == "" {
			return m, nil
		}
		return m, m.clearThreadCmd(snap.Active)
	case key.Matches(msg, m.keys.ModelPicker):
		m.openPicker()
		return m, nil
	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit 发送输入框内容；发送中或内容为空时忽略
// submit sends the input; ignored while a query is in flight or the input is blank
func (m Model) submit() (tea.Model, tea.Cmd) {
	prompt := m.input.Value()
	if m.submitting || strings.TrimSpace(prompt) == "" {
		return m, nil
	}
	m.submitting = true
	m.flash = ""
	return m, tea.Batch(m.queryCmd(prompt), m.spinner.Tick)
}

func (m Model) handleProjectsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	list := m.svc.Projects.Projects()
	switch {
	case key.Matches(msg, m.keys.Back):
		m.setFocus(focusChat)
	case key.Matches(msg, m.keys.Up):
		m.projectCursor = clampCursor(m.projectCursor-1, len(list))
	case key.Matches(msg, m.keys.Down):
		m.projectCursor = clampCursor(m.projectCursor+1, len(list))
	case key.Matches(msg, m.keys.NewItem):
		m.setFocus(focusNewProject)
	case key.Matches(msg, m.keys.Submit):
		if m.projectCursor < len(list) {
			return m, m.switchProjectCmd(list[m.projectCursor])
		}
	}
	return m, nil
}

func (m Model) handleNewProjectKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.projectInput.Reset()
		m.setFocus(focusProjects)
		return m, nil
	case tea.KeyEnter:
		name := strings.TrimSpace(m.projectInput.Value())
		if name == "" {
			return m, nil
		}
		return m, m.createProjectCmd(name)
	}
	var cmd tea.Cmd
	m.projectInput, cmd = m.projectInput.Update(msg)
	return m, cmd
}

func (m Model) handleSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	params := settings.Params()
	switch {
	case key.Matches(msg, m.keys.Back):
		m.setFocus(focusChat)
	case key.Matches(msg, m.keys.Left):
		m.paramCursor = (m.paramCursor + len(params) - 1) % len(params)
	case key.Matches(msg, m.keys.Right):
		m.paramCursor = (m.paramCursor + 1) % len(params)
	case key.Matches(msg, m.keys.Increase):
		_, _ = m.svc.Settings.Increase(params[m.paramCursor])
	case key.Matches(msg, m.keys.Decrease):
		_, _ = m.svc.Settings.Decrease(params[m.paramCursor])
	case key.Matches(msg, m.keys.Submit), msg.String() == "m":
		m.openPicker()
	}
	return m, nil
}

func (m Model) handleNotesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	snap := m.svc.Notes.Snapshot()
	switch {
	case key.Matches(msg, m.keys.Back):
		m.setFocus(focusChat)
	case key.Matches(msg, m.keys.Up):
		m.noteCursor = clampCursor(m.noteCursor-1, len(snap.Notes))
	case key.Matches(msg, m.keys.Down):
		m.noteCursor = clampCursor(m.noteCursor+1, len(snap.Notes))
	case key.Matches(msg, m.keys.NewItem):
		m.setFocus(focusNewNote)
	case key.Matches(msg, m.keys.Save):
		if snap.Selected != "" {
			return m, m.saveNoteCmd(snap.Selected)
		}
	case key.Matches(msg, m.keys.Submit):
		if m.noteCursor < len(snap.Notes) {
			return m, m.openNoteCmd(snap.Notes[m.noteCursor])
		}
	}
	return m, nil
}

func (m Model) handleEditorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	snap := m.svc.Notes.Snapshot()
	switch {
	case key.Matches(msg, m.keys.Back):
		m.svc.Notes.SetContent(m.noteEditor.Value())
		m.setFocus(focusNotes)
		return m, nil
	case key.Matches(msg, m.keys.Save):
		if snap.Selected == "" {
			m.setFlash(m.locale.T("notes.none"), true)
			return m, nil
		}
		m.svc.Notes.SetContent(m.noteEditor.Value())
		return m, m.saveNoteCmd(snap.Selected)
	}
	if snap.Selected == "" {
		return m, nil
	}
	var cmd tea.Cmd
	m.noteEditor, cmd = m.noteEditor.Update(msg)
	m.svc.Notes.SetContent(m.noteEditor.Value())
	return m, cmd
}

func (m Model) handleNewNoteKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.noteInput.Reset()
		m.setFocus(focusNotes)
		return m, nil
	case tea.KeyEnter:
		name := strings.TrimSpace(m.noteInput.Value())
		if name == "" {
			return m, nil
		}
		return m, m.createNoteCmd(name)
	}
	var cmd tea.Cmd
	m.noteInput, cmd = m.noteInput.Update(msg)
	return m, cmd
}

func (m Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.closePicker()
		return m, nil
	case tea.KeyUp:
		m.modelCursor = clampCursor(m.modelCursor-1, len(m.modelMatches))
		return m, nil
	case tea.KeyDown:
		m.modelCursor = clampCursor(m.modelCursor+1, len(m.modelMatches))
		return m, nil
	case tea.KeyEnter:
		if m.modelCursor < len(m.modelMatches) {
			model := m.modelMatches[m.modelCursor]
			if err := m.svc.SelectModel(model); err != nil {
				m.reportErr(err)
			} else {
				m.setFlash(m.locale.T("models.selected", model), false)
			}
		}
		m.closePicker()
		return m, m.tokensCmd()
	}
	var cmd tea.Cmd
	m.modelFilter, cmd = m.modelFilter.Update(msg)
	m.modelMatches = m.svc.Catalog.Filter(m.modelFilter.Value())
	m.modelCursor = clampCursor(m.modelCursor, len(m.modelMatches))
	return m, cmd
}

// updateFocused 把其它消息（光标闪烁等）交给当前输入组件
// updateFocused forwards other messages (cursor blink and the like) to the focused input
func (m Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case focusChat:
		m.input, cmd = m.input.Update(msg)
	case focusNewProject:
		m.projectInput, cmd = m.projectInput.Update(msg)
	case focusNoteEditor:
		m.noteEditor, cmd = m.noteEditor.Update(msg)
	case focusNewNote:
		m.noteInput, cmd = m.noteInput.Update(msg)
	case focusModels:
		m.modelFilter, cmd = m.modelFilter.Update(msg)
	}
	return m, cmd
}

// --- 状态辅助 / State helpers ---

func (m *Model) togglePanel(shown *bool, target focus) {
	*shown = !*shown
	switch {
	case *shown:
		m.setFocus(target)
	case panelOf(m.focus) == target:
		m.setFocus(focusChat)
	}
	m.layout()
}

func panelOf(f focus) focus {
	switch f {
	case focusNewProject:
		return focusProjects
	case focusNoteEditor, focusNewNote:
		return focusNotes
	case focusModels:
		return focusSettings
	}
	return f
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	m.input.Blur()
	m.projectInput.Blur()
	m.noteInput.Blur()
	m.noteEditor.Blur()
	m.modelFilter.Blur()
	switch f {
	case focusChat:
		m.input.Focus()
	case focusNewProject:
		m.projectInput.Focus()
	case focusNoteEditor:
		m.noteEditor.Focus()
	case focusNewNote:
		m.noteInput.Focus()
	case focusModels:
		m.modelFilter.Focus()
	}
}

func (m *Model) openPicker() {
	m.modelFilter.Reset()
	m.modelMatches = m.svc.Catalog.Filter("")
	m.modelCursor = clampCursor(indexOf(m.modelMatches, m.svc.Settings.Model()), len(m.modelMatches))
	m.setFocus(focusModels)
}

func (m *Model) closePicker() {
	m.modelFilter.Reset()
	m.modelMatches = nil
	if m.showSettings {
		m.setFocus(focusSettings)
	} else {
		m.setFocus(focusChat)
	}
}

func (m *Model) afterProjectChange() {
	m.noteEditor.Reset()
	if panelOf(m.focus) == focusNotes && m.focus != focusNotes {
		m.setFocus(focusNotes)
	}
	m.noteCursor = 0
	m.syncCursors()
	m.refreshChat()
}

func (m *Model) syncCursors() {
	list := m.svc.Projects.Projects()
	if i := indexOf(list, m.svc.ActiveProject()); i >= 0 {
		m.projectCursor = i
	}
	m.projectCursor = clampCursor(m.projectCursor, len(list))
	m.noteCursor = clampCursor(m.noteCursor, len(m.svc.Notes.Snapshot().Notes))
}

func (m *Model) setFlash(text string, isErr bool) {
	m.flash = text
	m.flashErr = isErr
}

func (m *Model) reportErr(err error) {
	if err == nil {
		return
	}
	m.setFlash(m.locale.T("error.generic", err.Error()), true)
}

// layout 根据窗口大小和可见侧栏分配尺寸
// layout sizes components from the window and the visible panels
func (m *Model) layout() {
	if !m.ready {
		return
	}
	w := m.chatWidth()
	middle := m.middleHeight()

	vpHeight := middle - 1 - 1 - (inputHeight + 1)
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = w
	m.viewport.Height = vpHeight
	m.input.SetWidth(w)

	m.projectInput.Width = projectsWidth - 6
	m.noteInput.Width = notesWidth - 6
	m.modelFilter.Width = w - 4
	m.noteEditor.SetWidth(notesWidth - 2)
	editorHeight := middle / 2
	if editorHeight < 3 {
		editorHeight = 3
	}
	m.noteEditor.SetHeight(editorHeight)
	m.refreshChat()
}

func (m Model) chatWidth() int {
	w := m.width
	if m.showProjects {
		w -= projectsWidth
	}
	if m.showNotes {
		w -= notesWidth
	}
	if w < minChatWidth {
		w = minChatWidth
	}
	return w
}

func (m Model) middleHeight() int {
	h := m.height - 1
	if m.showSettings {
		h -= settingsHeight
	}
	if h < 8 {
		h = 8
	}
	return h
}

// refreshChat 重新渲染当前对话到视口
// refreshChat re-renders the active transcript into the viewport
func (m *Model) refreshChat() {
	snap := m.svc.Session.Snapshot()
	if len(snap.Transcript) == 0 {
		m.viewport.SetContent(m.theme.MutedStyle.Render(m.locale.T("chat.empty")))
		return
	}
	m.viewport.SetContent(RenderTranscript(snap.Transcript, m.viewport.Width, m.theme))
	m.viewport.GotoBottom()
}

func cycle(ids []string, current string, dir int) (string, bool) {
	if len(ids) < 2 {
		return "", false
	}
	i := indexOf(ids, current)
	if i < 0 {
		return ids[0], true
	}
	return ids[(i+dir+len(ids))%len(ids)], true
}

func indexOf(items []string, needle string) int {
	for i, item := range items {
		if item == needle {
			return i
		}
	}
	return -1
}

func clampCursor(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Run 启动 TUI
// Run starts the TUI
func Run(ctx context.Context, svc *app.App, altScreen bool) error {
	if lipgloss.HasDarkBackground() {
		SetMarkdownStyle("dark")
	} else {
		SetMarkdownStyle("light")
	}
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithMouseCellMotion()}
	if altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(NewModel(ctx, svc), opts...)
	_, err := p.Run()
	return err
}
