package tui

import (
	"strings"
	"sync"

	"querydesk/internal/chat"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// maxCachedMarkdown bounds the render cache; the oldest entry goes first.
const maxCachedMarkdown = 256

var (
	markdownMu    sync.Mutex
	markdownStyle = "dark"
	markdownCache = newRenderCache()
)

// renderCache holds renders for a single width. A new width starts over.
type renderCache struct {
	width   int
	entries map[string]string
	order   []string
}

func newRenderCache() *renderCache {
	return &renderCache{entries: map[string]string{}}
}

func (c *renderCache) get(width int, content string) (string, bool) {
	if width != c.width {
		return "", false
	}
	v, ok := c.entries[content]
	return v, ok
}

func (c *renderCache) put(width int, content, rendered string) {
	if width != c.width {
		c.width = width
		c.entries = map[string]string{}
		c.order = c.order[:0]
	}
	if _, ok := c.entries[content]; ok {
		return
	}
	if len(c.order) >= maxCachedMarkdown {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
	c.entries[content] = rendered
	c.order = append(c.order, content)
}

func (c *renderCache) len() int {
	return len(c.entries)
}

// SetMarkdownStyle 选择 glamour 标准样式 (dark, light, notty)
// SetMarkdownStyle picks the glamour standard style (dark, light, notty)
func SetMarkdownStyle(style string) {
	markdownMu.Lock()
	defer markdownMu.Unlock()
	if style != markdownStyle {
		markdownStyle = style
		markdownCache = newRenderCache()
	}
}

// RenderMarkdown 使用 Glamour 渲染 markdown 文本，缓存当前宽度的结果
// RenderMarkdown renders markdown text using Glamour; renders at the current width are cached
func RenderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	markdownMu.Lock()
	style := markdownStyle
	if cached, ok := markdownCache.get(width, content); ok {
		markdownMu.Unlock()
		return cached
	}
	markdownMu.Unlock()

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	rendered = strings.Trim(rendered, "\n")

	markdownMu.Lock()
	markdownCache.put(width, content, rendered)
	markdownMu.Unlock()
	return rendered
}

// RenderTranscript 渲染对话：问题靠右，回答靠左
// RenderTranscript lays out a transcript with prompts on the right and responses on the left
func RenderTranscript(turns chat.Transcript, width int, theme Theme) string {
	if width < 10 {
		width = 10
	}
	bubbleWidth := width * 3 / 4
	var blocks []string
	for _, turn := range turns {
		if turn.Prompt != "" {
			prompt := theme.PromptStyle.Render(wrap(turn.Prompt, bubbleWidth-2))
			blocks = append(blocks, lipgloss.PlaceHorizontal(width, lipgloss.Right, prompt))
		}
		if turn.Response != "" {
			body := RenderMarkdown(turn.Response, bubbleWidth-2)
			blocks = append(blocks, theme.ResponseStyle.Render(body))
		}
		blocks = append(blocks, "")
	}
	return strings.Join(blocks, "\n")
}

// wrap hard-wraps text wider than width display cells.
func wrap(text string, width int) string {
	if width <= 0 || lipgloss.Width(text) <= width {
		return text
	}
	return lipgloss.NewStyle().Width(width).Render(text)
}

// truncate shortens s to width display cells.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}
