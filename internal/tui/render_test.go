package tui

import (
	"fmt"
	"strings"
	"testing"

	"querydesk/internal/chat"
)

func TestRenderMarkdown_Basic(t *testing.T) {
	input := "# Hello\n\nThis is **bold** text."
	result := RenderMarkdown(input, 80)
	if result == "" {
		t.Fatal("RenderMarkdown returned empty")
	}
	// Glamour 应该渲染了标题 / Glamour should have rendered the heading
	if !strings.Contains(result, "Hello") {
		t.Fatalf("result should contain 'Hello': %q", result)
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	if RenderMarkdown("", 80) != "" {
		t.Fatal("empty input should return empty")
	}
	if RenderMarkdown("  ", 80) != "" {
		t.Fatal("whitespace input should return empty")
	}
}

func TestRenderMarkdown_CodeBlock(t *testing.T) {
	input := "```go\nfunc main() {}\n```"
	result := RenderMarkdown(input, 80)
	if !strings.Contains(result, "func") {
		t.Fatalf("code block should contain 'func': %q", result)
	}
}

func TestRenderMarkdown_Cached(t *testing.T) {
	first := RenderMarkdown("some *text*", 60)
	second := RenderMarkdown("some *text*", 60)
	if first != second {
		t.Fatalf("cached render differs: %q vs %q", first, second)
	}
}

func TestRenderMarkdown_ResizeDropsOldWidth(t *testing.T) {
	RenderMarkdown("resize *one*", 50)
	RenderMarkdown("resize *two*", 50)
	RenderMarkdown("resize *one*", 70)

	markdownMu.Lock()
	defer markdownMu.Unlock()
	if n := markdownCache.len(); n != 1 {
		t.Fatalf("cache entries=%d after resize, want 1", n)
	}
	if _, ok := markdownCache.get(50, "resize *one*"); ok {
		t.Fatal("render at old width should be gone")
	}
}

func TestRenderCache_Bounded(t *testing.T) {
	c := newRenderCache()
	for i := 0; i < maxCachedMarkdown+10; i++ {
		c.put(40, fmt.Sprintf("msg %d", i), "r")
	}
	if n := c.len(); n != maxCachedMarkdown {
		t.Fatalf("entries=%d, want %d", n, maxCachedMarkdown)
	}
	if _, ok := c.get(40, "msg 0"); ok {
		t.Fatal("oldest entry should be evicted")
	}
	if _, ok := c.get(40, fmt.Sprintf("msg %d", maxCachedMarkdown+9)); !ok {
		t.Fatal("newest entry should be cached")
	}
}

func TestRenderTranscript_Alignment(t *testing.T) {
	turns := chat.Transcript{{Prompt: "why?", Response: "because"}}
	out := RenderTranscript(turns, 60, DarkTheme())

	var promptLine string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "why?") {
			promptLine = line
		}
	}
	if promptLine == "" {
		t.Fatalf("prompt missing from %q", out)
	}
	// 问题靠右 / Prompt is right-aligned
	if idx := strings.Index(promptLine, "why?"); idx < 30 {
		t.Fatalf("prompt should be right-aligned, found at column %d: %q", idx, promptLine)
	}
	if !strings.Contains(out, "because") {
		t.Fatalf("response missing from %q", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate short=%q", got)
	}
	if got := truncate("a-very-long-name", 6); got != "a-ver…" {
		t.Fatalf("truncate long=%q, want a-ver…", got)
	}
	if got := truncate("项目名称很长", 6); got != "项目…" {
		t.Fatalf("truncate wide=%q, want 项目…", got)
	}
	if got := truncate("x", 0); got != "" {
		t.Fatalf("truncate zero width=%q", got)
	}
}
