package tokenizer

import (
	"strings"
	"sync"

	"querydesk/internal/chat"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Tokenizer token 计数器，支持 tiktoken 和启发式回退
// Tokenizer counts tokens with tiktoken, falling back to a heuristic
type Tokenizer struct {
	encoder      *tiktoken.Tiktoken
	encodingName string
	fallback     bool // 是否使用启发式回退 / Whether using heuristic fallback
	mu           sync.Mutex
}

// New 创建 tokenizer，如果 tiktoken 初始化失败则回退到启发式
// New creates a tokenizer, falling back to the heuristic if tiktoken init fails
func New(encodingName string) *Tokenizer {
	t := &Tokenizer{encodingName: encodingName}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		// 离线环境可能没有 BPE 缓存
		// Offline environments may lack the BPE cache
		t.fallback = true
		return t
	}
	t.encoder = enc
	return t
}

// Heuristic returns a tokenizer that never loads an encoding.
func Heuristic() *Tokenizer {
	return &Tokenizer{encodingName: "heuristic", fallback: true}
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*Tokenizer{}
)

// ForModel 根据模型名选择编码，同一编码只加载一次
// ForModel picks the encoding for a model id; each encoding loads once
func ForModel(model string) *Tokenizer {
	name := modelToEncoding(model)
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if t, ok := cache[name]; ok {
		return t
	}
	t := New(name)
	cache[name] = t
	return t
}

// CountTranscript 计算对话记录的 token 数
// CountTranscript returns the token count of a transcript
func (t *Tokenizer) CountTranscript(turns chat.Transcript) int {
	total := 0
	for _, turn := range turns {
		total += t.countTurn(turn)
	}
	return total
}

// CountText 计算单个文本的 token 数
// CountText counts tokens for a single text string
func (t *Tokenizer) CountText(text string) int {
	if text == "" {
		return 0
	}
	if t.fallback {
		return heuristicTokenCount(text)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.encoder.Encode(text, nil, nil))
}

// IsPrecise 返回是否使用精确计数
// IsPrecise reports whether tiktoken is in use
func (t *Tokenizer) IsPrecise() bool {
	return !t.fallback
}

func (t *Tokenizer) EncodingName() string {
	return t.encodingName
}

// A turn is a user and an assistant message; ~4 tokens of framing each.
func (t *Tokenizer) countTurn(turn chat.Turn) int {
	tokens := 0
	if turn.Prompt != "" {
		tokens += 4 + t.CountText(turn.Prompt)
	}
	if turn.Response != "" {
		tokens += 4 + t.CountText(turn.Response)
	}
	return tokens
}

// heuristicTokenCount 启发式 token 估算
// heuristicTokenCount estimates tokens for mixed CJK/English text
func heuristicTokenCount(text string) int {
	if text == "" {
		return 0
	}
	cjkCount := 0
	asciiCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		} else {
			asciiCount++
		}
	}
	// CJK: ~1.5 tokens per character, ASCII: ~0.25 tokens per character
	estimate := int(float64(cjkCount)*1.5 + float64(asciiCount)*0.25)
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols
		(r >= 0xFF00 && r <= 0xFFEF) || // Fullwidth Forms
		(r >= 0xAC00 && r <= 0xD7AF) // Korean Hangul
}

// modelToEncoding 根据模型名推断编码；OpenRouter 的 vendor/ 前缀会被忽略
// modelToEncoding maps a model id to an encoding, ignoring an OpenRouter vendor/ prefix
func modelToEncoding(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	switch {
	case strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return "o200k_base"
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "chatgpt-4o"), strings.HasPrefix(m, "gpt-4.1"):
		return "o200k_base"
	default:
		// llama, mistral, qwen, claude 等没有公开的 tiktoken 编码，用 cl100k_base 近似
		// llama, mistral, qwen, claude etc. have no tiktoken encoding; cl100k_base approximates
		return "cl100k_base"
	}
}
