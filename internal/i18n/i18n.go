package i18n

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

const fallbackLocale = "en"

// catalogs maps a normalized locale to its messages.
var catalogs = map[string]map[string]string{
	"en":    EnMessages,
	"zh-CN": ZhCNMessages,
}

// I18n 国际化支持，实例创建后只读
// I18n provides internationalization support; it is read-only once built
type I18n struct {
	locale string
	// chain is searched in order: the locale's catalog, then English.
	chain []map[string]string
}

var (
	globalMu sync.RWMutex
	global   *I18n
)

// Global 返回全局 i18n 实例，未初始化时按环境检测
// Global returns the global instance, detecting the locale on first use
func Global() *I18n {
	globalMu.RLock()
	g := global
	globalMu.RUnlock()
	if g != nil {
		return g
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New("")
	}
	return global
}

// Init 用指定 locale 替换全局实例
// Init replaces the global instance with one for locale
func Init(locale string) {
	i := New(locale)
	globalMu.Lock()
	global = i
	globalMu.Unlock()
}

// T 全局翻译快捷函数
// T is a global translation shortcut
func T(key string, args ...any) string {
	return Global().T(key, args...)
}

// New 创建 i18n 实例；未知 locale 使用英文
// New creates an instance; unknown locales read English
func New(locale string) *I18n {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		locale = DetectLocale()
	}
	locale = normalizeLocale(locale)

	i := &I18n{locale: locale}
	if msgs, ok := catalogs[locale]; ok && locale != fallbackLocale {
		i.chain = append(i.chain, msgs)
	}
	i.chain = append(i.chain, catalogs[fallbackLocale])
	return i
}

// T 翻译函数，缺失的 key 原样返回
// T translates key; a missing key is returned as is
func (i *I18n) T(key string, args ...any) string {
	for _, msgs := range i.chain {
		tmpl, ok := msgs[key]
		if !ok {
			continue
		}
		if len(args) == 0 {
			return tmpl
		}
		return fmt.Sprintf(tmpl, args...)
	}
	return key
}

// Locale 返回当前 locale
// Locale returns current locale
func (i *I18n) Locale() string {
	return i.locale
}

// DetectLocale 按 POSIX 优先级从环境检测 locale
// DetectLocale reads the locale from the environment in POSIX precedence
func DetectLocale() string {
	for _, env := range []string{"QUERYDESK_LANG", "LC_ALL", "LC_MESSAGES", "LANG"} {
		v := strings.TrimSpace(os.Getenv(env))
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		return normalizeLocale(v)
	}
	return fallbackLocale
}

func normalizeLocale(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallbackLocale
	}
	// 去掉 .UTF-8 与 @modifier 后缀 / Strip .UTF-8 and @modifier
	if idx := strings.IndexAny(s, ".@"); idx >= 0 {
		s = s[:idx]
	}
	s = strings.ReplaceAll(s, "_", "-")
	lower := strings.ToLower(s)

	switch {
	case strings.HasPrefix(lower, "zh"):
		return "zh-CN"
	case strings.HasPrefix(lower, "en"):
		return "en"
	}
	return s
}
