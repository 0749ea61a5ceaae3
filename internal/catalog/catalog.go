package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"querydesk/internal/settings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultBaseURL 是 OpenRouter 的 OpenAI 兼容地址
// DefaultBaseURL is OpenRouter's OpenAI-compatible API root
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Config 模型目录配置
// Config configures the model catalog
type Config struct {
	BaseURL      string
	APIKey       string
	TimeoutMS    int
	DefaultModel string
	HTTPClient   *http.Client
	Logger       zerolog.Logger
}

// Catalog 缓存可选模型列表
// Catalog caches the list of selectable models
type Catalog struct {
	client       *openai.Client
	defaultModel string
	log          zerolog.Logger

	mu      sync.RWMutex
	models  []string
	lastErr error
}

// New 创建模型目录；在 Load 之前只包含默认模型
// New builds a catalog that offers only the default model until Load succeeds
func New(cfg Config) *Catalog {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = baseURL

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
		if cfg.TimeoutMS > 0 {
			httpClient.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
		}
	}
	config.HTTPClient = httpClient

	def := strings.TrimSpace(cfg.DefaultModel)
	if def == "" {
		def = settings.DefaultModel
	}
	return &Catalog{
		client:       openai.NewClientWithConfig(config),
		defaultModel: def,
		log:          cfg.Logger.With().Str("component", "catalog").Logger(),
		models:       []string{def},
	}
}

// Load 拉取模型列表；失败时退化为只有默认模型
// Load fetches the model list; on failure the options degrade to the default model alone
func (c *Catalog) Load(ctx context.Context) error {
	resp, err := c.client.ListModels(ctx)
	if err != nil {
		err = fmt.Errorf("list models: %w", err)
		c.log.Error().Err(err).Msg("model catalog unavailable")
		c.mu.Lock()
		c.models = []string{c.defaultModel}
		c.lastErr = err
		c.mu.Unlock()
		return err
	}

	models := make([]string, 0, len(resp.Models)+1)
	models = append(models, c.defaultModel)
	seen := map[string]bool{c.defaultModel: true}
	for _, m := range resp.Models {
		id := strings.TrimSpace(m.ID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		models = append(models, id)
	}

	c.mu.Lock()
	c.models = models
	c.lastErr = nil
	c.mu.Unlock()
	c.log.Debug().Int("models", len(models)).Msg("model catalog loaded")
	return nil
}

// Models 返回模型 id 列表，默认模型总在第一位
// Models returns the model ids with the default model first
func (c *Catalog) Models() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.models))
	copy(out, c.models)
	return out
}

// DefaultModel returns the model that always heads the list.
func (c *Catalog) DefaultModel() string {
	return c.defaultModel
}

// Err returns the error of the last Load, if any.
func (c *Catalog) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Filter 按大小写无关的子串过滤模型
// Filter returns the models containing term, case-insensitively
func (c *Catalog) Filter(term string) []string {
	models := c.Models()
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return models
	}
	out := make([]string, 0, len(models))
	for _, m := range models {
		if strings.Contains(strings.ToLower(m), term) {
			out = append(out, m)
		}
	}
	return out
}
