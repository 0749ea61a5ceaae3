package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"querydesk/internal/settings"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
)

type BackendConfig struct {
	BaseURL           string  `json:"base_url" toml:"base_url"`
	TimeoutMS         int     `json:"timeout_ms" toml:"timeout_ms"`
	RequestsPerSecond float64 `json:"requests_per_second" toml:"requests_per_second"`
	NoteEncoding      string  `json:"note_encoding" toml:"note_encoding"`
}

type CatalogConfig struct {
	BaseURL   string `json:"base_url" toml:"base_url"`
	APIKey    string `json:"api_key,omitempty" toml:"api_key"`
	TimeoutMS int    `json:"timeout_ms" toml:"timeout_ms"`
}

type ModelConfig struct {
	Default string `json:"default" toml:"default"`
}

type StorageConfig struct {
	BaseDir string `json:"base_dir" toml:"base_dir"`
	Journal bool   `json:"journal" toml:"journal"`
}

type LogConfig struct {
	Level    string `json:"level" toml:"level"`
	MaxFiles int    `json:"max_files" toml:"max_files"`
}

type UIConfig struct {
	Locale    string `json:"locale" toml:"locale"`
	AltScreen bool   `json:"alt_screen" toml:"alt_screen"`
}

type Config struct {
	Backend BackendConfig `json:"backend" toml:"backend"`
	Catalog CatalogConfig `json:"catalog" toml:"catalog"`
	Model   ModelConfig   `json:"model" toml:"model"`
	Storage StorageConfig `json:"storage" toml:"storage"`
	Log     LogConfig     `json:"log" toml:"log"`
	UI      UIConfig      `json:"ui" toml:"ui"`
}

// File sections use pointers so absent keys keep the lower layer's value.
type fileStorageConfig struct {
	BaseDir *string `json:"base_dir" toml:"base_dir"`
	Journal *bool   `json:"journal" toml:"journal"`
}

type fileUIConfig struct {
	Locale    *string `json:"locale" toml:"locale"`
	AltScreen *bool   `json:"alt_screen" toml:"alt_screen"`
}

type fileConfig struct {
	Backend *BackendConfig     `json:"backend" toml:"backend"`
	Catalog *CatalogConfig     `json:"catalog" toml:"catalog"`
	Model   *ModelConfig       `json:"model" toml:"model"`
	Storage *fileStorageConfig `json:"storage" toml:"storage"`
	Log     *LogConfig         `json:"log" toml:"log"`
	UI      *fileUIConfig      `json:"ui" toml:"ui"`
}

func Default() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL:      DefaultBackendURL,
			TimeoutMS:    DefaultBackendTimeoutMS,
			NoteEncoding: DefaultNoteEncoding,
		},
		Catalog: CatalogConfig{
			BaseURL:   DefaultCatalogURL,
			TimeoutMS: DefaultCatalogTimeoutMS,
		},
		Model: ModelConfig{Default: settings.DefaultModel},
		Storage: StorageConfig{
			BaseDir: "~/.querydesk",
			Journal: true,
		},
		Log: LogConfig{
			Level:    DefaultLogLevel,
			MaxFiles: DefaultLogMaxFiles,
		},
		UI: UIConfig{AltScreen: true},
	}
}

// Load merges defaults, the global config, the project config (or path),
// .env and environment overrides, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("QUERYDESK_CONFIG_PATH")); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return applyEnv(cfg)
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	dir := filepath.Join(home, ".querydesk")
	for _, name := range []string{"config.json", "config.jsonc", "config.toml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return []string{p}
		}
	}
	return nil
}

func findProjectConfigPath() string {
	candidates := []string{
		"querydesk.json",
		"querydesk.jsonc",
		".querydesk/config.json",
		"querydesk.toml",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	var fileCfg fileConfig
	if strings.EqualFold(filepath.Ext(resolved), ".toml") {
		if err := toml.Unmarshal(data, &fileCfg); err != nil {
			return fmt.Errorf("parse config %q: %w", resolved, err)
		}
	} else {
		cleaned := stripJSONComments(data)
		if err := json.Unmarshal(cleaned, &fileCfg); err != nil {
			return fmt.Errorf("parse config %q: %w", resolved, err)
		}
	}
	applyFileConfig(cfg, fileCfg)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Backend != nil {
		cfg.Backend = mergeBackend(cfg.Backend, *fc.Backend)
	}
	if fc.Catalog != nil {
		cfg.Catalog = mergeCatalog(cfg.Catalog, *fc.Catalog)
	}
	if fc.Model != nil && strings.TrimSpace(fc.Model.Default) != "" {
		cfg.Model.Default = fc.Model.Default
	}
	if fc.Storage != nil {
		if fc.Storage.BaseDir != nil && strings.TrimSpace(*fc.Storage.BaseDir) != "" {
			cfg.Storage.BaseDir = *fc.Storage.BaseDir
		}
		if fc.Storage.Journal != nil {
			cfg.Storage.Journal = *fc.Storage.Journal
		}
	}
	if fc.Log != nil {
		if strings.TrimSpace(fc.Log.Level) != "" {
			cfg.Log.Level = fc.Log.Level
		}
		if fc.Log.MaxFiles > 0 {
			cfg.Log.MaxFiles = fc.Log.MaxFiles
		}
	}
	if fc.UI != nil {
		if fc.UI.Locale != nil {
			cfg.UI.Locale = *fc.UI.Locale
		}
		if fc.UI.AltScreen != nil {
			cfg.UI.AltScreen = *fc.UI.AltScreen
		}
	}
}

func mergeBackend(base BackendConfig, override BackendConfig) BackendConfig {
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	if override.RequestsPerSecond > 0 {
		base.RequestsPerSecond = override.RequestsPerSecond
	}
	if strings.TrimSpace(override.NoteEncoding) != "" {
		base.NoteEncoding = override.NoteEncoding
	}
	return base
}

func mergeCatalog(base CatalogConfig, override CatalogConfig) CatalogConfig {
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if strings.TrimSpace(override.APIKey) != "" {
		base.APIKey = override.APIKey
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	return base
}

func normalize(cfg *Config) error {
	def := Default()
	cfg.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Backend.BaseURL), "/")
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = def.Backend.BaseURL
	}
	if cfg.Backend.TimeoutMS <= 0 {
		cfg.Backend.TimeoutMS = def.Backend.TimeoutMS
	}
	cfg.Backend.NoteEncoding = strings.ToLower(strings.TrimSpace(cfg.Backend.NoteEncoding))
	if cfg.Backend.NoteEncoding == "" {
		cfg.Backend.NoteEncoding = def.Backend.NoteEncoding
	}

	cfg.Catalog.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Catalog.BaseURL), "/")
	if cfg.Catalog.BaseURL == "" {
		cfg.Catalog.BaseURL = def.Catalog.BaseURL
	}
	if cfg.Catalog.TimeoutMS <= 0 {
		cfg.Catalog.TimeoutMS = def.Catalog.TimeoutMS
	}

	cfg.Model.Default = strings.TrimSpace(cfg.Model.Default)
	if cfg.Model.Default == "" {
		cfg.Model.Default = def.Model.Default
	}

	if strings.TrimSpace(cfg.Storage.BaseDir) == "" {
		cfg.Storage.BaseDir = def.Storage.BaseDir
	}
	baseDir, err := expandPath(cfg.Storage.BaseDir)
	if err != nil {
		return fmt.Errorf("normalize storage.base_dir: %w", err)
	}
	cfg.Storage.BaseDir = baseDir

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.MaxFiles <= 0 {
		cfg.Log.MaxFiles = def.Log.MaxFiles
	}
	cfg.UI.Locale = strings.TrimSpace(cfg.UI.Locale)
	return nil
}

func applyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv("QUERYDESK_BACKEND_URL")); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("QUERYDESK_MODELS_URL")); v != "" {
		cfg.Catalog.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("QUERYDESK_MODEL")); v != "" {
		cfg.Model.Default = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")); v != "" {
		cfg.Catalog.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("QUERYDESK_CACHE_PATH")); v != "" {
		cfg.Storage.BaseDir = v
	}
	if v := strings.TrimSpace(os.Getenv("QUERYDESK_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("QUERYDESK_LANG")); v != "" {
		cfg.UI.Locale = v
	}
	if v := strings.TrimSpace(os.Getenv("QUERYDESK_TIMEOUT_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid QUERYDESK_TIMEOUT_MS: %q", v)
		}
		cfg.Backend.TimeoutMS = n
	}

	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the merged configuration.
func (c Config) Validate() error {
	return validation.Errors{
		"backend": validation.ValidateStruct(&c.Backend,
			validation.Field(&c.Backend.BaseURL, validation.Required, validation.By(httpURL)),
			validation.Field(&c.Backend.TimeoutMS, validation.Min(1)),
			validation.Field(&c.Backend.RequestsPerSecond, validation.Min(0.0)),
			validation.Field(&c.Backend.NoteEncoding, validation.In("text", "json")),
		),
		"catalog": validation.ValidateStruct(&c.Catalog,
			validation.Field(&c.Catalog.BaseURL, validation.Required, validation.By(httpURL)),
			validation.Field(&c.Catalog.TimeoutMS, validation.Min(1)),
		),
		"log": validation.ValidateStruct(&c.Log,
			validation.Field(&c.Log.Level, validation.In("debug", "info", "warn", "error")),
			validation.Field(&c.Log.MaxFiles, validation.Min(1)),
		),
	}.Filter()
}

func httpURL(value interface{}) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an http(s) URL")
	}
	return nil
}

// JournalPath is the query journal database file.
func (c Config) JournalPath() string {
	return filepath.Join(c.Storage.BaseDir, "journal.db")
}

// LogDir is where log files are written.
func (c Config) LogDir() string {
	return filepath.Join(c.Storage.BaseDir, "logs")
}

// HistoryPath is the REPL line history file.
func (c Config) HistoryPath() string {
	return filepath.Join(c.Storage.BaseDir, "history")
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			if c == '"' {
				state = stateString
				out.WriteByte(c)
				continue
			}
			if c == '/' && next == '/' {
				state = stateLineComment
				i++
				continue
			}
			if c == '/' && next == '*' {
				state = stateBlockComment
				i++
				continue
			}
			out.WriteByte(c)
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return out.Bytes()
}
