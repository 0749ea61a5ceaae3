package config

const (
	DefaultBackendURL       = "http://localhost:8000"
	DefaultBackendTimeoutMS = 60000
	DefaultCatalogURL       = "https://openrouter.ai/api/v1"
	DefaultCatalogTimeoutMS = 15000
	DefaultLogLevel         = "info"
	DefaultLogMaxFiles      = 10
	DefaultNoteEncoding     = "text"
)
