package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"querydesk/internal/chat"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is where the query backend listens by default.
const DefaultBaseURL = "http://localhost:8000"

const maxErrorBody = 64 * 1024

// NoteEncoding selects how note bodies travel on the wire.
type NoteEncoding string

const (
	// NoteText sends and expects the raw note text.
	NoteText NoteEncoding = "text"
	// NoteJSON sends {"content": ...} and expects {"filename", "content"}.
	NoteJSON NoteEncoding = "json"
)

// Options configures a Client.
type Options struct {
	BaseURL           string
	TimeoutMS         int
	RequestsPerSecond float64
	NoteEncoding      NoteEncoding
	HTTPClient        *http.Client
	Logger            zerolog.Logger
}

// Client talks to the query backend over REST/JSON.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	limiter      *rate.Limiter
	noteEncoding NoteEncoding
	log          zerolog.Logger
}

// ThreadSet is a project's thread mapping in the order the backend listed it.
type ThreadSet struct {
	Order   []string
	Threads map[string]chat.Transcript
}

// NewClient builds a client. Zero-valued options fall back to defaults.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
		if opts.TimeoutMS > 0 {
			httpClient.Timeout = time.Duration(opts.TimeoutMS) * time.Millisecond
		}
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	enc := opts.NoteEncoding
	if enc != NoteJSON {
		enc = NoteText
	}
	return &Client{
		baseURL:      baseURL,
		httpClient:   httpClient,
		limiter:      limiter,
		noteEncoding: enc,
		log:          opts.Logger.With().Str("component", "backend").Logger(),
	}
}

// BaseURL returns the normalized backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// --- Projects ---

func (c *Client) ListProjects(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.getJSON(ctx, "/projects", &names); err != nil {
		return nil, err
	}
	return names, nil
}

func (c *Client) CreateProject(ctx context.Context, name string) error {
	_, err := c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(name), "", nil)
	return err
}

// --- Chats ---

// ProjectChats loads every thread of a project. A bare array of chat file
// names (chat_<id>.json) is accepted too; those threads come back empty.
func (c *Client) ProjectChats(ctx context.Context, projectID string) (ThreadSet, error) {
	path := "/projects/" + url.PathEscape(projectID) + "/chats"
	data, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return ThreadSet{}, err
	}
	return decodeThreadSet(data)
}

func (c *Client) History(ctx context.Context, chatID string) (chat.Transcript, error) {
	path := "/history/" + url.PathEscape(chatID)
	data, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	return decodeTranscript(data)
}

func (c *Client) ClearHistory(ctx context.Context, chatID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/history/"+url.PathEscape(chatID), "", nil)
	return err
}

// Query submits a prompt and returns the model's reply.
func (c *Client) Query(ctx context.Context, req chat.QueryRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal query request: %w", err)
	}
	data, err := c.do(ctx, http.MethodPost, "/query", "application/json", body)
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("%w: query response is not JSON", ErrMalformed)
	}
	parsed := gjson.ParseBytes(data)
	if msg := parsed.Get("error"); msg.Exists() && msg.String() != "" {
		return "", &QueryError{Message: msg.String()}
	}
	resp := parsed.Get("response")
	if resp.Type != gjson.String {
		return "", fmt.Errorf("%w: query response has no response field", ErrMalformed)
	}
	return resp.String(), nil
}

// --- Notes ---

func (c *Client) ListNotes(ctx context.Context, projectID string) ([]string, error) {
	var names []string
	if err := c.getJSON(ctx, "/projects/"+url.PathEscape(projectID)+"/notes", &names); err != nil {
		return nil, err
	}
	return names, nil
}

// GetNote returns a note's text. Both a raw text body and a
// {"filename", "content"} object are understood.
func (c *Client) GetNote(ctx context.Context, projectID, name string) (string, error) {
	data, err := c.do(ctx, http.MethodGet, notePath(projectID, name), "", nil)
	if err != nil {
		return "", err
	}
	if gjson.ValidBytes(data) {
		parsed := gjson.ParseBytes(data)
		if parsed.IsObject() {
			if content := parsed.Get("content"); content.Type == gjson.String {
				return content.String(), nil
			}
		}
	}
	return string(data), nil
}

// SaveNote overwrites a note with content.
func (c *Client) SaveNote(ctx context.Context, projectID, name, content string) error {
	contentType := "text/plain; charset=utf-8"
	body := []byte(content)
	if c.noteEncoding == NoteJSON {
		var err error
		body, err = json.Marshal(struct {
			Content string `json:"content"`
		}{Content: content})
		if err != nil {
			return fmt.Errorf("marshal note: %w", err)
		}
		contentType = "application/json"
	}
	_, err := c.do(ctx, http.MethodPost, notePath(projectID, name), contentType, body)
	return err
}

func notePath(projectID, name string) string {
	return "/projects/" + url.PathEscape(projectID) + "/notes/" + url.PathEscape(name)
}

// --- Transport ---

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	data, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrMalformed, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("method", method).Str("path", path).Str("request_id", reqID).Msg("request failed")
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Str("request_id", reqID).
		Msg("backend request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: errorDetail(data)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %w", ErrUnreachable, method, path, err)
	}
	return data, nil
}

// errorDetail prefers FastAPI-style {"detail": "..."} over the raw body.
func errorDetail(data []byte) string {
	trimmed := strings.TrimSpace(string(data))
	if gjson.Valid(trimmed) {
		if detail := gjson.Get(trimmed, "detail"); detail.Type == gjson.String {
			return detail.String()
		}
	}
	return trimmed
}

// --- Decoding ---

func decodeThreadSet(data []byte) (ThreadSet, error) {
	if !gjson.ValidBytes(data) {
		return ThreadSet{}, fmt.Errorf("%w: chats response is not JSON", ErrMalformed)
	}
	set := ThreadSet{Threads: map[string]chat.Transcript{}}
	parsed := gjson.ParseBytes(data)

	switch {
	case parsed.Type == gjson.Null:
		return set, nil
	case parsed.IsArray():
		for _, item := range parsed.Array() {
			if item.Type != gjson.String {
				continue
			}
			id, ok := chatIDFromFileName(item.String())
			if !ok {
				continue
			}
			if _, seen := set.Threads[id]; seen {
				continue
			}
			set.Order = append(set.Order, id)
			set.Threads[id] = chat.Transcript{}
		}
		return set, nil
	case parsed.IsObject():
		var decodeErr error
		parsed.ForEach(func(key, value gjson.Result) bool {
			id := key.String()
			turns, err := decodeTranscript([]byte(value.Raw))
			if err != nil {
				decodeErr = fmt.Errorf("thread %q: %w", id, err)
				return false
			}
			if _, seen := set.Threads[id]; !seen {
				set.Order = append(set.Order, id)
			}
			set.Threads[id] = turns
			return true
		})
		if decodeErr != nil {
			return ThreadSet{}, decodeErr
		}
		return set, nil
	default:
		return ThreadSet{}, fmt.Errorf("%w: chats response is %s", ErrMalformed, parsed.Type)
	}
}

func decodeTranscript(raw []byte) (chat.Transcript, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: history is not JSON", ErrMalformed)
	}
	parsed := gjson.ParseBytes(raw)
	if parsed.Type == gjson.Null {
		return chat.Transcript{}, nil
	}
	if !parsed.IsArray() {
		return nil, fmt.Errorf("%w: expected turn array", ErrMalformed)
	}
	var turns chat.Transcript
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if turns == nil {
		turns = chat.Transcript{}
	}
	return turns, nil
}

func chatIDFromFileName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if !strings.HasPrefix(name, "chat_") || !strings.HasSuffix(name, ".json") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, "chat_"), ".json")
	return id, id != ""
}
