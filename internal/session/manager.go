// Package session holds the client-side chat state: the threads of the active
// project, the selected thread, and the in-flight query.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"querydesk/internal/backend"
	"querydesk/internal/chat"
	"querydesk/internal/settings"

	"github.com/rs/zerolog"
)

var (
	// ErrThreadLimit is returned by CreateThread once MaxThreads exist.
	ErrThreadLimit = fmt.Errorf("thread limit of %d reached", chat.MaxThreads)
	// ErrBusy is returned by SendQuery while another submission is in flight.
	ErrBusy = errors.New("a query is already in flight")
	// ErrEmptyPrompt is returned for a blank prompt; callers ignore it.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrStale marks a result that arrived after the project or thread it
	// was issued for was replaced. The result was dropped.
	ErrStale = errors.New("result superseded")
	// ErrUnknownThread is returned when selecting a thread that does not exist.
	ErrUnknownThread = errors.New("unknown thread")
)

// Backend is the subset of the backend client the manager needs.
type Backend interface {
	ProjectChats(ctx context.Context, projectID string) (backend.ThreadSet, error)
	History(ctx context.Context, chatID string) (chat.Transcript, error)
	ClearHistory(ctx context.Context, chatID string) error
	Query(ctx context.Context, req chat.QueryRequest) (string, error)
}

// Outcome describes one finished submission.
type Outcome struct {
	Request  chat.QueryRequest
	Response string
	Err      error
	Started  time.Time
	Elapsed  time.Duration
}

// Journal receives every finished submission. Failures are logged only.
type Journal interface {
	RecordQuery(ctx context.Context, o Outcome) error
}

// QueryState is the lifecycle of the most recent submission.
type QueryState string

const (
	StateIdle       QueryState = "idle"
	StateSubmitting QueryState = "submitting"
	StateFailed     QueryState = "failed"
)

// Snapshot is a copy of the manager state for renderers.
type Snapshot struct {
	ProjectID    string
	Threads      []string
	Active       string
	Transcript   chat.Transcript
	Busy         bool
	State        QueryState
	LastResponse string
	CanCreate    bool
}

// Manager owns the threads of one project at a time. It is safe for
// concurrent use; the lock is never held across backend calls.
type Manager struct {
	backend  Backend
	settings *settings.Store
	journal  Journal
	log      zerolog.Logger

	mu           sync.Mutex
	projectID    string
	projectGen   uint64
	threads      map[string]chat.Transcript
	// revs counts local mutations per thread; a history fetch issued
	// before a mutation is stale when it lands.
	revs         map[string]uint64
	order        []string
	active       string
	highWater    map[string]int
	busy         bool
	state        QueryState
	lastResponse string
}

// Option customizes a Manager.
type Option func(*Manager)

// WithJournal records every submission in j.
func WithJournal(j Journal) Option {
	return func(m *Manager) { m.journal = j }
}

// WithLogger sets the manager's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log.With().Str("component", "session").Logger() }
}

// NewManager returns a manager on the default project with an empty chat1.
func NewManager(b Backend, store *settings.Store, opts ...Option) *Manager {
	m := &Manager{
		backend:   b,
		settings:  store,
		log:       zerolog.Nop(),
		projectID: chat.DefaultProject,
		highWater: map[string]int{},
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.resetLocked()
	return m
}

// resetLocked installs the fallback mapping {chat1: []}.
func (m *Manager) resetLocked() {
	m.threads = map[string]chat.Transcript{chat.DefaultThreadID: {}}
	m.revs = map[string]uint64{}
	m.order = []string{chat.DefaultThreadID}
	m.active = chat.DefaultThreadID
	m.bumpHighWaterLocked(m.order)
}

func (m *Manager) bumpHighWaterLocked(ids []string) {
	hw := m.highWater[m.projectID]
	for _, id := range ids {
		if n, ok := threadNumber(id); ok && n > hw {
			hw = n
		}
	}
	m.highWater[m.projectID] = hw
}

// threadNumber parses the N of "chatN".
func threadNumber(id string) (int, bool) {
	if !strings.HasPrefix(id, chat.ThreadPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, chat.ThreadPrefix))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// LoadProjectThreads replaces the thread mapping with the project's threads
// and selects the first one. On failure the mapping falls back to an empty
// chat1 and the error is returned.
func (m *Manager) LoadProjectThreads(ctx context.Context, projectID string) error {
	if strings.TrimSpace(projectID) == "" {
		projectID = chat.DefaultProject
	}
	m.mu.Lock()
	m.projectGen++
	gen := m.projectGen
	m.projectID = projectID
	m.lastResponse = ""
	if !m.busy {
		m.state = StateIdle
	}
	m.mu.Unlock()

	set, err := m.backend.ProjectChats(ctx, projectID)

	m.mu.Lock()
	if gen != m.projectGen {
		m.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		m.resetLocked()
		m.mu.Unlock()
		m.log.Error().Err(err).Str("project", projectID).Msg("load project threads")
		return fmt.Errorf("load threads of %s: %w", projectID, err)
	}

	threads := make(map[string]chat.Transcript, len(set.Order))
	order := make([]string, 0, len(set.Order))
	for _, id := range set.Order {
		if _, dup := threads[id]; dup || id == "" {
			continue
		}
		threads[id] = set.Threads[id].Clone()
		order = append(order, id)
	}
	if len(order) == 0 {
		m.resetLocked()
	} else {
		m.threads = threads
		m.revs = map[string]uint64{}
		m.order = order
		m.active = order[0]
		m.bumpHighWaterLocked(order)
	}
	active := m.active
	m.mu.Unlock()

	return m.LoadThreadHistory(ctx, active)
}

// LoadThreadHistory refreshes one thread from the backend. A failure leaves
// the state untouched. The result is dropped with ErrStale when the project
// changed, another thread became active, or the thread was appended to or
// cleared while the fetch was in flight.
func (m *Manager) LoadThreadHistory(ctx context.Context, threadID string) error {
	m.mu.Lock()
	gen := m.projectGen
	rev := m.revs[threadID]
	m.mu.Unlock()

	turns, err := m.backend.History(ctx, threadID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.projectGen || threadID != m.active || rev != m.revs[threadID] {
		return ErrStale
	}
	if err != nil {
		m.log.Error().Err(err).Str("project", m.projectID).Str("chat", threadID).Msg("load history")
		return fmt.Errorf("load history of %s: %w", threadID, err)
	}
	if _, ok := m.threads[threadID]; !ok {
		m.order = append(m.order, threadID)
	}
	m.threads[threadID] = turns.Clone()
	return nil
}

// SelectThread makes an existing thread active and loads its history.
func (m *Manager) SelectThread(ctx context.Context, threadID string) error {
	m.mu.Lock()
	if _, ok := m.threads[threadID]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownThread, threadID)
	}
	m.active = threadID
	m.mu.Unlock()
	return m.LoadThreadHistory(ctx, threadID)
}

// CanCreateThread reports whether another thread fits under the limit.
func (m *Manager) CanCreateThread() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order) < chat.MaxThreads
}

// CreateThread adds an empty thread with a fresh id and makes it active.
// Ids are never handed out twice for the same project.
func (m *Manager) CreateThread(ctx context.Context) (string, error) {
	m.mu.Lock()
	if len(m.order) >= chat.MaxThreads {
		m.mu.Unlock()
		return "", ErrThreadLimit
	}
	n := m.highWater[m.projectID]
	var id string
	for {
		n++
		id = chat.ThreadPrefix + strconv.Itoa(n)
		if _, taken := m.threads[id]; !taken {
			break
		}
	}
	m.highWater[m.projectID] = n
	m.threads[id] = chat.Transcript{}
	m.order = append(m.order, id)
	m.active = id
	m.mu.Unlock()

	// A new thread usually has no history yet; a failed load is logged and
	// does not undo the creation.
	if err := m.LoadThreadHistory(ctx, id); err != nil && !errors.Is(err, ErrStale) {
		m.log.Debug().Err(err).Str("chat", id).Msg("history of new thread")
	}
	return id, nil
}

// SendQuery submits prompt, as typed, for the active thread with the current
// settings.
// On success the turn is appended to the thread it was issued for. On
// failure the transcript is unchanged and the last response reads
// "Error: <message>".
func (m *Manager) SendQuery(ctx context.Context, prompt string) (chat.Turn, error) {
	if strings.TrimSpace(prompt) == "" {
		return chat.Turn{}, ErrEmptyPrompt
	}

	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return chat.Turn{}, ErrBusy
	}
	m.busy = true
	m.state = StateSubmitting
	gen := m.projectGen
	threadID := m.active
	projectID := m.projectID
	m.mu.Unlock()

	v := m.settings.Snapshot()
	req := chat.QueryRequest{
		Model:            v.Model,
		Prompt:           prompt,
		Temperature:      v.Temperature,
		TopP:             v.TopP,
		TopK:             v.TopK,
		FrequencyPenalty: v.FrequencyPenalty,
		ChatID:           threadID,
		ProjectID:        projectID,
	}

	started := time.Now()
	reply, err := m.backend.Query(ctx, req)
	m.record(ctx, Outcome{Request: req, Response: reply, Err: err, Started: started, Elapsed: time.Since(started)})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false
	if gen != m.projectGen {
		m.state = StateIdle
		m.log.Debug().Str("project", projectID).Str("chat", threadID).Msg("dropping reply for previous project")
		return chat.Turn{}, ErrStale
	}
	if err != nil {
		m.state = StateFailed
		m.lastResponse = "Error: " + err.Error()
		m.log.Error().Err(err).Str("project", projectID).Str("chat", threadID).Msg("query failed")
		return chat.Turn{}, fmt.Errorf("query: %w", err)
	}

	turn := chat.Turn{Prompt: prompt, Response: reply}
	if _, ok := m.threads[threadID]; !ok {
		m.order = append(m.order, threadID)
	}
	m.threads[threadID] = append(m.threads[threadID].Clone(), turn)
	m.revs[threadID]++
	m.state = StateIdle
	m.lastResponse = reply
	return turn, nil
}

func (m *Manager) record(ctx context.Context, o Outcome) {
	if m.journal == nil {
		return
	}
	if err := m.journal.RecordQuery(ctx, o); err != nil {
		m.log.Warn().Err(err).Msg("journal query")
	}
}

// ClearThread deletes a thread's history on the backend, then empties it
// locally. Other threads are not touched.
func (m *Manager) ClearThread(ctx context.Context, threadID string) error {
	m.mu.Lock()
	gen := m.projectGen
	m.mu.Unlock()

	if err := m.backend.ClearHistory(ctx, threadID); err != nil {
		m.log.Error().Err(err).Str("chat", threadID).Msg("clear history")
		return fmt.Errorf("clear %s: %w", threadID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.projectGen {
		return ErrStale
	}
	if _, ok := m.threads[threadID]; ok {
		m.threads[threadID] = chat.Transcript{}
		m.revs[threadID]++
	}
	return nil
}

// State returns the lifecycle of the latest submission.
func (m *Manager) State() QueryState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ProjectID returns the project the manager currently shows.
func (m *Manager) ProjectID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.projectID
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		ProjectID:    m.projectID,
		Threads:      append([]string(nil), m.order...),
		Active:       m.active,
		Transcript:   m.threads[m.active].Clone(),
		Busy:         m.busy,
		State:        m.state,
		LastResponse: m.lastResponse,
		CanCreate:    len(m.order) < chat.MaxThreads,
	}
}
