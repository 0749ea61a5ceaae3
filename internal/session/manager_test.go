package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"querydesk/internal/backend"
	"querydesk/internal/chat"
	"querydesk/internal/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu       sync.Mutex
	projects map[string]backend.ThreadSet
	history  map[string]chat.Transcript
	chatsErr error
	histErr  error
	clearErr error
	reply    string
	queryErr error
	queries  []chat.QueryRequest
	cleared  []string

	// gates block the named call until released.
	queryGate   chan struct{}
	chatsGate   map[string]chan struct{}
	historyGate map[string]chan struct{}
	waiting     map[string]int
}

func newFake() *fakeBackend {
	return &fakeBackend{
		projects:    map[string]backend.ThreadSet{},
		history:     map[string]chat.Transcript{},
		chatsGate:   map[string]chan struct{}{},
		historyGate: map[string]chan struct{}{},
		waiting:     map[string]int{},
		reply:       "ok",
	}
}

func (f *fakeBackend) ProjectChats(ctx context.Context, projectID string) (backend.ThreadSet, error) {
	f.mu.Lock()
	gate := f.chatsGate[projectID]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chatsErr != nil {
		return backend.ThreadSet{}, f.chatsErr
	}
	return f.projects[projectID], nil
}

func (f *fakeBackend) History(ctx context.Context, chatID string) (chat.Transcript, error) {
	f.mu.Lock()
	gate := f.historyGate[chatID]
	if gate != nil {
		f.waiting[chatID]++
	}
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.histErr != nil {
		return nil, f.histErr
	}
	return f.history[chatID].Clone(), nil
}

func (f *fakeBackend) ClearHistory(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = append(f.cleared, chatID)
	delete(f.history, chatID)
	return nil
}

func (f *fakeBackend) Query(ctx context.Context, req chat.QueryRequest) (string, error) {
	f.mu.Lock()
	gate := f.queryGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, req)
	if f.queryErr != nil {
		return "", f.queryErr
	}
	return f.reply, nil
}

// holdHistory makes History(chatID) block until the returned func runs.
func (f *fakeBackend) holdHistory(chatID string) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.historyGate[chatID] = gate
	f.mu.Unlock()
	return func() { close(gate) }
}

func (f *fakeBackend) historyWaiting(chatID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waiting[chatID]
}

type recordingJournal struct {
	mu       sync.Mutex
	outcomes []Outcome
	err      error
}

func (j *recordingJournal) RecordQuery(ctx context.Context, o Outcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outcomes = append(j.outcomes, o)
	return j.err
}

func threadSet(order ...string) backend.ThreadSet {
	set := backend.ThreadSet{Order: order, Threads: map[string]chat.Transcript{}}
	for _, id := range order {
		set.Threads[id] = chat.Transcript{}
	}
	return set
}

func TestNewManagerStartsOnChat1(t *testing.T) {
	m := NewManager(newFake(), settings.New(""))
	snap := m.Snapshot()
	assert.Equal(t, chat.DefaultProject, snap.ProjectID)
	assert.Equal(t, []string{"chat1"}, snap.Threads)
	assert.Equal(t, "chat1", snap.Active)
	assert.Empty(t, snap.Transcript)
	assert.Equal(t, StateIdle, snap.State)
}

func TestLoadProjectThreadsSelectsFirstAndLoadsHistory(t *testing.T) {
	fb := newFake()
	fb.projects["p1"] = threadSet("chat4", "chat2")
	fb.history["chat4"] = chat.Transcript{{Prompt: "q", Response: "a"}}
	m := NewManager(fb, settings.New(""))

	require.NoError(t, m.LoadProjectThreads(context.Background(), "p1"))
	snap := m.Snapshot()
	assert.Equal(t, []string{"chat4", "chat2"}, snap.Threads)
	assert.Equal(t, "chat4", snap.Active)
	assert.Equal(t, chat.Transcript{{Prompt: "q", Response: "a"}}, snap.Transcript)
}

func TestLoadEmptyProjectShowsChat1(t *testing.T) {
	fb := newFake()
	fb.projects["p1"] = threadSet("chat1", "chat2")
	m := NewManager(fb, settings.New(""))
	require.NoError(t, m.LoadProjectThreads(context.Background(), "p1"))

	require.NoError(t, m.LoadProjectThreads(context.Background(), "p2"))
	snap := m.Snapshot()
	assert.Equal(t, "p2", snap.ProjectID)
	assert.Equal(t, []string{"chat1"}, snap.Threads)
	assert.Equal(t, "chat1", snap.Active)
	assert.Empty(t, snap.Transcript)
}

func TestLoadProjectThreadsFailureFallsBack(t *testing.T) {
	fb := newFake()
	fb.projects["p1"] = threadSet("chat3")
	m := NewManager(fb, settings.New(""))
	require.NoError(t, m.LoadProjectThreads(context.Background(), "p1"))

	fb.chatsErr = backend.ErrUnreachable
	err := m.LoadProjectThreads(context.Background(), "p1")
	assert.ErrorIs(t, err, backend.ErrUnreachable)
	snap := m.Snapshot()
	assert.Equal(t, []string{"chat1"}, snap.Threads)
	assert.Equal(t, "chat1", snap.Active)
}

func TestHistoryFailureLeavesState(t *testing.T) {
	fb := newFake()
	fb.projects["p"] = threadSet("chat1", "chat2")
	fb.history["chat2"] = chat.Transcript{{Prompt: "x", Response: "y"}}
	m := NewManager(fb, settings.New(""))
	require.NoError(t, m.LoadProjectThreads(context.Background(), "p"))
	require.NoError(t, m.SelectThread(context.Background(), "chat2"))

	fb.histErr = errors.New("flaky")
	assert.Error(t, m.LoadThreadHistory(context.Background(), "chat2"))
	assert.Len(t, m.Snapshot().Transcript, 1)
}

func TestSelectUnknownThread(t *testing.T) {
	m := NewManager(newFake(), settings.New(""))
	assert.ErrorIs(t, m.SelectThread(context.Background(), "chat9"), ErrUnknownThread)
	assert.Equal(t, "chat1", m.Snapshot().Active)
}

func TestCreateThreadRespectsLimit(t *testing.T) {
	m := NewManager(newFake(), settings.New(""))
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := m.CreateThread(ctx)
		if len(m.Snapshot().Threads) == chat.MaxThreads && err != nil {
			assert.ErrorIs(t, err, ErrThreadLimit)
		}
		require.LessOrEqual(t, len(m.Snapshot().Threads), chat.MaxThreads)
	}
	assert.False(t, m.CanCreateThread())
	assert.False(t, m.Snapshot().CanCreate)
	_, err := m.CreateThread(ctx)
	assert.ErrorIs(t, err, ErrThreadLimit)
}

func TestCreateThreadIDsNeverReused(t *testing.T) {
	fb := newFake()
	fb.projects["p"] = threadSet("chat1", "chat7", "chat3")
	m := NewManager(fb, settings.New(""))
	ctx := context.Background()
	require.NoError(t, m.LoadProjectThreads(ctx, "p"))

	id, err := m.CreateThread(ctx)
	require.NoError(t, err)
	assert.Equal(t, "chat8", id)
	assert.Equal(t, "chat8", m.Snapshot().Active)

	// chat8 was never queried, so the backend forgets it on reload.
	require.NoError(t, m.LoadProjectThreads(ctx, "p"))
	id, err = m.CreateThread(ctx)
	require.NoError(t, err)
	assert.Equal(t, "chat9", id)

	seen := map[string]bool{}
	for _, tid := range m.Snapshot().Threads {
		assert.False(t, seen[tid], "duplicate %s", tid)
		seen[tid] = true
	}
}

func TestSendQueryAppendsTurn(t *testing.T) {
	fb := newFake()
	fb.reply = "hello there"
	store := settings.New("m1")
	_, _ = store.Set(settings.Temperature, 0.3)
	j := &recordingJournal{}
	m := NewManager(fb, store, WithJournal(j))

	turn, err := m.SendQuery(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, chat.Turn{Prompt: "hi", Response: "hello there"}, turn)

	snap := m.Snapshot()
	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, "hi", snap.Transcript[0].Prompt)
	assert.Equal(t, "hello there", snap.LastResponse)
	assert.Equal(t, StateIdle, snap.State)
	assert.False(t, snap.Busy)

	require.Len(t, fb.queries, 1)
	assert.Equal(t, chat.QueryRequest{
		Model: "m1", Prompt: "hi", Temperature: 0.3, TopP: 1, TopK: 40,
		FrequencyPenalty: 0, ChatID: "chat1", ProjectID: "default",
	}, fb.queries[0])

	require.Len(t, j.outcomes, 1)
	assert.Equal(t, "hello there", j.outcomes[0].Response)
	assert.NoError(t, j.outcomes[0].Err)
}

func TestSendQueryKeepsPromptAsTyped(t *testing.T) {
	fb := newFake()
	m := NewManager(fb, settings.New(""))
	prompt := "    for i in range(3):\n        print(i)\n"

	turn, err := m.SendQuery(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, prompt, turn.Prompt)
	require.Len(t, fb.queries, 1)
	assert.Equal(t, prompt, fb.queries[0].Prompt)
	assert.Equal(t, prompt, m.Snapshot().Transcript[0].Prompt)
}

func TestSendQueryBlankIgnored(t *testing.T) {
	fb := newFake()
	m := NewManager(fb, settings.New(""))
	_, err := m.SendQuery(context.Background(), " \n\t")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Empty(t, fb.queries)
	assert.Equal(t, StateIdle, m.State())
}

func TestSendQueryFailureKeepsTranscript(t *testing.T) {
	fb := newFake()
	m := NewManager(fb, settings.New(""))
	_, err := m.SendQuery(context.Background(), "first")
	require.NoError(t, err)

	fb.queryErr = &backend.QueryError{Message: "model overloaded"}
	j := &recordingJournal{err: errors.New("disk full")}
	m.journal = j
	_, err = m.SendQuery(context.Background(), "second")
	require.Error(t, err)

	snap := m.Snapshot()
	assert.Len(t, snap.Transcript, 1)
	assert.Equal(t, "Error: model overloaded", snap.LastResponse)
	assert.Equal(t, StateFailed, snap.State)
	require.Len(t, j.outcomes, 1)
	assert.Error(t, j.outcomes[0].Err)
}

func TestSendQueryBusy(t *testing.T) {
	fb := newFake()
	fb.queryGate = make(chan struct{})
	m := NewManager(fb, settings.New(""))

	done := make(chan error, 1)
	go func() {
		_, err := m.SendQuery(context.Background(), "slow")
		done <- err
	}()
	require.Eventually(t, func() bool { return m.Snapshot().Busy }, testTimeout, testTick)
	assert.Equal(t, StateSubmitting, m.State())

	_, err := m.SendQuery(context.Background(), "again")
	assert.ErrorIs(t, err, ErrBusy)

	close(fb.queryGate)
	require.NoError(t, <-done)
	assert.Len(t, m.Snapshot().Transcript, 1)
}

func TestLateReplyForOldProjectDropped(t *testing.T) {
	fb := newFake()
	fb.projects["p1"] = threadSet("chat1")
	fb.projects["p2"] = threadSet("chat1")
	fb.queryGate = make(chan struct{})
	m := NewManager(fb, settings.New(""))
	ctx := context.Background()
	require.NoError(t, m.LoadProjectThreads(ctx, "p1"))

	done := make(chan error, 1)
	go func() {
		_, err := m.SendQuery(ctx, "for p1")
		done <- err
	}()
	require.Eventually(t, func() bool { return m.Snapshot().Busy }, testTimeout, testTick)

	require.NoError(t, m.LoadProjectThreads(ctx, "p2"))
	close(fb.queryGate)
	assert.ErrorIs(t, <-done, ErrStale)

	snap := m.Snapshot()
	assert.Equal(t, "p2", snap.ProjectID)
	assert.Empty(t, snap.Transcript)
	assert.Equal(t, "", snap.LastResponse)
	assert.False(t, snap.Busy)
}

func TestLateThreadListDropped(t *testing.T) {
	fb := newFake()
	fb.projects["p1"] = threadSet("chat5")
	fb.projects["p2"] = threadSet("chat2")
	gate := make(chan struct{})
	fb.chatsGate["p1"] = gate
	m := NewManager(fb, settings.New(""))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- m.LoadProjectThreads(ctx, "p1") }()
	require.Eventually(t, func() bool { return m.ProjectID() == "p1" }, testTimeout, testTick)

	require.NoError(t, m.LoadProjectThreads(ctx, "p2"))
	close(gate)
	assert.ErrorIs(t, <-done, ErrStale)
	assert.Equal(t, []string{"chat2"}, m.Snapshot().Threads)
	assert.Equal(t, "p2", m.Snapshot().ProjectID)
}

func TestLateHistoryKeepsNewTurn(t *testing.T) {
	fb := newFake()
	fb.projects["p"] = threadSet("chat1", "chat2")
	m := NewManager(fb, settings.New(""))
	ctx := context.Background()
	require.NoError(t, m.LoadProjectThreads(ctx, "p"))

	release := fb.holdHistory("chat1")
	done := make(chan error, 1)
	go func() { done <- m.SelectThread(ctx, "chat1") }()
	require.Eventually(t, func() bool { return fb.historyWaiting("chat1") == 1 }, testTimeout, testTick)

	_, err := m.SendQuery(ctx, "hello")
	require.NoError(t, err)
	release()
	assert.ErrorIs(t, <-done, ErrStale)

	snap := m.Snapshot()
	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, "hello", snap.Transcript[0].Prompt)
}

func TestLateHistoryAfterClearDropped(t *testing.T) {
	fb := newFake()
	fb.projects["p"] = threadSet("chat1")
	fb.history["chat1"] = chat.Transcript{{Prompt: "old", Response: "turn"}}
	m := NewManager(fb, settings.New(""))
	ctx := context.Background()
	require.NoError(t, m.LoadProjectThreads(ctx, "p"))

	release := fb.holdHistory("chat1")
	done := make(chan error, 1)
	go func() { done <- m.LoadThreadHistory(ctx, "chat1") }()
	require.Eventually(t, func() bool { return fb.historyWaiting("chat1") == 1 }, testTimeout, testTick)

	require.NoError(t, m.ClearThread(ctx, "chat1"))
	fb.mu.Lock()
	fb.history["chat1"] = chat.Transcript{{Prompt: "old", Response: "turn"}}
	fb.mu.Unlock()
	release()
	assert.ErrorIs(t, <-done, ErrStale)
	assert.Empty(t, m.Snapshot().Transcript)
}

func TestLateHistoryForOldProjectDropped(t *testing.T) {
	fb := newFake()
	fb.projects["p1"] = threadSet("chat1", "chat3")
	fb.projects["p2"] = threadSet("chat2")
	fb.history["chat1"] = chat.Transcript{{Prompt: "from p1", Response: "a"}}
	m := NewManager(fb, settings.New(""))
	ctx := context.Background()
	require.NoError(t, m.LoadProjectThreads(ctx, "p1"))
	require.NoError(t, m.SelectThread(ctx, "chat3"))

	release := fb.holdHistory("chat1")
	done := make(chan error, 1)
	go func() { done <- m.SelectThread(ctx, "chat1") }()
	require.Eventually(t, func() bool { return fb.historyWaiting("chat1") == 1 }, testTimeout, testTick)

	require.NoError(t, m.LoadProjectThreads(ctx, "p2"))
	release()
	assert.ErrorIs(t, <-done, ErrStale)

	snap := m.Snapshot()
	assert.Equal(t, "p2", snap.ProjectID)
	assert.Equal(t, []string{"chat2"}, snap.Threads)
	assert.Equal(t, "chat2", snap.Active)
	assert.Empty(t, snap.Transcript)
}

func TestHistoryForInactiveThreadDropped(t *testing.T) {
	fb := newFake()
	fb.projects["p"] = threadSet("chat1", "chat2")
	fb.history["chat2"] = chat.Transcript{{Prompt: "two", Response: "b"}}
	m := NewManager(fb, settings.New(""))
	ctx := context.Background()
	require.NoError(t, m.LoadProjectThreads(ctx, "p"))

	release := fb.holdHistory("chat1")
	done := make(chan error, 1)
	go func() { done <- m.LoadThreadHistory(ctx, "chat1") }()
	require.Eventually(t, func() bool { return fb.historyWaiting("chat1") == 1 }, testTimeout, testTick)

	fb.mu.Lock()
	fb.history["chat1"] = chat.Transcript{{Prompt: "late", Response: "x"}}
	fb.mu.Unlock()
	require.NoError(t, m.SelectThread(ctx, "chat2"))
	release()
	assert.ErrorIs(t, <-done, ErrStale)

	snap := m.Snapshot()
	assert.Equal(t, "chat2", snap.Active)
	assert.Equal(t, chat.Transcript{{Prompt: "two", Response: "b"}}, snap.Transcript)
}

func TestClearThreadOnlyThatThread(t *testing.T) {
	fb := newFake()
	fb.projects["p"] = threadSet("chat1", "chat2")
	fb.history["chat1"] = chat.Transcript{{Prompt: "a", Response: "b"}}
	fb.history["chat2"] = chat.Transcript{{Prompt: "c", Response: "d"}}
	m := NewManager(fb, settings.New(""))
	ctx := context.Background()
	require.NoError(t, m.LoadProjectThreads(ctx, "p"))
	require.NoError(t, m.SelectThread(ctx, "chat2"))

	require.NoError(t, m.ClearThread(ctx, "chat1"))
	assert.Equal(t, []string{"chat1"}, fb.cleared)
	assert.Len(t, m.Snapshot().Transcript, 1)

	require.NoError(t, m.SelectThread(ctx, "chat1"))
	assert.Empty(t, m.Snapshot().Transcript)
}

func TestClearThreadFailureKeepsTurns(t *testing.T) {
	fb := newFake()
	m := NewManager(fb, settings.New(""))
	_, err := m.SendQuery(context.Background(), "x")
	require.NoError(t, err)

	fb.clearErr = &backend.StatusError{Method: "DELETE", Path: "/history/chat1", Code: 500}
	assert.Error(t, m.ClearThread(context.Background(), "chat1"))
	assert.Len(t, m.Snapshot().Transcript, 1)
}
