package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrEmptyName is returned when creating a note with a blank name.
	ErrEmptyName = errors.New("note name is empty")
	// ErrNoSelection is returned when saving without a selected note.
	ErrNoSelection = errors.New("no note selected")
)

// Backend is the subset of the backend client the store needs.
type Backend interface {
	ListNotes(ctx context.Context, projectID string) ([]string, error)
	GetNote(ctx context.Context, projectID, name string) (string, error)
	SaveNote(ctx context.Context, projectID, name, content string) error
}

// Snapshot is a copy of the store state for rendering.
type Snapshot struct {
	ProjectID string
	Notes     []string
	Selected  string
	Content   string
	Saving    bool
	Err       string
}

// Store tracks the notes of the active project and the editor buffer.
// Saves overwrite; the last write wins.
type Store struct {
	backend Backend
	log     zerolog.Logger

	mu        sync.Mutex
	projectID string
	notes     []string
	selected  string
	content   string
	saving    bool
	lastErr   string
	gen       uint64
}

func New(backend Backend, log zerolog.Logger) *Store {
	return &Store{backend: backend, log: log.With().Str("component", "notes").Logger()}
}

// List loads the note names of projectID and resets the selection.
func (s *Store) List(ctx context.Context, projectID string) ([]string, error) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.projectID = projectID
	s.notes = nil
	s.selected = ""
	s.content = ""
	s.lastErr = ""
	s.mu.Unlock()

	names, err := s.backend.ListNotes(ctx, projectID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil, fmt.Errorf("list notes %s: superseded", projectID)
	}
	if err != nil {
		s.lastErr = err.Error()
		s.log.Error().Err(err).Str("project", projectID).Msg("list notes")
		return nil, fmt.Errorf("list notes %s: %w", projectID, err)
	}
	s.notes = append([]string(nil), names...)
	return append([]string(nil), names...), nil
}

// Load fetches a note body. On failure the editor content becomes empty.
func (s *Store) Load(ctx context.Context, projectID, name string) (string, error) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	content, err := s.backend.GetNote(ctx, projectID, name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || projectID != s.projectID || name != s.selected {
		return content, err
	}
	if err != nil {
		s.content = ""
		s.lastErr = err.Error()
		s.log.Error().Err(err).Str("project", projectID).Str("note", name).Msg("load note")
		return "", fmt.Errorf("load note %s: %w", name, err)
	}
	s.content = content
	s.lastErr = ""
	return content, nil
}

// Select makes name the selected note and loads its body.
func (s *Store) Select(ctx context.Context, name string) error {
	s.mu.Lock()
	projectID := s.projectID
	s.selected = name
	s.content = ""
	s.mu.Unlock()
	_, err := s.Load(ctx, projectID, name)
	return err
}

// SetContent replaces the editor buffer without saving.
func (s *Store) SetContent(content string) {
	s.mu.Lock()
	s.content = content
	s.mu.Unlock()
}

// Save overwrites the note name with content.
func (s *Store) Save(ctx context.Context, projectID, name, content string) error {
	if name == "" {
		return ErrNoSelection
	}
	s.mu.Lock()
	s.saving = true
	s.mu.Unlock()

	err := s.backend.SaveNote(ctx, projectID, name, content)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if err != nil {
		s.lastErr = err.Error()
		s.log.Error().Err(err).Str("project", projectID).Str("note", name).Msg("save note")
		return fmt.Errorf("save note %s: %w", name, err)
	}
	s.lastErr = ""
	return nil
}

// SaveSelected saves the editor buffer to the selected note.
func (s *Store) SaveSelected(ctx context.Context) error {
	s.mu.Lock()
	projectID, name, content := s.projectID, s.selected, s.content
	s.mu.Unlock()
	return s.Save(ctx, projectID, name, content)
}

// Create posts an empty note, appends it to the list, selects it and clears
// the editor.
func (s *Store) Create(ctx context.Context, projectID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if err := s.Save(ctx, projectID, name, ""); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if projectID != s.projectID {
		return nil
	}
	exists := false
	for _, n := range s.notes {
		if n == name {
			exists = true
			break
		}
	}
	if !exists {
		s.notes = append(s.notes, name)
	}
	s.selected = name
	s.content = ""
	return nil
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ProjectID: s.projectID,
		Notes:     append([]string(nil), s.notes...),
		Selected:  s.selected,
		Content:   s.content,
		Saving:    s.saving,
		Err:       s.lastErr,
	}
}
