package projects

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"querydesk/internal/chat"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"
)

// ErrEmptyName is returned for a blank project name.
var ErrEmptyName = errors.New("project name is empty")

// Backend is the subset of the backend client the directory needs.
type Backend interface {
	ListProjects(ctx context.Context) ([]string, error)
	CreateProject(ctx context.Context, name string) error
}

// Directory lists and creates projects. It never renames or deletes.
type Directory struct {
	backend  Backend
	log      zerolog.Logger
	onSelect func(name string)

	mu       sync.RWMutex
	projects []string
	selected string
}

// New returns a directory whose selection starts at the default project.
// onSelect may be nil.
func New(backend Backend, log zerolog.Logger, onSelect func(name string)) *Directory {
	return &Directory{
		backend:  backend,
		log:      log.With().Str("component", "projects").Logger(),
		onSelect: onSelect,
		selected: chat.DefaultProject,
	}
}

// Refresh reloads the project list. The previous list is kept on failure.
func (d *Directory) Refresh(ctx context.Context) error {
	names, err := d.backend.ListProjects(ctx)
	if err != nil {
		d.log.Error().Err(err).Msg("list projects")
		return fmt.Errorf("list projects: %w", err)
	}
	out := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	d.mu.Lock()
	d.projects = out
	d.mu.Unlock()
	return nil
}

// Create validates and creates a project, then refreshes the list.
func (d *Directory) Create(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := d.backend.CreateProject(ctx, name); err != nil {
		d.log.Error().Err(err).Str("project", name).Msg("create project")
		return fmt.Errorf("create project %q: %w", name, err)
	}
	return d.Refresh(ctx)
}

// ValidateName checks a trimmed project name.
func ValidateName(name string) error {
	return validation.Validate(name,
		validation.Required,
		validation.Length(1, 128),
		validation.Match(projectNamePattern).Error("project name cannot contain slashes"),
	)
}

var projectNamePattern = regexp.MustCompile(`^[^/\\]+$`)

// Projects returns a copy of the known project names.
func (d *Directory) Projects() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.projects))
	copy(out, d.projects)
	return out
}

// Selected returns the most recently selected project.
func (d *Directory) Selected() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selected
}

// Select records name as selected and notifies the callback.
func (d *Directory) Select(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	d.mu.Lock()
	d.selected = name
	cb := d.onSelect
	d.mu.Unlock()
	if cb != nil {
		cb(name)
	}
}

