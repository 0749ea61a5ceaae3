// Package app wires the services together and owns the active project.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"querydesk/internal/backend"
	"querydesk/internal/catalog"
	"querydesk/internal/chat"
	"querydesk/internal/config"
	"querydesk/internal/notes"
	"querydesk/internal/projects"
	"querydesk/internal/session"
	"querydesk/internal/settings"
	"querydesk/internal/storage"
	"querydesk/internal/tokenizer"

	"github.com/rs/zerolog"
)

// App is the composition root. Project switches fan out from here only.
type App struct {
	Config   config.Config
	Backend  *backend.Client
	Settings *settings.Store
	Catalog  *catalog.Catalog
	Projects *projects.Directory
	Notes    *notes.Store
	Session  *session.Manager
	// Journal is nil when storage.journal is off or the database failed to open.
	Journal *storage.Journal
	// TokenizerFor picks the token counter for a model. Loading a tiktoken
	// encoding may hit the network the first time.
	TokenizerFor func(model string) *tokenizer.Tokenizer

	log zerolog.Logger
}

// New builds every service from cfg. A journal that cannot be opened is
// logged and skipped.
func New(cfg config.Config, logger zerolog.Logger) *App {
	a := &App{
		Config:       cfg,
		TokenizerFor: tokenizer.ForModel,
		log:          logger.With().Str("component", "app").Logger(),
	}

	a.Backend = backend.NewClient(backend.Options{
		BaseURL:           cfg.Backend.BaseURL,
		TimeoutMS:         cfg.Backend.TimeoutMS,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		NoteEncoding:      backend.NoteEncoding(cfg.Backend.NoteEncoding),
		Logger:            logger,
	})
	a.Settings = settings.New(cfg.Model.Default)
	a.Catalog = catalog.New(catalog.Config{
		BaseURL:      cfg.Catalog.BaseURL,
		APIKey:       cfg.Catalog.APIKey,
		TimeoutMS:    cfg.Catalog.TimeoutMS,
		DefaultModel: cfg.Model.Default,
		Logger:       logger,
	})
	a.Projects = projects.New(a.Backend, logger, a.projectSelected)
	a.Notes = notes.New(a.Backend, logger)

	opts := []session.Option{session.WithLogger(logger)}
	if cfg.Storage.Journal {
		j, err := storage.Open(cfg.JournalPath())
		if err != nil {
			a.log.Warn().Err(err).Str("path", cfg.JournalPath()).Msg("query journal disabled")
		} else {
			a.Journal = j
			opts = append(opts, session.WithJournal(journalAdapter{j}))
		}
	}
	a.Session = session.NewManager(a.Backend, a.Settings, opts...)
	return a
}

func (a *App) projectSelected(name string) {
	a.log.Info().Str("project", name).Msg("switch project")
}

// ActiveProject returns the selected project id.
func (a *App) ActiveProject() string {
	return a.Projects.Selected()
}

// Start refreshes projects, loads the model catalog and opens the default
// project. Failures degrade to empty or default state and are returned joined.
func (a *App) Start(ctx context.Context) error {
	var errs []error
	if err := a.Projects.Refresh(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.Catalog.Load(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.SwitchProject(ctx, a.ActiveProject()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SwitchProject records id as active, then reloads its threads and notes.
func (a *App) SwitchProject(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		id = chat.DefaultProject
	}
	a.Projects.Select(id)

	var errs []error
	if err := a.Session.LoadProjectThreads(ctx, id); err != nil && !errors.Is(err, session.ErrStale) {
		errs = append(errs, err)
	}
	if _, err := a.Notes.List(ctx, id); err != nil && a.ActiveProject() == id {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// CreateProject creates a project and switches to it.
func (a *App) CreateProject(ctx context.Context, name string) error {
	if err := a.Projects.Create(ctx, name); err != nil {
		return err
	}
	return a.SwitchProject(ctx, strings.TrimSpace(name))
}

// CreateNote creates an empty note in the active project.
func (a *App) CreateNote(ctx context.Context, name string) error {
	return a.Notes.Create(ctx, a.ActiveProject(), name)
}

// SelectModel makes model the active model.
func (a *App) SelectModel(model string) error {
	if err := a.Settings.SetModel(model); err != nil {
		return fmt.Errorf("select model: %w", err)
	}
	a.log.Info().Str("model", model).Msg("model selected")
	return nil
}

// TokenCount estimates the size of the active transcript for the active model.
func (a *App) TokenCount() int {
	snap := a.Session.Snapshot()
	return a.TokenizerFor(a.Settings.Model()).CountTranscript(snap.Transcript)
}

// RecentQueries lists journal entries, newest first.
func (a *App) RecentQueries(ctx context.Context, limit int) ([]storage.Entry, error) {
	if a.Journal == nil {
		return nil, ErrNoJournal
	}
	return a.Journal.Recent(ctx, limit)
}

// ThreadQueries lists the journal entries of the active thread, oldest first.
func (a *App) ThreadQueries(ctx context.Context) ([]storage.Entry, error) {
	if a.Journal == nil {
		return nil, ErrNoJournal
	}
	snap := a.Session.Snapshot()
	return a.Journal.ForThread(ctx, snap.ProjectID, snap.Active)
}

// ErrNoJournal is returned when the query journal is disabled.
var ErrNoJournal = errors.New("query journal is disabled")

// Close releases the journal.
func (a *App) Close() error {
	if a.Journal == nil {
		return nil
	}
	return a.Journal.Close()
}

type journalAdapter struct {
	j *storage.Journal
}

func (ja journalAdapter) RecordQuery(ctx context.Context, o session.Outcome) error {
	e := storage.Entry{
		ProjectID:        o.Request.ProjectID,
		ChatID:           o.Request.ChatID,
		Model:            o.Request.Model,
		Temperature:      o.Request.Temperature,
		TopP:             o.Request.TopP,
		TopK:             o.Request.TopK,
		FrequencyPenalty: o.Request.FrequencyPenalty,
		Prompt:           o.Request.Prompt,
		Response:         o.Response,
		ElapsedMS:        o.Elapsed.Milliseconds(),
		CreatedAt:        o.Started,
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
	}
	_, err := ja.j.Record(ctx, e)
	return err
}
