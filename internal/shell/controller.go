package shell

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/notesai/backend/internal/enhance"
	"go.uber.org/zap"
)

// DefaultSaveDelay is the autosave quiescence window.
const DefaultSaveDelay = time.Second

var (
	ErrMissingAPI      = errors.New("shell: api is required")
	ErrNoSelection     = errors.New("shell: no note selected")
	ErrUnknownNote     = errors.New("shell: note is not in the list")
	ErrEmptyContent    = errors.New("shell: note content is empty")
	ErrEnhanceInFlight = errors.New("shell: enhancement already running for this note")
)

type NoticeLevel int

const (
	NoticeSuccess NoticeLevel = iota
	NoticeError
)

// Notice is a user-facing message, the equivalent of a toast.
type Notice struct {
	Level   NoticeLevel
	Message string
	Err     error
}

type Notifier interface {
	Notify(notice Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(notice Notice) {
	f(notice)
}

type ControllerConfig struct {
	API       API
	Scheduler Scheduler
	SaveDelay time.Duration
	Notifier  Notifier
	Logger    *zap.Logger
}

// Controller owns the client State and orchestrates server calls. State is
// only changed under mu; network calls run without it.
type Controller struct {
	mu             sync.Mutex
	api            API
	debouncer      *Debouncer
	notifier       Notifier
	logger         *zap.Logger
	state          State
	listGeneration uint64
	enhancing      map[string]bool
}

func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.API == nil {
		return nil, ErrMissingAPI
	}
	delay := cfg.SaveDelay
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NotifierFunc(func(Notice) {})
	}
	return &Controller{
		api:       cfg.API,
		debouncer: NewDebouncer(cfg.Scheduler, delay),
		notifier:  notifier,
		logger:    logger,
		enhancing: make(map[string]bool),
	}, nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Load fetches the note list for the current filters and the tag list.
func (c *Controller) Load(ctx context.Context) error {
	notesErr := c.refreshNotes(ctx)
	tagsErr := c.refreshTags(ctx)
	return errors.Join(notesErr, tagsErr)
}

// SetSearch changes the search filter and re-fetches the note list.
func (c *Controller) SetSearch(ctx context.Context, search string) error {
	c.mu.Lock()
	c.state = c.state.WithSearch(search)
	c.mu.Unlock()
	return c.refreshNotes(ctx)
}

// SetTagFilter changes the tag filter and re-fetches the note list. An empty
// id clears the filter.
func (c *Controller) SetTagFilter(ctx context.Context, tagID string) error {
	c.mu.Lock()
	c.state = c.state.WithTagFilter(tagID)
	c.mu.Unlock()
	return c.refreshNotes(ctx)
}

// Select switches the editor to id, dropping any pending save for the
// previously selected note.
func (c *Controller) Select(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.indexOf(id) < 0 {
		return ErrUnknownNote
	}
	if c.state.SelectedID == id {
		return nil
	}
	c.cancelPendingSaveLocked(c.state.SelectedID)
	c.state = c.state.SelectNote(id)
	return nil
}

func (c *Controller) EditTitle(title string) error {
	return c.editDraft(func(state State) State { return state.EditTitle(title) })
}

func (c *Controller) EditContent(content string) error {
	return c.editDraft(func(state State) State { return state.EditContent(content) })
}

func (c *Controller) EditTags(tagIDs []string) error {
	return c.editDraft(func(state State) State { return state.EditTags(tagIDs) })
}

func (c *Controller) ToggleTag(tagID string) error {
	return c.editDraft(func(state State) State { return state.ToggleTag(tagID) })
}

// Flush cancels the autosave timer for the selected note and saves now.
func (c *Controller) Flush(ctx context.Context) error {
	c.mu.Lock()
	noteID := c.state.Draft.NoteID
	c.mu.Unlock()
	if noteID == "" {
		return ErrNoSelection
	}
	c.debouncer.Cancel(noteID)
	return c.save(ctx, noteID)
}

// SavePending reports whether an autosave is waiting for noteID.
func (c *Controller) SavePending(noteID string) bool {
	return c.debouncer.Pending(noteID)
}

// CreateNote creates an empty note on the server, then prepends and selects it.
func (c *Controller) CreateNote(ctx context.Context) (Note, error) {
	created, err := c.api.CreateNote(ctx, NoteFields{Title: DefaultTitle, TagIDs: []string{}})
	if err != nil {
		c.fail("Failed to create note", err)
		return Note{}, err
	}

	c.mu.Lock()
	c.cancelPendingSaveLocked(c.state.SelectedID)
	c.state = c.state.PrependCreated(created)
	c.mu.Unlock()
	return created, nil
}

// DeleteNote deletes on the server first and only then removes the note
// locally.
func (c *Controller) DeleteNote(ctx context.Context, id string) error {
	if err := c.api.DeleteNote(ctx, id); err != nil {
		c.fail("Failed to delete note", err)
		return err
	}

	c.mu.Lock()
	c.cancelPendingSaveLocked(id)
	c.state = c.state.RemoveNote(id)
	c.mu.Unlock()
	c.notify(Notice{Level: NoticeSuccess, Message: "Note deleted"})
	return nil
}

// CreateTag creates a tag, refreshes the tag list and attaches the tag to
// the selected note's draft.
func (c *Controller) CreateTag(ctx context.Context, name, color string) (Tag, error) {
	tag, err := c.api.CreateTag(ctx, name, color)
	if err != nil {
		c.fail("Failed to create tag", err)
		return Tag{}, err
	}

	if refreshErr := c.refreshTags(ctx); refreshErr != nil {
		c.mu.Lock()
		c.state = c.state.WithTags(append(c.state.Tags, tag))
		c.mu.Unlock()
	}

	c.mu.Lock()
	noteID := c.state.Draft.NoteID
	if noteID != "" {
		c.state = c.state.EditTags(append(c.state.Draft.TagIDs, tag.ID))
	}
	c.mu.Unlock()
	if noteID != "" {
		c.scheduleSave(noteID)
	}
	return tag, nil
}

// Enhance sends the selected draft's content to the enhancement endpoint.
// The result replaces the draft content only if the same note is still
// selected when the response arrives. Unknown modes are rejected before
// any request is sent.
func (c *Controller) Enhance(ctx context.Context, rawMode string) (string, error) {
	mode, err := enhance.ParseMode(rawMode)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	noteID := c.state.Draft.NoteID
	content := c.state.Draft.Content
	switch {
	case noteID == "":
		c.mu.Unlock()
		return "", ErrNoSelection
	case strings.TrimSpace(content) == "":
		c.mu.Unlock()
		c.fail("Please add some content first", ErrEmptyContent)
		return "", ErrEmptyContent
	case c.enhancing[noteID]:
		c.mu.Unlock()
		return "", ErrEnhanceInFlight
	}
	c.enhancing[noteID] = true
	c.mu.Unlock()

	text, err := c.api.Enhance(ctx, content, string(mode))

	c.mu.Lock()
	delete(c.enhancing, noteID)
	if err != nil {
		c.mu.Unlock()
		c.fail("Failed to enhance note", err)
		return "", err
	}
	applied := c.state.Draft.NoteID == noteID
	if applied {
		c.state = c.state.EditContent(text)
	}
	c.mu.Unlock()

	if applied {
		c.scheduleSave(noteID)
	}
	c.notify(Notice{Level: NoticeSuccess, Message: "Note " + mode.PastTense() + " by AI"})
	return text, nil
}

// Enhancing reports whether an enhancement is outstanding for noteID.
func (c *Controller) Enhancing(noteID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enhancing[noteID]
}

func (c *Controller) editDraft(apply func(State) State) error {
	c.mu.Lock()
	noteID := c.state.Draft.NoteID
	if noteID == "" {
		c.mu.Unlock()
		return ErrNoSelection
	}
	c.state = apply(c.state)
	c.mu.Unlock()

	c.scheduleSave(noteID)
	return nil
}

func (c *Controller) scheduleSave(noteID string) {
	c.debouncer.Schedule(noteID, func() {
		if err := c.save(context.Background(), noteID); err != nil {
			c.logger.Debug("autosave failed", zap.String("note_id", noteID), zap.Error(err))
		}
	})
}

// save sends the current draft for noteID. Nothing is sent if the editor
// has since moved to another note.
func (c *Controller) save(ctx context.Context, noteID string) error {
	c.mu.Lock()
	draft := c.state.Draft
	if draft.NoteID != noteID {
		c.mu.Unlock()
		return nil
	}
	fields := NoteFields{
		Title:   draft.Title,
		Content: draft.Content,
		TagIDs:  append([]string{}, draft.TagIDs...),
	}
	c.mu.Unlock()

	saved, err := c.api.UpdateNote(ctx, noteID, fields)
	if err != nil {
		c.fail("Failed to save note", err)
		return err
	}

	c.mu.Lock()
	c.state = c.state.ApplySavedNote(saved, draft.Revision)
	c.mu.Unlock()
	return nil
}

func (c *Controller) refreshNotes(ctx context.Context) error {
	c.mu.Lock()
	c.listGeneration++
	generation := c.listGeneration
	query := NoteQuery{Search: c.state.Search, TagID: c.state.TagFilter}
	c.mu.Unlock()

	fetched, err := c.api.ListNotes(ctx, query)
	if err != nil {
		c.fail("Failed to load notes", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.listGeneration {
		c.logger.Debug("discarding stale note list", zap.Uint64("generation", generation))
		return nil
	}
	previous := c.state.SelectedID
	c.state = c.state.ReconcileNotes(fetched)
	if c.state.SelectedID != previous {
		c.cancelPendingSaveLocked(previous)
	}
	return nil
}

func (c *Controller) refreshTags(ctx context.Context) error {
	fetched, err := c.api.ListTags(ctx)
	if err != nil {
		c.fail("Failed to load tags", err)
		return err
	}
	c.mu.Lock()
	c.state = c.state.WithTags(fetched)
	c.mu.Unlock()
	return nil
}

func (c *Controller) cancelPendingSaveLocked(noteID string) {
	if noteID == "" {
		return
	}
	if c.debouncer.Cancel(noteID) {
		c.logger.Debug("dropped pending save", zap.String("note_id", noteID))
	}
}

func (c *Controller) fail(message string, err error) {
	c.logger.Warn(message, zap.Error(err))
	c.notify(Notice{Level: NoticeError, Message: message, Err: err})
}

func (c *Controller) notify(notice Notice) {
	c.notifier.Notify(notice)
}
