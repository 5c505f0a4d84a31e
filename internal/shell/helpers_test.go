package shell

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// manualScheduler is a virtual clock. Timers fire only from Advance, on the
// caller's goroutine, in due order.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	scheduler *manualScheduler
	due       time.Duration
	fn        func()
	stopped   bool
	fired     bool
}

func (t *manualTimer) Stop() bool {
	t.scheduler.mu.Lock()
	defer t.scheduler.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := &manualTimer{scheduler: s, due: s.now + d, fn: fn}
	s.timers = append(s.timers, timer)
	return timer
}

func (s *manualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		var next *manualTimer
		for _, timer := range s.timers {
			if timer.stopped || timer.fired || timer.due > target {
				continue
			}
			if next == nil || timer.due < next.due {
				next = timer
			}
		}
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.now = next.due
		next.fired = true
		s.mu.Unlock()
		next.fn()
	}
}

type updateCall struct {
	noteID string
	fields NoteFields
	at     time.Duration
}

// fakeAPI is an in-memory server. Gates, when set, block the matching call
// until closed.
type fakeAPI struct {
	mu        sync.Mutex
	clock     func() time.Duration
	notes     []Note
	tags      []Tag
	nextID    int
	updatedAt time.Time

	updates       []updateCall
	updateErr     error
	updateGate    chan struct{}
	updateStarted chan string

	listHook func(NoteQuery)
	listErr  error

	deleteErr error

	enhanceCalls   int
	enhanceText    string
	enhanceErr     error
	enhanceGate    chan struct{}
	enhanceStarted chan string
}

func newFakeAPI(scheduler *manualScheduler, titles ...string) *fakeAPI {
	api := &fakeAPI{
		updatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		enhanceText: "Enhanced text.",
	}
	if scheduler != nil {
		api.clock = scheduler.Now
	}
	for _, title := range titles {
		api.notes = append(api.notes, api.newNoteLocked(title, ""))
	}
	return api
}

func (a *fakeAPI) newNoteLocked(title, content string) Note {
	a.nextID++
	a.updatedAt = a.updatedAt.Add(time.Second)
	return Note{
		ID:        fmt.Sprintf("note-%d", a.nextID),
		UserID:    "user-1",
		Title:     title,
		Content:   content,
		CreatedAt: a.updatedAt,
		UpdatedAt: a.updatedAt,
		Tags:      []Tag{},
	}
}

func (a *fakeAPI) ListNotes(_ context.Context, query NoteQuery) ([]Note, error) {
	a.mu.Lock()
	hook := a.listHook
	a.mu.Unlock()
	if hook != nil {
		hook(query)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listErr != nil {
		return nil, a.listErr
	}
	search := strings.ToLower(query.Search)
	found := []Note{}
	for _, note := range a.notes {
		if search != "" && !strings.Contains(strings.ToLower(note.Title+" "+note.Content), search) {
			continue
		}
		if query.TagID != "" && !containsString(note.TagIDs(), query.TagID) {
			continue
		}
		found = append(found, cloneNote(note))
	}
	return found, nil
}

func (a *fakeAPI) CreateNote(_ context.Context, fields NoteFields) (Note, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	note := a.newNoteLocked(fields.Title, fields.Content)
	a.notes = append([]Note{note}, a.notes...)
	return cloneNote(note), nil
}

func (a *fakeAPI) UpdateNote(_ context.Context, noteID string, fields NoteFields) (Note, error) {
	a.mu.Lock()
	call := updateCall{noteID: noteID, fields: fields}
	if a.clock != nil {
		call.at = a.clock()
	}
	a.updates = append(a.updates, call)
	started := a.updateStarted
	gate := a.updateGate
	a.mu.Unlock()

	if started != nil {
		started <- noteID
	}
	if gate != nil {
		<-gate
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.updateErr != nil {
		return Note{}, a.updateErr
	}
	for index, note := range a.notes {
		if note.ID != noteID {
			continue
		}
		a.updatedAt = a.updatedAt.Add(time.Second)
		note.Title = fields.Title
		note.Content = fields.Content
		note.UpdatedAt = a.updatedAt
		note.Tags = []Tag{}
		for _, tag := range a.tags {
			if containsString(fields.TagIDs, tag.ID) {
				note.Tags = append(note.Tags, tag)
			}
		}
		a.notes[index] = note
		return cloneNote(note), nil
	}
	return Note{}, &APIError{StatusCode: 404, Code: "not_found"}
}

func (a *fakeAPI) DeleteNote(_ context.Context, noteID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.deleteErr != nil {
		return a.deleteErr
	}
	for index, note := range a.notes {
		if note.ID == noteID {
			a.notes = append(a.notes[:index], a.notes[index+1:]...)
			return nil
		}
	}
	return &APIError{StatusCode: 404, Code: "not_found"}
}

func (a *fakeAPI) ListTags(context.Context) ([]Tag, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Tag{}, a.tags...), nil
}

func (a *fakeAPI) CreateTag(_ context.Context, name, color string) (Tag, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if color == "" {
		color = "#3b82f6"
	}
	tag := Tag{ID: fmt.Sprintf("tag-%d", len(a.tags)+1), UserID: "user-1", Name: name, Color: color}
	a.tags = append(a.tags, tag)
	return tag, nil
}

func (a *fakeAPI) Enhance(_ context.Context, content, mode string) (string, error) {
	a.mu.Lock()
	a.enhanceCalls++
	started := a.enhanceStarted
	gate := a.enhanceGate
	text, err := a.enhanceText, a.enhanceErr
	a.mu.Unlock()

	if started != nil {
		started <- content
	}
	if gate != nil {
		<-gate
	}
	return text, err
}

func (a *fakeAPI) updateCalls() []updateCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]updateCall(nil), a.updates...)
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *noticeRecorder) Notify(notice Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
}

func (r *noticeRecorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	messages := make([]string, 0, len(r.notices))
	for _, notice := range r.notices {
		messages = append(messages, notice.Message)
	}
	return messages
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
