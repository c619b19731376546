package events

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/users"
)

// memStore is an in-memory Repository. A transaction holds the store lock
// from BeginTx until Commit or Rollback, so transactions are serialised and
// Rollback restores the snapshot taken at BeginTx.
type memStore struct {
	mu        sync.Mutex
	events    map[string]Event
	attendees map[string]Attendee
	usernames map[string]string
	outbox    []Notification

	enqueueErr         error
	createAttendeesErr error
	commits            int
	rollbacks          int
}

func newMemStore() *memStore {
	return &memStore{
		events:    map[string]Event{},
		attendees: map[string]Attendee{},
		usernames: map[string]string{},
	}
}

type memSnapshot struct {
	events    map[string]Event
	attendees map[string]Attendee
	outbox    []Notification
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		events:    make(map[string]Event, len(s.events)),
		attendees: make(map[string]Attendee, len(s.attendees)),
		outbox:    append([]Notification(nil), s.outbox...),
	}
	for k, v := range s.events {
		snap.events[k] = v
	}
	for k, v := range s.attendees {
		snap.attendees[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.events = snap.events
	s.attendees = snap.attendees
	s.outbox = snap.outbox
}

// repo returns the non-transactional Repository view.
func (s *memStore) repo() *memRepo {
	return &memRepo{store: s}
}

func (s *memStore) event(id string) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	return ev, ok
}

func (s *memStore) attendeeCount(eventID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attendees {
		if a.EventID == eventID {
			n++
		}
	}
	return n
}

func (s *memStore) notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.outbox...)
}

func attendeeKey(eventID, userID string) string {
	return eventID + "/" + userID
}

type memRepo struct {
	store *memStore
	inTx  bool
}

type memTx struct {
	store *memStore
	snap  memSnapshot
	done  bool
}

func (t *memTx) Commit(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.commits++
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.restore(t.snap)
	t.store.rollbacks++
	t.store.mu.Unlock()
	return nil
}

func (r *memRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *memRepo) BeginTx(context.Context) (Repository, TxCommitter, error) {
	r.store.mu.Lock()
	return &memRepo{store: r.store, inTx: true}, &memTx{store: r.store, snap: r.store.snapshot()}, nil
}

func (r *memRepo) CreateEvent(_ context.Context, params CreateParams) (*Event, error) {
	defer r.lock()()
	for _, ev := range r.store.events {
		if ev.CreatedBy == params.CreatedBy && ev.Title == params.Title {
			return nil, ErrDuplicateTitle
		}
	}
	now := time.Now()
	ev := Event{
		ID:              params.ID,
		Title:           params.Title,
		Description:     params.Description,
		Date:            params.Date,
		Location:        params.Location,
		TotalCapacity:   params.TotalCapacity,
		RegisteredCount: params.RegisteredCount,
		CreatedBy:       params.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.store.events[ev.ID] = ev
	return &ev, nil
}

func (r *memRepo) GetEvent(_ context.Context, id string) (*Event, error) {
	defer r.lock()()
	ev, ok := r.store.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &ev, nil
}

func (r *memRepo) FindEventByTitle(_ context.Context, creatorID, title string) (*Event, error) {
	defer r.lock()()
	for _, ev := range r.store.events {
		if ev.CreatedBy == creatorID && ev.Title == title {
			found := ev
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) ListEvents(_ context.Context, filters Filters) (ListResult, error) {
	defer r.lock()()
	var matched []Event
	start, end, hasDay := filters.DayRange()
	for _, ev := range r.store.events {
		if filters.Title != "" && !strings.Contains(strings.ToLower(ev.Title), strings.ToLower(filters.Title)) {
			continue
		}
		if filters.Location != "" && !strings.Contains(strings.ToLower(ev.Location), strings.ToLower(filters.Location)) {
			continue
		}
		if hasDay && (ev.Date.Before(start) || !ev.Date.Before(end)) {
			continue
		}
		if filters.Capacity != nil && ev.Remaining() != *filters.Capacity {
			continue
		}
		matched = append(matched, ev)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	result := ListResult{Total: len(matched)}
	offset := filters.Offset()
	if offset >= len(matched) {
		return result, nil
	}
	stop := offset + filters.PageSize()
	if stop > len(matched) {
		stop = len(matched)
	}
	result.Events = matched[offset:stop]
	return result, nil
}

func (r *memRepo) UpdateEvent(_ context.Context, id string, params UpdateParams) (*Event, error) {
	defer r.lock()()
	ev, ok := r.store.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	if params.TotalCapacity != nil && *params.TotalCapacity < ev.RegisteredCount {
		return nil, ErrCapacityExceeded
	}
	if params.Title != nil {
		ev.Title = *params.Title
	}
	if params.Description != nil {
		ev.Description = *params.Description
	}
	if params.Date != nil {
		ev.Date = *params.Date
	}
	if params.Location != nil {
		ev.Location = *params.Location
	}
	if params.TotalCapacity != nil {
		ev.TotalCapacity = *params.TotalCapacity
	}
	ev.UpdatedAt = time.Now()
	r.store.events[id] = ev
	return &ev, nil
}

func (r *memRepo) DeleteEvent(_ context.Context, id string) error {
	defer r.lock()()
	if _, ok := r.store.events[id]; !ok {
		return ErrNotFound
	}
	delete(r.store.events, id)
	return nil
}

func (r *memRepo) IncrementRegistered(_ context.Context, eventID string) (bool, error) {
	defer r.lock()()
	ev, ok := r.store.events[eventID]
	if !ok || ev.RegisteredCount >= ev.TotalCapacity {
		return false, nil
	}
	ev.RegisteredCount++
	r.store.events[eventID] = ev
	return true, nil
}

func (r *memRepo) DecrementRegistered(_ context.Context, eventID string) (bool, error) {
	defer r.lock()()
	ev, ok := r.store.events[eventID]
	if !ok || ev.RegisteredCount <= 0 {
		return false, nil
	}
	ev.RegisteredCount--
	r.store.events[eventID] = ev
	return true, nil
}

func (r *memRepo) CreateAttendee(_ context.Context, params AttendeeParams) (*Attendee, error) {
	defer r.lock()()
	key := attendeeKey(params.EventID, params.UserID)
	if _, ok := r.store.attendees[key]; ok {
		return nil, ErrAlreadyRegistered
	}
	a := Attendee{
		ID:        params.ID,
		EventID:   params.EventID,
		UserID:    params.UserID,
		Username:  r.store.usernames[params.UserID],
		CreatedAt: time.Now(),
	}
	r.store.attendees[key] = a
	return &a, nil
}

func (r *memRepo) CreateAttendees(_ context.Context, params []AttendeeParams) error {
	defer r.lock()()
	if r.store.createAttendeesErr != nil {
		return r.store.createAttendeesErr
	}
	for _, p := range params {
		key := attendeeKey(p.EventID, p.UserID)
		if _, ok := r.store.attendees[key]; ok {
			return ErrAlreadyRegistered
		}
		r.store.attendees[key] = Attendee{ID: p.ID, EventID: p.EventID, UserID: p.UserID, Username: r.store.usernames[p.UserID], CreatedAt: time.Now()}
	}
	return nil
}

func (r *memRepo) ListAttendees(_ context.Context, eventID string) ([]Attendee, error) {
	defer r.lock()()
	var out []Attendee
	for _, a := range r.store.attendees {
		if a.EventID == eventID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) FindAttendee(_ context.Context, eventID, userID string) (*Attendee, error) {
	defer r.lock()()
	a, ok := r.store.attendees[attendeeKey(eventID, userID)]
	if !ok {
		return nil, ErrNotRegistered
	}
	return &a, nil
}

func (r *memRepo) DeleteAttendee(_ context.Context, eventID, userID string) (bool, error) {
	defer r.lock()()
	key := attendeeKey(eventID, userID)
	if _, ok := r.store.attendees[key]; !ok {
		return false, nil
	}
	delete(r.store.attendees, key)
	return true, nil
}

func (r *memRepo) DeleteAttendeesByEvent(_ context.Context, eventID string) (int64, error) {
	defer r.lock()()
	var n int64
	for key, a := range r.store.attendees {
		if a.EventID == eventID {
			delete(r.store.attendees, key)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) EnqueueNotification(_ context.Context, n Notification) error {
	defer r.lock()()
	if r.store.enqueueErr != nil {
		return r.store.enqueueErr
	}
	r.store.outbox = append(r.store.outbox, n)
	return nil
}

// memDirectory is a fixed set of users.
type memDirectory struct {
	users map[string]*users.User
}

func newMemDirectory(list ...*users.User) *memDirectory {
	d := &memDirectory{users: map[string]*users.User{}}
	for _, u := range list {
		d.users[u.ID] = u
	}
	return d
}

func (d *memDirectory) GetByID(_ context.Context, id string) (*users.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	return u, nil
}

func (d *memDirectory) ExistingIDs(_ context.Context, candidates []string) ([]string, error) {
	var out []string
	for _, id := range candidates {
		if _, ok := d.users[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}
