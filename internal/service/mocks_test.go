package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/mailer-backend/internal/errors"
	"github.com/unclebandit/mailer-backend/internal/model"
)

// MockMailingRepo keeps mailings and their recipients in memory.
type MockMailingRepo struct {
	mu       sync.Mutex
	mailings map[int]*model.Mailing
	clients  map[int]model.Client
	nextID   int

	findErr        error
	setActiveErr   error
	setActiveCalls int
	statusWrites   map[int]model.Status
	recipientCalls int
}

func NewMockMailingRepo(clients ...model.Client) *MockMailingRepo {
	r := &MockMailingRepo{
		mailings:     map[int]*model.Mailing{},
		clients:      map[int]model.Client{},
		statusWrites: map[int]model.Status{},
		nextID:       1,
	}
	for _, c := range clients {
		r.clients[c.ID] = c
	}
	return r
}

func (r *MockMailingRepo) add(m *model.Mailing) *model.Mailing {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == 0 {
		m.ID = r.nextID
	}
	if m.ID >= r.nextID {
		r.nextID = m.ID + 1
	}
	r.mailings[m.ID] = m
	return m
}

func (r *MockMailingRepo) get(id int) model.Mailing {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.mailings[id]
}

func (r *MockMailingRepo) Create(ctx context.Context, m *model.Mailing) error {
	if err := m.Validate(); err != nil {
		return err
	}
	cp := *m
	r.add(&cp)
	m.ID = cp.ID
	return nil
}

func (r *MockMailingRepo) GetByID(ctx context.Context, id int) (*model.Mailing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mailings[id]
	if !ok {
		return nil, appErrors.NewMailingNotFound(id)
	}
	cp := *m
	return &cp, nil
}

func (r *MockMailingRepo) sorted(keep func(*model.Mailing) bool) []*model.Mailing {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Mailing{}
	for _, m := range r.mailings {
		if keep(m) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *MockMailingRepo) ListByOwner(ctx context.Context, ownerID int) ([]*model.Mailing, error) {
	return r.sorted(func(m *model.Mailing) bool { return m.OwnerID == ownerID }), nil
}

func (r *MockMailingRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mailings[id]; !ok {
		return appErrors.NewMailingNotFound(id)
	}
	delete(r.mailings, id)
	return nil
}

func (r *MockMailingRepo) FindForDispatch(ctx context.Context, p model.Periodicity) ([]*model.Mailing, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.sorted(func(m *model.Mailing) bool {
		return m.Periodicity == p && m.Status == model.StatusStarted && m.IsActive
	}), nil
}

func (r *MockMailingRepo) ListRecipients(ctx context.Context, mailingID int) ([]model.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recipientCalls++
	m, ok := r.mailings[mailingID]
	if !ok {
		return nil, appErrors.NewMailingNotFound(mailingID)
	}
	out := []model.Client{}
	for _, id := range m.ClientIDs {
		if c, ok := r.clients[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MockMailingRepo) UpdateStatus(ctx context.Context, id int, status model.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mailings[id]
	if !ok {
		return appErrors.NewMailingNotFound(id)
	}
	m.Status = status
	r.statusWrites[id] = status
	return nil
}

func (r *MockMailingRepo) SetActiveByOwner(ctx context.Context, ownerID int, active bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setActiveCalls++
	if r.setActiveErr != nil {
		return 0, r.setActiveErr
	}
	var n int64
	for _, m := range r.mailings {
		if m.OwnerID == ownerID {
			m.IsActive = active
			n++
		}
	}
	return n, nil
}

func (r *MockMailingRepo) SetActiveAndStatus(ctx context.Context, id int, active bool, status model.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mailings[id]
	if !ok {
		return appErrors.NewMailingNotFound(id)
	}
	m.IsActive, m.Status = active, status
	return nil
}

func (r *MockMailingRepo) CountDistinctRecipients(ctx context.Context, ownerID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	emails := map[string]bool{}
	for _, m := range r.mailings {
		if m.OwnerID != ownerID {
			continue
		}
		for _, id := range m.ClientIDs {
			emails[r.clients[id].Email] = true
		}
	}
	return len(emails), nil
}

type MockMessageRepo struct {
	messages map[int]*model.Message
}

func NewMockMessageRepo(msgs ...model.Message) *MockMessageRepo {
	r := &MockMessageRepo{messages: map[int]*model.Message{}}
	for i := range msgs {
		r.messages[msgs[i].ID] = &msgs[i]
	}
	return r
}

func (r *MockMessageRepo) Create(ctx context.Context, m *model.Message) error {
	m.ID = len(r.messages) + 1
	r.messages[m.ID] = m
	return nil
}

func (r *MockMessageRepo) GetByID(ctx context.Context, id int) (*model.Message, error) {
	m, ok := r.messages[id]
	if !ok {
		return nil, appErrors.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *MockMessageRepo) ListByOwner(ctx context.Context, ownerID int) ([]model.Message, error) {
	out := []model.Message{}
	for _, m := range r.messages {
		if m.OwnerID == ownerID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *MockMessageRepo) Update(ctx context.Context, m *model.Message) error {
	if _, ok := r.messages[m.ID]; !ok {
		return appErrors.ErrMessageNotFound
	}
	cp := *m
	r.messages[m.ID] = &cp
	return nil
}

func (r *MockMessageRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.messages[id]; !ok {
		return appErrors.ErrMessageNotFound
	}
	delete(r.messages, id)
	return nil
}

type MockClientRepo struct {
	clients map[int]*model.Client
}

func NewMockClientRepo(clients ...model.Client) *MockClientRepo {
	r := &MockClientRepo{clients: map[int]*model.Client{}}
	for i := range clients {
		r.clients[clients[i].ID] = &clients[i]
	}
	return r
}

func (r *MockClientRepo) Create(ctx context.Context, c *model.Client) error {
	c.ID = len(r.clients) + 100
	r.clients[c.ID] = c
	return nil
}

func (r *MockClientRepo) GetByID(ctx context.Context, id int) (*model.Client, error) {
	c, ok := r.clients[id]
	if !ok {
		return nil, appErrors.ErrClientNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MockClientRepo) ListByOwner(ctx context.Context, ownerID int) ([]model.Client, error) {
	out := []model.Client{}
	for _, c := range r.clients {
		if c.OwnerID == ownerID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *MockClientRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.clients[id]; !ok {
		return appErrors.ErrClientNotFound
	}
	delete(r.clients, id)
	return nil
}

// MockLogRepo records appended delivery logs in order.
type MockLogRepo struct {
	mu        sync.Mutex
	logs      []model.DeliveryLog
	appendErr error
	// failFor rejects rows for these recipients only.
	failFor map[string]bool
}

func (r *MockLogRepo) Append(ctx context.Context, l *model.DeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	if r.failFor[l.Recipient] {
		return errStoreDown
	}
	l.ID = len(r.logs) + 1
	r.logs = append(r.logs, *l)
	return nil
}

func (r *MockLogRepo) all() []model.DeliveryLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.DeliveryLog(nil), r.logs...)
}

func (r *MockLogRepo) ListByOwner(ctx context.Context, ownerID, offset, limit int) ([]model.DeliveryLog, error) {
	out := []model.DeliveryLog{}
	for _, l := range r.all() {
		if l.OwnerID == ownerID {
			out = append(out, l)
		}
	}
	if offset >= len(out) {
		return []model.DeliveryLog{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (r *MockLogRepo) Stats(ctx context.Context, ownerID int) (*model.LogStats, error) {
	s := &model.LogStats{}
	for _, l := range r.all() {
		if l.OwnerID != ownerID {
			continue
		}
		s.All++
		if l.Status {
			s.Success++
		} else {
			s.Error++
		}
	}
	return s, nil
}

type MockUserRepo struct {
	users map[int]bool
	err   error
}

func (r *MockUserRepo) GetByID(ctx context.Context, id int) (*model.User, error) {
	if r.err != nil {
		return nil, r.err
	}
	if !r.users[id] {
		return nil, appErrors.ErrUserNotFound
	}
	return &model.User{ID: id}, nil
}

// MockStatsCache counts invalidations per owner.
type MockStatsCache struct {
	mu            sync.Mutex
	entries       map[int]model.MailingStats
	invalidations map[int]int
}

func NewMockStatsCache() *MockStatsCache {
	return &MockStatsCache{entries: map[int]model.MailingStats{}, invalidations: map[int]int{}}
}

func (c *MockStatsCache) Get(ctx context.Context, ownerID int) (*model.MailingStats, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[ownerID]
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

func (c *MockStatsCache) Set(ctx context.Context, ownerID int, s *model.MailingStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ownerID] = *s
	return nil
}

func (c *MockStatsCache) Invalidate(ctx context.Context, ownerID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, ownerID)
	c.invalidations[ownerID]++
	return nil
}

type MockLocker struct {
	held map[string]bool
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() { delete(l.held, key) }, true, nil
}

type MockEnqueuer struct {
	activated   []int
	deactivated []int
	err         error
}

func (q *MockEnqueuer) EnqueueActivate(ctx context.Context, userID int) error {
	q.activated = append(q.activated, userID)
	return q.err
}

func (q *MockEnqueuer) EnqueueDeactivate(ctx context.Context, userID int) error {
	q.deactivated = append(q.deactivated, userID)
	return q.err
}

var errStoreDown = errors.New("connection refused")
