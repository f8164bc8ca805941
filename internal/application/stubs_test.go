package application

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/example/supervision-scheduler/internal/notify"
	"github.com/example/supervision-scheduler/internal/persistence"
)

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

func ptrString(s string) *string {
	return &s
}

type sessionStoreStub struct {
	mu        sync.Mutex
	sessions  map[string]persistence.Session
	created   [][]persistence.Session
	updated   []persistence.Session
	deleted   []string
	filters   []persistence.SessionFilter
	getErr    error
	listErr   error
	createErr error
	updateErr error
	deleteErr error
}

func newSessionStoreStub(sessions ...persistence.Session) *sessionStoreStub {
	stub := &sessionStoreStub{sessions: make(map[string]persistence.Session)}
	for _, s := range sessions {
		stub.sessions[s.ID] = s
	}
	return stub
}

func (s *sessionStoreStub) GetSession(_ context.Context, id string) (persistence.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return persistence.Session{}, s.getErr
	}
	session, ok := s.sessions[id]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return session, nil
}

func (s *sessionStoreStub) ListSessions(_ context.Context, filter persistence.SessionFilter) ([]persistence.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = append(s.filters, filter)
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []persistence.Session
	for _, session := range s.sessions {
		if filter.UserID != "" && !slices.Contains(session.StudentIDs, filter.UserID) {
			continue
		}
		if filter.SeriesID != "" && session.SeriesID != filter.SeriesID {
			continue
		}
		if filter.ExcludeID != "" && session.ID == filter.ExcludeID {
			continue
		}
		if filter.StartsFrom != nil && session.Start.Before(*filter.StartsFrom) {
			continue
		}
		if filter.OverlapStart != nil && filter.OverlapEnd != nil &&
			!(session.Start.Before(*filter.OverlapEnd) && filter.OverlapStart.Before(session.End)) {
			continue
		}
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *sessionStoreStub) CreateSessions(_ context.Context, sessions []persistence.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, sessions)
	for _, session := range sessions {
		s.sessions[session.ID] = session
	}
	return nil
}

func (s *sessionStoreStub) UpdateSession(_ context.Context, session persistence.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	if _, ok := s.sessions[session.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.updated = append(s.updated, session)
	s.sessions[session.ID] = session
	return nil
}

func (s *sessionStoreStub) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.sessions[id]; !ok {
		return persistence.ErrNotFound
	}
	s.deleted = append(s.deleted, id)
	delete(s.sessions, id)
	return nil
}

type blockStoreStub struct {
	mu      sync.Mutex
	blocks  map[string]persistence.AvailabilityBlock
	filters []persistence.BlockFilter
	created []persistence.AvailabilityBlock
	deleted []string
	listErr error
}

func newBlockStoreStub(blocks ...persistence.AvailabilityBlock) *blockStoreStub {
	stub := &blockStoreStub{blocks: make(map[string]persistence.AvailabilityBlock)}
	for _, b := range blocks {
		stub.blocks[b.ID] = b
	}
	return stub
}

func (s *blockStoreStub) ListBlocks(_ context.Context, filter persistence.BlockFilter) ([]persistence.AvailabilityBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = append(s.filters, filter)
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []persistence.AvailabilityBlock
	for _, block := range s.blocks {
		global := block.Kind == persistence.BlockGlobal
		switch {
		case filter.OnlyGlobal:
			if !global {
				continue
			}
		case len(filter.UserIDs) > 0:
			owned := block.UserID != nil && slices.Contains(filter.UserIDs, *block.UserID)
			if !owned && !(global && filter.IncludeGlobal) {
				continue
			}
		case !filter.IncludeGlobal:
			if global {
				continue
			}
		}
		if filter.To != nil && !block.Start.Before(*filter.To) {
			continue
		}
		if filter.From != nil && !block.End.After(*filter.From) {
			continue
		}
		out = append(out, block)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *blockStoreStub) CreateBlock(_ context.Context, block persistence.AvailabilityBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, block)
	s.blocks[block.ID] = block
	return nil
}

func (s *blockStoreStub) GetBlock(_ context.Context, id string) (persistence.AvailabilityBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	block, ok := s.blocks[id]
	if !ok {
		return persistence.AvailabilityBlock{}, persistence.ErrNotFound
	}
	return block, nil
}

func (s *blockStoreStub) DeleteBlock(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[id]; !ok {
		return persistence.ErrNotFound
	}
	s.deleted = append(s.deleted, id)
	delete(s.blocks, id)
	return nil
}

type userStoreStub struct {
	mu        sync.Mutex
	users     map[string]persistence.User
	listCalls int
	upserted  []persistence.User
	err       error
	upsertErr error
}

func newUserStoreStub(users ...persistence.User) *userStoreStub {
	stub := &userStoreStub{users: make(map[string]persistence.User)}
	for _, u := range users {
		stub.users[u.ID] = u
	}
	return stub
}

func (s *userStoreStub) GetUser(_ context.Context, id string) (persistence.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return persistence.User{}, s.err
	}
	user, ok := s.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

func (s *userStoreStub) MissingUserIDs(_ context.Context, ids []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var missing []string
	for _, id := range ids {
		if _, ok := s.users[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (s *userStoreStub) ListUsers(_ context.Context, roles ...persistence.Role) ([]persistence.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.err != nil {
		return nil, s.err
	}
	var out []persistence.User
	for _, user := range s.users {
		if len(roles) > 0 && !slices.Contains(roles, user.Role) {
			continue
		}
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (s *userStoreStub) UpsertUser(_ context.Context, user persistence.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserted = append(s.upserted, user)
	s.users[user.ID] = user
	return nil
}

type swapStoreStub struct {
	mu          sync.Mutex
	requests    map[string]persistence.SwapRequest
	views       []persistence.SwapRequestView
	created     []persistence.SwapRequest
	resolved    map[string]persistence.SwapStatus
	exchange    persistence.SwapExchange
	exchangeErr error
	createErr   error
	findErr     error
	pending     int
}

func newSwapStoreStub(requests ...persistence.SwapRequest) *swapStoreStub {
	stub := &swapStoreStub{
		requests: make(map[string]persistence.SwapRequest),
		resolved: make(map[string]persistence.SwapStatus),
	}
	for _, r := range requests {
		stub.requests[r.ID] = r
	}
	return stub
}

func (s *swapStoreStub) CreateSwapRequest(_ context.Context, request persistence.SwapRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, request)
	s.requests[request.ID] = request
	return nil
}

func (s *swapStoreStub) GetSwapRequest(_ context.Context, id string) (persistence.SwapRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[id]
	if !ok {
		return persistence.SwapRequest{}, persistence.ErrNotFound
	}
	return request, nil
}

func (s *swapStoreStub) FindPendingSwapRequest(_ context.Context, sessionID, requesterID, targetID string) (persistence.SwapRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return persistence.SwapRequest{}, s.findErr
	}
	for _, r := range s.requests {
		if r.SessionID == sessionID && r.RequesterID == requesterID && r.TargetID == targetID && r.Status == persistence.SwapPending {
			return r, nil
		}
	}
	return persistence.SwapRequest{}, persistence.ErrNotFound
}

func (s *swapStoreStub) ListSwapRequestsForUser(_ context.Context, _ string) ([]persistence.SwapRequestView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views, nil
}

func (s *swapStoreStub) CountPendingForTarget(_ context.Context, _ string) (int, error) {
	return s.pending, nil
}

func (s *swapStoreStub) ResolveSwapRequest(_ context.Context, id string, status persistence.SwapStatus, respondedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[id]
	if !ok {
		return persistence.ErrNotFound
	}
	if request.Status != persistence.SwapPending {
		return persistence.ErrNotPending
	}
	request.Status = status
	request.RespondedAt = &respondedAt
	s.requests[id] = request
	s.resolved[id] = status
	return nil
}

func (s *swapStoreStub) ExchangeEnrollments(_ context.Context, id string, respondedAt time.Time) (persistence.SwapExchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exchangeErr != nil {
		return persistence.SwapExchange{}, s.exchangeErr
	}
	request := s.requests[id]
	request.Status = persistence.SwapAccepted
	request.RespondedAt = &respondedAt
	s.requests[id] = request
	result := s.exchange
	result.RespondedAt = respondedAt
	return result, nil
}

type notifierStub struct {
	mu     sync.Mutex
	events []notify.SwapRequestCreated
	err    error
}

func (n *notifierStub) NotifySwapRequestCreated(_ context.Context, event notify.SwapRequestCreated) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}
