package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/supervision-scheduler/internal/notify"
	"github.com/example/supervision-scheduler/internal/persistence"
	"github.com/example/supervision-scheduler/internal/scheduler"
)

// Reasons reported for swap candidates that cannot be swapped with.
const (
	ReasonTargetBusy    = "Target is busy during your current supervision time"
	ReasonRequesterBusy = "You are busy during their supervision time"
)

// UserReader resolves single directory entries.
type UserReader interface {
	GetUser(ctx context.Context, id string) (persistence.User, error)
}

// SwapStore captures the swap request persistence used by the swap service.
type SwapStore interface {
	CreateSwapRequest(ctx context.Context, request persistence.SwapRequest) error
	GetSwapRequest(ctx context.Context, id string) (persistence.SwapRequest, error)
	FindPendingSwapRequest(ctx context.Context, sessionID, requesterID, targetID string) (persistence.SwapRequest, error)
	ListSwapRequestsForUser(ctx context.Context, userID string) ([]persistence.SwapRequestView, error)
	CountPendingForTarget(ctx context.Context, userID string) (int, error)
	ResolveSwapRequest(ctx context.Context, id string, status persistence.SwapStatus, respondedAt time.Time) error
	ExchangeEnrollments(ctx context.Context, id string, respondedAt time.Time) (persistence.SwapExchange, error)
}

// SwapService runs the swap request lifecycle between students of the same series.
type SwapService struct {
	sessions    SessionReader
	blocks      BlockReader
	users       UserReader
	swaps       SwapStore
	notifier    notify.Notifier
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSwapService wires dependencies for swap operations.
func NewSwapService(sessions SessionReader, blocks BlockReader, users UserReader, swaps SwapStore, notifier notify.Notifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SwapService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &SwapService{
		sessions:    sessions,
		blocks:      blocks,
		users:       users,
		swaps:       swaps,
		notifier:    notifier,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *SwapService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SwapService", operation, attrs...)
}

type swapCandidate struct {
	userID  string
	session persistence.Session
}

// DiscoverSwapTargets lists the students of later sessions in the same series and
// splits them by whether either side is blocked during the other's slot.
// Students already in the current session and sessions the user already
// attends are left out, since exchanging with them cannot succeed.
func (s *SwapService) DiscoverSwapTargets(ctx context.Context, sessionID, userID string, now time.Time) (SwapTargets, error) {
	if s == nil {
		return SwapTargets{}, fmt.Errorf("SwapService is nil")
	}
	if s.sessions == nil {
		return SwapTargets{}, fmt.Errorf("session store not configured")
	}
	logger := s.loggerWith(ctx, "DiscoverSwapTargets", "session_id", sessionID, "user_id", userID)

	current, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		err = mapRepoError("get session", err)
		logger.WarnContext(ctx, "swap discovery failed", "error", err, "error_kind", ErrorKind(err))
		return SwapTargets{}, err
	}

	siblings, err := s.sessions.ListSessions(ctx, persistence.SessionFilter{
		SeriesID:   current.SeriesID,
		ExcludeID:  current.ID,
		StartsFrom: &now,
	})
	if err != nil {
		err = mapRepoError("list series sessions", err)
		logger.ErrorContext(ctx, "swap discovery failed", "error", err, "error_kind", ErrorKind(err))
		return SwapTargets{}, err
	}

	var candidates []swapCandidate
	seen := make(map[string]struct{})
	for _, sibling := range siblings {
		if slices.Contains(sibling.StudentIDs, userID) {
			continue
		}
		for _, studentID := range sibling.StudentIDs {
			if studentID == userID || slices.Contains(current.StudentIDs, studentID) {
				continue
			}
			key := studentID + "|" + sibling.ID
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			candidates = append(candidates, swapCandidate{userID: studentID, session: sibling})
		}
	}
	if len(candidates) == 0 {
		return SwapTargets{}, nil
	}

	blocks, users, err := s.loadDiscoveryData(ctx, current, userID, candidates)
	if err != nil {
		logger.ErrorContext(ctx, "swap discovery failed", "error", err, "error_kind", ErrorKind(err))
		return SwapTargets{}, err
	}

	currentWindow := scheduler.Interval{Start: current.Start, End: current.End}
	var targets SwapTargets
	for _, candidate := range candidates {
		entry := SwapCandidate{
			User:    users[candidate.userID],
			Session: toSession(candidate.session),
		}
		theirWindow := scheduler.Interval{Start: candidate.session.Start, End: candidate.session.End}
		switch {
		case scheduler.IsBlocked(currentWindow, candidate.userID, blocks):
			entry.Reason = ReasonTargetBusy
			targets.Unavailable = append(targets.Unavailable, entry)
		case scheduler.IsBlocked(theirWindow, userID, blocks):
			entry.Reason = ReasonRequesterBusy
			targets.Unavailable = append(targets.Unavailable, entry)
		default:
			targets.Available = append(targets.Available, entry)
		}
	}

	logger.InfoContext(ctx, "swap targets discovered",
		"available", len(targets.Available),
		"unavailable", len(targets.Unavailable),
	)
	return targets, nil
}

func (s *SwapService) loadDiscoveryData(ctx context.Context, current persistence.Session, userID string, candidates []swapCandidate) ([]scheduler.Block, map[string]User, error) {
	span := scheduler.Interval{Start: current.Start, End: current.End}
	userIDs := []string{userID}
	for _, c := range candidates {
		if c.session.Start.Before(span.Start) {
			span.Start = c.session.Start
		}
		if c.session.End.After(span.End) {
			span.End = c.session.End
		}
		userIDs = append(userIDs, c.userID)
	}
	userIDs = dedupeIDs(userIDs)

	var (
		blocks []scheduler.Block
		mu     sync.Mutex
		users  = make(map[string]User, len(userIDs))
	)
	g, gctx := errgroup.WithContext(ctx)
	if s.blocks != nil {
		g.Go(func() error {
			from, to := span.Start, span.End
			records, err := s.blocks.ListBlocks(gctx, persistence.BlockFilter{
				UserIDs:       userIDs,
				IncludeGlobal: true,
				From:          &from,
				To:            &to,
			})
			if err != nil {
				return mapRepoError("list availability blocks", err)
			}
			blocks = toSchedulerBlocks(records)
			return nil
		})
	}
	for _, id := range userIDs {
		if id == userID {
			continue
		}
		g.Go(func() error {
			user := User{ID: id}
			if s.users != nil {
				record, err := s.users.GetUser(gctx, id)
				switch {
				case err == nil:
					user = toUser(record)
				case !errors.Is(err, persistence.ErrNotFound):
					return mapRepoError("get user", err)
				}
			}
			mu.Lock()
			users[id] = user
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return blocks, users, nil
}

// CreateSwapRequest records a PENDING request and notifies the target in the background.
func (s *SwapService) CreateSwapRequest(ctx context.Context, params CreateSwapParams) (created SwapRequest, err error) {
	if s == nil {
		return SwapRequest{}, fmt.Errorf("SwapService is nil")
	}
	if s.swaps == nil || s.sessions == nil {
		return SwapRequest{}, fmt.Errorf("swap store not configured")
	}

	params.SessionID = strings.TrimSpace(params.SessionID)
	params.RequesterID = strings.TrimSpace(params.RequesterID)
	params.TargetID = strings.TrimSpace(params.TargetID)

	logger := s.loggerWith(ctx, "CreateSwapRequest",
		"session_id", params.SessionID,
		"requester_id", params.RequesterID,
		"target_id", params.TargetID,
	)
	defer func() { logOutcome(ctx, logger.With("request_id", created.ID), err, "swap request creation") }()

	if vErr := validateStruct(params); vErr != nil {
		err = vErr
		return
	}

	session, getErr := s.sessions.GetSession(ctx, params.SessionID)
	if getErr != nil {
		err = mapRepoError("get session", getErr)
		return
	}
	if !slices.Contains(session.StudentIDs, params.RequesterID) {
		err = newValidationError("requester_id", "is not enrolled in this session")
		return
	}
	if slices.Contains(session.StudentIDs, params.TargetID) {
		err = newValidationError("target_id", "is already enrolled in this session")
		return
	}

	var target User
	if s.users != nil {
		record, userErr := s.users.GetUser(ctx, params.TargetID)
		if userErr != nil {
			if errors.Is(userErr, persistence.ErrNotFound) {
				err = newValidationError("target_id", "unknown user")
				return
			}
			err = mapRepoError("get target user", userErr)
			return
		}
		target = toUser(record)
	}

	_, findErr := s.swaps.FindPendingSwapRequest(ctx, params.SessionID, params.RequesterID, params.TargetID)
	switch {
	case findErr == nil:
		err = ErrDuplicateRequest
		return
	case !errors.Is(findErr, persistence.ErrNotFound):
		err = mapRepoError("find pending swap request", findErr)
		return
	}

	request := persistence.SwapRequest{
		ID:          s.idGenerator(),
		SessionID:   params.SessionID,
		RequesterID: params.RequesterID,
		TargetID:    params.TargetID,
		Status:      persistence.SwapPending,
		CreatedAt:   s.now(),
	}
	if createErr := s.swaps.CreateSwapRequest(ctx, request); createErr != nil {
		if errors.Is(createErr, persistence.ErrDuplicate) {
			err = ErrDuplicateRequest
			return
		}
		err = mapRepoError("create swap request", createErr)
		return
	}

	created = toSwapRequest(request)
	s.notifyCreated(ctx, logger, request, session, target)
	return
}

func (s *SwapService) notifyCreated(ctx context.Context, logger *slog.Logger, request persistence.SwapRequest, session persistence.Session, target User) {
	if s.notifier == nil {
		return
	}
	requesterName := request.RequesterID
	if s.users != nil {
		if requester, err := s.users.GetUser(ctx, request.RequesterID); err == nil {
			requesterName = requester.FullName
		}
	}
	event := notify.SwapRequestCreated{
		RequestID:     request.ID,
		TargetEmail:   target.Email,
		TargetName:    target.FullName,
		RequesterName: requesterName,
		SessionTitle:  session.Title,
	}
	if err := s.notifier.NotifySwapRequestCreated(ctx, event); err != nil {
		logger.WarnContext(ctx, "swap request notification not dispatched", "error", err)
	}
}

// AcceptSwapRequest exchanges the two enrollments and marks the request ACCEPTED in one transaction.
// Only the target may accept.
func (s *SwapService) AcceptSwapRequest(ctx context.Context, requestID, actingUserID string) (exchange SwapExchange, err error) {
	if s == nil {
		return SwapExchange{}, fmt.Errorf("SwapService is nil")
	}
	if s.swaps == nil {
		return SwapExchange{}, fmt.Errorf("swap store not configured")
	}

	logger := s.loggerWith(ctx, "AcceptSwapRequest", "request_id", requestID, "acting_user_id", actingUserID)
	defer func() {
		logOutcome(ctx, logger.With(
			"requester_session_id", exchange.RequesterSessionID,
			"target_session_id", exchange.TargetSessionID,
		), err, "swap acceptance")
	}()

	request, getErr := s.swaps.GetSwapRequest(ctx, requestID)
	if getErr != nil {
		err = mapRepoError("get swap request", getErr)
		return
	}
	if request.TargetID != actingUserID {
		err = ErrUnauthorized
		return
	}
	if request.Status != persistence.SwapPending {
		err = ErrAlreadyProcessed
		return
	}

	result, exErr := s.swaps.ExchangeEnrollments(ctx, request.ID, s.now())
	if exErr != nil {
		err = mapRepoError("exchange enrollments", exErr)
		return
	}
	exchange = SwapExchange{
		RequestID:          request.ID,
		RequesterSessionID: result.RequesterSessionID,
		TargetSessionID:    result.TargetSessionID,
		RespondedAt:        result.RespondedAt,
	}
	return
}

// RejectSwapRequest declines a pending request. Only the target may reject.
func (s *SwapService) RejectSwapRequest(ctx context.Context, requestID, actingUserID string) error {
	return s.resolve(ctx, "RejectSwapRequest", requestID, actingUserID, persistence.SwapRejected)
}

// CancelSwapRequest withdraws a pending request. Only the requester may cancel.
func (s *SwapService) CancelSwapRequest(ctx context.Context, requestID, actingUserID string) error {
	return s.resolve(ctx, "CancelSwapRequest", requestID, actingUserID, persistence.SwapCancelled)
}

func (s *SwapService) resolve(ctx context.Context, operation, requestID, actingUserID string, status persistence.SwapStatus) (err error) {
	if s == nil {
		return fmt.Errorf("SwapService is nil")
	}
	if s.swaps == nil {
		return fmt.Errorf("swap store not configured")
	}

	logger := s.loggerWith(ctx, operation, "request_id", requestID, "acting_user_id", actingUserID)
	defer func() { logOutcome(ctx, logger, err, "swap "+strings.ToLower(string(status))) }()

	request, getErr := s.swaps.GetSwapRequest(ctx, requestID)
	if getErr != nil {
		return mapRepoError("get swap request", getErr)
	}

	allowed := request.TargetID
	if status == persistence.SwapCancelled {
		allowed = request.RequesterID
	}
	if allowed != actingUserID {
		return ErrUnauthorized
	}
	if request.Status != persistence.SwapPending {
		return ErrAlreadyProcessed
	}

	if resolveErr := s.swaps.ResolveSwapRequest(ctx, request.ID, status, s.now()); resolveErr != nil {
		return mapRepoError("resolve swap request", resolveErr)
	}
	return nil
}

// ListSwapRequests returns the requests a user sent or received, newest first.
func (s *SwapService) ListSwapRequests(ctx context.Context, userID string) ([]SwapRequestView, error) {
	if s == nil {
		return nil, fmt.Errorf("SwapService is nil")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthorized
	}
	if s.swaps == nil {
		return nil, nil
	}

	records, err := s.swaps.ListSwapRequestsForUser(ctx, userID)
	if err != nil {
		return nil, mapRepoError("list swap requests", err)
	}
	out := make([]SwapRequestView, len(records))
	for i, record := range records {
		out[i] = SwapRequestView{
			SwapRequest: toSwapRequest(record.SwapRequest),
			Session:     toSession(record.Session),
			Requester:   toUser(record.Requester),
			Target:      toUser(record.Target),
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// PendingSwapCount returns how many pending requests await the user's response.
func (s *SwapService) PendingSwapCount(ctx context.Context, userID string) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("SwapService is nil")
	}
	if strings.TrimSpace(userID) == "" {
		return 0, ErrUnauthorized
	}
	if s.swaps == nil {
		return 0, nil
	}
	count, err := s.swaps.CountPendingForTarget(ctx, userID)
	if err != nil {
		return 0, mapRepoError("count pending swap requests", err)
	}
	return count, nil
}

func toSwapRequest(record persistence.SwapRequest) SwapRequest {
	return SwapRequest{
		ID:          record.ID,
		SessionID:   record.SessionID,
		RequesterID: record.RequesterID,
		TargetID:    record.TargetID,
		Status:      SwapStatus(record.Status),
		CreatedAt:   record.CreatedAt,
		RespondedAt: record.RespondedAt,
	}
}

func toUser(record persistence.User) User {
	return User{
		ID:       record.ID,
		FullName: record.FullName,
		Email:    record.Email,
		Role:     Role(record.Role),
	}
}
