package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/supervision-scheduler/internal/persistence"
)

type swapHarness struct {
	service  *SwapService
	sessions *sessionStoreStub
	blocks   *blockStoreStub
	swaps    *swapStoreStub
	notifier *notifierStub
}

// seriesSessions returns a three week series: student-1 on week one, student-2 on
// week two, student-3 on week three.
func seriesSessions() []persistence.Session {
	return []persistence.Session{
		{ID: "week-1", SeriesID: "series-1", Title: "Thesis supervision", Start: feb(3, 10, 0), End: feb(3, 11, 0), StudentIDs: []string{"student-1"}},
		{ID: "week-2", SeriesID: "series-1", Title: "Thesis supervision", Start: feb(10, 10, 0), End: feb(10, 11, 0), StudentIDs: []string{"student-2"}},
		{ID: "week-3", SeriesID: "series-1", Title: "Thesis supervision", Start: feb(17, 10, 0), End: feb(17, 11, 0), StudentIDs: []string{"student-3"}},
		{ID: "other", SeriesID: "series-2", Title: "Lab meeting", Start: feb(12, 10, 0), End: feb(12, 11, 0), StudentIDs: []string{"student-2"}},
	}
}

func newSwapHarness(blocks *blockStoreStub, swaps *swapStoreStub) swapHarness {
	if blocks == nil {
		blocks = newBlockStoreStub()
	}
	if swaps == nil {
		swaps = newSwapStoreStub()
	}
	sessions := newSessionStoreStub(seriesSessions()...)
	notifier := &notifierStub{}
	service := NewSwapService(sessions, blocks, directoryUsers(), swaps, notifier, sequentialIDs("swap"), fixedClock(feb(2, 8, 0)), quietLogger)
	return swapHarness{service: service, sessions: sessions, blocks: blocks, swaps: swaps, notifier: notifier}
}

func TestSwapService_DiscoverSwapTargets(t *testing.T) {
	t.Parallel()

	t.Run("lists later series members as available", func(t *testing.T) {
		t.Parallel()
		h := newSwapHarness(nil, nil)

		targets, err := h.service.DiscoverSwapTargets(context.Background(), "week-1", "student-1", feb(1, 0, 0))
		if err != nil {
			t.Fatalf("DiscoverSwapTargets returned error: %v", err)
		}
		if len(targets.Available) != 2 || len(targets.Unavailable) != 0 {
			t.Fatalf("expected two available candidates, got %+v", targets)
		}
		if targets.Available[0].User.FullName != "Grace Hopper" || targets.Available[0].Session.ID != "week-2" {
			t.Fatalf("unexpected first candidate %+v", targets.Available[0])
		}
	})

	t.Run("skips sessions that already started", func(t *testing.T) {
		t.Parallel()
		h := newSwapHarness(nil, nil)

		targets, err := h.service.DiscoverSwapTargets(context.Background(), "week-1", "student-1", feb(11, 0, 0))
		if err != nil {
			t.Fatalf("DiscoverSwapTargets returned error: %v", err)
		}
		if len(targets.Available) != 1 || targets.Available[0].Session.ID != "week-3" {
			t.Fatalf("expected only week-3, got %+v", targets)
		}
	})

	t.Run("checks availability in both directions", func(t *testing.T) {
		t.Parallel()
		blocks := newBlockStoreStub(
			// student-2 is busy during student-1's current slot.
			persistence.AvailabilityBlock{ID: "b1", Kind: persistence.BlockPersonal, UserID: ptrString("student-2"), Start: feb(3, 10, 30), End: feb(3, 12, 0)},
			// student-1 is busy during student-3's slot.
			persistence.AvailabilityBlock{ID: "b2", Kind: persistence.BlockPersonal, UserID: ptrString("student-1"), Start: feb(17, 9, 0), End: feb(17, 10, 15)},
		)
		h := newSwapHarness(blocks, nil)

		targets, err := h.service.DiscoverSwapTargets(context.Background(), "week-1", "student-1", feb(1, 0, 0))
		if err != nil {
			t.Fatalf("DiscoverSwapTargets returned error: %v", err)
		}
		if len(targets.Available) != 0 || len(targets.Unavailable) != 2 {
			t.Fatalf("expected both candidates unavailable, got %+v", targets)
		}
		reasons := map[string]string{}
		for _, c := range targets.Unavailable {
			reasons[c.User.ID] = c.Reason
		}
		if reasons["student-2"] != ReasonTargetBusy {
			t.Fatalf("unexpected reason for student-2: %q", reasons["student-2"])
		}
		if reasons["student-3"] != ReasonRequesterBusy {
			t.Fatalf("unexpected reason for student-3: %q", reasons["student-3"])
		}
	})

	t.Run("global blocks make candidates unavailable", func(t *testing.T) {
		t.Parallel()
		blocks := newBlockStoreStub(persistence.AvailabilityBlock{ID: "closure", Kind: persistence.BlockGlobal, Start: feb(17, 0, 0), End: feb(18, 0, 0)})
		h := newSwapHarness(blocks, nil)

		targets, err := h.service.DiscoverSwapTargets(context.Background(), "week-1", "student-1", feb(1, 0, 0))
		if err != nil {
			t.Fatalf("DiscoverSwapTargets returned error: %v", err)
		}
		if len(targets.Unavailable) != 1 || targets.Unavailable[0].User.ID != "student-3" {
			t.Fatalf("expected student-3 unavailable, got %+v", targets)
		}
	})

	t.Run("skips shared roster members and sessions the user attends", func(t *testing.T) {
		t.Parallel()
		sessions := newSessionStoreStub(
			persistence.Session{ID: "week-1", SeriesID: "series-1", Start: feb(3, 10, 0), End: feb(3, 11, 0), StudentIDs: []string{"student-1", "student-2"}},
			persistence.Session{ID: "week-2", SeriesID: "series-1", Start: feb(10, 10, 0), End: feb(10, 11, 0), StudentIDs: []string{"student-2", "student-3"}},
			persistence.Session{ID: "week-3", SeriesID: "series-1", Start: feb(17, 10, 0), End: feb(17, 11, 0), StudentIDs: []string{"student-1", "student-3"}},
		)
		service := NewSwapService(sessions, newBlockStoreStub(), directoryUsers(), newSwapStoreStub(), &notifierStub{}, sequentialIDs("swap"), fixedClock(feb(2, 8, 0)), quietLogger)

		targets, err := service.DiscoverSwapTargets(context.Background(), "week-1", "student-1", feb(1, 0, 0))
		if err != nil {
			t.Fatalf("DiscoverSwapTargets returned error: %v", err)
		}
		if len(targets.Unavailable) != 0 || len(targets.Available) != 1 {
			t.Fatalf("expected a single candidate, got %+v", targets)
		}
		if got := targets.Available[0]; got.User.ID != "student-3" || got.Session.ID != "week-2" {
			t.Fatalf("expected student-3 on week-2, got %+v", got)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()
		h := newSwapHarness(nil, nil)

		if _, err := h.service.DiscoverSwapTargets(context.Background(), "missing", "student-1", feb(1, 0, 0)); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSwapService_CreateSwapRequest(t *testing.T) {
	t.Parallel()

	valid := CreateSwapParams{SessionID: "week-1", RequesterID: "student-1", TargetID: "student-2"}

	t.Run("persists a pending request and notifies the target", func(t *testing.T) {
		t.Parallel()
		h := newSwapHarness(nil, nil)

		created, err := h.service.CreateSwapRequest(context.Background(), valid)
		if err != nil {
			t.Fatalf("CreateSwapRequest returned error: %v", err)
		}
		if created.ID != "swap-1" || created.Status != SwapPending {
			t.Fatalf("unexpected request %+v", created)
		}
		if len(h.notifier.events) != 1 {
			t.Fatalf("expected one notification, got %d", len(h.notifier.events))
		}
		event := h.notifier.events[0]
		if event.TargetEmail != "grace@example.com" || event.RequesterName != "Ada Lovelace" || event.SessionTitle != "Thesis supervision" {
			t.Fatalf("unexpected event %+v", event)
		}
	})

	t.Run("notification failures do not fail the request", func(t *testing.T) {
		t.Parallel()
		h := newSwapHarness(nil, nil)
		h.notifier.err = errors.New("queue full")

		if _, err := h.service.CreateSwapRequest(context.Background(), valid); err != nil {
			t.Fatalf("expected success despite notifier failure, got %v", err)
		}
	})

	t.Run("rejects swapping with oneself", func(t *testing.T) {
		t.Parallel()
		h := newSwapHarness(nil, nil)

		params := valid
		params.TargetID = params.RequesterID
		_, err := h.service.CreateSwapRequest(context.Background(), params)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["target_id"]; !ok {
			t.Fatalf("expected target_id error, got %+v", vErr.FieldErrors)
		}
	})

	t.Run("requires the requester to be enrolled", func(t *testing.T) {
		t.Parallel()
		h := newSwapHarness(nil, nil)

		params := valid
		params.SessionID = "week-2"
		params.TargetID = "student-3"
		_, err := h.service.CreateSwapRequest(context.Background(), params)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["requester_id"]; !ok {
			t.Fatalf("expected requester_id error, got %+v", vErr.FieldErrors)
		}
	})

	t.Run("rejects targets already in the session", func(t *testing.T) {
		t.Parallel()
		sessions := newSessionStoreStub(
			persistence.Session{ID: "week-1", SeriesID: "series-1", Start: feb(3, 10, 0), End: feb(3, 11, 0), StudentIDs: []string{"student-1", "student-2"}},
			persistence.Session{ID: "week-2", SeriesID: "series-1", Start: feb(10, 10, 0), End: feb(10, 11, 0), StudentIDs: []string{"student-1", "student-2"}},
		)
		service := NewSwapService(sessions, newBlockStoreStub(), directoryUsers(), newSwapStoreStub(), &notifierStub{}, sequentialIDs("swap"), fixedClock(feb(2, 8, 0)), quietLogger)

		_, err := service.CreateSwapRequest(context.Background(), CreateSwapParams{SessionID: "week-1", RequesterID: "student-1", TargetID: "student-2"})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["target_id"]; !ok {
			t.Fatalf("expected target_id error, got %+v", vErr.FieldErrors)
		}
	})

	t.Run("rejects unknown targets", func(t *testing.T) {
		t.Parallel()
		h := newSwapHarness(nil, nil)

		params := valid
		params.TargetID = "ghost"
		_, err := h.service.CreateSwapRequest(context.Background(), params)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()
		h := newSwapHarness(nil, nil)

		params := valid
		params.SessionID = "missing"
		if _, err := h.service.CreateSwapRequest(context.Background(), params); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("guards against duplicate pending requests", func(t *testing.T) {
		t.Parallel()
		h := newSwapHarness(nil, nil)

		if _, err := h.service.CreateSwapRequest(context.Background(), valid); err != nil {
			t.Fatalf("first CreateSwapRequest returned error: %v", err)
		}
		if _, err := h.service.CreateSwapRequest(context.Background(), valid); !errors.Is(err, ErrDuplicateRequest) {
			t.Fatalf("expected ErrDuplicateRequest, got %v", err)
		}
		if len(h.notifier.events) != 1 {
			t.Fatalf("expected a single notification, got %d", len(h.notifier.events))
		}
	})

	t.Run("maps store uniqueness violations to duplicates", func(t *testing.T) {
		t.Parallel()
		swaps := newSwapStoreStub()
		swaps.createErr = persistence.ErrDuplicate
		h := newSwapHarness(nil, swaps)

		if _, err := h.service.CreateSwapRequest(context.Background(), valid); !errors.Is(err, ErrDuplicateRequest) {
			t.Fatalf("expected ErrDuplicateRequest, got %v", err)
		}
	})
}

func pendingRequest() persistence.SwapRequest {
	return persistence.SwapRequest{
		ID:          "swap-1",
		SessionID:   "week-1",
		RequesterID: "student-1",
		TargetID:    "student-2",
		Status:      persistence.SwapPending,
		CreatedAt:   feb(1, 9, 0),
	}
}

func TestSwapService_AcceptSwapRequest(t *testing.T) {
	t.Parallel()

	t.Run("target accepts", func(t *testing.T) {
		t.Parallel()
		swaps := newSwapStoreStub(pendingRequest())
		swaps.exchange = persistence.SwapExchange{RequesterSessionID: "week-1", TargetSessionID: "week-2"}
		h := newSwapHarness(nil, swaps)

		exchange, err := h.service.AcceptSwapRequest(context.Background(), "swap-1", "student-2")
		if err != nil {
			t.Fatalf("AcceptSwapRequest returned error: %v", err)
		}
		if exchange.TargetSessionID != "week-2" || !exchange.RespondedAt.Equal(feb(2, 8, 0)) {
			t.Fatalf("unexpected exchange %+v", exchange)
		}
		if swaps.requests["swap-1"].Status != persistence.SwapAccepted {
			t.Fatalf("expected request to be accepted")
		}
	})

	tests := []struct {
		name        string
		actingUser  string
		status      persistence.SwapStatus
		exchangeErr error
		wantErr     error
	}{
		{name: "requester cannot accept", actingUser: "student-1", status: persistence.SwapPending, wantErr: ErrUnauthorized},
		{name: "already rejected", actingUser: "student-2", status: persistence.SwapRejected, wantErr: ErrAlreadyProcessed},
		{name: "lost race", actingUser: "student-2", status: persistence.SwapPending, exchangeErr: persistence.ErrNotPending, wantErr: ErrAlreadyProcessed},
		{name: "no session in series", actingUser: "student-2", status: persistence.SwapPending, exchangeErr: persistence.ErrNoCounterpart, wantErr: ErrNoMatchingSeriesSession},
		{name: "enrollments moved", actingUser: "student-2", status: persistence.SwapPending, exchangeErr: persistence.ErrStaleEnrollment, wantErr: ErrEnrollmentChanged},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			request := pendingRequest()
			request.Status = tc.status
			swaps := newSwapStoreStub(request)
			swaps.exchangeErr = tc.exchangeErr
			h := newSwapHarness(nil, swaps)

			_, err := h.service.AcceptSwapRequest(context.Background(), "swap-1", tc.actingUser)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}

	t.Run("unknown request", func(t *testing.T) {
		t.Parallel()
		h := newSwapHarness(nil, nil)

		if _, err := h.service.AcceptSwapRequest(context.Background(), "missing", "student-2"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSwapService_RejectAndCancel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		reject     bool
		actingUser string
		wantErr    error
		wantStatus persistence.SwapStatus
	}{
		{name: "target rejects", reject: true, actingUser: "student-2", wantStatus: persistence.SwapRejected},
		{name: "requester cannot reject", reject: true, actingUser: "student-1", wantErr: ErrUnauthorized},
		{name: "requester cancels", actingUser: "student-1", wantStatus: persistence.SwapCancelled},
		{name: "target cannot cancel", actingUser: "student-2", wantErr: ErrUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			swaps := newSwapStoreStub(pendingRequest())
			h := newSwapHarness(nil, swaps)

			var err error
			if tc.reject {
				err = h.service.RejectSwapRequest(context.Background(), "swap-1", tc.actingUser)
			} else {
				err = h.service.CancelSwapRequest(context.Background(), "swap-1", tc.actingUser)
			}
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			stored := swaps.requests["swap-1"]
			if stored.Status != tc.wantStatus || stored.RespondedAt == nil {
				t.Fatalf("expected %s with responded timestamp, got %+v", tc.wantStatus, stored)
			}
		})
	}

	t.Run("resolved requests cannot be resolved again", func(t *testing.T) {
		t.Parallel()
		request := pendingRequest()
		request.Status = persistence.SwapCancelled
		h := newSwapHarness(nil, newSwapStoreStub(request))

		if err := h.service.RejectSwapRequest(context.Background(), "swap-1", "student-2"); !errors.Is(err, ErrAlreadyProcessed) {
			t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
		}
	})
}

func TestSwapService_Listing(t *testing.T) {
	t.Parallel()

	older := pendingRequest()
	newer := pendingRequest()
	newer.ID = "swap-2"
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)

	swaps := newSwapStoreStub(older, newer)
	swaps.views = []persistence.SwapRequestView{{SwapRequest: older}, {SwapRequest: newer}}
	swaps.pending = 2
	h := newSwapHarness(nil, swaps)

	views, err := h.service.ListSwapRequests(context.Background(), "student-2")
	if err != nil {
		t.Fatalf("ListSwapRequests returned error: %v", err)
	}
	if len(views) != 2 || views[0].ID != "swap-2" {
		t.Fatalf("expected newest first, got %+v", views)
	}

	count, err := h.service.PendingSwapCount(context.Background(), "student-2")
	if err != nil {
		t.Fatalf("PendingSwapCount returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 pending, got %d", count)
	}

	if _, err := h.service.ListSwapRequests(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for anonymous listing, got %v", err)
	}
}
