package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/supervision-scheduler/internal/persistence"
	"github.com/example/supervision-scheduler/internal/recurrence"
)

// BlockStore captures the availability persistence used by the availability service.
type BlockStore interface {
	BlockReader
	CreateBlock(ctx context.Context, block persistence.AvailabilityBlock) error
	GetBlock(ctx context.Context, id string) (persistence.AvailabilityBlock, error)
	DeleteBlock(ctx context.Context, id string) error
}

// AvailabilityService manages personal busy slots and organisation-wide blocks.
type AvailabilityService struct {
	blocks      BlockStore
	engine      *recurrence.Engine
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewAvailabilityService wires dependencies for availability operations.
func NewAvailabilityService(blocks BlockStore, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AvailabilityService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if engine == nil {
		engine = recurrence.NewEngine(time.UTC)
	}
	return &AvailabilityService{
		blocks:      blocks,
		engine:      engine,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *AvailabilityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AvailabilityService", operation, attrs...)
}

// AddBlock records a block. Personal blocks belong to the caller; global blocks need an administrator.
func (s *AvailabilityService) AddBlock(ctx context.Context, params AddBlockParams) (block AvailabilityBlock, err error) {
	if s == nil {
		return AvailabilityBlock{}, fmt.Errorf("AvailabilityService is nil")
	}

	logger := s.loggerWith(ctx, "AddBlock", "principal_id", params.Principal.UserID, "kind", params.Kind)
	defer func() { logOutcome(ctx, logger.With("block_id", block.ID), err, "availability block creation") }()

	if params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}
	if params.Kind == "" {
		params.Kind = BlockPersonal
	}
	if vErr := validateStruct(params); vErr != nil {
		err = vErr
		return
	}
	if params.Kind == BlockGlobal && !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.blocks == nil {
		err = fmt.Errorf("availability store not configured")
		return
	}

	record := persistence.AvailabilityBlock{
		ID:        s.idGenerator(),
		Kind:      persistence.BlockKind(params.Kind),
		Start:     params.StartsAt,
		End:       params.EndsAt,
		CreatedAt: s.now(),
	}
	if params.Kind == BlockPersonal {
		owner := params.Principal.UserID
		record.UserID = &owner
	}
	if createErr := s.blocks.CreateBlock(ctx, record); createErr != nil {
		err = mapRepoError("create availability block", createErr)
		return
	}
	block = toBlock(record)
	return
}

// DeleteBlock removes a block owned by the caller. Administrators may remove any block.
func (s *AvailabilityService) DeleteBlock(ctx context.Context, principal Principal, blockID string) (err error) {
	if s == nil {
		return fmt.Errorf("AvailabilityService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteBlock", "principal_id", principal.UserID, "block_id", blockID)
	defer func() { logOutcome(ctx, logger, err, "availability block deletion") }()

	if principal.UserID == "" {
		return ErrUnauthorized
	}
	if s.blocks == nil {
		return fmt.Errorf("availability store not configured")
	}

	existing, getErr := s.blocks.GetBlock(ctx, blockID)
	if getErr != nil {
		return mapRepoError("get availability block", getErr)
	}
	if !principal.IsAdmin {
		if existing.UserID == nil || *existing.UserID != principal.UserID {
			return ErrUnauthorized
		}
	}
	if delErr := s.blocks.DeleteBlock(ctx, blockID); delErr != nil {
		return mapRepoError("delete availability block", delErr)
	}
	return nil
}

// ListUpcoming returns the caller's personal blocks and every global block that has not ended yet.
func (s *AvailabilityService) ListUpcoming(ctx context.Context, principal Principal) ([]AvailabilityBlock, error) {
	if s == nil {
		return nil, fmt.Errorf("AvailabilityService is nil")
	}
	if principal.UserID == "" {
		return nil, ErrUnauthorized
	}
	now := s.now()
	return s.list(ctx, persistence.BlockFilter{
		UserIDs:       []string{principal.UserID},
		IncludeGlobal: true,
		From:          &now,
	})
}

// ListForDate returns blocks overlapping the calendar day of date in the scheduling time zone.
// Administrators see every block; other users see their own and the global ones.
func (s *AvailabilityService) ListForDate(ctx context.Context, principal Principal, date time.Time) ([]AvailabilityBlock, error) {
	if s == nil {
		return nil, fmt.Errorf("AvailabilityService is nil")
	}
	if principal.UserID == "" {
		return nil, ErrUnauthorized
	}
	from, to := s.engine.DayBounds(date)
	filter := persistence.BlockFilter{
		IncludeGlobal: true,
		From:          &from,
		To:            &to,
	}
	if !principal.IsAdmin {
		filter.UserIDs = []string{principal.UserID}
	}
	return s.list(ctx, filter)
}

func (s *AvailabilityService) list(ctx context.Context, filter persistence.BlockFilter) ([]AvailabilityBlock, error) {
	if s.blocks == nil {
		return nil, nil
	}
	records, err := s.blocks.ListBlocks(ctx, filter)
	if err != nil {
		return nil, mapRepoError("list availability blocks", err)
	}
	out := make([]AvailabilityBlock, len(records))
	for i, record := range records {
		out[i] = toBlock(record)
	}
	return out, nil
}

func toBlock(record persistence.AvailabilityBlock) AvailabilityBlock {
	block := AvailabilityBlock{
		ID:        record.ID,
		Kind:      BlockKind(record.Kind),
		Start:     record.Start,
		End:       record.End,
		CreatedAt: record.CreatedAt,
	}
	if record.UserID != nil {
		block.UserID = *record.UserID
	}
	return block
}
