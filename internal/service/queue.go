package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ibisync/internal/metrics"
	"ibisync/internal/model"
	"ibisync/internal/repository"
	"ibisync/internal/transport"
	v1 "ibisync/pkg/api/v1"
	"ibisync/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrItemNotFound   = errors.New("queue item not found")
	ErrRetryExhausted = errors.New("no retries remaining")
	ErrDeliveryFailed = errors.New("delivery failed")
	ErrNotRetryable   = errors.New("item is not in a retryable state")
	ErrNotCancellable = errors.New("item is not in a cancellable state")
	ErrValidation     = errors.New("validation failed")
)

// ProcessResult aggregates one processing pass: items completed and items
// newly moved to FAILED.
type ProcessResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// QueueOptions tunes retry accounting and attempt execution.
type QueueOptions struct {
	MaxRetries     int
	Backoff        BackoffPolicy
	AttemptTimeout time.Duration
	BatchSize      int
}

// QueueService owns the synchronization queue: it accepts work from the
// entity services, runs delivery attempts with exponential backoff and
// answers the operator-facing queries.
type QueueService struct {
	db         *gorm.DB
	queueRepo  repository.QueueInterface
	auditRepo  repository.AuditInterface
	transports map[model.SyncType]transport.Transport
	hub        *Hub
	observer   metrics.QueueObserver
	clock      Clock
	opts       QueueOptions

	// Serializes processing passes within this instance; cross-instance
	// serialization is the worker's etcd mutex.
	processMu sync.Mutex
}

func NewQueueService(
	db *gorm.DB,
	queueRepo repository.QueueInterface,
	auditRepo repository.AuditInterface,
	transports map[model.SyncType]transport.Transport,
	hub *Hub,
	observer metrics.QueueObserver,
	clock Clock,
	opts QueueOptions,
) *QueueService {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Backoff.BaseDelay <= 0 {
		opts.Backoff = NewBackoffPolicy(time.Second, 0, false)
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &QueueService{
		db:         db,
		queueRepo:  queueRepo,
		auditRepo:  auditRepo,
		transports: transports,
		hub:        hub,
		observer:   observer,
		clock:      clock,
		opts:       opts,
	}
}

// Enqueue accepts one synchronization unit. EntityData is opaque and passed
// through to the transport unexamined; only the envelope is validated.
func (s *QueueService) Enqueue(ctx context.Context, syncType model.SyncType, entityType model.EntityType, entityID, entityData string, priority model.Priority, actor string) (*model.SyncQueueItem, error) {
	if err := validateEnvelope(syncType, entityType, entityID); err != nil {
		return nil, err
	}
	if priority == "" {
		priority = model.PriorityNormal
	}
	if model.PriorityRank(priority) > model.PriorityRank(model.PriorityLow) {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrValidation, priority)
	}
	if actor == "" {
		actor = GetOperator(ctx)
	}

	now := s.clock.Now()
	item := &model.SyncQueueItem{
		ID:         uuid.New().String(),
		SyncType:   syncType,
		EntityType: entityType,
		EntityID:   entityID,
		EntityData: entityData,
		Priority:   priority,
		Status:     model.QueuePending,
		RetryCount: 0,
		MaxRetries: s.opts.MaxRetries,
		CreatedAt:  now,
		CreatedBy:  actor,
	}

	traceID, _ := ctx.Value("TraceID").(string)
	err := s.transact(ctx, func(queueRepo repository.QueueInterface, auditRepo repository.AuditInterface) error {
		if err := queueRepo.Create(ctx, item); err != nil {
			return err
		}
		return auditRepo.Create(ctx, &model.SyncAudit{
			Action:     model.AuditEnqueue,
			EntityType: entityType,
			EntityID:   entityID,
			Reference:  item.ID,
			Detail:     string(syncType),
			Operator:   actor,
			TraceID:    traceID,
		})
	})
	if err != nil {
		logger.Error("failed to enqueue sync item",
			zap.String("entity_id", entityID), zap.Error(err))
		return nil, err
	}

	if s.observer != nil {
		s.observer.IncEnqueued()
	}
	logger.Info("sync item enqueued",
		zap.String("id", item.ID),
		zap.String("sync_type", string(syncType)),
		zap.String("entity_type", string(entityType)),
		zap.String("entity_id", entityID),
		zap.String("priority", string(priority)))
	s.refreshDepth(ctx)
	return item, nil
}

// ProcessQueue runs one pass: every PENDING item, plus every FAILED item
// with retries remaining, whose backoff window has elapsed. Items are served
// in queue order (priority rank, then newest first). Routine delivery
// failures never surface as errors; they are absorbed into retry accounting.
func (s *QueueService) ProcessQueue(ctx context.Context) (ProcessResult, error) {
	s.processMu.Lock()
	defer s.processMu.Unlock()

	var res ProcessResult
	now := s.clock.Now()
	items, err := s.queueRepo.FetchProcessable(ctx, now, s.opts.BatchSize)
	if err != nil {
		return res, fmt.Errorf("fetch processable: %w", err)
	}

	for i := range items {
		item := &items[i]
		attemptAt := s.clock.Now()
		claimed, err := s.queueRepo.ClaimForAttempt(ctx, item.ID, attemptAt)
		if err != nil {
			logger.Error("failed to claim queue item", zap.String("id", item.ID), zap.Error(err))
			continue
		}
		if !claimed {
			// Another pass got there first.
			continue
		}
		item.Status = model.QueueInProgress
		item.LastAttempt = &attemptAt

		if err := s.attempt(ctx, item); err != nil {
			if s.recordFailure(ctx, item, attemptAt, err) {
				res.Failed++
			}
		} else {
			s.recordSuccess(ctx, item)
			res.Processed++
		}
	}

	s.refreshDepth(ctx)
	return res, nil
}

// Retry reruns a single FAILED item synchronously. It consumes one retry
// whatever the outcome; exhausted items are rejected up front, untouched.
func (s *QueueService) Retry(ctx context.Context, itemID string) (*model.SyncQueueItem, error) {
	item, err := s.queueRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if item.Status != model.QueueFailed {
		return nil, fmt.Errorf("%w: status is %s", ErrNotRetryable, item.Status)
	}
	if item.RetryCount >= item.MaxRetries {
		return nil, fmt.Errorf("%w: %d/%d attempts used", ErrRetryExhausted, item.RetryCount, item.MaxRetries)
	}

	attemptAt := s.clock.Now()
	claimed, err := s.queueRepo.ClaimForAttempt(ctx, item.ID, attemptAt)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: concurrent attempt in flight", ErrNotRetryable)
	}

	item.Status = model.QueueInProgress
	item.LastAttempt = &attemptAt
	item.RetryCount++
	nextRetry := s.opts.Backoff.NextRetryAt(attemptAt, item.RetryCount)
	item.NextRetry = &nextRetry

	s.audit(ctx, model.AuditRetry, item)

	if err := s.attempt(ctx, item); err != nil {
		item.Status = model.QueueFailed
		item.ErrorMessage = err.Error()
		if saveErr := s.queueRepo.Save(ctx, item); saveErr != nil {
			logger.Error("failed to persist retry failure", zap.String("id", item.ID), zap.Error(saveErr))
		}
		s.publishItemEvent(v1.EventItemFailed, item, err.Error())
		s.refreshDepth(ctx)
		return item, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	item.Status = model.QueueCompleted
	item.ErrorMessage = ""
	item.NextRetry = nil
	if err := s.queueRepo.Save(ctx, item); err != nil {
		return nil, err
	}
	s.publishItemEvent(v1.EventItemCompleted, item, "")
	s.refreshDepth(ctx)
	return item, nil
}

// ListQueue returns a read-only snapshot, optionally filtered by status,
// ordered by priority rank then creation time descending.
func (s *QueueService) ListQueue(ctx context.Context, status *model.QueueStatus) ([]model.SyncQueueItem, error) {
	return s.queueRepo.List(ctx, status)
}

func (s *QueueService) GetItem(ctx context.Context, itemID string) (*model.SyncQueueItem, error) {
	item, err := s.queueRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	return item, nil
}

// Health verifies the backing store and every transport that can report
// its own reachability.
func (s *QueueService) Health(ctx context.Context) error {
	if err := s.auditRepo.PingContext(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	for syncType, tr := range s.transports {
		hc, ok := tr.(interface{ Health(ctx context.Context) error })
		if !ok {
			continue
		}
		if err := hc.Health(ctx); err != nil {
			return fmt.Errorf("transport %s: %w", syncType, err)
		}
	}
	return nil
}

// ItemAudits returns the operation trail of one queue item, newest first.
func (s *QueueService) ItemAudits(ctx context.Context, itemID string) ([]model.SyncAudit, error) {
	item, err := s.queueRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	return s.auditRepo.ListByReference(ctx, itemID)
}

// ListAudits pages through the full operation trail.
func (s *QueueService) ListAudits(ctx context.Context, offset, limit int) ([]model.SyncAudit, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.auditRepo.List(ctx, offset, limit)
}

// ClearCompleted drops COMPLETED items only. Safe on an empty queue.
func (s *QueueService) ClearCompleted(ctx context.Context, actor string) (int64, error) {
	removed, err := s.queueRepo.DeleteCompleted(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		traceID, _ := ctx.Value("TraceID").(string)
		if err := s.auditRepo.Create(ctx, &model.SyncAudit{
			Action:   model.AuditClear,
			Detail:   fmt.Sprintf("removed %d completed items", removed),
			Operator: actor,
			TraceID:  traceID,
		}); err != nil {
			logger.Warn("failed to audit clear", zap.Error(err))
		}
	}
	s.refreshDepth(ctx)
	return removed, nil
}

// Cancel withdraws a PENDING or FAILED item from all future processing.
func (s *QueueService) Cancel(ctx context.Context, itemID, actor string) (*model.SyncQueueItem, error) {
	item, err := s.queueRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if item.Status != model.QueuePending && item.Status != model.QueueFailed {
		return nil, fmt.Errorf("%w: status is %s", ErrNotCancellable, item.Status)
	}

	item.Status = model.QueueCancelled
	if err := s.queueRepo.Save(ctx, item); err != nil {
		return nil, err
	}
	s.audit(ctx, model.AuditCancel, item)
	s.publishItemEvent(v1.EventItemCancelled, item, "")
	s.refreshDepth(ctx)
	return item, nil
}

// attempt delivers one item through its transport under the attempt timeout.
func (s *QueueService) attempt(ctx context.Context, item *model.SyncQueueItem) error {
	tr, ok := s.transports[item.SyncType]
	if !ok {
		return fmt.Errorf("no transport registered for %s", item.SyncType)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.opts.AttemptTimeout)
	defer cancel()

	start := time.Now()
	err := tr.Deliver(attemptCtx, transport.Delivery{
		SyncType:   item.SyncType,
		EntityType: item.EntityType,
		EntityID:   item.EntityID,
		Payload:    item.EntityData,
	})
	if s.observer != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		s.observer.RecordAttempt(outcome, time.Since(start).Seconds())
	}
	return err
}

func (s *QueueService) recordSuccess(ctx context.Context, item *model.SyncQueueItem) {
	item.Status = model.QueueCompleted
	item.ErrorMessage = ""
	item.NextRetry = nil
	if err := s.queueRepo.Save(ctx, item); err != nil {
		logger.Error("failed to persist completion", zap.String("id", item.ID), zap.Error(err))
		return
	}
	logger.Info("sync item completed",
		zap.String("id", item.ID),
		zap.String("entity_id", item.EntityID),
		zap.Int("retry_count", item.RetryCount))
	s.publishItemEvent(v1.EventItemCompleted, item, "")
}

// recordFailure applies retry accounting and reports whether the item moved
// to FAILED terminally this pass.
func (s *QueueService) recordFailure(ctx context.Context, item *model.SyncQueueItem, attemptAt time.Time, cause error) bool {
	item.RetryCount++
	exhausted := item.RetryCount >= item.MaxRetries

	if exhausted {
		item.Status = model.QueueFailed
		item.ErrorMessage = cause.Error()
		item.NextRetry = nil
	} else {
		item.Status = model.QueuePending
		nextRetry := s.opts.Backoff.NextRetryAt(attemptAt, item.RetryCount)
		item.NextRetry = &nextRetry
	}

	if err := s.queueRepo.Save(ctx, item); err != nil {
		logger.Error("failed to persist attempt failure", zap.String("id", item.ID), zap.Error(err))
		return false
	}

	if exhausted {
		logger.Error("sync item failed permanently",
			zap.String("id", item.ID),
			zap.String("entity_id", item.EntityID),
			zap.Int("retry_count", item.RetryCount),
			zap.Error(cause))
		s.publishItemEvent(v1.EventItemFailed, item, cause.Error())
		return true
	}

	logger.Warn("sync attempt failed, rescheduled",
		zap.String("id", item.ID),
		zap.Int("retry_count", item.RetryCount),
		zap.Timep("next_retry", item.NextRetry),
		zap.Error(cause))
	return false
}

func (s *QueueService) publishItemEvent(eventType v1.EventType, item *model.SyncQueueItem, reason string) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(v1.SyncEvent{
		Type:       eventType,
		ItemID:     item.ID,
		SyncType:   string(item.SyncType),
		EntityType: string(item.EntityType),
		EntityID:   item.EntityID,
		Priority:   string(item.Priority),
		Reason:     reason,
	})
}

func (s *QueueService) audit(ctx context.Context, action string, item *model.SyncQueueItem) {
	traceID, _ := ctx.Value("TraceID").(string)
	if err := s.auditRepo.Create(ctx, &model.SyncAudit{
		Action:     action,
		EntityType: item.EntityType,
		EntityID:   item.EntityID,
		Reference:  item.ID,
		Detail:     string(item.SyncType),
		Operator:   GetOperator(ctx),
		TraceID:    traceID,
	}); err != nil {
		logger.Warn("failed to write audit record", zap.String("action", action), zap.Error(err))
	}
}

// transact runs fn inside a DB transaction when a DB is wired, otherwise
// directly against the repos (in-memory test doubles).
func (s *QueueService) transact(ctx context.Context, fn func(repository.QueueInterface, repository.AuditInterface) error) error {
	if s.db == nil {
		return fn(s.queueRepo, s.auditRepo)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.queueRepo.WithTx(tx), s.auditRepo.WithTx(tx))
	})
}

func (s *QueueService) refreshDepth(ctx context.Context) {
	if s.observer == nil {
		return
	}
	counts, err := s.queueRepo.CountByStatus(ctx)
	if err != nil {
		logger.Debug("failed to refresh queue depth gauge", zap.Error(err))
		return
	}
	for _, status := range []model.QueueStatus{
		model.QueuePending, model.QueueInProgress, model.QueueCompleted,
		model.QueueFailed, model.QueueCancelled,
	} {
		s.observer.SetQueueDepth(string(status), counts[status])
	}
}

func validateEnvelope(syncType model.SyncType, entityType model.EntityType, entityID string) error {
	switch syncType {
	case model.SyncITInventory, model.SyncCeisa:
	default:
		return fmt.Errorf("%w: unknown sync type %q", ErrValidation, syncType)
	}
	switch entityType {
	case model.EntityInbound, model.EntityOutbound, model.EntityProduction,
		model.EntityStockMutation, model.EntityBCDocument:
	default:
		return fmt.Errorf("%w: unknown entity type %q", ErrValidation, entityType)
	}
	if entityID == "" {
		return fmt.Errorf("%w: entity id is required", ErrValidation)
	}
	return nil
}
