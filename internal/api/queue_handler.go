package api

import (
	"context"
	"errors"
	"net/http"

	"ibisync/internal/dto/req"
	"ibisync/internal/dto/resp"
	"ibisync/internal/model"
	"ibisync/internal/service"

	"github.com/gin-gonic/gin"
)

type QueueProvider interface {
	Enqueue(ctx context.Context, syncType model.SyncType, entityType model.EntityType, entityID, entityData string, priority model.Priority, actor string) (*model.SyncQueueItem, error)
	ProcessQueue(ctx context.Context) (service.ProcessResult, error)
	Retry(ctx context.Context, itemID string) (*model.SyncQueueItem, error)
	ListQueue(ctx context.Context, status *model.QueueStatus) ([]model.SyncQueueItem, error)
	GetItem(ctx context.Context, itemID string) (*model.SyncQueueItem, error)
	ClearCompleted(ctx context.Context, actor string) (int64, error)
	Cancel(ctx context.Context, itemID, actor string) (*model.SyncQueueItem, error)
	ItemAudits(ctx context.Context, itemID string) ([]model.SyncAudit, error)
	ListAudits(ctx context.Context, offset, limit int) ([]model.SyncAudit, int64, error)
	Health(ctx context.Context) error
}

type QueueHandler struct {
	service QueueProvider
}

func NewQueueHandler(service QueueProvider) *QueueHandler {
	return &QueueHandler{service: service}
}

func (h *QueueHandler) Enqueue(c *gin.Context) {
	var r req.EnqueueRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON format error"})
		return
	}

	actor := r.Actor
	if actor == "" {
		actor = service.GetOperator(c.Request.Context())
	}

	item, err := h.service.Enqueue(c.Request.Context(),
		model.SyncType(r.SyncType),
		model.EntityType(r.EntityType),
		r.EntityID,
		r.EntityData,
		model.Priority(r.Priority),
		actor)
	if err != nil {
		respondQueueError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp.EnqueueResponse{Item: item})
}

func (h *QueueHandler) List(c *gin.Context) {
	var r req.ListQueueRequest
	if err := c.ShouldBindQuery(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid params"})
		return
	}

	var status *model.QueueStatus
	if r.Status != "" {
		s := model.QueueStatus(r.Status)
		status = &s
	}

	items, err := h.service.ListQueue(c.Request.Context(), status)
	if err != nil {
		respondQueueError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.ListQueueResponse{Items: items, Total: len(items)})
}

func (h *QueueHandler) Get(c *gin.Context) {
	var r req.ItemRequest
	if err := c.ShouldBindUri(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	item, err := h.service.GetItem(c.Request.Context(), r.ID)
	if err != nil {
		respondQueueError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// Process triggers one processing pass on demand, alongside the periodic
// worker. Delivery failures are retry accounting, not request errors.
func (h *QueueHandler) Process(c *gin.Context) {
	res, err := h.service.ProcessQueue(c.Request.Context())
	if err != nil {
		respondQueueError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.ProcessResponse{Processed: res.Processed, Failed: res.Failed})
}

func (h *QueueHandler) Retry(c *gin.Context) {
	var r req.ItemRequest
	if err := c.ShouldBindUri(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	item, err := h.service.Retry(c.Request.Context(), r.ID)
	if err != nil {
		if errors.Is(err, service.ErrDeliveryFailed) {
			// The consumed attempt is already persisted; report both.
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "item": item})
			return
		}
		respondQueueError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *QueueHandler) Cancel(c *gin.Context) {
	var r req.ItemRequest
	if err := c.ShouldBindUri(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	item, err := h.service.Cancel(c.Request.Context(), r.ID, service.GetOperator(c.Request.Context()))
	if err != nil {
		respondQueueError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *QueueHandler) ClearCompleted(c *gin.Context) {
	removed, err := h.service.ClearCompleted(c.Request.Context(), service.GetOperator(c.Request.Context()))
	if err != nil {
		respondQueueError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.ClearCompletedResponse{Removed: removed})
}

func (h *QueueHandler) Audits(c *gin.Context) {
	var r req.ItemRequest
	if err := c.ShouldBindUri(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	audits, err := h.service.ItemAudits(c.Request.Context(), r.ID)
	if err != nil {
		respondQueueError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audits": audits, "total": len(audits)})
}

// AuditLog pages through the audit trail across all items.
func (h *QueueHandler) AuditLog(c *gin.Context) {
	var r req.ListAuditsRequest
	if err := c.ShouldBindQuery(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid params"})
		return
	}

	audits, total, err := h.service.ListAudits(c.Request.Context(), r.Offset, r.Limit)
	if err != nil {
		respondQueueError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audits": audits, "total": total})
}

func (h *QueueHandler) HealthCheck(c *gin.Context) {
	if err := h.service.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func respondQueueError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrRetryExhausted),
		errors.Is(err, service.ErrNotRetryable),
		errors.Is(err, service.ErrNotCancellable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
