package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ibisync/internal/model"
	"ibisync/internal/repository"
	"ibisync/internal/transport"
	v1 "ibisync/pkg/api/v1"
	"ibisync/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrSubmissionFailed = errors.New("ceisa submission failed")

// SubmissionResult is what a caller gets back from Submit.
type SubmissionResult struct {
	Success        bool              `json:"success"`
	CeisaReference string            `json:"ceisa_reference"`
	SubmissionDate time.Time         `json:"submission_date"`
	Status         model.CeisaStatus `json:"status"`
	Message        string            `json:"message"`
}

// CeisaService tracks customs submissions: it generates references, owns the
// record between creation and terminal state and advances records from the
// gateway's polled answers.
type CeisaService struct {
	db          *gorm.DB
	ceisaRepo   repository.CeisaInterface
	auditRepo   repository.AuditInterface
	gateway     transport.Transport
	hub         *Hub
	clock       Clock
	pollTimeout time.Duration
}

func NewCeisaService(db *gorm.DB, ceisaRepo repository.CeisaInterface, auditRepo repository.AuditInterface, gateway transport.Transport, hub *Hub, clock Clock, pollTimeout time.Duration) *CeisaService {
	if clock == nil {
		clock = SystemClock{}
	}
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}
	return &CeisaService{
		db:          db,
		ceisaRepo:   ceisaRepo,
		auditRepo:   auditRepo,
		gateway:     gateway,
		hub:         hub,
		clock:       clock,
		pollTimeout: pollTimeout,
	}
}

// newCeisaReference builds an external reference like CEISA-20260830-1A2B3C4D.
func (s *CeisaService) newCeisaReference() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
	return fmt.Sprintf("CEISA-%s-%s", s.clock.Now().Format("20060102"), suffix)
}

// Submit delivers the document to the customs gateway and, only on success,
// creates the tracking record in status SUBMITTED. A transport failure
// creates nothing and surfaces as ErrSubmissionFailed.
func (s *CeisaService) Submit(ctx context.Context, documentNumber, documentType, payload, actor string) (*SubmissionResult, error) {
	if documentNumber == "" {
		return nil, fmt.Errorf("%w: document number is required", ErrValidation)
	}
	if documentType == "" {
		return nil, fmt.Errorf("%w: document type is required", ErrValidation)
	}
	if actor == "" {
		actor = GetOperator(ctx)
	}

	reference := s.newCeisaReference()
	err := s.gateway.Deliver(ctx, transport.Delivery{
		SyncType:   model.SyncCeisa,
		EntityType: model.EntityBCDocument,
		EntityID:   documentNumber,
		Reference:  reference,
		Payload:    payload,
	})
	if err != nil {
		logger.Warn("ceisa submission refused",
			zap.String("document_number", documentNumber), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	now := s.clock.Now()
	record := &model.CeisaStatusRecord{
		CeisaReference: reference,
		DocumentNumber: documentNumber,
		DocumentType:   documentType,
		Status:         model.CeisaSubmitted,
		SubmissionDate: now,
		LastUpdated:    now,
		SubmittedBy:    actor,
	}

	traceID, _ := ctx.Value("TraceID").(string)
	err = s.transactCeisa(ctx, func(ceisaRepo repository.CeisaInterface, auditRepo repository.AuditInterface) error {
		if err := ceisaRepo.Create(ctx, record); err != nil {
			return err
		}
		return auditRepo.Create(ctx, &model.SyncAudit{
			Action:     model.AuditSubmit,
			EntityType: model.EntityBCDocument,
			EntityID:   documentNumber,
			Reference:  reference,
			Detail:     documentType,
			Operator:   actor,
			TraceID:    traceID,
		})
	})
	if err != nil {
		// The gateway has the document but we lost the record; surface the
		// reference in the error so operators can reconcile manually.
		logger.Error("ceisa record persist failed after delivery",
			zap.String("reference", reference), zap.Error(err))
		return nil, fmt.Errorf("persist ceisa record %s: %w", reference, err)
	}

	logger.Info("ceisa document submitted",
		zap.String("reference", reference),
		zap.String("document_number", documentNumber),
		zap.String("document_type", documentType))

	return &SubmissionResult{
		Success:        true,
		CeisaReference: reference,
		SubmissionDate: record.SubmissionDate,
		Status:         record.Status,
		Message:        "document submitted to CEISA",
	}, nil
}

// CheckStatus reads a record and, when it is still awaiting a decision,
// advances it exactly once from the gateway's answer. Unknown references
// return (nil, nil); terminal records come back unchanged.
func (s *CeisaService) CheckStatus(ctx context.Context, reference string) (*model.CeisaStatusRecord, error) {
	record, err := s.ceisaRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	if model.CeisaTerminal(record.Status) {
		return record, nil
	}

	pollCtx, cancel := context.WithTimeout(ctx, s.pollTimeout)
	defer cancel()

	result, pollErr := s.gateway.PollStatus(pollCtx, reference)
	now := s.clock.Now()

	if pollErr != nil {
		record.Status = model.CeisaFailed
		record.RejectionReason = ""
		record.LastUpdated = now
		if err := s.ceisaRepo.Save(ctx, record); err != nil {
			return nil, err
		}
		logger.Error("ceisa status poll failed, record marked failed",
			zap.String("reference", reference), zap.Error(pollErr))
		s.publishCeisaEvent(v1.EventCeisaFailed, record, pollErr.Error())
		return record, nil
	}

	switch result.Status {
	case transport.StatusApproved:
		record.Status = model.CeisaApproved
		record.ApprovalDate = &now
		record.LastUpdated = now
	case transport.StatusRejected:
		record.Status = model.CeisaRejected
		record.RejectionReason = result.Reason
		record.LastUpdated = now
	case transport.StatusProcessing:
		if record.Status == model.CeisaProcessing {
			// No transition, nothing to persist.
			return record, nil
		}
		record.Status = model.CeisaProcessing
		record.LastUpdated = now
	}

	if err := s.ceisaRepo.Save(ctx, record); err != nil {
		return nil, err
	}

	logger.Info("ceisa status advanced",
		zap.String("reference", reference),
		zap.String("status", string(record.Status)))

	switch record.Status {
	case model.CeisaApproved:
		s.publishCeisaEvent(v1.EventCeisaApproved, record, "")
	case model.CeisaRejected:
		s.publishCeisaEvent(v1.EventCeisaRejected, record, record.RejectionReason)
	}
	return record, nil
}

// ListAll returns every submission record, newest submissions first.
func (s *CeisaService) ListAll(ctx context.Context) ([]model.CeisaStatusRecord, error) {
	return s.ceisaRepo.List(ctx)
}

func (s *CeisaService) publishCeisaEvent(eventType v1.EventType, record *model.CeisaStatusRecord, reason string) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(v1.SyncEvent{
		Type:       eventType,
		EntityType: string(model.EntityBCDocument),
		EntityID:   record.DocumentNumber,
		Reference:  record.CeisaReference,
		Reason:     reason,
	})
}

func (s *CeisaService) transactCeisa(ctx context.Context, fn func(repository.CeisaInterface, repository.AuditInterface) error) error {
	if s.db == nil {
		return fn(s.ceisaRepo, s.auditRepo)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.ceisaRepo.WithTx(tx), s.auditRepo.WithTx(tx))
	})
}
