package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ibisync/internal/model"
	"ibisync/internal/repository"
	"ibisync/internal/transport"

	"gorm.io/gorm"
)

type fakeCeisaRepo struct {
	mu      sync.Mutex
	records map[string]model.CeisaStatusRecord
}

func newFakeCeisaRepo() *fakeCeisaRepo {
	return &fakeCeisaRepo{records: make(map[string]model.CeisaStatusRecord)}
}

func (r *fakeCeisaRepo) Create(ctx context.Context, record *model.CeisaStatusRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.CeisaReference] = *record
	return nil
}

func (r *fakeCeisaRepo) GetByReference(ctx context.Context, reference string) (*model.CeisaStatusRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[reference]
	if !ok {
		return nil, nil
	}
	cp := record
	return &cp, nil
}

func (r *fakeCeisaRepo) List(ctx context.Context) ([]model.CeisaStatusRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.CeisaStatusRecord, 0, len(r.records))
	for _, record := range r.records {
		out = append(out, record)
	}
	return out, nil
}

func (r *fakeCeisaRepo) FetchNonTerminal(ctx context.Context, limit int) ([]model.CeisaStatusRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CeisaStatusRecord
	for _, record := range r.records {
		if !model.CeisaTerminal(record.Status) {
			out = append(out, record)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeCeisaRepo) Save(ctx context.Context, record *model.CeisaStatusRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.CeisaReference] = *record
	return nil
}

func (r *fakeCeisaRepo) WithTx(tx *gorm.DB) repository.CeisaInterface { return r }

// fakeGateway scripts the customs side: Deliver refusals and PollStatus
// answers per call.
type fakeGateway struct {
	mu         sync.Mutex
	deliverErr error
	pollResult transport.PollResult
	pollErr    error
	pollCalls  int
}

func (g *fakeGateway) Deliver(ctx context.Context, d transport.Delivery) error {
	return g.deliverErr
}

func (g *fakeGateway) PollStatus(ctx context.Context, reference string) (transport.PollResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pollCalls++
	return g.pollResult, g.pollErr
}

func (g *fakeGateway) polls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pollCalls
}

func newTestCeisaService(gw *fakeGateway) (*CeisaService, *fakeCeisaRepo, *fakeAuditRepo, *fakeClock) {
	ceisaRepo := newFakeCeisaRepo()
	auditRepo := &fakeAuditRepo{}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewCeisaService(nil, ceisaRepo, auditRepo, gw, nil, clock, time.Second)
	return svc, ceisaRepo, auditRepo, clock
}

func TestSubmit_CreatesSubmittedRecord(t *testing.T) {
	svc, repo, auditRepo, clock := newTestCeisaService(&fakeGateway{})

	result, err := svc.Submit(context.Background(), "BC23-0001", "BC 2.3", `{"items":[]}`, "operator")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if !result.Success {
		t.Error("expected success result")
	}
	if !strings.HasPrefix(result.CeisaReference, "CEISA-20260301-") {
		t.Errorf("reference = %s, want CEISA-20260301-XXXXXXXX", result.CeisaReference)
	}
	if result.Status != model.CeisaSubmitted {
		t.Errorf("status = %s, want SUBMITTED", result.Status)
	}

	record, _ := repo.GetByReference(context.Background(), result.CeisaReference)
	if record == nil {
		t.Fatal("record was not persisted")
	}
	if record.DocumentNumber != "BC23-0001" || record.DocumentType != "BC 2.3" {
		t.Errorf("document fields = %s/%s", record.DocumentNumber, record.DocumentType)
	}
	if !record.SubmissionDate.Equal(clock.Now()) {
		t.Errorf("submission_date = %v, want %v", record.SubmissionDate, clock.Now())
	}
	if record.SubmittedBy != "operator" {
		t.Errorf("submitted_by = %s", record.SubmittedBy)
	}
	if auditRepo.countAction(model.AuditSubmit) != 1 {
		t.Error("expected one CEISA_SUBMIT audit record")
	}
}

func TestSubmit_DistinctReferencesPerSubmission(t *testing.T) {
	svc, _, _, _ := newTestCeisaService(&fakeGateway{})
	ctx := context.Background()

	first, _ := svc.Submit(ctx, "BC23-0001", "BC 2.3", "{}", "operator")
	second, _ := svc.Submit(ctx, "BC23-0001", "BC 2.3", "{}", "operator")

	if first.CeisaReference == second.CeisaReference {
		t.Error("resubmission must get its own reference")
	}
}

func TestSubmit_Validation(t *testing.T) {
	svc, _, _, _ := newTestCeisaService(&fakeGateway{})
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "", "BC 2.3", "{}", "operator"); !errors.Is(err, ErrValidation) {
		t.Errorf("missing document number: got %v", err)
	}
	if _, err := svc.Submit(ctx, "BC23-0001", "", "{}", "operator"); !errors.Is(err, ErrValidation) {
		t.Errorf("missing document type: got %v", err)
	}
}

func TestSubmit_GatewayRefusalCreatesNothing(t *testing.T) {
	gw := &fakeGateway{deliverErr: errors.New("gateway timeout")}
	svc, repo, _, _ := newTestCeisaService(gw)

	_, err := svc.Submit(context.Background(), "BC23-0001", "BC 2.3", "{}", "operator")
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("expected ErrSubmissionFailed, got %v", err)
	}

	records, _ := repo.List(context.Background())
	if len(records) != 0 {
		t.Error("refused submission must not leave a record behind")
	}
}

func TestCheckStatus_UnknownReference(t *testing.T) {
	svc, _, _, _ := newTestCeisaService(&fakeGateway{})

	record, err := svc.CheckStatus(context.Background(), "CEISA-20260301-FFFFFFFF")
	if err != nil {
		t.Fatalf("CheckStatus errored: %v", err)
	}
	if record != nil {
		t.Error("unknown reference should yield an empty result, not a record")
	}
}

func TestCheckStatus_AdvancesToApproved(t *testing.T) {
	gw := &fakeGateway{pollResult: transport.PollResult{Status: transport.StatusApproved}}
	svc, _, _, clock := newTestCeisaService(gw)
	ctx := context.Background()

	result, _ := svc.Submit(ctx, "BC23-0001", "BC 2.3", "{}", "operator")
	clock.Advance(time.Hour)

	record, err := svc.CheckStatus(ctx, result.CeisaReference)
	if err != nil {
		t.Fatalf("CheckStatus failed: %v", err)
	}
	if record.Status != model.CeisaApproved {
		t.Errorf("status = %s, want APPROVED", record.Status)
	}
	if record.ApprovalDate == nil || !record.ApprovalDate.Equal(clock.Now()) {
		t.Errorf("approval_date = %v, want %v", record.ApprovalDate, clock.Now())
	}
	if !record.LastUpdated.Equal(clock.Now()) {
		t.Errorf("last_updated = %v, want %v", record.LastUpdated, clock.Now())
	}

	// Terminal records come back unchanged and without another poll.
	polls := gw.polls()
	again, _ := svc.CheckStatus(ctx, result.CeisaReference)
	if again.Status != model.CeisaApproved {
		t.Errorf("terminal status drifted to %s", again.Status)
	}
	if gw.polls() != polls {
		t.Error("terminal record must not be polled again")
	}
}

func TestCheckStatus_RecordsRejectionReason(t *testing.T) {
	gw := &fakeGateway{pollResult: transport.PollResult{
		Status: transport.StatusRejected,
		Reason: "HS code mismatch on line 3",
	}}
	svc, _, _, _ := newTestCeisaService(gw)
	ctx := context.Background()

	result, _ := svc.Submit(ctx, "BC23-0001", "BC 2.3", "{}", "operator")

	record, err := svc.CheckStatus(ctx, result.CeisaReference)
	if err != nil {
		t.Fatalf("CheckStatus failed: %v", err)
	}
	if record.Status != model.CeisaRejected {
		t.Errorf("status = %s, want REJECTED", record.Status)
	}
	if record.RejectionReason != "HS code mismatch on line 3" {
		t.Errorf("rejection_reason = %q", record.RejectionReason)
	}
	if record.ApprovalDate != nil {
		t.Error("rejected record must not carry an approval date")
	}
}

func TestCheckStatus_ProcessingIsIdempotent(t *testing.T) {
	gw := &fakeGateway{pollResult: transport.PollResult{Status: transport.StatusProcessing}}
	svc, repo, _, clock := newTestCeisaService(gw)
	ctx := context.Background()

	result, _ := svc.Submit(ctx, "BC23-0001", "BC 2.3", "{}", "operator")
	clock.Advance(time.Minute)

	record, _ := svc.CheckStatus(ctx, result.CeisaReference)
	if record.Status != model.CeisaProcessing {
		t.Fatalf("status = %s, want PROCESSING", record.Status)
	}
	firstUpdate := record.LastUpdated

	// Polling PROCESSING again is a read, not a transition.
	clock.Advance(time.Minute)
	record, _ = svc.CheckStatus(ctx, result.CeisaReference)
	if record.Status != model.CeisaProcessing {
		t.Errorf("status drifted to %s", record.Status)
	}
	stored, _ := repo.GetByReference(ctx, result.CeisaReference)
	if !stored.LastUpdated.Equal(firstUpdate) {
		t.Error("repeat PROCESSING poll must not rewrite the record")
	}
}

func TestCheckStatus_PollErrorMarksFailed(t *testing.T) {
	gw := &fakeGateway{pollErr: errors.New("gateway 502")}
	svc, repo, _, _ := newTestCeisaService(gw)
	ctx := context.Background()

	result, _ := svc.Submit(ctx, "BC23-0001", "BC 2.3", "{}", "operator")

	record, err := svc.CheckStatus(ctx, result.CeisaReference)
	if err != nil {
		t.Fatalf("poll error must be absorbed into the record, got %v", err)
	}
	if record.Status != model.CeisaFailed {
		t.Errorf("status = %s, want FAILED", record.Status)
	}

	stored, _ := repo.GetByReference(ctx, result.CeisaReference)
	if stored.Status != model.CeisaFailed {
		t.Errorf("persisted status = %s, want FAILED", stored.Status)
	}
}

func TestPollerSweep_AdvancesNonTerminalRecords(t *testing.T) {
	gw := &fakeGateway{pollResult: transport.PollResult{Status: transport.StatusApproved}}
	svc, repo, _, _ := newTestCeisaService(gw)
	ctx := context.Background()

	first, _ := svc.Submit(ctx, "BC23-0001", "BC 2.3", "{}", "operator")
	second, _ := svc.Submit(ctx, "BC23-0002", "BC 2.5", "{}", "operator")

	poller := NewCeisaPoller(repo, svc, CeisaPollerConfig{Interval: time.Hour})
	poller.sweep(ctx)

	for _, ref := range []string{first.CeisaReference, second.CeisaReference} {
		record, _ := repo.GetByReference(ctx, ref)
		if record.Status != model.CeisaApproved {
			t.Errorf("record %s status = %s, want APPROVED", ref, record.Status)
		}
	}

	// A second sweep finds nothing left to poll.
	polls := gw.polls()
	poller.sweep(ctx)
	if gw.polls() != polls {
		t.Error("terminal records were polled again")
	}
}
