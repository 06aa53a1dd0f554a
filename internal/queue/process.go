package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kinfolk-ai/kinfolk/internal/app"
	"github.com/kinfolk-ai/kinfolk/internal/storage"
	"github.com/kinfolk-ai/kinfolk/pkg/extraction"
	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/leaselock"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"
	"github.com/kinfolk-ai/kinfolk/pkg/reconcile"
	"github.com/kinfolk-ai/kinfolk/pkg/store"
)

// Publisher enqueues follow-up jobs.
type Publisher interface {
	Publish(queueName string, data []byte) error
}

// Processor handles worker messages against the application graph. S3 may
// be nil when no bucket is configured. Without a Publisher a busy reconcile
// lease skips the auto-merge instead of deferring it.
type Processor struct {
	App       *app.App
	S3        *storage.Client
	Publisher Publisher
}

// IsPermanent reports errors that will fail the same way on every retry.
func IsPermanent(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.Is(err, genealogy.ErrInvalid) ||
		errors.Is(err, genealogy.ErrNotFound) ||
		errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr)
}

// Process dispatches a message body by the queue it came from.
func (p *Processor) Process(ctx context.Context, queueName string, body []byte) error {
	switch queueName {
	case ExtractionQueue:
		return p.ProcessExtractionMessage(ctx, body)
	case ReconcileQueue:
		return p.ProcessReconcileMessage(ctx, body)
	case DeleteQueue:
		return p.ProcessDeleteMessage(ctx, body)
	}
	return fmt.Errorf("unknown queue %q", queueName)
}

func (p *Processor) ProcessExtractionMessage(ctx context.Context, body []byte) error {
	var msg ExtractionMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return err
	}
	_, err := p.Ingest(ctx, msg)
	return err
}

// IngestResult describes one stored extraction and the auto-merge pass that
// followed it, if any.
type IngestResult struct {
	Extraction store.ExtractionReport `json:"extraction"`
	Reconcile  *reconcile.RunReport   `json:"reconcile,omitempty"`
	// Deferred is set when the reconcile pass was handed to another worker.
	Deferred bool `json:"deferred,omitempty"`
	// Warnings lists auto-merge failures. The extraction is committed by
	// then, so they never fail the job.
	Warnings []string `json:"warnings,omitempty"`
}

// Ingest stores one extraction and, when enabled, runs an auto-merge pass.
// An error means nothing was committed or the store rejected the input;
// failures after the commit come back as warnings.
func (p *Processor) Ingest(ctx context.Context, msg ExtractionMsg) (IngestResult, error) {
	var res IngestResult

	docID := msg.DocumentID
	if docID == 0 {
		doc, created, err := p.App.Store.AddDocument(ctx, genealogy.Document{
			Source:       msg.Source,
			Page:         msg.Page,
			OCRText:      msg.OCRText,
			DocumentType: genealogy.StringPtr(msg.DocumentType),
		})
		if err != nil {
			return res, err
		}
		if !created {
			logger.Info("[Queue] Page already stored", "source", doc.Source, "page", doc.Page, "document_id", doc.ID)
		}
		docID = doc.ID
	}

	raw := []byte(msg.Result)
	if msg.ResultKey != "" {
		if p.S3 == nil {
			return res, genealogy.NewValidationError("result_key", "no bucket configured")
		}
		var err error
		if raw, err = p.S3.GetFile(ctx, msg.ResultKey); err != nil {
			return res, err
		}
	}
	if len(raw) == 0 {
		return res, genealogy.NewValidationError("result", "missing extraction result")
	}

	result, err := extraction.Parse(string(raw))
	if err != nil {
		return res, genealogy.NewValidationError("result", err.Error())
	}

	res.Extraction, err = p.App.Store.StoreExtraction(ctx, docID, result, store.ExtractionOptions{
		FamilyName: msg.FamilyName,
		FamilySide: msg.FamilySide,
	})
	if err != nil {
		return res, err
	}

	autoMerge := p.App.Config.Reconcile.AutoMergeOnIngest
	if msg.AutoMerge != nil {
		autoMerge = *msg.AutoMerge
	}
	if !autoMerge {
		return res, nil
	}
	run, deferred, err := p.reconcileOrDefer(ctx, "ingest")
	if err != nil {
		logger.Warn("[Queue] Auto-merge after ingest failed", "document_id", docID, "err", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("auto-merge: %v", err))
		return res, nil
	}
	res.Deferred = deferred
	if !deferred {
		res.Reconcile = &run
	}
	return res, nil
}

// reconcileOrDefer runs an auto-approve pass now, or enqueues one when
// another worker holds the reconcile lease.
func (p *Processor) reconcileOrDefer(ctx context.Context, mergedBy string) (reconcile.RunReport, bool, error) {
	run, err := p.App.Reconciler.Run(ctx, p.App.Config.AutoPolicy(mergedBy))
	if errors.Is(err, leaselock.ErrBusy) {
		if p.Publisher == nil {
			logger.Info("[Queue] Reconcile already running, skipping auto-merge")
			return run, true, nil
		}
		logger.Info("[Queue] Reconcile already running, deferring")
		data, err := json.Marshal(ReconcileMsg{MergedBy: mergedBy})
		if err != nil {
			return run, false, err
		}
		return run, true, p.Publisher.Publish(ReconcileQueue, data)
	}
	if err != nil {
		return run, false, err
	}
	logger.Info("[Queue] Auto-merge finished", "merged", len(run.Merges), "remaining", run.Remaining)
	return run, false, nil
}

// ProcessReconcileMessage runs an auto-approve reconciliation. An empty body
// uses the configured policy.
func (p *Processor) ProcessReconcileMessage(ctx context.Context, body []byte) error {
	var msg ReconcileMsg
	if len(body) > 0 {
		if err := json.Unmarshal(body, &msg); err != nil {
			return err
		}
	}
	if msg.MergedBy == "" {
		msg.MergedBy = "worker"
	}

	policy := p.App.Config.AutoPolicy(msg.MergedBy)
	if msg.MaxMerges > 0 {
		policy.MaxMerges = msg.MaxMerges
	}
	run, err := p.App.Reconciler.Run(ctx, policy)
	if err != nil {
		return err
	}
	logger.Info("[Queue] Reconcile finished",
		"merged", len(run.Merges),
		"stale", run.Stale,
		"remaining", run.Remaining,
	)
	return nil
}
