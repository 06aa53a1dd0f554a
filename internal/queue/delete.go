package queue

import (
	"context"
	"encoding/json"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"
)

// ProcessDeleteMessage deletes a document source and then its file.
func (p *Processor) ProcessDeleteMessage(ctx context.Context, body []byte) error {
	var msg DeleteMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return err
	}
	if msg.DocumentID <= 0 {
		return genealogy.NewValidationError("document_id", "must be positive")
	}

	report, err := p.App.Store.DeleteDocument(ctx, msg.DocumentID)
	if err != nil {
		return err
	}
	logger.Info("[Queue] Document deleted",
		"source", report.Source,
		"pages", report.PagesDeleted,
		"people_deleted", report.PeopleDeleted,
		"people_retained", report.PeopleRetained,
	)
	for _, w := range report.Warnings {
		logger.Warn("[Queue] Delete warning", "document_id", msg.DocumentID, "warning", w)
	}

	if msg.FileKey != "" && p.S3 != nil {
		if err := p.S3.DeleteFile(ctx, msg.FileKey); err != nil {
			logger.Warn("[Queue] Failed to delete S3 file", "file_key", msg.FileKey, "err", err)
		}
	}
	return nil
}
