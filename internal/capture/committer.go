package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/casafin/expense-capture/internal/backend"
	"github.com/casafin/expense-capture/internal/imaging"
)

// TransactionAPI is the slice of the backend contract the committer needs.
type TransactionAPI interface {
	CreateTransaction(ctx context.Context, create backend.TransactionCreate) (*backend.TransactionRecord, error)
	UploadAttachment(ctx context.Context, transactionID uuid.UUID, filename string, data []byte, contentType string) (*backend.TransactionRecord, error)
}

// Committer executes the two-phase reconciliation write: create the
// financial record, then best-effort attach the source image. The two writes
// are deliberately decoupled so a media failure can never lose or duplicate
// the financial fact.
type Committer struct {
	api     TransactionAPI
	images  imaging.Store
	journal Journal
}

// NewCommitter creates a Committer. journal may be nil when partial-success
// retry is not wanted (recurring auto-execution commits carry no image).
func NewCommitter(api TransactionAPI, images imaging.Store, journal Journal) *Committer {
	return &Committer{
		api:     api,
		images:  images,
		journal: journal,
	}
}

// Commit runs the two-phase write for a draft. Order matters:
//
//  1. Create the record. On failure nothing exists and nothing else is
//     attempted: Failure.
//  2. If an image is present, attach it. On failure the record stands:
//     PartialSuccess, and the upload is journaled for a later retry.
//
// Commit never retries step 1 on its own; a failed creation is a
// user-initiated new attempt, which keeps transient retries from minting
// duplicate records.
func (c *Committer) Commit(ctx context.Context, draft *Draft, image *imaging.NormalizedImage) CommitOutcome {
	record, err := c.api.CreateTransaction(ctx, draft.toCreate())
	if err != nil {
		return CommitOutcome{
			Kind:   OutcomeFailure,
			Reason: fmt.Errorf("creating transaction: %w", err),
		}
	}

	if image == nil {
		return CommitOutcome{Kind: OutcomeSuccess, Record: record}
	}

	filename := draft.ID.String() + ".jpg"
	updated, err := c.api.UploadAttachment(ctx, record.ID, filename, image.Data, "image/jpeg")
	if err != nil {
		slog.Warn("Attachment upload failed after record creation",
			"transaction_id", record.ID,
			"error", err,
		)
		c.journalPending(record.ID, image.StoredPath, filename, err)
		return CommitOutcome{
			Kind:          OutcomePartialSuccess,
			Record:        record,
			AttachmentErr: err,
		}
	}

	return CommitOutcome{Kind: OutcomeSuccess, Record: updated}
}

// journalPending records the failed upload so it can be retried at the next
// startup. Journal failures are logged, not surfaced: the commit outcome is
// already decided.
func (c *Committer) journalPending(transactionID uuid.UUID, imagePath, filename string, cause error) {
	if c.journal == nil || imagePath == "" {
		return
	}
	pending := &PendingAttachment{
		TransactionID: transactionID,
		ImagePath:     imagePath,
		Filename:      filename,
		ContentType:   "image/jpeg",
		LastError:     cause.Error(),
		CreatedAt:     time.Now(),
	}
	if err := c.journal.Add(pending); err != nil {
		slog.Error("Failed to journal pending attachment",
			"transaction_id", transactionID,
			"error", err,
		)
	}
}

// RetryPending re-attempts every journaled attachment upload. Successful
// uploads drop their journal entry and local image copy; failures stay
// journaled for the next run. Errors are logged, never returned as fatal:
// this runs unattended at startup.
func (c *Committer) RetryPending(ctx context.Context) int {
	if c.journal == nil {
		return 0
	}

	pending, err := c.journal.List()
	if err != nil {
		slog.Error("Failed to list pending attachments", "error", err)
		return 0
	}

	retried := 0
	for _, p := range pending {
		data, err := c.images.Get(p.ImagePath)
		if err != nil {
			slog.Warn("Pending attachment image missing, dropping entry",
				"transaction_id", p.TransactionID,
				"image_path", p.ImagePath,
				"error", err,
			)
			// Without the local copy there is nothing left to upload
			c.journal.Remove(p.TransactionID)
			continue
		}

		if _, err := c.api.UploadAttachment(ctx, p.TransactionID, p.Filename, data, p.ContentType); err != nil {
			slog.Warn("Pending attachment retry failed",
				"transaction_id", p.TransactionID,
				"error", err,
			)
			continue
		}

		if err := c.journal.Remove(p.TransactionID); err != nil {
			slog.Error("Failed to remove journaled attachment",
				"transaction_id", p.TransactionID,
				"error", err,
			)
			continue
		}
		if err := c.images.Delete(p.ImagePath); err != nil {
			slog.Warn("Failed to delete local image copy",
				"image_path", p.ImagePath,
				"error", err,
			)
		}
		retried++
	}

	return retried
}
