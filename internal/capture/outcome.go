package capture

import "github.com/casafin/expense-capture/internal/backend"

// OutcomeKind tags the result of a reconciliation attempt. The distinction
// matters all the way to the caller: "money was recorded" and "nothing
// happened" demand different recovery actions.
type OutcomeKind string

const (
	// OutcomeSuccess: record created, attachment (if any) uploaded
	OutcomeSuccess OutcomeKind = "success"
	// OutcomePartialSuccess: record created and final; only the image
	// association is missing and may be retried independently later
	OutcomePartialSuccess OutcomeKind = "partial_success"
	// OutcomeFailure: no record exists, nothing was persisted
	OutcomeFailure OutcomeKind = "failure"
)

// CommitOutcome is the tagged result of a two-phase commit.
type CommitOutcome struct {
	Kind          OutcomeKind
	Record        *backend.TransactionRecord
	AttachmentErr error
	Reason        error
}

// Committed reports whether a financial record exists after the attempt.
func (o CommitOutcome) Committed() bool {
	return o.Kind == OutcomeSuccess || o.Kind == OutcomePartialSuccess
}
