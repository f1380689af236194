package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casafin/expense-capture/internal/extraction"
	"github.com/casafin/expense-capture/internal/imaging"
)

// State is one of the closed set of capture-session states.
type State string

const (
	// StateCapturing: waiting for an image; also the retry target after a
	// failed extraction
	StateCapturing State = "capturing"
	// StateProcessing: normalization and extraction in flight
	StateProcessing State = "processing"
	// StateReview: draft staged, awaiting user confirmation or edits
	StateReview State = "review"
	// StateCommitting: two-phase commit in flight; not cancelable
	StateCommitting State = "committing"
	StateDone       State = "done"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether the session has reached a final state.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// transitions is the exhaustive map of legal state changes. Cancellation is
// listed only where it is offered: once Committing starts, the in-flight
// write must resolve to a known outcome.
var transitions = map[State][]State{
	StateCapturing:  {StateProcessing, StateCancelled},
	StateProcessing: {StateReview, StateCapturing},
	StateReview:     {StateCommitting, StateCapturing, StateCancelled},
	StateCommitting: {StateDone, StateFailed},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Sentinel errors callers branch on when a confirm is rejected before any
// network call.
var (
	ErrAlreadyCommitted = errors.New("draft already committed")
	ErrInvalidDraft     = errors.New("invalid draft")
)

// TransitionError reports a request that the state machine does not allow in
// the session's current state.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// Session drives one receipt capture from image to committed record. All
// access goes through its owning Service; the mutex makes each step atomic,
// so at most one extraction or commit is ever in flight per session.
type Session struct {
	mu sync.Mutex

	id        uuid.UUID
	state     State
	draft     *Draft
	image     *imaging.NormalizedImage
	outcome   *CommitOutcome
	lastErr   error
	committed bool
	createdAt time.Time
}

// transition moves the session to the next state, enforcing the machine.
// Callers must hold s.mu.
func (s *Session) transition(to State) error {
	if !canTransition(s.state, to) {
		return &TransitionError{From: s.state, To: to}
	}
	s.state = to
	return nil
}

// View is a read-only snapshot of a session for the HTTP surface.
type View struct {
	ID        uuid.UUID      `json:"id"`
	State     State          `json:"state"`
	Draft     *Draft         `json:"draft,omitempty"`
	Error     string         `json:"error,omitempty"`
	Outcome   *OutcomeView   `json:"outcome,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// OutcomeView is the wire form of a CommitOutcome.
type OutcomeView struct {
	Status          OutcomeKind `json:"status"`
	TransactionID   string      `json:"transaction_id,omitempty"`
	AttachmentError string      `json:"attachment_error,omitempty"`
	Error           string      `json:"error,omitempty"`
}

// View returns a snapshot of the session. The draft is copied so the
// snapshot stays stable once the lock is released; callers encode it while
// concurrent edits may be mutating the live draft.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:        s.id,
		State:     s.state,
		CreatedAt: s.createdAt,
	}
	if s.draft != nil {
		draft := *s.draft
		v.Draft = &draft
	}
	if s.lastErr != nil {
		v.Error = s.lastErr.Error()
	}
	if s.outcome != nil {
		ov := &OutcomeView{Status: s.outcome.Kind}
		if s.outcome.Record != nil {
			ov.TransactionID = s.outcome.Record.ID.String()
		}
		if s.outcome.AttachmentErr != nil {
			ov.AttachmentError = s.outcome.AttachmentErr.Error()
		}
		if s.outcome.Reason != nil {
			ov.Error = s.outcome.Reason.Error()
		}
		v.Outcome = ov
	}
	return v
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service owns capture sessions and runs the pipeline steps against them.
type Service struct {
	normalizer   *imaging.Normalizer
	extractor    extraction.Extractor
	images       imaging.Store
	committer    *Committer
	baseCurrency string
	timeSource   TimeSource

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewService creates a capture Service.
func NewService(normalizer *imaging.Normalizer, extractor extraction.Extractor, images imaging.Store, committer *Committer, baseCurrency string) *Service {
	return &Service{
		normalizer:   normalizer,
		extractor:    extractor,
		images:       images,
		committer:    committer,
		baseCurrency: baseCurrency,
		timeSource:   &defaultTimeSource{},
		sessions:     make(map[uuid.UUID]*Session),
	}
}

// NewServiceWithDeps creates a Service with a custom time source for testing.
func NewServiceWithDeps(normalizer *imaging.Normalizer, extractor extraction.Extractor, images imaging.Store, committer *Committer, baseCurrency string, timeSrc TimeSource) *Service {
	svc := NewService(normalizer, extractor, images, committer, baseCurrency)
	svc.timeSource = timeSrc
	return svc
}

// StartCapture opens a new session with an acquired image and runs it
// through normalization and extraction. On extraction failure the session
// returns to Capturing with a recoverable error rather than dying: the user
// may retry with a new image or cancel out entirely.
func (s *Service) StartCapture(ctx context.Context, captured imaging.CapturedImage) (*Session, error) {
	session := &Session{
		id:        uuid.New(),
		state:     StateCapturing,
		createdAt: s.timeSource.Now(),
	}

	s.mu.Lock()
	s.sessions[session.id] = session
	s.mu.Unlock()

	session.mu.Lock()
	defer session.mu.Unlock()
	s.process(ctx, session, captured)
	return session, nil
}

// Manual opens a session directly in Review with a blank draft.
func (s *Service) Manual() *Session {
	session := &Session{
		id:        uuid.New(),
		state:     StateReview,
		draft:     newManualDraft(s.baseCurrency, s.timeSource.Now()),
		createdAt: s.timeSource.Now(),
	}

	s.mu.Lock()
	s.sessions[session.id] = session
	s.mu.Unlock()

	return session
}

// Get retrieves a session by ID.
func (s *Service) Get(id uuid.UUID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return session, nil
}

// process runs image acquired -> Processing -> Review (or back to
// Capturing). Callers must hold session.mu; the session is in Capturing.
func (s *Service) process(ctx context.Context, session *Session, captured imaging.CapturedImage) {
	if err := session.transition(StateProcessing); err != nil {
		session.lastErr = err
		return
	}
	session.lastErr = nil

	normalized, err := s.normalizer.Normalize(captured)
	if err != nil {
		// Acquisition/normalization failure: nothing downstream has run
		session.state = StateCapturing
		session.lastErr = fmt.Errorf("could not read image: %w", err)
		return
	}

	path, err := s.images.Save(session.id.String()+".jpg", normalized.Data)
	if err != nil {
		session.state = StateCapturing
		session.lastErr = fmt.Errorf("saving image copy: %w", err)
		return
	}
	normalized.StoredPath = path

	result, err := s.extractor.Extract(ctx, normalized)
	if err != nil {
		slog.Error("Extraction failed",
			"session_id", session.id,
			"kind", extraction.KindOf(err),
			"error", err,
		)
		// Recoverable: back to Capturing, the draft is never partially seeded
		s.discardImage(normalized)
		session.state = StateCapturing
		session.lastErr = fmt.Errorf("could not read receipt")
		return
	}

	session.image = normalized
	session.draft = newDraftFromExtraction(result, path)
	session.state = StateReview
}

// UpdateDraft edits the staged draft. Only legal in Review.
func (s *Service) UpdateDraft(id uuid.UUID, update DraftUpdate) (*Session, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.state != StateReview {
		return nil, &TransitionError{From: session.state, To: StateReview}
	}
	session.draft.apply(update)
	return session, nil
}

// Rescan replaces the session's image: the staged draft is discarded and the
// new image runs through processing again. Legal in Review, and in Capturing
// after a failed extraction.
func (s *Service) Rescan(ctx context.Context, id uuid.UUID, captured imaging.CapturedImage) (*Session, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.state != StateCapturing {
		if err := session.transition(StateCapturing); err != nil {
			return nil, err
		}
	}
	s.discardImage(session.image)
	session.image = nil
	session.draft = nil

	s.process(ctx, session, captured)
	return session, nil
}

// Confirm validates the draft and runs the two-phase commit. The state
// machine never lets Committing re-enter for the same draft, so commit is
// invoked at most once per draft regardless of the backend's own
// idempotency.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (CommitOutcome, error) {
	session, err := s.Get(id)
	if err != nil {
		return CommitOutcome{}, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.committed {
		return CommitOutcome{}, ErrAlreadyCommitted
	}
	if err := session.transition(StateCommitting); err != nil {
		return CommitOutcome{}, err
	}

	// Validation failures resolve locally, before any network call
	if err := session.draft.Validate(); err != nil {
		session.state = StateReview
		return CommitOutcome{}, fmt.Errorf("%w: %w", ErrInvalidDraft, err)
	}

	outcome := s.committer.Commit(ctx, session.draft, session.image)
	session.outcome = &outcome

	if outcome.Committed() {
		session.committed = true
		session.state = StateDone
	} else {
		session.state = StateFailed
		session.lastErr = outcome.Reason
	}

	return outcome, nil
}

// Cancel terminates the session with zero backend side effects. Rejected
// once Committing has started or the session is already terminal.
func (s *Service) Cancel(id uuid.UUID) error {
	session, err := s.Get(id)
	if err != nil {
		return err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if err := session.transition(StateCancelled); err != nil {
		return err
	}
	s.discardImage(session.image)
	session.image = nil
	session.draft = nil
	return nil
}

// discardImage deletes the persisted local copy, if any.
func (s *Service) discardImage(image *imaging.NormalizedImage) {
	if image == nil || image.StoredPath == "" {
		return
	}
	if err := s.images.Delete(image.StoredPath); err != nil {
		slog.Warn("Failed to delete image copy", "path", image.StoredPath, "error", err)
	}
}
