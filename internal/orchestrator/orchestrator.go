// Package orchestrator owns the interview session lifecycle: start-or-resume
// resolution, duplicate-session reconciliation, ordered question/answer
// progression, and finalization. One orchestrator is the single source of
// truth, per resume, for "is there an interview happening, and what state is
// it in".
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/adminlove520/EasyJob/internal/models"
)

const defaultCallTimeout = 30 * time.Second

// Deps are the collaborators one orchestrator drives. Store, Supplier, and
// Evaluator are required; Sink and Logger may be nil.
type Deps struct {
	Store     SessionStore
	Supplier  QuestionSupplier
	Evaluator AnswerEvaluator
	Sink      Sink

	Logger *logrus.Logger

	// CallTimeout bounds every network round-trip; a timeout is treated
	// identically to a transport failure and is retryable.
	CallTimeout time.Duration
}

type decision struct {
	token    string
	existing *models.InterviewSession
	cfg      StartConfig
}

// Orchestrator drives the interview state machine for exactly one resume.
// All mutating operations are serialized: a second request arriving while
// one is pending is rejected with ErrSessionBusy rather than interleaved.
type Orchestrator struct {
	resumeID uint

	store     SessionStore
	supplier  QuestionSupplier
	evaluator AnswerEvaluator
	sink      Sink

	timeout time.Duration
	log     *logrus.Entry
	now     func() time.Time

	mu        sync.Mutex
	busy      bool
	state     State
	sess      *models.InterviewSession // local mirror, owned while Active
	pending   *decision
	startedAt time.Time
}

func New(resumeID uint, d Deps) *Orchestrator {
	if d.CallTimeout <= 0 {
		d.CallTimeout = defaultCallTimeout
	}
	l := d.Logger
	if l == nil {
		l = logrus.New()
	}
	return &Orchestrator{
		resumeID:  resumeID,
		store:     d.Store,
		supplier:  d.Supplier,
		evaluator: d.Evaluator,
		sink:      d.Sink,
		timeout:   d.CallTimeout,
		log:       l.WithField("resume_id", resumeID),
		now:       time.Now,
		state:     StateIdle,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Session returns the local session mirror, nil unless a session is being
// driven.
func (o *Orchestrator) Session() *models.InterviewSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sess
}

// acquire claims the single in-flight operation slot.
func (o *Orchestrator) acquire() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return ErrSessionBusy
	}
	o.busy = true
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.busy = false
	o.mu.Unlock()
}

func (o *Orchestrator) setState(to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transition(to)
}

// callCtx bounds one network round-trip.
func (o *Orchestrator) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.timeout)
}

// netErr folds timeouts and transport errors into the retryable
// ErrStoreUnavailable taxonomy entry.
func netErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

// Start begins or resumes an interview for the orchestrator's resume.
//
// When cfg.SessionID is set, that session is adopted if it exists and is not
// completed. Otherwise the store is consulted: with no active session a new
// one is created; with an existing active session the operation suspends and
// returns a decision token for the continue-vs-discard prompt (resumed via
// Decide). Calling Start while a session is already being driven returns the
// current session without any network traffic.
func (o *Orchestrator) Start(ctx context.Context, cfg StartConfig) (*StartResult, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.release()

	switch o.state {
	case StateActive:
		// Idempotent re-entry: hand back the session we already own.
		return &StartResult{Session: o.sess, Question: o.presetQuestion(), Resumed: true}, nil
	case StateResolving:
		if o.pending != nil {
			return &StartResult{DecisionToken: o.pending.token, Existing: o.pending.existing}, nil
		}
		o.setState(StateIdle)
	case StateFinalizing:
		return nil, ErrSessionBusy
	}

	o.setState(StateResolving)
	res, err := o.resolve(ctx, cfg)
	if err != nil {
		o.setState(StateIdle)
		return nil, err
	}
	if res.NeedsDecision() {
		// Stay in Resolving, suspended on the caller's choice.
		return res, nil
	}
	return res, nil
}

// Decide resumes a Start suspended on the continue-vs-discard prompt.
// continuePrevious adopts the existing active session; otherwise it is
// finalized and a fresh session is created with the original configuration.
func (o *Orchestrator) Decide(ctx context.Context, token string, continuePrevious bool) (*StartResult, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.release()

	if o.state != StateResolving || o.pending == nil || o.pending.token != token {
		return nil, ErrNoPendingDecision
	}
	p := o.pending

	if continuePrevious {
		o.pending = nil
		return o.adopt(ctx, p.existing, true)
	}

	// Discard: finalize the stale session first, then create anew. On
	// failure the pending decision stays valid so the caller can retry.
	cctx, cancel := o.callCtx(ctx)
	err := o.store.EndSession(cctx, o.resumeID, p.existing.ID)
	cancel()
	if err != nil {
		return nil, netErr("Orchestrator.Decide", err)
	}

	o.pending = nil
	res, err := o.createNew(ctx, p.cfg)
	if err != nil {
		o.setState(StateIdle)
		return nil, err
	}
	return res, nil
}

// resolve runs the Resolving decision table. Errors leave the caller
// responsible for returning the machine to Idle.
func (o *Orchestrator) resolve(ctx context.Context, cfg StartConfig) (*StartResult, error) {
	const op = "Orchestrator.Resolve"

	cctx, cancel := o.callCtx(ctx)
	sessions, err := o.store.ListSessions(cctx, o.resumeID)
	cancel()
	if err != nil {
		return nil, netErr(op, err)
	}

	if cfg.SessionID != 0 {
		for i := range sessions {
			if sessions[i].ID != cfg.SessionID {
				continue
			}
			if sessions[i].Status.Terminal() {
				return nil, fmt.Errorf("%s: session %d: %w", op, cfg.SessionID, ErrSessionCompleted)
			}
			return o.adopt(ctx, &sessions[i], true)
		}
		return nil, fmt.Errorf("%s: session %d: %w", op, cfg.SessionID, ErrSessionNotFound)
	}

	rec := Reconcile(sessions)

	// Reconcile stale-status records server-side before anything is
	// surfaced: sessions that answered every preset question but still read
	// "active", and duplicate actives older than the newest one.
	for _, stale := range append(rec.StaleFinished, rec.Duplicates...) {
		cctx, cancel := o.callCtx(ctx)
		err := o.store.EndSession(cctx, o.resumeID, stale.ID)
		cancel()
		if err != nil {
			return nil, netErr(op, err)
		}
		o.log.WithField("session_id", stale.ID).Info("finalized stale interview session")
	}

	if rec.NewestActive != nil {
		// Do not silently resume, and do not silently duplicate: suspend on
		// the caller's continue-vs-discard choice.
		o.mu.Lock()
		o.pending = &decision{token: uuid.NewString(), existing: rec.NewestActive, cfg: cfg}
		token := o.pending.token
		o.mu.Unlock()
		return &StartResult{DecisionToken: token, Existing: rec.NewestActive}, nil
	}

	return o.createNew(ctx, cfg)
}

// createNew provisions a fresh session and asks for question index 0.
func (o *Orchestrator) createNew(ctx context.Context, cfg StartConfig) (*StartResult, error) {
	const op = "Orchestrator.Create"

	cctx, cancel := o.callCtx(ctx)
	sess, err := o.store.CreateSession(cctx, o.resumeID, cfg)
	cancel()
	if err != nil {
		return nil, netErr(op, err)
	}
	return o.adopt(ctx, sess, false)
}

// adopt installs a session as the local mirror and transitions to Active.
// The next question is taken from the preset list when available so a resume
// needs no extra round-trip; a fresh session with no preset questions falls
// back to the supplier.
func (o *Orchestrator) adopt(ctx context.Context, sess *models.InterviewSession, resumed bool) (*StartResult, error) {
	o.mu.Lock()
	o.sess = sess
	o.startedAt = o.now()
	o.transition(StateActive)
	o.mu.Unlock()

	q := o.presetQuestion()
	if q == nil && !sess.Exhausted() {
		cctx, cancel := o.callCtx(ctx)
		next, err := o.supplier.NextQuestion(cctx, o.resumeID, sess.ID)
		cancel()
		switch {
		case errors.Is(err, ErrNoMoreQuestions):
			// fine: exhaustion is handled on the next submit
		case err != nil:
			o.log.WithError(err).Warn("next question unavailable at adoption")
		default:
			q = &next
		}
	}

	if q != nil {
		o.emit(ctx, RoleAssistant, q.Question)
	}

	o.log.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"resumed":    resumed,
		"answered":   len(sess.Answers),
		"questions":  len(sess.Questions),
	}).Info("interview session adopted")

	return &StartResult{Session: sess, Question: q, Resumed: resumed}, nil
}

// presetQuestion returns the stored question at the current index, nil when
// the preset list is exhausted. Caller may hold or not hold mu; only reads
// the mirror, which is stable outside an in-flight operation.
func (o *Orchestrator) presetQuestion() *models.QuestionRecord {
	if o.sess == nil {
		return nil
	}
	idx := o.sess.CurrentQuestionIndex()
	if idx >= len(o.sess.Questions) {
		return nil
	}
	q := o.sess.Questions[idx]
	return &q
}

// SubmitAnswer evaluates the answer to the current question and advances the
// session. Submissions are strictly ordered by question index; the evaluator
// result is appended exactly once, and on any failure the mirror is left
// untouched so a retry with the same input is safe.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, answer string) (*SubmitResult, error) {
	const op = "Orchestrator.SubmitAnswer"

	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.release()

	if o.state != StateActive || o.sess == nil {
		return nil, ErrNotActive
	}

	idx := o.sess.CurrentQuestionIndex()
	if idx >= len(o.sess.Questions) {
		// All preset questions answered: no evaluator call, no mutation.
		// The caller chooses between ending and continuing with
		// supplementary questions.
		o.emit(ctx, RoleAssistant,
			"You have completed all preset questions. End the interview to see your report, or keep going with follow-up questions.")
		return &SubmitResult{QuestionIndex: idx, AllAnswered: true}, nil
	}

	cctx, cancel := o.callCtx(ctx)
	eval, err := o.evaluator.SubmitAnswer(cctx, o.resumeID, o.sess.ID, answer, idx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, netErr(op, err)
		}
		return nil, fmt.Errorf("%s: question %d: %w: %v", op, idx, ErrEvaluator, err)
	}

	// Full round-trip succeeded: commit to the mirror. The append and the
	// index derivation keep len(answers) == currentQuestionIndex.
	o.mu.Lock()
	o.sess.Answers = append(o.sess.Answers, models.AnswerRecord{
		Answer:        answer,
		Evaluation:    eval,
		QuestionIndex: idx,
	})
	o.mu.Unlock()

	o.emit(ctx, RoleUser, answer)
	o.emit(ctx, RoleAssistant, eval.Feedback)

	res := &SubmitResult{QuestionIndex: idx, Evaluation: eval}
	if q := o.presetQuestion(); q != nil {
		res.NextQuestion = q
	}

	o.log.WithFields(logrus.Fields{
		"session_id":     o.sess.ID,
		"question_index": idx,
		"score":          eval.Score,
	}).Info("answer evaluated")

	return res, nil
}

// End finalizes the driven session, emits a summary message, clears the
// local mirror, and returns to Idle. Ending is retryable: on a finalize
// failure the machine stays Active.
func (o *Orchestrator) End(ctx context.Context) (*Summary, error) {
	const op = "Orchestrator.End"

	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.release()

	if o.state != StateActive || o.sess == nil {
		return nil, ErrNotActive
	}

	o.setState(StateFinalizing)

	cctx, cancel := o.callCtx(ctx)
	err := o.store.EndSession(cctx, o.resumeID, o.sess.ID)
	cancel()
	if err != nil {
		o.setState(StateActive)
		return nil, netErr(op, err)
	}

	sum := &Summary{
		SessionID: o.sess.ID,
		Answered:  len(o.sess.Answers),
		Elapsed:   o.now().Sub(o.startedAt),
	}
	o.emit(ctx, RoleAssistant, fmt.Sprintf(
		"Interview finished: %d questions answered in %s.",
		sum.Answered, sum.Elapsed.Round(time.Second)))

	o.log.WithFields(logrus.Fields{
		"session_id": sum.SessionID,
		"answered":   sum.Answered,
		"elapsed":    sum.Elapsed.String(),
	}).Info("interview session finalized")

	o.mu.Lock()
	o.sess = nil
	o.startedAt = time.Time{}
	o.transition(StateIdle)
	o.mu.Unlock()

	return sum, nil
}

func (o *Orchestrator) emit(ctx context.Context, role, text string) {
	if o.sink == nil || text == "" || o.sess == nil {
		return
	}
	o.sink.Publish(ctx, Message{
		ID:        uuid.NewString(),
		ResumeID:  o.resumeID,
		SessionID: o.sess.ID,
		Role:      role,
		Text:      text,
		Timestamp: o.now(),
	})
}
