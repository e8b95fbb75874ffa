package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adminlove520/EasyJob/internal/models"
)

// fakeStore is an in-memory SessionStore shared between "clients" in the
// concurrency scenarios.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[uint]*models.InterviewSession
	nextID   uint
	clock    time.Time

	created int
	listErr error
	endErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[uint]*models.InterviewSession),
		clock:    time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) ListSessions(_ context.Context, resumeID uint) ([]models.InterviewSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.InterviewSession
	for _, s := range f.sessions {
		if s.ResumeID == resumeID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateSession(_ context.Context, resumeID uint, cfg StartConfig) (*models.InterviewSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := cfg.QuestionCount
	if count <= 0 {
		count = 3
	}
	questions := make([]models.QuestionRecord, count)
	for i := range questions {
		questions[i] = models.QuestionRecord{
			Question: fmt.Sprintf("question %d", i),
			Type:     "general",
			Index:    i,
		}
	}
	f.nextID++
	f.created++
	f.clock = f.clock.Add(time.Minute)
	s := &models.InterviewSession{
		ID:            f.nextID,
		ResumeID:      resumeID,
		JobPosition:   cfg.JobPosition,
		InterviewMode: cfg.InterviewMode,
		JDContent:     cfg.JDContent,
		Questions:     questions,
		Answers:       nil,
		Status:        models.SessionActive,
		CreatedAt:     f.clock,
		UpdatedAt:     f.clock,
	}
	f.sessions[s.ID] = s
	cp := *s
	return &cp, nil
}

func (f *fakeStore) EndSession(_ context.Context, _ uint, sessionID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.endErr != nil {
		return f.endErr
	}
	s, ok := f.sessions[sessionID]
	if !ok {
		return errors.New("no such session")
	}
	s.Status = models.SessionCompleted // ending twice stays completed
	return nil
}

func (f *fakeStore) DeleteSession(_ context.Context, _ uint, sessionID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeStore) get(id uint) models.InterviewSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.sessions[id]
}

// seed installs a session directly, bypassing CreateSession bookkeeping.
func (f *fakeStore) seed(s models.InterviewSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == 0 {
		f.nextID++
		s.ID = f.nextID
	} else if s.ID > f.nextID {
		f.nextID = s.ID
	}
	cp := s
	f.sessions[s.ID] = &cp
}

type fakeSupplier struct {
	store *fakeStore
}

func (f *fakeSupplier) NextQuestion(_ context.Context, _ uint, sessionID uint) (models.QuestionRecord, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	s, ok := f.store.sessions[sessionID]
	if !ok {
		return models.QuestionRecord{}, errors.New("no such session")
	}
	idx := len(s.Answers)
	if idx >= len(s.Questions) {
		return models.QuestionRecord{}, ErrNoMoreQuestions
	}
	return s.Questions[idx], nil
}

type fakeEvaluator struct {
	store *fakeStore

	mu       sync.Mutex
	calls    int
	failures int           // fail this many leading calls
	block    chan struct{} // when set, SubmitAnswer waits until closed
}

func (f *fakeEvaluator) SubmitAnswer(ctx context.Context, _ uint, sessionID uint, answer string, questionIndex int) (models.Evaluation, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return models.Evaluation{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return models.Evaluation{}, err
	}
	if fail {
		return models.Evaluation{}, errors.New("evaluation backend down")
	}

	eval := models.Evaluation{
		Score:       80,
		Feedback:    fmt.Sprintf("feedback for answer %d", questionIndex),
		Suggestions: []string{"be more specific"},
	}

	// Server-side persistence happens before the orchestrator mirrors it.
	f.store.mu.Lock()
	if s, ok := f.store.sessions[sessionID]; ok {
		s.Answers = append(s.Answers, models.AnswerRecord{
			Answer:        answer,
			Evaluation:    eval,
			QuestionIndex: questionIndex,
		})
	}
	f.store.mu.Unlock()

	return eval, nil
}

type fakeSink struct {
	mu   sync.Mutex
	msgs []Message
}

func (f *fakeSink) Publish(_ context.Context, msg Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *fakeSink) byRole(role string) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, m := range f.msgs {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	store     *fakeStore
	supplier  *fakeSupplier
	evaluator *fakeEvaluator
	sink      *fakeSink
	deps      Deps
}

func newFixture() *fixture {
	store := newFakeStore()
	f := &fixture{
		store:     store,
		supplier:  &fakeSupplier{store: store},
		evaluator: &fakeEvaluator{store: store},
		sink:      &fakeSink{},
	}
	f.deps = Deps{
		Store:       f.store,
		Supplier:    f.supplier,
		Evaluator:   f.evaluator,
		Sink:        f.sink,
		CallTimeout: 2 * time.Second,
	}
	return f
}

func requireInvariant(t *testing.T, o *Orchestrator) {
	t.Helper()
	sess := o.Session()
	require.NotNil(t, sess)
	require.Equal(t, len(sess.Answers), sess.CurrentQuestionIndex())
}

func TestStartCreatesSessionAndAsksFirstQuestion(t *testing.T) {
	f := newFixture()
	o := New(1, f.deps)
	ctx := context.Background()

	res, err := o.Start(ctx, StartConfig{JobPosition: "backend engineer", QuestionCount: 3})
	require.NoError(t, err)
	require.False(t, res.NeedsDecision())
	require.NotNil(t, res.Session)
	require.NotNil(t, res.Question)
	require.Equal(t, 0, res.Question.Index)
	require.Equal(t, StateActive, o.State())
	require.Equal(t, 1, f.store.created)
	requireInvariant(t, o)

	assistant := f.sink.byRole(RoleAssistant)
	require.Len(t, assistant, 1)
	require.Equal(t, "question 0", assistant[0].Text)
}

func TestStartWhileActiveReturnsCurrentSession(t *testing.T) {
	f := newFixture()
	o := New(1, f.deps)
	ctx := context.Background()

	first, err := o.Start(ctx, StartConfig{QuestionCount: 3})
	require.NoError(t, err)

	again, err := o.Start(ctx, StartConfig{QuestionCount: 3})
	require.NoError(t, err)
	require.True(t, again.Resumed)
	require.Equal(t, first.Session.ID, again.Session.ID)
	require.Equal(t, 1, f.store.created)
}

func TestResolveAdoptsCallerSpecifiedSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	seedQuestions := []models.QuestionRecord{
		{Question: "q0", Index: 0}, {Question: "q1", Index: 1}, {Question: "q2", Index: 2},
	}
	f.store.seed(models.InterviewSession{
		ID:        7,
		ResumeID:  1,
		Status:    models.SessionActive,
		Questions: seedQuestions,
		Answers: []models.AnswerRecord{
			{Answer: "a0", QuestionIndex: 0},
		},
		CreatedAt: time.Date(2026, 1, 9, 12, 0, 0, 0, time.UTC),
	})

	o := New(1, f.deps)
	res, err := o.Start(ctx, StartConfig{SessionID: 7})
	require.NoError(t, err)
	require.True(t, res.Resumed)
	require.Equal(t, uint(7), res.Session.ID)
	require.Equal(t, 1, res.Session.CurrentQuestionIndex())
	require.NotNil(t, res.Question)
	require.Equal(t, "q1", res.Question.Question)
	requireInvariant(t, o)
}

func TestResolveCompletedSessionFails(t *testing.T) {
	f := newFixture()
	f.store.seed(models.InterviewSession{
		ID: 3, ResumeID: 1, Status: models.SessionCompleted,
		Questions: []models.QuestionRecord{{Question: "q0"}},
	})

	o := New(1, f.deps)
	_, err := o.Start(context.Background(), StartConfig{SessionID: 3})
	require.ErrorIs(t, err, ErrSessionCompleted)
	require.Equal(t, StateIdle, o.State())
	require.Equal(t, 0, f.store.created, "must not silently start a new session")
}

func TestResolveUnknownSessionFails(t *testing.T) {
	f := newFixture()
	o := New(1, f.deps)
	_, err := o.Start(context.Background(), StartConfig{SessionID: 99})
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.Equal(t, StateIdle, o.State())
}

func TestExistingActiveSessionPromptsDecision(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	existing, err := f.store.CreateSession(ctx, 1, StartConfig{QuestionCount: 3})
	require.NoError(t, err)

	o := New(1, f.deps)
	res, err := o.Start(ctx, StartConfig{QuestionCount: 3})
	require.NoError(t, err)
	require.True(t, res.NeedsDecision())
	require.Equal(t, existing.ID, res.Existing.ID)
	require.Equal(t, StateResolving, o.State())
	require.Equal(t, 1, f.store.created, "no duplicate created before the caller decides")
}

func TestDecideContinueAdoptsExisting(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	existing, _ := f.store.CreateSession(ctx, 1, StartConfig{QuestionCount: 3})

	o := New(1, f.deps)
	res, err := o.Start(ctx, StartConfig{QuestionCount: 3})
	require.NoError(t, err)
	require.True(t, res.NeedsDecision())

	final, err := o.Decide(ctx, res.DecisionToken, true)
	require.NoError(t, err)
	require.Equal(t, existing.ID, final.Session.ID)
	require.Equal(t, StateActive, o.State())
	require.Equal(t, 1, f.store.created)
}

func TestDecideDiscardFinalizesAndCreatesNew(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	existing, _ := f.store.CreateSession(ctx, 1, StartConfig{QuestionCount: 3})

	o := New(1, f.deps)
	res, err := o.Start(ctx, StartConfig{QuestionCount: 3})
	require.NoError(t, err)

	final, err := o.Decide(ctx, res.DecisionToken, false)
	require.NoError(t, err)
	require.NotEqual(t, existing.ID, final.Session.ID)
	require.Equal(t, models.SessionCompleted, f.store.get(existing.ID).Status)
	require.Equal(t, models.SessionActive, f.store.get(final.Session.ID).Status)
	require.Equal(t, 2, f.store.created)
}

func TestDecideWithWrongTokenFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _ = f.store.CreateSession(ctx, 1, StartConfig{QuestionCount: 3})

	o := New(1, f.deps)
	res, err := o.Start(ctx, StartConfig{QuestionCount: 3})
	require.NoError(t, err)
	require.True(t, res.NeedsDecision())

	_, err = o.Decide(ctx, "bogus", true)
	require.ErrorIs(t, err, ErrNoPendingDecision)

	// The real token still works afterwards.
	_, err = o.Decide(ctx, res.DecisionToken, true)
	require.NoError(t, err)
}

func TestProgressionThroughAllQuestions(t *testing.T) {
	f := newFixture()
	o := New(1, f.deps)
	ctx := context.Background()

	_, err := o.Start(ctx, StartConfig{QuestionCount: 3})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := o.SubmitAnswer(ctx, fmt.Sprintf("answer %d", i))
		require.NoError(t, err)
		require.Equal(t, i, res.QuestionIndex)
		require.False(t, res.AllAnswered)
		requireInvariant(t, o)
	}

	sess := o.Session()
	require.Len(t, sess.Answers, 3)
	for i, a := range sess.Answers {
		require.Equal(t, i, a.QuestionIndex, "no skipped or duplicated indices")
	}

	// Fourth submission: preset questions exhausted, evaluator untouched.
	before := f.evaluator.calls
	res, err := o.SubmitAnswer(ctx, "one more")
	require.NoError(t, err)
	require.True(t, res.AllAnswered)
	require.Equal(t, before, f.evaluator.calls)
	require.Len(t, o.Session().Answers, 3)
	require.Equal(t, StateActive, o.State())

	sum, err := o.End(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, sum.Answered)
	require.Equal(t, StateIdle, o.State())
	require.Nil(t, o.Session())
	require.Equal(t, models.SessionCompleted, f.store.get(sum.SessionID).Status)
}

func TestEvaluatorFailureLeavesNoPartialMutation(t *testing.T) {
	f := newFixture()
	f.evaluator.failures = 1
	o := New(1, f.deps)
	ctx := context.Background()

	_, err := o.Start(ctx, StartConfig{QuestionCount: 3})
	require.NoError(t, err)

	_, err = o.SubmitAnswer(ctx, "my answer")
	require.ErrorIs(t, err, ErrEvaluator)
	require.Empty(t, o.Session().Answers)
	require.Equal(t, 0, o.Session().CurrentQuestionIndex())

	// Retry with the same input appends exactly once.
	res, err := o.SubmitAnswer(ctx, "my answer")
	require.NoError(t, err)
	require.Equal(t, 0, res.QuestionIndex)
	require.Len(t, o.Session().Answers, 1)
	requireInvariant(t, o)
}

func TestCancelledSubmitLeavesStateUnchanged(t *testing.T) {
	f := newFixture()
	f.evaluator.block = make(chan struct{}) // never closed: force ctx expiry
	f.deps.CallTimeout = 50 * time.Millisecond
	o := New(1, f.deps)
	ctx := context.Background()

	_, err := o.Start(ctx, StartConfig{QuestionCount: 3})
	require.NoError(t, err)

	_, err = o.SubmitAnswer(ctx, "slow answer")
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Empty(t, o.Session().Answers)
	requireInvariant(t, o)
}

func TestConcurrentSubmitRejectedAsBusy(t *testing.T) {
	f := newFixture()
	block := make(chan struct{})
	f.evaluator.block = block
	o := New(1, f.deps)
	ctx := context.Background()

	_, err := o.Start(ctx, StartConfig{QuestionCount: 3})
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		_, err := o.SubmitAnswer(ctx, "in flight")
		firstDone <- err
	}()

	// Wait for the first submit to reach the evaluator.
	require.Eventually(t, func() bool {
		f.evaluator.mu.Lock()
		defer f.evaluator.mu.Unlock()
		return f.evaluator.calls == 1
	}, time.Second, 5*time.Millisecond)

	_, err = o.SubmitAnswer(ctx, "interleaved")
	require.ErrorIs(t, err, ErrSessionBusy)

	close(block)
	require.NoError(t, <-firstDone)
	require.Len(t, o.Session().Answers, 1)
}

func TestEndFailureKeepsSessionActive(t *testing.T) {
	f := newFixture()
	o := New(1, f.deps)
	ctx := context.Background()

	_, err := o.Start(ctx, StartConfig{QuestionCount: 3})
	require.NoError(t, err)

	f.store.mu.Lock()
	f.store.endErr = errors.New("store down")
	f.store.mu.Unlock()

	_, err = o.End(ctx)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Equal(t, StateActive, o.State())
	require.NotNil(t, o.Session())

	// Ending is retryable.
	f.store.mu.Lock()
	f.store.endErr = nil
	f.store.mu.Unlock()

	_, err = o.End(ctx)
	require.NoError(t, err)
	require.Equal(t, StateIdle, o.State())
}

func TestStaleActiveSessionAutoFinalizedOnResolve(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Status still says active, but every preset question is answered.
	f.store.seed(models.InterviewSession{
		ID: 5, ResumeID: 1, Status: models.SessionActive,
		Questions: []models.QuestionRecord{{Question: "q0", Index: 0}},
		Answers:   []models.AnswerRecord{{Answer: "a0", QuestionIndex: 0}},
		CreatedAt: time.Date(2026, 1, 9, 8, 0, 0, 0, time.UTC),
	})

	o := New(1, f.deps)
	res, err := o.Start(ctx, StartConfig{QuestionCount: 3})
	require.NoError(t, err)
	require.False(t, res.NeedsDecision(), "stale-finished session must not prompt")
	require.Equal(t, models.SessionCompleted, f.store.get(5).Status)
	require.NotEqual(t, uint(5), res.Session.ID)
}

func TestDuplicateActivesFinalizedKeepingNewest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	older := time.Date(2026, 1, 9, 8, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	f.store.seed(models.InterviewSession{
		ID: 10, ResumeID: 1, Status: models.SessionActive,
		Questions: []models.QuestionRecord{{Question: "q0"}, {Question: "q1"}},
		CreatedAt: older,
	})
	f.store.seed(models.InterviewSession{
		ID: 11, ResumeID: 1, Status: models.SessionActive,
		Questions: []models.QuestionRecord{{Question: "q0"}, {Question: "q1"}},
		CreatedAt: newer,
	})

	o := New(1, f.deps)
	res, err := o.Start(ctx, StartConfig{})
	require.NoError(t, err)
	require.True(t, res.NeedsDecision())
	require.Equal(t, uint(11), res.Existing.ID, "newest active survives")
	require.Equal(t, models.SessionCompleted, f.store.get(10).Status, "older duplicate finalized")
	require.Equal(t, models.SessionActive, f.store.get(11).Status)
}

func TestConcurrentStartsConvergeToOneSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Two clients, each with their own orchestrator over the same store.
	first := New(1, f.deps)
	second := New(1, f.deps)

	res1, err := first.Start(ctx, StartConfig{QuestionCount: 3})
	require.NoError(t, err)
	require.False(t, res1.NeedsDecision())

	res2, err := second.Start(ctx, StartConfig{QuestionCount: 3})
	require.NoError(t, err)
	require.True(t, res2.NeedsDecision())

	adopted, err := second.Decide(ctx, res2.DecisionToken, true)
	require.NoError(t, err)
	require.Equal(t, res1.Session.ID, adopted.Session.ID)
	require.Equal(t, 1, f.store.created, "exactly one session after convergence")
}

func TestSubmitWithoutActiveSessionFails(t *testing.T) {
	f := newFixture()
	o := New(1, f.deps)
	_, err := o.SubmitAnswer(context.Background(), "answer")
	require.ErrorIs(t, err, ErrNotActive)
	_, err = o.End(context.Background())
	require.ErrorIs(t, err, ErrNotActive)
}

func TestTranscriptEventsAppendOnly(t *testing.T) {
	f := newFixture()
	o := New(1, f.deps)
	ctx := context.Background()

	_, err := o.Start(ctx, StartConfig{QuestionCount: 2})
	require.NoError(t, err)
	_, err = o.SubmitAnswer(ctx, "first answer")
	require.NoError(t, err)

	users := f.sink.byRole(RoleUser)
	require.Len(t, users, 1)
	require.Equal(t, "first answer", users[0].Text)

	assistant := f.sink.byRole(RoleAssistant)
	// Opening question plus evaluation feedback.
	require.Len(t, assistant, 2)
	require.Equal(t, "feedback for answer 0", assistant[1].Text)

	_, err = o.End(ctx)
	require.NoError(t, err)
	require.Len(t, f.sink.byRole(RoleAssistant), 3, "summary message emitted")
}
