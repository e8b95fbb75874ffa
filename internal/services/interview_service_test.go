package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/adminlove520/EasyJob/internal/models"
	"github.com/adminlove520/EasyJob/internal/orchestrator"
	"github.com/adminlove520/EasyJob/internal/providers/llm"
	"github.com/adminlove520/EasyJob/internal/repositories/postgres"
	"github.com/adminlove520/EasyJob/internal/utils"
)

// fakeSessionRepo is an in-memory postgres.SessionRepository.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uint]*models.InterviewSession
	nextID   uint
	clock    time.Time
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions: make(map[uint]*models.InterviewSession),
		clock:    time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (f *fakeSessionRepo) seed(s models.InterviewSession) uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == 0 {
		f.nextID++
		s.ID = f.nextID
	} else if s.ID > f.nextID {
		f.nextID = s.ID
	}
	if s.CreatedAt.IsZero() {
		f.clock = f.clock.Add(time.Minute)
		s.CreatedAt = f.clock
	}
	cp := s
	f.sessions[s.ID] = &cp
	return s.ID
}

func (f *fakeSessionRepo) get(id uint) models.InterviewSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.sessions[id]
}

func (f *fakeSessionRepo) Create(_ context.Context, s *models.InterviewSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = f.nextID
	f.clock = f.clock.Add(time.Minute)
	s.CreatedAt = f.clock
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeSessionRepo) GetByID(_ context.Context, resumeID, sessionID uint) (*models.InterviewSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || s.ResumeID != resumeID {
		return nil, utils.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionRepo) ListByResume(_ context.Context, resumeID uint) ([]models.InterviewSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.InterviewSession
	for _, s := range f.sessions {
		if s.ResumeID == resumeID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) ListByOwner(_ context.Context, _ uint) ([]models.InterviewSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.InterviewSession
	for _, s := range f.sessions {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeSessionRepo) SaveAnswers(_ context.Context, sessionID uint, answers datatypes.JSONSlice[models.AnswerRecord]) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return utils.ErrNotFound
	}
	s.Answers = answers
	s.ReportData = nil
	return nil
}

func (f *fakeSessionRepo) SaveQuestions(_ context.Context, sessionID uint, questions datatypes.JSONSlice[models.QuestionRecord]) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return utils.ErrNotFound
	}
	s.Questions = questions
	return nil
}

func (f *fakeSessionRepo) Complete(_ context.Context, sessionID uint, overallScore *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return utils.ErrNotFound
	}
	s.Status = models.SessionCompleted
	s.ReportData = nil
	if overallScore != nil {
		v := *overallScore
		s.OverallScore = &v
	}
	return nil
}

func (f *fakeSessionRepo) SaveReport(_ context.Context, sessionID uint, report datatypes.JSON) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return utils.ErrNotFound
	}
	s.ReportData = report
	return nil
}

func (f *fakeSessionRepo) ClearReport(_ context.Context, sessionID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionID]; ok {
		s.ReportData = nil
	}
	return nil
}

func (f *fakeSessionRepo) ListCompletedWithoutScore(_ context.Context, resumeID uint) ([]models.InterviewSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.InterviewSession
	for _, s := range f.sessions {
		if s.ResumeID == resumeID && s.Status == models.SessionCompleted && s.OverallScore == nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) SetOverallScore(_ context.Context, sessionID uint, score int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return utils.ErrNotFound
	}
	s.OverallScore = &score
	return nil
}

func (f *fakeSessionRepo) Delete(_ context.Context, resumeID, sessionID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionID]; ok && s.ResumeID == resumeID {
		delete(f.sessions, sessionID)
	}
	return nil
}

func (f *fakeSessionRepo) StatsByOwner(_ context.Context, _ uint) (postgres.SessionStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stats postgres.SessionStats
	for _, s := range f.sessions {
		stats.Total++
		switch s.Status {
		case models.SessionCompleted:
			stats.Completed++
		case models.SessionActive:
			stats.Active++
		}
	}
	return stats, nil
}

type fakeResumeRepo struct {
	resumes map[uint]*models.Resume
}

func newFakeResumeRepo(ids ...uint) *fakeResumeRepo {
	f := &fakeResumeRepo{resumes: make(map[uint]*models.Resume)}
	for _, id := range ids {
		f.resumes[id] = &models.Resume{
			ID:      id,
			Title:   "Backend Engineer",
			Content: datatypes.JSON(`{"summary":"five years of Go"}`),
			OwnerID: 1,
		}
	}
	return f
}

func (f *fakeResumeRepo) Insert(_ context.Context, r *models.Resume) error {
	f.resumes[r.ID] = r
	return nil
}

func (f *fakeResumeRepo) Update(_ context.Context, r *models.Resume) error {
	f.resumes[r.ID] = r
	return nil
}

func (f *fakeResumeRepo) GetByID(_ context.Context, id uint) (*models.Resume, error) {
	r, ok := f.resumes[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return r, nil
}

func (f *fakeResumeRepo) ListByOwner(_ context.Context, ownerID uint) ([]models.Resume, error) {
	var out []models.Resume
	for _, r := range f.resumes {
		if r.OwnerID == ownerID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeResumeRepo) Delete(_ context.Context, id uint) error {
	delete(f.resumes, id)
	return nil
}

// fakeLLM counts calls so tests can assert the evaluator is not re-invoked
// on idempotent retries.
type fakeLLM struct {
	mu            sync.Mutex
	generateCalls int
	evalCalls     int
	scoreCalls    int

	scoreErr error
}

func (f *fakeLLM) GenerateQuestions(_ context.Context, _ json.RawMessage, _ string, _ string, count int) ([]models.QuestionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	out := make([]models.QuestionRecord, count)
	for i := range out {
		out[i] = models.QuestionRecord{Question: fmt.Sprintf("question %d", i), Type: "general", Index: i}
	}
	return out, nil
}

func (f *fakeLLM) NextQuestion(_ context.Context, history []llm.Exchange, _ json.RawMessage) (models.QuestionRecord, error) {
	return models.QuestionRecord{Question: fmt.Sprintf("follow-up after %d answers", len(history)), Type: "follow_up"}, nil
}

func (f *fakeLLM) EvaluateAnswer(_ context.Context, _, answer string, _ json.RawMessage) (models.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evalCalls++
	return models.Evaluation{Score: 80, Feedback: "feedback for " + answer}, nil
}

func (f *fakeLLM) OverallScore(_ context.Context, _ []models.QuestionRecord, _ []models.AnswerRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scoreCalls++
	if f.scoreErr != nil {
		return 0, f.scoreErr
	}
	return 85, nil
}

func (f *fakeLLM) StreamAnswer(_ context.Context, _ string) (<-chan string, <-chan error) {
	ch := make(chan string)
	errs := make(chan error, 1)
	close(ch)
	return ch, errs
}

func (f *fakeLLM) Close() error { return nil }

// memCache is an in-memory cache.Cache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (m *memCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (m *memCache) SetJSON(_ context.Context, key string, val any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

func (m *memCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func presetQuestions(n int) []models.QuestionRecord {
	out := make([]models.QuestionRecord, n)
	for i := range out {
		out[i] = models.QuestionRecord{Question: fmt.Sprintf("question %d", i), Type: "general", Index: i}
	}
	return out
}

type svcFixture struct {
	repo    *fakeSessionRepo
	resumes *fakeResumeRepo
	llm     *fakeLLM
	cache   *memCache
	svc     InterviewService
}

func newSvcFixture(t *testing.T) *svcFixture {
	t.Helper()
	f := &svcFixture{
		repo:    newFakeSessionRepo(),
		resumes: newFakeResumeRepo(1),
		llm:     &fakeLLM{},
		cache:   newMemCache(),
	}
	f.svc = NewInterviewService(f.repo, f.resumes, f.llm, f.cache, nil)
	return f
}

func TestCreateSessionGeneratesPresetQuestions(t *testing.T) {
	f := newSvcFixture(t)

	sess, err := f.svc.CreateSession(context.Background(), 1, orchestrator.StartConfig{
		JobPosition:   "Backend Engineer",
		InterviewMode: "technical",
	})
	require.NoError(t, err)
	require.Len(t, sess.Questions, defaultQuestionCount)
	require.Equal(t, models.SessionActive, sess.Status)
	require.Equal(t, 1, f.llm.generateCalls)
}

func TestCreateSessionClampsQuestionCount(t *testing.T) {
	f := newSvcFixture(t)

	sess, err := f.svc.CreateSession(context.Background(), 1, orchestrator.StartConfig{QuestionCount: 100})
	require.NoError(t, err)
	require.Len(t, sess.Questions, maxQuestionCount)

	require.NoError(t, f.svc.EndSession(context.Background(), 1, sess.ID))

	sess, err = f.svc.CreateSession(context.Background(), 1, orchestrator.StartConfig{QuestionCount: 2})
	require.NoError(t, err)
	require.Len(t, sess.Questions, minQuestionCount)
}

func TestCreateSessionAdoptsExistingActive(t *testing.T) {
	f := newSvcFixture(t)
	id := f.repo.seed(models.InterviewSession{
		ResumeID:  1,
		Status:    models.SessionActive,
		Questions: presetQuestions(3),
	})

	sess, err := f.svc.CreateSession(context.Background(), 1, orchestrator.StartConfig{})
	require.NoError(t, err)
	require.Equal(t, id, sess.ID)
	require.Zero(t, f.llm.generateCalls, "no new question generation when adopting")
}

func TestCreateSessionUnknownResume(t *testing.T) {
	f := newSvcFixture(t)

	_, err := f.svc.CreateSession(context.Background(), 99, orchestrator.StartConfig{})
	require.Error(t, err)
	require.True(t, utils.IsCode(err, utils.CodeNotFound))
}

func TestSubmitAnswerOrderAndIdempotentRetry(t *testing.T) {
	f := newSvcFixture(t)
	id := f.repo.seed(models.InterviewSession{
		ResumeID:  1,
		Status:    models.SessionActive,
		Questions: presetQuestions(3),
	})

	// out of order
	_, err := f.svc.SubmitAnswer(context.Background(), 1, id, "skipping ahead", 2)
	require.Error(t, err)
	require.True(t, utils.IsCode(err, utils.CodeConflict))

	eval, err := f.svc.SubmitAnswer(context.Background(), 1, id, "my first answer", 0)
	require.NoError(t, err)
	require.Equal(t, 80, eval.Score)
	require.Equal(t, 1, f.llm.evalCalls)

	// retry of the same submission: stored evaluation, no second LLM call
	again, err := f.svc.SubmitAnswer(context.Background(), 1, id, "my first answer", 0)
	require.NoError(t, err)
	require.Equal(t, eval, again)
	require.Equal(t, 1, f.llm.evalCalls)

	got := f.repo.get(id)
	require.Len(t, got.Answers, 1)
}

func TestSubmitAnswerClearsStoredReport(t *testing.T) {
	f := newSvcFixture(t)
	id := f.repo.seed(models.InterviewSession{
		ResumeID:   1,
		Status:     models.SessionActive,
		Questions:  presetQuestions(3),
		ReportData: datatypes.JSON(`{"stale":true}`),
	})

	_, err := f.svc.SubmitAnswer(context.Background(), 1, id, "an answer", 0)
	require.NoError(t, err)
	require.Empty(t, f.repo.get(id).ReportData)
}

func TestSubmitAnswerCompletedSession(t *testing.T) {
	f := newSvcFixture(t)
	id := f.repo.seed(models.InterviewSession{
		ResumeID:  1,
		Status:    models.SessionCompleted,
		Questions: presetQuestions(3),
	})

	_, err := f.svc.SubmitAnswer(context.Background(), 1, id, "too late", 0)
	require.ErrorIs(t, err, orchestrator.ErrSessionCompleted)
}

func TestEndSessionScoresTolerantly(t *testing.T) {
	f := newSvcFixture(t)
	id := f.repo.seed(models.InterviewSession{
		ResumeID:  1,
		Status:    models.SessionActive,
		Questions: presetQuestions(1),
		Answers: []models.AnswerRecord{
			{Answer: "done", Evaluation: models.Evaluation{Score: 70}, QuestionIndex: 0},
		},
	})

	f.llm.scoreErr = errors.New("scorer down")
	require.NoError(t, f.svc.EndSession(context.Background(), 1, id))

	got := f.repo.get(id)
	require.Equal(t, models.SessionCompleted, got.Status)
	require.Nil(t, got.OverallScore, "a failed scorer must not block completion")

	// idempotent: a second end is a no-op success
	require.NoError(t, f.svc.EndSession(context.Background(), 1, id))
}

func TestEndSessionStoresOverallScore(t *testing.T) {
	f := newSvcFixture(t)
	id := f.repo.seed(models.InterviewSession{
		ResumeID:  1,
		Status:    models.SessionActive,
		Questions: presetQuestions(1),
		Answers: []models.AnswerRecord{
			{Answer: "done", Evaluation: models.Evaluation{Score: 70}, QuestionIndex: 0},
		},
	})

	require.NoError(t, f.svc.EndSession(context.Background(), 1, id))

	got := f.repo.get(id)
	require.NotNil(t, got.OverallScore)
	require.Equal(t, 85, *got.OverallScore)
}

func TestNextQuestionServesPresetThenExhausts(t *testing.T) {
	f := newSvcFixture(t)
	id := f.repo.seed(models.InterviewSession{
		ResumeID:  1,
		Status:    models.SessionActive,
		Questions: presetQuestions(1),
	})

	q, err := f.svc.NextQuestion(context.Background(), 1, id)
	require.NoError(t, err)
	require.Equal(t, "question 0", q.Question)

	_, err = f.svc.SubmitAnswer(context.Background(), 1, id, "answered", 0)
	require.NoError(t, err)

	_, err = f.svc.NextQuestion(context.Background(), 1, id)
	require.ErrorIs(t, err, orchestrator.ErrNoMoreQuestions)
}

func TestFollowUpQuestionAppends(t *testing.T) {
	f := newSvcFixture(t)
	id := f.repo.seed(models.InterviewSession{
		ResumeID:  1,
		Status:    models.SessionActive,
		Questions: presetQuestions(2),
		Answers: []models.AnswerRecord{
			{Answer: "a0", QuestionIndex: 0},
			{Answer: "a1", QuestionIndex: 1},
		},
	})

	q, err := f.svc.FollowUpQuestion(context.Background(), 1, id)
	require.NoError(t, err)
	require.Equal(t, 2, q.Index)
	require.Equal(t, "follow_up", q.Type)
	require.Equal(t, "follow-up after 2 answers", q.Question)

	got := f.repo.get(id)
	require.Len(t, got.Questions, 3)
}

func TestCleanupDuplicatesKeepsNewestAndAnswered(t *testing.T) {
	f := newSvcFixture(t)
	older := f.repo.seed(models.InterviewSession{
		ResumeID:  1,
		Status:    models.SessionActive,
		Questions: presetQuestions(3),
	})
	answered := f.repo.seed(models.InterviewSession{
		ResumeID:  1,
		Status:    models.SessionActive,
		Questions: presetQuestions(3),
		Answers: []models.AnswerRecord{
			{Answer: "kept", QuestionIndex: 0},
		},
	})
	newest := f.repo.seed(models.InterviewSession{
		ResumeID:  1,
		Status:    models.SessionActive,
		Questions: presetQuestions(3),
	})

	n, err := f.svc.CleanupDuplicates(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rows, err := f.svc.ListSessions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	ids := []uint{rows[0].ID, rows[1].ID}
	require.Contains(t, ids, newest)
	require.Contains(t, ids, answered)
	require.NotContains(t, ids, older)
}

func TestCalculateMissingScores(t *testing.T) {
	f := newSvcFixture(t)
	unscored := f.repo.seed(models.InterviewSession{
		ResumeID:  1,
		Status:    models.SessionCompleted,
		Questions: presetQuestions(1),
		Answers: []models.AnswerRecord{
			{Answer: "a", Evaluation: models.Evaluation{Score: 60}, QuestionIndex: 0},
		},
	})
	// empty completed session: skipped
	f.repo.seed(models.InterviewSession{
		ResumeID:  1,
		Status:    models.SessionCompleted,
		Questions: presetQuestions(1),
	})

	n, err := f.svc.CalculateMissingScores(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, f.llm.scoreCalls, "empty sessions never reach the scorer")

	got := f.repo.get(unscored)
	require.NotNil(t, got.OverallScore)
	require.Equal(t, 85, *got.OverallScore)
}

func TestStatsServedFromCache(t *testing.T) {
	f := newSvcFixture(t)
	f.repo.seed(models.InterviewSession{ResumeID: 1, Status: models.SessionCompleted, Questions: presetQuestions(1)})
	f.repo.seed(models.InterviewSession{ResumeID: 1, Status: models.SessionActive, Questions: presetQuestions(1)})

	stats, err := f.svc.Stats(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.Total)
	require.EqualValues(t, 1, stats.Completed)
	require.InDelta(t, 50.0, stats.CompletionRate, 0.01)

	// mutate behind the cache's back; the cached copy is served
	f.repo.seed(models.InterviewSession{ResumeID: 1, Status: models.SessionActive, Questions: presetQuestions(1)})
	stats, err = f.svc.Stats(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.Total)
}

func TestListSessionsFlagsDuplicates(t *testing.T) {
	f := newSvcFixture(t)
	f.repo.seed(models.InterviewSession{ResumeID: 1, Status: models.SessionActive, Questions: presetQuestions(3)})
	newest := f.repo.seed(models.InterviewSession{ResumeID: 1, Status: models.SessionActive, Questions: presetQuestions(3)})

	rows, err := f.svc.ListSessions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, newest, rows[0].ID)
	require.False(t, rows[0].PossibleDuplicate)
	require.True(t, rows[1].PossibleDuplicate)

	// flags are derived, never written back
	for _, r := range rows {
		require.False(t, f.repo.get(r.ID).PossibleDuplicate)
	}
}
