package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hirepath/assess-backend/internal/model"
	"github.com/hirepath/assess-backend/internal/repository"
	"github.com/hirepath/assess-backend/internal/textgen"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory SessionStore + QuestionStore + ViolationCounter
// that mimics the repository guards: entitlement consume inside create,
// IN_PROGRESS-only finalize, status-guarded writes.
type memStore struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*model.AssessmentSession
	questions map[uuid.UUID][]model.Question
	credits   int
}

func newMemStore(credits int) *memStore {
	return &memStore{
		sessions:  make(map[uuid.UUID]*model.AssessmentSession),
		questions: make(map[uuid.UUID][]model.Question),
		credits:   credits,
	}
}

func (m *memStore) CreateWithEntitlement(_ context.Context, s *model.AssessmentSession, questions []model.Question, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.credits <= 0 {
		return repository.ErrEntitlementExhausted
	}
	m.credits--

	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	cp := *s
	m.sessions[s.ID] = &cp

	// Generated IDs go back into the caller's slice, mirroring the
	// repository's RETURNING contract.
	for i := range questions {
		questions[i].ID = uuid.New()
		questions[i].SessionID = s.ID
	}
	qs := make([]model.Question, len(questions))
	copy(qs, questions)
	m.questions[s.ID] = qs
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*model.AssessmentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) ListByUser(_ context.Context, userID string, limit int) ([]model.AssessmentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AssessmentSession
	for _, s := range m.sessions {
		if s.UserID == userID && len(out) < limit {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) Finalize(_ context.Context, id uuid.UUID, status model.SessionStatus, score *float64, feedback *string, degraded bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != model.SessionStatusInProgress {
		return false, nil
	}
	now := time.Now()
	s.Status = status
	s.OverallScore = score
	s.OverallFeedback = feedback
	s.FeedbackDegraded = degraded
	s.FinishedAt = &now
	return true, nil
}

func (m *memStore) IncrementViolation(_ context.Context, id uuid.UUID, vtype model.ViolationType) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != model.SessionStatusInProgress {
		return 0, pgx.ErrNoRows
	}
	s.ViolationCount++
	return s.ViolationCount, nil
}

func (m *memStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qs := m.questions[sessionID]
	out := make([]model.Question, len(qs))
	copy(out, qs)
	return out, nil
}

func (m *memStore) GetBySession(_ context.Context, sessionID, questionID uuid.UUID) (*model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.questions[sessionID] {
		if m.questions[sessionID][i].ID == questionID {
			cp := m.questions[sessionID][i]
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memStore) SaveResult(_ context.Context, q *model.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[q.SessionID]
	if !ok || s.Status != model.SessionStatusInProgress {
		return pgx.ErrNoRows
	}
	for i := range m.questions[q.SessionID] {
		if m.questions[q.SessionID][i].ID == q.ID {
			m.questions[q.SessionID][i] = *q
			return nil
		}
	}
	return pgx.ErrNoRows
}

// fixedProvisioner hands out the same question set for every session.
type fixedProvisioner struct {
	questions []model.Question
	shortfall int
}

func (p *fixedProvisioner) Provision(_ context.Context, _ ProvisionParams) ([]model.Question, int, error) {
	out := make([]model.Question, len(p.questions))
	copy(out, p.questions)
	return out, p.shortfall, nil
}

// stubScorer returns a fixed sub-score for every answer.
type stubScorer struct {
	score float64
}

func (s *stubScorer) ScoreCoding(_ context.Context, _ *model.Question, _, _ string) ScoreOutcome {
	return ScoreOutcome{SubScore: s.score, Feedback: "scored"}
}

func (s *stubScorer) ScoreOpenEnded(_ context.Context, _ *model.Question, _ string) ScoreOutcome {
	return ScoreOutcome{SubScore: s.score, Feedback: "scored"}
}

// nopStartCache never hits.
type nopStartCache struct{}

func (nopStartCache) Get(context.Context, uuid.UUID) (StartEntry, bool) { return StartEntry{}, false }
func (nopStartCache) Set(context.Context, uuid.UUID, StartEntry)       {}
func (nopStartCache) Delete(context.Context, uuid.UUID)                {}

// collectPublisher records published violation events.
type collectPublisher struct {
	mu     sync.Mutex
	events []model.ViolationEvent
}

func (p *collectPublisher) Publish(_ context.Context, e model.ViolationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

// memEntitlements backs EntitlementService in tests.
type memEntitlements struct {
	mu       sync.Mutex
	recorded []float64
}

func (m *memEntitlements) GetOrCreate(_ context.Context, userID string) (*model.Entitlement, error) {
	return &model.Entitlement{UserID: userID}, nil
}

func (m *memEntitlements) GrantCredits(context.Context, string, string, int) (bool, error) {
	return true, nil
}

func (m *memEntitlements) RecordResult(_ context.Context, _ string, score float64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = append(m.recorded, score)
	return nil
}

type emptyViolationLog struct{}

func (emptyViolationLog) ListBySession(context.Context, uuid.UUID) ([]model.ViolationEvent, error) {
	return nil, nil
}

// testClock is a settable clock shared by the service under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sessionFixture struct {
	svc   *SessionService
	store *memStore
	clock *testClock
	ents  *memEntitlements
	pub   *collectPublisher
}

func newSessionFixture(t *testing.T, credits, threshold int) *sessionFixture {
	t.Helper()

	store := newMemStore(credits)
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	ents := &memEntitlements{}
	pub := &collectPublisher{}

	gen := textgen.GeneratorFunc(func(_ context.Context, _ string) (string, error) {
		return "Strong overall performance.", nil
	})

	entSvc := NewEntitlementService(ents, 2, 1, zerolog.Nop())
	integrity := NewIntegrityService(store, pub, threshold, clock.Now, zerolog.Nop())

	provisioned := []model.Question{
		{Ordinal: 1, Prompt: "q1", Type: model.QuestionTypeShortAnswer, Weight: 1},
		{Ordinal: 2, Prompt: "q2", Type: model.QuestionTypeShortAnswer, Weight: 1},
	}

	svc := NewSessionService(
		store, store, &fixedProvisioner{questions: provisioned}, &stubScorer{score: 80},
		integrity, entSvc, emptyViolationLog{}, nopStartCache{},
		gen, time.Second,
		5, 20,
		clock.Now, zerolog.Nop(),
	)
	return &sessionFixture{svc: svc, store: store, clock: clock, ents: ents, pub: pub}
}

func createReq() *model.CreateSessionRequest {
	return &model.CreateSessionRequest{
		Kind:            string(model.KindSkillsTest),
		Category:        string(model.CategoryTechnical),
		Difficulty:      string(model.DifficultyMedium),
		DurationSeconds: 1800,
	}
}

func TestCreateStartsSession(t *testing.T) {
	fx := newSessionFixture(t, 1, 5)

	detail, err := fx.svc.Create(context.Background(), "user-1", createReq())
	require.NoError(t, err)

	assert.Equal(t, model.SessionStatusInProgress, detail.Session.Status)
	assert.Equal(t, fx.clock.Now(), detail.Session.StartedAt)
	assert.Equal(t, 1800, detail.RemainingSeconds)
	require.Len(t, detail.Questions, 2)
	assert.False(t, detail.Questions[0].Answered)
	assert.NotEqual(t, uuid.Nil, detail.Questions[0].ID, "persisted question IDs must reach the caller")

	// The stored row is already running with the server start instant; there
	// is no observable CREATED window after the entitlement is spent.
	s, err := fx.store.GetByID(context.Background(), detail.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusInProgress, s.Status)
	assert.Equal(t, fx.clock.Now(), s.StartedAt)
}

func TestCreateExhaustedEntitlement(t *testing.T) {
	fx := newSessionFixture(t, 0, 5)

	_, err := fx.svc.Create(context.Background(), "user-1", createReq())
	assert.ErrorIs(t, err, repository.ErrEntitlementExhausted)
}

func TestConcurrentCreatesSpendLastUnitOnce(t *testing.T) {
	fx := newSessionFixture(t, 1, 5)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.svc.Create(context.Background(), "user-1", createReq())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, exhausted int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, repository.ErrEntitlementExhausted):
			exhausted++
		}
	}
	assert.Equal(t, 1, ok, "exactly one create may consume the last unit")
	assert.Equal(t, 1, exhausted)
}

func TestSubmitAnswerRecordsScore(t *testing.T) {
	fx := newSessionFixture(t, 1, 5)
	detail, err := fx.svc.Create(context.Background(), "user-1", createReq())
	require.NoError(t, err)

	qID := detail.Questions[0].ID
	ack, err := fx.svc.SubmitAnswer(context.Background(), "user-1", detail.Session.ID, qID,
		&model.SubmitAnswerRequest{AnswerText: "my answer", TimeSpentSeconds: 30})
	require.NoError(t, err)
	assert.True(t, ack.Answered)

	qs, err := fx.store.ListBySession(context.Background(), detail.Session.ID)
	require.NoError(t, err)
	require.NotNil(t, qs[0].SubScore)
	assert.Equal(t, float64(80), *qs[0].SubScore)
}

func TestSubmitAfterDeadlineExpiresSession(t *testing.T) {
	fx := newSessionFixture(t, 1, 5)
	detail, err := fx.svc.Create(context.Background(), "user-1", createReq())
	require.NoError(t, err)

	fx.clock.Advance(31 * time.Minute)

	_, err = fx.svc.SubmitAnswer(context.Background(), "user-1", detail.Session.ID, detail.Questions[0].ID,
		&model.SubmitAnswerRequest{AnswerText: "too late"})
	assert.ErrorIs(t, err, ErrSessionExpired)

	s, err := fx.store.GetByID(context.Background(), detail.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusExpired, s.Status)
	require.NotNil(t, s.OverallScore)
	assert.Equal(t, float64(0), *s.OverallScore, "nothing answered means zero aggregate")
}

func TestSubmitWrongOwner(t *testing.T) {
	fx := newSessionFixture(t, 1, 5)
	detail, err := fx.svc.Create(context.Background(), "user-1", createReq())
	require.NoError(t, err)

	_, err = fx.svc.SubmitAnswer(context.Background(), "user-2", detail.Session.ID, detail.Questions[0].ID,
		&model.SubmitAnswerRequest{AnswerText: "not mine"})
	assert.ErrorIs(t, err, ErrNotSessionOwner)
}

func TestViolationThresholdTerminates(t *testing.T) {
	fx := newSessionFixture(t, 1, 5)
	detail, err := fx.svc.Create(context.Background(), "user-1", createReq())
	require.NoError(t, err)
	id := detail.Session.ID

	// One answered question before the violations start.
	_, err = fx.svc.SubmitAnswer(context.Background(), "user-1", id, detail.Questions[0].ID,
		&model.SubmitAnswerRequest{AnswerText: "answer"})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		ack, err := fx.svc.ReportViolation(context.Background(), "user-1", id, model.ViolationTabSwitch)
		require.NoError(t, err)
		assert.False(t, ack.Terminated, "report %d must not terminate", i+1)
	}

	ack, err := fx.svc.ReportViolation(context.Background(), "user-1", id, model.ViolationCopyAttempt)
	require.NoError(t, err)
	assert.True(t, ack.Terminated)
	assert.Equal(t, 5, ack.ViolationCount)

	s, err := fx.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusTerminatedIntegrity, s.Status)
	require.NotNil(t, s.OverallScore, "terminated sessions keep a penalized partial score")
	assert.Equal(t, float64(40), *s.OverallScore, "one answered at 80, one unanswered at 0")

	// Every report was fanned out to the event pipeline.
	fx.pub.mu.Lock()
	defer fx.pub.mu.Unlock()
	assert.Len(t, fx.pub.events, 5)
}

func TestReportViolationAfterTermination(t *testing.T) {
	fx := newSessionFixture(t, 1, 1)
	detail, err := fx.svc.Create(context.Background(), "user-1", createReq())
	require.NoError(t, err)

	ack, err := fx.svc.ReportViolation(context.Background(), "user-1", detail.Session.ID, model.ViolationTabSwitch)
	require.NoError(t, err)
	assert.True(t, ack.Terminated)

	_, err = fx.svc.ReportViolation(context.Background(), "user-1", detail.Session.ID, model.ViolationTabSwitch)
	assert.ErrorIs(t, err, ErrSessionTerminated)
}

func TestCompleteAggregatesAndRecordsStats(t *testing.T) {
	fx := newSessionFixture(t, 1, 5)
	detail, err := fx.svc.Create(context.Background(), "user-1", createReq())
	require.NoError(t, err)
	id := detail.Session.ID

	for _, q := range detail.Questions {
		_, err := fx.svc.SubmitAnswer(context.Background(), "user-1", id, q.ID,
			&model.SubmitAnswerRequest{AnswerText: "answer"})
		require.NoError(t, err)
	}

	result, err := fx.svc.Complete(context.Background(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, result.Status)
	require.NotNil(t, result.OverallScore)
	assert.Equal(t, float64(80), *result.OverallScore)
	assert.Equal(t, "Strong overall performance.", result.OverallFeedback)
	assert.False(t, result.FeedbackDegraded)
	require.Len(t, result.Questions, 2)

	fx.ents.mu.Lock()
	defer fx.ents.mu.Unlock()
	require.Len(t, fx.ents.recorded, 1)
	assert.Equal(t, float64(80), fx.ents.recorded[0])
}

func TestCompleteIsIdempotent(t *testing.T) {
	fx := newSessionFixture(t, 1, 5)
	detail, err := fx.svc.Create(context.Background(), "user-1", createReq())
	require.NoError(t, err)
	id := detail.Session.ID

	first, err := fx.svc.Complete(context.Background(), "user-1", id)
	require.NoError(t, err)

	second, err := fx.svc.Complete(context.Background(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.OverallScore, second.OverallScore)

	// Statistics fold in exactly once.
	fx.ents.mu.Lock()
	defer fx.ents.mu.Unlock()
	assert.Len(t, fx.ents.recorded, 1)
}

func TestCompleteAfterTerminationReturnsPersistedResult(t *testing.T) {
	fx := newSessionFixture(t, 1, 1)
	detail, err := fx.svc.Create(context.Background(), "user-1", createReq())
	require.NoError(t, err)

	_, err = fx.svc.ReportViolation(context.Background(), "user-1", detail.Session.ID, model.ViolationTabSwitch)
	require.NoError(t, err)

	result, err := fx.svc.Complete(context.Background(), "user-1", detail.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusTerminatedIntegrity, result.Status, "terminal state must not be overwritten")

	fx.ents.mu.Lock()
	defer fx.ents.mu.Unlock()
	assert.Empty(t, fx.ents.recorded, "terminated sessions contribute no statistics")
}

func TestCompleteDegradedFeedback(t *testing.T) {
	fx := newSessionFixture(t, 1, 5)
	fx.svc.gen = textgen.GeneratorFunc(func(_ context.Context, _ string) (string, error) {
		return "", context.DeadlineExceeded
	})

	detail, err := fx.svc.Create(context.Background(), "user-1", createReq())
	require.NoError(t, err)

	result, err := fx.svc.Complete(context.Background(), "user-1", detail.Session.ID)
	require.NoError(t, err)
	assert.True(t, result.FeedbackDegraded)
	assert.NotEmpty(t, result.OverallFeedback)
}

func TestCancel(t *testing.T) {
	fx := newSessionFixture(t, 1, 5)
	detail, err := fx.svc.Create(context.Background(), "user-1", createReq())
	require.NoError(t, err)
	id := detail.Session.ID

	require.NoError(t, fx.svc.Cancel(context.Background(), "user-1", id))

	s, err := fx.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, s.Status)

	// Cancelling again is a no-op.
	assert.NoError(t, fx.svc.Cancel(context.Background(), "user-1", id))

	// Completing a cancelled session is rejected.
	_, err = fx.svc.Complete(context.Background(), "user-1", id)
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestGetCancelledSessionKeepsScoredAnswers(t *testing.T) {
	fx := newSessionFixture(t, 1, 5)
	detail, err := fx.svc.Create(context.Background(), "user-1", createReq())
	require.NoError(t, err)
	id := detail.Session.ID

	_, err = fx.svc.SubmitAnswer(context.Background(), "user-1", id, detail.Questions[0].ID,
		&model.SubmitAnswerRequest{AnswerText: "answer"})
	require.NoError(t, err)

	require.NoError(t, fx.svc.Cancel(context.Background(), "user-1", id))

	got, err := fx.svc.Get(context.Background(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, got.Session.Status)
	require.NotNil(t, got.Result, "scored answers stay inspectable after cancellation")
	assert.Nil(t, got.Result.OverallScore, "cancelled sessions never aggregate")
	require.Len(t, got.Result.Questions, 2)
	require.NotNil(t, got.Result.Questions[0].SubScore)
	assert.Equal(t, float64(80), *got.Result.Questions[0].SubScore)
	assert.Nil(t, got.Result.Questions[1].SubScore)
}

func TestCancelCompletedSessionRejected(t *testing.T) {
	fx := newSessionFixture(t, 1, 5)
	detail, err := fx.svc.Create(context.Background(), "user-1", createReq())
	require.NoError(t, err)

	_, err = fx.svc.Complete(context.Background(), "user-1", detail.Session.ID)
	require.NoError(t, err)

	err = fx.svc.Cancel(context.Background(), "user-1", detail.Session.ID)
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestGetRedactsWhileActive(t *testing.T) {
	fx := newSessionFixture(t, 1, 5)

	// Seed the provisioner with a coding question that carries expected
	// outputs the candidate must never see.
	fx.svc.provisioner = &fixedProvisioner{questions: []model.Question{{
		Ordinal: 1, Prompt: "sum two ints", Type: model.QuestionTypeCoding, Weight: 1,
		TestCases: []model.TestCase{{Label: "t1", Input: "1 2", Expected: "3"}},
	}}}

	detail, err := fx.svc.Create(context.Background(), "user-1", createReq())
	require.NoError(t, err)

	got, err := fx.svc.Get(context.Background(), "user-1", detail.Session.ID)
	require.NoError(t, err)
	require.Len(t, got.Questions, 1)
	require.Len(t, got.Questions[0].TestCases, 1)
	assert.Equal(t, "1 2", got.Questions[0].TestCases[0].Input)
	assert.Nil(t, got.Result, "no result while the session runs")
}

func TestGetReturnsResultOnceTerminal(t *testing.T) {
	fx := newSessionFixture(t, 1, 5)
	detail, err := fx.svc.Create(context.Background(), "user-1", createReq())
	require.NoError(t, err)

	_, err = fx.svc.Complete(context.Background(), "user-1", detail.Session.ID)
	require.NoError(t, err)

	got, err := fx.svc.Get(context.Background(), "user-1", detail.Session.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Questions)
	require.NotNil(t, got.Result)
	assert.Equal(t, model.SessionStatusCompleted, got.Result.Status)
}

func TestGetLazilyExpires(t *testing.T) {
	fx := newSessionFixture(t, 1, 5)
	detail, err := fx.svc.Create(context.Background(), "user-1", createReq())
	require.NoError(t, err)

	fx.clock.Advance(2 * time.Hour)

	got, err := fx.svc.Get(context.Background(), "user-1", detail.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusExpired, got.Session.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, model.SessionStatusExpired, got.Result.Status)
}

func TestGetNotFound(t *testing.T) {
	fx := newSessionFixture(t, 1, 5)

	_, err := fx.svc.Get(context.Background(), "user-1", uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
