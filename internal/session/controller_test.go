package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/clock"
	"github.com/stemsi/exstem-proctor/internal/gateway"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/store"
)

var errNetwork = errors.New("connection reset by peer")

// ─── Fakes ──────────────────────────────────────────────────────────────────

type fakeTime struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type manualTicker struct {
	ch chan time.Time
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}

type fakeGateway struct {
	mu         sync.Mutex
	session    model.AttemptSession
	startErrs  []error
	startCalls int
	submitErrs []error
	submits    []model.SubmitRequest
	gate       chan struct{}
}

func (g *fakeGateway) StartOrResume(ctx context.Context, quizID string) (*model.AttemptSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.startCalls++
	if len(g.startErrs) > 0 {
		err := g.startErrs[0]
		g.startErrs = g.startErrs[1:]
		return nil, err
	}
	sess := g.session
	sess.QuizID = quizID
	return &sess, nil
}

func (g *fakeGateway) Submit(ctx context.Context, req model.SubmitRequest) (*model.SubmissionResult, error) {
	g.mu.Lock()
	g.submits = append(g.submits, req)
	var err error
	if len(g.submitErrs) > 0 {
		err = g.submitErrs[0]
		g.submitErrs = g.submitErrs[1:]
	}
	gate := g.gate
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &model.SubmissionResult{
		AttemptID:     req.AttemptID,
		Total:         len(req.Answers),
		BlockedReason: req.Reason,
		SubmittedAt:   time.Unix(1_700_000_000, 0),
	}, nil
}

func (g *fakeGateway) Submits() []model.SubmitRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]model.SubmitRequest, len(g.submits))
	copy(out, g.submits)
	return out
}

type autosavingGateway struct {
	*fakeGateway
	saves chan model.AutosaveRequest
}

func (g *autosavingGateway) Autosave(ctx context.Context, req model.AutosaveRequest) error {
	g.saves <- req
	return nil
}

type failingStore struct{}

func (failingStore) Save(context.Context, string, store.Snapshot) error {
	return errors.New("disk full")
}

func (failingStore) Load(context.Context, string) (store.Snapshot, error) {
	return store.Snapshot{}, errors.New("disk full")
}

func (failingStore) Clear(context.Context, string) error {
	return errors.New("disk full")
}

// ─── Harness ────────────────────────────────────────────────────────────────

func fiveQuestions() model.QuestionSet {
	choice := []model.Option{{ID: "a", Text: "A"}, {ID: "b", Text: "B"}, {ID: "c", Text: "C"}}
	return model.QuestionSet{
		{ID: "q1", QuestionType: model.QuestionTypeSingleChoice, Options: choice, OrderNum: 1},
		{ID: "q2", QuestionType: model.QuestionTypeSingleChoice, Options: choice, OrderNum: 2},
		{ID: "q3", QuestionType: model.QuestionTypeFreeText, OrderNum: 3},
		{ID: "q4", QuestionType: model.QuestionTypeSingleChoice, Options: choice, OrderNum: 4},
		{ID: "q5", QuestionType: model.QuestionTypeFreeText, OrderNum: 5},
	}
}

type harness struct {
	t      *testing.T
	c      *Controller
	gw     *fakeGateway
	store  store.Store
	time   *fakeTime
	ticker *manualTicker

	// checked receives the remaining seconds after every clock check.
	checked chan int
}

func newHarness(t *testing.T, gw *fakeGateway, st store.Store) *harness {
	t.Helper()
	return newHarnessOver(t, gw, gw, st)
}

// newHarnessOver drives the controller through transport while gw records
// the start and submit calls.
func newHarnessOver(t *testing.T, transport gateway.Gateway, gw *fakeGateway, st store.Store) *harness {
	t.Helper()
	if st == nil {
		st = store.NewMemory()
	}
	h := &harness{
		t:       t,
		gw:      gw,
		store:   st,
		time:    &fakeTime{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)},
		ticker:  &manualTicker{ch: make(chan time.Time)},
		checked: make(chan int, 16),
	}
	fast := gateway.RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
	start := fast
	start.MaxTries = 2
	h.c = New(transport, st, Config{
		QuizID:      "quiz-1",
		StartRetry:  start,
		SubmitRetry: fast,
		Now:         h.time.Now,
		ClockOptions: []clock.Option{
			clock.WithTicker(func(time.Duration) clock.Ticker { return h.ticker }),
			clock.WithObserver(func(remaining int) { h.checked <- remaining }),
		},
	}, WithLogger(zerolog.Nop()))
	t.Cleanup(h.c.Close)
	return h
}

func freshGateway(seconds int) *fakeGateway {
	return &fakeGateway{session: model.AttemptSession{
		AttemptID: "att-1",
		Questions: fiveQuestions(),
		Seconds:   seconds,
	}}
}

func (h *harness) begin() {
	h.t.Helper()
	if err := h.c.Begin(context.Background()); err != nil {
		h.t.Fatalf("begin: %v", err)
	}
	if h.c.View().State != StateAlreadySubmitted {
		h.waitCheck()
	}
}

// tick delivers one clock tick at the current fake time and returns once
// the controller has handled it.
func (h *harness) tick() {
	h.t.Helper()
	select {
	case h.ticker.ch <- h.time.Now():
	case <-time.After(2 * time.Second):
		h.t.Fatal("clock is not waiting for a tick")
	}
	h.waitCheck()
}

func (h *harness) waitCheck() {
	h.t.Helper()
	select {
	case <-h.checked:
	case <-time.After(2 * time.Second):
		h.t.Fatal("clock check did not complete")
	}
}

func (h *harness) signal(reason string) {
	h.c.Signals().OnSuspiciousActivity(reason)
}

func (h *harness) answer(qid, value string) {
	h.t.Helper()
	if err := h.c.Answer(qid, value); err != nil {
		h.t.Fatalf("answer %s: %v", qid, err)
	}
}

func (h *harness) ack() {
	h.t.Helper()
	if err := h.c.AcknowledgeWarning(); err != nil {
		h.t.Fatalf("acknowledge: %v", err)
	}
}

func (h *harness) waitDone() View {
	h.t.Helper()
	select {
	case <-h.c.Done():
	case <-time.After(3 * time.Second):
		h.t.Fatalf("controller did not finish, state = %s", h.c.View().State)
	}
	return h.c.View()
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// ─── Start ──────────────────────────────────────────────────────────────────

func TestBeginFreshAttempt(t *testing.T) {
	t.Parallel()

	h := newHarness(t, freshGateway(600), nil)
	h.begin()

	v := h.c.View()
	if v.State != StateInProgress || v.Status != model.AttemptStatusInProgress {
		t.Fatalf("state = %s / %s", v.State, v.Status)
	}
	if v.AttemptID != "att-1" || v.QuizID != "quiz-1" {
		t.Fatalf("ids = %q / %q", v.AttemptID, v.QuizID)
	}
	if v.RemainingSeconds != 600 {
		t.Fatalf("remaining = %d, want 600", v.RemainingSeconds)
	}
	if want := h.time.Now().Add(600 * time.Second); !v.Deadline.Equal(want) {
		t.Fatalf("deadline = %s, want %s", v.Deadline, want)
	}
	if len(v.Answers) != 0 || v.WarningCount != 0 || v.StrikeLimit != 3 {
		t.Fatalf("unexpected view: %+v", v)
	}
	if err := h.c.Begin(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second begin = %v", err)
	}
}

func TestBeginAlreadySubmitted(t *testing.T) {
	t.Parallel()

	gw := freshGateway(600)
	gw.startErrs = []error{gateway.ErrAlreadySubmitted}
	h := newHarness(t, gw, nil)
	h.begin()

	v := h.waitDone()
	if v.State != StateAlreadySubmitted || v.Err != nil {
		t.Fatalf("state = %s, err = %v", v.State, v.Err)
	}
	if err := h.c.Answer("q1", "a"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("answer = %v", err)
	}
}

func TestBeginUnauthorizedAborts(t *testing.T) {
	t.Parallel()

	gw := freshGateway(600)
	gw.startErrs = []error{gateway.ErrUnauthorized}
	h := newHarness(t, gw, nil)

	err := h.c.Begin(context.Background())
	if !errors.Is(err, gateway.ErrUnauthorized) {
		t.Fatalf("begin = %v", err)
	}
	v := h.waitDone()
	if v.State != StateAborted || !errors.Is(v.Err, gateway.ErrUnauthorized) {
		t.Fatalf("state = %s, err = %v", v.State, v.Err)
	}
	if gw.startCalls != 1 {
		t.Fatalf("start calls = %d, fatal errors must not be retried", gw.startCalls)
	}
}

func TestBeginTransientFailureReturnsToIdle(t *testing.T) {
	t.Parallel()

	gw := freshGateway(600)
	gw.startErrs = []error{errNetwork, errNetwork}
	h := newHarness(t, gw, nil)

	if err := h.c.Begin(context.Background()); !errors.Is(err, errNetwork) {
		t.Fatalf("begin = %v", err)
	}
	if v := h.c.View(); v.State != StateIdle {
		t.Fatalf("state = %s, want idle", v.State)
	}
	if gw.startCalls != 2 {
		t.Fatalf("start calls = %d, want 2", gw.startCalls)
	}

	h.begin()
	if v := h.c.View(); v.State != StateInProgress {
		t.Fatalf("state after retry = %s", v.State)
	}
}

// ─── Draft ──────────────────────────────────────────────────────────────────

func TestAnswerDraftIsLastWrite(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	h := newHarness(t, freshGateway(600), st)
	h.begin()

	h.answer("q1", "a")
	h.answer("q1", "c")
	h.answer("q3", "first")
	h.answer("q3", "second")
	h.answer("q2", "b")
	h.answer("q2", "")

	if err := h.c.Answer("nope", "a"); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("unknown question = %v", err)
	}
	if err := h.c.Answer("q4", "z"); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("invalid option = %v", err)
	}
	if err := h.c.GoTo(3); err != nil {
		t.Fatalf("goto: %v", err)
	}
	if err := h.c.GoTo(5); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("goto out of range = %v", err)
	}

	want := model.AnswerDraft{"q1": "c", "q3": "second"}
	v := h.c.View()
	assertDraft(t, v.Answers, want)
	if v.Answered() != 2 || v.CurrentQuestionIndex != 3 {
		t.Fatalf("answered = %d, index = %d", v.Answered(), v.CurrentQuestionIndex)
	}

	snap, err := st.Load(context.Background(), "att-1")
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	assertDraft(t, snap.Answers, want)
	if snap.CurrentQuestionIndex != 3 {
		t.Fatalf("stored index = %d", snap.CurrentQuestionIndex)
	}
}

func TestStoreFailuresDoNotBlockTheAttempt(t *testing.T) {
	t.Parallel()

	h := newHarness(t, freshGateway(600), failingStore{})
	h.begin()
	h.answer("q1", "a")
	if err := h.c.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}

	v := h.waitDone()
	if v.State != StateSubmitted || v.Result == nil {
		t.Fatalf("state = %s, result = %v", v.State, v.Result)
	}
}

// ─── Resume ─────────────────────────────────────────────────────────────────

func TestResumeRestoresSavedDraft(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	saved := store.Snapshot{
		Answers:              map[string]string{"q1": "b", "q3": "essay", "retired": "x"},
		CurrentQuestionIndex: 2,
	}
	if err := st.Save(context.Background(), "att-1", saved); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	gw := freshGateway(90)
	gw.session.IsResume = true
	gw.session.AutosavedAnswers = map[string]string{"q2": "a"}
	h := newHarness(t, gw, st)
	h.begin()

	v := h.c.View()
	assertDraft(t, v.Answers, model.AnswerDraft{"q1": "b", "q3": "essay"})
	if v.CurrentQuestionIndex != 2 {
		t.Fatalf("index = %d, want 2", v.CurrentQuestionIndex)
	}
}

func TestResumeFallsBackToServerAutosave(t *testing.T) {
	t.Parallel()

	gw := freshGateway(90)
	gw.session.IsResume = true
	gw.session.AutosavedAnswers = map[string]string{"q2": "a", "gone": "b"}
	h := newHarness(t, gw, nil)
	h.begin()

	assertDraft(t, h.c.View().Answers, model.AnswerDraft{"q2": "a"})
}

func TestAnswersAreAutosavedToServer(t *testing.T) {
	t.Parallel()

	fake := freshGateway(600)
	gw := &autosavingGateway{fakeGateway: fake, saves: make(chan model.AutosaveRequest, 16)}
	h := newHarnessOver(t, gw, fake, nil)
	h.begin()

	h.answer("q3", "essay")
	h.answer("q1", "b")

	timeout := time.After(3 * time.Second)
	for {
		select {
		case req := <-gw.saves:
			if req.AttemptID != "att-1" {
				t.Fatalf("autosave attempt = %q", req.AttemptID)
			}
			if len(req.Answers) < 2 {
				continue
			}
			want := []model.Answer{{QuestionID: "q1", Value: "b"}, {QuestionID: "q3", Value: "essay"}}
			if len(req.Answers) != 2 || req.Answers[0] != want[0] || req.Answers[1] != want[1] {
				t.Fatalf("autosaved answers = %+v, want %+v", req.Answers, want)
			}
			return
		case <-timeout:
			t.Fatal("draft was not autosaved")
		}
	}
}

func TestResumeExpiresAfterRemainingSeconds(t *testing.T) {
	t.Parallel()

	gw := freshGateway(90)
	gw.session.IsResume = true
	h := newHarness(t, gw, nil)
	h.begin()

	if got := h.c.View().RemainingSeconds; got != 90 {
		t.Fatalf("remaining = %d, want 90", got)
	}

	h.time.Advance(89 * time.Second)
	h.tick()
	h.tick()
	if v := h.c.View(); v.State != StateInProgress || v.RemainingSeconds != 1 {
		t.Fatalf("at 89s: state = %s, remaining = %d", v.State, v.RemainingSeconds)
	}

	h.time.Advance(time.Second)
	h.tick()
	v := h.waitDone()
	if v.State != StateSubmitted {
		t.Fatalf("state = %s", v.State)
	}
	subs := gw.Submits()
	if len(subs) != 1 || !subs[0].Auto || subs[0].Reason != model.ReasonTimeExpired {
		t.Fatalf("submits = %+v", subs)
	}
}

// ─── Violations ─────────────────────────────────────────────────────────────

func TestSignalsBeforeBeginAreIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, freshGateway(600), nil)
	h.signal("window lost focus")
	if v := h.c.View(); v.WarningCount != 0 || v.State != StateIdle {
		t.Fatalf("before begin: warnings = %d, state = %s", v.WarningCount, v.State)
	}

	// Same instant: an emission before begin would debounce this one.
	h.begin()
	h.signal("window lost focus")
	if v := h.c.View(); v.WarningCount != 1 || v.State != StateAwaitingWarningAck {
		t.Fatalf("after begin: warnings = %d, state = %s", v.WarningCount, v.State)
	}
}

func TestHoldDetectionSuppressesSignals(t *testing.T) {
	t.Parallel()

	h := newHarness(t, freshGateway(600), nil)
	h.begin()

	release := h.c.HoldDetection()
	h.signal("window lost focus")
	if v := h.c.View(); v.WarningCount != 0 || v.State != StateInProgress {
		t.Fatalf("while held: warnings = %d, state = %s", v.WarningCount, v.State)
	}

	release()
	release()
	h.signal("window lost focus")
	if v := h.c.View(); v.WarningCount != 1 || v.State != StateAwaitingWarningAck {
		t.Fatalf("after release: warnings = %d, state = %s", v.WarningCount, v.State)
	}
}

func TestWarningSuspendsDetectionUntilAcknowledged(t *testing.T) {
	t.Parallel()

	h := newHarness(t, freshGateway(600), nil)
	h.begin()

	h.signal("window lost focus")
	v := h.c.View()
	if v.State != StateAwaitingWarningAck || v.Warning == nil {
		t.Fatalf("state = %s, warning = %v", v.State, v.Warning)
	}
	if v.Warning.Count != 1 || v.Warning.Limit != 3 || v.Warning.Reason != "window lost focus" {
		t.Fatalf("warning = %+v", *v.Warning)
	}

	// Answers still land while the notice is up.
	h.answer("q1", "a")

	h.time.Advance(10 * time.Second)
	h.signal("app or tab switched")
	if got := h.c.View().WarningCount; got != 1 {
		t.Fatalf("count while suspended = %d, want 1", got)
	}

	h.ack()
	if v := h.c.View(); v.State != StateInProgress || v.Warning != nil {
		t.Fatalf("after ack: state = %s, warning = %v", v.State, v.Warning)
	}
	if err := h.c.AcknowledgeWarning(); !errors.Is(err, ErrNoWarning) {
		t.Fatalf("second ack = %v", err)
	}

	h.time.Advance(10 * time.Second)
	h.signal("app or tab switched")
	if got := h.c.View().WarningCount; got != 2 {
		t.Fatalf("count after ack = %d, want 2", got)
	}
}

func TestDebouncedSignalsCountOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, freshGateway(600), nil)
	h.begin()

	h.signal("window lost focus")
	h.ack()
	h.time.Advance(time.Second)
	h.signal("app or tab switched")

	if got := h.c.View().WarningCount; got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
}

// ─── Submission ─────────────────────────────────────────────────────────────

func TestConcurrentTerminalTriggersSubmitOnce(t *testing.T) {
	t.Parallel()

	gw := freshGateway(600)
	gw.gate = make(chan struct{})
	h := newHarness(t, gw, nil)
	h.begin()
	h.answer("q1", "a")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); _ = h.c.Submit() }()
		go func() { defer wg.Done(); h.c.onExpired() }()
		go func() { defer wg.Done(); h.c.onSuspicious("window lost focus") }()
	}
	wg.Wait()

	if v := h.c.View(); v.State != StateSubmitting {
		t.Fatalf("state = %s, want submitting", v.State)
	}
	close(gw.gate)
	h.waitDone()

	if err := h.c.Submit(); err != nil {
		t.Fatalf("submit after submitted = %v", err)
	}
	h.c.onExpired()
	if subs := gw.Submits(); len(subs) != 1 {
		t.Fatalf("submit calls = %d, want 1", len(subs))
	}
}

func TestSubmitRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	gw := freshGateway(600)
	gw.submitErrs = []error{errNetwork, errNetwork}
	st := store.NewMemory()
	h := newHarness(t, gw, st)
	h.begin()
	h.answer("q3", "final answer")

	if err := h.c.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	v := h.waitDone()
	if v.State != StateSubmitted || v.Result == nil || v.Auto {
		t.Fatalf("state = %s, result = %v, auto = %v", v.State, v.Result, v.Auto)
	}
	if v.Transient != "" {
		t.Fatalf("transient banner left behind: %q", v.Transient)
	}

	subs := gw.Submits()
	if len(subs) != 3 {
		t.Fatalf("submit calls = %d, want 3", len(subs))
	}
	for _, s := range subs {
		if s.AttemptID != "att-1" || len(s.Answers) != 1 || s.Auto || s.Reason != "" {
			t.Fatalf("retried payload changed: %+v", s)
		}
	}
	if _, err := st.Load(context.Background(), "att-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("store not cleared: %v", err)
	}
}

func TestSubmitAlreadyGradedEndsWithoutResult(t *testing.T) {
	t.Parallel()

	gw := freshGateway(600)
	gw.submitErrs = []error{gateway.ErrAlreadySubmitted}
	st := store.NewMemory()
	h := newHarness(t, gw, st)
	h.begin()
	h.answer("q1", "a")
	_ = h.c.Submit()

	v := h.waitDone()
	if v.State != StateSubmitted || v.Result != nil {
		t.Fatalf("state = %s, result = %v", v.State, v.Result)
	}
	if _, err := st.Load(context.Background(), "att-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("store not cleared: %v", err)
	}
}

func TestSubmitUnauthorizedAbortsAndKeepsDraft(t *testing.T) {
	t.Parallel()

	gw := freshGateway(600)
	gw.submitErrs = []error{gateway.ErrUnauthorized}
	st := store.NewMemory()
	h := newHarness(t, gw, st)
	h.begin()
	h.answer("q1", "a")
	_ = h.c.Submit()

	v := h.waitDone()
	if v.State != StateAborted || !errors.Is(v.Err, gateway.ErrUnauthorized) {
		t.Fatalf("state = %s, err = %v", v.State, v.Err)
	}
	if _, err := st.Load(context.Background(), "att-1"); err != nil {
		t.Fatalf("draft should survive an aborted submit: %v", err)
	}
}

func TestCloseAbandonsSubmitInFlight(t *testing.T) {
	t.Parallel()

	gw := freshGateway(600)
	gw.gate = make(chan struct{})
	h := newHarness(t, gw, nil)
	h.begin()
	_ = h.c.Submit()

	h.c.Close()
	eventually(t, func() bool { return h.c.View().Err != nil })
	if v := h.c.View(); v.State != StateSubmitting {
		t.Fatalf("state = %s, want submitting", v.State)
	}
}

func TestSubmittedIgnoresFurtherEvents(t *testing.T) {
	t.Parallel()

	gw := freshGateway(600)
	h := newHarness(t, gw, nil)
	h.begin()
	h.answer("q1", "a")
	_ = h.c.Submit()
	h.waitDone()

	if err := h.c.Answer("q2", "b"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("answer after submit = %v", err)
	}
	if err := h.c.GoTo(1); !errors.Is(err, ErrNotActive) {
		t.Fatalf("goto after submit = %v", err)
	}
	h.time.Advance(time.Hour)
	h.signal("window lost focus")
	h.c.onExpired()

	v := h.c.View()
	if v.WarningCount != 0 || v.RemainingSeconds != 0 || len(gw.Submits()) != 1 {
		t.Fatalf("terminal state changed: %+v", v)
	}
}

// ─── Scenarios ──────────────────────────────────────────────────────────────

func TestScenarioTwoWarningsThenTimeout(t *testing.T) {
	t.Parallel()

	gw := freshGateway(600)
	st := store.NewMemory()
	h := newHarness(t, gw, st)
	h.begin()

	h.answer("q1", "a")
	h.answer("q3", "photosynthesis")

	h.time.Advance(30 * time.Second)
	h.signal("window lost focus")
	h.ack()

	h.time.Advance(4 * time.Second)
	h.signal("app or tab switched")
	h.ack()

	h.time.Advance(600 * time.Second)
	h.tick()

	v := h.waitDone()
	if v.State != StateSubmitted || v.WarningCount != 2 || !v.Auto {
		t.Fatalf("view = %+v", v)
	}
	subs := gw.Submits()
	if len(subs) != 1 {
		t.Fatalf("submit calls = %d, want 1", len(subs))
	}
	got := subs[0]
	if !got.Auto || got.Reason != model.ReasonTimeExpired {
		t.Fatalf("auto = %v, reason = %q", got.Auto, got.Reason)
	}
	want := []model.Answer{{QuestionID: "q1", Value: "a"}, {QuestionID: "q3", Value: "photosynthesis"}}
	if len(got.Answers) != len(want) {
		t.Fatalf("answers = %+v", got.Answers)
	}
	for i := range want {
		if got.Answers[i] != want[i] {
			t.Fatalf("answer[%d] = %+v, want %+v", i, got.Answers[i], want[i])
		}
	}
	if _, err := st.Load(context.Background(), "att-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("store not cleared: %v", err)
	}
}

func TestScenarioThirdViolationBeforeAnyAnswer(t *testing.T) {
	t.Parallel()

	gw := freshGateway(600)
	h := newHarness(t, gw, nil)
	h.begin()

	h.signal("window lost focus")
	h.ack()
	h.time.Advance(4 * time.Second)
	h.signal("window lost focus")
	h.ack()
	h.time.Advance(4 * time.Second)
	h.signal("app or tab switched")

	v := h.waitDone()
	if v.State != StateSubmitted || v.WarningCount != 3 {
		t.Fatalf("state = %s, warnings = %d", v.State, v.WarningCount)
	}
	if v.BlockedReason != "app or tab switched" {
		t.Fatalf("blocked reason = %q", v.BlockedReason)
	}

	subs := gw.Submits()
	if len(subs) != 1 {
		t.Fatalf("submit calls = %d, want 1", len(subs))
	}
	if subs[0].Answers == nil || len(subs[0].Answers) != 0 {
		t.Fatalf("answers = %#v, want empty list", subs[0].Answers)
	}
	if !subs[0].Auto || subs[0].Reason != "app or tab switched" {
		t.Fatalf("auto = %v, reason = %q", subs[0].Auto, subs[0].Reason)
	}

	h.time.Advance(10 * time.Second)
	h.c.onSuspicious("window lost focus")
	if got := h.c.View().WarningCount; got != 3 {
		t.Fatalf("count after exceeded = %d, want 3", got)
	}
}

func assertDraft(t *testing.T, got map[string]string, want model.AnswerDraft) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("draft = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("draft[%s] = %q, want %q", k, got[k], v)
		}
	}
}
