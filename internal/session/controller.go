// Package session runs one proctored attempt: it owns the answer draft, the
// countdown, the strike count and the single authoritative submission.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stemsi/exstem-proctor/internal/clock"
	"github.com/stemsi/exstem-proctor/internal/gateway"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/monitor"
	"github.com/stemsi/exstem-proctor/internal/store"
	"github.com/stemsi/exstem-proctor/internal/strike"
	"github.com/stemsi/exstem-proctor/internal/violation"
)

const (
	storeTimeout    = 2 * time.Second
	reportTimeout   = 3 * time.Second
	autosaveTimeout = 5 * time.Second
)

// Config holds the per-attempt settings of a Controller.
type Config struct {
	QuizID            string
	ViolationDebounce time.Duration
	StrikeLimit       int
	StartRetry        gateway.RetryPolicy
	SubmitRetry       gateway.RetryPolicy
	Now               func() time.Time
	ClockOptions      []clock.Option
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithReporter forwards violations and submissions to a live monitor.
func WithReporter(r monitor.Reporter) Option {
	return func(c *Controller) { c.reporter = r }
}

// Controller is the attempt state machine. Every transition runs under mu;
// the clock goroutine, detector callbacks and the submit goroutine re-enter
// through methods that check the state first. Gateway and store I/O happen
// outside the lock.
type Controller struct {
	cfg       Config
	gw        gateway.Gateway
	autosaver gateway.Autosaver
	store     store.Store
	reporter  monitor.Reporter
	log       zerolog.Logger
	now       func() time.Time

	clock    *clock.Clock
	detector *violation.Detector
	idleHold func()
	policy   *strike.Policy

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	attemptID     string
	questions     model.QuestionSet
	deadline      time.Time
	draft         model.AnswerDraft
	index         int
	rev           uint64
	warning       *Warning
	release       func()
	auto          bool
	blockedReason string
	result        *model.SubmissionResult
	transient     string
	err           error
	done          chan struct{}
	updates       chan struct{}
	dirty         chan struct{}

	persistMu    sync.Mutex
	persistedRev uint64
	cleared      bool
}

// New creates an idle controller for cfg.QuizID.
func New(gw gateway.Gateway, st store.Store, cfg Config, opts ...Option) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ViolationDebounce <= 0 {
		cfg.ViolationDebounce = violation.DefaultDebounce
	}
	if cfg.StrikeLimit <= 0 {
		cfg.StrikeLimit = strike.DefaultLimit
	}
	if cfg.SubmitRetry.InitialInterval <= 0 {
		cfg.SubmitRetry = gateway.DefaultRetryPolicy
	}
	if cfg.StartRetry.InitialInterval <= 0 {
		cfg.StartRetry = gateway.DefaultRetryPolicy
		cfg.StartRetry.MaxTries = 3
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:      cfg,
		gw:       gw,
		store:    st,
		reporter: monitor.Nop{},
		log:      log.Logger,
		now:      cfg.Now,
		policy:   strike.NewPolicy(cfg.StrikeLimit),
		ctx:      ctx,
		cancel:   cancel,
		state:    StateIdle,
		draft:    model.AnswerDraft{},
		done:     make(chan struct{}),
		updates:  make(chan struct{}, 1),
		dirty:    make(chan struct{}, 1),
	}
	if a, ok := gw.(gateway.Autosaver); ok {
		c.autosaver = a
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "session").Str("quiz_id", cfg.QuizID).Logger()

	clockOpts := append([]clock.Option{clock.WithNow(c.now)}, cfg.ClockOptions...)
	c.clock = clock.New(c.onTick, c.onExpired, clockOpts...)
	c.detector = violation.NewDetector(cfg.ViolationDebounce, c.onSuspicious,
		violation.WithNow(c.now),
		violation.WithLogger(c.log),
	)
	// Detection stays suspended until the attempt is in progress.
	c.idleHold = c.detector.Suspend()
	return c
}

// Signals returns the sink host adapters report focus and visibility changes to.
func (c *Controller) Signals() violation.HostSignal {
	return c.detector
}

// Watch feeds src into the violation detector until ctx ends or the controller closes.
func (c *Controller) Watch(ctx context.Context, src violation.Source) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()
	return src.Run(ctx, c.detector)
}

// HoldDetection suspends violation detection while the presentation performs
// an internal transition such as a confirmation dialog. Call the returned
// func when the transition ends.
func (c *Controller) HoldDetection() (release func()) {
	return c.detector.Suspend()
}

// Updates delivers a coalesced notification after every state change.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

// Done is closed once the controller reaches a terminal state.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Close stops the countdown, disarms detection and cancels in-flight gateway
// retries. The state is left as is.
func (c *Controller) Close() {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock.Stop()
	c.detector.Disarm()
}

// ─── Start ──────────────────────────────────────────────────────────────────

// Begin starts or resumes the attempt. Transient gateway failures are retried
// up to the configured count, after which the controller returns to Idle and
// Begin may be called again. An attempt the server already graded is not an error.
func (c *Controller) Begin(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StateStarting
	c.err = nil
	c.notifyLocked()
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	sess, err := gateway.Retry(ctx, c.cfg.StartRetry,
		func(ctx context.Context) (*model.AttemptSession, error) {
			return c.gw.StartOrResume(ctx, c.cfg.QuizID)
		},
		func(err error, next time.Duration) {
			c.log.Warn().Err(err).Dur("retry_in", next).Msg("Start attempt failed, retrying")
			c.setTransient(fmt.Sprintf("Koneksi terputus, mencoba lagi dalam %s", next.Round(time.Second)))
		},
	)
	if err != nil {
		return c.failStart(err)
	}

	draft, index := c.restoreDraft(sess)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		c.state = StateIdle
		c.notifyLocked()
		return ErrClosed
	}
	now := c.now()
	c.attemptID = sess.AttemptID
	c.questions = sess.Questions
	c.draft = draft
	c.index = index
	c.deadline = now.Add(time.Duration(sess.Seconds) * time.Second)
	c.transient = ""
	c.state = StateInProgress
	c.idleHold()
	c.clock.Start(c.deadline)
	c.notifyLocked()
	metrics.ActiveAttempts.Inc()
	if c.autosaver != nil {
		go c.autosaveLoop()
	}

	c.log.Info().
		Str("attempt_id", sess.AttemptID).
		Bool("resume", sess.IsResume).
		Int("seconds", sess.Seconds).
		Int("restored_answers", len(draft)).
		Msg("Attempt in progress")
	return nil
}

func (c *Controller) failStart(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transient = ""
	defer c.notifyLocked()

	switch {
	case errors.Is(err, gateway.ErrAlreadySubmitted):
		c.state = StateAlreadySubmitted
		c.closeDoneLocked()
		c.log.Info().Msg("Attempt already submitted")
		return nil
	case gateway.IsFatal(err):
		c.state = StateAborted
		c.err = err
		c.closeDoneLocked()
		c.log.Error().Err(err).Msg("Start attempt rejected")
		return fmt.Errorf("start attempt: %w", err)
	case c.ctx.Err() != nil:
		c.state = StateIdle
		return ErrClosed
	default:
		c.state = StateIdle
		c.err = err
		c.log.Error().Err(err).Msg("Start attempt failed")
		return fmt.Errorf("start attempt: %w", err)
	}
}

// restoreDraft prefers the local snapshot and falls back to the server's
// autosave. Answers to questions no longer in the set are dropped.
func (c *Controller) restoreDraft(sess *model.AttemptSession) (model.AnswerDraft, int) {
	draft := model.AnswerDraft{}
	if !sess.IsResume {
		return draft, 0
	}

	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	defer cancel()
	snap, err := c.store.Load(ctx, sess.AttemptID)
	switch {
	case err == nil:
		for qid, v := range snap.Answers {
			if sess.Questions.Contains(qid) {
				draft[qid] = v
			}
		}
		index := snap.CurrentQuestionIndex
		if index < 0 || index >= len(sess.Questions) {
			index = 0
		}
		return draft, index
	case errors.Is(err, store.ErrNotFound):
	default:
		metrics.StoreFailures.WithLabelValues("load").Inc()
		c.log.Warn().Err(err).Str("attempt_id", sess.AttemptID).Msg("Failed to load attempt snapshot")
	}

	for qid, v := range sess.AutosavedAnswers {
		if sess.Questions.Contains(qid) {
			draft[qid] = v
		}
	}
	return draft, 0
}

// ─── Commands ───────────────────────────────────────────────────────────────

// Answer records value for questionID. An empty value clears the answer.
func (c *Controller) Answer(questionID, value string) error {
	c.mu.Lock()
	if !c.state.Active() {
		c.mu.Unlock()
		return ErrNotActive
	}
	q, ok := c.questions.Find(questionID)
	if !ok {
		c.mu.Unlock()
		return ErrUnknownQuestion
	}
	if value != "" && q.QuestionType == model.QuestionTypeSingleChoice && !q.HasOption(value) {
		c.mu.Unlock()
		return ErrInvalidOption
	}
	if value == "" {
		delete(c.draft, questionID)
	} else {
		c.draft[questionID] = value
	}
	rev, attemptID, snap := c.snapshotLocked()
	c.notifyLocked()
	c.mu.Unlock()

	c.persist(rev, attemptID, snap)
	c.markDirty()
	return nil
}

// GoTo records the question the student is looking at.
func (c *Controller) GoTo(index int) error {
	c.mu.Lock()
	if !c.state.Active() {
		c.mu.Unlock()
		return ErrNotActive
	}
	if index < 0 || index >= len(c.questions) {
		c.mu.Unlock()
		return ErrInvalidIndex
	}
	c.index = index
	rev, attemptID, snap := c.snapshotLocked()
	c.notifyLocked()
	c.mu.Unlock()

	c.persist(rev, attemptID, snap)
	return nil
}

// AcknowledgeWarning dismisses the pending strike notice and resumes detection.
func (c *Controller) AcknowledgeWarning() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAwaitingWarningAck {
		return ErrNoWarning
	}
	c.warning = nil
	c.state = StateInProgress
	c.releaseHoldLocked()
	c.notifyLocked()
	return nil
}

// Submit hands the attempt in voluntarily. Calling it while a submission is
// already under way is a no-op.
func (c *Controller) Submit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateBlocked, StateSubmitting, StateSubmitted:
		return nil
	}
	if !c.state.Active() {
		return ErrNotActive
	}
	c.beginSubmitLocked(false, "", TriggerManual)
	return nil
}

// View returns a snapshot of the controller for presentation.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:                c.state,
		Status:               c.state.Status(),
		AttemptID:            c.attemptID,
		QuizID:               c.cfg.QuizID,
		Questions:            c.questions,
		Deadline:             c.deadline,
		WarningCount:         c.policy.Count(),
		StrikeLimit:          c.policy.Limit(),
		Violations:           c.policy.Records(),
		Answers:              c.draft.Clone(),
		CurrentQuestionIndex: c.index,
		Auto:                 c.auto,
		BlockedReason:        c.blockedReason,
		Result:               c.result,
		Transient:            c.transient,
		Err:                  c.err,
	}
	if c.state.Active() {
		v.RemainingSeconds = clock.Remaining(c.deadline, c.now())
	}
	if c.warning != nil {
		w := *c.warning
		v.Warning = &w
	}
	return v
}

// ─── Collaborator callbacks ─────────────────────────────────────────────────

func (c *Controller) onTick(int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Active() {
		c.notifyLocked()
	}
}

func (c *Controller) onExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Active() {
		return
	}
	c.log.Info().Str("attempt_id", c.attemptID).Msg("Time expired, submitting")
	c.beginSubmitLocked(true, model.ReasonTimeExpired, TriggerTimeout)
}

func (c *Controller) onSuspicious(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInProgress {
		return
	}

	now := c.now()
	outcome, count := c.policy.Record(reason, now)
	metrics.ViolationsTotal.WithLabelValues(outcome.String()).Inc()
	c.report(monitor.Event{
		Type:         monitor.EventViolation,
		AttemptID:    c.attemptID,
		QuizID:       c.cfg.QuizID,
		Reason:       reason,
		WarningCount: count,
		Timestamp:    now.Unix(),
	})

	switch outcome {
	case strike.Warned:
		c.log.Warn().Str("attempt_id", c.attemptID).Str("reason", reason).Int("count", count).Msg("Violation warning")
		c.warning = &Warning{Count: count, Limit: c.policy.Limit(), Reason: reason, At: now}
		c.state = StateAwaitingWarningAck
		c.release = c.detector.Suspend()
		c.notifyLocked()
	case strike.Exceeded:
		c.log.Warn().Str("attempt_id", c.attemptID).Str("reason", reason).Int("count", count).Msg("Strike limit exceeded, blocking attempt")
		c.state = StateBlocked
		c.blockedReason = reason
		c.notifyLocked()
		c.beginSubmitLocked(true, reason, TriggerViolation)
	}
}

// ─── Submission ─────────────────────────────────────────────────────────────

// beginSubmitLocked moves to Submitting exactly once per attempt.
func (c *Controller) beginSubmitLocked(auto bool, reason string, trigger Trigger) {
	switch c.state {
	case StateInProgress, StateAwaitingWarningAck, StateBlocked:
	default:
		return
	}

	c.state = StateSubmitting
	c.auto = auto
	if reason != "" {
		c.blockedReason = reason
	}
	c.warning = nil
	c.clock.Stop()
	c.releaseHoldLocked()
	c.detector.Disarm()
	metrics.ActiveAttempts.Dec()

	req := model.SubmitRequest{
		AttemptID: c.attemptID,
		Answers:   c.answersLocked(),
		Auto:      auto,
		Reason:    reason,
	}
	c.notifyLocked()
	go c.submit(req, trigger)
}

func (c *Controller) submit(req model.SubmitRequest, trigger Trigger) {
	started := time.Now()
	res, err := gateway.Retry(c.ctx, c.cfg.SubmitRetry,
		func(ctx context.Context) (*model.SubmissionResult, error) {
			metrics.SubmitCalls.Inc()
			return c.gw.Submit(ctx, req)
		},
		func(err error, next time.Duration) {
			c.log.Warn().Err(err).Str("attempt_id", req.AttemptID).Dur("retry_in", next).Msg("Submit failed, retrying")
			c.setTransient(fmt.Sprintf("Gagal mengirim jawaban, mencoba lagi dalam %s", next.Round(time.Second)))
		},
	)
	metrics.SubmitDuration.Observe(time.Since(started).Seconds())

	graded := err == nil || errors.Is(err, gateway.ErrAlreadySubmitted)
	if graded {
		c.clearStore(req.AttemptID)
	}

	c.mu.Lock()
	if c.state != StateSubmitting {
		c.mu.Unlock()
		return
	}
	c.transient = ""
	result := "success"
	switch {
	case err == nil:
		c.result = res
		c.state = StateSubmitted
	case errors.Is(err, gateway.ErrAlreadySubmitted):
		result = "already_submitted"
		c.state = StateSubmitted
	case gateway.IsFatal(err):
		result = "rejected"
		c.state = StateAborted
		c.err = err
	default:
		// Only Close ends the retry loop without a verdict.
		c.err = err
		c.notifyLocked()
		c.mu.Unlock()
		c.log.Warn().Err(err).Str("attempt_id", req.AttemptID).Msg("Submit abandoned")
		return
	}
	state := c.state
	c.closeDoneLocked()
	c.notifyLocked()
	c.mu.Unlock()

	metrics.SubmissionsTotal.WithLabelValues(string(trigger), result).Inc()
	if state != StateSubmitted {
		c.log.Error().Err(err).Str("attempt_id", req.AttemptID).Msg("Submit rejected")
		return
	}

	c.report(monitor.Event{
		Type:         monitor.EventSubmitted,
		AttemptID:    req.AttemptID,
		QuizID:       c.cfg.QuizID,
		Reason:       req.Reason,
		WarningCount: c.warningCount(),
		Auto:         req.Auto,
		Timestamp:    c.now().Unix(),
	})
	c.log.Info().
		Str("attempt_id", req.AttemptID).
		Str("trigger", string(trigger)).
		Int("answers", len(req.Answers)).
		Msg("Attempt submitted")
}

// answersLocked lists the draft in question order.
func (c *Controller) answersLocked() []model.Answer {
	answers := make([]model.Answer, 0, len(c.draft))
	for _, q := range c.questions {
		if v, ok := c.draft[q.ID]; ok {
			answers = append(answers, model.Answer{QuestionID: q.ID, Value: v})
		}
	}
	return answers
}

// ─── Persistence ────────────────────────────────────────────────────────────

func (c *Controller) snapshotLocked() (uint64, string, store.Snapshot) {
	c.rev++
	return c.rev, c.attemptID, store.Snapshot{
		Answers:              c.draft.Clone(),
		CurrentQuestionIndex: c.index,
		SavedAt:              c.now(),
	}
}

// persist writes snap unless a newer revision already landed or the attempt
// was cleared. Failures are logged and otherwise ignored.
func (c *Controller) persist(rev uint64, attemptID string, snap store.Snapshot) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if c.cleared || rev <= c.persistedRev {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	defer cancel()
	if err := c.store.Save(ctx, attemptID, snap); err != nil {
		metrics.StoreFailures.WithLabelValues("save").Inc()
		c.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("Failed to save attempt snapshot")
		return
	}
	c.persistedRev = rev
}

func (c *Controller) markDirty() {
	if c.autosaver == nil {
		return
	}
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

// autosaveLoop mirrors the draft to the server after edits. Edits made while
// a save is in flight are folded into the next one. Failures are logged; the
// local snapshot still holds the draft.
func (c *Controller) autosaveLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.done:
			return
		case <-c.dirty:
		}

		c.mu.Lock()
		if !c.state.Active() {
			c.mu.Unlock()
			return
		}
		req := model.AutosaveRequest{AttemptID: c.attemptID, Answers: c.answersLocked()}
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(c.ctx, autosaveTimeout)
		err := c.autosaver.Autosave(ctx, req)
		cancel()
		if err != nil {
			metrics.AutosaveCalls.WithLabelValues("error").Inc()
			c.log.Debug().Err(err).Str("attempt_id", req.AttemptID).Msg("Autosave failed")
			continue
		}
		metrics.AutosaveCalls.WithLabelValues("ok").Inc()
	}
}

func (c *Controller) clearStore(attemptID string) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	c.cleared = true

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := c.store.Clear(ctx, attemptID); err != nil {
		metrics.StoreFailures.WithLabelValues("clear").Inc()
		c.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("Failed to clear attempt snapshot")
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (c *Controller) report(ev monitor.Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
		defer cancel()
		if err := c.reporter.Report(ctx, ev); err != nil {
			c.log.Debug().Err(err).Str("type", string(ev.Type)).Msg("Monitor report failed")
		}
	}()
}

func (c *Controller) warningCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy.Count()
}

func (c *Controller) setTransient(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transient = msg
	c.notifyLocked()
}

func (c *Controller) releaseHoldLocked() {
	if c.release != nil {
		c.release()
		c.release = nil
	}
}

func (c *Controller) closeDoneLocked() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *Controller) notifyLocked() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}
