// Package controller drives a task through the fixed phase sequence:
// Assessment, Planning, Execution, Evaluation, Synthesis.
//
// The controller is a finite-state machine over the variants in state.go.
// Assessment may park the run behind an InformationRequest; the run is then
// persisted as a continuation and picked up again by Resume, which restarts
// Assessment from the beginning with the answer appended to the context.
// Every other outcome ends in exactly one FinalAnswer.
package controller

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/agentflow/internal/evaluator"
	"github.com/harrison/agentflow/internal/executor"
	"github.com/harrison/agentflow/internal/metrics"
	"github.com/harrison/agentflow/internal/models"
	"github.com/harrison/agentflow/internal/provider"
	"github.com/harrison/agentflow/internal/validation"
)

// DefaultFinalizeTimeout bounds Evaluation and Synthesis after the task
// context has been cancelled.
const DefaultFinalizeTimeout = 30 * time.Second

// maxPlanningAttempts is the first attempt plus one re-plan with feedback.
const maxPlanningAttempts = 2

// Observer receives every event of every run. Implementations must be safe
// for concurrent use.
type Observer interface {
	LogEvent(event models.Event)
}

// RunRecord is the history entry written for every synthesized answer.
type RunRecord struct {
	TaskID     string
	Request    string
	Tier       string
	Judgement  string
	Framing    models.Framing
	Nodes      int
	Failed     int
	Duration   time.Duration
	FinishedAt time.Time
}

// RunRecorder persists run history.
type RunRecorder interface {
	RecordRun(ctx context.Context, rec RunRecord) error
}

// Config holds controller behavior settings.
type Config struct {
	MaxClarifications int               // Information requests per task before planning anyway (0 = unlimited)
	ConfirmTypes      []models.NodeType // Node types that need user confirmation before execution
	ProviderTimeout   time.Duration     // Per phase-level capability call (0 = none)
	FinalizeTimeout   time.Duration     // Evaluation+Synthesis budget after cancellation
	Scheduler         executor.Config
}

// Outcome is the result of Run or Resume: exactly one of Answer and
// Suspension is set.
type Outcome struct {
	Answer     *models.FinalAnswer
	Suspension *models.Suspension
}

// Suspended reports whether the run is parked.
func (o Outcome) Suspended() bool {
	return o.Suspension != nil
}

// Answer is the caller's reply to a suspension: Text for an information
// request, Confirm for a confirmation request.
type Answer struct {
	Text    string
	Confirm *bool
}

// Controller runs tasks. It is safe to use for many tasks concurrently; all
// per-task state lives in the run value and in continuations.
type Controller struct {
	providers *provider.Set
	config    Config
	evaluator *evaluator.Evaluator
	store     ContinuationStore
	observer  Observer
	schedObs  executor.Observer
	recorder  RunRecorder
	metrics   *metrics.Metrics
	newID     func() string
}

// Option configures a Controller.
type Option func(*Controller)

// WithStore sets the continuation store (default: in-memory).
func WithStore(s ContinuationStore) Option {
	return func(c *Controller) { c.store = s }
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithSchedulerObserver sets the observer handed to the scheduler.
func WithSchedulerObserver(o executor.Observer) Option {
	return func(c *Controller) { c.schedObs = o }
}

// WithRecorder sets the run history recorder.
func WithRecorder(r RunRecorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithIDGenerator overrides uuid generation for task ids, tokens and request ids.
func WithIDGenerator(f func() string) Option {
	return func(c *Controller) { c.newID = f }
}

// New creates a Controller over the given capability set.
func New(providers *provider.Set, cfg Config, opts ...Option) (*Controller, error) {
	if err := providers.Validate(); err != nil {
		return nil, err
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = DefaultFinalizeTimeout
	}
	c := &Controller{
		providers: providers,
		config:    cfg,
		store:     NewMemoryStore(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.evaluator = evaluator.New(providers.Evaluator, cfg.ProviderTimeout)
	c.evaluator.SetMetrics(c.metrics)
	return c, nil
}

// run is the per-invocation context of one drive through the state machine.
type run struct {
	task           *models.Task
	started        time.Time
	clarifications int
	guard          guard
	notes          []string
	events         chan<- models.Event
	eventsDone     <-chan struct{}
	phaseStart     time.Time
}

// Run drives a new task until it produces a FinalAnswer or parks behind a
// suspension. The returned error is non-nil only for an unusable task.
func (c *Controller) Run(ctx context.Context, task *models.Task) (Outcome, error) {
	if err := c.prepare(task); err != nil {
		return Outcome{}, err
	}
	r := &run{task: task, started: time.Now()}
	return c.drive(ctx, r, assessing{}), nil
}

// Stream is Run with every event also delivered on the returned channel. The
// channel is closed after the final or suspended event.
func (c *Controller) Stream(ctx context.Context, task *models.Task) (<-chan models.Event, error) {
	if err := c.prepare(task); err != nil {
		return nil, err
	}
	ch := make(chan models.Event, 64)
	go func() {
		defer close(ch)
		r := &run{task: task, started: time.Now(), events: ch, eventsDone: ctx.Done()}
		c.drive(ctx, r, assessing{})
	}()
	return ch, nil
}

// Resume continues a parked run. An information answer restarts Assessment
// from the beginning; a confirmation answer proceeds to Execution.
func (c *Controller) Resume(ctx context.Context, token string, answer Answer) (Outcome, error) {
	cont, err := c.store.Load(ctx, token)
	if err != nil {
		return Outcome{}, err
	}
	if cont.Task == nil {
		return Outcome{}, fmt.Errorf("continuation %s has no task", token)
	}

	var turn models.Turn
	switch cont.Kind {
	case models.SuspendedForInformation:
		if answer.Confirm != nil || strings.TrimSpace(answer.Text) == "" || cont.Information == nil {
			return Outcome{}, fmt.Errorf("%w: run %s is waiting for an answer to %q", ErrWrongResumeKind, token, cont.Suspension().Prompt())
		}
		turn = models.Turn{Role: models.RoleUser, Content: answer.Text, ReplyTo: cont.Information.ID}
	case models.SuspendedForConfirmation:
		if answer.Confirm == nil || cont.Confirmation == nil || cont.Plan == nil {
			return Outcome{}, fmt.Errorf("%w: run %s is waiting for a yes/no confirmation", ErrWrongResumeKind, token)
		}
		reply := "no"
		if *answer.Confirm {
			reply = "yes"
		}
		turn = models.Turn{Role: models.RoleUser, Content: reply, ReplyTo: cont.Confirmation.ID}
	default:
		return Outcome{}, fmt.Errorf("%w: unknown suspension kind %q", ErrWrongResumeKind, cont.Kind)
	}

	if err := c.store.Delete(ctx, token); err != nil {
		return Outcome{}, err
	}

	task := cont.Task
	if err := task.Append(turn); err != nil {
		return Outcome{}, err
	}

	r := &run{task: task, started: cont.StartedAt, clarifications: cont.Clarifications}
	if r.started.IsZero() {
		r.started = time.Now()
	}

	if cont.Kind == models.SuspendedForInformation {
		if !task.HasAnswer(cont.Information.ID, cont.Information.TargetTurn) {
			return Outcome{}, fmt.Errorf("answer to %s was not recorded", cont.Information.ID)
		}
		return c.drive(ctx, r, assessing{}), nil
	}

	next := executing{plan: cont.Plan, rejected: make(map[models.NodeID]bool)}
	if cont.Classification != nil {
		next.classification = *cont.Classification
	}
	if cont.Feasibility != nil {
		next.feasibility = *cont.Feasibility
	}
	if !*answer.Confirm {
		for _, id := range cont.Confirmation.Nodes {
			next.rejected[id] = true
		}
		r.notes = append(r.notes, fmt.Sprintf("user declined %d node(s) requiring confirmation", len(cont.Confirmation.Nodes)))
	}
	return c.drive(ctx, r, next), nil
}

func (c *Controller) prepare(task *models.Task) error {
	if task == nil {
		return fmt.Errorf("task is nil")
	}
	if task.ID == "" {
		task.ID = c.newID()
	}
	if err := task.Validate(); err != nil {
		return err
	}
	if task.IsSealed() {
		return models.ErrTaskSealed
	}
	return nil
}

// drive steps the state machine until a terminal variant is reached.
func (c *Controller) drive(ctx context.Context, r *run, st state) Outcome {
	for {
		switch s := st.(type) {
		case assessing:
			st = c.assess(ctx, r)
		case planning:
			st = c.plan(ctx, r, s)
		case executing:
			st = c.execute(ctx, r, s)
		case evaluating:
			st = c.evaluate(ctx, r, s)
		case synthesizing:
			st = c.synthesize(ctx, r, s)
		case suspended:
			return Outcome{Suspension: s.suspension}
		case done:
			return Outcome{Answer: s.answer}
		default:
			panic(fmt.Sprintf("controller: unknown state %T", st))
		}
	}
}

func (c *Controller) assess(ctx context.Context, r *run) state {
	c.enter(r, models.PhaseAssessment)

	var classification models.Classification
	err := c.invoke(ctx, r, provider.CapClassify, func(ctx context.Context) error {
		var err error
		classification, err = c.providers.Classifier.Classify(ctx, r.task.Request)
		return err
	})
	if err != nil {
		return c.assessmentFailed(ctx, r, "classification", err, nil)
	}
	c.emit(r, models.PhaseAssessment, models.EventArtifact, &classification, "classified as "+classification.Tier.String())

	var verdict models.FeasibilityVerdict
	err = c.invoke(ctx, r, provider.CapFeasibility, func(ctx context.Context) error {
		var err error
		verdict, err = c.providers.Feasibility.AssessFeasibility(ctx, r.task.Request, r.task.History())
		return err
	})
	if err != nil {
		return c.assessmentFailed(ctx, r, "feasibility", err, &classification)
	}
	c.emit(r, models.PhaseAssessment, models.EventArtifact, &verdict, fmt.Sprintf("feasible=%t", verdict.Possible))

	if !verdict.Possible {
		c.complete(r, models.PhaseAssessment, &verdict)
		return synthesizing{framing: models.FramingNotPossible, classification: &classification, feasibility: &verdict}
	}

	question := ""
	if verdict.NeedsInformation() {
		question = strings.TrimSpace(verdict.MissingInformation)
	} else if c.providers.Completeness != nil {
		err := c.invoke(ctx, r, provider.CapCompleteness, func(ctx context.Context) error {
			var err error
			question, err = c.providers.Completeness.CheckCompleteness(ctx, r.task.Request, r.task.History())
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return c.cancelled(r, &classification, &verdict, nil, nil)
			}
			c.warn(r, models.PhaseAssessment, "completeness check failed, continuing with current context: %v", err)
			question = ""
		}
		question = strings.TrimSpace(question)
	}

	if question != "" {
		if c.config.MaxClarifications > 0 && r.clarifications >= c.config.MaxClarifications {
			c.warn(r, models.PhaseAssessment, "clarification limit (%d) reached, planning with current context", c.config.MaxClarifications)
			r.notes = append(r.notes, "planned without an answer to: "+question)
		} else {
			return c.suspendForInformation(ctx, r, classification, verdict, question)
		}
	}

	c.complete(r, models.PhaseAssessment, &verdict)
	return planning{classification: classification, feasibility: verdict}
}

// assessmentFailed treats a failed phase-level call as a failure of an
// implicit assessment node and short-circuits to Synthesis.
func (c *Controller) assessmentFailed(ctx context.Context, r *run, step string, err error, classification *models.Classification) state {
	if ctx.Err() != nil {
		return c.cancelled(r, classification, nil, nil, nil)
	}
	c.warn(r, models.PhaseAssessment, "%s provider failed: %v", step, err)
	return synthesizing{
		framing:        models.FramingAssessmentFailed,
		classification: classification,
		notes:          []string{fmt.Sprintf("%s failed: %v", step, err)},
	}
}

func (c *Controller) suspendForInformation(ctx context.Context, r *run, classification models.Classification, verdict models.FeasibilityVerdict, question string) state {
	if err := r.task.Append(models.Turn{Role: models.RoleAssistant, Content: question}); err != nil {
		return c.parkFailed(r, models.PhaseAssessment, err, &classification, &verdict, nil)
	}
	req := &models.InformationRequest{
		ID:         c.newID(),
		Question:   question,
		TargetTurn: len(r.task.History()),
	}
	cont := &Continuation{
		Kind:           models.SuspendedForInformation,
		Phase:          models.PhaseAssessment,
		Task:           r.task,
		Classification: &classification,
		Feasibility:    &verdict,
		Information:    req,
		Clarifications: r.clarifications + 1,
	}
	return c.park(ctx, r, cont)
}

func (c *Controller) suspendForConfirmation(ctx context.Context, r *run, s planning, plan *models.Plan, gated []models.NodeID) state {
	labels := make([]string, 0, len(gated))
	for _, id := range gated {
		if n, ok := plan.Node(id); ok {
			labels = append(labels, fmt.Sprintf("%s (%s)", n.Label(), n.Purpose))
		}
	}
	prompt := fmt.Sprintf("The plan includes %d step(s) that need your confirmation: %s. Proceed?", len(gated), strings.Join(labels, "; "))
	if err := r.task.Append(models.Turn{Role: models.RoleAssistant, Content: prompt}); err != nil {
		return c.parkFailed(r, models.PhasePlanning, err, &s.classification, &s.feasibility, plan)
	}
	cont := &Continuation{
		Kind:           models.SuspendedForConfirmation,
		Phase:          models.PhasePlanning,
		Task:           r.task,
		Classification: &s.classification,
		Feasibility:    &s.feasibility,
		Plan:           plan,
		Confirmation:   &models.ConfirmationRequest{ID: c.newID(), Prompt: prompt, Nodes: gated},
		Clarifications: r.clarifications,
	}
	return c.park(ctx, r, cont)
}

// park persists the continuation and returns the suspended state. If the
// store fails the run cannot be parked and goes to Synthesis instead.
func (c *Controller) park(ctx context.Context, r *run, cont *Continuation) state {
	cont.Token = c.newID()
	cont.StartedAt = r.started
	cont.CreatedAt = time.Now()
	if err := c.store.Save(context.WithoutCancel(ctx), cont); err != nil {
		return c.parkFailed(r, cont.Phase, err, cont.Classification, cont.Feasibility, cont.Plan)
	}

	s := cont.Suspension()
	c.metrics.Suspended(s.Kind)
	c.emit(r, cont.Phase, models.EventSuspended, s, s.Prompt())
	return suspended{suspension: s, at: cont.Phase}
}

func (c *Controller) parkFailed(r *run, phase models.Phase, err error, classification *models.Classification, verdict *models.FeasibilityVerdict, plan *models.Plan) state {
	c.warn(r, phase, "could not park run: %v", err)
	framing := models.FramingAssessmentFailed
	if phase == models.PhasePlanning {
		framing = models.FramingPlanningFailed
	}
	return synthesizing{
		framing:        framing,
		classification: classification,
		feasibility:    verdict,
		plan:           plan,
		notes:          []string{fmt.Sprintf("could not wait for user input: %v", err)},
	}
}

func (c *Controller) plan(ctx context.Context, r *run, s planning) state {
	c.enter(r, models.PhasePlanning)

	var feedback []string
	for attempt := 1; attempt <= maxPlanningAttempts; attempt++ {
		var plan *models.Plan
		err := c.invoke(ctx, r, provider.CapPlan, func(ctx context.Context) error {
			var err error
			plan, err = c.providers.Planner.Plan(ctx, provider.PlanRequest{
				Query:          r.task.Request,
				Classification: s.classification,
				Context:        r.task.History(),
				Feedback:       feedback,
			})
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return c.cancelled(r, &s.classification, &s.feasibility, nil, nil)
			}
			c.metrics.PlanRejected()
			c.warn(r, models.PhasePlanning, "planning attempt %d failed: %v", attempt, err)
			feedback = []string{fmt.Sprintf("the previous planning attempt failed: %v", err)}
			continue
		}
		if plan == nil {
			plan = &models.Plan{}
		}
		plan = plan.Clone()
		plan.Normalize()
		if plan.Task == "" {
			plan.Task = r.task.Request
		}

		result := validation.ValidatePlan(plan)
		for _, w := range result.Warnings {
			c.warn(r, models.PhasePlanning, "plan warning: %s", w.Error())
		}
		if result.OK() {
			c.metrics.PlanAccepted(len(plan.Nodes))
			c.complete(r, models.PhasePlanning, plan)
			if gated := c.gatedNodes(plan); len(gated) > 0 {
				return c.suspendForConfirmation(ctx, r, s, plan, gated)
			}
			return executing{classification: s.classification, feasibility: s.feasibility, plan: plan}
		}

		c.metrics.PlanRejected()
		c.warn(r, models.PhasePlanning, "planning attempt %d rejected: %v", attempt, result.Err())
		feedback = result.Messages()
	}

	return synthesizing{
		framing:        models.FramingPlanningFailed,
		classification: &s.classification,
		feasibility:    &s.feasibility,
		notes:          append([]string{"no valid plan after retry"}, feedback...),
	}
}

func (c *Controller) gatedNodes(plan *models.Plan) []models.NodeID {
	if len(c.config.ConfirmTypes) == 0 {
		return nil
	}
	var gated []models.NodeID
	for _, n := range plan.Nodes {
		for _, t := range c.config.ConfirmTypes {
			if n.Type == t {
				gated = append(gated, n.ID)
				break
			}
		}
	}
	return gated
}

func (c *Controller) execute(ctx context.Context, r *run, s executing) state {
	c.enter(r, models.PhaseExecution)

	inner := c.providers.NodeExecutors(provider.NodeInput{Documents: r.task.Documents, History: r.task.History()})
	execs := make(map[models.NodeType]executor.NodeExecutor, len(models.NodeTypes))
	for _, t := range models.NodeTypes {
		execs[t] = guardedNode{
			inner:    inner[t],
			guard:    &r.guard,
			rejected: s.rejected,
			warn:     func(format string, args ...any) { c.warn(r, models.PhaseExecution, format, args...) },
		}
	}

	sched := executor.NewScheduler(execs, c.config.Scheduler, &groupEmitter{c: c, r: r, next: c.schedObs})
	sched.SetMetrics(c.metrics)
	results := sched.Execute(ctx, s.plan)

	c.complete(r, models.PhaseExecution, results)
	return evaluating{classification: s.classification, feasibility: s.feasibility, plan: s.plan, results: results}
}

func (c *Controller) evaluate(ctx context.Context, r *run, s evaluating) state {
	c.enter(r, models.PhaseEvaluation)

	fctx, cancel := c.finalizeContext(ctx)
	defer cancel()

	verdict := c.evaluator.Evaluate(fctx, s.results, r.task)
	c.metrics.Verdict(verdict.Judgement)
	c.complete(r, models.PhaseEvaluation, &verdict)

	framing := models.FramingAnswer
	if s.results.Cancelled() || ctx.Err() != nil {
		framing = models.FramingCancelled
	}
	return synthesizing{
		framing:        framing,
		classification: &s.classification,
		feasibility:    &s.feasibility,
		plan:           s.plan,
		results:        s.results,
		verdict:        &verdict,
	}
}

// cancelled routes a run cancelled before Execution straight to Synthesis.
func (c *Controller) cancelled(r *run, classification *models.Classification, verdict *models.FeasibilityVerdict, plan *models.Plan, results *models.AggregatedResults) state {
	return synthesizing{
		framing:        models.FramingCancelled,
		classification: classification,
		feasibility:    verdict,
		plan:           plan,
		results:        results,
		notes:          []string{"task was cancelled"},
	}
}

func (c *Controller) synthesize(ctx context.Context, r *run, s synthesizing) state {
	c.enter(r, models.PhaseSynthesis)
	r.guard.seal()

	fctx, cancel := c.finalizeContext(ctx)
	defer cancel()

	notes := append(append([]string{}, r.notes...), s.notes...)
	req := provider.SynthesisRequest{
		Query:          r.task.Request,
		Context:        r.task.History(),
		Framing:        s.framing,
		Classification: s.classification,
		Feasibility:    s.feasibility,
		Plan:           s.plan,
		Verdict:        s.verdict,
		Notes:          notes,
	}
	if s.results != nil {
		req.Results = s.results.Views()
		req.Summary = s.results.Summary()
	}

	var text string
	err := c.invoke(fctx, r, provider.CapSynthesize, func(ctx context.Context) error {
		var err error
		text, err = c.providers.Synthesizer.Synthesize(ctx, req)
		return err
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("synthesizer returned empty text")
	}
	if err != nil {
		c.warn(r, models.PhaseSynthesis, "synthesis provider failed, using fallback answer: %v", err)
		text = FallbackText(req)
		notes = append(notes, fmt.Sprintf("synthesis failed: %v", err))
	}

	answer := &models.FinalAnswer{
		TaskID:   r.task.ID,
		Text:     text,
		Framing:  s.framing,
		Verdict:  s.verdict,
		Notes:    notes,
		Duration: time.Since(r.started),
	}
	if err := r.task.Append(models.Turn{Role: models.RoleAssistant, Content: text}); err != nil {
		c.warn(r, models.PhaseSynthesis, "could not record answer turn: %v", err)
	}
	r.task.Seal()

	c.record(ctx, r, s, answer)
	c.metrics.Finished(answer.Framing)
	c.complete(r, models.PhaseSynthesis, answer)
	c.emit(r, models.PhaseDone, models.EventFinal, answer, "")
	return done{answer: answer}
}

func (c *Controller) record(ctx context.Context, r *run, s synthesizing, answer *models.FinalAnswer) {
	if c.recorder == nil {
		return
	}
	rec := RunRecord{
		TaskID:     r.task.ID,
		Request:    r.task.Request,
		Judgement:  answer.JudgementLabel(),
		Framing:    answer.Framing,
		Duration:   answer.Duration,
		FinishedAt: time.Now(),
	}
	if s.classification != nil {
		rec.Tier = s.classification.Tier.String()
	}
	if s.results != nil {
		sum := s.results.Summarize(0)
		rec.Nodes = sum.TotalNodes
		rec.Failed = sum.Failed
	}
	if err := c.recorder.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		c.warn(r, models.PhaseSynthesis, "could not record run history: %v", err)
	}
}

// FallbackText composes an answer from the accumulated artifacts when the
// synthesis provider is unavailable.
func FallbackText(req provider.SynthesisRequest) string {
	var sb strings.Builder
	switch req.Framing {
	case models.FramingNotPossible:
		sb.WriteString("This request cannot be fulfilled.")
		if req.Feasibility != nil && req.Feasibility.Rationale != "" {
			fmt.Fprintf(&sb, " %s", req.Feasibility.Rationale)
		}
	case models.FramingPlanningFailed:
		sb.WriteString("No valid execution plan could be produced for this request.")
	case models.FramingAssessmentFailed:
		sb.WriteString("The request could not be assessed.")
	case models.FramingCancelled:
		sb.WriteString("The request was cancelled before it completed.")
	default:
		sb.WriteString("Results for: " + req.Query)
	}
	if req.Summary != "" {
		sb.WriteString("\n\n" + req.Summary)
	}
	if req.Verdict != nil {
		fmt.Fprintf(&sb, "\n\nVerification: %s", req.Verdict.Judgement)
		if req.Verdict.Explanation != "" {
			fmt.Fprintf(&sb, " (%s)", req.Verdict.Explanation)
		}
	}
	for _, n := range req.Notes {
		fmt.Fprintf(&sb, "\nNote: %s", n)
	}
	return sb.String()
}

// invoke runs one phase-level capability call through the run guard, the
// provider timeout and panic recovery.
func (c *Controller) invoke(ctx context.Context, r *run, capability string, call func(ctx context.Context) error) (err error) {
	if err := r.guard.admit(capability); err != nil {
		c.warn(r, models.PhaseSynthesis, "%v", err)
		return err
	}
	if c.config.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ProviderTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s provider panic: %v\n%s", capability, p, debug.Stack())
		}
		c.metrics.ProviderCall(capability, time.Since(start), err)
	}()
	return call(ctx)
}

// finalizeContext returns a context for Evaluation and Synthesis that
// survives cancellation of the task context for a bounded time.
func (c *Controller) finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.WithoutCancel(ctx), c.config.FinalizeTimeout)
}

func (c *Controller) enter(r *run, phase models.Phase) {
	r.phaseStart = time.Now()
	c.metrics.PhaseEntered(phase)
	c.emit(r, phase, models.EventPhaseEntered, nil, "")
}

func (c *Controller) complete(r *run, phase models.Phase, artifact any) {
	c.metrics.PhaseCompleted(phase, time.Since(r.phaseStart))
	c.emit(r, phase, models.EventPhaseCompleted, artifact, "")
}

func (c *Controller) warn(r *run, phase models.Phase, format string, args ...any) {
	c.emit(r, phase, models.EventWarning, nil, fmt.Sprintf(format, args...))
}

func (c *Controller) emit(r *run, phase models.Phase, kind models.EventKind, artifact any, msg string) {
	ev := models.Event{
		TaskID:    r.task.ID,
		Phase:     phase,
		Kind:      kind,
		Artifact:  artifact,
		Message:   msg,
		Timestamp: time.Now(),
	}
	if c.observer != nil {
		c.observer.LogEvent(ev)
	}
	if r.events == nil {
		return
	}
	select {
	case r.events <- ev:
	case <-r.eventsDone:
		// Caller abandoned the stream; deliver only if there is room.
		select {
		case r.events <- ev:
		default:
		}
	}
}

// groupEmitter forwards scheduler progress and emits partial results after
// every group.
type groupEmitter struct {
	c    *Controller
	r    *run
	next executor.Observer
}

func (g *groupEmitter) LogGroupStart(group models.Group) {
	if g.next != nil {
		g.next.LogGroupStart(group)
	}
}

func (g *groupEmitter) LogNodeResult(result models.ExecutionResult) {
	if g.next != nil {
		g.next.LogNodeResult(result)
	}
}

func (g *groupEmitter) LogGroupComplete(group models.Group, duration time.Duration, results *models.AggregatedResults) {
	if g.next != nil {
		g.next.LogGroupComplete(group, duration, results)
	}
	g.c.emit(g.r, models.PhaseExecution, models.EventGroupCompleted, results, group.Name())
}
