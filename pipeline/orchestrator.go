// Package pipeline drives a document through the linear stage machine:
// collect, preprocess, route, batch, infer, validate. Each stage's outcome
// is observable through the run summary and the per-stage loggers.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/docroute/batch"
	"github.com/c360studio/docroute/document"
	"github.com/c360studio/docroute/obs"
	"github.com/c360studio/docroute/profile"
	"github.com/c360studio/docroute/router"
	"github.com/c360studio/docroute/task"
	"github.com/c360studio/docroute/tokens"
	"github.com/c360studio/docroute/validate"
)

// Collector fetches a document's raw sections from a source, keyed by
// source type.
type Collector func(ctx context.Context, docID, variant string) ([]document.NormalizedSection, error)

// InferFunc runs inference for one prompt and returns the raw model output
// plus output token count.
type InferFunc func(ctx context.Context, modelID string, taskType task.Type, prompt string) (string, int, error)

// Request identifies one document to process.
type Request struct {
	DocID      string
	SourceType string
	Variant    string
	TaskType   task.Type

	// SchemaJSON optionally validates the model output structure.
	SchemaJSON string

	// RequiredEntities and Keywords feed the consistency layer.
	RequiredEntities []string
	Keywords         []string
}

// Caps bound batch assembly.
type Caps struct {
	MaxBatchSize      int
	MaxTokensPerBatch int
	MinFreeMemoryMB   int
}

// DefaultCaps returns batching caps suitable for a single mid-size GPU.
func DefaultCaps() Caps {
	return Caps{
		MaxBatchSize:      8,
		MaxTokensPerBatch: 8000,
		MinFreeMemoryMB:   8000,
	}
}

// Orchestrator wires the stages together for a run.
type Orchestrator struct {
	collectors map[string]Collector

	cleaner  *document.Cleaner
	detector *document.StructureDetector
	budgets  *tokens.Manager

	route     *router.Heuristic
	profiles  *profile.Store
	decisions *router.DecisionLogger

	queue   *batch.Queue
	planner *batch.Planner
	caps    Caps

	infer       InferFunc
	executor    *batch.Executor
	batchLogger *batch.BatchLogger
	validator   *validate.Validator
	fallback    *validate.Orchestrator
	prompts     promptStore

	preprocess *PreprocessLogger
	summary    *RunSummary
	events     *obs.Publisher
	metrics    *obs.Metrics
	logger     *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithEvents sets the NATS event publisher.
func WithEvents(p *obs.Publisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

// WithMetrics sets the Prometheus instruments.
func WithMetrics(m *obs.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithCaps overrides the batching caps.
func WithCaps(caps Caps) Option {
	return func(o *Orchestrator) { o.caps = caps }
}

// WithDecisionLogger sets the routing decision logger.
func WithDecisionLogger(l *router.DecisionLogger) Option {
	return func(o *Orchestrator) { o.decisions = l }
}

// WithPreprocessLogger sets the preprocessing record logger.
func WithPreprocessLogger(l *PreprocessLogger) Option {
	return func(o *Orchestrator) { o.preprocess = l }
}

// WithRunSummary sets the run summary sink.
func WithRunSummary(s *RunSummary) Option {
	return func(o *Orchestrator) { o.summary = s }
}

// WithBatchLogger routes batch events through the executor's logger.
func WithBatchLogger(l *batch.BatchLogger) Option {
	return func(o *Orchestrator) { o.batchLogger = l }
}

// Deps are the orchestrator's required collaborators.
type Deps struct {
	Router   *router.Heuristic
	Profiles *profile.Store
	Budgets  *tokens.Manager
	Planner  *batch.Planner
	Infer    InferFunc
	Validate *validate.Validator
	Fallback *validate.Orchestrator
}

// New creates an orchestrator. Collectors are registered afterwards with
// RegisterCollector.
func New(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		collectors: make(map[string]Collector),
		cleaner:    document.NewCleaner(),
		detector:   document.NewStructureDetector(nil),
		budgets:    deps.Budgets,
		route:      deps.Router,
		profiles:   deps.Profiles,
		queue:      batch.NewQueue(),
		planner:    deps.Planner,
		caps:       DefaultCaps(),
		infer:      deps.Infer,
		validator:  deps.Validate,
		fallback:   deps.Fallback,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	execOpts := []batch.ExecutorOption{batch.WithExecutorLogger(o.logger)}
	if o.batchLogger != nil {
		execOpts = append(execOpts, batch.WithBatchLogger(o.batchLogger))
	}
	if o.metrics != nil {
		execOpts = append(execOpts, batch.WithMetrics(o.metrics))
	}
	o.executor = batch.NewExecutor(o.inferPlan, execOpts...)

	return o
}

// RegisterCollector binds a source type to its collector.
func (o *Orchestrator) RegisterCollector(sourceType string, c Collector) {
	o.collectors[sourceType] = c
}

// Run drives one document through every stage. The returned record is also
// appended to the run summary. Terminal failures carry the error kind in
// ValidationStatus and never persist partial output.
func (o *Orchestrator) Run(ctx context.Context, req Request) RunRecord {
	record := RunRecord{
		DocID:      req.DocID,
		SourceType: req.SourceType,
		Variant:    req.Variant,
		StartedAt:  time.Now(),
	}
	defer func() {
		record.FinishedAt = time.Now()
		if o.summary != nil {
			o.summary.Record(ctx, record)
		}
	}()

	validator, err := o.validatorFor(req)
	if err != nil {
		record.Error = err.Error()
		record.ValidationStatus = validate.KindSchemaFailure
		return record
	}

	sections, err := o.collect(ctx, req)
	if err != nil {
		record.Error = err.Error()
		record.ValidationStatus = "collection_failed"
		return record
	}
	record.Status = StatusCollected

	prompt, features := o.preprocessStage(ctx, req, sections)
	record.Status = StatusPreprocessed
	record.TokenEstimate = features.TokenEstimate

	decision := o.routeStage(ctx, req, features)
	record.RouterReason = decision.Reason
	if !decision.Routed() {
		record.Error = decision.Reason
		record.ValidationStatus = "routing_failed"
		return record
	}
	record.Status = StatusRouted
	record.ChosenModel = decision.ModelID

	plans := o.batchStage(ctx, req, decision.ModelID, features)
	record.Status = StatusBatched

	outcome, outputTokens, err := o.inferAndValidate(ctx, req, decision.ModelID, prompt, plans, validator, &record)
	if err != nil {
		record.Error = err.Error()
		record.ValidationStatus = errorKindOf(err)
		return record
	}
	record.Status = StatusInferred
	record.OutputTokens = outputTokens

	if !outcome.Valid() {
		record.ValidationStatus = outcome.ErrorKind
		record.Error = fmt.Sprintf("validation failed: %s", outcome.ErrorKind)
		return record
	}

	record.Status = StatusValidated
	record.ValidationStatus = "valid"

	if o.events != nil {
		if err := o.events.Publish(ctx, obs.SubjectRunCompleted, obs.Event{
			Kind:       "run_completed",
			DocumentID: req.DocID,
			ModelID:    decision.ModelID,
		}); err != nil {
			o.logger.Warn("Failed to publish run event", "error", err)
		}
	}

	return record
}

// collect resolves and invokes the registered collector.
func (o *Orchestrator) collect(ctx context.Context, req Request) ([]document.NormalizedSection, error) {
	collector, ok := o.collectors[req.SourceType]
	if !ok {
		return nil, fmt.Errorf("no collector registered for source type %q", req.SourceType)
	}
	sections, err := collector(ctx, req.DocID, req.Variant)
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", req.DocID, err)
	}
	return sections, nil
}

// preprocessStage cleans sections, derives features, selects context under
// the chosen model's budget, and logs the preprocessing record.
func (o *Orchestrator) preprocessStage(ctx context.Context, req Request, raw []document.NormalizedSection) (string, document.Features) {
	cleaned := o.cleaner.NormalizeSections(raw)
	features := o.detector.Analyze(cleaned)

	prompt := o.cleaner.LLMReadyText(raw)
	var selectedTitles []string

	if budget, ok := o.lookupBudget(req); ok {
		selector := document.NewSelector(budget)
		var parts []string
		for _, result := range selector.Select(cleaned, req.TaskType) {
			if result.TokenEstimate == 0 {
				continue
			}
			parts = append(parts, result.Section.Text())
			selectedTitles = append(selectedTitles, result.Section.DisplayTitle())
		}
		if len(parts) > 0 {
			prompt = joinSections(parts)
		}
	}

	if o.preprocess != nil {
		o.preprocess.Record(ctx, PreprocessRecord{
			DocID:            req.DocID,
			Variant:          req.Variant,
			Features:         features,
			SectionsKept:     len(cleaned),
			SectionsDropped:  len(raw) - len(cleaned),
			SelectedSections: selectedTitles,
		})
	}

	return prompt, features
}

// lookupBudget finds a registered token budget for the request's task type
// default model. Missing budgets skip context selection.
func (o *Orchestrator) lookupBudget(req Request) (tokens.Budget, bool) {
	if o.budgets == nil {
		return tokens.Budget{}, false
	}
	for _, modelID := range o.candidateIDs() {
		if budget, ok := o.budgets.Get(modelID); ok {
			return budget, true
		}
	}
	return tokens.Budget{}, false
}

// routeStage builds profile-annotated candidates and routes.
func (o *Orchestrator) routeStage(ctx context.Context, req Request, features document.Features) router.Decision {
	var candidates []router.CandidateModel
	for _, modelID := range o.candidateIDs() {
		candidate := router.CandidateModel{ModelID: modelID}
		if prof, ok := o.profiles.Get(modelID); ok {
			p := prof
			candidate.Profile = &p
			if taskProf, ok := p.Task(req.TaskType); ok && taskProf.Samples > 0 {
				latency := taskProf.LatencyMS
				failure := taskProf.ErrorRate
				expected := int(taskProf.Tokens)
				candidate.ExpectedLatencyMS = &latency
				candidate.FailureRate = &failure
				candidate.ExpectedTokens = &expected
			}
		}
		candidates = append(candidates, candidate)
	}

	in := router.Inputs{
		DocumentFeatures: features,
		TaskType:         req.TaskType,
		CandidateModels:  candidates,
	}
	decision := o.route.Route(in)

	if o.decisions != nil {
		o.decisions.Record(ctx, in, decision)
	}
	if o.events != nil {
		if err := o.events.Publish(ctx, obs.SubjectRouterDecision, obs.Event{
			Kind:       "router_decision",
			DocumentID: req.DocID,
			ModelID:    decision.ModelID,
			Detail:     decision.Reason,
		}); err != nil {
			o.logger.Warn("Failed to publish router event", "error", err)
		}
	}
	return decision
}

// candidateIDs lists the models with profile evidence, in stable order.
func (o *Orchestrator) candidateIDs() []string {
	if o.profiles == nil {
		return nil
	}
	return o.profiles.Models()
}

// batchStage enqueues the document's task and plans batches over the
// current queue contents.
func (o *Orchestrator) batchStage(ctx context.Context, req Request, modelID string, features document.Features) []batch.Plan {
	t := task.Task{
		TaskID:        req.DocID + ":" + req.TaskType.String(),
		DocID:         req.DocID,
		TaskType:      req.TaskType,
		TargetModel:   modelID,
		TokenEstimate: features.TokenEstimate,
	}
	o.queue.Add(t)
	if o.metrics != nil {
		o.metrics.TasksQueued.Inc()
	}

	pending := o.queue.PopNextBatch(o.caps.MaxBatchSize, "")
	return o.planner.Plan(ctx, pending, o.caps.MaxBatchSize, o.caps.MaxTokensPerBatch, o.caps.MinFreeMemoryMB)
}

// inferPlan adapts the prompt-level inference function to plan execution.
// The prompt for the current document is threaded through planContexts.
func (o *Orchestrator) inferPlan(ctx context.Context, plan batch.Plan) error {
	for _, t := range plan.Tasks {
		prompt, ok := o.prompts.load(t.DocID)
		if !ok {
			return fmt.Errorf("no prompt recorded for document %s", t.DocID)
		}
		output, outputTokens, err := o.infer(ctx, plan.ModelID, t.TaskType, prompt)
		if err != nil {
			return err
		}
		o.prompts.storeOutput(t.DocID, output, outputTokens)
	}
	return nil
}

// validatorFor applies the request's schema override, if any, to the
// configured validator.
func (o *Orchestrator) validatorFor(req Request) (*validate.Validator, error) {
	if req.SchemaJSON == "" {
		return o.validator, nil
	}
	schema, err := validate.NewSchemaValidator(req.SchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile output schema: %w", err)
	}
	return o.validator.WithSchema(schema), nil
}

// inferAndValidate executes the plans, accumulates this document's batch and
// fallback events on the run record, and validates the output.
func (o *Orchestrator) inferAndValidate(ctx context.Context, req Request, modelID, prompt string, plans []batch.Plan, validator *validate.Validator, record *RunRecord) (validate.Outcome, int, error) {
	o.prompts.store(req.DocID, prompt)
	defer o.prompts.clear(req.DocID)

	results := o.executor.Execute(ctx, plans)
	failure := ""
	for _, result := range results {
		if !planHasDoc(result.Plan, req.DocID) {
			continue
		}
		record.BatchEvents = append(record.BatchEvents, BatchEvent{
			ModelID:   result.Plan.ModelID,
			BatchSize: len(result.Plan.Tasks),
			Tokens:    result.Plan.TotalTokens,
			Success:   result.Success,
			Error:     result.Error,
			Reason:    result.Plan.Reason,
		})
		if !result.Success && failure == "" {
			failure = result.Error
		}
	}
	if failure != "" {
		return validate.Outcome{}, 0, fmt.Errorf("inference failed: %s", failure)
	}

	output, outputTokens, ok := o.prompts.loadOutput(req.DocID)
	if !ok {
		return validate.Outcome{}, 0, fmt.Errorf("no inference output for document %s", req.DocID)
	}

	if o.events != nil {
		if err := o.events.Publish(ctx, obs.SubjectBatchExecuted, obs.Event{
			Kind:       "batch_executed",
			DocumentID: req.DocID,
			ModelID:    modelID,
		}); err != nil {
			o.logger.Warn("Failed to publish batch event", "error", err)
		}
	}

	outcome := validator.Validate(output, prompt, req.RequiredEntities, req.Keywords)
	if !outcome.Valid() && o.fallback != nil {
		t := task.Task{TaskID: req.DocID + ":" + req.TaskType.String(), DocID: req.DocID, TaskType: req.TaskType, TargetModel: modelID}
		decision := o.fallback.Resolve(ctx, outcome.ErrorKind, t, "")
		record.FallbackEvents = append(record.FallbackEvents, FallbackEvent{
			ErrorKind:  outcome.ErrorKind,
			Action:     string(decision.Action),
			Reason:     decision.Reason,
			RetryCount: decision.RetryCount,
			NextModel:  decision.NextModel,
		})
		o.logger.Info("Validation fallback",
			"doc_id", req.DocID,
			"error_kind", outcome.ErrorKind,
			"action", decision.Action,
			"reason", decision.Reason)
	}

	return outcome, outputTokens, nil
}

// planHasDoc reports whether a plan carries a task for the given document.
func planHasDoc(plan batch.Plan, docID string) bool {
	for _, t := range plan.Tasks {
		if t.DocID == docID {
			return true
		}
	}
	return false
}

// errorKindOf classifies inference-stage failures for the run summary.
func errorKindOf(err error) string {
	message := err.Error()
	switch {
	case containsFold(message, "oom"):
		return validate.KindOOM
	case containsFold(message, "timeout"), containsFold(message, "deadline"):
		return validate.KindTimeout
	default:
		return validate.KindTransportError
	}
}
