package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/aboerstra/fraud-adjudicator/pkg/adjudicator"
	"github.com/aboerstra/fraud-adjudicator/pkg/config"
	"github.com/aboerstra/fraud-adjudicator/pkg/decision"
	"github.com/aboerstra/fraud-adjudicator/pkg/errs"
	"github.com/aboerstra/fraud-adjudicator/pkg/masking"
	"github.com/aboerstra/fraud-adjudicator/pkg/models"
	"github.com/aboerstra/fraud-adjudicator/pkg/rules"
)

// JobStore is the subset of *store.Client the Pipeline and Worker need,
// narrowed to an interface so tests can substitute a fake.
type JobStore interface {
	LoadRequest(ctx context.Context, requestID string) (*models.ApplicationRequest, error)
	MarkProcessing(ctx context.Context, requestID string) error
	AppendStage(ctx context.Context, rec models.StageRecord) error
	Finalize(ctx context.Context, requestID string, decision *models.Decision, failureReason string, now time.Time) error
}

// FeatureExtractor is the subset of *features.Extractor the Pipeline
// needs.
type FeatureExtractor interface {
	Extract(ctx context.Context, requestID string, p models.ApplicationPayload, now time.Time) (models.FeatureVector, error)
}

// MLScorer is the subset of *mlclient.Client the Pipeline needs.
type MLScorer interface {
	Score(ctx context.Context, requestID string, features models.FeatureVector) (*models.MLOutput, error)
}

// Pipeline wires the five fixed stages — Rules, Features, ML, LLM
// Adjudicator, Decision Assembler — into one per-request run (spec §4.5).
// It holds no per-request state; a single Pipeline is shared by every
// Worker in the pool.
type Pipeline struct {
	store    JobStore
	rulePack *rules.RulePack
	features FeatureExtractor
	ml       MLScorer
	llm      *adjudicator.Stage
	policy   config.PolicyConfig
	masker   *masking.Service
	logger   *slog.Logger
}

// NewPipeline constructs a Pipeline. All arguments must be non-nil.
func NewPipeline(store JobStore, rulePack *rules.RulePack, features FeatureExtractor, ml MLScorer, llm *adjudicator.Stage, policy config.PolicyConfig, masker *masking.Service, logger *slog.Logger) *Pipeline {
	if store == nil || rulePack == nil || features == nil || ml == nil || llm == nil || masker == nil {
		panic("queue.NewPipeline: all dependencies must be non-nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: store, rulePack: rulePack, features: features, ml: ml, llm: llm, policy: policy, masker: masker, logger: logger}
}

// Run executes one attempt of the fixed pipeline for requestID (spec
// §4.5). A returned error is already classified via the errs taxonomy;
// the caller (Worker) decides whether to retry or dead-letter based on
// its Kind. A nil error means decision holds the terminal Decision ready
// for Finalize.
func (p *Pipeline) Run(ctx context.Context, requestID string, now time.Time) (models.Decision, error) {
	req, err := p.store.LoadRequest(ctx, requestID)
	if err != nil {
		return models.Decision{}, errs.Wrap(errs.KindPermanent, "load request", err)
	}
	if err := p.store.MarkProcessing(ctx, requestID); err != nil {
		return models.Decision{}, errs.Wrap(errs.KindTransient, "mark processing", err)
	}

	timing := make(map[string]int64)

	rulesOut := rules.Evaluate(p.rulePack, req.Payload, now)
	if err := p.recordStage(ctx, requestID, models.StageRules, timing, now, func() (any, error) { return rulesOut, nil }); err != nil {
		return models.Decision{}, err
	}

	if rulesOut.HardFail {
		return p.assemble(ctx, requestID, decision.Input{
			RulesOut: rulesOut,
			Policy:   p.policy,
			Timing:   timing,
		}, now)
	}

	var featureVec models.FeatureVector
	if err := p.recordStage(ctx, requestID, models.StageFeatures, timing, now, func() (any, error) {
		v, err := p.features.Extract(ctx, requestID, req.Payload, now)
		featureVec = v
		return v, err
	}); err != nil {
		return models.Decision{}, errs.Classify(err)
	}

	var mlOut *models.MLOutput
	if err := p.recordStage(ctx, requestID, models.StageML, timing, now, func() (any, error) {
		out, err := p.ml.Score(ctx, requestID, featureVec)
		mlOut = out
		return out, err
	}); err != nil {
		return models.Decision{}, errs.Classify(err)
	}

	var llmResult adjudicator.Result
	if err := p.recordStage(ctx, requestID, models.StageLLM, timing, now, func() (any, error) {
		llmResult = p.llm.Run(ctx, req.Payload, rulesOut, mlOut, false, now)
		switch {
		case llmResult.InvalidJSON:
			return nil, errStageNoOutput // recorded with an error marker, not a stage failure
		case llmResult.Analysis == nil:
			return nil, errStageSkip // not triggered, or breaker-open/retries-exhausted fallback: no record at all
		default:
			return llmResult.Analysis, nil
		}
	}); err != nil {
		return models.Decision{}, err
	}

	return p.assemble(ctx, requestID, decision.Input{
		RulesOut:       rulesOut,
		MLOut:          mlOut,
		LLMOut:         llmResult.Analysis,
		LLMInvalidJSON: llmResult.InvalidJSON,
		Policy:         p.policy,
		Timing:         timing,
	}, now)
}

// errStageNoOutput is a sentinel a stage closure returns to tell
// recordStage "write a record marking this attempt's output as absent"
// (spec §4.6: an LLM response that fails recovery twice yields no
// analysis, but the attempt itself still ran) without that being treated
// as a stage failure.
var errStageNoOutput = errors.New("queue: stage produced no output")

// errStageSkip is a sentinel a stage closure returns to tell recordStage
// to skip writing any record at all (spec §4.6 "Otherwise the stage
// produces no record"): the LLM Adjudicator wasn't triggered, or was
// triggered but the provider call never completed (breaker open or
// retries exhausted) and the Decision Assembler falls back to rules+ML.
var errStageSkip = errors.New("queue: stage skipped, no record")

func (p *Pipeline) assemble(ctx context.Context, requestID string, in decision.Input, now time.Time) (models.Decision, error) {
	var d models.Decision
	if err := p.recordStage(ctx, requestID, models.StageDecision, in.Timing, now, func() (any, error) {
		d = decision.Assemble(in)
		return d, nil
	}); err != nil {
		return models.Decision{}, err
	}
	return d, nil
}

// recordStage runs fn, timing it and writing an append-only StageRecord
// (spec §3 invariants: "a replayed attempt writes a new record"). fn's
// error, if non-nil and not one of the errStageSkip/errStageNoOutput
// sentinels, is recorded on the stage and returned to the caller for
// classification.
func (p *Pipeline) recordStage(ctx context.Context, requestID string, stage models.StageName, timing map[string]int64, now time.Time, fn func() (any, error)) error {
	start := time.Now()
	out, err := fn()
	if err == errStageSkip {
		return nil
	}
	ended := time.Now()
	duration := ended.Sub(start)
	timing[string(stage)] = duration.Milliseconds()

	rec := models.StageRecord{
		RequestID: requestID,
		Stage:     stage,
		StartedAt: start,
		EndedAt:   ended,
		Duration:  duration,
	}
	switch {
	case err == errStageNoOutput:
		rec.Error = "LLM invalid JSON"
	case err != nil:
		rec.Error = p.masker.Redact(err.Error())
	case out != nil:
		if b, marshalErr := json.Marshal(out); marshalErr == nil {
			rec.Output = b
		}
	}

	if appendErr := p.store.AppendStage(ctx, rec); appendErr != nil {
		p.logger.Error("pipeline: failed to append stage record",
			"request_id", requestID, "stage", stage, "error", p.masker.Redact(appendErr.Error()))
	}

	if err == errStageNoOutput {
		return nil
	}
	return err
}
