package segmentation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// The pipeline runs a fixed acyclic wave graph. Stages inside a wave
// are independent and may run concurrently up to MaxInFlight; a wave
// starts only after every stage of the previous wave finished. A stage
// hard failure aborts after its wave joins, cancelling sibling work.
//
// Wave layout:
//
//	1  service_analysis
//	2  segment_extraction, reference_products
//	3  value_analysis
//	4  value_comparison
//	5  formula_design
//	6  evc_calculation, market_potential
//	7  priority_evaluation
//
// Deterministic scoring runs between waves 6 and 7; report assembly
// (the integration step) is pure and lives in AssembleReport.

// StageError attributes a failure to the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// StageNameFromError recovers the failing stage, if attributed.
func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// OrchestrationError reports an aborted run. The partial Result
// returned alongside it still carries every wave that completed
// strictly before the failure.
type OrchestrationError struct {
	Stage string
	Err   error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("pipeline aborted at %s: %v", e.Stage, e.Err)
}

func (e *OrchestrationError) Unwrap() error { return e.Err }

// Config bounds pipeline concurrency.
type Config struct {
	MaxInFlight int
}

const defaultMaxInFlight = 2

// Request describes one run.
type Request struct {
	RunID              string
	ServiceDescription string
	MarketData         string
	BusinessDocument   string
}

// Result accumulates stage outputs across waves. Pointer fields are nil
// for waves that never completed.
type Result struct {
	Request       Request
	Analysis      *ServiceAnalysis
	Segments      []Segment
	Products      []ReferenceProduct
	ValueAnalysis *ValueAnalysis
	Comparison    *ValueComparison
	Formula       *FormulaSpec
	Parameters    []EVCParameters
	Assessment    *MarketAssessment
	EVCResults    []EVCResult
	Potentials    []MarketPotential
	Priorities    []PriorityScore
	Narrative     *PriorityNarrative
	Outcomes      map[string]StageOutcome
	Metadata      RunMetadata
}

type Pipeline struct {
	stages StageRunner
	cfg    Config
}

func NewPipeline(stages StageRunner, cfg Config) *Pipeline {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	return &Pipeline{stages: stages, cfg: cfg}
}

// stageTask is one unit of wave work. run returns the outcome, a commit
// closure applied only if the whole wave succeeds, and the hard error
// if any.
type stageTask struct {
	name string
	run  func(ctx context.Context) (StageOutcome, func(), error)
}

// Run executes the full pipeline. On abort it returns the partial
// Result together with an *OrchestrationError naming the failed stage;
// outputs of the failing wave are not committed.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	res := Result{
		Request:  req,
		Outcomes: make(map[string]StageOutcome),
		Metadata: RunMetadata{RunID: req.RunID, StartedAt: time.Now().UTC(), Mode: ModeComplete},
	}
	log.Printf("segmentation pipeline_start run=%s", req.RunID)

	// Wave 1: service analysis.
	if err := p.runWave(ctx, 1, &res, stageTask{name: StageServiceAnalysis, run: func(ctx context.Context) (StageOutcome, func(), error) {
		sa, out, err := p.stages.RunServiceAnalysis(ctx, req.ServiceDescription, req.BusinessDocument)
		return out, func() { res.Analysis = &sa }, err
	}}); err != nil {
		return p.abort(res, err)
	}

	// Wave 2: segments and reference products, independently.
	if err := p.runWave(ctx, 2, &res,
		stageTask{name: StageSegmentExtraction, run: func(ctx context.Context) (StageOutcome, func(), error) {
			segs, out, err := p.stages.RunSegmentExtraction(ctx, *res.Analysis, req.MarketData)
			return out, func() { res.Segments = segs }, err
		}},
		stageTask{name: StageReferenceProducts, run: func(ctx context.Context) (StageOutcome, func(), error) {
			prods, out, err := p.stages.RunReferenceProducts(ctx, *res.Analysis)
			return out, func() { res.Products = prods }, err
		}},
	); err != nil {
		return p.abort(res, err)
	}

	// Wave 3: value analysis.
	if err := p.runWave(ctx, 3, &res, stageTask{name: StageValueAnalysis, run: func(ctx context.Context) (StageOutcome, func(), error) {
		va, out, err := p.stages.RunValueAnalysis(ctx, *res.Analysis, res.Products)
		return out, func() { res.ValueAnalysis = &va }, err
	}}); err != nil {
		return p.abort(res, err)
	}

	// Wave 4: comparison matrix.
	if err := p.runWave(ctx, 4, &res, stageTask{name: StageValueComparison, run: func(ctx context.Context) (StageOutcome, func(), error) {
		vc, out, err := p.stages.RunValueComparison(ctx, res.Segments, *res.ValueAnalysis, res.Products)
		return out, func() { res.Comparison = &vc }, err
	}}); err != nil {
		return p.abort(res, err)
	}

	// Wave 5: formula design.
	if err := p.runWave(ctx, 5, &res, stageTask{name: StageFormulaDesign, run: func(ctx context.Context) (StageOutcome, func(), error) {
		spec, out, err := p.stages.RunFormulaDesign(ctx, *res.Comparison)
		return out, func() { res.Formula = &spec }, err
	}}); err != nil {
		return p.abort(res, err)
	}

	// Wave 6: component estimates and market assessment, independently.
	if err := p.runWave(ctx, 6, &res,
		stageTask{name: StageEVCCalculation, run: func(ctx context.Context) (StageOutcome, func(), error) {
			params, out, err := p.stages.RunEVCParameters(ctx, *res.Formula, res.Segments)
			return out, func() { res.Parameters = params }, err
		}},
		stageTask{name: StageMarketPotential, run: func(ctx context.Context) (StageOutcome, func(), error) {
			ma, out, err := p.stages.RunMarketAssessment(ctx, res.Segments, req.MarketData)
			return out, func() { res.Assessment = &ma }, err
		}},
	); err != nil {
		return p.abort(res, err)
	}

	p.score(&res)

	// Wave 7: narrative over the computed priorities.
	if err := p.runWave(ctx, 7, &res, stageTask{name: StagePriorityEvaluation, run: func(ctx context.Context) (StageOutcome, func(), error) {
		pn, out, err := p.stages.RunPriorityNarrative(ctx, res.Priorities)
		return out, func() { res.Narrative = &pn }, err
	}}); err != nil {
		return p.abort(res, err)
	}

	res.Metadata.CompletedAt = time.Now().UTC()
	log.Printf("segmentation pipeline_complete run=%s waves=%d", req.RunID, res.Metadata.WavesCompleted)
	return res, nil
}

// score derives the deterministic numbers from the wave 6 outputs. No
// collaborator calls; same inputs, same numbers.
func (p *Pipeline) score(res *Result) {
	marketByID := make(map[SegmentID]SegmentMarket)
	if res.Assessment != nil {
		for _, m := range res.Assessment.Segments {
			marketByID[m.SegmentID] = m
		}
	}
	res.EVCResults = res.EVCResults[:0]
	res.Potentials = res.Potentials[:0]
	for _, params := range res.Parameters {
		evc := ComputeEVC(*res.Formula, params)
		res.EVCResults = append(res.EVCResults, evc)
		res.Potentials = append(res.Potentials, ComputeMarketPotential(evc, marketByID[params.SegmentID]))
	}
	res.Priorities = allocateResources(ComputePriorities(res.EVCResults, res.Potentials))
}

func (p *Pipeline) runWave(ctx context.Context, wave int, res *Result, tasks ...stageTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxInFlight)

	var mu sync.Mutex
	var commits []func()
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			out, commit, err := t.run(gctx)
			mu.Lock()
			res.Outcomes[t.name] = out
			res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, t.name)
			if err == nil && commit != nil {
				commits = append(commits, commit)
			}
			mu.Unlock()
			if err != nil {
				return &StageError{Stage: t.name, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("segmentation wave_failed run=%s wave=%d err=%q", res.Request.RunID, wave, err.Error())
		return err
	}
	for _, commit := range commits {
		commit()
	}
	res.Metadata.WavesCompleted = wave
	return nil
}

func (p *Pipeline) abort(res Result, err error) (Result, error) {
	stage := StageNameFromError(err)
	res.Metadata.Mode = ModePartial
	res.Metadata.FailedStage = stage
	res.Metadata.FailureCause = err.Error()
	res.Metadata.CompletedAt = time.Now().UTC()
	log.Printf("segmentation pipeline_abort run=%s stage=%s err=%q", res.Request.RunID, stage, err.Error())
	return res, &OrchestrationError{Stage: stage, Err: err}
}
