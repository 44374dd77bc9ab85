package segmentation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nexasales/nexasales/internal/extract"
)

// Stage names, used for logging, outcome keys, and error attribution.
const (
	StageServiceAnalysis    = "service_analysis"
	StageSegmentExtraction  = "segment_extraction"
	StageReferenceProducts  = "reference_products"
	StageValueAnalysis      = "value_analysis"
	StageValueComparison    = "value_comparison"
	StageFormulaDesign      = "formula_design"
	StageEVCCalculation     = "evc_calculation"
	StageMarketPotential    = "market_potential"
	StagePriorityEvaluation = "priority_evaluation"
	StageIntegration        = "integration"
)

// StageRunner is the typed surface the pipeline drives. Each method
// runs one reasoning stage end to end; degraded extraction surfaces in
// the StageOutcome with a usable typed fallback, never as an error.
type StageRunner interface {
	RunServiceAnalysis(ctx context.Context, serviceDescription, businessDoc string) (ServiceAnalysis, StageOutcome, error)
	RunSegmentExtraction(ctx context.Context, analysis ServiceAnalysis, marketData string) ([]Segment, StageOutcome, error)
	RunReferenceProducts(ctx context.Context, analysis ServiceAnalysis) ([]ReferenceProduct, StageOutcome, error)
	RunValueAnalysis(ctx context.Context, analysis ServiceAnalysis, products []ReferenceProduct) (ValueAnalysis, StageOutcome, error)
	RunValueComparison(ctx context.Context, segments []Segment, va ValueAnalysis, products []ReferenceProduct) (ValueComparison, StageOutcome, error)
	RunFormulaDesign(ctx context.Context, comparison ValueComparison) (FormulaSpec, StageOutcome, error)
	RunEVCParameters(ctx context.Context, formula FormulaSpec, segments []Segment) ([]EVCParameters, StageOutcome, error)
	RunMarketAssessment(ctx context.Context, segments []Segment, marketData string) (MarketAssessment, StageOutcome, error)
	RunPriorityNarrative(ctx context.Context, priorities []PriorityScore) (PriorityNarrative, StageOutcome, error)
}

type stageExecutor interface {
	Run(ctx context.Context, stage, prompt string, schema extract.Schema) (extract.Result, StageMetrics, error)
}

// LLMStageRunner implements StageRunner on top of the reasoning
// collaborator via a Runner.
type LLMStageRunner struct {
	exec stageExecutor
}

func NewLLMStageRunner(r *Runner) *LLMStageRunner {
	return &LLMStageRunner{exec: r}
}

var (
	serviceAnalysisSchema = extract.Schema{Fields: []extract.Field{
		{Name: "name", Required: true},
		{Name: "description", Required: true},
		{Name: "business_model"},
		{Name: "delivery_method"},
		{Name: "features"},
		{Name: "unique_selling_points"},
		{Name: "summary"},
	}}
	segmentListSchema = extract.Schema{Fields: []extract.Field{
		{Name: "segments", Required: true},
	}}
	productListSchema = extract.Schema{Fields: []extract.Field{
		{Name: "products", Required: true},
	}}
	valueAnalysisSchema = extract.Schema{Fields: []extract.Field{
		{Name: "revenue_factors", Required: true},
		{Name: "cost_factors", Required: true},
		{Name: "reference_price_low"},
		{Name: "reference_price_high"},
		{Name: "summary"},
	}}
	valueComparisonSchema = extract.Schema{Fields: []extract.Field{
		{Name: "segments", Required: true},
	}}
	formulaSchema = extract.Schema{Fields: []extract.Field{
		{Name: "base_formula", Required: true},
		{Name: "r", Required: true},
		{Name: "re", Required: true},
		{Name: "co", Required: true},
		{Name: "i", Required: true},
		{Name: "revenue_subcomponents"},
		{Name: "cost_subcomponents"},
		{Name: "segment_adjustments"},
		{Name: "justification"},
	}}
	evcParametersSchema = extract.Schema{Fields: []extract.Field{
		{Name: "parameters", Required: true},
	}}
	marketAssessmentSchema = extract.Schema{Fields: []extract.Field{
		{Name: "segments", Required: true},
		{Name: "summary"},
	}}
	narrativeSchema = extract.Schema{Fields: []extract.Field{
		{Name: "strategies", Required: true},
		{Name: "summary"},
		{Name: "recommendations"},
	}}
)

func (r *LLMStageRunner) RunServiceAnalysis(ctx context.Context, serviceDescription, businessDoc string) (ServiceAnalysis, StageOutcome, error) {
	prompt := serviceAnalysisPrompt(serviceDescription, businessDoc)
	res, metrics, err := r.exec.Run(ctx, StageServiceAnalysis, prompt, serviceAnalysisSchema)
	if err != nil {
		return ServiceAnalysis{}, failedOutcome(StageServiceAnalysis, metrics), err
	}
	out := outcomeFor(StageServiceAnalysis, res, metrics)
	var sa ServiceAnalysis
	if res.Degraded || res.DecodeInto(&sa) != nil {
		degrade(&out, res, "service analysis did not decode")
		return fallbackServiceAnalysis(serviceDescription), out, nil
	}
	return sa, out, nil
}

func (r *LLMStageRunner) RunSegmentExtraction(ctx context.Context, analysis ServiceAnalysis, marketData string) ([]Segment, StageOutcome, error) {
	prompt := segmentExtractionPrompt(analysis, marketData)
	res, metrics, err := r.exec.Run(ctx, StageSegmentExtraction, prompt, segmentListSchema)
	if err != nil {
		return nil, failedOutcome(StageSegmentExtraction, metrics), err
	}
	out := outcomeFor(StageSegmentExtraction, res, metrics)
	var payload struct {
		Segments []Segment `json:"segments"`
	}
	if res.Degraded || res.DecodeInto(&payload) != nil {
		degrade(&out, res, "segment list did not decode")
		return fallbackSegments(), out, nil
	}
	segments, err := normalizeSegments(payload.Segments)
	if err != nil {
		degrade(&out, res, err.Error())
		return fallbackSegments(), out, nil
	}
	return segments, out, nil
}

func (r *LLMStageRunner) RunReferenceProducts(ctx context.Context, analysis ServiceAnalysis) ([]ReferenceProduct, StageOutcome, error) {
	prompt := referenceProductsPrompt(analysis)
	res, metrics, err := r.exec.Run(ctx, StageReferenceProducts, prompt, productListSchema)
	if err != nil {
		return nil, failedOutcome(StageReferenceProducts, metrics), err
	}
	out := outcomeFor(StageReferenceProducts, res, metrics)
	var payload struct {
		Products []ReferenceProduct `json:"products"`
	}
	if res.Degraded || res.DecodeInto(&payload) != nil || len(payload.Products) == 0 {
		degrade(&out, res, "reference product list did not decode")
		return fallbackProducts(), out, nil
	}
	return payload.Products, out, nil
}

func (r *LLMStageRunner) RunValueAnalysis(ctx context.Context, analysis ServiceAnalysis, products []ReferenceProduct) (ValueAnalysis, StageOutcome, error) {
	prompt := valueAnalysisPrompt(analysis, products)
	res, metrics, err := r.exec.Run(ctx, StageValueAnalysis, prompt, valueAnalysisSchema)
	if err != nil {
		return ValueAnalysis{}, failedOutcome(StageValueAnalysis, metrics), err
	}
	out := outcomeFor(StageValueAnalysis, res, metrics)
	var va ValueAnalysis
	if res.Degraded || res.DecodeInto(&va) != nil {
		degrade(&out, res, "value analysis did not decode")
		return fallbackValueAnalysis(), out, nil
	}
	return va, out, nil
}

func (r *LLMStageRunner) RunValueComparison(ctx context.Context, segments []Segment, va ValueAnalysis, products []ReferenceProduct) (ValueComparison, StageOutcome, error) {
	prompt := valueComparisonPrompt(segments, va, products)
	res, metrics, err := r.exec.Run(ctx, StageValueComparison, prompt, valueComparisonSchema)
	if err != nil {
		return ValueComparison{}, failedOutcome(StageValueComparison, metrics), err
	}
	out := outcomeFor(StageValueComparison, res, metrics)
	var vc ValueComparison
	if res.Degraded || res.DecodeInto(&vc) != nil {
		degrade(&out, res, "comparison matrix did not decode")
		return fallbackComparison(), out, nil
	}
	if err := validateComparison(vc, products); err != nil {
		degrade(&out, res, err.Error())
		return fallbackComparison(), out, nil
	}
	return vc, out, nil
}

func (r *LLMStageRunner) RunFormulaDesign(ctx context.Context, comparison ValueComparison) (FormulaSpec, StageOutcome, error) {
	prompt := formulaDesignPrompt(comparison)
	res, metrics, err := r.exec.Run(ctx, StageFormulaDesign, prompt, formulaSchema)
	if err != nil {
		return FormulaSpec{}, failedOutcome(StageFormulaDesign, metrics), err
	}
	out := outcomeFor(StageFormulaDesign, res, metrics)
	var spec FormulaSpec
	if res.Degraded || res.DecodeInto(&spec) != nil {
		degrade(&out, res, "formula spec did not decode")
		return fallbackFormula(), out, nil
	}
	if spec.BaseFormula == "" {
		spec.BaseFormula = defaultBaseFormula
	}
	return spec, out, nil
}

func (r *LLMStageRunner) RunEVCParameters(ctx context.Context, formula FormulaSpec, segments []Segment) ([]EVCParameters, StageOutcome, error) {
	prompt := evcParametersPrompt(formula, segments)
	res, metrics, err := r.exec.Run(ctx, StageEVCCalculation, prompt, evcParametersSchema)
	if err != nil {
		return nil, failedOutcome(StageEVCCalculation, metrics), err
	}
	out := outcomeFor(StageEVCCalculation, res, metrics)
	var payload struct {
		Parameters []EVCParameters `json:"parameters"`
	}
	if res.Degraded || res.DecodeInto(&payload) != nil {
		degrade(&out, res, "evc parameters did not decode")
		return fallbackParameters(), out, nil
	}
	return normalizeParameters(payload.Parameters), out, nil
}

func (r *LLMStageRunner) RunMarketAssessment(ctx context.Context, segments []Segment, marketData string) (MarketAssessment, StageOutcome, error) {
	prompt := marketAssessmentPrompt(segments, marketData)
	res, metrics, err := r.exec.Run(ctx, StageMarketPotential, prompt, marketAssessmentSchema)
	if err != nil {
		return MarketAssessment{}, failedOutcome(StageMarketPotential, metrics), err
	}
	out := outcomeFor(StageMarketPotential, res, metrics)
	var ma MarketAssessment
	if res.Degraded || res.DecodeInto(&ma) != nil {
		degrade(&out, res, "market assessment did not decode")
		return fallbackAssessment(segments), out, nil
	}
	ma.Segments = normalizeMarkets(ma.Segments, segments)
	return ma, out, nil
}

func (r *LLMStageRunner) RunPriorityNarrative(ctx context.Context, priorities []PriorityScore) (PriorityNarrative, StageOutcome, error) {
	prompt := priorityNarrativePrompt(priorities)
	res, metrics, err := r.exec.Run(ctx, StagePriorityEvaluation, prompt, narrativeSchema)
	if err != nil {
		return PriorityNarrative{}, failedOutcome(StagePriorityEvaluation, metrics), err
	}
	out := outcomeFor(StagePriorityEvaluation, res, metrics)
	var pn PriorityNarrative
	if res.Degraded || res.DecodeInto(&pn) != nil {
		degrade(&out, res, "priority narrative did not decode")
		return fallbackNarrative(priorities), out, nil
	}
	return pn, out, nil
}

func outcomeFor(stage string, res extract.Result, metrics StageMetrics) StageOutcome {
	return StageOutcome{
		Stage:    stage,
		Degraded: res.Degraded,
		Failure:  res.Failure,
		RawText:  res.RawText,
		Record:   res.Record,
		Metrics:  metrics,
	}
}

func failedOutcome(stage string, metrics StageMetrics) StageOutcome {
	return StageOutcome{Stage: stage, Metrics: metrics}
}

func degrade(out *StageOutcome, res extract.Result, reason string) {
	out.Degraded = true
	if out.Failure == "" {
		out.Failure = reason
	}
	if res.Failure != "" {
		out.Failure = res.Failure
	}
}

// normalizeSegments checks the two axes, derives canonical identifiers,
// and requires exactly one segment per quadrant. Market figures are
// clamped into range.
func normalizeSegments(in []Segment) ([]Segment, error) {
	if len(in) != len(CanonicalSegmentOrder) {
		return nil, fmt.Errorf("expected %d segments, got %d", len(CanonicalSegmentOrder), len(in))
	}
	byID := make(map[SegmentID]Segment, len(in))
	for _, s := range in {
		if s.ValuePotential != ValueHigh && s.ValuePotential != ValueLow {
			return nil, fmt.Errorf("segment %q has value_potential %q", s.Name, s.ValuePotential)
		}
		if s.ImplementationEase != BarrierLow && s.ImplementationEase != BarrierHigh {
			return nil, fmt.Errorf("segment %q has implementation_ease %q", s.Name, s.ImplementationEase)
		}
		id := segmentIDFor(s.ValuePotential, s.ImplementationEase)
		if _, dup := byID[id]; dup {
			return nil, fmt.Errorf("duplicate segment quadrant %s", id)
		}
		s.ID = id
		if strings.TrimSpace(s.Name) == "" {
			s.Name = CanonicalSegmentName(id)
		}
		if s.MarketSize < 0 {
			s.MarketSize = 0
		}
		if s.AcquisitionProbability < 0 {
			s.AcquisitionProbability = 0
		}
		if s.AcquisitionProbability > 1 {
			s.AcquisitionProbability = 1
		}
		byID[id] = s
	}
	out := make([]Segment, 0, len(CanonicalSegmentOrder))
	for _, id := range CanonicalSegmentOrder {
		out = append(out, byID[id])
	}
	return out, nil
}

// validateComparison requires every criterion row to score every
// reference product.
func validateComparison(vc ValueComparison, products []ReferenceProduct) error {
	if len(vc.Segments) == 0 {
		return fmt.Errorf("comparison matrix has no segments")
	}
	for _, sc := range vc.Segments {
		for _, row := range sc.Criteria {
			for _, p := range products {
				if _, ok := row.Scores[p.Name]; !ok {
					return fmt.Errorf("segment %s criterion %q missing product %q", sc.SegmentID, row.Criterion, p.Name)
				}
			}
		}
	}
	return nil
}

// normalizeParameters returns one parameter set per canonical segment,
// zero-filling any the collaborator omitted and dropping unknown ids.
func normalizeParameters(in []EVCParameters) []EVCParameters {
	byID := make(map[SegmentID]EVCParameters, len(in))
	for _, p := range in {
		if canonicalIndex(p.SegmentID) < len(CanonicalSegmentOrder) {
			byID[p.SegmentID] = p
		}
	}
	out := make([]EVCParameters, 0, len(CanonicalSegmentOrder))
	for _, id := range CanonicalSegmentOrder {
		p, ok := byID[id]
		if !ok {
			p = EVCParameters{SegmentID: id, Rationale: "no estimate produced"}
		}
		out = append(out, p)
	}
	return out
}

func normalizeMarkets(in []SegmentMarket, segments []Segment) []SegmentMarket {
	segByID := make(map[SegmentID]Segment, len(segments))
	for _, s := range segments {
		segByID[s.ID] = s
	}
	byID := make(map[SegmentID]SegmentMarket, len(in))
	for _, m := range in {
		if canonicalIndex(m.SegmentID) < len(CanonicalSegmentOrder) {
			byID[m.SegmentID] = m
		}
	}
	out := make([]SegmentMarket, 0, len(CanonicalSegmentOrder))
	for _, id := range CanonicalSegmentOrder {
		m, ok := byID[id]
		if !ok {
			// Fall back to the extraction-time figures for the segment.
			seg := segByID[id]
			m = SegmentMarket{SegmentID: id, MarketSize: seg.MarketSize, AcquisitionProbability: seg.AcquisitionProbability}
		}
		out = append(out, m)
	}
	return out
}

func fallbackServiceAnalysis(serviceDescription string) ServiceAnalysis {
	return ServiceAnalysis{
		Name:        extract.Sentinel,
		Description: serviceDescription,
		Summary:     extract.Sentinel,
	}
}

func fallbackSegments() []Segment {
	out := make([]Segment, 0, len(CanonicalSegmentOrder))
	axes := map[SegmentID][2]string{
		SegmentHighValueLowBarrier:  {ValueHigh, BarrierLow},
		SegmentHighValueHighBarrier: {ValueHigh, BarrierHigh},
		SegmentLowValueLowBarrier:   {ValueLow, BarrierLow},
		SegmentLowValueHighBarrier:  {ValueLow, BarrierHigh},
	}
	for _, id := range CanonicalSegmentOrder {
		out = append(out, Segment{
			ID:                 id,
			Name:               CanonicalSegmentName(id),
			Description:        extract.Sentinel,
			ValuePotential:     axes[id][0],
			ImplementationEase: axes[id][1],
		})
	}
	return out
}

func fallbackProducts() []ReferenceProduct {
	return []ReferenceProduct{{Name: extract.Sentinel, Description: extract.Sentinel}}
}

func fallbackValueAnalysis() ValueAnalysis {
	return ValueAnalysis{Summary: extract.Sentinel}
}

func fallbackComparison() ValueComparison {
	out := ValueComparison{}
	for _, id := range CanonicalSegmentOrder {
		out.Segments = append(out.Segments, SegmentComparison{SegmentID: id, Summary: extract.Sentinel})
	}
	return out
}

const defaultBaseFormula = "EVC = R + (Re + Co) - I"

func fallbackFormula() FormulaSpec {
	return FormulaSpec{
		BaseFormula:   defaultBaseFormula,
		R:             FormulaComponent{Description: "Reference price of the closest competing offer", Weight: 1},
		Re:            FormulaComponent{Description: "Revenue enhancements: new, retention, pricing, transaction", Weight: 1},
		Co:            FormulaComponent{Description: "Cost savings: direct, quality, risk, time", Weight: 1},
		I:             FormulaComponent{Description: "Implementation and switching cost", Weight: 1},
		Justification: extract.Sentinel,
	}
}

func fallbackParameters() []EVCParameters {
	return normalizeParameters(nil)
}

func fallbackAssessment(segments []Segment) MarketAssessment {
	return MarketAssessment{Segments: normalizeMarkets(nil, segments), Summary: extract.Sentinel}
}

func fallbackNarrative(priorities []PriorityScore) PriorityNarrative {
	pn := PriorityNarrative{Summary: extract.Sentinel}
	for _, p := range priorities {
		pn.Strategies = append(pn.Strategies, ApproachStrategy{
			SegmentID:        p.SegmentID,
			ValueProposition: extract.Sentinel,
		})
	}
	return pn
}

func serviceAnalysisPrompt(serviceDescription, businessDoc string) string {
	var b strings.Builder
	b.WriteString("Analyze the following B2B service and profile it for go-to-market planning.\n\n")
	b.WriteString("SERVICE DESCRIPTION:\n" + serviceDescription + "\n\n")
	if strings.TrimSpace(businessDoc) != "" {
		b.WriteString("SUPPORTING BUSINESS DOCUMENT:\n" + businessDoc + "\n\n")
	}
	b.WriteString(`Return strict JSON:
{
  "name": "<service name>",
  "description": "<one paragraph>",
  "business_model": "<how it earns money>",
  "delivery_method": "<how it reaches customers>",
  "features": ["..."],
  "unique_selling_points": ["..."],
  "summary": "<two sentences>"
}`)
	return b.String()
}

func segmentExtractionPrompt(analysis ServiceAnalysis, marketData string) string {
	var b strings.Builder
	b.WriteString("Partition the addressable market for this service into exactly four segments, one per quadrant of value potential (high/low) crossed with implementation ease (low_barrier/high_barrier).\n\n")
	b.WriteString("SERVICE PROFILE:\n" + mustJSON(analysis) + "\n\n")
	if strings.TrimSpace(marketData) != "" {
		b.WriteString("MARKET DATA:\n" + marketData + "\n\n")
	}
	b.WriteString(`Return strict JSON:
{
  "segments": [
    {
      "name": "<segment name>",
      "description": "<who they are>",
      "value_potential": "high|low",
      "implementation_ease": "low_barrier|high_barrier",
      "characteristics": ["..."],
      "market_size": <number of accounts>,
      "acquisition_probability": <0.0-1.0>
    }
  ]
}
Every quadrant must appear exactly once.`)
	return b.String()
}

func referenceProductsPrompt(analysis ServiceAnalysis) string {
	return "Identify the closest competing offers that customers would compare against this service.\n\n" +
		"SERVICE PROFILE:\n" + mustJSON(analysis) + "\n\n" + `Return strict JSON:
{
  "products": [
    {
      "name": "<product>",
      "vendor": "<company>",
      "description": "<what it does>",
      "features": ["..."],
      "pricing": "<published or typical pricing>",
      "strengths": ["..."],
      "weaknesses": ["..."]
    }
  ]
}`
}

func valueAnalysisPrompt(analysis ServiceAnalysis, products []ReferenceProduct) string {
	return "Decompose where this service makes or saves money for a customer relative to the reference products.\n\n" +
		"SERVICE PROFILE:\n" + mustJSON(analysis) + "\n\n" +
		"REFERENCE PRODUCTS:\n" + mustJSON(products) + "\n\n" + `Return strict JSON:
{
  "revenue_factors": [{"name": "...", "impact": "...", "description": "..."}],
  "cost_factors": [{"name": "...", "impact": "...", "description": "..."}],
  "reference_price_low": <annual price, low end>,
  "reference_price_high": <annual price, high end>,
  "summary": "<two sentences>"
}`
}

func valueComparisonPrompt(segments []Segment, va ValueAnalysis, products []ReferenceProduct) string {
	return "Score the service against every reference product for each customer segment.\n\n" +
		"SEGMENTS:\n" + mustJSON(segments) + "\n\n" +
		"VALUE ANALYSIS:\n" + mustJSON(va) + "\n\n" +
		"REFERENCE PRODUCTS:\n" + mustJSON(products) + "\n\n" + `Return strict JSON:
{
  "segments": [
    {
      "segment_id": "s1",
      "criteria": [{"criterion": "<name>", "scores": {"<product name>": "<qualitative score>"}}],
      "polarity": [{"criterion": "<name>", "polarity": {"<product name>": "+|-|="}}],
      "value_gaps": ["<unmet need>"],
      "summary": "<one sentence>"
    }
  ]
}
Each criterion must carry a score and a polarity for every reference product.`
}

func formulaDesignPrompt(comparison ValueComparison) string {
	return "Design the economic value created (EVC) formula for this service. The base structure is fixed: EVC = R + (Re + Co) - I.\n\n" +
		"VALUE COMPARISON:\n" + mustJSON(comparison) + "\n\n" + `Return strict JSON:
{
  "base_formula": "EVC = R + (Re + Co) - I",
  "r":  {"description": "<reference price meaning>", "weight": 1.0},
  "re": {"description": "<revenue enhancement meaning>", "weight": <0.5-1.5>},
  "co": {"description": "<cost saving meaning>", "weight": <0.5-1.5>},
  "i":  {"description": "<implementation cost meaning>", "weight": 1.0},
  "revenue_subcomponents": {"rn": "new revenue", "rr": "retention revenue", "rp": "pricing revenue", "rt": "transaction revenue"},
  "cost_subcomponents": {"cd": "direct savings", "cq": "quality savings", "cr": "risk savings", "ct": "time savings"},
  "segment_adjustments": {"s1": {"re": 1.2, "co": 1.0, "i": 0.8}, "s2": {"re": 1.0, "co": 1.0, "i": 1.2}, "s3": {"re": 0.8, "co": 1.0, "i": 0.9}, "s4": {"re": 0.7, "co": 0.9, "i": 1.3}},
  "justification": "<why these weights>"
}`
}

func evcParametersPrompt(formula FormulaSpec, segments []Segment) string {
	return "Estimate annual monetary values for every EVC component, per segment. Do not compute totals; report component estimates only.\n\n" +
		"FORMULA:\n" + mustJSON(formula) + "\n\n" +
		"SEGMENTS:\n" + mustJSON(segments) + "\n\n" + `Return strict JSON:
{
  "parameters": [
    {
      "segment_id": "s1",
      "reference_price": <R>,
      "new_revenue": <Rn>, "retention_revenue": <Rr>, "pricing_revenue": <Rp>, "transaction_revenue": <Rt>,
      "direct_cost_saving": <Cd>, "quality_cost_saving": <Cq>, "risk_cost_saving": <Cr>, "time_cost_saving": <Ct>,
      "implementation_cost": <I>,
      "rationale": "<one sentence>"
    }
  ]
}
One entry per segment id s1 through s4.`
}

func marketAssessmentPrompt(segments []Segment, marketData string) string {
	var b strings.Builder
	b.WriteString("Estimate the reachable market per segment: number of accounts and the probability of winning one.\n\n")
	b.WriteString("SEGMENTS:\n" + mustJSON(segments) + "\n\n")
	if strings.TrimSpace(marketData) != "" {
		b.WriteString("MARKET DATA:\n" + marketData + "\n\n")
	}
	b.WriteString(`Return strict JSON:
{
  "segments": [
    {"segment_id": "s1", "market_size": <accounts>, "acquisition_probability": <0.0-1.0>, "rationale": "<one sentence>"}
  ],
  "summary": "<two sentences>"
}
One entry per segment id s1 through s4.`)
	return b.String()
}

func priorityNarrativePrompt(priorities []PriorityScore) string {
	return "The segments below are already ranked by computed priority. Do not change ranks or numbers. Write the go-to-market approach for each segment.\n\n" +
		"PRIORITIES:\n" + mustJSON(priorities) + "\n\n" + `Return strict JSON:
{
  "strategies": [
    {
      "segment_id": "s1",
      "key_messages": ["..."],
      "value_proposition": "<one sentence>",
      "sales_tactics": ["..."],
      "success_metrics": ["..."]
    }
  ],
  "summary": "<executive summary, one paragraph>",
  "recommendations": ["<action>"]
}`
}

func mustJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
