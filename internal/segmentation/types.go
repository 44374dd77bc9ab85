// Package segmentation runs the go-to-market segmentation pipeline: a
// fixed wave graph of reasoning stages followed by deterministic EVC
// scoring, priority ranking, and report assembly.
package segmentation

import "time"

// SegmentID is one of the four canonical segment identifiers derived
// from the value-potential and implementation-ease axes.
type SegmentID string

const (
	SegmentHighValueLowBarrier  SegmentID = "s1"
	SegmentHighValueHighBarrier SegmentID = "s2"
	SegmentLowValueLowBarrier   SegmentID = "s3"
	SegmentLowValueHighBarrier  SegmentID = "s4"
)

// CanonicalSegmentOrder breaks every ranking and allocation tie.
var CanonicalSegmentOrder = []SegmentID{
	SegmentHighValueLowBarrier,
	SegmentHighValueHighBarrier,
	SegmentLowValueLowBarrier,
	SegmentLowValueHighBarrier,
}

func canonicalIndex(id SegmentID) int {
	for i, s := range CanonicalSegmentOrder {
		if s == id {
			return i
		}
	}
	return len(CanonicalSegmentOrder)
}

// CanonicalSegmentName maps an identifier to its display name.
func CanonicalSegmentName(id SegmentID) string {
	switch id {
	case SegmentHighValueLowBarrier:
		return "High Value, Low Barrier"
	case SegmentHighValueHighBarrier:
		return "High Value, High Barrier"
	case SegmentLowValueLowBarrier:
		return "Low Value, Low Barrier"
	case SegmentLowValueHighBarrier:
		return "Low Value, High Barrier"
	}
	return string(id)
}

const (
	ValueHigh = "high"
	ValueLow  = "low"

	BarrierLow  = "low_barrier"
	BarrierHigh = "high_barrier"
)

// segmentIDFor maps the two axes onto the canonical identifier.
func segmentIDFor(valuePotential, implementationEase string) SegmentID {
	switch {
	case valuePotential == ValueHigh && implementationEase == BarrierLow:
		return SegmentHighValueLowBarrier
	case valuePotential == ValueHigh && implementationEase == BarrierHigh:
		return SegmentHighValueHighBarrier
	case valuePotential == ValueLow && implementationEase == BarrierLow:
		return SegmentLowValueLowBarrier
	default:
		return SegmentLowValueHighBarrier
	}
}

// ServiceAnalysis is the wave 1 profile of the service under analysis.
type ServiceAnalysis struct {
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	BusinessModel       string   `json:"business_model"`
	DeliveryMethod      string   `json:"delivery_method"`
	Features            []string `json:"features"`
	UniqueSellingPoints []string `json:"unique_selling_points"`
	Summary             string   `json:"summary"`
}

// Segment is one of the four customer segments.
type Segment struct {
	ID                     SegmentID `json:"segment_id"`
	Name                   string    `json:"name"`
	Description            string    `json:"description"`
	ValuePotential         string    `json:"value_potential"`
	ImplementationEase     string    `json:"implementation_ease"`
	Characteristics        []string  `json:"characteristics"`
	MarketSize             int       `json:"market_size"`
	AcquisitionProbability float64   `json:"acquisition_probability"`
}

// ReferenceProduct is a competing offer used to anchor value analysis.
type ReferenceProduct struct {
	Name        string   `json:"name"`
	Vendor      string   `json:"vendor"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
	Pricing     string   `json:"pricing"`
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
}

// ValueFactor is one revenue or cost driver surfaced by value analysis.
type ValueFactor struct {
	Name        string `json:"name"`
	Impact      string `json:"impact"`
	Description string `json:"description"`
}

// ValueAnalysis is the wave 3 decomposition of where the service makes
// or saves money relative to the reference products.
type ValueAnalysis struct {
	RevenueFactors     []ValueFactor `json:"revenue_factors"`
	CostFactors        []ValueFactor `json:"cost_factors"`
	ReferencePriceLow  float64       `json:"reference_price_low"`
	ReferencePriceHigh float64       `json:"reference_price_high"`
	Summary            string        `json:"summary"`
}

// CriterionScores holds one comparison criterion scored per product.
type CriterionScores struct {
	Criterion string            `json:"criterion"`
	Scores    map[string]string `json:"scores"`
}

// CriterionPolarity marks each product "+", "-", or "=" on a criterion
// relative to the analyzed service.
type CriterionPolarity struct {
	Criterion string            `json:"criterion"`
	Polarity  map[string]string `json:"polarity"`
}

// SegmentComparison is the per-segment slice of the comparison matrix.
type SegmentComparison struct {
	SegmentID SegmentID           `json:"segment_id"`
	Criteria  []CriterionScores   `json:"criteria"`
	Polarity  []CriterionPolarity `json:"polarity"`
	ValueGaps []string            `json:"value_gaps"`
	Summary   string              `json:"summary"`
}

// ValueComparison is the wave 4 criterion-by-product matrix across all
// four segments.
type ValueComparison struct {
	Segments []SegmentComparison `json:"segments"`
}

// FormulaComponent describes one term of the EVC formula with its
// weight. A zero weight is read as the default 1.0.
type FormulaComponent struct {
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

// ComponentAdjustment scales Re, Co, and I for one segment. Zero values
// are read as 1.0.
type ComponentAdjustment struct {
	Re float64 `json:"re"`
	Co float64 `json:"co"`
	I  float64 `json:"i"`
}

// FormulaSpec is the wave 5 design of the EVC formula: component
// descriptions, weights, and per-segment adjustments.
type FormulaSpec struct {
	BaseFormula          string                            `json:"base_formula"`
	R                    FormulaComponent                  `json:"r"`
	Re                   FormulaComponent                  `json:"re"`
	Co                   FormulaComponent                  `json:"co"`
	I                    FormulaComponent                  `json:"i"`
	RevenueSubcomponents map[string]string                 `json:"revenue_subcomponents"`
	CostSubcomponents    map[string]string                 `json:"cost_subcomponents"`
	SegmentAdjustments   map[SegmentID]ComponentAdjustment `json:"segment_adjustments"`
	Justification        string                            `json:"justification"`
}

// EVCParameters are the per-segment monetary estimates produced by the
// evc_calculation stage. All amounts are annual currency units.
type EVCParameters struct {
	SegmentID          SegmentID `json:"segment_id"`
	ReferencePrice     float64   `json:"reference_price"`
	NewRevenue         float64   `json:"new_revenue"`
	RetentionRevenue   float64   `json:"retention_revenue"`
	PricingRevenue     float64   `json:"pricing_revenue"`
	TransactionRevenue float64   `json:"transaction_revenue"`
	DirectCostSaving   float64   `json:"direct_cost_saving"`
	QualityCostSaving  float64   `json:"quality_cost_saving"`
	RiskCostSaving     float64   `json:"risk_cost_saving"`
	TimeCostSaving     float64   `json:"time_cost_saving"`
	ImplementationCost float64   `json:"implementation_cost"`
	Rationale          string    `json:"rationale"`
}

// RevenueBreakdown is the Re term: new, retention, pricing, and
// transaction revenue enhancements.
type RevenueBreakdown struct {
	New         float64 `json:"new"`
	Retention   float64 `json:"retention"`
	Pricing     float64 `json:"pricing"`
	Transaction float64 `json:"transaction"`
	Total       float64 `json:"total"`
}

// CostBreakdown is the Co term: direct, quality, risk, and time cost
// savings.
type CostBreakdown struct {
	Direct  float64 `json:"direct"`
	Quality float64 `json:"quality"`
	Risk    float64 `json:"risk"`
	Time    float64 `json:"time"`
	Total   float64 `json:"total"`
}

// EVCResult is the deterministic economic value created for a segment.
type EVCResult struct {
	SegmentID          SegmentID        `json:"segment_id"`
	SegmentName        string           `json:"segment_name"`
	ReferencePrice     float64          `json:"reference_price"`
	Revenue            RevenueBreakdown `json:"revenue"`
	Cost               CostBreakdown    `json:"cost"`
	ImplementationCost float64          `json:"implementation_cost"`
	FinalEVC           float64          `json:"final_evc"`
}

// SegmentMarket is the market_potential stage estimate for one segment.
type SegmentMarket struct {
	SegmentID              SegmentID `json:"segment_id"`
	MarketSize             int       `json:"market_size"`
	AcquisitionProbability float64   `json:"acquisition_probability"`
	Rationale              string    `json:"rationale"`
}

// MarketAssessment collects the market estimates across segments.
type MarketAssessment struct {
	Segments []SegmentMarket `json:"segments"`
	Summary  string          `json:"summary"`
}

// MarketPotential is the deterministic per-segment opportunity size:
// EVC scaled by market size and acquisition probability.
type MarketPotential struct {
	SegmentID              SegmentID `json:"segment_id"`
	MarketSize             int       `json:"market_size"`
	AcquisitionProbability float64   `json:"acquisition_probability"`
	TotalPotential         float64   `json:"total_potential"`
}

// PriorityScore ranks one segment. RelativeImportance values sum to 1.0
// across the four segments; ResourceAllocationPercent values sum to
// exactly 100.
type PriorityScore struct {
	SegmentID                 SegmentID `json:"segment_id"`
	SegmentName               string    `json:"segment_name"`
	EVC                       float64   `json:"evc"`
	MarketSize                int       `json:"market_size"`
	AcquisitionProbability    float64   `json:"acquisition_probability"`
	TotalPotential            float64   `json:"total_potential"`
	RelativeImportance        float64   `json:"relative_importance"`
	Rank                      int       `json:"rank"`
	ResourceAllocationPercent int       `json:"resource_allocation_percent"`
}

// ApproachStrategy is the wave 7 go-to-market guidance for one segment.
type ApproachStrategy struct {
	SegmentID        SegmentID `json:"segment_id"`
	KeyMessages      []string  `json:"key_messages"`
	ValueProposition string    `json:"value_proposition"`
	SalesTactics     []string  `json:"sales_tactics"`
	SuccessMetrics   []string  `json:"success_metrics"`
}

// PriorityNarrative is the wave 7 stage output wrapping the strategies.
type PriorityNarrative struct {
	Strategies      []ApproachStrategy `json:"strategies"`
	Summary         string             `json:"summary"`
	Recommendations []string           `json:"recommendations"`
}

// StageOutcome records how one stage resolved, independent of its typed
// output. Degraded marks the sentinel fallback path.
type StageOutcome struct {
	Stage    string         `json:"stage"`
	Degraded bool           `json:"degraded"`
	Failure  string         `json:"failure,omitempty"`
	RawText  string         `json:"raw_text,omitempty"`
	Record   map[string]any `json:"record,omitempty"`
	Metrics  StageMetrics   `json:"metrics"`
}

// StageMetrics counts collaborator interactions for one stage.
type StageMetrics struct {
	Attempts         int `json:"attempts"`
	TransientRetries int `json:"transient_retries"`
	TerminalRetries  int `json:"terminal_retries"`
	Polls            int `json:"polls"`
}

// ReportMode distinguishes full runs from aborted ones.
type ReportMode string

const (
	ModeComplete ReportMode = "COMPLETE"
	ModePartial  ReportMode = "PARTIAL"
)

// RunMetadata describes one pipeline execution.
type RunMetadata struct {
	RunID          string     `json:"run_id"`
	Model          string     `json:"model,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    time.Time  `json:"completed_at"`
	WavesCompleted int        `json:"waves_completed"`
	StagesExecuted []string   `json:"stages_executed"`
	FailedStage    string     `json:"failed_stage,omitempty"`
	FailureCause   string     `json:"failure_cause,omitempty"`
	Mode           ReportMode `json:"mode"`
}
