package segmentation

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Report is the final artifact of a run. Markdown holds the rendered
// document; the remaining fields are the structured envelope persisted
// to the run store.
type Report struct {
	RunID           string                  `json:"run_id"`
	GeneratedAt     time.Time               `json:"generated_at"`
	Mode            ReportMode              `json:"mode"`
	Service         *ServiceAnalysis        `json:"service,omitempty"`
	Segments        []Segment               `json:"segments,omitempty"`
	Products        []ReferenceProduct      `json:"reference_products,omitempty"`
	ValueAnalysis   *ValueAnalysis          `json:"value_analysis,omitempty"`
	Comparison      *ValueComparison        `json:"value_comparison,omitempty"`
	Formula         *FormulaSpec            `json:"evc_formula,omitempty"`
	EVCResults      []EVCResult             `json:"evc_results,omitempty"`
	Potentials      []MarketPotential       `json:"market_potentials,omitempty"`
	Priorities      []PriorityScore         `json:"priorities,omitempty"`
	Strategies      []ApproachStrategy      `json:"strategies,omitempty"`
	Summary         string                  `json:"summary,omitempty"`
	Recommendations []string                `json:"recommendations,omitempty"`
	StageOutcomes   map[string]StageOutcome `json:"stage_outcomes"`
	Metadata        RunMetadata             `json:"metadata"`
	Markdown        string                  `json:"report_markdown"`
}

// AssembleReport turns a pipeline result, complete or partial, into the
// final report. Resource allocation is assigned here so that the
// percentages always reflect the priorities actually reported.
func AssembleReport(res Result) Report {
	priorities := allocateResources(res.Priorities)

	rep := Report{
		RunID:         res.Request.RunID,
		GeneratedAt:   time.Now().UTC(),
		Mode:          res.Metadata.Mode,
		Service:       res.Analysis,
		Segments:      res.Segments,
		Products:      res.Products,
		ValueAnalysis: res.ValueAnalysis,
		Comparison:    res.Comparison,
		Formula:       res.Formula,
		EVCResults:    res.EVCResults,
		Potentials:    res.Potentials,
		Priorities:    priorities,
		StageOutcomes: res.Outcomes,
		Metadata:      res.Metadata,
	}
	if res.Narrative != nil {
		rep.Strategies = res.Narrative.Strategies
		rep.Summary = res.Narrative.Summary
		rep.Recommendations = res.Narrative.Recommendations
	}
	rep.Markdown = buildMarkdown(rep)
	return rep
}

// allocateResources assigns integer percentages by the largest
// remainder method: floor each raw share, then hand the leftover points
// to the largest fractional remainders, canonical order breaking ties.
// The results sum to exactly 100 whenever any importance is positive.
func allocateResources(priorities []PriorityScore) []PriorityScore {
	if len(priorities) == 0 {
		return priorities
	}
	out := make([]PriorityScore, len(priorities))
	copy(out, priorities)

	var totalImportance float64
	for _, p := range out {
		if p.RelativeImportance > 0 {
			totalImportance += p.RelativeImportance
		}
	}
	if totalImportance <= 0 {
		return out
	}

	floors := make([]int, len(out))
	remainders := make([]float64, len(out))
	assigned := 0
	for i, p := range out {
		share := p.RelativeImportance
		if share < 0 {
			share = 0
		}
		raw := share / totalImportance * 100
		floors[i] = int(math.Floor(raw))
		remainders[i] = raw - math.Floor(raw)
		assigned += floors[i]
	}

	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if remainders[ia] != remainders[ib] {
			return remainders[ia] > remainders[ib]
		}
		return canonicalIndex(out[ia].SegmentID) < canonicalIndex(out[ib].SegmentID)
	})
	for i := 0; i < 100-assigned; i++ {
		floors[order[i%len(order)]]++
	}
	for i := range out {
		out[i].ResourceAllocationPercent = floors[i]
	}
	return out
}

func buildMarkdown(rep Report) string {
	var b strings.Builder

	serviceName := ""
	if rep.Service != nil {
		serviceName = rep.Service.Name
	}
	fmt.Fprintf(&b, "# Go-to-Market Priority Report\n\n")
	if serviceName != "" {
		fmt.Fprintf(&b, "**Service:** %s\n\n", serviceName)
	}
	fmt.Fprintf(&b, "**Run:** %s  \n**Generated:** %s  \n**Mode:** %s\n\n",
		rep.RunID, rep.GeneratedAt.Format(time.RFC3339), rep.Mode)

	if rep.Mode == ModePartial {
		fmt.Fprintf(&b, "> Pipeline aborted at stage `%s`: %s. Sections below cover only the waves that completed.\n\n",
			rep.Metadata.FailedStage, rep.Metadata.FailureCause)
	}

	if rep.Summary != "" {
		fmt.Fprintf(&b, "## Executive Summary\n\n%s\n\n", rep.Summary)
	}

	if len(rep.Priorities) > 0 {
		fmt.Fprintf(&b, "## Segment Priorities\n\n")
		fmt.Fprintf(&b, "| Rank | Segment | EVC | Market Size | Acq. Prob. | Total Potential | Importance | Allocation |\n")
		fmt.Fprintf(&b, "|------|---------|-----|-------------|------------|-----------------|------------|------------|\n")
		ranked := make([]PriorityScore, len(rep.Priorities))
		copy(ranked, rep.Priorities)
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Rank < ranked[j].Rank })
		for _, p := range ranked {
			fmt.Fprintf(&b, "| %d | %s | %s | %d | %.0f%% | %s | %.1f%% | %d%% |\n",
				p.Rank, p.SegmentName, formatMoney(p.EVC), p.MarketSize,
				p.AcquisitionProbability*100, formatMoney(p.TotalPotential),
				p.RelativeImportance*100, p.ResourceAllocationPercent)
		}
		fmt.Fprintf(&b, "\n")
	}

	if rep.Service != nil {
		fmt.Fprintf(&b, "## Service Profile\n\n%s\n\n", rep.Service.Description)
		if rep.Service.BusinessModel != "" {
			fmt.Fprintf(&b, "- **Business model:** %s\n", rep.Service.BusinessModel)
		}
		if rep.Service.DeliveryMethod != "" {
			fmt.Fprintf(&b, "- **Delivery:** %s\n", rep.Service.DeliveryMethod)
		}
		for _, usp := range rep.Service.UniqueSellingPoints {
			fmt.Fprintf(&b, "- %s\n", usp)
		}
		fmt.Fprintf(&b, "\n")
	}

	if len(rep.Segments) > 0 {
		fmt.Fprintf(&b, "## Customer Segments\n\n")
		for _, s := range rep.Segments {
			fmt.Fprintf(&b, "### %s (%s)\n\n%s\n\n", s.Name, s.ID, s.Description)
			for _, c := range s.Characteristics {
				fmt.Fprintf(&b, "- %s\n", c)
			}
			fmt.Fprintf(&b, "\n")
		}
	}

	if len(rep.Products) > 0 {
		fmt.Fprintf(&b, "## Reference Products\n\n")
		fmt.Fprintf(&b, "| Product | Vendor | Pricing |\n|---------|--------|--------|\n")
		for _, p := range rep.Products {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", p.Name, p.Vendor, p.Pricing)
		}
		fmt.Fprintf(&b, "\n")
	}

	if len(rep.EVCResults) > 0 {
		fmt.Fprintf(&b, "## Economic Value Created\n\n")
		if rep.Formula != nil && rep.Formula.BaseFormula != "" {
			fmt.Fprintf(&b, "Formula: `%s`\n\n", rep.Formula.BaseFormula)
		}
		fmt.Fprintf(&b, "| Segment | Reference Price | Revenue (Re) | Cost Savings (Co) | Implementation (I) | Final EVC |\n")
		fmt.Fprintf(&b, "|---------|-----------------|--------------|-------------------|--------------------|-----------|\n")
		for _, e := range rep.EVCResults {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				e.SegmentName, formatMoney(e.ReferencePrice), formatMoney(e.Revenue.Total),
				formatMoney(e.Cost.Total), formatMoney(e.ImplementationCost), formatMoney(e.FinalEVC))
		}
		fmt.Fprintf(&b, "\n")
	}

	if len(rep.Strategies) > 0 {
		fmt.Fprintf(&b, "## Approach Strategies\n\n")
		for _, s := range rep.Strategies {
			fmt.Fprintf(&b, "### %s\n\n", CanonicalSegmentName(s.SegmentID))
			if s.ValueProposition != "" {
				fmt.Fprintf(&b, "**Value proposition:** %s\n\n", s.ValueProposition)
			}
			writeBulletSection(&b, "Key messages", s.KeyMessages)
			writeBulletSection(&b, "Sales tactics", s.SalesTactics)
			writeBulletSection(&b, "Success metrics", s.SuccessMetrics)
		}
	}

	if len(rep.Recommendations) > 0 {
		fmt.Fprintf(&b, "## Recommendations\n\n")
		for _, r := range rep.Recommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		fmt.Fprintf(&b, "\n")
	}

	degraded := degradedStages(rep.StageOutcomes)
	if len(degraded) > 0 {
		fmt.Fprintf(&b, "## Data Quality Notes\n\n")
		fmt.Fprintf(&b, "The following stages returned unusable structure and fell back to placeholder records: %s.\n\n",
			strings.Join(degraded, ", "))
	}

	return b.String()
}

func writeBulletSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "**%s:**\n\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	fmt.Fprintf(b, "\n")
}

func degradedStages(outcomes map[string]StageOutcome) []string {
	var out []string
	for name, o := range outcomes {
		if o.Degraded {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func formatMoney(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	whole := int64(math.Round(v))
	s := fmt.Sprintf("%d", whole)
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := "$" + strings.Join(parts, ",")
	if neg {
		return "-" + out
	}
	return out
}
