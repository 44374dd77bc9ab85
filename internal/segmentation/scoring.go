package segmentation

import (
	"sort"
)

// Scoring is pure arithmetic over stage outputs. No reasoning
// collaborator is consulted here; two runs over the same inputs produce
// identical numbers.

// ComputeEVC evaluates the EVC formula for one segment:
//
//	FinalEVC = R + (wRe*Re.Total + wCo*Co.Total) - wI*I
//
// where the effective weights combine the formula component weights
// with the segment adjustment, both defaulting to 1.0.
func ComputeEVC(formula FormulaSpec, p EVCParameters) EVCResult {
	wRe, wCo, wI := effectiveWeights(formula, p.SegmentID)

	rev := RevenueBreakdown{
		New:         p.NewRevenue,
		Retention:   p.RetentionRevenue,
		Pricing:     p.PricingRevenue,
		Transaction: p.TransactionRevenue,
	}
	rev.Total = rev.New + rev.Retention + rev.Pricing + rev.Transaction

	cost := CostBreakdown{
		Direct:  p.DirectCostSaving,
		Quality: p.QualityCostSaving,
		Risk:    p.RiskCostSaving,
		Time:    p.TimeCostSaving,
	}
	cost.Total = cost.Direct + cost.Quality + cost.Risk + cost.Time

	return EVCResult{
		SegmentID:          p.SegmentID,
		SegmentName:        CanonicalSegmentName(p.SegmentID),
		ReferencePrice:     p.ReferencePrice,
		Revenue:            rev,
		Cost:               cost,
		ImplementationCost: p.ImplementationCost,
		FinalEVC:           p.ReferencePrice + (wRe*rev.Total + wCo*cost.Total) - wI*p.ImplementationCost,
	}
}

func effectiveWeights(f FormulaSpec, id SegmentID) (wRe, wCo, wI float64) {
	wRe = weightOrUnit(f.Re.Weight)
	wCo = weightOrUnit(f.Co.Weight)
	wI = weightOrUnit(f.I.Weight)
	if adj, ok := f.SegmentAdjustments[id]; ok {
		wRe *= weightOrUnit(adj.Re)
		wCo *= weightOrUnit(adj.Co)
		wI *= weightOrUnit(adj.I)
	}
	return wRe, wCo, wI
}

func weightOrUnit(w float64) float64 {
	if w == 0 {
		return 1
	}
	return w
}

// ComputeMarketPotential scales a segment's EVC by its market size and
// acquisition probability. Negative sizes clamp to zero; probabilities
// clamp into [0, 1].
func ComputeMarketPotential(evc EVCResult, market SegmentMarket) MarketPotential {
	size := market.MarketSize
	if size < 0 {
		size = 0
	}
	prob := market.AcquisitionProbability
	if prob < 0 {
		prob = 0
	}
	if prob > 1 {
		prob = 1
	}
	return MarketPotential{
		SegmentID:              evc.SegmentID,
		MarketSize:             size,
		AcquisitionProbability: prob,
		TotalPotential:         evc.FinalEVC * float64(size) * prob,
	}
}

// ComputePriorities ranks the four segments by total potential.
// RelativeImportance normalizes potentials to sum 1.0; when every
// potential is zero or the sum is not positive, each segment gets an
// equal 0.25. Rank is descending by importance with ties broken by
// canonical segment order.
func ComputePriorities(evcs []EVCResult, potentials []MarketPotential) []PriorityScore {
	evcByID := make(map[SegmentID]EVCResult, len(evcs))
	for _, e := range evcs {
		evcByID[e.SegmentID] = e
	}
	potByID := make(map[SegmentID]MarketPotential, len(potentials))
	for _, p := range potentials {
		potByID[p.SegmentID] = p
	}

	var total float64
	for _, id := range CanonicalSegmentOrder {
		if pot, ok := potByID[id]; ok && pot.TotalPotential > 0 {
			total += pot.TotalPotential
		}
	}

	scores := make([]PriorityScore, 0, len(CanonicalSegmentOrder))
	for _, id := range CanonicalSegmentOrder {
		pot := potByID[id]
		importance := 0.25
		if total > 0 {
			p := pot.TotalPotential
			if p < 0 {
				p = 0
			}
			importance = p / total
		}
		scores = append(scores, PriorityScore{
			SegmentID:              id,
			SegmentName:            CanonicalSegmentName(id),
			EVC:                    evcByID[id].FinalEVC,
			MarketSize:             pot.MarketSize,
			AcquisitionProbability: pot.AcquisitionProbability,
			TotalPotential:         pot.TotalPotential,
			RelativeImportance:     importance,
		})
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if scores[ia].RelativeImportance != scores[ib].RelativeImportance {
			return scores[ia].RelativeImportance > scores[ib].RelativeImportance
		}
		return canonicalIndex(scores[ia].SegmentID) < canonicalIndex(scores[ib].SegmentID)
	})
	for rank, idx := range order {
		scores[idx].Rank = rank + 1
	}
	return scores
}
