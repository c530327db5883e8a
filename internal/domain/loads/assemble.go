// Package loads applies classifications to rooms and rolls the results up
// into category and building totals. Every arithmetic step is rounded so
// independent runs agree exactly.
package loads

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
	"github.com/0xcro3dile/roomload-go/internal/domain/rooms"
)

// ErrClassificationFailed is the per-room error text for unmatched rooms.
const ErrClassificationFailed = "classification failed"

// DefaultCoincidentFactor applies no diversity reduction.
const DefaultCoincidentFactor = 1.0

// CoincidentFactorForMeters is the diversity factor for a building served
// through n meters: (0.67 + 0.33/√n) / 1.25. It returns the default factor
// for n < 1.
func CoincidentFactorForMeters(n int) float64 {
	if n < 1 {
		return DefaultCoincidentFactor
	}
	return (0.67 + 0.33/math.Sqrt(float64(n))) / 1.25
}

// Assembler merges classifications into per-room loads.
type Assembler struct {
	CoincidentFactor float64
}

// NewAssembler creates an Assembler using cf, or the default when cf <= 0.
func NewAssembler(cf float64) *Assembler {
	if cf <= 0 {
		cf = DefaultCoincidentFactor
	}
	return &Assembler{CoincidentFactor: cf}
}

// Assemble produces exactly one AssembledRoom per raw room, in input order.
// Each room is looked up by its own resolved label.
func (a *Assembler) Assemble(raw []entities.RawRoom, resolved []string, classes []entities.Classification) ([]entities.AssembledRoom, bool) {
	lookup := make(map[string]entities.Classification, len(classes))
	for _, c := range classes {
		key := rooms.Normalize(c.Name)
		if _, dup := lookup[key]; dup {
			continue
		}
		lookup[key] = c
	}

	out := make([]entities.AssembledRoom, 0, len(raw))
	failed := false
	for i, r := range raw {
		resolvedLabel := r.Label
		if i < len(resolved) {
			resolvedLabel = resolved[i]
		}
		room := entities.AssembledRoom{
			ID:              r.ID,
			Label:           r.Label,
			ResolvedLabel:   resolvedLabel,
			Area:            r.Area,
			LabelCandidates: r.LabelCandidates,
		}

		c, ok := lookup[rooms.Normalize(resolvedLabel)]
		if !ok {
			room.Error = ErrClassificationFailed
			failed = true
			out = append(out, room)
			continue
		}

		connected := Round2(c.LoadDensity * r.Area)
		demand := Round2(connected * c.DemandFactor * a.CoincidentFactor)
		room.Category = ptr(c.Category)
		room.CategoryDescription = ptr(c.CategoryDescription)
		room.LoadDensity = ptr(c.LoadDensity)
		room.DemandFactor = ptr(c.DemandFactor)
		room.CoincidentFactor = ptr(a.CoincidentFactor)
		room.ConnectedLoad = ptr(connected)
		room.DemandLoad = ptr(demand)
		room.LoadsIncluded = ptr(c.LoadsIncluded)
		room.ClimateControlIncluded = c.ClimateControlIncluded
		room.CodeReference = ptr(c.CodeReference)
		room.Rationale = ptr(c.Rationale)
		out = append(out, room)
	}
	return out, failed
}

// Summarize computes category roll-ups and building totals over the rooms
// that carry loads.
func Summarize(assembled []entities.AssembledRoom) entities.BuildingSummary {
	type acc struct {
		agg     entities.CategoryAggregate
		dfs     []float64
		cfs     []float64
		conn    []float64
		demands []float64
	}
	groups := make(map[string]*acc)
	var codes []string
	var connected, demand float64

	for _, r := range assembled {
		if r.Failed() {
			continue
		}
		code := deref(r.Category)
		g, ok := groups[code]
		if !ok {
			g = &acc{agg: entities.CategoryAggregate{Category: code, Description: deref(r.CategoryDescription)}}
			groups[code] = g
			codes = append(codes, code)
		}
		g.agg.RoomCount++
		g.dfs = append(g.dfs, *r.DemandFactor)
		g.cfs = append(g.cfs, *r.CoincidentFactor)
		g.conn = append(g.conn, *r.ConnectedLoad)
		g.demands = append(g.demands, *r.DemandLoad)

		connected = Round2(connected + *r.ConnectedLoad)
		demand = Round2(demand + *r.DemandLoad)
	}

	sort.Strings(codes)
	breakdown := make([]entities.CategoryAggregate, 0, len(codes))
	for _, code := range codes {
		g := groups[code]
		g.agg.ConnectedLoad = sum2(g.conn)
		g.agg.DemandLoad = sum2(g.demands)
		g.agg.AvgDemandFactor = Round4(stat.Mean(g.dfs, nil))
		g.agg.AvgCoincidentFactor = Round4(stat.Mean(g.cfs, nil))
		breakdown = append(breakdown, g.agg)
	}

	summary := entities.BuildingSummary{
		TotalConnectedLoad: connected,
		TotalDemandLoad:    demand,
		TotalDemandLoadKVA: Round2(demand / 1000),
		CategoryBreakdown:  breakdown,
	}
	if connected != 0 {
		summary.EffectiveDemandFactor = Round4(demand / connected)
	}
	return summary
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round4 rounds half away from zero to four decimals.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// sum2 adds values in order, rounding after each step.
func sum2(vals []float64) float64 {
	total := 0.0
	for _, v := range vals {
		total = Round2(total + v)
	}
	return total
}

func ptr[T any](v T) *T { return &v }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
