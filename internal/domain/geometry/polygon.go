// Package geometry turns boundary vertex lists into room polygon candidates
// and decides the drawing's measurement units.
package geometry

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/stat"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
)

// MinRoomArea is the smallest accepted room, in m². The same figure, taken
// in raw drawing units², is the bounding-box pre-filter: a shape that small
// in raw units is below the limit in every supported unit system.
const MinRoomArea = 0.2

const (
	// millimeterAreaThreshold is the mean sampled raw area above which
	// coordinates are taken to be millimeters.
	millimeterAreaThreshold = 1_000_000.0
	mm2ToM2                 = 1e-6
	unitSampleSize          = 5
	significantRawArea      = 1.0
)

// Units describes how raw drawing areas convert to m².
type Units struct {
	Name   string  // "meters" or "millimeters"
	Factor float64 // multiply raw area by this to get m²
}

var (
	Meters      = Units{Name: "meters", Factor: 1}
	Millimeters = Units{Name: "millimeters", Factor: mm2ToM2}
)

// Build closes, measures and deduplicates the vertex lists. Input order is
// preserved and the first boundary with a given key wins.
func Build(vertexLists [][]orb.Point) []entities.PolygonCandidate {
	seen := make(map[string]bool)
	var out []entities.PolygonCandidate

	for _, verts := range vertexLists {
		if len(verts) < 3 {
			continue
		}
		bound := orb.MultiPoint(verts).Bound()
		if bboxArea(bound) < MinRoomArea {
			continue
		}

		ring := closeRing(verts)
		if len(ring) < 4 {
			continue
		}
		area := math.Abs(planar.Area(ring))

		key := dedupKey(bound, area)
		if seen[key] {
			continue
		}
		seen[key] = true

		out = append(out, entities.PolygonCandidate{Ring: ring, RawArea: area, Bound: bound})
	}
	return out
}

// DetectUnits samples up to five significant candidates and averages their
// raw areas. Millimeters are assumed when that mean is large or the header
// says so; otherwise coordinates are taken as meters.
func DetectUnits(candidates []entities.PolygonCandidate, headerSaysMillimeters bool) Units {
	if headerSaysMillimeters {
		return Millimeters
	}

	var sample []float64
	for _, c := range candidates {
		if c.RawArea <= significantRawArea {
			continue
		}
		sample = append(sample, c.RawArea)
		if len(sample) == unitSampleSize {
			break
		}
	}
	if len(sample) == 0 {
		return Meters
	}
	if stat.Mean(sample, nil) > millimeterAreaThreshold {
		return Millimeters
	}
	return Meters
}

// closeRing copies verts into a ring whose last point equals its first,
// dropping consecutive duplicates.
func closeRing(verts []orb.Point) orb.Ring {
	ring := make(orb.Ring, 0, len(verts)+1)
	for _, p := range verts {
		if len(ring) > 0 && ring[len(ring)-1].Equal(p) {
			continue
		}
		ring = append(ring, p)
	}
	if len(ring) > 0 && !ring[0].Equal(ring[len(ring)-1]) {
		ring = append(ring, ring[0])
	}
	return ring
}

func bboxArea(b orb.Bound) float64 {
	return (b.Max[0] - b.Min[0]) * (b.Max[1] - b.Min[1])
}

// dedupKey rounds to a tenth of a unit so export noise collapses.
func dedupKey(b orb.Bound, area float64) string {
	return fmt.Sprintf("%.1f|%.1f|%.1f|%.1f|%.1f",
		roundTenth(b.Min[0]), roundTenth(b.Min[1]),
		roundTenth(b.Max[0]), roundTenth(b.Max[1]),
		roundTenth(area))
}

func roundTenth(v float64) float64 {
	r := math.Round(v*10) / 10
	if r == 0 {
		return 0 // fold -0
	}
	return r
}
