// Package labeling assigns text labels to room polygons.
package labeling

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
	"github.com/0xcro3dile/roomload-go/internal/domain/geometry"
)

// ErrNoRooms means no polygon survived the minimum-area filter.
var ErrNoRooms = errors.New("no valid room polygons found")

// DefaultTolerance is how far, in raw drawing units, a label anchor may sit
// outside its room boundary.
const DefaultTolerance = 500.0

// boundaryEpsilon is the distance under which a point counts as lying on a
// ring edge rather than strictly inside it.
const boundaryEpsilon = 1e-9

// Matcher pairs texts with polygons.
type Matcher struct {
	Tolerance float64
}

// NewMatcher creates a Matcher with the default tolerance.
func NewMatcher() *Matcher {
	return &Matcher{Tolerance: DefaultTolerance}
}

type roomSlot struct {
	poly       entities.PolygonCandidate
	area       float64
	candidates []string
}

// Match builds one RawRoom per polygon whose converted area reaches
// MinRoomArea. Labels strictly inside a polygon are taken first; labels left
// over are then given to the nearest polygon within the tolerance.
func (m *Matcher) Match(polys []entities.PolygonCandidate, texts []entities.TextEntity, units geometry.Units) ([]entities.RawRoom, error) {
	var slots []*roomSlot
	for _, p := range polys {
		area := p.RawArea * units.Factor
		if area < geometry.MinRoomArea {
			continue
		}
		slots = append(slots, &roomSlot{poly: p, area: area})
	}
	if len(slots) == 0 {
		return nil, ErrNoRooms
	}

	matched := make([]bool, len(texts))
	for _, s := range slots {
		for i, t := range texts {
			if strictlyInside(s.poly.Ring, t.Insertion) {
				s.candidates = append(s.candidates, t.Content)
				matched[i] = true
			}
		}
	}

	for i, t := range texts {
		if matched[i] {
			continue
		}
		if s := m.nearest(slots, t.Insertion); s != nil {
			s.candidates = append(s.candidates, t.Content)
		}
	}

	rooms := make([]entities.RawRoom, 0, len(slots))
	for i, s := range slots {
		rooms = append(rooms, entities.RawRoom{
			ID:              i + 1,
			Label:           PickLabel(s.candidates),
			Area:            round2(s.area),
			LabelCandidates: s.candidates,
		})
	}
	return rooms, nil
}

// nearest returns the slot whose ring is closest to p, considering only
// slots whose padded bound contains p. Ties keep the earlier slot.
func (m *Matcher) nearest(slots []*roomSlot, p orb.Point) *roomSlot {
	var best *roomSlot
	bestDist := math.Inf(1)
	for _, s := range slots {
		if !s.poly.Bound.Pad(m.Tolerance).Contains(p) {
			continue
		}
		d := ringDistance(s.poly.Ring, p)
		if d <= m.Tolerance && d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}

func strictlyInside(ring orb.Ring, p orb.Point) bool {
	if !planar.RingContains(ring, p) {
		return false
	}
	return ringDistance(ring, p) > boundaryEpsilon
}

// ringDistance is the distance from p to the nearest edge of ring.
func ringDistance(ring orb.Ring, p orb.Point) float64 {
	best := math.Inf(1)
	for i := 0; i+1 < len(ring); i++ {
		if d := planar.DistanceFromSegment(ring[i], ring[i+1], p); d < best {
			best = d
		}
	}
	return best
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
