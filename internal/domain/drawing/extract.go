package drawing

import (
	"github.com/paulmach/orb"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
)

// UnitHint is what the drawing header says about its units.
type UnitHint string

const (
	UnitHintNone        UnitHint = ""
	UnitHintMillimeters UnitHint = "millimeters"
	UnitHintMeters      UnitHint = "meters"
)

// Extraction is the filtered output of the extractor: cleaned labels and the
// vertex lists of boundary candidates, modern polylines first.
type Extraction struct {
	UnitHint   UnitHint
	Roles      LayerRoles
	Texts      []entities.TextEntity
	Boundaries []entities.BoundaryEntity

	SkippedMesh  int
	SkippedLayer int
}

// Extract parses content and applies layer roles and text cleaning.
func Extract(content string) (*Extraction, error) {
	d, err := Parse(content)
	if err != nil {
		return nil, err
	}

	ex := &Extraction{
		UnitHint: hintFor(d.InsUnits),
		Roles:    ClassifyLayers(d.Layers),
	}

	var modern, legacy []entities.BoundaryEntity
	for _, e := range d.Entities {
		switch v := e.(type) {
		case entities.BoundaryEntity:
			if v.IsMesh {
				ex.SkippedMesh++
				continue
			}
			if !ex.Roles.AllowsBoundary(v.Layer) {
				ex.SkippedLayer++
				continue
			}
			if v.Legacy {
				legacy = append(legacy, v)
			} else {
				modern = append(modern, v)
			}

		case entities.TextEntity:
			if !ex.Roles.AllowsLabel(v.Layer) {
				ex.SkippedLayer++
				continue
			}
			v.Content = CleanText(v.Content)
			if v.Content == "" {
				continue
			}
			ex.Texts = append(ex.Texts, v)
		}
	}
	ex.Boundaries = append(modern, legacy...)
	return ex, nil
}

// VertexLists returns the boundary vertices in processing order.
func (ex *Extraction) VertexLists() [][]orb.Point {
	out := make([][]orb.Point, 0, len(ex.Boundaries))
	for _, b := range ex.Boundaries {
		out = append(out, b.Vertices)
	}
	return out
}

func hintFor(insUnits int) UnitHint {
	switch insUnits {
	case InsUnitsMillimeters:
		return UnitHintMillimeters
	case InsUnitsMeters:
		return UnitHintMeters
	default:
		return UnitHintNone
	}
}
