// Package drawingtest builds small ASCII DXF floor plans for tests.
package drawingtest

import (
	"fmt"
	"strings"
)

// Layer names used by Plan.
const (
	BoundaryLayer = "A-AREA"
	LabelLayer    = "A-ROOM-NAME"
)

// Plan accumulates rectangular rooms and renders them as a DXF document.
type Plan struct {
	insUnits int
	body     strings.Builder
}

// NewPlan starts a plan whose header declares insUnits ($INSUNITS).
func NewPlan(insUnits int) *Plan {
	return &Plan{insUnits: insUnits}
}

// Room adds a w×h rectangle at (x, y) with label centred inside it. An
// empty label draws the outline only.
func (p *Plan) Room(label string, x, y, w, h float64) *Plan {
	p.Rect(x, y, w, h)
	if label != "" {
		p.Text(label, x+w/2, y+h/2)
	}
	return p
}

// Rect adds a closed LWPOLYLINE on the boundary layer.
func (p *Plan) Rect(x, y, w, h float64) *Plan {
	write(&p.body, 0, "LWPOLYLINE", 8, BoundaryLayer, 90, 4, 70, 1)
	for _, pt := range [][2]float64{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}} {
		write(&p.body, 10, pt[0], 20, pt[1])
	}
	return p
}

// Text adds a TEXT entity on the label layer.
func (p *Plan) Text(content string, x, y float64) *Plan {
	write(&p.body, 0, "TEXT", 8, LabelLayer, 10, x, 20, y, 30, 0, 40, 250, 1, content)
	return p
}

// Bytes renders the document.
func (p *Plan) Bytes() []byte {
	var sb strings.Builder
	write(&sb, 0, "SECTION", 2, "HEADER", 9, "$INSUNITS", 70, p.insUnits, 0, "ENDSEC")
	write(&sb, 0, "SECTION", 2, "TABLES", 0, "TABLE", 2, "LAYER",
		0, "LAYER", 2, BoundaryLayer, 70, 0,
		0, "LAYER", 2, LabelLayer, 70, 0,
		0, "ENDTAB", 0, "ENDSEC")
	write(&sb, 0, "SECTION", 2, "ENTITIES")
	sb.WriteString(p.body.String())
	write(&sb, 0, "ENDSEC", 0, "EOF")
	return []byte(sb.String())
}

func write(sb *strings.Builder, kv ...interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(sb, "%3d\n%v\n", kv[i], kv[i+1])
	}
}
