// Package drawing reads ASCII DXF floor plans into typed entities.
// It only understands the parts of the format the room pipeline needs:
// the $INSUNITS header, the LAYER table, and the polyline/text entities of
// the ENTITIES section.
package drawing

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
)

// ErrUnparseable is returned when the content has no usable entity list.
var ErrUnparseable = errors.New("unparseable drawing")

// Polyline flags relevant to room recovery (group 70).
const (
	flagPolygonMesh  = 16
	flagPolyfaceMesh = 64
)

// InsUnits values of the $INSUNITS header variable.
const (
	InsUnitsUnitless    = 0
	InsUnitsMillimeters = 4
	InsUnitsCentimeters = 5
	InsUnitsMeters      = 6
)

// pair is one (group code, value) line pair.
type pair struct {
	code  int
	value string
}

// record is one entity or table entry: the type name from group 0 and the
// groups that follow it.
type record struct {
	kind   string
	groups []pair
}

func (r record) first(code int) (string, bool) {
	for _, g := range r.groups {
		if g.code == code {
			return g.value, true
		}
	}
	return "", false
}

// DefaultLayer is the layer an entity is on when it omits group 8.
const DefaultLayer = "0"

func (r record) layer() string {
	if v, ok := r.first(8); ok && v != "" {
		return v
	}
	return DefaultLayer
}

func (r record) flags() int {
	v, ok := r.first(70)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// Drawing is the raw parse result before layer filtering.
type Drawing struct {
	InsUnits int
	Layers   []string
	Entities []entities.Entity
}

// Parse reads DXF text. Anything other than a well-formed pair stream with
// an ENTITIES section fails as a whole.
func Parse(content string) (*Drawing, error) {
	pairs, err := readPairs(content)
	if err != nil {
		return nil, err
	}

	sections := splitSections(pairs)
	body, ok := sections["ENTITIES"]
	if !ok {
		return nil, fmt.Errorf("%w: no ENTITIES section", ErrUnparseable)
	}

	d := &Drawing{InsUnits: InsUnitsUnitless}
	if header, ok := sections["HEADER"]; ok {
		d.InsUnits = readInsUnits(header)
	}

	seen := make(map[string]bool)
	addLayer := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		d.Layers = append(d.Layers, name)
	}
	if tables, ok := sections["TABLES"]; ok {
		for _, rec := range splitRecords(tables) {
			if rec.kind != "LAYER" {
				continue
			}
			if name, ok := rec.first(2); ok {
				addLayer(name)
			}
		}
	}

	ents, err := readEntities(splitRecords(body))
	if err != nil {
		return nil, err
	}
	for _, e := range ents {
		addLayer(e.EntityLayer())
	}
	d.Entities = ents
	return d, nil
}

// readPairs tokenizes the alternating code/value lines.
func readPairs(content string) ([]pair, error) {
	if strings.HasPrefix(content, "AutoCAD Binary DXF") {
		return nil, fmt.Errorf("%w: binary DXF is not supported", ErrUnparseable)
	}

	content = strings.TrimPrefix(content, "\ufeff")
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var pairs []pair
	line := 0
	for scanner.Scan() {
		line++
		codeText := strings.TrimSpace(scanner.Text())
		if !scanner.Scan() {
			if codeText == "" {
				break
			}
			return nil, fmt.Errorf("%w: dangling group code %q at line %d", ErrUnparseable, codeText, line)
		}
		line++
		code, err := strconv.Atoi(codeText)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid group code %q at line %d", ErrUnparseable, codeText, line-1)
		}
		value := strings.TrimRight(scanner.Text(), "\r")
		if code != 1 && code != 3 {
			value = strings.TrimSpace(value)
		}
		pairs = append(pairs, pair{code: code, value: value})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrUnparseable)
	}
	return pairs, nil
}

// splitSections groups pairs by section name, dropping the SECTION/ENDSEC
// markers themselves.
func splitSections(pairs []pair) map[string][]pair {
	sections := make(map[string][]pair)
	for i := 0; i < len(pairs); i++ {
		if pairs[i].code != 0 || pairs[i].value != "SECTION" {
			continue
		}
		if i+1 >= len(pairs) || pairs[i+1].code != 2 {
			continue
		}
		name := strings.ToUpper(pairs[i+1].value)
		start := i + 2
		end := start
		for end < len(pairs) && !(pairs[end].code == 0 && pairs[end].value == "ENDSEC") {
			end++
		}
		if _, dup := sections[name]; !dup {
			sections[name] = pairs[start:end]
		}
		i = end
	}
	return sections
}

// splitRecords cuts a section body at every group 0.
func splitRecords(pairs []pair) []record {
	var recs []record
	for _, p := range pairs {
		if p.code == 0 {
			recs = append(recs, record{kind: strings.ToUpper(p.value)})
			continue
		}
		if len(recs) == 0 {
			continue
		}
		recs[len(recs)-1].groups = append(recs[len(recs)-1].groups, p)
	}
	return recs
}

func readInsUnits(header []pair) int {
	for i := 0; i+1 < len(header); i++ {
		if header[i].code == 9 && header[i].value == "$INSUNITS" {
			n, err := strconv.Atoi(header[i+1].value)
			if err == nil {
				return n
			}
		}
	}
	return InsUnitsUnitless
}

func readEntities(recs []record) ([]entities.Entity, error) {
	var out []entities.Entity
	for i := 0; i < len(recs); i++ {
		rec := recs[i]
		switch rec.kind {
		case "LWPOLYLINE":
			pts, err := readPoints(rec.groups)
			if err != nil {
				return nil, err
			}
			out = append(out, entities.BoundaryEntity{Vertices: pts, Layer: rec.layer()})

		case "POLYLINE":
			flags := rec.flags()
			var pts []orb.Point
			j := i + 1
			for ; j < len(recs) && recs[j].kind == "VERTEX"; j++ {
				vpts, err := readPoints(recs[j].groups)
				if err != nil {
					return nil, err
				}
				pts = append(pts, vpts...)
			}
			if j < len(recs) && recs[j].kind == "SEQEND" {
				j++
			}
			i = j - 1
			out = append(out, entities.BoundaryEntity{
				Vertices: pts,
				Layer:    rec.layer(),
				IsMesh:   flags&(flagPolygonMesh|flagPolyfaceMesh) != 0,
				Legacy:   true,
			})

		case "TEXT", "MTEXT":
			text, err := readText(rec)
			if err != nil {
				return nil, err
			}
			out = append(out, text)
		}
	}
	return out, nil
}

// readPoints collects 10/20 coordinate pairs in order. A 10 without a
// following 20 is malformed.
func readPoints(groups []pair) ([]orb.Point, error) {
	var pts []orb.Point
	for i := 0; i < len(groups); i++ {
		if groups[i].code != 10 {
			continue
		}
		if i+1 >= len(groups) || groups[i+1].code != 20 {
			return nil, fmt.Errorf("%w: vertex without Y coordinate", ErrUnparseable)
		}
		x, err := strconv.ParseFloat(groups[i].value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid X coordinate %q", ErrUnparseable, groups[i].value)
		}
		y, err := strconv.ParseFloat(groups[i+1].value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid Y coordinate %q", ErrUnparseable, groups[i+1].value)
		}
		pts = append(pts, orb.Point{x, y})
		i++
	}
	return pts, nil
}

// readText joins MTEXT continuation chunks (group 3) ahead of the final
// group 1 and takes the first insertion point.
func readText(rec record) (entities.TextEntity, error) {
	var sb strings.Builder
	var last string
	for _, g := range rec.groups {
		switch g.code {
		case 3:
			sb.WriteString(g.value)
		case 1:
			last = g.value
		}
	}
	sb.WriteString(last)

	pts, err := readPoints(rec.groups)
	if err != nil {
		return entities.TextEntity{}, err
	}
	var at orb.Point
	if len(pts) > 0 {
		at = pts[0]
	}
	return entities.TextEntity{Content: sb.String(), Insertion: at, Layer: rec.layer()}, nil
}
