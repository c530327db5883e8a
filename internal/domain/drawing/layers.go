package drawing

import "regexp"

var (
	boundaryLayerPattern = regexp.MustCompile(`(?i)(room|space|area|boundar|bndry|zone|(^|[-_ .])rm([-_ .]|$))`)
	labelLayerPattern    = regexp.MustCompile(`(?i)(name|label|text|txt|room|space|iden|(^|[-_ .])rm([-_ .]|$))`)

	// Annotation layers never carry room outlines or names.
	blacklistLayerPattern = regexp.MustCompile(`(?i)(dim|door|window|wind|glaz|title|hatch|patt|grid|furn|equip|elev|sect|symb|border|frame|vport|viewport|defpoints|north|revision|stair)`)
)

// LayerRoles records which layers may carry boundaries and which may carry
// labels for one drawing.
type LayerRoles struct {
	Boundary         []string `json:"boundary"`
	Label            []string `json:"label"`
	Blacklist        []string `json:"blacklist"`
	BoundaryFallback bool     `json:"boundaryFallback"`
	LabelFallback    bool     `json:"labelFallback"`

	boundary map[string]bool
	label    map[string]bool
}

// ClassifyLayers sorts layer names into roles. When nothing looks like a
// label layer every non-blacklisted layer is used, and when nothing looks
// like a boundary layer every layer is used, so a naming mismatch never
// empties the candidate set.
func ClassifyLayers(layers []string) LayerRoles {
	roles := LayerRoles{
		boundary: make(map[string]bool),
		label:    make(map[string]bool),
	}

	var allowed []string
	for _, name := range layers {
		if blacklistLayerPattern.MatchString(name) {
			roles.Blacklist = append(roles.Blacklist, name)
			continue
		}
		allowed = append(allowed, name)
		if boundaryLayerPattern.MatchString(name) {
			roles.Boundary = append(roles.Boundary, name)
		}
		if labelLayerPattern.MatchString(name) {
			roles.Label = append(roles.Label, name)
		}
	}

	if len(roles.Label) == 0 {
		roles.LabelFallback = true
		roles.Label = append([]string(nil), allowed...)
	}
	if len(roles.Boundary) == 0 {
		roles.BoundaryFallback = true
		roles.Boundary = append([]string(nil), layers...)
	}

	for _, name := range roles.Boundary {
		roles.boundary[name] = true
	}
	for _, name := range roles.Label {
		roles.label[name] = true
	}
	return roles
}

// AllowsBoundary reports whether outlines on layer are room candidates.
func (r LayerRoles) AllowsBoundary(layer string) bool {
	return r.boundary[layer]
}

// AllowsLabel reports whether text on layer may name a room.
func (r LayerRoles) AllowsLabel(layer string) bool {
	return r.label[layer]
}
