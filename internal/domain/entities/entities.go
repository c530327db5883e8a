// Package entities contains core business entities.
// These are pure domain objects with no external dependencies beyond the
// planar geometry types they carry.
package entities

import (
	"time"

	"github.com/paulmach/orb"
)

// Entity is one parsed drawing record. It is either a TextEntity or a
// BoundaryEntity; the unexported marker keeps the set closed so consumers
// can type-switch exhaustively.
type Entity interface {
	entity()
	EntityLayer() string
}

// TextEntity is a label anchored at an insertion point.
type TextEntity struct {
	Content   string
	Insertion orb.Point
	Layer     string
}

// BoundaryEntity is a closed or near-closed outline.
type BoundaryEntity struct {
	Vertices []orb.Point
	Layer    string
	IsMesh   bool
	Legacy   bool // POLYLINE/VERTEX rather than LWPOLYLINE
}

func (TextEntity) entity()     {}
func (BoundaryEntity) entity() {}

// EntityLayer returns the layer the text was drawn on.
func (t TextEntity) EntityLayer() string { return t.Layer }

// EntityLayer returns the layer the outline was drawn on.
func (b BoundaryEntity) EntityLayer() string { return b.Layer }

// PolygonCandidate is a closed ring recovered from a boundary entity.
type PolygonCandidate struct {
	Ring    orb.Ring
	RawArea float64 // drawing units², never negative
	Bound   orb.Bound
}

// RawRoom is one accepted polygon with its chosen label.
type RawRoom struct {
	ID              int
	Label           string
	Area            float64 // m², rounded to 2 decimals
	LabelCandidates []string
}

// UniqueRoomInput aggregates every room sharing a normalized label.
type UniqueRoomInput struct {
	Key                string
	RepresentativeName string
	RepresentativeArea float64
	TotalAreaForType   float64
	InstanceCount      int
	LabelCandidates    []string
}

// Classification is the rate decision for one room type, produced outside
// the core and applied as-is.
type Classification struct {
	Name                   string  `json:"name"`
	Category               string  `json:"category"`
	CategoryDescription    string  `json:"categoryDescription"`
	LoadDensity            float64 `json:"loadDensity"`
	DemandFactor           float64 `json:"demandFactor"`
	LoadsIncluded          string  `json:"loadsIncluded"`
	ClimateControlIncluded *bool   `json:"climateControlIncluded,omitempty"`
	CodeReference          string  `json:"codeReference"`
	Rationale              string  `json:"rationale"`
}

// ClassificationRoom is one room type as submitted for classification.
type ClassificationRoom struct {
	Name               string   `json:"name"`
	RepresentativeArea float64  `json:"representativeArea"`
	TotalAreaForType   float64  `json:"totalAreaForType"`
	InstanceCount      int      `json:"instanceCount"`
	LabelCandidates    []string `json:"labelCandidates"`
}

// ClassificationRequest is the full payload of one classification call.
type ClassificationRequest struct {
	Rooms                 []ClassificationRoom `json:"rooms"`
	Context               string               `json:"context"`
	IncludeClimateControl bool                 `json:"includeClimateControl"`
}

// AssembledRoom is the per-instance result. Load fields are nil when the
// room could not be classified, in which case Error is set.
type AssembledRoom struct {
	ID                     int      `json:"id"`
	Label                  string   `json:"label"`
	ResolvedLabel          string   `json:"resolvedLabel"`
	Area                   float64  `json:"area"`
	LabelCandidates        []string `json:"labelCandidates"`
	Category               *string  `json:"category"`
	CategoryDescription    *string  `json:"categoryDescription"`
	LoadDensity            *float64 `json:"loadDensity"`
	DemandFactor           *float64 `json:"demandFactor"`
	CoincidentFactor       *float64 `json:"coincidentFactor"`
	ConnectedLoad          *float64 `json:"connectedLoad"`
	DemandLoad             *float64 `json:"demandLoad"`
	LoadsIncluded          *string  `json:"loadsIncluded"`
	ClimateControlIncluded *bool    `json:"climateControlIncluded"`
	CodeReference          *string  `json:"codeReference"`
	Rationale              *string  `json:"rationale"`
	Error                  string   `json:"error,omitempty"`
}

// Failed reports whether the room carries no loads.
func (r AssembledRoom) Failed() bool {
	return r.ConnectedLoad == nil
}

// CategoryAggregate is the roll-up of one rate category.
type CategoryAggregate struct {
	Category            string  `json:"category"`
	Description         string  `json:"description"`
	RoomCount           int     `json:"roomCount"`
	ConnectedLoad       float64 `json:"connectedLoad"`
	DemandLoad          float64 `json:"demandLoad"`
	AvgDemandFactor     float64 `json:"avgDemandFactor"`
	AvgCoincidentFactor float64 `json:"avgCoincidentFactor"`
}

// BuildingSummary holds the building-wide totals.
type BuildingSummary struct {
	TotalConnectedLoad    float64             `json:"totalConnectedLoad"`
	TotalDemandLoad       float64             `json:"totalDemandLoad"`
	TotalDemandLoadKVA    float64             `json:"totalDemandLoadKVA"`
	EffectiveDemandFactor float64             `json:"effectiveDemandFactor"`
	CategoryBreakdown     []CategoryAggregate `json:"categoryBreakdown"`
}

// Report is what one analysis run hands back to the caller.
type Report struct {
	Rooms                 []AssembledRoom     `json:"rooms"`
	TotalConnectedLoad    float64             `json:"totalConnectedLoad"`
	TotalDemandLoad       float64             `json:"totalDemandLoad"`
	TotalDemandLoadKVA    float64             `json:"totalDemandLoadKVA"`
	EffectiveDemandFactor float64             `json:"effectiveDemandFactor"`
	CategoryBreakdown     []CategoryAggregate `json:"categoryBreakdown"`
	TotalRooms            int                 `json:"totalRooms"`
	UnitsDetected         string              `json:"unitsDetected"`
	HasFailedRooms        bool                `json:"hasFailedRooms"`
}

// Document represents a reference document (rate table, code excerpt)
// loaded into the knowledge base.
type Document struct {
	ID        string
	Name      string
	Path      string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk represents a piece of a reference document for embedding.
type Chunk struct {
	ID         string
	DocumentID string
	SourceDoc  string
	Content    string
	Index      int
	Embedding  []float32
}

// QueryResult represents a knowledge-base hit with relevance.
type QueryResult struct {
	Chunk     Chunk
	Score     float64
	SourceDoc string
}

// ContextChunk is one piece of free-text reference material returned by
// the context-retrieval service.
type ContextChunk struct {
	Content string `json:"content"`
	Source  string `json:"sourceLabel,omitempty"`
}
