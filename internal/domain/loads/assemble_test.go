package loads

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
)

func TestAssemble_ComputesLoads(t *testing.T) {
	raw := []entities.RawRoom{{ID: 1, Label: "OFFICE", Area: 20}}
	classes := []entities.Classification{{Name: "office", Category: "C1", LoadDensity: 40, DemandFactor: 0.6}}

	rooms, failed := NewAssembler(1.0).Assemble(raw, []string{"OFFICE"}, classes)
	require.Len(t, rooms, 1)
	assert.False(t, failed)

	r := rooms[0]
	require.NotNil(t, r.ConnectedLoad)
	assert.Equal(t, 800.0, *r.ConnectedLoad)
	assert.Equal(t, 480.0, *r.DemandLoad)
	assert.Equal(t, "C1", *r.Category)
	assert.Empty(t, r.Error)
}

func TestAssemble_MissingClassification(t *testing.T) {
	raw := []entities.RawRoom{
		{ID: 1, Label: "OFFICE", Area: 20},
		{ID: 2, Label: "VAULT", Area: 5},
	}
	classes := []entities.Classification{{Name: "OFFICE", Category: "C1", LoadDensity: 40, DemandFactor: 0.6}}

	rooms, failed := NewAssembler(0).Assemble(raw, []string{"OFFICE", "VAULT"}, classes)
	require.Len(t, rooms, 2, "unclassified rooms are never dropped")
	assert.True(t, failed)

	vault := rooms[1]
	assert.Nil(t, vault.ConnectedLoad)
	assert.Nil(t, vault.DemandLoad)
	assert.Equal(t, ErrClassificationFailed, vault.Error)

	summary := Summarize(rooms)
	assert.Equal(t, 800.0, summary.TotalConnectedLoad)
	assert.Equal(t, 480.0, summary.TotalDemandLoad)
	require.Len(t, summary.CategoryBreakdown, 1)
	assert.Equal(t, 1, summary.CategoryBreakdown[0].RoomCount)
}

func TestAssemble_LooksUpResolvedLabelAndKeepsDisplayLabel(t *testing.T) {
	raw := []entities.RawRoom{
		{ID: 1, Label: "LOUNGE", Area: 10},
		{ID: 2, Label: `"`, Area: 12},
	}
	classes := []entities.Classification{{Name: "LOUNGE", Category: "R1", LoadDensity: 10, DemandFactor: 1}}

	rooms, failed := NewAssembler(1).Assemble(raw, []string{"LOUNGE", "LOUNGE"}, classes)
	assert.False(t, failed)
	assert.Equal(t, `"`, rooms[1].Label)
	assert.Equal(t, "LOUNGE", rooms[1].ResolvedLabel)
	assert.Equal(t, 120.0, *rooms[1].ConnectedLoad)
}

func TestAssemble_NoClassificationsAtAll(t *testing.T) {
	raw := []entities.RawRoom{{ID: 1, Label: "A", Area: 3}, {ID: 2, Label: "B", Area: 4}}
	rooms, failed := NewAssembler(1).Assemble(raw, []string{"A", "B"}, nil)
	assert.True(t, failed)
	for _, r := range rooms {
		assert.True(t, r.Failed())
	}

	summary := Summarize(rooms)
	assert.Zero(t, summary.TotalConnectedLoad)
	assert.Zero(t, summary.EffectiveDemandFactor)
	assert.False(t, math.IsNaN(summary.EffectiveDemandFactor))
	assert.Empty(t, summary.CategoryBreakdown)
}

func TestSummarize_TwoCategories(t *testing.T) {
	raw := []entities.RawRoom{
		{ID: 1, Label: "STORE", Area: 10},
		{ID: 2, Label: "OFFICE", Area: 30},
	}
	classes := []entities.Classification{
		{Name: "OFFICE", Category: "C2", CategoryDescription: "Offices", LoadDensity: 50.0 / 3, DemandFactor: 0.8},
		{Name: "STORE", Category: "C1", CategoryDescription: "Storage", LoadDensity: 30, DemandFactor: 0.6},
	}

	rooms, _ := NewAssembler(1).Assemble(raw, []string{"STORE", "OFFICE"}, classes)
	summary := Summarize(rooms)

	assert.Equal(t, 800.0, summary.TotalConnectedLoad)
	assert.Equal(t, 580.0, summary.TotalDemandLoad)
	assert.Equal(t, 0.58, summary.TotalDemandLoadKVA)
	assert.Equal(t, 0.725, summary.EffectiveDemandFactor)

	require.Len(t, summary.CategoryBreakdown, 2)
	c1, c2 := summary.CategoryBreakdown[0], summary.CategoryBreakdown[1]
	assert.Equal(t, "C1", c1.Category, "categories sort by code")
	assert.Equal(t, 300.0, c1.ConnectedLoad)
	assert.Equal(t, 180.0, c1.DemandLoad)
	assert.Equal(t, "C2", c2.Category)
	assert.Equal(t, 500.0, c2.ConnectedLoad)
	assert.Equal(t, 400.0, c2.DemandLoad)
	assert.Equal(t, 0.8, c2.AvgDemandFactor)
	assert.Equal(t, 1.0, c2.AvgCoincidentFactor)

	assert.Equal(t, summary.TotalConnectedLoad, c1.ConnectedLoad+c2.ConnectedLoad)
}

func TestSummarize_AveragesAreUnweighted(t *testing.T) {
	raw := []entities.RawRoom{
		{ID: 1, Label: "A", Area: 100},
		{ID: 2, Label: "B", Area: 1},
	}
	classes := []entities.Classification{
		{Name: "A", Category: "X", LoadDensity: 10, DemandFactor: 0.5},
		{Name: "B", Category: "X", LoadDensity: 10, DemandFactor: 1.0},
	}
	rooms, _ := NewAssembler(1).Assemble(raw, []string{"A", "B"}, classes)
	summary := Summarize(rooms)
	require.Len(t, summary.CategoryBreakdown, 1)
	assert.Equal(t, 0.75, summary.CategoryBreakdown[0].AvgDemandFactor)
	assert.Equal(t, 2, summary.CategoryBreakdown[0].RoomCount)
}

func TestCoincidentFactorForMeters(t *testing.T) {
	assert.InDelta(t, 0.8, CoincidentFactorForMeters(1), 1e-12)
	assert.InDelta(t, (0.67+0.33/2)/1.25, CoincidentFactorForMeters(4), 1e-12)
	assert.Equal(t, DefaultCoincidentFactor, CoincidentFactorForMeters(0))

	raw := []entities.RawRoom{{ID: 1, Label: "A", Area: 10}}
	classes := []entities.Classification{{Name: "A", Category: "X", LoadDensity: 100, DemandFactor: 1}}
	rooms, _ := NewAssembler(CoincidentFactorForMeters(1)).Assemble(raw, []string{"A"}, classes)
	assert.Equal(t, 800.0, *rooms[0].DemandLoad)
}

func TestRounding(t *testing.T) {
	assert.Equal(t, 1.01, Round2(1.005+1e-9))
	assert.Equal(t, -2.35, Round2(-2.345+-1e-9))
	assert.Equal(t, 0.7251, Round4(0.72505+1e-9))
}
