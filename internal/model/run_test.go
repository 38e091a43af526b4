package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from RunStatus
		to   RunStatus
		want bool
	}{
		{RunCreated, RunPreprocessing, true},
		{RunPreprocessing, RunCompleted, true},
		{RunPreprocessing, RunAwaitingClarification, true},
		{RunAwaitingClarification, RunReclassifying, true},
		{RunReclassifying, RunAwaitingClarification, true},
		{RunReclassifying, RunCompleted, true},
		{RunAwaitingClarification, RunEscalated, true},
		{RunCreated, RunCompleted, false},
		{RunAwaitingClarification, RunCompleted, false},
		{RunCompleted, RunPreprocessing, false},
		{RunEscalated, RunReclassifying, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestClassificationRun_Transition(t *testing.T) {
	run := ClassificationRun{Status: RunCreated}

	assert.NoError(t, run.Transition(RunPreprocessing))
	assert.Equal(t, RunPreprocessing, run.Status)
	assert.False(t, run.UpdatedAt.IsZero())

	err := run.Transition(RunReclassifying)
	assert.Error(t, err)
	assert.Equal(t, RunPreprocessing, run.Status, "rejected transition leaves status unchanged")

	assert.True(t, RunCompleted.IsTerminal())
	assert.True(t, RunEscalated.IsTerminal())
	assert.False(t, RunAwaitingClarification.IsTerminal())
	assert.False(t, RunStatus("bogus").Valid())
}

func TestProductInput_Validate(t *testing.T) {
	cost := 12.5
	negative := -1.0

	valid := ProductInput{
		Description: "Cotton t-shirt",
		Materials:   []Material{{Material: "cotton", Percentage: 60}, {Material: "polyester", Percentage: 40}},
		UnitCost:    &cost,
	}
	assert.NoError(t, valid.Validate())
	assert.Equal(t, "cotton 60%, polyester 40%", valid.MaterialsSummary())

	assert.Error(t, ProductInput{Description: "  "}.Validate())
	assert.Error(t, ProductInput{Description: "x", Materials: []Material{{Material: "a", Percentage: 70}, {Material: "b", Percentage: 40}}}.Validate())
	assert.Error(t, ProductInput{Description: "x", UnitCost: &negative}.Validate())
}

func TestClassificationResult_ApplyTariff(t *testing.T) {
	rate := 0.098
	cost := 100.0

	r := ClassificationResult{TariffRate: &rate}
	r.ApplyTariff(&cost)
	if assert.NotNil(t, r.TariffAmount) && assert.NotNil(t, r.TotalCost) {
		assert.InDelta(t, 9.8, *r.TariffAmount, 1e-9)
		assert.InDelta(t, 109.8, *r.TotalCost, 1e-9)
	}

	r.TariffRate = nil
	r.ApplyTariff(&cost)
	assert.Nil(t, r.TariffAmount)
	assert.InDelta(t, 100.0, *r.TotalCost, 1e-9)

	r.ApplyTariff(nil)
	assert.Nil(t, r.TotalCost)
}
