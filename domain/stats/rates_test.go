package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscrepancyRatesValidate(t *testing.T) {
	require.NoError(t, DiscrepancyRates{P2o: .001, P1o: .01}.Validate())
	assert.Error(t, DiscrepancyRates{P2o: -.1}.Validate())
	assert.Error(t, DiscrepancyRates{P2o: .6, P1o: .6}.Validate())
	assert.InDelta(t, 0.989, DiscrepancyRates{P2o: .001, P1o: .01}.P0(), 1e-12)
}

func TestFloorP1o(t *testing.T) {
	r := DiscrepancyRates{P1o: .001}.FloorP1o(.005)
	assert.Equal(t, .005, r.P1o)
	r = DiscrepancyRates{P1o: .01}.FloorP1o(.005)
	assert.Equal(t, .01, r.P1o)
}

func TestDefaultErrorRateTable(t *testing.T) {
	table := DefaultErrorRateTable()
	require.NoError(t, table.Validate())

	rates, err := table.Lookup(2, .01)
	require.NoError(t, err)
	assert.InDelta(t, .0025, rates.P2o, 1e-12)
	assert.InDelta(t, .0025, rates.P1o, 1e-12)

	// rows decrease in two-vote rate as candidates are added
	three, _ := table.Lookup(3, .01)
	assert.Less(t, three.P2o, rates.P2o)

	// beyond the table uses the nearest row
	far, err := table.Lookup(25, .01)
	require.NoError(t, err)
	ten, _ := table.Lookup(10, .01)
	assert.Equal(t, ten, far)

	_, err = ErrorRateTable{}.Lookup(2, .01)
	assert.Error(t, err)
}
