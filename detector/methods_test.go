package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZScoreNeverFiresOnZeroStd(t *testing.T) {
	prior := []float64{10, 10, 10, 10, 10}

	for _, candidate := range []float64{10, 1000, -1000} {
		_, _, fired := evalZScore(prior, candidate, 3.0)
		assert.False(t, fired, "candidate %v must not fire with std=0", candidate)
	}
}

func TestZScoreNeedsTwoPriorSamples(t *testing.T) {
	_, _, fired := evalZScore([]float64{10}, 100, 3.0)
	assert.False(t, fired)
}

func TestZScoreFiresOnOutlier(t *testing.T) {
	prior := []float64{10, 12, 11, 13, 9} // mean 11, population std sqrt(2)

	score, predicted, fired := evalZScore(prior, 20, 3.0)
	assert.True(t, fired)
	assert.InDelta(t, 11.0, predicted, 1e-9)
	assert.InDelta(t, 6.3640, score, 1e-3)

	_, _, fired = evalZScore(prior, 12, 3.0)
	assert.False(t, fired)
}

func TestIQRNeedsFourPriorSamples(t *testing.T) {
	_, _, fired := evalIQR([]float64{1, 2, 3}, 100, 1.5)
	assert.False(t, fired)
}

func TestIQRNeverFiresOnZeroIQR(t *testing.T) {
	_, _, fired := evalIQR([]float64{5, 5, 5, 5, 5, 5}, 1000, 1.5)
	assert.False(t, fired)
}

func TestIQRFiresOutsideFence(t *testing.T) {
	prior := []float64{10, 11, 12, 13, 14, 15, 16, 17}

	score, predicted, fired := evalIQR(prior, 40, 1.5)
	assert.True(t, fired)
	assert.Greater(t, score, 0.0)
	assert.InDelta(t, 13.5, predicted, 1e-9)

	_, _, fired = evalIQR(prior, 14, 1.5)
	assert.False(t, fired)
}

func TestMADNeedsThreePriorSamples(t *testing.T) {
	_, _, fired := evalMAD([]float64{1, 2}, 100, 3.0)
	assert.False(t, fired)
}

func TestMADNeverFiresOnZeroMAD(t *testing.T) {
	_, _, fired := evalMAD([]float64{7, 7, 7, 7}, 1000, 3.0)
	assert.False(t, fired)
}

func TestMADFiresOnOutlier(t *testing.T) {
	prior := []float64{10, 11, 12, 13, 14}

	score, predicted, fired := evalMAD(prior, 30, 3.0)
	assert.True(t, fired)
	assert.InDelta(t, 12.0, predicted, 1e-9)
	assert.Greater(t, score, 3.0)

	_, _, fired = evalMAD(prior, 13, 3.0)
	assert.False(t, fired)
}
