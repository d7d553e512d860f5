package detector

import (
	"math"

	"github.com/montanaflynn/stats"
)

const (
	methodZScore = "zscore"
	methodIQR    = "iqr"
	methodMAD    = "mad"
)

// methodEvidence records one outlier method firing for one metric. It is
// transient: consumed immediately to build an AnomalyEvent.
type methodEvidence struct {
	metric    string
	method    string
	score     float64
	threshold float64
	predicted float64
	actual    float64
}

// evalZScore tests the candidate against the mean and population standard
// deviation of the prior window. Needs at least 2 prior samples; a zero
// standard deviation never fires.
func evalZScore(prior []float64, candidate, threshold float64) (score, predicted float64, fired bool) {
	if len(prior) < 2 {
		return 0, 0, false
	}

	mean, err := stats.Mean(prior)
	if err != nil {
		return 0, 0, false
	}
	std, err := stats.StandardDeviationPopulation(prior)
	if err != nil || std == 0 {
		return 0, 0, false
	}

	z := math.Abs(candidate-mean) / std
	return z, mean, z > threshold
}

// evalIQR tests the candidate against the interquartile fence of the prior
// window. Needs at least 4 prior samples; a zero IQR never fires. The score
// is the candidate's distance from the median in IQR units.
func evalIQR(prior []float64, candidate, multiplier float64) (score, predicted float64, fired bool) {
	if len(prior) < 4 {
		return 0, 0, false
	}

	q1, err := stats.Percentile(prior, 25)
	if err != nil {
		return 0, 0, false
	}
	q3, err := stats.Percentile(prior, 75)
	if err != nil {
		return 0, 0, false
	}

	iqr := q3 - q1
	if iqr == 0 {
		return 0, 0, false
	}

	median, err := stats.Median(prior)
	if err != nil {
		return 0, 0, false
	}

	fired = candidate < q1-multiplier*iqr || candidate > q3+multiplier*iqr
	return math.Abs(candidate-median) / iqr, median, fired
}

// evalMAD tests the candidate against the median absolute deviation of the
// prior window. Needs at least 3 prior samples; a zero MAD never fires.
func evalMAD(prior []float64, candidate, threshold float64) (score, predicted float64, fired bool) {
	if len(prior) < 3 {
		return 0, 0, false
	}

	median, err := stats.Median(prior)
	if err != nil {
		return 0, 0, false
	}
	mad, err := stats.MedianAbsoluteDeviation(prior)
	if err != nil || mad == 0 {
		return 0, 0, false
	}

	madScore := math.Abs(candidate-median) / mad
	return madScore, median, madScore > threshold
}
