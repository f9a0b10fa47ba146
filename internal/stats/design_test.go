package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairedDesign_TwoSubjects(t *testing.T) {
	block := []string{"s1", "s1", "s2", "s2"}
	tested := []string{"rested", "deprived", "rested", "deprived"}

	d, err := PairedDesign(block, tested, "")
	require.NoError(t, err)

	r, c := d.Full.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 3, c) // intercept, one block dummy, condition
	_, cr := d.Reduced.Dims()
	assert.Equal(t, 2, cr)

	// Lexicographic reference: "deprived" < "rested", so rested is tested.
	assert.Equal(t, [2]string{"deprived", "rested"}, d.TestLevels)
	assert.Equal(t, []bool{true, false, true, false}, d.TestIdx)

	// Intercept everywhere, block dummy on subject s2 only.
	for i := 0; i < 4; i++ {
		assert.Equal(t, 1.0, d.Full.At(i, 0))
	}
	assert.Equal(t, 0.0, d.Full.At(0, 1))
	assert.Equal(t, 1.0, d.Full.At(2, 1))

	assert.Equal(t, 1, d.DF())
	assert.Equal(t, 1, d.Residual())
}

func TestPairedDesign_ContrastOverride(t *testing.T) {
	block := []string{"s1", "s1", "s2", "s2"}
	tested := []string{"rested", "deprived", "rested", "deprived"}

	d, err := PairedDesign(block, tested, "deprived")
	require.NoError(t, err)

	assert.Equal(t, [2]string{"rested", "deprived"}, d.TestLevels)
	assert.Equal(t, []bool{false, true, false, true}, d.TestIdx)
}

func TestPairedDesign_ContrastUnknownLevel(t *testing.T) {
	_, err := PairedDesign([]string{"a", "a"}, []string{"x", "y"}, "z")
	assert.Error(t, err)
}

func TestPairedDesign_WrongLevelCount(t *testing.T) {
	_, err := PairedDesign(
		[]string{"s1", "s1", "s1", "s2", "s2", "s2"},
		[]string{"a", "b", "c", "a", "b", "c"}, "")
	assert.Error(t, err)

	_, err = PairedDesign([]string{"s1", "s1"}, []string{"a", "a"}, "")
	assert.Error(t, err)
}

func TestPairedDesign_TooFewSamples(t *testing.T) {
	// Two samples cannot support three coefficients.
	_, err := PairedDesign([]string{"s1", "s1"}, []string{"a", "b"}, "")
	assert.Error(t, err)
}

func TestPairedDesign_MismatchedLengths(t *testing.T) {
	_, err := PairedDesign([]string{"s1"}, []string{"a", "b"}, "")
	assert.Error(t, err)
}

func TestFitLRT_SignalRecovered(t *testing.T) {
	block := []string{"s1", "s1", "s2", "s2", "s3", "s3"}
	tested := []string{"ctl", "trt", "ctl", "trt", "ctl", "trt"}
	d, err := PairedDesign(block, tested, "trt")
	require.NoError(t, err)

	// Subject baselines differ, treatment adds two units with a little
	// noise so neither RSS degenerates to zero.
	y := []float64{1.0, 3.1, 2.0, 3.9, 1.5, 3.5}
	res, err := FitLRT(y, nil, d)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, res.Coef, 0.2)
	assert.Greater(t, res.LR, 0.0)
	assert.Less(t, res.P, 0.05)
}

func TestFitLRT_NullSignal(t *testing.T) {
	block := []string{"s1", "s1", "s2", "s2", "s3", "s3"}
	tested := []string{"ctl", "trt", "ctl", "trt", "ctl", "trt"}
	d, err := PairedDesign(block, tested, "trt")
	require.NoError(t, err)

	// Constant response carries no information about the condition.
	y := []float64{2, 2, 2, 2, 2, 2}
	res, err := FitLRT(y, nil, d)
	require.NoError(t, err)

	assert.InDelta(t, 0, res.Coef, 1e-9)
	assert.InDelta(t, 1, res.P, 1e-9)
}

func TestFitLRT_WeightsAccepted(t *testing.T) {
	block := []string{"s1", "s1", "s2", "s2", "s3", "s3"}
	tested := []string{"ctl", "trt", "ctl", "trt", "ctl", "trt"}
	d, err := PairedDesign(block, tested, "trt")
	require.NoError(t, err)

	y := []float64{1.0, 3.1, 2.0, 3.9, 1.5, 3.5}
	w := []float64{1, 2, 1, 2, 1, 2}
	res, err := FitLRT(y, w, d)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.Coef, 0.3)
}

func TestFitLRT_LengthMismatch(t *testing.T) {
	d, err := PairedDesign(
		[]string{"s1", "s1", "s2", "s2"},
		[]string{"a", "b", "a", "b"}, "")
	require.NoError(t, err)

	_, err = FitLRT([]float64{1, 2}, nil, d)
	assert.Error(t, err)

	_, err = FitLRT([]float64{1, 2, 3, 4}, []float64{1}, d)
	assert.Error(t, err)
}
