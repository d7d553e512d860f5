package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollingWindowBound(t *testing.T) {
	w := NewRollingWindow(100)

	for i := 0; i < 250; i++ {
		w.Push(float64(i))
		require.LessOrEqual(t, w.Len(), 100)
	}

	assert.Equal(t, 100, w.Len())
	assert.Equal(t, 100, w.Cap())
}

func TestRollingWindowKeepsLastN(t *testing.T) {
	w := NewRollingWindow(5)

	for i := 1; i <= 8; i++ {
		w.Push(float64(i))
	}

	assert.Equal(t, []float64{4, 5, 6, 7, 8}, w.Snapshot())
}

func TestRollingWindowSnapshotOrderBeforeFull(t *testing.T) {
	w := NewRollingWindow(5)
	w.Push(3)
	w.Push(1)
	w.Push(2)

	assert.Equal(t, []float64{3, 1, 2}, w.Snapshot())
	assert.Equal(t, 3, w.Len())
}

func TestRollingWindowSnapshotIsACopy(t *testing.T) {
	w := NewRollingWindow(3)
	w.Push(1)
	w.Push(2)

	snap := w.Snapshot()
	snap[0] = 99

	assert.Equal(t, []float64{1, 2}, w.Snapshot())
}

func TestRollingWindowCloneIsIndependent(t *testing.T) {
	w := NewRollingWindow(4)
	w.Push(1)
	w.Push(2)
	w.Push(3)

	c := w.Clone()
	c.Push(4)
	c.Push(5)

	assert.Equal(t, []float64{1, 2, 3}, w.Snapshot())
	assert.Equal(t, []float64{2, 3, 4, 5}, c.Snapshot())
}
