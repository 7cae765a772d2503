package baseline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

type holding struct {
	market  string
	outcome string
	size    float64
}

func newHoldingDiffer() *Differ[holding] {
	return New(
		func(h holding) string { return h.market + "/" + h.outcome },
		func(a, b holding) bool { return a.size == b.size },
	)
}

func TestFirstApplyOnlyBaselines(t *testing.T) {
	d := newHoldingDiffer()
	assert.Equal(t, domain.BaselineUninitialized, d.State())

	diff := d.Apply([]holding{{"m1", "Yes", 10}, {"m2", "No", 5}})

	assert.True(t, diff.Baselined)
	assert.True(t, diff.Empty())
	assert.Equal(t, domain.BaselineBaselined, d.State())
}

func TestNewAndClosed(t *testing.T) {
	d := newHoldingDiffer()
	d.Apply([]holding{{"m1", "Yes", 10}, {"m2", "No", 5}})

	diff := d.Apply([]holding{{"m2", "No", 5}, {"m3", "Yes", 1}})

	require.Len(t, diff.New, 1)
	assert.Equal(t, "m3", diff.New[0].market)
	require.Len(t, diff.Closed, 1)
	assert.Equal(t, "m1", diff.Closed[0].market)
	assert.Empty(t, diff.Updated)
	assert.False(t, diff.Baselined)
	assert.Equal(t, domain.BaselineActive, d.State())
}

func TestUnchangedPollIsIdempotent(t *testing.T) {
	d := newHoldingDiffer()
	snap := []holding{{"m1", "Yes", 10}, {"m2", "No", 5}}
	d.Apply(snap)

	for i := 0; i < 3; i++ {
		diff := d.Apply(snap)
		assert.True(t, diff.Empty(), "poll %d", i)
	}
}

func TestKeyCollisionIsUpdate(t *testing.T) {
	d := newHoldingDiffer()
	d.Apply([]holding{{"m1", "Yes", 10}})

	diff := d.Apply([]holding{{"m1", "Yes", 25}})

	assert.Empty(t, diff.New)
	assert.Empty(t, diff.Closed)
	require.Len(t, diff.Updated, 1)
	assert.Equal(t, 25.0, diff.Updated[0].size)

	prev, ok := d.Previous("m1/Yes")
	require.True(t, ok)
	assert.Equal(t, 25.0, prev.size)
}

func TestBaselineReplacedEveryPoll(t *testing.T) {
	d := newHoldingDiffer()
	d.Apply(nil)
	d.Apply([]holding{{"m1", "Yes", 1}})

	// m1 was new last time; it must not be reported again
	diff := d.Apply([]holding{{"m1", "Yes", 1}})
	assert.True(t, diff.Empty())
}

func TestResetRebaselines(t *testing.T) {
	d := newHoldingDiffer()
	d.Apply([]holding{{"m1", "Yes", 10}})
	d.Apply([]holding{{"m1", "Yes", 10}, {"m2", "Yes", 3}})

	d.Reset()
	assert.Equal(t, domain.BaselineUninitialized, d.State())

	diff := d.Apply([]holding{{"m1", "Yes", 10}, {"m2", "Yes", 3}, {"m4", "No", 2}})
	assert.True(t, diff.Baselined)
	assert.True(t, diff.Empty())
}
