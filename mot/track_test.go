package mot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticEstimator always predicts the box it was last updated with
type staticEstimator struct {
	box        Box
	predictErr error
	updateErr  error
}

func (se *staticEstimator) Predict() (Box, error) {
	return se.box, se.predictErr
}

func (se *staticEstimator) Update(measurement Box) error {
	if se.updateErr != nil {
		return se.updateErr
	}
	se.box = measurement
	return nil
}

func (se *staticEstimator) CurrentBox() Box {
	return se.box
}

func (se *staticEstimator) Velocity() (float64, float64) {
	return 0, 0
}

func TestTrackLifecycleCounters(t *testing.T) {
	detection := NewBox(10, 10, 4, 4)
	track := newTrack(7, detection, &staticEstimator{box: detection}, AxisY, 3)
	assert.Equal(t, uint64(7), track.GetID())
	assert.Equal(t, TrackTentative, track.GetState())
	assert.Equal(t, 0, track.GetAge())
	assert.Equal(t, 1, track.GetHitStreak())
	assert.Equal(t, 1, track.GetHits())
	assert.Equal(t, 0, track.GetTimeSinceUpdate())

	// Matched frame keeps the streak going
	_, err := track.predict()
	require.NoError(t, err)
	assert.Equal(t, 1, track.GetHitStreak())
	require.NoError(t, track.update(NewBox(10, 12, 4, 4)))
	assert.Equal(t, 2, track.GetHitStreak())
	assert.Equal(t, 2, track.GetHits())
	assert.Equal(t, 0, track.GetTimeSinceUpdate())

	// Two missed frames: streak is reset on the second prediction
	_, err = track.predict()
	require.NoError(t, err)
	assert.Equal(t, 2, track.GetHitStreak())
	_, err = track.predict()
	require.NoError(t, err)
	assert.Equal(t, 0, track.GetHitStreak())
	assert.Equal(t, 2, track.GetTimeSinceUpdate())
	assert.Equal(t, 3, track.GetAge())
}

func TestTrackAgeMonotonic(t *testing.T) {
	detection := NewBox(10, 10, 4, 4)
	track := newTrack(0, detection, &staticEstimator{box: detection}, AxisY, 5)
	previous := track.GetAge()
	for i := 0; i < 20; i++ {
		_, err := track.predict()
		require.NoError(t, err)
		if i%3 == 0 {
			require.NoError(t, track.update(detection))
		}
		assert.Equal(t, previous+1, track.GetAge())
		previous = track.GetAge()
	}
}

func TestTrackHistory(t *testing.T) {
	detection := NewBox(10, 10, 4, 4)
	track := newTrack(0, detection, &staticEstimator{box: detection}, AxisY, 3)
	for i := 0; i < 5; i++ {
		_, err := track.predict()
		require.NoError(t, err)
	}
	history := track.GetHistory()
	assert.Len(t, history, 3)

	// Returned history is a copy
	history[0] = Box{}
	assert.Equal(t, detection, track.GetHistory()[0])

	require.NoError(t, track.update(detection))
	assert.Empty(t, track.GetHistory())
}

func TestTrackUpdateFault(t *testing.T) {
	detection := NewBox(10, 10, 4, 4)
	estimator := &staticEstimator{box: detection, updateErr: ErrEstimatorFault}
	track := newTrack(0, detection, estimator, AxisY, 3)
	_, err := track.predict()
	require.NoError(t, err)
	assert.ErrorIs(t, track.update(NewBox(10, 20, 4, 4)), ErrEstimatorFault)
	assert.Equal(t, 1, track.GetTimeSinceUpdate())
	assert.Equal(t, 1, track.GetHits())
	assert.Equal(t, 10.0, track.Summary().Max)
}

func TestTrackSummaryExtremes(t *testing.T) {
	detection := NewBox(10, 10, 4, 4)
	track := newTrack(0, detection, &staticEstimator{box: detection}, AxisX, 3)
	for _, x := range []float64{14, 6, 12} {
		_, err := track.predict()
		require.NoError(t, err)
		require.NoError(t, track.update(NewBox(x, 50, 4, 4)))
	}
	summary := track.Summary()
	assert.Equal(t, AxisX, summary.Axis)
	assert.Equal(t, 10.0, summary.First)
	assert.Equal(t, 12.0, summary.Last)
	assert.Equal(t, 6.0, summary.Min)
	assert.Equal(t, 14.0, summary.Max)
	assert.Equal(t, 8.0, summary.Travel())
	assert.Equal(t, NewPoint(10, 10), summary.FirstCenter)
	assert.Equal(t, NewPoint(12, 50), summary.Center)
	assert.Equal(t, 4, summary.Hits)
}

func TestTrackStateText(t *testing.T) {
	text, err := TrackConfirmed.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "confirmed", string(text))
	assert.Equal(t, "tentative", TrackTentative.String())
	assert.Equal(t, "deleted", TrackDeleted.String())
}
