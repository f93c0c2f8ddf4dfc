package mot

import (
	"fmt"
	"image"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, cfg TrackerConfig, options ...Option) *TrackManager {
	t.Helper()
	tm, err := NewTrackManager(cfg, options...)
	require.NoError(t, err)
	return tm
}

func snapshotIDs(snapshots []TrackSnapshot) []uint64 {
	ids := make([]uint64, 0, len(snapshots))
	for _, s := range snapshots {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestStepCreateAndMatch(t *testing.T) {
	tm := newTestManager(t, DefaultTrackerConfig())

	result := tm.Step([]Box{NewBox(100, 100, 20, 20)})
	require.Len(t, result.Tracks, 1)
	assert.Equal(t, int64(1), result.Frame)
	assert.Equal(t, uint64(0), result.Tracks[0].ID)
	assert.Equal(t, TrackTentative, result.Tracks[0].State)
	assert.Equal(t, 1, result.Tracks[0].HitStreak)

	result = tm.Step([]Box{NewBox(102, 100, 20, 20)})
	require.Len(t, result.Tracks, 1)
	track := result.Tracks[0]
	assert.Equal(t, uint64(0), track.ID)
	assert.Equal(t, 2, track.HitStreak)
	assert.Equal(t, 0, track.TimeSinceUpdate)
	assert.Equal(t, 1, track.Age)
	assert.Equal(t, TrackTentative, track.State)

	result = tm.Step([]Box{NewBox(104, 100, 20, 20)})
	require.Len(t, result.Tracks, 1)
	assert.Equal(t, 3, result.Tracks[0].HitStreak)
	assert.Equal(t, TrackConfirmed, result.Tracks[0].State)
}

func TestStepDeleteAfterMaxAge(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.MaxAge = 2
	tm := newTestManager(t, cfg)

	tm.Step([]Box{NewBox(100, 100, 20, 20)})
	for i := 1; i <= cfg.MaxAge; i++ {
		result := tm.Step(nil)
		require.Len(t, result.Tracks, 1, "missed frame %d", i)
		assert.Equal(t, i, result.Tracks[0].TimeSinceUpdate)
		assert.Empty(t, result.Deleted)
	}
	result := tm.Step(nil)
	assert.Empty(t, result.Tracks)
	assert.Equal(t, []uint64{0}, result.Deleted)

	// Same place, but the old identity is gone for good
	result = tm.Step([]Box{NewBox(100, 100, 20, 20)})
	assert.Equal(t, []uint64{1}, snapshotIDs(result.Tracks))
	assert.Equal(t, int64(2), tm.Stats().TracksCreated)
	assert.Equal(t, int64(1), tm.Stats().TracksDeleted)
}

func TestStepWeakOverlapSpawnsTrack(t *testing.T) {
	tm := newTestManager(t, DefaultTrackerConfig())
	tm.Step([]Box{NewBox(100, 100, 20, 20)})

	weak := NewBox(100-40.0/3.0, 100, 20, 20)
	strong := NewBox(105, 100, 20, 20)
	result := tm.Step([]Box{weak, strong})
	require.Len(t, result.Tracks, 2)
	assert.Equal(t, uint64(0), result.Tracks[0].ID)
	assert.Equal(t, 2, result.Tracks[0].HitStreak)
	assert.Equal(t, uint64(1), result.Tracks[1].ID)
	assert.Equal(t, TrackTentative, result.Tracks[1].State)
	assert.Equal(t, 1, result.Tracks[1].HitStreak)
	assert.InDelta(t, weak.X, result.Tracks[1].Box.X, eps)
}

func TestStepModelsAndAlgorithms(t *testing.T) {
	for _, model := range []MotionModel{ModelAreaAspect, ModelWidthHeight} {
		for _, algorithm := range []MatchingAlgorithm{MatchingAlgorithmKuhnMunkres, MatchingAlgorithmHungarian} {
			cfg := DefaultTrackerConfig()
			cfg.Model = model
			cfg.Algorithm = algorithm
			cfg.MaxAge = 2
			t.Run(fmt.Sprintf("%s/%s", model, algorithm), func(t *testing.T) {
				t.Run("match", func(t *testing.T) {
					tm := newTestManager(t, cfg)
					tm.Step([]Box{NewBox(100, 100, 20, 20)})
					result := tm.Step([]Box{NewBox(102, 100, 20, 20)})
					require.Len(t, result.Tracks, 1)
					assert.Equal(t, uint64(0), result.Tracks[0].ID)
					assert.Equal(t, 2, result.Tracks[0].HitStreak)
					assert.Equal(t, 0, result.Tracks[0].TimeSinceUpdate)
				})
				t.Run("delete", func(t *testing.T) {
					tm := newTestManager(t, cfg)
					tm.Step([]Box{NewBox(100, 100, 20, 20)})
					tm.Step(nil)
					tm.Step(nil)
					result := tm.Step(nil)
					assert.Equal(t, []uint64{0}, result.Deleted)
					result = tm.Step([]Box{NewBox(100, 100, 20, 20)})
					assert.Equal(t, []uint64{1}, snapshotIDs(result.Tracks))
				})
				t.Run("weak overlap", func(t *testing.T) {
					tm := newTestManager(t, cfg)
					tm.Step([]Box{NewBox(100, 100, 20, 20)})
					result := tm.Step([]Box{NewBox(100-40.0/3.0, 100, 20, 20), NewBox(105, 100, 20, 20)})
					require.Len(t, result.Tracks, 2)
					assert.Equal(t, 2, result.Tracks[0].HitStreak)
					assert.Equal(t, uint64(1), result.Tracks[1].ID)
					assert.Equal(t, 1, result.Tracks[1].HitStreak)
				})
				t.Run("crossing objects", func(t *testing.T) {
					tm := newTestManager(t, cfg)
					tm.Step([]Box{NewBox(100, 100, 20, 20), NewBox(112, 100, 20, 20), NewBox(300, 300, 20, 20)})
					// Detections come in a different order and the total IoU must still be maximal
					result := tm.Step([]Box{NewBox(301, 300, 20, 20), NewBox(113, 100, 20, 20), NewBox(101, 100, 20, 20)})
					require.Len(t, result.Tracks, 3)
					for _, track := range result.Tracks {
						assert.Equal(t, 2, track.HitStreak, "track %d", track.ID)
					}
				})
			})
		}
	}
}

func TestStepCountsOnce(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.Gate = LineGate{Line: 110, Direction: DirectionIncreasing}
	var events []EventKind
	tm := newTestManager(t, cfg, WithObserver(ObserverFunc(func(event Event) {
		if event.Kind == EventTrackCounted {
			events = append(events, event.Kind)
		}
	})))

	countedAt := -1
	for k := 0; k < 20; k++ {
		result := tm.Step([]Box{NewBox(100, 100+2*float64(k), 20, 20)})
		require.Len(t, result.Tracks, 1, "frame %d", k)
		assert.Equal(t, uint64(0), result.Tracks[0].ID)
		if len(result.Counted) > 0 {
			require.Equal(t, -1, countedAt, "counted twice")
			assert.Equal(t, []uint64{0}, result.Counted)
			assert.GreaterOrEqual(t, result.Tracks[0].HitStreak, cfg.MinHitStreak)
			assert.True(t, result.Tracks[0].Counted)
			assert.Equal(t, TrackConfirmed, result.Tracks[0].State)
			countedAt = k
		}
	}
	assert.GreaterOrEqual(t, countedAt, cfg.MinHitStreak-1)
	assert.Equal(t, int64(1), tm.TotalCount())
	assert.Len(t, events, 1)
}

func TestStepRejectsMalformedDetections(t *testing.T) {
	tm := newTestManager(t, DefaultTrackerConfig())
	tm.Step([]Box{NewBox(100, 100, 20, 20)})

	var rejected []Event
	tm.observers = append(tm.observers, ObserverFunc(func(event Event) {
		if event.Kind == EventDetectionRejected {
			rejected = append(rejected, event)
		}
	}))
	result := tm.Step([]Box{NewBox(100, 100, -5, 20), NewBox(math.NaN(), 100, 20, 20)})
	assert.Equal(t, 2, result.RejectedDetections)
	require.Len(t, result.Tracks, 1)
	assert.Equal(t, 1, result.Tracks[0].TimeSinceUpdate)
	assert.Equal(t, 1, result.Tracks[0].Age)
	assert.Equal(t, int64(1), tm.Stats().TracksCreated)
	assert.Equal(t, int64(2), tm.Stats().RejectedDetections)
	require.Len(t, rejected, 2)
	assert.Equal(t, 0, rejected[0].DetectionIndex)
	assert.Equal(t, 1, rejected[1].DetectionIndex)
	assert.ErrorIs(t, rejected[0].Err, ErrInvalidDetection)
}

func TestStepIdentifiersUnique(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.MaxAge = 3
	created := make(map[uint64]int)
	var order []uint64
	tm := newTestManager(t, cfg, WithObserver(ObserverFunc(func(event Event) {
		if event.Kind == EventTrackCreated {
			created[event.Track.ID]++
			order = append(order, event.Track.ID)
		}
	})))

	rng := rand.New(rand.NewSource(7))
	for frame := 0; frame < 100; frame++ {
		detections := make([]Box, rng.Intn(6))
		for i := range detections {
			detections[i] = NewBox(rng.Float64()*300, rng.Float64()*300, 5+rng.Float64()*30, 5+rng.Float64()*30)
		}
		result := tm.Step(detections)
		live := make(map[uint64]struct{})
		for _, s := range result.Tracks {
			_, dup := live[s.ID]
			require.False(t, dup, "duplicate live id %d", s.ID)
			live[s.ID] = struct{}{}
			assert.LessOrEqual(t, s.TimeSinceUpdate, cfg.MaxAge)
		}
	}
	for id, n := range created {
		assert.Equal(t, 1, n, "id %d created twice", id)
	}
	for i := 1; i < len(order); i++ {
		assert.Less(t, order[i-1], order[i])
	}
}

func TestStepObserverPanicIsContained(t *testing.T) {
	tm := newTestManager(t, DefaultTrackerConfig(), WithObserver(ObserverFunc(func(event Event) {
		panic("observer failure")
	})))
	assert.NotPanics(t, func() {
		result := tm.Step([]Box{NewBox(10, 10, 5, 5)})
		assert.Len(t, result.Tracks, 1)
	})
}

func TestStepPolicyPanicIsContained(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.MinHitStreak = 1
	cfg.Gate = CountingPolicyFunc(func(TrajectorySummary) bool {
		panic("policy failure")
	})
	tm := newTestManager(t, cfg)
	assert.NotPanics(t, func() {
		result := tm.Step([]Box{NewBox(10, 10, 5, 5)})
		assert.Empty(t, result.Counted)
	})
}

func TestStepUpdateFault(t *testing.T) {
	cfg := DefaultTrackerConfig()
	var faults int
	factory := func(initial Box) MotionEstimator {
		return &staticEstimator{box: initial, updateErr: ErrEstimatorFault}
	}
	tm := newTestManager(t, cfg, WithEstimatorFactory(factory), WithObserver(ObserverFunc(func(event Event) {
		if event.Kind == EventEstimatorFault {
			faults++
			assert.ErrorIs(t, event.Err, ErrEstimatorFault)
		}
	})))

	detection := NewBox(50, 50, 10, 10)
	tm.Step([]Box{detection})

	// Detection is consumed by the faulty track, the frame counts as missed
	result := tm.Step([]Box{detection})
	assert.Equal(t, 1, result.EstimatorFaults)
	require.Len(t, result.Tracks, 1)
	assert.Equal(t, 1, result.Tracks[0].TimeSinceUpdate)
	assert.Equal(t, 1, result.Tracks[0].HitStreak)

	result = tm.Step([]Box{detection})
	assert.Equal(t, []uint64{0}, result.Deleted)
	assert.Empty(t, result.Tracks)
	assert.Equal(t, 2, faults)
	assert.Equal(t, int64(2), tm.Stats().EstimatorFaults)
}

func TestStepPredictFault(t *testing.T) {
	factory := func(initial Box) MotionEstimator {
		return &staticEstimator{box: initial, predictErr: ErrEstimatorFault}
	}
	tm := newTestManager(t, DefaultTrackerConfig(), WithEstimatorFactory(factory))
	detection := NewBox(50, 50, 10, 10)
	tm.Step([]Box{detection})

	result := tm.Step([]Box{detection})
	assert.Equal(t, 1, result.EstimatorFaults)
	assert.Equal(t, []uint64{0, 1}, snapshotIDs(result.Tracks))
	assert.Equal(t, 1, result.Tracks[0].TimeSinceUpdate)
}

func TestStepRegionOfInterest(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.MinHitStreak = 1
	roi := NewRectFrom(image.Rect(0, 0, 100, 100))
	cfg.ROI = &roi
	cfg.Gate = CountingPolicyFunc(func(s TrajectorySummary) bool {
		return s.FramesInROI >= 3
	})
	tm := newTestManager(t, cfg)

	detection := NewBox(50, 50, 10, 10)
	for k := 1; k <= 2; k++ {
		result := tm.Step([]Box{detection})
		assert.Empty(t, result.Counted, "frame %d", k)
	}
	result := tm.Step([]Box{detection})
	assert.Equal(t, []uint64{0}, result.Counted)

	// Outside of region nothing is accumulated
	outside := tm.Step([]Box{NewBox(500, 500, 10, 10)})
	for i := 0; i < 5; i++ {
		outside = tm.Step([]Box{NewBox(500, 500, 10, 10)})
	}
	assert.Empty(t, outside.Counted)
}

func TestStepEventOrder(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.MinHitStreak = 2
	cfg.Gate = ExtentGate{MinTravel: 1}
	var kinds []EventKind
	tm := newTestManager(t, cfg, WithObserver(ObserverFunc(func(event Event) {
		kinds = append(kinds, event.Kind)
	})))
	tm.Step([]Box{NewBox(10, 10, 10, 10)})
	tm.Step([]Box{NewBox(10, 14, 10, 10)})
	tm.Step(nil)
	tm.Step(nil)

	want := []EventKind{EventTrackCreated, EventTrackConfirmed, EventTrackCounted, EventTrackDeleted}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("unexpected events (-want +got):\n%s", diff)
	}
}

func TestResetKeepsIdentifiers(t *testing.T) {
	tm := newTestManager(t, DefaultTrackerConfig())
	tm.Step([]Box{NewBox(10, 10, 10, 10), NewBox(100, 100, 10, 10)})
	tm.Reset()
	assert.Empty(t, tm.Tracks())
	result := tm.Step([]Box{NewBox(10, 10, 10, 10)})
	assert.Equal(t, []uint64{2}, snapshotIDs(result.Tracks))
}

func TestNewTrackManagerInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cfg *TrackerConfig)
	}{
		{"min iou above one", func(cfg *TrackerConfig) { cfg.MinIoU = 1.5 }},
		{"negative min iou", func(cfg *TrackerConfig) { cfg.MinIoU = -0.1 }},
		{"zero max age", func(cfg *TrackerConfig) { cfg.MaxAge = 0 }},
		{"zero min hit streak", func(cfg *TrackerConfig) { cfg.MinHitStreak = 0 }},
		{"zero max history", func(cfg *TrackerConfig) { cfg.MaxHistory = 0 }},
		{"unknown algorithm", func(cfg *TrackerConfig) { cfg.Algorithm = 42 }},
		{"unknown model", func(cfg *TrackerConfig) { cfg.Model = 42 }},
		{"unknown axis", func(cfg *TrackerConfig) { cfg.GateAxis = 42 }},
		{"empty roi", func(cfg *TrackerConfig) { cfg.ROI = &Rectangle{Width: 0, Height: 10} }},
		{"zero noise", func(cfg *TrackerConfig) { cfg.Estimator.MeasurementNoisePos = 0 }},
		{"infinite noise", func(cfg *TrackerConfig) { cfg.Estimator.ProcessNoiseVel = math.Inf(1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultTrackerConfig()
			tt.modify(&cfg)
			tm, err := NewTrackManager(cfg)
			assert.Nil(t, tm)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestTrackManagerBackend(t *testing.T) {
	tm := newTestManager(t, DefaultTrackerConfig())
	assert.Equal(t, BackendSoftware, tm.Backend())
	assert.NotEqual(t, tm.Session(), newTestManager(t, DefaultTrackerConfig()).Session())

	tm = newTestManager(t, DefaultTrackerConfig(), WithBackend(BackendAccelerated))
	assert.Equal(t, BackendAccelerated, tm.Backend())
}
