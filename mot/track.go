package mot

// TrackState represents the lifecycle state of a track.
// Being counted is a separate flag: counted track stays confirmed until deleted
type TrackState uint8

const (
	// TrackTentative is a new track which has not reached min hit streak yet
	TrackTentative TrackState = iota
	// TrackConfirmed is a track which has reached min hit streak at least once
	TrackConfirmed
	// TrackDeleted is a track which exceeded max age and is removed from the live set
	TrackDeleted
)

func (state TrackState) String() string {
	switch state {
	case TrackTentative:
		return "tentative"
	case TrackConfirmed:
		return "confirmed"
	case TrackDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (state TrackState) MarshalText() ([]byte, error) {
	return []byte(state.String()), nil
}

// Track is a single tracked object. It is owned by TrackManager and mutated only by its own predict and update.
type Track struct {
	id        uint64
	estimator MotionEstimator
	state     TrackState

	// Lifecycle counters
	age             int
	timeSinceUpdate int
	hitStreak       int
	hits            int

	// Predicted boxes since the last update
	history    []Box
	maxHistory int

	// Trajectory extremes along gate axis
	axis        Axis
	first       float64
	last        float64
	min         float64
	max         float64
	firstCenter Point
	framesInROI int

	counted bool
}

// newTrack creates tentative track from a detection. The creation frame counts as the first hit
func newTrack(id uint64, detection Box, estimator MotionEstimator, axis Axis, maxHistory int) *Track {
	center := detection.Center()
	coord := axis.coordinate(center)
	return &Track{
		id:          id,
		estimator:   estimator,
		state:       TrackTentative,
		hitStreak:   1,
		hits:        1,
		history:     make([]Box, 0, maxHistory),
		maxHistory:  maxHistory,
		axis:        axis,
		first:       coord,
		last:        coord,
		min:         coord,
		max:         coord,
		firstCenter: center,
	}
}

// GetID returns track's identifier
func (track *Track) GetID() uint64 {
	return track.id
}

// GetState returns track's lifecycle state
func (track *Track) GetState() TrackState {
	return track.state
}

// GetBBox returns box derived from current estimator state
func (track *Track) GetBBox() Box {
	return track.estimator.CurrentBox()
}

// GetVelocity returns center velocity in pixels per frame
func (track *Track) GetVelocity() (float64, float64) {
	return track.estimator.Velocity()
}

// GetAge returns number of frames since creation
func (track *Track) GetAge() int {
	return track.age
}

// GetTimeSinceUpdate returns number of frames since the last successful update
func (track *Track) GetTimeSinceUpdate() int {
	return track.timeSinceUpdate
}

// GetHitStreak returns number of consecutive matched frames
func (track *Track) GetHitStreak() int {
	return track.hitStreak
}

// GetHits returns total number of matched frames
func (track *Track) GetHits() int {
	return track.hits
}

// IsCounted reports whether the track has been counted
func (track *Track) IsCounted() bool {
	return track.counted
}

// GetHistory returns copy of boxes predicted since the last update
func (track *Track) GetHistory() []Box {
	history := make([]Box, len(track.history))
	copy(history, track.history)
	return history
}

// predict advances estimator by one frame.
// Counters are advanced even when estimator fails so missed frames are still aged.
func (track *Track) predict() (Box, error) {
	track.age++
	if track.timeSinceUpdate > 0 {
		track.hitStreak = 0
	}
	track.timeSinceUpdate++
	predicted, err := track.estimator.Predict()
	if err != nil {
		return predicted, err
	}
	track.history = append(track.history, predicted)
	if len(track.history) > track.maxHistory {
		track.history = track.history[1:]
	}
	return predicted, nil
}

// update corrects estimator with matched detection. On estimator error the frame is left as missed
func (track *Track) update(detection Box) error {
	err := track.estimator.Update(detection)
	if err != nil {
		return err
	}
	track.timeSinceUpdate = 0
	track.history = track.history[:0]
	track.hits++
	track.hitStreak++

	center := track.estimator.CurrentBox().Center()
	coord := track.axis.coordinate(center)
	track.last = coord
	track.min = minFloat64(track.min, coord)
	track.max = maxFloat64(track.max, coord)
	return nil
}

// Summary returns trajectory summary for counting policies
func (track *Track) Summary() TrajectorySummary {
	return TrajectorySummary{
		ID:          track.id,
		Axis:        track.axis,
		First:       track.first,
		Last:        track.last,
		Min:         track.min,
		Max:         track.max,
		FirstCenter: track.firstCenter,
		Center:      track.estimator.CurrentBox().Center(),
		FramesInROI: track.framesInROI,
		Age:         track.age,
		Hits:        track.hits,
		HitStreak:   track.hitStreak,
	}
}

// TrackSnapshot is a copy of track's public state. It is safe to keep across frames
type TrackSnapshot struct {
	ID              uint64     `json:"id"`
	Box             Box        `json:"box"`
	VX              float64    `json:"vx"`
	VY              float64    `json:"vy"`
	Age             int        `json:"age"`
	HitStreak       int        `json:"hit_streak"`
	TimeSinceUpdate int        `json:"time_since_update"`
	State           TrackState `json:"state"`
	Counted         bool       `json:"counted"`
}

// Snapshot copies track's public state
func (track *Track) Snapshot() TrackSnapshot {
	vx, vy := track.estimator.Velocity()
	return TrackSnapshot{
		ID:              track.id,
		Box:             track.estimator.CurrentBox(),
		VX:              vx,
		VY:              vy,
		Age:             track.age,
		HitStreak:       track.hitStreak,
		TimeSinceUpdate: track.timeSinceUpdate,
		State:           track.state,
		Counted:         track.counted,
	}
}
