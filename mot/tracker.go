package mot

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TrackManager is a SORT-like multi-object tracker which counts objects passing a gate.
// It is not safe for concurrent use: Step must be called from a single goroutine, one frame at a time, in temporal order.
type TrackManager struct {
	cfg       TrackerConfig
	session   uuid.UUID
	backend   Backend
	probed    bool
	factory   EstimatorFactory
	observers []Observer
	// Live tracks in creation order
	tracks []*Track
	// Next identifier to assign. Never decreases
	nextID uint64
	frame  int64
	stats  Stats
}

// Stats holds cumulative counters of TrackManager
type Stats struct {
	Frames             int64
	TracksCreated      int64
	TracksDeleted      int64
	Counted            int64
	RejectedDetections int64
	EstimatorFaults    int64
	OutOfOrderFrames   int64
}

// FrameResult is the output of a single Step
type FrameResult struct {
	// Sequential number of processed frame starting from 1
	Frame int64
	// Identifiers of tracks counted in this frame. This is the only signal to increment external counter
	Counted []uint64
	// Identifiers of tracks removed in this frame
	Deleted []uint64
	// Live tracks after this frame ordered by identifier
	Tracks []TrackSnapshot
	// Number of malformed detections dropped in this frame
	RejectedDetections int
	// Number of tracks whose estimator failed in this frame
	EstimatorFaults int
}

// Option configures TrackManager
type Option func(tm *TrackManager)

// WithObserver adds observer of lifecycle events. Observers are called in registration order
func WithObserver(observer Observer) Option {
	return func(tm *TrackManager) {
		if observer != nil {
			tm.observers = append(tm.observers, observer)
		}
	}
}

// WithEstimatorFactory replaces built-in motion estimators
func WithEstimatorFactory(factory EstimatorFactory) Option {
	return func(tm *TrackManager) {
		if factory != nil {
			tm.factory = factory
		}
	}
}

// WithBackend skips probing of linear algebra backend
func WithBackend(backend Backend) Option {
	return func(tm *TrackManager) {
		tm.backend = backend
		tm.probed = true
	}
}

// NewTrackManager creates tracker. Invalid configuration is reported here and never later
func NewTrackManager(cfg TrackerConfig, options ...Option) (*TrackManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "can't create track manager")
	}
	tm := &TrackManager{
		cfg:     cfg,
		session: uuid.New(),
		tracks:  make([]*Track, 0),
	}
	for _, option := range options {
		option(tm)
	}
	if !tm.probed {
		tm.backend = ProbeBackend()
		tm.probed = true
	}
	if tm.factory == nil {
		tm.factory = newEstimatorFactory(cfg.Model, cfg.Estimator)
	}
	Logf("mot: track manager %s started: backend=%s model=%s algorithm=%s min_iou=%.2f max_age=%d min_hit_streak=%d",
		tm.session, tm.backend, cfg.Model, cfg.Algorithm, cfg.MinIoU, cfg.MaxAge, cfg.MinHitStreak)
	return tm, nil
}

// Session returns identifier of tracking session
func (tm *TrackManager) Session() uuid.UUID {
	return tm.session
}

// Backend returns linear algebra backend resolved at construction
func (tm *TrackManager) Backend() Backend {
	return tm.backend
}

// Config returns configuration tracker was created with
func (tm *TrackManager) Config() TrackerConfig {
	return tm.cfg
}

// Stats returns cumulative counters
func (tm *TrackManager) Stats() Stats {
	return tm.stats
}

// TotalCount returns number of objects counted since creation
func (tm *TrackManager) TotalCount() int64 {
	return tm.stats.Counted
}

// Tracks returns snapshots of live tracks ordered by identifier
func (tm *TrackManager) Tracks() []TrackSnapshot {
	snapshots := make([]TrackSnapshot, 0, len(tm.tracks))
	for _, track := range tm.tracks {
		snapshots = append(snapshots, track.Snapshot())
	}
	return snapshots
}

// Reset drops every live track. Identifiers keep growing so they are not reused
func (tm *TrackManager) Reset() {
	tm.tracks = tm.tracks[:0]
}

// Step processes detections of a single frame: predict, associate, update, spawn, age, count and delete.
// It never fails: malformed detections and estimator faults are reported in FrameResult.
func (tm *TrackManager) Step(detections []Box) FrameResult {
	tm.frame++
	tm.stats.Frames++
	result := FrameResult{
		Frame:   tm.frame,
		Counted: []uint64{},
		Deleted: []uint64{},
	}

	// Drop malformed detections at the boundary
	valid := make([]Box, 0, len(detections))
	for i, detection := range detections {
		if err := detection.Validate(); err != nil {
			result.RejectedDetections++
			tm.notify(Event{Kind: EventDetectionRejected, Frame: tm.frame, Detection: detection, DetectionIndex: i, Err: err})
			continue
		}
		valid = append(valid, detection)
	}
	tm.stats.RejectedDetections += int64(result.RejectedDetections)

	// 1. Predict every live track
	predictions := make([]Box, 0, len(tm.tracks))
	predictedTracks := make([]*Track, 0, len(tm.tracks))
	for _, track := range tm.tracks {
		predicted, err := track.predict()
		if err != nil {
			tm.fault(track, err, &result)
			continue
		}
		predictions = append(predictions, predicted)
		predictedTracks = append(predictedTracks, track)
	}

	// 2. Associate
	association := Associate(valid, predictions, tm.cfg.MinIoU, tm.cfg.Algorithm)

	// 3. Update matched tracks
	for _, match := range association.Matches {
		track := predictedTracks[match[1]]
		if err := track.update(valid[match[0]]); err != nil {
			tm.fault(track, err, &result)
			continue
		}
		tm.confirm(track)
	}

	// 4. Spawn tentative tracks for unmatched detections
	for _, detIdx := range association.UnmatchedDetections {
		detection := valid[detIdx]
		track := newTrack(tm.nextID, detection, tm.factory(detection), tm.cfg.GateAxis, tm.cfg.MaxHistory)
		tm.nextID++
		tm.tracks = append(tm.tracks, track)
		tm.stats.TracksCreated++
		tm.notify(Event{Kind: EventTrackCreated, Frame: tm.frame, Track: track.Snapshot()})
		tm.confirm(track)
	}

	// 5. Mark stale tracks. Unmatched tracks keep their predicted state
	for _, track := range tm.tracks {
		if track.timeSinceUpdate > tm.cfg.MaxAge {
			track.state = TrackDeleted
			continue
		}
		if tm.cfg.ROI != nil && tm.cfg.ROI.Contains(track.GetBBox().Center()) {
			track.framesInROI++
		}
	}

	// 6. Counting
	if tm.cfg.Gate != nil {
		for _, track := range tm.tracks {
			if track.state != TrackConfirmed || track.counted || track.hitStreak < tm.cfg.MinHitStreak {
				continue
			}
			if !tm.shouldCount(track) {
				continue
			}
			track.counted = true
			tm.stats.Counted++
			result.Counted = append(result.Counted, track.id)
			tm.notify(Event{Kind: EventTrackCounted, Frame: tm.frame, Track: track.Snapshot()})
		}
	}

	// 7. Remove stale tracks
	alive := tm.tracks[:0]
	for _, track := range tm.tracks {
		if track.state == TrackDeleted {
			result.Deleted = append(result.Deleted, track.id)
			tm.stats.TracksDeleted++
			tm.notify(Event{Kind: EventTrackDeleted, Frame: tm.frame, Track: track.Snapshot()})
			continue
		}
		alive = append(alive, track)
	}
	for i := len(alive); i < len(tm.tracks); i++ {
		tm.tracks[i] = nil
	}
	tm.tracks = alive

	result.Tracks = tm.Tracks()
	return result
}

// confirm promotes tentative track which reached min hit streak
func (tm *TrackManager) confirm(track *Track) {
	if track.state != TrackTentative || track.hitStreak < tm.cfg.MinHitStreak {
		return
	}
	track.state = TrackConfirmed
	tm.notify(Event{Kind: EventTrackConfirmed, Frame: tm.frame, Track: track.Snapshot()})
}

// fault records estimator failure. The track has already been aged by predict, so the frame counts as missed for it
func (tm *TrackManager) fault(track *Track, err error, result *FrameResult) {
	result.EstimatorFaults++
	tm.stats.EstimatorFaults++
	Logf("mot: session %s frame %d: track %d treated as missed: %v", tm.session, tm.frame, track.id, err)
	tm.notify(Event{Kind: EventEstimatorFault, Frame: tm.frame, Track: track.Snapshot(), Err: err})
}

// shouldCount evaluates counting policy. Panic inside policy is treated as "not yet"
func (tm *TrackManager) shouldCount(track *Track) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			Logf("mot: session %s frame %d: counting policy panicked on track %d: %v", tm.session, tm.frame, track.id, r)
			ok = false
		}
	}()
	return tm.cfg.Gate.ShouldCount(track.Summary())
}

func (tm *TrackManager) notify(event Event) {
	for _, observer := range tm.observers {
		notifyObserver(observer, event)
	}
}
