package mot

// EventKind enumerates track lifecycle events reported to observers
type EventKind uint8

const (
	// EventTrackCreated fires when unmatched detection spawns a tentative track
	EventTrackCreated EventKind = iota
	// EventTrackConfirmed fires once when track reaches min hit streak
	EventTrackConfirmed
	// EventTrackCounted fires once when track satisfies counting policy
	EventTrackCounted
	// EventTrackDeleted fires when track is removed after exceeding max age
	EventTrackDeleted
	// EventDetectionRejected fires for every malformed detection dropped at input
	EventDetectionRejected
	// EventEstimatorFault fires when track's estimator fails and the frame is treated as missed for it
	EventEstimatorFault
)

func (kind EventKind) String() string {
	switch kind {
	case EventTrackCreated:
		return "track_created"
	case EventTrackConfirmed:
		return "track_confirmed"
	case EventTrackCounted:
		return "track_counted"
	case EventTrackDeleted:
		return "track_deleted"
	case EventDetectionRejected:
		return "detection_rejected"
	case EventEstimatorFault:
		return "estimator_fault"
	default:
		return "unknown"
	}
}

// Event describes a single lifecycle transition.
// Track is zero for EventDetectionRejected; Detection and DetectionIndex are set only for it.
type Event struct {
	Kind           EventKind
	Frame          int64
	Track          TrackSnapshot
	Detection      Box
	DetectionIndex int
	Err            error
}

// Observer receives events synchronously from TrackManager.Step
type Observer interface {
	OnTrackEvent(event Event)
}

// ObserverFunc is an adapter to use ordinary functions as Observer
type ObserverFunc func(event Event)

// OnTrackEvent calls f(event)
func (f ObserverFunc) OnTrackEvent(event Event) {
	f(event)
}

// notifyObserver delivers event to observer. Panic inside observer does not propagate
func notifyObserver(observer Observer, event Event) {
	defer func() {
		if r := recover(); r != nil {
			Logf("mot: observer panicked on %s (frame %d, track %d): %v", event.Kind, event.Frame, event.Track.ID, r)
		}
	}()
	observer.OnTrackEvent(event)
}
