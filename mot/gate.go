package mot

// TrajectorySummary is what counting policies see of a track
type TrajectorySummary struct {
	ID uint64
	// Axis the extremes below are measured along
	Axis Axis
	// Coordinate along Axis at creation
	First float64
	// Coordinate along Axis after the latest update
	Last float64
	// Running extremes along Axis since creation
	Min float64
	Max float64
	// Center at creation and after the latest update
	FirstCenter Point
	Center      Point
	// Frames spent with center inside region of interest
	FramesInROI int
	Age         int
	Hits        int
	HitStreak   int
}

// Travel returns extent of trajectory along gate axis
func (s TrajectorySummary) Travel() float64 {
	return s.Max - s.Min
}

// CountingPolicy decides whether a tracked object has passed the gate and should be counted
type CountingPolicy interface {
	ShouldCount(summary TrajectorySummary) bool
}

// CountingPolicyFunc is an adapter to use ordinary functions as CountingPolicy
type CountingPolicyFunc func(summary TrajectorySummary) bool

// ShouldCount calls f(summary)
func (f CountingPolicyFunc) ShouldCount(summary TrajectorySummary) bool {
	return f(summary)
}

// Direction of line crossing
type Direction uint8

const (
	// DirectionIncreasing means coordinate grows while crossing (e.g. top to bottom for AxisY)
	DirectionIncreasing Direction = iota
	// DirectionDecreasing means coordinate decreases while crossing
	DirectionDecreasing
	// DirectionEither accepts both
	DirectionEither
)

// LineGate counts object when it has started before the line and its trajectory extreme reached the line
type LineGate struct {
	Line      float64
	Direction Direction
}

// ShouldCount implements CountingPolicy
func (g LineGate) ShouldCount(s TrajectorySummary) bool {
	increasing := s.First < g.Line && s.Max >= g.Line
	decreasing := s.First > g.Line && s.Min <= g.Line
	switch g.Direction {
	case DirectionIncreasing:
		return increasing
	case DirectionDecreasing:
		return decreasing
	default:
		return increasing || decreasing
	}
}

// RadiusGate counts object which was first seen within TriggerRadius around BufferPoint and is now at or beyond it
type RadiusGate struct {
	BufferPoint   Point
	TriggerRadius float64
}

// ShouldCount implements CountingPolicy
func (g RadiusGate) ShouldCount(s TrajectorySummary) bool {
	return euclideanDistance(s.FirstCenter, g.BufferPoint) < g.TriggerRadius &&
		euclideanDistance(s.Center, g.BufferPoint) >= g.TriggerRadius
}

// ExtentGate counts object which has travelled at least MinTravel along gate axis
type ExtentGate struct {
	MinTravel float64
}

// ShouldCount implements CountingPolicy
func (g ExtentGate) ShouldCount(s TrajectorySummary) bool {
	return s.Travel() >= g.MinTravel
}
