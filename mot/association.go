package mot

import (
	"math"
	"sort"

	"github.com/arthurkushman/go-hungarian"
)

// MatchingAlgorithm is for algorithm type for matching detections to tracks
type MatchingAlgorithm uint16

const (
	// MatchingAlgorithmKuhnMunkres uses Kuhn-Munkres algorithm with potentials (Jonker-Volgenant flavour).
	// Exact and deterministic
	MatchingAlgorithmKuhnMunkres MatchingAlgorithm = iota
	// MatchingAlgorithmHungarian uses github.com/arthurkushman/go-hungarian solver
	MatchingAlgorithmHungarian
)

func (algo MatchingAlgorithm) String() string {
	switch algo {
	case MatchingAlgorithmKuhnMunkres:
		return "kuhn_munkres"
	case MatchingAlgorithmHungarian:
		return "hungarian"
	default:
		return "unknown"
	}
}

// Association is the result of matching detections to predictions.
// Every detection index and every prediction index is present exactly once in either matched or unmatched set.
type Association struct {
	// Pairs of {detectionIndex, predictionIndex}, sorted by detection index
	Matches [][2]int
	// Indices of detections with no pair, ascending
	UnmatchedDetections []int
	// Indices of predictions with no pair, ascending
	UnmatchedTracks []int
}

// Associate matches detections to predicted track boxes maximizing total IoU.
// Pairs with IoU below minIoU (or with no overlap at all) are never matched.
func Associate(detections, predictions []Box, minIoU float64, algorithm MatchingAlgorithm) Association {
	if len(predictions) == 0 {
		unmatched := make([]int, len(detections))
		for i := range detections {
			unmatched[i] = i
		}
		return Association{
			Matches:             [][2]int{},
			UnmatchedDetections: unmatched,
			UnmatchedTracks:     []int{},
		}
	}
	iouMatrix := IoUMatrix(detections, predictions)
	matches := solveAssignment(iouMatrix, len(detections), len(predictions), minIoU, algorithm)
	return splitMatches(matches, len(detections), len(predictions))
}

// acceptable is the gate for a single detection-prediction pair
func acceptable(iou, minIoU float64) bool {
	return iou > 0 && iou >= minIoU
}

// solveAssignment returns accepted {row, col} pairs of one-to-one assignment maximizing total IoU
func solveAssignment(iouMatrix [][]float64, numDetections, numTracks int, minIoU float64, algorithm MatchingAlgorithm) [][2]int {
	if numDetections == 0 || numTracks == 0 {
		return [][2]int{}
	}
	var assignment []int
	switch algorithm {
	case MatchingAlgorithmHungarian:
		assignment = solveGoHungarian(iouMatrix, numDetections, numTracks, minIoU)
		exact := solveKuhnMunkres(iouMatrix, numDetections, numTracks, minIoU)
		// go-hungarian may leave rows out or return suboptimal assignment
		got := totalIoU(iouMatrix, acceptedMatches(iouMatrix, assignment, numTracks, minIoU))
		want := totalIoU(iouMatrix, acceptedMatches(iouMatrix, exact, numTracks, minIoU))
		if got < want-assignmentTolerance {
			Logf("mot: go-hungarian assignment is suboptimal (total IoU %.4f, optimum %.4f), falling back to Kuhn-Munkres", got, want)
			assignment = exact
		}
	default:
		assignment = solveKuhnMunkres(iouMatrix, numDetections, numTracks, minIoU)
	}
	return acceptedMatches(iouMatrix, assignment, numTracks, minIoU)
}

// assignmentTolerance absorbs float rounding when comparing totals of two assignments
const assignmentTolerance = 1e-9

// acceptedMatches converts assignment[row] = column into {row, col} pairs passing the gate
func acceptedMatches(iouMatrix [][]float64, assignment []int, numTracks int, minIoU float64) [][2]int {
	matches := make([][2]int, 0, len(assignment))
	// We need to prevent double assignment of a column
	reservedTracks := make(map[int]struct{}, numTracks)
	for row, col := range assignment {
		if row >= len(iouMatrix) || col < 0 || col >= numTracks {
			continue
		}
		if _, ok := reservedTracks[col]; ok {
			continue
		}
		if !acceptable(iouMatrix[row][col], minIoU) {
			continue
		}
		reservedTracks[col] = struct{}{}
		matches = append(matches, [2]int{row, col})
	}
	return matches
}

// totalIoU sums IoU over matched pairs
func totalIoU(iouMatrix [][]float64, matches [][2]int) float64 {
	total := 0.0
	for _, m := range matches {
		total += iouMatrix[m[0]][m[1]]
	}
	return total
}

// gatedSquare pads IoU matrix to square form. Padding and gated out pairs both get zero weight
func gatedSquare(iouMatrix [][]float64, numDetections, numTracks int, minIoU float64) [][]float64 {
	paddedSize := maxInt(numDetections, numTracks)
	paddedMatrix := make([][]float64, paddedSize)
	for i := 0; i < paddedSize; i++ {
		paddedMatrix[i] = make([]float64, paddedSize)
		if i >= numDetections {
			continue
		}
		for j := 0; j < numTracks; j++ {
			if acceptable(iouMatrix[i][j], minIoU) {
				paddedMatrix[i][j] = iouMatrix[i][j]
			}
		}
	}
	return paddedMatrix
}

// solveKuhnMunkres solves the square assignment problem with cost = -IoU.
// Returns assignment[row] = column, or -1 if row is not assigned to a real column.
func solveKuhnMunkres(iouMatrix [][]float64, numDetections, numTracks int, minIoU float64) []int {
	weights := gatedSquare(iouMatrix, numDetections, numTracks, minIoU)
	dim := len(weights)
	const inf = math.MaxFloat64 / 2

	// 1-indexed arrays; index 0 is a virtual column
	u := make([]float64, dim+1)    // row potentials
	v := make([]float64, dim+1)    // column potentials
	p := make([]int, dim+1)        // p[j] = row assigned to column j
	way := make([]int, dim+1)      // way[j] = previous column in augmenting path
	minv := make([]float64, dim+1) // minv[j] = slack of column j
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0
		for j := 0; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := -weights[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 < 0 {
				break
			}
			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		// Augment along the path
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	assignment := make([]int, numDetections)
	for i := range assignment {
		assignment[i] = -1
	}
	for j := 1; j <= dim; j++ {
		row := p[j] - 1
		if row >= 0 && row < numDetections && j-1 < numTracks {
			assignment[row] = j - 1
		}
	}
	return assignment
}

// solveGoHungarian runs go-hungarian's maximization solver on the padded square matrix.
// A panic inside the solver leaves every row unassigned
func solveGoHungarian(iouMatrix [][]float64, numDetections, numTracks int, minIoU float64) (assignment []int) {
	assignment = make([]int, numDetections)
	for i := range assignment {
		assignment[i] = -1
	}
	defer func() {
		if r := recover(); r != nil {
			Logf("mot: go-hungarian solver panicked: %v", r)
			for i := range assignment {
				assignment[i] = -1
			}
		}
	}()

	paddedMatrix := gatedSquare(iouMatrix, numDetections, numTracks, minIoU)
	assignmentsMap := hungarian.SolveMax(paddedMatrix)
	for row, rowMap := range assignmentsMap {
		if row < 0 || row >= numDetections {
			continue
		}
		// Inner map contains single entry {column: weight}
		for col := range rowMap {
			if col >= 0 && col < numTracks {
				assignment[row] = col
			}
			break
		}
	}
	return assignment
}

// splitMatches builds Association with matched and unmatched indices in ascending order
func splitMatches(matches [][2]int, numDetections, numTracks int) Association {
	sort.Slice(matches, func(i, j int) bool {
		return matches[i][0] < matches[j][0]
	})
	detectionMatched := make([]bool, numDetections)
	trackMatched := make([]bool, numTracks)
	for _, m := range matches {
		detectionMatched[m[0]] = true
		trackMatched[m[1]] = true
	}
	unmatchedDetections := make([]int, 0, numDetections-len(matches))
	for i, ok := range detectionMatched {
		if !ok {
			unmatchedDetections = append(unmatchedDetections, i)
		}
	}
	unmatchedTracks := make([]int, 0, numTracks-len(matches))
	for j, ok := range trackMatched {
		if !ok {
			unmatchedTracks = append(unmatchedTracks, j)
		}
	}
	return Association{
		Matches:             matches,
		UnmatchedDetections: unmatchedDetections,
		UnmatchedTracks:     unmatchedTracks,
	}
}
