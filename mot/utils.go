package mot

// iouEpsilon keeps union strictly positive when both boxes are degenerate
const iouEpsilon = 1e-9

// IoU calculates Intersection over Union between two center form boxes.
// Result is always in [0, 1]; boxes with zero area give 0.
func IoU(a, b Box) float64 {
	ca := ToCorners(a)
	cb := ToCorners(b)
	xA := maxFloat64(ca.X1, cb.X1)
	yA := maxFloat64(ca.Y1, cb.Y1)
	xB := minFloat64(ca.X2, cb.X2)
	yB := minFloat64(ca.Y2, cb.Y2)

	interArea := maxFloat64(0, xB-xA) * maxFloat64(0, yB-yA)
	if interArea <= 0 {
		return 0.0
	}
	union := maxFloat64(0, a.Width)*maxFloat64(0, a.Height) + maxFloat64(0, b.Width)*maxFloat64(0, b.Height) - interArea
	iouVal := interArea / maxFloat64(union, iouEpsilon)
	return minFloat64(iouVal, 1.0)
}

// IoUMatrix returns len(a) x len(b) matrix where element [i][j] is IoU between a[i] and b[j]
func IoUMatrix(a, b []Box) [][]float64 {
	matrix := make([][]float64, len(a))
	for i := range a {
		row := make([]float64, len(b))
		for j := range b {
			row[j] = IoU(a[i], b[j])
		}
		matrix[i] = row
	}
	return matrix
}

func maxFloat64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
