package mot

import (
	"image"
	"math"

	"github.com/pkg/errors"
)

// Rectangle is an axis-aligned rectangle given by its top-left corner and size
type Rectangle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func NewRect(x, y, width, height float64) Rectangle {
	return Rectangle{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}
}

// NewRectFrom converts image rectangle (e.g. a region of interest drawn on a frame)
func NewRectFrom(rect image.Rectangle) Rectangle {
	return Rectangle{
		X:      float64(rect.Min.X),
		Y:      float64(rect.Min.Y),
		Width:  float64(rect.Dx()),
		Height: float64(rect.Dy()),
	}
}

// Contains reports whether point lies inside rectangle (borders included)
func (r Rectangle) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// Box is a detection or a track estimate in center form: (X, Y) is the center of the box
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
}

// NewBox creates box from center coordinates and size
func NewBox(cx, cy, width, height float64) Box {
	return Box{
		X:      cx,
		Y:      cy,
		Width:  width,
		Height: height,
	}
}

// NewBoxFromRect converts top-left based rectangle into center form
func NewBoxFromRect(rect Rectangle) Box {
	return Box{
		X:      rect.X + rect.Width/2.0,
		Y:      rect.Y + rect.Height/2.0,
		Width:  rect.Width,
		Height: rect.Height,
	}
}

// Center returns box's center
func (b Box) Center() Point {
	return Point{X: b.X, Y: b.Y}
}

// Area returns box's area
func (b Box) Area() float64 {
	return b.Width * b.Height
}

// Rect returns box as top-left based rectangle
func (b Box) Rect() Rectangle {
	return Rectangle{
		X:      b.X - b.Width/2.0,
		Y:      b.Y - b.Height/2.0,
		Width:  b.Width,
		Height: b.Height,
	}
}

// Validate checks that box could be used as a measurement: finite coordinates and positive size
func (b Box) Validate() error {
	for _, v := range [4]float64{b.X, b.Y, b.Width, b.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrInvalidDetection, "non-finite coordinate in %+v", b)
		}
	}
	if b.Width <= 0 || b.Height <= 0 {
		return errors.Wrapf(ErrInvalidDetection, "non-positive size %vx%v", b.Width, b.Height)
	}
	return nil
}

// Corners is a box given by its top-left (X1, Y1) and bottom-right (X2, Y2) corners
type Corners struct {
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
}

// ToCorners converts center form box into corners form
func ToCorners(b Box) Corners {
	return Corners{
		X1: b.X - b.Width/2.0,
		Y1: b.Y - b.Height/2.0,
		X2: b.X + b.Width/2.0,
		Y2: b.Y + b.Height/2.0,
	}
}

// ToCenterForm converts corners form box into center form
func ToCenterForm(c Corners) Box {
	w := c.X2 - c.X1
	h := c.Y2 - c.Y1
	return Box{
		X:      c.X1 + w/2.0,
		Y:      c.Y1 + h/2.0,
		Width:  w,
		Height: h,
	}
}

type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

// NewPointFrom converts integer image point
func NewPointFrom(point image.Point) Point {
	return Point{
		X: float64(point.X),
		Y: float64(point.Y),
	}
}

func euclideanDistance(p1, p2 Point) float64 {
	return math.Hypot(p1.X-p2.X, p1.Y-p2.Y)
}
