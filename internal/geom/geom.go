package geom

import "math"

type Pos2 struct {
	X, Y float32
}

type Vec2 struct {
	X, Y float32
}

// Color is an RGBA color; alpha is always opaque for game entities.
type Color struct {
	R, G, B, A uint8
}

func RGB(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b, A: 255}
}

func (p Pos2) Add(v Vec2) Pos2 {
	return Pos2{X: p.X + v.X, Y: p.Y + v.Y}
}

func (p Pos2) Sub(o Pos2) Vec2 {
	return Vec2{X: p.X - o.X, Y: p.Y - o.Y}
}

func (p Pos2) Distance(o Pos2) float32 {
	return p.Sub(o).Length()
}

func (v Vec2) Scale(s float32) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

func (v Vec2) Length() float32 {
	return float32(math.Hypot(float64(v.X), float64(v.Y)))
}

// Normalized returns the unit vector, or the zero vector for a zero-length input.
func (v Vec2) Normalized() Vec2 {
	l := v.Length()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{X: v.X / l, Y: v.Y / l}
}

// FromAngle returns the unit vector pointing at angle radians.
func FromAngle(angle float32) Vec2 {
	s, c := math.Sincos(float64(angle))
	return Vec2{X: float32(c), Y: float32(s)}
}

// WrapAngle maps an angle into (-π, π].
func WrapAngle(a float32) float32 {
	w := math.Mod(float64(a)+math.Pi, 2*math.Pi)
	if w <= 0 {
		w += 2 * math.Pi
	}
	return float32(w - math.Pi)
}

// AngleDelta returns the signed shortest rotation from one heading to another, in [-π, π].
func AngleDelta(from, to float32) float32 {
	return WrapAngle(to - from)
}

func Clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
