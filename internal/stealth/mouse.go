// Package stealth - Bézier curve mouse movement
package stealth

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// Point represents a 2D coordinate
type Point struct {
	X, Y float64
}

// Pointer is a page mouse. Position reports where the cursor currently is.
type Pointer interface {
	Position() Point
	MoveTo(ctx context.Context, p Point) error
	Down(ctx context.Context) error
	Up(ctx context.Context) error
}

// Default speed range when none is configured
const (
	defaultMouseSpeedMin = 0.5
	defaultMouseSpeedMax = 2.0

	overshootChance = 0.3
)

// MouseController handles human-like mouse movements using Bézier curves.
// It keeps no cursor state; the Pointer owns the position.
type MouseController struct {
	timing    *TimingController
	rng       *Rand
	speedMin  float64
	speedMax  float64
	overshoot bool
	logger    zerolog.Logger
}

// NewMouseController creates a new mouse controller
func NewMouseController(timing *TimingController, rng *Rand, speedMin, speedMax float64, overshoot bool, logger zerolog.Logger) *MouseController {
	if speedMin <= 0 {
		speedMin = defaultMouseSpeedMin
	}
	if speedMax < speedMin {
		speedMax = math.Max(defaultMouseSpeedMax, speedMin)
	}
	return &MouseController{
		timing:    timing,
		rng:       rng,
		speedMin:  speedMin,
		speedMax:  speedMax,
		overshoot: overshoot,
		logger:    logger.With().Str("module", "mouse").Logger(),
	}
}

// MoveTo moves the cursor to target along a Bézier curve
func (m *MouseController) MoveTo(ctx context.Context, p Pointer, target Point) error {
	from := p.Position()
	m.logger.Debug().
		Float64("fromX", from.X).Float64("fromY", from.Y).
		Float64("toX", target.X).Float64("toY", target.Y).
		Msg("Moving mouse with Bézier curve")

	points := m.Path(from, target)
	for i, point := range points {
		if err := p.MoveTo(ctx, point); err != nil {
			return err
		}
		if err := m.timing.Sleep(ctx, m.stepDelay(float64(i)/float64(len(points)))); err != nil {
			return err
		}
	}

	if m.overshoot && m.rng.Float64() < overshootChance {
		return m.applyOvershoot(ctx, p, target)
	}
	return nil
}

// ClickBox moves to a point near the center of box and clicks it
func (m *MouseController) ClickBox(ctx context.Context, p Pointer, box Box) error {
	center := box.Center()
	target := Point{
		X: center.X + (m.rng.Float64()-0.5)*math.Min(10, box.Width/2),
		Y: center.Y + (m.rng.Float64()-0.5)*math.Min(10, box.Height/2),
	}

	if err := m.MoveTo(ctx, p, target); err != nil {
		return err
	}
	return m.Click(ctx, p)
}

// Click performs a human-like click at the current position
func (m *MouseController) Click(ctx context.Context, p Pointer) error {
	if err := m.timing.Sleep(ctx, time.Duration(m.rng.Between(50, 150))*time.Millisecond); err != nil {
		return err
	}

	if err := p.Down(ctx); err != nil {
		return err
	}

	// Hold like a real click; the button is released even if ctx ends
	holdErr := m.timing.Sleep(ctx, time.Duration(m.rng.Between(50, 150))*time.Millisecond)
	if err := p.Up(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	if holdErr != nil {
		return holdErr
	}

	return m.timing.Sleep(ctx, time.Duration(m.rng.Between(100, 300))*time.Millisecond)
}

// Path returns the points of a jittered cubic Bézier curve from start to end.
// It has at least 20 points and one more per 10px of distance; the first and
// last points are exactly start and end.
func (m *MouseController) Path(start, end Point) []Point {
	distance := math.Hypot(end.X-start.X, end.Y-start.Y)
	numPoints := int(math.Max(20, distance/10))

	ctrl1, ctrl2 := m.controlPoints(start, end, distance)

	points := make([]Point, numPoints)
	for i := 0; i < numPoints; i++ {
		t := float64(i) / float64(numPoints-1)

		x := cubicBezier(t, start.X, ctrl1.X, ctrl2.X, end.X)
		y := cubicBezier(t, start.Y, ctrl1.Y, ctrl2.Y, end.Y)

		if i > 0 && i < numPoints-1 {
			x += (m.rng.Float64() - 0.5) * 2
			y += (m.rng.Float64() - 0.5) * 2
		}

		points[i] = Point{X: x, Y: y}
	}
	points[0] = start
	points[numPoints-1] = end

	return points
}

// controlPoints bends the curve to one side of the straight line
func (m *MouseController) controlPoints(start, end Point, distance float64) (Point, Point) {
	curvature := distance * (0.1 + m.rng.Float64()*0.3)
	if m.rng.Float64() < 0.5 {
		curvature = -curvature
	}

	dx := end.X - start.X
	dy := end.Y - start.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		length = 1
	}

	perpX := -dy / length
	perpY := dx / length

	ctrl1 := Point{
		X: start.X + dx*0.25 + perpX*curvature*(0.5+m.rng.Float64()*0.5),
		Y: start.Y + dy*0.25 + perpY*curvature*(0.5+m.rng.Float64()*0.5),
	}
	ctrl2 := Point{
		X: start.X + dx*0.75 + perpX*curvature*(0.5+m.rng.Float64()*0.5),
		Y: start.Y + dy*0.75 + perpY*curvature*(0.5+m.rng.Float64()*0.5),
	}

	return ctrl1, ctrl2
}

func cubicBezier(t, p0, p1, p2, p3 float64) float64 {
	mt := 1 - t
	return mt*mt*mt*p0 + 3*mt*mt*t*p1 + 3*mt*t*t*p2 + t*t*t*p3
}

// SpeedFactor eases in and out: speedMin at both ends, speedMax mid-path
func (m *MouseController) SpeedFactor(progress float64) float64 {
	return m.speedMin + math.Sin(math.Pi*progress)*(m.speedMax-m.speedMin)
}

// stepDelay is 5-15ms scaled down by the speed factor
func (m *MouseController) stepDelay(progress float64) time.Duration {
	base := float64(m.rng.Between(5, 15)) * float64(time.Millisecond)
	return time.Duration(base / m.SpeedFactor(progress))
}

// applyOvershoot passes the target by 5-15px and corrects back
func (m *MouseController) applyOvershoot(ctx context.Context, p Pointer, target Point) error {
	dist := 5 + m.rng.Float64()*10
	angle := m.rng.Float64() * 2 * math.Pi

	past := Point{X: target.X + math.Cos(angle)*dist, Y: target.Y + math.Sin(angle)*dist}
	if err := p.MoveTo(ctx, past); err != nil {
		return err
	}
	if err := m.timing.Sleep(ctx, time.Duration(m.rng.Between(30, 80))*time.Millisecond); err != nil {
		return err
	}

	if err := p.MoveTo(ctx, target); err != nil {
		return err
	}

	m.logger.Debug().Msg("Applied mouse overshoot correction")
	return m.timing.Sleep(ctx, time.Duration(m.rng.Between(20, 50))*time.Millisecond)
}

// Box is an element's on-screen rectangle
type Box struct {
	X, Y, Width, Height float64
}

// Center returns the middle of the box
func (b Box) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}
