// Package humanoid generates humanlike cursor trajectories: a Fitts's-Law
// duration estimate, a cubic-Bezier path whose control points are pushed off
// the straight line by small random offsets, sampled with ease-in-out timing and perturbed
// by Perlin drift plus Gaussian tremor. It produces wire traffic only —
// cdpclient is responsible for actually dispatching the resulting points as
// Input.dispatchMouseEvent calls.
package humanoid

import (
	"math"
	"math/rand"
	"time"

	"github.com/aquilax/go-perlin"
)

// Vector2D is a point or displacement in CSS pixels.
type Vector2D struct {
	X, Y float64
}

func (v Vector2D) sub(o Vector2D) Vector2D { return Vector2D{v.X - o.X, v.Y - o.Y} }
func (v Vector2D) add(o Vector2D) Vector2D { return Vector2D{v.X + o.X, v.Y + o.Y} }
func (v Vector2D) scale(k float64) Vector2D { return Vector2D{v.X * k, v.Y * k} }
func (v Vector2D) length() float64          { return math.Hypot(v.X, v.Y) }

// Step is one sampled point along a planned trajectory plus the delay to
// wait before dispatching it.
type Step struct {
	Vector2D
	Delay time.Duration
}

// Path is a full planned cursor trajectory from the engine's last committed
// position to a destination.
type Path struct {
	Points []Step
}

const (
	fittsA              = 120 * time.Millisecond
	fittsB              = 90 * time.Millisecond
	defaultTargetWidth  = 24.0 // assumed clickable-target width in CSS px
	minSteps            = 6
	maxSteps            = 28
	perlinAlpha         = 2.0
	perlinBeta          = 2.0
	perlinOctaves int32 = 3
	driftAmplitude      = 6.0
	tremorAmplitude     = 1.1
)

// Engine tracks the cursor's last known position and produces successive
// PlanMove trajectories from it, so repeated clicks chain naturally instead
// of teleporting.
type Engine struct {
	current Vector2D
	noise   *perlin.Perlin
	rng     *rand.Rand
	clock   float64
}

// NewEngine constructs an engine starting at startPos, seeded by seed so
// trajectories are reproducible in tests.
func NewEngine(seed int64, startPos Vector2D) *Engine {
	return &Engine{
		current: startPos,
		noise:   perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOctaves, seed),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// PlanMove returns the sampled path from the engine's current position to
// dest. It does not itself move the engine's position; call Commit once the
// move has actually been dispatched.
func (e *Engine) PlanMove(dest Vector2D) Path {
	start := e.current
	delta := dest.sub(start)
	distance := delta.length()

	if distance < 1.0 {
		return Path{Points: []Step{{Vector2D: dest, Delay: 8 * time.Millisecond}}}
	}

	duration := e.fittsDuration(distance)
	steps := stepCount(distance)

	ctrl1, ctrl2 := e.deformedControlPoints(start, dest)

	points := make([]Step, 0, steps)
	stepDelay := duration / time.Duration(steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		eased := easeInOutCubic(t)

		p := cubicBezier(start, ctrl1, ctrl2, dest, eased)
		p = e.perturb(p, t)

		points = append(points, Step{Vector2D: p, Delay: stepDelay})
	}
	// The final point always lands exactly on dest so the subsequent
	// mousePressed/mouseReleased pair never fires off-target.
	points[len(points)-1] = Step{Vector2D: dest, Delay: stepDelay}
	return Path{Points: points}
}

// Commit records that the cursor has actually reached pos, so the next
// PlanMove call starts from there.
func (e *Engine) Commit(pos Vector2D) {
	e.current = pos
}

// ClickHoldDuration returns a short randomized press-release hold, matching
// observed human click dynamics rather than an instantaneous press+release.
func (e *Engine) ClickHoldDuration() time.Duration {
	base := 45 * time.Millisecond
	jitter := time.Duration(e.rng.Int63n(int64(60 * time.Millisecond)))
	return base + jitter
}

func (e *Engine) fittsDuration(distance float64) time.Duration {
	raw := fittsA + time.Duration(float64(fittsB)*math.Log2(1+distance/defaultTargetWidth))
	jitter := 1.0 + (e.rng.Float64()*0.3 - 0.15) // +/-15%
	d := time.Duration(float64(raw) * jitter)
	if d < 30*time.Millisecond {
		d = 30 * time.Millisecond
	}
	return d
}

func stepCount(distance float64) int {
	n := int(distance / 18)
	if n < minSteps {
		n = minSteps
	}
	if n > maxSteps {
		n = maxSteps
	}
	return n
}

// deformedControlPoints picks the two Bezier control points a third and two
// thirds along the straight line, then pushes each perpendicular to the line
// by an amount drawn uniformly from ±driftAmplitude so the path bows instead
// of cutting straight through.
func (e *Engine) deformedControlPoints(start, dest Vector2D) (Vector2D, Vector2D) {
	delta := dest.sub(start)
	length := delta.length()
	if length == 0 {
		return start, dest
	}
	normal := Vector2D{X: -delta.Y / length, Y: delta.X / length}

	bow1 := (e.rng.Float64()*2 - 1) * driftAmplitude
	bow2 := (e.rng.Float64()*2 - 1) * driftAmplitude

	p1 := start.add(delta.scale(1.0 / 3)).add(normal.scale(bow1))
	p2 := start.add(delta.scale(2.0 / 3)).add(normal.scale(bow2))
	return p1, p2
}

// perturb adds Perlin drift (slow, correlated wander) and Gaussian tremor
// (fast, uncorrelated jitter) to a sampled point, both tapering to zero as t
// approaches 1 so the final approach stays precise.
func (e *Engine) perturb(p Vector2D, t float64) Vector2D {
	taper := 1 - t
	e.clock += 0.37

	driftX := e.noise.Noise1D(e.clock) * driftAmplitude * taper
	driftY := e.noise.Noise1D(e.clock+100) * driftAmplitude * taper

	tremorX := e.rng.NormFloat64() * tremorAmplitude * taper
	tremorY := e.rng.NormFloat64() * tremorAmplitude * taper

	return Vector2D{X: p.X + driftX + tremorX, Y: p.Y + driftY + tremorY}
}

func cubicBezier(p0, p1, p2, p3 Vector2D, t float64) Vector2D {
	u := 1 - t
	a := u * u * u
	b := 3 * u * u * t
	c := 3 * u * t * t
	d := t * t * t
	return Vector2D{
		X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
		Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
	}
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	f := -2*t + 2
	return 1 - (f*f*f)/2
}
