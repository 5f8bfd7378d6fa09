// Package physics is a small rigid-sphere engine that satisfies the
// session.Engine contract. It keeps one independent space per client id,
// integrates free flight with a selectable integrator and resolves ground
// and sphere-sphere contacts iteratively.
package physics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/san-kum/posegen/internal/geom"
	"github.com/san-kum/posegen/internal/session"
)

var (
	ErrUnknownClient  = fmt.Errorf("physics: unknown client: %w", session.ErrEngineDisconnected)
	ErrUnknownBody    = errors.New("physics: unknown body")
	ErrGUIUnsupported = errors.New("physics: gui mode is not supported")
	ErrInvalidBody    = errors.New("physics: invalid body definition")
)

const (
	defaultRestitution = 0.3
	defaultFriction    = 0.5
	linearDamping      = 0.04
	angularDamping     = 0.1
	restVelocity       = 0.05
)

// SphereSpec describes a body to add to a client's space.
type SphereSpec struct {
	Name        string
	Radius      float64
	Mass        float64
	Restitution float64
	Friction    float64
	Position    geom.Vec3
	Orientation geom.Quat
}

// Body is a snapshot of one sphere.
type Body struct {
	ID       int
	Name     string
	Radius   float64
	Mass     float64
	Position geom.Vec3
	Velocity geom.Vec3
	Orient   geom.Quat
	AngVel   geom.Vec3

	restitution float64
	friction    float64
}

func (b *Body) Pose() geom.Transform { return geom.FromPose(b.Orient, b.Position) }

type space struct {
	bodies  map[int]*Body
	nextID  int
	gravity [3]float64
	dt      float64
	iters   int
	time    float64
	plugins []string
	integ   integrator
}

// World hosts any number of client spaces.
type World struct {
	mu         sync.Mutex
	nextClient int
	clients    map[int]*space
	integrator string
}

// NewWorld returns an engine whose spaces integrate free flight with the
// named integrator ("euler", "verlet" or "rk4"; empty means verlet).
func NewWorld(integratorName string) (*World, error) {
	if _, err := newIntegrator(integratorName); err != nil {
		return nil, err
	}
	return &World{clients: make(map[int]*space), integrator: integratorName}, nil
}

func (w *World) Connect(gui bool, options string) (int, error) {
	if gui {
		return -1, ErrGUIUnsupported
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	integ, err := newIntegrator(w.integrator)
	if err != nil {
		return -1, err
	}
	id := w.nextClient
	w.nextClient++
	w.clients[id] = newSpace(integ)
	return id, nil
}

func newSpace(integ integrator) *space {
	return &space{
		bodies: make(map[int]*Body),
		dt:     session.DefaultTimeStep,
		iters:  session.DefaultSolverIterations,
		integ:  integ,
	}
}

func (w *World) space(client int) (*space, error) {
	sp, ok := w.clients[client]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownClient, client)
	}
	return sp, nil
}

func (w *World) ResetSimulation(client int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	sp, err := w.space(client)
	if err != nil {
		return err
	}
	sp.bodies = make(map[int]*Body)
	sp.nextID = 0
	sp.gravity = [3]float64{}
	sp.time = 0
	return nil
}

func (w *World) SetPhysicsEngineParameter(client int, p session.EngineParams) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	sp, err := w.space(client)
	if err != nil {
		return err
	}
	if p.FixedTimeStep > 0 {
		sp.dt = p.FixedTimeStep
	}
	if p.NumSolverIterations > 0 {
		sp.iters = p.NumSolverIterations
	}
	return nil
}

func (w *World) SetGravity(client int, g [3]float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	sp, err := w.space(client)
	if err != nil {
		return err
	}
	sp.gravity = g
	return nil
}

func (w *World) LoadPlugin(client int, path, postfix string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sp, err := w.space(client)
	if err != nil {
		return -1, err
	}
	sp.plugins = append(sp.plugins, path+postfix)
	return len(sp.plugins) - 1, nil
}

func (w *World) Disconnect(client int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.space(client); err != nil {
		return err
	}
	delete(w.clients, client)
	return nil
}

// Plugins lists what LoadPlugin recorded for client.
func (w *World) Plugins(client int) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sp, err := w.space(client)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), sp.plugins...), nil
}

// SimTime is the accumulated simulated time of client.
func (w *World) SimTime(client int) (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sp, err := w.space(client)
	if err != nil {
		return 0, err
	}
	return sp.time, nil
}

func (w *World) AddSphere(client int, spec SphereSpec) (int, error) {
	if spec.Radius <= 0 || spec.Mass <= 0 {
		return -1, fmt.Errorf("%w: radius %.3f mass %.3f", ErrInvalidBody, spec.Radius, spec.Mass)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	sp, err := w.space(client)
	if err != nil {
		return -1, err
	}
	orn := spec.Orientation
	if orn == (geom.Quat{}) {
		orn = geom.IdentityQuat()
	}
	b := &Body{
		ID:          sp.nextID,
		Name:        spec.Name,
		Radius:      spec.Radius,
		Mass:        spec.Mass,
		Position:    spec.Position,
		Orient:      orn.Normalize(),
		restitution: orDefault(spec.Restitution, defaultRestitution),
		friction:    orDefault(spec.Friction, defaultFriction),
	}
	sp.bodies[b.ID] = b
	sp.nextID++
	return b.ID, nil
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

// RemoveBodies deletes every body of client but keeps gravity and solver
// settings, unlike ResetSimulation.
func (w *World) RemoveBodies(client int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	sp, err := w.space(client)
	if err != nil {
		return err
	}
	sp.bodies = make(map[int]*Body)
	sp.nextID = 0
	return nil
}

// ResetBasePose teleports a body and zeroes its velocities.
func (w *World) ResetBasePose(client, body int, pos geom.Vec3, orn geom.Quat) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	sp, err := w.space(client)
	if err != nil {
		return err
	}
	b, ok := sp.bodies[body]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBody, body)
	}
	b.Position = pos
	b.Orient = orn.Normalize()
	b.Velocity = geom.Vec3{}
	b.AngVel = geom.Vec3{}
	return nil
}

// BasePose reports a body's position and orientation in world coordinates.
func (w *World) BasePose(client, body int) (geom.Vec3, geom.Quat, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sp, err := w.space(client)
	if err != nil {
		return geom.Vec3{}, geom.Quat{}, err
	}
	b, ok := sp.bodies[body]
	if !ok {
		return geom.Vec3{}, geom.Quat{}, fmt.Errorf("%w: %d", ErrUnknownBody, body)
	}
	return b.Position, b.Orient, nil
}

// Bodies returns snapshots ordered by body id.
func (w *World) Bodies(client int) ([]Body, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sp, err := w.space(client)
	if err != nil {
		return nil, err
	}
	out := make([]Body, 0, len(sp.bodies))
	for _, b := range sp.sorted() {
		out = append(out, *b)
	}
	return out, nil
}

func (sp *space) sorted() []*Body {
	out := make([]*Body, 0, len(sp.bodies))
	for _, b := range sp.bodies {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) StepSimulation(client int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	sp, err := w.space(client)
	if err != nil {
		return err
	}
	sp.step()
	return nil
}

func (sp *space) step() {
	dt := sp.dt
	bodies := sp.sorted()
	sys := flight{gravity: sp.gravity, damping: linearDamping}

	for _, b := range bodies {
		x := flightState{
			b.Position[0], b.Position[1], b.Position[2],
			b.Velocity[0], b.Velocity[1], b.Velocity[2],
		}
		x = sp.integ.step(sys, x, dt)
		b.Position = geom.Vec3{x[0], x[1], x[2]}
		b.Velocity = geom.Vec3{x[3], x[4], x[5]}
		b.Orient = integrateOrientation(b.Orient, b.AngVel, dt)
		b.AngVel = b.AngVel.Scale(math.Max(0, 1-angularDamping*dt))
	}

	for it := 0; it < sp.iters; it++ {
		moved := false
		for _, b := range bodies {
			if resolveGround(b, it == 0) {
				moved = true
			}
		}
		for i := 0; i < len(bodies); i++ {
			for j := i + 1; j < len(bodies); j++ {
				if resolvePair(bodies[i], bodies[j]) {
					moved = true
				}
			}
		}
		if !moved {
			break
		}
	}
	sp.time += dt
}

// integrateOrientation advances q by q' = 0.5 * (w, 0) * q.
func integrateOrientation(q geom.Quat, w geom.Vec3, dt float64) geom.Quat {
	if w == (geom.Vec3{}) {
		return q
	}
	dq := geom.Quat{w[0], w[1], w[2], 0}.Mul(q)
	return geom.Quat{
		q[0] + 0.5*dt*dq[0],
		q[1] + 0.5*dt*dq[1],
		q[2] + 0.5*dt*dq[2],
		q[3] + 0.5*dt*dq[3],
	}.Normalize()
}

// resolveGround pushes b out of the z=0 plane, reflects the normal velocity
// and, on the first pass, applies friction and sets rolling spin.
func resolveGround(b *Body, first bool) bool {
	pen := b.Radius - b.Position[2]
	if pen <= 0 {
		return false
	}
	b.Position[2] += pen
	if b.Velocity[2] < 0 {
		b.Velocity[2] = -b.restitution * b.Velocity[2]
		if b.Velocity[2] < restVelocity {
			b.Velocity[2] = 0
		}
	}
	if first {
		keep := math.Max(0, 1-b.friction*0.1)
		b.Velocity[0] *= keep
		b.Velocity[1] *= keep
		tangential := geom.Vec3{b.Velocity[0], b.Velocity[1], 0}
		b.AngVel = geom.Vec3{0, 0, 1}.Cross(tangential).Scale(1 / b.Radius)
	}
	return true
}

func resolvePair(a, b *Body) bool {
	d := b.Position.Sub(a.Position)
	dist := d.Norm()
	overlap := a.Radius + b.Radius - dist
	if overlap <= 0 {
		return false
	}
	n := geom.Vec3{0, 0, 1}
	if dist > 1e-12 {
		n = d.Scale(1 / dist)
	}
	invA, invB := 1/a.Mass, 1/b.Mass
	total := invA + invB
	a.Position = a.Position.Sub(n.Scale(overlap * invA / total))
	b.Position = b.Position.Add(n.Scale(overlap * invB / total))

	vrel := b.Velocity.Sub(a.Velocity).Dot(n)
	if vrel < 0 {
		e := math.Min(a.restitution, b.restitution)
		j := -(1 + e) * vrel / total
		a.Velocity = a.Velocity.Sub(n.Scale(j * invA))
		b.Velocity = b.Velocity.Add(n.Scale(j * invB))
	}
	return true
}
