package physics

import "fmt"

// flightState packs one body's translational state as
// [x, y, z, vx, vy, vz]; positions first, velocities second.
type flightState [6]float64

// flight is free motion under gravity with linear drag.
type flight struct {
	gravity [3]float64
	damping float64
}

func (f flight) derive(x flightState) flightState {
	var dx flightState
	for i := 0; i < 3; i++ {
		dx[i] = x[3+i]
		dx[3+i] = f.gravity[i] - f.damping*x[3+i]
	}
	return dx
}

type integrator interface {
	step(sys flight, x flightState, dt float64) flightState
}

const (
	IntegratorEuler  = "euler"
	IntegratorVerlet = "verlet"
	IntegratorRK4    = "rk4"
)

var integrators = map[string]func() integrator{
	IntegratorEuler:  func() integrator { return euler{} },
	IntegratorVerlet: func() integrator { return verlet{} },
	IntegratorRK4:    func() integrator { return rk4{} },
}

func newIntegrator(name string) (integrator, error) {
	if name == "" {
		name = IntegratorVerlet
	}
	fn, ok := integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

// euler is semi-implicit: velocity first, then position with the new velocity.
type euler struct{}

func (euler) step(sys flight, x flightState, dt float64) flightState {
	dx := sys.derive(x)
	var out flightState
	for i := 0; i < 3; i++ {
		out[3+i] = x[3+i] + dx[3+i]*dt
		out[i] = x[i] + out[3+i]*dt
	}
	return out
}

type verlet struct{}

func (verlet) step(sys flight, x flightState, dt float64) flightState {
	var out flightState
	dx := sys.derive(x)
	dt2 := dt * dt
	for i := 0; i < 3; i++ {
		out[i] = x[i] + x[3+i]*dt + 0.5*dx[3+i]*dt2
	}

	var mid flightState
	for i := 0; i < 3; i++ {
		mid[i] = out[i]
		mid[3+i] = x[3+i]
	}
	dxNew := sys.derive(mid)

	halfDt := 0.5 * dt
	for i := 0; i < 3; i++ {
		out[3+i] = x[3+i] + (dx[3+i]+dxNew[3+i])*halfDt
	}
	return out
}

type rk4 struct{}

func (rk4) step(sys flight, x flightState, dt float64) flightState {
	k1 := sys.derive(x)
	var scratch flightState
	for i := range x {
		scratch[i] = x[i] + dt*0.5*k1[i]
	}
	k2 := sys.derive(scratch)
	for i := range x {
		scratch[i] = x[i] + dt*0.5*k2[i]
	}
	k3 := sys.derive(scratch)
	for i := range x {
		scratch[i] = x[i] + dt*k3[i]
	}
	k4 := sys.derive(scratch)

	var out flightState
	dt6 := dt / 6.0
	for i := range x {
		out[i] = x[i] + dt6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}
	return out
}
