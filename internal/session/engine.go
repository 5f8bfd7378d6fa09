package session

import "errors"

// Engine is the black-box physics backend a Session drives. Calls are
// addressed by the client id returned from Connect. Implementations need not
// be safe for concurrent use.
type Engine interface {
	Connect(gui bool, options string) (int, error)
	ResetSimulation(client int) error
	SetPhysicsEngineParameter(client int, p EngineParams) error
	SetGravity(client int, gravity [3]float64) error
	StepSimulation(client int) error
	LoadPlugin(client int, path, postfix string) (int, error)
	Disconnect(client int) error
}

// EngineParams carries solver settings. Zero fields are left unchanged.
type EngineParams struct {
	NumSolverIterations int
	FixedTimeStep       float64
}

var (
	// ErrNotConnected is returned by any call that needs a live connection.
	ErrNotConnected = errors.New("session: not connected")

	// ErrAlreadyConnected is returned by Connect on a live session.
	ErrAlreadyConnected = errors.New("session: already connected")

	// ErrConnectFailed wraps an engine refusal or an invalid client id.
	ErrConnectFailed = errors.New("session: cannot connect to physics engine")

	// ErrEngineDisconnected is what an Engine reports when the client is
	// already gone. Disconnect treats it as benign.
	ErrEngineDisconnected = errors.New("session: engine client disconnected")

	// ErrDeviceVisibility means the device-visibility variable is missing,
	// empty, or names more than one device.
	ErrDeviceVisibility = errors.New("session: device visibility must name exactly one GPU")
)
