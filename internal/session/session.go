// Package session owns the lifecycle of a single physics-engine connection.
//
// A Session is either disconnected or holds exactly one client id. Every
// engine call made through it after Disconnect fails with ErrNotConnected.
// A Session is not safe for concurrent use; one connection per process is
// the supported model.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/posegen/internal/logging"
)

const (
	DefaultTimeStep         = 1.0 / 240.0
	DefaultSolverIterations = 50
	DefaultPluginPostfix    = "_eglRendererPlugin"
)

// DefaultGravity points down the world z axis.
var DefaultGravity = [3]float64{0, 0, -9.8}

type Options struct {
	TimeStep         float64
	SolverIterations int
	Gravity          [3]float64
	// GUIOptions is passed to the engine when connecting in visual mode.
	GUIOptions string
	// Quiet redirects the process's stdout/stderr to the null device while
	// the engine connects and disconnects.
	Quiet bool
	// Devices picks the GPU for offscreen rendering. Required only when
	// connecting with gpuRenderer and without gui.
	Devices *DeviceSelector
	Logger  *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		TimeStep:         DefaultTimeStep,
		SolverIterations: DefaultSolverIterations,
		Gravity:          DefaultGravity,
		GUIOptions:       "--width=640 --height=480",
	}
}

type Session struct {
	engine    Engine
	opts      Options
	log       *slog.Logger
	clientID  int
	connected bool
}

// New returns a disconnected session over engine.
func New(engine Engine, opts Options) *Session {
	if opts.TimeStep <= 0 {
		opts.TimeStep = DefaultTimeStep
	}
	if opts.SolverIterations <= 0 {
		opts.SolverIterations = DefaultSolverIterations
	}
	return &Session{
		engine:   engine,
		opts:     opts,
		log:      logging.OrDiscard(opts.Logger),
		clientID: -1,
	}
}

// Connect establishes the engine connection and applies the fixed solver,
// time-step and gravity parameters. In offscreen GPU mode the rendering
// plugin is loaded on the device named by the visibility variable.
func (s *Session) Connect(ctx context.Context, gpuRenderer, gui bool) error {
	if s.connected {
		return ErrAlreadyConnected
	}
	return s.quietly(func() error { return s.connect(ctx, gpuRenderer, gui) })
}

func (s *Session) connect(ctx context.Context, gpuRenderer, gui bool) error {
	opts := ""
	if gui {
		opts = s.opts.GUIOptions
	}
	id, err := s.engine.Connect(gui, opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	if id < 0 {
		return fmt.Errorf("%w: client id %d", ErrConnectFailed, id)
	}

	setup := func() error {
		if gpuRenderer && !gui {
			if err := s.loadRenderer(ctx, id); err != nil {
				return err
			}
		}
		if err := s.engine.ResetSimulation(id); err != nil {
			return fmt.Errorf("reset simulation: %w", err)
		}
		params := EngineParams{
			NumSolverIterations: s.opts.SolverIterations,
			FixedTimeStep:       s.opts.TimeStep,
		}
		if err := s.engine.SetPhysicsEngineParameter(id, params); err != nil {
			return fmt.Errorf("set engine parameters: %w", err)
		}
		if err := s.engine.SetGravity(id, s.opts.Gravity); err != nil {
			return fmt.Errorf("set gravity: %w", err)
		}
		return nil
	}
	if err := setup(); err != nil {
		_ = s.engine.Disconnect(id)
		return err
	}

	s.clientID = id
	s.connected = true
	s.log.Debug("engine connected", "client", id, "gui", gui, "gpu_renderer", gpuRenderer)
	return nil
}

func (s *Session) loadRenderer(ctx context.Context, client int) error {
	if s.opts.Devices == nil {
		return fmt.Errorf("%w: no device selector configured", ErrDeviceVisibility)
	}
	dev, err := s.opts.Devices.Select(ctx)
	if err != nil {
		return err
	}
	if _, err := s.engine.LoadPlugin(client, dev.PluginPath, DefaultPluginPostfix); err != nil {
		return fmt.Errorf("load renderer plugin on device %s: %w", dev.MinorNumber, err)
	}
	s.log.Debug("renderer plugin loaded", "cuda_device", dev.VisibleID, "egl_device", dev.MinorNumber)
	return nil
}

// RunSimulation advances floor(duration/timeStep) steps. The fractional
// remainder is dropped.
func (s *Session) RunSimulation(duration float64) error {
	if !s.connected {
		return ErrNotConnected
	}
	n := int(math.Floor(duration / s.opts.TimeStep))
	for i := 0; i < n; i++ {
		if err := s.engine.StepSimulation(s.clientID); err != nil {
			return fmt.Errorf("step %d/%d: %w", i+1, n, err)
		}
	}
	return nil
}

// Disconnect resets and releases the connection. Engine errors are logged
// and swallowed; local state is always cleared.
func (s *Session) Disconnect() error {
	if !s.connected {
		return nil
	}
	id := s.clientID
	defer func() {
		s.connected = false
		s.clientID = -1
	}()
	return s.quietly(func() error {
		if err := s.engine.ResetSimulation(id); err != nil {
			s.logTeardown("reset on disconnect", id, err)
		}
		if err := s.engine.Disconnect(id); err != nil {
			s.logTeardown("disconnect", id, err)
		}
		s.log.Debug("engine disconnected", "client", id)
		return nil
	})
}

func (s *Session) logTeardown(op string, id int, err error) {
	if errors.Is(err, ErrEngineDisconnected) {
		s.log.Debug(op+": client already gone", "client", id)
		return
	}
	s.log.Warn(op+" failed", "client", id, "err", err)
}

func (s *Session) Connected() bool { return s.connected }

// ClientID returns the engine-assigned id of the live connection.
func (s *Session) ClientID() (int, error) {
	if !s.connected {
		return -1, ErrNotConnected
	}
	return s.clientID, nil
}

// Engine returns the underlying engine of the live connection.
func (s *Session) Engine() (Engine, error) {
	if !s.connected {
		return nil, ErrNotConnected
	}
	return s.engine, nil
}

func (s *Session) TimeStep() float64 { return s.opts.TimeStep }

func (s *Session) quietly(fn func() error) error {
	if !s.opts.Quiet {
		return fn()
	}
	return SuppressOutput(fn)
}

// With connects, runs fn and disconnects on every exit path.
func With(ctx context.Context, s *Session, gpuRenderer, gui bool, fn func(*Session) error) error {
	if err := s.Connect(ctx, gpuRenderer, gui); err != nil {
		return err
	}
	defer s.Disconnect()
	return fn(s)
}
