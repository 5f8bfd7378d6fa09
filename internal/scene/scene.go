// Package scene defines the contract of scene-content generators and a
// registry to build them by name.
package scene

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/posegen/internal/frame"
	"github.com/san-kum/posegen/internal/logging"
	"github.com/san-kum/posegen/internal/session"
)

// Generator decides what a frame contains. Connect opens the generator's
// simulation session; MakeNewScene drives it to a new scene instant and
// captures one record; Disconnect releases the session.
type Generator interface {
	Connect(ctx context.Context, load bool) error
	MakeNewScene(ctx context.Context) (*frame.Record, error)
	Disconnect() error
}

// Config selects and parameterizes a generator. Params are decoded by the
// generator itself.
type Config struct {
	Type             string         `yaml:"type"`
	GPURenderer      bool           `yaml:"gpu_renderer"`
	Quiet            bool           `yaml:"quiet"`
	TimeStep         float64        `yaml:"time_step,omitempty"`
	SolverIterations int            `yaml:"solver_iterations,omitempty"`
	PluginPath       string         `yaml:"plugin_path,omitempty"`
	Params           map[string]any `yaml:"params,omitempty"`
}

// DecodeParams fills out from Params through a yaml round trip, so the
// generator's own yaml tags and defaults apply.
func (c Config) DecodeParams(out any) error {
	if len(c.Params) == 0 {
		return nil
	}
	data, err := yaml.Marshal(c.Params)
	if err != nil {
		return fmt.Errorf("encode scene params: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode scene params: %w", err)
	}
	return nil
}

// SessionOptions derives simulation-session options from the config.
func (c Config) SessionOptions(log *slog.Logger) session.Options {
	opts := session.DefaultOptions()
	if c.TimeStep > 0 {
		opts.TimeStep = c.TimeStep
	}
	if c.SolverIterations > 0 {
		opts.SolverIterations = c.SolverIterations
	}
	opts.Quiet = c.Quiet
	opts.Logger = log
	if c.GPURenderer {
		opts.Devices = session.NewDeviceSelector(c.PluginPath)
	}
	return opts
}

// Factory builds a generator for one seed. The seed is the generator's only
// source of randomness.
type Factory func(cfg Config, seed int64, log *slog.Logger) (Generator, error)

type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with the bundled generators.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(DropType, NewDrop)
	return r
}

func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

func (r *Registry) New(cfg Config, seed int64, log *slog.Logger) (Generator, error) {
	fn, ok := r.factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown scene type: %q (available: %v)", cfg.Type, r.List())
	}
	return fn(cfg, seed, logging.OrDiscard(log))
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
