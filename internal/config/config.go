// Package config holds the recording run configuration persisted as
// config.yaml at the dataset root.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/posegen/internal/frame"
	"github.com/san-kum/posegen/internal/scene"
)

const (
	FileName = "config.yaml"

	DefaultChunks         = 10
	DefaultFramesPerChunk = 100
	DefaultWorkers        = 1
	DefaultTrainRatio     = 0.95
)

type Config struct {
	RunID          string        `yaml:"run_id"`
	DatasetDir     string        `yaml:"ds_dir"`
	Chunks         int           `yaml:"n_chunks"`
	FramesPerChunk int           `yaml:"n_frames_per_chunk"`
	StartSeed      int64         `yaml:"start_seed"`
	Workers        int           `yaml:"n_workers"`
	TrainRatio     float64       `yaml:"train_ratio"`
	Devices        []string      `yaml:"devices,omitempty"`
	Scene          scene.Config  `yaml:"scene"`
	Frame          frame.Options `yaml:"frame"`
	CreatedAt      time.Time     `yaml:"created_at"`
}

func DefaultConfig() *Config {
	return &Config{
		RunID:          uuid.NewString(),
		Chunks:         DefaultChunks,
		FramesPerChunk: DefaultFramesPerChunk,
		Workers:        DefaultWorkers,
		TrainRatio:     DefaultTrainRatio,
		Scene:          scene.Config{Type: scene.DropType},
		Frame:          frame.DefaultOptions(),
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.DatasetDir == "" {
		errs = append(errs, errors.New("ds_dir is required"))
	}
	if c.Chunks < 0 {
		errs = append(errs, fmt.Errorf("n_chunks must not be negative, got %d", c.Chunks))
	}
	if c.FramesPerChunk < 0 {
		errs = append(errs, fmt.Errorf("n_frames_per_chunk must not be negative, got %d", c.FramesPerChunk))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("n_workers must be at least 1, got %d", c.Workers))
	}
	if c.TrainRatio < 0 || c.TrainRatio > 1 {
		errs = append(errs, fmt.Errorf("train_ratio must be in [0, 1], got %f", c.TrainRatio))
	}
	if c.Scene.Type == "" {
		errs = append(errs, errors.New("scene.type is required"))
	}
	if err := c.Frame.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("frame: %w", err))
	}
	return errors.Join(errs...)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	cfg.RunID = ""
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
