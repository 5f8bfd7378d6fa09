package config

import (
	"maps"
	"sort"

	"github.com/san-kum/posegen/internal/frame"
	"github.com/san-kum/posegen/internal/scene"
)

// Presets are keyed by scene type, then preset name. They carry only the
// recording shape and scene parameters; run id and directory are filled in
// by the caller.
var Presets = map[string]map[string]*Config{
	scene.DropType: {
		"smoke": {
			Chunks: 2, FramesPerChunk: 3, Workers: 1, TrainRatio: 0.5,
			Scene: scene.Config{Type: scene.DropType, Params: map[string]any{
				"width": 64, "height": 48, "max_objects": 3, "settle_time": 0.25,
			}},
			Frame: frame.Options{RGBCodec: frame.CodecPNG, Compression: frame.CompressionNone},
		},
		"default": {
			Chunks: DefaultChunks, FramesPerChunk: DefaultFramesPerChunk, Workers: 1, TrainRatio: DefaultTrainRatio,
			Scene: scene.Config{Type: scene.DropType},
			Frame: frame.DefaultOptions(),
		},
		"dense": {
			Chunks: 1000, FramesPerChunk: 200, Workers: 4, TrainRatio: DefaultTrainRatio,
			Scene: scene.Config{Type: scene.DropType, Params: map[string]any{
				"width": 640, "height": 480, "min_objects": 8, "max_objects": 20,
				"spread": 0.25, "settle_time": 2.0,
			}},
			Frame: frame.Options{RGBCodec: frame.CodecJPEG, JPEGQuality: 95, Compression: frame.CompressionZstd},
		},
		"gpu": {
			Chunks: 1000, FramesPerChunk: 200, Workers: 1, TrainRatio: DefaultTrainRatio,
			Scene: scene.Config{Type: scene.DropType, GPURenderer: true, Quiet: true},
			Frame: frame.DefaultOptions(),
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(sceneType, preset string) *Config {
	scenePresets, ok := Presets[sceneType]
	if !ok {
		return nil
	}
	cfg, ok := scenePresets[preset]
	if !ok {
		return nil
	}
	out := *cfg
	out.Scene.Params = maps.Clone(cfg.Scene.Params)
	return &out
}

func ListPresets(sceneType string) []string {
	scenePresets, ok := Presets[sceneType]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(scenePresets))
	for name := range scenePresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
