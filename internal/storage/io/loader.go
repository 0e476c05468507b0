package io

import (
	"context"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
)

// Preset is a reusable set of generation settings loaded from disk.
type Preset struct {
	Params   model.GenerationParams
	Count    int
	Parallel int
	Title    string
}

// PresetYAMLRepository loads generation presets from YAML files.
type PresetYAMLRepository struct {
	fs fs.FS
}

// NewPresetYAMLRepository creates a new YAML preset repository.
func NewPresetYAMLRepository(filesystem fs.FS) *PresetYAMLRepository {
	return &PresetYAMLRepository{fs: filesystem}
}

// GetPreset loads a generation preset from a YAML file and returns validated
// settings.
func (r *PresetYAMLRepository) GetPreset(ctx context.Context, path string) (Preset, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return Preset{}, fmt.Errorf("reading preset file: %w", err)
	}

	if ctx.Err() != nil {
		return Preset{}, ctx.Err()
	}

	var cfg presetConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Preset{}, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Preset{}, fmt.Errorf("invalid preset: %w", err)
	}

	return cfg.toPreset(), nil
}

// presetConfig represents the YAML structure for a generation preset. Missing
// fields keep their zero values, the server applies its own defaults.
type presetConfig struct {
	Title    string       `yaml:"title"`
	Count    int          `yaml:"count"`
	Parallel int          `yaml:"parallel"`
	Params   paramsConfig `yaml:"params"`
}

// paramsConfig represents the YAML structure for generation parameters.
type paramsConfig struct {
	Prompt          string  `yaml:"prompt"`
	NegativePrompt  string  `yaml:"negative_prompt"`
	Seed            int64   `yaml:"seed"`
	Steps           int     `yaml:"steps"`
	GuidanceScale   float64 `yaml:"guidance_scale"`
	DenoiseStrength float64 `yaml:"denoise_strength"`
	FaceStrength    float64 `yaml:"face_strength"`
	AdapterMode     string  `yaml:"adapter_mode"`
	MaskExpand      float64 `yaml:"mask_expand"`
	MaskBlur        int     `yaml:"mask_blur"`
	MaskPadding     int     `yaml:"mask_padding"`
	IncludeHair     bool    `yaml:"include_hair"`
	IncludeNeck     bool    `yaml:"include_neck"`
	StopAt          float64 `yaml:"stop_at"`
	AutoPrompt      bool    `yaml:"auto_prompt"`
}

func (c presetConfig) validate() error {
	if c.Count < 0 {
		return fmt.Errorf("count must not be negative, got: %d", c.Count)
	}
	if c.Parallel < 0 {
		return fmt.Errorf("parallel must not be negative, got: %d", c.Parallel)
	}
	if c.Params.Steps < 0 {
		return fmt.Errorf("steps must not be negative, got: %d", c.Params.Steps)
	}
	if c.Params.StopAt < 0 || c.Params.StopAt > 1 {
		return fmt.Errorf("stop_at must be between 0 and 1, got: %v", c.Params.StopAt)
	}
	return nil
}

func (c presetConfig) toPreset() Preset {
	return Preset{
		Title:    c.Title,
		Count:    c.Count,
		Parallel: c.Parallel,
		Params: model.GenerationParams{
			Prompt:          c.Params.Prompt,
			NegativePrompt:  c.Params.NegativePrompt,
			Seed:            c.Params.Seed,
			Steps:           c.Params.Steps,
			GuidanceScale:   c.Params.GuidanceScale,
			DenoiseStrength: c.Params.DenoiseStrength,
			FaceStrength:    c.Params.FaceStrength,
			AdapterMode:     c.Params.AdapterMode,
			MaskExpand:      c.Params.MaskExpand,
			MaskBlur:        c.Params.MaskBlur,
			MaskPadding:     c.Params.MaskPadding,
			IncludeHair:     c.Params.IncludeHair,
			IncludeNeck:     c.Params.IncludeNeck,
			StopAt:          c.Params.StopAt,
			AutoPrompt:      c.Params.AutoPrompt,
		},
	}
}
