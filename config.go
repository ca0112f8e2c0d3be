package dieselxr

import (
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Config is the engine's configuration, loaded from TOML.
type Config struct {
	App     AppConfig     `toml:"app"`
	Render  RenderConfig  `toml:"render"`
	Vulkan  VulkanConfig  `toml:"vulkan"`
	Shaders ShaderConfig  `toml:"shaders"`
	Runtime RuntimeConfig `toml:"runtime"`
	Log     LogConfig     `toml:"log"`
}

type AppConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

type RenderConfig struct {
	ColorFormat string     `toml:"color_format"`
	Depth       bool       `toml:"depth"`
	DepthFormat string     `toml:"depth_format"`
	ClearColor  [4]float32 `toml:"clear_color"`
	Near        float32    `toml:"near"`
	Far         float32    `toml:"far"`
}

type VulkanConfig struct {
	Validation       bool     `toml:"validation"`
	Layers           []string `toml:"layers"`
	DeviceExtensions []string `toml:"device_extensions"`
}

// ShaderConfig names the SPIR-V modules of the demo renderer and its draw call.
type ShaderConfig struct {
	Vertex        string `toml:"vertex"`
	Fragment      string `toml:"fragment"`
	VertexCount   uint32 `toml:"vertex_count"`
	InstanceCount uint32 `toml:"instance_count"`
}

type RuntimeConfig struct {
	BlendMode     string   `toml:"blend_mode"`
	FrameInterval Duration `toml:"frame_interval"`
	Width         uint32   `toml:"width"`
	Height        uint32   `toml:"height"`
	// Frames ends a simulated session after this many frames, 0 runs until stopped.
	Frames int `toml:"frames"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

func DefaultConfig() Config {
	return Config{
		App: AppConfig{Name: "dieselxr", Version: "0.1.0"},
		Render: RenderConfig{
			ColorFormat: FormatR8G8B8A8Srgb.String(),
			DepthFormat: FormatD32Sfloat.String(),
			ClearColor:  [4]float32{0.0, 0.0, 0.0, 1.0},
			Near:        0.05,
			Far:         100.0,
		},
		Vulkan: VulkanConfig{
			Layers: []string{"VK_LAYER_KHRONOS_validation"},
		},
		Shaders: ShaderConfig{
			Vertex:        "shaders/fullscreen.vert.spv",
			Fragment:      "shaders/debug_pattern.frag.spv",
			VertexCount:   3,
			InstanceCount: 1,
		},
		Runtime: RuntimeConfig{
			BlendMode:     "opaque",
			FrameInterval: Duration(11 * time.Millisecond),
			Width:         1440,
			Height:        1600,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := ParseVersion(c.App.Version); err != nil {
		return errors.Wrap(err, "app.version")
	}
	color, err := ParseFormat(c.Render.ColorFormat)
	if err != nil {
		return errors.Wrap(err, "render.color_format")
	}
	if color == FormatUndefined || color.IsDepth() {
		return errors.Errorf("render.color_format %s is not a color format", color)
	}
	if c.Render.Depth {
		depth, err := ParseFormat(c.Render.DepthFormat)
		if err != nil {
			return errors.Wrap(err, "render.depth_format")
		}
		if !depth.IsDepth() {
			return errors.Errorf("render.depth_format %s is not a depth format", depth)
		}
	}
	if c.Render.Near <= 0 || c.Render.Far <= c.Render.Near {
		return errors.Errorf("render clip planes near=%v far=%v out of order", c.Render.Near, c.Render.Far)
	}
	if c.Shaders.VertexCount == 0 {
		return errors.New("shaders.vertex_count must be positive")
	}
	if _, err := ParseBlendMode(c.Runtime.BlendMode); err != nil {
		return errors.Wrap(err, "runtime.blend_mode")
	}
	if c.Runtime.FrameInterval < 0 {
		return errors.New("runtime.frame_interval must not be negative")
	}
	if c.Runtime.Frames < 0 {
		return errors.New("runtime.frames must not be negative")
	}
	return nil
}

// Formats resolves the configured color and depth formats. Depth is
// FormatUndefined when the depth attachment is disabled.
func (c Config) Formats() (color, depth Format) {
	color, _ = ParseFormat(c.Render.ColorFormat)
	if c.Render.Depth {
		depth, _ = ParseFormat(c.Render.DepthFormat)
	}
	return color, depth
}

func (c Config) LogLevel() slog.Level {
	return ParseLevel(c.Log.Level)
}

// Duration reads TOML strings such as "11ms".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
