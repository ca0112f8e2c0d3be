// Command dieselxr renders a stereo test scene through the simulated VR runtime
// on the first Vulkan device with a graphics queue.
package main

//go:generate glslangValidator -V --target-env vulkan1.1 -o ../../shaders/fullscreen.vert.spv ../../shaders/fullscreen.vert
//go:generate glslangValidator -V --target-env vulkan1.1 -o ../../shaders/debug_pattern.frag.spv ../../shaders/debug_pattern.frag

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/andewx/dieselxr"
	"github.com/andewx/dieselxr/vkdev"
	"github.com/andewx/dieselxr/xrsim"
	"github.com/pkg/errors"
)

func init() {
	// glfw and the Vulkan loader must stay on the main thread.
	runtime.LockOSThread()
}

var (
	configPath    = flag.String("config", "", "TOML config file, defaults are used when empty")
	statsInterval = flag.Duration("stats", 5*time.Second, "frame stats log interval, 0 disables")
)

func main() {
	flag.Parse()
	dieselxr.Fatal(run())
}

func run() error {
	cfg := dieselxr.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = dieselxr.LoadConfig(*configPath); err != nil {
			return err
		}
	}

	level := new(slog.LevelVar)
	level.Set(cfg.LogLevel())
	dieselxr.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	log := dieselxr.Logger()

	if *configPath != "" {
		stopWatch, err := watchLogLevel(*configPath, level)
		if err != nil {
			log.Warn("config watch disabled", "err", err)
		} else {
			defer stopWatch()
		}
	}

	terminate, err := vkdev.InitLoader()
	if err != nil {
		return err
	}
	defer terminate()

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Destroy()

	instance, err := newInstance(cfg, rt)
	if err != nil {
		return err
	}
	defer instance.Destroy()

	renderer, err := newSceneRenderer(cfg)
	if err != nil {
		return err
	}

	running := dieselxr.NewKeepRunning()
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		sig := <-signals
		log.Info("signal received, stopping", "signal", sig)
		running.Stop()
	}()

	engine, err := dieselxr.NewEngine(dieselxr.Options{
		Config:        cfg,
		Backend:       instance,
		Runtime:       rt,
		Renderer:      renderer,
		Running:       running,
		StatsInterval: *statsInterval,
	})
	if err != nil {
		return err
	}
	return engine.Run()
}

func newRuntime(cfg dieselxr.Config) (*xrsim.Runtime, error) {
	blend, err := dieselxr.ParseBlendMode(cfg.Runtime.BlendMode)
	if err != nil {
		return nil, err
	}
	opts := xrsim.DefaultOptions()
	opts.Interval = time.Duration(cfg.Runtime.FrameInterval)
	opts.Width = cfg.Runtime.Width
	opts.Height = cfg.Runtime.Height
	opts.Frames = cfg.Runtime.Frames
	opts.BlendModes = []dieselxr.BlendMode{blend}
	return xrsim.New(opts), nil
}

func newInstance(cfg dieselxr.Config, rt dieselxr.Runtime) (*vkdev.Instance, error) {
	exts, err := rt.RequiredInstanceExtensions()
	if err != nil {
		return nil, errors.Wrap(err, "runtime instance extensions")
	}
	appVersion, err := dieselxr.ParseVersion(cfg.App.Version)
	if err != nil {
		return nil, err
	}
	ic := vkdev.InstanceConfig{
		AppName:    cfg.App.Name,
		AppVersion: appVersion,
		APIVersion: dieselxr.TargetAPIVersion,
		Extensions: exts,
		Debug:      cfg.Vulkan.Validation,
		Selector:   rt,
	}
	if cfg.Vulkan.Validation {
		ic.Layers = cfg.Vulkan.Layers
	}
	return vkdev.NewInstance(ic)
}
