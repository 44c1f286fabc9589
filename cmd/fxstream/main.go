// Command fxstream runs the frame pipeline against a simulated host.
//
// Usage:
//
//	fxstream [-config run.yaml] [-backend noop|auto|vulkan|metal|dx12|gl] [-frames N] [-scenes Transfer,Upscale]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/allbackends"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/fxstream"
	"github.com/gogpu/fxstream/effect"
	"github.com/gogpu/fxstream/effect/software"
	"github.com/gogpu/fxstream/host/sim"
)

func main() {
	os.Exit(int(run(os.Args[1:])))
}

func run(args []string) fxstream.ExitCode {
	fs := flag.NewFlagSet("fxstream", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "YAML run configuration")
		backend    = fs.String("backend", "", "GPU backend: noop, auto, vulkan, metal, dx12 or gl")
		frames     = fs.Int("frames", 0, "number of frames to request")
		width      = fs.Uint("width", 0, "input image width")
		height     = fs.Uint("height", 0, "input image height")
		scenes     = fs.String("scenes", "", "comma-separated scenes to cycle through")
		schemaPath = fs.String("schema", "", "where to save the scene schema")
		strength   = fs.Int("strength", -1, "strength for effects that take one")
		logLevel   = fs.String("log", "", "log level: debug, info, warn, error")
		timeout    = fs.Duration("timeout", 0, "frame request timeout")
	)
	if err := fs.Parse(args); err != nil {
		return fxstream.ExitHostInit
	}

	cfg := defaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = loadConfig(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return fxstream.ExitHostInit
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = *backend
		case "frames":
			cfg.Frames = *frames
		case "width":
			cfg.Width = uint32(*width)
		case "height":
			cfg.Height = uint32(*height)
		case "scenes":
			cfg.Scenes = strings.Split(*scenes, ",")
		case "schema":
			cfg.Schema = *schemaPath
		case "strength":
			cfg.Strength = *strength
		case "log":
			cfg.LogLevel = *logLevel
		case "timeout":
			cfg.Timeout = *timeout
		}
	})

	level, err := cfg.level()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return fxstream.ExitHostInit
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	fxstream.SetLogger(logger)

	sceneIdx, err := cfg.sceneIndices()
	if err != nil {
		logger.Error("config", "err", err)
		return fxstream.ExitHostInit
	}
	streams, err := cfg.streams()
	if err != nil {
		logger.Error("config", "err", err)
		return fxstream.ExitHostInit
	}
	h := sim.New(sim.Config{Script: sim.Generate(cfg.Frames, sceneIdx, cfg.Width, cfg.Height, streams)})

	dev, err := openDevice(cfg.Backend)
	if err != nil {
		logger.Error("open device", "backend", cfg.Backend, "err", err)
		return fxstream.ExitDevice
	}
	defer dev.close()
	logger.Info("device opened", "backend", cfg.Backend, "adapter", dev.adapter)

	effects := effect.NewRegistry()
	software.Register(effects)
	logger.Debug("effects registered", "available", effects.Available())

	opts := []fxstream.Option{
		fxstream.WithTimeout(cfg.Timeout),
		fxstream.WithScenes(cfg.slots()...),
		fxstream.WithDiagnostics(level),
	}
	if dev.spirv {
		opts = append(opts, fxstream.WithSPIRV())
	}
	p, err := fxstream.New(fxstream.Config{
		Device:     dev.device,
		Queue:      dev.queue,
		Host:       h,
		Effects:    effects,
		SchemaPath: schemaFile(cfg.Schema),
	}, opts...)
	if err != nil {
		logger.Error("start pipeline", "err", err)
		_ = h.Shutdown()
		return fxstream.CodeOf(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err = p.Run(ctx)
	for _, line := range h.Logs() {
		logger.Debug("host", "msg", line)
	}
	stats := p.Stats()
	logger.Info("done",
		"processed", stats.Processed, "skipped", stats.Skipped,
		"submissions", len(h.Submissions()), "images", h.ImagesServed())
	return fxstream.CodeOf(err)
}

// schemaFile resolves the schema path. A bare file name is placed next to
// the executable.
func schemaFile(path string) string {
	if path == "" || filepath.IsAbs(path) || strings.ContainsRune(path, filepath.Separator) {
		return path
	}
	exe, err := os.Executable()
	if err != nil {
		return path
	}
	return filepath.Join(filepath.Dir(exe), path)
}

type device struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	adapter  string
	spirv    bool
}

var namedBackends = map[string]gputypes.Backend{
	"vulkan": gputypes.BackendVulkan,
	"metal":  gputypes.BackendMetal,
	"dx12":   gputypes.BackendDX12,
	"gl":     gputypes.BackendGL,
}

// selectBackend resolves a backend name. noop is the headless backend
// used for offline runs; auto picks the most capable registered one.
func selectBackend(name string) (hal.Backend, error) {
	switch name = strings.ToLower(name); name {
	case "noop", "":
		return noop.API{}, nil
	case "auto":
		return hal.SelectBestBackend()
	}
	variant, ok := namedBackends[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", name)
	}
	b, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("%s backend not available", variant)
	}
	return b, nil
}

// openDevice opens the first suitable adapter of the named backend.
func openDevice(name string) (*device, error) {
	backend, err := selectBackend(name)
	if err != nil {
		return nil, err
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, errors.New("no GPU adapters found")
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}
	return &device{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		adapter:  selected.Info.Name,
		spirv:    backend.Variant() == gputypes.BackendVulkan,
	}, nil
}

func (d *device) close() {
	d.device.Destroy()
	d.instance.Destroy()
}
