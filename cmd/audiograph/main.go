// audiograph lists audio devices and renders a demo node graph offline.
//
// Usage:
//
//	audiograph devices [--config audiograph.yaml]
//	audiograph plugins [--category effect] [--name zita] [--params]
//	audiograph render  [--config audiograph.yaml] [--seconds 2] [--note 69] [--state state.json] [--metrics]
//	audiograph version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/shaban/audiograph"
	"github.com/shaban/audiograph/config"
	"github.com/shaban/audiograph/devices"
	"github.com/shaban/audiograph/engine/analyze"
	"github.com/shaban/audiograph/host/soft"
	"github.com/shaban/audiograph/internal/logging"
	"github.com/shaban/audiograph/internal/metrics"
	"github.com/shaban/audiograph/nodes"
	"github.com/shaban/audiograph/plugins"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "devices":
		err = runDevices(ctx, os.Args[2:])
	case "plugins":
		err = runPlugins(os.Args[2:])
	case "render":
		err = runRender(ctx, os.Args[2:])
	case "version":
		fmt.Println("audiograph", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: audiograph <command> [options]

Commands:
  devices   List audio devices of the configured backend
  plugins   List the built-in audio unit components
  render    Render flute -> tremolo -> reverb offline and print levels
  version   Print the version`)
}

func loadConfig(path string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.NewLoader().WithConfigPath(path).Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}

func openBackend(cfg *config.Config) (devices.Backend, error) {
	return devices.Open(cfg.Devices.Backend, cfg.Devices.StaticList())
}

func runDevices(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("devices", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to the YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	list, err := backend.Devices(ctx)
	if err != nil {
		return fmt.Errorf("list %s devices: %w", backend.Name(), err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "UID\tNAME\tIN\tOUT\tTYPE\tDEFAULT\n")
	for _, d := range list {
		def := ""
		switch {
		case d.IsDefaultInput && d.IsDefaultOutput:
			def = "in/out"
		case d.IsDefaultInput:
			def = "in"
		case d.IsDefaultOutput:
			def = "out"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n", d.UID, d.Name, d.InputChannelCount, d.OutputChannelCount, d.DeviceType, def)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d devices via %s backend\n", len(list), backend.Name())
	return nil
}

func runPlugins(args []string) error {
	fs := flag.NewFlagSet("plugins", flag.ExitOnError)
	category := fs.String("category", "", "Only list this category (effect, instrument, mixer)")
	name := fs.String("name", "", "Only list components whose name contains this")
	showParams := fs.Bool("params", false, "Introspect and print parameters")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reg := soft.DefaultRegistry()
	infos := plugins.List(reg)
	if *category != "" {
		infos = infos.ByCategory(*category)
	}
	if *name != "" {
		infos = infos.ByName(*name)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if !*showParams {
		fmt.Fprintf(w, "NAME\tCATEGORY\tCOMPONENT\n")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%s\t%s\n", info.Name, info.Category, info.Description())
		}
		return w.Flush()
	}

	all, err := infos.Introspect(reg)
	if err != nil {
		return err
	}
	for _, p := range all {
		fmt.Fprintf(w, "%s\n", p.Summary())
		for _, prm := range p.Parameters {
			fmt.Fprintf(w, "  %s\t%g..%g\t%g %s\n", prm.Name, prm.MinValue, prm.MaxValue, prm.CurrentValue, prm.Unit)
		}
	}
	return w.Flush()
}

func runRender(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to the YAML config file")
	seconds := fs.Float64("seconds", 2, "Seconds of audio to render")
	note := fs.Uint("note", 69, "MIDI note played by the flute")
	statePath := fs.String("state", "", "Write the engine state as JSON to this file")
	showMetrics := fs.Bool("metrics", false, "Print metric totals after rendering")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *note > 127 {
		return fmt.Errorf("note %d out of MIDI range", *note)
	}
	cfg, logger, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	var collector *metrics.Collector
	var rec audiograph.Recorder
	if cfg.Metrics.Enabled || *showMetrics {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
		rec = collector
	}

	eng, err := audiograph.NewEngine(audiograph.EngineConfig{
		AudioSpec:       cfg.Audio.SessionSpec(),
		Devices:         backend,
		RampDuration:    cfg.Audio.RampDuration,
		ManualRendering: true,
		Logger:          logger,
		Recorder:        rec,
	})
	if err != nil {
		return err
	}
	flute, err := buildDemo(ctx, eng, cfg)
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer eng.Stop()
	if err := flute.PlayNote(uint8(*note), 100, 0); err != nil {
		return err
	}

	spec := eng.Graph().Engine().Spec()
	total := int(*seconds * spec.SampleRate)
	meter := analyze.NewMeter()
	rendered := 0
	for rendered < total {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(spec.BufferSize, total-rendered)
		buf, err := eng.Render(n)
		if err != nil {
			return err
		}
		meter.Update(buf)
		rendered += n
	}
	lv := meter.Levels()
	fmt.Printf("rendered %d frames at %.0f Hz to %s\n", lv.Frames, spec.SampleRate, eng.OutputDevice())
	fmt.Printf("peak %.4f (%.1f dBFS)  rms %.4f (%.1f dBFS)  crest %.2f\n", lv.Peak, lv.PeakdB, lv.RMS, lv.RMSdB, lv.CrestFactor)

	if *statePath != "" {
		if err := writeState(eng, *statePath); err != nil {
			return err
		}
		fmt.Println("state written to", *statePath)
	}
	if collector != nil && *showMetrics {
		return printMetrics(collector)
	}
	return nil
}

// buildDemo wires flute -> tremolo -> reverb -> output.
func buildDemo(ctx context.Context, eng *audiograph.Engine, cfg *config.Config) (*nodes.FluteInstrument, error) {
	flute, err := eng.NewFluteInstrument("flute")
	if err != nil {
		return nil, err
	}
	trem, err := eng.NewTremolo("tremolo")
	if err != nil {
		return nil, err
	}
	reverb, err := eng.NewZitaReverb("reverb")
	if err != nil {
		return nil, err
	}
	if err := trem.SetFrequency(5); err != nil {
		return nil, err
	}
	if err := trem.SetDepth(0.4); err != nil {
		return nil, err
	}
	if err := reverb.SetDryWetMix(0.35); err != nil {
		return nil, err
	}
	if err := eng.Connect(flute, trem); err != nil {
		return nil, err
	}
	if err := eng.Connect(trem, reverb); err != nil {
		return nil, err
	}
	if err := eng.SetOutput(ctx, reverb); err != nil {
		return nil, err
	}
	if cfg.Devices.PreferredOutput != "" {
		if err := eng.SetOutputDevice(ctx, cfg.Devices.PreferredOutput); err != nil {
			return nil, err
		}
	}
	if cfg.Devices.PreferredInput != "" {
		if err := eng.SetInputDevice(ctx, cfg.Devices.PreferredInput); err != nil {
			return nil, err
		}
	}
	return flute, nil
}

func writeState(eng *audiograph.Engine, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := audiograph.NewSerializer(eng).SaveToWriter(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func printMetrics(c *metrics.Collector) error {
	families, err := c.Registry().Gather()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, f := range families {
		total := 0.0
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
		fmt.Fprintf(w, "%s\t%g\n", f.GetName(), total)
	}
	return w.Flush()
}
