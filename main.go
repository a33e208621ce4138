// entry point

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/skx/gtuos/cpu"
	"github.com/skx/gtuos/gtuos"
	"github.com/skx/gtuos/monitor"
	"github.com/skx/gtuos/version"
	"github.com/spf13/afero"
)

var (
	useMonitor  bool
	quantum     int
	frames      int
	watchdog    uint64
	traceFile   string
	profileFile string
	showVersion bool
)

func init() {
	flag.BoolVar(&useMonitor, "monitor", false, "drop into the interactive monitor instead of running")
	flag.IntVar(&quantum, "quantum", cpu.DefaultQuantum, "scheduler quantum, in ticks (1-255)")
	flag.IntVar(&frames, "frames", 0, "restrict the pager to this many physical frames")
	flag.Uint64Var(&watchdog, "watchdog", 0, "abort after this many instructions (0 disables)")
	flag.StringVar(&traceFile, "trace", "", "dump an instruction trace to this file on exit")
	flag.StringVar(&profileFile, "profile", "", "dump an opcode profile to this file on exit")
	flag.BoolVar(&showVersion, "version", false, "show our version and exit")
	flag.CommandLine.Usage = func() {
		fmt.Println("Usage: gtuos [flags] path/to/image.com [debug-level]\nFlags:")
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Print(version.GetVersionBanner())
		return
	}

	// Ensure we've been given the name of an image.
	args := flag.Args()
	if len(args) < 1 {
		flag.CommandLine.Usage()
		os.Exit(1)
	}

	// The optional debug level, 0..5.
	debug := 0
	if len(args) > 1 {
		var err error
		debug, err = strconv.Atoi(args[1])
		if err != nil || debug < 0 || debug > 5 {
			fmt.Printf("bad debug level '%s', expected 0-5\n", args[1])
			os.Exit(1)
		}
	}

	// Setup our logging level - default to warnings or higher,
	// with "everything" at any non-zero debug level, or if $DEBUG
	// is non-empty.
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)
	if debug > 0 || os.Getenv("DEBUG") != "" {
		lvl.Set(slog.LevelDebug)
	}

	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	}))

	if quantum < 1 || quantum > 255 {
		fmt.Printf("bad quantum %d, expected 1-255\n", quantum)
		os.Exit(1)
	}

	cfg := gtuos.DefaultConfig()
	cfg.DebugLevel = debug
	cfg.Quantum = uint8(quantum)
	cfg.Frames = frames
	cfg.MaxInstructions = watchdog

	//
	// Create a new supervisor.
	//
	o, err := gtuos.New(cfg, log)
	if err != nil {
		fmt.Printf("Error creating machine: %s\n", err)
		os.Exit(1)
	}

	// Optional instrumentation, attached as CPU observers.
	var tracer *cpu.Tracer
	var profiler *cpu.Profiler
	if traceFile != "" {
		tracer = cpu.NewTracer(10000)
		o.CPU.Observe(tracer)
	}
	if profileFile != "" {
		profiler = cpu.NewProfiler()
		o.CPU.Observe(profiler)
	}

	//
	// Run the image we've been given.
	//
	if useMonitor {
		err = o.Boot(args[0])
		if err == nil {
			fmt.Print(version.GetVersionBanner())
			monitor.New(o).RunCommands(os.Stdin, os.Stdout, true)
		}
	} else {
		err = o.Run(args[0])
	}

	if tracer != nil {
		derr := tracer.DumpFile(afero.NewOsFs(), traceFile)
		if derr != nil {
			log.Error("failed to write trace", slog.String("error", derr.Error()))
		}
	}
	if profiler != nil {
		derr := profiler.ReportFile(afero.NewOsFs(), profileFile)
		if derr != nil {
			log.Error("failed to write profile", slog.String("error", derr.Error()))
		}
	}

	if err != nil {
		fmt.Printf("Error running %s: %s\n", args[0], err)
		os.Exit(1)
	}
}
