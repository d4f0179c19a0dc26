package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/sunshineplan/progressbar"
	"github.com/sunshineplan/upscale"
	"github.com/sunshineplan/utils/log"
	"github.com/vharitonsky/iniflags"
)

var cfg = upscale.NewExportConfig()

var (
	src         = flag.String("src", "", "")
	dst         = flag.String("dst", "", "")
	force       = flag.Bool("force", false, "")
	pdf         = flag.Bool("pdf", false, "")
	format      = flag.String("format", cfg.Format, "")
	compression = flag.String("compression", cfg.Compression, "")
	prefix      = flag.String("prefix", "", "")
	suffix      = flag.String("suffix", "", "")
	unique      = flag.Bool("id", false, "")
	noise       = flag.Float64("noise", 0, "")
	gamma       = flag.Float64("gamma", 1, "")
	tiling      = flag.Bool("tiling", true, "")
	budget      = flag.String("budget", upscale.DefaultBudgetClass, "")
	debug       = flag.Bool("debug", false, "")
	quiet       = flag.Bool("quiet", false, "")
)

func init() {
	flag.TextVar(&cfg.Scale, "scale", cfg.Scale, "")
	flag.TextVar(&cfg.Device, "device", cfg.Device, "")
	flag.TextVar(&cfg.Mode, "mode", cfg.Mode, "")
	flag.TextVar(&cfg.BitDepth, "depth", cfg.BitDepth, "")
	flag.TextVar(&cfg.Mips, "mips", cfg.Mips, "")
	flag.TextVar(&cfg.InputColorSpace, "input-space", cfg.InputColorSpace, "")
	flag.TextVar(&cfg.OutputColorSpace, "output-space", cfg.OutputColorSpace, "")
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
	fmt.Println(`
  --src
		source file or directory
  --dst
		single destination directory (default: next to each source)
  --force
		force overwrite (default: false)
  --pdf
		include pdf files when scanning a directory (default: false)
  --scale
		scale factor (none, 0.5, 2x, 4x, default: 2x)
  --device
		device the upscaler runs on (cpu, cuda, xpu, default: cpu)
  --format
		output format (png, jpg, bmp, tif, exr and jp2 are supported, default: png)
  --compression
		compression token of the output format (default: default)
  --mode
		output channel mode (grey, greyalpha, rgb, rgba, default: rgba)
  --depth
		output bits per sample (8, 16, 32, default: 8)
  --mips
		mip levels for formats that store them (none, 25%, 50%, 75%, max, default: none)
  --noise
		share of source grain kept after upscaling (range 0-1, default: 0)
  --prefix, --suffix
		added to output file names
  --id
		prefix output file names with their index (default: false)
  --input-space, --output-space
		declared color space (srgb, linear, default: srgb)
  --gamma
		gamma applied around upscaling (default: 1)
  --tiling
		upscale oversized images in patches (default: true)
  --budget
		tiling budget class (small, medium, large, extra-large, default: large)`)
}

func main() {
	self, err := os.Executable()
	if err != nil {
		log.Error("Failed to get self path", "error", err)
		os.Exit(1)
	}

	flag.Usage = usage
	iniflags.SetConfigFile(filepath.Join(filepath.Dir(self), "config.ini"))
	iniflags.SetAllowMissingConfigFile(true)
	iniflags.Parse()

	if err := run(self); err != nil {
		log.Error("Failed to upscale images", "error", err)
		os.Exit(1)
	}
}

func run(self string) error {
	f, err := os.OpenFile(
		filepath.Join(filepath.Dir(self), fmt.Sprintf("upscale%s.log", time.Now().Format("20060102150405"))),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	var out io.Writer = f
	if !*quiet {
		out = io.MultiWriter(f, os.Stderr)
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	cfg.SetFormat(*format, *compression).
		SetNaming(*prefix, *suffix, *unique).
		SetTiling(*tiling, *budget)
	cfg.Gamma, cfg.Noise, cfg.Overwrite = *gamma, *noise, *force
	if *dst != "" {
		cfg.SetDestination(upscale.SingleFolder(*dst))
	}

	info, err := os.Stat(*src)
	if err != nil {
		return err
	}
	var sources []upscale.Source
	switch mode := info.Mode(); {
	case mode.IsDir():
		sources = loadImages(*src, *pdf)
	case mode.IsRegular():
		sources = []upscale.Source{{Dir: filepath.Dir(*src), Name: filepath.Base(*src)}}
	default:
		return errors.New("unknown source")
	}
	logger.Info("Total images", "count", len(sources))

	pipeline := &upscale.Pipeline{Logger: logger}
	if cfg.Scale > 1 {
		pipeline.Operator = upscale.LanczosOperator{Factor: int(cfg.Scale)}
	}

	pb := progressbar.New(len(sources))
	pipeline.OnProgress = func(int, int) { pb.Add(1) }

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if !*quiet {
		pb.Start()
	}
	report, err := pipeline.Start(ctx, sources, cfg).Wait()
	if !*quiet {
		pb.Done()
	}
	if report != nil {
		logger.Info("Done", "succeeded", report.Succeeded, "skipped", report.Skipped,
			"failed", len(report.Failures), "canceled", report.Canceled)
	}
	return err
}
