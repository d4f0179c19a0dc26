package upscale

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// Pipeline converts and upscales a batch of images one at a time.
type Pipeline struct {
	// Operator upscales color and promoted alpha buffers. It is required for
	// scale factors above 1.
	Operator Operator
	// Codec reads and writes files. Nil means StdCodec.
	Codec Codec
	// Logger receives structured records. Nil discards them.
	Logger *slog.Logger
	// OnProgress, when set, is called after every image.
	OnProgress func(done, total int)

	plan planner
}

// Report summarizes a finished or stopped batch.
type Report struct {
	Total     int
	Succeeded int
	Skipped   int
	Canceled  bool
	Outputs   []string
	Failures  []*ImageError
}

// batch is the validated, immutable state shared by every image of a run.
type batch struct {
	cfg       ExportConfig
	rules     ExportRules
	repr      Repr
	budget    TilingBudget
	precision Precision
	codec     Codec
	plan      planner
	logger    *slog.Logger
}

var errSkipped = errors.New("output exists")

func (p *Pipeline) prepare(cfg ExportConfig) (*batch, error) {
	codec := p.Codec
	if codec == nil {
		codec = StdCodec{}
	}
	cfg.Format = canonicalFormat(cfg.Format)
	if err := cfg.Validate(codec); err != nil {
		return nil, err
	}
	if cfg.Scale.usesOperator() && p.Operator == nil {
		return nil, invalid("scale %s needs an operator", cfg.Scale)
	}
	rules, _ := RulesFor(cfg.Format)
	repr, err := rules.Repr(cfg.BitDepth)
	if err != nil {
		return nil, err
	}
	budget, err := BudgetClass(cfg.BudgetClass)
	if err != nil {
		return nil, err
	}
	plan := p.plan
	if plan == nil {
		plan = TilingBudget.Plan
	}
	return &batch{
		cfg:       cfg,
		rules:     rules,
		repr:      repr,
		budget:    budget,
		precision: cfg.Device.Precision(),
		codec:     codec,
		plan:      plan,
		logger:    p.logger(),
	}, nil
}

// Run processes sources in order on the calling goroutine. The source list
// and cfg are copied first. An invalid configuration fails before any image
// is read. Cancellation of ctx is honored between images only. Failed images
// are collected and returned as a *PartialBatchFailure alongside the report,
// except for unsupported conversions, which stop the batch at once.
func (p *Pipeline) Run(ctx context.Context, sources []Source, cfg ExportConfig) (*Report, error) {
	sources = slices.Clone(sources)
	b, err := p.prepare(cfg.Clone())
	if err != nil {
		return nil, err
	}
	report := &Report{Total: len(sources)}
	b.logger.Info("batch started", "images", len(sources), "format", b.cfg.Format, "scale", b.cfg.Scale.String())
	start := time.Now()

	for i, src := range sources {
		if ctx.Err() != nil {
			report.Canceled = true
			b.logger.Warn("batch stopped", "done", i, "total", len(sources))
			break
		}
		output, err := p.process(context.WithoutCancel(ctx), b, i, src)
		switch {
		case err == nil:
			report.Succeeded++
			report.Outputs = append(report.Outputs, output)
		case errors.Is(err, errSkipped):
			report.Skipped++
			b.logger.Info("skip existing output", "output", output)
		default:
			var ie *ImageError
			if !errors.As(err, &ie) {
				ie = &ImageError{Index: i, Source: src.Path(), Stage: StageRead, Err: err}
			}
			b.logger.Error("failed to process image", "image", ie.Source, "stage", ie.Stage.String(), "error", ie.Err)
			if ie.fatal() {
				return report, ie
			}
			report.Failures = append(report.Failures, ie)
		}
		if p.OnProgress != nil {
			p.OnProgress(i+1, len(sources))
		}
	}
	b.logger.Info("batch done", "succeeded", report.Succeeded, "failed", len(report.Failures), "elapsed", time.Since(start))

	var errs []error
	if report.Canceled {
		errs = append(errs, context.Cause(ctx))
	}
	if len(report.Failures) > 0 {
		errs = append(errs, &PartialBatchFailure{Total: report.Total, Failures: report.Failures})
	}
	return report, errors.Join(errs...)
}

// Batch is a run on its own goroutine.
type Batch struct {
	cancel context.CancelFunc
	done   chan struct{}
	report *Report
	err    error
}

// Start runs the batch on a dedicated goroutine. sources and cfg are copied
// before Start returns.
func (p *Pipeline) Start(ctx context.Context, sources []Source, cfg ExportConfig) *Batch {
	ctx, cancel := context.WithCancel(ctx)
	b := &Batch{cancel: cancel, done: make(chan struct{})}
	sources, cfg = slices.Clone(sources), cfg.Clone()
	go func() {
		defer close(b.done)
		defer cancel()
		b.report, b.err = p.Run(ctx, sources, cfg)
	}()
	return b
}

// Stop asks the batch to stop after the image in flight.
func (b *Batch) Stop() { b.cancel() }

// Done is closed when the batch has finished.
func (b *Batch) Done() <-chan struct{} { return b.done }

// Wait blocks until the batch has finished and returns its outcome.
func (b *Batch) Wait() (*Report, error) {
	<-b.done
	return b.report, b.err
}

// process runs one image through every stage and writes the result.
func (p *Pipeline) process(ctx context.Context, b *batch, index int, src Source) (string, error) {
	rec := &ImageRecord{
		Index:            index,
		Source:           src,
		Target:           b.cfg.OutputPath(src, index),
		Format:           b.cfg.Format,
		TargetRepr:       b.repr,
		InputColorSpace:  b.cfg.InputColorSpace,
		OutputColorSpace: b.cfg.OutputColorSpace,
		Gamma:            b.cfg.Gamma,
		Scale:            b.cfg.Scale,
		Compression:      b.cfg.Compression,
	}
	defer rec.release()
	fail := func(stage Stage, err error) (string, error) {
		return rec.Target, &ImageError{Index: index, Source: src.Path(), Stage: stage, Err: err}
	}

	if !b.cfg.Overwrite {
		if _, err := os.Stat(rec.Target); err == nil {
			return rec.Target, errSkipped
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fail(StageWrite, err)
		}
	}

	start := time.Now()
	data, err := os.ReadFile(src.Path())
	if err != nil {
		return fail(StageRead, err)
	}
	rec.Pixels, err = b.codec.Decode(data, FormatOf(src.Name))
	if err == nil {
		err = rec.Pixels.validate()
	}
	if err != nil {
		if !errors.Is(err, ErrCorruptSource) && !errors.Is(err, ErrUnsupportedConversion) {
			err = fmt.Errorf("%w: %v", ErrCorruptSource, err)
		}
		return fail(StageDecode, err)
	}
	if rec.Mode, err = ModeOf(rec.Pixels.Channels); err != nil {
		return fail(StageDecode, err)
	}
	rec.SourceRepr = rec.Pixels.Repr
	if b.cfg.Noise > 0 {
		rec.noisy = rec.Pixels
	}

	if stage, err := p.upscale(ctx, b, rec); err != nil {
		return fail(stage, err)
	}

	out, err := rec.Pixels.Convert(rec.TargetRepr)
	if err != nil {
		return fail(StageConvert, err)
	}
	rec.Pixels = out
	if !rec.Mode.HasAlpha() && b.cfg.Mode.HasAlpha() {
		b.logger.Warn("synthesizing opaque alpha", "image", src.Name, "mode", b.cfg.Mode.String())
	}
	if rec.Pixels, err = Finalize(rec.Pixels, b.cfg.Mode, b.rules); err != nil {
		return fail(StageExport, err)
	}

	if rec.noisy != nil && rec.inferred() {
		if err := p.blendNoise(b, rec); err != nil {
			return fail(StageNoise, err)
		}
	}
	rec.noisy = nil

	if b.rules.Mips {
		rec.MipLevels = b.cfg.Mips.Levels(rec.Pixels.Width, rec.Pixels.Height)
	}
	if rec.MipLevels > 0 {
		if rec.Pixels, err = prepareMips(rec.Pixels); err != nil {
			return fail(StageExport, err)
		}
	}
	rec.Compression = resolveCompression(rec.Compression, rec.Pixels)
	mode, _ := ModeOf(rec.Pixels.Channels)

	encoded, err := b.codec.Encode(rec.Pixels, rec.Format, EncodeOptions{
		Mode:        mode,
		Depth:       b.cfg.BitDepth,
		Compression: rec.Compression,
		MipLevels:   rec.MipLevels,
	})
	if err != nil {
		return fail(StageEncode, err)
	}
	if err := writeFile(rec.Target, encoded); err != nil {
		return fail(StageWrite, err)
	}
	b.logger.Info("saved image", "image", src.Name, "output", rec.Target,
		"size", fmt.Sprintf("%dx%d", rec.Pixels.Width, rec.Pixels.Height), "elapsed", time.Since(start))
	return rec.Target, nil
}

// upscale takes rec.Pixels from the source to the target size and leaves
// the recombined float buffer in rec.Pixels.
func (p *Pipeline) upscale(ctx context.Context, b *batch, rec *ImageRecord) (Stage, error) {
	set, err := Split(rec.Pixels, b.cfg.Mode)
	if err != nil {
		return StageSplit, err
	}
	rec.channels = set
	if rec.noisy == nil {
		rec.Pixels = nil
	}
	if set.Color, err = set.Color.Convert(F32); err != nil {
		return StageConvert, err
	}
	if set.Alpha != nil {
		if set.Alpha, err = set.Alpha.Convert(F32); err != nil {
			return StageConvert, err
		}
	}
	if err := set.route(rec.Scale); err != nil {
		return StageSplit, err
	}
	color, alpha := set.Degenerate()
	if rec.Scale.usesOperator() {
		if color {
			b.logger.Warn("constant channel filled without inference", "image", rec.Source.Name, "channel", "color")
		}
		if alpha {
			b.logger.Warn("constant channel filled without inference", "image", rec.Source.Name, "channel", "alpha")
		}
	}
	set.fillAnalytic(rec.Scale)

	if rec.InputColorSpace == Linear {
		encodeColorSpace(set.Color)
	}
	gammaForward(set.Color, rec.Gamma)

	factor := int(rec.Scale)
	if set.ColorRoute == RouteOperator {
		if set.Color, err = p.run(ctx, b, rec, set.Color, factor, &rec.colorTiled); err != nil {
			return StageUpscale, err
		}
	}
	if set.AlphaRoute == RouteOperator {
		if set.Alpha, err = p.run(ctx, b, rec, set.Alpha.replicate(3), factor, &rec.alphaTiled); err != nil {
			return StageUpscale, err
		}
	}

	gammaInverse(set.Color, rec.Gamma)
	if rec.OutputColorSpace == Linear {
		decodeColorSpace(set.Color)
	}

	out, err := Recombine(set, rec.Scale)
	if err != nil {
		return StageRecombine, err
	}
	set.release()
	if rec.Scale == Downscale {
		out = resample(out, rec.Scale.apply(out.Width), rec.Scale.apply(out.Height), lanczos)
	}
	rec.Pixels = out
	return 0, nil
}

// run picks a strategy for buf and drives the operator with it.
func (p *Pipeline) run(ctx context.Context, b *batch, rec *ImageRecord, buf *Buffer, factor int, tiled *bool) (*Buffer, error) {
	s, err := selectStrategy(buf.Width, buf.Height, rec.Scale, b.budget, b.cfg.Tiling, b.plan)
	if err != nil {
		return nil, err
	}
	if _, ok := s.(Tiled); ok {
		*tiled = true
		b.logger.Warn("image exceeds the tiling budget, upscaling in patches",
			"image", rec.Source.Name, "budget", b.budget.Name, "strategy", s.String())
	}
	b.logger.Debug("upscaling", "image", rec.Source.Name, "strategy", s.String(), "channels", buf.Channels)
	return s.upscale(ctx, p.Operator, buf, factor, b.precision, b.logger)
}

// blendNoise brings the noisy source to the export layout and mixes its
// grain into rec.Pixels.
func (p *Pipeline) blendNoise(b *batch, rec *ImageRecord) error {
	noisy, err := rec.noisy.Convert(rec.TargetRepr)
	if err != nil {
		return err
	}
	if noisy, err = Finalize(noisy, b.cfg.Mode, b.rules); err != nil {
		return err
	}
	return retainNoise(rec.Pixels, noisy, b.cfg.Noise)
}

// writeFile writes data to a temporary file next to name and renames it
// into place.
func writeFile(name string, data []byte) error {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	if err := os.Rename(f.Name(), name); err != nil {
		os.Remove(f.Name())
		return err
	}
	return nil
}
