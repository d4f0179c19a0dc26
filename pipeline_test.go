package upscale

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// recorder is a StdCodec that keeps every buffer it encodes.
type recorder struct {
	StdCodec

	mu      sync.Mutex
	encoded []*Buffer
}

func (r *recorder) Encode(b *Buffer, format string, opts EncodeOptions) ([]byte, error) {
	r.mu.Lock()
	r.encoded = append(r.encoded, b.Clone())
	r.mu.Unlock()
	return r.StdCodec.Encode(b, format, opts)
}

// broken decodes everything into a buffer of an unknown representation.
type broken struct{ StdCodec }

func (broken) Decode([]byte, string) (*Buffer, error) {
	return &Buffer{Width: 1, Height: 1, Channels: 1, Repr: Repr(9), Pix: []float64{0}}, nil
}

func writePNG(t *testing.T, dir, name string, img image.Image) Source {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return Source{Dir: dir, Name: name}
}

func greyImage(width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 13 % 251)
	}
	return img
}

// fixedPlan forces the tile geometry regardless of the image size.
func fixedPlan(patch, padding int) planner {
	return func(TilingBudget, int, int, float64) (TilePlan, error) {
		return TilePlan{PatchSize: patch, Padding: padding}, nil
	}
}

func testConfig(out string) ExportConfig {
	cfg := NewExportConfig()
	cfg.SetDestination(SingleFolder(out))
	return cfg
}

func TestRunTiledGreyToRGBA(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	src := writePNG(t, in, "grey.png", greyImage(513, 300))
	op := &nearest{factor: 2}
	codec := &recorder{}
	p := &Pipeline{Operator: op, Codec: codec, plan: fixedPlan(256, 8)}

	cfg := testConfig(out)
	cfg.SetTiling(true, "small")
	report, err := p.Run(context.Background(), []Source{src}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if report.Succeeded != 1 || len(report.Outputs) != 1 {
		t.Fatalf("report %+v", report)
	}
	if want := filepath.Join(out, "grey.png"); report.Outputs[0] != want {
		t.Errorf("output %q, want %q", report.Outputs[0], want)
	}
	if _, err := os.Stat(report.Outputs[0]); err != nil {
		t.Error(err)
	}
	// 513x300 extends to 768x512: 3 columns and 2 rows of patches.
	if n := op.count(); n != 6 {
		t.Errorf("operator called %d times, want 6", n)
	}

	b := codec.encoded[0]
	if b.Width != 1026 || b.Height != 600 || b.Channels != 4 || b.Repr != U8 {
		t.Fatalf("encoded %dx%dx%d %s", b.Width, b.Height, b.Channels, b.Repr)
	}
	grey := greyImage(513, 300)
	for y := range b.Height {
		for x := range b.Width {
			want := float64(grey.GrayAt(x/2, y/2).Y)
			for c := range 3 {
				if got := b.At(x, y, c); got != want {
					t.Fatalf("(%d, %d) channel %d is %v, want %v", x, y, c, got, want)
				}
			}
			if a := b.At(x, y, 3); a != 255 {
				t.Fatalf("(%d, %d) alpha is %v, want 255", x, y, a)
			}
		}
	}
}

func TestRunConstantChannel(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	img := image.NewGray(image.Rect(0, 0, 40, 30))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	src := writePNG(t, in, "flat.png", img)
	op := &nearest{factor: 2}
	codec := &recorder{}
	p := &Pipeline{Operator: op, Codec: codec}

	cfg := testConfig(out)
	cfg.Mode = Grey
	if _, err := p.Run(context.Background(), []Source{src}, cfg); err != nil {
		t.Fatal(err)
	}
	if n := op.count(); n != 0 {
		t.Errorf("operator called %d times for a constant image", n)
	}
	compare(t, "flat", codec.encoded[0], filled(80, 60, 1, U8, 128))
}

func TestRunInvalidConfiguration(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	src := writePNG(t, in, "a.png", greyImage(8, 8))
	op := &nearest{factor: 2}
	p := &Pipeline{Operator: op}

	cfg := testConfig(out)
	cfg.SetFormat("jpg", "jpeg")
	report, err := p.Run(context.Background(), []Source{src}, cfg)
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("want ErrInvalidConfiguration, got %v", err)
	}
	if report != nil {
		t.Errorf("got report %+v", report)
	}
	if op.count() != 0 {
		t.Error("operator called before validation")
	}
	if entries, _ := os.ReadDir(out); len(entries) != 0 {
		t.Errorf("%d files written", len(entries))
	}

	if _, err := (&Pipeline{}).Run(context.Background(), []Source{src}, testConfig(out)); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("missing operator: want ErrInvalidConfiguration, got %v", err)
	}
}

func TestRunPartialFailure(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	good := writePNG(t, in, "good.png", greyImage(16, 16))
	if err := os.WriteFile(filepath.Join(in, "bad.png"), []byte("not a png"), 0644); err != nil {
		t.Fatal(err)
	}
	bad := Source{Dir: in, Name: "bad.png"}
	missing := Source{Dir: in, Name: "missing.png"}
	p := &Pipeline{Operator: &nearest{factor: 2}}

	report, err := p.Run(context.Background(), []Source{bad, good, missing}, testConfig(out))
	var partial *PartialBatchFailure
	if !errors.As(err, &partial) {
		t.Fatalf("want PartialBatchFailure, got %v", err)
	}
	if partial.Total != 3 || len(partial.Failures) != 2 {
		t.Errorf("%d of %d failed", len(partial.Failures), partial.Total)
	}
	if !errors.Is(err, ErrCorruptSource) {
		t.Error("corrupt source not reachable through errors.Is")
	}
	if report.Succeeded != 1 {
		t.Errorf("%d succeeded, want 1", report.Succeeded)
	}
	if f := report.Failures[0]; f.Index != 0 || f.Stage != StageDecode {
		t.Errorf("first failure %d at %s", f.Index, f.Stage)
	}
	if f := report.Failures[1]; f.Index != 2 || f.Stage != StageRead {
		t.Errorf("second failure %d at %s", f.Index, f.Stage)
	}
}

func TestRunUnsupportedConversionAborts(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	a := writePNG(t, in, "a.png", greyImage(8, 8))
	b := writePNG(t, in, "b.png", greyImage(8, 8))
	p := &Pipeline{Operator: &nearest{factor: 2}, Codec: broken{}}

	report, err := p.Run(context.Background(), []Source{a, b}, testConfig(out))
	var ie *ImageError
	if !errors.As(err, &ie) || !errors.Is(err, ErrUnsupportedConversion) {
		t.Fatalf("want ImageError with ErrUnsupportedConversion, got %v", err)
	}
	if ie.Index != 0 || ie.Stage != StageDecode {
		t.Errorf("failed image %d at %s", ie.Index, ie.Stage)
	}
	if report.Succeeded != 0 || len(report.Failures) != 0 {
		t.Errorf("report %+v", report)
	}
}

func TestRunResourceExhausted(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	src := writePNG(t, in, "big.png", greyImage(513, 300))
	op := &nearest{factor: 2}
	p := &Pipeline{Operator: op}

	cfg := testConfig(out)
	cfg.SetTiling(false, "small")
	report, err := p.Run(context.Background(), []Source{src}, cfg)
	if !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("want ErrResourceExhausted, got %v", err)
	}
	if report.Failures[0].Stage != StageUpscale {
		t.Errorf("failed at %s", report.Failures[0].Stage)
	}
	if op.count() != 0 {
		t.Error("operator called for an oversized image")
	}
}

func TestRunDownscale(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 256)
		if i%4 == 3 {
			img.Pix[i] = 255
		}
	}
	src := writePNG(t, in, "rgb.png", img)
	codec := &recorder{}
	p := &Pipeline{Codec: codec}

	cfg := testConfig(out)
	cfg.Scale = Downscale
	cfg.Mode = RGB
	cfg.Noise = 0.5
	if _, err := p.Run(context.Background(), []Source{src}, cfg); err != nil {
		t.Fatal(err)
	}
	if b := codec.encoded[0]; b.Width != 32 || b.Height != 24 || b.Channels != 3 {
		t.Errorf("encoded %dx%dx%d", b.Width, b.Height, b.Channels)
	}
}

func TestRunDevicePrecision(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	src := writePNG(t, in, "a.png", greyImage(12, 10))
	for _, device := range []Device{CPU, CUDA, XPU} {
		op := &nearest{factor: 4}
		p := &Pipeline{Operator: op}
		cfg := testConfig(out)
		cfg.Device = device
		cfg.Scale = Scale4x
		cfg.Overwrite = true
		if _, err := p.Run(context.Background(), []Source{src}, cfg); err != nil {
			t.Fatal(err)
		}
		for _, got := range op.precisions {
			if got != device.Precision() {
				t.Errorf("%s: operator saw %s", device, got)
			}
		}
	}
}

func TestRunSkipExisting(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	src := writePNG(t, in, "a.png", greyImage(8, 8))
	op := &nearest{factor: 2}
	p := &Pipeline{Operator: op}
	cfg := testConfig(out)

	if _, err := p.Run(context.Background(), []Source{src}, cfg); err != nil {
		t.Fatal(err)
	}
	report, err := p.Run(context.Background(), []Source{src}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if report.Skipped != 1 || op.count() != 1 {
		t.Errorf("skipped %d, operator called %d times", report.Skipped, op.count())
	}
	cfg.Overwrite = true
	if report, err = p.Run(context.Background(), []Source{src}, cfg); err != nil {
		t.Fatal(err)
	}
	if report.Succeeded != 1 {
		t.Errorf("%d succeeded with overwrite", report.Succeeded)
	}
}

func TestRunCancel(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	var sources []Source
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		sources = append(sources, writePNG(t, in, name, greyImage(8, 8)))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &Pipeline{Operator: &nearest{factor: 2}, OnProgress: func(done, _ int) {
		if done == 1 {
			cancel()
		}
	}}

	report, err := p.Run(ctx, sources, testConfig(out))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if !report.Canceled || report.Succeeded != 1 {
		t.Errorf("report %+v", report)
	}
}

func TestStartStop(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	var sources []Source
	for _, name := range []string{"a.png", "b.png", "c.png", "d.png"} {
		sources = append(sources, writePNG(t, in, name, greyImage(8, 8)))
	}
	var batch *Batch
	started := make(chan struct{})
	p := &Pipeline{Operator: &nearest{factor: 2}, OnProgress: func(done, _ int) {
		<-started
		if done == 2 {
			batch.Stop()
		}
	}}

	cfg := testConfig(out)
	batch = p.Start(context.Background(), sources, cfg)
	close(started)
	// Later edits must not reach the running batch.
	sources[3].Name = "gone.png"
	cfg.SetFormat("jpg", "jpeg")

	<-batch.Done()
	report, err := batch.Wait()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if report.Succeeded != 2 || !report.Canceled {
		t.Errorf("report %+v", report)
	}
	for _, output := range report.Outputs {
		if filepath.Ext(output) != ".png" {
			t.Errorf("output %q", output)
		}
	}
}
