package upscale

import (
	"errors"
	"flag"
	"io"
	"testing"
)

func TestNewExportConfig(t *testing.T) {
	cfg := NewExportConfig()
	if cfg.Format != "png" || cfg.Scale != Scale2x || cfg.Mode != RGBA || cfg.BitDepth != Depth8 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !cfg.Destination.IsOriginal() || !cfg.Tiling || cfg.Gamma != 1 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(StdCodec{}); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestSetters(t *testing.T) {
	cfg := NewExportConfig()
	cfg.SetFormat("TIFF", "Deflate").
		SetNaming("hd", "x2", true).
		SetDestination(SingleFolder("out")).
		SetTiling(false, "small").
		SetColor(Linear, SRGB, 2.2)
	if cfg.Format != "tif" || cfg.Compression != "deflate" {
		t.Errorf("SetFormat result is not expect one: %s %s", cfg.Format, cfg.Compression)
	}
	if cfg.Prefix != "hd" || cfg.Suffix != "x2" || !cfg.UniqueNumbering {
		t.Error("SetNaming result is not expect one.")
	}
	if cfg.Destination.IsOriginal() || cfg.Destination.Folder != "out" {
		t.Error("SetDestination result is not expect one.")
	}
	if cfg.Tiling || cfg.BudgetClass != "small" {
		t.Error("SetTiling result is not expect one.")
	}
	if cfg.InputColorSpace != Linear || cfg.OutputColorSpace != SRGB || cfg.Gamma != 2.2 {
		t.Error("SetColor result is not expect one.")
	}

	snapshot := cfg.Clone()
	cfg.SetFormat("jpg", "none")
	if snapshot.Format != "tif" {
		t.Error("Clone shares state with the original")
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name  string
		apply func(*ExportConfig)
		ok    bool
	}{
		{"jpg rgb", func(c *ExportConfig) { c.SetFormat("jpg", "jpeg"); c.Mode = RGB }, true},
		{"jpg rgba", func(c *ExportConfig) { c.SetFormat("jpg", "jpeg") }, false},
		{"jpg 16 bit", func(c *ExportConfig) { c.SetFormat("jpg", "jpeg"); c.Mode = RGB; c.BitDepth = Depth16 }, false},
		{"png depth", func(c *ExportConfig) { c.BitDepth = Depth32 }, false},
		{"png compression", func(c *ExportConfig) { c.Compression = "zip" }, false},
		{"exr", func(c *ExportConfig) { c.SetFormat("exr", "zip"); c.BitDepth = Depth16 }, true},
		{"exr grey alpha", func(c *ExportConfig) { c.SetFormat("exr", "piz"); c.BitDepth = Depth16; c.Mode = GreyAlpha }, true},
		{"jp2", func(c *ExportConfig) { c.SetFormat("j2k", "lossless"); c.BitDepth = Depth16 }, true},
		{"unknown format", func(c *ExportConfig) { c.SetFormat("psd", "none") }, false},
		{"no encoder", func(c *ExportConfig) { c.SetFormat("dds", "automatic") }, false},
		{"png mips", func(c *ExportConfig) { c.Mips = MipMax }, false},
		{"bad mips", func(c *ExportConfig) { c.Mips = "10%" }, false},
		{"scale", func(c *ExportConfig) { c.Scale = 3 }, false},
		{"device", func(c *ExportConfig) { c.Device = numDevices }, false},
		{"noise", func(c *ExportConfig) { c.Noise = 1.5 }, false},
		{"gamma", func(c *ExportConfig) { c.Gamma = 0 }, false},
		{"color space", func(c *ExportConfig) { c.InputColorSpace = 7 }, false},
		{"empty folder", func(c *ExportConfig) { c.SetDestination(SingleFolder(" ")) }, false},
		{"budget", func(c *ExportConfig) { c.SetTiling(true, "huge") }, false},
		{"separator", func(c *ExportConfig) { c.SetNaming("a/b", "", false) }, false},
		{"downscale", func(c *ExportConfig) { c.Scale = Downscale }, true},
	} {
		cfg := NewExportConfig()
		tc.apply(&cfg)
		err := cfg.Validate(StdCodec{})
		if tc.ok && err != nil {
			t.Errorf("%s: %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("%s: want ErrInvalidConfiguration, got %v", tc.name, err)
		}
	}
}

func TestValidateMipsWithoutCodec(t *testing.T) {
	cfg := NewExportConfig()
	cfg.SetFormat("dds", "automatic")
	cfg.Mips = Mip50
	if err := cfg.Validate(nil); err != nil {
		t.Errorf("dds mips: %v", err)
	}
	cfg.Mode = Grey
	if err := cfg.Validate(nil); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("dds grey: want ErrInvalidConfiguration, got %v", err)
	}
}

func TestTextVar(t *testing.T) {
	f := flag.NewFlagSet("test", flag.ContinueOnError)
	f.SetOutput(io.Discard)
	var (
		scale  ScaleFactor
		device Device
		depth  BitDepth
		mips   MipSpec
		space  ColorSpace
	)
	f.TextVar(&scale, "scale", Scale2x, "")
	f.TextVar(&device, "device", CPU, "")
	f.TextVar(&depth, "depth", Depth8, "")
	f.TextVar(&mips, "mips", MipNone, "")
	f.TextVar(&space, "space", SRGB, "")
	if err := f.Parse([]string{"-scale", "4x", "-device", "CUDA", "-depth", "16", "-mips", "75%", "-space", "linear"}); err != nil {
		t.Fatal(err)
	}
	if scale != Scale4x || device != CUDA || depth != Depth16 || mips != Mip75 || space != Linear {
		t.Errorf("got %s %s %s %s %s", scale, device, depth, mips, space)
	}
	if device.Precision() != PrecisionHalf {
		t.Errorf("cuda precision %s", device.Precision())
	}

	for _, tc := range []struct {
		argument string
		scale    ScaleFactor
	}{
		{"none", NoScale},
		{"0.5", Downscale},
		{"2X", Scale2x},
		{"3x", ScaleFactor(-1)},
	} {
		f := flag.NewFlagSet("test", flag.ContinueOnError)
		f.SetOutput(io.Discard)
		var scale ScaleFactor
		f.TextVar(&scale, "scale", ScaleFactor(-1), "")
		f.Parse(append([]string{"-scale"}, tc.argument))
		if scale != tc.scale {
			t.Errorf("expected %s scale; got %s", tc.scale, scale)
		}
	}
}
