package upscale

import (
	"path/filepath"
	"testing"
)

func TestOutputName(t *testing.T) {
	for _, tc := range []struct {
		prefix, suffix string
		unique         bool
		format         string
		index          int
		want           string
	}{
		{"", "", false, "png", 3, "photo.png"},
		{"hd", "", false, "png", 0, "hd_photo.png"},
		{"", "x2", false, "tif", 0, "photo_x2.tif"},
		{"hd", "x2", true, "jpg", 0, "0_hd_photo_x2.jpg"},
		{"", "", true, "exr", 7, "7_photo.exr"},
		{"", "", false, "jpeg", 0, "photo.jpg"},
	} {
		cfg := NewExportConfig()
		cfg.SetNaming(tc.prefix, tc.suffix, tc.unique)
		cfg.Format = tc.format
		if got := cfg.OutputName("photo.webp", tc.index); got != tc.want {
			t.Errorf("OutputName = %q, want %q", got, tc.want)
		}
	}
}

func TestOutputPath(t *testing.T) {
	src := Source{Dir: filepath.Join("in", "set"), Name: "a.b.png"}
	cfg := NewExportConfig()
	cfg.SetFormat("tif", "none")
	if got, want := cfg.OutputPath(src, 0), filepath.Join("in", "set", "a.b.tif"); got != want {
		t.Errorf("original destination: %q, want %q", got, want)
	}
	cfg.SetDestination(SingleFolder("out"))
	if got, want := cfg.OutputPath(src, 0), filepath.Join("out", "a.b.tif"); got != want {
		t.Errorf("single folder destination: %q, want %q", got, want)
	}
	if got, want := src.Path(), filepath.Join("in", "set", "a.b.png"); got != want {
		t.Errorf("source path %q, want %q", got, want)
	}
}
