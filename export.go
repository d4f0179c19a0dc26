package upscale

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// ExportRules describes what an export format can carry.
type ExportRules struct {
	Format      string
	Modes       []ChannelMode
	Depths      []BitDepth
	Compression []string
	// Mips reports whether the format stores a mip pyramid.
	Mips bool
	// Float reports whether 16 bit samples are stored as half floats.
	Float bool
}

// exportRules lists every export format. A new format only needs an entry
// here and a codec that can encode it.
var exportRules = []ExportRules{
	{
		Format:      "png",
		Modes:       []ChannelMode{Grey, RGB, RGBA},
		Depths:      []BitDepth{Depth8, Depth16},
		Compression: []string{"none", "fast", "default", "best"},
	},
	{
		Format:      "jpg",
		Modes:       []ChannelMode{Grey, RGB},
		Depths:      []BitDepth{Depth8},
		Compression: []string{"none", "jpeg"},
	},
	{
		Format:      "bmp",
		Modes:       []ChannelMode{Grey, RGB, RGBA},
		Depths:      []BitDepth{Depth8},
		Compression: []string{"none"},
	},
	{
		Format:      "tif",
		Modes:       []ChannelMode{Grey, RGB, RGBA},
		Depths:      []BitDepth{Depth8, Depth16},
		Compression: []string{"none", "deflate"},
	},
	{
		Format:      "exr",
		Modes:       []ChannelMode{Grey, GreyAlpha, RGB, RGBA},
		Depths:      []BitDepth{Depth16},
		Compression: []string{"none", "rle", "zips", "zip", "piz", "pxr24"},
		Float:       true,
	},
	{
		Format:      "jp2",
		Modes:       []ChannelMode{Grey, RGB, RGBA},
		Depths:      []BitDepth{Depth8, Depth16},
		Compression: []string{"lossless", "lossy"},
	},
	{
		Format:      "tga",
		Modes:       []ChannelMode{Grey, RGB, RGBA},
		Depths:      []BitDepth{Depth8},
		Compression: []string{"none", "rle"},
	},
	{
		Format:      "dds",
		Modes:       []ChannelMode{RGB, RGBA},
		Depths:      []BitDepth{Depth8},
		Compression: []string{"none", "dxt1", "dxt3", "dxt5", compressionAutomatic},
		Mips:        true,
	},
}

const compressionAutomatic = "automatic"

// RulesFor returns the export rules of format.
func RulesFor(format string) (ExportRules, bool) {
	format = canonicalFormat(format)
	for _, r := range exportRules {
		if r.Format == format {
			return r, true
		}
	}
	return ExportRules{}, false
}

func (r ExportRules) supportsMode(m ChannelMode) bool { return slices.Contains(r.Modes, m) }

func (r ExportRules) supportsDepth(d BitDepth) bool { return slices.Contains(r.Depths, d) }

func (r ExportRules) supportsCompression(token string) bool {
	return slices.Contains(r.Compression, strings.ToLower(token))
}

// Repr returns the export representation for depth.
func (r ExportRules) Repr(depth BitDepth) (Repr, error) { return depth.Repr(r.Float) }

func withAlpha(m ChannelMode) ChannelMode {
	switch m {
	case Grey:
		return GreyAlpha
	case RGB:
		return RGBA
	}
	return m
}

// Finalize reshapes b into mode for the format described by rules. Grey is
// replicated to RGB, RGB is folded to grey with the luma weights, missing
// alpha is synthesized opaque at the representation maximum and extra alpha
// is dropped. The result must be a mode and depth the format supports.
func Finalize(b *Buffer, mode ChannelMode, rules ExportRules) (*Buffer, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	if !rules.supportsMode(mode) {
		return nil, fmt.Errorf("%w: %s does not support channel mode %s", ErrInvalidConfiguration, rules.Format, mode)
	}
	if !slices.ContainsFunc(rules.Depths, func(d BitDepth) bool {
		repr, err := rules.Repr(d)
		return err == nil && repr == b.Repr
	}) {
		return nil, fmt.Errorf("%w: %s does not support %s samples", ErrInvalidConfiguration, rules.Format, b.Repr)
	}
	source, err := ModeOf(b.Channels)
	if err != nil {
		return nil, err
	}
	if source == mode {
		return b, nil
	}

	var color *Buffer
	switch n := source.colorChannels(); {
	case n == mode.colorChannels():
		color = b.extract(0, n)
	case n == 1:
		color = b.replicate(3)
	default:
		color = luma(b)
	}
	if !mode.HasAlpha() {
		return color, nil
	}
	var alpha *Buffer
	if source.HasAlpha() {
		alpha = b.extract(b.Channels-1, 1)
	} else {
		alpha = filled(b.Width, b.Height, 1, b.Repr, b.Repr.Max())
	}
	return interleave(color, alpha)
}

// alphaOpaque reports whether b has no alpha or only fully opaque alpha.
func alphaOpaque(b *Buffer) bool {
	mode, err := ModeOf(b.Channels)
	if err != nil || !mode.HasAlpha() {
		return true
	}
	full := b.Repr.Max()
	for i := b.Channels - 1; i < len(b.Pix); i += b.Channels {
		if b.Pix[i] != full {
			return false
		}
	}
	return true
}

// resolveCompression turns the automatic token into a concrete one: dxt1
// when b is opaque, dxt5 otherwise.
func resolveCompression(token string, b *Buffer) string {
	token = strings.ToLower(token)
	if token != compressionAutomatic {
		return token
	}
	if alphaOpaque(b) {
		return "dxt1"
	}
	return "dxt5"
}

// MipSpec selects how deep a mip pyramid is generated.
type MipSpec string

// Mip level specs.
const (
	MipNone MipSpec = "none"
	Mip25   MipSpec = "25%"
	Mip50   MipSpec = "50%"
	Mip75   MipSpec = "75%"
	MipMax  MipSpec = "max"
)

var mipFractions = map[MipSpec]float64{
	MipNone: 0,
	Mip25:   0.25,
	Mip50:   0.5,
	Mip75:   0.75,
	MipMax:  1,
}

func (m MipSpec) valid() bool {
	_, ok := mipFractions[m]
	return ok
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MipSpec) UnmarshalText(text []byte) error {
	spec := MipSpec(strings.ToLower(strings.TrimSpace(string(text))))
	if !spec.valid() {
		return fmt.Errorf("unknown mip level spec %q", text)
	}
	*m = spec
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (m MipSpec) MarshalText() ([]byte, error) { return []byte(m), nil }

// Levels returns the number of mip levels for a width x height image, a
// share of the log2 of its shorter side.
func (m MipSpec) Levels(width, height int) int {
	fraction := mipFractions[m]
	if fraction == 0 || min(width, height) < 1 {
		return 0
	}
	return int(math.Round(fraction * math.Log2(float64(min(width, height)))))
}

// smallestStep is the lowest nonzero sample r can hold.
func smallestStep(r Repr) float64 {
	if r.IsFloat() {
		return r.quantize(1.0 / math.MaxUint16)
	}
	return 1
}

// prepareMips guarantees an alpha channel and raises fully transparent
// samples to the smallest nonzero step, so mip levels keep their color.
func prepareMips(b *Buffer) (*Buffer, error) {
	mode, err := ModeOf(b.Channels)
	if err != nil {
		return nil, err
	}
	if !mode.HasAlpha() {
		b, err = interleave(b, filled(b.Width, b.Height, 1, b.Repr, b.Repr.Max()))
		if err != nil {
			return nil, err
		}
	}
	step := smallestStep(b.Repr)
	for i := b.Channels - 1; i < len(b.Pix); i += b.Channels {
		if b.Pix[i] == 0 {
			b.Pix[i] = step
		}
	}
	return b, nil
}
