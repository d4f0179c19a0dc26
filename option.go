package upscale

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// ScaleFactor is the ratio between output and source dimensions.
type ScaleFactor float64

// Supported scale factors.
const (
	Downscale ScaleFactor = 0.5
	NoScale   ScaleFactor = 1
	Scale2x   ScaleFactor = 2
	Scale4x   ScaleFactor = 4
)

func (f ScaleFactor) valid() bool {
	return f == Downscale || f == NoScale || f == Scale2x || f == Scale4x
}

// usesOperator reports whether the factor is reached through the operator.
func (f ScaleFactor) usesOperator() bool { return f > 1 }

// apply scales a dimension by f.
func (f ScaleFactor) apply(n int) int { return int(math.Round(float64(n) * float64(f))) }

func (f ScaleFactor) String() string {
	if f == NoScale {
		return "none"
	}
	return strconv.FormatFloat(float64(f), 'f', -1, 64) + "x"
}

// MarshalText implements encoding.TextMarshaler.
func (f ScaleFactor) MarshalText() ([]byte, error) {
	if !f.valid() {
		return nil, fmt.Errorf("unsupported scale factor %v", float64(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts "none",
// "0.5", "2x" and the like.
func (f *ScaleFactor) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	if s == "none" {
		*f = NoScale
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "x"), 64)
	if err != nil || !ScaleFactor(v).valid() {
		return fmt.Errorf("unsupported scale factor %q", text)
	}
	*f = ScaleFactor(v)
	return nil
}

// Device is the accelerator the operator is resident on. It decides the
// precision of the tensors handed to the operator.
type Device int

// Devices.
const (
	CPU Device = iota
	CUDA
	XPU

	numDevices
)

var deviceNames = [numDevices]string{CPU: "cpu", CUDA: "cuda", XPU: "xpu"}

var devicePrecision = [numDevices]Precision{
	CPU:  PrecisionFull,
	CUDA: PrecisionHalf,
	XPU:  PrecisionBFloat,
}

func (d Device) valid() bool { return d >= 0 && d < numDevices }

func (d Device) String() string {
	if !d.valid() {
		return fmt.Sprintf("Device(%d)", int(d))
	}
	return deviceNames[d]
}

// Precision returns the tensor precision used on d.
func (d Device) Precision() Precision {
	if !d.valid() {
		return PrecisionFull
	}
	return devicePrecision[d]
}

// MarshalText implements encoding.TextMarshaler.
func (d Device) MarshalText() ([]byte, error) {
	if !d.valid() {
		return nil, fmt.Errorf("unknown device %d", int(d))
	}
	return []byte(deviceNames[d]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Device) UnmarshalText(text []byte) error {
	s := strings.ToLower(string(text))
	for i, name := range deviceNames {
		if s == name {
			*d = Device(i)
			return nil
		}
	}
	return fmt.Errorf("unknown device %q", text)
}

// BitDepth is the bits per sample of the exported file.
type BitDepth int

// Bit depths.
const (
	Depth8  BitDepth = 8
	Depth16 BitDepth = 16
	Depth32 BitDepth = 32
)

// Repr returns the representation samples are exported with. Float formats
// store 16 bit samples as half floats.
func (d BitDepth) Repr(float bool) (Repr, error) {
	switch d {
	case Depth8:
		return U8, nil
	case Depth16:
		if float {
			return F16, nil
		}
		return U16, nil
	case Depth32:
		return F32, nil
	}
	return 0, fmt.Errorf("%w: bit depth %d", ErrUnsupportedConversion, int(d))
}

func (d BitDepth) String() string { return strconv.Itoa(int(d)) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *BitDepth) UnmarshalText(text []byte) error {
	v, err := strconv.Atoi(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid bit depth %q", text)
	}
	*d = BitDepth(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d BitDepth) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Destination selects where exported files are written.
type Destination struct {
	single bool
	// Folder is the output folder of a single folder destination.
	Folder string
}

// Original writes every output next to its source.
var Original = Destination{}

// SingleFolder writes every output into path.
func SingleFolder(path string) Destination { return Destination{single: true, Folder: path} }

// IsOriginal reports whether outputs are written next to their sources.
func (d Destination) IsOriginal() bool { return !d.single }

func (d Destination) String() string {
	if d.IsOriginal() {
		return "original"
	}
	return d.Folder
}

// ExportConfig holds the options of one batch.
type ExportConfig struct {
	Device Device
	Scale  ScaleFactor

	Format      string
	Compression string
	Mips        MipSpec
	BitDepth    BitDepth
	Mode        ChannelMode

	// Noise in [0, 1] keeps a share of the source grain the operator removes.
	Noise float64

	Prefix          string
	Suffix          string
	UniqueNumbering bool
	Destination     Destination
	Overwrite       bool

	InputColorSpace  ColorSpace
	OutputColorSpace ColorSpace
	Gamma            float64

	Tiling      bool
	BudgetClass string
}

// NewExportConfig creates a new config with default setting.
func NewExportConfig() ExportConfig {
	return ExportConfig{
		Device:      CPU,
		Scale:       Scale2x,
		Format:      "png",
		Compression: "default",
		Mips:        MipNone,
		BitDepth:    Depth8,
		Mode:        RGBA,
		Destination: Original,
		Gamma:       1,
		Tiling:      true,
		BudgetClass: DefaultBudgetClass,
	}
}

// Clone returns a snapshot of cfg that later edits to cfg cannot reach.
func (cfg *ExportConfig) Clone() ExportConfig { return *cfg }

// SetFormat sets the export format and its compression token.
func (cfg *ExportConfig) SetFormat(format, compression string) *ExportConfig {
	cfg.Format = canonicalFormat(format)
	cfg.Compression = strings.ToLower(compression)
	return cfg
}

// SetNaming sets the value for the naming fields.
func (cfg *ExportConfig) SetNaming(prefix, suffix string, unique bool) *ExportConfig {
	cfg.Prefix, cfg.Suffix, cfg.UniqueNumbering = prefix, suffix, unique
	return cfg
}

// SetDestination sets the value for the Destination field.
func (cfg *ExportConfig) SetDestination(d Destination) *ExportConfig {
	cfg.Destination = d
	return cfg
}

// SetTiling sets whether oversized images are tiled and the budget class
// tiles are sized for.
func (cfg *ExportConfig) SetTiling(enabled bool, class string) *ExportConfig {
	cfg.Tiling, cfg.BudgetClass = enabled, class
	return cfg
}

// SetColor sets the declared color spaces and the gamma.
func (cfg *ExportConfig) SetColor(input, output ColorSpace, gamma float64) *ExportConfig {
	cfg.InputColorSpace, cfg.OutputColorSpace, cfg.Gamma = input, output, gamma
	return cfg
}

// canonicalFormat maps an extension or format name to its export key.
func canonicalFormat(format string) string {
	format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	if f, err := imaging.FormatFromExtension(format); err == nil {
		return imagingExts[f]
	}
	switch format {
	case "j2k", "jpeg2000":
		return "jp2"
	}
	return format
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// Validate checks cfg against the export rules of its format and against
// codec. Nothing is processed when it fails.
func (cfg *ExportConfig) Validate(codec Codec) error {
	rules, ok := RulesFor(cfg.Format)
	if !ok {
		return invalid("unknown export format %q", cfg.Format)
	}
	if codec != nil && !codec.CanEncode(rules.Format) {
		return invalid("no encoder for format %s", rules.Format)
	}
	if !cfg.Device.valid() {
		return invalid("unknown device %d", int(cfg.Device))
	}
	if !cfg.Scale.valid() {
		return invalid("unsupported scale factor %v", float64(cfg.Scale))
	}
	if !rules.supportsMode(cfg.Mode) {
		return invalid("%s does not support channel mode %s", rules.Format, cfg.Mode)
	}
	if !rules.supportsDepth(cfg.BitDepth) {
		return invalid("%s does not support bit depth %d", rules.Format, int(cfg.BitDepth))
	}
	if !rules.supportsCompression(cfg.Compression) {
		return invalid("%s does not support compression %q", rules.Format, cfg.Compression)
	}
	if !cfg.Mips.valid() {
		return invalid("unknown mip level spec %q", string(cfg.Mips))
	}
	if cfg.Mips != MipNone {
		if !rules.Mips {
			return invalid("%s does not support mip levels", rules.Format)
		}
		if !rules.supportsMode(withAlpha(cfg.Mode)) {
			return invalid("%s cannot carry the alpha channel mip levels need", rules.Format)
		}
	}
	if !(cfg.Noise >= 0 && cfg.Noise <= 1) {
		return invalid("noise level %v outside [0, 1]", cfg.Noise)
	}
	if !(cfg.Gamma > 0) || math.IsInf(cfg.Gamma, 0) {
		return invalid("gamma must be positive, got %v", cfg.Gamma)
	}
	if cfg.InputColorSpace != SRGB && cfg.InputColorSpace != Linear ||
		cfg.OutputColorSpace != SRGB && cfg.OutputColorSpace != Linear {
		return invalid("unknown color space")
	}
	if !cfg.Destination.IsOriginal() && strings.TrimSpace(cfg.Destination.Folder) == "" {
		return invalid("missing export destination")
	}
	if _, err := BudgetClass(cfg.BudgetClass); err != nil {
		return err
	}
	if strings.ContainsAny(cfg.Prefix+cfg.Suffix, `/\`) {
		return invalid("name prefix and suffix must not contain path separators")
	}
	return nil
}
