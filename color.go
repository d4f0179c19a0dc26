package upscale

import (
	"fmt"
	"math"
	"strings"
)

// ColorSpace is the declared transfer characteristic of pixel data.
type ColorSpace int

// Color spaces.
const (
	SRGB ColorSpace = iota
	Linear
)

func (cs ColorSpace) String() string {
	switch cs {
	case SRGB:
		return "srgb"
	case Linear:
		return "linear"
	}
	return fmt.Sprintf("ColorSpace(%d)", int(cs))
}

// MarshalText implements encoding.TextMarshaler.
func (cs ColorSpace) MarshalText() ([]byte, error) {
	if cs != SRGB && cs != Linear {
		return nil, fmt.Errorf("unknown color space %d", int(cs))
	}
	return []byte(cs.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (cs *ColorSpace) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "srgb":
		*cs = SRGB
	case "linear":
		*cs = Linear
	default:
		return fmt.Errorf("unknown color space %q", text)
	}
	return nil
}

// sRGB transfer constants.
const (
	srgbLinearCutoff  = 0.0031308
	srgbEncodedCutoff = 0.04045
	srgbSlope         = 12.92
	srgbOffset        = 0.055
	srgbGamma         = 2.4
)

// EncodeSRGB maps a linear value in [0, 1] to its sRGB encoding.
func EncodeSRGB(v float64) float64 {
	if v <= srgbLinearCutoff {
		return v * srgbSlope
	}
	return (1+srgbOffset)*math.Pow(v, 1/srgbGamma) - srgbOffset
}

// DecodeSRGB maps an sRGB encoded value in [0, 1] back to linear.
func DecodeSRGB(v float64) float64 {
	if v <= srgbEncodedCutoff {
		return v / srgbSlope
	}
	return math.Pow((v+srgbOffset)/(1+srgbOffset), srgbGamma)
}

// transfer applies fn to the first n channels of a float buffer and
// requantizes the result.
func (b *Buffer) transfer(n int, fn func(float64) float64) {
	for i := 0; i < len(b.Pix); i += b.Channels {
		for c := range n {
			b.Pix[i+c] = b.Repr.quantize(fn(b.Pix[i+c]))
		}
	}
}

func encodeColorSpace(b *Buffer) {
	b.transfer(b.Channels, func(v float64) float64 { return EncodeSRGB(clip(v, 0, 1)) })
}

func decodeColorSpace(b *Buffer) {
	b.transfer(b.Channels, func(v float64) float64 { return DecodeSRGB(clip(v, 0, 1)) })
}

// applyGamma maps every sample to (v/max)^exponent * max. An exponent of 1
// leaves b untouched.
func applyGamma(b *Buffer, exponent float64) {
	if exponent == 1 {
		return
	}
	full := b.Repr.Max()
	b.transfer(b.Channels, func(v float64) float64 {
		return math.Pow(clip(v, 0, full)/full, exponent) * full
	})
}

// gammaForward prepares color for inference.
func gammaForward(b *Buffer, gamma float64) {
	if gamma == 1 {
		return
	}
	applyGamma(b, 1/gamma)
}

// gammaInverse undoes gammaForward after inference.
func gammaInverse(b *Buffer, gamma float64) {
	if gamma == 1 {
		return
	}
	applyGamma(b, gamma)
}
