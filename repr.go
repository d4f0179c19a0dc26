package upscale

import (
	"fmt"
	"math"
	"strings"

	"github.com/ajroetker/go-highway/hwy"
)

// Repr is the numeric precision class of pixel samples.
type Repr int

// Numeric representations.
const (
	U8 Repr = iota
	U16
	F16
	F32
	F64

	numReprs
)

var reprNames = [numReprs]string{
	U8:  "u8",
	U16: "u16",
	F16: "f16",
	F32: "f32",
	F64: "f64",
}

func (r Repr) valid() bool { return r >= 0 && r < numReprs }

func (r Repr) String() string {
	if !r.valid() {
		return fmt.Sprintf("Repr(%d)", int(r))
	}
	return reprNames[r]
}

// IsFloat reports whether r stores normalized floating point samples.
func (r Repr) IsFloat() bool { return r == F16 || r == F32 || r == F64 }

// Max returns the sample value that represents full intensity.
func (r Repr) Max() float64 {
	switch r {
	case U8:
		return math.MaxUint8
	case U16:
		return math.MaxUint16
	}
	return 1
}

// quantize rounds v to the nearest value r can hold.
func (r Repr) quantize(v float64) float64 {
	switch r {
	case U8, U16:
		return clip(math.Round(v), 0, r.Max())
	case F16:
		return float64(hwy.Float16ToFloat32(hwy.Float32ToFloat16(float32(v))))
	case F32:
		return float64(float32(v))
	}
	return v
}

// MarshalText implements encoding.TextMarshaler.
func (r Repr) MarshalText() ([]byte, error) {
	if !r.valid() {
		return nil, fmt.Errorf("unknown representation %d", int(r))
	}
	return []byte(reprNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Repr) UnmarshalText(text []byte) error {
	s := strings.ToLower(string(text))
	for i, name := range reprNames {
		if s == name {
			*r = Repr(i)
			return nil
		}
	}
	return fmt.Errorf("unknown representation %q", text)
}

// Conversion maps one sample from a source to a target representation.
type Conversion func(float64) float64

// conversions holds an entry for every (source, target) pair. It is built by
// walking both axes of the closed Repr set, so no pair can be missing.
var conversions = buildConversions()

func buildConversions() (table [numReprs][numReprs]Conversion) {
	for src := range numReprs {
		for dst := range numReprs {
			table[src][dst] = conversionFor(src, dst)
		}
	}
	for src := range numReprs {
		for dst := range numReprs {
			if table[src][dst] == nil {
				panic(fmt.Sprintf("upscale: no conversion from %s to %s", src, dst))
			}
		}
	}
	return
}

// conversionFor clips a sample to the source range and rescales it to the
// target range. Integer to integer rescaling is exact in the widening
// direction, so u8 -> u16 -> u8 returns the original value.
func conversionFor(src, dst Repr) Conversion {
	if src == dst {
		return func(v float64) float64 { return v }
	}
	srcMax, dstMax := src.Max(), dst.Max()
	return func(v float64) float64 {
		return dst.quantize(clip(v, 0, srcMax) * dstMax / srcMax)
	}
}

// ConversionFor returns the conversion between two representations.
func ConversionFor(src, dst Repr) (Conversion, error) {
	if !src.valid() || !dst.valid() {
		return nil, fmt.Errorf("%w: %s to %s", ErrUnsupportedConversion, src, dst)
	}
	return conversions[src][dst], nil
}

// Convert converts a single sample value.
func Convert(v float64, src, dst Repr) (float64, error) {
	fn, err := ConversionFor(src, dst)
	if err != nil {
		return 0, err
	}
	return fn(v), nil
}

func clip(v, lo, hi float64) float64 {
	if !(v > lo) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
