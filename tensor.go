package upscale

import (
	"context"
	"fmt"

	"github.com/ajroetker/go-highway/hwy"
)

// Precision is the storage precision of a tensor handed to the operator.
type Precision int

// Tensor precisions.
const (
	PrecisionFull Precision = iota
	PrecisionHalf
	PrecisionBFloat
)

func (p Precision) String() string {
	switch p {
	case PrecisionFull:
		return "float32"
	case PrecisionHalf:
		return "float16"
	case PrecisionBFloat:
		return "bfloat16"
	}
	return fmt.Sprintf("Precision(%d)", int(p))
}

// Tensor is a compact interleaved float tensor in height, width, channel
// order with values nominally in [0, 1].
type Tensor struct {
	Width, Height, Channels int
	Precision               Precision

	full []float32
	half []hwy.Float16
	bf16 []hwy.BFloat16
}

// NewTensor allocates a zeroed tensor stored at precision p.
func NewTensor(width, height, channels int, p Precision) *Tensor {
	t := &Tensor{Width: width, Height: height, Channels: channels, Precision: p}
	n := width * height * channels
	switch p {
	case PrecisionHalf:
		t.half = make([]hwy.Float16, n)
	case PrecisionBFloat:
		t.bf16 = make([]hwy.BFloat16, n)
	default:
		t.Precision = PrecisionFull
		t.full = make([]float32, n)
	}
	return t
}

// Len returns the number of samples in t.
func (t *Tensor) Len() int { return t.Width * t.Height * t.Channels }

// At returns sample i.
func (t *Tensor) At(i int) float32 {
	switch t.Precision {
	case PrecisionHalf:
		return hwy.Float16ToFloat32(t.half[i])
	case PrecisionBFloat:
		return hwy.BFloat16ToFloat32(t.bf16[i])
	}
	return t.full[i]
}

// Set stores sample i, rounding it to the tensor precision.
func (t *Tensor) Set(i int, v float32) {
	switch t.Precision {
	case PrecisionHalf:
		t.half[i] = hwy.Float32ToFloat16(v)
	case PrecisionBFloat:
		t.bf16[i] = hwy.Float32ToBFloat16(v)
	default:
		t.full[i] = v
	}
}

// tensorOf copies a float buffer into a tensor of precision p.
func tensorOf(b *Buffer, p Precision) *Tensor {
	t := NewTensor(b.Width, b.Height, b.Channels, p)
	for i, v := range b.Pix {
		t.Set(i, float32(v))
	}
	return t
}

// buffer copies t back into a buffer of representation repr, clipping to
// [0, 1]. The tensor precision never carries over into the result.
func (t *Tensor) buffer(repr Repr) *Buffer {
	b := NewBuffer(t.Width, t.Height, t.Channels, repr)
	for i := range b.Pix {
		b.Pix[i] = repr.quantize(clip(float64(t.At(i)), 0, 1))
	}
	return b
}

// Operator is an upscaling model that is already loaded on its device.
// Infer returns a tensor whose width and height are the input's times the
// model scale. Allocation failures on the device should wrap
// ErrResourceExhausted.
type Operator interface {
	Infer(ctx context.Context, in *Tensor) (*Tensor, error)
}

// OperatorFunc adapts a function to the Operator interface.
type OperatorFunc func(ctx context.Context, in *Tensor) (*Tensor, error)

// Infer calls f(ctx, in).
func (f OperatorFunc) Infer(ctx context.Context, in *Tensor) (*Tensor, error) { return f(ctx, in) }

// LanczosOperator is an Operator that resamples with a Lanczos filter. It
// stands in when no trained model is available.
type LanczosOperator struct {
	Factor int
}

// Infer implements Operator.
func (op LanczosOperator) Infer(ctx context.Context, in *Tensor) (*Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if op.Factor < 1 {
		return nil, fmt.Errorf("invalid lanczos factor %d", op.Factor)
	}
	src := in.buffer(F32)
	dst := resample(src, src.Width*op.Factor, src.Height*op.Factor, lanczos)
	return tensorOf(dst, in.Precision), nil
}
