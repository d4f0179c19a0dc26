package upscale

import (
	"errors"
	"fmt"
	"image"
)

// Buffer is a pixel buffer with interleaved channels stored row by row.
// Samples are kept as float64 regardless of Repr; Repr records the value
// range and the precision the samples are quantized to.
type Buffer struct {
	Width, Height int
	Channels      int
	Repr          Repr
	Pix           []float64
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(width, height, channels int, repr Repr) *Buffer {
	return &Buffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Repr:     repr,
		Pix:      make([]float64, width*height*channels),
	}
}

// Size returns the spatial dimensions of b.
func (b *Buffer) Size() image.Point { return image.Pt(b.Width, b.Height) }

func (b *Buffer) offset(x, y int) int { return (y*b.Width + x) * b.Channels }

// At returns the sample of channel c at (x, y).
func (b *Buffer) At(x, y, c int) float64 { return b.Pix[b.offset(x, y)+c] }

// Set stores the sample of channel c at (x, y).
func (b *Buffer) Set(x, y, c int, v float64) { b.Pix[b.offset(x, y)+c] = v }

// Clone returns a deep copy of b.
func (b *Buffer) Clone() *Buffer {
	c := *b
	c.Pix = append([]float64(nil), b.Pix...)
	return &c
}

func (b *Buffer) validate() error {
	if b == nil {
		return errors.New("nil buffer")
	}
	if b.Width <= 0 || b.Height <= 0 || b.Channels <= 0 {
		return fmt.Errorf("invalid buffer dimensions %dx%dx%d", b.Width, b.Height, b.Channels)
	}
	if len(b.Pix) != b.Width*b.Height*b.Channels {
		return fmt.Errorf("buffer holds %d samples, want %d", len(b.Pix), b.Width*b.Height*b.Channels)
	}
	if !b.Repr.valid() {
		return fmt.Errorf("%w: buffer representation %s", ErrUnsupportedConversion, b.Repr)
	}
	return nil
}

// constant reports whether every sample in b has the same value.
func (b *Buffer) constant() (float64, bool) {
	if len(b.Pix) == 0 {
		return 0, false
	}
	v := b.Pix[0]
	for _, p := range b.Pix[1:] {
		if p != v {
			return 0, false
		}
	}
	return v, true
}

func filled(width, height, channels int, repr Repr, v float64) *Buffer {
	b := NewBuffer(width, height, channels, repr)
	for i := range b.Pix {
		b.Pix[i] = v
	}
	return b
}

// extract copies n channels starting at channel from.
func (b *Buffer) extract(from, n int) *Buffer {
	dst := NewBuffer(b.Width, b.Height, n, b.Repr)
	for i, j := 0, from; i < len(dst.Pix); i, j = i+n, j+b.Channels {
		copy(dst.Pix[i:i+n], b.Pix[j:j+n])
	}
	return dst
}

// replicate spreads the first channel of b over n channels.
func (b *Buffer) replicate(n int) *Buffer {
	dst := NewBuffer(b.Width, b.Height, n, b.Repr)
	for i, j := 0, 0; i < len(dst.Pix); i, j = i+n, j+b.Channels {
		for c := range n {
			dst.Pix[i+c] = b.Pix[j]
		}
	}
	return dst
}

// interleave joins buffers of equal size and representation channel-wise.
func interleave(parts ...*Buffer) (*Buffer, error) {
	if len(parts) == 0 {
		return nil, errors.New("nothing to interleave")
	}
	first := parts[0]
	var channels int
	for _, p := range parts {
		if p.Width != first.Width || p.Height != first.Height {
			return nil, fmt.Errorf("channel size mismatch: %v and %v", first.Size(), p.Size())
		}
		if p.Repr != first.Repr {
			return nil, fmt.Errorf("channel representation mismatch: %s and %s", first.Repr, p.Repr)
		}
		channels += p.Channels
	}
	dst := NewBuffer(first.Width, first.Height, channels, first.Repr)
	n := first.Width * first.Height
	for i := range n {
		j := i * channels
		for _, p := range parts {
			copy(dst.Pix[j:j+p.Channels], p.Pix[i*p.Channels:(i+1)*p.Channels])
			j += p.Channels
		}
	}
	return dst, nil
}

// Convert returns a copy of b converted to repr.
func (b *Buffer) Convert(repr Repr) (*Buffer, error) {
	fn, err := ConversionFor(b.Repr, repr)
	if err != nil {
		return nil, err
	}
	dst := NewBuffer(b.Width, b.Height, b.Channels, repr)
	for i, v := range b.Pix {
		dst.Pix[i] = fn(v)
	}
	return dst, nil
}

// crop copies the w x h region whose top-left corner is (x, y).
func (b *Buffer) crop(x, y, w, h int) *Buffer {
	dst := NewBuffer(w, h, b.Channels, b.Repr)
	row := w * b.Channels
	for j := range h {
		copy(dst.Pix[j*row:(j+1)*row], b.Pix[b.offset(x, y+j):])
	}
	return dst
}

// paste copies src into b with its top-left corner at (x, y).
func (b *Buffer) paste(src *Buffer, x, y int) {
	row := src.Width * src.Channels
	for j := range src.Height {
		copy(b.Pix[b.offset(x, y+j):b.offset(x, y+j)+row], src.Pix[j*row:(j+1)*row])
	}
}
