package upscale

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/gift"
)

// Unsharp mask applied to the resized noisy copy.
const (
	noiseSigma     = 1.0
	noiseAmount    = 15.0
	noiseThreshold = 0.0
)

// noiseFilter resizes the noisy copy to width x height and sharpens it.
func noiseFilter(width, height int) *gift.GIFT {
	return gift.New(
		gift.Resize(width, height, gift.LanczosResampling),
		gift.UnsharpMask(noiseSigma, noiseAmount, noiseThreshold),
	)
}

// retainNoise blends grain from noisy back into out: every color sample of
// out is replaced by the sharpened noisy sample when that sample is below
// out times level. noisy must already have the channel layout and
// representation of out. Alpha is left alone.
func retainNoise(out, noisy *Buffer, level float64) error {
	if out.Channels != noisy.Channels || out.Repr != noisy.Repr {
		return fmt.Errorf("noisy copy is %dch %s, want %dch %s", noisy.Channels, noisy.Repr, out.Channels, out.Repr)
	}
	g := noiseFilter(out.Width, out.Height)
	dst := image.NewNRGBA64(g.Bounds(image.Rect(0, 0, noisy.Width, noisy.Height)))
	g.Draw(dst, wideImage(noisy))
	sharp := fromWide(dst, noisy.Channels, noisy.Repr)
	if sharp.Width != out.Width || sharp.Height != out.Height {
		return fmt.Errorf("sharpened copy is %v, want %v", sharp.Size(), out.Size())
	}

	mode, err := ModeOf(out.Channels)
	if err != nil {
		return err
	}
	n := mode.colorChannels()
	for i := 0; i < len(out.Pix); i += out.Channels {
		for c := range n {
			if v := sharp.Pix[i+c]; v < out.Pix[i+c]*level {
				out.Pix[i+c] = v
			}
		}
	}
	return nil
}

// wideImage spreads any buffer over a 16 bit NRGBA image for filtering.
func wideImage(b *Buffer) *image.NRGBA64 {
	img := image.NewNRGBA64(image.Rect(0, 0, b.Width, b.Height))
	toWide, _ := ConversionFor(b.Repr, U16)
	mode, _ := ModeOf(b.Channels)
	for y := range b.Height {
		for x := range b.Width {
			i := b.offset(x, y)
			var c [4]uint16
			c[3] = 0xffff
			for k := range 3 {
				if mode.IsGrey() {
					c[k] = uint16(toWide(b.Pix[i]))
				} else {
					c[k] = uint16(toWide(b.Pix[i+k]))
				}
			}
			if mode.HasAlpha() {
				c[3] = uint16(toWide(b.Pix[i+b.Channels-1]))
			}
			img.SetNRGBA64(x, y, color.NRGBA64{R: c[0], G: c[1], B: c[2], A: c[3]})
		}
	}
	return img
}

// fromWide reverses wideImage.
func fromWide(img *image.NRGBA64, channels int, repr Repr) *Buffer {
	r := img.Bounds()
	b := NewBuffer(r.Dx(), r.Dy(), channels, repr)
	back, _ := ConversionFor(U16, repr)
	mode, _ := ModeOf(channels)
	for y := range b.Height {
		for x := range b.Width {
			c := img.NRGBA64At(r.Min.X+x, r.Min.Y+y)
			i := b.offset(x, y)
			px := [4]uint16{c.R, c.G, c.B, c.A}
			for k := range mode.colorChannels() {
				b.Pix[i+k] = back(float64(px[k]))
			}
			if mode.HasAlpha() {
				b.Pix[i+channels-1] = back(float64(c.A))
			}
		}
	}
	return b
}
