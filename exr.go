package upscale

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/mrjoshuak/go-openexr/exr"
	"github.com/mrjoshuak/go-openexr/half"
)

var exrCompression = map[string]exr.Compression{
	"none":  exr.CompressionNone,
	"rle":   exr.CompressionRLE,
	"zips":  exr.CompressionZIPS,
	"zip":   exr.CompressionZIP,
	"piz":   exr.CompressionPIZ,
	"pxr24": exr.CompressionPXR24,
}

var exrChannels = map[ChannelMode][]string{
	Grey:      {"Y"},
	GreyAlpha: {"Y", "A"},
	RGB:       {"R", "G", "B"},
	RGBA:      {"R", "G", "B", "A"},
}

// withTemp runs fn on a scratch file and removes it afterwards. The exr
// writer needs an io.WriteSeeker.
func withTemp(fn func(f *os.File) error) error {
	f, err := os.CreateTemp("", "upscale-*.exr")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	defer f.Close()
	return fn(f)
}

// decodeEXR reads the first part of an OpenEXR file into a half float
// buffer. Channels that are equal everywhere collapse to grey, fully
// opaque alpha is dropped.
func decodeEXR(data []byte) (*Buffer, error) {
	file, err := exr.OpenReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	if file.Header(0) == nil {
		return nil, errors.New("no header found")
	}
	in, err := exr.NewRGBAInputFile(file)
	if err != nil {
		return nil, err
	}
	img, err := in.ReadRGBA()
	if err != nil {
		return nil, err
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w <= 0 || h <= 0 {
		return nil, errNoPixels
	}

	b := NewBuffer(w, h, 4, F16)
	grey, opaque := true, true
	for y := range h {
		for x := range w {
			r, g, bl, a := img.RGBA(x, y)
			grey = grey && r == g && g == bl
			opaque = opaque && a == 1
			i := b.offset(x, y)
			b.Pix[i] = F16.quantize(float64(r))
			b.Pix[i+1] = F16.quantize(float64(g))
			b.Pix[i+2] = F16.quantize(float64(bl))
			b.Pix[i+3] = F16.quantize(float64(a))
		}
	}
	switch {
	case grey && opaque:
		return b.extract(0, 1), nil
	case grey:
		return interleave(b.extract(0, 1), b.extract(3, 1))
	case opaque:
		return b.extract(0, 3), nil
	}
	return b, nil
}

// encodeEXR writes b as a scanline OpenEXR file with half float channels.
func encodeEXR(b *Buffer, opts EncodeOptions) ([]byte, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	mode, err := ModeOf(b.Channels)
	if err != nil {
		return nil, err
	}
	comp, ok := exrCompression[opts.Compression]
	if !ok {
		return nil, fmt.Errorf("unknown exr compression %q", opts.Compression)
	}
	samples, err := b.Convert(F16)
	if err != nil {
		return nil, err
	}

	h := exr.NewScanlineHeader(b.Width, b.Height)
	h.SetCompression(comp)
	names := exrChannels[mode]
	channels := exr.NewChannelList()
	for _, name := range names {
		channels.Add(exr.Channel{Name: name, Type: exr.PixelTypeHalf, XSampling: 1, YSampling: 1})
	}
	h.SetChannels(channels)

	fb := exr.NewFrameBuffer()
	for _, name := range names {
		fb.Set(name, exr.NewSlice(exr.PixelTypeHalf, make([]byte, b.Width*b.Height*2), b.Width, b.Height))
	}
	for y := range b.Height {
		for x := range b.Width {
			i := samples.offset(x, y)
			for c, name := range names {
				fb.Get(name).SetHalf(x, y, half.FromFloat32(float32(samples.Pix[i+c])))
			}
		}
	}

	var out []byte
	err = withTemp(func(f *os.File) error {
		sw, err := exr.NewScanlineWriter(f, h)
		if err != nil {
			return err
		}
		sw.SetFrameBuffer(fb)
		if err := sw.WritePixels(int(h.DataWindow().Min.Y), int(h.DataWindow().Max.Y)); err != nil {
			return err
		}
		if err := sw.Close(); err != nil {
			return err
		}
		out, err = os.ReadFile(f.Name())
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
