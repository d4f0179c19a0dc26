package upscale

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // decode gif format
	_ "image/jpeg" // decode jpeg format
	"image/png"
	"path/filepath"
	"slices"

	"github.com/disintegration/imaging"
	"github.com/mrjoshuak/go-jpeg2000"
	_ "github.com/sunshineplan/pdf"  // decode pdf format
	_ "github.com/sunshineplan/tiff" // decode tiff format
	_ "golang.org/x/image/bmp"       // decode bmp format
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // decode webp format
)

var imagingExts = map[imaging.Format]string{
	imaging.JPEG: "jpg",
	imaging.PNG:  "png",
	imaging.GIF:  "gif",
	imaging.TIFF: "tif",
	imaging.BMP:  "bmp",
}

// FormatOf returns the format key of a file from its extension.
func FormatOf(path string) string { return canonicalFormat(filepath.Ext(path)) }

// EncodeOptions are the per-image choices handed to a codec.
type EncodeOptions struct {
	Mode        ChannelMode
	Depth       BitDepth
	Compression string
	MipLevels   int
}

// Codec turns file bytes into buffers and back, keyed by format.
type Codec interface {
	Decode(data []byte, format string) (*Buffer, error)
	Encode(b *Buffer, format string, opts EncodeOptions) ([]byte, error)
	CanEncode(format string) bool
}

// StdCodec decodes png, jpg, gif, bmp, webp, tif, pdf, exr and jp2 sources
// and encodes png, jpg, bmp, tif, exr and jp2.
type StdCodec struct{}

var stdEncoders = []string{"png", "jpg", "bmp", "tif", "exr", "jp2"}

// CanEncode implements Codec.
func (StdCodec) CanEncode(format string) bool {
	return slices.Contains(stdEncoders, canonicalFormat(format))
}

// Decode implements Codec.
func (StdCodec) Decode(data []byte, format string) (*Buffer, error) {
	if canonicalFormat(format) == "exr" {
		b, err := decodeEXR(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSource, err)
		}
		return b, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSource, err)
	}
	return FromImage(img), nil
}

var pngLevels = map[string]png.CompressionLevel{
	"none":    png.NoCompression,
	"fast":    png.BestSpeed,
	"default": png.DefaultCompression,
	"best":    png.BestCompression,
}

// Encode implements Codec.
func (StdCodec) Encode(b *Buffer, format string, opts EncodeOptions) ([]byte, error) {
	format = canonicalFormat(format)
	if format == "exr" {
		return encodeEXR(b, opts)
	}
	img, err := b.Image()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	switch format {
	case "png":
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(pngLevels[opts.Compression]))
	case "jpg":
		quality := 95
		if opts.Compression == "none" {
			quality = 100
		}
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case "bmp":
		err = imaging.Encode(&buf, img, imaging.BMP)
	case "tif":
		ct := tiff.Uncompressed
		if opts.Compression == "deflate" {
			ct = tiff.Deflate
		}
		err = tiff.Encode(&buf, img, &tiff.Options{Compression: ct})
	case "jp2":
		o := jpeg2000.DefaultOptions()
		o.Lossless = opts.Compression != "lossy"
		err = jpeg2000.Encode(&buf, img, o)
	default:
		return nil, fmt.Errorf("no encoder for format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromImage copies img into a buffer. Gray images give one channel, opaque
// images three and everything else four. 16 bit images keep 16 bits.
func FromImage(img image.Image) *Buffer {
	r := img.Bounds()
	w, h := r.Dx(), r.Dy()
	switch img := img.(type) {
	case *image.Gray:
		b := NewBuffer(w, h, 1, U8)
		for y := range h {
			for x := range w {
				b.Pix[y*w+x] = float64(img.GrayAt(r.Min.X+x, r.Min.Y+y).Y)
			}
		}
		return b
	case *image.Gray16:
		b := NewBuffer(w, h, 1, U16)
		for y := range h {
			for x := range w {
				b.Pix[y*w+x] = float64(img.Gray16At(r.Min.X+x, r.Min.Y+y).Y)
			}
		}
		return b
	}

	repr := U8
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64:
		repr = U16
	}
	b := NewBuffer(w, h, 4, repr)
	opaque := true
	for y := range h {
		for x := range w {
			var px [4]float64
			if repr == U16 {
				c := color.NRGBA64Model.Convert(img.At(r.Min.X+x, r.Min.Y+y)).(color.NRGBA64)
				px = [4]float64{float64(c.R), float64(c.G), float64(c.B), float64(c.A)}
			} else {
				c := color.NRGBAModel.Convert(img.At(r.Min.X+x, r.Min.Y+y)).(color.NRGBA)
				px = [4]float64{float64(c.R), float64(c.G), float64(c.B), float64(c.A)}
			}
			opaque = opaque && px[3] == repr.Max()
			copy(b.Pix[b.offset(x, y):], px[:])
		}
	}
	if opaque {
		return b.extract(0, 3)
	}
	return b
}

// Image copies an integer buffer into the matching image type.
func (b *Buffer) Image() (image.Image, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	if b.Repr != U8 && b.Repr != U16 {
		return nil, fmt.Errorf("%w: %s samples need a float format", ErrUnsupportedConversion, b.Repr)
	}
	mode, err := ModeOf(b.Channels)
	if err != nil {
		return nil, err
	}
	r := image.Rect(0, 0, b.Width, b.Height)
	wide := b.Repr == U16

	if mode == Grey {
		if wide {
			img := image.NewGray16(r)
			for i, v := range b.Pix {
				img.SetGray16(i%b.Width, i/b.Width, color.Gray16{Y: uint16(v)})
			}
			return img, nil
		}
		img := image.NewGray(r)
		for i, v := range b.Pix {
			img.Pix[i] = uint8(v)
		}
		return img, nil
	}

	// Every other mode is widened to four samples per pixel.
	px := func(x, y int) (r, g, bl, a float64) {
		i := b.offset(x, y)
		switch mode {
		case GreyAlpha:
			return b.Pix[i], b.Pix[i], b.Pix[i], b.Pix[i+1]
		case RGB:
			return b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Repr.Max()
		}
		return b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3]
	}
	if wide {
		img := image.NewNRGBA64(r)
		for y := range b.Height {
			for x := range b.Width {
				cr, cg, cb, ca := px(x, y)
				img.SetNRGBA64(x, y, color.NRGBA64{R: uint16(cr), G: uint16(cg), B: uint16(cb), A: uint16(ca)})
			}
		}
		return img, nil
	}
	img := image.NewNRGBA(r)
	for y := range b.Height {
		for x := range b.Width {
			cr, cg, cb, ca := px(x, y)
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(cr), G: uint8(cg), B: uint8(cb), A: uint8(ca)})
		}
	}
	return img, nil
}

var errNoPixels = errors.New("image has no pixels")
