package upscale

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
)

// maxPatchDivisions caps the patch search at 50 x 50 patches.
const maxPatchDivisions = 50

// TilingBudget bounds the work handed to a single operator call.
type TilingBudget struct {
	Name string
	// MaxPixels is the largest post-upscale pixel count of one call.
	MaxPixels int
	// PadFraction sizes the overlap between neighbouring patches relative to
	// the shorter image side.
	PadFraction float64
}

var budgetClasses = []TilingBudget{
	{Name: "small", MaxPixels: 512 * 512, PadFraction: 0.03},
	{Name: "medium", MaxPixels: 1024 * 1024, PadFraction: 0.03},
	{Name: "large", MaxPixels: 2048 * 2048, PadFraction: 0.03},
	{Name: "extra-large", MaxPixels: 4096 * 4096, PadFraction: 0.03},
}

// DefaultBudgetClass is used when no tiling budget class is configured.
const DefaultBudgetClass = "large"

// BudgetClass returns the tiling budget registered under name.
func BudgetClass(name string) (TilingBudget, error) {
	name = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
	for _, b := range budgetClasses {
		if b.Name == name {
			return b, nil
		}
	}
	return TilingBudget{}, fmt.Errorf("%w: unknown tiling budget class %q", ErrInvalidConfiguration, name)
}

// fits reports whether a width x height buffer scaled by factor can be
// handed to the operator in one call.
func (b TilingBudget) fits(width, height int, factor float64) bool {
	return float64(width)*float64(height)*factor*factor <= float64(b.MaxPixels)
}

// Padding returns the overlap for an image whose shorter side is minDim,
// rounded up to an even number.
func (b TilingBudget) Padding(minDim int) int {
	pad := int(math.Floor(b.PadFraction * float64(minDim) / 2))
	if pad%2 != 0 {
		pad++
	}
	return pad
}

// PatchSize searches for the smallest number of divisions n of the shorter
// side such that one padded patch, once upscaled, fits the budget. The
// result is rounded up to an even number.
func (b TilingBudget) PatchSize(minDim int, factor float64) (int, error) {
	if minDim < 1 {
		return 0, fmt.Errorf("invalid dimension %d", minDim)
	}
	pad := float64(2 * b.Padding(minDim))
	for n := 1; n <= maxPatchDivisions; n++ {
		side := (float64(minDim)/float64(n) + pad) * factor
		if side*side <= float64(b.MaxPixels) {
			size := int(math.Ceil(float64(minDim) / float64(n)))
			if size%2 != 0 {
				size++
			}
			return size, nil
		}
	}
	return 0, fmt.Errorf(
		"%w: no patch of a %dpx side fits %d pixels within %d divisions; lower the scale or use the cpu device",
		ErrResourceExhausted, minDim, b.MaxPixels, maxPatchDivisions,
	)
}

// TilePlan is the patch geometry for one buffer.
type TilePlan struct {
	PatchSize int
	Padding   int
}

// Plan computes the tile plan for a width x height buffer.
func (b TilingBudget) Plan(width, height int, factor float64) (TilePlan, error) {
	minDim := min(width, height)
	size, err := b.PatchSize(minDim, factor)
	if err != nil {
		return TilePlan{}, err
	}
	return TilePlan{PatchSize: size, Padding: b.Padding(minDim)}, nil
}

// Patch is one square tile of a padded buffer.
type Patch struct {
	Row, Col int
	Pixels   *Buffer
}

// extendEdges grows b to width x height by repeating its last column and
// row.
func extendEdges(b *Buffer, width, height int) *Buffer {
	if b.Width == width && b.Height == height {
		return b
	}
	dst := NewBuffer(width, height, b.Channels, b.Repr)
	for y := range height {
		sy := min(y, b.Height-1)
		for x := range width {
			sx := min(x, b.Width-1)
			copy(dst.Pix[dst.offset(x, y):dst.offset(x, y)+b.Channels], b.Pix[b.offset(sx, sy):])
		}
	}
	return dst
}

// mirror maps i into [0, n) by reflecting about the first and last index
// without repeating them.
func mirror(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// reflectPad surrounds b with pad pixels mirrored from its interior.
func reflectPad(b *Buffer, pad int) *Buffer {
	if pad == 0 {
		return b
	}
	dst := NewBuffer(b.Width+2*pad, b.Height+2*pad, b.Channels, b.Repr)
	for y := range dst.Height {
		sy := mirror(y-pad, b.Height)
		for x := range dst.Width {
			sx := mirror(x-pad, b.Width)
			copy(dst.Pix[dst.offset(x, y):dst.offset(x, y)+b.Channels], b.Pix[b.offset(sx, sy):])
		}
	}
	return dst
}

// SplitPatches cuts b into overlapping square patches of side
// patchSize+2*padding. b is first extended to a multiple of patchSize on
// each axis, then reflect padded. Patches are returned in row-major order
// together with the size of the padded buffer.
func SplitPatches(b *Buffer, patchSize, padding int) ([]Patch, image.Point, error) {
	if err := b.validate(); err != nil {
		return nil, image.Point{}, err
	}
	if patchSize < 1 || padding < 0 {
		return nil, image.Point{}, fmt.Errorf("invalid patch geometry: size %d, padding %d", patchSize, padding)
	}
	width := b.Width + (patchSize-b.Width%patchSize)%patchSize
	height := b.Height + (patchSize-b.Height%patchSize)%patchSize
	padded := reflectPad(extendEdges(b, width, height), padding)

	side := patchSize + 2*padding
	rows, cols := height/patchSize, width/patchSize
	patches := make([]Patch, 0, rows*cols)
	for r := range rows {
		for c := range cols {
			patches = append(patches, Patch{
				Row:    r,
				Col:    c,
				Pixels: padded.crop(c*patchSize, r*patchSize, side, side),
			})
		}
	}
	return patches, padded.Size(), nil
}

// StitchPatches reverses SplitPatches. The padding is stripped from every
// patch, the interiors are laid out in row-major order and the result is
// cropped to target. For upscaled patches, padded, target and padding must
// already be scaled.
func StitchPatches(patches []Patch, padded, target image.Point, padding int) (*Buffer, error) {
	if len(patches) == 0 {
		return nil, errors.New("no patches to stitch")
	}
	first := patches[0].Pixels
	inner := first.Width - 2*padding
	if inner < 1 || first.Height != first.Width {
		return nil, fmt.Errorf("invalid patch %dx%d for padding %d", first.Width, first.Height, padding)
	}
	cols := (padded.X - 2*padding) / inner
	rows := (padded.Y - 2*padding) / inner
	if rows*cols != len(patches) {
		return nil, fmt.Errorf("got %d patches for a %dx%d grid", len(patches), cols, rows)
	}
	width, height := cols*inner, rows*inner
	if target.X > width || target.Y > height {
		return nil, fmt.Errorf("target %v exceeds stitched size %v", target, image.Pt(width, height))
	}

	out := NewBuffer(width, height, first.Channels, first.Repr)
	for i, p := range patches {
		row, col := i/cols, i%cols
		if p.Row != row || p.Col != col {
			return nil, fmt.Errorf("patch %d is at (%d, %d), want (%d, %d)", i, p.Row, p.Col, row, col)
		}
		px := p.Pixels
		if px.Width != first.Width || px.Height != first.Height || px.Channels != first.Channels {
			return nil, fmt.Errorf("patch %d is %dx%dx%d, want %dx%dx%d",
				i, px.Width, px.Height, px.Channels, first.Width, first.Height, first.Channels)
		}
		out.paste(px.crop(padding, padding, inner, inner), col*inner, row*inner)
	}
	if target.X == width && target.Y == height {
		return out, nil
	}
	return out.crop(0, 0, target.X, target.Y), nil
}
