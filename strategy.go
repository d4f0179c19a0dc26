package upscale

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Strategy drives the operator over one channel buffer. The only
// implementations are WholeImage and Tiled.
type Strategy interface {
	upscale(ctx context.Context, op Operator, b *Buffer, factor int, p Precision, logger *slog.Logger) (*Buffer, error)
	String() string
}

// WholeImage runs the operator once on the entire buffer.
type WholeImage struct{}

func (WholeImage) String() string { return "whole image" }

func (WholeImage) upscale(ctx context.Context, op Operator, b *Buffer, factor int, p Precision, _ *slog.Logger) (*Buffer, error) {
	return infer(ctx, op, b, factor, p)
}

// Tiled runs the operator once per patch and stitches the results.
type Tiled struct {
	Plan TilePlan
}

func (t Tiled) String() string {
	return fmt.Sprintf("tiled (patch %d, padding %d)", t.Plan.PatchSize, t.Plan.Padding)
}

func (t Tiled) upscale(ctx context.Context, op Operator, b *Buffer, factor int, p Precision, logger *slog.Logger) (*Buffer, error) {
	patches, padded, err := SplitPatches(b, t.Plan.PatchSize, t.Plan.Padding)
	if err != nil {
		return nil, err
	}
	logger.Debug("split into patches", "patches", len(patches), "patch", t.Plan.PatchSize, "padding", t.Plan.Padding)
	upscaled := make([]Patch, len(patches))
	for i, patch := range patches {
		out, err := infer(ctx, op, patch.Pixels, factor, p)
		if err != nil {
			return nil, fmt.Errorf("patch (%d, %d): %w", patch.Row, patch.Col, err)
		}
		upscaled[i] = Patch{Row: patch.Row, Col: patch.Col, Pixels: out}
		patches[i].Pixels = nil
	}
	return StitchPatches(upscaled, padded.Mul(factor), b.Size().Mul(factor), t.Plan.Padding*factor)
}

// planner computes the tile plan for a buffer.
type planner func(budget TilingBudget, width, height int, factor float64) (TilePlan, error)

// SelectStrategy picks WholeImage when a width x height buffer fits the
// budget after scaling, Tiled otherwise. With tiling disabled an oversized
// buffer is an error.
func SelectStrategy(width, height int, factor ScaleFactor, budget TilingBudget, tiling bool) (Strategy, error) {
	return selectStrategy(width, height, factor, budget, tiling, TilingBudget.Plan)
}

func selectStrategy(width, height int, factor ScaleFactor, budget TilingBudget, tiling bool, plan planner) (Strategy, error) {
	if budget.fits(width, height, float64(factor)) {
		return WholeImage{}, nil
	}
	if !tiling {
		return nil, fmt.Errorf(
			"%w: %dx%d at %s exceeds the %s budget of %d pixels; enable tiling, lower the scale or use the cpu device",
			ErrResourceExhausted, width, height, factor, budget.Name, budget.MaxPixels,
		)
	}
	p, err := plan(budget, width, height, float64(factor))
	if err != nil {
		return nil, err
	}
	return Tiled{Plan: p}, nil
}

// infer hands b to the operator at precision p and converts the result back
// to the representation of b.
func infer(ctx context.Context, op Operator, b *Buffer, factor int, p Precision) (*Buffer, error) {
	out, err := op.Infer(ctx, tensorOf(b, p))
	if err != nil {
		if errors.Is(err, ErrResourceExhausted) {
			return nil, fmt.Errorf("%w; enable tiling, lower the scale or use the cpu device", err)
		}
		return nil, err
	}
	if out == nil || out.Width != b.Width*factor || out.Height != b.Height*factor || out.Channels != b.Channels {
		var got string
		if out != nil {
			got = fmt.Sprintf("%dx%dx%d", out.Width, out.Height, out.Channels)
		}
		return nil, fmt.Errorf("operator returned %q for %dx%dx%d input, want %dx%dx%d",
			got, b.Width, b.Height, b.Channels, b.Width*factor, b.Height*factor, b.Channels)
	}
	return out.buffer(b.Repr), nil
}
