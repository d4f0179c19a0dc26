package upscale

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfiguration is returned before any image is touched when the
	// export configuration cannot be honored.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrUnsupportedConversion reports a representation or channel mode pair
	// that has no conversion. It aborts the batch.
	ErrUnsupportedConversion = errors.New("unsupported conversion")
	// ErrResourceExhausted reports work that does not fit the tiling budget or
	// the operator's device.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrCorruptSource reports source bytes that cannot be decoded.
	ErrCorruptSource = errors.New("corrupt source")
)

// Stage identifies the pipeline step an image failed in.
type Stage int

// Pipeline stages in execution order.
const (
	StageRead Stage = iota
	StageDecode
	StageSplit
	StageTone
	StageUpscale
	StageRecombine
	StageConvert
	StageExport
	StageNoise
	StageEncode
	StageWrite
)

var stageNames = [...]string{
	StageRead:      "read",
	StageDecode:    "decode",
	StageSplit:     "split",
	StageTone:      "tone",
	StageUpscale:   "upscale",
	StageRecombine: "recombine",
	StageConvert:   "convert",
	StageExport:    "export",
	StageNoise:     "noise",
	StageEncode:    "encode",
	StageWrite:     "write",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// ImageError is the outcome of an image that failed in one stage.
type ImageError struct {
	Index  int
	Source string
	Stage  Stage
	Err    error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Stage, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }

// fatal reports whether the failure must stop the batch.
func (e *ImageError) fatal() bool {
	return errors.Is(e.Err, ErrUnsupportedConversion) || errors.Is(e.Err, ErrInvalidConfiguration)
}

// PartialBatchFailure aggregates every per-image failure of a batch.
type PartialBatchFailure struct {
	Total    int
	Failures []*ImageError
}

func (e *PartialBatchFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d images failed", len(e.Failures), e.Total)
	for _, f := range e.Failures {
		b.WriteString("\n\t")
		b.WriteString(f.Error())
	}
	return b.String()
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *PartialBatchFailure) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}
