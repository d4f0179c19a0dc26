package upscale

import (
	"errors"
	"fmt"
	"strings"
)

// ChannelMode is the set and order of channels an image carries.
type ChannelMode int

// Channel modes.
const (
	Grey ChannelMode = iota
	GreyAlpha
	RGB
	RGBA
)

var modeNames = map[ChannelMode]string{
	Grey:      "grey",
	GreyAlpha: "greyalpha",
	RGB:       "rgb",
	RGBA:      "rgba",
}

var modeAliases = map[string]ChannelMode{
	"l":         Grey,
	"la":        GreyAlpha,
	"gray":      Grey,
	"grayalpha": GreyAlpha,
}

func (m ChannelMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("ChannelMode(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m ChannelMode) MarshalText() ([]byte, error) {
	name, ok := modeNames[m]
	if !ok {
		return nil, fmt.Errorf("unknown channel mode %d", int(m))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ChannelMode) UnmarshalText(text []byte) error {
	s := strings.ToLower(string(text))
	for mode, name := range modeNames {
		if s == name {
			*m = mode
			return nil
		}
	}
	if mode, ok := modeAliases[s]; ok {
		*m = mode
		return nil
	}
	return fmt.Errorf("unknown channel mode %q", text)
}

// Channels returns the number of channels in the mode.
func (m ChannelMode) Channels() int { return int(m) + 1 }

// HasAlpha reports whether the mode carries an alpha channel.
func (m ChannelMode) HasAlpha() bool { return m == GreyAlpha || m == RGBA }

// IsGrey reports whether the color part of the mode is a single channel.
func (m ChannelMode) IsGrey() bool { return m == Grey || m == GreyAlpha }

func (m ChannelMode) colorChannels() int {
	if m.IsGrey() {
		return 1
	}
	return 3
}

// ModeOf returns the channel mode of a buffer with n channels.
func ModeOf(n int) (ChannelMode, error) {
	if n < 1 || n > 4 {
		return 0, fmt.Errorf("%w: %d channels", ErrUnsupportedConversion, n)
	}
	return ChannelMode(n - 1), nil
}

// Fixed weights used to fold three channels into one.
const (
	lumaR = 0.2989
	lumaG = 0.5870
	lumaB = 0.1140
)

// luma folds a three channel buffer into a single channel. Applied to the
// operator output for alpha, this is an approximation, not an inverse of the
// replication that produced the three channel input.
func luma(b *Buffer) *Buffer {
	dst := NewBuffer(b.Width, b.Height, 1, b.Repr)
	for i, j := 0, 0; i < len(dst.Pix); i, j = i+1, j+b.Channels {
		dst.Pix[i] = b.Repr.quantize(lumaR*b.Pix[j] + lumaG*b.Pix[j+1] + lumaB*b.Pix[j+2])
	}
	return dst
}

// Route records how a channel buffer reaches its output size.
type Route int

// Routes.
const (
	RouteUnset Route = iota
	// RouteOperator: the buffer is upscaled by the operator.
	RouteOperator
	// RouteAnalytic: the buffer is constant and filled at the output size.
	RouteAnalytic
	// RouteDirect: no operator is involved (scale factors 1 and 0.5).
	RouteDirect
)

func (r Route) String() string {
	switch r {
	case RouteOperator:
		return "operator"
	case RouteAnalytic:
		return "analytic"
	case RouteDirect:
		return "direct"
	}
	return "unset"
}

// ChannelSet holds an image split into a 3-channel color buffer and an
// optional alpha buffer.
type ChannelSet struct {
	Color *Buffer
	Alpha *Buffer

	// Source is the channel mode of the image the set was split from.
	Source ChannelMode

	ColorRoute Route
	AlphaRoute Route

	colorConstant, alphaConstant bool
}

// Split separates img into color and alpha. Alpha is kept only when both the
// source and mode carry one. Grey color is replicated to three channels.
func Split(img *Buffer, mode ChannelMode) (*ChannelSet, error) {
	if err := img.validate(); err != nil {
		return nil, err
	}
	source, err := ModeOf(img.Channels)
	if err != nil {
		return nil, err
	}
	set := &ChannelSet{Source: source}
	if source.IsGrey() {
		set.Color = img.replicate(3)
	} else {
		set.Color = img.extract(0, 3)
	}
	if source.HasAlpha() && mode.HasAlpha() {
		set.Alpha = img.extract(img.Channels-1, 1)
	}

	_, set.colorConstant = set.Color.constant()
	if set.Alpha != nil {
		_, set.alphaConstant = set.Alpha.constant()
	}
	return set, nil
}

// Degenerate reports which buffers hold a single repeated value.
func (s *ChannelSet) Degenerate() (color, alpha bool) {
	return s.colorConstant, s.Alpha != nil && s.alphaConstant
}

// route assigns the routes for the set. Routes are assigned once.
func (s *ChannelSet) route(factor ScaleFactor) error {
	if s.ColorRoute != RouteUnset || s.AlphaRoute != RouteUnset {
		return errors.New("channel routes already assigned")
	}
	pick := func(constant bool) Route {
		switch {
		case !factor.usesOperator():
			return RouteDirect
		case constant:
			return RouteAnalytic
		}
		return RouteOperator
	}
	s.ColorRoute = pick(s.colorConstant)
	if s.Alpha != nil {
		s.AlphaRoute = pick(s.alphaConstant)
	}
	return nil
}

// fillAnalytic replaces every buffer routed analytically with a buffer of
// the upscaled size holding its value. The buffers may have been converted
// since Split, so the value is read back from them.
func (s *ChannelSet) fillAnalytic(factor ScaleFactor) {
	grow := func(b *Buffer) *Buffer {
		return filled(factor.apply(b.Width), factor.apply(b.Height), b.Channels, b.Repr, b.Pix[0])
	}
	if s.ColorRoute == RouteAnalytic {
		s.Color = grow(s.Color)
	}
	if s.AlphaRoute == RouteAnalytic {
		s.Alpha = grow(s.Alpha)
	}
}

// Recombine joins color and alpha into one buffer with channels last. Grey
// sources are folded back to one color channel.
func Recombine(s *ChannelSet, factor ScaleFactor) (*Buffer, error) {
	if s.Color == nil {
		return nil, errors.New("channel set has no color buffer")
	}
	if factor < 1 {
		return s.recombineDownscaled()
	}
	return s.recombineUpscaled()
}

func (s *ChannelSet) recombineUpscaled() (*Buffer, error) {
	color := s.Color
	if s.Source.IsGrey() {
		if s.ColorRoute == RouteOperator {
			color = luma(color)
		} else {
			color = color.extract(0, 1)
		}
	}
	if s.Alpha == nil {
		return color, nil
	}
	alpha := s.Alpha
	if alpha.Channels == 3 {
		alpha = luma(alpha)
	}
	return interleave(color, alpha)
}

// recombineDownscaled never sees operator output, so every buffer still
// holds replicated or original channels.
func (s *ChannelSet) recombineDownscaled() (*Buffer, error) {
	color := s.Color
	if s.Source.IsGrey() {
		color = color.extract(0, 1)
	}
	if s.Alpha == nil {
		return color, nil
	}
	return interleave(color, s.Alpha)
}

// release drops the set's buffers.
func (s *ChannelSet) release() {
	s.Color, s.Alpha = nil, nil
}
