package upscale

// ImageRecord is the working state of one image. It exclusively owns its
// buffers and is released before the next image starts.
type ImageRecord struct {
	Index  int
	Source Source
	Target string
	Format string

	Pixels     *Buffer
	Mode       ChannelMode
	SourceRepr Repr
	TargetRepr Repr

	InputColorSpace  ColorSpace
	OutputColorSpace ColorSpace
	Gamma            float64

	Scale       ScaleFactor
	Compression string
	MipLevels   int

	channels *ChannelSet
	noisy    *Buffer

	// colorTiled and alphaTiled record which buffers went through Tiled.
	colorTiled, alphaTiled bool
}

// inferred reports whether any buffer was routed through the operator.
func (r *ImageRecord) inferred() bool {
	return r.channels != nil &&
		(r.channels.ColorRoute == RouteOperator || r.channels.AlphaRoute == RouteOperator)
}

func (r *ImageRecord) release() {
	if r.channels != nil {
		r.channels.release()
	}
	r.Pixels, r.noisy, r.channels = nil, nil, nil
}
