package upscale

import (
	"math"
	"testing"
)

func TestSRGBRoundTrip(t *testing.T) {
	for i := range 10001 {
		p := float64(i) / 10000
		if got := EncodeSRGB(DecodeSRGB(p)); math.Abs(got-p) > 1e-5 {
			t.Fatalf("encode(decode(%v)) = %v", p, got)
		}
		if got := DecodeSRGB(EncodeSRGB(p)); math.Abs(got-p) > 1e-5 {
			t.Fatalf("decode(encode(%v)) = %v", p, got)
		}
	}
}

func TestSRGBKnownValues(t *testing.T) {
	for _, tc := range []struct {
		linear, encoded float64
	}{
		{0, 0},
		{1, 1},
		{0.0031308, 0.0031308 * 12.92},
		{0.5, 0.7353569830524495},
	} {
		if got := EncodeSRGB(tc.linear); math.Abs(got-tc.encoded) > 1e-9 {
			t.Errorf("EncodeSRGB(%v) = %v, want %v", tc.linear, got, tc.encoded)
		}
	}
}

func TestGammaOne(t *testing.T) {
	src := gradient(9, 5, 3, U16)
	b := src.Clone()
	gammaForward(b, 1)
	gammaInverse(b, 1)
	compare(t, "gamma 1", b, src)
}

func TestGammaRoundTrip(t *testing.T) {
	src := normalized(9, 5, 3)
	b := src.Clone()
	gammaForward(b, 2.2)
	if b.Pix[10] <= src.Pix[10] {
		t.Errorf("gamma 2.2 forward should brighten, got %v from %v", b.Pix[10], src.Pix[10])
	}
	gammaInverse(b, 2.2)
	for i := range src.Pix {
		if math.Abs(b.Pix[i]-src.Pix[i]) > 1e-5 {
			t.Fatalf("sample %d: %v, want %v", i, b.Pix[i], src.Pix[i])
		}
	}
}

func TestColorSpaceBuffers(t *testing.T) {
	src := normalized(6, 6, 3)
	b := src.Clone()
	encodeColorSpace(b)
	decodeColorSpace(b)
	for i := range src.Pix {
		if math.Abs(b.Pix[i]-src.Pix[i]) > 1e-5 {
			t.Fatalf("sample %d: %v, want %v", i, b.Pix[i], src.Pix[i])
		}
	}
}
