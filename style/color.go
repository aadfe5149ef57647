package style

import (
	"fmt"
	"math"
	"strings"
)

// Color is an opaque sRGB color. Zero value is black.
type Color struct {
	R, G, B uint8
}

// ParseHex accepts "#RRGGBB", "RRGGBB" and the short "#RGB" form.
func ParseHex(s string) (Color, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return Color{}, fmt.Errorf("malformed hex color %q", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(strings.ToLower(h), "%02x%02x%02x", &r, &g, &b); err != nil {
		return Color{}, fmt.Errorf("malformed hex color %q: %w", s, err)
	}
	return Color{r, g, b}, nil
}

func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// HexNoHash is what xcolor's HTML model wants.
func (c Color) HexNoHash() string {
	return fmt.Sprintf("%02X%02X%02X", c.R, c.G, c.B)
}

// Luminance computes relative luminance per the sRGB specification, result in
// [0,1].
func (c Color) Luminance() float64 {
	lin := func(v uint8) float64 {
		s := float64(v) / 255.0
		if s <= 0.03928 {
			return s / 12.92
		}
		return math.Pow((s+0.055)/1.055, 2.4)
	}
	return 0.2126*lin(c.R) + 0.7152*lin(c.G) + 0.0722*lin(c.B)
}

// RotateHue shifts hue by deg degrees (any sign), keeping saturation and
// lightness. Wraps around at 0/360.
func (c Color) RotateHue(deg float64) Color {
	h, s, l := c.hsl()
	h = math.Mod(h+deg, 360)
	if h < 0 {
		h += 360
	}
	return fromHSL(h, s, l)
}

// Lighten moves the color toward white by ratio in [0,1]. Ratio 1 is white,
// 0 is the color itself.
func (c Color) Lighten(ratio float64) Color {
	return c.mix(Color{255, 255, 255}, ratio)
}

// Darken moves the color toward black by ratio in [0,1].
func (c Color) Darken(ratio float64) Color {
	return c.mix(Color{0, 0, 0}, ratio)
}

func (c Color) mix(other Color, ratio float64) Color {
	ratio = math.Max(0, math.Min(1, ratio))
	ch := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + (float64(b)-float64(a))*ratio))
	}
	return Color{ch(c.R, other.R), ch(c.G, other.G), ch(c.B, other.B)}
}

func (c Color) hsl() (h, s, l float64) {
	r := float64(c.R) / 255
	g := float64(c.G) / 255
	b := float64(c.B) / 255

	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	l = (max + min) / 2

	if max == min {
		// achromatic
		return 0, 0, l
	}

	d := max - min
	if l > 0.5 {
		s = d / (2 - max - min)
	} else {
		s = d / (max + min)
	}
	switch max {
	case r:
		h = (g - b) / d
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	case b:
		h = (r-g)/d + 4
	}
	return h * 60, s, l
}

func fromHSL(h, s, l float64) Color {
	if s == 0 {
		v := uint8(math.Round(l * 255))
		return Color{v, v, v}
	}

	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q

	hk := h / 360
	ch := func(t float64) uint8 {
		if t < 0 {
			t++
		}
		if t > 1 {
			t--
		}
		var v float64
		switch {
		case t < 1.0/6:
			v = p + (q-p)*6*t
		case t < 1.0/2:
			v = q
		case t < 2.0/3:
			v = p + (q-p)*(2.0/3-t)*6
		default:
			v = p
		}
		return uint8(math.Round(v * 255))
	}
	return Color{ch(hk + 1.0/3), ch(hk), ch(hk - 1.0/3)}
}
