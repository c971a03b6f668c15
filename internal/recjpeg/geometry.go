package recjpeg

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Geometry is the subset of ImageMagick's -resize syntax understood by the
// native converter: "50%", "50%x25%", "1000x1000", "1000x", "x800", with an
// optional trailing flag "!" (ignore aspect ratio), ">" (only shrink) or
// "<" (only enlarge).
type Geometry struct {
	Width        int
	Height       int
	Percent      bool
	XPct         float64
	YPct         float64
	IgnoreAspect bool
	OnlyShrink   bool
	OnlyEnlarge  bool
}

// ParseGeometry parses a resize geometry string.
func ParseGeometry(spec string) (Geometry, error) {
	var g Geometry
	s := strings.TrimSpace(spec)
	if s == "" {
		return g, fmt.Errorf("empty resize geometry")
	}

	switch s[len(s)-1] {
	case '!':
		g.IgnoreAspect = true
		s = s[:len(s)-1]
	case '>':
		g.OnlyShrink = true
		s = s[:len(s)-1]
	case '<':
		g.OnlyEnlarge = true
		s = s[:len(s)-1]
	}

	if strings.HasSuffix(s, "%") {
		g.Percent = true
		s = strings.TrimSuffix(s, "%")
		x, y, hasY := strings.Cut(s, "x")
		x = strings.TrimSuffix(x, "%")
		xp, err := strconv.ParseFloat(x, 64)
		if err != nil || xp <= 0 {
			return Geometry{}, fmt.Errorf("invalid resize percentage %q", spec)
		}
		g.XPct, g.YPct = xp, xp
		if hasY {
			yp, err := strconv.ParseFloat(y, 64)
			if err != nil || yp <= 0 {
				return Geometry{}, fmt.Errorf("invalid resize percentage %q", spec)
			}
			g.YPct = yp
		}
		return g, nil
	}

	w, h, hasX := strings.Cut(s, "x")
	if !hasX {
		h = ""
	}
	var err error
	if w != "" {
		if g.Width, err = strconv.Atoi(w); err != nil || g.Width <= 0 {
			return Geometry{}, fmt.Errorf("invalid resize width in %q", spec)
		}
	}
	if h != "" {
		if g.Height, err = strconv.Atoi(h); err != nil || g.Height <= 0 {
			return Geometry{}, fmt.Errorf("invalid resize height in %q", spec)
		}
	}
	if g.Width == 0 && g.Height == 0 {
		return Geometry{}, fmt.Errorf("invalid resize geometry %q", spec)
	}
	return g, nil
}

// Apply returns the target dimensions for an image of size w x h.
func (g Geometry) Apply(w, h int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}

	var nw, nh int
	switch {
	case g.Percent:
		nw = roundDim(float64(w) * g.XPct / 100)
		nh = roundDim(float64(h) * g.YPct / 100)
	case g.IgnoreAspect && g.Width > 0 && g.Height > 0:
		nw, nh = g.Width, g.Height
	default:
		scale := math.Inf(1)
		if g.Width > 0 {
			scale = float64(g.Width) / float64(w)
		}
		if g.Height > 0 {
			scale = math.Min(scale, float64(g.Height)/float64(h))
		}
		nw = roundDim(float64(w) * scale)
		nh = roundDim(float64(h) * scale)
	}

	grows := nw > w || nh > h
	if (g.OnlyShrink && grows) || (g.OnlyEnlarge && !grows) {
		return w, h
	}
	return nw, nh
}

func roundDim(v float64) int {
	return max(1, int(math.Round(v)))
}
