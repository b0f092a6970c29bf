package assembly

import (
	"math"
	"strings"
)

type layoutKind int

const (
	layoutNone layoutKind = iota
	layoutOriginal
	layoutStandard
)

// LayoutPolicy decides page size and image placement when a page is built
// from a raster image. The zero value means "no policy" and is only valid for
// PDF-to-PDF copying.
type LayoutPolicy struct {
	kind          layoutKind
	width, height float64
}

// OriginalSize makes each page exactly the image's pixel size.
func OriginalSize() LayoutPolicy { return LayoutPolicy{kind: layoutOriginal} }

// StandardPage fits each image inside a fixed W×H page (points), centered,
// preserving aspect ratio.
func StandardPage(width, height float64) LayoutPolicy {
	return LayoutPolicy{kind: layoutStandard, width: width, height: height}
}

// Page presets in points.
var (
	A4     = StandardPage(595, 842)
	Letter = StandardPage(612, 792)
	Legal  = StandardPage(612, 1008)
)

// IsZero reports whether p is "no policy".
func (p LayoutPolicy) IsZero() bool { return p.kind == layoutNone }

// Landscape returns the policy with the longer side horizontal. It has no
// effect on OriginalSize.
func (p LayoutPolicy) Landscape() LayoutPolicy {
	if p.kind == layoutStandard && p.width < p.height {
		p.width, p.height = p.height, p.width
	}
	return p
}

func (p LayoutPolicy) String() string {
	switch p.kind {
	case layoutOriginal:
		return "original"
	case layoutStandard:
		return "standard"
	}
	return "none"
}

func (p LayoutPolicy) valid() bool {
	switch p.kind {
	case layoutOriginal:
		return true
	case layoutStandard:
		return p.width > 0 && p.height > 0 && !math.IsInf(p.width, 0) && !math.IsInf(p.height, 0)
	}
	return false
}

// Placement is where an image lands on its page, in points with the origin at
// the top-left corner.
type Placement struct {
	PageWidth, PageHeight float64
	X, Y                  float64
	Width, Height         float64
}

// Place computes the page and drawn image rectangle for a w×h pixel image.
func (p LayoutPolicy) Place(w, h float64) Placement {
	if p.kind != layoutStandard {
		return Placement{PageWidth: w, PageHeight: h, Width: w, Height: h}
	}
	scale := math.Min(p.width/w, p.height/h)
	dw, dh := w*scale, h*scale
	return Placement{
		PageWidth:  p.width,
		PageHeight: p.height,
		X:          (p.width - dw) / 2,
		Y:          (p.height - dh) / 2,
		Width:      dw,
		Height:     dh,
	}
}

// ParseLayout maps a layout name (a4, letter, legal, fit) and an orientation
// (portrait, landscape) onto a policy. An empty name means a4 portrait.
func ParseLayout(name, orientation string) (LayoutPolicy, error) {
	var p LayoutPolicy
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "a4":
		p = A4
	case "letter":
		p = Letter
	case "legal":
		p = Legal
	case "fit", "original":
		p = OriginalSize()
	default:
		return LayoutPolicy{}, invalid("layout", "unknown layout %q", name)
	}
	switch strings.ToLower(strings.TrimSpace(orientation)) {
	case "", "portrait":
	case "landscape":
		p = p.Landscape()
	default:
		return LayoutPolicy{}, invalid("orientation", "unknown orientation %q", orientation)
	}
	return p, nil
}
