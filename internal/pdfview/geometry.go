// Package pdfview holds the PDF viewer math (highlight boxes, scroll
// targets, zoom and paging) and client-side upload validation.
package pdfview

import (
	"errors"
	"math"
)

// ErrShortCoords is returned when fewer than four coordinates are given.
var ErrShortCoords = errors.New("coordinates need at least 4 values")

// Rect is a region in PDF points with a top-left origin.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// RectFromCoords builds a Rect from [x0, y0, x1, y1]. Extra values are ignored.
func RectFromCoords(coords []float64) (Rect, error) {
	if len(coords) < 4 {
		return Rect{}, ErrShortCoords
	}
	return Rect{X0: coords[0], Y0: coords[1], X1: coords[2], Y1: coords[3]}, nil
}

// Width returns the rect's width in points.
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// Height returns the rect's height in points.
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Box is an overlay in rendered pixels.
type Box struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Highlight scales r into an overlay box at the given render scale.
func Highlight(r Rect, scale float64) Box {
	return Box{
		Top:    r.Y0 * scale,
		Left:   r.X0 * scale,
		Width:  r.Width() * scale,
		Height: r.Height() * scale,
	}
}

// Viewport is the visible area of the page container in pixels.
type Viewport struct {
	Width, Height float64
}

// Scroll is a scroll offset in pixels.
type Scroll struct {
	Top  float64 `json:"top"`
	Left float64 `json:"left"`
}

// ScrollTo returns the offsets that centre r in the viewport, clamped at 0.
func ScrollTo(r Rect, scale float64, vp Viewport) Scroll {
	centerX := (r.X0 + r.X1) / 2 * scale
	centerY := (r.Y0 + r.Y1) / 2 * scale
	return Scroll{
		Top:  math.Max(0, centerY-vp.Height/2),
		Left: math.Max(0, centerX-vp.Width/2),
	}
}

// Zoom limits.
const (
	DefaultScale = 1.5
	ZoomStep     = 0.2
	MinScale     = 0.5
	MaxScale     = 3.0
)

// Zoom tracks the viewer's render scale.
type Zoom struct {
	scale float64
}

// NewZoom starts at DefaultScale.
func NewZoom() *Zoom {
	return &Zoom{scale: DefaultScale}
}

// Scale returns the current scale.
func (z *Zoom) Scale() float64 { return z.scale }

// Set clamps s into [MinScale, MaxScale] and applies it.
func (z *Zoom) Set(s float64) float64 {
	z.scale = math.Min(MaxScale, math.Max(MinScale, s))
	// Keep repeated steps from drifting (1.5 + 0.2 + 0.2 ...).
	z.scale = math.Round(z.scale*100) / 100
	return z.scale
}

// ZoomIn increases the scale by one step.
func (z *Zoom) ZoomIn() float64 { return z.Set(z.scale + ZoomStep) }

// ZoomOut decreases the scale by one step.
func (z *Zoom) ZoomOut() float64 { return z.Set(z.scale - ZoomStep) }

// Reset returns to DefaultScale.
func (z *Zoom) Reset() float64 { return z.Set(DefaultScale) }

// Pager tracks the current page of a document.
type Pager struct {
	current  int
	numPages int
}

// NewPager starts on page 1 of a numPages document.
func NewPager(numPages int) *Pager {
	if numPages < 1 {
		numPages = 1
	}
	return &Pager{current: 1, numPages: numPages}
}

// Current returns the 1-based current page.
func (p *Pager) Current() int { return p.current }

// NumPages returns the page count.
func (p *Pager) NumPages() int { return p.numPages }

// Next moves forward one page, stopping at the last.
func (p *Pager) Next() int { return p.Go(p.current + 1) }

// Prev moves back one page, stopping at the first.
func (p *Pager) Prev() int { return p.Go(p.current - 1) }

// Go moves to page n clamped into [1, NumPages].
func (p *Pager) Go(n int) int {
	p.current = max(1, min(n, p.numPages))
	return p.current
}

// Navigate moves to target and reports whether the page changed, in which
// case a pending highlight must wait for the new page to render before
// scrolling.
func (p *Pager) Navigate(target int) (page int, changed bool) {
	before := p.current
	page = p.Go(target)
	return page, page != before
}
