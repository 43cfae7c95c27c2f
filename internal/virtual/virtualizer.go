// Package virtual computes which rows of a long list intersect a scrolling
// viewport. It never renders anything itself: callers ask for the current
// window and materialise only those rows.
package virtual

import "sort"

// Item is one row of the current window.
type Item struct {
	Index int
	Start int
	Size  int
	End   int
}

// Align controls where ScrollToIndex places the target row.
type Align int

const (
	AlignAuto Align = iota
	AlignStart
	AlignCenter
	AlignEnd
)

// Options configure a Virtualizer. Offsets are in lines of the page that
// hosts the list; ScrollMargin is the distance from the page top to the
// first row.
type Options struct {
	Count        int
	EstimateSize func(index int) int
	Overscan     int
	ScrollMargin int
	Gap          int
}

// Virtualizer keeps cumulative row offsets and the page scroll position.
type Virtualizer struct {
	opts         Options
	measurements []Item
	viewport     int
	scroll       int
}

func New(opts Options) *Virtualizer {
	v := &Virtualizer{}
	v.SetOptions(opts)
	return v
}

// SetOptions replaces the options. Offsets are recomputed when the count,
// margin or gap change; an estimate change alone requires Measure.
func (v *Virtualizer) SetOptions(opts Options) {
	if opts.Count < 0 {
		opts.Count = 0
	}
	if opts.Overscan < 0 {
		opts.Overscan = 0
	}
	if opts.Gap < 0 {
		opts.Gap = 0
	}
	if opts.ScrollMargin < 0 {
		opts.ScrollMargin = 0
	}

	layoutChanged := v.measurements == nil ||
		opts.Count != v.opts.Count ||
		opts.ScrollMargin != v.opts.ScrollMargin ||
		opts.Gap != v.opts.Gap
	v.opts = opts
	if layoutChanged {
		v.Measure()
	}
}

func (v *Virtualizer) Options() Options {
	return v.opts
}

// Measure rebuilds every row offset from the current size estimate.
func (v *Virtualizer) Measure() {
	n := v.opts.Count
	ms := make([]Item, n)
	start := v.opts.ScrollMargin
	for i := 0; i < n; i++ {
		size := v.estimate(i)
		ms[i] = Item{Index: i, Start: start, Size: size, End: start + size}
		start += size + v.opts.Gap
	}
	v.measurements = ms
	v.scroll = v.clamp(v.scroll)
}

func (v *Virtualizer) estimate(i int) int {
	if v.opts.EstimateSize == nil {
		return 1
	}
	size := v.opts.EstimateSize(i)
	if size < 1 {
		return 1
	}
	return size
}

// TotalSize is the height of the list region, excluding the scroll margin.
func (v *Virtualizer) TotalSize() int {
	n := len(v.measurements)
	if n == 0 {
		return 0
	}
	return v.measurements[n-1].End - v.opts.ScrollMargin
}

// SetViewport sets the number of visible lines.
func (v *Virtualizer) SetViewport(size int) {
	if size < 0 {
		size = 0
	}
	v.viewport = size
	v.scroll = v.clamp(v.scroll)
}

func (v *Virtualizer) Viewport() int {
	return v.viewport
}

func (v *Virtualizer) ScrollOffset() int {
	return v.scroll
}

// MaxScroll is the largest page offset that still fills the viewport.
func (v *Virtualizer) MaxScroll() int {
	limit := v.opts.ScrollMargin + v.TotalSize() - v.viewport
	if limit < 0 {
		return 0
	}
	return limit
}

func (v *Virtualizer) clamp(offset int) int {
	if offset < 0 {
		return 0
	}
	if limit := v.MaxScroll(); offset > limit {
		return limit
	}
	return offset
}

func (v *Virtualizer) ScrollTo(offset int) {
	v.scroll = v.clamp(offset)
}

func (v *Virtualizer) ScrollBy(delta int) {
	v.scroll = v.clamp(v.scroll + delta)
}

// ScrollToIndex moves the page so that row index is in view.
func (v *Virtualizer) ScrollToIndex(index int, align Align) {
	if index < 0 || index >= len(v.measurements) {
		return
	}
	it := v.measurements[index]
	switch align {
	case AlignStart:
		v.ScrollTo(it.Start)
	case AlignEnd:
		v.ScrollTo(it.End - v.viewport)
	case AlignCenter:
		v.ScrollTo(it.Start - (v.viewport-it.Size)/2)
	case AlignAuto:
		switch {
		case it.Start < v.scroll:
			v.ScrollTo(it.Start)
		case it.End > v.scroll+v.viewport:
			if it.Size > v.viewport {
				v.ScrollTo(it.Start)
			} else {
				v.ScrollTo(it.End - v.viewport)
			}
		}
	}
}

// Range returns the half-open interval of rows that intersect the viewport,
// without overscan. When only a gap or the scroll margin is in view it
// returns the nearest row. ok is false only for an empty list or viewport.
func (v *Virtualizer) Range() (start, end int, ok bool) {
	n := len(v.measurements)
	if n == 0 || v.viewport <= 0 {
		return 0, 0, false
	}
	top := v.scroll
	bottom := v.scroll + v.viewport

	start = sort.Search(n, func(i int) bool { return v.measurements[i].End > top })
	end = start + sort.Search(n-start, func(i int) bool { return v.measurements[start+i].Start >= bottom })
	if start >= end {
		start = min(start, n-1)
		end = start + 1
	}
	return start, end, true
}

// VirtualItems returns the visible rows expanded by the overscan count.
func (v *Virtualizer) VirtualItems() []Item {
	start, end, ok := v.Range()
	if !ok {
		return nil
	}
	start -= v.opts.Overscan
	if start < 0 {
		start = 0
	}
	end += v.opts.Overscan
	if end > len(v.measurements) {
		end = len(v.measurements)
	}
	out := make([]Item, end-start)
	copy(out, v.measurements[start:end])
	return out
}

// Item returns the measurement for index.
func (v *Virtualizer) Item(index int) (Item, bool) {
	if index < 0 || index >= len(v.measurements) {
		return Item{}, false
	}
	return v.measurements[index], true
}
