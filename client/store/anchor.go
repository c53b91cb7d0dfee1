package store

// Viewport is the scrollable container showing the history.
type Viewport interface {
	ScrollHeight() float64
	ScrollTop() float64
	SetScrollTop(top float64)
}

// PrependAnchored runs apply, which is expected to insert content above the visible area,
// and shifts the scroll offset by the growth of the content so what the user looks at stays in place.
func PrependAnchored(v Viewport, apply func() error) error {
	before := v.ScrollHeight()
	if err := apply(); err != nil {
		return err
	}
	if delta := v.ScrollHeight() - before; delta != 0 {
		v.SetScrollTop(v.ScrollTop() + delta)
	}
	return nil
}
