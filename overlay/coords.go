package overlay

// Rect is an axis-aligned rectangle in page-relative pixels.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// PointRect returns the degenerate rectangle for a tap at (x, y). Zero-size,
// anchored on the tap point; the visual layer may center an indicator on it.
func PointRect(x, y float64) Rect {
	return Rect{X: x, Y: y}
}

// BoundingRect returns the min/max bounding box of a drag's start and current
// coordinates.
func BoundingRect(startX, startY, curX, curY float64) Rect {
	x0, x1 := startX, curX
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	y0, y1 := startY, curY
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// ClampPage converts a 1-based page number to a zero-based index, clamped to
// the known page count. A non-positive count yields 0.
func ClampPage(oneBased, pageCount int) int {
	idx := oneBased - 1
	if idx < 0 {
		idx = 0
	}
	if pageCount > 0 && idx > pageCount-1 {
		idx = pageCount - 1
	}
	return idx
}
