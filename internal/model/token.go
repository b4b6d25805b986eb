package model

// PositionedToken is a fragment of page text with its geometry. Coordinates
// are in the page's native units with the origin at the top-left.
type PositionedToken struct {
	Text   string  `json:"text"`
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BoundingBox is a highlight rectangle on a page.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsZero reports whether the box has no area, which is how a failed evidence
// lookup is represented.
func (b BoundingBox) IsZero() bool {
	return b.Width == 0 && b.Height == 0
}
