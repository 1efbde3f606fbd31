package aggregator

import (
	"fmt"
	"time"
)

// Point is one plotted sample.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	BPM       uint16    `json:"bpm"`
}

// Modal is the most frequently observed bucket of the session.
type Modal struct {
	Floor   int     `json:"floor"`
	Count   uint64  `json:"count"`
	Percent float64 `json:"percent"`
}

// Label renders the bucket as "<floor>-<floor+9>".
func (m Modal) Label() string {
	return fmt.Sprintf("%d-%d", m.Floor, m.Floor+BucketWidth-1)
}

func (m Modal) String() string {
	return fmt.Sprintf("%s (%.1f%%)", m.Label(), m.Percent)
}

// View is a snapshot of the aggregation state for presentation.
type View struct {
	Series []Point `json:"series"`

	Min uint16 `json:"min"`
	Max uint16 `json:"max"`

	// AxisLow and AxisHigh are the padded vertical plot bounds.
	AxisLow  float64 `json:"axis_low"`
	AxisHigh float64 `json:"axis_high"`

	// XStart and XEnd bound the horizontal axis; XEnd is the newest sample.
	XStart time.Time `json:"x_start"`
	XEnd   time.Time `json:"x_end"`

	Modal *Modal `json:"modal,omitempty"`
	Total uint64 `json:"total"`
}

// Empty reports whether the view holds no samples.
func (v View) Empty() bool {
	return len(v.Series) == 0
}

// Latest returns the newest plotted point.
func (v View) Latest() (Point, bool) {
	if v.Empty() {
		return Point{}, false
	}
	return v.Series[len(v.Series)-1], true
}
