package scheduler

// IntervalController implements the adaptive capture cadence. The
// interval grows while consecutive frames stay similar and shrinks as
// soon as the scene changes faster than the setpoint allows.
type IntervalController struct {
	cur      float64
	min, max float64
	grow     float64
	shrink   float64
	setpoint float64
}

// NewIntervalController starts at the minimum interval so a fresh
// camera samples densely until similarity feedback says otherwise.
func NewIntervalController(min, max, grow, shrink, setpoint float64) *IntervalController {
	return &IntervalController{
		cur:      min,
		min:      min,
		max:      max,
		grow:     grow,
		shrink:   shrink,
		setpoint: setpoint,
	}
}

// Current returns the interval in seconds.
func (c *IntervalController) Current() float64 { return c.cur }

// Observe feeds one SSIM score and returns the updated interval.
// Failures never reach this method; only a scored pair of frames moves
// the interval.
func (c *IntervalController) Observe(ssim float64) float64 {
	if ssim >= c.setpoint {
		c.cur *= c.grow
	} else {
		c.cur *= c.shrink
	}
	c.cur = c.clampCur()
	return c.cur
}

// SetBounds updates limits after a reload, re-clamping the current
// value so it stays legal without losing adaptation history.
func (c *IntervalController) SetBounds(min, max, grow, shrink, setpoint float64) {
	c.min, c.max = min, max
	c.grow, c.shrink = grow, shrink
	c.setpoint = setpoint
	c.cur = c.clampCur()
}

func (c *IntervalController) clampCur() float64 {
	if c.cur < c.min {
		return c.min
	}
	if c.cur > c.max {
		return c.max
	}
	return c.cur
}
