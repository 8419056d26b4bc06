package dsp

// DelayBuffer is a circular buffer read back with cubic Hermite
// interpolation.
type DelayBuffer struct {
	buf   []float64
	write int
}

// NewDelayBuffer holds capacity samples, at least 4.
func NewDelayBuffer(capacity int) *DelayBuffer {
	if capacity < 4 {
		capacity = 4
	}
	return &DelayBuffer{buf: make([]float64, capacity)}
}

func (d *DelayBuffer) Cap() int { return len(d.buf) }

// MaxDelay is the longest delay Read can serve.
func (d *DelayBuffer) MaxDelay() float64 { return float64(len(d.buf) - 3) }

func (d *DelayBuffer) Write(x float64) {
	d.buf[d.write] = x
	d.write++
	if d.write == len(d.buf) {
		d.write = 0
	}
}

func (d *DelayBuffer) at(i int) float64 {
	n := len(d.buf)
	i %= n
	if i < 0 {
		i += n
	}
	return d.buf[i]
}

// Read returns the signal delay samples ago. A delay of 0 is the most
// recent write. delay is clamped to [0, MaxDelay].
func (d *DelayBuffer) Read(delay float64) float64 {
	if delay < 0 || delay != delay {
		delay = 0
	}
	if limit := d.MaxDelay(); delay > limit {
		delay = limit
	}
	dInt := int(delay)
	frac := delay - float64(dInt)
	newest := d.write - 1 - dInt

	x1 := d.at(newest)
	x2 := d.at(newest - 1)
	x3 := d.at(newest - 2)
	// there is nothing newer than the last write; extrapolate it
	x0 := 2*x1 - x2
	if dInt > 0 {
		x0 = d.at(newest + 1)
	}

	c0 := x1
	c1 := 0.5 * (x2 - x0)
	c2 := x0 - 2.5*x1 + 2*x2 - 0.5*x3
	c3 := 0.5*(x3-x0) + 1.5*(x1-x2)
	return ((c3*frac+c2)*frac+c1)*frac + c0
}

func (d *DelayBuffer) Clear() {
	for i := range d.buf {
		d.buf[i] = 0
	}
	d.write = 0
}
