package detector

// ring is a bounded append-only buffer of exemplar vectors. Once full, each
// push overwrites the oldest entry. Stored vectors are never modified, so a
// snapshot can share them.
type ring struct {
	buf  [][]float64
	next int
	full bool
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([][]float64, 0, capacity)}
}

func (r *ring) push(v []float64) {
	if !r.full && len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, v)
		if len(r.buf) == cap(r.buf) {
			r.full = true
		}
		return
	}
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
}

func (r *ring) len() int { return len(r.buf) }

func (r *ring) snapshot() [][]float64 {
	out := make([][]float64, len(r.buf))
	copy(out, r.buf)
	return out
}
