package livestore

import "github.com/shopspring/decimal"

const DefaultCapacity = 10

// rolling is a fixed-length window of three parallel series. Every push drops the
// head and appends at the tail, so the slices never change length.
type rolling struct {
	ratios     []*float64
	velocities []float64
	stamps     []string
}

func newRolling(capacity int) *rolling {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &rolling{
		ratios:     make([]*float64, capacity),
		velocities: make([]float64, capacity),
		stamps:     make([]string, capacity),
	}
}

func (r *rolling) push(ratio *float64, velocity float64, stamp string) {
	n := len(r.ratios)

	copy(r.ratios, r.ratios[1:])
	r.ratios[n-1] = ratio

	copy(r.velocities, r.velocities[1:])
	r.velocities[n-1] = velocity

	copy(r.stamps, r.stamps[1:])
	r.stamps[n-1] = stamp
}

func (r *rolling) snapshot() History {
	h := History{
		HedgeRatios: make([]*float64, len(r.ratios)),
		Velocities:  make([]float64, len(r.velocities)),
		Timestamps:  make([]string, len(r.stamps)),
	}
	for i, p := range r.ratios {
		h.HedgeRatios[i] = cloneFloat(p)
	}
	copy(h.Velocities, r.velocities)
	copy(h.Timestamps, r.stamps)
	return h
}

// velocity is cur - prev computed in decimal so the difference carries no more
// error than its inputs. No previous spread means zero velocity.
func velocity(prev, cur *float64) float64 {
	if cur == nil || prev == nil {
		return 0
	}
	d, _ := decimal.NewFromFloat(*cur).Sub(decimal.NewFromFloat(*prev)).Float64()
	return d
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
