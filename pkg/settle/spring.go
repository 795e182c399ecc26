package settle

import "math"

// Spring is a critically damped unit-mass spring. Critical damping reaches
// the target as fast as possible without overshooting in a single axis.
type Spring struct {
	Stiffness float64
}

// Step advances one axis by dt seconds with semi-implicit Euler integration
func (s Spring) Step(x, v, target, dt float64) (float64, float64) {
	k := s.Stiffness
	if k <= 0 {
		return target, 0
	}
	c := 2 * math.Sqrt(k)
	a := -k*(x-target) - c*v
	v += a * dt
	x += v * dt
	return x, v
}
