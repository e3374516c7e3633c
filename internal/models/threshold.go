package models

// Threshold bounds a metric. Nil bounds are not evaluated. The zero value is enabled;
// set Disabled to keep a threshold registered without evaluating it.
type Threshold struct {
	Min      *float64
	Max      *float64
	Critical *CriticalBound
	Disabled bool
}

// Enabled reports whether the threshold participates in detection.
func (t Threshold) Enabled() bool {
	return !t.Disabled
}

// Clone returns a deep copy so callers cannot alias stored bounds.
func (t Threshold) Clone() Threshold {
	out := Threshold{
		Min:      cloneFloat(t.Min),
		Max:      cloneFloat(t.Max),
		Disabled: t.Disabled,
	}
	if t.Critical != nil {
		out.Critical = &CriticalBound{Min: cloneFloat(t.Critical.Min), Max: cloneFloat(t.Critical.Max)}
	}
	return out
}

// CriticalBound is evaluated before the plain min/max bounds. A bare numeric critical value
// is represented as a lower bound (Min only).
type CriticalBound struct {
	Min *float64
	Max *float64
}

// Float returns a pointer to v, for building thresholds inline.
func Float(v float64) *float64 {
	return &v
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
