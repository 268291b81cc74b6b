package engine

// FundsAlert is the edge trigger for insufficient-funds notifications.
// Only the transition from sufficient to insufficient fires.
type FundsAlert struct {
	notified bool
}

// Insufficient records an insufficient check and reports whether to notify.
func (f *FundsAlert) Insufficient() bool {
	if f.notified {
		return false
	}
	f.notified = true
	return true
}

// Sufficient records a sufficient check, re-arming the trigger.
func (f *FundsAlert) Sufficient() {
	f.notified = false
}

// Reset re-arms the trigger (operator start).
func (f *FundsAlert) Reset() {
	f.notified = false
}

// Notified reports whether the current insufficiency episode was already announced.
func (f *FundsAlert) Notified() bool {
	return f.notified
}
