package views

import "github.com/vyrodovalexey/point-admin/internal/slice"

type watchState int

const (
	watchIdle watchState = iota
	watchArmed
	watchFired
)

// successWatch is a one-shot trigger on the outcome of a write. Arming
// records the write's op and the store's write counter; the watch fires for
// a success reported after a write dispatched since arming, or when the
// write itself settles without error.
type successWatch struct {
	state    watchState
	op       slice.Op
	baseline uint64
}

func (w *successWatch) arm(st slice.State, op slice.Op) {
	w.state = watchArmed
	w.op = op
	w.baseline = st.Writes
}

func (w *successWatch) disarm() {
	w.state = watchIdle
}

// observe reports true exactly once, on the first state showing a
// successful write dispatched after arming.
func (w *successWatch) observe(st slice.State) bool {
	if w.state != watchArmed {
		return false
	}
	if st.Writes <= w.baseline || st.Updating || !st.UpdateSuccess {
		return false
	}
	w.state = watchFired
	return true
}

// settle resolves an armed watch with the outcome of its own write, which
// later list refreshes cannot mask. settled reports whether msg was that
// write; ok whether it succeeded. A failed write leaves the watch idle.
func (w *successWatch) settle(msg settledMsg) (settled, ok bool) {
	if w.state != watchArmed || msg.op != w.op {
		return false, false
	}
	if msg.err != nil {
		w.state = watchIdle
		return true, false
	}
	w.state = watchFired
	return true, true
}

func (w *successWatch) armed() bool {
	return w.state == watchArmed
}

// failed reports whether a write dispatched since arming was rejected.
func (w *successWatch) failed(st slice.State) bool {
	return w.state == watchArmed && st.Writes > w.baseline &&
		!st.Updating && !st.UpdateSuccess && st.ErrorMessage != ""
}
