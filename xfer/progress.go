package xfer

// minNotifyWindow is the floor used by timeToNotify so that small
// transfers do not emit an event every few bytes: the window must exceed
// at least 64 KiB, however small 1% of the total is (§4.4).
const minNotifyWindow = 64 * 1024

// timeToNotify reports whether the byte delta since the last emission
// (window) has crossed the notification threshold: max(total/100, 64 KiB).
func timeToNotify(window, total uint64) bool {
	threshold := total / 100
	if threshold < minNotifyWindow {
		threshold = minNotifyWindow
	}
	return window > threshold
}

// progressTracker accumulates bytes moved for one transfer and decides
// when to emit a TransferProgress event, resetting its window on each
// emission (§4.4).
type progressTracker struct {
	done   uint64
	total  uint64
	window uint64
}

func newProgressTracker(total uint64) *progressTracker {
	return &progressTracker{total: total}
}

// Add records n additional bytes moved and reports whether a notification
// is due.
func (p *progressTracker) Add(n int) (done, total uint64, notify bool) {
	p.done += uint64(n)
	p.window += uint64(n)

	if timeToNotify(p.window, p.total) {
		p.window = 0
		return p.done, p.total, true
	}
	return p.done, p.total, false
}
