package server

import "strconv"

// strategy decides where accepted connections run. It is fixed at startup.
type strategy struct {
	async bool
	// slots bounds concurrent connections; nil means unbounded.
	slots chan struct{}
}

func newStrategy(multiThreaded bool, maxConns int) strategy {
	st := strategy{async: multiThreaded}
	if multiThreaded && maxConns > 0 {
		st.slots = make(chan struct{}, maxConns)
	}
	return st
}

// reserve blocks until another connection may be accepted. It returns false
// once done is closed.
func (st strategy) reserve(done <-chan struct{}) bool {
	if st.slots == nil {
		select {
		case <-done:
			return false
		default:
			return true
		}
	}
	select {
	case st.slots <- struct{}{}:
		return true
	case <-done:
		return false
	}
}

// release returns a slot taken by reserve without running a connection.
func (st strategy) release() {
	if st.slots != nil {
		<-st.slots
	}
}

// run serves one connection. In single-threaded mode it blocks the caller.
func (st strategy) run(fn func()) {
	if !st.async {
		fn()
		return
	}
	go func() {
		defer st.release()
		fn()
	}()
}

func (st strategy) String() string {
	switch {
	case !st.async:
		return "single"
	case st.slots == nil:
		return "multi"
	default:
		return "multi(max=" + strconv.Itoa(cap(st.slots)) + ")"
	}
}
