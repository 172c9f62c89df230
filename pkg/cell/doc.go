// Package cell provides the reactive propagation core shared by every widget.
//
// Widgets bind their visible state (text, style, enablement, data) to cells
// instead of polling. A cell holds a value, detects changes and notifies
// subscribers synchronously on two channels.
//
// # Core Types
//
// Cell[T] is a mutable observable value:
//
//	count := cell.New(0)
//	count.Connect(func(v int) { fmt.Println("count:", v) })
//	count.Set(5)    // prints "count: 5"
//	count.Set(5)    // equal value, nothing fires
//	count.Update(func(n int) int { return n + 1 })
//
// Derived[T] is always a pure function of its sources. Sources may mix cells
// and constants positionally:
//
//	a, b := cell.New(2), cell.New(3)
//	sum := cell.Derive2(a, b, func(x, y int) int { return x + y })
//	sum.Get()       // 5
//	a.Set(10)
//	sum.Get()       // 13
//
// Pulse is a payload-less event:
//
//	refresh := cell.NewPulse()
//	refresh.OnTrig(reload)
//	refresh.Trig()
//
// # Channels
//
// Every cell has a Changed channel, whose callbacks receive the new value, and
// an Activated channel, whose callbacks receive the new and previous values.
// Within one channel callbacks run in registration order. Dispatch works on a
// snapshot of the subscriber list, so callbacks may connect or disconnect on
// the same cell while it is notifying.
//
// # Hosts
//
// A connection made WithHost(h) lives no longer than h. Owner is the standard
// host; disposing it removes every connection it was bound to.
//
//	panel := cell.NewOwner(nil)
//	title.Connect(render, cell.WithHost(panel))
//	panel.Dispose()  // render is never called again
//
// # Threading
//
// The core is single-threaded and takes no locks. Code running on other
// goroutines must hand work to the loop package, which applies it on the
// thread that owns the cells.
package cell
