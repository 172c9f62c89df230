// Package loop runs cell work on a single goroutine.
//
// Cells are not safe for concurrent use. Everything that touches them from
// another goroutine (timers, network handlers, blocking I/O) posts a function
// to a Loop, and the goroutine that calls Run executes those functions one at
// a time:
//
//	l := loop.New()
//	go l.Run(ctx)
//
//	go func() {
//	    user, err := db.FindUser(ctx, id)
//	    l.Post(func() {
//	        if err == nil {
//	            current.Set(user)
//	        }
//	    })
//	}()
//
// Panics in posted functions are recovered and logged, so one bad task does
// not stop the loop.
package loop
