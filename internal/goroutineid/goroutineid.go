// Package goroutineid reports the id of the calling goroutine.
//
// The inspector uses it to tell whether a call into a debug session was made
// from the session's execution goroutine (for example from inside a
// notification handler) or from a controller goroutine.
package goroutineid

import (
	"bytes"
	"runtime"
	"sync"
)

var stackBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 64)
		return &b
	},
}

var goroutinePrefix = []byte("goroutine ")

// Get returns the id of the current goroutine, or 0 if it cannot be parsed.
func Get() int64 {
	bp := stackBufPool.Get().(*[]byte)
	defer stackBufPool.Put(bp)
	// only the header line is needed, and runtime.Stack truncates to the buffer
	n := runtime.Stack(*bp, false)
	return parse((*bp)[:n])
}

// parse extracts the id from a "goroutine N [state]:" header without
// allocating.
func parse(stack []byte) int64 {
	i := bytes.Index(stack, goroutinePrefix)
	if i < 0 {
		return 0
	}
	var id int64
	digits := 0
	for _, b := range stack[i+len(goroutinePrefix):] {
		if b < '0' || b > '9' {
			break
		}
		id = id*10 + int64(b-'0')
		digits++
	}
	if digits == 0 {
		return 0
	}
	return id
}
