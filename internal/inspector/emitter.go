package inspector

// emit encodes an event and hands it to the notification handler. It runs
// on the loop goroutine with no lock held, so the handler may send commands.
// A panicking handler is logged and otherwise ignored.
func (s *session) emit(method string, params any) {
	message, err := encode(event{Method: method, Params: params})
	if err != nil {
		s.log.Error("encode event", "method", method, "error", err)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("notification handler panicked", "method", method, "panic", r)
		}
	}()
	s.handler(message)
}
