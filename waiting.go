package loom

// subject pairs a Waiting with the value passed back to a waitFor callback
// when that particular Waiting fires.
type subject struct {
	tag     interface{}
	waiting *Waiting
}

// waitFor registers, for each subject, a continuation that re-invokes cb
// when that subject's Waiting resolves.
//
// cb is invoked at most once with isLast == true: remaining-count
// bookkeeping guarantees exactly one such call, on the final firing, unless
// an earlier call already returned true (meaning "we're done, stop calling
// me for the other subjects"). This is the only primitive used to compose
// dependency completions — both the top-level build() barrier and check()'s
// per-group dependency wait are expressed in terms of it.
//
// waitFor must be called while holding the database lock, and the
// registered continuations run under the lock as part of whichever
// runWaiting call fires them.
func waitFor(subjects []subject, cb func(isLast bool, tag interface{}) bool) {
	remaining := len(subjects)
	done := false

	for _, s := range subjects {
		s := s

		afterWaiting(s.waiting, func() {
			if done {
				return
			}

			remaining--
			isLast := remaining == 0

			if cb(isLast, s.tag) {
				done = true
			}
		})
	}
}
