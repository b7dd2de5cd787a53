package session

import (
	"context"
	"errors"
)

// watch waits for transport readability and wakes the dispatcher. It never
// reads frames itself. Between wakeups the dispatcher drains everything
// queued, so one pending inbound event is enough.
func (s *Session) watch(ctx context.Context) {
	for {
		readable, err := s.transport.PollReadable(ctx, s.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				s.logger.Debug("readability poll failed", "error", err)
				// Let the dispatcher surface the failure through TryReceive.
				s.post(ctx, event{kind: eventInbound})
			}
			return
		}
		if !readable {
			continue
		}
		if !s.post(ctx, event{kind: eventInbound}) {
			return
		}
	}
}
