package fetch

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// StallError reports a request that made no progress for the client's
// timeout, either while waiting for the response or between two reads of
// its body. It is a timeout for the retry policy.
type StallError struct {
	URL   string
	Phase string
	Limit time.Duration
}

func (e *StallError) Error() string {
	return fmt.Sprintf("%s: no progress %s for %s", e.URL, e.Phase, e.Limit)
}

func (e *StallError) Timeout() bool   { return true }
func (e *StallError) Temporary() bool { return true }

// watchdog cancels a request once it has been armed for longer than limit.
type watchdog struct {
	limit time.Duration
	timer *time.Timer
	fired atomic.Bool
}

func newWatchdog(limit time.Duration, cancel context.CancelFunc) *watchdog {
	w := &watchdog{limit: limit}
	w.timer = time.AfterFunc(limit, func() {
		w.fired.Store(true)
		cancel()
	})
	return w
}

func (w *watchdog) arm()    { w.timer.Reset(w.limit) }
func (w *watchdog) disarm() { w.timer.Stop() }

// idleBody bounds every read of a response body by the watchdog, so a slow
// transfer that keeps delivering data is never cut off.
type idleBody struct {
	io.ReadCloser
	dog    *watchdog
	cancel context.CancelFunc
	url    string
}

func (b *idleBody) Read(p []byte) (int, error) {
	b.dog.arm()
	n, err := b.ReadCloser.Read(p)
	b.dog.disarm()
	if err != nil && err != io.EOF && b.dog.fired.Load() {
		err = &StallError{URL: b.url, Phase: "reading body", Limit: b.dog.limit}
	}
	return n, err
}

func (b *idleBody) Close() error {
	b.dog.disarm()
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
