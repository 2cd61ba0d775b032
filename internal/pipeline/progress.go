package pipeline

import (
	"sync/atomic"
	"time"

	"myperf/internal/util"
)

type progress struct {
	total       int
	done        atomic.Int64
	failed      atomic.Int64
	annotations atomic.Int64
}

func (p *progress) record(failed bool) {
	p.done.Add(1)
	if failed {
		p.failed.Add(1)
	}
}

// start logs progress every interval until the returned stop is called.
func (p *progress) start(interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		var lastDone int64
		for {
			select {
			case <-ticker.C:
				cur := p.done.Load()
				util.Infof("progress queries=%d/%d (+%d) failed=%d annotations=%d",
					cur, p.total, cur-lastDone, p.failed.Load(), p.annotations.Load())
				lastDone = cur
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}
