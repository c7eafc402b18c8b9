// Package metrics is a periodic counters collector for the reactor
// process, grounded on std/snmp.go's ticker-driven dump pattern — here
// logged through logx instead of written to a CSV file, and also dumped
// on demand by a SIGUSR1 handler (see Dump), per the supplemented
// "counter dump" feature.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/denbykov/jkreactor/internal/logx"
)

// Counters tracks reactor-wide activity counters. All fields are
// accessed via atomic ops so session handlers on the single reactor
// goroutine and a SIGUSR1 handler on another goroutine can both touch
// them without a lock.
type Counters struct {
	SessionsStarted  int64
	SessionsStopped  int64
	BytesRelayed     int64
	TimerExpirations int64
	WriteQueueDrops  int64
}

func (c *Counters) SessionStarted()       { atomic.AddInt64(&c.SessionsStarted, 1) }
func (c *Counters) SessionStopped()       { atomic.AddInt64(&c.SessionsStopped, 1) }
func (c *Counters) BytesRelayedAdd(n int) { atomic.AddInt64(&c.BytesRelayed, int64(n)) }
func (c *Counters) TimerExpired()         { atomic.AddInt64(&c.TimerExpirations, 1) }
func (c *Counters) WriteQueueDropped()    { atomic.AddInt64(&c.WriteQueueDrops, 1) }

func (c *Counters) snapshot() Counters {
	return Counters{
		SessionsStarted:  atomic.LoadInt64(&c.SessionsStarted),
		SessionsStopped:  atomic.LoadInt64(&c.SessionsStopped),
		BytesRelayed:     atomic.LoadInt64(&c.BytesRelayed),
		TimerExpirations: atomic.LoadInt64(&c.TimerExpirations),
		WriteQueueDrops:  atomic.LoadInt64(&c.WriteQueueDrops),
	}
}

// Dump logs a snapshot of every counter at NOTICE.
func (c *Counters) Dump(log *logx.Logger) {
	s := c.snapshot()
	log.Noticef("counters: sessions_started=%d sessions_stopped=%d bytes_relayed=%d "+
		"timer_expirations=%d write_queue_drops=%d",
		s.SessionsStarted, s.SessionsStopped, s.BytesRelayed, s.TimerExpirations, s.WriteQueueDrops)
}

// RunPeriodicLogger dumps counters to log every interval until stop is
// closed, mirroring SnmpLogger's ticker loop.
func RunPeriodicLogger(c *Counters, log *logx.Logger, interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Dump(log)
		case <-stop:
			return
		}
	}
}
