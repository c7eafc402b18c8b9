package reactor

import (
	"github.com/denbykov/jkreactor/internal/core"
	"github.com/denbykov/jkreactor/internal/netio"
)

// AcceptLoop builds the listener's accept handler: drain accept(2) until
// EAGAIN/EWOULDBLOCK, handing each new fd to onNew, grounded directly on
// original_source's listener.c accept_handler loop.
func (r *Reactor) AcceptLoop(l *core.Listener, onNew func(fd int)) core.EventHandler {
	return func(ev *core.Event) {
		for {
			fd, ok, err := netio.Accept(l.FD)
			if err != nil {
				r.log.Warnf("accept_handler: accept: %v", err)
				continue
			}
			if !ok {
				return
			}
			onNew(fd)
		}
	}
}
