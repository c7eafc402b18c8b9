// Package main wires the reactor binary: cli.App flag parsing, the
// leveled logger, the TCP listener and UDP socket, the timer heap and
// reactor, and the single-threaded event loop — grounded on
// server/main.go's cli.App/myApp.Action/myApp.Run structure.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/denbykov/jkreactor/internal/core"
	"github.com/denbykov/jkreactor/internal/logx"
	"github.com/denbykov/jkreactor/internal/metrics"
	"github.com/denbykov/jkreactor/internal/netio"
	"github.com/denbykov/jkreactor/internal/reactor"
	"github.com/denbykov/jkreactor/internal/session"
	"github.com/denbykov/jkreactor/internal/settings"
)

// maxPollTimeoutMs is the event loop's poll timeout cap, per §4.8.
const maxPollTimeoutMs = 10000

// counterDumpInterval is how often the background counters ticker logs a
// snapshot, independent of the SIGUSR1 on-demand dump.
const counterDumpInterval = 60 * time.Second

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	myApp := cli.NewApp()
	myApp.Name = "jkreactord"
	myApp.Usage = "single-threaded edge-triggered TCP/UDP echo and proxy reactor"
	myApp.Version = VERSION
	myApp.Flags = settings.Flags()
	myApp.Action = run

	if err := myApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	s, err := settings.FromContext(c)
	if err != nil {
		return err
	}

	out := os.Stdout
	colorize := true
	if s.LogFile != "" {
		f, err := os.OpenFile(s.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		log := logx.New(f, s.LogLevel, false)
		return serve(s, log)
	}
	log := logx.New(out, s.LogLevel, colorize)
	return serve(s, log)
}

func serve(s *settings.Settings, log *logx.Logger) error {
	s.Dump(log)

	listenFD, err := netio.Listen(s.Port)
	if err != nil {
		return fmt.Errorf("listen tcp :%d: %w", s.Port, err)
	}
	udpFD, err := netio.ListenUDP(s.Port)
	if err != nil {
		return fmt.Errorf("listen udp :%d: %w", s.Port, err)
	}

	r := reactor.New(log)
	if err := r.Init(); err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer r.Shutdown()

	timers := core.NewTimerHeap(4096)
	r.RegisterTimeHeap(timers)

	counters := &metrics.Counters{}
	r.SetMetrics(counters)
	stopMetrics := make(chan struct{})
	go metrics.RunPeriodicLogger(counters, log, counterDumpInterval, stopMetrics)
	defer close(stopMetrics)

	installSignalHandler(counters, log)

	echoDeps := session.EchoDeps{Reactor: r, Log: log, Metrics: counters}

	listener := core.NewListener(listenFD)
	if s.Proxy {
		proxyDeps := session.ProxyDeps{EchoDeps: echoDeps, RemoteAddr: s.RemoteAddr()}
		listener.Accept.Handler = r.AcceptLoop(listener, session.NewTCPProxyOnAccept(proxyDeps))
	} else {
		listener.Accept.Handler = r.AcceptLoop(listener, session.NewTCPEchoOnAccept(echoDeps))
	}
	if err := r.AddListener(listener); err != nil {
		return fmt.Errorf("add_listener: %w", err)
	}

	udpSock := core.NewUDPSocket(udpFD, timers, session.NewUDPEchoSession(echoDeps))
	if err := r.AddUDPSock(udpSock); err != nil {
		return fmt.Errorf("add_udp_sock: %w", err)
	}

	log.Noticef("jkreactord listening on :%d (proxy=%v)", s.Port, s.Proxy)

	for {
		now := nowMillis()
		timeout := r.NextTimeoutMs(now, maxPollTimeoutMs)
		if err := r.ProcessEvents(timeout); err != nil {
			return fmt.Errorf("process_events: %w", err)
		}
		r.ProcessTimers(nowMillis())
	}
}

// installSignalHandler dumps counters on SIGUSR1, grounded on
// client/signal.go's sigHandler goroutine pattern.
func installSignalHandler(counters *metrics.Counters, log *logx.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	go func() {
		for range ch {
			counters.Dump(log)
		}
	}()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
