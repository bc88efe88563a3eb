package reachability

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultProbeInterval = 2 * time.Second
	DefaultProbeTimeout  = time.Second
)

// Prober periodically dials a TCP address in the background and caches
// whether the dial succeeded. Reachable never blocks.
type Prober struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)

	up     atomic.Bool
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProber creates a Prober for addr (host:port). Zero durations select the defaults.
func NewProber(addr string, interval, timeout time.Duration, log *zap.Logger) *Prober {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &net.Dialer{}
	return &Prober{
		addr:     addr,
		interval: interval,
		timeout:  timeout,
		log:      log,
		dial:     d.DialContext,
	}
}

// Start runs the first probe synchronously, then keeps probing until ctx is
// cancelled or Stop is called. Calling Start twice is a no-op.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.probe(ctx)

	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop halts background probing and waits for the probe goroutine to exit.
func (p *Prober) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// Reachable implements Checker.
func (p *Prober) Reachable() bool {
	return p.up.Load()
}

func (p *Prober) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", p.addr)
	up := err == nil
	if up {
		conn.Close()
	}

	if p.up.Swap(up) != up {
		p.log.Debug("reachability changed",
			zap.String("addr", p.addr),
			zap.Bool("reachable", up),
			zap.Error(err),
		)
	}
}
