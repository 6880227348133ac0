package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// Critical event types are not dropped on a full buffer while the queue
	// drains within CriticalWait. Replays and reuse alerts belong here.
	Critical     []string
	CriticalWait time.Duration
}

// Dispatcher forwards events to a sink from one goroutine, so sinks never
// see concurrent Emit calls from it. Drops are counted per event type.
type Dispatcher struct {
	cfg      Config
	critical map[string]struct{}
	sink     Sink
	queue    chan Event
	done     chan struct{}
	wg       sync.WaitGroup

	dropped   atomic.Uint64
	dropMu    sync.Mutex
	dropsByEv map[string]uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	critical := make(map[string]struct{}, len(cfg.Critical))
	for _, ev := range cfg.Critical {
		critical[ev] = struct{}{}
	}

	d := &Dispatcher{
		cfg:       cfg,
		critical:  critical,
		sink:      sink,
		queue:     make(chan Event, cfg.BufferSize),
		done:      make(chan struct{}),
		dropsByEv: make(map[string]uint64),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			for {
				select {
				case event := <-d.queue:
					d.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// Emit queues event. With DropIfFull a full buffer drops ordinary events at
// once and holds critical ones for up to CriticalWait. Without it Emit blocks
// until there is room or ctx ends.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case d.queue <- event:
		return
	default:
	}

	if !d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		case <-ctx.Done():
			d.drop(event)
		case <-d.done:
		}
		return
	}

	if _, ok := d.critical[event.EventType]; ok && d.cfg.CriticalWait > 0 {
		timer := time.NewTimer(d.cfg.CriticalWait)
		defer timer.Stop()
		select {
		case d.queue <- event:
			return
		case <-timer.C:
		case <-d.done:
			return
		}
	}
	d.drop(event)
}

func (d *Dispatcher) drop(event Event) {
	d.dropped.Add(1)
	d.dropMu.Lock()
	d.dropsByEv[event.EventType]++
	d.dropMu.Unlock()
}

// Close stops accepting events and drains what is already queued.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType returns a copy of the per-event-type drop counts.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	if d == nil {
		return nil
	}
	d.dropMu.Lock()
	defer d.dropMu.Unlock()
	out := make(map[string]uint64, len(d.dropsByEv))
	for ev, n := range d.dropsByEv {
		out[ev] = n
	}
	return out
}
