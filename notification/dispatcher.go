package notification

import (
	"context"
	"log"
	"sync"
	"time"
)

type Config struct {
	Workers        int           `env:"NOTIFICATION_WORKERS" envDefault:"4"`
	QueueSize      int           `env:"NOTIFICATION_QUEUE_SIZE" envDefault:"1000"`
	EnqueueTimeout time.Duration `env:"NOTIFICATION_ENQUEUE_TIMEOUT" envDefault:"1s"`
	SendTimeout    time.Duration `env:"NOTIFICATION_SEND_TIMEOUT" envDefault:"10s"`
}

// Dispatcher fans events out to its sinks from a pool of workers. Delivery is
// best effort: a full queue drops the event and sink errors are only logged.
// Events already queued when the context ends are still delivered.
type Dispatcher struct {
	cfg    Config
	sinks  []Sink
	events chan Event
	wg     sync.WaitGroup
}

func NewDispatcher(cfg Config, sinks ...Sink) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Dispatcher{
		cfg:    cfg,
		sinks:  sinks,
		events: make(chan Event, cfg.QueueSize),
	}
}

// Start runs the workers until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.worker(ctx)
		}()
	}
}

// Wait blocks until all workers exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) Notify(event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	select {
	case d.events <- event:
	case <-time.After(d.cfg.EnqueueTimeout):
		log.Printf("Notification queue full, dropping %s event for request %s\n", event.Kind, event.RequestID)
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case event := <-d.events:
			if ctx.Err() != nil {
				// Stopped while events were queued; finish them on a live context.
				d.deliver(context.WithoutCancel(ctx), event)
				continue
			}
			d.deliver(ctx, event)
		case <-ctx.Done():
			log.Println("Finishing notification worker due to context cancellation")
			d.drain(context.WithoutCancel(ctx))
			return
		}
	}
}

// drain delivers the events still queued when the workers were stopped.
func (d *Dispatcher) drain(ctx context.Context) {
	delivered := 0
	for {
		select {
		case event := <-d.events:
			d.deliver(ctx, event)
			delivered++
		default:
			if delivered > 0 {
				log.Printf("Delivered %d queued notifications on shutdown\n", delivered)
			}
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	for _, sink := range d.sinks {
		sendCtx := ctx
		var cancel context.CancelFunc
		if d.cfg.SendTimeout > 0 {
			sendCtx, cancel = context.WithTimeout(ctx, d.cfg.SendTimeout)
		}
		if err := sink.Send(sendCtx, event); err != nil {
			log.Printf("Error sending %s notification to %s via %T: %v\n", event.Kind, event.RecipientID, sink, err)
		}
		if cancel != nil {
			cancel()
		}
	}
}
