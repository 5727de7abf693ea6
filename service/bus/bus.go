// Package bus is the in-process event spine: socket inbound frames and the
// notification service publish domain events here, and the gateway relay
// subscribes to forward them onto live connections. NATS carries events only;
// all socket state stays in this process.
package bus

import (
	"encoding/json"
	"time"

	"CityOps/tools/errs"

	"github.com/nats-io/nats.go"
)

type Handler func(subject string, data []byte)

type Bus interface {
	Publish(subject string, v any) error
	// Subscribe registers h for a subject and returns an unsubscribe func.
	Subscribe(subject string, h Handler) (func(), error)
	Close()
}

type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
}

type natsBus struct {
	nc *nats.Conn
}

// Connect dials NATS with unlimited reconnects; the bus must outlive broker
// restarts the same way the sockets outlive client reconnects.
func Connect(cfg Config) (Bus, error) {
	if cfg.URL == "" {
		return nil, errs.New("nats url missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errs.Wrap(err, "nats connect")
	}
	return &natsBus{nc: nc}, nil
}

func (b *natsBus) Publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errs.Wrap(err, "marshal event")
	}
	return errs.Wrap(b.nc.Publish(subject, data), "publish "+subject)
}

func (b *natsBus) Subscribe(subject string, h Handler) (func(), error) {
	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		h(m.Subject, m.Data)
	})
	if err != nil {
		return nil, errs.Wrap(err, "subscribe "+subject)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

func (b *natsBus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}
