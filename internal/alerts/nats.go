package alerts

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/signalsfoundry/leo-serving-planner/internal/logging"
	"github.com/signalsfoundry/leo-serving-planner/model"
)

// NATSSink publishes alerts as JSON to per-level subjects so consumers can
// subscribe to alerts.critical without wading through info noise.
type NATSSink struct {
	nc  *nats.Conn
	log logging.Logger
}

// NewNATSSink connects to the NATS server at url. The connection retries
// in the background; a down broker at startup is not fatal.
func NewNATSSink(url string, log logging.Logger) (*NATSSink, error) {
	if log == nil {
		log = logging.Noop()
	}
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn(context.Background(), "nats disconnected", logging.Err(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info(context.Background(), "nats reconnected",
				logging.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %q: %w", url, err)
	}
	return &NATSSink{nc: nc, log: log}, nil
}

func (s *NATSSink) Send(_ context.Context, a model.CoverageAlert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert %s: %w", a.ID, err)
	}
	if err := s.nc.Publish(SubjectFor(a.Level), data); err != nil {
		return fmt.Errorf("publish alert %s: %w", a.ID, err)
	}
	return nil
}

// Close drains the connection so queued alerts flush before shutdown.
func (s *NATSSink) Close() error {
	return s.nc.Drain()
}

// SubjectFor maps an alert level to its NATS subject.
func SubjectFor(level model.AlertLevel) string {
	return "alerts." + string(level)
}
