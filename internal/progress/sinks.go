package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/eventstore"
)

const eventTypeProgress = "progress"

// StoreSink persists events in the event store and serves them back as history.
type StoreSink struct {
	store eventstore.Store
}

func NewStoreSink(store eventstore.Store) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Name() string { return "eventstore" }

func (s *StoreSink) Write(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	return s.store.Append(ctx, eventstore.Record{
		SessionID: e.SessionID,
		Seq:       e.Seq,
		Type:      eventTypeProgress,
		Timestamp: e.TS,
		Payload:   payload,
		Metadata:  map[string]string{"phase": string(e.Phase)},
	})
}

// Load implements HistoryLoader.
func (s *StoreSink) Load(ctx context.Context, sessionID string) ([]Event, error) {
	records, err := s.store.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(records))
	for _, r := range records {
		if r.Type != eventTypeProgress {
			continue
		}
		var e Event
		if err := json.Unmarshal(r.Payload, &e); err != nil {
			return nil, fmt.Errorf("decode progress event %d: %w", r.Seq, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// Purge deletes the stored history of a session.
func (s *StoreSink) Purge(ctx context.Context, sessionID string) error {
	_, err := s.store.DeleteSession(ctx, sessionID)
	return err
}

// publisher is the subset of *nats.Conn the sink needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink mirrors events to "<prefix>.<session_id>".
type NATSSink struct {
	pub    publisher
	conn   *nats.Conn
	prefix string
}

// NewNATSSink connects to url.
func NewNATSSink(url, prefix string, logger *slog.Logger) (*NATSSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("landingd-progress"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Info("NATS progress sink connected", slog.String("url", url), slog.String("subject_prefix", prefix))
	return &NATSSink{pub: conn, conn: conn, prefix: prefix}, nil
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Subject(sessionID string) string { return s.prefix + "." + sessionID }

func (s *NATSSink) Write(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	return s.pub.Publish(s.Subject(e.SessionID), data)
}

// Close flushes pending messages and closes the connection.
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
