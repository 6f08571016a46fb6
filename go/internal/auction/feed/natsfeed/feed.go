// Package natsfeed follows room events on the JetStream stream filled by the relay.
package natsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/liveauction/go/internal/auction/events"
	"github.com/mcdev12/liveauction/go/internal/auction/room"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Config holds configuration for the JetStream room feed
type Config struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	Buffer        int // Messages buffered per subscription
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		StreamName:    events.DefaultStreamName,
		SubjectPrefix: events.DefaultSubjectPrefix,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		Buffer:        100,
	}
}

// Feed implements room.Feed with one ordered consumer per subscription.
// Connection changes of the shared NATS connection are fanned out to every subscriber.
type Feed struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config Config

	mu     sync.Mutex
	nextID int
	subs   map[int]chan bool
}

var _ room.Feed = (*Feed)(nil)

func New(config Config) (*Feed, error) {
	f := &Feed{
		config: config,
		subs:   make(map[int]chan bool),
	}

	opts := []nats.Option{
		nats.Name("auction-room-feed"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
			f.broadcast(false)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
			f.broadcast(true)
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	f.nc = nc
	f.js = js
	return f, nil
}

// Subscribe starts an ordered consumer on the room's subject that delivers only
// messages published from now on. Both channels are closed once ctx is done.
func (f *Feed) Subscribe(ctx context.Context, roomName string) (<-chan events.Event, <-chan bool, error) {
	stream, err := f.js.Stream(ctx, f.config.StreamName)
	if err != nil {
		return nil, nil, fmt.Errorf("get stream: %w", err)
	}

	subject := events.Subject(f.config.SubjectPrefix, roomName)
	consumer, err := stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create ordered consumer: %w", err)
	}

	messageCh := make(chan jetstream.Msg, f.config.Buffer)
	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start consumer: %w", err)
	}

	evs := make(chan events.Event, f.config.Buffer)
	conn := make(chan bool, 4)
	id := f.addSub(conn)
	if f.nc.IsConnected() {
		conn <- true
	}

	log.Info().
		Str("stream", f.config.StreamName).
		Str("subject", subject).
		Msg("following room events on JetStream")

	go func() {
		defer close(evs)
		defer f.removeSub(id)
		defer consumeCtx.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info().Str("room", roomName).Msg("room feed shutting down")
				return
			case msg := <-messageCh:
				ev, match, err := processMessage(msg.Data(), roomName)
				if err != nil {
					log.Error().
						Err(err).
						Str("subject", msg.Subject()).
						Msg("failed to process message")
					continue
				}
				if !match {
					continue
				}
				select {
				case evs <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return evs, conn, nil
}

// Close drops the NATS connection.
func (f *Feed) Close() error {
	if f.nc != nil {
		f.nc.Close()
	}
	return nil
}

func (f *Feed) addSub(ch chan bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.subs[f.nextID] = ch
	return f.nextID
}

func (f *Feed) removeSub(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(ch)
	}
}

// broadcast never blocks the NATS callback goroutine; a full subscriber keeps its older state.
func (f *Feed) broadcast(up bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		select {
		case ch <- up:
		default:
			log.Warn().Int("subscriber", id).Bool("connected", up).Msg("connection state dropped - subscriber is not keeping up")
		}
	}
}

// processMessage decodes a relayed envelope. match is false for other rooms.
func processMessage(data []byte, roomName string) (events.Event, bool, error) {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return events.Event{}, false, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if env.Room != roomName {
		return events.Event{}, false, nil
	}

	log.Debug().
		Str("event_id", env.EventID).
		Str("room", env.Room).
		Str("event_type", string(env.EventType)).
		Msg("processing JetStream event")

	ev, err := env.Decode()
	if err != nil {
		return events.Event{}, false, err
	}
	return ev, true, nil
}
