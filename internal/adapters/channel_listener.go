package adapters

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/tokensentinel/sentinel/internal/domain"
	"github.com/tokensentinel/sentinel/internal/telemetry"
)

// channelMention is the wire shape emitted by a chat-channel relay.
type channelMention struct {
	TokenAddress string `json:"token_address"`
	Chain        string `json:"chain"`
	TimestampMs  int64  `json:"timestamp_ms"`
}

// ChannelListenerAdapter holds one long-lived WebSocket connection per
// configured chat channel. The dial-read-reconnect loop is the teacher's
// BinanceFutures.Start shape (main.go); the fixed 5s retry sleep is
// replaced with github.com/jpillora/backoff (the teacher's own indirect
// dependency, promoted to direct, active use here) per SPEC_FULL §10.
type ChannelListenerAdapter struct {
	ChannelName string
	URL         string
	log         *telemetry.Logger
}

func NewChannelListenerAdapter(channelName, url string) *ChannelListenerAdapter {
	return &ChannelListenerAdapter{
		ChannelName: channelName,
		URL:         url,
		log:         telemetry.New("adapter:" + channelName),
	}
}

func (c *ChannelListenerAdapter) Name() string { return "channel:" + c.ChannelName }

func (c *ChannelListenerAdapter) Start(ctx context.Context, out chan<- domain.RawSignal) {
	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 30 * time.Second, Factor: 2, Jitter: true}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.URL, nil)
		if err != nil {
			wait := b.Duration()
			c.log.Warn("dial failed: %v, retrying in %s", err, wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()
		c.log.Info("connected")
		c.readLoop(ctx, conn, out)
		conn.Close()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *ChannelListenerAdapter) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- domain.RawSignal) {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		conn.Close()
		close(done)
	}()
	defer func() {
		select {
		case <-done:
		default:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.log.Warn("read error: %v, reconnecting", err)
			return
		}

		var m channelMention
		if err := json.Unmarshal(message, &m); err != nil {
			continue // MalformedPayload: dropped, never crashes the loop
		}
		if m.TokenAddress == "" {
			continue
		}

		sig := domain.RawSignal{
			SourceID:  c.ChannelName,
			Token:     domain.TokenFingerprint{Chain: domain.Chain(m.Chain), Address: m.TokenAddress},
			Timestamp: time.UnixMilli(m.TimestampMs),
		}
		select {
		case out <- sig:
		case <-ctx.Done():
			return
		default:
			// ADAPTER_MAX_QUEUE backpressure: caller's channel is bounded;
			// when it is full the signal being sent (the newest) is dropped
			// rather than blocking the read loop. Signals already queued are
			// never evicted.
			c.log.Warn("output queue full, dropping signal for %s", m.TokenAddress)
		}
	}
}
