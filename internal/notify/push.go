package notify

import (
	"context"
	"fmt"
	"os"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"google.golang.org/api/option"

	"github.com/tokensentinel/sentinel/internal/domain"
	"github.com/tokensentinel/sentinel/internal/telemetry"
)

// pushMessage mirrors the teacher's PushMessage struct.
type pushMessage struct {
	Topic string
	Title string
	Body  string
	Data  map[string]string
}

// Push sends FCM notifications for MAX-tier buys and emergency exits,
// ported from push_service.go's buffered-channel worker (the original's
// package-level `pushQueue` becomes an instance field here).
type Push struct {
	client *messaging.Client
	app    *firebase.App
	log    *telemetry.Logger
	queue  chan pushMessage
}

// NewPush initializes Firebase Messaging from a service-account JSON file.
// Returns nil (disabled) if the file is missing, matching the teacher's
// NewPushService early-return.
func NewPush(credFile string) *Push {
	log := telemetry.New("push")
	if _, err := os.Stat(credFile); os.IsNotExist(err) {
		log.Warn("firebase credentials file %q not found; push disabled", credFile)
		return nil
	}

	opt := option.WithCredentialsFile(credFile)
	app, err := firebase.NewApp(context.Background(), nil, opt)
	if err != nil {
		log.Error("failed to init firebase app: %v", err)
		return nil
	}

	client, err := app.Messaging(context.Background())
	if err != nil {
		log.Error("failed to get messaging client: %v", err)
		return nil
	}

	return &Push{
		client: client,
		app:    app,
		log:    log,
		queue:  make(chan pushMessage, 500),
	}
}

// StartWorker drains the push queue and sends each message synchronously,
// one worker goroutine managing FCM throughput.
func (p *Push) StartWorker(ctx context.Context) {
	if p == nil {
		return
	}
	p.log.Info("push worker started")
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			message := &messaging.Message{
				Notification: &messaging.Notification{Title: msg.Title, Body: msg.Body},
				Data:         msg.Data,
				Topic:        msg.Topic,
			}
			response, err := p.client.Send(context.Background(), message)
			if err != nil {
				p.log.Warn("fcm send error: %v", err)
				continue
			}
			p.log.Info("push sent: %s (msg id %s)", msg.Body, response)
		}
	}
}

// NotifyMaxTierBuy pushes a high-priority alert for a MAX-tier entry,
// the token-domain analog of SendWhaleAlert's level-5-only gate.
func (p *Push) NotifyMaxTierBuy(token domain.TokenFingerprint, total float64, sizeNative float64) {
	if p == nil {
		return
	}
	select {
	case p.queue <- pushMessage{
		Topic: "MAX_TIER_BUYS",
		Title: "🚀 MAX-tier entry",
		Body:  fmt.Sprintf("%s score %.1f size %.4f", token, total, sizeNative),
		Data: map[string]string{
			"chain":   string(token.Chain),
			"address": token.Address,
			"score":   fmt.Sprintf("%.1f", total),
		},
	}:
	default:
		p.log.Warn("push queue full, dropping MAX-tier alert for %s", token)
	}
}

// NotifyEmergencyExit pushes an alert for a position closed via the
// emergency exit path.
func (p *Push) NotifyEmergencyExit(token domain.TokenFingerprint, reason string) {
	if p == nil {
		return
	}
	select {
	case p.queue <- pushMessage{
		Topic: "EMERGENCY_EXITS",
		Title: "🛑 Emergency exit",
		Body:  fmt.Sprintf("%s: %s", token, reason),
		Data: map[string]string{
			"chain":   string(token.Chain),
			"address": token.Address,
			"reason":  reason,
		},
	}:
	default:
		p.log.Warn("push queue full, dropping emergency exit alert for %s", token)
	}
}
