// Package notify carries trade-lifecycle events to the operator: an
// interactive Telegram approval/status channel and an FCM push for
// high-priority events. Ported from the teacher's NotificationService
// (notification_service.go, inline EXECUTE/DISCARD keyboard plus
// /status /start /stop /report commands) and PushService
// (push_service.go, buffered-channel worker), retargeted from futures
// signal language to token-buy-decision language.
package notify

import (
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tokensentinel/sentinel/internal/domain"
	"github.com/tokensentinel/sentinel/internal/telemetry"
)

// ApprovalRequest is a MAX-tier candidate posted to the operator for
// sign-off; approving it hands it to Listen's onApprove callback, which
// places the buy.
type ApprovalRequest struct {
	ID         string
	Token      domain.TokenFingerprint
	Tier       domain.ScoreTier
	Total      float64
	Reason     string
	SizeNative float64
}

// Telegram is the operator-facing approval/notification channel.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *telemetry.Logger

	pending sync.Map // ID -> ApprovalRequest
}

// NewTelegram initializes the bot from TELEGRAM_BOT_TOKEN/TELEGRAM_CHAT_ID.
// Returns nil (disabled) if the token is absent, matching the teacher's
// NewNotificationService early-return.
func NewTelegram(token string, chatID int64) *Telegram {
	log := telemetry.New("telegram")
	if token == "" {
		log.Warn("TELEGRAM_BOT_TOKEN not set; approvals/notifications disabled")
		return nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Error("failed to init telegram bot: %v", err)
		return nil
	}

	return &Telegram{bot: bot, chatID: chatID, log: log}
}

// Notify sends a plain message to the configured chat.
func (t *Telegram) Notify(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, msg)); err != nil {
		t.log.Warn("failed to send telegram message: %v", err)
	}
}

// RequestApproval posts an interactive EXECUTE/DISCARD alert for a scored
// candidate, grounded in SendApprovalRequest's inline keyboard pattern.
func (t *Telegram) RequestApproval(req ApprovalRequest) {
	if t == nil || t.bot == nil {
		return
	}
	t.pending.Store(req.ID, req)

	text := fmt.Sprintf("🔔 *CANDIDATE ALERT*\n\n*Token:* %s\n*Tier:* %s\n*Score:* %.1f\n*Size:* %.4f\n*Reason:* %s",
		req.Token, req.Tier, req.Total, req.SizeNative, req.Reason)
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "Markdown"
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ EXECUTE", "EXECUTE_"+req.ID),
			tgbotapi.NewInlineKeyboardButtonData("❌ DISCARD", "DISCARD_"+req.ID),
		),
	)
	if _, err := t.bot.Send(msg); err != nil {
		t.log.Warn("failed to send approval request: %v", err)
	}
}

// NotifyExit announces a closed position's outcome.
func (t *Telegram) NotifyExit(p *domain.Position, reason string) {
	icon := "🔴"
	if p.PnLPercent >= 0 {
		icon = "🟢"
	}
	t.Notify(fmt.Sprintf("%s *POSITION CLOSED* %s\n%s | %s\nPnL: %.2f%%\nReason: %s",
		icon, p.Token, p.ExitType, p.Token.Chain, p.PnLPercent, reason))
}

// Listen polls Telegram updates for EXECUTE/DISCARD callbacks and the
// /status /start /stop /report commands, ported near-verbatim from
// StartEventListener.
func (t *Telegram) Listen(onApprove func(ApprovalRequest), statusCallback, reportCallback func() string, stopCallback func()) {
	if t == nil || t.bot == nil {
		return
	}
	t.log.Info("listening for telegram events")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)

	for update := range updates {
		if update.CallbackQuery != nil {
			data := update.CallbackQuery.Data
			if strings.HasPrefix(data, "EXECUTE_") {
				id := strings.TrimPrefix(data, "EXECUTE_")
				if v, ok := t.pending.Load(id); ok {
					t.bot.Send(tgbotapi.NewCallback(update.CallbackQuery.ID, "🚀 Executing..."))
					onApprove(v.(ApprovalRequest))
					t.pending.Delete(id)
				} else {
					t.bot.Send(tgbotapi.NewCallback(update.CallbackQuery.ID, "⚠️ Expired"))
				}
			}
			if strings.HasPrefix(data, "DISCARD_") {
				id := strings.TrimPrefix(data, "DISCARD_")
				t.bot.Send(tgbotapi.NewCallback(update.CallbackQuery.ID, "🗑️ Discarded"))
				t.pending.Delete(id)
			}
			continue
		}

		if update.Message == nil || !update.Message.IsCommand() {
			continue
		}

		switch update.Message.Command() {
		case "status":
			if statusCallback != nil {
				t.Notify(statusCallback())
			}
		case "report":
			if reportCallback != nil {
				t.Notify(reportCallback())
			}
		case "stop":
			t.Notify("🛑 stop requested")
			if stopCallback != nil {
				stopCallback()
			}
		case "start":
			if t.chatID == 0 {
				t.chatID = update.Message.Chat.ID
			}
			t.Notify("🚀 connected; monitoring active")
		}
	}
}
