// Package notify is the write-side notification collaborator: sync
// failures, circuit-open events, and PO draft creation get pushed to a
// Telegram chat, mirroring the alerting style this codebase already uses
// for trade events.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/emagerp/synccore/internal/store"
)

// Notifier sends operational alerts. A nil *Notifier is valid and every
// method becomes a no-op, so callers can wire it unconditionally even when
// no Telegram token is configured.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// New connects a Telegram bot for the given token. If token is empty, New
// returns (nil, nil) and callers get the inert no-op Notifier.
func New(token string, chatID int64) (*Notifier, error) {
	if token == "" {
		return nil, nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: failed to create Telegram bot: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("notify: Telegram bot connected")
	return &Notifier{api: api, chatID: chatID}, nil
}

func (n *Notifier) send(text string) {
	if n == nil || n.api == nil || n.chatID == 0 {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		log.Warn().Err(err).Msg("notify: failed to send Telegram message")
	}
}

// SyncFailed alerts on a sync log transitioning to failed.
func (n *Notifier) SyncFailed(account store.Account, resource store.Resource, reason string) {
	n.send(fmt.Sprintf("❌ sync failed: %s/%s\n%s", account, resource, reason))
}

// CircuitOpen alerts when an account's API client circuit breaker trips.
func (n *Notifier) CircuitOpen(account string, reason string) {
	n.send(fmt.Sprintf("🚨 circuit breaker open for account %s: %s", account, reason))
}

// PurchaseOrdersDrafted summarizes a bulk PO draft assembly run.
func (n *Notifier) PurchaseOrdersDrafted(created []string, failedSuppliers int) {
	if len(created) == 0 && failedSuppliers == 0 {
		return
	}
	n.send(fmt.Sprintf("📦 purchase orders drafted: %d created, %d suppliers failed", len(created), failedSuppliers))
}

// ConflictQueuedForReview alerts when the manual conflict strategy queues a
// product for human review instead of mutating it.
func (n *Notifier) ConflictQueuedForReview(account store.Account, remoteID int64) {
	n.send(fmt.Sprintf("✋ manual review queued: %s remote_id=%d", account, remoteID))
}
