package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hackathon-bot/internal/apperr"
	"hackathon-bot/internal/logger"
	"hackathon-bot/internal/models"
	"hackathon-bot/internal/storage"
)

// Sender delivers a text message to one chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Report counts delivery outcomes of one broadcast.
type Report struct {
	Sent   int
	Failed int
}

// Broadcaster fans a message out to a recipient set. Failed deliveries are
// counted and logged, never retried within the batch.
type Broadcaster struct {
	store    storage.Store
	sender   Sender
	log      *logger.Logger
	interval time.Duration
}

func NewBroadcaster(store storage.Store, sender Sender, log *logger.Logger, interval time.Duration) *Broadcaster {
	return &Broadcaster{store: store, sender: sender, log: log, interval: interval}
}

// ToConsented sends text to every active user who gave consent.
func (b *Broadcaster) ToConsented(ctx context.Context, text string, by uuid.UUID) (Report, error) {
	users, err := b.store.ListConsentedUsers(ctx)
	if err != nil {
		return Report{}, apperr.Wrap("list recipients", err)
	}
	rep := b.Send(ctx, chatIDs(users), func(int64) string { return text })
	audit(ctx, b.store, b.log, by, ActionBroadcastSent, map[string]any{"sent": rep.Sent, "failed": rep.Failed})
	return rep, nil
}

// ToHackathon sends text to the members of every active team in the hackathon.
func (b *Broadcaster) ToHackathon(ctx context.Context, hackathonID uuid.UUID, text string, by uuid.UUID) (Report, error) {
	h, err := b.store.GetHackathon(ctx, hackathonID)
	if err != nil {
		return Report{}, apperr.Wrap("load hackathon", err)
	}
	if h == nil {
		return Report{}, apperr.NotFound(apperr.CodeHackathonNotFound, "hackathon not found")
	}
	users, err := b.store.HackathonParticipants(ctx, hackathonID)
	if err != nil {
		return Report{}, apperr.Wrap("list participants", err)
	}
	rep := b.Send(ctx, chatIDs(users), func(int64) string { return text })
	audit(ctx, b.store, b.log, by, ActionBroadcastSent, map[string]any{
		"hackathon_id": hackathonID.String(), "sent": rep.Sent, "failed": rep.Failed,
	})
	return rep, nil
}

// Send delivers one message per recipient, pausing between sends. It stops
// early only when ctx is cancelled.
func (b *Broadcaster) Send(ctx context.Context, recipients []int64, text func(chatID int64) string) Report {
	var rep Report
	for i, id := range recipients {
		if ctx.Err() != nil {
			break
		}
		if err := b.sender.SendText(ctx, id, text(id)); err != nil {
			rep.Failed++
			b.log.ForUser(id).WithError(err).Warn("broadcast delivery failed")
		} else {
			rep.Sent++
		}
		if b.interval > 0 && i < len(recipients)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(b.interval):
			}
		}
	}
	b.log.Info("broadcast finished", zap.Int("sent", rep.Sent), zap.Int("failed", rep.Failed))
	return rep
}

func chatIDs(users []models.User) []int64 {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.TelegramID)
	}
	return ids
}
