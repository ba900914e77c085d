package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hackathon-bot/internal/apperr"
	"hackathon-bot/internal/logger"
	"hackathon-bot/internal/models"
	"hackathon-bot/internal/storage"
)

// ReminderText renders the reminder for one participant.
type ReminderText func(u models.User, h models.Hackathon, st models.Stage) string

// Reminders notifies participants of stages whose deadline is near. Each
// stage is announced once per process; overlapping sweeps may at worst send
// a duplicate.
type Reminders struct {
	store     storage.Store
	broadcast *Broadcaster
	log       *logger.Logger
	window    time.Duration
	text      ReminderText
	now       Clock

	mu   sync.Mutex
	sent map[uuid.UUID]bool
}

func NewReminders(store storage.Store, b *Broadcaster, log *logger.Logger, window time.Duration, text ReminderText, now Clock) *Reminders {
	return &Reminders{store: store, broadcast: b, log: log, window: window, text: text, now: now, sent: map[uuid.UUID]bool{}}
}

// Sweep sends reminders for stages due within the window and returns the
// number of messages delivered.
func (r *Reminders) Sweep(ctx context.Context) (int, error) {
	now := r.now()
	stages, err := r.store.StagesDueBetween(ctx, now, now.Add(r.window))
	if err != nil {
		return 0, apperr.Wrap("list due stages", err)
	}
	total := 0
	for _, st := range stages {
		if r.alreadySent(st.ID) {
			continue
		}
		h, err := r.store.GetHackathon(ctx, st.HackathonID)
		if err != nil {
			return total, apperr.Wrap("load hackathon", err)
		}
		if h == nil || !h.IsActive {
			continue
		}
		users, err := r.store.HackathonParticipants(ctx, st.HackathonID)
		if err != nil {
			return total, apperr.Wrap("list participants", err)
		}
		byID := make(map[int64]models.User, len(users))
		for _, u := range users {
			byID[u.TelegramID] = u
		}
		rep := r.broadcast.Send(ctx, chatIDs(users), func(id int64) string { return r.text(byID[id], *h, st) })
		r.markSent(st.ID)
		total += rep.Sent
		r.log.ForStage(st.ID).Info("deadline reminder sent",
			zap.Int("sent", rep.Sent),
			zap.Int("failed", rep.Failed))
	}
	return total, nil
}

func (r *Reminders) alreadySent(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[id]
}

func (r *Reminders) markSent(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[id] = true
}

// Every runs fn on each tick until ctx is done. Errors are logged.
func Every(ctx context.Context, interval time.Duration, log *logger.Logger, name string, fn func(context.Context) error) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := fn(ctx); err != nil {
				log.Error("periodic job failed", zap.String("job", name), zap.Error(err))
			}
		}
	}
}
