package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/tutorlink/chat-service/internal/repository"

	"github.com/robfig/cron/v3"
)

// MembershipSyncer reconciles study-group rosters into chat-room member
// rows on a schedule, so the websocket membership check never drifts from
// the group layer.
type MembershipSyncer struct {
	repo repository.MembershipRepo
	cron *cron.Cron
}

func NewMembershipSyncer(repo repository.MembershipRepo) *MembershipSyncer {
	return &MembershipSyncer{
		repo: repo,
		cron: cron.New(),
	}
}

func (t *MembershipSyncer) Start() error {
	_, err := t.cron.AddFunc("0 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		if err := t.repo.SyncRoomMembers(ctx); err != nil {
			slog.Error("room membership sync failed", "err", err)
			return
		}
		slog.Info("room membership sync complete")
	})
	if err != nil {
		return err
	}

	t.cron.Start()
	return nil
}

func (t *MembershipSyncer) Stop() {
	t.cron.Stop()
}
