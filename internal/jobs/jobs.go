// Package jobs runs the periodic sweeps over the ticket population:
// closing inactive tickets, posting the new-ticket digest and bumping
// stale topics. Sweeps touch the platform once per requester and pace
// themselves with a fixed inter-call delay to stay under rate limits.
package jobs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"support-relay-bot/internal/common/syncx"
	"support-relay-bot/internal/features/ticket"
	"support-relay-bot/internal/features/user/models"
	"support-relay-bot/internal/features/user/repository"
	"support-relay-bot/internal/platform/telegram"
	"support-relay-bot/internal/texts"
)

type Config struct {
	GroupID             int64
	CloseInactiveEvery  time.Duration
	InactivityThreshold time.Duration
	DigestEvery         time.Duration
	BumpEvery           time.Duration
	BumpAfter           time.Duration
	DisableBump         bool
	ThrottleDelay       time.Duration
}

type Runner struct {
	cfg     Config
	api     telegram.API
	users   repository.UserRepository
	tickets *ticket.Manager
	texts   *texts.Bundle
	locks   *syncx.KeyedMutex
	log     zerolog.Logger

	now   func() time.Time
	sleep func(time.Duration)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(cfg Config, api telegram.API, users repository.UserRepository, tickets *ticket.Manager, bundle *texts.Bundle, locks *syncx.KeyedMutex, log zerolog.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		api:     api,
		users:   users,
		tickets: tickets,
		texts:   bundle,
		locks:   locks,
		log:     log.With().Str("component", "jobs").Logger(),
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// Start launches the sweep loops. Stop blocks until they drain.
func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.loop(ctx, r.cfg.CloseInactiveEvery, "close_inactive", r.CloseInactive)
	r.loop(ctx, r.cfg.DigestEvery, "new_ticket_digest", r.Digest)
	if !r.cfg.DisableBump {
		r.loop(ctx, r.cfg.BumpEvery, "bump", r.Bump)
	}
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, every time.Duration, name string, sweep func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := sweep(ctx); err != nil {
					r.log.Error().Str("job", name).Err(err).Msg("sweep failed")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// CloseInactive closes every non-closed ticket whose last activity is
// older than the inactivity threshold, notifies the requester
// best-effort and posts a summary into the group.
func (r *Runner) CloseInactive(ctx context.Context) error {
	records, err := r.users.List(ctx)
	if err != nil {
		return err
	}

	cutoff := r.now().Add(-r.cfg.InactivityThreshold)
	closed := 0

	for _, rec := range records {
		if rec.Status == models.StatusClosed || rec.Status == models.StatusNone {
			continue
		}
		if _, ok := rec.Thread(); !ok {
			continue
		}
		if rec.LastMessageAt == nil || !rec.LastMessageAt.Before(cutoff) {
			continue
		}

		if err := r.closeOne(ctx, rec); err != nil {
			r.log.Error().Int64("user_id", rec.ID).Err(err).Msg("close inactive ticket failed")
			continue
		}
		closed++
		r.sleep(r.cfg.ThrottleDelay)
	}

	if closed > 0 {
		summary := fmt.Sprintf("Closed %d inactive ticket(s); inactivity threshold %s.", closed, r.cfg.InactivityThreshold)
		if _, err := r.api.SendMessage(ctx, telegram.SendRequest{ChatID: r.cfg.GroupID, Text: summary}); err != nil {
			r.log.Warn().Err(err).Msg("post close summary failed")
		}
	}
	r.log.Info().Int("closed", closed).Msg("inactivity sweep done")
	return nil
}

func (r *Runner) closeOne(ctx context.Context, rec *models.UserRecord) error {
	unlock := r.locks.Lock(rec.ID)
	defer unlock()

	if err := r.tickets.Close(ctx, rec); err != nil {
		return err
	}

	t := r.texts.For(rec.LanguageCode)
	if _, err := r.api.SendMessage(ctx, telegram.SendRequest{ChatID: rec.ID, Text: t.Get("topic_closed_by_sweep")}); err != nil {
		r.log.Warn().Int64("user_id", rec.ID).Err(err).Msg("notify requester about auto-close failed")
	}
	return nil
}

// Digest posts deep links to every ticket waiting in the new state.
func (r *Runner) Digest(ctx context.Context) error {
	records, err := r.users.List(ctx)
	if err != nil {
		return err
	}

	var lines []string
	for _, rec := range records {
		threadID, ok := rec.Thread()
		if !ok || rec.Status != models.StatusNew {
			continue
		}
		lines = append(lines, fmt.Sprintf(`- <a href="%s">%s</a>`, threadLink(r.cfg.GroupID, threadID), rec.FullName))
	}
	if len(lines) == 0 {
		r.log.Info().Msg("no new tickets to digest")
		return nil
	}

	text := fmt.Sprintf("New tickets waiting for a reply:\n\n%s\n\nTotal: %d", strings.Join(lines, "\n"), len(lines))
	_, err = r.api.SendMessage(ctx, telegram.SendRequest{ChatID: r.cfg.GroupID, Text: text, ParseMode: "HTML"})
	return err
}

// Bump pokes topics in the new or open state that have seen no activity
// for the configured window.
func (r *Runner) Bump(ctx context.Context) error {
	records, err := r.users.List(ctx)
	if err != nil {
		return err
	}

	cutoff := r.now().Add(-r.cfg.BumpAfter)
	for _, rec := range records {
		threadID, ok := rec.Thread()
		if !ok {
			continue
		}
		if rec.Status != models.StatusNew && rec.Status != models.StatusOpen {
			continue
		}
		if rec.LastMessageAt == nil || !rec.LastMessageAt.Before(cutoff) {
			continue
		}

		_, err := r.api.SendMessage(ctx, telegram.SendRequest{
			ChatID:   r.cfg.GroupID,
			ThreadID: threadID,
			Text:     "🆙 BUMP 🆙",
		})
		if err != nil {
			r.log.Error().Int64("user_id", rec.ID).Err(err).Msg("bump failed")
			continue
		}
		r.sleep(r.cfg.ThrottleDelay)
	}
	return nil
}

// threadLink builds the t.me deep link into a supergroup topic; the
// -100 prefix of the internal chat ID is not part of the public link.
func threadLink(groupID, threadID int64) string {
	chat := strconv.FormatInt(groupID, 10)
	chat = strings.TrimPrefix(chat, "-100")
	return fmt.Sprintf("https://t.me/c/%s/%d", chat, threadID)
}
