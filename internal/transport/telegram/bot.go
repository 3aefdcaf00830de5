// Package telegram is the chat transport: it turns group messages into
// tracker submissions and job payloads into group announcements.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"maptap/internal/ledger"
	"maptap/internal/schedule"
	"maptap/internal/tracker"
	logx "maptap/pkg/logx"
)

// scoreRegex matches the share text the game app produces.
var scoreRegex = regexp.MustCompile(`(?i)Final\s*score:\s*(\d+)`)

const handlerTimeout = 30 * time.Second

type Emojis struct {
	Recorded string
	TooHigh  string
	Rescan   string
}

type Config struct {
	Token        string
	ChatID       int64
	OwnerUserIDs []int64
	PollTimeout  time.Duration
	RatePerSec   int
	Emojis       Emojis
	URL          string
}

type Bot struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	svc     *tracker.Service
	eng     *schedule.Engine
	limiter *rate.Limiter
	seen    *seenRing

	namesMu sync.RWMutex
	names   map[string]string

	runMu     sync.Mutex
	running   bool
	runCancel context.CancelFunc
	baseCtx   context.Context
}

func New(cfg Config, svc *tracker.Service, eng *schedule.Engine, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	if cfg.Emojis.Recorded == "" {
		cfg.Emojis.Recorded = "🌏"
	}
	if cfg.Emojis.TooHigh == "" {
		cfg.Emojis.TooHigh = "❌"
	}
	if cfg.Emojis.Rescan == "" {
		cfg.Emojis.Rescan = "🔁"
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}

	b := &Bot{
		cfg:     cfg,
		log:     log,
		bot:     tb,
		svc:     svc,
		eng:     eng,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		seen:    newSeenRing(50),
		names:   map[string]string{},
	}
	b.register()
	return b, nil
}

func (b *Bot) register() {
	b.bot.Handle(tele.OnText, b.onText)
	b.bot.Handle("/mymaptap", b.onStats)
	b.bot.Handle("/rescan", b.ownerOnly(b.onRescan))
	b.bot.Handle("/maptapschedule", b.ownerOnly(b.onSchedule))
	b.bot.Handle("/maptapprune", b.ownerOnly(b.onPrune))
	b.bot.Handle("/maptaprebuild", b.ownerOnly(b.onRebuild))
	b.bot.Handle("/maptapreset", b.ownerOnly(b.onReset))
}

func (b *Bot) Start(ctx context.Context) error {
	b.runMu.Lock()
	if b.running {
		b.runMu.Unlock()
		return nil
	}
	b.running = true
	rctx, cancel := context.WithCancel(ctx)
	b.runCancel = cancel
	b.baseCtx = rctx
	b.runMu.Unlock()

	go func() {
		<-rctx.Done()
		b.bot.Stop()
	}()
	go func() {
		b.log.Info("polling started", logx.Int64("chat", b.cfg.ChatID))
		b.bot.Start() // blocks until Stop() is called
	}()
	return nil
}

func (b *Bot) Stop(ctx context.Context) {
	b.runMu.Lock()
	cancel := b.runCancel
	b.runCancel = nil
	wasRunning := b.running
	b.running = false
	b.runMu.Unlock()

	if !wasRunning {
		return
	}
	if cancel != nil {
		cancel()
	}
	b.log.Info("polling stopped")
}

// handlerCtx bounds one inbound update's work.
func (b *Bot) handlerCtx() (context.Context, context.CancelFunc) {
	b.runMu.Lock()
	base := b.baseCtx
	b.runMu.Unlock()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, handlerTimeout)
}

func displayName(u *tele.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

func (b *Bot) rememberName(userID, name string) {
	if name == "" {
		return
	}
	b.namesMu.Lock()
	b.names[userID] = name
	b.namesMu.Unlock()
}

func (b *Bot) nameFor(userID string) string {
	b.namesMu.RLock()
	defer b.namesMu.RUnlock()
	return b.names[userID]
}

func (b *Bot) isOwner(userID int64) bool {
	for _, id := range b.cfg.OwnerUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (b *Bot) ownerOnly(h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Sender() == nil || !b.isOwner(c.Sender().ID) {
			return c.Reply("❌ No permission.")
		}
		return h(c)
	}
}

// onText scans group messages for score shares. Anything that does not
// match the share format is ignored without a reply.
func (b *Bot) onText(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Sender == nil || m.Chat == nil || m.Chat.ID != b.cfg.ChatID {
		return nil
	}
	match := scoreRegex.FindStringSubmatch(m.Text)
	if match == nil {
		return nil
	}
	score, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}

	userID := strconv.FormatInt(m.Sender.ID, 10)
	name := displayName(m.Sender)
	b.rememberName(userID, name)
	at := m.Time()
	b.seen.Push(seenEntry{UserID: userID, Name: name, At: at, Score: score})

	ctx, cancel := b.handlerCtx()
	defer cancel()

	outcome, err := b.svc.Submit(ctx, userID, at, score)
	if err != nil {
		b.log.Error("submit failed", logx.String("user", userID), logx.Err(err))
		// No acknowledgement on store failure; rescan can pick it up.
		return nil
	}
	switch outcome {
	case ledger.RejectedTooHigh:
		return c.Reply(b.cfg.Emojis.TooHigh)
	default:
		return c.Reply(b.cfg.Emojis.Recorded)
	}
}

func (b *Bot) onStats(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	target := sender
	if r := c.Message().ReplyTo; r != nil && r.Sender != nil {
		target = r.Sender
	}
	userID := strconv.FormatInt(target.ID, 10)
	name := displayName(target)
	b.rememberName(userID, name)

	ctx, cancel := b.handlerCtx()
	defer cancel()

	st, err := b.svc.Stats(ctx, userID)
	if err != nil {
		b.log.Error("stats failed", logx.String("user", userID), logx.Err(err))
		return c.Reply("❌ Could not load stats, try again later.")
	}
	return c.Reply(statsText(name, st), tele.ModeMarkdown)
}

// onRescan replays recently seen score messages through the tracker.
// Usage: /rescan [n], n capped at the buffer size.
func (b *Bot) onRescan(c tele.Context) error {
	n := 10
	if arg := strings.TrimSpace(c.Message().Payload); arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil || v < 1 {
			return c.Reply("❌ Usage: /rescan [messages], e.g. /rescan 20")
		}
		n = v
	}
	if n > 50 {
		n = 50
	}

	entries := b.seen.Last(n)
	batch := make([]tracker.BackfillEntry, 0, len(entries))
	for _, e := range entries {
		batch = append(batch, tracker.BackfillEntry{UserID: e.UserID, At: e.At, Score: e.Score})
	}

	ctx, cancel := b.handlerCtx()
	defer cancel()

	res, err := b.svc.Backfill(ctx, batch)
	if err != nil {
		b.log.Error("rescan failed", logx.Err(err))
		return c.Reply("❌ Rescan failed: " + err.Error())
	}
	if res.Ingested > 0 {
		_ = c.Reply(b.cfg.Emojis.Rescan)
	}
	return c.Reply(rescanReportText(len(entries), res), tele.ModeMarkdown)
}

// onSchedule shows or edits the job schedule.
// Usage: /maptapschedule
//        /maptapschedule <job> <on|off> [HH:MM] [weekday 0-6]
func (b *Bot) onSchedule(c tele.Context) error {
	ctx, cancel := b.handlerCtx()
	defer cancel()

	args := strings.Fields(c.Message().Payload)
	if len(args) == 0 {
		doc, err := b.eng.Snapshot(ctx)
		if err != nil {
			return c.Reply("❌ Could not load schedule: " + err.Error())
		}
		return c.Reply(scheduleText(doc), tele.ModeMarkdown)
	}
	if len(args) < 2 {
		return c.Reply("❌ Usage: /maptapschedule <job> <on|off> [HH:MM] [weekday 0-6]")
	}

	job := args[0]
	var enabled bool
	switch strings.ToLower(args[1]) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return c.Reply("❌ Second argument must be on or off.")
	}

	at := ""
	if len(args) >= 3 {
		at = args[2]
	}
	var weekday *int
	if len(args) >= 4 {
		d, err := strconv.Atoi(args[3])
		if err != nil {
			return c.Reply("❌ Weekday must be a number, Monday=0 .. Sunday=6.")
		}
		weekday = &d
	}

	if err := b.eng.UpdateJob(ctx, job, enabled, at, weekday); err != nil {
		return c.Reply("❌ " + err.Error())
	}
	doc, err := b.eng.Snapshot(ctx)
	if err != nil {
		return c.Reply("✅ Saved.")
	}
	return c.Reply(scheduleText(doc), tele.ModeMarkdown)
}

func (b *Bot) onPrune(c tele.Context) error {
	ctx, cancel := b.handlerCtx()
	defer cancel()
	removed, err := b.svc.Prune(ctx)
	if err != nil {
		return c.Reply("❌ Prune failed: " + err.Error())
	}
	return c.Reply(fmt.Sprintf("🧹 Pruned %d old day(s).", removed))
}

func (b *Bot) onRebuild(c tele.Context) error {
	ctx, cancel := b.handlerCtx()
	defer cancel()
	users, err := b.svc.RebuildAggregates(ctx)
	if err != nil {
		return c.Reply("❌ Rebuild failed: " + err.Error())
	}
	return c.Reply(fmt.Sprintf("🔧 Rebuilt stats for %d user(s).", users))
}

func (b *Bot) onReset(c tele.Context) error {
	if !strings.EqualFold(strings.TrimSpace(c.Message().Payload), "confirm") {
		return c.Reply("⚠️ This wipes all scores and stats. Run /maptapreset confirm to proceed.")
	}
	ctx, cancel := b.handlerCtx()
	defer cancel()
	if err := b.svc.ResetAll(ctx); err != nil {
		return c.Reply("❌ Reset failed: " + err.Error())
	}
	return c.Reply("🗑 All scores and stats cleared.")
}

// Deliver sends a scheduled job payload to the group chat, paced by the
// outbound rate limiter.
func (b *Bot) Deliver(ctx context.Context, p schedule.Payload) error {
	var text string
	switch p.Kind {
	case schedule.JobDailyPost:
		text = dailyPromptText(b.cfg.URL, b.svc.MaxScore())
	case schedule.JobDailyBoard:
		text = dailyScoreboardText(p, b.nameFor)
	case schedule.JobWeeklyRoundup:
		text = weeklyRoundupText(p, b.nameFor)
	case schedule.JobRivalry:
		text = rivalryText(p, b.nameFor)
	default:
		return fmt.Errorf("unknown payload kind %q", p.Kind)
	}
	if text == "" {
		return nil
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := b.bot.Send(&tele.Chat{ID: b.cfg.ChatID}, text, &tele.SendOptions{
		ParseMode:             tele.ModeMarkdown,
		DisableWebPagePreview: true,
	})
	return err
}
