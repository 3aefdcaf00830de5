// Package jobs defines what the scheduled jobs actually do: pull a view
// from the tracker, shape it into a payload, hand it to delivery. How a
// payload turns into a chat message is the delivery collaborator's
// business.
package jobs

import (
	"context"
	"time"

	"maptap/internal/ledger"
	"maptap/internal/rank"
	"maptap/internal/schedule"
	"maptap/internal/tracker"
	logx "maptap/pkg/logx"
)

// Delivery receives job payloads. Implemented by the chat transport.
type Delivery interface {
	Deliver(ctx context.Context, p schedule.Payload) error
}

// Config tunes the rivalry watch.
type Config struct {
	RivalryGap        int
	RivalryMinPlayers int
}

// Register wires the four tracker jobs into the engine.
func Register(e *schedule.Engine, svc *tracker.Service, d Delivery, cfg Config, log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RivalryGap <= 0 {
		cfg.RivalryGap = 25
	}

	e.Register(schedule.JobDailyPost, func(ctx context.Context, now time.Time) error {
		return d.Deliver(ctx, schedule.Payload{
			Kind:        schedule.JobDailyPost,
			PeriodLabel: prettyDay(ledger.DayKey(now)),
		})
	})

	e.Register(schedule.JobDailyBoard, func(ctx context.Context, now time.Time) error {
		today := ledger.DayKey(now)
		l, err := svc.LoadLedger(ctx)
		if err != nil {
			return err
		}
		rows := rank.ByTotal(rank.ScopedTotals(l, today, today))
		p := schedule.Payload{Kind: schedule.JobDailyBoard, PeriodLabel: prettyDay(today)}
		for _, r := range rows {
			p.Rows = append(p.Rows, schedule.PayloadRow{UserID: r.UserID, Value: r.Total})
		}
		if err := d.Deliver(ctx, p); err != nil {
			return err
		}
		// End-of-day housekeeping rides along with the scoreboard.
		if _, err := svc.Prune(ctx); err != nil {
			log.Warn("post-scoreboard prune failed", logx.Err(err))
		}
		return nil
	})

	e.Register(schedule.JobWeeklyRoundup, func(ctx context.Context, now time.Time) error {
		mon, sun := weekBounds(now)
		l, err := svc.LoadLedger(ctx)
		if err != nil {
			return err
		}
		rows := rank.ByTotal(rank.ScopedTotals(l, ledger.DayKey(mon), ledger.DayKey(sun)))
		p := schedule.Payload{Kind: schedule.JobWeeklyRoundup, PeriodLabel: weekLabel(mon, sun)}
		for _, r := range rows {
			p.Rows = append(p.Rows, schedule.PayloadRow{UserID: r.UserID, Value: r.Total, Extra: r.Days})
		}
		return d.Deliver(ctx, p)
	})

	e.Register(schedule.JobRivalry, func(ctx context.Context, now time.Time) error {
		mon, sun := weekBounds(now)
		l, err := svc.LoadLedger(ctx)
		if err != nil {
			return err
		}
		totals := rank.ScopedTotals(l, ledger.DayKey(mon), ledger.DayKey(sun))
		rv, ok := rank.DetectRivalry(totals, cfg.RivalryGap, cfg.RivalryMinPlayers)
		if !ok {
			log.Debug("no rivalry this period")
			return nil
		}
		return d.Deliver(ctx, schedule.Payload{
			Kind:        schedule.JobRivalry,
			PeriodLabel: weekLabel(mon, sun),
			Rows: []schedule.PayloadRow{
				{UserID: rv.LeaderID, Value: rv.LeaderTotal, Extra: rv.Gap},
				{UserID: rv.ChaserID, Value: rv.ChaserTotal, Extra: rv.Gap},
			},
		})
	})
}

// weekBounds returns the Monday and Sunday of now's week.
func weekBounds(now time.Time) (mon, sun time.Time) {
	shift := (int(now.Weekday()) + 6) % 7
	mon = now.AddDate(0, 0, -shift)
	return mon, mon.AddDate(0, 0, 6)
}

func weekLabel(mon, sun time.Time) string {
	return "Mon " + mon.Format("02 Jan") + " - Sun " + sun.Format("02 Jan")
}

func prettyDay(dayKey string) string {
	d, err := time.Parse(ledger.DayKeyLayout, dayKey)
	if err != nil {
		return dayKey
	}
	return d.Format("Monday 02 January")
}
