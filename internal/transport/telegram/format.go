package telegram

import (
	"fmt"
	"strings"
	"time"

	"maptap/internal/ledger"
	"maptap/internal/schedule"
	"maptap/internal/tracker"
)

// mention renders a tappable user link. Telegram resolves tg://user
// links even when the user has no public username.
func mention(name, userID string) string {
	if name == "" {
		name = "player " + userID
	}
	return fmt.Sprintf("[%s](tg://user?id=%s)", escapeMarkdown(name), userID)
}

// escapeMarkdown neutralizes the legacy-Markdown control characters in
// display names so a name like "a_b" cannot break the message entities.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")
	return r.Replace(s)
}

func dailyPromptText(url string, maxScore int) string {
	return fmt.Sprintf(
		"🗺️ *Daily MapTap is live!*\n👉 %s\n\nPost your results *exactly as shared from the app* so I can track scores ✈️\n_(Scores over %d won't be counted.)_",
		url, maxScore)
}

func dailyScoreboardText(p schedule.Payload, name func(string) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🗺️ *MapTap — Daily Scores*\n_%s_\n\n", p.PeriodLabel)
	if len(p.Rows) == 0 {
		b.WriteString("😶 No scores today.")
		return b.String()
	}
	for i, r := range p.Rows {
		fmt.Fprintf(&b, "%d. %s — *%d*\n", i+1, mention(name(r.UserID), r.UserID), r.Value)
	}
	fmt.Fprintf(&b, "\n✈️ Players today: *%d*", len(p.Rows))
	return b.String()
}

func weeklyRoundupText(p schedule.Payload, name func(string) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🗺️ *MapTap — Weekly Round-Up*\n_%s_\n\n", p.PeriodLabel)
	if len(p.Rows) == 0 {
		b.WriteString("😶 No scores this week.")
		return b.String()
	}
	for i, r := range p.Rows {
		fmt.Fprintf(&b, "%d. %s — *%d pts* (%d/7 days)\n", i+1, mention(name(r.UserID), r.UserID), r.Value, r.Extra)
	}
	fmt.Fprintf(&b, "\n✈️ Weekly players: *%d*", len(p.Rows))
	return b.String()
}

func rivalryText(p schedule.Payload, name func(string) string) string {
	if len(p.Rows) < 2 {
		return ""
	}
	leader, chaser := p.Rows[0], p.Rows[1]
	return fmt.Sprintf(
		"⚔️ *Rivalry Watch (this week)*\n\n1) %s — *%d*\n2) %s — *%d*\n\nOnly *%d* points between them 👀",
		mention(name(leader.UserID), leader.UserID), leader.Value,
		mention(name(chaser.UserID), chaser.UserID), chaser.Value,
		leader.Extra)
}

func statsText(name string, st *tracker.UserStats) string {
	if st == nil {
		return fmt.Sprintf("%s hasn't recorded any MapTap scores yet 🗺️", escapeMarkdown(name))
	}
	bestDay := "N/A"
	bestScore := "N/A"
	if st.Best.Date != "" {
		bestDay = st.Best.Date
		if d, err := time.Parse(ledger.DayKeyLayout, st.Best.Date); err == nil {
			bestDay = d.Format("Monday 02 January")
		}
		bestScore = fmt.Sprintf("%d", st.Best.Score)
	}
	return fmt.Sprintf(
		"🗺️ *MapTap Stats — %s*\n\n"+
			"• Rank: 🏅 *#%d of %d*\n"+
			"• Total points: *%d*\n"+
			"• Days played: *%d*\n"+
			"• Average score: *%d*\n"+
			"• Current streak: 🔥 *%d days*\n"+
			"• Best streak: 🏆 *%d days*\n"+
			"• Best day: 🌟 *%s — %s*",
		escapeMarkdown(name), st.Rank, st.Ranked, st.TotalPoints, st.DaysPlayed,
		st.Average, st.CurrentStreak, st.BestStreak, bestDay, bestScore)
}

func rescanReportText(matched int, res tracker.BackfillResult) string {
	return fmt.Sprintf(
		"✅ *Rescan complete*\n• Matches found: *%d*\n• Newly ingested: *%d*\n• Skipped: *%d*",
		matched, res.Ingested, res.Skipped)
}

func scheduleText(doc schedule.Document) string {
	var b strings.Builder
	state := "ON"
	if !doc.Enabled {
		state = "OFF"
	}
	fmt.Fprintf(&b, "🗓 *MapTap Schedule* (%s)\n\n", state)
	for _, name := range []string{
		schedule.JobDailyPost, schedule.JobDailyBoard,
		schedule.JobWeeklyRoundup, schedule.JobRivalry,
	} {
		jc, ok := doc.Jobs[name]
		if !ok {
			continue
		}
		mark := "✅"
		if !jc.Enabled {
			mark = "🚫"
		}
		when := jc.At
		if jc.Weekday != nil {
			when = weekdayName(*jc.Weekday) + " " + jc.At
		}
		fmt.Fprintf(&b, "%s `%s` — %s (last run: %s)\n", mark, name, when, jc.LastRun)
	}
	return strings.TrimRight(b.String(), "\n")
}

func weekdayName(d int) string {
	names := []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
	if d < 0 || d >= len(names) {
		return "?"
	}
	return names[d]
}
