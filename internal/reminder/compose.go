package reminder

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"vocabot/internal/storage"
)

// previewWords is how many words a reminder lists by name.
const previewWords = 5

var encouragements = []string{
	"🎉 Great job! You have no words to review right now.\n\n✨ Why not learn some new words today? Send /add_word to start.",
	"🌟 Congratulations, your review progress is excellent!\n\n📚 Consider taking on some harder words to push your English further.",
	"💪 You are sticking to your study plan really well!\n\n🚀 Try the Mini App today to explore more ways to learn.",
}

// SelectDue keeps the items due on or before today, earliest first, and caps
// the list at min(target, ceiling). A target of zero or less means the
// ceiling. Items with the same due date keep their input order.
func SelectDue(items []storage.Item, today time.Time, target, ceiling int) []storage.Item {
	limit := storage.Day(today)
	out := make([]storage.Item, 0, len(items))
	for _, it := range items {
		if it.DueDate.IsZero() || storage.Day(it.DueDate).After(limit) {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return storage.Day(out[i].DueDate).Before(storage.Day(out[j].DueDate))
	})

	if ceiling <= 0 {
		ceiling = DefaultHardCeiling
	}
	n := ceiling
	if target > 0 && target < n {
		n = target
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Encouragement picks one of the fixed messages sent when nothing is due.
// intn must return a value in [0, n).
func Encouragement(intn func(n int) int) string {
	return encouragements[intn(len(encouragements))]
}

// ReminderText renders the daily reminder in Telegram HTML.
func ReminderText(items []storage.Item, target int) string {
	if target <= 0 {
		target = storage.DefaultDailyTarget
	}
	var b strings.Builder
	b.WriteString("🌟 <b>Daily review reminder</b> 🌟\n\n")
	b.WriteString("Time to review your words 📚\n\n")
	b.WriteString("📊 <b>Today</b>\n")
	fmt.Fprintf(&b, "• Words to review: %d\n", len(items))
	fmt.Fprintf(&b, "• Daily target: %d\n", target)
	b.WriteString("• Suggested time: 10-15 minutes\n\n")
	b.WriteString("📝 <b>Review these first:</b>\n")
	for i, it := range items {
		if i == previewWords {
			b.WriteString("…\n")
			break
		}
		b.WriteString("• ")
		b.WriteString(html.EscapeString(it.Word))
		b.WriteByte('\n')
	}
	b.WriteString("\n🚀 Send /review to start.")
	return b.String()
}
