// Package bot holds the Telegram command surface of the settings layer.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vocabot/internal/reminder"
	"vocabot/internal/settings"
	"vocabot/internal/storage"
)

// Settings is the write side the commands drive. *settings.Service
// implements it.
type Settings interface {
	Get(ctx context.Context, userID int64) (storage.Settings, error)
	SetReminder(ctx context.Context, userID int64, enabled bool, at string) (storage.Settings, error)
	SetTime(ctx context.Context, userID int64, at string) (storage.Settings, error)
	SetDailyTarget(ctx context.Context, userID int64, target int) (storage.Settings, error)
	DeleteUser(ctx context.Context, userID int64) error
}

// Reminders is the read side of the reminder manager.
type Reminders interface {
	Status(userID int64) reminder.Status
	SendTest(ctx context.Context, userID int64) error
}

type usageError struct{ usage string }

func (e usageError) Error() string { return "usage: " + e.usage }

func userMessage(err error) string {
	var ue usageError
	switch {
	case errors.As(err, &ue):
		return "Usage: " + ue.usage
	case errors.Is(err, settings.ErrInvalidTime):
		return "Please give the time as HH:MM, for example 09:00."
	case errors.Is(err, settings.ErrInvalidTarget):
		return fmt.Sprintf("The daily target must be between 1 and %d.", settings.MaxDailyTarget)
	case errors.Is(err, context.DeadlineExceeded):
		return "That took too long, please try again."
	default:
		return "Something went wrong, please try again later."
	}
}

// ReminderCommands returns the /reminder command family.
func ReminderCommands(st Settings, rem Reminders) []Command {
	status := func(ctx context.Context, req *Request) error {
		cur, err := st.Get(ctx, req.UserID)
		if err != nil {
			return err
		}
		return req.Reply(ctx, statusText(cur, rem.Status(req.UserID)))
	}
	return []Command{
		{
			Route:       "start",
			Description: "introduction",
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, "👋 Welcome! I send you a daily reminder when words are due for review.\n\n"+
					"Use /reminder on 09:00 to turn it on, /help for everything else.")
			},
		},
		{Route: "reminder", Description: "daily review reminder settings", Usage: "/reminder", Handle: status},
		{Route: "reminder status", Description: "show reminder settings", Usage: "/reminder status", Handle: status},
		{
			Route:       "reminder on",
			Description: "turn the reminder on",
			Usage:       "/reminder on [HH:MM]",
			Handle: func(ctx context.Context, req *Request) error {
				at := ""
				if len(req.Args) > 0 {
					at = req.Args[0]
				}
				cur, err := st.SetReminder(ctx, req.UserID, true, at)
				if err != nil {
					return err
				}
				return req.Reply(ctx, fmt.Sprintf("🔔 Reminder on. I will remind you every day at <b>%s</b>.", cur.ReminderTime))
			},
		},
		{
			Route:       "reminder off",
			Description: "turn the reminder off",
			Usage:       "/reminder off",
			Handle: func(ctx context.Context, req *Request) error {
				if _, err := st.SetReminder(ctx, req.UserID, false, ""); err != nil {
					return err
				}
				return req.Reply(ctx, "🔕 Reminder off.")
			},
		},
		{
			Route:       "reminder time",
			Description: "change the reminder time",
			Usage:       "/reminder time HH:MM",
			Handle: func(ctx context.Context, req *Request) error {
				if len(req.Args) != 1 {
					return usageError{"/reminder time HH:MM"}
				}
				cur, err := st.SetTime(ctx, req.UserID, req.Args[0])
				if err != nil {
					return err
				}
				text := fmt.Sprintf("⏰ Reminder time set to <b>%s</b>.", cur.ReminderTime)
				if !cur.ReminderEnabled {
					text += " The reminder is off; use /reminder on to enable it."
				}
				return req.Reply(ctx, text)
			},
		},
		{
			Route:       "reminder target",
			Description: "change the daily review target",
			Usage:       "/reminder target N",
			Handle: func(ctx context.Context, req *Request) error {
				if len(req.Args) != 1 {
					return usageError{"/reminder target N"}
				}
				n, err := strconv.Atoi(req.Args[0])
				if err != nil {
					return usageError{"/reminder target N"}
				}
				cur, err := st.SetDailyTarget(ctx, req.UserID, n)
				if err != nil {
					return err
				}
				return req.Reply(ctx, fmt.Sprintf("🎯 Daily target set to <b>%d</b> words.", cur.DailyTarget))
			},
		},
		{
			Route:       "reminder test",
			Description: "send the reminder now",
			Usage:       "/reminder test",
			Timeout:     30 * time.Second,
			Handle: func(ctx context.Context, req *Request) error {
				return rem.SendTest(ctx, req.UserID)
			},
		},
		{
			Route:       "forgetme",
			Description: "delete all your data",
			Usage:       "/forgetme confirm",
			Handle: func(ctx context.Context, req *Request) error {
				if len(req.Args) != 1 || !strings.EqualFold(req.Args[0], "confirm") {
					return req.Reply(ctx, "This deletes your settings and words. Send <code>/forgetme confirm</code> to continue.")
				}
				if err := st.DeleteUser(ctx, req.UserID); err != nil {
					return err
				}
				return req.Reply(ctx, "🗑 Your data was deleted.")
			},
		},
	}
}

func statusText(cur storage.Settings, rs reminder.Status) string {
	var b strings.Builder
	b.WriteString("🔔 <b>Review reminder</b>\n\n")
	if cur.ReminderEnabled {
		b.WriteString("<b>Status:</b> ✅ on\n")
	} else {
		b.WriteString("<b>Status:</b> ❌ off\n")
	}
	fmt.Fprintf(&b, "<b>Time:</b> %s\n", cur.ReminderTime)
	fmt.Fprintf(&b, "<b>Daily target:</b> %d\n", cur.DailyTarget)
	if rs.HasReminder && !rs.Next.IsZero() {
		fmt.Fprintf(&b, "<b>Next:</b> %s (%s)\n", rs.Next.Format("2006-01-02 15:04"), rs.Timezone)
	} else if cur.ReminderEnabled {
		b.WriteString("<i>Scheduling in progress.</i>\n")
	}
	b.WriteString("\n/reminder on [HH:MM] · /reminder off · /reminder time HH:MM · /reminder test")
	return b.String()
}
