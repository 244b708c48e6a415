package quota

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// FormatStatus renders the /status view.
func FormatStatus(s Status) string {
	var b strings.Builder
	b.WriteString("📊 Usage Status\n\n")

	b.WriteString("Requests (hourly)\n")
	b.WriteString(usageLine(s.HourlyRequests, s.Limits.RequestsPerHour, s.RequestPercent))
	fmt.Fprintf(&b, "Total requests: %d\n\n", s.Requests)

	b.WriteString("Tokens (daily)\n")
	b.WriteString(usageLine(s.DailyTokens, s.Limits.TokensPerDay, s.TokenPercent))
	fmt.Fprintf(&b, "Total tokens: %d\n\n", s.Tokens)

	fmt.Fprintf(&b, "⚠️ Warning threshold: %d%%\n", s.Limits.WarningPercent)
	fmt.Fprintf(&b, "⏰ Next hourly reset: %s\n", untilReset(s.Now, s.NextHourly))
	fmt.Fprintf(&b, "📅 Next daily reset: %s", untilReset(s.Now, s.NextDaily))
	return b.String()
}

// WarningLine is appended to a reply when the principal nears a limit.
func WarningLine(s Status) string {
	return fmt.Sprintf("⚠️ You have used %.0f%% of your hourly requests and %.0f%% of your daily tokens.",
		s.RequestPercent, s.TokenPercent)
}

func usageLine(n, limit int, pct float64) string {
	if limit <= 0 {
		return fmt.Sprintf("%d (unlimited)\n", n)
	}
	return fmt.Sprintf("%s %d/%d (%.1f%%)\n", ProgressBar(pct), n, limit, pct)
}

// ProgressBar draws a ten-cell bar with a traffic-light marker.
func ProgressBar(pct float64) string {
	filled := int(math.Round(pct / 10))
	filled = min(max(filled, 0), 10)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
	switch {
	case pct >= 90:
		return "🔴 " + bar
	case pct >= 70:
		return "🟡 " + bar
	default:
		return "🟢 " + bar
	}
}

func untilReset(now, next time.Time) string {
	d := next.Sub(now)
	if d <= 0 {
		return "now"
	}
	minutes := int(d / time.Minute)
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
