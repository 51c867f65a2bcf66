// Package render builds the Discord message bodies from shift-state
// records. Everything here is a pure transform: fixed input and a fixed
// "now" produce byte-identical output, and nothing reads or writes a store.
package render

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/onecitymedic/opbridge/pkg/core/localtime"
	"github.com/onecitymedic/opbridge/pkg/core/model"
)

const (
	divider = "────────────────────"
	rule    = "════════════════════"

	offDutyQueueCap   = 20
	offDutySummaryCap = 15
)

// NameResolver maps an in-character name to its Discord identity. Mention
// returns "<@id>" when the name is linked and the plain name otherwise;
// Phone returns the in-character phone number or "".
type NameResolver interface {
	Mention(name string) string
	Phone(name string) string
}

// PlainNames is a NameResolver that never resolves anything. Useful in
// tests and as a fallback when the directory is unavailable.
type PlainNames struct{}

func (PlainNames) Mention(name string) string { return name }
func (PlainNames) Phone(string) string        { return "" }

var bareClock = regexp.MustCompile(`^\d{2}:\d{2}$`)

// TodayCases filters cases to the ones belonging to now's Bangkok calendar
// day. The ordered fallback is deliberate and permissive toward legacy
// records: explicit storyDate first, then creation timestamp, then a bare
// HH:MM start time with no date counts as today.
func TodayCases(cases []model.Case, now time.Time) []model.Case {
	today := localtime.DateString(now)

	out := make([]model.Case, 0, len(cases))
	for _, c := range cases {
		switch {
		case c.StoryDate != "":
			if c.StoryDate == today {
				out = append(out, c)
			}
		case c.CreatedAt != 0:
			if localtime.DateString(time.UnixMilli(c.CreatedAt)) == today {
				out = append(out, c)
			}
		case bareClock.MatchString(c.StartTime):
			out = append(out, c)
		}
	}
	return out
}

// statusGlyph returns the suffix icon for an on-duty medic status.
func statusGlyph(status string) string {
	switch status {
	case model.StatusAccept:
		return " 📍"
	case model.StatusWaitFix:
		return " ⏳"
	case model.StatusDecline:
		return " ❌"
	default:
		return ""
	}
}

// badgeGlyph maps a rank badge to its icon.
func badgeGlyph(badge string) string {
	switch badge {
	case "SSS+":
		return "👑"
	case "SSS":
		return "⭐"
	case "SS":
		return "💎"
	case "A":
		return "🟢"
	case "B":
		return "🔵"
	case "C":
		return "🟡"
	case "D":
		return "⚪"
	default:
		return ""
	}
}

// nameWithPhone renders a name (optionally as a mention) with its
// in-character phone appended when the directory knows one.
func nameWithPhone(r NameResolver, name string, mention bool) string {
	if name == "" {
		return ""
	}
	display := name
	if mention {
		display = r.Mention(name)
	}
	if phone := r.Phone(name); phone != "" {
		return fmt.Sprintf("%s (📞 %s)", display, phone)
	}
	return display
}

// writeCase appends the shared per-case block used by both channel views.
func writeCase(b *strings.Builder, idx int, c model.Case, r NameResolver) {
	statusLabel := ""
	if c.Closed {
		statusLabel = " ✅ **Clear**"
	}
	clock := ""
	if c.StartTime != "" {
		clock = "⏰ " + c.StartTime
	}
	fmt.Fprintf(b, "**สตอรี่ #%d**%s %s\n", idx+1, statusLabel, clock)

	partyA := orUnknown(c.PartyA)
	partyB := orUnknown(c.PartyB)
	fmt.Fprintf(b, "ระหว่าง %s VS %s\n", partyA, partyB)
	if c.Location != "" {
		fmt.Fprintf(b, "📍 %s\n", c.Location)
	}

	mainMedic := "ยังไม่มี"
	if len(c.Medics) > 0 && c.Medics[0] != "" {
		mainMedic = r.Mention(c.Medics[0])
	}
	fmt.Fprintf(b, "แพทย์ผู้รับผิดชอบ : %s\n", mainMedic)

	if len(c.Medics) > 1 {
		support := make([]string, 0, len(c.Medics)-1)
		for _, m := range c.Medics[1:] {
			support = append(support, r.Mention(m))
		}
		fmt.Fprintf(b, "แพทย์ช่วยเหลือ : %s\n", strings.Join(support, ", "))
	}
	b.WriteString("\n")
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

// WaitingNotice is the idle queue-view layout: header, date, and the
// "waiting for OP" notice. Posted when no shift is active.
func WaitingNotice(now time.Time) string {
	var b strings.Builder
	b.WriteString("**📋 สรุปการเข้าเวร OP**\n")
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "📅 %s\n", localtime.ThaiDate(now))
	b.WriteString(divider + "\n\n")
	b.WriteString("🚫 **ไม่มีกะ ณ ขณะนี้**\n\n")
	b.WriteString("_รอ OP เปิดกะ..._\n")
	return b.String()
}

// QueueView renders the operations-channel message for an active shift:
// roster, queue status, today's cases and active events. Callers must
// check ShiftIdle first and use WaitingNotice for the idle layout.
func QueueView(snap *model.ShiftSnapshot, r NameResolver, now time.Time) string {
	var b strings.Builder

	b.WriteString("**สรุปการเข้าเวร OP**\n")
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "📅 วันที่: %s\n", localtime.ThaiDate(now))
	fmt.Fprintf(&b, "👤 OP: %s\n", nameWithPhone(r, snap.CurrentOP, true))
	if snap.SupOP != "" {
		fmt.Fprintf(&b, "👥 Support OP: %s\n", nameWithPhone(r, snap.SupOP, true))
	}
	if snap.LastModified > 0 {
		fmt.Fprintf(&b, "⏰ เวลา: %s\n", localtime.TimeOfDay(time.UnixMilli(snap.LastModified)))
	}
	b.WriteString(divider + "\n\n")

	// On Duty
	fmt.Fprintf(&b, "✅ **On Duty (%d คน):**\n", len(snap.OnDuty))
	if len(snap.OnDuty) > 0 {
		for _, name := range snap.OnDuty {
			fmt.Fprintf(&b, "• %s%s\n", nameWithPhone(r, name, false), statusGlyph(snap.MedicStatuses[name]))
		}
	} else {
		b.WriteString("_ไม่มี_\n")
	}
	b.WriteString(divider + "\n\n")

	// Off Duty, capped display
	fmt.Fprintf(&b, "❌ **Off Duty (%d คน):**\n", len(snap.OffDuty))
	if len(snap.OffDuty) > 0 {
		shown := snap.OffDuty
		if len(shown) > offDutyQueueCap {
			shown = shown[:offDutyQueueCap]
		}
		for _, name := range shown {
			fmt.Fprintf(&b, "• %s\n", name)
		}
		if extra := len(snap.OffDuty) - offDutyQueueCap; extra > 0 {
			fmt.Fprintf(&b, "_...และอีก %d คน_\n", extra)
		}
	} else {
		b.WriteString("_ไม่มี_\n")
	}
	b.WriteString(divider + "\n\n")

	// AFK with elapsed minutes
	if len(snap.AFK) > 0 {
		fmt.Fprintf(&b, "💤 **AFK (%d คน):**\n", len(snap.AFK))
		for _, name := range snap.AFK {
			suffix := ""
			if since, ok := snap.AFKTimes[name]; ok && since > 0 {
				mins := now.Sub(time.UnixMilli(since)) / time.Minute
				suffix = fmt.Sprintf(" (%d นาที)", mins)
			}
			fmt.Fprintf(&b, "• %s%s\n", name, suffix)
		}
		b.WriteString(divider + "\n\n")
	}

	// Today's cases
	cases := TodayCases(snap.Cases, now)
	fmt.Fprintf(&b, "⚔️ **สตอรี่ (%d เคส):**\n", len(cases))
	if len(cases) > 0 {
		for i, c := range cases {
			writeCase(&b, i, c, r)
		}
	} else {
		b.WriteString("_ไม่มีสตอรี่ในขณะนี้_\n")
	}

	// Active events
	if len(snap.ActiveEvents) > 0 {
		b.WriteString(divider + "\n")
		fmt.Fprintf(&b, "🎉 **Events (%d):**\n", len(snap.ActiveEvents))
		for _, e := range snap.ActiveEvents {
			emoji := e.Emoji
			if emoji == "" {
				emoji = "🎉"
			}
			name := e.Name
			if name == "" {
				name = "Event"
			}
			participants := strings.Join(e.Medics, ", ")
			if participants == "" {
				participants = "ยังไม่มี"
			}
			fmt.Fprintf(&b, "**%s %s**\n", emoji, name)
			fmt.Fprintf(&b, "ผู้เข้าร่วม: %s\n\n", participants)
		}
	}

	return b.String()
}

// CaseView renders the cases-channel message for the given active batch.
// summary switches the header to the finalized framing used once every
// case in the batch is closed. Only cases appear here, never roster or
// events; the date line prefers the first case's storyDate.
func CaseView(batch []model.Case, summary bool, r NameResolver, now time.Time) string {
	var b strings.Builder

	if summary {
		b.WriteString("**📋 สรุปเคสสตอรี่**\n")
	} else {
		b.WriteString("**📋 แจ้งเคสสตอรี่**\n")
	}
	b.WriteString(divider + "\n")

	dateStr := localtime.ThaiDate(now)
	if len(batch) > 0 && batch[0].StoryDate != "" {
		dateStr = localtime.ThaiDateFromISO(batch[0].StoryDate, now)
	}
	fmt.Fprintf(&b, "📅 %s\n", dateStr)
	b.WriteString(divider + "\n\n")

	fmt.Fprintf(&b, "⚔️ **สตอรี่ (%d เคส):**\n", len(batch))
	for i, c := range batch {
		writeCase(&b, i, c, r)
	}

	return b.String()
}

// summaryTypeLabel maps a shift summary type to its header label.
func summaryTypeLabel(t string) string {
	switch t {
	case model.SummaryEndShift:
		return "🏁 จบกะ"
	case model.SummaryHandover:
		return "🔄 ส่งต่อ OP"
	case model.SummaryForceEnd:
		return "⚠️ บังคับจบกะ"
	case model.SummaryRequest:
		return "📋 Request OP"
	default:
		return "📋 สรุปกะ"
	}
}

// ShiftSummary renders the end-of-shift report posted as a permanent
// message when a shift closes or is handed over.
func ShiftSummary(sum *model.ShiftSummary, r NameResolver, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "**%s**\n", summaryTypeLabel(sum.Type))
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "📅 วันที่: %s\n", localtime.ThaiDate(now))

	op := sum.OP
	if op == "" {
		op = "ไม่ระบุ"
	}
	fmt.Fprintf(&b, "👤 OP: %s\n", r.Mention(op))
	if sum.SupOP != "" && sum.SupOP != "-" {
		fmt.Fprintf(&b, "👥 Support OP: %s\n", r.Mention(sum.SupOP))
	}

	start := sum.StartTime
	if start == "" {
		start = "-"
	}
	end := sum.EndTime
	if end == "" {
		end = localtime.TimeOfDay(now)
	}
	fmt.Fprintf(&b, "⏰ เวลา: %s - %s", start, end)
	if sum.Duration != "" {
		fmt.Fprintf(&b, " (%s)", sum.Duration)
	}
	b.WriteString("\n")
	b.WriteString(rule + "\n\n")

	// Roster snapshot at shift end
	fmt.Fprintf(&b, "✅ **On Duty (%d คน):**\n", len(sum.OnDuty))
	if len(sum.OnDuty) > 0 {
		for _, m := range sum.OnDuty {
			badge := badgeGlyph(m.Badge)
			fmt.Fprintf(&b, "• %s %s\n", badge, m.Name)
		}
	} else {
		b.WriteString("_ไม่มี_\n")
	}
	b.WriteString(divider + "\n\n")

	fmt.Fprintf(&b, "❌ **Off Duty (%d คน):**\n", len(sum.OffDuty))
	if len(sum.OffDuty) > 0 {
		shown := sum.OffDuty
		if len(shown) > offDutySummaryCap {
			shown = shown[:offDutySummaryCap]
		}
		for _, m := range shown {
			fmt.Fprintf(&b, "• %s\n", m.Name)
		}
		if extra := len(sum.OffDuty) - offDutySummaryCap; extra > 0 {
			fmt.Fprintf(&b, "_...และอีก %d คน_\n", extra)
		}
	} else {
		b.WriteString("_ไม่มี_\n")
	}
	b.WriteString(divider + "\n\n")

	// Only cases that were both started and closed during the shift count
	// as completed; records without a start time are noise from the app.
	completed := make([]model.SummaryCase, 0, len(sum.Stories))
	for _, s := range sum.Stories {
		if s.StartTime != "" && s.StartTime != "-" {
			completed = append(completed, s)
		}
	}

	fmt.Fprintf(&b, "⚔️ **สตอรี่ที่เริ่มแล้ว และ ปิดแล้ว (%d เคส):**\n", len(completed))
	if len(completed) > 0 {
		for i, s := range completed {
			mainMedic := "-"
			if len(s.Medics) > 0 && s.Medics[0].Name != "" {
				mainMedic = r.Mention(s.Medics[0].Name)
			}
			fmt.Fprintf(&b, "**สตอรี่ #%d** ระหว่าง %s VS %s\n", i+1, orUnknown(s.PartyA), orUnknown(s.PartyB))
			fmt.Fprintf(&b, "แพทย์ผู้รับผิดชอบ : %s\n", mainMedic)
			if len(s.Medics) > 1 {
				support := make([]string, 0, len(s.Medics)-1)
				for _, m := range s.Medics[1:] {
					support = append(support, r.Mention(m.Name))
				}
				fmt.Fprintf(&b, "แพทย์ช่วยเหลือ : %s\n", strings.Join(support, ", "))
			}
			b.WriteString("\n")
		}
	} else {
		b.WriteString("_ไม่มีสตอรี่ที่เริ่มแล้วและปิดแล้ว_\n")
	}

	// Cases still open when the shift ended
	if len(sum.OngoingStories) > 0 {
		fmt.Fprintf(&b, "\n⚠️ **สตอรี่ที่ยังดำเนินอยู่ (%d เคส):**\n", len(sum.OngoingStories))
		for i, s := range sum.OngoingStories {
			fmt.Fprintf(&b, "**#%d** %s VS %s", i+1, orUnknown(s.PartyA), orUnknown(s.PartyB))
			if len(s.Medics) > 0 && s.Medics[0].Name != "" {
				fmt.Fprintf(&b, " - 👨‍⚕️ %s", s.Medics[0].Name)
			}
			b.WriteString(" _(ยังดำเนินอยู่)_\n")
		}
	}

	b.WriteString("\n" + rule)
	return b.String()
}

// ClosedCaseLine renders the permanent one-line history entry appended to
// the cases channel when a case is closed.
func ClosedCaseLine(c *model.ClosedCase, r NameResolver) string {
	var b strings.Builder

	fmt.Fprintf(&b, "⚔️ **%s VS %s**\n", orUnknown(c.PartyA), orUnknown(c.PartyB))

	location := c.Location
	if location == "" {
		location = "-"
	}
	start := c.StartTime
	if start == "" {
		start = "-"
	}
	closedAt := "-"
	if c.ClosedAt > 0 {
		closedAt = localtime.TimeOfDay(time.UnixMilli(c.ClosedAt))
	}
	fmt.Fprintf(&b, "📍 %s | ⏰ %s→%s\n", location, start, closedAt)

	mainMedic := "-"
	if len(c.Medics) > 0 && c.Medics[0] != "" {
		mainMedic = r.Mention(c.Medics[0])
	}
	fmt.Fprintf(&b, "👨‍⚕️ %s", mainMedic)
	if c.WardNumber != "" && c.WardNumber != "-" {
		fmt.Fprintf(&b, " |  วอ %s", c.WardNumber)
	}
	if c.Council != "" && c.Council != "-" {
		fmt.Fprintf(&b, " | 🏛️ %s", c.Council)
	}
	b.WriteString("\n")

	return b.String()
}
