// Package model defines the domain records shared between the store,
// the renderers and the reconciliation services.
package model

import "encoding/json"

// NoOperator is the sentinel stored in CurrentOP when no shift is active.
const NoOperator = "ไม่มี"

// Medic status values as written by the OP web app.
const (
	StatusAccept  = "accept"  // ready, in queue
	StatusWaitFix = "waitfix" // waiting on a fix case
	StatusDecline = "decline" // not accepting cases
)

// Roster member status values.
const (
	RosterWorking = "ปฏิบัติงาน"
	RosterOnLeave = "ลางาน"
)

// Shift summary types.
const (
	SummaryEndShift = "end_shift"
	SummaryHandover = "handover"
	SummaryForceEnd = "force_end"
	SummaryRequest  = "request"
)

// ShiftSnapshot is the single live mutable shift-state document
// (op_data/current). Missing fields decode to their zero values; the
// renderers treat those as safe empties.
type ShiftSnapshot struct {
	CurrentOP     string            `json:"currentOP"`
	SupOP         string            `json:"supOP"`
	OnDuty        []string          `json:"onDuty"`
	OffDuty       []string          `json:"offDuty"`
	AFK           []string          `json:"afk"`
	AFKTimes      map[string]int64  `json:"afkTimes"` // name -> epoch millis
	MedicStatuses map[string]string `json:"medicStatuses"`
	Cases         []Case            `json:"cases"`
	ActiveEvents  []Event           `json:"activeEvents"`
	LastModified  int64             `json:"_lastModified"` // epoch millis
}

// ShiftIdle reports whether the snapshot represents "no active shift".
func (s *ShiftSnapshot) ShiftIdle() bool {
	return s.CurrentOP == "" || s.CurrentOP == NoOperator
}

// Case is one story case in the live queue. Closed cases stay in the
// list with Closed set; closure never removes them.
type Case struct {
	ID        string   `json:"id"`
	PartyA    string   `json:"partyA"`
	PartyB    string   `json:"partyB"`
	Location  string   `json:"location"`
	StartTime string   `json:"startTime"` // HH:MM
	StoryDate string   `json:"storyDate"` // YYYY-MM-DD, may be empty on legacy records
	CreatedAt int64    `json:"createdAt"` // epoch millis, 0 when unknown
	Medics    []string `json:"medics"`    // first entry is the responsible medic
	Closed    bool     `json:"closed"`
}

// Event is an active server event shown at the bottom of the queue view.
type Event struct {
	Emoji  string   `json:"emoji"`
	Name   string   `json:"name"`
	Medics []string `json:"medics"`
}

// FlexName decodes either a bare string or an object with a "name" field.
// Older summary records stored plain names, newer ones {name, badge}.
type FlexName struct {
	Name  string `json:"name"`
	Badge string `json:"badge"`
}

// UnmarshalJSON accepts both "Alice" and {"name":"Alice","badge":"SS"}.
func (f *FlexName) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.Name = s
		f.Badge = ""
		return nil
	}
	type alias FlexName
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*f = FlexName(a)
	return nil
}

// SummaryCase is a case as embedded in a shift summary record.
type SummaryCase struct {
	PartyA    string     `json:"partyA"`
	PartyB    string     `json:"partyB"`
	StartTime string     `json:"startTime"`
	Medics    []FlexName `json:"medics"`
}

// ShiftSummary is one append-only shift_summaries record.
type ShiftSummary struct {
	RecordID        string        `json:"-"` // store key, not part of the document body
	Type            string        `json:"type"`
	OP              string        `json:"op"`
	SupOP           string        `json:"supOP"`
	StartTime       string        `json:"startTime"`
	EndTime         string        `json:"endTime"`
	Duration        string        `json:"duration"`
	OnDuty          []FlexName    `json:"onDuty"`
	OffDuty         []FlexName    `json:"offDuty"`
	Stories         []SummaryCase `json:"stories"`        // closed during the shift
	OngoingStories  []SummaryCase `json:"ongoingStories"` // still open at shift end
	CreatedAt       int64         `json:"createdAt"`
	PostedToDiscord bool          `json:"postedToDiscord"`
}

// ClosedCase is one append-only closed_cases record, posted once as a
// permanent history line.
type ClosedCase struct {
	RecordID        string   `json:"-"`
	PartyA          string   `json:"partyA"`
	PartyB          string   `json:"partyB"`
	Location        string   `json:"location"`
	StartTime       string   `json:"startTime"`
	StoryDate       string   `json:"storyDate"`
	Medics          []string `json:"medics"`
	ClosedAt        int64    `json:"closedAt"` // epoch millis
	WardNumber      string   `json:"wardNumber"`
	Council         string   `json:"council"`
	PostedToDiscord bool     `json:"postedToDiscord"`
}

// MessageBindings is the durable cursor mapping each view to the Discord
// message currently representing it, plus the day-scoped case batch state.
// It lives in the config/discord_message document and survives restarts.
type MessageBindings struct {
	OpChannelMessageID string   `json:"opChannelMessageId"`
	StoryMessageID     string   `json:"storyMessageId"`
	SummarizedStoryIDs []string `json:"summarizedStoryIds"`
	SummarizedDate     string   `json:"summarizedDate"` // YYYY-MM-DD of the last reset
	SummaryJustPosted  bool     `json:"summaryJustPosted"`
}

// Summarized reports whether a case id is already folded into a finalized
// summary message for the current day.
func (b *MessageBindings) Summarized(caseID string) bool {
	for _, id := range b.SummarizedStoryIDs {
		if id == caseID {
			return true
		}
	}
	return false
}

// RosterMember is one entry of the cms_content/roster document.
type RosterMember struct {
	Name       string `json:"name"`
	DiscordID  string `json:"discordId"`
	Status     string `json:"status"`
	StatusDate string `json:"statusDate"` // RFC3339 leave end, empty when not on leave
	ImageURL   string `json:"imageUrl"`
}

// OpUser is one op_users record, keyed by username. It links an in-character
// name to a Discord account and an in-character phone number.
type OpUser struct {
	Username        string `json:"-"` // record key
	DiscordID       string `json:"discordId"`
	ICPhone         string `json:"icPhone"`
	FirstName       string `json:"firstName"`
	FullName        string `json:"fullName"`
	Avatar          string `json:"avatar"`
	DiscordAvatar   string `json:"discordAvatar"`
	DiscordUsername string `json:"discordUsername"`
	LastAvatarSync  int64  `json:"lastAvatarSync"`
}

// Settings is the store settings document consulted by the approval flows.
type Settings struct {
	ApproverIDs []string `json:"approverIds"`
}

// Applicant is an approved recruit awaiting the verification post in the
// approve channel. The web app appends a record when it flips an
// application to approved.
type Applicant struct {
	RecordID        string `json:"-"`
	Name            string `json:"icName"`
	DiscordID       string `json:"discordId"`
	CreatedAt       int64  `json:"createdAt"`
	PostedToDiscord bool   `json:"postedToDiscord"`
}

// BotStatus is the operator kill switch written by the web app. A nil
// Active means the document was never written and the bridge stays on.
type BotStatus struct {
	Active *bool `json:"active"`
}

// OpMessage is a captured queue-channel message stored for the web app.
type OpMessage struct {
	Type       string `json:"type"`
	AuthorID   string `json:"authorId"`
	AuthorName string `json:"authorName"`
	Badge      string `json:"badge"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"`
}

// LogEntry is one bot_logs record.
type LogEntry struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`
}
