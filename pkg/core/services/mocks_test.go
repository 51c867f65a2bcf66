package services

import (
	"context"
	"fmt"
	"time"

	"github.com/onecitymedic/opbridge/pkg/core/model"
	"github.com/onecitymedic/opbridge/pkg/db"
)

// fakeMessenger records outgoing Discord traffic in order.
type fakeMessenger struct {
	ops     []string // "send:<channel>", "edit:<channel>:<id>", "delete:<channel>:<id>"
	sent    []string // message bodies, in send order
	sentIDs []string
	edits   []string // edited bodies, in edit order
	nextID  int

	sendErr   error
	editErr   error
	deleteErr error
}

func (m *fakeMessenger) SendMessage(channelID, content string) (string, error) {
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.nextID++
	id := fmt.Sprintf("msg-%d", m.nextID)
	m.ops = append(m.ops, "send:"+channelID)
	m.sent = append(m.sent, content)
	m.sentIDs = append(m.sentIDs, id)
	return id, nil
}

func (m *fakeMessenger) EditMessage(channelID, messageID, content string) error {
	if m.editErr != nil {
		return m.editErr
	}
	m.ops = append(m.ops, "edit:"+channelID+":"+messageID)
	m.edits = append(m.edits, content)
	return nil
}

func (m *fakeMessenger) DeleteMessage(channelID, messageID string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.ops = append(m.ops, "delete:"+channelID+":"+messageID)
	return nil
}

// fakeStore is an in-memory stand-in for the db.Store surfaces the
// services consume.
type fakeStore struct {
	snapshot    *model.ShiftSnapshot
	snapshotErr error

	bindings    model.MessageBindings
	bindingsErr error
	updateErr   error

	summary       *model.ShiftSummary
	summaryErr    error
	markedSummary []string
	markErr       error

	closedCase  *model.ClosedCase
	markedCases []string

	roster      []model.RosterMember
	rosterErr   error
	rosterSaves int

	settings model.Settings

	users    []model.OpUser
	putUsers []model.OpUser

	applicant        *model.Applicant
	markedApplicants []string

	opMessages []model.OpMessage
	logs       []string
}

func (f *fakeStore) CurrentSnapshot(ctx context.Context) (*model.ShiftSnapshot, error) {
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	if f.snapshot == nil {
		return nil, db.ErrNotFound
	}
	return f.snapshot, nil
}

func (f *fakeStore) Bindings(ctx context.Context) (*model.MessageBindings, error) {
	if f.bindingsErr != nil {
		return nil, f.bindingsErr
	}
	b := f.bindings
	return &b, nil
}

func (f *fakeStore) UpdateBindings(ctx context.Context, mutate func(*model.MessageBindings)) (*model.MessageBindings, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	mutate(&f.bindings)
	b := f.bindings
	return &b, nil
}

func (f *fakeStore) LatestUnpostedSummary(ctx context.Context) (*model.ShiftSummary, error) {
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	return f.summary, nil
}

func (f *fakeStore) MarkSummaryPosted(ctx context.Context, id string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.markedSummary = append(f.markedSummary, id)
	return nil
}

func (f *fakeStore) LatestUnpostedClosedCase(ctx context.Context) (*model.ClosedCase, error) {
	return f.closedCase, nil
}

func (f *fakeStore) MarkClosedCasePosted(ctx context.Context, id string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.markedCases = append(f.markedCases, id)
	return nil
}

func (f *fakeStore) LatestUnpostedApplicant(ctx context.Context) (*model.Applicant, error) {
	return f.applicant, nil
}

func (f *fakeStore) MarkApplicantPosted(ctx context.Context, id string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.markedApplicants = append(f.markedApplicants, id)
	return nil
}

func (f *fakeStore) Roster(ctx context.Context) ([]model.RosterMember, error) {
	if f.rosterErr != nil {
		return nil, f.rosterErr
	}
	return f.roster, nil
}

func (f *fakeStore) SaveRoster(ctx context.Context, items []model.RosterMember) error {
	f.roster = items
	f.rosterSaves++
	return nil
}

func (f *fakeStore) Settings(ctx context.Context) (*model.Settings, error) {
	s := f.settings
	return &s, nil
}

func (f *fakeStore) ListOpUsers(ctx context.Context) ([]model.OpUser, error) {
	return f.users, nil
}

func (f *fakeStore) PutOpUser(ctx context.Context, u model.OpUser) error {
	f.putUsers = append(f.putUsers, u)
	return nil
}

func (f *fakeStore) AppendOpMessage(ctx context.Context, msg model.OpMessage) error {
	f.opMessages = append(f.opMessages, msg)
	return nil
}

func (f *fakeStore) AppendLog(ctx context.Context, level, message string) error {
	f.logs = append(f.logs, level+": "+message)
	return nil
}

// fakeReplier records reaction and reply traffic for the leave flow.
type fakeReplier struct {
	reactions []string
	replies   []string
	deleted   []string
	nextID    int

	reactErr error
	replyErr error
}

func (r *fakeReplier) React(channelID, messageID, emoji string) error {
	if r.reactErr != nil {
		return r.reactErr
	}
	r.reactions = append(r.reactions, emoji)
	return nil
}

func (r *fakeReplier) Reply(channelID, messageID, content string) (string, error) {
	if r.replyErr != nil {
		return "", r.replyErr
	}
	r.nextID++
	id := fmt.Sprintf("reply-%d", r.nextID)
	r.replies = append(r.replies, content)
	return id, nil
}

func (r *fakeReplier) DeleteAfter(channelID, messageID string, delay time.Duration) {
	r.deleted = append(r.deleted, messageID)
}

// fakeDM records welcome direct messages.
type fakeDM struct {
	dms   []string // "<user>:<content>"
	dmErr error
}

func (d *fakeDM) SendDM(userID, content string) error {
	if d.dmErr != nil {
		return d.dmErr
	}
	d.dms = append(d.dms, userID+":"+content)
	return nil
}
