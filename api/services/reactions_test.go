package services

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/pulsechat/pulse/api/domain"
	"github.com/pulsechat/pulse/api/protocol"
)

func TestReact_UpsertBroadcasts(t *testing.T) {
	s, mock, ctx := newMockStore(t)
	pub, rec := newTestPublisher(t, testConvID)
	svc := NewReactionService(s, pub)

	expectMessage(mock, testMsgID, testConvID, testSenderID, time.Now().UTC())
	expectMembership(mock, testConvID, testPeerID, domain.MemberRoleMember)
	mock.ExpectExec("INSERT INTO reactions").
		WithArgs(testMsgID, testPeerID, "👍", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := svc.React(ctx, testPeerID, &protocol.React{MessageID: testMsgID, Emoji: strptr("👍")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	types := rec.types()
	if len(types) != 1 || types[0] != protocol.EventReactionUpdated {
		t.Fatalf("broadcasts = %v, want [reaction_updated]", types)
	}
	var update protocol.ReactionUpdated
	rec.decode(t, 0, &update)
	if update.Emoji == nil || *update.Emoji != "👍" {
		t.Errorf("update = %+v", update)
	}
	checkExpectations(t, mock)
}

func TestReact_RemoveAbsentIsSilent(t *testing.T) {
	s, mock, ctx := newMockStore(t)
	pub, rec := newTestPublisher(t, testConvID)
	svc := NewReactionService(s, pub)

	expectMessage(mock, testMsgID, testConvID, testSenderID, time.Now().UTC())
	expectMembership(mock, testConvID, testPeerID, domain.MemberRoleMember)
	mock.ExpectExec("DELETE FROM reactions").
		WithArgs(testMsgID, testPeerID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := svc.React(ctx, testPeerID, &protocol.React{MessageID: testMsgID, Emoji: nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.types()) != 0 {
		t.Errorf("removing a missing reaction must not broadcast, got %v", rec.types())
	}
	checkExpectations(t, mock)
}

func TestReact_RemoveBroadcastsNullEmoji(t *testing.T) {
	s, mock, ctx := newMockStore(t)
	pub, rec := newTestPublisher(t, testConvID)
	svc := NewReactionService(s, pub)

	expectMessage(mock, testMsgID, testConvID, testSenderID, time.Now().UTC())
	expectMembership(mock, testConvID, testPeerID, domain.MemberRoleMember)
	mock.ExpectExec("DELETE FROM reactions").
		WithArgs(testMsgID, testPeerID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := svc.React(ctx, testPeerID, &protocol.React{MessageID: testMsgID, Emoji: nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var update protocol.ReactionUpdated
	rec.decode(t, 0, &update)
	if update.Emoji != nil {
		t.Errorf("removal must broadcast a null emoji, got %q", *update.Emoji)
	}
	checkExpectations(t, mock)
}

func TestReact_BadEmoji(t *testing.T) {
	s, _, ctx := newMockStore(t)
	pub, _ := newTestPublisher(t)
	svc := NewReactionService(s, pub)

	for _, emoji := range []string{"", strings.Repeat("x", maxEmojiLength+1), "\xff\xfe"} {
		err := svc.React(ctx, testPeerID, &protocol.React{MessageID: testMsgID, Emoji: &emoji})
		if !errors.Is(err, domain.ErrInvalid) {
			t.Errorf("emoji %q: expected ErrInvalid, got %v", emoji, err)
		}
	}
}
