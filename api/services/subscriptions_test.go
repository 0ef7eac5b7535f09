package services

import (
	"errors"
	"testing"
	"time"

	"github.com/pulsechat/pulse/api/domain"
	"github.com/pulsechat/pulse/api/protocol"
)

func TestAuthorize_SplitsByMembership(t *testing.T) {
	s, mock, ctx := newMockStore(t)
	svc := NewSubscriptionService(s)

	memberConv := testConvID
	strangerConv := "77777777-7777-4777-8777-777777777777"
	expectMembership(mock, memberConv, testPeerID, domain.MemberRoleMember)
	expectNoMembership(mock, strangerConv, testPeerID)

	allowed, denied, err := svc.Authorize(ctx, testPeerID, []string{memberConv, strangerConv})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allowed) != 1 || allowed[0] != memberConv {
		t.Errorf("allowed = %v", allowed)
	}
	if len(denied) != 1 || denied[0] != strangerConv {
		t.Errorf("denied = %v", denied)
	}
	checkExpectations(t, mock)
}

func TestAuthorize_MalformedIDFailsWholeRequest(t *testing.T) {
	s, _, ctx := newMockStore(t)
	svc := NewSubscriptionService(s)

	_, _, err := svc.Authorize(ctx, testPeerID, []string{testConvID, "not-a-uuid"})
	if !errors.Is(err, domain.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestTypingRelay_FillsSenderIdentity(t *testing.T) {
	s, mock, ctx := newMockStore(t)
	pub, rec := newTestPublisher(t, testConvID)
	svc := NewTypingService(s, pub, 500*time.Millisecond)

	expectMembership(mock, testConvID, testPeerID, domain.MemberRoleMember)

	// A spoofed UserID in the request is overwritten by the server.
	err := svc.Relay(ctx, testPeerID, &protocol.Typing{
		ConversationID: testConvID,
		UserID:         testSenderID,
		IsTyping:       true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var relayed protocol.Typing
	rec.decode(t, 0, &relayed)
	if relayed.UserID != testPeerID {
		t.Errorf("relayed UserID = %q, want authenticated %q", relayed.UserID, testPeerID)
	}
	if !relayed.IsTyping {
		t.Error("IsTyping lost in relay")
	}
	checkExpectations(t, mock)
}

func TestTypingRelay_NonMemberForbidden(t *testing.T) {
	s, mock, ctx := newMockStore(t)
	pub, rec := newTestPublisher(t, testConvID)
	svc := NewTypingService(s, pub, 500*time.Millisecond)

	expectNoMembership(mock, testConvID, testPeerID)

	err := svc.Relay(ctx, testPeerID, &protocol.Typing{ConversationID: testConvID, IsTyping: true})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if len(rec.types()) != 0 {
		t.Error("forbidden typing must not broadcast")
	}
	checkExpectations(t, mock)
}

func TestTypingRelay_ThrottlesBursts(t *testing.T) {
	s, mock, ctx := newMockStore(t)
	pub, rec := newTestPublisher(t, testConvID)
	svc := NewTypingService(s, pub, time.Minute)

	// One membership lookup: throttled repeats drop before the store.
	expectMembership(mock, testConvID, testPeerID, domain.MemberRoleMember)

	for i := 0; i < 3; i++ {
		err := svc.Relay(ctx, testPeerID, &protocol.Typing{ConversationID: testConvID, IsTyping: true})
		if err != nil {
			t.Fatalf("relay %d: %v", i, err)
		}
	}

	if got := rec.types(); len(got) != 1 || got[0] != protocol.EventTyping {
		t.Fatalf("broadcasts = %v, want exactly one typing", got)
	}
	checkExpectations(t, mock)
}
