package services

import (
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/pulsechat/pulse/api/domain"
	"github.com/pulsechat/pulse/api/protocol"
)

const (
	testConvID   = "11111111-1111-4111-8111-111111111111"
	testMsgID    = "22222222-2222-4222-8222-222222222222"
	testSenderID = "33333333-3333-4333-8333-333333333333"
	testPeerID   = "44444444-4444-4444-8444-444444444444"
)

func expectMembership(mock pgxmock.PgxPoolIface, convID, userID, role string) {
	mock.ExpectQuery("SELECT conversation_id, user_id, role, last_read_message_id, joined_at").
		WithArgs(convID, userID).
		WillReturnRows(pgxmock.NewRows([]string{"conversation_id", "user_id", "role", "last_read_message_id", "joined_at"}).
			AddRow(convID, userID, role, nil, time.Now().UTC()))
}

func expectNoMembership(mock pgxmock.PgxPoolIface, convID, userID string) {
	mock.ExpectQuery("SELECT conversation_id, user_id, role, last_read_message_id, joined_at").
		WithArgs(convID, userID).
		WillReturnRows(pgxmock.NewRows([]string{"conversation_id", "user_id", "role", "last_read_message_id", "joined_at"}))
}

func expectConversation(mock pgxmock.PgxPoolIface, convID, kind string) {
	mock.ExpectQuery("SELECT id, kind, name, created_at, updated_at").
		WithArgs(convID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "kind", "name", "created_at", "updated_at"}).
			AddRow(convID, kind, nil, time.Now().UTC(), time.Now().UTC()))
}

func expectUser(mock pgxmock.PgxPoolIface, userID string) {
	mock.ExpectQuery("SELECT id, username, display_name, avatar_url, last_seen_at, created_at").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "display_name", "avatar_url", "last_seen_at", "created_at"}).
			AddRow(userID, "ada", "Ada", nil, time.Now().UTC(), time.Now().UTC()))
}

func expectMessage(mock pgxmock.PgxPoolIface, msgID, convID, senderID string, createdAt time.Time) {
	mock.ExpectQuery("SELECT id, conversation_id, sender_id, kind, content, reply_to_id").
		WithArgs(msgID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "conversation_id", "sender_id", "kind", "content", "reply_to_id",
			"created_at", "edited_at", "delivered_at", "read_at"}).
			AddRow(msgID, convID, senderID, domain.MessageKindText, strptr("hi"), nil,
				createdAt, nil, nil, nil))
}

func TestSend_PersistsAcksThenDelivers(t *testing.T) {
	s, mock, ctx := newMockStore(t)
	pub, rec := newTestPublisher(t, testConvID)
	svc := NewMessageService(s, pub)

	expectMembership(mock, testConvID, testSenderID, domain.MemberRoleMember)
	expectConversation(mock, testConvID, domain.ConversationKindDirect)
	now := time.Now().UTC().Truncate(time.Microsecond)
	mock.ExpectQuery("INSERT INTO messages").
		WithArgs(testMsgID, testConvID, testSenderID, domain.MessageKindText, strptr("hello"), (*string)(nil), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	expectUser(mock, testSenderID)

	res, err := svc.Send(ctx, testSenderID, &protocol.SendMessage{
		ID:             testMsgID,
		ConversationID: testConvID,
		Content:        strptr("hello"),
		Type:           domain.MessageKindText,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Inserted {
		t.Error("expected a fresh insert")
	}
	if res.Wire == nil {
		t.Fatal("expected a wire message for broadcast")
	}
	if res.Wire.DeliveredAt != nil || res.Wire.ReadAt != nil {
		t.Error("new_message must carry null receipt timestamps")
	}
	if len(rec.types()) != 0 {
		t.Error("nothing may be broadcast before the ack")
	}

	// The other member is online, so announcing also advances delivered_at.
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(testConvID, testSenderID, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("UPDATE messages").
		WithArgs(testMsgID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	svc.Announce(ctx, res)

	types := rec.types()
	if len(types) != 2 || types[0] != protocol.EventNewMessage || types[1] != protocol.EventDeliveryReceipt {
		t.Errorf("broadcast order = %v, want [new_message delivery_receipt]", types)
	}
	var receipt protocol.DeliveryReceipt
	rec.decode(t, 1, &receipt)
	if receipt.MessageID != testMsgID {
		t.Errorf("receipt for message %s, want %s", receipt.MessageID, testMsgID)
	}
	checkExpectations(t, mock)
}

func TestSend_IdempotentRetrySkipsBroadcast(t *testing.T) {
	s, mock, ctx := newMockStore(t)
	pub, rec := newTestPublisher(t, testConvID)
	svc := NewMessageService(s, pub)

	firstAck := time.Now().UTC().Add(-time.Minute).Truncate(time.Microsecond)
	expectMembership(mock, testConvID, testSenderID, domain.MemberRoleMember)
	expectConversation(mock, testConvID, domain.ConversationKindDirect)
	mock.ExpectQuery("INSERT INTO messages").
		WithArgs(testMsgID, testConvID, testSenderID, domain.MessageKindText, strptr("hello"), (*string)(nil), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}))
	mock.ExpectQuery("SELECT conversation_id, sender_id, created_at FROM messages").
		WithArgs(testMsgID).
		WillReturnRows(pgxmock.NewRows([]string{"conversation_id", "sender_id", "created_at"}).
			AddRow(testConvID, testSenderID, firstAck))

	res, err := svc.Send(ctx, testSenderID, &protocol.SendMessage{
		ID:             testMsgID,
		ConversationID: testConvID,
		Content:        strptr("hello"),
		Type:           domain.MessageKindText,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Inserted {
		t.Error("retry must not count as an insert")
	}
	if !res.Message.CreatedAt.Equal(firstAck) {
		t.Errorf("ack timestamp = %v, want canonical %v", res.Message.CreatedAt, firstAck)
	}

	svc.Announce(ctx, res)
	if len(rec.types()) != 0 {
		t.Errorf("retry must not broadcast, got %v", rec.types())
	}
	checkExpectations(t, mock)
}

func TestSend_NonMemberForbidden(t *testing.T) {
	s, mock, ctx := newMockStore(t)
	pub, _ := newTestPublisher(t, testConvID)
	svc := NewMessageService(s, pub)

	expectNoMembership(mock, testConvID, testSenderID)

	_, err := svc.Send(ctx, testSenderID, &protocol.SendMessage{
		ID:             testMsgID,
		ConversationID: testConvID,
		Content:        strptr("hello"),
		Type:           domain.MessageKindText,
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestSend_ChannelRequiresAdmin(t *testing.T) {
	s, mock, ctx := newMockStore(t)
	pub, _ := newTestPublisher(t, testConvID)
	svc := NewMessageService(s, pub)

	expectMembership(mock, testConvID, testSenderID, domain.MemberRoleMember)
	expectConversation(mock, testConvID, domain.ConversationKindChannel)

	_, err := svc.Send(ctx, testSenderID, &protocol.SendMessage{
		ID:             testMsgID,
		ConversationID: testConvID,
		Content:        strptr("announcement"),
		Type:           domain.MessageKindText,
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestAnnounce_ChannelSkipsDeliveryReceipt(t *testing.T) {
	s, mock, ctx := newMockStore(t)
	pub, rec := newTestPublisher(t, testConvID)
	svc := NewMessageService(s, pub)

	expectMembership(mock, testConvID, testSenderID, domain.MemberRoleAdmin)
	expectConversation(mock, testConvID, domain.ConversationKindChannel)
	now := time.Now().UTC().Truncate(time.Microsecond)
	mock.ExpectQuery("INSERT INTO messages").
		WithArgs(testMsgID, testConvID, testSenderID, domain.MessageKindText, strptr("announcement"), (*string)(nil), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	expectUser(mock, testSenderID)

	res, err := svc.Send(ctx, testSenderID, &protocol.SendMessage{
		ID:             testMsgID,
		ConversationID: testConvID,
		Content:        strptr("announcement"),
		Type:           domain.MessageKindText,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// No presence probe and no delivered update are expected: announcing a
	// channel post must broadcast new_message and nothing else, ever.
	svc.Announce(ctx, res)

	if got := rec.types(); len(got) != 1 || got[0] != protocol.EventNewMessage {
		t.Errorf("broadcasts = %v, want only new_message", got)
	}
	checkExpectations(t, mock)
}

func TestSend_ValidationRejects(t *testing.T) {
	s, _, ctx := newMockStore(t)
	pub, _ := newTestPublisher(t)
	svc := NewMessageService(s, pub)

	long := make([]byte, MaxContentLength+1)
	for i := range long {
		long[i] = 'a'
	}

	cases := []struct {
		name string
		req  *protocol.SendMessage
	}{
		{"non-uuid id", &protocol.SendMessage{ID: "not-a-uuid", ConversationID: testConvID, Content: strptr("x"), Type: domain.MessageKindText}},
		{"non-uuid conversation", &protocol.SendMessage{ID: testMsgID, ConversationID: "nope", Content: strptr("x"), Type: domain.MessageKindText}},
		{"system kind from client", &protocol.SendMessage{ID: testMsgID, ConversationID: testConvID, Content: strptr("x"), Type: domain.MessageKindSystem}},
		{"text without content", &protocol.SendMessage{ID: testMsgID, ConversationID: testConvID, Type: domain.MessageKindText}},
		{"oversized content", &protocol.SendMessage{ID: testMsgID, ConversationID: testConvID, Content: strptr(string(long)), Type: domain.MessageKindText}},
		{"empty message", &protocol.SendMessage{ID: testMsgID, ConversationID: testConvID, Type: domain.MessageKindImage}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Send(ctx, testSenderID, tc.req); !errors.Is(err, domain.ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestEdit_WindowExpired(t *testing.T) {
	s, mock, ctx := newMockStore(t)
	pub, rec := newTestPublisher(t, testConvID)
	svc := NewMessageService(s, pub)

	created := time.Now().UTC().Add(-domain.EditWindow - time.Second)
	expectMessage(mock, testMsgID, testConvID, testSenderID, created)

	_, err := svc.Edit(ctx, testSenderID, &protocol.EditMessage{ID: testMsgID, Content: "too late"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	if len(rec.types()) != 0 {
		t.Error("failed edit must not broadcast")
	}
	checkExpectations(t, mock)
}

func TestEdit_OnlySender(t *testing.T) {
	s, mock, ctx := newMockStore(t)
	pub, _ := newTestPublisher(t, testConvID)
	svc := NewMessageService(s, pub)

	expectMessage(mock, testMsgID, testConvID, testSenderID, time.Now().UTC())

	_, err := svc.Edit(ctx, testPeerID, &protocol.EditMessage{ID: testMsgID, Content: "hijack"})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestEdit_BroadcastsUpdate(t *testing.T) {
	s, mock, ctx := newMockStore(t)
	pub, rec := newTestPublisher(t, testConvID)
	svc := NewMessageService(s, pub)

	expectMessage(mock, testMsgID, testConvID, testSenderID, time.Now().UTC())
	mock.ExpectExec("UPDATE messages").
		WithArgs(testMsgID, "revised", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	updated, err := svc.Edit(ctx, testSenderID, &protocol.EditMessage{ID: testMsgID, Content: "revised"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Content != "revised" {
		t.Errorf("Content = %q", updated.Content)
	}

	types := rec.types()
	if len(types) != 1 || types[0] != protocol.EventMessageUpdated {
		t.Errorf("broadcasts = %v, want [message_updated]", types)
	}
	checkExpectations(t, mock)
}

func TestDelete_BroadcastsTombstone(t *testing.T) {
	s, mock, ctx := newMockStore(t)
	pub, rec := newTestPublisher(t, testConvID)
	svc := NewMessageService(s, pub)

	expectMessage(mock, testMsgID, testConvID, testSenderID, time.Now().UTC())
	mock.ExpectExec("UPDATE messages").
		WithArgs(testMsgID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	deleted, err := svc.Delete(ctx, testSenderID, &protocol.DeleteMessage{ID: testMsgID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted.ConversationID != testConvID {
		t.Errorf("ConversationID = %q", deleted.ConversationID)
	}

	types := rec.types()
	if len(types) != 1 || types[0] != protocol.EventMessageDeleted {
		t.Errorf("broadcasts = %v, want [message_deleted]", types)
	}
	checkExpectations(t, mock)
}
