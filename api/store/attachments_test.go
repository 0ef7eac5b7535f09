package store

import (
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/pulsechat/pulse/api/domain"
)

const (
	linkMsgID      = "6f1f4a1e-0000-4000-8000-000000000001"
	linkUploaderID = "6f1f4a1e-0000-4000-8000-0000000000a1"
)

func TestLinkAttachments_LinksAllOwned(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := New(nil)
	ctx := mockContext(mock)
	ids := []string{
		"6f1f4a1e-0000-4000-8000-0000000000f1",
		"6f1f4a1e-0000-4000-8000-0000000000f2",
	}

	mock.ExpectExec("UPDATE attachments").
		WithArgs(linkMsgID, linkUploaderID, ids).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	if err := s.LinkAttachments(ctx, linkMsgID, linkUploaderID, ids); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLinkAttachments_RejectsForeignUpload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := New(nil)
	ctx := mockContext(mock)
	ids := []string{
		"6f1f4a1e-0000-4000-8000-0000000000f1",
		"6f1f4a1e-0000-4000-8000-0000000000f2",
	}

	// One of the two ids belongs to another uploader or is already linked:
	// the guarded update skips it and the whole link fails.
	mock.ExpectExec("UPDATE attachments").
		WithArgs(linkMsgID, linkUploaderID, ids).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = s.LinkAttachments(ctx, linkMsgID, linkUploaderID, ids)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLinkAttachments_EmptyListIsNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	s := New(nil)
	ctx := mockContext(mock)

	if err := s.LinkAttachments(ctx, linkMsgID, linkUploaderID, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
