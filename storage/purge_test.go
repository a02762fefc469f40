package storage

import (
	"context"
	"path/filepath"
	"testing"

	"mailbridge/models"
)

func newTestMedia(t *testing.T) *MediaStore {
	t.Helper()

	media, err := NewMediaStore(t.TempDir())
	if err != nil {
		t.Fatalf("creating media store: %v", err)
	}
	return media
}

func TestPurgeAccountRemovesEverything(t *testing.T) {
	s := newTestStore(t)
	media := newTestMedia(t)
	ctx := context.Background()

	account := newTestAccount(t, s)
	inbox := newTestFolder(t, s, account.ID, "INBOX", models.FolderInbox)

	msg := newTestMessage(account.ID, "uid-1")
	if err := s.UpsertMessage(ctx, msg, []int64{inbox.ID}); err != nil {
		t.Fatalf("upserting message: %v", err)
	}
	if err := s.AddAssociations(ctx, msg.ID, []models.Association{
		{ResourceType: models.ResourceContact, ResourceID: 7},
	}); err != nil {
		t.Fatalf("adding association: %v", err)
	}

	path, err := media.Save("report.pdf", []byte("content"))
	if err != nil {
		t.Fatalf("saving media: %v", err)
	}
	if err := s.AddAttachment(ctx, &models.Attachment{
		MessageID:   msg.ID,
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Size:        7,
		Path:        path,
	}); err != nil {
		t.Fatalf("adding attachment: %v", err)
	}

	if err := s.PurgeAccount(ctx, account.ID, media); err != nil {
		t.Fatalf("purging account: %v", err)
	}

	if _, err := s.GetAccount(ctx, account.ID); err != ErrNotFound {
		t.Fatalf("expected account gone, got %v", err)
	}
	if _, err := s.GetMessage(ctx, msg.ID); err != ErrNotFound {
		t.Fatalf("expected message gone, got %v", err)
	}
	if _, err := s.FolderByID(ctx, inbox.ID); err != ErrNotFound {
		t.Fatalf("expected folder gone, got %v", err)
	}
	if _, err := media.Read(path); err == nil {
		t.Fatal("expected media file removed")
	}
}

func TestPurgeMessageDetachesAssociations(t *testing.T) {
	s := newTestStore(t)
	media := newTestMedia(t)
	ctx := context.Background()

	account := newTestAccount(t, s)
	inbox := newTestFolder(t, s, account.ID, "INBOX", models.FolderInbox)

	linked := newTestMessage(account.ID, "uid-linked")
	if err := s.UpsertMessage(ctx, linked, []int64{inbox.ID}); err != nil {
		t.Fatalf("upserting linked message: %v", err)
	}
	if err := s.AddAssociations(ctx, linked.ID, []models.Association{
		{ResourceType: models.ResourceDeal, ResourceID: 11},
	}); err != nil {
		t.Fatalf("adding association: %v", err)
	}
	plain := newTestMessage(account.ID, "uid-plain")
	if err := s.UpsertMessage(ctx, plain, []int64{inbox.ID}); err != nil {
		t.Fatalf("upserting plain message: %v", err)
	}

	if err := s.PurgeMessage(ctx, linked.ID, media); err != nil {
		t.Fatalf("purging linked message: %v", err)
	}
	if err := s.PurgeMessage(ctx, plain.ID, media); err != nil {
		t.Fatalf("purging plain message: %v", err)
	}

	for _, id := range []int64{linked.ID, plain.ID} {
		if _, err := s.GetMessage(ctx, id); err != ErrNotFound {
			t.Fatalf("expected message %d gone, got %v", id, err)
		}
		assocs, err := s.Associations(ctx, id)
		if err != nil {
			t.Fatalf("listing associations after purge: %v", err)
		}
		if len(assocs) != 0 {
			t.Fatalf("expected associations gone for message %d, got %v", id, assocs)
		}
	}
}

func TestPurgeFolderKeepsSharedMessages(t *testing.T) {
	s := newTestStore(t)
	media := newTestMedia(t)
	ctx := context.Background()

	account := newTestAccount(t, s)
	inbox := newTestFolder(t, s, account.ID, "INBOX", models.FolderInbox)
	work := newTestFolder(t, s, account.ID, "Work", models.FolderOther)

	shared := newTestMessage(account.ID, "uid-shared")
	if err := s.UpsertMessage(ctx, shared, []int64{inbox.ID, work.ID}); err != nil {
		t.Fatalf("upserting shared message: %v", err)
	}
	only := newTestMessage(account.ID, "uid-only")
	if err := s.UpsertMessage(ctx, only, []int64{work.ID}); err != nil {
		t.Fatalf("upserting single-folder message: %v", err)
	}

	if err := s.PurgeFolder(ctx, work.ID, media); err != nil {
		t.Fatalf("purging folder: %v", err)
	}

	if _, err := s.FolderByID(ctx, work.ID); err != ErrNotFound {
		t.Fatalf("expected folder gone, got %v", err)
	}
	if _, err := s.GetMessage(ctx, only.ID); err != ErrNotFound {
		t.Fatalf("expected single-membership message gone, got %v", err)
	}

	kept, err := s.GetMessage(ctx, shared.ID)
	if err != nil {
		t.Fatalf("expected shared message kept, got %v", err)
	}
	if len(kept.Folders) != 1 || kept.Folders[0] != inbox.ID {
		t.Fatalf("expected membership reduced to inbox, got %v", kept.Folders)
	}
}

func TestMediaStoreRemoveIdempotent(t *testing.T) {
	media := newTestMedia(t)

	path, err := media.Save("a.txt", []byte("x"))
	if err != nil {
		t.Fatalf("saving: %v", err)
	}
	if err := media.Remove(path); err != nil {
		t.Fatalf("removing: %v", err)
	}
	if err := media.Remove(path); err != nil {
		t.Fatalf("removing again must not fail: %v", err)
	}
}

func TestMediaStoreDistinctNames(t *testing.T) {
	media := newTestMedia(t)

	first, err := media.Save("report.pdf", []byte("one"))
	if err != nil {
		t.Fatalf("saving first: %v", err)
	}
	second, err := media.Save("report.pdf", []byte("two"))
	if err != nil {
		t.Fatalf("saving second: %v", err)
	}
	if first == second {
		t.Fatal("colliding filenames must store under distinct paths")
	}
	if filepath.Ext(first) != ".pdf" {
		t.Fatalf("expected extension kept, got %s", first)
	}
}
