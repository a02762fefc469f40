package storage

import (
	"context"
	"testing"

	"mailbridge/models"
)

func TestUpsertFolderIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	account := newTestAccount(t, s)

	// Same IMAP name twice resolves to the same folder.
	first := newTestFolder(t, s, account.ID, "Archive", models.FolderOther)
	second := &models.Folder{
		AccountID:      account.ID,
		IdentifierKind: models.IdentifierName,
		IdentifierVal:  "Archive",
		Name:           "Archive",
		Type:           models.FolderOther,
		Selectable:     true,
	}
	if err := s.UpsertFolder(ctx, second); err != nil {
		t.Fatalf("re-upserting folder: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("same name must resolve to same folder: got %d, want %d", second.ID, first.ID)
	}

	// Two id-addressed folders with equal display names stay distinct.
	labelA := &models.Folder{
		AccountID:      account.ID,
		IdentifierKind: models.IdentifierID,
		IdentifierVal:  "Label_1",
		Name:           "Projects",
		Type:           models.FolderOther,
		Selectable:     true,
	}
	labelB := &models.Folder{
		AccountID:      account.ID,
		IdentifierKind: models.IdentifierID,
		IdentifierVal:  "Label_2",
		Name:           "Projects",
		Type:           models.FolderOther,
		Selectable:     true,
	}
	if err := s.UpsertFolder(ctx, labelA); err != nil {
		t.Fatalf("upserting label A: %v", err)
	}
	if err := s.UpsertFolder(ctx, labelB); err != nil {
		t.Fatalf("upserting label B: %v", err)
	}
	if labelA.ID == labelB.ID {
		t.Fatal("distinct remote ids must never collide on display name")
	}
}

func TestUpsertFolderKeepsSyncableFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	account := newTestAccount(t, s)
	folder := newTestFolder(t, s, account.ID, "Newsletter", models.FolderOther)

	if err := s.SetFolderSyncable(ctx, folder.ID, false); err != nil {
		t.Fatalf("disabling sync on folder: %v", err)
	}

	// A registry refresh reports the folder again, syncable by default.
	refresh := &models.Folder{
		AccountID:      account.ID,
		IdentifierKind: models.IdentifierName,
		IdentifierVal:  "Newsletter",
		Name:           "Newsletter",
		Type:           models.FolderOther,
		Syncable:       true,
		Selectable:     true,
	}
	if err := s.UpsertFolder(ctx, refresh); err != nil {
		t.Fatalf("refreshing folder: %v", err)
	}
	if refresh.Syncable {
		t.Fatal("refresh must not overwrite the locally disabled syncable flag")
	}
}

func TestListFoldersDisplayOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	account := newTestAccount(t, s)
	newTestFolder(t, s, account.ID, "Zebra", models.FolderOther)
	newTestFolder(t, s, account.ID, "Trash", models.FolderTrash)
	newTestFolder(t, s, account.ID, "Alpha", models.FolderOther)
	newTestFolder(t, s, account.ID, "Sent", models.FolderSent)
	newTestFolder(t, s, account.ID, "INBOX", models.FolderInbox)

	folders, err := s.ListFolders(ctx, account.ID)
	if err != nil {
		t.Fatalf("listing folders: %v", err)
	}

	want := []string{"INBOX", "Sent", "Trash", "Alpha", "Zebra"}
	if len(folders) != len(want) {
		t.Fatalf("expected %d folders, got %d", len(want), len(folders))
	}
	for i, name := range want {
		if folders[i].Name != name {
			t.Fatalf("position %d: expected %s, got %s", i, name, folders[i].Name)
		}
	}
}

func TestUnreadCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	account := newTestAccount(t, s)
	inbox := newTestFolder(t, s, account.ID, "INBOX", models.FolderInbox)
	work := newTestFolder(t, s, account.ID, "Work", models.FolderOther)

	for i, remoteID := range []string{"uid-1", "uid-2", "uid-3"} {
		msg := newTestMessage(account.ID, remoteID)
		msg.Read = i == 2
		if err := s.UpsertMessage(ctx, msg, []int64{inbox.ID}); err != nil {
			t.Fatalf("upserting %s: %v", remoteID, err)
		}
	}

	folders, err := s.ListFolders(ctx, account.ID)
	if err != nil {
		t.Fatalf("listing folders: %v", err)
	}

	counts := make(map[int64]int)
	for _, f := range folders {
		counts[f.ID] = f.UnreadCount
	}
	if counts[inbox.ID] != 2 {
		t.Fatalf("expected 2 unread in inbox, got %d", counts[inbox.ID])
	}
	if counts[work.ID] != 0 {
		t.Fatalf("expected 0 unread in empty folder, got %d", counts[work.ID])
	}

	// Marking one read decrements the projection by exactly one.
	msg, err := s.MessageByRemoteID(ctx, account.ID, "uid-1")
	if err != nil {
		t.Fatalf("resolving message: %v", err)
	}
	if err := s.SetRead(ctx, msg.ID, true); err != nil {
		t.Fatalf("setting read: %v", err)
	}

	folders, _ = s.ListFolders(ctx, account.ID)
	for _, f := range folders {
		if f.ID == inbox.ID && f.UnreadCount != 1 {
			t.Fatalf("expected unread count 1 after read, got %d", f.UnreadCount)
		}
	}
}
