package syncer

import (
	"context"
	"testing"
	"time"

	"mailbridge/models"
	"mailbridge/providers"
	"mailbridge/storage"
	"mailbridge/utils"
)

// fakeClient is an in-memory providers.Client for service tests.
type fakeClient struct {
	folders  []providers.RemoteFolder
	messages map[string][]providers.RemoteMessage // keyed by folder identifier string

	markReadErr error
	readCalls   []string
}

func (f *fakeClient) ListFolders(ctx context.Context) ([]providers.RemoteFolder, error) {
	return f.folders, nil
}

func (f *fakeClient) FetchMessages(ctx context.Context, folder models.FolderIdentifier, since time.Time) ([]providers.RemoteMessage, error) {
	return f.messages[folder.String()], nil
}

func (f *fakeClient) FetchMessage(ctx context.Context, remoteID string, folder models.FolderIdentifier) (*providers.RemoteMessage, error) {
	for _, msgs := range f.messages {
		for i := range msgs {
			if msgs[i].RemoteID == remoteID {
				return &msgs[i], nil
			}
		}
	}
	return nil, &providers.MessageNotFoundError{RemoteID: remoteID}
}

func (f *fakeClient) MarkRead(ctx context.Context, remoteID string, folder models.FolderIdentifier) error {
	if f.markReadErr != nil {
		return f.markReadErr
	}
	f.readCalls = append(f.readCalls, remoteID)
	return nil
}

func (f *fakeClient) MarkUnread(ctx context.Context, remoteID string, folder models.FolderIdentifier) error {
	return f.markReadErr
}

func (f *fakeClient) DeleteMessage(ctx context.Context, remoteID string) error { return nil }

func (f *fakeClient) SendMessage(ctx context.Context, msg *providers.OutgoingMessage) (*providers.SendReceipt, error) {
	return &providers.SendReceipt{RemoteID: "sent-1"}, nil
}

func (f *fakeClient) Close() error { return nil }

// fakeFactory hands out a fixed client, or an error.
type fakeFactory struct {
	client providers.Client
	err    error
}

func (f *fakeFactory) CreateClient(ctx context.Context, account *models.Account) (providers.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

func newTestService(t *testing.T, factory providers.ClientFactory) (*Service, *storage.Store) {
	t.Helper()

	store, err := storage.OpenMemory()
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	media, err := storage.NewMediaStore(t.TempDir())
	if err != nil {
		t.Fatalf("opening media store: %v", err)
	}

	return NewService(store, media, factory, nil, utils.Log), store
}

func newTestAccount(t *testing.T, store *storage.Store) *models.Account {
	t.Helper()

	account := &models.Account{
		Email:          "box@example.com",
		ConnectionType: models.ConnectionIMAP,
		Credentials:    "{}",
	}
	if err := store.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("creating account: %v", err)
	}
	return account
}

func inboxClient(unread int) *fakeClient {
	inbox := models.FolderIdentifier{Kind: models.IdentifierName, Value: "INBOX"}

	var msgs []providers.RemoteMessage
	for i := 0; i < unread; i++ {
		msgs = append(msgs, providers.RemoteMessage{
			RemoteID: "uid-" + string(rune('a'+i)),
			Subject:  "msg",
			From:     providers.RemoteAddress{Address: "peer@example.com"},
			Date:     time.Date(2026, 3, 1, 10, i, 0, 0, time.UTC),
		})
	}

	return &fakeClient{
		folders: []providers.RemoteFolder{
			{Identifier: inbox, Name: "INBOX", Type: models.FolderInbox, Selectable: true},
			{
				Identifier: models.FolderIdentifier{Kind: models.IdentifierName, Value: "Sent"},
				Name:       "Sent", Type: models.FolderSent, Selectable: true,
			},
		},
		messages: map[string][]providers.RemoteMessage{
			inbox.String(): msgs,
		},
	}
}

func TestPullIngestsUnreadMessages(t *testing.T) {
	client := inboxClient(3)
	service, store := newTestService(t, &fakeFactory{client: client})
	ctx := context.Background()

	account := newTestAccount(t, store)
	if err := service.Pull(ctx, account); err != nil {
		t.Fatalf("pull: %v", err)
	}

	inbox, err := store.FolderByIdentifier(ctx, account.ID,
		models.FolderIdentifier{Kind: models.IdentifierName, Value: "INBOX"})
	if err != nil {
		t.Fatalf("resolving inbox: %v", err)
	}

	page, err := store.ListMessages(ctx, inbox.ID, 1, 10)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if page.TotalMessages != 3 {
		t.Fatalf("expected 3 ingested messages, got %d", page.TotalMessages)
	}
	for _, m := range page.Messages {
		if m.Read {
			t.Fatalf("expected message %s unread", m.RemoteID)
		}
	}

	// Sent folder was designated on the account.
	got, _ := store.GetAccount(ctx, account.ID)
	if got.SentFolderID == nil {
		t.Fatal("expected sent folder designated")
	}
	if got.LastSyncAt == nil {
		t.Fatal("expected last_sync_at recorded")
	}
}

func TestPullIdempotent(t *testing.T) {
	client := inboxClient(3)
	service, store := newTestService(t, &fakeFactory{client: client})
	ctx := context.Background()

	account := newTestAccount(t, store)
	if err := service.Pull(ctx, account); err != nil {
		t.Fatalf("first pull: %v", err)
	}
	account, _ = store.GetAccount(ctx, account.ID)
	if err := service.Pull(ctx, account); err != nil {
		t.Fatalf("second pull: %v", err)
	}

	inbox, _ := store.FolderByIdentifier(ctx, account.ID,
		models.FolderIdentifier{Kind: models.IdentifierName, Value: "INBOX"})
	page, _ := store.ListMessages(ctx, inbox.ID, 1, 10)
	if page.TotalMessages != 3 {
		t.Fatalf("second pull must not duplicate: got %d messages", page.TotalMessages)
	}
}

func TestPullConvergesMirroredSend(t *testing.T) {
	sent := models.FolderIdentifier{Kind: models.IdentifierName, Value: "Sent"}
	client := inboxClient(0)
	client.messages[sent.String()] = []providers.RemoteMessage{{
		RemoteID:  "57",
		MessageID: "<abc@example.com>",
		Subject:   "hello",
		From:      providers.RemoteAddress{Address: "box@example.com"},
		Read:      true,
		Date:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}}

	service, store := newTestService(t, &fakeFactory{client: client})
	ctx := context.Background()
	account := newTestAccount(t, store)

	// Mirror a sent copy the way the composer stores one: keyed by the
	// generated Message-ID until the provider hands out a real remote id.
	sentFolder := &models.Folder{
		AccountID:      account.ID,
		IdentifierKind: sent.Kind,
		IdentifierVal:  sent.Value,
		Name:           "Sent",
		Type:           models.FolderSent,
		Syncable:       true,
		Selectable:     true,
	}
	if err := store.UpsertFolder(ctx, sentFolder); err != nil {
		t.Fatalf("creating sent folder: %v", err)
	}
	mirrored := &models.Message{
		AccountID:   account.ID,
		RemoteID:    "<abc@example.com>",
		MessageID:   "<abc@example.com>",
		Subject:     "hello",
		FromAddress: "box@example.com",
		Read:        true,
		Date:        time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := store.UpsertMessage(ctx, mirrored, []int64{sentFolder.ID}); err != nil {
		t.Fatalf("mirroring sent copy: %v", err)
	}

	if err := service.Pull(ctx, account); err != nil {
		t.Fatalf("pull: %v", err)
	}

	page, err := store.ListMessages(ctx, sentFolder.ID, 1, 10)
	if err != nil {
		t.Fatalf("listing sent: %v", err)
	}
	if page.TotalMessages != 1 {
		t.Fatalf("expected mirrored copy adopted, got %d messages", page.TotalMessages)
	}
	got := page.Messages[0]
	if got.ID != mirrored.ID {
		t.Fatalf("expected the mirrored row kept, got id %d want %d", got.ID, mirrored.ID)
	}
	if got.RemoteID != "57" {
		t.Fatalf("expected row re-keyed to the remote id, got %q", got.RemoteID)
	}
}

func TestPullAuthFailureStopsAccount(t *testing.T) {
	factory := &fakeFactory{err: &providers.EmptyRefreshTokenError{Email: "box@example.com"}}
	service, store := newTestService(t, factory)
	ctx := context.Background()

	account := newTestAccount(t, store)
	if err := service.Pull(ctx, account); err == nil {
		t.Fatal("expected pull to fail")
	}

	got, _ := store.GetAccount(ctx, account.ID)
	if got.SyncState != models.SyncStopped {
		t.Fatalf("expected STOPPED after auth failure, got %s", got.SyncState)
	}
	if got.SyncStateComment == "" {
		t.Fatal("expected stop cause recorded")
	}
}

func TestPullConnectionFailureLeavesStateAlone(t *testing.T) {
	factory := &fakeFactory{err: &providers.ConnectionError{Op: "dial", Err: context.DeadlineExceeded}}
	service, store := newTestService(t, factory)
	ctx := context.Background()

	account := newTestAccount(t, store)
	if err := service.Pull(ctx, account); err == nil {
		t.Fatal("expected pull to fail")
	}

	got, _ := store.GetAccount(ctx, account.ID)
	if got.SyncState != models.SyncEnabled {
		t.Fatalf("transient failure must not change state, got %s", got.SyncState)
	}
}

func TestMarkReadRemoteFirst(t *testing.T) {
	client := inboxClient(1)
	service, store := newTestService(t, &fakeFactory{client: client})
	ctx := context.Background()

	account := newTestAccount(t, store)
	if err := service.Pull(ctx, account); err != nil {
		t.Fatalf("pull: %v", err)
	}

	msg, err := store.MessageByRemoteID(ctx, account.ID, "uid-a")
	if err != nil {
		t.Fatalf("resolving message: %v", err)
	}

	// Remote rejection leaves the local flag untouched.
	client.markReadErr = &providers.MessageNotFoundError{RemoteID: "uid-a"}
	if err := service.MarkRead(ctx, account.ID, msg.ID); err == nil {
		t.Fatal("expected remote failure to surface")
	}
	got, _ := store.GetMessage(ctx, msg.ID)
	if got.Read {
		t.Fatal("local flag must not change when the remote rejected")
	}

	// Remote success flips the local flag.
	client.markReadErr = nil
	if err := service.MarkRead(ctx, account.ID, msg.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	got, _ = store.GetMessage(ctx, msg.ID)
	if !got.Read {
		t.Fatal("expected local flag set after remote success")
	}
	if len(client.readCalls) != 1 || client.readCalls[0] != "uid-a" {
		t.Fatalf("expected one remote mark-read call, got %v", client.readCalls)
	}
}

func TestDeleteMessagePurgesLocally(t *testing.T) {
	client := inboxClient(1)
	service, store := newTestService(t, &fakeFactory{client: client})
	ctx := context.Background()

	account := newTestAccount(t, store)
	if err := service.Pull(ctx, account); err != nil {
		t.Fatalf("pull: %v", err)
	}

	msg, _ := store.MessageByRemoteID(ctx, account.ID, "uid-a")
	if err := service.DeleteMessage(ctx, msg.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetMessage(ctx, msg.ID); err != storage.ErrNotFound {
		t.Fatalf("expected message gone, got %v", err)
	}
}
