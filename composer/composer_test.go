package composer

import (
	"context"
	"strings"
	"testing"
	"time"

	"mailbridge/models"
	"mailbridge/providers"
	"mailbridge/storage"
	"mailbridge/utils"
)

type fakeClient struct {
	original *providers.RemoteMessage

	sendErr  error
	queued   bool
	lastSent *providers.OutgoingMessage
}

func (f *fakeClient) ListFolders(ctx context.Context) ([]providers.RemoteFolder, error) {
	return nil, nil
}

func (f *fakeClient) FetchMessages(ctx context.Context, folder models.FolderIdentifier, since time.Time) ([]providers.RemoteMessage, error) {
	return nil, nil
}

func (f *fakeClient) FetchMessage(ctx context.Context, remoteID string, folder models.FolderIdentifier) (*providers.RemoteMessage, error) {
	if f.original != nil && f.original.RemoteID == remoteID {
		return f.original, nil
	}
	return nil, &providers.MessageNotFoundError{RemoteID: remoteID}
}

func (f *fakeClient) MarkRead(ctx context.Context, remoteID string, folder models.FolderIdentifier) error {
	return nil
}

func (f *fakeClient) MarkUnread(ctx context.Context, remoteID string, folder models.FolderIdentifier) error {
	return nil
}

func (f *fakeClient) DeleteMessage(ctx context.Context, remoteID string) error { return nil }

func (f *fakeClient) SendMessage(ctx context.Context, msg *providers.OutgoingMessage) (*providers.SendReceipt, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.lastSent = msg
	if f.queued {
		return &providers.SendReceipt{Queued: true}, nil
	}
	return &providers.SendReceipt{RemoteID: "remote-sent-1"}, nil
}

func (f *fakeClient) Close() error { return nil }

type fakeFactory struct {
	client providers.Client
}

func (f *fakeFactory) CreateClient(ctx context.Context, account *models.Account) (providers.Client, error) {
	return f.client, nil
}

var actor = models.ActingUser{ID: "u1", Name: "Dana Reyes", Company: "Acme"}

func newTestComposer(t *testing.T, client providers.Client, trackingURL string) (*Composer, *storage.Store, *models.Account) {
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

	ctx := context.Background()
	account := &models.Account{
		Email:          "desk@example.com",
		ConnectionType: models.ConnectionIMAP,
		Credentials:    "{}",
		FromTemplate:   "{agent} at {company}",
	}
	if err := store.CreateAccount(ctx, account); err != nil {
		t.Fatalf("creating account: %v", err)
	}

	sent := &models.Folder{
		AccountID:      account.ID,
		IdentifierKind: models.IdentifierName,
		IdentifierVal:  "Sent",
		Name:           "Sent",
		Type:           models.FolderSent,
		Syncable:       true,
		Selectable:     true,
	}
	if err := store.UpsertFolder(ctx, sent); err != nil {
		t.Fatalf("creating sent folder: %v", err)
	}
	if err := store.SetSpecialFolders(ctx, account.ID, &sent.ID, nil); err != nil {
		t.Fatalf("designating sent folder: %v", err)
	}
	account, err = store.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("reloading account: %v", err)
	}

	return New(store, media, &fakeFactory{client: client}, trackingURL, utils.Log), store, account
}

func TestSendConfirmedMirrorsLocally(t *testing.T) {
	client := &fakeClient{}
	composer, store, account := newTestComposer(t, client, "")
	ctx := context.Background()

	result, err := composer.NewMessage(account, actor).
		To("peer@example.com").
		Subject("Quarterly numbers").
		HTMLBody("<p>attached</p>").
		Attach("report.pdf", "application/pdf", []byte("pdf-bytes")).
		Associate(models.ResourceDeal, 42).
		Send(ctx)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.Queued {
		t.Fatal("synchronous transport must confirm, not queue")
	}
	if result.Message == nil || result.Message.ID == 0 {
		t.Fatal("expected the confirmed send mirrored locally")
	}
	if !result.Message.Read {
		t.Fatal("a sent message starts read")
	}

	assocs, err := store.Associations(ctx, result.Message.ID)
	if err != nil {
		t.Fatalf("loading associations: %v", err)
	}
	if len(assocs) != 1 || assocs[0].ResourceType != models.ResourceDeal || assocs[0].ResourceID != 42 {
		t.Fatalf("unexpected associations: %+v", assocs)
	}

	atts, err := store.Attachments(ctx, result.Message.ID)
	if err != nil {
		t.Fatalf("loading attachments: %v", err)
	}
	if len(atts) != 1 || atts[0].Filename != "report.pdf" {
		t.Fatalf("unexpected attachments: %+v", atts)
	}

	if client.lastSent.FromName != "Dana Reyes at Acme" {
		t.Fatalf("from template not applied: %q", client.lastSent.FromName)
	}
	if client.lastSent.FolderOfRecord.Value != "Sent" {
		t.Fatalf("expected sent folder of record, got %+v", client.lastSent.FolderOfRecord)
	}
}

func TestSendQueuedLeavesNoLocalRow(t *testing.T) {
	client := &fakeClient{queued: true}
	composer, store, account := newTestComposer(t, client, "")
	ctx := context.Background()

	result, err := composer.NewMessage(account, actor).
		To("peer@example.com").
		Subject("hello").
		HTMLBody("<p>hi</p>").
		Associate(models.ResourceContact, 7).
		Send(ctx)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !result.Queued || result.Message != nil {
		t.Fatalf("expected queued result without a message, got %+v", result)
	}

	if _, err := store.MessageByRemoteID(ctx, account.ID, "remote-sent-1"); err != storage.ErrNotFound {
		t.Fatalf("queued send must not be mirrored, got %v", err)
	}
}

func TestSendFailureWritesNothing(t *testing.T) {
	client := &fakeClient{sendErr: &providers.ConnectionError{Op: "send", Err: context.DeadlineExceeded}}
	composer, store, account := newTestComposer(t, client, "")
	ctx := context.Background()

	_, err := composer.NewMessage(account, actor).
		To("peer@example.com").
		Subject("hello").
		HTMLBody("<p>hi</p>").
		Associate(models.ResourceCompany, 9).
		Send(ctx)
	if err == nil {
		t.Fatal("expected send failure to surface")
	}

	sent, serr := store.FolderByIdentifier(ctx, account.ID,
		models.FolderIdentifier{Kind: models.IdentifierName, Value: "Sent"})
	if serr != nil {
		t.Fatalf("resolving sent folder: %v", serr)
	}
	page, serr := store.ListMessages(ctx, sent.ID, 1, 10)
	if serr != nil {
		t.Fatalf("listing: %v", serr)
	}
	if page.TotalMessages != 0 {
		t.Fatalf("failed send must leave no local row, got %d", page.TotalMessages)
	}
}

func TestSendWithoutRecipientsRejected(t *testing.T) {
	composer, _, account := newTestComposer(t, &fakeClient{}, "")

	_, err := composer.NewMessage(account, actor).
		Subject("no recipients").
		HTMLBody("<p>hi</p>").
		Send(context.Background())
	if !providers.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFromNameFallsBackToActor(t *testing.T) {
	composer, _, account := newTestComposer(t, &fakeClient{}, "")
	account.FromTemplate = ""

	m := composer.NewMessage(account, actor)
	if got := m.FromName(); got != "Dana Reyes" {
		t.Fatalf("expected actor name fallback, got %q", got)
	}
}

func ingestOriginal(t *testing.T, store *storage.Store, account *models.Account) *models.Message {
	t.Helper()
	ctx := context.Background()

	inbox := &models.Folder{
		AccountID:      account.ID,
		IdentifierKind: models.IdentifierName,
		IdentifierVal:  "INBOX",
		Name:           "INBOX",
		Type:           models.FolderInbox,
		Syncable:       true,
		Selectable:     true,
	}
	if err := store.UpsertFolder(ctx, inbox); err != nil {
		t.Fatalf("creating inbox: %v", err)
	}

	msg := &models.Message{
		AccountID:   account.ID,
		RemoteID:    "orig-1",
		Subject:     "Re: Fwd: budget",
		FromAddress: "sender@example.com",
		Date:        time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC),
		MessageID:   "<orig-1@example.com>",
		References:  "<root@example.com>",
	}
	if err := store.UpsertMessage(ctx, msg, []int64{inbox.ID}); err != nil {
		t.Fatalf("ingesting original: %v", err)
	}
	msg, err := store.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("reloading original: %v", err)
	}
	return msg
}

func TestReplyThreadsIntoConversation(t *testing.T) {
	client := &fakeClient{original: &providers.RemoteMessage{RemoteID: "orig-1"}}
	composer, store, account := newTestComposer(t, client, "")
	ctx := context.Background()

	original := ingestOriginal(t, store, account)

	m, err := composer.Reply(ctx, account, actor, original)
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	result, err := m.HTMLBody("<p>sounds good</p>").Send(ctx)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.Message == nil {
		t.Fatal("expected mirrored reply")
	}

	sent := client.lastSent
	if sent.Subject != "Re: budget" {
		t.Fatalf("expected normalized reply subject, got %q", sent.Subject)
	}
	if len(sent.To) != 1 || sent.To[0] != "sender@example.com" {
		t.Fatalf("reply must address the original sender, got %v", sent.To)
	}
	if sent.InReplyTo != "<orig-1@example.com>" {
		t.Fatalf("unexpected In-Reply-To: %q", sent.InReplyTo)
	}
	wantRefs := []string{"<root@example.com>", "<orig-1@example.com>"}
	if len(sent.References) != 2 || sent.References[0] != wantRefs[0] || sent.References[1] != wantRefs[1] {
		t.Fatalf("unexpected References: %v", sent.References)
	}
}

func TestReplyToVanishedOriginalFails(t *testing.T) {
	client := &fakeClient{} // knows no messages
	composer, store, account := newTestComposer(t, client, "")
	ctx := context.Background()

	original := ingestOriginal(t, store, account)

	m, err := composer.Reply(ctx, account, actor, original)
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	_, err = m.HTMLBody("<p>hi</p>").Send(ctx)
	if !providers.IsMessageNotFound(err) {
		t.Fatalf("expected remote-missing failure, got %v", err)
	}
	if client.lastSent != nil {
		t.Fatal("nothing must be transmitted when the original is gone")
	}
}

func TestForwardCarriesSelectedAttachments(t *testing.T) {
	client := &fakeClient{original: &providers.RemoteMessage{
		RemoteID: "orig-1",
		Attachments: []providers.RemoteAttachment{
			{Filename: "a.pdf", ContentType: "application/pdf", Content: []byte("a")},
			{Filename: "b.png", ContentType: "image/png", Content: []byte("b")},
			{Filename: "c.txt", ContentType: "text/plain", Content: []byte("c")},
			{Filename: "d.csv", ContentType: "text/csv", Content: []byte("d")},
			{Filename: "e.zip", ContentType: "application/zip", Content: []byte("e")},
		},
	}}
	composer, store, account := newTestComposer(t, client, "")
	ctx := context.Background()

	original := ingestOriginal(t, store, account)

	m, err := composer.Forward(ctx, account, actor, original, []string{"b.png", "d.csv"})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	result, err := m.To("third@example.com").HTMLBody("<p>fyi</p>").Send(ctx)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	sent := client.lastSent
	if sent.Subject != "Fwd: budget" {
		t.Fatalf("expected normalized forward subject, got %q", sent.Subject)
	}
	if len(sent.Attachments) != 2 {
		t.Fatalf("expected the 2 selected attachments, got %d", len(sent.Attachments))
	}
	names := []string{sent.Attachments[0].Filename, sent.Attachments[1].Filename}
	if names[0] != "b.png" || names[1] != "d.csv" {
		t.Fatalf("unexpected attachment selection: %v", names)
	}

	atts, err := store.Attachments(ctx, result.Message.ID)
	if err != nil {
		t.Fatalf("loading attachments: %v", err)
	}
	if len(atts) != 2 {
		t.Fatalf("expected the selection mirrored, got %d", len(atts))
	}
}

func TestTrackersInstrumentBody(t *testing.T) {
	client := &fakeClient{}
	composer, store, account := newTestComposer(t, client, "https://track.example.com")
	ctx := context.Background()

	result, err := composer.NewMessage(account, actor).
		To("peer@example.com").
		Subject("offer").
		HTMLBody(`<p><a href="https://example.com/pricing">pricing</a></p>`).
		WithTrackers().
		Send(ctx)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	body := client.lastSent.HTMLBody
	if !strings.Contains(body, "https://track.example.com/t/c/") {
		t.Fatalf("links not rewritten through the click endpoint: %s", body)
	}
	if strings.Contains(body, `href="https://example.com/pricing"`) {
		t.Fatal("original link survived rewriting")
	}
	if !strings.Contains(body, "https://track.example.com/t/o/") {
		t.Fatalf("open pixel missing: %s", body)
	}

	opens, clicks, err := store.TrackingStats(ctx, result.Message.ID)
	if err != nil {
		t.Fatalf("loading tracking stats: %v", err)
	}
	if opens != 0 || clicks != 0 {
		t.Fatalf("fresh token must have zero hits, got %d/%d", opens, clicks)
	}
}
