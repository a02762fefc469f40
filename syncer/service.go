package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mailbridge/models"
	"mailbridge/providers"
	"mailbridge/storage"
	"mailbridge/utils"
)

// Event types pushed to the presentation layer over the websocket hub.
const (
	EventSyncStarted   = "sync_started"
	EventSyncCompleted = "sync_completed"
	EventSyncFailed    = "sync_failed"
	EventSyncEnabled   = "sync_enabled"
	EventSyncDisabled  = "sync_disabled"
	EventSyncStopped   = "sync_stopped"
)

// Event is a sync lifecycle notification.
type Event struct {
	Type      string `json:"type"`
	AccountID int64  `json:"account_id"`
	Detail    string `json:"detail,omitempty"`
	Ingested  int    `json:"ingested,omitempty"`
}

// Publisher fans events out to interested listeners. A nil publisher is
// allowed and drops events.
type Publisher interface {
	Publish(event Event)
}

// Service synchronizes remote mailboxes into the local mirror and carries
// out remote-first message mutations.
type Service struct {
	store   *storage.Store
	media   *storage.MediaStore
	clients providers.ClientFactory
	events  Publisher
	log     *utils.Logger
}

func NewService(store *storage.Store, media *storage.MediaStore, clients providers.ClientFactory, events Publisher, log *utils.Logger) *Service {
	if log == nil {
		log = utils.Log
	}
	return &Service{
		store:   store,
		media:   media,
		clients: clients,
		events:  events,
		log:     log,
	}
}

func (s *Service) publish(e Event) {
	if s.events != nil {
		s.events.Publish(e)
	}
}

// SyncFolders refreshes the local folder registry from the remote store and
// designates the account's sent and trash folders. Newly discovered system
// folders start out syncable; everything else starts out excluded and must
// be opted in. Locally known syncable flags survive the refresh.
func (s *Service) SyncFolders(ctx context.Context, account *models.Account, client providers.Client) ([]models.Folder, error) {
	remote, err := client.ListFolders(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]int64)
	folders := make([]models.Folder, 0, len(remote))
	for _, rf := range remote {
		f := models.Folder{
			AccountID:      account.ID,
			IdentifierKind: rf.Identifier.Kind,
			IdentifierVal:  rf.Identifier.Value,
			Name:           rf.Name,
			Type:           rf.Type,
			Syncable:       rf.Type.System(),
			Selectable:     rf.Selectable,
		}
		if err := s.store.UpsertFolder(ctx, &f); err != nil {
			return nil, err
		}
		byName[rf.Name] = f.ID
		folders = append(folders, f)
	}

	// Second pass wires up IMAP hierarchy, now that every parent has an id.
	for i, rf := range remote {
		if rf.ParentName == "" {
			continue
		}
		parentID, ok := byName[rf.ParentName]
		if !ok {
			continue
		}
		folders[i].ParentID = &parentID
		if err := s.store.UpsertFolder(ctx, &folders[i]); err != nil {
			return nil, err
		}
	}

	var sentID, trashID *int64
	for i := range folders {
		switch folders[i].Type {
		case models.FolderSent:
			if sentID == nil {
				sentID = &folders[i].ID
			}
		case models.FolderTrash:
			if trashID == nil {
				trashID = &folders[i].ID
			}
		}
	}
	if err := s.store.SetSpecialFolders(ctx, account.ID, sentID, trashID); err != nil {
		return nil, err
	}
	account.SentFolderID = sentID
	account.TrashFolderID = trashID

	return folders, nil
}

// Pull runs one full sync pass for an account: refresh the folder registry,
// then fetch messages changed since the last pass for every syncable folder
// and ingest them. Ingestion is idempotent, so overlapping windows never
// duplicate messages. An auth failure stops the account with its cause; any
// other failure is reported and left for the next pass.
func (s *Service) Pull(ctx context.Context, account *models.Account) error {
	log := s.log.WithField("account", account.Email)
	s.publish(Event{Type: EventSyncStarted, AccountID: account.ID})

	client, err := s.clients.CreateClient(ctx, account)
	if err != nil {
		return s.pullFailed(ctx, account, err)
	}
	defer client.Close()

	if _, err := s.SyncFolders(ctx, account, client); err != nil {
		return s.pullFailed(ctx, account, err)
	}

	folders, err := s.store.SyncableFolders(ctx, account.ID)
	if err != nil {
		return s.pullFailed(ctx, account, err)
	}

	var since time.Time
	if account.LastSyncAt != nil {
		// Overlap the window slightly so boundary messages are never missed.
		since = account.LastSyncAt.Add(-time.Minute)
	}

	started := time.Now().UTC()
	ingested := 0
	for i := range folders {
		n, err := s.pullFolder(ctx, client, account, &folders[i], since)
		ingested += n
		if err != nil {
			return s.pullFailed(ctx, account, err)
		}
	}

	if err := s.store.TouchLastSync(ctx, account.ID, started); err != nil {
		return err
	}

	log.Info("sync pass completed, %d messages ingested", ingested)
	s.publish(Event{Type: EventSyncCompleted, AccountID: account.ID, Ingested: ingested})
	return nil
}

// pullFailed classifies a pull error. Revoked auth is unrecoverable and
// stops the account; everything else degrades visibly and retries on the
// next pass.
func (s *Service) pullFailed(ctx context.Context, account *models.Account, err error) error {
	if providers.IsEmptyRefreshToken(err) {
		s.log.WithField("account", account.Email).Warn("stopping sync: %v", err)
		s.stopAccount(ctx, account.ID, "authentication expired: "+err.Error())
		return err
	}

	s.log.WithField("account", account.Email).Error("sync pass failed: %v", err)
	s.publish(Event{Type: EventSyncFailed, AccountID: account.ID, Detail: err.Error()})
	return err
}

func (s *Service) pullFolder(ctx context.Context, client providers.Client, account *models.Account, folder *models.Folder, since time.Time) (int, error) {
	remote, err := client.FetchMessages(ctx, folder.Identifier(), since)
	if err != nil {
		if providers.IsFolderNotFound(err) {
			// The folder vanished remotely since the registry refresh.
			// Skip it; the next refresh drops or re-learns it.
			s.log.WithField("folder", folder.Name).Warn("folder missing on remote, skipping: %v", err)
			return 0, nil
		}
		return 0, err
	}

	count := 0
	for i := range remote {
		if err := s.ingest(ctx, account, folder, &remote[i]); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// ingest upserts one remote message with its folder memberships resolved to
// local folder ids. The folder being pulled is always a member; any other
// memberships the provider reported are added when locally known.
func (s *Service) ingest(ctx context.Context, account *models.Account, folder *models.Folder, rm *providers.RemoteMessage) error {
	if err := s.adoptMirroredSend(ctx, account, rm); err != nil {
		return err
	}

	folderIDs := []int64{folder.ID}
	for _, ident := range rm.Folders {
		if ident.Equal(folder.Identifier()) {
			continue
		}
		f, err := s.store.FolderByIdentifier(ctx, account.ID, ident)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		folderIDs = append(folderIDs, f.ID)
	}

	msg := models.Message{
		AccountID:   account.ID,
		RemoteID:    rm.RemoteID,
		Subject:     rm.Subject,
		FromName:    rm.From.Name,
		FromAddress: rm.From.Address,
		To:          joinAddresses(rm.To),
		Cc:          joinAddresses(rm.Cc),
		Bcc:         joinAddresses(rm.Bcc),
		TextBody:    rm.TextBody,
		HTMLBody:    utils.SanitizeEmailHTML(rm.HTMLBody),
		Read:        rm.Read,
		Date:        rm.Date,
		MessageID:   rm.MessageID,
		InReplyTo:   rm.InReplyTo,
		References:  strings.Join(rm.References, " "),
	}

	return s.store.UpsertMessage(ctx, &msg, folderIDs)
}

// adoptMirroredSend re-keys a message the composer mirrored under its
// Message-ID header once the stored copy shows up with a real remote id,
// so the pull updates that row instead of inserting a duplicate.
func (s *Service) adoptMirroredSend(ctx context.Context, account *models.Account, rm *providers.RemoteMessage) error {
	if rm.MessageID == "" {
		return nil
	}

	existing, err := s.store.MessageByHeaderID(ctx, account.ID, rm.MessageID)
	if err == storage.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.RemoteID == rm.RemoteID {
		return nil
	}
	if _, err := s.store.MessageByRemoteID(ctx, account.ID, rm.RemoteID); err == nil {
		return nil
	} else if err != storage.ErrNotFound {
		return err
	}

	return s.store.SetRemoteID(ctx, existing.ID, rm.RemoteID)
}

// MarkRead flips a message read, remote first. The local flag changes only
// after the remote accepted the change, so the mirror never claims a state
// the remote does not have.
func (s *Service) MarkRead(ctx context.Context, accountID, messageID int64) error {
	return s.setRead(ctx, accountID, messageID, true)
}

// MarkUnread flips a message unread, remote first.
func (s *Service) MarkUnread(ctx context.Context, accountID, messageID int64) error {
	return s.setRead(ctx, accountID, messageID, false)
}

func (s *Service) setRead(ctx context.Context, accountID, messageID int64, read bool) error {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}

	folder, err := s.messageFolder(ctx, msg)
	if err != nil {
		return err
	}

	client, err := s.clients.CreateClient(ctx, account)
	if err != nil {
		return err
	}
	defer client.Close()

	if read {
		err = client.MarkRead(ctx, msg.RemoteID, folder.Identifier())
	} else {
		err = client.MarkUnread(ctx, msg.RemoteID, folder.Identifier())
	}
	if err != nil {
		return err
	}

	return s.store.SetRead(ctx, messageID, read)
}

// DeleteMessage removes a message from the local mirror: associations are
// detached, media files removed, then the row. The remote copy is left
// alone; deletion mirroring is not a sync concern.
func (s *Service) DeleteMessage(ctx context.Context, messageID int64) error {
	if _, err := s.store.GetMessage(ctx, messageID); err != nil {
		return err
	}
	return s.store.PurgeMessage(ctx, messageID, s.media)
}

// messageFolder picks the folder a remote mutation should address: the
// message's first local membership.
func (s *Service) messageFolder(ctx context.Context, msg *models.Message) (*models.Folder, error) {
	if len(msg.Folders) == 0 {
		return nil, fmt.Errorf("message %d has no folder membership", msg.ID)
	}
	return s.store.FolderByID(ctx, msg.Folders[0])
}

func joinAddresses(addrs []providers.RemoteAddress) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Name != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.Name, a.Address))
		} else {
			parts = append(parts, a.Address)
		}
	}
	return strings.Join(parts, ", ")
}
