package composer

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

// Composer builds and sends outgoing messages for an account. A send that
// the transport confirms synchronously is mirrored locally with its CRM
// associations and attachments; a send the transport merely queued leaves no
// local trace until sync picks the stored copy up.
type Composer struct {
	store       *storage.Store
	media       *storage.MediaStore
	clients     providers.ClientFactory
	trackingURL string
	log         *utils.Logger
}

func New(store *storage.Store, media *storage.MediaStore, clients providers.ClientFactory, trackingURL string, log *utils.Logger) *Composer {
	if log == nil {
		log = utils.Log
	}
	return &Composer{
		store:       store,
		media:       media,
		clients:     clients,
		trackingURL: trackingURL,
		log:         log,
	}
}

// Result reports the outcome of a send. Queued sends carry no local message.
type Result struct {
	Message *models.Message
	Queued  bool
}

// Message is an outgoing message under construction. Reply and Forward embed
// it, adding threading and original-content handling on top.
type Message struct {
	composer *Composer
	account  *models.Account
	actor    models.ActingUser

	to, cc, bcc  []string
	subject      string
	htmlBody     string
	attachments  []providers.RemoteAttachment
	associations []models.Association
	trackers     bool

	inReplyTo  string
	references []string

	// verifyRemoteID, when set, requires the referenced message to still
	// exist on the remote store before anything is transmitted.
	verifyRemoteID string
	verifyFolder   models.FolderIdentifier

	// forwardNames selects which of the original's attachments ride along
	// on a forward. They are resolved from the remote store at send time.
	forwardNames []string
}

// NewMessage starts a blank message from the account on behalf of the acting
// user.
func (c *Composer) NewMessage(account *models.Account, actor models.ActingUser) *Message {
	return &Message{composer: c, account: account, actor: actor}
}

func (m *Message) To(addrs ...string) *Message {
	m.to = append(m.to, addrs...)
	return m
}

func (m *Message) Cc(addrs ...string) *Message {
	m.cc = append(m.cc, addrs...)
	return m
}

func (m *Message) Bcc(addrs ...string) *Message {
	m.bcc = append(m.bcc, addrs...)
	return m
}

func (m *Message) Subject(subject string) *Message {
	m.subject = subject
	return m
}

// HTMLBody sets the message body. The content is sanitized here so nothing
// downstream ever sees unsafe markup.
func (m *Message) HTMLBody(html string) *Message {
	m.htmlBody = utils.SanitizeEmailHTML(html)
	return m
}

// Attach adds an attachment by content.
func (m *Message) Attach(filename, contentType string, content []byte) *Message {
	m.attachments = append(m.attachments, providers.RemoteAttachment{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(content)),
		Content:     content,
	})
	return m
}

// Associate links the sent message to a CRM record. The link is persisted
// only after the transport confirms the send.
func (m *Message) Associate(resourceType models.ResourceType, resourceID int64) *Message {
	m.associations = append(m.associations, models.Association{
		ResourceType: resourceType,
		ResourceID:   resourceID,
	})
	return m
}

// WithTrackers enables open and click tracking on the body.
func (m *Message) WithTrackers() *Message {
	m.trackers = true
	return m
}

// FromName resolves the account's from template against the acting user. It
// is computed per send and never cached, so shared-account sends always
// reflect whoever is acting.
func (m *Message) FromName() string {
	tpl := m.account.FromTemplate
	if tpl == "" {
		return m.actor.Name
	}
	name := strings.ReplaceAll(tpl, "{agent}", m.actor.Name)
	return strings.ReplaceAll(name, "{company}", m.actor.Company)
}

func (m *Message) validate() error {
	if len(m.to) == 0 {
		return &providers.ValidationError{Message: "no recipients"}
	}
	for _, a := range m.associations {
		if !a.ResourceType.Valid() {
			return &providers.ValidationError{Message: fmt.Sprintf("unknown resource type %q", a.ResourceType)}
		}
	}
	return nil
}

// Send transmits the message. On a confirmed receipt the message is mirrored
// into the sent folder with its attachments and associations, all or
// nothing. On a queued receipt or any failure no local row and no
// association is written.
func (m *Message) Send(ctx context.Context) (*Result, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}

	client, err := m.composer.clients.CreateClient(ctx, m.account)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	var original *providers.RemoteMessage
	if m.verifyRemoteID != "" {
		original, err = client.FetchMessage(ctx, m.verifyRemoteID, m.verifyFolder)
		if err != nil {
			return nil, err
		}
	}

	if len(m.forwardNames) > 0 && original != nil {
		selected := make(map[string]bool, len(m.forwardNames))
		for _, name := range m.forwardNames {
			selected[name] = true
		}
		for _, att := range original.Attachments {
			if selected[att.Filename] {
				m.attachments = append(m.attachments, att)
			}
		}
	}

	body := m.htmlBody
	var token string
	if m.trackers && m.composer.trackingURL != "" {
		body, token = applyTrackers(body, m.composer.trackingURL)
	}

	out := &providers.OutgoingMessage{
		FromName:    m.FromName(),
		FromAddress: m.account.Email,
		To:          m.to,
		Cc:          m.cc,
		Bcc:         m.bcc,
		Subject:     m.subject,
		HTMLBody:    body,
		TextBody:    utils.StripHTML(body),
		InReplyTo:   m.inReplyTo,
		References:  m.references,
		Attachments: m.attachments,
	}

	sentFolder, err := m.sentFolder(ctx)
	if err != nil {
		return nil, err
	}
	if sentFolder != nil {
		out.FolderOfRecord = sentFolder.Identifier()
	}

	receipt, err := client.SendMessage(ctx, out)
	if err != nil {
		return nil, err
	}

	if receipt.Queued {
		m.composer.log.WithField("account", m.account.Email).
			Info("send accepted for delivery, awaiting remote confirmation")
		return &Result{Queued: true}, nil
	}

	msg, err := m.persist(ctx, out, receipt.RemoteID, sentFolder, token)
	if err != nil {
		return nil, err
	}
	return &Result{Message: msg}, nil
}

// persist mirrors a confirmed send into the local store.
func (m *Message) persist(ctx context.Context, out *providers.OutgoingMessage, remoteID string, sentFolder *models.Folder, token string) (*models.Message, error) {
	msg := &models.Message{
		AccountID:   m.account.ID,
		RemoteID:    remoteID,
		Subject:     out.Subject,
		FromName:    out.FromName,
		FromAddress: out.FromAddress,
		To:          strings.Join(out.To, ", "),
		Cc:          strings.Join(out.Cc, ", "),
		Bcc:         strings.Join(out.Bcc, ", "),
		TextBody:    out.TextBody,
		HTMLBody:    out.HTMLBody,
		Read:        true,
		Date:        time.Now().UTC(),
		MessageID:   remoteID,
		InReplyTo:   out.InReplyTo,
		References:  strings.Join(out.References, " "),
	}

	var folderIDs []int64
	if sentFolder != nil {
		folderIDs = append(folderIDs, sentFolder.ID)
	}
	if err := m.composer.store.UpsertMessage(ctx, msg, folderIDs); err != nil {
		return nil, err
	}

	for _, att := range out.Attachments {
		path, err := m.composer.media.Save(att.Filename, att.Content)
		if err != nil {
			return nil, err
		}
		record := models.Attachment{
			MessageID:   msg.ID,
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        att.Size,
			Path:        path,
		}
		if err := m.composer.store.AddAttachment(ctx, &record); err != nil {
			return nil, err
		}
	}

	for i := range m.associations {
		m.associations[i].MessageID = msg.ID
	}
	if err := m.composer.store.AddAssociations(ctx, msg.ID, m.associations); err != nil {
		return nil, err
	}

	if token != "" {
		if err := m.composer.store.SaveTrackingToken(ctx, token, msg.ID); err != nil {
			return nil, err
		}
	}

	return msg, nil
}

func (m *Message) sentFolder(ctx context.Context) (*models.Folder, error) {
	if m.account.SentFolderID == nil {
		return nil, nil
	}
	folder, err := m.composer.store.FolderByID(ctx, *m.account.SentFolderID)
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return folder, nil
}
