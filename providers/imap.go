package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"mailbridge/models"
)

// imapClient implements Client against a generic IMAP/SMTP pair. Folders are
// addressed by hierarchical name; two IMAP folders with the same name within
// an account are the same folder.
type imapClient struct {
	client   *client.Client
	settings *models.IMAPSettings
	timeout  time.Duration
}

func newIMAPClient(settings *models.IMAPSettings, timeout time.Duration) (*imapClient, error) {
	addr := fmt.Sprintf("%s:%d", settings.IMAPServer, settings.IMAPPort)
	dialer := &net.Dialer{Timeout: timeout}

	c, err := client.DialWithDialerTLS(dialer, addr, nil)
	if err != nil {
		return nil, connErr("dial "+addr, err)
	}
	c.Timeout = timeout

	if err := c.Login(settings.Username, settings.Password); err != nil {
		c.Logout()
		return nil, loginErr(settings.Username, err)
	}

	return &imapClient{client: c, settings: settings, timeout: timeout}, nil
}

func (c *imapClient) Close() error {
	return c.client.Logout()
}

// ListFolders retrieves the mailbox tree. Classification prefers special-use
// attributes and falls back to common display names.
func (c *imapClient) ListFolders(ctx context.Context) ([]RemoteFolder, error) {
	mailboxChan := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.client.List("", "*", mailboxChan)
	}()

	var folders []RemoteFolder
	for mb := range mailboxChan {
		folders = append(folders, remoteFolderFromMailbox(mb))
	}

	if err := <-done; err != nil {
		return nil, connErr("list folders", err)
	}

	return folders, nil
}

func remoteFolderFromMailbox(mb *imap.MailboxInfo) RemoteFolder {
	folderType := models.FolderOther
	selectable := true
	for _, attr := range mb.Attributes {
		switch attr {
		case imap.SentAttr:
			folderType = models.FolderSent
		case imap.TrashAttr:
			folderType = models.FolderTrash
		case imap.NoSelectAttr:
			selectable = false
		}
	}
	if folderType == models.FolderOther {
		folderType = models.ClassifyFolderName(mb.Name)
	}

	parent := ""
	if mb.Delimiter != "" {
		if idx := strings.LastIndex(mb.Name, mb.Delimiter); idx > 0 {
			parent = mb.Name[:idx]
		}
	}

	return RemoteFolder{
		Identifier: models.FolderIdentifier{Kind: models.IdentifierName, Value: mb.Name},
		Name:       mb.Name,
		Type:       folderType,
		Selectable: selectable,
		ParentName: parent,
	}
}

// selectFolder selects a mailbox and translates the not-found case.
func (c *imapClient) selectFolder(name string, readOnly bool) (*imap.MailboxStatus, error) {
	mbox, err := c.client.Select(name, readOnly)
	if err != nil {
		if isMissingMailboxErr(err) {
			return nil, &FolderNotFoundError{Folder: name}
		}
		return nil, connErr("select "+name, err)
	}
	return mbox, nil
}

func isMissingMailboxErr(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "no such mailbox") ||
		strings.Contains(s, "mailbox does not exist") ||
		strings.Contains(s, "mailbox doesn't exist") ||
		strings.Contains(s, "nonexistent") ||
		strings.Contains(s, "not found")
}

// FetchMessages pulls messages received since the cursor from one folder.
func (c *imapClient) FetchMessages(ctx context.Context, folder models.FolderIdentifier, since time.Time) ([]RemoteMessage, error) {
	if _, err := c.selectFolder(folder.Value, true); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	if !since.IsZero() {
		criteria.Since = since
	}

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, connErr("search "+folder.Value, err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var result []RemoteMessage
	for msg := range messages {
		rm := c.processMessage(msg, section, folder)
		result = append(result, rm)
	}

	if err := <-done; err != nil {
		return result, connErr("fetch "+folder.Value, err)
	}

	return result, nil
}

// FetchMessage retrieves one message with its full body and attachments.
func (c *imapClient) FetchMessage(ctx context.Context, remoteID string, folder models.FolderIdentifier) (*RemoteMessage, error) {
	uid, err := parseUID(remoteID)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid UID %q", remoteID)}
	}

	if _, err := c.selectFolder(folder.Value, true); err != nil {
		return nil, err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var msg *imap.Message
	for m := range messages {
		msg = m
	}

	if err := <-done; err != nil {
		return nil, connErr("fetch message", err)
	}
	if msg == nil {
		return nil, &MessageNotFoundError{RemoteID: remoteID}
	}

	rm := c.processMessage(msg, section, folder)
	return &rm, nil
}

// MarkRead flags the message \Seen on the server.
func (c *imapClient) MarkRead(ctx context.Context, remoteID string, folder models.FolderIdentifier) error {
	return c.setFlag(remoteID, folder, imap.SeenFlag, true)
}

// MarkUnread removes the \Seen flag on the server.
func (c *imapClient) MarkUnread(ctx context.Context, remoteID string, folder models.FolderIdentifier) error {
	return c.setFlag(remoteID, folder, imap.SeenFlag, false)
}

func (c *imapClient) setFlag(remoteID string, folder models.FolderIdentifier, flag string, add bool) error {
	uid, err := parseUID(remoteID)
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("invalid UID %q", remoteID)}
	}

	if _, err := c.selectFolder(folder.Value, false); err != nil {
		return err
	}

	// The server accepts a STORE for a nonexistent UID silently, so probe
	// first to surface the divergence instead of hiding it.
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	found, err := c.client.UidSearch(&imap.SearchCriteria{Uid: seqSet})
	if err != nil {
		return connErr("search uid", err)
	}
	if len(found) == 0 {
		return &MessageNotFoundError{RemoteID: remoteID}
	}

	op := imap.FlagsOp(imap.AddFlags)
	if !add {
		op = imap.RemoveFlags
	}
	item := imap.FormatFlagsOp(op, true)
	flags := []interface{}{flag}

	if err := c.client.UidStore(seqSet, item, flags, nil); err != nil {
		return connErr("store flags", err)
	}
	return nil
}

// DeleteMessage flags the message deleted and expunges it. The folder is
// unknown for a bare remote id, so every selectable folder is tried.
func (c *imapClient) DeleteMessage(ctx context.Context, remoteID string) error {
	uid, err := parseUID(remoteID)
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("invalid UID %q", remoteID)}
	}

	folders, err := c.ListFolders(ctx)
	if err != nil {
		return err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	for _, f := range folders {
		if !f.Selectable {
			continue
		}
		if _, err := c.selectFolder(f.Identifier.Value, false); err != nil {
			continue
		}
		found, err := c.client.UidSearch(&imap.SearchCriteria{Uid: seqSet})
		if err != nil || len(found) == 0 {
			continue
		}
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.client.UidStore(seqSet, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
			return connErr("store deleted flag", err)
		}
		if err := c.client.Expunge(nil); err != nil {
			return connErr("expunge", err)
		}
		return nil
	}

	return &MessageNotFoundError{RemoteID: remoteID}
}

// SendMessage transmits over SMTP, then appends a copy to the folder of
// record so the remote mailbox shows the sent mail too. SMTP sends are
// synchronous: a nil error means the server took responsibility for
// delivery, so the receipt is confirmed, not queued.
func (c *imapClient) SendMessage(ctx context.Context, msg *OutgoingMessage) (*SendReceipt, error) {
	raw, messageID, err := buildMIME(msg)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("cannot assemble message: %v", err)}
	}

	if err := sendSMTP(c.settings, msg, raw, c.timeout); err != nil {
		return nil, err
	}

	if msg.FolderOfRecord.Value != "" {
		if err := c.appendToFolder(msg.FolderOfRecord.Value, raw); err != nil {
			// The mail is already on the wire; a failed append must not
			// turn a successful send into an error.
			return &SendReceipt{RemoteID: messageID}, nil
		}
	}

	return &SendReceipt{RemoteID: messageID}, nil
}

// appendToFolder files a raw message copy. A missing mailbox is created
// once and the append retried, so a fresh account gets its sent folder on
// first use.
func (c *imapClient) appendToFolder(folderName string, raw []byte) error {
	err := c.client.Append(folderName, []string{imap.SeenFlag}, time.Now(), bytes.NewReader(raw))
	if err != nil && isMissingMailboxErr(err) {
		if cerr := c.client.Create(folderName); cerr != nil {
			return &FolderNotFoundError{Folder: folderName}
		}
		err = c.client.Append(folderName, []string{imap.SeenFlag}, time.Now(), bytes.NewReader(raw))
	}
	if err != nil {
		if isMissingMailboxErr(err) {
			return &FolderNotFoundError{Folder: folderName}
		}
		return connErr("append "+folderName, err)
	}
	return nil
}

// processMessage converts a fetched IMAP message to the neutral shape.
func (c *imapClient) processMessage(msg *imap.Message, section *imap.BodySectionName, folder models.FolderIdentifier) RemoteMessage {
	rm := RemoteMessage{
		RemoteID: strconv.FormatUint(uint64(msg.Uid), 10),
		Folders:  []models.FolderIdentifier{folder},
	}

	for _, flag := range msg.Flags {
		if flag == imap.SeenFlag {
			rm.Read = true
		}
	}

	if msg.Envelope != nil {
		rm.Subject = msg.Envelope.Subject
		rm.Date = msg.Envelope.Date
		rm.MessageID = msg.Envelope.MessageId
		rm.InReplyTo = msg.Envelope.InReplyTo
		if len(msg.Envelope.From) > 0 && msg.Envelope.From[0] != nil {
			rm.From = RemoteAddress{
				Name:    msg.Envelope.From[0].PersonalName,
				Address: msg.Envelope.From[0].Address(),
			}
		}
		rm.To = convertAddresses(msg.Envelope.To)
		rm.Cc = convertAddresses(msg.Envelope.Cc)
		rm.Bcc = convertAddresses(msg.Envelope.Bcc)
	}

	if r := msg.GetBody(section); r != nil {
		c.parseBody(r, &rm)
	}

	return rm
}

func convertAddresses(addrs []*imap.Address) []RemoteAddress {
	var result []RemoteAddress
	for _, a := range addrs {
		if a == nil {
			continue
		}
		result = append(result, RemoteAddress{Name: a.PersonalName, Address: a.Address()})
	}
	return result
}

// parseBody reads the raw RFC 822 body, splitting multipart content into
// text, HTML, and attachments.
func (c *imapClient) parseBody(r io.Reader, rm *RemoteMessage) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return
	}

	m, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return
	}

	if refs := m.Header.Get("References"); refs != "" {
		rm.References = strings.Fields(refs)
	}

	contentType := m.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		body, err := io.ReadAll(m.Body)
		if err != nil {
			return
		}
		if strings.Contains(contentType, "text/html") {
			rm.HTMLBody = string(body)
		} else {
			rm.TextBody = string(body)
		}
		return
	}

	mr := multipart.NewReader(m.Body, params["boundary"])
	for {
		p, err := mr.NextPart()
		if err != nil {
			break
		}

		partData, err := io.ReadAll(p)
		if err != nil {
			continue
		}

		disposition, dparams, _ := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
		partType := p.Header.Get("Content-Type")

		switch {
		case disposition == "attachment":
			rm.Attachments = append(rm.Attachments, RemoteAttachment{
				Filename:    dparams["filename"],
				ContentType: partType,
				Size:        int64(len(partData)),
				Content:     partData,
			})
		case strings.Contains(partType, "text/plain"):
			rm.TextBody = string(partData)
		case strings.Contains(partType, "text/html"):
			rm.HTMLBody = string(partData)
		}
	}
}

// parseUID converts a string UID to uint32
func parseUID(uid string) (uint32, error) {
	n, err := strconv.ParseUint(uid, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}
