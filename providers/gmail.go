package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"mailbridge/models"
)

// gmailClient implements Client against the Gmail REST API. Gmail has no
// folder tree; labels fill that role and are addressed by opaque id, so two
// labels with the same display name never collide.
type gmailClient struct {
	svc *gmail.Service
}

func newGmailClient(ctx context.Context, accessToken string, timeout time.Duration) (*gmailClient, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = timeout

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, connErr("gmail service init", err)
	}
	return &gmailClient{svc: svc}, nil
}

func (c *gmailClient) Close() error { return nil }

// translateGmailErr maps googleapi failures into the taxonomy. Rate limits
// and server-side errors are retryable, so they classify as connection
// failures rather than unexpected ones.
func translateGmailErr(op string, err error, notFound error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401 || apiErr.Code == 403:
			return &EmptyRefreshTokenError{}
		case apiErr.Code == 404:
			return notFound
		case apiErr.Code == 429 || apiErr.Code >= 500:
			return connErr(op, err)
		}
		return &UnexpectedError{Err: err}
	}
	return connErr(op, err)
}

func (c *gmailClient) ListFolders(ctx context.Context) ([]RemoteFolder, error) {
	resp, err := c.svc.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return nil, translateGmailErr("list labels", err, &FolderNotFoundError{})
	}

	var folders []RemoteFolder
	for _, label := range resp.Labels {
		folderType := models.FolderOther
		switch label.Id {
		case "INBOX":
			folderType = models.FolderInbox
		case "SENT":
			folderType = models.FolderSent
		case "TRASH":
			folderType = models.FolderTrash
		}

		folders = append(folders, RemoteFolder{
			Identifier: models.FolderIdentifier{Kind: models.IdentifierID, Value: label.Id},
			Name:       label.Name,
			Type:       folderType,
			Selectable: label.MessageListVisibility != "hide",
		})
	}

	return folders, nil
}

func (c *gmailClient) FetchMessages(ctx context.Context, folder models.FolderIdentifier, since time.Time) ([]RemoteMessage, error) {
	call := c.svc.Users.Messages.List("me").LabelIds(folder.Value).Context(ctx)
	if !since.IsZero() {
		call = call.Q(fmt.Sprintf("after:%d", since.Unix()))
	}

	var result []RemoteMessage
	pageToken := ""
	for {
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return result, translateGmailErr("list messages", err, &FolderNotFoundError{Folder: folder.Value})
		}

		for _, ref := range resp.Messages {
			full, err := c.svc.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
			if err != nil {
				return result, translateGmailErr("get message", err, &MessageNotFoundError{RemoteID: ref.Id})
			}
			result = append(result, remoteMessageFromGmail(full))
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return result, nil
}

func (c *gmailClient) FetchMessage(ctx context.Context, remoteID string, folder models.FolderIdentifier) (*RemoteMessage, error) {
	full, err := c.svc.Users.Messages.Get("me", remoteID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, translateGmailErr("get message", err, &MessageNotFoundError{RemoteID: remoteID})
	}

	rm := remoteMessageFromGmail(full)

	// Attachment content lives behind separate attachment ids.
	for i := range rm.Attachments {
		att := &rm.Attachments[i]
		if att.Content != nil || att.attachmentID == "" {
			continue
		}
		body, err := c.svc.Users.Messages.Attachments.Get("me", remoteID, att.attachmentID).Context(ctx).Do()
		if err != nil {
			return nil, translateGmailErr("get attachment", err, &MessageNotFoundError{RemoteID: remoteID})
		}
		content, err := base64.URLEncoding.DecodeString(body.Data)
		if err != nil {
			continue
		}
		att.Content = content
		att.Size = int64(len(content))
	}

	return &rm, nil
}

func (c *gmailClient) MarkRead(ctx context.Context, remoteID string, folder models.FolderIdentifier) error {
	req := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{"UNREAD"}}
	_, err := c.svc.Users.Messages.Modify("me", remoteID, req).Context(ctx).Do()
	if err != nil {
		return translateGmailErr("mark read", err, &MessageNotFoundError{RemoteID: remoteID})
	}
	return nil
}

func (c *gmailClient) MarkUnread(ctx context.Context, remoteID string, folder models.FolderIdentifier) error {
	req := &gmail.ModifyMessageRequest{AddLabelIds: []string{"UNREAD"}}
	_, err := c.svc.Users.Messages.Modify("me", remoteID, req).Context(ctx).Do()
	if err != nil {
		return translateGmailErr("mark unread", err, &MessageNotFoundError{RemoteID: remoteID})
	}
	return nil
}

func (c *gmailClient) DeleteMessage(ctx context.Context, remoteID string) error {
	_, err := c.svc.Users.Messages.Trash("me", remoteID).Context(ctx).Do()
	if err != nil {
		return translateGmailErr("trash message", err, &MessageNotFoundError{RemoteID: remoteID})
	}
	return nil
}

// SendMessage posts the raw MIME document. Gmail stores the message and
// returns its id synchronously, so the receipt is always confirmed.
func (c *gmailClient) SendMessage(ctx context.Context, msg *OutgoingMessage) (*SendReceipt, error) {
	raw, _, err := buildMIME(msg)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("cannot assemble message: %v", err)}
	}

	sent, err := c.svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return nil, translateGmailErr("send", err, &MessageNotFoundError{})
	}

	return &SendReceipt{RemoteID: sent.Id}, nil
}

func remoteMessageFromGmail(m *gmail.Message) RemoteMessage {
	rm := RemoteMessage{
		RemoteID: m.Id,
		Read:     true,
		Date:     time.UnixMilli(m.InternalDate),
	}

	for _, labelID := range m.LabelIds {
		if labelID == "UNREAD" {
			rm.Read = false
			continue
		}
		rm.Folders = append(rm.Folders, models.FolderIdentifier{
			Kind:  models.IdentifierID,
			Value: labelID,
		})
	}

	if m.Payload == nil {
		return rm
	}

	for _, h := range m.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			rm.Subject = h.Value
		case "from":
			if addr, err := mail.ParseAddress(h.Value); err == nil {
				rm.From = RemoteAddress{Name: addr.Name, Address: addr.Address}
			} else {
				rm.From = RemoteAddress{Address: h.Value}
			}
		case "to":
			rm.To = parseAddressList(h.Value)
		case "cc":
			rm.Cc = parseAddressList(h.Value)
		case "message-id":
			rm.MessageID = h.Value
		case "in-reply-to":
			rm.InReplyTo = h.Value
		case "references":
			rm.References = strings.Fields(h.Value)
		}
	}

	collectGmailParts(m.Payload, &rm)
	return rm
}

func parseAddressList(value string) []RemoteAddress {
	addrs, err := mail.ParseAddressList(value)
	if err != nil {
		return []RemoteAddress{{Address: value}}
	}
	var result []RemoteAddress
	for _, a := range addrs {
		result = append(result, RemoteAddress{Name: a.Name, Address: a.Address})
	}
	return result
}

func collectGmailParts(part *gmail.MessagePart, rm *RemoteMessage) {
	if part == nil {
		return
	}

	if part.Filename != "" && part.Body != nil {
		att := RemoteAttachment{
			Filename:    part.Filename,
			ContentType: part.MimeType,
			Size:        part.Body.Size,
		}
		if part.Body.Data != "" {
			if content, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
				att.Content = content
			}
		}
		att.attachmentID = part.Body.AttachmentId
		rm.Attachments = append(rm.Attachments, att)
		return
	}

	if part.Body != nil && part.Body.Data != "" {
		if content, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
			switch part.MimeType {
			case "text/plain":
				rm.TextBody = string(content)
			case "text/html":
				rm.HTMLBody = string(content)
			}
		}
	}

	for _, child := range part.Parts {
		collectGmailParts(child, rm)
	}
}
