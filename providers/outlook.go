package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mailbridge/models"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// outlookClient implements Client against the Microsoft Graph mail API.
// Folders are addressed by opaque id. Graph's sendMail endpoint only accepts
// the message for delivery, so sends report a queued receipt.
type outlookClient struct {
	http  *http.Client
	token string
	base  string
}

func newOutlookClient(accessToken string, timeout time.Duration) *outlookClient {
	return &outlookClient{
		http:  &http.Client{Timeout: timeout},
		token: accessToken,
		base:  graphBaseURL,
	}
}

func (c *outlookClient) Close() error { return nil }

// do runs one Graph request and translates failure statuses.
func (c *outlookClient) do(ctx context.Context, method, path string, body interface{}, out interface{}, notFound error) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &UnexpectedError{Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return &UnexpectedError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return connErr(method+" "+path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &EmptyRefreshTokenError{}
	case resp.StatusCode == http.StatusNotFound:
		return notFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		// Throttling and server-side trouble are retryable.
		return connErr(method+" "+path, fmt.Errorf("graph status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(resp.Body)
		return &UnexpectedError{Err: fmt.Errorf("graph %s %s: status %d: %s", method, path, resp.StatusCode, truncate(string(data), 200))}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusAccepted {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &UnexpectedError{Err: fmt.Errorf("decoding graph response: %w", err)}
		}
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type graphFolder struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	ParentID    string `json:"parentFolderId"`
}

type graphFolderList struct {
	Value []graphFolder `json:"value"`
}

// wellKnownFolders maps the Graph well-known folder names we care about.
var wellKnownFolders = map[string]models.FolderType{
	"inbox":        models.FolderInbox,
	"sentitems":    models.FolderSent,
	"deleteditems": models.FolderTrash,
}

func (c *outlookClient) ListFolders(ctx context.Context) ([]RemoteFolder, error) {
	// Resolve well-known folders first so classification rides on the
	// stable names rather than localized display names.
	typeByID := make(map[string]models.FolderType)
	for known, folderType := range wellKnownFolders {
		var f graphFolder
		err := c.do(ctx, http.MethodGet, "/me/mailFolders/"+known, nil, &f, &FolderNotFoundError{Folder: known})
		if err != nil {
			if IsFolderNotFound(err) {
				continue
			}
			return nil, err
		}
		typeByID[f.ID] = folderType
	}

	var list graphFolderList
	if err := c.do(ctx, http.MethodGet, "/me/mailFolders?$top=100", nil, &list, &FolderNotFoundError{}); err != nil {
		return nil, err
	}

	var folders []RemoteFolder
	for _, f := range list.Value {
		folderType, ok := typeByID[f.ID]
		if !ok {
			folderType = models.ClassifyFolderName(f.DisplayName)
		}
		folders = append(folders, RemoteFolder{
			Identifier: models.FolderIdentifier{Kind: models.IdentifierID, Value: f.ID},
			Name:       f.DisplayName,
			Type:       folderType,
			Selectable: true,
		})
	}

	return folders, nil
}

type graphRecipient struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphMessage struct {
	ID                string           `json:"id"`
	Subject           string           `json:"subject"`
	From              *graphRecipient  `json:"from"`
	ToRecipients      []graphRecipient `json:"toRecipients"`
	CcRecipients      []graphRecipient `json:"ccRecipients"`
	BccRecipients     []graphRecipient `json:"bccRecipients"`
	IsRead            bool             `json:"isRead"`
	ReceivedDateTime  time.Time        `json:"receivedDateTime"`
	InternetMessageID string           `json:"internetMessageId"`
	ParentFolderID    string           `json:"parentFolderId"`
	Body              struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

type graphMessageList struct {
	Value []graphMessage `json:"value"`
	Next  string         `json:"@odata.nextLink"`
}

func (c *outlookClient) FetchMessages(ctx context.Context, folder models.FolderIdentifier, since time.Time) ([]RemoteMessage, error) {
	path := fmt.Sprintf("/me/mailFolders/%s/messages?$top=50", url.PathEscape(folder.Value))
	if !since.IsZero() {
		filter := url.QueryEscape(fmt.Sprintf("receivedDateTime ge %s", since.UTC().Format(time.RFC3339)))
		path += "&$filter=" + filter
	}

	var result []RemoteMessage
	for path != "" {
		var list graphMessageList
		if err := c.do(ctx, http.MethodGet, path, nil, &list, &FolderNotFoundError{Folder: folder.Value}); err != nil {
			return result, err
		}

		for i := range list.Value {
			result = append(result, remoteMessageFromGraph(&list.Value[i]))
		}

		path = strings.TrimPrefix(list.Next, c.base)
		if list.Next == "" {
			path = ""
		}
	}

	return result, nil
}

type graphAttachment struct {
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
	ContentBytes string `json:"contentBytes"`
}

type graphAttachmentList struct {
	Value []graphAttachment `json:"value"`
}

func (c *outlookClient) FetchMessage(ctx context.Context, remoteID string, folder models.FolderIdentifier) (*RemoteMessage, error) {
	var msg graphMessage
	path := "/me/messages/" + url.PathEscape(remoteID)
	if err := c.do(ctx, http.MethodGet, path, nil, &msg, &MessageNotFoundError{RemoteID: remoteID}); err != nil {
		return nil, err
	}

	rm := remoteMessageFromGraph(&msg)

	var atts graphAttachmentList
	if err := c.do(ctx, http.MethodGet, path+"/attachments", nil, &atts, &MessageNotFoundError{RemoteID: remoteID}); err != nil {
		return nil, err
	}
	for _, a := range atts.Value {
		content, err := base64.StdEncoding.DecodeString(a.ContentBytes)
		if err != nil {
			continue
		}
		rm.Attachments = append(rm.Attachments, RemoteAttachment{
			Filename:    a.Name,
			ContentType: a.ContentType,
			Size:        a.Size,
			Content:     content,
		})
	}

	return &rm, nil
}

func (c *outlookClient) MarkRead(ctx context.Context, remoteID string, folder models.FolderIdentifier) error {
	return c.patchRead(ctx, remoteID, true)
}

func (c *outlookClient) MarkUnread(ctx context.Context, remoteID string, folder models.FolderIdentifier) error {
	return c.patchRead(ctx, remoteID, false)
}

func (c *outlookClient) patchRead(ctx context.Context, remoteID string, read bool) error {
	body := map[string]bool{"isRead": read}
	path := "/me/messages/" + url.PathEscape(remoteID)
	return c.do(ctx, http.MethodPatch, path, body, nil, &MessageNotFoundError{RemoteID: remoteID})
}

func (c *outlookClient) DeleteMessage(ctx context.Context, remoteID string) error {
	path := "/me/messages/" + url.PathEscape(remoteID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, &MessageNotFoundError{RemoteID: remoteID})
}

// SendMessage posts to the sendMail action. Graph answers 202 Accepted and
// files the stored copy itself later, so the caller gets a queued receipt
// with no remote id: accepted, not yet confirmed.
func (c *outlookClient) SendMessage(ctx context.Context, msg *OutgoingMessage) (*SendReceipt, error) {
	if len(msg.To) == 0 {
		return nil, &ValidationError{Message: "no recipients"}
	}

	content := msg.HTMLBody
	contentType := "HTML"
	if content == "" {
		content = msg.TextBody
		contentType = "Text"
	}

	payload := map[string]interface{}{
		"message": map[string]interface{}{
			"subject": msg.Subject,
			"body": map[string]string{
				"contentType": contentType,
				"content":     content,
			},
			"toRecipients":  graphRecipients(msg.To),
			"ccRecipients":  graphRecipients(msg.Cc),
			"bccRecipients": graphRecipients(msg.Bcc),
			"attachments":   graphOutgoingAttachments(msg.Attachments),
		},
		"saveToSentItems": true,
	}

	if err := c.do(ctx, http.MethodPost, "/me/sendMail", payload, nil, &MessageNotFoundError{}); err != nil {
		return nil, err
	}

	return &SendReceipt{Queued: true}, nil
}

func graphRecipients(addresses []string) []map[string]interface{} {
	result := make([]map[string]interface{}, 0, len(addresses))
	for _, addr := range addresses {
		result = append(result, map[string]interface{}{
			"emailAddress": map[string]string{"address": addr},
		})
	}
	return result
}

func graphOutgoingAttachments(atts []RemoteAttachment) []map[string]interface{} {
	result := make([]map[string]interface{}, 0, len(atts))
	for _, a := range atts {
		result = append(result, map[string]interface{}{
			"@odata.type":  "#microsoft.graph.fileAttachment",
			"name":         a.Filename,
			"contentType":  a.ContentType,
			"contentBytes": base64.StdEncoding.EncodeToString(a.Content),
		})
	}
	return result
}

func remoteMessageFromGraph(m *graphMessage) RemoteMessage {
	rm := RemoteMessage{
		RemoteID:  m.ID,
		Subject:   m.Subject,
		Read:      m.IsRead,
		Date:      m.ReceivedDateTime,
		MessageID: m.InternetMessageID,
	}

	if m.From != nil {
		rm.From = RemoteAddress{Name: m.From.EmailAddress.Name, Address: m.From.EmailAddress.Address}
	}
	rm.To = graphAddresses(m.ToRecipients)
	rm.Cc = graphAddresses(m.CcRecipients)
	rm.Bcc = graphAddresses(m.BccRecipients)

	switch strings.ToLower(m.Body.ContentType) {
	case "html":
		rm.HTMLBody = m.Body.Content
	default:
		rm.TextBody = m.Body.Content
	}

	if m.ParentFolderID != "" {
		rm.Folders = []models.FolderIdentifier{{Kind: models.IdentifierID, Value: m.ParentFolderID}}
	}

	return rm
}

func graphAddresses(recipients []graphRecipient) []RemoteAddress {
	var result []RemoteAddress
	for _, r := range recipients {
		result = append(result, RemoteAddress{Name: r.EmailAddress.Name, Address: r.EmailAddress.Address})
	}
	return result
}
