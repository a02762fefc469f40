package composer

import (
	"context"
	"strings"

	"mailbridge/models"
	"mailbridge/utils"
)

// Reply starts a reply to a locally mirrored message. The reply is addressed
// to the original sender, threads into the conversation via In-Reply-To and
// References, and refuses to transmit if the original no longer exists on
// the remote store.
func (c *Composer) Reply(ctx context.Context, account *models.Account, actor models.ActingUser, original *models.Message) (*Message, error) {
	folder, err := c.originalFolder(ctx, original)
	if err != nil {
		return nil, err
	}

	m := c.NewMessage(account, actor)
	m.Subject("Re: " + utils.NormalizeSubject(original.Subject))
	if original.FromAddress != "" {
		m.To(original.FromAddress)
	}

	if original.MessageID != "" {
		m.inReplyTo = original.MessageID
		if original.References != "" {
			m.references = strings.Fields(original.References)
		}
		m.references = append(m.references, original.MessageID)
	}

	m.verifyRemoteID = original.RemoteID
	m.verifyFolder = folder

	return m, nil
}

// originalFolder picks the remote folder the original message is addressed
// under, from its first local membership.
func (c *Composer) originalFolder(ctx context.Context, original *models.Message) (models.FolderIdentifier, error) {
	if len(original.Folders) == 0 {
		return models.FolderIdentifier{}, nil
	}
	folder, err := c.store.FolderByID(ctx, original.Folders[0])
	if err != nil {
		return models.FolderIdentifier{}, err
	}
	return folder.Identifier(), nil
}
