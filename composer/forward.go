package composer

import (
	"context"

	"mailbridge/models"
	"mailbridge/utils"
)

// Forward starts a forward of a locally mirrored message. The selected
// attachment filenames are re-resolved against the remote store at send
// time, so stale local attachment records never leak into the outbound
// message. Forwarding a message that no longer exists remotely fails before
// anything is transmitted.
func (c *Composer) Forward(ctx context.Context, account *models.Account, actor models.ActingUser, original *models.Message, attachmentNames []string) (*Message, error) {
	folder, err := c.originalFolder(ctx, original)
	if err != nil {
		return nil, err
	}

	m := c.NewMessage(account, actor)
	m.Subject("Fwd: " + utils.NormalizeSubject(original.Subject))

	m.verifyRemoteID = original.RemoteID
	m.verifyFolder = folder
	m.forwardNames = attachmentNames

	return m, nil
}
