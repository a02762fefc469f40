package api

import (
	"github.com/gofiber/fiber/v2"

	"mailbridge/composer"
	"mailbridge/models"
	"mailbridge/utils"
)

type sendRequest struct {
	Subject            string             `json:"subject"`
	To                 []string           `json:"to"`
	Cc                 []string           `json:"cc"`
	Bcc                []string           `json:"bcc"`
	Message            string             `json:"message"`
	AttachmentsDraftID string             `json:"attachments_draft_id"`
	Associations       map[string][]int64 `json:"associations"`
	Track              bool               `json:"track"`
	// ForwardAttachments selects which original attachments ride along on
	// a forward, by filename.
	ForwardAttachments []string `json:"forward_attachments"`
}

// associationTypes maps the request's plural keys onto resource types.
var associationTypes = map[string]models.ResourceType{
	"contacts":  models.ResourceContact,
	"companies": models.ResourceCompany,
	"deals":     models.ResourceDeal,
}

// HandleSendMessage composes and sends a new message from an account. A
// synchronously confirmed send returns 201 with the mirrored message; a
// transport that only queued the message returns 202 with no local row.
func (h *Handler) HandleSendMessage(c *fiber.Ctx) error {
	accountID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	account, err := h.store.GetAccount(c.Context(), accountID)
	if err != nil {
		return mapError(err)
	}
	actor, err := actingUser(c)
	if err != nil {
		return err
	}

	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestError("invalid request body", err)
	}

	msg := h.compose.NewMessage(account, actor)
	if err := h.applyRequest(msg, &req); err != nil {
		return err
	}

	return h.finishSend(c, msg)
}

// HandleReply composes and sends a reply to a mirrored message, threading it
// into the original conversation. Replying to a message that no longer
// exists upstream returns 409 and creates no local row.
func (h *Handler) HandleReply(c *fiber.Ctx) error {
	original, account, actor, req, err := h.loadOriginal(c)
	if err != nil {
		return err
	}

	msg, err := h.compose.Reply(c.Context(), account, actor, original)
	if err != nil {
		return mapError(err)
	}
	if err := h.applyRequest(msg, req); err != nil {
		return err
	}

	return h.finishSend(c, msg)
}

// HandleForward composes and sends a forward, carrying along the selected
// subset of the original's attachments re-resolved from the remote store.
func (h *Handler) HandleForward(c *fiber.Ctx) error {
	original, account, actor, req, err := h.loadOriginal(c)
	if err != nil {
		return err
	}

	msg, err := h.compose.Forward(c.Context(), account, actor, original, req.ForwardAttachments)
	if err != nil {
		return mapError(err)
	}
	if err := h.applyRequest(msg, req); err != nil {
		return err
	}

	return h.finishSend(c, msg)
}

func (h *Handler) loadOriginal(c *fiber.Ctx) (*models.Message, *models.Account, models.ActingUser, *sendRequest, error) {
	messageID, err := paramID(c, "id")
	if err != nil {
		return nil, nil, models.ActingUser{}, nil, err
	}
	original, err := h.store.GetMessage(c.Context(), messageID)
	if err != nil {
		return nil, nil, models.ActingUser{}, nil, mapError(err)
	}
	account, err := h.store.GetAccount(c.Context(), original.AccountID)
	if err != nil {
		return nil, nil, models.ActingUser{}, nil, mapError(err)
	}
	actor, err := actingUser(c)
	if err != nil {
		return nil, nil, models.ActingUser{}, nil, err
	}

	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, nil, models.ActingUser{}, nil, utils.BadRequestError("invalid request body", err)
	}
	return original, account, actor, &req, nil
}

// applyRequest folds the request body into a message builder.
func (h *Handler) applyRequest(msg *composer.Message, req *sendRequest) error {
	msg.To(req.To...).Cc(req.Cc...).Bcc(req.Bcc...)
	if req.Subject != "" {
		msg.Subject(req.Subject)
	}
	msg.HTMLBody(req.Message)
	if req.Track {
		msg.WithTrackers()
	}

	for key, ids := range req.Associations {
		resourceType, ok := associationTypes[key]
		if !ok {
			return utils.BadRequestError("unknown association type "+key, nil)
		}
		for _, id := range ids {
			msg.Associate(resourceType, id)
		}
	}

	if req.AttachmentsDraftID != "" {
		atts, err := h.draftAttachments(req.AttachmentsDraftID)
		if err != nil {
			return err
		}
		for _, att := range atts {
			msg.Attach(att.Filename, att.ContentType, att.Content)
		}
	}

	return nil
}

func (h *Handler) finishSend(c *fiber.Ctx, msg *composer.Message) error {
	result, err := msg.Send(c.Context())
	if err != nil {
		return mapError(err)
	}

	if result.Queued {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"status": "accepted",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(result.Message)
}
