package api

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"mailbridge/utils"
)

// draftTTL bounds how long uploaded attachments wait for their send.
const draftTTL = time.Hour

// draftAttachment is an uploaded file parked until the send that references
// its draft id.
type draftAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// HandleUploadDraftAttachment accepts multipart file uploads and parks them
// under a draft id. The response's draft id goes into a later send request's
// attachments_draft_id. Repeated uploads to the same draft id accumulate.
func (h *Handler) HandleUploadDraftAttachment(c *fiber.Ctx) error {
	draftID := c.FormValue("draft_id")
	if draftID == "" {
		draftID = uuid.New().String()
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.BadRequestError("multipart form required", err)
	}
	files := form.File["files"]
	if len(files) == 0 {
		return utils.BadRequestError("no files uploaded", nil)
	}

	existing, _ := h.draftAttachments(draftID)
	for _, header := range files {
		f, err := header.Open()
		if err != nil {
			return utils.BadRequestError("unreadable upload "+header.Filename, err)
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return utils.BadRequestError("unreadable upload "+header.Filename, err)
		}

		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		existing = append(existing, draftAttachment{
			Filename:    header.Filename,
			ContentType: contentType,
			Content:     content,
		})
	}

	h.drafts.Set(draftKey(draftID), existing, draftTTL)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"attachments_draft_id": draftID,
		"count":                len(existing),
	})
}

// draftAttachments returns the files parked under a draft id. An unknown or
// expired draft id yields an empty slice, not an error, except when a send
// explicitly references it.
func (h *Handler) draftAttachments(draftID string) ([]draftAttachment, error) {
	value, ok := h.drafts.Get(draftKey(draftID))
	if !ok {
		return nil, utils.BadRequestError("unknown or expired attachments draft "+draftID, nil)
	}
	atts, ok := value.([]draftAttachment)
	if !ok {
		return nil, utils.BadRequestError("unknown or expired attachments draft "+draftID, nil)
	}
	return atts, nil
}

func draftKey(draftID string) string {
	return "draft:" + draftID
}
