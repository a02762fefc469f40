package models

// PaginatedMessages represents a paginated list of messages
type PaginatedMessages struct {
	Messages      []Message `json:"messages"`
	Page          int       `json:"page"`
	PageSize      int       `json:"page_size"`
	TotalPages    int       `json:"total_pages"`
	TotalMessages int       `json:"total_messages"`
	HasNext       bool      `json:"has_next"`
	HasPrev       bool      `json:"has_prev"`
}

// NewPaginatedMessages creates a new paginated messages response
func NewPaginatedMessages(messages []Message, page, pageSize, total int) *PaginatedMessages {
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	return &PaginatedMessages{
		Messages:      messages,
		Page:          page,
		PageSize:      pageSize,
		TotalPages:    totalPages,
		TotalMessages: total,
		HasNext:       page < totalPages,
		HasPrev:       page > 1,
	}
}
