package dto

type CreateReportRequest struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type ScanRequest struct {
	Limit int `json:"limit"`
}

type ClassifyRequest struct {
	Text    string `json:"text"`
	BoardID string `json:"board_id"`
}

type DeleteCategoryRequest struct {
	Reason string `json:"reason"`
}

type CategoryRequest struct {
	Weight   float64  `json:"weight"`
	IsActive *bool    `json:"is_active"`
	Terms    []string `json:"terms"`
	Patterns []string `json:"patterns"`
}
