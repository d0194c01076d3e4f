package dto

import "github.com/google/uuid"

type CreatePostRequest struct {
	Content  string     `json:"content"`
	ThreadID *uuid.UUID `json:"thread_id"`
}
