package model

type ChatRequest struct {
	Message string `json:"message"`
}

type SubjectRequest struct {
	Subject string `json:"subject" binding:"required"`
}

type DraftRequest struct {
	Text string `json:"text"`
}

type RenderRequest struct {
	Text string `json:"text"`
}
