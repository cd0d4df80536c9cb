package handler

import (
	"errors"
	"net/http"

	"studybuddy-backend/internal/model"
	"studybuddy-backend/internal/render"
	"studybuddy-backend/internal/service"
	"studybuddy-backend/internal/subject"
	"studybuddy-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

func (h *ChatHandler) ListSubjects(c *gin.Context) {
	current := h.tutor.Subject()
	all := subject.All()

	views := make([]model.SubjectView, 0, len(all))
	for _, cfg := range all {
		views = append(views, model.SubjectView{Config: cfg, Current: cfg.ID == current})
	}
	c.JSON(http.StatusOK, model.SubjectsResponse{Current: current, Subjects: views})
}

func (h *ChatHandler) SwitchSubject(c *gin.Context) {
	var req model.SubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, ok := subject.Parse(req.Subject)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown subject: " + req.Subject})
		return
	}

	switched, err := h.tutor.SwitchSubject(id)
	if err != nil {
		if errors.Is(err, service.ErrBusy) {
			c.JSON(http.StatusConflict, gin.H{"error": "an answer is still streaming"})
			return
		}
		logger.Errorf("Subject switch to %s failed: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.SwitchResponse{Switched: switched, Subject: h.tutor.Subject()})
}

// GetTranscript returns the snapshot; ?format=html adds rendered HTML.
func (h *ChatHandler) GetTranscript(c *gin.Context) {
	c.JSON(http.StatusOK, h.transcriptResponse(c.Query("format") == "html"))
}

func (h *ChatHandler) transcriptResponse(withHTML bool) model.TranscriptResponse {
	msgs := h.tutor.Snapshot()
	views := make([]model.MessageView, 0, len(msgs))
	for _, m := range msgs {
		v := model.MessageView{Message: m}
		if withHTML {
			out, err := render.Message(h.html, m)
			if err != nil {
				logger.Warnf("Failed to render message %s: %v", m.ID, err)
				out = render.EscapeText(m.Text)
			}
			v.HTML = out
		}
		views = append(views, v)
	}

	return model.TranscriptResponse{
		AppName:     h.tutor.AppName(),
		Subject:     h.tutor.Subject(),
		Placeholder: h.tutor.Placeholder(),
		Busy:        h.tutor.Busy(),
		State:       h.tutor.State().String(),
		Messages:    views,
	}
}

func (h *ChatHandler) GetDraft(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"text": h.tutor.Draft()})
}

func (h *ChatHandler) PutDraft(c *gin.Context) {
	var req model.DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.tutor.SetDraft(req.Text)
	c.JSON(http.StatusOK, gin.H{"text": req.Text})
}

func (h *ChatHandler) Render(c *gin.Context) {
	var req model.RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.html.Render(req.Text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"html": out})
}
