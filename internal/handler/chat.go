package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"studybuddy-backend/internal/model"
	"studybuddy-backend/internal/render"
	"studybuddy-backend/internal/service"
	"studybuddy-backend/internal/transcript"
	"studybuddy-backend/internal/utils"
	"studybuddy-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

const defaultHeartbeat = 30 * time.Second

type ChatHandler struct {
	tutor     *service.TutorService
	html      render.Renderer
	heartbeat time.Duration
}

func NewChatHandler(tutor *service.TutorService, html render.Renderer, heartbeat time.Duration) *ChatHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	if html == nil {
		html = render.NewHTMLRenderer()
	}
	return &ChatHandler{
		tutor:     tutor,
		html:      html,
		heartbeat: heartbeat,
	}
}

// Register mounts the tutor API on group.
func (h *ChatHandler) Register(api *gin.RouterGroup) {
	api.GET("/subjects", h.ListSubjects)
	api.POST("/subject", h.SwitchSubject)
	api.GET("/transcript", h.GetTranscript)
	api.GET("/draft", h.GetDraft)
	api.PUT("/draft", h.PutDraft)
	api.POST("/render", h.Render)
	api.GET("/events", h.Events)
	api.POST("/chat/stream", h.StreamChat)
}

// isIgnored reports whether err is a submission the controller refused
// without touching anything.
func isIgnored(err error) bool {
	return errors.Is(err, service.ErrEmptyInput) ||
		errors.Is(err, service.ErrBusy) ||
		errors.Is(err, service.ErrNoSession)
}

// StreamChat submits a question and streams the exchange's transcript
// events, then a status event and [DONE]. Ignored input gets 204.
func (h *ChatHandler) StreamChat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// subscribe first so the two appended events are not missed
	events, cancel := h.tutor.Subscribe(0)
	defer cancel()

	ex, err := h.tutor.Submit(c.Request.Context(), req.Message)
	if err != nil {
		if isIgnored(err) {
			logger.Debugf("Submission ignored: %v", err)
			c.Status(http.StatusNoContent)
			return
		}
		logger.Errorf("Submit failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	sse := utils.NewSSEWriter(c.Writer)
	c.Status(http.StatusOK)

	ctx, stop := context.WithCancel(c.Request.Context())
	beating := make(chan struct{})
	go func() {
		defer close(beating)
		h.keepAlive(ctx, sse)
	}()
	defer func() {
		stop()
		<-beating
	}()

	belongs := func(ev transcript.Event) bool {
		return ev.Message.ID == ex.UserMessageID || ev.Message.ID == ex.ModelMessageID
	}
	// the subscription drops events when it falls behind; finalSent tells
	// whether the finalized reply still has to be sent from the transcript
	var finalSent bool
	forward := func(ev transcript.Event) bool {
		if !belongs(ev) {
			return true
		}
		if ev.Type == transcript.EventFinalized && ev.Message.ID == ex.ModelMessageID {
			finalSent = true
		}
		if err := sse.WriteJSON("message", ev); err != nil {
			logger.Warnf("Failed to write SSE for exchange %s: %v", ex.ID, err)
			return false
		}
		return true
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !forward(ev) {
				return
			}

		case <-ex.Done():
			// the final events are published before Done closes
		drain:
			for {
				select {
				case ev := <-events:
					if !forward(ev) {
						return
					}
				default:
					break drain
				}
			}
			final, ok := h.tutor.Message(ex.ModelMessageID)
			if ok && !finalSent {
				logger.Warnf("Exchange %s: finalized event missed, resending from transcript", ex.ID)
				if !forward(transcript.Event{Type: transcript.EventFinalized, Message: final}) {
					return
				}
			}
			h.writeStatus(sse, ex, final)
			sse.Close()
			return

		case <-c.Request.Context().Done():
			logger.Infof("Client left exchange %s, it keeps running", ex.ID)
			return
		}
	}
}

func (h *ChatHandler) writeStatus(sse *utils.SSEWriter, ex *service.Exchange, final transcript.Message) {
	status := model.ExchangeStatus{
		ExchangeID:     ex.ID,
		UserMessageID:  ex.UserMessageID,
		ModelMessageID: ex.ModelMessageID,
		State:          ex.State().String(),
		Failed:         ex.Failed(),
		Message:        final,
		Timestamp:      time.Now().Unix(),
	}
	if err := sse.WriteJSON("status", status); err != nil {
		logger.Warnf("Failed to write status for exchange %s: %v", ex.ID, err)
	}
}

func (h *ChatHandler) keepAlive(ctx context.Context, sse *utils.SSEWriter) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := sse.WriteJSON("heartbeat", model.NewHeartbeat()); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Events streams every transcript change, preceded by a snapshot.
func (h *ChatHandler) Events(c *gin.Context) {
	events, cancel := h.tutor.Subscribe(0)
	defer cancel()

	sse := utils.NewSSEWriter(c.Writer)
	c.Status(http.StatusOK)

	if err := sse.WriteJSON("snapshot", h.transcriptResponse(false)); err != nil {
		logger.Warnf("Failed to write snapshot: %v", err)
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				sse.Close()
				return
			}
			if err := sse.WriteJSON("message", ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := sse.WriteJSON("heartbeat", model.NewHeartbeat()); err != nil {
				return
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}
