package telephony

import (
	"context"
	"errors"
	"net/http"

	"coldcall-platform/internal/apperr"
	"coldcall-platform/internal/session"
	"coldcall-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallEnder ends the session call bound to a provider call. session.Manager
// implements it.
type CallEnder interface {
	EndProviderCall(ctx context.Context, providerCallID string, durationSeconds int) (*session.Session, error)
}

// StatusWebhookHandler converts Twilio status callbacks into EndCall on the
// owning session. No business logic here.
type StatusWebhookHandler struct {
	Sessions CallEnder

	// AuthToken enables X-Twilio-Signature checks when set.
	AuthToken string
	// PublicBaseURL replaces scheme and host when rebuilding the signed URL
	// behind a proxy.
	PublicBaseURL string
}

func (h StatusWebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
		return
	}

	cb, err := ParseStatusCallback(c.Request)
	if err != nil {
		log.Warn("twilio status parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	if h.AuthToken != "" {
		if !ValidSignature(h.AuthToken, h.signedURL(c.Request), c.Request.PostForm, c.GetHeader(HeaderSignature)) {
			log.Warn("twilio signature rejected", "call_sid", cb.CallSid)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
	}

	if !cb.CallStatus.Terminal() {
		c.Status(http.StatusNoContent)
		return
	}

	s, err := h.Sessions.EndProviderCall(c.Request.Context(), cb.CallSid, cb.DurationSeconds)
	switch {
	case err == nil:
		log.Info("call ended by provider", "session_id", s.ID(), "call_sid", cb.CallSid, "status", string(cb.CallStatus), "duration_seconds", cb.DurationSeconds)
	case errors.Is(err, session.ErrNotFound):
		// Calls placed outside a tracked session.
		log.Debug("twilio status for unknown call", "call_sid", cb.CallSid)
	case errors.Is(err, apperr.ErrNoActiveCall):
		// Already ended from the UI.
		log.Debug("twilio status for ended call", "call_sid", cb.CallSid)
	default:
		// Non-2xx makes Twilio retry the callback.
		log.Error("end provider call failed", "call_sid", cb.CallSid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "end call failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h StatusWebhookHandler) signedURL(r *http.Request) string {
	if h.PublicBaseURL != "" {
		return h.PublicBaseURL + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
