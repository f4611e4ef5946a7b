package rtc

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/mrshakil015/channels/internal/app"
	"github.com/mrshakil015/channels/internal/core"
	"github.com/mrshakil015/channels/internal/domain"
)

type Controller struct {
	Registry *app.Registry
	cfg      webrtc.Configuration
}

func NewController(reg *app.Registry, cfg webrtc.Configuration) *Controller {
	return &Controller{Registry: reg, cfg: cfg}
}

type offerPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp" binding:"required"`
}

type answerPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
	ID   string `json:"id"`
}

// HandleOffer negotiates a PeerConnection from the posted SDP offer and
// answers with the SDP answer. Every data channel the peer opens on it is
// dispatched to d. ctx bounds the PeerConnection lifetime.
func (ctl *Controller) HandleOffer(ctx context.Context, c *gin.Context, d *core.Dispatcher, scope *domain.Scope) {
	var p offerPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Msg("bad offer payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offer"})
		return
	}
	if p.Type != "" && p.Type != webrtc.SDPTypeOffer.String() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected offer"})
		return
	}

	id := uuid.NewString()
	pc, err := NewPeerConn(ctl.cfg, id)
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("webrtc new pc")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "peer connection"})
		return
	}

	sc := *scope
	pc.OnDataChannel(func(ctx context.Context, dc *webrtc.DataChannel) {
		bind(dc, newSession(ctx, ctl.Registry, d, &sc, dc, pc.logger.With().Str("label", dc.Label()).Logger()))
	})

	if err = pc.Start(ctx); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("webrtc start")
		pc.Close()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "peer connection"})
		return
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP}
	answer, err := pc.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("webrtc apply offer")
		pc.Close()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offer"})
		return
	}

	c.JSON(http.StatusOK, answerPayload{Type: answer.Type.String(), SDP: answer.SDP, ID: id})
}
