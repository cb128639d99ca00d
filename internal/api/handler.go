package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/logging"

	"github.com/WeebOrWeed/3d-streaming/internal/rtc"
)

// Signaler is the slice of the connection lifecycle the HTTP boundary
// drives.
type Signaler interface {
	BeginSession(role rtc.Role) (rtc.Session, error)
	ApplyRemoteOffer(offer rtc.SessionDescription) (rtc.SessionDescription, error)
	ApplyRemoteAnswer(answer rtc.SessionDescription) error
}

// NewRouter returns the signaling router for the publisher: POST /offer
// exchanges the peer's offer for a local answer, POST /answer accepts the
// peer's answer when the publisher initiated the offer.
func NewRouter(signaler Signaler, loggerFactory logging.LoggerFactory) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	log := loggerFactory.NewLogger("signal")

	router.POST("/offer", func(c *gin.Context) {
		var req descriptionPayload
		if err := c.ShouldBindJSON(&req); err != nil {
			handleError(c, log, fmt.Errorf("malformed request body: %w", err))
			return
		}
		if req.SDP == "" || req.Type == "" {
			handleError(c, log, fmt.Errorf("missing required sdp parameters"))
			return
		}

		log.Infof("received offer, starting new session")
		if _, err := signaler.BeginSession(rtc.RolePublisher); err != nil {
			handleError(c, log, err)
			return
		}

		answer, err := signaler.ApplyRemoteOffer(rtc.SessionDescription{
			SDP:  req.SDP,
			Type: req.Type,
		})
		if err != nil {
			handleError(c, log, err)
			return
		}

		c.JSON(http.StatusOK, descriptionPayload{
			SDP:  answer.SDP,
			Type: answer.Type,
		})
	})

	router.POST("/answer", func(c *gin.Context) {
		var req descriptionPayload
		if err := c.ShouldBindJSON(&req); err != nil {
			handleError(c, log, fmt.Errorf("malformed request body: %w", err))
			return
		}
		if req.SDP == "" {
			handleError(c, log, fmt.Errorf("missing required sdp parameters"))
			return
		}

		if err := signaler.ApplyRemoteAnswer(rtc.SessionDescription{
			SDP:  req.SDP,
			Type: req.Type,
		}); err != nil {
			handleError(c, log, err)
			return
		}

		c.String(http.StatusOK, "OK")
	})

	return router
}

func handleError(c *gin.Context, log logging.LeveledLogger, err error) {
	log.Errorf("signaling error: %v", err)
	c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}
