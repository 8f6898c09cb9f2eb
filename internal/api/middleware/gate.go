package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roadwarden/roadwarden/internal/config"
	"github.com/roadwarden/roadwarden/internal/metrics"
	"github.com/roadwarden/roadwarden/internal/services"
)

// BlockedMessage is the uniform body served on any blocking verdict. The
// same message is used regardless of which rule fired: rule detail is
// admin-only, via the infringement audit trail.
const BlockedMessage = "Page Not Found. Please try again later."

// Gate is the inbound hook: before serving a request it captures the
// traffic, evaluates the rule set and enforces the block-check verdict;
// after serving it patches the response status and re-runs the
// post-response rules.
func Gate(capture *services.CaptureService, roadblocks *services.RoadblockService, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		member := MemberFromContext(c)

		session, reqLog, err := capture.Capture(c, member)
		if err != nil {
			// Capture trouble must never take the site down.
			GetRequestLogger(c).WithError(err).Error("Request capture failed")
			c.Next()
			return
		}
		if session == nil {
			// Ignored URL: no capture, no evaluation.
			c.Next()
			return
		}

		status, err := roadblocks.EvaluateAll(session, reqLog, member, false)
		if err != nil {
			GetRequestLogger(c).WithError(err).Error("Rule evaluation failed")
		}

		ok, err := roadblocks.CheckOK(session, member)
		if err != nil {
			GetRequestLogger(c).WithError(err).Error("Block check failed")
		}

		if status.Blocking() || !ok {
			GetRequestLogger(c).WithFields(map[string]interface{}{
				"session_alias": session.SessionAlias,
				"status":        string(status),
				"path":          SanitizePath(c.Request.URL.Path),
			}).Warn("Request blocked")
			metrics.IncBlockEnforced()
			blockResponse(c, cfg)
			return
		}

		c.Next()

		if err := capture.PatchStatusCode(reqLog.ID, c.Writer.Status()); err != nil {
			GetRequestLogger(c).WithError(err).Error("Failed to patch status code")
		}
		// Post-response rules can only score future requests; this one has
		// already been served.
		if _, err := roadblocks.EvaluateAll(session, reqLog, member, true); err != nil {
			GetRequestLogger(c).WithError(err).Error("Post-response evaluation failed")
		}
	}
}

func blockResponse(c *gin.Context, cfg config.Config) {
	if cfg.BlockMode == config.BlockModeNative {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	c.String(http.StatusNotFound, BlockedMessage)
	c.Abort()
}
