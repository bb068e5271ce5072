package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"teleloop/work/logger"
	"teleloop/work/utils"
)

// timelineReport is the playback telemetry shape posted to the server.
type timelineReport struct {
	SessionID string  `json:"sessionId"`
	ItemID    string  `json:"itemId"`
	Offset    float64 `json:"offset"`
	State     string  `json:"state"` // playing, paused, stopped
	Duration  float64 `json:"duration"`
}

// ReportTimeline posts a playback progress report to the primary endpoint as
// a best-effort operation: it runs in its own goroutine, never blocks the
// caller, and failures are logged at debug level and otherwise ignored. The
// server uses these reports for watch-state bookkeeping only, so losing one
// is harmless.
func (mc *MediaClient) ReportTimeline(sessionID, itemID string, offset float64, state string, duration float64) {
	session := mc.CurrentSession()
	if len(session.Endpoints) == 0 || len(session.Tokens) == 0 {
		return
	}
	endpoint := session.Endpoints[0]
	token := session.Tokens[0]

	go func() {
		mc.limiterFor(endpoint).Take()

		body, err := json.Marshal(timelineReport{
			SessionID: sessionID,
			ItemID:    itemID,
			Offset:    offset,
			State:     state,
			Duration:  duration,
		})
		if err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), mc.cfg.Server.RequestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/timeline", bytes.NewReader(body))
		if err != nil {
			return
		}
		mc.setHeaders(req, token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := mc.Client.Do(req)
		if err != nil {
			logger.Debug("{client/timeline - ReportTimeline} Timeline report failed for %s: %v", utils.LogURL(mc.cfg.ObfuscateUrls, endpoint), err)
			return
		}
		resp.Body.Close()
	}()
}

// StopSession asks the server to tear down a transcoder session. Best effort
// in the same way as timeline reports: the server reaps idle sessions on its
// own, an explicit stop just frees its resources sooner.
func (mc *MediaClient) StopSession(sessionID string) {
	session := mc.CurrentSession()
	if sessionID == "" || len(session.Endpoints) == 0 || len(session.Tokens) == 0 {
		return
	}
	endpoint := session.Endpoints[0]
	token := session.Tokens[0]

	go func() {
		mc.limiterFor(endpoint).Take()

		ctx, cancel := context.WithTimeout(context.Background(), mc.cfg.Server.RequestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/stream/sessions/"+sessionID+"/stop", nil)
		if err != nil {
			return
		}
		mc.setHeaders(req, token)

		resp, err := mc.Client.Do(req)
		if err != nil {
			logger.Debug("{client/timeline - StopSession} Session stop failed for %s: %v", sessionID, err)
			return
		}
		resp.Body.Close()
	}()
}
