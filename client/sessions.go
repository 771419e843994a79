// ABOUTME: Server-side session endpoint: get-or-create with expiry window.
// ABOUTME: Satisfies the session backend contract for PersistentManager.

package client

import (
	"context"
	"fmt"
	"time"
)

type sessionRequest struct {
	Namespace         string `json:"namespace"`
	UserID            string `json:"user_id"`
	InactivityTimeout int    `json:"inactivity_timeout_seconds,omitempty"`
	ForceNew          bool   `json:"force_new,omitempty"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	Reused    bool   `json:"reused"`
}

// GetOrCreateSession asks the API for the user's active session, creating
// one if the last activity is older than inactivityTimeout or forceNew is
// set. Reports whether an existing session was reused.
func (c *Client) GetOrCreateSession(ctx context.Context, namespace, userID string, inactivityTimeout time.Duration, forceNew bool) (string, bool, error) {
	req := sessionRequest{
		Namespace:         namespace,
		UserID:            userID,
		InactivityTimeout: int(inactivityTimeout.Seconds()),
		ForceNew:          forceNew,
	}
	var resp sessionResponse
	if err := c.post(ctx, "/sessions/get-or-create", req, &resp); err != nil {
		return "", false, fmt.Errorf("getting session for %s/%s: %w", namespace, userID, err)
	}
	if resp.SessionID == "" {
		return "", false, fmt.Errorf("getting session for %s/%s: empty session id in response", namespace, userID)
	}
	return resp.SessionID, resp.Reused, nil
}
