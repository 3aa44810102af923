package handlers

import (
	"net/http"

	"github.com/linesmerrill/sos-dispatch-api/notify"
)

// Notification exported for testing purposes
type Notification struct {
	Hub *notify.Hub
}

// NotificationsHandler upgrades the caller to a websocket receiving case
// status changes
func (n Notification) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	n.Hub.ServeWS(w, r, actor(r).ID)
}
