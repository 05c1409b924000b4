package hub

import (
	"context"
	"encoding/json"
	"log"
)

// requiresAuth reports whether a request type needs a bound session before
// its handler runs. Spectate joins and signaling have their own role checks.
func requiresAuth(reqType string) bool {
	switch reqType {
	case "logout", "change_username", "update_user_data",
		"join_queue", "leave_queue",
		"webrtc_signal", "report_result", "clear_match_info",
		"start_broadcast", "stop_broadcast", "webrtc_signal_to_spectator":
		return true
	}
	return false
}

// route is the single entry point for an inbound frame. Malformed frames are
// dropped with a log line; a panicking handler becomes a generic error event
// instead of killing the process.
func (h *Hub) route(ctx context.Context, c *Client, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[WS] handler panic on conn %s: %v", c.connID, r)
			c.sendError("internal error")
		}
	}()

	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		log.Printf("[WS] dropping malformed frame from conn %s", c.connID)
		return
	}

	if requiresAuth(env.Type) && h.sessionUser(c) == "" {
		c.Send(failResponse(env.Type, "authentication required"))
		return
	}

	switch env.Type {
	case "register":
		h.handleRegister(ctx, c, raw)
	case "login":
		h.handleLogin(ctx, c, raw)
	case "auto_login":
		h.handleAutoLogin(ctx, c, raw)
	case "logout":
		h.handleLogout(c)
	case "change_username":
		h.handleChangeUsername(ctx, c, raw)
	case "update_user_data":
		h.handleUpdateUserData(ctx, c, raw)
	case "get_ranking":
		h.handleGetRanking(ctx, c)
	case "join_queue":
		h.handleJoinQueue(ctx, c)
	case "leave_queue":
		h.handleLeaveQueue(c)
	case "webrtc_signal":
		h.handleSignal(c, raw)
	case "report_result":
		h.handleReportResult(ctx, c, raw)
	case "clear_match_info":
		h.handleClearMatchInfo(ctx, c)
	case "start_broadcast":
		h.handleStartBroadcast(c)
	case "stop_broadcast":
		h.handleStopBroadcast(c, raw)
	case "join_spectate_room":
		h.handleJoinSpectateRoom(c, raw)
	case "leave_spectate_room":
		h.handleLeaveSpectateRoom(c, raw)
	case "spectate_signal":
		h.handleSpectateSignal(c, raw)
	case "webrtc_signal_to_spectator":
		h.handleSignalToSpectator(c, raw)
	case "webrtc_signal_to_broadcaster":
		h.handleSignalToBroadcaster(c, raw)
	case "get_broadcast_list":
		h.handleGetBroadcastList(c)
	default:
		log.Printf("[WS] unknown frame type %q from conn %s", env.Type, c.connID)
	}
}

// failResponse builds a {type:..._response, success:false} reply.
func failResponse(reqType, message string) map[string]interface{} {
	return map[string]interface{}{
		"type":    reqType + "_response",
		"success": false,
		"message": message,
	}
}

// okResponse builds a successful reply, merging in extra fields.
func okResponse(reqType string, fields map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"type":    reqType + "_response",
		"success": true,
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}
