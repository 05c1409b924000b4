package hub

import (
	"encoding/json"
	"log"
)

func (h *Hub) handleStartBroadcast(c *Client) {
	_, username := h.sessionInfo(c)
	room := h.rooms.Create(c.connID, username)

	log.Printf("[SPECTATE] room %s opened by %s (conn %s)", room.Token, username, c.connID)
	c.Send(okResponse("start_broadcast", map[string]interface{}{"roomId": room.Token}))
	h.broadcastRoomList()
}

func (h *Hub) handleStopBroadcast(c *Client, raw []byte) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.RoomID == "" {
		c.Send(failResponse("stop_broadcast", "roomId required"))
		return
	}

	room, ok := h.rooms.Close(req.RoomID, c.connID)
	if !ok {
		c.Send(failResponse("stop_broadcast", "room not found or not yours"))
		return
	}

	log.Printf("[SPECTATE] room %s closed by its broadcaster", room.Token)
	h.notifyBroadcastStopped(room)
	c.Send(okResponse("stop_broadcast", nil))
	h.broadcastRoomList()
}

func (h *Hub) handleJoinSpectateRoom(c *Client, raw []byte) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.RoomID == "" {
		c.Send(failResponse("join_spectate_room", "roomId required"))
		return
	}

	ownerConnID, offer, ok := h.rooms.Join(req.RoomID, c.connID)
	if !ok {
		c.Send(failResponse("join_spectate_room", "room not found"))
		return
	}

	h.SendToConn(ownerConnID, map[string]interface{}{
		"type":        "new_spectator",
		"roomId":      req.RoomID,
		"spectatorId": c.connID,
	})

	c.Send(okResponse("join_spectate_room", map[string]interface{}{"roomId": req.RoomID}))

	// Bootstrap the latecomer with the broadcaster's cached offer, so viewing
	// starts without a renegotiation.
	if len(offer) > 0 {
		c.Send(map[string]interface{}{
			"type":   "spectate_signal",
			"roomId": req.RoomID,
			"from":   "broadcaster",
			"signal": offer,
		})
	}
}

func (h *Hub) handleLeaveSpectateRoom(c *Client, raw []byte) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.RoomID == "" {
		c.Send(failResponse("leave_spectate_room", "roomId required"))
		return
	}

	ownerConnID, ok := h.rooms.Leave(req.RoomID, c.connID)
	if !ok {
		c.Send(failResponse("leave_spectate_room", "room not found"))
		return
	}

	h.SendToConn(ownerConnID, map[string]interface{}{
		"type":        "spectator_left",
		"roomId":      req.RoomID,
		"spectatorId": c.connID,
	})
	c.Send(okResponse("leave_spectate_room", nil))
}

// handleSpectateSignal is the role-dependent relay: a broadcaster's payload
// fans out to its spectators (or one addressed spectator); a spectator's
// payload goes to the broadcaster. Payloads stay opaque except for offer
// detection, which feeds the latecomer cache.
func (h *Hub) handleSpectateSignal(c *Client, raw []byte) {
	var req struct {
		RoomID      string          `json:"roomId"`
		SpectatorID string          `json:"spectatorId"`
		Signal      json.RawMessage `json:"signal"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.RoomID == "" || len(req.Signal) == 0 {
		c.Send(failResponse("spectate_signal", "roomId and signal required"))
		return
	}

	if spectators, owned := h.rooms.SpectatorsOf(req.RoomID, c.connID); owned {
		if signalHasOffer(req.Signal) {
			h.rooms.CacheOffer(req.RoomID, c.connID, req.Signal)
		}
		msg := map[string]interface{}{
			"type":   "spectate_signal",
			"roomId": req.RoomID,
			"from":   "broadcaster",
			"signal": req.Signal,
		}
		if req.SpectatorID != "" {
			if !h.rooms.IsSpectator(req.RoomID, req.SpectatorID) {
				c.Send(failResponse("spectate_signal", "no such spectator"))
				return
			}
			h.SendToConn(req.SpectatorID, msg)
			return
		}
		for _, spectatorID := range spectators {
			h.SendToConn(spectatorID, msg)
		}
		return
	}

	if h.rooms.IsSpectator(req.RoomID, c.connID) {
		ownerConnID, ok := h.rooms.OwnerOf(req.RoomID)
		if !ok {
			c.Send(failResponse("spectate_signal", "room not found"))
			return
		}
		h.SendToConn(ownerConnID, map[string]interface{}{
			"type":        "spectate_signal",
			"roomId":      req.RoomID,
			"from":        c.connID,
			"spectatorId": c.connID,
			"signal":      req.Signal,
		})
		return
	}

	c.Send(failResponse("spectate_signal", "not in room"))
}

// handleSignalToSpectator delivers only when the sender owns the room and the
// target is a current member.
func (h *Hub) handleSignalToSpectator(c *Client, raw []byte) {
	var req struct {
		RoomID      string          `json:"roomId"`
		SpectatorID string          `json:"spectatorId"`
		Signal      json.RawMessage `json:"signal"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.RoomID == "" || req.SpectatorID == "" || len(req.Signal) == 0 {
		c.Send(failResponse("webrtc_signal_to_spectator", "roomId, spectatorId and signal required"))
		return
	}

	if _, owned := h.rooms.SpectatorsOf(req.RoomID, c.connID); !owned {
		c.Send(failResponse("webrtc_signal_to_spectator", "room not found or not yours"))
		return
	}
	if !h.rooms.IsSpectator(req.RoomID, req.SpectatorID) {
		c.Send(failResponse("webrtc_signal_to_spectator", "no such spectator"))
		return
	}

	if signalHasOffer(req.Signal) {
		h.rooms.CacheOffer(req.RoomID, c.connID, req.Signal)
	}

	h.SendToConn(req.SpectatorID, map[string]interface{}{
		"type":   "spectate_signal",
		"roomId": req.RoomID,
		"from":   "broadcaster",
		"signal": req.Signal,
	})
}

// handleSignalToBroadcaster delivers only when the sender currently watches
// the room.
func (h *Hub) handleSignalToBroadcaster(c *Client, raw []byte) {
	var req struct {
		RoomID string          `json:"roomId"`
		Signal json.RawMessage `json:"signal"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.RoomID == "" || len(req.Signal) == 0 {
		c.Send(failResponse("webrtc_signal_to_broadcaster", "roomId and signal required"))
		return
	}

	if !h.rooms.IsSpectator(req.RoomID, c.connID) {
		c.Send(failResponse("webrtc_signal_to_broadcaster", "not watching this room"))
		return
	}
	ownerConnID, ok := h.rooms.OwnerOf(req.RoomID)
	if !ok {
		c.Send(failResponse("webrtc_signal_to_broadcaster", "room not found"))
		return
	}

	h.SendToConn(ownerConnID, map[string]interface{}{
		"type":        "spectate_signal",
		"roomId":      req.RoomID,
		"from":        c.connID,
		"spectatorId": c.connID,
		"signal":      req.Signal,
	})
}

func (h *Hub) handleGetBroadcastList(c *Client) {
	c.Send(map[string]interface{}{
		"type":  "broadcast_list_update",
		"rooms": h.rooms.List(),
	})
}

// signalHasOffer detects a payload the broadcaster labels as carrying an SDP
// offer, either as an "offer" field or as {"type":"offer",...}.
func signalHasOffer(signal json.RawMessage) bool {
	var probe struct {
		Offer json.RawMessage `json:"offer"`
		Type  string          `json:"type"`
	}
	if err := json.Unmarshal(signal, &probe); err != nil {
		return false
	}
	return len(probe.Offer) > 0 || probe.Type == "offer"
}
