package hub

// broadcastRoomList pushes the current spectate-room list to every open
// connection. Called on room create/destroy and on get_broadcast_list.
func (h *Hub) broadcastRoomList() {
	h.BroadcastAll(map[string]interface{}{
		"type":  "broadcast_list_update",
		"rooms": h.rooms.List(),
	})
}

// broadcastQueueCount pushes the waiting count to every open connection.
// Called on every enqueue, dequeue, and pairing.
func (h *Hub) broadcastQueueCount() {
	h.BroadcastAll(map[string]interface{}{
		"type":  "queue_count_update",
		"count": h.queue.Len(),
	})
}

// notifyBroadcastStopped tells every spectator of a destroyed room that the
// broadcast ended.
func (h *Hub) notifyBroadcastStopped(room *Room) {
	msg := map[string]interface{}{
		"type":   "broadcast_stopped",
		"roomId": room.Token,
	}
	for spectatorID := range room.Spectators {
		h.SendToConn(spectatorID, msg)
	}
}
