/*
Package handler provides the HTTP handlers and routing setup for the read-only status API.

This file defines the status handler, which reports the current online users and rooms
from the shared registry.
*/
package handler

import (
	"net/http"

	"tcpchat/internal/pkg/resp"
	"tcpchat/internal/registry"
)

// StatusData is the payload returned by the status endpoint.
type StatusData struct {
	// RegisteredUsers is the total number of registered users, online or not.
	RegisteredUsers int `json:"registeredUsers"`

	// OnlineUsers lists the nicknames of users with a live connection.
	OnlineUsers []string `json:"onlineUsers"`

	// Rooms lists every room and its current member nicknames.
	Rooms []registry.RoomStatus `json:"rooms"`
}

// HandleStatus creates an HTTP HandlerFunc that snapshots the registry state.
func HandleStatus(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		online := reg.OnlineUsers()
		nicknames := make([]string, 0, len(online))
		for _, u := range online {
			nicknames = append(nicknames, u.Nickname)
		}

		data := StatusData{
			RegisteredUsers: reg.UserCount(),
			OnlineUsers:     nicknames,
			Rooms:           reg.Rooms(),
		}

		resp.RespondSuccess(w, r, data)
	}
}
