package handler

import (
	"net/http"

	"fueldelivery/internal/model"
	"fueldelivery/internal/mw"
	"fueldelivery/internal/realtime"
)

func RealtimeHandler(hub *realtime.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.UserID(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		hub.Serve(w, r, userID, mw.Role(r.Context()) == model.RoleAdmin)
	}
}
