package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keiu-jiyu/VideoChat/internal/room"
	"github.com/keiu-jiyu/VideoChat/internal/signaling"
)

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024, // 64 KB
	WriteBufferSize: 64 * 1024, // 64 KB

	// Room access is not authenticated; any origin may connect.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewMux wires the relay's HTTP surface: the signaling websocket, a health
// check, the room listing and Prometheus metrics.
func NewMux(relay *signaling.Relay, gatherer prometheus.Gatherer, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthCheckHandler)
	mux.HandleFunc("GET /ws", ServeWs(relay, logger))
	mux.HandleFunc("GET /rooms", roomsHandler(relay.Rooms()))
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Health Check endpoint
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling relay is healthy."))
}

func roomsHandler(rooms *room.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rooms.Rooms()); err != nil {
			slog.Debug("write rooms listing", "err", err)
		}
	}
}

// ServeWs returns an http.HandlerFunc that upgrades the request to a
// websocket and hands the connection to the relay under a fresh participant
// ID.
func ServeWs(relay *signaling.Relay, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "err", err)
			return
		}

		c := signaling.NewConn(uuid.NewString(), relay, conn, logger)
		c.Start()
	}
}
