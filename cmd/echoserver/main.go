// echoserver is a WebSocket endpoint for exercising wirecli and the
// client library: it echoes every frame back and answers "ping" text
// frames with "pong" so heartbeats round-trip.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/viaduct-io/wireline/internal/version"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Test tool: accept any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	addr := flag.String("addr", ":8765", "listen address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting echoserver",
		"version", version.Version,
		"addr", *addr,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		serveStream(w, r, logger)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:    *addr,
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	logger.Info("echoserver stopped")
}

// serveStream upgrades the request and echoes frames until the client
// disconnects.
func serveStream(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer ws.Close()

	logger.Info("client connected", "remote", r.RemoteAddr)

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("read error", "error", err, "remote", r.RemoteAddr)
			} else {
				logger.Info("client disconnected", "remote", r.RemoteAddr)
			}
			return
		}

		out := data
		if msgType == websocket.TextMessage && string(data) == "ping" {
			out = []byte("pong")
		}

		if err := ws.WriteMessage(msgType, out); err != nil {
			logger.Warn("write error", "error", err, "remote", r.RemoteAddr)
			return
		}
	}
}
