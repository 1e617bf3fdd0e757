package loopback

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/san-kum/simbridge/internal/transport"
)

// Spawner starts a loopback peer on an in-process pipe. Transfer selects
// whether the pipe moves buffer ownership or copies.
type Spawner struct {
	Transfer bool
	Logger   *log.Logger
}

func (s Spawner) Spawn(ctx context.Context) (transport.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	host, ep := transport.NewPipe(s.Transfer)
	peer := New(ep, s.Logger)
	go peer.Run(context.Background())
	return host, nil
}

// Handler serves one loopback peer per websocket connection.
func Handler(logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ep, err := transport.Accept(w, r, logger)
		if err != nil {
			logger.Error("upgrade failed", "err", err)
			return
		}
		defer ep.Close()
		logger.Info("peer connected", "remote", r.RemoteAddr)
		New(ep, logger).Run(r.Context())
		logger.Info("peer disconnected", "remote", r.RemoteAddr)
	})
}
