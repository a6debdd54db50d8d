package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"time"

	"github.com/go-chi/chi/v5"
)

const shutdownGrace = 5 * time.Second

// Server hosts the HTTP side of the dev server: the websocket endpoint and
// the poll fallback under /_pywire/. The WebTransport endpoint lives on its
// own HTTP/3 listener, see WebTransportServer.
type Server struct {
	addr    string
	hub     *Hub
	poll    *PollHandler
	router  chi.Router
	httpSrv *http.Server
}

func New(addr string, hub *Hub) *Server {
	s := &Server{
		addr: addr,
		hub:  hub,
		poll: NewPollHandler(hub),
	}

	r := chi.NewRouter()
	r.Route("/_pywire", func(r chi.Router) {
		r.Handle("/ws", NewWebSocketHandler(hub))
		r.Route("/poll", s.poll.Routes)
	})
	s.router = r

	s.httpSrv = &http.Server{Addr: addr, Handler: r}
	return s
}

// Router exposes the mux so an application can mount its pages next to the
// transport endpoints.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start serves until the context is cancelled, then drains.
func (s *Server) Start(ctx context.Context) error {
	go s.poll.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", s.addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}
