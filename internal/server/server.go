// ABOUTME: Server orchestrator wiring board, presence, hub, relay, and persistence
// ABOUTME: Owns the commit pipeline and the HTTP/websocket listener lifecycle

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/2389/corkboard/internal/auth"
	"github.com/2389/corkboard/internal/board"
	"github.com/2389/corkboard/internal/config"
	"github.com/2389/corkboard/internal/hub"
	"github.com/2389/corkboard/internal/presence"
	"github.com/2389/corkboard/internal/protocol"
	"github.com/2389/corkboard/internal/relay"
	"github.com/2389/corkboard/internal/store"
)

// publishBufferSize bounds the queue of envelopes waiting for the relay.
// A single publisher goroutine drains it so relayed events keep their
// per-source order.
const publishBufferSize = 256

// Server coordinates the corkboard components: the authoritative board,
// the presence tracker, the local hub, the optional cross-process relay,
// and the snapshot store. One Server owns one process's board state.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	board    *board.Board
	store    *store.SnapshotStore
	presence *presence.Tracker
	hub      *hub.Hub
	relay    *relay.Client
	verifier auth.TokenVerifier

	httpServer *http.Server

	// processID identifies this server instance on the relay so it can
	// skip the echo of its own publishes.
	processID string

	// commitMu serializes mutate-then-broadcast so events leave the hub
	// in exactly the order the mutations were applied. Held for local
	// commits, presence transitions, and relayed applies alike.
	commitMu sync.Mutex

	saveCh    chan struct{}
	publishCh chan *protocol.Envelope
}

// New creates a Server from configuration. The board snapshot is loaded
// here; a corrupt or missing snapshot yields an empty board, never an
// error.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	snapStore := store.NewSnapshotStore(cfg.Snapshot.Path, logger)
	snap := snapStore.Load()
	b := board.FromSnapshot(snap.Items, snap.Order)
	logger.Info("board loaded", "items", b.Len(), "snapshot", cfg.Snapshot.Path)

	s := &Server{
		cfg:       cfg,
		logger:    logger.With("component", "server"),
		board:     b,
		store:     snapStore,
		presence:  presence.NewTracker(),
		hub:       hub.New(logger),
		processID: uuid.New().String(),
		saveCh:    make(chan struct{}, 1),
		publishCh: make(chan *protocol.Envelope, publishBufferSize),
	}

	if cfg.Auth.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return nil, fmt.Errorf("creating token verifier: %w", err)
		}
		s.verifier = verifier
		logger.Info("identity token verification enabled")
	} else {
		logger.Warn("auth disabled - no jwt_secret configured, clients self-report identity")
	}

	if cfg.Relay.Enabled {
		rc, err := relay.NewClient(&redis.Options{
			Addr:     cfg.Relay.Addr,
			Password: cfg.Relay.Password,
			DB:       cfg.Relay.DB,
		}, cfg.Relay.Namespace)
		if err != nil {
			return nil, fmt.Errorf("creating relay client: %w", err)
		}
		s.relay = rc
		logger.Info("relay enabled", "addr", cfg.Relay.Addr, "channel", rc.Channel())
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)
	mux.HandleFunc("/api/board", s.handleBoard)
	mux.HandleFunc("/api/items", s.handleItems)
	mux.HandleFunc("/api/items/", s.handleItemByID)
	mux.HandleFunc("/api/order", s.handleOrder)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Handler exposes the HTTP handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the server and blocks until the context is canceled or a
// listener fails. On return all background loops have stopped and a
// final snapshot save has been attempted.
func (s *Server) Run(ctx context.Context) error {
	loopCtx, cancelLoops := context.WithCancel(ctx)
	defer cancelLoops()

	if s.relay != nil {
		sub, err := s.relay.Subscribe(loopCtx)
		if err != nil {
			return fmt.Errorf("subscribing to relay: %w", err)
		}
		go s.relayLoop(sub)
		go s.publishLoop(loopCtx)
	}
	go s.saveLoop(loopCtx)

	ln, err := net.Listen("tcp", s.cfg.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	cancelLoops()
	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the run context is
// already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops the HTTP server, writes a final snapshot, and releases
// the hub and relay.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	if err := s.saveNow(); err != nil {
		errs = append(errs, fmt.Errorf("final snapshot save: %w", err))
	}

	s.hub.Close()
	if s.relay != nil {
		if err := s.relay.Close(); err != nil {
			errs = append(errs, fmt.Errorf("relay close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// broadcast delivers an event to local connections and queues it for the
// relay. senderID is only consulted for ScopeAllExceptSender.
func (s *Server) broadcast(ev *protocol.Event, scope protocol.Scope, senderID string) {
	s.hub.Deliver(ev, scope, senderID)

	if s.relay == nil {
		return
	}
	env := &protocol.Envelope{
		Origin: s.processID,
		Sender: senderID,
		Scope:  scope,
		Event:  ev,
	}
	select {
	case s.publishCh <- env:
	default:
		// Relay backlog full. Peers converge on the next event they do
		// receive; local clients already got this one.
		s.logger.Warn("relay publish queue full, dropping event", "event_type", ev.Type)
	}
}

// publishLoop drains the publish queue one envelope at a time, keeping
// relayed events in emit order.
func (s *Server) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-s.publishCh:
			if err := s.relay.Publish(ctx, env); err != nil && ctx.Err() == nil {
				s.logger.Error("relay publish failed", "event_type", env.Event.Type, "error", err)
			}
		}
	}
}

// relayLoop applies envelopes published by peer processes to this
// process's own state and re-emits them to its local connections, so a
// peer's board and presence view converge with the origin's. Envelopes
// this process originated were already applied and delivered locally and
// are skipped.
func (s *Server) relayLoop(sub *relay.Subscription) {
	defer sub.Close()
	events := sub.Events()
	suberrs := sub.Errors()
	for events != nil || suberrs != nil {
		select {
		case env, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if env.Origin == s.processID || env.Event == nil {
				continue
			}
			s.commitMu.Lock()
			s.applyRemote(env.Event)
			s.hub.Deliver(env.Event, env.Scope, env.Sender)
			s.commitMu.Unlock()
		case err, ok := <-suberrs:
			if !ok {
				suberrs = nil
				continue
			}
			s.logger.Error("relay subscription error", "error", err)
		}
	}
	s.logger.Info("relay subscription closed")
}

// applyRemote folds a peer's event into the local board and presence
// tracker. Commit events also reschedule the snapshot so every process
// persists the converged state; live-typing carries no state to apply.
// Caller holds commitMu.
func (s *Server) applyRemote(ev *protocol.Event) {
	switch ev.Type {
	case protocol.TypeItemCreated, protocol.TypeItemUpdated:
		if ev.Item == nil {
			return
		}
		s.board.Put(ev.Item)
		s.scheduleSave()

	case protocol.TypeItemDeleted:
		if ev.Item == nil {
			return
		}
		s.board.Remove(ev.Item.ID)
		s.scheduleSave()

	case protocol.TypeOrderChanged:
		s.board.SetOrder(ev.Order)
		s.scheduleSave()

	case protocol.TypeEditingStarted:
		if ev.User == nil {
			return
		}
		s.presence.BeginEdit(ev.ItemID, ev.ConnID, *ev.User)

	case protocol.TypeEditingStopped:
		s.presence.EndEdit(ev.ItemID, ev.ConnID)
	}
}

// scheduleSave requests an asynchronous snapshot write. Multiple requests
// coalesce; the client response never waits on the disk.
func (s *Server) scheduleSave() {
	select {
	case s.saveCh <- struct{}{}:
	default:
	}
}

// saveLoop writes a snapshot whenever one is scheduled and once more on
// shutdown.
func (s *Server) saveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.saveCh:
			if err := s.saveNow(); err != nil {
				s.logger.Error("snapshot save failed", "error", err)
			}
		}
	}
}

// saveNow snapshots the board and writes it to disk synchronously.
func (s *Server) saveNow() error {
	items, order := s.board.Snapshot()
	return s.store.Save(&store.Snapshot{Items: items, Order: order})
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK when the server can do useful work. With the
// relay enabled that includes Redis being reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.relay != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.relay.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "relay unreachable: %v", err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d connections)", s.hub.Len())
}
