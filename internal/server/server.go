package server

import (
	"net/http"

	"connectrpc.com/connect"
	"github.com/wolfeidau/planpoker/internal/api"
	"github.com/wolfeidau/planpoker/internal/engine"
	"github.com/wolfeidau/planpoker/internal/models"
)

// Server wraps the planning service and exposes it over HTTP.
type Server struct {
	planning *PlanningService
}

// NewServer creates a new server backed by the engine.
func NewServer(eng *engine.Engine) *Server {
	return &Server{planning: NewPlanningService(eng)}
}

// Handler returns the HTTP handler for the server. authMiddleware wraps the
// service routes only; /health stays public.
func (s *Server) Handler(authMiddleware func(http.Handler) http.Handler, interceptors ...connect.Interceptor) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle(api.ServicePath, authMiddleware(s.ServiceHandler(interceptors...)))

	return mux
}

// ServiceHandler routes every planning service procedure.
func (s *Server) ServiceHandler(interceptors ...connect.Interceptor) http.Handler {
	p := s.planning
	opts := []connect.HandlerOption{
		api.WithCodec(),
		connect.WithInterceptors(interceptors...),
	}

	mux := http.NewServeMux()
	mux.Handle(api.CreateSessionProcedure, connect.NewUnaryHandler(api.CreateSessionProcedure, p.CreateSession, opts...))
	mux.Handle(api.JoinSessionProcedure, connect.NewUnaryHandler(api.JoinSessionProcedure, p.JoinSession, opts...))
	mux.Handle(api.LeaveSessionProcedure, connect.NewUnaryHandler(api.LeaveSessionProcedure, p.LeaveSession, opts...))
	mux.Handle(api.AddStoryProcedure, connect.NewUnaryHandler(api.AddStoryProcedure, p.AddStory, opts...))
	mux.Handle(api.SelectStoryProcedure, connect.NewUnaryHandler(api.SelectStoryProcedure, p.SelectStory, opts...))
	mux.Handle(api.ClearCurrentStoryProcedure, connect.NewUnaryHandler(api.ClearCurrentStoryProcedure, p.ClearCurrentStory, opts...))
	mux.Handle(api.CastVoteProcedure, connect.NewUnaryHandler(api.CastVoteProcedure, p.CastVote, opts...))
	mux.Handle(api.RevealRoundProcedure, connect.NewUnaryHandler(api.RevealRoundProcedure, p.RevealRound, opts...))
	mux.Handle(api.FinalizeRoundProcedure, connect.NewUnaryHandler(api.FinalizeRoundProcedure, p.FinalizeRound, opts...))
	mux.Handle(api.StartRevoteProcedure, connect.NewUnaryHandler(api.StartRevoteProcedure, p.StartRevote, opts...))
	mux.Handle(api.EndSessionProcedure, connect.NewUnaryHandler(api.EndSessionProcedure, p.EndSession, opts...))
	mux.Handle(api.GetSessionProcedure, connect.NewUnaryHandler(api.GetSessionProcedure, p.GetSession, opts...))
	mux.Handle(api.GetVoteStatusProcedure, connect.NewUnaryHandler(api.GetVoteStatusProcedure, p.GetVoteStatus, opts...))
	mux.Handle(api.GetVoteHistoryProcedure, connect.NewUnaryHandler(api.GetVoteHistoryProcedure, p.GetVoteHistory, opts...))
	mux.Handle(api.ExportSessionProcedure, connect.NewUnaryHandler(api.ExportSessionProcedure, p.ExportSession, opts...))
	mux.Handle(api.StreamEventsProcedure, connect.NewServerStreamHandler[api.SessionRequest, models.Event](api.StreamEventsProcedure, p.StreamEvents, opts...))

	return mux
}
