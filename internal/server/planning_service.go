package server

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/wolfeidau/planpoker/internal/api"
	"github.com/wolfeidau/planpoker/internal/auth"
	"github.com/wolfeidau/planpoker/internal/broadcast"
	"github.com/wolfeidau/planpoker/internal/engine"
	"github.com/wolfeidau/planpoker/internal/models"
)

// PlanningService implements the planning service procedures on top of the
// engine. The caller identity is set on the context by the auth middleware.
type PlanningService struct {
	engine *engine.Engine
}

// NewPlanningService creates the service.
func NewPlanningService(eng *engine.Engine) *PlanningService {
	return &PlanningService{engine: eng}
}

func callerFrom(ctx context.Context) (models.Identity, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return models.Identity{}, connect.NewError(connect.CodeUnauthenticated, errors.New("not authenticated"))
	}
	return id, nil
}

func storyInput(in api.StoryInput) engine.StoryInput {
	return engine.StoryInput{
		Title:       in.Title,
		Description: in.Description,
		ExternalKey: in.ExternalKey,
		ExternalURL: in.ExternalURL,
		NotReady:    in.NotReady,
	}
}

func (s *PlanningService) CreateSession(ctx context.Context, req *connect.Request[api.CreateSessionRequest]) (*connect.Response[api.SessionResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	in := engine.CreateSessionInput{
		Title:      req.Msg.Title,
		VotingMode: req.Msg.VotingMode,
	}
	for _, st := range req.Msg.Stories {
		in.Stories = append(in.Stories, storyInput(st))
	}

	session, err := s.engine.CreateSession(ctx, caller, in)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&api.SessionResponse{Session: session}), nil
}

func (s *PlanningService) JoinSession(ctx context.Context, req *connect.Request[api.SessionRequest]) (*connect.Response[api.SessionResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	session, err := s.engine.JoinSession(ctx, req.Msg.SessionID, caller)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&api.SessionResponse{Session: session}), nil
}

func (s *PlanningService) LeaveSession(ctx context.Context, req *connect.Request[api.SessionRequest]) (*connect.Response[api.SessionResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	session, err := s.engine.LeaveSession(ctx, req.Msg.SessionID, caller.UserID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&api.SessionResponse{Session: session}), nil
}

func (s *PlanningService) AddStory(ctx context.Context, req *connect.Request[api.AddStoryRequest]) (*connect.Response[api.AddStoryResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	story, err := s.engine.AddStory(ctx, req.Msg.SessionID, caller.UserID, storyInput(req.Msg.Story))
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&api.AddStoryResponse{Story: story}), nil
}

func (s *PlanningService) SelectStory(ctx context.Context, req *connect.Request[api.StoryRequest]) (*connect.Response[api.SessionResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	session, err := s.engine.SelectStory(ctx, req.Msg.SessionID, caller.UserID, req.Msg.StoryID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&api.SessionResponse{Session: session}), nil
}

func (s *PlanningService) ClearCurrentStory(ctx context.Context, req *connect.Request[api.SessionRequest]) (*connect.Response[api.SessionResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	session, err := s.engine.ClearCurrentStory(ctx, req.Msg.SessionID, caller.UserID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&api.SessionResponse{Session: session}), nil
}

func (s *PlanningService) CastVote(ctx context.Context, req *connect.Request[api.CastVoteRequest]) (*connect.Response[api.VoteStatusResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	status, err := s.engine.CastVote(ctx, engine.CastVoteInput{
		SessionID: req.Msg.SessionID,
		StoryID:   req.Msg.StoryID,
		UserID:    caller.UserID,
		Value:     req.Msg.Value,
		Comment:   req.Msg.Comment,
	})
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&api.VoteStatusResponse{Status: status}), nil
}

func (s *PlanningService) RevealRound(ctx context.Context, req *connect.Request[api.StoryRequest]) (*connect.Response[api.RoundResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	round, err := s.engine.RevealRound(ctx, req.Msg.SessionID, req.Msg.StoryID, caller.UserID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&api.RoundResponse{Round: round}), nil
}

func (s *PlanningService) FinalizeRound(ctx context.Context, req *connect.Request[api.FinalizeRoundRequest]) (*connect.Response[api.RoundResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	round, err := s.engine.FinalizeRound(ctx, req.Msg.SessionID, req.Msg.StoryID, caller.UserID, req.Msg.FinalEstimate)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&api.RoundResponse{Round: round}), nil
}

func (s *PlanningService) StartRevote(ctx context.Context, req *connect.Request[api.StoryRequest]) (*connect.Response[api.RoundResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	round, err := s.engine.StartRevote(ctx, req.Msg.SessionID, req.Msg.StoryID, caller.UserID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&api.RoundResponse{Round: round}), nil
}

func (s *PlanningService) EndSession(ctx context.Context, req *connect.Request[api.SessionRequest]) (*connect.Response[api.SummaryResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	summary, err := s.engine.EndSession(ctx, req.Msg.SessionID, caller.UserID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&api.SummaryResponse{Summary: summary}), nil
}

func (s *PlanningService) GetSession(ctx context.Context, req *connect.Request[api.SessionRequest]) (*connect.Response[api.SessionResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	session, err := s.engine.GetSession(ctx, req.Msg.SessionID, caller.UserID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&api.SessionResponse{Session: session}), nil
}

func (s *PlanningService) GetVoteStatus(ctx context.Context, req *connect.Request[api.StoryRequest]) (*connect.Response[api.VoteStatusResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	status, err := s.engine.GetVoteStatus(ctx, req.Msg.SessionID, req.Msg.StoryID, caller.UserID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&api.VoteStatusResponse{Status: status}), nil
}

func (s *PlanningService) GetVoteHistory(ctx context.Context, req *connect.Request[api.StoryRequest]) (*connect.Response[api.VoteHistoryResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	rounds, err := s.engine.GetVoteHistory(ctx, req.Msg.SessionID, req.Msg.StoryID, caller.UserID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&api.VoteHistoryResponse{Rounds: rounds}), nil
}

func (s *PlanningService) ExportSession(ctx context.Context, req *connect.Request[api.SessionRequest]) (*connect.Response[api.SummaryResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	summary, err := s.engine.ExportSession(ctx, req.Msg.SessionID, caller.UserID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&api.SummaryResponse{Summary: summary}), nil
}

// StreamEvents registers a channel for the caller, which also joins them to
// the session, and forwards session events until the client goes away or the
// session ends. The first message is a snapshot of the session.
func (s *PlanningService) StreamEvents(ctx context.Context, req *connect.Request[api.SessionRequest], stream *connect.ServerStream[models.Event]) error {
	caller, err := callerFrom(ctx)
	if err != nil {
		return err
	}

	sub, session, err := s.engine.Connect(ctx, req.Msg.SessionID, caller)
	if err != nil {
		return toConnectError(ctx, err)
	}
	defer s.engine.Disconnect(context.WithoutCancel(ctx), sub)

	err = stream.Send(&models.Event{
		Type:      models.EventSessionSnapshot,
		SessionID: session.SessionID,
		Timestamp: session.CreatedAt,
		Payload:   models.SessionSnapshotPayload{Session: session},
	})
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return closeError(sub.Reason())
			}
			if err := stream.Send(&ev); err != nil {
				return err
			}
		}
	}
}

func closeError(reason broadcast.CloseReason) error {
	switch reason {
	case broadcast.CloseReasonOverflow:
		return connect.NewError(connect.CodeResourceExhausted, errors.New("event stream fell behind, reconnect and refetch session state"))
	case broadcast.CloseReasonShutdown:
		return connect.NewError(connect.CodeUnavailable, errors.New("server shutting down"))
	default:
		return nil
	}
}
