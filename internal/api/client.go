package api

import (
	"context"

	"connectrpc.com/connect"
)

// Client calls the planning service.
type Client struct {
	createSession     *connect.Client[CreateSessionRequest, SessionResponse]
	joinSession       *connect.Client[SessionRequest, SessionResponse]
	leaveSession      *connect.Client[SessionRequest, SessionResponse]
	addStory          *connect.Client[AddStoryRequest, AddStoryResponse]
	selectStory       *connect.Client[StoryRequest, SessionResponse]
	clearCurrentStory *connect.Client[SessionRequest, SessionResponse]
	castVote          *connect.Client[CastVoteRequest, VoteStatusResponse]
	revealRound       *connect.Client[StoryRequest, RoundResponse]
	finalizeRound     *connect.Client[FinalizeRoundRequest, RoundResponse]
	startRevote       *connect.Client[StoryRequest, RoundResponse]
	endSession        *connect.Client[SessionRequest, SummaryResponse]
	getSession        *connect.Client[SessionRequest, SessionResponse]
	getVoteStatus     *connect.Client[StoryRequest, VoteStatusResponse]
	getVoteHistory    *connect.Client[StoryRequest, VoteHistoryResponse]
	exportSession     *connect.Client[SessionRequest, SummaryResponse]
	streamEvents      *connect.Client[SessionRequest, EventMessage]
}

// NewClient creates a client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = append([]connect.ClientOption{WithCodec()}, opts...)

	return &Client{
		createSession:     connect.NewClient[CreateSessionRequest, SessionResponse](httpClient, baseURL+CreateSessionProcedure, opts...),
		joinSession:       connect.NewClient[SessionRequest, SessionResponse](httpClient, baseURL+JoinSessionProcedure, opts...),
		leaveSession:      connect.NewClient[SessionRequest, SessionResponse](httpClient, baseURL+LeaveSessionProcedure, opts...),
		addStory:          connect.NewClient[AddStoryRequest, AddStoryResponse](httpClient, baseURL+AddStoryProcedure, opts...),
		selectStory:       connect.NewClient[StoryRequest, SessionResponse](httpClient, baseURL+SelectStoryProcedure, opts...),
		clearCurrentStory: connect.NewClient[SessionRequest, SessionResponse](httpClient, baseURL+ClearCurrentStoryProcedure, opts...),
		castVote:          connect.NewClient[CastVoteRequest, VoteStatusResponse](httpClient, baseURL+CastVoteProcedure, opts...),
		revealRound:       connect.NewClient[StoryRequest, RoundResponse](httpClient, baseURL+RevealRoundProcedure, opts...),
		finalizeRound:     connect.NewClient[FinalizeRoundRequest, RoundResponse](httpClient, baseURL+FinalizeRoundProcedure, opts...),
		startRevote:       connect.NewClient[StoryRequest, RoundResponse](httpClient, baseURL+StartRevoteProcedure, opts...),
		endSession:        connect.NewClient[SessionRequest, SummaryResponse](httpClient, baseURL+EndSessionProcedure, opts...),
		getSession:        connect.NewClient[SessionRequest, SessionResponse](httpClient, baseURL+GetSessionProcedure, opts...),
		getVoteStatus:     connect.NewClient[StoryRequest, VoteStatusResponse](httpClient, baseURL+GetVoteStatusProcedure, opts...),
		getVoteHistory:    connect.NewClient[StoryRequest, VoteHistoryResponse](httpClient, baseURL+GetVoteHistoryProcedure, opts...),
		exportSession:     connect.NewClient[SessionRequest, SummaryResponse](httpClient, baseURL+ExportSessionProcedure, opts...),
		streamEvents:      connect.NewClient[SessionRequest, EventMessage](httpClient, baseURL+StreamEventsProcedure, opts...),
	}
}

func unary[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) (*SessionResponse, error) {
	return unary(ctx, c.createSession, req)
}

func (c *Client) JoinSession(ctx context.Context, req *SessionRequest) (*SessionResponse, error) {
	return unary(ctx, c.joinSession, req)
}

func (c *Client) LeaveSession(ctx context.Context, req *SessionRequest) (*SessionResponse, error) {
	return unary(ctx, c.leaveSession, req)
}

func (c *Client) AddStory(ctx context.Context, req *AddStoryRequest) (*AddStoryResponse, error) {
	return unary(ctx, c.addStory, req)
}

func (c *Client) SelectStory(ctx context.Context, req *StoryRequest) (*SessionResponse, error) {
	return unary(ctx, c.selectStory, req)
}

func (c *Client) ClearCurrentStory(ctx context.Context, req *SessionRequest) (*SessionResponse, error) {
	return unary(ctx, c.clearCurrentStory, req)
}

func (c *Client) CastVote(ctx context.Context, req *CastVoteRequest) (*VoteStatusResponse, error) {
	return unary(ctx, c.castVote, req)
}

func (c *Client) RevealRound(ctx context.Context, req *StoryRequest) (*RoundResponse, error) {
	return unary(ctx, c.revealRound, req)
}

func (c *Client) FinalizeRound(ctx context.Context, req *FinalizeRoundRequest) (*RoundResponse, error) {
	return unary(ctx, c.finalizeRound, req)
}

func (c *Client) StartRevote(ctx context.Context, req *StoryRequest) (*RoundResponse, error) {
	return unary(ctx, c.startRevote, req)
}

func (c *Client) EndSession(ctx context.Context, req *SessionRequest) (*SummaryResponse, error) {
	return unary(ctx, c.endSession, req)
}

func (c *Client) GetSession(ctx context.Context, req *SessionRequest) (*SessionResponse, error) {
	return unary(ctx, c.getSession, req)
}

func (c *Client) GetVoteStatus(ctx context.Context, req *StoryRequest) (*VoteStatusResponse, error) {
	return unary(ctx, c.getVoteStatus, req)
}

func (c *Client) GetVoteHistory(ctx context.Context, req *StoryRequest) (*VoteHistoryResponse, error) {
	return unary(ctx, c.getVoteHistory, req)
}

func (c *Client) ExportSession(ctx context.Context, req *SessionRequest) (*SummaryResponse, error) {
	return unary(ctx, c.exportSession, req)
}

// StreamEvents opens the session's event stream. The caller must Close it.
func (c *Client) StreamEvents(ctx context.Context, req *SessionRequest) (*connect.ServerStreamForClient[EventMessage], error) {
	return c.streamEvents.CallServerStream(ctx, connect.NewRequest(req))
}
