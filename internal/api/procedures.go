package api

// ServiceName is the fully-qualified name of the planning service.
const ServiceName = "poker.v1.PlanningService"

// ServicePath is the URL prefix routed to the planning service.
const ServicePath = "/" + ServiceName + "/"

const (
	CreateSessionProcedure     = ServicePath + "CreateSession"
	JoinSessionProcedure       = ServicePath + "JoinSession"
	LeaveSessionProcedure      = ServicePath + "LeaveSession"
	AddStoryProcedure          = ServicePath + "AddStory"
	SelectStoryProcedure       = ServicePath + "SelectStory"
	ClearCurrentStoryProcedure = ServicePath + "ClearCurrentStory"
	CastVoteProcedure          = ServicePath + "CastVote"
	RevealRoundProcedure       = ServicePath + "RevealRound"
	FinalizeRoundProcedure     = ServicePath + "FinalizeRound"
	StartRevoteProcedure       = ServicePath + "StartRevote"
	EndSessionProcedure        = ServicePath + "EndSession"
	GetSessionProcedure        = ServicePath + "GetSession"
	GetVoteStatusProcedure     = ServicePath + "GetVoteStatus"
	GetVoteHistoryProcedure    = ServicePath + "GetVoteHistory"
	ExportSessionProcedure     = ServicePath + "ExportSession"
	StreamEventsProcedure      = ServicePath + "StreamEvents"
)
