package eventmodels

import "context"

// Bus event payloads. Each carries the context of the producing request so
// consumers can continue its trace.

type NewSignalEvent struct {
	Ctx    context.Context
	Signal Signal
}

type SignalAcceptedEvent struct {
	Ctx      context.Context
	Signal   Signal
	Decision AdmissionDecision
}

type TerminalHeartbeatEvent struct {
	Ctx       context.Context
	Heartbeat HeartbeatDTO
}

type ExecutionConfirmedEvent struct {
	Ctx        context.Context
	TerminalID string
	Result     ExecutionResultDTO
}

type PositionClosedEvent struct {
	Ctx        context.Context
	TerminalID string
	Close      CloseEventDTO
}
