package eventpubsub

const (
	NewSignalEvent          = "NewSignalEvent"
	SignalAcceptedEvent     = "SignalAcceptedEvent"
	TerminalHeartbeatEvent  = "TerminalHeartbeatEvent"
	ExecutionConfirmedEvent = "ExecutionConfirmedEvent"
	PositionClosedEvent     = "PositionClosedEvent"
	Error                   = "DefaultError"
)
