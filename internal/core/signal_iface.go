package core

// Frame is one encoded signaling message.
type Frame []byte

// SignalConnection is the control channel to a browser. Sends never block:
// a full queue fails with an error and the caller decides what to drop.
// The adapter that opened it closes it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
