package ratelimit

// Action names a rate-limited operation
type Action string

const (
	ActionTransfer Action = "transfer"
	ActionSession  Action = "session"
	ActionUpload   Action = "upload"
)

// Policy is the allowance for one action
type Policy struct {
	Action        Action
	Limit         int64 // Requests allowed per window
	WindowSeconds int   // Time window in seconds
}

// uploadMultiplier scales the base limit for chunk traffic; a 100 MiB file is ~200 chunks
const uploadMultiplier = 10

// DefaultPolicies derives the per-action policies from one base user limit
func DefaultPolicies(userLimit int64, windowSeconds int) map[Action]Policy {
	if windowSeconds <= 0 {
		windowSeconds = 60
	}
	return map[Action]Policy{
		ActionTransfer: {Action: ActionTransfer, Limit: userLimit, WindowSeconds: windowSeconds},
		ActionSession:  {Action: ActionSession, Limit: userLimit, WindowSeconds: windowSeconds},
		ActionUpload:   {Action: ActionUpload, Limit: userLimit * uploadMultiplier, WindowSeconds: windowSeconds},
	}
}
