// Package a2a validates agent-to-agent protocol messages. Messages are
// decoded JSON values; the validator checks the envelope and the per-type
// payload shape and reports every problem it finds rather than stopping at
// the first.
package a2a

// ProtocolVersion is the single wire version this validator accepts. Payload
// changes are additive under a new version string.
const ProtocolVersion = "a2a/1"

// Message types.
const (
	TypeTaskRequest    = "task_request"
	TypeTaskResponse   = "task_response"
	TypeReviewRequest  = "review_request"
	TypeReviewResponse = "review_response"
	TypeStatusUpdate   = "status_update"
	TypeKnowledgeShare = "knowledge_share"
	TypeBroadcast      = "broadcast"
)

var messageTypes = []string{
	TypeTaskRequest,
	TypeTaskResponse,
	TypeReviewRequest,
	TypeReviewResponse,
	TypeStatusUpdate,
	TypeKnowledgeShare,
	TypeBroadcast,
}

var (
	priorities    = []string{"low", "normal", "high", "urgent"}
	taskTypes     = []string{"feature", "bugfix", "refactor", "review", "research", "chore"}
	complexities  = []string{"low", "medium", "high"}
	actions       = []string{"accepted", "declined", "completed", "failed", "blocked"}
	verdicts      = []string{"approved", "changes_requested"}
	nextActions   = []string{"merge", "revise", "reassign", "escalate"}
	severities    = []string{"must_fix", "should_fix", "suggestion"}
	statusUpdates = []string{"started", "in_progress", "blocked", "completed"}
	scopes        = []string{"org", "team", "sprint", "direct"}
	urgencies     = []string{"low", "normal", "high", "critical"}
)

// ValidationError describes one problem in a message. Path is a /-delimited
// pointer into the message, Rule is a stable identifier for programmatic
// filtering.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Rule    string `json:"rule"`
}

// Result is the outcome of validating one message. When Valid is true,
// Message is the original input value untouched.
type Result struct {
	Valid   bool              `json:"valid"`
	Message any               `json:"message,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}
