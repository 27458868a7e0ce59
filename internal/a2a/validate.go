package a2a

import (
	"fmt"
	"strings"
)

// Rule identifiers reported on validation errors.
const (
	RuleRootObject       = "root_object"
	RuleProtocol         = "protocol_version"
	RuleRequired         = "required"
	RuleType             = "invalid_type"
	RuleEnum             = "invalid_enum"
	RuleEmpty            = "empty_value"
	RuleReasonRequired   = "reason_required"
	RuleConcernsRequired = "unresolved_concerns_required"
)

type collector struct {
	errs []ValidationError
}

func (c *collector) add(path, msg, rule string) {
	c.errs = append(c.errs, ValidationError{Path: path, Message: msg, Rule: rule})
}

// Validate checks an arbitrary decoded JSON value against the a2a envelope
// and per-type payload schemas. Validation does not short-circuit: every
// distinct problem yields an error. A valid message is returned as-is,
// without copying or normalization.
func Validate(input any) Result {
	msg, ok := input.(map[string]any)
	if !ok {
		return Result{Errors: []ValidationError{{
			Path:    "/",
			Message: "message must be a JSON object",
			Rule:    RuleRootObject,
		}}}
	}

	var c collector

	if proto, ok := requireString(&c, msg, "protocol"); ok && proto != ProtocolVersion {
		c.add("/protocol", fmt.Sprintf("unsupported protocol version %q, want %q", proto, ProtocolVersion), RuleProtocol)
	}
	requireNonEmptyString(&c, msg, "messageId")
	requireString(&c, msg, "timestamp")
	validateParty(&c, msg, "from", true)
	validateParty(&c, msg, "to", false)

	msgType, typeOK := requireEnum(&c, "/", msg, "type", messageTypes)
	requireEnum(&c, "/", msg, "priority", priorities)

	if raw, present := msg["correlationId"]; present && raw != nil {
		if _, ok := raw.(string); !ok {
			c.add("/correlationId", "correlationId must be a string or null", RuleType)
		}
	}

	payload, payloadOK := requireObject(&c, msg, "payload")
	if typeOK && payloadOK {
		validatePayload(&c, msgType, payload)
	}

	if len(c.errs) > 0 {
		return Result{Errors: c.errs}
	}
	return Result{Valid: true, Message: input}
}

func validateParty(c *collector, msg map[string]any, field string, allowSessionKey bool) {
	obj, ok := requireObject(c, msg, field)
	if !ok {
		return
	}
	base := "/" + field
	requireNonEmptyStringAt(c, base, obj, "agentId")
	requireNonEmptyStringAt(c, base, obj, "role")
	if allowSessionKey {
		optionalStringAt(c, base, obj, "sessionKey")
	}
}

func validatePayload(c *collector, msgType string, payload map[string]any) {
	switch msgType {
	case TypeTaskRequest:
		validateTaskRequest(c, payload)
	case TypeTaskResponse:
		validateTaskResponse(c, payload)
	case TypeReviewRequest:
		validateReviewRequest(c, payload)
	case TypeReviewResponse:
		validateReviewResponse(c, payload)
	case TypeStatusUpdate:
		validateStatusUpdate(c, payload)
	case TypeKnowledgeShare:
		validateKnowledgeShare(c, payload)
	case TypeBroadcast:
		validateBroadcast(c, payload)
	}
}

func validateTaskRequest(c *collector, p map[string]any) {
	requireStringAt(c, "/payload", p, "taskId")
	requireNonEmptyStringAt(c, "/payload", p, "title")
	requireStringAt(c, "/payload", p, "description")
	requireEnum(c, "/payload", p, "taskType", taskTypes)
	requireEnum(c, "/payload", p, "complexity", complexities)
	optionalStringAt(c, "/payload", p, "deadline")
	if ctx, ok := optionalObjectAt(c, "/payload", p, "context"); ok {
		optionalStringAt(c, "/payload/context", ctx, "branch")
		optionalStringAt(c, "/payload/context", ctx, "worktree")
		optionalStringArrayAt(c, "/payload/context", ctx, "relatedFiles")
	}
	optionalStringArrayAt(c, "/payload", p, "acceptanceCriteria")
}

func validateTaskResponse(c *collector, p map[string]any) {
	requireStringAt(c, "/payload", p, "taskId")
	action, ok := requireEnum(c, "/payload", p, "action", actions)
	optionalStringAt(c, "/payload", p, "reason")
	if res, has := optionalObjectAt(c, "/payload", p, "result"); has {
		optionalStringAt(c, "/payload/result", res, "branch")
		optionalStringAt(c, "/payload/result", res, "worktree")
		optionalStringAt(c, "/payload/result", res, "summary")
		optionalStringArrayAt(c, "/payload/result", res, "filesChanged")
	}

	// Semantic rule: a declined, failed or blocked response must explain why.
	if ok && (action == "declined" || action == "failed" || action == "blocked") {
		reason, _ := p["reason"].(string)
		if strings.TrimSpace(reason) == "" {
			c.add("/payload/reason", fmt.Sprintf("reason is required when action is %q", action), RuleReasonRequired)
		}
	}
}

func validateReviewRequest(c *collector, p map[string]any) {
	requireStringAt(c, "/payload", p, "taskId")
	requireStringAt(c, "/payload", p, "title")
	requireStringAt(c, "/payload", p, "branch")
	requireStringAt(c, "/payload", p, "worktree")
	if arr, ok := requireArrayAt(c, "/payload", p, "filesForReview"); ok {
		if len(arr) == 0 {
			c.add("/payload/filesForReview", "filesForReview must not be empty", RuleEmpty)
		}
		validateStringElems(c, "/payload/filesForReview", arr)
	}
	requireStringAt(c, "/payload", p, "authorAgent")
	requireStringAt(c, "/payload", p, "authorTier")
	requireStringAt(c, "/payload", p, "reviewLevel")
	optionalStringAt(c, "/payload", p, "priorReviewNotes")
}

func validateReviewResponse(c *collector, p map[string]any) {
	requireStringAt(c, "/payload", p, "taskId")
	verdict, ok := requireEnum(c, "/payload", p, "verdict", verdicts)
	requireStringAt(c, "/payload", p, "branch")
	requireStringAt(c, "/payload", p, "worktree")
	requireEnum(c, "/payload", p, "nextAction", nextActions)
	if arr, has := optionalArrayAt(c, "/payload", p, "unresolvedConcerns"); has {
		for i, elem := range arr {
			obj, isObj := elem.(map[string]any)
			base := fmt.Sprintf("/payload/unresolvedConcerns/%d", i)
			if !isObj {
				c.add(base, "concern must be an object", RuleType)
				continue
			}
			requireStringAt(c, base, obj, "file")
			requireEnum(c, base, obj, "severity", severities)
			requireStringAt(c, base, obj, "description")
		}
	}
	if arr, has := optionalArrayAt(c, "/payload", p, "reviewerFixes"); has {
		for i, elem := range arr {
			obj, isObj := elem.(map[string]any)
			base := fmt.Sprintf("/payload/reviewerFixes/%d", i)
			if !isObj {
				c.add(base, "fix must be an object", RuleType)
				continue
			}
			requireStringAt(c, base, obj, "file")
			requireStringAt(c, base, obj, "description")
		}
	}
	if arr, has := optionalArrayAt(c, "/payload", p, "nextTasks"); has {
		for i, elem := range arr {
			obj, isObj := elem.(map[string]any)
			base := fmt.Sprintf("/payload/nextTasks/%d", i)
			if !isObj {
				c.add(base, "task must be an object", RuleType)
				continue
			}
			requireStringAt(c, base, obj, "title")
			requireStringAt(c, base, obj, "assignTo")
			optionalStringArrayAt(c, base, obj, "dependencies")
		}
	}

	// Semantic rule: changes_requested must carry at least one concern.
	if ok && verdict == "changes_requested" {
		arr, isArr := p["unresolvedConcerns"].([]any)
		if !isArr || len(arr) == 0 {
			c.add("/payload/unresolvedConcerns", "unresolvedConcerns must be a non-empty array when verdict is \"changes_requested\"", RuleConcernsRequired)
		}
	}
}

func validateStatusUpdate(c *collector, p map[string]any) {
	requireEnum(c, "/payload", p, "status", statusUpdates)
	requireNonEmptyStringAt(c, "/payload", p, "progress")
	optionalStringAt(c, "/payload", p, "taskId")
	optionalStringAt(c, "/payload", p, "blockedBy")
	optionalStringAt(c, "/payload", p, "estimatedCompletion")
}

func validateKnowledgeShare(c *collector, p map[string]any) {
	requireStringAt(c, "/payload", p, "topic")
	requireStringAt(c, "/payload", p, "discovery")
	requireStringAt(c, "/payload", p, "source")
	if raw, present := p["actionable"]; !present {
		c.add("/payload/actionable", "actionable is required", RuleRequired)
	} else if _, isBool := raw.(bool); !isBool {
		c.add("/payload/actionable", "actionable must be a boolean", RuleType)
	}
	optionalStringAt(c, "/payload", p, "suggestedAction")
	optionalStringArrayAt(c, "/payload", p, "relevantTo")
}

func validateBroadcast(c *collector, p map[string]any) {
	requireEnum(c, "/payload", p, "scope", scopes)
	requireStringAt(c, "/payload", p, "topic")
	requireStringAt(c, "/payload", p, "message")
	requireEnum(c, "/payload", p, "urgency", urgencies)
}

// --- field helpers ---

func requireString(c *collector, obj map[string]any, field string) (string, bool) {
	return requireStringAt(c, "", obj, field)
}

func requireStringAt(c *collector, base string, obj map[string]any, field string) (string, bool) {
	path := base + "/" + field
	raw, present := obj[field]
	if !present {
		c.add(path, field+" is required", RuleRequired)
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		c.add(path, field+" must be a string", RuleType)
		return "", false
	}
	return s, true
}

func requireNonEmptyString(c *collector, obj map[string]any, field string) {
	requireNonEmptyStringAt(c, "", obj, field)
}

func requireNonEmptyStringAt(c *collector, base string, obj map[string]any, field string) {
	s, ok := requireStringAt(c, base, obj, field)
	if ok && s == "" {
		c.add(base+"/"+field, field+" must not be empty", RuleEmpty)
	}
}

func optionalStringAt(c *collector, base string, obj map[string]any, field string) {
	raw, present := obj[field]
	if !present || raw == nil {
		return
	}
	if _, ok := raw.(string); !ok {
		c.add(base+"/"+field, field+" must be a string", RuleType)
	}
}

func requireObject(c *collector, obj map[string]any, field string) (map[string]any, bool) {
	path := "/" + field
	raw, present := obj[field]
	if !present || raw == nil {
		c.add(path, field+" is required", RuleRequired)
		return nil, false
	}
	m, ok := raw.(map[string]any)
	if !ok {
		c.add(path, field+" must be an object", RuleType)
		return nil, false
	}
	return m, true
}

func optionalObjectAt(c *collector, base string, obj map[string]any, field string) (map[string]any, bool) {
	raw, present := obj[field]
	if !present || raw == nil {
		return nil, false
	}
	m, ok := raw.(map[string]any)
	if !ok {
		c.add(base+"/"+field, field+" must be an object", RuleType)
		return nil, false
	}
	return m, true
}

func requireArrayAt(c *collector, base string, obj map[string]any, field string) ([]any, bool) {
	path := base + "/" + field
	raw, present := obj[field]
	if !present {
		c.add(path, field+" is required", RuleRequired)
		return nil, false
	}
	arr, ok := raw.([]any)
	if !ok {
		c.add(path, field+" must be an array", RuleType)
		return nil, false
	}
	return arr, true
}

func optionalArrayAt(c *collector, base string, obj map[string]any, field string) ([]any, bool) {
	raw, present := obj[field]
	if !present || raw == nil {
		return nil, false
	}
	arr, ok := raw.([]any)
	if !ok {
		c.add(base+"/"+field, field+" must be an array", RuleType)
		return nil, false
	}
	return arr, true
}

func optionalStringArrayAt(c *collector, base string, obj map[string]any, field string) {
	arr, ok := optionalArrayAt(c, base, obj, field)
	if !ok {
		return
	}
	validateStringElems(c, base+"/"+field, arr)
}

func validateStringElems(c *collector, base string, arr []any) {
	for i, elem := range arr {
		if _, ok := elem.(string); !ok {
			c.add(fmt.Sprintf("%s/%d", base, i), "element must be a string", RuleType)
		}
	}
}

// requireEnum with an explicit base path; the two-argument form used for
// envelope fields passes base "/".
func requireEnum(c *collector, base string, obj map[string]any, field string, allowed []string) (string, bool) {
	path := base + "/" + field
	if base == "/" {
		path = "/" + field
	}
	raw, present := obj[field]
	if !present {
		c.add(path, field+" is required", RuleRequired)
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		c.add(path, field+" must be a string", RuleType)
		return "", false
	}
	for _, v := range allowed {
		if s == v {
			return s, true
		}
	}
	c.add(path, fmt.Sprintf("invalid %s value %q (allowed: %s)", field, s, strings.Join(allowed, ", ")), RuleEnum)
	return "", false
}
