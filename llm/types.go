// Package llm implements the multi-provider LLM router: candidate
// selection, cache-integrated invocation, and the streaming SSE/NDJSON
// parser.
package llm

import (
	"github.com/localfirst/agentcore/cache"
)

// Role is a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is an assistant-emitted function invocation request.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Message is one entry of an ordered conversation.
type Message struct {
	Role             Role
	Content          string
	ToolCalls        []ToolCall
	ToolCallID       string
	MultimodalParts  []string // e.g. image references; opaque to the router
}

// ToCacheMessage projects a Message into cache.Message for
// fingerprinting. Tool calls are intentionally excluded from the key;
// they are model-deterministic from content.
func ToCacheMessage(m Message) cache.Message {
	return cache.Message{Role: string(m.Role), Content: m.Content}
}

// ToolChoiceKind tags the variant carried by ToolChoice.
type ToolChoiceKind string

const (
	ToolChoiceAuto     ToolChoiceKind = "auto"
	ToolChoiceRequired ToolChoiceKind = "required"
	ToolChoiceNone     ToolChoiceKind = "none"
	ToolChoiceSpecific ToolChoiceKind = "specific"
)

// ToolChoice constrains which tool (if any) the model must call.
type ToolChoice struct {
	Kind ToolChoiceKind
	Name string // only meaningful when Kind == ToolChoiceSpecific
}

// Tool describes a function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Request is the router's input shape.
type Request struct {
	Messages    []Message
	Model       string // may be empty; router fills it
	Temperature *float64
	MaxTokens   *int
	Stream      bool
	Tools       []Tool
	ToolChoice  *ToolChoice
}

// RequiresVision reports whether any message carries multimodal parts.
func (r Request) RequiresVision() bool {
	for _, m := range r.Messages {
		if len(m.MultimodalParts) > 0 {
			return true
		}
	}
	return false
}

// RequiresTools reports whether the request declares any tools.
func (r Request) RequiresTools() bool {
	return len(r.Tools) > 0
}

// Response is the router's non-streaming output shape.
type Response struct {
	Content          string
	Tokens           int
	PromptTokens     int
	CompletionTokens int
	Cost             float64
	Model            string
	ToolCalls        []ToolCall
	FinishReason     string
}

// StreamChunk is one element of a streaming response sequence.
type StreamChunk struct {
	Content      string
	Done         bool
	FinishReason string
	Model        string
	Usage        *TokenUsage
}

// TokenUsage mirrors a provider's usage block.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Outcome is what Router.Invoke returns: the response plus whether it
// came from cache.
type Outcome struct {
	Response  Response
	UsedCache bool
}

// Strategy selects among ready candidates when no explicit pin is set.
type Strategy string

const (
	StrategyAuto        Strategy = "auto"
	StrategyCheapest     Strategy = "cheapest"
	StrategyFastest      Strategy = "fastest"
	StrategyMostCapable  Strategy = "most_capable"
)

// Preferences narrows candidate selection.
type Preferences struct {
	Provider string // pin, optional
	Model    string // pin, optional
	Strategy Strategy
}

// Candidate is a (provider, model) pair from the router's ranking.
type Candidate struct {
	Provider string
	Model    string
}
