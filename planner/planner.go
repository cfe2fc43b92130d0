// Package planner turns a free-text task description into a Step slice
// by prompting the LLM router and parsing its JSON response, falling
// back to a fixed two-step plan when the model is unreachable or its
// response doesn't parse.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/localfirst/agentcore/core"
	"github.com/localfirst/agentcore/llm"
)

const promptTemplate = `You are an autonomous desktop automation engineer.
Break down the following task into concrete, executable steps.

Task: %s

For each step, specify:
1. Action type (Screenshot, Click, Type, Navigate, WaitForElement, ExecuteCommand, ReadFile, WriteFile, SearchText, Scroll, PressKey)
2. Target (coordinates, UIA element, image match, or text match), where applicable
3. Description of what the step does
4. Expected result (optional)
5. Timeout in seconds (default 30)
6. Whether to retry on failure (default true)

Return a JSON array of steps. Each step has:
- id: unique step identifier
- action: object with a "type" field and type-specific parameters
- description: human-readable description
- expected_result: optional expected outcome
- timeout: timeout in seconds
- retry_on_failure: boolean

Return ONLY the JSON array, no other text.`

// Planner turns descriptions into Step plans via an llm.Router, with a
// deterministic fallback so planning is total.
type Planner struct {
	router *llm.Router
	log    core.Logger
}

// New constructs a Planner backed by router.
func New(router *llm.Router, log core.Logger) *Planner {
	if log == nil {
		log = core.NoOpLogger{}
	}
	return &Planner{router: router, log: log}
}

// Plan breaks description into steps. It never returns an error: model
// failures, empty candidate lists, and unparseable responses all fall
// back to the two-step Screenshot/SearchText plan.
func (p *Planner) Plan(ctx context.Context, description string) []core.Step {
	raw, err := p.invokeModel(ctx, description)
	if err != nil {
		p.log.Info("planner falling back to deterministic plan", map[string]interface{}{"reason": err.Error()})
		return fallbackPlan(description)
	}

	steps, err := ParsePlan(raw)
	if err != nil {
		p.log.Info("planner response failed to parse, falling back", map[string]interface{}{"reason": err.Error()})
		return fallbackPlan(description)
	}
	return steps
}

func (p *Planner) invokeModel(ctx context.Context, description string) (string, error) {
	if p.router == nil {
		return "", core.NewFrameworkError("planner.invokeModel", "planner", fmt.Errorf("no router configured"))
	}

	temp := 0.7
	maxTokens := 4000
	req := llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf(promptTemplate, description)},
		},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	}

	candidates := p.router.Candidates(req, llm.Preferences{Strategy: llm.StrategyAuto})
	if len(candidates) == 0 {
		return "", core.NewFrameworkError("planner.invokeModel", "planner", fmt.Errorf("no llm candidates available"))
	}

	outcome, err := p.router.InvokeCandidate(ctx, candidates[0], req)
	if err != nil {
		return "", err
	}
	return outcome.Response.Content, nil
}

// fallbackPlan produces the deterministic two-step plan used whenever
// planning otherwise fails.
func fallbackPlan(description string) []core.Step {
	return []core.Step{
		{
			ID:             "step_1",
			Description:    "Take screenshot to understand current state for: " + description,
			Action:         core.Action{Kind: core.ActionScreenshot},
			Timeout:        5 * time.Second,
			RetryOnFailure: false,
			ExpectedResult: "Screenshot captured",
		},
		{
			ID:             "step_2",
			Description:    "Search for relevant UI elements related to: " + description,
			Action:         core.Action{Kind: core.ActionSearchText, Query: description},
			Timeout:        10 * time.Second,
			RetryOnFailure: true,
			ExpectedResult: "Elements found",
		},
	}
}

// ParsePlan extracts the JSON array from an LLM response (tolerating
// leading/trailing prose or markdown fences) and decodes it into
// Steps. Any malformed entry is surfaced as a *core.PlanParseError
// rather than silently coerced.
func ParsePlan(response string) ([]core.Step, error) {
	jsonStr, err := extractJSONArray(response)
	if err != nil {
		return nil, err
	}

	var raw []rawStep
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, &core.PlanParseError{Message: "plan response is not a valid JSON array: " + err.Error()}
	}

	steps := make([]core.Step, 0, len(raw))
	for _, r := range raw {
		step, err := r.toStep()
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func extractJSONArray(response string) (string, error) {
	trimmed := strings.TrimSpace(response)
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		return trimmed, nil
	}
	start := strings.Index(response, "[")
	if start == -1 {
		return "", &core.PlanParseError{Message: "no JSON array found in plan response"}
	}
	end := strings.LastIndex(response, "]")
	if end == -1 || end < start {
		return "", &core.PlanParseError{Message: "JSON array in plan response has no closing bracket"}
	}
	return response[start : end+1], nil
}

type rawAction struct {
	Type      string   `json:"type"`
	Target    *rawTarget `json:"target"`
	Text      string   `json:"text"`
	URL       string   `json:"url"`
	Timeout   *int64   `json:"timeout"`
	Command   string   `json:"command"`
	Args      []string `json:"args"`
	Path      string   `json:"path"`
	Content   string   `json:"content"`
	Query     string   `json:"query"`
	Direction string   `json:"direction"`
	Amount    *int     `json:"amount"`
	Keys      []string `json:"keys"`
}

type rawTarget struct {
	Type      string  `json:"type"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	ElementID string  `json:"element_id"`
	ImagePath string  `json:"image_path"`
	Threshold *float64 `json:"threshold"`
	Text      string  `json:"text"`
	Fuzzy     bool    `json:"fuzzy"`
}

type rawStep struct {
	ID              string     `json:"id"`
	Action          *rawAction `json:"action"`
	Description     string     `json:"description"`
	ExpectedResult  string     `json:"expected_result"`
	Timeout         *int64     `json:"timeout"`
	RetryOnFailure  *bool      `json:"retry_on_failure"`
}

func (r rawStep) toStep() (core.Step, error) {
	if r.ID == "" {
		return core.Step{}, &core.PlanParseError{Message: "step missing id"}
	}
	if r.Description == "" {
		return core.Step{}, &core.PlanParseError{Message: "step " + r.ID + " missing description"}
	}
	if r.Action == nil {
		return core.Step{}, &core.PlanParseError{Message: "step " + r.ID + " missing action"}
	}

	action, err := r.Action.toAction()
	if err != nil {
		return core.Step{}, err
	}

	timeoutSecs := int64(30)
	if r.Timeout != nil {
		timeoutSecs = *r.Timeout
	}
	retry := true
	if r.RetryOnFailure != nil {
		retry = *r.RetryOnFailure
	}

	return core.Step{
		ID:             r.ID,
		Description:    r.Description,
		Action:         action,
		Timeout:        time.Duration(timeoutSecs) * time.Second,
		RetryOnFailure: retry,
		ExpectedResult: r.ExpectedResult,
	}, nil
}

func (a rawAction) toAction() (core.Action, error) {
	switch a.Type {
	case "Screenshot":
		return core.Action{Kind: core.ActionScreenshot}, nil

	case "Click":
		target, err := a.Target.toClickTarget()
		if err != nil {
			return core.Action{}, err
		}
		return core.Action{Kind: core.ActionClick, Target: target}, nil

	case "Type":
		if a.Text == "" {
			return core.Action{}, &core.PlanParseError{Message: "Type action missing text"}
		}
		target, err := a.Target.toClickTarget()
		if err != nil {
			return core.Action{}, err
		}
		return core.Action{Kind: core.ActionType, Target: target, Text: a.Text}, nil

	case "Navigate":
		if a.URL == "" {
			return core.Action{}, &core.PlanParseError{Message: "Navigate action missing url"}
		}
		return core.Action{Kind: core.ActionNavigate, URL: a.URL}, nil

	case "WaitForElement":
		target, err := a.Target.toClickTarget()
		if err != nil {
			return core.Action{}, err
		}
		timeoutSecs := int64(10)
		if a.Timeout != nil {
			timeoutSecs = *a.Timeout
		}
		return core.Action{Kind: core.ActionWaitForElement, Target: target, Timeout: time.Duration(timeoutSecs) * time.Second}, nil

	case "ExecuteCommand":
		if a.Command == "" {
			return core.Action{}, &core.PlanParseError{Message: "ExecuteCommand action missing command"}
		}
		return core.Action{Kind: core.ActionExecuteCommand, Command: a.Command, Args: a.Args}, nil

	case "ReadFile":
		if a.Path == "" {
			return core.Action{}, &core.PlanParseError{Message: "ReadFile action missing path"}
		}
		return core.Action{Kind: core.ActionReadFile, Path: a.Path}, nil

	case "WriteFile":
		if a.Path == "" {
			return core.Action{}, &core.PlanParseError{Message: "WriteFile action missing path"}
		}
		return core.Action{Kind: core.ActionWriteFile, Path: a.Path, Content: a.Content}, nil

	case "SearchText":
		if a.Query == "" {
			return core.Action{}, &core.PlanParseError{Message: "SearchText action missing query"}
		}
		return core.Action{Kind: core.ActionSearchText, Query: a.Query}, nil

	case "Scroll":
		direction := a.Direction
		switch direction {
		case "up", "down", "left", "right":
		default:
			direction = "down"
		}
		amount := 3
		if a.Amount != nil {
			amount = *a.Amount
		}
		return core.Action{Kind: core.ActionScroll, Direction: direction, Amount: amount}, nil

	case "PressKey":
		return core.Action{Kind: core.ActionPressKey, Keys: a.Keys}, nil

	case "":
		return core.Action{}, &core.PlanParseError{Message: "action missing type"}

	default:
		return core.Action{}, &core.PlanParseError{Message: "unknown action type: " + a.Type}
	}
}

func (t *rawTarget) toClickTarget() (core.ClickTarget, error) {
	if t == nil {
		return core.ClickTarget{}, &core.PlanParseError{Message: "action missing target"}
	}
	switch t.Type {
	case "Coordinates":
		return core.ClickTarget{Kind: core.TargetCoordinates, X: t.X, Y: t.Y}, nil
	case "UIAElement":
		if t.ElementID == "" {
			return core.ClickTarget{}, &core.PlanParseError{Message: "UIAElement target missing element_id"}
		}
		return core.ClickTarget{Kind: core.TargetUIAElement, ElementID: t.ElementID}, nil
	case "ImageMatch":
		if t.ImagePath == "" {
			return core.ClickTarget{}, &core.PlanParseError{Message: "ImageMatch target missing image_path"}
		}
		threshold := 0.8
		if t.Threshold != nil {
			threshold = *t.Threshold
		}
		return core.ClickTarget{Kind: core.TargetImageMatch, ImagePath: t.ImagePath, Threshold: threshold}, nil
	case "TextMatch":
		if t.Text == "" {
			return core.ClickTarget{}, &core.PlanParseError{Message: "TextMatch target missing text"}
		}
		return core.ClickTarget{Kind: core.TargetTextMatch, Text: t.Text, Fuzzy: t.Fuzzy}, nil
	default:
		return core.ClickTarget{}, &core.PlanParseError{Message: "unknown target type: " + t.Type}
	}
}
