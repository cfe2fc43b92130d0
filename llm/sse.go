package llm

import (
	"encoding/json"
	"strings"

	"github.com/localfirst/agentcore/core"
)

// ProviderFormat tags which wire grammar a StreamParser decodes.
type ProviderFormat string

const (
	FormatOpenAI    ProviderFormat = "openai"
	FormatAnthropic ProviderFormat = "anthropic"
	FormatGoogle    ProviderFormat = "google"
	FormatOllama    ProviderFormat = "ollama"
)

// maxStreamBuffer caps accumulation at 1 MiB; overflow without a
// frame delimiter surfaces ProtocolError.
const maxStreamBuffer = 1 << 20

// StreamParser accumulates raw bytes from a provider's HTTP body and
// extracts complete frames at the frame delimiter (blank line for SSE
// formats, single newline for Ollama's NDJSON). It is built to accept
// input split at arbitrary byte boundaries: feeding the same stream in
// one call or in many small calls yields an identical chunk sequence.
type StreamParser struct {
	format ProviderFormat
	buf    []byte
	done   bool
}

// NewStreamParser constructs a parser for the given provider format.
func NewStreamParser(format ProviderFormat) *StreamParser {
	return &StreamParser{format: format}
}

func (p *StreamParser) delimiter() string {
	if p.format == FormatOllama {
		return "\n"
	}
	return "\n\n"
}

// Feed appends data to the internal buffer and returns every chunk
// that can be fully decoded from complete frames so far.
func (p *StreamParser) Feed(data []byte) ([]StreamChunk, error) {
	if p.done {
		return nil, nil
	}

	p.buf = append(p.buf, data...)
	delim := p.delimiter()

	var chunks []StreamChunk
	for {
		idx := strings.Index(string(p.buf), delim)
		if idx < 0 {
			break
		}
		frame := p.buf[:idx]
		p.buf = p.buf[idx+len(delim):]

		chunk, ok, err := p.decodeFrame(string(frame))
		if err != nil {
			return chunks, err
		}
		if ok {
			chunks = append(chunks, chunk)
			if chunk.Done {
				p.done = true
				p.buf = nil
				return chunks, nil
			}
		}
	}

	if len(p.buf) > maxStreamBuffer {
		return chunks, &core.ProtocolError{Message: "stream buffer exceeded 1MiB without a frame delimiter"}
	}

	return chunks, nil
}

// decodeFrame turns one delimiter-bounded frame into a StreamChunk.
// ok=false means the frame carried no content worth surfacing (e.g. a
// keep-alive comment).
func (p *StreamParser) decodeFrame(frame string) (StreamChunk, bool, error) {
	switch p.format {
	case FormatOpenAI:
		return decodeOpenAIFrame(frame)
	case FormatAnthropic:
		return decodeAnthropicFrame(frame)
	case FormatGoogle:
		return decodeGoogleFrame(frame)
	case FormatOllama:
		return decodeOllamaFrame(frame)
	default:
		return StreamChunk{}, false, &core.ProtocolError{Message: "unknown stream format: " + string(p.format)}
	}
}

func dataLine(frame string) (string, bool) {
	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, "data:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data:")), true
		}
	}
	return "", false
}

func decodeOpenAIFrame(frame string) (StreamChunk, bool, error) {
	data, ok := dataLine(frame)
	if !ok {
		return StreamChunk{}, false, nil
	}
	if data == "[DONE]" {
		return StreamChunk{Done: true}, true, nil
	}

	var payload struct {
		Model   string `json:"model"`
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return StreamChunk{}, false, &core.ProtocolError{Message: "malformed openai stream frame: " + err.Error()}
	}
	chunk := StreamChunk{Model: payload.Model}
	if len(payload.Choices) > 0 {
		chunk.Content = payload.Choices[0].Delta.Content
		if payload.Choices[0].FinishReason != nil {
			chunk.FinishReason = *payload.Choices[0].FinishReason
		}
	}
	return chunk, true, nil
}

func decodeAnthropicFrame(frame string) (StreamChunk, bool, error) {
	var eventName, data string
	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	if eventName == "" {
		return StreamChunk{}, false, nil
	}

	switch eventName {
	case "content_block_delta":
		var payload struct {
			Delta struct {
				Text string `json:"text"`
			} `json:"delta"`
		}
		if data != "" {
			if err := json.Unmarshal([]byte(data), &payload); err != nil {
				return StreamChunk{}, false, &core.ProtocolError{Message: "malformed anthropic delta: " + err.Error()}
			}
		}
		return StreamChunk{Content: payload.Delta.Text}, true, nil
	case "message_delta":
		var payload struct {
			Delta struct {
				StopReason string `json:"stop_reason"`
			} `json:"delta"`
		}
		if data != "" {
			_ = json.Unmarshal([]byte(data), &payload)
		}
		return StreamChunk{FinishReason: payload.Delta.StopReason}, true, nil
	case "message_stop":
		return StreamChunk{Done: true}, true, nil
	default:
		return StreamChunk{}, false, nil
	}
}

func decodeGoogleFrame(frame string) (StreamChunk, bool, error) {
	data, ok := dataLine(frame)
	if !ok {
		return StreamChunk{}, false, nil
	}
	var payload struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return StreamChunk{}, false, &core.ProtocolError{Message: "malformed google stream frame: " + err.Error()}
	}
	var chunk StreamChunk
	if len(payload.Candidates) > 0 {
		c := payload.Candidates[0]
		for _, part := range c.Content.Parts {
			chunk.Content += part.Text
		}
		chunk.FinishReason = c.FinishReason
		if c.FinishReason != "" {
			chunk.Done = true
		}
	}
	return chunk, true, nil
}

func decodeOllamaFrame(frame string) (StreamChunk, bool, error) {
	frame = strings.TrimSpace(frame)
	if frame == "" {
		return StreamChunk{}, false, nil
	}
	var payload struct {
		Model   string `json:"model"`
		Done    bool   `json:"done"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal([]byte(frame), &payload); err != nil {
		return StreamChunk{}, false, &core.ProtocolError{Message: "malformed ollama ndjson line: " + err.Error()}
	}
	content := payload.Message.Content
	if content == "" {
		content = payload.Response
	}
	return StreamChunk{Content: content, Model: payload.Model, Done: payload.Done}, true, nil
}
