// Package anthropic adapts the Anthropic SDK to the narrow message API the
// extractors need.
package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// Client sends one message exchange to the model.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest describes one call. When Prefill is set it is sent as the
// start of the assistant turn and the model continues from it.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      []SystemBlock
	Messages    []Message
	Prefill     string
	Temperature *float64
}

// SystemBlock is one system prompt block, optionally cached.
type SystemBlock struct {
	Text         string
	CacheControl *CacheControl
}

// CacheControl marks a cache breakpoint. TTL is "5m" or "1h".
type CacheControl struct {
	TTL string
}

// Message is one conversational turn. Role is "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// MessageResponse is the model's reply.
type MessageResponse struct {
	ID         string
	Model      string
	Prefill    string
	Content    []ContentBlock
	StopReason string
	Usage      TokenUsage
}

// ContentBlock is one block of the reply.
type ContentBlock struct {
	Type string
	Text string
}

// Text returns the prefill followed by every text block of the reply.
func (r *MessageResponse) Text() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(r.Prefill)
	for _, c := range r.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// StatusCode returns the HTTP status of an API error, or 0 when err did not
// come from an API response.
func StatusCode(err error) int {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

type sdkClient struct {
	client sdk.Client
}

// NewClient returns a Client backed by the SDK. SDK retries are disabled;
// callers wrap calls in their own retry policy. Extra options such as
// option.WithBaseURL are applied last.
func NewClient(apiKey string, opts ...option.RequestOption) Client {
	base := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	return &sdkClient{client: sdk.NewClient(append(base, opts...)...)}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	msg, err := c.client.Messages.New(ctx, buildParams(req))
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}
	resp := fromSDKMessage(msg)
	resp.Prefill = req.Prefill
	return resp, nil
}

func buildParams(req MessageRequest) sdk.MessageNewParams {
	turns := make([]sdk.MessageParam, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		turns = append(turns, turn(m.Role, m.Content))
	}
	if req.Prefill != "" {
		turns = append(turns, turn("assistant", req.Prefill))
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  turns,
	}
	for _, b := range req.System {
		block := sdk.TextBlockParam{Text: b.Text}
		if b.CacheControl != nil {
			cc := sdk.NewCacheControlEphemeralParam()
			if b.CacheControl.TTL != "" {
				cc.TTL = sdk.CacheControlEphemeralTTL(b.CacheControl.TTL)
			}
			block.CacheControl = cc
		}
		params.System = append(params.System, block)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	return params
}

func turn(role, content string) sdk.MessageParam {
	if role == "assistant" {
		return sdk.NewAssistantMessage(sdk.NewTextBlock(content))
	}
	return sdk.NewUserMessage(sdk.NewTextBlock(content))
}

func fromSDKMessage(msg *sdk.Message) *MessageResponse {
	resp := &MessageResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Content:    make([]ContentBlock, 0, len(msg.Content)),
		Usage: TokenUsage{
			InputTokens:              msg.Usage.InputTokens,
			OutputTokens:             msg.Usage.OutputTokens,
			CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
		},
	}
	for _, b := range msg.Content {
		resp.Content = append(resp.Content, ContentBlock{Type: b.Type, Text: b.Text})
	}
	return resp
}
