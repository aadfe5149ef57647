// Package review scores assembled chapters with a text-generation oracle and
// applies the targeted edits the oracle proposes.
package review

import (
	"context"
	"errors"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"bookmill/config"
)

// Oracle abstracts the external text-generation model so the engine can be
// exercised without network access.
type Oracle interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// OpenAIOracle implements Oracle using the official openai-go SDK (chat
// completions).
type OpenAIOracle struct {
	Model string
	Opts  []option.RequestOption
}

var _ Oracle = (*OpenAIOracle)(nil)

func NewOpenAIOracle(cfg *config.OracleConfig) (*OpenAIOracle, error) {
	if cfg == nil {
		return nil, errors.New("oracle config is nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("oracle api key missing; provide review.oracle.api_key")
	}
	if cfg.Model == "" {
		return nil, errors.New("oracle model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(string(cfg.APIKey))}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIOracle{Model: cfg.Model, Opts: opts}, nil
}

func (o *OpenAIOracle) Complete(ctx context.Context, system, user string) (string, error) {
	client := openai.NewClient(o.Opts...)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("oracle returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
