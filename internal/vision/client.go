package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const figurePrompt = `This image is a chart, graph or figure from a business document.
Extract the information it conveys as concise markdown:
- For charts and graphs: report the title, axes, series and the underlying data values.
- For flowcharts and diagrams: describe the structure and each labeled step.
- Do not speculate beyond what is visible.
Reply with the extracted content only.`

// Reasoner turns a rendered figure into extracted text.
type Reasoner interface {
	AnalyzeFigure(ctx context.Context, png []byte) (string, error)
}

// OpenAIClient implements Reasoner over the OpenAI chat completions API.
type OpenAIClient struct {
	model  string
	client openai.Client
}

// NewOpenAIClient creates a vision client. baseURL is optional (tests).
func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		model:  model,
		client: openai.NewClient(opts...),
	}
}

// AnalyzeFigure sends one PNG render to the model.
func (c *OpenAIClient) AnalyzeFigure(ctx context.Context, png []byte) (string, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(figurePrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
		Temperature:         openai.Float(0),
		MaxCompletionTokens: openai.Int(1000),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("vision model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
