package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/pkg/logger"
)

// callTimeout bounds a single model invocation regardless of the caller's
// deadline. On timeout the call is treated as a transient failure.
const callTimeout = 60 * time.Second

// BedrockGenerator produces email content via Claude on AWS Bedrock.
// All data stays within AWS - no external API calls.
type BedrockGenerator struct {
	client  *bedrockruntime.Client
	modelID string
	log     *logger.Logger
}

type bedrockMessage struct {
	Role    string               `json:"role"`
	Content []bedrockContentPart `json:"content"`
}

type bedrockContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// NewBedrockGenerator creates a Bedrock-backed content generator.
func NewBedrockGenerator(ctx context.Context, modelID, region string) (*BedrockGenerator, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	if modelID == "" {
		modelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	g := &BedrockGenerator{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
		log:     logger.Component("bedrock_generator"),
	}
	g.log.Info("initialized", "model", modelID, "region", region)
	return g, nil
}

const systemPrompt = `You are an email copywriter for a membership service.
Write one marketing email for the recipient described by the user.
Respond with ONLY a JSON object: {"subject": "...", "html": "...", "text": "..."}.
The html field is a complete simple HTML body. Keep the subject under 60
characters. You may use liquid placeholders like {{ first_name }}.`

// Generate invokes the model and parses a subject/html/text JSON object
// from its response. Transport and throttling errors are transient; an
// unparseable or empty completion is permanent.
func (g *BedrockGenerator) Generate(ctx context.Context, in Input) (*Content, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	req := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        2048,
		System:           systemPrompt,
		Temperature:      0.7,
		Messages: []bedrockMessage{
			{
				Role:    "user",
				Content: []bedrockContentPart{{Type: "text", Text: g.buildUserMessage(in)}},
			},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling bedrock request: %w", err)
	}

	out, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, domain.Transient("bedrock invoke", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("parsing bedrock response: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	content, err := parseContentJSON(text.String())
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (g *BedrockGenerator) buildUserMessage(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Campaign: %s\n", in.Pipeline)
	if in.Prompt != "" {
		fmt.Fprintf(&b, "Brief: %s\n", in.Prompt)
	}
	if in.FirstName != "" {
		fmt.Fprintf(&b, "Recipient first name: %s\n", in.FirstName)
	}
	if len(in.Topics) > 0 {
		fmt.Fprintf(&b, "Recipient interests: %s\n", strings.Join(in.Topics, ", "))
	}
	if len(in.Context) > 0 {
		ctxJSON, _ := json.Marshal(in.Context)
		fmt.Fprintf(&b, "Additional context: %s\n", ctxJSON)
	}
	return b.String()
}

// parseContentJSON extracts the content object from a model completion,
// tolerating prose or fencing around the JSON.
func parseContentJSON(s string) (*Content, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model response")
	}

	var c Content
	if err := json.Unmarshal([]byte(s[start:end+1]), &c); err != nil {
		return nil, fmt.Errorf("parsing generated content: %w", err)
	}
	if strings.TrimSpace(c.Subject) == "" || strings.TrimSpace(c.HTML) == "" {
		return nil, fmt.Errorf("generated content missing subject or html body")
	}
	return &c, nil
}
