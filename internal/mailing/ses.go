package mailing

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/pkg/logger"
)

const sesMaxBatch = 50

// SESSender sends emails via AWS SES using the SDK v2.
type SESSender struct {
	client    *sesv2.Client
	fromName  string
	fromEmail string
	log       *logger.Logger
}

// NewSESSender creates an SES sender with static credentials. Region
// defaults to us-east-1.
func NewSESSender(accessKey, secretKey, region, fromName, fromEmail string) (*SESSender, error) {
	if region == "" {
		region = "us-east-1"
	}
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("ses sender requires credentials")
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return &SESSender{
		client:    sesv2.NewFromConfig(cfg),
		fromName:  fromName,
		fromEmail: fromEmail,
		log:       logger.Component("ses"),
	}, nil
}

// Send delivers a single email through AWS SES. Provider rejections come
// back as transient errors so the dispatch loop can retry them.
func (s *SESSender) Send(ctx context.Context, msg *EmailMessage) (*SendResult, error) {
	fromName := msg.FromName
	if fromName == "" {
		fromName = s.fromName
	}
	fromEmail := msg.FromEmail
	if fromEmail == "" {
		fromEmail = s.fromEmail
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", fromName, fromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLContent), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("pipeline"), Value: aws.String(msg.Pipeline)},
			{Name: aws.String("member_id"), Value: aws.String(msg.MemberID)},
		},
	}

	if msg.TextContent != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.TextContent), Charset: aws.String("UTF-8")}
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.log.Warn("send failed", "email", msg.Email, "error", err)
		return &SendResult{Success: false, Error: domain.Transient("ses send", err)}, nil
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}

	s.log.Info("sent", "email", msg.Email, "message_id", messageID)

	return &SendResult{Success: true, MessageID: messageID, SentAt: time.Now()}, nil
}

// SendBatch sends multiple emails via SES. SES lacks true bulk send, so
// messages are dispatched individually in sequence.
func (s *SESSender) SendBatch(ctx context.Context, messages []EmailMessage) (*BatchSendResult, error) {
	if len(messages) == 0 {
		return &BatchSendResult{}, nil
	}
	if len(messages) > sesMaxBatch {
		return nil, fmt.Errorf("batch size %d exceeds max %d", len(messages), sesMaxBatch)
	}

	results := &BatchSendResult{Results: make([]SendResult, len(messages))}
	for i := range messages {
		result, err := s.Send(ctx, &messages[i])
		if err != nil {
			results.Results[i] = SendResult{Success: false, Error: err}
			results.Rejected++
			continue
		}
		results.Results[i] = *result
		if result.Success {
			results.Accepted++
		} else {
			results.Rejected++
		}
	}
	return results, nil
}
