// Package generation defines the pluggable content-generation capability
// used by ai-generated pipelines, and its AWS Bedrock implementation.
package generation

import "context"

// Input carries everything the generator needs to produce personalized
// email content for one recipient.
type Input struct {
	Pipeline  string         `json:"pipeline"`
	Prompt    string         `json:"prompt"`
	FirstName string         `json:"first_name"`
	Topics    []string       `json:"topics"`
	Context   map[string]any `json:"context"`
}

// Content is a generated email body set. Subject and HTML are required;
// Text is optional.
type Content struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// ContentGenerator produces email content for a recipient context.
// Implementations must bound each call with the caller's context deadline.
type ContentGenerator interface {
	Generate(ctx context.Context, in Input) (*Content, error)
}
