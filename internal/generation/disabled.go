package generation

import (
	"context"
	"errors"
)

// ErrDisabled is returned when content generation is not configured.
var ErrDisabled = errors.New("content generation is disabled")

// Disabled is the generator used when Bedrock is not configured. Every
// call fails permanently, so affected items terminalize instead of
// retrying forever.
type Disabled struct{}

func (Disabled) Generate(ctx context.Context, in Input) (*Content, error) {
	return nil, ErrDisabled
}
