package collaborators

import "context"

// PassthroughEnhancer returns its input unchanged. It stands in when no
// enhancement service is configured.
type PassthroughEnhancer struct{}

func (PassthroughEnhancer) Enhance(_ context.Context, title, description string) (string, string, error) {
	return title, description, nil
}
