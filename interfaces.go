package bunrui

import (
	"context"

	"github.com/ashita-ai/bunrui/internal/classifier"
)

// Classifier assigns a category to a domain. taxonomy lists the labels the
// answer should be chosen from. Returning an error (or exceeding the
// configured timeout) maps the domain to "Uncategorized" for that request
// without caching anything.
type Classifier interface {
	Classify(ctx context.Context, domain string, taxonomy []string) (string, error)
}

// classifierAdapter bridges the public Classifier to the internal interface.
type classifierAdapter struct {
	c Classifier
}

func (a *classifierAdapter) Classify(ctx context.Context, req classifier.Request) (string, error) {
	return a.c.Classify(ctx, req.Domain, req.Taxonomy)
}
