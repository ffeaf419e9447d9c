// Package classifier wraps the third-party completion call that assigns a
// website domain to one category of the taxonomy.
//
// A Classifier performs a single-shot completion and returns the raw label
// text. Run wraps a call with a per-call deadline and folds every failure mode
// into an Outcome, so the resolver's degrade-to-Uncategorized policy is an
// explicit branch on Outcome.OK rather than a catch-all.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashita-ai/bunrui/internal/model"
)

// DefaultMaxTokens bounds the completion. The model is expected to answer with
// a bare label, never prose.
const DefaultMaxTokens = 10

// DefaultTimeout is the per-call deadline applied by Run when none is given.
const DefaultTimeout = 15 * time.Second

// systemPrompt primes the chat model for single-label output.
const systemPrompt = "You are a helpful classifier."

// instructionPrompt embeds the domain and the enumerated taxonomy.
const instructionPrompt = "Categorize the domain '%s' into one of the following categories: %s. Respond with just the category."

// Request is one classification call.
type Request struct {
	Domain    string
	Taxonomy  []string
	MaxTokens int
}

// NewRequest builds a request over the assignable taxonomy with the default
// token budget.
func NewRequest(domain string) Request {
	return Request{
		Domain:    domain,
		Taxonomy:  model.AssignableCategories,
		MaxTokens: DefaultMaxTokens,
	}
}

// Prompt renders the deterministic instruction for r.
func (r Request) Prompt() string {
	return fmt.Sprintf(instructionPrompt, r.Domain, strings.Join(r.Taxonomy, ", "))
}

func (r Request) maxTokens() int {
	if r.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return r.MaxTokens
}

// Classifier assigns a category label to a domain.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, req Request) (string, error)
}

// Outcome is the result of one classifier call: either a category or an error.
type Outcome struct {
	Category string
	Err      error
}

// OK reports whether the call produced a category.
func (o Outcome) OK() bool { return o.Err == nil }

// Run calls c under a deadline of timeout (DefaultTimeout if zero) and
// normalizes the answer: surrounding whitespace is trimmed, an empty answer
// becomes Uncategorized, and a case-insensitive taxonomy match is mapped to
// the canonical label. Every failure, including a deadline, is reported as an
// Outcome wrapping model.ErrClassifierUnavailable.
func Run(ctx context.Context, c Classifier, req Request, timeout time.Duration) Outcome {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	label, err := c.Classify(callCtx, req)
	if err != nil {
		if !errors.Is(err, model.ErrClassifierUnavailable) {
			err = fmt.Errorf("%w: %w", model.ErrClassifierUnavailable, err)
		}
		return Outcome{Err: err}
	}

	label = strings.TrimSpace(label)
	if label == "" {
		label = model.CategoryUncategorized
	}
	return Outcome{Category: model.CanonicalCategory(label)}
}

// NoopClassifier fails every call. Used when no provider is configured, so
// every miss degrades to Uncategorized and nothing is cached.
type NoopClassifier struct{}

// Classify always returns model.ErrClassifierUnavailable.
func (NoopClassifier) Classify(context.Context, Request) (string, error) {
	return "", fmt.Errorf("%w: no classifier provider configured", model.ErrClassifierUnavailable)
}

// Func adapts a plain function to the Classifier interface.
type Func func(ctx context.Context, req Request) (string, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
