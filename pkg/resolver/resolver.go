package resolver

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	errs "github.com/nitrodev1/telegram-gift-parser/pkg/errors"
	"github.com/nitrodev1/telegram-gift-parser/pkg/logger"
	"github.com/nitrodev1/telegram-gift-parser/pkg/provider"
)

// StructuredSource looks up the structured record bound to a gift ID
type StructuredSource interface {
	ResolveStructured(ctx context.Context, id int64) (*provider.Message, error)
}

// PageSource fetches a public page
type PageSource interface {
	FetchPage(ctx context.Context, url string) (int, []byte, error)
}

// Options configures a Resolver
type Options struct {
	PageBaseURL string
	Collection  string
	OwnerLabels []string
	// Rules overrides the page extraction rules; nil uses DefaultRules
	Rules []Rule
}

// Resolver maps a gift ID to its owner: structured lookup first, page
// scrape second. It is safe for concurrent use.
type Resolver struct {
	structured   StructuredSource
	pages        PageSource
	pageBaseURL  string
	collection   string
	labelPattern *regexp.Regexp
	rules        []Rule
	logger       logger.Logger
}

// New creates a Resolver
func New(structured StructuredSource, pages PageSource, opts Options, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if opts.PageBaseURL == "" {
		opts.PageBaseURL = provider.DefaultPageBaseURL
	}
	if opts.Collection == "" {
		opts.Collection = provider.DefaultCollection
	}
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules(opts.OwnerLabels)
	}

	return &Resolver{
		structured:   structured,
		pages:        pages,
		pageBaseURL:  opts.PageBaseURL,
		collection:   opts.Collection,
		labelPattern: messageLabelPattern(opts.OwnerLabels),
		rules:        rules,
		logger:       log.WithField("component", "resolver"),
	}
}

// PageURL returns the canonical page URL for id
func (r *Resolver) PageURL(id int64) string {
	return provider.CanonicalPageURL(r.pageBaseURL, r.collection, id)
}

// Resolve determines the owner of id. It never fails: faults degrade to a
// non-resolved status. A rate limit signal from either path stops work on
// the ID immediately.
func (r *Resolver) Resolve(ctx context.Context, id int64) Result {
	url := r.PageURL(id)
	log := r.logger.WithField("gift_id", id)

	if r.structured != nil {
		owner, err := r.resolveStructured(ctx, id)
		if wait, limited := errs.RetryAfter(err); limited {
			return Result{ID: id, Status: StatusRateLimited, RetryAfter: wait, Err: err}
		}
		if err != nil {
			log.WithError(err).Debug("structured lookup failed, falling back to page")
		}
		if owner != nil {
			return Result{
				ID:        id,
				Status:    StatusResolved,
				Owner:     owner.Display(),
				Kind:      owner.Kind,
				SourceURL: url,
				Source:    SourceStructured,
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{ID: id, Status: StatusTransientError, Err: err}
	}
	if r.pages == nil {
		return Result{ID: id, Status: StatusNotFound}
	}

	status, body, err := r.pages.FetchPage(ctx, url)
	if err != nil {
		if wait, limited := errs.RetryAfter(err); limited {
			return Result{ID: id, Status: StatusRateLimited, RetryAfter: wait, Err: err}
		}
		log.WithError(err).Warn("page fetch failed")
		return Result{ID: id, Status: StatusTransientError, Err: err}
	}
	if status != http.StatusOK {
		log.WithField("status", status).Warn("page returned non-success status")
		return Result{ID: id, Status: StatusNotFound}
	}

	if owner, rule, ok := r.extract(string(body)); ok {
		log.WithField("rule", rule).Debug("owner extracted from page")
		return Result{
			ID:        id,
			Status:    StatusResolved,
			Owner:     owner,
			Kind:      KindDisplayName,
			SourceURL: url,
			Source:    SourcePage,
		}
	}

	return Result{ID: id, Status: StatusNotFound}
}

// resolveStructured returns nil without error when the record carries no owner
func (r *Resolver) resolveStructured(ctx context.Context, id int64) (*OwnerInfo, error) {
	msg, err := r.structured.ResolveStructured(ctx, id)
	if err != nil || msg == nil {
		return nil, err
	}
	return r.ownerFromMessage(msg), nil
}

func (r *Resolver) ownerFromMessage(msg *provider.Message) *OwnerInfo {
	if s := msg.Sender; s != nil {
		if username := provider.SanitizeUsername(s.Username); username != "" {
			return &OwnerInfo{Kind: KindUsername, Value: username}
		}
		if first := strings.TrimSpace(s.FirstName); first != "" {
			name := first
			if last := strings.TrimSpace(s.LastName); last != "" {
				name += " " + last
			}
			return &OwnerInfo{Kind: KindDisplayName, Value: name}
		}
	}

	if msg.Text != "" {
		if m := r.labelPattern.FindStringSubmatch(msg.Text); m != nil {
			if value := strings.TrimSpace(m[1]); value != "" {
				return &OwnerInfo{Kind: KindDisplayName, Value: value}
			}
		}
	}

	return nil
}

// extract applies the rules in order; the first match wins even when its
// value trims to nothing
func (r *Resolver) extract(body string) (string, string, bool) {
	for _, rule := range r.rules {
		if value, ok := rule.Match(body); ok {
			return value, rule.Name, value != ""
		}
	}
	return "", "", false
}
