package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhle/mailsync/internal/model"
)

// RuleLookup is the narrow slice of the metadata store the classifier
// needs. It is read-only; the classifier never mutates rules.
type RuleLookup interface {
	FindContactByEmail(ctx context.Context, addr string) (*model.ContactRule, error)
	FindContactByDomain(ctx context.Context, domain string) (*model.ContactRule, error)
	IsNoiseDomain(ctx context.Context, domain string) (bool, error)
}

// Result is the classifier output for a single message.
type Result struct {
	Category   model.Category
	Confidence float64
	EntityName string
	EntityPath string
}

// automatedSenderMarkers identify machine senders by address substring.
var automatedSenderMarkers = []string{
	"noreply", "no-reply", "mailer-daemon", "postmaster",
}

// noisePhrases identify bulk or marketing traffic in the preview or
// the sender address.
var noisePhrases = []string{
	"unsubscribe", "view in browser", "email preferences", "marketing",
	"newsletter", "promotional", "noreply", "no-reply", "donotreply",
}

// leadPhrases identify inbound sales interest in the subject or preview.
var leadPhrases = []string{
	"interest", "demo", "pricing", "learn more", "schedule a call",
	"would like to", "looking for a solution", "recommendation",
}

// personalDomains are consumer webmail providers; lead signals from
// them are not trusted.
var personalDomains = []string{
	"gmail.com", "yahoo.com", "hotmail.com", "outlook.com",
	"icloud.com", "live.com", "aol.com",
}

// personalDomainPrefixes match country variants (yahoo.co.uk and the
// like) by substring on the full domain.
var personalDomainPrefixes = []string{
	"yahoo.co", "hotmail.co", "gmail.co",
}

// Classify assigns a category to a message given its sender address,
// subject, and body preview. The cascade is evaluated in strict order
// and the first match wins. Same inputs always yield the same result;
// rule changes take effect only through an explicit rebuild.
func Classify(
	ctx context.Context,
	rules RuleLookup,
	fromEmail, subject, preview string,
) (Result, error) {
	from := strings.ToLower(strings.TrimSpace(fromEmail))
	subj := strings.ToLower(subject)
	prev := strings.ToLower(preview)
	domain := domainOf(from)

	// 1. Exact email rule.
	if from != "" {
		rule, err := rules.FindContactByEmail(ctx, from)
		if err != nil {
			return Result{}, fmt.Errorf("looking up email rule: %w", err)
		}
		if rule != nil {
			return Result{
				Category:   rule.EntityType,
				Confidence: 0.95,
				EntityName: rule.EntityName,
				EntityPath: rule.EntityPath,
			}, nil
		}
	}

	// 2. Domain rule.
	if domain != "" {
		rule, err := rules.FindContactByDomain(ctx, domain)
		if err != nil {
			return Result{}, fmt.Errorf("looking up domain rule: %w", err)
		}
		if rule != nil {
			return Result{
				Category:   rule.EntityType,
				Confidence: 0.85,
				EntityName: rule.EntityName,
				EntityPath: rule.EntityPath,
			}, nil
		}
	}

	// 3. Noise domain table.
	if domain != "" {
		noise, err := rules.IsNoiseDomain(ctx, domain)
		if err != nil {
			return Result{}, fmt.Errorf("looking up noise domain: %w", err)
		}
		if noise {
			return Result{Category: model.CategoryNoise, Confidence: 0.90}, nil
		}
	}

	// 4. Automated sender address. Bounce reports can arrive with an
	// empty from address; those are noise as well.
	if from == "" || containsAny(from, automatedSenderMarkers) {
		return Result{Category: model.CategoryNoise, Confidence: 0.90}, nil
	}

	// 5. Bulk-mail phrasing.
	if containsAny(prev, noisePhrases) || containsAny(from, noisePhrases) {
		return Result{Category: model.CategoryNoise, Confidence: 0.75}, nil
	}

	// 6. Lead signal from a business domain.
	if !isPersonalDomain(domain) &&
		(containsAny(subj, leadPhrases) || containsAny(prev, leadPhrases)) {
		return Result{Category: model.CategoryLead, Confidence: 0.70}, nil
	}

	// 7. Fallback.
	return Result{Category: model.CategoryUnknown, Confidence: 0.50}, nil
}

// domainOf extracts the domain part of an email address, lower-cased.
func domainOf(addr string) string {
	idx := strings.LastIndex(addr, "@")
	if idx < 0 || idx == len(addr)-1 {
		return ""
	}
	return addr[idx+1:]
}

// containsAny reports whether s contains any of the given substrings.
func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// isPersonalDomain reports whether the domain belongs to a consumer
// webmail provider.
func isPersonalDomain(domain string) bool {
	for _, d := range personalDomains {
		if domain == d {
			return true
		}
	}
	for _, prefix := range personalDomainPrefixes {
		if strings.Contains(domain, prefix) {
			return true
		}
	}
	return false
}
