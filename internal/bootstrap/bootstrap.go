package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/nhle/mailsync/internal/model"
)

// RuleWriter is the slice of the metadata store the bootstrapper needs.
type RuleWriter interface {
	UpsertContact(ctx context.Context, rule model.ContactRule) error
}

// clientsSubdir is where the knowledge base keeps client folders,
// grouped by industry.
const clientsSubdir = "3_Clients/by_industry"

// noiseDomains are mass-marketing senders and MTAs seeded on every run.
var noiseDomains = []string{
	"linkedin.com", "facebookmail.com", "twitter.com", "x.com",
	"medium.com", "substack.com", "quora.com", "pinterest.com",
	"mailchimp.com", "sendgrid.net", "amazonses.com", "mailgun.org",
	"hubspotemail.net", "marketo.com",
}

// vendorDomains are known suppliers seeded on every run.
var vendorDomains = []string{
	"microsoft.com", "github.com", "atlassian.com", "slack.com",
	"zoom.us", "stripe.com", "xero.com", "digitalocean.com",
}

// Run scans the knowledge base at root and seeds the contact rule
// table: three guessed domains per client folder, the fixed noise and
// vendor lists, and the operator's internal domain. Every write is an
// idempotent upsert, so re-running is safe and cheap.
func Run(
	ctx context.Context,
	rules RuleWriter,
	root string,
	internalDomain string,
) (int, error) {
	count := 0

	clientRules, err := scanClients(root)
	if err != nil {
		return 0, err
	}
	for _, rule := range clientRules {
		if err := rules.UpsertContact(ctx, rule); err != nil {
			return count, err
		}
		count++
	}

	for _, domain := range noiseDomains {
		rule := model.ContactRule{
			MatchType:  model.MatchNoiseDomain,
			MatchValue: domain,
			EntityType: model.CategoryNoise,
			EntityName: "Noise",
		}
		if err := rules.UpsertContact(ctx, rule); err != nil {
			return count, err
		}
		count++
	}

	for _, domain := range vendorDomains {
		rule := model.ContactRule{
			MatchType:  model.MatchDomain,
			MatchValue: domain,
			EntityType: model.CategoryVendor,
			EntityName: domain,
		}
		if err := rules.UpsertContact(ctx, rule); err != nil {
			return count, err
		}
		count++
	}

	if internalDomain != "" {
		rule := model.ContactRule{
			MatchType:  model.MatchDomain,
			MatchValue: internalDomain,
			EntityType: model.CategoryInternal,
			EntityName: "Internal",
		}
		if err := rules.UpsertContact(ctx, rule); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

// scanClients walks <root>/3_Clients/by_industry/<industry>/<client>
// and derives domain rules for each client directory. A missing
// clients directory is not an error; the fixed seeds still apply.
func scanClients(root string) ([]model.ContactRule, error) {
	clientsRoot := filepath.Join(root, filepath.FromSlash(clientsSubdir))

	industries, err := os.ReadDir(clientsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading clients directory %s: %w", clientsRoot, err)
	}

	var out []model.ContactRule
	for _, industry := range industries {
		if !industry.IsDir() {
			continue
		}

		clients, err := os.ReadDir(filepath.Join(clientsRoot, industry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading industry %s: %w", industry.Name(), err)
		}

		for _, client := range clients {
			if !client.IsDir() {
				continue
			}

			slug := slugify(client.Name())
			if slug == "" {
				continue
			}

			entityPath := strings.Join([]string{
				"3_Clients", "by_industry", industry.Name(), client.Name(),
			}, "/")

			// The slug yields domain guesses, not verified domains; a
			// wrong guess simply never matches a sender.
			for _, domain := range []string{
				slug + ".com", slug + ".com.sg", slug + ".sg",
			} {
				out = append(out, model.ContactRule{
					MatchType:  model.MatchDomain,
					MatchValue: domain,
					EntityType: model.CategoryClient,
					EntityName: client.Name(),
					EntityPath: entityPath,
				})
			}
		}
	}

	return out, nil
}

// slugify lower-cases a client name and strips everything that is not
// a letter or digit.
func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
