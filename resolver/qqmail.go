package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"time"

	"linkfetch/internal"
	"linkfetch/utils"
)

const mailProvider = "qqmail"

// DefaultMailLegacyBase is the attachment endpoint that accepts key and code directly.
const DefaultMailLegacyBase = "https://wx.mail.qq.com/ftn/download"

type mailResponse struct {
	Body struct {
		URL string `json:"url"`
	} `json:"body"`
}

// MailResolver resolves webmail large-attachment share links.
type MailResolver struct {
	transport  internal.Transport
	legacyBase string
	now        func() time.Time
	randInt63n func(n int64) int64
}

// NewMailResolver creates a webmail strategy. An empty legacyBase selects
// DefaultMailLegacyBase.
func NewMailResolver(transport internal.Transport, legacyBase string) *MailResolver {
	if legacyBase == "" {
		legacyBase = DefaultMailLegacyBase
	}
	return &MailResolver{
		transport:  transport,
		legacyBase: legacyBase,
		now:        time.Now,
		randInt63n: rand.Int63n,
	}
}

// Resolve returns the final attachment URL for rawURL.
func (m *MailResolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", internal.NewInvalidURLError(rawURL, err.Error())
	}

	query := parsed.Query()
	if query.Has("key") && query.Has("code") {
		legacy := fmt.Sprintf("%s?func=4&key=%s&code=%s", m.legacyBase,
			url.QueryEscape(query.Get("key")), url.QueryEscape(query.Get("code")))
		internal.LogDebug("Using legacy attachment endpoint %s", legacy)
		return peekFinal(ctx, m.transport, legacy)
	}

	endpoint := utils.AppendQuery(rawURL, m.cacheBuster()+"&sid=")
	body, err := m.transport.PostForm(ctx, endpoint, map[string]string{"f": "json"}, utils.Origin(parsed))
	if err != nil {
		return "", withStep(err, "mail-submit")
	}

	var resp mailResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return "", internal.NewProtocolMismatchError("mail-submit", "response is not valid JSON").WithCause(err)
	}
	if resp.Body.URL == "" {
		return "", internal.NewProtocolMismatchError("mail-submit", "response has no body.url")
	}

	return peekFinal(ctx, m.transport, resp.Body.URL)
}

// cacheBuster returns r=<13 random digits><unix millis>.
func (m *MailResolver) cacheBuster() string {
	digits := m.randInt63n(1e13)
	return fmt.Sprintf("r=%013d%d", digits, m.now().UnixMilli())
}
