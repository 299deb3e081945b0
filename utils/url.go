package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"linkfetch/internal"
)

// Provider identifies which resolution strategy handles a host.
type Provider int

const (
	ProviderPassThrough Provider = iota
	ProviderDisk
	ProviderMail
)

func (p Provider) String() string {
	switch p {
	case ProviderDisk:
		return "disk"
	case ProviderMail:
		return "mail"
	default:
		return "passthrough"
	}
}

var (
	httpSchemePattern = regexp.MustCompile(`(?i)^https?://`)
	folderPattern     = regexp.MustCompile(`(?i)[?&]folder\b(?:=[^&]*)?`)
	passwordPattern   = regexp.MustCompile(`(?i)[?&]pwd=(.*)`)
)

// URLValidator validates share URLs and maps hosts to providers by suffix.
type URLValidator struct {
	diskDomains []string
	mailDomains []string
}

// NewURLValidator creates a validator for the given provider host suffixes.
func NewURLValidator(diskDomains, mailDomains []string) *URLValidator {
	return &URLValidator{
		diskDomains: normalizeDomains(diskDomains),
		mailDomains: normalizeDomains(mailDomains),
	}
}

func normalizeDomains(domains []string) []string {
	normalized := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			normalized = append(normalized, d)
		}
	}
	return normalized
}

// ValidateURL checks that rawURL is an absolute http(s) URL with a host.
func (v *URLValidator) ValidateURL(rawURL string) (*url.URL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, internal.NewInvalidURLError(rawURL, "URL cannot be empty")
	}

	if !httpSchemePattern.MatchString(rawURL) {
		return nil, internal.NewInvalidURLError(rawURL, "URL must use http or https protocol")
	}

	parsedURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, internal.NewInvalidURLError(rawURL, fmt.Sprintf("malformed URL: %v", err))
	}
	if parsedURL.Hostname() == "" {
		return nil, internal.NewInvalidURLError(rawURL, "URL has no host")
	}

	return parsedURL, nil
}

// DetectProvider returns the provider whose domain list contains a suffix of host.
func (v *URLValidator) DetectProvider(host string) Provider {
	host = strings.ToLower(host)
	if matchesAny(host, v.mailDomains) {
		return ProviderMail
	}
	if matchesAny(host, v.diskDomains) {
		return ProviderDisk
	}
	return ProviderPassThrough
}

func matchesAny(host string, domains []string) bool {
	for _, domain := range domains {
		if HostMatches(host, domain) {
			return true
		}
	}
	return false
}

// HostMatches reports whether host equals domain or is a subdomain of it.
func HostMatches(host, domain string) bool {
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// ParseShareRequest validates rawURL and strips the caller-appended folder and
// password markers. The folder marker is removed first; the password takes the
// rest of the URL after its marker.
func (v *URLValidator) ParseShareRequest(rawURL string) (*internal.ShareRequest, error) {
	if _, err := v.ValidateURL(rawURL); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(rawURL)
	request := &internal.ShareRequest{RawURL: rawURL}

	if folderPattern.MatchString(trimmed) {
		request.Folder = true
		trimmed = folderPattern.ReplaceAllString(trimmed, "")
	}

	if m := passwordPattern.FindStringSubmatchIndex(trimmed); m != nil {
		request.Password = trimmed[m[2]:m[3]]
		trimmed = trimmed[:m[0]]
	}

	parsedURL, err := v.ValidateURL(trimmed)
	if err != nil {
		return nil, err
	}

	request.URL = trimmed
	request.Host = strings.ToLower(parsedURL.Hostname())
	request.Domain = Origin(parsedURL)
	return request, nil
}

// Origin returns scheme://host[:port] of u.
func Origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// AppendQuery appends a raw query fragment using ? or & as appropriate.
func AppendQuery(rawURL, fragment string) string {
	if strings.Contains(rawURL, "?") {
		return rawURL + "&" + fragment
	}
	return rawURL + "?" + fragment
}
