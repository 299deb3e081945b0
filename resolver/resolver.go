package resolver

import (
	"context"
	"strings"
	"time"

	"linkfetch/internal"
	"linkfetch/utils"
)

// ErrorPrefix marks result text that carries an error instead of a link.
const ErrorPrefix = "Error: "

// Options configures the dispatcher.
type Options struct {
	DiskDomains    []string
	MailDomains    []string
	PageDelay      time.Duration
	MailLegacyBase string
}

// OptionsFromConfig derives dispatcher options from application config.
func OptionsFromConfig(config *internal.Config) Options {
	return Options{
		DiskDomains: config.DiskDomains,
		MailDomains: config.MailDomains,
		PageDelay:   config.PageDelay,
	}
}

// ResultKind discriminates a resolution outcome.
type ResultKind int

const (
	ResultURL ResultKind = iota
	ResultListing
	ResultError
)

// Result is the structured outcome of a resolution. It is rendered to the
// single text channel users see by String.
type Result struct {
	Kind     ResultKind
	Provider utils.Provider
	URL      string
	Listing  *FolderListing
	Err      error
}

// IsError reports whether the resolution failed.
func (r Result) IsError() bool {
	return r.Kind == ResultError
}

// String renders the result as plain text. Provider rejections are shown with
// the provider's own message.
func (r Result) String() string {
	switch r.Kind {
	case ResultListing:
		return r.Listing.Report()
	case ResultError:
		if linkErr, ok := r.Err.(*internal.LinkError); ok && linkErr.Type == internal.ErrRemoteRejected {
			return ErrorPrefix + linkErr.Message
		}
		return ErrorPrefix + r.Err.Error()
	default:
		return r.URL
	}
}

// IsErrorText reports whether rendered result text is an error.
func IsErrorText(text string) bool {
	return strings.HasPrefix(text, ErrorPrefix)
}

// Resolver dispatches share URLs to the provider strategy serving their host.
type Resolver struct {
	validator *utils.URLValidator
	disk      *DiskResolver
	mail      *MailResolver
}

// New creates a dispatcher whose strategies share transport.
func New(transport internal.Transport, opts Options) *Resolver {
	return &Resolver{
		validator: utils.NewURLValidator(opts.DiskDomains, opts.MailDomains),
		disk:      NewDiskResolver(transport, ListingOptions{PageDelay: opts.PageDelay}),
		mail:      NewMailResolver(transport, opts.MailLegacyBase),
	}
}

// Resolve turns rawURL into a direct link, a folder listing or an error.
// Hosts no strategy serves are returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) Result {
	parsed, err := r.validator.ValidateURL(rawURL)
	if err != nil {
		return errorResult(utils.ProviderPassThrough, err)
	}

	provider := r.validator.DetectProvider(parsed.Hostname())
	internal.LogDebug("Host %s handled by %s provider", parsed.Hostname(), provider)

	switch provider {
	case utils.ProviderMail:
		final, err := r.mail.Resolve(ctx, strings.TrimSpace(rawURL))
		if err != nil {
			return errorResult(provider, err)
		}
		return Result{Kind: ResultURL, Provider: provider, URL: final}

	case utils.ProviderDisk:
		req, err := r.validator.ParseShareRequest(rawURL)
		if err != nil {
			return errorResult(provider, err)
		}
		if req.Folder {
			listing, err := r.disk.ListFolder(ctx, req)
			if err != nil {
				return errorResult(provider, err)
			}
			return Result{Kind: ResultListing, Provider: provider, Listing: listing}
		}
		final, err := r.disk.ResolveFile(ctx, req)
		if err != nil {
			return errorResult(provider, err)
		}
		return Result{Kind: ResultURL, Provider: provider, URL: final}

	default:
		return Result{Kind: ResultURL, Provider: provider, URL: rawURL}
	}
}

func errorResult(provider utils.Provider, err error) Result {
	if linkErr, ok := err.(*internal.LinkError); ok {
		internal.LogLinkError(linkErr)
	} else {
		internal.LogError("Resolution failed: %v", err)
	}
	return Result{Kind: ResultError, Provider: provider, Err: err}
}
