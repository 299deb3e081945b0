package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"linkfetch/internal"
)

const diskProvider = "lanzou"

// flexString accepts a JSON string, number, boolean or null. The provider is
// inconsistent about quoting status codes and messages.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || string(data) == "null":
		*f = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		*f = flexString(data)
	}
	return nil
}

// diskResponse is the reply to a single-file AJAX submission.
type diskResponse struct {
	Status flexString `json:"zt"`
	Dom    flexString `json:"dom"`
	URL    flexString `json:"url"`
	Info   flexString `json:"inf"`
}

// DiskResolver resolves single-file and folder shares of the disk provider.
type DiskResolver struct {
	transport internal.Transport
	listing   ListingOptions
}

// NewDiskResolver creates a disk provider strategy over transport.
func NewDiskResolver(transport internal.Transport, listing ListingOptions) *DiskResolver {
	return &DiskResolver{transport: transport, listing: listing.withDefaults()}
}

// ResolveFile turns a single-file share into the final direct download URL.
func (d *DiskResolver) ResolveFile(ctx context.Context, req *internal.ShareRequest) (string, error) {
	internal.LogInfo("Resolving share %s", req.URL)

	if err := solveChallenge(ctx, d.transport, req.Domain); err != nil {
		return "", err
	}

	page, err := d.transport.GetString(ctx, req.URL, nil)
	if err != nil {
		return "", withStep(err, "share-page")
	}

	referer := req.URL
	if req.Password == "" {
		if src, ok := FindIframeSrc(page); ok {
			referer = joinDomain(req.Domain, src)
			internal.LogDebug("Following content frame %s", referer)
			page, err = d.transport.GetString(ctx, referer, nil)
			if err != nil {
				return "", withStep(err, "iframe")
			}
		}
	}

	ajax, err := ExtractAjaxRequest(StripComments(PageScript(page)), req.Domain, req.Password)
	if err != nil {
		return "", err
	}

	body, err := d.transport.PostForm(ctx, ajax.PostURL, ajax.FormFields, referer)
	if err != nil {
		return "", withStep(err, "submit")
	}

	var resp diskResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return "", internal.NewProtocolMismatchError("submit", "response is not valid JSON").WithCause(err)
	}

	if string(resp.Status) != "1" {
		internal.LogDebug("Share rejected with status %q", resp.Status)
		return "", internal.NewRemoteRejectedError(diskProvider, string(resp.Info)).WithStep("submit")
	}
	if resp.Dom == "" || resp.URL == "" {
		return "", internal.NewProtocolMismatchError("submit", "success response is missing dom or url")
	}

	candidate := strings.TrimRight(string(resp.Dom), "/") + "/file/" + string(resp.URL)
	internal.LogDebug("Download endpoint %s", candidate)

	return peekFinal(ctx, d.transport, candidate)
}

// peekFinal resolves the issuing endpoint to the file host URL. An endpoint
// that does not redirect is reported as an error.
func peekFinal(ctx context.Context, transport internal.Transport, endpoint string) (string, error) {
	final, err := transport.PeekRedirect(ctx, endpoint)
	if err != nil {
		return "", withStep(err, "redirect")
	}
	if final == "" {
		return "", internal.NewProtocolMismatchError("redirect", "download endpoint did not redirect").
			WithURL(endpoint)
	}
	internal.LogDebug("Final download link %s", final)
	return final, nil
}

// pageNumber reads the folder page field from an extracted form.
func pageNumber(fields map[string]string) (int, error) {
	raw, ok := fields[pageField]
	if !ok {
		return 0, internal.NewProtocolMismatchError("folder-page", "page field missing from AJAX data")
	}
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, internal.NewProtocolMismatchError("folder-page", "page field is not a number").
			WithContext("value", raw)
	}
	return page, nil
}
