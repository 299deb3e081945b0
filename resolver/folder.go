package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"linkfetch/internal"
)

const (
	pageField = "pg"

	// fullPageSize is the provider's page size; a shorter non-empty page is the last one.
	fullPageSize = 50
	// maxFolderPages bounds a listing to 100 entries.
	maxFolderPages = 2

	// DefaultPageDelay separates consecutive folder page submissions.
	DefaultPageDelay = 3 * time.Second

	entrySeparator = "----------------------------------------------------"
	listingNotice  = "[Notice] Only the first 100 files are listed. Please do not abuse this feature."
)

// ListingOptions tunes folder pagination.
type ListingOptions struct {
	PageDelay time.Duration
}

func (o ListingOptions) withDefaults() ListingOptions {
	if o.PageDelay < 0 {
		o.PageDelay = 0
	}
	return o
}

// ListedFile is one folder entry with its constructed share link.
type ListedFile struct {
	internal.FolderEntry
	Link string `json:"link"`
}

// FolderListing is the accumulated result of a folder share.
type FolderListing struct {
	Files  []ListedFile `json:"files"`
	Pages  int          `json:"pages"`
	Capped bool         `json:"capped"`
}

// Report renders the listing as the multi-line text shown to users. The
// advisory is only appended when the page cap ended the listing.
func (l *FolderListing) Report() string {
	var b strings.Builder
	for _, f := range l.Files {
		fmt.Fprintf(&b, "Name: %s\nSize: %s\nUploaded: %s\nLink: %s\n\n%s\n\n",
			f.Name, f.Size, f.UploadTime, f.Link, entrySeparator)
	}
	if l.Capped {
		fmt.Fprintf(&b, "\n%s\n", listingNotice)
	}
	return b.String()
}

type folderEntry struct {
	Name       flexString `json:"name_all"`
	Size       flexString `json:"size"`
	UploadTime flexString `json:"time"`
	ID         flexString `json:"id"`
}

// folderEntries accepts the entry list either as an array or as an object
// keyed by index. Any other shape decodes as empty.
type folderEntries []folderEntry

func (e *folderEntries) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*e = nil
		return nil
	}

	switch data[0] {
	case '[':
		var list []folderEntry
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*e = list
	case '{':
		var indexed map[string]folderEntry
		if err := json.Unmarshal(data, &indexed); err != nil {
			return err
		}
		keys := make([]string, 0, len(indexed))
		for k := range indexed {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return indexLess(keys[i], keys[j]) })
		list := make([]folderEntry, 0, len(keys))
		for _, k := range keys {
			list = append(list, indexed[k])
		}
		*e = list
	default:
		*e = nil
	}
	return nil
}

func indexLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

type folderResponse struct {
	Status flexString    `json:"zt"`
	Info   flexString    `json:"info"`
	Text   folderEntries `json:"text"`
}

// ListFolder pages through a folder share and accumulates its entries. It
// stops after a short non-empty page or after two pages, whichever comes first.
func (d *DiskResolver) ListFolder(ctx context.Context, req *internal.ShareRequest) (*FolderListing, error) {
	internal.LogInfo("Listing folder %s", req.URL)

	if err := solveChallenge(ctx, d.transport, req.Domain); err != nil {
		return nil, err
	}

	page, err := d.transport.GetString(ctx, req.URL, nil)
	if err != nil {
		return nil, withStep(err, "share-page")
	}
	referer := req.URL

	ajax, err := ExtractAjaxRequest(StripComments(PageScript(page)), req.Domain, req.Password)
	if err != nil {
		return nil, err
	}

	currentPage, err := pageNumber(ajax.FormFields)
	if err != nil {
		return nil, err
	}

	listing := &FolderListing{}
	for {
		internal.LogDebug("Requesting folder page %d", currentPage)

		body, err := d.transport.PostForm(ctx, ajax.PostURL, ajax.FormFields, referer)
		if err != nil {
			return nil, withStep(err, "folder-page")
		}

		var resp folderResponse
		if err := json.Unmarshal([]byte(body), &resp); err != nil {
			return nil, internal.NewProtocolMismatchError("folder-page", "response is not valid JSON").WithCause(err)
		}
		if string(resp.Status) != "1" {
			return nil, internal.NewRemoteRejectedError(diskProvider, string(resp.Info)).
				WithStep("folder-page").
				WithContext("page", currentPage)
		}

		for _, entry := range resp.Text {
			listing.Files = append(listing.Files, ListedFile{
				FolderEntry: internal.FolderEntry{
					Name:       string(entry.Name),
					Size:       string(entry.Size),
					UploadTime: string(entry.UploadTime),
					ID:         string(entry.ID),
				},
				Link: joinDomain(req.Domain, string(entry.ID)),
			})
		}
		listing.Pages++

		count := len(resp.Text)
		internal.LogDebug("Folder page %d returned %d entries", currentPage, count)

		if count > 0 && count < fullPageSize {
			break
		}
		if listing.Pages >= maxFolderPages {
			listing.Capped = true
			break
		}

		currentPage++
		ajax.FormFields[pageField] = strconv.Itoa(currentPage)

		if err := sleepContext(ctx, d.listing.PageDelay); err != nil {
			return nil, err
		}
	}

	internal.LogInfo("Folder listing finished with %d files", len(listing.Files))
	return listing, nil
}

// sleepContext waits for delay unless ctx ends first.
func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		if ctx.Err() == context.Canceled {
			return internal.NewCancelledError("folder listing")
		}
		return internal.NewTransportError("", ctx.Err()).WithStep("folder-page")
	}
}
