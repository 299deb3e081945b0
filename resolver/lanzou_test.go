package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkfetch/internal"
)

const (
	testDomain   = "https://disk.example"
	testShareURL = "https://disk.example/iAbc123"
)

const passwordPage = `<html><script type="text/javascript">
var pwd;
var skdklds = 'sign-value';
function down_p(){
	// data : { 'decoy':1 },
	$.ajax({
		type : 'post',
		url : '/ajaxm.php?file=99',
		data : { 'action':'downprocess','sign':skdklds,'p':pwd,'kd':1 },
		dataType : 'json',
	});
}
</script></html>`

const framedPage = `<html><body>
<iframe class="ifr2" name="1" src="/fn?frame42" frameborder="0" scrolling="no"></iframe>
</body></html>`

const framePage = `<script>
var ajaxdata = '?ctdf';
var wsk_sign = 'c20230201';
$.ajax({
	type : 'post',
	url : '/ajaxm.php?file=7',
	data : { 'action':'downprocess','signs':ajaxdata,'websignkey':wsk_sign,'ves':1 },
});
</script>`

const folderPage = `<script>
var pgs;
var ib1 = '1700000000';
var ib2 = 'k-token';
pgs = 1;
function more(){
	$.ajax({
		type : 'post',
		url : '/filemoreajax.php?file=123',
		data : { 'lx':2,'fid':123,'uid':'456','pg':pgs,'rep':'0','t':ib1,'k':ib2,'up':1 },
	});
}
</script>`

func shareRequest(password string, folder bool) *internal.ShareRequest {
	return &internal.ShareRequest{
		RawURL:   testShareURL,
		URL:      testShareURL,
		Domain:   testDomain,
		Host:     "disk.example",
		Password: password,
		Folder:   folder,
	}
}

func TestDiskResolver_ResolveFileWithPassword(t *testing.T) {
	transport := newScriptedTransport()
	transport.pages[testDomain] = `var arg1='0123456789abcdef0123456789abcdef01234567';`
	transport.pages[testShareURL] = passwordPage
	transport.replies = []string{`{"zt":1,"dom":"https://dl.example/","url":"?token=1","inf":0}`}
	transport.redirects["https://dl.example/file/?token=1"] = "https://cdn.example/final.apk"

	resolver := NewDiskResolver(transport, ListingOptions{})
	final, err := resolver.ResolveFile(context.Background(), shareRequest("1234", false))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/final.apk", final)

	require.Len(t, transport.posts, 1)
	post := transport.posts[0]
	assert.Equal(t, "https://disk.example/ajaxm.php?file=99", post.url)
	assert.Equal(t, testShareURL, post.referer)
	assert.Equal(t, map[string]string{
		"action": "downprocess",
		"sign":   "sign-value",
		"p":      "1234",
		"kd":     "1",
	}, post.form)

	require.Contains(t, transport.cookies, testDomain)
	assert.Equal(t, ClearanceCookie, transport.cookies[testDomain].Name)
}

func TestDiskResolver_ResolveFileFollowsIframe(t *testing.T) {
	transport := newScriptedTransport()
	transport.pages[testDomain] = "<html></html>"
	transport.pages[testShareURL] = framedPage
	transport.pages[testDomain+"/fn?frame42"] = framePage
	transport.replies = []string{`{"zt":"1","dom":"https://dl.example","url":"abc"}`}
	transport.redirects["https://dl.example/file/abc"] = "https://cdn.example/file.zip"

	resolver := NewDiskResolver(transport, ListingOptions{})
	final, err := resolver.ResolveFile(context.Background(), shareRequest("", false))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/file.zip", final)

	require.Len(t, transport.posts, 1)
	assert.Equal(t, testDomain+"/fn?frame42", transport.posts[0].referer)
	assert.Equal(t, "?ctdf", transport.posts[0].form["signs"])
	assert.Equal(t, "c20230201", transport.posts[0].form["websignkey"])
	assert.Empty(t, transport.cookies)
}

func TestDiskResolver_ResolveFileErrors(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		errorType internal.ErrorType
		step      string
		message   string
	}{
		{
			name:      "remote_rejection",
			reply:     `{"zt":0,"inf":"password is incorrect"}`,
			errorType: internal.ErrRemoteRejected,
			step:      "submit",
			message:   "password is incorrect",
		},
		{
			name:      "invalid_json",
			reply:     `<html>busy</html>`,
			errorType: internal.ErrProtocolMismatch,
			step:      "submit",
		},
		{
			name:      "missing_dom",
			reply:     `{"zt":1,"url":"abc"}`,
			errorType: internal.ErrProtocolMismatch,
			step:      "submit",
		},
		{
			name:      "endpoint_does_not_redirect",
			reply:     `{"zt":1,"dom":"https://dl.example","url":"abc"}`,
			errorType: internal.ErrProtocolMismatch,
			step:      "redirect",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newScriptedTransport()
			transport.pages[testDomain] = ""
			transport.pages[testShareURL] = passwordPage
			transport.replies = []string{tt.reply}

			resolver := NewDiskResolver(transport, ListingOptions{})
			final, err := resolver.ResolveFile(context.Background(), shareRequest("0000", false))
			require.Error(t, err)
			assert.Empty(t, final)

			var linkErr *internal.LinkError
			require.ErrorAs(t, err, &linkErr)
			assert.Equal(t, tt.errorType, linkErr.Type)
			assert.Equal(t, tt.step, linkErr.Step)
			if tt.message != "" {
				assert.Equal(t, tt.message, linkErr.Message)
			}
		})
	}
}

func TestDiskResolver_SharePageMissing(t *testing.T) {
	transport := newScriptedTransport()
	transport.pages[testDomain] = ""

	_, err := NewDiskResolver(transport, ListingOptions{}).ResolveFile(context.Background(), shareRequest("", false))
	require.Error(t, err)

	var linkErr *internal.LinkError
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, "share-page", linkErr.Step)
	assert.Equal(t, 404, linkErr.Code)
}

func folderReply(start, count int) string {
	entries := make([]string, 0, count)
	for i := start; i < start+count; i++ {
		entries = append(entries, fmt.Sprintf(
			`{"name_all":"file-%d.zip","size":"1.%d M","time":"2024-01-0%d","id":"i%d","icon":"zip"}`,
			i, i%10, i%9+1, i))
	}
	return `{"zt":1,"info":"sucess","text":[` + strings.Join(entries, ",") + `]}`
}

func newFolderTransport(replies ...string) *scriptedTransport {
	transport := newScriptedTransport()
	transport.pages[testDomain] = ""
	transport.pages[testShareURL] = folderPage
	transport.replies = replies
	return transport
}

func TestDiskResolver_ListFolder(t *testing.T) {
	tests := []struct {
		name          string
		replies       []string
		expectedPosts int
		expectedFiles int
		capped        bool
	}{
		{
			name:          "single_short_page",
			replies:       []string{folderReply(0, 30)},
			expectedPosts: 1,
			expectedFiles: 30,
		},
		{
			name:          "stops_at_page_cap",
			replies:       []string{folderReply(0, 50), folderReply(50, 50), folderReply(100, 30)},
			expectedPosts: 2,
			expectedFiles: 100,
			capped:        true,
		},
		{
			name:          "full_page_then_short_page",
			replies:       []string{folderReply(0, 50), folderReply(50, 7)},
			expectedPosts: 2,
			expectedFiles: 57,
		},
		{
			name:          "empty_pages_continue_until_cap",
			replies:       []string{`{"zt":1,"info":"ok","text":[]}`, `{"zt":1,"info":"ok","text":null}`},
			expectedPosts: 2,
			capped:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newFolderTransport(tt.replies...)

			resolver := NewDiskResolver(transport, ListingOptions{PageDelay: time.Millisecond})
			listing, err := resolver.ListFolder(context.Background(), shareRequest("", true))
			require.NoError(t, err)

			assert.Len(t, transport.posts, tt.expectedPosts)
			assert.Len(t, listing.Files, tt.expectedFiles)
			assert.Equal(t, tt.capped, listing.Capped)

			report := listing.Report()
			if tt.capped {
				assert.Equal(t, 1, strings.Count(report, listingNotice))
			} else {
				assert.NotContains(t, report, listingNotice)
			}

			for i, post := range transport.posts {
				assert.Equal(t, "https://disk.example/filemoreajax.php?file=123", post.url)
				assert.Equal(t, testShareURL, post.referer)
				assert.Equal(t, fmt.Sprint(i+1), post.form[pageField])
				assert.Equal(t, "k-token", post.form["k"])
			}
		})
	}
}

func TestDiskResolver_ListFolderReport(t *testing.T) {
	transport := newFolderTransport(`{"zt":"1","info":"ok","text":[{"name_all":"a.txt","size":"12 K","time":"3 days ago","id":"iA1"}]}`)

	listing, err := NewDiskResolver(transport, ListingOptions{}).ListFolder(context.Background(), shareRequest("", true))
	require.NoError(t, err)

	require.Len(t, listing.Files, 1)
	assert.Equal(t, "https://disk.example/iA1", listing.Files[0].Link)

	report := listing.Report()
	assert.Contains(t, report, "Name: a.txt\n")
	assert.Contains(t, report, "Size: 12 K\n")
	assert.Contains(t, report, "Uploaded: 3 days ago\n")
	assert.Contains(t, report, "Link: https://disk.example/iA1\n")
	assert.Contains(t, report, entrySeparator)
}

func TestDiskResolver_ListFolderIndexedText(t *testing.T) {
	reply := `{"zt":1,"info":"ok","text":{"10":{"name_all":"c","id":"c"},"2":{"name_all":"b","id":"b"},"0":{"name_all":"a","id":"a"}}}`
	transport := newFolderTransport(reply)

	listing, err := NewDiskResolver(transport, ListingOptions{}).ListFolder(context.Background(), shareRequest("", true))
	require.NoError(t, err)

	require.Len(t, listing.Files, 3)
	assert.Equal(t, "a", listing.Files[0].Name)
	assert.Equal(t, "b", listing.Files[1].Name)
	assert.Equal(t, "c", listing.Files[2].Name)
}

func TestDiskResolver_ListFolderRejected(t *testing.T) {
	transport := newFolderTransport(folderReply(0, 50), `{"zt":2,"info":"share was cancelled"}`)

	listing, err := NewDiskResolver(transport, ListingOptions{}).ListFolder(context.Background(), shareRequest("", true))
	require.Error(t, err)
	assert.Nil(t, listing)

	var linkErr *internal.LinkError
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, internal.ErrRemoteRejected, linkErr.Type)
	assert.Equal(t, "share was cancelled", linkErr.Message)
	assert.Equal(t, 2, linkErr.Context["page"])
}

func TestDiskResolver_ListFolderCancelledDuringDelay(t *testing.T) {
	transport := newFolderTransport(folderReply(0, 50), folderReply(50, 50))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := NewDiskResolver(transport, ListingOptions{PageDelay: time.Minute}).ListFolder(ctx, shareRequest("", true))
	require.Error(t, err)
	assert.True(t, internal.IsCancelled(err))
	assert.Len(t, transport.posts, 1)
}

func TestPageNumber(t *testing.T) {
	page, err := pageNumber(map[string]string{"pg": " 3 "})
	require.NoError(t, err)
	assert.Equal(t, 3, page)

	_, err = pageNumber(map[string]string{})
	assert.True(t, internal.IsType(err, internal.ErrProtocolMismatch))

	_, err = pageNumber(map[string]string{"pg": "pgs"})
	assert.True(t, internal.IsType(err, internal.ErrProtocolMismatch))
}

func TestFlexString(t *testing.T) {
	var resp diskResponse
	require.NoError(t, json.Unmarshal([]byte(`{"zt":1,"inf":null}`), &resp))
	assert.Equal(t, "1", string(resp.Status))
	assert.Empty(t, string(resp.Info))

	require.NoError(t, json.Unmarshal([]byte(`{"zt":"0","inf":"bad"}`), &resp))
	assert.Equal(t, "0", string(resp.Status))
	assert.Equal(t, "bad", string(resp.Info))
}
