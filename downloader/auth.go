package downloader

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"linkfetch/internal"
)

const httpOnlyPrefix = "#HttpOnly_"

// CookieSetter receives imported cookies. utils.HTTPClient satisfies it.
type CookieSetter interface {
	SetCookie(rawURL string, cookie *http.Cookie) error
}

// CookieImporter loads Netscape-format cookie files into the shared jar so a
// browser session can be reused for resolution and download.
type CookieImporter struct {
	jar CookieSetter
	now func() time.Time
}

// NewCookieImporter creates an importer installing cookies into jar.
func NewCookieImporter(jar CookieSetter) *CookieImporter {
	return &CookieImporter{jar: jar, now: time.Now}
}

// LoadFile imports every cookie in the file at path and returns how many were installed.
func (a *CookieImporter) LoadFile(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, internal.NewFileSystemError(path, err)
	}
	defer file.Close()

	return a.Load(file)
}

// Load imports cookies from r. Expired cookies are skipped.
func (a *CookieImporter) Load(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	lineNum := 0
	installed := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		}

		// Skip comments and empty lines
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entry, err := parseNetscapeCookieLine(line)
		if err != nil {
			return installed, internal.NewValidationErrorWithValue("cookies",
				fmt.Sprintf("invalid cookie format at line %d: %v", lineNum, err), lineNum)
		}
		entry.cookie.HttpOnly = httpOnly

		if !entry.cookie.Expires.IsZero() && entry.cookie.Expires.Before(a.now()) {
			internal.LogDebug("Skipping expired cookie %s for %s", entry.cookie.Name, entry.host)
			continue
		}

		if err := a.jar.SetCookie(entry.origin(), entry.cookie); err != nil {
			return installed, err
		}
		installed++
	}

	if err := scanner.Err(); err != nil {
		return installed, fmt.Errorf("error reading cookie file: %w", err)
	}

	internal.LogDebug("Imported %d cookies", installed)
	return installed, nil
}

type cookieEntry struct {
	host   string
	cookie *http.Cookie
}

// origin is the URL the cookie is scoped to when installed into a jar.
func (e cookieEntry) origin() string {
	scheme := "http"
	if e.cookie.Secure {
		scheme = "https"
	}
	path := e.cookie.Path
	if path == "" {
		path = "/"
	}
	return scheme + "://" + e.host + path
}

// parseNetscapeCookieLine parses a single line from Netscape cookie format
// Format: domain	includeSubdomains	path	secure	expiration	name	value
func parseNetscapeCookieLine(line string) (cookieEntry, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 7 {
		return cookieEntry{}, fmt.Errorf("expected 7 fields, got %d", len(fields))
	}

	domain := fields[0]
	includeSubdomains := strings.EqualFold(fields[1], "TRUE")
	path := fields[2]
	secure := strings.EqualFold(fields[3], "TRUE")
	expirationStr := fields[4]
	name := fields[5]
	value := fields[6]

	host := strings.TrimPrefix(domain, ".")
	if host == "" {
		return cookieEntry{}, fmt.Errorf("empty domain")
	}
	if name == "" {
		return cookieEntry{}, fmt.Errorf("empty cookie name")
	}

	// Parse expiration timestamp
	var expires time.Time
	if expirationStr != "0" && expirationStr != "" {
		timestamp, err := strconv.ParseInt(expirationStr, 10, 64)
		if err != nil {
			return cookieEntry{}, fmt.Errorf("invalid expiration timestamp: %w", err)
		}
		expires = time.Unix(timestamp, 0)
	}

	cookie := &http.Cookie{
		Name:    name,
		Value:   value,
		Path:    path,
		Expires: expires,
		Secure:  secure,
	}
	// host-only cookies carry no Domain attribute
	if includeSubdomains {
		cookie.Domain = host
	}

	return cookieEntry{host: host, cookie: cookie}, nil
}
