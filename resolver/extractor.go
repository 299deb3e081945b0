package resolver

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"linkfetch/internal"
)

// PasswordVariable is the script variable the share password is bound to.
const PasswordVariable = "pwd"

var (
	varDeclPattern   = regexp.MustCompile(`(?i)\bvar\s+(\w+)(?:\s*=\s*([^;]+))?;`)
	assignPattern    = regexp.MustCompile(`(\w+)\s*=\s*([^;]+);`)
	ajaxDataPattern  = regexp.MustCompile(`(?is)data\s*:\s*\{\s*([^}]+)\s*\}`)
	ajaxURLPattern   = regexp.MustCompile(`(?i)url\s*:\s*'([^']*)'`)
	whitespaceRunsRe = regexp.MustCompile(`\s+`)
)

// PageScript returns the bodies of the page's inline script elements joined
// by newlines, so markup text never reaches the comment scanner. A page
// without script elements is returned unchanged.
func PageScript(page string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(page))
	var scripts []string
	inScript := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if scripts == nil {
				return page
			}
			return strings.Join(scripts, "\n")
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			inScript = string(name) == "script"
			if inScript && scripts == nil {
				scripts = []string{}
			}
		case html.EndTagToken:
			inScript = false
		case html.TextToken:
			if inScript {
				scripts = append(scripts, string(tokenizer.Text()))
			}
		}
	}
}

// StripComments removes // and /* */ comments from script text. Comment
// openers inside single-quoted, double-quoted and template strings are kept.
func StripComments(src string) string {
	const (
		code = iota
		quoted
		lineComment
		blockComment
	)

	var out strings.Builder
	out.Grow(len(src))

	state := code
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch state {
		case code:
			switch {
			case c == '\'' || c == '"' || c == '`':
				state, quote = quoted, c
				out.WriteByte(c)
			case c == '/' && i+1 < len(src) && src[i+1] == '/':
				state = lineComment
				i++
			case c == '/' && i+1 < len(src) && src[i+1] == '*':
				state = blockComment
				i++
			default:
				out.WriteByte(c)
			}
		case quoted:
			out.WriteByte(c)
			switch {
			case c == '\\' && i+1 < len(src):
				i++
				out.WriteByte(src[i])
			case c == quote:
				state = code
			case c == '\n' && quote != '`':
				// plain strings cannot span lines; resync on stray quotes in markup
				state = code
			}
		case lineComment:
			if c == '\n' || c == '\r' {
				state = code
				out.WriteByte(c)
			}
		case blockComment:
			if c == '*' && i+1 < len(src) && src[i+1] == '/' {
				state = code
				i++
			}
		}
	}
	return out.String()
}

// BuildVarTable scans declarations and reassignments in source order.
// Declarations without an initializer bind "", reassignments only apply to
// names that were declared earlier, and the last write wins.
func BuildVarTable(script string) map[string]string {
	type binding struct {
		pos      int
		name     string
		value    string
		declares bool
	}

	var bindings []binding
	for _, m := range varDeclPattern.FindAllStringSubmatchIndex(script, -1) {
		b := binding{pos: m[0], name: script[m[2]:m[3]], declares: true}
		if m[4] >= 0 {
			b.value = trimValue(script[m[4]:m[5]])
		}
		bindings = append(bindings, b)
	}
	for _, m := range assignPattern.FindAllStringSubmatchIndex(script, -1) {
		bindings = append(bindings, binding{
			pos:   m[0],
			name:  script[m[2]:m[3]],
			value: trimValue(script[m[4]:m[5]]),
		})
	}
	sort.SliceStable(bindings, func(i, j int) bool { return bindings[i].pos < bindings[j].pos })

	vars := make(map[string]string)
	for _, b := range bindings {
		if _, known := vars[b.name]; b.declares || known {
			vars[b.name] = b.value
		}
	}
	return vars
}

func trimValue(s string) string {
	return strings.Trim(strings.TrimSpace(s), `'"`)
}

// ExtractAjaxRequest rebuilds the form POST a page's script would send.
// Field values naming a known variable are replaced by its value.
func ExtractAjaxRequest(script, domain, password string) (*internal.AjaxRequest, error) {
	vars := BuildVarTable(script)
	vars[PasswordVariable] = password
	internal.LogDebug("Extracted %d script variables", len(vars))

	dataMatch := ajaxDataPattern.FindStringSubmatch(script)
	if dataMatch == nil {
		return nil, internal.NewProtocolMismatchError("ajax-data", "no AJAX data block found in page script")
	}

	fields := ParseDataBlock(dataMatch[1])
	for key, value := range fields {
		if resolved, ok := vars[value]; ok {
			internal.LogDebug("Field %s: %s -> %s", key, value, resolved)
			fields[key] = resolved
		}
	}

	urlMatch := ajaxURLPattern.FindStringSubmatch(script)
	if urlMatch == nil {
		return nil, internal.NewProtocolMismatchError("ajax-url", "no AJAX url found in page script")
	}

	return &internal.AjaxRequest{
		PostURL:    joinDomain(domain, urlMatch[1]),
		FormFields: fields,
	}, nil
}

// ParseDataBlock splits an object literal body into key/value pairs. Pairs that
// do not split into exactly two parts are dropped.
func ParseDataBlock(block string) map[string]string {
	collapsed := strings.TrimSpace(whitespaceRunsRe.ReplaceAllString(block, " "))

	fields := make(map[string]string)
	for _, pair := range strings.Split(collapsed, ",") {
		parts := strings.Split(pair, ":")
		if len(parts) != 2 {
			continue
		}
		key := trimValue(parts[0])
		if key == "" {
			continue
		}
		fields[key] = trimValue(parts[1])
	}
	return fields
}

// FindIframeSrc returns the src of the first iframe in page.
func FindIframeSrc(page string) (string, bool) {
	tokenizer := html.NewTokenizer(strings.NewReader(page))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			if string(name) != "iframe" || !hasAttr {
				continue
			}
			for {
				key, value, more := tokenizer.TagAttr()
				if string(key) == "src" && len(value) > 0 {
					return string(value), true
				}
				if !more {
					break
				}
			}
		}
	}
}

// joinDomain prefixes a page-relative path with the page's origin.
func joinDomain(domain, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(domain, "/") + path
}
