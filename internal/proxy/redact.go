package proxy

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"
)

const redactedValue = "[REDACTED]"

// Redactor masks known secret values in caller-visible text. Upstreams that
// echo request headers back in error bodies would otherwise leak the
// service credential. Each secret is also matched in the escaped forms a
// JSON encoder may produce for it.
type Redactor struct {
	secrets  []string
	replacer *strings.Replacer
}

// NewRedactor returns a Redactor for the given secrets. Empty values are
// ignored.
func NewRedactor(secrets ...string) *Redactor {
	seen := make(map[string]bool, len(secrets)*2)
	var originals, forms []string
	for _, s := range secrets {
		if s == "" || seen[s] {
			continue
		}
		originals = append(originals, s)
		for _, form := range encodedForms(s) {
			if !seen[form] {
				seen[form] = true
				forms = append(forms, form)
			}
		}
	}
	if len(forms) == 0 {
		return &Redactor{}
	}

	// Longer forms first so a secret is never half-replaced by a shorter
	// one it contains.
	sort.SliceStable(forms, func(i, j int) bool { return len(forms[i]) > len(forms[j]) })

	pairs := make([]string, 0, len(forms)*2)
	for _, form := range forms {
		pairs = append(pairs, form, redactedValue)
	}
	return &Redactor{secrets: originals, replacer: strings.NewReplacer(pairs...)}
}

// With returns a Redactor masking r's secrets plus extra.
func (r *Redactor) With(extra ...string) *Redactor {
	if len(extra) == 0 {
		return r
	}
	var base []string
	if r != nil {
		base = r.secrets
	}
	return NewRedactor(append(append([]string(nil), base...), extra...)...)
}

// Redact returns s with every secret replaced.
func (r *Redactor) Redact(s string) string {
	if r == nil || r.replacer == nil {
		return s
	}
	return r.replacer.Replace(s)
}

// encodedForms returns s and the JSON string escapings of s without their
// quotes: Go's HTML-safe form, the form with escaped solidus and the
// ASCII-only form.
func encodedForms(s string) []string {
	forms := []string{s}
	if b, err := json.Marshal(s); err == nil {
		forms = append(forms, string(b[1:len(b)-1]))
	}
	if strings.Contains(s, "/") {
		forms = append(forms, strings.ReplaceAll(s, "/", `\/`))
	}
	if ascii := asciiJSON(s); ascii != s {
		forms = append(forms, ascii)
	}
	return forms
}

// asciiJSON escapes s like a JSON encoder that only emits ASCII.
func asciiJSON(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '"' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r < 0x20:
			fmt.Fprintf(&b, `\u%04x`, r)
		case r < utf8.RuneSelf:
			b.WriteRune(r)
		case r > 0xFFFF:
			r -= 0x10000
			fmt.Fprintf(&b, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.String()
}

// RedactTarget strips the query and masks any userinfo password of an
// upstream URL so it can be shown to callers and written to logs.
func RedactTarget(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	return u.Redacted()
}
