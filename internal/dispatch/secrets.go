package dispatch

import (
	"regexp"
	"strconv"
	"strings"
)

// Credential-shaped input anywhere in an argument tree aborts the dispatch
// before any policy or network work happens. The offending value is never
// echoed back; only the argument path is.

var tokenPrefixes = []string{
	"ghp_", "gho_", "ghu_", "ghs_", "ghr_", "github_pat_",
}

var credentialKeys = map[string]bool{
	"token":         true,
	"password":      true,
	"passwd":        true,
	"secret":        true,
	"private_key":   true,
	"api_key":       true,
	"authorization": true,
}

// jwtShape matches the header.payload.signature triple of a compact JWT.
var jwtShape = regexp.MustCompile(`^eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)

// findSecret walks every string leaf of args and returns the path of the
// first credential-shaped value found.
func findSecret(args map[string]any) (string, bool) {
	return scanValue("", args)
}

func scanValue(path string, v any) (string, bool) {
	switch t := v.(type) {
	case map[string]any:
		for key, child := range t {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			if credentialKeys[strings.ToLower(key)] {
				if s, ok := child.(string); ok && s != "" {
					return childPath, true
				}
			}
			if p, found := scanValue(childPath, child); found {
				return p, true
			}
		}
	case []any:
		for i, child := range t {
			childPath := path + "[" + strconv.Itoa(i) + "]"
			if p, found := scanValue(childPath, child); found {
				return p, true
			}
		}
	case string:
		if looksLikeCredential(t) {
			return path, true
		}
	}
	return "", false
}

func looksLikeCredential(s string) bool {
	for _, prefix := range tokenPrefixes {
		if strings.Contains(s, prefix) {
			return true
		}
	}
	if strings.HasPrefix(s, "Bearer ") {
		return true
	}
	return jwtShape.MatchString(s)
}
