// Package backend resolves the two upstream services the gateway talks to.
package backend

import "strings"

// Target identifies one of the two upstream services.
type Target int

const (
	// Orchestrator is the primary service of record (auth, inbox, most
	// tenant-facing operations).
	Orchestrator Target = iota
	// Agent is the internal AI/memory service reached with service
	// credentials.
	Agent
)

// Targets lists every target in a stable order.
var Targets = []Target{Orchestrator, Agent}

// String returns the lowercase service name.
func (t Target) String() string {
	switch t {
	case Orchestrator:
		return "orchestrator"
	case Agent:
		return "agent"
	default:
		return "unknown"
	}
}

// target environment and defaults
type targetSpec struct {
	envVar     string
	defaultURL string
}

var targetSpecs = map[Target]targetSpec{
	Orchestrator: {envVar: "ORCHESTRATOR_API_URL", defaultURL: "http://localhost:4000"},
	Agent:        {envVar: "AGENT_BACKEND_URL", defaultURL: "http://localhost:8000"},
}

// publicPrefix is the prefix of the alias variable checked after the
// primary one.
const publicPrefix = "NEXT_PUBLIC_"

// EnvVar returns the primary environment variable for t.
func (t Target) EnvVar() string {
	return targetSpecs[t].envVar
}

// DefaultURL returns the built-in base URL for t.
func (t Target) DefaultURL() string {
	return targetSpecs[t].defaultURL
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// ResolveBaseURL picks the base URL for t. Candidates are checked in order:
// the primary environment variable, its NEXT_PUBLIC_ alias, the configured
// value, the built-in default. The first non-blank candidate wins and is
// returned without trailing slashes. It never fails.
func ResolveBaseURL(t Target, lookup LookupFunc, configured string) string {
	candidates := make([]string, 0, 3)
	if lookup != nil {
		for _, key := range []string{t.EnvVar(), publicPrefix + t.EnvVar()} {
			if v, ok := lookup(key); ok {
				candidates = append(candidates, v)
			}
		}
	}
	candidates = append(candidates, configured)

	for _, c := range candidates {
		if normalized := normalizeBaseURL(c); normalized != "" {
			return normalized
		}
	}
	return t.DefaultURL()
}

func normalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}
