package preprocess

import (
	"fmt"
	"regexp"
	"slices"
)

// RedactionPattern defines a built-in pattern for secret detection.
type RedactionPattern struct {
	Name  string
	Regex *regexp.Regexp
	Type  string // placeholder prefix: [IPV4:hash], [USER:hash], ...
	// Group selects the submatch to replace; 0 replaces the whole match.
	Group       int
	Description string
}

var (
	ipv4Regex = regexp.MustCompile(`\b(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`)

	// Full and compressed forms only. Looser forms collide with C++ symbols
	// such as "Node::oops_do" in native frames.
	ipv6Regex = regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}\b|\b(?:[0-9a-fA-F]{1,4}:){1,6}:[0-9a-fA-F]{1,4}\b`)

	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	awsAccessKeyRegex = regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)

	// api_key=..., token: ..., -Dpassword=...
	apiKeyRegex = regexp.MustCompile(`(?i)(?:api[_-]?key|apikey|token|secret|password|passwd|pwd)["\s]*[:=]["\s]*[a-zA-Z0-9_\-]{8,}`)

	jwtRegex = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*\b`)

	privateKeyRegex = regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`)

	macAddressRegex = regexp.MustCompile(`\b(?:[0-9A-Fa-f]{2}[:-]){5}(?:[0-9A-Fa-f]{2})\b`)

	uuidRegex = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)

	// The user name segment of a home directory: C:\Users\<name>,
	// /Users/<name>, /home/<name>.
	userHomeRegex = regexp.MustCompile(`(?i)(?:[a-z]:\\(?:Users|Documents and Settings)\\|/Users/|/home/)([^\\/\s:;"']+)`)
)

// BuiltInPatterns contains all available redaction patterns.
var BuiltInPatterns = map[string]RedactionPattern{
	"ipv4": {
		Name:        "ipv4",
		Regex:       ipv4Regex,
		Type:        "IPV4",
		Description: "IPv4 addresses",
	},
	"ipv6": {
		Name:        "ipv6",
		Regex:       ipv6Regex,
		Type:        "IPV6",
		Description: "IPv6 addresses",
	},
	"email": {
		Name:        "email",
		Regex:       emailRegex,
		Type:        "EMAIL",
		Description: "Email addresses",
	},
	"api_key": {
		Name:        "api_key",
		Regex:       apiKeyRegex,
		Type:        "SECRET",
		Description: "API keys, tokens and passwords",
	},
	"aws_key": {
		Name:        "aws_key",
		Regex:       awsAccessKeyRegex,
		Type:        "AWS_KEY",
		Description: "AWS Access Key IDs",
	},
	"jwt": {
		Name:        "jwt",
		Regex:       jwtRegex,
		Type:        "JWT",
		Description: "JWT tokens",
	},
	"private_key": {
		Name:        "private_key",
		Regex:       privateKeyRegex,
		Type:        "PRIVATE_KEY",
		Description: "Private key headers",
	},
	"mac_address": {
		Name:        "mac_address",
		Regex:       macAddressRegex,
		Type:        "MAC",
		Description: "MAC addresses",
	},
	"uuid": {
		Name:        "uuid",
		Regex:       uuidRegex,
		Type:        "UUID",
		Description: "UUIDs",
	},
	"user_home": {
		Name:        "user_home",
		Regex:       userHomeRegex,
		Type:        "USER",
		Group:       1,
		Description: "User names in home directory paths",
	},
}

// DefaultPatterns returns the patterns enabled when none are configured.
// ipv6, mac_address and uuid are left out: crash logs are full of hex
// tokens that trip them.
func DefaultPatterns() []string {
	return []string{
		"user_home",
		"ipv4",
		"email",
		"api_key",
		"aws_key",
		"jwt",
		"private_key",
	}
}

// PatternNames returns every built-in pattern name, sorted.
func PatternNames() []string {
	names := make([]string, 0, len(BuiltInPatterns))
	for name := range BuiltInPatterns {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetPatterns returns the patterns matching the given names, in the given
// order. An unknown name is an error.
func GetPatterns(names []string) ([]RedactionPattern, error) {
	patterns := make([]RedactionPattern, 0, len(names))
	for _, name := range names {
		pattern, ok := BuiltInPatterns[name]
		if !ok {
			return nil, fmt.Errorf("unknown redaction pattern %q (available: %v)", name, PatternNames())
		}
		patterns = append(patterns, pattern)
	}
	return patterns, nil
}
