package redact

// DefaultRules returns a starter rule set covering common credentials and PII.
// It is what `redactctl init` writes.
func DefaultRules() []RuleSpec {
	insensitive := false
	return []RuleSpec{
		{
			Description: "AWS access key ID",
			Trigger:     "AKIA",
			Search:      `AKIA[0-9A-Z]{16}`,
			Replace:     "[REDACTED_AWS_KEY]",
		},
		{
			Description:   "AWS secret access key assignment",
			CaseSensitive: &insensitive,
			Trigger:       "aws_secret_access_key",
			Search:        `(aws_secret_access_key\s*[=:]\s*)[A-Za-z0-9/+=]{40}`,
			Replace:       "$1[REDACTED]",
		},
		{
			Description: "GitHub tokens",
			Search:      `gh[pousr]_[A-Za-z0-9]{36}`,
			Replace:     "[REDACTED_GITHUB_TOKEN]",
		},
		{
			Description: "Slack tokens",
			Trigger:     "xox",
			Search:      `xox[baprs]-[0-9a-zA-Z-]{10,72}`,
			Replace:     "[REDACTED_SLACK_TOKEN]",
		},
		{
			Description: "JSON web tokens",
			Trigger:     "eyJ",
			Search:      `eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`,
			Replace:     "[REDACTED_JWT]",
		},
		{
			Description:   "Bearer tokens in authorization headers",
			CaseSensitive: &insensitive,
			Trigger:       "bearer",
			Search:        `(bearer\s+)[A-Za-z0-9._~+/=-]+`,
			Replace:       "${1}[REDACTED]",
		},
		{
			Description: "Passwords in connection strings",
			Trigger:     "://",
			Search:      `(://[^:/@\s]+:)[^@\s]+(@)`,
			Replace:     "$1[REDACTED]$2",
		},
		{
			Description:   "password, secret and token assignments",
			CaseSensitive: &insensitive,
			Search:        `\b(password|passwd|pwd|secret|token|api_key|apikey)(\s*[=:]\s*)[^\s&,;'"]+`,
			Replace:       "$1$2[REDACTED]",
		},
		{
			Description: "Private key headers",
			Trigger:     "PRIVATE KEY",
			Search:      `-----BEGIN [A-Z ]*PRIVATE KEY-----`,
			Replace:     "[REDACTED_PRIVATE_KEY]",
		},
		{
			Description: "US social security numbers",
			Search:      `\b\d{3}-\d{2}-\d{4}\b`,
			Replace:     "XXX-XX-XXXX",
		},
		{
			Description: "Credit card numbers",
			Search:      `\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`,
			Replace:     "XXXX-XXXX-XXXX-XXXX",
		},
		{
			Description: "Email addresses",
			Trigger:     "@",
			Search:      `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
			Replace:     "email@redacted.host",
		},
	}
}

// DefaultDocument wraps DefaultRules in a versioned document
func DefaultDocument() Document {
	return Document{Version: SupportedVersion, Rules: DefaultRules()}
}
