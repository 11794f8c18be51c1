package logging

import (
	"log/slog"
	"regexp"
)

// licenseKeyPattern matches PREFIX-XXXXXXXX-XXXXXXXX-XXXXXXXX-XXXXXXXX keys.
var licenseKeyPattern = regexp.MustCompile(`\b([A-Z0-9]+)-[0-9A-F]{8}-[0-9A-F]{8}-[0-9A-F]{8}-[0-9A-F]{4}([0-9A-F]{4})\b`)

// providerKeyPattern matches provider API keys such as sk-... and sk-ant-...
var providerKeyPattern = regexp.MustCompile(`sk-[a-zA-Z0-9_-]{8,}`)

// MaskLicenseKey keeps the prefix and the last four characters of a license
// key. Strings that are not license keys are returned unchanged.
func MaskLicenseKey(s string) string {
	return licenseKeyPattern.ReplaceAllString(s, "$1-****$2")
}

// RedactAttr is a slog ReplaceAttr hook that masks license keys and provider
// API keys in string attribute values.
func RedactAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}
	v := a.Value.String()
	masked := MaskLicenseKey(v)
	masked = providerKeyPattern.ReplaceAllString(masked, "sk-***")
	if masked != v {
		return slog.String(a.Key, masked)
	}
	return a
}
