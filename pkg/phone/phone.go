package phone

import (
	"regexp"
	"strings"
)

var e164Regex = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
var nonDigit = regexp.MustCompile(`\D`)

// ValidateE164 validates E.164 phone number format
func ValidateE164(phone string) bool {
	return e164Regex.MatchString(strings.TrimSpace(phone))
}

// Digits strips everything but digits from a phone string
func Digits(phone string) string {
	return nonDigit.ReplaceAllString(phone, "")
}

// Variants returns every stored representation a UK number may plausibly
// appear under in the replica: the raw input plus, when the digit-only form
// is long enough to be a real number, the +44 international form, the bare
// 44-prefixed form and the 0-prefixed national form. The result is
// deduplicated; order is not significant.
//
// This is a matching aid, not a canonicalization. The replica stores numbers
// in whatever shape the upstream CRM received them, so lookups must try all
// of them.
func Variants(raw string) []string {
	seen := map[string]bool{raw: true}
	out := []string{raw}

	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	digits := Digits(raw)
	if len(digits) < 10 {
		return out
	}

	// national is the 10-digit subscriber part (7XXXXXXXXX for mobiles)
	var national string
	switch {
	case strings.HasPrefix(digits, "447") && len(digits) >= 12:
		national = digits[2:]
	case strings.HasPrefix(digits, "44") && len(digits) >= 12:
		national = digits[2:]
	case strings.HasPrefix(digits, "07") && len(digits) >= 11:
		national = digits[1:]
	case strings.HasPrefix(digits, "7") && len(digits) == 10:
		national = digits
	default:
		// Not a recognizable UK shape; still offer the raw digit form.
		add(digits)
		return out
	}

	add("+44" + national)
	add("44" + national)
	add("0" + national)
	add(national)
	add(digits)
	return out
}

// IsClientIdentifier reports whether a webhook From value is a provider
// call-client identity (an agent softphone) rather than a PSTN number.
// Twilio prefixes browser/app clients with "client:".
func IsClientIdentifier(from string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(from)), "client:")
}

// Mask masks a phone number for logging
// Example: +447738585850 -> +4477•••••5850
func Mask(phone string) string {
	if phone == "" {
		return ""
	}
	phone = strings.TrimSpace(phone)

	re := regexp.MustCompile(`^(\+)(\d{2,3})(\d{2})(\d+)$`)
	matches := re.FindStringSubmatch(phone)
	if len(matches) == 5 {
		rest := matches[4]
		if len(rest) >= 4 {
			last4 := rest[len(rest)-4:]
			return "+" + matches[2] + matches[3] + strings.Repeat("•", len(rest)-4) + last4
		}
	}

	if len(phone) > 4 {
		return strings.Repeat("•", len(phone)-4) + phone[len(phone)-4:]
	}
	return strings.Repeat("•", len(phone))
}
