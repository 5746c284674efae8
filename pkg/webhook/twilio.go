package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
)

// VerifyTwilioSignature verifies the X-Twilio-Signature header.
// Twilio signs the full request URL with every POST parameter appended in
// lexical key order, HMAC-SHA1 with the auth token, base64 encoded.
// If authToken is empty, verification is skipped (for development/testing).
func VerifyTwilioSignature(authToken, requestURL string, formValues url.Values, signature string) error {
	if authToken == "" {
		return nil
	}

	if signature == "" {
		return fmt.Errorf("signature header missing")
	}

	keys := make([]string, 0, len(formValues))
	for k := range formValues {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	payload := requestURL
	for _, k := range keys {
		for _, v := range formValues[k] {
			payload += k + v
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("invalid signature")
	}

	return nil
}
