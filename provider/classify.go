package provider

import "regexp"

// retryableErrorPattern matches the rate-limit shape spec.md §7's retry
// policy names: an HTTP 429 status or a body containing "rate limit" or
// "too many requests". Vendor SDK errors stringify the status code and
// response body into Error(), so matching against the message text works
// across anthropic-sdk-go, openai-go and google.golang.org/genai without
// depending on each SDK's internal error struct shape.
var retryableErrorPattern = regexp.MustCompile(`(?i)\b429\b|rate.?limit|too many requests`)

// ClassifyRetryable wraps err in WrapRetryable when its message matches
// retryableErrorPattern, so Retrying's backoff loop actually engages for
// real vendor throttling instead of treating every upstream error as
// permanent. Vendor clients call this around every Generate/GenerateStream
// error before returning it.
func ClassifyRetryable(err error) error {
	if err == nil {
		return nil
	}
	if retryableErrorPattern.MatchString(err.Error()) {
		return WrapRetryable(err)
	}
	return err
}
