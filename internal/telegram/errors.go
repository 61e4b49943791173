package telegram

import (
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type errKind int

const (
	errTransient errKind = iota
	errRateLimited
	errPermanent
)

// classify maps a Send error to the three-way taxonomy spec.md §4.9 uses:
// 429 → backoff-and-retry, 400/403 → discard, anything else → 5s-and-requeue.
func classify(err error) errKind {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		switch tgErr.Code {
		case 429:
			return errRateLimited
		case 400, 403:
			return errPermanent
		}
	}
	return errTransient
}

// retryAfterSeconds extracts Telegram's retry_after hint, defaulting to 1
// second if the error carries none (still produces a safe non-zero backoff).
func retryAfterSeconds(err error) int {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.ResponseParameters.RetryAfter > 0 {
		return tgErr.ResponseParameters.RetryAfter
	}
	return 1
}
