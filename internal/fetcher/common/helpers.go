// SPDX-License-Identifier: AGPL-3.0-only
package common

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var numberSeparators = strings.NewReplacer(
	" ", "",
	",", "",
	"\u00a0", "",
	"\u202f", "",
	"\u2009", "",
)

func StripNumberSeparators(s string) string {
	return numberSeparators.Replace(s)
}

func ParseInt(s string) int {
	n, _ := strconv.Atoi(StripNumberSeparators(s))
	return n
}
