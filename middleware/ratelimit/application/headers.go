package application

import (
	"strconv"
	"strings"

	"account-gateway/middleware/ratelimit/domain"
)

// PolicyString monta o valor de X-Rate-Limit-Account: maxHits:window:timeout por tier.
func PolicyString(tiers domain.Tiers) string {
	return tiers.String()
}

// StateString monta o valor de X-Rate-Limit-Account-State: hits:window:retryAfter por tier.
func StateString(tiers domain.Tiers, states []domain.TierState) string {
	var b strings.Builder
	for i, t := range tiers {
		if i > 0 {
			b.WriteByte(',')
		}
		var st domain.TierState
		if i < len(states) {
			st = states[i]
		}
		b.WriteString(strconv.Itoa(st.Hits))
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(int64(t.Window.Seconds()), 10))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(st.RetryAfter))
	}
	return b.String()
}
