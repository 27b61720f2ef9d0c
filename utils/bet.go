package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseBet turns a user-supplied amount string into coins. Supports "all",
// "half", percentages, and k/m suffixes against the user's current balance.
func ParseBet(betStr string, balance int64) (int64, error) {
	betStr = strings.TrimSpace(strings.ToLower(betStr))
	betStr = strings.ReplaceAll(betStr, ",", "")
	betStr = strings.ReplaceAll(betStr, "_", "")

	switch betStr {
	case "all", "allin", "max":
		return balance, nil
	case "half":
		return balance / 2, nil
	}

	if strings.HasSuffix(betStr, "%") {
		percent, err := strconv.ParseFloat(strings.TrimSuffix(betStr, "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid percentage: %s", betStr)
		}
		if percent < 0 || percent > 100 {
			return 0, fmt.Errorf("percentage must be between 0 and 100")
		}
		return int64(float64(balance) * percent / 100), nil
	}

	multiplier := int64(1)
	if strings.HasSuffix(betStr, "k") {
		multiplier = 1_000
		betStr = strings.TrimSuffix(betStr, "k")
	} else if strings.HasSuffix(betStr, "m") {
		multiplier = 1_000_000
		betStr = strings.TrimSuffix(betStr, "m")
	}

	bet, err := strconv.ParseInt(betStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount: %s", betStr)
	}
	return bet * multiplier, nil
}

// FormatCoins renders an amount with thousands separators.
func FormatCoins(amount int64) string {
	s := strconv.FormatInt(amount, 10)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
