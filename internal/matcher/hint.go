package matcher

import (
	"strings"

	"rent-reconciliation-service/internal/models"

	"github.com/agnivade/levenshtein"
)

// ClosestMerchant returns the distinct merchant text nearest to the manager
// name by edit distance, for diagnostics when no deposit matched. It never
// affects which rows match.
func ClosestMerchant(manager string, txns []models.BankTransaction, maxDistance int) (string, int, bool) {
	target := strings.ToLower(strings.TrimSpace(manager))
	if target == "" || maxDistance <= 0 {
		return "", 0, false
	}

	best, bestDist := "", -1
	seen := make(map[string]bool)
	for i := range txns {
		merchant := strings.TrimSpace(txns[i].Merchant)
		key := strings.ToLower(merchant)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		d := levenshtein.ComputeDistance(target, key)
		if bestDist < 0 || d < bestDist {
			best, bestDist = merchant, d
		}
	}

	if bestDist < 0 || bestDist > maxDistance {
		return "", 0, false
	}
	return best, bestDist, true
}
