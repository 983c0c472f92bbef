package llm

import "strings"

// quotaMarkers flag billing and rate limit failures that a retry cannot fix
var quotaMarkers = []string{"quota", "429", "insufficient_quota"}

var lmStudioErrorPrefix = "Error calling " + DisplayName(ProviderLMStudio)

// IsFallbackEligible reports whether a provider failure should be replaced by
// the fallback reply instead of being shown to the user.
func IsFallbackEligible(errText string) bool {
	lower := strings.ToLower(errText)
	for _, marker := range quotaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	// local server failures always degrade, there is no billing state to fix
	return strings.HasPrefix(errText, lmStudioErrorPrefix)
}
