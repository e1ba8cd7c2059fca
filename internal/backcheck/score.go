package backcheck

import (
	"strings"

	"github.com/veranda-hq/applyflow/internal/model"
)

// negativePressKeywords mark a press mention as adverse for scoring.
var negativePressKeywords = []string{
	"lawsuit",
	"fraud",
	"eviction",
	"arrest",
	"arrested",
	"convicted",
	"scam",
	"bankruptcy",
	"charged",
}

// Score maps findings to a risk tier:
//
//	high:   a legal appearance plus adverse press coverage
//	medium: any legal record
//	low:    social profiles only
//	clear:  nothing of note
func Score(f model.SearchFindings) (model.RiskLevel, string) {
	hasLegal := len(f.LegalAppearances) > 0
	if hasLegal && hasNegativePress(f.PressMentions) {
		return model.RiskHigh, "legal appearance with adverse press coverage"
	}
	if hasLegal {
		return model.RiskMedium, "legal record on file"
	}
	if len(f.SocialMediaProfiles) > 0 &&
		len(f.PressMentions) == 0 &&
		len(f.CompanyRegistrations) == 0 {
		return model.RiskLow, "social media presence only"
	}
	return model.RiskClear, ""
}

func hasNegativePress(mentions []string) bool {
	for _, m := range mentions {
		lower := strings.ToLower(m)
		for _, kw := range negativePressKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}
