package jobs

import (
	"fmt"

	"github.com/marmos91/dittocdn/pkg/cdn"
)

// RedirectRules returns Apache "Redirect" lines sending the old local paths
// of successful imports to their new location, on cdnHost when set.
// External sources get no rule. withStatus adds an explicit 302.
func RedirectRules(results []Item, cdnHost string, withStatus bool) []string {
	var rules []string
	for _, it := range results {
		if it.Outcome != cdn.OutcomeOK || schemeRe.MatchString(it.Path) {
			continue
		}
		dst := "/" + it.Target
		if cdnHost != "" {
			dst = "http://" + cdnHost + "/" + it.Target
		}
		status := ""
		if withStatus {
			status = "302 "
		}
		rules = append(rules, fmt.Sprintf("Redirect %s/%s %s", status, it.Path, dst))
	}
	return rules
}
