// Package classifier maps user display names to cohorts with a
// prioritized pattern list. Classification is pure: the same name
// always yields the same cohort, which keeps cohort analytics
// reproducible across runs.
package classifier

import (
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

// Rule binds a cohort to a set of case-insensitive patterns matched
// against the lowercased display name
type Rule struct {
	Cohort   types.Cohort
	Patterns []string
}

// Contractor surname and given-name heuristics. These are benchmark
// defaults; deployments override them through configuration.
var defaultContractorPatterns = []string{
	`\b(kumar|singh|sharma|gupta|das|dey|mondal|jana|khan|bhattacharya|bhattacharyya|` +
		`rakshit|sarkar|haldar|kundu|bagdi|ball|paul|ghosh|padhi|bari|ojha|adarsh|anup|` +
		`banerjee|maity|pradhan|darboe|sobchuk|ricci|berg|moreno)\b`,
	`^(amit|ratul|sayon|swarup|arpan|somnath|sujan|ashok|soumyajit|aush|riju|abinash|` +
		`dipak|nasirul|sandeep|souvik|raysa|arup|manas|vikram|soudip|mamata|pritam|shahrukh)$`,
}

var defaultInternalPatterns = []string{
	`\b(wright|goyco|sanchez|stern|beckerman|smith|johnson|williams|brown|jones|` +
		`miller|davis|garcia|rodriguez|wilson|martinez|anderson|taylor|thomas|moore)\b`,
	`^(corey|xavier|kevin|remy|david|michael|john|james|robert|william|richard|` +
		`joseph|thomas|charles|christopher|daniel|matthew|anthony|donald|mark)\b`,
}

// DefaultRules returns the built-in rule set. Contractor rules come
// first; order decides precedence.
func DefaultRules() []Rule {
	return []Rule{
		{Cohort: types.CohortContractor, Patterns: defaultContractorPatterns},
		{Cohort: types.CohortInternal, Patterns: defaultInternalPatterns},
	}
}

type compiledRule struct {
	cohort   types.Cohort
	patterns []*regexp.Regexp
}

// Classifier evaluates rules in order; the first matching pattern
// wins and no match yields CohortUnknown
type Classifier struct {
	rules []compiledRule
}

// New compiles the rule set once. Rules keep their given order.
func New(rules []Rule) (*Classifier, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		cr := compiledRule{cohort: rule.Cohort}
		for _, pattern := range rule.Patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, goerr.Wrap(err, "invalid classifier pattern",
					goerr.V("cohort", rule.Cohort), goerr.V("pattern", pattern))
			}
			cr.patterns = append(cr.patterns, re)
		}
		compiled = append(compiled, cr)
	}
	return &Classifier{rules: compiled}, nil
}

// Default returns a classifier with the built-in rules
func Default() *Classifier {
	c, err := New(DefaultRules())
	if err != nil {
		// Built-in patterns are constants; a compile failure is a bug
		panic(err)
	}
	return c
}

// Classify returns the cohort for a display name
func (c *Classifier) Classify(displayName string) types.Cohort {
	name := strings.ToLower(strings.TrimSpace(displayName))
	if name == "" {
		return types.CohortUnknown
	}

	for _, rule := range c.rules {
		for _, re := range rule.patterns {
			if re.MatchString(name) {
				return rule.cohort
			}
		}
	}
	return types.CohortUnknown
}
