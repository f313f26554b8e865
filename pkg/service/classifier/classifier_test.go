package classifier_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"github.com/secmon-lab/flowlens/pkg/service/classifier"
)

func TestClassifyCohorts(t *testing.T) {
	c := classifier.Default()

	cases := map[string]types.Cohort{
		"Rohit Sharma":   types.CohortContractor,
		"Sandeep":        types.CohortContractor,
		"Anita Banerjee": types.CohortContractor,
		"John Smith":     types.CohortInternal,
		"Kevin Wright":   types.CohortInternal,
		"ZG Q":           types.CohortUnknown,
		"":               types.CohortUnknown,
		"  ":             types.CohortUnknown,
	}

	for name, want := range cases {
		gt.Value(t, c.Classify(name)).Equal(want)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := classifier.Default()

	first := c.Classify("Rohit Sharma")
	for i := 0; i < 100; i++ {
		gt.Value(t, c.Classify("Rohit Sharma")).Equal(first)
	}
}

func TestClassifyContractorRulesWinOverInternal(t *testing.T) {
	c := classifier.Default()

	// Matches both rule sets; contractor rules run first
	gt.Value(t, c.Classify("Thomas Sharma")).Equal(types.CohortContractor)
}

func TestClassifyIsCaseInsensitive(t *testing.T) {
	c := classifier.Default()

	gt.Value(t, c.Classify("ROHIT SHARMA")).Equal(types.CohortContractor)
	gt.Value(t, c.Classify("john smith")).Equal(types.CohortInternal)
}

func TestNewRejectsBadPattern(t *testing.T) {
	_, err := classifier.New([]classifier.Rule{
		{Cohort: types.CohortContractor, Patterns: []string{"("}},
	})
	gt.Error(t, err)
}

func TestCustomRules(t *testing.T) {
	c, err := classifier.New([]classifier.Rule{
		{Cohort: types.CohortContractor, Patterns: []string{`\(contractor\)$`}},
	})
	gt.NoError(t, err).Required()

	gt.Value(t, c.Classify("Pat Doe (contractor)")).Equal(types.CohortContractor)
	gt.Value(t, c.Classify("Pat Doe")).Equal(types.CohortUnknown)
}
