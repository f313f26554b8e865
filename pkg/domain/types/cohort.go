package types

// Cohort is a classifier-assigned grouping label for a synced user
type Cohort string

const (
	CohortContractor Cohort = "contractor"
	CohortInternal   Cohort = "internal"
	CohortUnknown    Cohort = "unknown"
)

// AllCohorts returns all cohort labels
func AllCohorts() []Cohort {
	return []Cohort{CohortContractor, CohortInternal, CohortUnknown}
}

// IsValid checks if the cohort label is valid
func (c Cohort) IsValid() bool {
	switch c {
	case CohortContractor, CohortInternal, CohortUnknown:
		return true
	default:
		return false
	}
}

// Label returns a human-readable label for the cohort
func (c Cohort) Label() string {
	switch c {
	case CohortContractor:
		return "Contractors"
	case CohortInternal:
		return "Internal Team"
	default:
		return "Unknown Team"
	}
}

// String returns the string representation of the cohort
func (c Cohort) String() string {
	return string(c)
}
