package types

// Trend is the direction of a metric between two adjacent buckets
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// String returns the string representation of the trend
func (t Trend) String() string {
	return string(t)
}
