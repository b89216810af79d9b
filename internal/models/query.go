package models

// Report list paging bounds.
const (
	DefaultReportLimit = 50
	MaxReportLimit     = 200
)

// ReportQuery filters the moderator report list. Nil fields are not applied.
type ReportQuery struct {
	Status   *Status
	Category *Category
	Limit    int
	Offset   int
}

// Normalize applies paging defaults and clamps out-of-range values.
func (q *ReportQuery) Normalize() {
	if q.Limit <= 0 {
		q.Limit = DefaultReportLimit
	}
	if q.Limit > MaxReportLimit {
		q.Limit = MaxReportLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}
