package store

// SortOrder represents the sort direction.
type SortOrder int

const (
	// SortAsc sorts in ascending order.
	SortAsc SortOrder = 1
	// SortDesc sorts in descending order.
	SortDesc SortOrder = -1
)

// String returns "asc" or "desc".
func (o SortOrder) String() string {
	if o == SortDesc {
		return "desc"
	}
	return "asc"
}

// ListOptions configures paged listings.
// A zero Limit means no limit.
type ListOptions struct {
	Limit  int
	Offset int
}

// ReportStatus filters reports by lifecycle state.
type ReportStatus int

const (
	// ReportStatusAny matches open and closed reports.
	ReportStatusAny ReportStatus = iota
	// ReportStatusOpen matches reports that have not been closed.
	ReportStatusOpen
	// ReportStatusClosed matches closed reports.
	ReportStatusClosed
)

// Matches reports whether a report with the given closed flag passes the filter.
func (s ReportStatus) Matches(closed bool) bool {
	switch s {
	case ReportStatusOpen:
		return !closed
	case ReportStatusClosed:
		return closed
	default:
		return true
	}
}

// TopicFlags carries optional flag updates for a topic. Nil fields are left unchanged.
type TopicFlags struct {
	Sticky *bool
	Locked *bool
}

// MessageUpdate holds the mutable parts of a message.
type MessageUpdate struct {
	Subject    string
	Body       string
	ModifiedBy string
}
