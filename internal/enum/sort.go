package enum

type SortOrder string

const (
	SortDateDesc    SortOrder = "date_desc"
	SortDateAsc     SortOrder = "date_asc"
	SortSubjectAsc  SortOrder = "subject_asc"
	SortSubjectDesc SortOrder = "subject_desc"
	SortFromAsc     SortOrder = "from_asc"
)

func (t SortOrder) String() string {
	return string(t)
}

// ByDate reports whether the order can be served by the date range index.
func (t SortOrder) ByDate() bool {
	return t == SortDateDesc || t == SortDateAsc || t == ""
}
