package enum

// LoadStatus is the terminal state of a detail load.
type LoadStatus string

const (
	LoadRendered LoadStatus = "rendered"
	LoadAborted  LoadStatus = "aborted"
	LoadFailed   LoadStatus = "failed"
)

func (t LoadStatus) String() string {
	return string(t)
}

type MutationType string

const (
	MutationMove   MutationType = "move"
	MutationDelete MutationType = "delete"
	MutationFlag   MutationType = "flag"
	MutationUnflag MutationType = "unflag"
	MutationRead   MutationType = "read"
	MutationUnread MutationType = "unread"
)

func (t MutationType) String() string {
	return string(t)
}
