package resolve

import "fmt"

// ResolutionError reports a cyclic sequence reference or an unresolvable
// cross-reference encountered while walking a channel's token stream.
type ResolutionError struct {
	Channel int
	Index   int
	Message string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve: channel %d token %d: %s", e.Channel, e.Index, e.Message)
}
