package faults

import "fmt"

// PartialBatchError reports a merge whose sequential sub-batches stopped
// partway: earlier sub-batches are committed and stay applied, later ones
// were never attempted. Operators resume with the pending ids.
type PartialBatchError struct {
	Op                string
	Merged            []string
	Pending           []string
	LiaisonsRelocated int
	Err               error
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("%s: merge stopped after %d of %d duplicates (%d liaisons relocated): %v",
		e.Op, len(e.Merged), len(e.Merged)+len(e.Pending), e.LiaisonsRelocated, e.Err)
}

func (e *PartialBatchError) Unwrap() error {
	return e.Err
}
