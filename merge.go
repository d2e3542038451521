package ioengine

import "github.com/NaturalIO/io-engine/internal/merge"

// MergeSubmitter stages events for one (fd, action) pair and flushes them,
// either forwarded unchanged or coalesced into a master+children event.
// Not safe for concurrent use -- each instance is owned by one producer.
type MergeSubmitter = merge.Submitter

// NewMergeSubmitter creates a submitter for the given fd and action.
// A non-positive mergeSizeLimit selects DefaultMergeSizeLimit. sender is
// typically a Context's ingress handle.
func NewMergeSubmitter(fd int, sender merge.Sender, mergeSizeLimit int64, action Action) *MergeSubmitter {
	return merge.New(fd, sender, mergeSizeLimit, action)
}
