package ioengine

import "github.com/NaturalIO/io-engine/internal/constants"

// Re-exported defaults for public API consumers.
const (
	DefaultQueueDepth       = constants.DefaultQueueDepth
	MinAlign                = constants.MinAlign
	DefaultMergeSizeLimit   = constants.DefaultMergeSizeLimit
	DefaultWorkerPoolSize   = constants.DefaultWorkerPoolSize
	DefaultWorkerQueueDepth = constants.DefaultWorkerQueueDepth
)
