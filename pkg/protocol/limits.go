package protocol

// Limits guard the decoder against hostile or broken guests. They
// complement the Receiver's backpressure cap, which bounds how much of
// a well-formed batch is applied.
const (
	// MaxValueDepth limits nesting of prop value trees. Deeper trees
	// fail decoding rather than risking stack exhaustion.
	MaxValueDepth = 64

	// MaxOpsPerBatch limits the operation count accepted by the
	// decoder in a single batch.
	MaxOpsPerBatch = 100_000

	// MaxChildIDs limits the child list accepted for a REORDER.
	MaxChildIDs = 65_536
)
