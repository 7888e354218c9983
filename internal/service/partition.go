package service

// DefaultBatchSize keeps one batch inside an acceptable wall-clock window
// for the Keepa call budget (2500 identifiers / 21 batches ≈ 119).
const DefaultBatchSize = 119

// SplitUPCs splits an ordered, deduplicated UPC snapshot into contiguous,
// non-overlapping batches of at most batchSize codes. Deterministic for a
// given snapshot and size, so job creation is reproducible. Empty input
// yields zero batches.
func SplitUPCs(upcs []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var batches [][]string
	for i := 0; i < len(upcs); i += batchSize {
		end := i + batchSize
		if end > len(upcs) {
			end = len(upcs)
		}
		batches = append(batches, upcs[i:end])
	}
	return batches
}
