package dispatch

// StartIndex returns the position to resume from: one past the first
// occurrence of lastEmail, or 0 when lastEmail is empty or no longer listed.
func StartIndex(list []string, lastEmail string) int {
	if lastEmail == "" {
		return 0
	}
	for i, e := range list {
		if e == lastEmail {
			return i + 1
		}
	}
	return 0
}

// Batches splits list into consecutive chunks of at most size addresses.
// The chunks share list's backing array.
func Batches(list []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([][]string, 0, (len(list)+size-1)/size)
	for i := 0; i < len(list); i += size {
		end := min(i+size, len(list))
		out = append(out, list[i:end:end])
	}
	return out
}
