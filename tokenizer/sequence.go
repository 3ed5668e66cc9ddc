// sequence.go - TokenSequence und Batch-Padding
package tokenizer

// TokenSequence ist eine Folge von Token-IDs mit ihrer wahren Laenge
// In gepaddeten Batches ist len(IDs) >= Length.
type TokenSequence struct {
	IDs    []int32
	Length int
}

// Tokens gibt die IDs ohne Padding zurueck
func (s TokenSequence) Tokens() []int32 {
	return s.IDs[:s.Length]
}

// PadBatch fuellt alle Sequenzen mit <pad> auf die Laenge der laengsten auf
// mask ist true fuer echte Tokens und false fuer Padding.
func PadBatch(seqs []TokenSequence) (ids [][]int32, mask [][]bool) {
	var width int
	for _, s := range seqs {
		width = max(width, s.Length)
	}

	ids = make([][]int32, len(seqs))
	mask = make([][]bool, len(seqs))
	for i, s := range seqs {
		ids[i] = make([]int32, width)
		mask[i] = make([]bool, width)
		for j := range width {
			if j < s.Length {
				ids[i][j] = s.IDs[j]
				mask[i][j] = true
			} else {
				ids[i][j] = PadID
			}
		}
	}

	return ids, mask
}

// Unpad schneidet gepaddete Zeilen anhand der Maske wieder zu
func Unpad(ids [][]int32, mask [][]bool) []TokenSequence {
	out := make([]TokenSequence, len(ids))
	for i := range ids {
		n := 0
		for n < len(mask[i]) && mask[i][n] {
			n++
		}
		out[i] = TokenSequence{IDs: ids[i][:n], Length: n}
	}
	return out
}
