// decode.go - Token-IDs zurueck zu Text
package tokenizer

import "strings"

// Decode setzt ids wieder zu Text zusammen
// <pad>, <bos>, <eos> und Sprach-Tags entfallen, <nl> wird zum Zeilenumbruch,
// <ind> am Zeilenanfang zu je einem Tab. Tokens werden mit einem Leerzeichen
// getrennt.
func (v *Vocabulary) Decode(ids []int32) string {
	var sb strings.Builder
	lineStart, needSpace := true, false

	for _, id := range ids {
		switch id {
		case PadID, BOSID, EOSID:
			continue
		case NewlineID:
			sb.WriteByte('\n')
			lineStart, needSpace = true, false
			continue
		case IndentID:
			if lineStart {
				sb.WriteByte('\t')
			}
			continue
		}

		if id != UnkID && v.IsSpecial(id) {
			continue
		}

		if needSpace {
			sb.WriteByte(' ')
		}
		sb.WriteString(v.Token(id))
		lineStart, needSpace = false, true
	}

	return sb.String()
}
