package domain

import "strings"

// NormalizeRecoveryCode canonicalizes user input before hashing. Digits
// that look like base32 letters are mapped to those letters.
func NormalizeRecoveryCode(code string) string {
	code = strings.TrimSpace(code)
	code = strings.ReplaceAll(code, " ", "")
	code = strings.ReplaceAll(code, "0", "O")
	code = strings.ReplaceAll(code, "1", "I")
	return strings.ToUpper(code)
}

// SplitRecoveryCode formats a recovery code in space separated blocks.
func SplitRecoveryCode(code string, blockSize int) string {
	if blockSize <= 0 {
		blockSize = 4
	}
	blocks := make([]string, 0, (len(code)+blockSize-1)/blockSize)
	for start := 0; start < len(code); start += blockSize {
		end := min(start+blockSize, len(code))
		blocks = append(blocks, code[start:end])
	}
	return strings.Join(blocks, " ")
}
