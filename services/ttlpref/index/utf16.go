// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"strings"
	"unicode/utf16"
)

// UTF16Column converts a byte offset within line to a UTF-16 column, the
// default LSP position encoding.
func UTF16Column(line string, byteOffset int) int {
	if byteOffset > len(line) {
		byteOffset = len(line)
	}
	col := 0
	for _, r := range line[:byteOffset] {
		col += runeUnits(r)
	}
	return col
}

// ByteOffset converts a UTF-16 column to a byte offset within line. Columns
// past the end of the line map to len(line).
func ByteOffset(line string, col int) int {
	units := 0
	for i, r := range line {
		if units >= col {
			return i
		}
		units += runeUnits(r)
	}
	return len(line)
}

func runeUnits(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

// SplitLines splits text on "\n", "\r\n" and "\r" the way editors number
// lines. A trailing newline yields a final empty line.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}
