// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ttlpref

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/AleutianAI/ttlprefls/services/ttlpref/index"
)

// completionDelimiters end a completion token in addition to whitespace.
const completionDelimiters = `<>"'(){}[];,`

// lineAt returns line n of lines, or "" when out of range.
func lineAt(lines []string, n int) string {
	if n < 0 || n >= len(lines) {
		return ""
	}
	return lines[n]
}

// wordAt returns the contiguous alphanumeric token under the UTF-16
// column char, with its UTF-16 bounds.
func wordAt(line string, char int) (word string, start, end int, ok bool) {
	at := index.ByteOffset(line, char)
	if at >= len(line) {
		return "", 0, 0, false
	}
	if r, _ := utf8.DecodeRuneInString(line[at:]); !isWordRune(r) {
		return "", 0, 0, false
	}

	lo := at
	for lo > 0 {
		r, size := utf8.DecodeLastRuneInString(line[:lo])
		if !isWordRune(r) {
			break
		}
		lo -= size
	}
	hi := at
	for hi < len(line) {
		r, size := utf8.DecodeRuneInString(line[hi:])
		if !isWordRune(r) {
			break
		}
		hi += size
	}
	return line[lo:hi], index.UTF16Column(line, lo), index.UTF16Column(line, hi), true
}

// standaloneWordAt is wordAt restricted to a token delimited by
// whitespace or the line bounds and lying outside string literals, IRIs
// and comments. The "a" keyword is only recognized this way.
func standaloneWordAt(line string, char int) (word string, start, end int, ok bool) {
	word, start, end, ok = wordAt(line, char)
	if !ok {
		return "", 0, 0, false
	}
	lo, hi := index.ByteOffset(line, start), index.ByteOffset(line, end)
	if lo > 0 {
		if r, _ := utf8.DecodeLastRuneInString(line[:lo]); !unicode.IsSpace(r) {
			return "", 0, 0, false
		}
	}
	if hi < len(line) {
		if r, _ := utf8.DecodeRuneInString(line[hi:]); !unicode.IsSpace(r) {
			return "", 0, 0, false
		}
	}
	if !outsideLiterals(line, lo) {
		return "", 0, 0, false
	}
	return word, start, end, true
}

// outsideLiterals reports whether byte offset at of line is plain syntax,
// not inside a string literal, an IRI or a comment. Strings spanning lines
// are not tracked.
func outsideLiterals(line string, at int) bool {
	var quote byte
	for i := 0; i < at; i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '<':
			j := strings.IndexByte(line[i:], '>')
			if j < 0 || i+j >= at {
				return false
			}
			i += j
		case c == '#':
			return false
		}
	}
	return quote == 0
}

// completionToken returns the text between the nearest delimiter before
// the UTF-16 column char and char itself.
func completionToken(line string, char int) string {
	at := index.ByteOffset(line, char)
	lo := at
	for lo > 0 {
		r, size := utf8.DecodeLastRuneInString(line[:lo])
		if unicode.IsSpace(r) || strings.ContainsRune(completionDelimiters, r) {
			break
		}
		lo -= size
	}
	return line[lo:at]
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
