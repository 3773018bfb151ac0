// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rdfparse

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/AleutianAI/ttlprefls/services/ttlpref/vocab"
)

// scanStringLiterals walks Turtle text and records, per unescaped value,
// the document-order sequence of string literals that the decoder types as
// xsd:string. Each entry is true when the literal carried an explicit
// ^^xsd:string annotation. Language-tagged literals and literals with any
// other datatype are skipped. Comments and IRIs are stepped over so quotes
// inside them are not mistaken for strings.
func scanStringLiterals(text string, prefixes map[string]string) map[string][]bool {
	out := make(map[string][]bool)
	for i := 0; i < len(text); {
		switch text[i] {
		case '#':
			j := strings.IndexByte(text[i:], '\n')
			if j < 0 {
				return out
			}
			i += j + 1
		case '<':
			j := strings.IndexByte(text[i+1:], '>')
			if j < 0 {
				return out
			}
			i += j + 2
		case '"', '\'':
			raw, end, ok := readQuoted(text, i)
			if !ok {
				return out
			}
			value := unescapeLiteral(raw)

			i = skipSpace(text, end)
			switch {
			case strings.HasPrefix(text[i:], "@"):
				// Language tag; the tag itself is plain word characters.
			case strings.HasPrefix(text[i:], "^^"):
				dt, n := readDatatype(text[i+2:], prefixes)
				i += 2 + n
				if dt == vocab.XsdString {
					out[value] = append(out[value], true)
				}
			default:
				out[value] = append(out[value], false)
			}
		default:
			i++
		}
	}
	return out
}

// markExplicitStrings sets ExplicitType on xsd:string literal objects whose
// source form spelled the datatype out. Literals are matched to the scan by
// value in document order.
func markExplicitStrings(triples []Triple, seen map[string][]bool) {
	for i := range triples {
		obj := &triples[i].Object
		if obj.Kind != TermLiteral || obj.Datatype != vocab.XsdString {
			continue
		}
		queue := seen[obj.Value]
		if len(queue) == 0 {
			continue
		}
		obj.ExplicitType = queue[0]
		seen[obj.Value] = queue[1:]
	}
}

// readQuoted reads the string literal starting at text[start], which holds
// a quote character. It returns the raw body, the offset just past the
// closing delimiter and whether the literal was terminated.
func readQuoted(text string, start int) (raw string, end int, ok bool) {
	q := text[start]
	long := strings.Repeat(string(q), 3)

	if strings.HasPrefix(text[start:], long) {
		body := start + 3
		for i := body; i < len(text); i++ {
			switch {
			case text[i] == '\\':
				i++
			case strings.HasPrefix(text[i:], long):
				// """a"""" ends on the last three quotes.
				for i+3 < len(text) && text[i+3] == q {
					i++
				}
				return text[body:i], i + 3, true
			}
		}
		return "", len(text), false
	}

	for i := start + 1; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case q:
			return text[start+1 : i], i + 1, true
		case '\n':
			return "", i, false
		}
	}
	return "", len(text), false
}

// readDatatype reads the datatype following ^^ and returns its expanded
// IRI together with the number of bytes consumed.
func readDatatype(s string, prefixes map[string]string) (iri string, n int) {
	if strings.HasPrefix(s, "<") {
		j := strings.IndexByte(s, '>')
		if j < 0 {
			return "", len(s)
		}
		return s[1:j], j + 1
	}

	end := strings.IndexAny(s, " \t\r\n;,)]")
	if end < 0 {
		end = len(s)
	}
	name := strings.TrimRight(s[:end], ".")
	prefix, local, ok := strings.Cut(name, ":")
	if !ok {
		return "", len(name)
	}
	ns, ok := prefixes[prefix]
	if !ok {
		return "", len(name)
	}
	return ns + local, len(name)
}

func skipSpace(text string, i int) int {
	for i < len(text) && strings.IndexByte(" \t\r\n", text[i]) >= 0 {
		i++
	}
	return i
}

// unescapeLiteral applies the Turtle string escapes. Unknown escapes are
// kept verbatim.
func unescapeLiteral(raw string) string {
	if !strings.Contains(raw, `\`) {
		return raw
	}

	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 == len(raw) {
			b.WriteByte(c)
			continue
		}
		i++
		switch e := raw[i]; e {
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'f':
			b.WriteByte('\f')
		case '"', '\'', '\\':
			b.WriteByte(e)
		case 'u', 'U':
			width := 4
			if e == 'U' {
				width = 8
			}
			if i+1+width > len(raw) {
				b.WriteByte('\\')
				b.WriteByte(e)
				continue
			}
			r, err := strconv.ParseUint(raw[i+1:i+1+width], 16, 32)
			if err != nil || !utf8.ValidRune(rune(r)) {
				b.WriteByte('\\')
				b.WriteByte(e)
				continue
			}
			b.WriteRune(rune(r))
			i += width
		default:
			b.WriteByte('\\')
			b.WriteByte(e)
		}
	}
	return b.String()
}
