// Package sqlutil contains helpers for handling raw SQL and CQL step bodies.
package sqlutil

import (
	"strings"
)

// StripComments removes line (--, //) and block (/* */) comments from a script.
// Comment markers inside quoted strings and dollar-quoted bodies are preserved.
func StripComments(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))

	s := scanner{src: sql}
	for !s.done() {
		switch {
		case s.startsLineComment():
			s.skipLine()
		case s.hasPrefix("/*"):
			s.skipBlockComment()
		case s.startsQuoted():
			b.WriteString(s.readQuoted())
		default:
			b.WriteByte(s.next())
		}
	}
	return b.String()
}

// SplitSQLStatements splits a script into individual statements on semicolons
// that are not inside quoted strings, dollar-quoted bodies or comments.
// Empty statements are dropped and the trailing semicolon is not included.
func SplitSQLStatements(sql string) []string {
	var (
		statements []string
		current    strings.Builder
	)

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	s := scanner{src: sql}
	for !s.done() {
		switch {
		case s.startsLineComment():
			start := s.pos
			s.skipLine()
			current.WriteString(sql[start:s.pos])
		case s.hasPrefix("/*"):
			start := s.pos
			s.skipBlockComment()
			current.WriteString(sql[start:s.pos])
		case s.startsQuoted():
			current.WriteString(s.readQuoted())
		case s.peek() == ';':
			s.next()
			flush()
		default:
			current.WriteByte(s.next())
		}
	}
	flush()

	return statements
}

type scanner struct {
	src string
	pos int
}

func (s *scanner) done() bool { return s.pos >= len(s.src) }

func (s *scanner) peek() byte { return s.src[s.pos] }

func (s *scanner) next() byte {
	c := s.src[s.pos]
	s.pos++
	return c
}

func (s *scanner) hasPrefix(p string) bool {
	return strings.HasPrefix(s.src[s.pos:], p)
}

func (s *scanner) startsLineComment() bool {
	return s.hasPrefix("--") || s.hasPrefix("//")
}

func (s *scanner) skipLine() {
	if idx := strings.IndexByte(s.src[s.pos:], '\n'); idx >= 0 {
		s.pos += idx
		return
	}
	s.pos = len(s.src)
}

func (s *scanner) skipBlockComment() {
	if idx := strings.Index(s.src[s.pos+2:], "*/"); idx >= 0 {
		s.pos += idx + 4
		return
	}
	s.pos = len(s.src)
}

func (s *scanner) startsQuoted() bool {
	switch s.peek() {
	case '\'', '"', '`':
		return true
	case '$':
		_, ok := s.dollarTag()
		return ok
	}
	return false
}

// dollarTag returns the opening tag ($$ or $name$) at the current position.
func (s *scanner) dollarTag() (string, bool) {
	rest := s.src[s.pos:]
	end := strings.IndexByte(rest[1:], '$')
	if end < 0 {
		return "", false
	}
	tag := rest[:end+2]
	for _, r := range tag[1 : len(tag)-1] {
		if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", false
		}
	}
	return tag, true
}

// readQuoted consumes a quoted literal or identifier, honouring doubled quotes.
func (s *scanner) readQuoted() string {
	start := s.pos
	if s.peek() == '$' {
		tag, _ := s.dollarTag()
		s.pos += len(tag)
		if idx := strings.Index(s.src[s.pos:], tag); idx >= 0 {
			s.pos += idx + len(tag)
		} else {
			s.pos = len(s.src)
		}
		return s.src[start:s.pos]
	}

	quote := s.next()
	for !s.done() {
		if s.next() == quote {
			if !s.done() && s.peek() == quote {
				s.next()
				continue
			}
			break
		}
	}
	return s.src[start:s.pos]
}
