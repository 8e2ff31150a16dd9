package statement

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the leading verb of a statement.
type Kind int

const (
	// KindOther covers DDL, PRAGMA and anything unrecognised.
	KindOther Kind = iota
	KindSelect
	KindUpdate
	KindInsert
	KindDelete
)

// String returns the SQL keyword for the kind.
func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "SELECT"
	case KindUpdate:
		return "UPDATE"
	case KindInsert:
		return "INSERT"
	case KindDelete:
		return "DELETE"
	default:
		return "OTHER"
	}
}

// Style is the placeholder convention a statement uses.
type Style string

const (
	StyleNone Style = ""
	// StyleQMark is anonymous ? placeholders, one parameter per occurrence.
	StyleQMark Style = "qmark"
	// StyleNumeric is $N, ?N and :N; repeated numbers share one parameter.
	StyleNumeric Style = "numeric"
	// StyleNamed is :name and @name; repeated names share one parameter.
	StyleNamed Style = "named"
)

// Descriptor is the parsed shape of one SQL statement.
type Descriptor struct {
	Text         string
	Kind         Kind
	Placeholders int
	Style        Style

	// NestedWrite is the first data-modifying verb found inside a WITH
	// clause other than the statement's own verb, or KindOther.
	NestedWrite Kind
}

// ParseError reports malformed statement text.
type ParseError struct {
	Offset  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at offset %d", e.Message, e.Offset)
}

// Expect checks the descriptor against the required kind and placeholder count.
func (d Descriptor) Expect(kind Kind, placeholders int) error {
	if d.Kind != kind {
		return fmt.Errorf("expected %s statement, got %s", kind, d.Kind)
	}
	if kind == KindSelect && d.NestedWrite != KindOther {
		return fmt.Errorf("SELECT statement must not modify data, found nested %s", d.NestedWrite)
	}
	if d.Placeholders != placeholders {
		return fmt.Errorf("expected %d placeholder(s), found %d", placeholders, d.Placeholders)
	}
	return nil
}

// Parse lexes text as a single SQL statement. A trailing semicolon is allowed.
func Parse(text string) (Descriptor, error) {
	if strings.TrimSpace(text) == "" {
		return Descriptor{}, &ParseError{Message: "empty statement"}
	}
	l := &lexer{src: text, params: make(map[string]struct{})}
	if err := l.run(); err != nil {
		return Descriptor{}, err
	}
	if l.firstWord == "" {
		return Descriptor{}, &ParseError{Message: "statement has no keyword"}
	}
	if l.style == StyleNumeric && l.maxIndex != len(l.params) {
		return Descriptor{}, &ParseError{
			Offset:  l.maxOffset,
			Message: fmt.Sprintf("numbered placeholders must run from 1 without gaps, found index %d with %d distinct", l.maxIndex, len(l.params)),
		}
	}
	return Descriptor{
		Text:         text,
		Kind:         l.kind(),
		Placeholders: l.count(),
		Style:        l.style,
		NestedWrite:  l.nestedWrite,
	}, nil
}

var verbs = map[string]Kind{
	"SELECT": KindSelect,
	"UPDATE": KindUpdate,
	"INSERT": KindInsert,
	"DELETE": KindDelete,
}

type lexer struct {
	src      string
	pos      int
	depth    int
	brackets int

	firstWord   string
	prevWord    string
	cteVerb     string
	nestedWrite Kind
	ended       bool // a ';' was consumed

	style     Style
	anonymous int
	params    map[string]struct{}
	maxIndex  int
	maxOffset int
}

func (l *lexer) kind() Kind {
	word := l.firstWord
	if word == "WITH" {
		word = l.cteVerb
	}
	if k, ok := verbs[word]; ok {
		return k
	}
	return KindOther
}

func (l *lexer) count() int {
	if l.style == StyleQMark {
		return l.anonymous
	}
	return len(l.params)
}

func (l *lexer) errorf(format string, args ...any) error {
	return &ParseError{Offset: l.pos, Message: fmt.Sprintf(format, args...)}
}

func (l *lexer) peek(off int) byte {
	if l.pos+off < len(l.src) {
		return l.src[l.pos+off]
	}
	return 0
}

func (l *lexer) run() error {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case isSpace(c):
			l.pos++
			continue
		case c == '-' && l.peek(1) == '-':
			l.skipLineComment()
			continue
		case c == '/' && l.peek(1) == '*':
			if err := l.skipBlockComment(); err != nil {
				return err
			}
			continue
		}

		if l.ended {
			return l.errorf("multiple statements are not allowed")
		}

		var err error
		switch {
		case c == '\'':
			err = l.skipQuoted('\'', "string literal")
		case c == '"':
			err = l.skipQuoted('"', "quoted identifier")
		case c == '`':
			err = l.skipQuoted('`', "quoted identifier")
		case c == '$':
			err = l.dollar()
		case c == '?':
			err = l.question()
		case c == ':':
			err = l.colon()
		case c == '@':
			err = l.at()
		case c == '(':
			l.depth++
			l.pos++
		case c == ')':
			l.depth--
			if l.depth < 0 {
				return l.errorf("unbalanced parenthesis")
			}
			l.pos++
		case c == '[':
			l.brackets++
			l.pos++
		case c == ']':
			if l.brackets > 0 {
				l.brackets--
			}
			l.pos++
		case c == ';':
			l.ended = true
			l.pos++
		case isIdentStart(c):
			l.word()
		default:
			l.pos++
		}
		if err != nil {
			return err
		}
	}
	if l.depth != 0 {
		return l.errorf("unbalanced parenthesis")
	}
	return nil
}

func (l *lexer) skipLineComment() {
	for l.pos < len(l.src) && l.src[l.pos] != '\n' {
		l.pos++
	}
}

func (l *lexer) skipBlockComment() error {
	start := l.pos
	end := strings.Index(l.src[l.pos+2:], "*/")
	if end < 0 {
		l.pos = start
		return l.errorf("unterminated block comment")
	}
	l.pos += end + 4
	return nil
}

// skipQuoted consumes a quoted run where a doubled quote is an escape.
func (l *lexer) skipQuoted(q byte, what string) error {
	start := l.pos
	l.pos++
	for l.pos < len(l.src) {
		if l.src[l.pos] == q {
			if l.peek(1) == q {
				l.pos += 2
				continue
			}
			l.pos++
			return nil
		}
		l.pos++
	}
	l.pos = start
	return l.errorf("unterminated %s", what)
}

func (l *lexer) word() {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	w := strings.ToUpper(l.src[start:l.pos])
	prev := l.prevWord
	l.prevWord = w
	if l.firstWord == "" {
		l.firstWord = w
		return
	}
	if l.firstWord != "WITH" {
		return
	}
	k, ok := verbs[w]
	if !ok {
		return
	}
	if l.cteVerb == "" && l.depth == 0 {
		l.cteVerb = w
		return
	}
	// FOR UPDATE and FOR NO KEY UPDATE lock rows without writing them.
	if k == KindSelect || (k == KindUpdate && (prev == "FOR" || prev == "KEY")) {
		return
	}
	if l.nestedWrite == KindOther {
		l.nestedWrite = k
	}
}

func (l *lexer) dollar() error {
	next := l.peek(1)
	if isDigit(next) {
		l.pos++
		return l.addIndex()
	}
	// $$ or $tag$ opens a dollar-quoted body.
	tagEnd := l.pos + 1
	for tagEnd < len(l.src) && (isIdentStart(l.src[tagEnd]) || isDigit(l.src[tagEnd])) {
		tagEnd++
	}
	if tagEnd < len(l.src) && l.src[tagEnd] == '$' {
		tag := l.src[l.pos : tagEnd+1]
		body := strings.Index(l.src[tagEnd+1:], tag)
		if body < 0 {
			return l.errorf("unterminated dollar-quoted string")
		}
		l.pos = tagEnd + 1 + body + len(tag)
		return nil
	}
	if isIdentStart(next) {
		l.pos++
		return l.addParam(StyleNamed, "$"+l.ident())
	}
	l.pos++
	return nil
}

func (l *lexer) question() error {
	l.pos++
	if isDigit(l.peek(0)) {
		return l.addIndex()
	}
	if l.style != StyleNone && l.style != StyleQMark {
		return l.errorf("mixed placeholder styles: %s and %s", l.style, StyleQMark)
	}
	l.style = StyleQMark
	l.anonymous++
	return nil
}

func (l *lexer) colon() error {
	next := l.peek(1)
	switch {
	case next == ':':
		l.pos += 2
		return nil
	case l.brackets > 0:
		// Array slice bounds such as tags[1:2].
		l.pos++
		return nil
	case isDigit(next):
		l.pos++
		return l.addIndex()
	case isIdentStart(next):
		l.pos++
		return l.addParam(StyleNamed, ":"+strings.ToLower(l.ident()))
	}
	l.pos++
	return nil
}

func (l *lexer) at() error {
	next := l.peek(1)
	if next == '@' {
		l.pos += 2
		l.ident()
		return nil
	}
	if isIdentStart(next) {
		l.pos++
		return l.addParam(StyleNamed, "@"+strings.ToLower(l.ident()))
	}
	l.pos++
	return nil
}

func (l *lexer) addParam(style Style, key string) error {
	if l.style != StyleNone && l.style != style {
		return l.errorf("mixed placeholder styles: %s and %s", l.style, style)
	}
	l.style = style
	l.params[key] = struct{}{}
	return nil
}

// addIndex records a numbered placeholder whose digits start at pos.
func (l *lexer) addIndex() error {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	text := l.src[start:l.pos]
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 {
		l.pos = start
		return l.errorf("invalid placeholder index %q", text)
	}
	if n > l.maxIndex {
		l.maxIndex = n
		l.maxOffset = start
	}
	return l.addParam(StyleNumeric, strconv.Itoa(n))
}

func (l *lexer) ident() string {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	return l.src[start:l.pos]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '$'
}
