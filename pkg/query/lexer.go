package query

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a token.
type TokenType int

// Token types.
const (
	TokenEOF TokenType = iota
	TokenKeyword
	TokenIdent
	TokenParam  // $1, $2, ...
	TokenNumber // 42, 3.14
	TokenString // 'text'
	TokenOperator
	TokenLParen
	TokenRParen
	TokenComma
	TokenDot
	TokenStar
	TokenSemicolon
)

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "end of statement"
	}
	return fmt.Sprintf("%q", t.Literal)
}

var keywords = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"INTO": true, "VALUES": true, "FROM": true, "WHERE": true, "AND": true, "OR": true,
	"SET": true, "ORDER": true, "GROUP": true, "BY": true, "ASC": true, "DESC": true,
	"LIMIT": true, "OFFSET": true, "RETURNING": true, "ON": true, "CONFLICT": true,
	"DO": true, "NOTHING": true, "AS": true, "NULL": true, "TRUE": true, "FALSE": true,
	"INTERVAL": true, "EXCLUDED": true, "NOT": true,
}

// Lexer splits statement text into tokens.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a lexer over input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize returns every token of input, ending with TokenEOF.
func Tokenize(input string) ([]Token, error) {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

// Next returns the next token.
func (l *Lexer) Next() (Token, error) {
	l.skipWhitespaceAndComments()
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}, nil
	}

	start := l.pos
	ch := l.input[l.pos]

	switch {
	case ch == '(':
		l.pos++
		return Token{Type: TokenLParen, Literal: "(", Pos: start}, nil
	case ch == ')':
		l.pos++
		return Token{Type: TokenRParen, Literal: ")", Pos: start}, nil
	case ch == ',':
		l.pos++
		return Token{Type: TokenComma, Literal: ",", Pos: start}, nil
	case ch == '.':
		l.pos++
		return Token{Type: TokenDot, Literal: ".", Pos: start}, nil
	case ch == '*':
		l.pos++
		return Token{Type: TokenStar, Literal: "*", Pos: start}, nil
	case ch == ';':
		l.pos++
		return Token{Type: TokenSemicolon, Literal: ";", Pos: start}, nil
	case ch == '=' || ch == '<' || ch == '>' || ch == '!' || ch == '-' || ch == '+':
		return l.readOperator()
	case ch == '$':
		return l.readParam()
	case ch == '\'':
		return l.readString()
	case ch == '"':
		return l.readQuotedIdent()
	case isDigit(ch):
		return l.readNumber(), nil
	case isIdentStart(ch):
		return l.readWord(), nil
	default:
		return Token{}, fmt.Errorf("unexpected character %q at position %d", ch, start)
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if unicode.IsSpace(rune(ch)) {
			l.pos++
			continue
		}
		// -- line comment
		if ch == '-' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '-' {
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
			continue
		}
		return
	}
}

func (l *Lexer) readOperator() (Token, error) {
	start := l.pos
	ch := l.input[l.pos]
	l.pos++
	if l.pos < len(l.input) {
		two := string(ch) + string(l.input[l.pos])
		switch two {
		case ">=", "<=", "<>", "!=":
			l.pos++
			return Token{Type: TokenOperator, Literal: two, Pos: start}, nil
		}
	}
	if ch == '!' {
		return Token{}, fmt.Errorf("unexpected character '!' at position %d", start)
	}
	return Token{Type: TokenOperator, Literal: string(ch), Pos: start}, nil
}

func (l *Lexer) readParam() (Token, error) {
	start := l.pos
	l.pos++
	digits := l.pos
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}
	if l.pos == digits {
		return Token{}, fmt.Errorf("parameter marker without index at position %d", start)
	}
	return Token{Type: TokenParam, Literal: l.input[digits:l.pos], Pos: start}, nil
}

func (l *Lexer) readString() (Token, error) {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\'' {
			// '' escapes a quote
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == '\'' {
				sb.WriteByte('\'')
				l.pos += 2
				continue
			}
			l.pos++
			return Token{Type: TokenString, Literal: sb.String(), Pos: start}, nil
		}
		sb.WriteByte(ch)
		l.pos++
	}
	return Token{}, fmt.Errorf("unterminated string literal at position %d", start)
}

func (l *Lexer) readQuotedIdent() (Token, error) {
	start := l.pos
	l.pos++
	end := strings.IndexByte(l.input[l.pos:], '"')
	if end < 0 {
		return Token{}, fmt.Errorf("unterminated quoted identifier at position %d", start)
	}
	lit := l.input[l.pos : l.pos+end]
	l.pos += end + 1
	return Token{Type: TokenIdent, Literal: lit, Pos: start}, nil
}

func (l *Lexer) readNumber() Token {
	start := l.pos
	for l.pos < len(l.input) && (isDigit(l.input[l.pos]) || l.input[l.pos] == '.') {
		l.pos++
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: start}
}

func (l *Lexer) readWord() Token {
	start := l.pos
	for l.pos < len(l.input) && (isIdentStart(l.input[l.pos]) || isDigit(l.input[l.pos])) {
		l.pos++
	}
	word := l.input[start:l.pos]
	upper := strings.ToUpper(word)
	if keywords[upper] {
		return Token{Type: TokenKeyword, Literal: upper, Pos: start}
	}
	// unquoted identifiers fold to lower case; quoted ones keep theirs
	return Token{Type: TokenIdent, Literal: strings.ToLower(word), Pos: start}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}
