package query

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// TestTokenize tests token boundaries for the dialect.
func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
	}{
		{
			name:  "Predicate",
			input: "WHERE created_at >= $12",
			expected: []Token{
				{Type: TokenKeyword, Literal: "WHERE"},
				{Type: TokenIdent, Literal: "created_at"},
				{Type: TokenOperator, Literal: ">="},
				{Type: TokenParam, Literal: "12"},
				{Type: TokenEOF},
			},
		},
		{
			name:  "LiteralsAndInterval",
			input: "('Gym Membership', 50.00, NOW() - INTERVAL '45 days', false)",
			expected: []Token{
				{Type: TokenLParen, Literal: "("},
				{Type: TokenString, Literal: "Gym Membership"},
				{Type: TokenComma, Literal: ","},
				{Type: TokenNumber, Literal: "50.00"},
				{Type: TokenComma, Literal: ","},
				{Type: TokenIdent, Literal: "now"},
				{Type: TokenLParen, Literal: "("},
				{Type: TokenRParen, Literal: ")"},
				{Type: TokenOperator, Literal: "-"},
				{Type: TokenKeyword, Literal: "INTERVAL"},
				{Type: TokenString, Literal: "45 days"},
				{Type: TokenComma, Literal: ","},
				{Type: TokenKeyword, Literal: "FALSE"},
				{Type: TokenRParen, Literal: ")"},
				{Type: TokenEOF},
			},
		},
		{
			name:  "EscapedQuoteAndComment",
			input: "'it''s' -- trailing comment\n*",
			expected: []Token{
				{Type: TokenString, Literal: "it's"},
				{Type: TokenStar, Literal: "*"},
				{Type: TokenEOF},
			},
		},
		{
			name:  "IdentifierFolding",
			input: `Name, "Mixed" FROM Users`,
			expected: []Token{
				{Type: TokenIdent, Literal: "name"},
				{Type: TokenComma, Literal: ","},
				{Type: TokenIdent, Literal: "Mixed"},
				{Type: TokenKeyword, Literal: "FROM"},
				{Type: TokenIdent, Literal: "users"},
				{Type: TokenEOF},
			},
		},
		{
			name:  "QualifiedExcluded",
			input: "excluded.password_hash;",
			expected: []Token{
				{Type: TokenKeyword, Literal: "EXCLUDED"},
				{Type: TokenDot, Literal: "."},
				{Type: TokenIdent, Literal: "password_hash"},
				{Type: TokenSemicolon, Literal: ";"},
				{Type: TokenEOF},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Tokenize(tt.input)
			if err != nil {
				t.Fatalf("Tokenize() error = %v", err)
			}
			if diff := cmp.Diff(tt.expected, tokens, cmpopts.IgnoreFields(Token{}, "Pos")); diff != "" {
				t.Errorf("Tokenize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestTokenize_Errors tests malformed input.
func TestTokenize_Errors(t *testing.T) {
	for _, input := range []string{"'open", "$", "a ! b", "\"open", "a ? b"} {
		t.Run(input, func(t *testing.T) {
			if _, err := Tokenize(input); err == nil {
				t.Errorf("Tokenize(%q) expected error", input)
			}
		})
	}
}
