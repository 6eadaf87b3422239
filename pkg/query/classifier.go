package query

import (
	"strings"

	"github.com/blastrain/vitess-sqlparser/sqlparser"

	"github.com/yeoleshweta/PocketSaver/server/apierror"
)

// Classifier provides SQL statement classification functionality.
type Classifier struct{}

// NewClassifier creates a new SQL classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// ClassifyResult contains the classification result of a SQL statement.
type ClassifyResult struct {
	Kind    Kind
	Table   string
	Schema  string
	IsQuery bool
	IsDML   bool
}

// Classify identifies the statement kind by its leading keyword and extracts the
// target table from the first table-bearing clause.
func (c *Classifier) Classify(sql string) (ClassifyResult, error) {
	trimmed := strings.TrimSpace(sql)
	kind := c.kindOf(trimmed)
	if kind == KindUnknown {
		return ClassifyResult{}, apierror.NewUnrecognizedStatementError(sql)
	}

	tokens, err := Tokenize(trimmed)
	if err != nil {
		return ClassifyResult{}, apierror.NewClauseParseError("%v", err).WithStatement(sql)
	}

	ref, ok := tableReference(kind, tokens)
	if !ok {
		return ClassifyResult{}, apierror.NewTableNameNotFoundError(kind.String(), sql)
	}
	schema, table := ParseTableRef(ref)

	return ClassifyResult{
		Kind:    kind,
		Table:   table,
		Schema:  schema,
		IsQuery: kind == KindSelect,
		IsDML:   kind != KindSelect,
	}, nil
}

// kindOf reads the leading keyword with the vitess tokenizer, falling back to
// the first word when the tokenizer yields something else.
func (c *Classifier) kindOf(trimmed string) Kind {
	tok := sqlparser.NewStringTokenizer(trimmed)
	id, _ := tok.Scan()
	for id == sqlparser.COMMENT {
		id, _ = tok.Scan()
	}
	switch id {
	case sqlparser.SELECT:
		return KindSelect
	case sqlparser.INSERT:
		return KindInsert
	case sqlparser.UPDATE:
		return KindUpdate
	case sqlparser.DELETE:
		return KindDelete
	}

	upperSQL := strings.ToUpper(trimmed)
	for _, k := range []Kind{KindSelect, KindInsert, KindUpdate, KindDelete} {
		word := k.String()
		if strings.HasPrefix(upperSQL, word) && (len(upperSQL) == len(word) || !isIdentStart(upperSQL[len(word)])) {
			return k
		}
	}
	return KindUnknown
}

// tableReference walks the tokens to the table-bearing clause of the statement kind.
func tableReference(kind Kind, tokens []Token) (string, bool) {
	idx := -1
	switch kind {
	case KindInsert:
		if len(tokens) > 2 && isKeyword(tokens[1], "INTO") {
			idx = 2
		}
	case KindUpdate:
		idx = 1
	case KindDelete:
		if len(tokens) > 2 && isKeyword(tokens[1], "FROM") {
			idx = 2
		}
	case KindSelect:
		depth := 0
		for i, tok := range tokens {
			switch {
			case tok.Type == TokenLParen:
				depth++
			case tok.Type == TokenRParen:
				depth--
			case depth == 0 && isKeyword(tok, "FROM"):
				idx = i + 1
			}
			if idx >= 0 {
				break
			}
		}
	}
	if idx < 0 || idx >= len(tokens) || tokens[idx].Type != TokenIdent {
		return "", false
	}

	ref := tokens[idx].Literal
	if idx+2 < len(tokens) && tokens[idx+1].Type == TokenDot && tokens[idx+2].Type == TokenIdent {
		ref += "." + tokens[idx+2].Literal
	}
	return ref, true
}

func isKeyword(tok Token, word string) bool {
	return tok.Type == TokenKeyword && tok.Literal == word
}

// DefaultClassifier is the default SQL classifier instance.
var DefaultClassifier = NewClassifier()

// Classify is a convenience function using the default classifier.
func Classify(sql string) (ClassifyResult, error) {
	return DefaultClassifier.Classify(sql)
}

// IsQuery is a convenience function to check if SQL is a SELECT.
func IsQuery(sql string) bool {
	res, err := DefaultClassifier.Classify(sql)
	return err == nil && res.IsQuery
}

// ReturnsRows reports whether executing sql yields rows: a SELECT, or a write
// carrying a RETURNING clause. Text the lexer rejects is searched as plain text.
func ReturnsRows(sql string) bool {
	trimmed := strings.TrimSpace(sql)
	if DefaultClassifier.kindOf(trimmed) == KindSelect {
		return true
	}
	tokens, err := Tokenize(trimmed)
	if err != nil {
		return strings.Contains(strings.ToUpper(trimmed), "RETURNING")
	}
	for _, tok := range tokens {
		if isKeyword(tok, "RETURNING") {
			return true
		}
	}
	return false
}
