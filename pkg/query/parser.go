package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yeoleshweta/PocketSaver/server/apierror"
)

// Parser is a recursive-descent parser for the gateway dialect:
//
//	INSERT INTO t (c, ...) VALUES (e, ...)[, (e, ...)]
//	  [ON CONFLICT (c[, c]) DO UPDATE SET c = e[, ...] | DO NOTHING] [RETURNING * | c, ...]
//	SELECT * | item[, item] FROM t [WHERE c op $n [AND ...]] [GROUP BY c]
//	  [ORDER BY c [ASC|DESC]] [LIMIT $n] [OFFSET $m]
//	UPDATE t SET c = $n | c = COALESCE($n, c)[, ...] WHERE ... [RETURNING ...]
//	DELETE FROM t WHERE ... [RETURNING ...]
type Parser struct {
	text   string
	tokens []Token
	pos    int
}

// Parse classifies and parses statement text into an Intent.
func Parse(text string) (Intent, error) {
	cls, err := Classify(text)
	if err != nil {
		return nil, err
	}

	tokens, err := Tokenize(strings.TrimSpace(text))
	if err != nil {
		return nil, apierror.NewClauseParseError("%v", err).WithStatement(text)
	}

	p := &Parser{text: text, tokens: tokens}
	var intent Intent
	switch cls.Kind {
	case KindInsert:
		intent, err = p.parseInsert()
	case KindSelect:
		intent, err = p.parseSelect()
	case KindUpdate:
		intent, err = p.parseUpdate()
	case KindDelete:
		intent, err = p.parseDelete()
	}
	if err != nil {
		return nil, err
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return intent, nil
}

func (p *Parser) errorf(format string, args ...any) error {
	return apierror.NewClauseParseError(format, args...).WithStatement(p.text)
}

func (p *Parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *Parser) next() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) atKeyword(word string) bool {
	return isKeyword(p.peek(), word)
}

func (p *Parser) acceptKeyword(word string) bool {
	if p.atKeyword(word) {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) expectKeyword(word string) error {
	if !p.acceptKeyword(word) {
		return p.errorf("expected %s, found %s", word, p.peek())
	}
	return nil
}

func (p *Parser) accept(tt TokenType) bool {
	if p.peek().Type == tt {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) expect(tt TokenType, what string) (Token, error) {
	tok := p.peek()
	if tok.Type != tt {
		return Token{}, p.errorf("expected %s, found %s", what, tok)
	}
	p.pos++
	return tok, nil
}

func (p *Parser) expectEnd() error {
	p.accept(TokenSemicolon)
	if tok := p.peek(); tok.Type != TokenEOF {
		return p.errorf("unexpected %s", tok)
	}
	return nil
}

// ident accepts an identifier. Non-reserved keywords are not accepted as names.
func (p *Parser) ident(what string) (string, error) {
	tok, err := p.expect(TokenIdent, what)
	if err != nil {
		return "", err
	}
	return tok.Literal, nil
}

func (p *Parser) tableRef() (string, error) {
	name, err := p.ident("table name")
	if err != nil {
		return "", err
	}
	if p.accept(TokenDot) {
		tbl, err := p.ident("table name")
		if err != nil {
			return "", err
		}
		name += "." + tbl
	}
	_, table := ParseTableRef(name)
	return table, nil
}

func (p *Parser) identList() ([]string, error) {
	if _, err := p.expect(TokenLParen, "("); err != nil {
		return nil, err
	}
	var cols []string
	for {
		col, err := p.ident("column name")
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if p.accept(TokenComma) {
			continue
		}
		if _, err := p.expect(TokenRParen, ")"); err != nil {
			return nil, err
		}
		return cols, nil
	}
}

func (p *Parser) param() (ParamRef, error) {
	tok, err := p.expect(TokenParam, "parameter")
	if err != nil {
		return ParamRef{}, err
	}
	n, err := strconv.Atoi(tok.Literal)
	if err != nil || n < 1 {
		return ParamRef{}, p.errorf("invalid parameter $%s", tok.Literal)
	}
	return ParamRef{Index: n}, nil
}

// -------------------------------------------------------------------------
// INSERT
// -------------------------------------------------------------------------

func (p *Parser) parseInsert() (*InsertIntent, error) {
	p.next() // INSERT
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.tableRef()
	if err != nil {
		return nil, err
	}

	if p.peek().Type != TokenLParen {
		return nil, p.errorf("INSERT requires an explicit column list")
	}
	cols, err := p.identList()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}

	ins := &InsertIntent{Table: table, Columns: cols}
	for {
		tuple, err := p.valueTuple()
		if err != nil {
			return nil, err
		}
		if len(tuple) != len(cols) {
			return nil, p.errorf("VALUES tuple has %d expressions for %d columns", len(tuple), len(cols))
		}
		ins.Rows = append(ins.Rows, tuple)
		if !p.accept(TokenComma) {
			break
		}
	}

	if p.acceptKeyword("ON") {
		conflict, err := p.conflictClause()
		if err != nil {
			return nil, err
		}
		ins.Conflict = conflict
	}

	ins.Returning, err = p.returning()
	if err != nil {
		return nil, err
	}
	return ins, nil
}

func (p *Parser) valueTuple() ([]Expr, error) {
	if _, err := p.expect(TokenLParen, "("); err != nil {
		return nil, err
	}
	var exprs []Expr
	for {
		e, err := p.valueExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
		if p.accept(TokenComma) {
			continue
		}
		if _, err := p.expect(TokenRParen, ")"); err != nil {
			return nil, err
		}
		return exprs, nil
	}
}

// valueExpr parses $n, literals and NOW() [- INTERVAL '...'].
func (p *Parser) valueExpr() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case TokenParam:
		ref, err := p.param()
		if err != nil {
			return nil, err
		}
		return ref, nil
	case TokenNumber:
		p.next()
		return p.numberLiteral(tok.Literal, false)
	case TokenOperator:
		if tok.Literal == "-" && p.tokens[p.pos+1].Type == TokenNumber {
			p.next()
			num := p.next()
			return p.numberLiteral(num.Literal, true)
		}
	case TokenString:
		p.next()
		return Literal{Value: tok.Literal}, nil
	case TokenKeyword:
		switch tok.Literal {
		case "TRUE":
			p.next()
			return Literal{Value: true}, nil
		case "FALSE":
			p.next()
			return Literal{Value: false}, nil
		case "NULL":
			p.next()
			return Literal{Value: nil}, nil
		}
	case TokenIdent:
		if isNowFunc(tok.Literal) {
			return p.nowExpr()
		}
	}
	return nil, p.errorf("unsupported value expression %s", tok)
}

func (p *Parser) numberLiteral(lit string, negative bool) (Expr, error) {
	if negative {
		lit = "-" + lit
	}
	if !strings.Contains(lit, ".") {
		n, err := strconv.ParseInt(lit, 10, 64)
		if err == nil {
			return Literal{Value: n}, nil
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return nil, p.errorf("invalid number %q", lit)
	}
	return Literal{Value: f}, nil
}

func isNowFunc(name string) bool {
	switch strings.ToUpper(name) {
	case "NOW", "CURRENT_TIMESTAMP":
		return true
	}
	return false
}

func (p *Parser) nowExpr() (Expr, error) {
	name := p.next()
	if strings.EqualFold(name.Literal, "NOW") {
		if _, err := p.expect(TokenLParen, "("); err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen, ")"); err != nil {
			return nil, err
		}
	}

	tok := p.peek()
	if tok.Type != TokenOperator || tok.Literal != "-" {
		return Now{}, nil
	}
	p.next()
	if err := p.expectKeyword("INTERVAL"); err != nil {
		return nil, err
	}
	lit, err := p.expect(TokenString, "interval literal")
	if err != nil {
		return nil, err
	}
	d, err := parseInterval(lit.Literal)
	if err != nil {
		return nil, p.errorf("%v", err)
	}
	return Now{Minus: d}, nil
}

func parseInterval(s string) (time.Duration, error) {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) != 2 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	var unit time.Duration
	switch strings.TrimSuffix(fields[1], "s") {
	case "minute":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	case "week":
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("unsupported interval unit %q", fields[1])
	}
	return time.Duration(n) * unit, nil
}

func (p *Parser) conflictClause() (*ConflictClause, error) {
	if err := p.expectKeyword("CONFLICT"); err != nil {
		return nil, err
	}
	cols, err := p.identList()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("DO"); err != nil {
		return nil, err
	}
	if p.acceptKeyword("NOTHING") {
		return &ConflictClause{Columns: cols, DoNothing: true}, nil
	}
	if err := p.expectKeyword("UPDATE"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	set, err := p.assignments(true)
	if err != nil {
		return nil, err
	}
	return &ConflictClause{Columns: cols, Set: set}, nil
}

func (p *Parser) returning() (*Returning, error) {
	if !p.acceptKeyword("RETURNING") {
		return nil, nil
	}
	if p.accept(TokenStar) {
		return &Returning{Star: true}, nil
	}
	var cols []string
	for {
		col, err := p.ident("RETURNING column")
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if !p.accept(TokenComma) {
			return &Returning{Columns: cols}, nil
		}
	}
}

// -------------------------------------------------------------------------
// SELECT
// -------------------------------------------------------------------------

func (p *Parser) parseSelect() (*SelectIntent, error) {
	p.next() // SELECT
	sel := &SelectIntent{}
	agg := &Aggregation{}
	aggregated := false

	if p.accept(TokenStar) {
		sel.Star = true
	} else {
		for {
			isAgg, err := p.selectItem(sel, agg)
			if err != nil {
				return nil, err
			}
			aggregated = aggregated || isAgg
			if !p.accept(TokenComma) {
				break
			}
		}
	}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.tableRef()
	if err != nil {
		return nil, err
	}
	sel.Table = table

	if p.acceptKeyword("WHERE") {
		if sel.Where, err = p.predicates(); err != nil {
			return nil, err
		}
	}

	if p.acceptKeyword("GROUP") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		if agg.GroupBy, err = p.ident("GROUP BY column"); err != nil {
			return nil, err
		}
	}

	if p.acceptKeyword("ORDER") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		col, err := p.ident("ORDER BY column")
		if err != nil {
			return nil, err
		}
		order := &OrderBy{Column: col}
		if p.acceptKeyword("DESC") {
			order.Descending = true
		} else {
			p.acceptKeyword("ASC")
		}
		sel.OrderBy = order
	}

	// LIMIT and OFFSET in either order
	for i := 0; i < 2; i++ {
		switch {
		case sel.Limit == nil && p.acceptKeyword("LIMIT"):
			ref, err := p.limitParam("LIMIT")
			if err != nil {
				return nil, err
			}
			sel.Limit = &ref
		case sel.Offset == nil && p.acceptKeyword("OFFSET"):
			ref, err := p.limitParam("OFFSET")
			if err != nil {
				return nil, err
			}
			sel.Offset = &ref
		}
	}

	if err := p.finishAggregation(sel, agg, aggregated); err != nil {
		return nil, err
	}
	return sel, nil
}

func (p *Parser) limitParam(clause string) (ParamRef, error) {
	if p.peek().Type != TokenParam {
		return ParamRef{}, p.errorf("%s must reference a parameter, found %s", clause, p.peek())
	}
	return p.param()
}

// selectItem parses one projection entry and reports whether it is an aggregate.
func (p *Parser) selectItem(sel *SelectIntent, agg *Aggregation) (bool, error) {
	name, err := p.ident("select item")
	if err != nil {
		return false, err
	}

	if p.peek().Type != TokenLParen {
		item := SelectItem{Column: name}
		if item.Alias, err = p.alias(); err != nil {
			return false, err
		}
		sel.Columns = append(sel.Columns, item)
		agg.Columns = append(agg.Columns, item)
		agg.Order = append(agg.Order, item.OutputName())
		return false, nil
	}

	p.next() // (
	switch strings.ToUpper(name) {
	case "COUNT":
		if _, err := p.expect(TokenStar, "*"); err != nil {
			return false, err
		}
		if _, err := p.expect(TokenRParen, ")"); err != nil {
			return false, err
		}
		if agg.Count != nil {
			return false, p.errorf("COUNT may appear once")
		}
		alias, err := p.alias()
		if err != nil {
			return false, err
		}
		if alias == "" {
			alias = "count"
		}
		agg.Count = &CountItem{Alias: alias}
		agg.Order = append(agg.Order, alias)
		return true, nil

	case "SUM":
		item := SumItem{}
		col, err := p.ident("SUM argument")
		if err != nil {
			return false, err
		}
		if strings.EqualFold(col, "ABS") && p.accept(TokenLParen) {
			item.Abs = true
			if col, err = p.ident("ABS argument"); err != nil {
				return false, err
			}
			if _, err := p.expect(TokenRParen, ")"); err != nil {
				return false, err
			}
		}
		item.Column = col
		if _, err := p.expect(TokenRParen, ")"); err != nil {
			return false, err
		}
		if item.Alias, err = p.alias(); err != nil {
			return false, err
		}
		if item.Alias == "" {
			item.Alias = "sum"
		}
		agg.Sums = append(agg.Sums, item)
		agg.Order = append(agg.Order, item.Alias)
		return true, nil
	}
	return false, p.errorf("unsupported function %s in projection", name)
}

func (p *Parser) alias() (string, error) {
	if p.acceptKeyword("AS") {
		return p.ident("alias")
	}
	if p.peek().Type == TokenIdent {
		return p.next().Literal, nil
	}
	return "", nil
}

func (p *Parser) finishAggregation(sel *SelectIntent, agg *Aggregation, aggregated bool) error {
	if !aggregated {
		if agg.GroupBy != "" {
			return p.errorf("GROUP BY requires COUNT or SUM in the projection")
		}
		return nil
	}
	if sel.Star {
		return p.errorf("aggregates cannot be combined with *")
	}
	for _, c := range agg.Columns {
		if c.Column != agg.GroupBy {
			return p.errorf("column %s must appear in GROUP BY", c.Column)
		}
	}
	if sel.OrderBy != nil && !containsString(agg.Order, sel.OrderBy.Column) {
		return p.errorf("ORDER BY %s must name an output column of the aggregation", sel.OrderBy.Column)
	}
	sel.Aggregation = agg
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// -------------------------------------------------------------------------
// WHERE
// -------------------------------------------------------------------------

func (p *Parser) predicates() ([]Predicate, error) {
	var preds []Predicate
	for {
		pred, err := p.predicate()
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
		if p.atKeyword("OR") {
			return nil, p.errorf("OR is not supported; predicates are conjunctive")
		}
		if !p.acceptKeyword("AND") {
			return preds, nil
		}
	}
}

func (p *Parser) predicate() (Predicate, error) {
	if p.peek().Type == TokenLParen {
		return Predicate{}, p.errorf("nested predicates are not supported")
	}
	col, err := p.ident("predicate column")
	if err != nil {
		return Predicate{}, err
	}
	opTok, err := p.expect(TokenOperator, "comparison operator")
	if err != nil {
		return Predicate{}, err
	}
	op := Operator(opTok.Literal)
	switch op {
	case OpEq, OpGte, OpLte, OpGt, OpLt:
	default:
		return Predicate{}, p.errorf("unsupported operator %s", opTok.Literal)
	}
	if p.peek().Type != TokenParam {
		return Predicate{}, p.errorf("predicate on %s must compare against a parameter, found %s", col, p.peek())
	}
	ref, err := p.param()
	if err != nil {
		return Predicate{}, err
	}
	return Predicate{Column: col, Op: op, Param: ref}, nil
}

// -------------------------------------------------------------------------
// UPDATE / DELETE
// -------------------------------------------------------------------------

func (p *Parser) parseUpdate() (*UpdateIntent, error) {
	p.next() // UPDATE
	table, err := p.tableRef()
	if err != nil {
		return nil, err
	}
	if !p.acceptKeyword("SET") {
		return nil, p.errorf("UPDATE requires a SET clause")
	}
	set, err := p.assignments(false)
	if err != nil {
		return nil, err
	}
	if !p.acceptKeyword("WHERE") {
		return nil, p.errorf("UPDATE requires a WHERE clause")
	}
	where, err := p.predicates()
	if err != nil {
		return nil, err
	}
	ret, err := p.returning()
	if err != nil {
		return nil, err
	}
	return &UpdateIntent{Table: table, Set: set, Where: where, Returning: ret}, nil
}

func (p *Parser) parseDelete() (*DeleteIntent, error) {
	p.next() // DELETE
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.tableRef()
	if err != nil {
		return nil, err
	}
	if !p.acceptKeyword("WHERE") {
		return nil, p.errorf("DELETE requires a WHERE clause")
	}
	where, err := p.predicates()
	if err != nil {
		return nil, err
	}
	ret, err := p.returning()
	if err != nil {
		return nil, err
	}
	return &DeleteIntent{Table: table, Where: where, Returning: ret}, nil
}

// assignments parses "c = e[, ...]". COALESCE is matched before plain
// expressions; EXCLUDED.c is only valid inside ON CONFLICT.
func (p *Parser) assignments(conflict bool) ([]Assignment, error) {
	var set []Assignment
	for {
		col, err := p.ident("SET column")
		if err != nil {
			return nil, err
		}
		eq, err := p.expect(TokenOperator, "=")
		if err != nil {
			return nil, err
		}
		if eq.Literal != "=" {
			return nil, p.errorf("expected = in SET, found %s", eq)
		}

		var value Expr
		tok := p.peek()
		switch {
		case tok.Type == TokenIdent && strings.EqualFold(tok.Literal, "COALESCE"):
			value, err = p.coalesce(col)
		case isKeyword(tok, "EXCLUDED"):
			if !conflict {
				return nil, p.errorf("EXCLUDED is only valid in ON CONFLICT DO UPDATE")
			}
			value, err = p.excluded()
		default:
			value, err = p.valueExpr()
		}
		if err != nil {
			return nil, err
		}
		set = append(set, Assignment{Column: col, Value: value})
		if !p.accept(TokenComma) {
			return set, nil
		}
	}
}

func (p *Parser) coalesce(target string) (Expr, error) {
	p.next() // COALESCE
	if _, err := p.expect(TokenLParen, "("); err != nil {
		return nil, err
	}
	ref, err := p.param()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenComma, ","); err != nil {
		return nil, err
	}
	col, err := p.ident("COALESCE fallback column")
	if err != nil {
		return nil, err
	}
	if col != target {
		return nil, p.errorf("COALESCE fallback %s must be the assigned column %s", col, target)
	}
	if _, err := p.expect(TokenRParen, ")"); err != nil {
		return nil, err
	}
	return Coalesce{Param: ref, Column: col}, nil
}

func (p *Parser) excluded() (Expr, error) {
	p.next() // EXCLUDED
	if _, err := p.expect(TokenDot, "."); err != nil {
		return nil, err
	}
	col, err := p.ident("EXCLUDED column")
	if err != nil {
		return nil, err
	}
	return ExcludedRef{Column: col}, nil
}
