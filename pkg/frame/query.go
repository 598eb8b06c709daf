package frame

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Sentinel errors for filter queries.
var (
	ErrEmptyQuery  = errors.New("empty query")
	ErrQuerySyntax = errors.New("query syntax error")
)

// Predicate is a compiled row filter for a table.
type Predicate struct {
	root queryNode
}

// CompileQuery parses a filter expression such as
// `Campaign == "Brand" and Clicks > 100` into a predicate. Identifiers name
// table columns and may be namespaced ("ads.Clicks") or backquoted.
func CompileQuery(query string) (*Predicate, error) {
	tokens, err := lexQuery(query)
	if err != nil {
		return nil, err
	}

	if len(tokens) == 0 {
		return nil, ErrEmptyQuery
	}

	p := &queryParser{tokens: tokens}

	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if !p.atEnd() {
		return nil, fmt.Errorf("%w: unexpected %q", ErrQuerySyntax, p.peek().text)
	}

	return &Predicate{root: root}, nil
}

// Eval evaluates the predicate against one row of the table.
func (p *Predicate) Eval(t *Table, row int) (bool, error) {
	return p.root.eval(t, row)
}

// Apply returns the rows of the table matching the predicate.
func (p *Predicate) Apply(t *Table) (*Table, error) {
	var evalErr error

	kept := t.FilterRows(func(row int) bool {
		if evalErr != nil {
			return false
		}

		ok, err := p.Eval(t, row)
		if err != nil {
			evalErr = err

			return false
		}

		return ok
	})

	if evalErr != nil {
		return nil, evalErr
	}

	return kept, nil
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp
	tokParenL
	tokParenR
	tokAnd
	tokOr
	tokNot
)

type queryToken struct {
	kind tokenKind
	text string
}

func lexQuery(query string) ([]queryToken, error) {
	var tokens []queryToken

	runes := []rune(query)
	i := 0

	for i < len(runes) {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, queryToken{kind: tokParenL, text: "("})
			i++
		case r == ')':
			tokens = append(tokens, queryToken{kind: tokParenR, text: ")"})
			i++
		case r == '\'' || r == '"':
			quote := r
			j := i + 1

			for j < len(runes) && runes[j] != quote {
				j++
			}

			if j >= len(runes) {
				return nil, fmt.Errorf("%w: unterminated string", ErrQuerySyntax)
			}

			tokens = append(tokens, queryToken{kind: tokString, text: string(runes[i+1 : j])})
			i = j + 1
		case r == '`':
			j := i + 1
			for j < len(runes) && runes[j] != '`' {
				j++
			}

			if j >= len(runes) {
				return nil, fmt.Errorf("%w: unterminated backquote", ErrQuerySyntax)
			}

			tokens = append(tokens, queryToken{kind: tokIdent, text: string(runes[i+1 : j])})
			i = j + 1
		case r == '=' || r == '!' || r == '<' || r == '>':
			op := string(r)
			if i+1 < len(runes) && runes[i+1] == '=' {
				op += "="
				i++
			}

			i++

			if op == "=" || op == "!" {
				return nil, fmt.Errorf("%w: bad operator %q", ErrQuerySyntax, op)
			}

			tokens = append(tokens, queryToken{kind: tokOp, text: op})
		case unicode.IsDigit(r) || r == '-' || r == '.':
			j := i
			if runes[j] == '-' {
				j++
			}

			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.' || runes[j] == 'e' || runes[j] == 'E') {
				j++
			}

			text := string(runes[i:j])
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return nil, fmt.Errorf("%w: bad number %q", ErrQuerySyntax, text)
			}

			tokens = append(tokens, queryToken{kind: tokNumber, text: text})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) ||
				runes[j] == '_' || runes[j] == '.') {
				j++
			}

			text := string(runes[i:j])
			i = j

			switch strings.ToLower(text) {
			case "and":
				tokens = append(tokens, queryToken{kind: tokAnd, text: text})
			case "or":
				tokens = append(tokens, queryToken{kind: tokOr, text: text})
			case "not":
				tokens = append(tokens, queryToken{kind: tokNot, text: text})
			default:
				tokens = append(tokens, queryToken{kind: tokIdent, text: text})
			}
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrQuerySyntax, string(r))
		}
	}

	return tokens, nil
}

type queryNode interface {
	eval(t *Table, row int) (bool, error)
}

type logicalNode struct {
	and         bool
	left, right queryNode
}

func (n *logicalNode) eval(t *Table, row int) (bool, error) {
	l, err := n.left.eval(t, row)
	if err != nil {
		return false, err
	}

	if n.and && !l {
		return false, nil
	}

	if !n.and && l {
		return true, nil
	}

	return n.right.eval(t, row)
}

type notNode struct {
	inner queryNode
}

func (n *notNode) eval(t *Table, row int) (bool, error) {
	v, err := n.inner.eval(t, row)
	if err != nil {
		return false, err
	}

	return !v, nil
}

type operandKind int

const (
	operandColumn operandKind = iota
	operandNumber
	operandString
)

type operand struct {
	kind   operandKind
	column string
	number float64
	text   string
}

type compareNode struct {
	op          string
	left, right operand
}

func (n *compareNode) eval(t *Table, row int) (bool, error) {
	lNum, lText, lNumeric, err := resolveOperand(n.left, t, row)
	if err != nil {
		return false, err
	}

	rNum, rText, rNumeric, err := resolveOperand(n.right, t, row)
	if err != nil {
		return false, err
	}

	if lNumeric && rNumeric {
		return compareNumbers(n.op, lNum, rNum), nil
	}

	// Mixed comparisons coerce the numeric side to its text form.
	if lNumeric {
		lText = strconv.FormatFloat(lNum, 'f', -1, 64)
	}

	if rNumeric {
		rText = strconv.FormatFloat(rNum, 'f', -1, 64)
	}

	return compareStrings(n.op, lText, rText), nil
}

func resolveOperand(o operand, t *Table, row int) (num float64, text string, numeric bool, err error) {
	switch o.kind {
	case operandNumber:
		return o.number, "", true, nil
	case operandString:
		return 0, o.text, false, nil
	case operandColumn:
		col, err := t.Column(o.column)
		if err != nil {
			return 0, "", false, err
		}

		if col.IsNumeric() {
			return col.Numeric[row], "", true, nil
		}

		return 0, col.Text[row], false, nil
	}

	return 0, "", false, fmt.Errorf("%w: bad operand", ErrQuerySyntax)
}

func compareNumbers(op string, a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		// NaN rows never match, mirroring SQL-style null comparisons.
		return op == "!=" && !(math.IsNaN(a) && math.IsNaN(b))
	}

	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}

	return false
}

func compareStrings(op string, a, b string) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}

	return false
}

type queryParser struct {
	tokens []queryToken
	pos    int
}

func (p *queryParser) atEnd() bool {
	return p.pos >= len(p.tokens)
}

func (p *queryParser) peek() queryToken {
	return p.tokens[p.pos]
}

func (p *queryParser) next() queryToken {
	t := p.tokens[p.pos]
	p.pos++

	return t
}

func (p *queryParser) parseOr() (queryNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for !p.atEnd() && p.peek().kind == tokOr {
		p.next()

		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		left = &logicalNode{and: false, left: left, right: right}
	}

	return left, nil
}

func (p *queryParser) parseAnd() (queryNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for !p.atEnd() && p.peek().kind == tokAnd {
		p.next()

		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		left = &logicalNode{and: true, left: left, right: right}
	}

	return left, nil
}

func (p *queryParser) parseUnary() (queryNode, error) {
	if !p.atEnd() && p.peek().kind == tokNot {
		p.next()

		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return &notNode{inner: inner}, nil
	}

	return p.parsePrimary()
}

func (p *queryParser) parsePrimary() (queryNode, error) {
	if p.atEnd() {
		return nil, fmt.Errorf("%w: unexpected end of query", ErrQuerySyntax)
	}

	if p.peek().kind == tokParenL {
		p.next()

		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		if p.atEnd() || p.peek().kind != tokParenR {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrQuerySyntax)
		}

		p.next()

		return inner, nil
	}

	return p.parseComparison()
}

func (p *queryParser) parseComparison() (queryNode, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if p.atEnd() || p.peek().kind != tokOp {
		return nil, fmt.Errorf("%w: expected comparison operator", ErrQuerySyntax)
	}

	op := p.next().text

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	return &compareNode{op: op, left: left, right: right}, nil
}

func (p *queryParser) parseOperand() (operand, error) {
	if p.atEnd() {
		return operand{}, fmt.Errorf("%w: expected operand", ErrQuerySyntax)
	}

	tok := p.next()

	switch tok.kind {
	case tokIdent:
		return operand{kind: operandColumn, column: tok.text}, nil
	case tokNumber:
		v, _ := strconv.ParseFloat(tok.text, 64)

		return operand{kind: operandNumber, number: v}, nil
	case tokString:
		return operand{kind: operandString, text: tok.text}, nil
	default:
		return operand{}, fmt.Errorf("%w: unexpected %q", ErrQuerySyntax, tok.text)
	}
}
