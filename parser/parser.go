// Recursive descent parser
// https://en.wikipedia.org/wiki/Recursive_descent_parser
package parser

import (
	"fmt"
	"strconv"

	"nilan/ast"
	"nilan/token"
)

// Parser turns a token stream into an AST, threading a live ast.Scope
// through lambda/let bodies as it descends so nodes are parented to
// their enclosing scope at construction time, ready for the resolver.
type Parser struct {
	tokens   []token.Token
	position int
	scope    ast.Scope
}

// Make constructs a Parser over the given tokens, rooted at top.
// Parse returns only the parsed forms; callers attach them to top's
// Body themselves and hand top to the resolver afterward.
func Make(tokens []token.Token, top *ast.TopLevel) *Parser {
	return &Parser{tokens: tokens, scope: top}
}

func (p *Parser) peek() token.Token     { return p.tokens[p.position] }
func (p *Parser) previous() token.Token { return p.tokens[p.position-1] }

func (p *Parser) advance() token.Token {
	if !p.isFinished() {
		p.position++
	}
	return p.previous()
}

func (p *Parser) isFinished() bool {
	return p.peek().Type == token.EOF
}

func (p *Parser) checkType(t token.TokenType) bool {
	if p.isFinished() {
		return t == token.EOF
	}
	return p.peek().Type == t
}

func (p *Parser) isMatch(t token.TokenType) bool {
	if p.checkType(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) consume(t token.TokenType, message string) (token.Token, error) {
	if p.checkType(t) {
		return p.advance(), nil
	}
	cur := p.peek()
	return token.Token{}, CreateSyntaxError(cur.Line, cur.Column, message)
}

// Parse parses every top-level form in the token stream, continuing
// past an error to collect as many as it can find rather than
// stopping at the first one.
//
// Returns:
//   - []ast.Node: the successfully parsed top-level forms.
//   - []error: every error encountered along the way.
func (p *Parser) Parse() ([]ast.Node, []error) {
	var forms []ast.Node
	var errs []error

	for !p.isFinished() {
		form, err := p.parseForm()
		if err != nil {
			errs = append(errs, err)
			if !p.isFinished() {
				p.position++
			}
			continue
		}
		forms = append(forms, form)
	}
	return forms, errs
}

var specialForms = map[string]bool{
	"def": true, "def-mut": true, "defn": true, "lambda": true,
	"let": true, "let-mut": true, "if": true, "cond": true,
	"begin": true, "namespace": true, "and": true, "or": true,
	"set": true, "recur": true, "delay": true, "stream-cons": true,
	"quote": true,
}

// parseForm parses a single form: an atom, or a parenthesized list
// that is either a special form or an application.
func (p *Parser) parseForm() (ast.Node, error) {
	tok := p.peek()
	switch tok.Type {
	case token.LPAREN:
		return p.parseList()
	case token.QUOTE:
		p.advance()
		d, err := p.parseDatum()
		if err != nil {
			return nil, err
		}
		return &ast.Quote{Value: d}, nil
	case token.INTEGER:
		p.advance()
		v, err := strconv.ParseInt(tok.Lexeme, 10, 32)
		if err != nil {
			return nil, CreateSyntaxError(tok.Line, tok.Column, fmt.Sprintf("integer literal out of range: %s", tok.Lexeme))
		}
		return &ast.IntegerLit{Value: int32(v)}, nil
	case token.FLOAT:
		p.advance()
		v, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			return nil, CreateSyntaxError(tok.Line, tok.Column, fmt.Sprintf("malformed float literal: %s", tok.Lexeme))
		}
		return &ast.FloatLit{Value: v}, nil
	case token.STRING:
		p.advance()
		return &ast.StringLit{Value: tok.Literal.(string)}, nil
	case token.CHAR:
		p.advance()
		return &ast.CharLit{Value: tok.Literal.(rune)}, nil
	case token.SYMBOL:
		p.advance()
		switch tok.Lexeme {
		case "true":
			return &ast.BoolLit{Value: true}, nil
		case "false":
			return &ast.BoolLit{Value: false}, nil
		case "null":
			return &ast.NullLit{}, nil
		default:
			return &ast.Variable{Name: tok.Lexeme}, nil
		}
	case token.RPAREN:
		return nil, UnexpectedClosingParen{tok.Line, tok.Column}
	case token.EOF:
		return nil, UnexpectedEOF{"expected a form, found end of input"}
	default:
		return nil, CreateSyntaxError(tok.Line, tok.Column, fmt.Sprintf("unrecognized token %q", tok.Lexeme))
	}
}

func (p *Parser) parseList() (ast.Node, error) {
	p.advance() // consume LPAREN

	if p.isMatch(token.RPAREN) {
		return &ast.NullLit{}, nil
	}

	if p.checkType(token.SYMBOL) && specialForms[p.peek().Lexeme] {
		keyword := p.advance().Lexeme
		switch keyword {
		case "def":
			return p.parseDef(false)
		case "def-mut":
			return p.parseDef(true)
		case "defn":
			return p.parseDefn()
		case "lambda":
			return p.parseLambda()
		case "let":
			return p.parseLet(false)
		case "let-mut":
			return p.parseLet(true)
		case "if":
			return p.parseIf()
		case "cond":
			return p.parseCond()
		case "begin":
			body, err := p.parseBodyUntilClose()
			if err != nil {
				return nil, err
			}
			return &ast.Begin{Body: body}, nil
		case "namespace":
			return p.parseNamespace()
		case "and":
			args, err := p.parseBodyUntilClose()
			if err != nil {
				return nil, err
			}
			return &ast.And{Args: args}, nil
		case "or":
			args, err := p.parseBodyUntilClose()
			if err != nil {
				return nil, err
			}
			return &ast.Or{Args: args}, nil
		case "set":
			return p.parseSet()
		case "recur":
			args, err := p.parseBodyUntilClose()
			if err != nil {
				return nil, err
			}
			return &ast.Recur{Args: args}, nil
		case "delay":
			return p.parseDelay()
		case "stream-cons":
			return p.parseStreamCons()
		case "quote":
			d, err := p.parseDatum()
			if err != nil {
				return nil, err
			}
			if _, err := p.consume(token.RPAREN, "expected ')' to close quote"); err != nil {
				return nil, err
			}
			return &ast.Quote{Value: d}, nil
		}
	}

	return p.parseApplication()
}

func (p *Parser) parseApplication() (ast.Node, error) {
	callee, err := p.parseForm()
	if err != nil {
		return nil, err
	}
	args, err := p.parseBodyUntilClose()
	if err != nil {
		return nil, err
	}
	return &ast.Application{Callee: callee, Args: args}, nil
}

// parseBodyUntilClose parses forms until the matching RPAREN, which it
// consumes, or reports UnexpectedEOF if the input ends first.
func (p *Parser) parseBodyUntilClose() ([]ast.Node, error) {
	var forms []ast.Node
	for !p.checkType(token.RPAREN) {
		if p.isFinished() {
			return nil, UnexpectedEOF{"unterminated list"}
		}
		form, err := p.parseForm()
		if err != nil {
			return nil, err
		}
		forms = append(forms, form)
	}
	p.advance() // consume RPAREN
	return forms, nil
}

func (p *Parser) parseDef(mutable bool) (ast.Node, error) {
	name, err := p.consume(token.SYMBOL, "expected a name after 'def'")
	if err != nil {
		return nil, err
	}
	value, err := p.parseForm()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(token.RPAREN, "expected ')' to close def"); err != nil {
		return nil, err
	}
	return &ast.Def{Name: name.Lexeme, Value: value, Mutable: mutable}, nil
}

// parseDefn is sugar for (def name (lambda (args…) body…)).
func (p *Parser) parseDefn() (ast.Node, error) {
	name, err := p.consume(token.SYMBOL, "expected a name after 'defn'")
	if err != nil {
		return nil, err
	}
	lambda, err := p.parseLambda()
	if err != nil {
		return nil, err
	}
	return &ast.Def{Name: name.Lexeme, Value: lambda, Mutable: false}, nil
}

func (p *Parser) parseParamList() (params []string, variadic bool, err error) {
	if _, err = p.consume(token.LPAREN, "expected '(' to open parameter list"); err != nil {
		return nil, false, err
	}
	for !p.checkType(token.RPAREN) {
		if p.isFinished() {
			return nil, false, UnexpectedEOF{"unterminated parameter list"}
		}
		tok, cErr := p.consume(token.SYMBOL, "expected a parameter name")
		if cErr != nil {
			return nil, false, cErr
		}
		if tok.Lexeme == "..." {
			rest, rErr := p.consume(token.SYMBOL, "expected a name after '...'")
			if rErr != nil {
				return nil, false, rErr
			}
			params = append(params, rest.Lexeme)
			variadic = true
			break
		}
		params = append(params, tok.Lexeme)
	}
	if _, err = p.consume(token.RPAREN, "expected ')' to close parameter list"); err != nil {
		return nil, false, err
	}
	return params, variadic, nil
}

func (p *Parser) parseLambda() (ast.Node, error) {
	params, variadic, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	lambda := ast.NewLambda(p.scope, params, variadic, nil)

	outer := p.scope
	p.scope = lambda
	body, err := p.parseBodyUntilClose()
	p.scope = outer
	if err != nil {
		return nil, err
	}

	doc, hasDoc, rest := ast.SplitDocstring(body)
	lambda.Body = rest
	lambda.Docstring = doc
	lambda.HasDoc = hasDoc
	return lambda, nil
}

func (p *Parser) parseLet(mutable bool) (ast.Node, error) {
	if _, err := p.consume(token.LPAREN, "expected '(' to open let bindings"); err != nil {
		return nil, err
	}
	var bindings []ast.LetBinding
	for !p.checkType(token.RPAREN) {
		if p.isFinished() {
			return nil, UnexpectedEOF{"unterminated let bindings"}
		}
		if _, err := p.consume(token.LPAREN, "expected '(' to open a binding"); err != nil {
			return nil, err
		}
		name, err := p.consume(token.SYMBOL, "expected a binding name")
		if err != nil {
			return nil, err
		}
		value, err := p.parseForm()
		if err != nil {
			return nil, err
		}
		if _, err := p.consume(token.RPAREN, "expected ')' to close a binding"); err != nil {
			return nil, err
		}
		bindings = append(bindings, ast.LetBinding{Name: name.Lexeme, Value: value})
	}
	if _, err := p.consume(token.RPAREN, "expected ')' to close let bindings"); err != nil {
		return nil, err
	}

	let := ast.NewLet(p.scope, bindings, mutable, nil)
	outer := p.scope
	p.scope = let
	body, err := p.parseBodyUntilClose()
	p.scope = outer
	if err != nil {
		return nil, err
	}
	let.Body = body
	return let, nil
}

func (p *Parser) parseIf() (ast.Node, error) {
	cond, err := p.parseForm()
	if err != nil {
		return nil, err
	}
	then, err := p.parseForm()
	if err != nil {
		return nil, err
	}
	var elseNode ast.Node = &ast.NullLit{}
	if !p.checkType(token.RPAREN) {
		elseNode, err = p.parseForm()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.consume(token.RPAREN, "expected ')' to close if"); err != nil {
		return nil, err
	}
	return &ast.If{Cond: cond, Then: then, Else: elseNode}, nil
}

// parseCond lowers (cond (p1 e1…) (p2 e2…) … (else eN…)) into a chain
// of If nodes, innermost default Null.
func (p *Parser) parseCond() (ast.Node, error) {
	type clause struct {
		cond ast.Node
		body []ast.Node
	}
	var clauses []clause
	for !p.checkType(token.RPAREN) {
		if p.isFinished() {
			return nil, UnexpectedEOF{"unterminated cond"}
		}
		if _, err := p.consume(token.LPAREN, "expected '(' to open a cond clause"); err != nil {
			return nil, err
		}
		var cond ast.Node
		if p.checkType(token.SYMBOL) && p.peek().Lexeme == "else" {
			p.advance()
			cond = &ast.BoolLit{Value: true}
		} else {
			c, err := p.parseForm()
			if err != nil {
				return nil, err
			}
			cond = c
		}
		body, err := p.parseBodyUntilClose()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause{cond, body})
	}
	if _, err := p.consume(token.RPAREN, "expected ')' to close cond"); err != nil {
		return nil, err
	}

	var result ast.Node = &ast.NullLit{}
	for i := len(clauses) - 1; i >= 0; i-- {
		result = &ast.If{Cond: clauses[i].cond, Then: wrapBody(clauses[i].body), Else: result}
	}
	return result, nil
}

func wrapBody(body []ast.Node) ast.Node {
	switch len(body) {
	case 0:
		return &ast.NullLit{}
	case 1:
		return body[0]
	default:
		return &ast.Begin{Body: body}
	}
}

func (p *Parser) parseNamespace() (ast.Node, error) {
	name, err := p.consume(token.SYMBOL, "expected a name after 'namespace'")
	if err != nil {
		return nil, err
	}
	body, err := p.parseBodyUntilClose()
	if err != nil {
		return nil, err
	}
	return &ast.Namespace{Name: name.Lexeme, Body: body}, nil
}

func (p *Parser) parseSet() (ast.Node, error) {
	name, err := p.consume(token.SYMBOL, "expected a name after 'set'")
	if err != nil {
		return nil, err
	}
	value, err := p.parseForm()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(token.RPAREN, "expected ')' to close set"); err != nil {
		return nil, err
	}
	return &ast.Set{Name: name.Lexeme, Value: value}, nil
}

// parseDelay lowers (delay expr) into a zero-argument lambda.
func (p *Parser) parseDelay() (ast.Node, error) {
	expr, err := p.parseForm()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(token.RPAREN, "expected ')' to close delay"); err != nil {
		return nil, err
	}
	return ast.NewLambda(p.scope, nil, false, []ast.Node{expr}), nil
}

// parseStreamCons lowers (stream-cons a b) into (cons a (delay b)).
func (p *Parser) parseStreamCons() (ast.Node, error) {
	head, err := p.parseForm()
	if err != nil {
		return nil, err
	}
	tail, err := p.parseForm()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(token.RPAREN, "expected ')' to close stream-cons"); err != nil {
		return nil, err
	}
	delayed := ast.NewLambda(p.scope, nil, false, []ast.Node{tail})
	return &ast.Application{
		Callee: &ast.Variable{Name: "cons"},
		Args:   []ast.Node{head, delayed},
	}, nil
}

// parseDatum parses a quoted datum tree directly from tokens: its
// contents are inert data, never special forms or applications, so it
// does not go through parseForm.
func (p *Parser) parseDatum() (ast.Datum, error) {
	tok := p.peek()
	switch tok.Type {
	case token.LPAREN:
		p.advance()
		var elems []ast.Datum
		for !p.checkType(token.RPAREN) && !p.checkType(token.DOT) {
			if p.isFinished() {
				return nil, UnexpectedEOF{"unterminated quoted list"}
			}
			d, err := p.parseDatum()
			if err != nil {
				return nil, err
			}
			elems = append(elems, d)
		}
		var tail ast.Datum = ast.DatumNull{}
		if p.isMatch(token.DOT) {
			t, err := p.parseDatum()
			if err != nil {
				return nil, err
			}
			tail = t
		}
		if _, err := p.consume(token.RPAREN, "expected ')' to close quoted list"); err != nil {
			return nil, err
		}
		result := tail
		for i := len(elems) - 1; i >= 0; i-- {
			result = ast.DatumPair{Car: elems[i], Cdr: result}
		}
		return result, nil
	case token.QUOTE:
		p.advance()
		inner, err := p.parseDatum()
		if err != nil {
			return nil, err
		}
		return ast.DatumPair{
			Car: ast.DatumSymbol{Name: "quote"},
			Cdr: ast.DatumPair{Car: inner, Cdr: ast.DatumNull{}},
		}, nil
	case token.INTEGER:
		p.advance()
		v, err := strconv.ParseInt(tok.Lexeme, 10, 32)
		if err != nil {
			return nil, CreateSyntaxError(tok.Line, tok.Column, fmt.Sprintf("integer literal out of range: %s", tok.Lexeme))
		}
		return ast.DatumInt{Value: int32(v)}, nil
	case token.FLOAT:
		p.advance()
		v, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			return nil, CreateSyntaxError(tok.Line, tok.Column, fmt.Sprintf("malformed float literal: %s", tok.Lexeme))
		}
		return ast.DatumFloat{Value: v}, nil
	case token.STRING:
		p.advance()
		return ast.DatumString{Value: tok.Literal.(string)}, nil
	case token.CHAR:
		p.advance()
		return ast.DatumChar{Value: tok.Literal.(rune)}, nil
	case token.SYMBOL:
		p.advance()
		switch tok.Lexeme {
		case "true":
			return ast.DatumBool{Value: true}, nil
		case "false":
			return ast.DatumBool{Value: false}, nil
		case "null":
			return ast.DatumNull{}, nil
		default:
			return ast.DatumSymbol{Name: tok.Lexeme}, nil
		}
	case token.RPAREN:
		return nil, UnexpectedClosingParen{tok.Line, tok.Column}
	case token.EOF:
		return nil, UnexpectedEOF{"expected a quoted datum, found end of input"}
	default:
		return nil, CreateSyntaxError(tok.Line, tok.Column, fmt.Sprintf("unrecognized token %q", tok.Lexeme))
	}
}
