package partial

import (
	"errors"
	"fmt"
	"strings"
)

// FieldsParam is the query parameter carrying the selection.
const FieldsParam = "fields"

// maxDepth bounds paren nesting of a single fields expression.
const maxDepth = 16

// ErrInvalidArgument is returned for a missing fields parameter or a
// malformed fields expression.
var ErrInvalidArgument = errors.New("invalid argument")

// ParseError describes a malformed fields expression.
type ParseError struct {
	Message string `json:"message"`
	Offset  int    `json:"offset"`
	Got     string `json:"got,omitempty"`
}

func (e *ParseError) Error() string {
	if e.Got != "" {
		return fmt.Sprintf("fields: %s at offset %d (got %q)", e.Message, e.Offset, e.Got)
	}
	return fmt.Sprintf("fields: %s at offset %d", e.Message, e.Offset)
}

// Unwrap lets callers match any parse failure with errors.Is(err, ErrInvalidArgument).
func (e *ParseError) Unwrap() error {
	return ErrInvalidArgument
}

// Result is the outcome of parsing a fields parameter.
type Result struct {
	// Fields is the base projection: the top-level tokens, '-' kept.
	Fields []string
	// Expands holds every top-level token with its nested selection.
	Expands *Tree
}

// Parse reads params["fields"] (e.g. "name,user(firstName,lastName),-notes")
// into a base projection and an expand tree. Callers are expected to skip
// parsing when the parameter is absent; doing otherwise is an error.
func Parse(params map[string]string) (*Result, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: no query parameters", ErrInvalidArgument)
	}
	raw, ok := params[FieldsParam]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q parameter", ErrInvalidArgument, FieldsParam)
	}
	return ParseFields(raw)
}

// ParseFields parses a bare fields expression.
func ParseFields(input string) (*Result, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	tree := NewTree()
	if err := p.parseList(tree.Root, 0); err != nil {
		return nil, err
	}

	switch tok := p.peek(); tok.typ {
	case tokenEOF:
	case tokenRParen:
		return nil, &ParseError{Message: "unbalanced ')'", Offset: tok.pos, Got: ")"}
	default:
		return nil, &ParseError{Message: "unexpected token", Offset: tok.pos, Got: tok.val}
	}

	return &Result{
		Fields:  tree.Root.childTokens(),
		Expands: tree,
	}, nil
}

// --- tokens ---

type tokenType int

const (
	tokenName tokenType = iota // field name, optionally prefixed with '-'
	tokenLParen
	tokenRParen
	tokenComma
	tokenEOF
)

type token struct {
	typ tokenType
	val string
	pos int
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	pos := 0
	for pos < len(input) {
		ch := input[pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			pos++
		case ch == '(':
			tokens = append(tokens, token{typ: tokenLParen, val: "(", pos: pos})
			pos++
		case ch == ')':
			tokens = append(tokens, token{typ: tokenRParen, val: ")", pos: pos})
			pos++
		case ch == ',':
			tokens = append(tokens, token{typ: tokenComma, val: ",", pos: pos})
			pos++
		case ch == '-' || isNameChar(ch):
			start := pos
			if ch == '-' {
				pos++
				for pos < len(input) && input[pos] == ' ' {
					pos++
				}
				if pos >= len(input) || !isNameChar(input[pos]) {
					return nil, &ParseError{Message: "'-' must prefix a field name", Offset: start, Got: "-"}
				}
			}
			for pos < len(input) && isNameChar(input[pos]) {
				pos++
			}
			tokens = append(tokens, token{typ: tokenName, val: input[start:pos], pos: start})
		default:
			return nil, &ParseError{Message: "unexpected character", Offset: pos, Got: string(ch)}
		}
	}
	tokens = append(tokens, token{typ: tokenEOF, pos: len(input)})
	return tokens, nil
}

func isNameChar(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') ||
		ch == '_' || ch == '.' || ch == '$'
}

// --- recursive descent ---

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	tok := p.peek()
	if tok.typ != tokenEOF {
		p.pos++
	}
	return tok
}

// parseList consumes: token (',' token)* into parent. It stops before a
// ')' or the end of input; the caller decides whether that is legal.
func (p *parser) parseList(parent *Node, depth int) error {
	for {
		tok := p.peek()
		switch tok.typ {
		case tokenEOF, tokenRParen:
			return nil
		case tokenComma:
			// empty items are tolerated
			p.advance()
			continue
		case tokenLParen:
			return &ParseError{Message: "'(' must follow a field name", Offset: tok.pos, Got: "("}
		}

		p.advance()
		node := parent.GetOrAddChildNode(tok.val)

		if p.peek().typ == tokenLParen {
			open := p.advance()
			if depth+1 > maxDepth {
				return &ParseError{Message: "selection nested too deeply", Offset: open.pos}
			}
			if err := p.parseList(node, depth+1); err != nil {
				return err
			}
			if closing := p.advance(); closing.typ != tokenRParen {
				return &ParseError{Message: "unclosed '('", Offset: open.pos, Got: node.MemberName}
			}
			node.Select = strings.Join(node.childTokens(), ",")
		}

		switch next := p.peek(); next.typ {
		case tokenComma, tokenRParen, tokenEOF:
		default:
			return &ParseError{Message: "expected ',' or ')'", Offset: next.pos, Got: next.val}
		}
	}
}
