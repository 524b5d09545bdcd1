package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Formula is a parsed arithmetic expression over numeric columns.
// Columns are referenced by position as C0, C1, ...
type Formula struct {
	root node
	refs []int
}

var errDivisionByZero = errors.New("division by zero")

type node interface {
	eval(values map[int]float64) (float64, bool, error)
}

type numberNode float64

func (n numberNode) eval(map[int]float64) (float64, bool, error) { return float64(n), true, nil }

type refNode int

func (n refNode) eval(values map[int]float64) (float64, bool, error) {
	v, ok := values[int(n)]
	return v, ok, nil
}

type negNode struct{ x node }

func (n negNode) eval(values map[int]float64) (float64, bool, error) {
	v, ok, err := n.x.eval(values)
	return -v, ok, err
}

type binNode struct {
	op   byte
	l, r node
}

func (n binNode) eval(values map[int]float64) (float64, bool, error) {
	l, lok, err := n.l.eval(values)
	if err != nil {
		return 0, false, err
	}
	r, rok, err := n.r.eval(values)
	if err != nil {
		return 0, false, err
	}
	if !lok || !rok {
		return 0, false, nil
	}
	switch n.op {
	case '+':
		return l + r, true, nil
	case '-':
		return l - r, true, nil
	case '*':
		return l * r, true, nil
	default:
		if r == 0 {
			return 0, false, errDivisionByZero
		}
		return l / r, true, nil
	}
}

// ParseFormula parses an expression such as "C1 * C2 / 100"
func ParseFormula(src string) (*Formula, error) {
	if strings.TrimSpace(src) == "" {
		return nil, errors.New("formula is required")
	}
	p := &formulaParser{src: src}
	root, err := p.expr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, fmt.Errorf("unexpected %q at position %d", p.src[p.pos], p.pos)
	}
	return &Formula{root: root, refs: p.refs}, nil
}

// Refs returns the column positions the formula reads
func (f *Formula) Refs() []int {
	return f.refs
}

// Eval computes the formula. ok is false when any referenced value is missing.
func (f *Formula) Eval(values map[int]float64) (result float64, ok bool, err error) {
	return f.root.eval(values)
}

// remapFormulaRefs rewrites every Cn reference of src through positions
func remapFormulaRefs(src string, positions map[int]int) (string, error) {
	var b strings.Builder
	for i := 0; i < len(src); {
		c := src[i]
		if c != 'C' && c != 'c' {
			b.WriteByte(c)
			i++
			continue
		}
		j := i + 1
		for j < len(src) && unicode.IsDigit(rune(src[j])) {
			j++
		}
		if j == i+1 {
			// left for ParseFormula to report
			b.WriteByte(c)
			i++
			continue
		}
		idx, _ := strconv.Atoi(src[i+1 : j])
		to, ok := positions[idx]
		if !ok {
			return "", fmt.Errorf("refers to missing column C%d", idx)
		}
		b.WriteString("C" + strconv.Itoa(to))
		i = j
	}
	return b.String(), nil
}

type formulaParser struct {
	src  string
	pos  int
	refs []int
}

func (p *formulaParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *formulaParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *formulaParser) expr() (node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, l: left, r: right}
	}
}

func (p *formulaParser) term() (node, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, l: left, r: right}
	}
}

func (p *formulaParser) factor() (node, error) {
	c := p.peek()
	switch {
	case c == 0:
		return nil, errors.New("unexpected end of formula")
	case c == '-':
		p.pos++
		x, err := p.factor()
		if err != nil {
			return nil, err
		}
		return negNode{x: x}, nil
	case c == '(':
		p.pos++
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, errors.New("missing closing parenthesis")
		}
		p.pos++
		return x, nil
	case c == 'C' || c == 'c':
		p.pos++
		start := p.pos
		for p.pos < len(p.src) && unicode.IsDigit(rune(p.src[p.pos])) {
			p.pos++
		}
		if start == p.pos {
			return nil, fmt.Errorf("column reference without index at position %d", start)
		}
		idx, _ := strconv.Atoi(p.src[start:p.pos])
		p.refs = append(p.refs, idx)
		return refNode(idx), nil
	case unicode.IsDigit(rune(c)) || c == '.':
		start := p.pos
		for p.pos < len(p.src) && (unicode.IsDigit(rune(p.src[p.pos])) || p.src[p.pos] == '.') {
			p.pos++
		}
		v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p.src[start:p.pos])
		}
		return numberNode(v), nil
	default:
		return nil, fmt.Errorf("unexpected %q at position %d", c, p.pos)
	}
}
