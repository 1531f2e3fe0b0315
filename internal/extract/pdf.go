package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDF extracts text drawn by the text-showing operators of each page's content stream.
// Fonts with custom or CID encodings come out as their raw byte values.
type PDF struct {
	conf *model.Configuration
}

// NewPDF creates a PDF extractor that never touches the user config directory.
func NewPDF() *PDF {
	api.DisableConfigDir()
	return &PDF{conf: model.NewDefaultConfiguration()}
}

// Extract reads every page of the PDF at path.
func (p *PDF) Extract(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	pdfCtx, err := api.ReadValidateAndOptimize(f, p.conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	var pages []string
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pageNr, err)
		}
		if r == nil {
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pageNr, err)
		}
		if text := strings.TrimSpace(contentText(content)); text != "" {
			pages = append(pages, text)
		}
	}

	return &Result{
		Text:     strings.Join(pages, "\n\n"),
		Metadata: map[string]any{"page_count": pdfCtx.PageCount},
	}, nil
}

// contentText interprets the text operators of a content stream:
// Tj, TJ, ' and " show strings; T*, Td, TD and ET move to a new line.
func contentText(stream []byte) string {
	var (
		out      strings.Builder
		operands []string
		inArray  bool
		array    strings.Builder
	)

	newline := func() {
		s := out.String()
		if len(s) > 0 && !strings.HasSuffix(s, "\n") {
			out.WriteByte('\n')
		}
	}

	lx := &lexer{src: stream}
	for {
		tok, kind := lx.next()
		if kind == tokEOF {
			break
		}
		switch kind {
		case tokString:
			if inArray {
				array.WriteString(tok)
			} else {
				operands = append(operands, tok)
			}
		case tokArrayOpen:
			inArray = true
			array.Reset()
		case tokArrayClose:
			inArray = false
			operands = append(operands, array.String())
		case tokNumber:
			// A large negative kerning inside TJ usually separates words.
			if inArray && strings.HasPrefix(tok, "-") && len(strings.TrimLeft(tok, "-")) >= 3 {
				array.WriteByte(' ')
			}
			if !inArray {
				operands = append(operands, "")
			}
		case tokOperator:
			switch tok {
			case "Tj", "TJ":
				if n := len(operands); n > 0 {
					out.WriteString(operands[n-1])
				}
			case "'", "\"":
				newline()
				if n := len(operands); n > 0 {
					out.WriteString(operands[n-1])
				}
			case "T*", "ET":
				newline()
			case "Td", "TD":
				// Second operand is the vertical offset.
				if n := len(operands); n >= 2 && lx.lastNumbers[1] != 0 {
					newline()
				}
			}
			operands = operands[:0]
		}
	}
	return out.String()
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokNumber
	tokOperator
	tokArrayOpen
	tokArrayClose
	tokOther
)

// lexer splits a content stream into the few token kinds text extraction needs.
type lexer struct {
	src []byte
	pos int
	// lastNumbers holds the two most recent numeric operands, newest last.
	lastNumbers [2]float64
}

func (l *lexer) next() (string, tokenKind) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case isPDFSpace(c):
			l.pos++
		case c == '%':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' && l.src[l.pos] != '\r' {
				l.pos++
			}
		case c == '(':
			return l.literal(), tokString
		case c == '<':
			if l.pos+1 < len(l.src) && l.src[l.pos+1] == '<' {
				l.pos += 2
				return "<<", tokOther
			}
			return l.hex(), tokString
		case c == '>':
			l.pos++
			if l.pos < len(l.src) && l.src[l.pos] == '>' {
				l.pos++
			}
			return ">>", tokOther
		case c == '[':
			l.pos++
			return "[", tokArrayOpen
		case c == ']':
			l.pos++
			return "]", tokArrayClose
		case c == '/':
			l.pos++
			return "/" + l.word(), tokOther
		case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
			w := l.word()
			f, err := strconv.ParseFloat(w, 64)
			if err != nil {
				return w, tokOther
			}
			l.lastNumbers[0], l.lastNumbers[1] = l.lastNumbers[1], f
			return w, tokNumber
		default:
			w := l.word()
			if w == "" {
				l.pos++
				continue
			}
			return w, tokOperator
		}
	}
	return "", tokEOF
}

func (l *lexer) word() string {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isPDFSpace(c) || bytes.IndexByte([]byte("()<>[]{}/%"), c) >= 0 {
			break
		}
		l.pos++
	}
	return string(l.src[start:l.pos])
}

// literal decodes a parenthesized string with nesting and escapes.
func (l *lexer) literal() string {
	l.pos++ // (
	depth := 1
	var buf []byte
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		l.pos++
		switch c {
		case '\\':
			if l.pos >= len(l.src) {
				break
			}
			e := l.src[l.pos]
			l.pos++
			switch e {
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case 'b':
				buf = append(buf, '\b')
			case 'f':
				buf = append(buf, '\f')
			case '\r', '\n':
				// Line continuation.
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '7'; i++ {
						v = v*8 + int(l.src[l.pos]-'0')
						l.pos++
					}
					buf = append(buf, byte(v))
				} else {
					buf = append(buf, e)
				}
			}
		case '(':
			depth++
			buf = append(buf, c)
		case ')':
			depth--
			if depth == 0 {
				return latin1(buf)
			}
			buf = append(buf, c)
		default:
			buf = append(buf, c)
		}
	}
	return latin1(buf)
}

// hex decodes a <...> string; an odd final digit is padded with 0.
func (l *lexer) hex() string {
	l.pos++ // <
	var digits []byte
	for l.pos < len(l.src) && l.src[l.pos] != '>' {
		if c := l.src[l.pos]; !isPDFSpace(c) {
			digits = append(digits, c)
		}
		l.pos++
	}
	l.pos++ // >
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	buf := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		buf = append(buf, byte(v))
	}
	return latin1(buf)
}

func latin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}
