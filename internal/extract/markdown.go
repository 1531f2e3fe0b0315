package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Markdown strips markdown syntax and records the heading outline.
type Markdown struct {
	parser goldmark.Markdown
}

// NewMarkdown creates a markdown extractor configured with goldmark parser.
func NewMarkdown() *Markdown {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Markdown{parser: md}
}

// Extract reads a markdown file. Block elements are separated by blank lines
// so the chunker can treat them as boundaries.
func (m *Markdown) Extract(_ context.Context, path string) (*Result, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return m.Convert(source)
}

// Convert renders markdown source to plain text.
func (m *Markdown) Convert(source []byte) (*Result, error) {
	doc := m.parser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(3),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	res := &Result{
		Text:     plainText(doc, source),
		Metadata: map[string]any{},
	}

	var outline []string
	flattenOutline(tree.Items, 1, &outline)
	if len(outline) > 0 {
		res.Metadata["outline"] = outline
		if len(tree.Items) > 0 {
			res.Metadata["title"] = string(tree.Items[0].Title)
		}
	}
	return res, nil
}

// flattenOutline lists headings depth-first.
// Example: [Installation [Prerequisites]] -> ["# Installation", "## Prerequisites"]
func flattenOutline(items toc.Items, depth int, out *[]string) {
	for _, item := range items {
		if len(item.Title) > 0 {
			*out = append(*out, fmt.Sprintf("%s %s", strings.Repeat("#", depth), item.Title))
		}
		flattenOutline(item.Items, depth+1, out)
	}
}

// plainText walks the AST and keeps only readable text.
func plainText(doc ast.Node, source []byte) string {
	var buf bytes.Buffer

	endBlock := func() {
		if buf.Len() == 0 || bytes.HasSuffix(buf.Bytes(), []byte("\n\n")) {
			return
		}
		if bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
			buf.WriteByte('\n')
			return
		}
		buf.WriteString("\n\n")
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte('\n')
				}
			}
			return ast.WalkContinue, nil
		case *ast.String:
			if entering {
				buf.Write(node.Value)
			}
			return ast.WalkContinue, nil
		case *ast.AutoLink:
			if entering {
				buf.Write(node.Label(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					buf.Write(seg.Value(source))
				}
				endBlock()
			}
			return ast.WalkSkipChildren, nil
		}

		if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
			endBlock()
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(buf.String())
}
