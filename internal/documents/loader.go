package documents

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"rsc.io/pdf"
)

// textLoader turns stored documents into plain text through the eino file
// loader, dispatching on file extension.
type textLoader struct {
	loader *file.FileLoader
}

func newTextLoader(ctx context.Context) (*textLoader, error) {
	parserExt, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		Parsers: map[string]parser.Parser{
			".pdf":  pdfParser{},
			".docx": docxParser{},
			".doc":  legacyDocParser{},
		},
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}
	return &textLoader{loader: loader}, nil
}

func (l *textLoader) Text(ctx context.Context, path string) (string, error) {
	docs, err := l.loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		return "", fmt.Errorf("load file: %w", err)
	}
	var builder strings.Builder
	for _, doc := range docs {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}
		builder.WriteString(content)
		builder.WriteString("\n\n")
	}
	return strings.TrimSpace(builder.String()), nil
}

type pdfParser struct{}

func (pdfParser) Parse(_ context.Context, reader io.Reader, _ ...parser.Option) (docs []*schema.Document, err error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	// rsc.io/pdf panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			docs, err = nil, fmt.Errorf("parse pdf: %v", r)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	var b strings.Builder
	for i := 1; i <= doc.NumPage(); i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		parts := make([]string, 0)
		for _, text := range page.Content().Text {
			if strings.TrimSpace(text.S) == "" {
				continue
			}
			parts = append(parts, text.S)
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, "[page %d]\n%s\n", i, strings.Join(parts, " "))
		}
	}
	return []*schema.Document{{Content: b.String()}}, nil
}

type docxParser struct{}

func (docxParser) Parse(_ context.Context, reader io.Reader, _ ...parser.Option) ([]*schema.Document, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	text, err := docxText(data)
	if err != nil {
		return nil, err
	}
	return []*schema.Document{{Content: text}}, nil
}

// docxText reads the paragraphs of word/document.xml.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return "", errors.New("docx: word/document.xml missing")
	}
	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("docx: %w", err)
	}
	defer rc.Close()

	var (
		b      strings.Builder
		inText bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("docx xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// legacyDocParser salvages readable runs from binary .doc files.
type legacyDocParser struct{}

func (legacyDocParser) Parse(_ context.Context, reader io.Reader, _ ...parser.Option) ([]*schema.Document, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	return []*schema.Document{{Content: printableRuns(data, 4)}}, nil
}

func printableRuns(data []byte, minRun int) string {
	var (
		out strings.Builder
		run []byte
	)
	flush := func() {
		if len(strings.TrimSpace(string(run))) >= minRun {
			out.Write(run)
			out.WriteByte('\n')
		}
		run = run[:0]
	}
	for _, c := range data {
		if c < unicode.MaxASCII && (unicode.IsPrint(rune(c)) || c == '\t') {
			run = append(run, c)
			continue
		}
		flush()
	}
	flush()
	return strings.TrimSpace(out.String())
}
