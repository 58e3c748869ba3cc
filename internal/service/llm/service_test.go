package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type fakeChatModel struct {
	reply string
	err   error
	seen  [][]*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.seen = append(f.seen, input)
	if f.err != nil {
		return nil, f.err
	}
	return &schema.Message{Role: schema.Assistant, Content: f.reply}, nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func TestExtractTextDocument(t *testing.T) {
	text := &fakeChatModel{reply: "```json\n{\"vendors\": []}\n```"}
	vision := &fakeChatModel{}
	svc := NewServiceWithModels(text, vision, "low", nil)

	out, err := svc.Extract(context.Background(), ExtractRequest{ProjectType: "office", FileName: "spec.pdf", Text: "Provide smoke detectors"})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if string(out) != `{"vendors":[]}` {
		t.Fatalf("unexpected content %s", out)
	}
	if len(text.seen) != 1 || len(vision.seen) != 0 {
		t.Fatalf("expected text model only, text=%d vision=%d", len(text.seen), len(vision.seen))
	}
	msgs := text.seen[0]
	if msgs[0].Role != schema.System || !strings.Contains(msgs[1].Content, "Provide smoke detectors") {
		t.Fatalf("prompt missing document text: %#v", msgs[1])
	}
	if !strings.Contains(msgs[1].Content, "estimation_elements") {
		t.Fatalf("prompt missing schema hint")
	}
}

func TestExtractImageUsesVisionModel(t *testing.T) {
	text := &fakeChatModel{}
	vision := &fakeChatModel{reply: `Here you go: {"estimation_elements": [{"description": "x"}]} thanks`}
	svc := NewServiceWithModels(text, vision, "low", nil)

	out, err := svc.Extract(context.Background(), ExtractRequest{FileName: "plan.png", Image: []byte{0x89, 'P', 'N', 'G'}, ImageMIME: "image/png"})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.HasPrefix(string(out), `{"estimation_elements"`) {
		t.Fatalf("unexpected content %s", out)
	}
	user := vision.seen[0][1]
	if len(user.MultiContent) != 2 {
		t.Fatalf("expected text and image parts, got %d", len(user.MultiContent))
	}
	img := user.MultiContent[1].ImageURL
	if img == nil || !strings.HasPrefix(img.URL, "data:image/png;base64,") || img.Detail != schema.ImageURLDetailLow {
		t.Fatalf("image part mismatch: %#v", img)
	}
}

func TestExtractUpstreamErrors(t *testing.T) {
	svc := NewServiceWithModels(&fakeChatModel{err: errors.New("429 rate limited: {\"error\":\"quota\"}")}, nil, "", nil)
	_, err := svc.Extract(context.Background(), ExtractRequest{Text: "x"})
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if !strings.Contains(upErr.Body, "quota") {
		t.Fatalf("upstream body not preserved: %q", upErr.Body)
	}

	svc = NewServiceWithModels(&fakeChatModel{reply: "I cannot read this file."}, nil, "", nil)
	_, err = svc.Extract(context.Background(), ExtractRequest{Text: "x"})
	if !errors.As(err, &upErr) || upErr.Body != "I cannot read this file." {
		t.Fatalf("expected non-JSON reply to surface as UpstreamError, got %v", err)
	}
}

func TestExtractJSONObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"a":1}`, `{"a":1}`, true},
		{"```json\n{ \"a\": 1 }\n```", `{"a":1}`, true},
		{`prefix {"a": {"b": 2}} suffix`, `{"a":{"b":2}}`, true},
		{`no json here`, ``, false},
		{`{"a": }`, ``, false},
	}
	for _, tc := range cases {
		got, ok := ExtractJSONObject(tc.in)
		if ok != tc.ok || string(got) != tc.want {
			t.Fatalf("ExtractJSONObject(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
