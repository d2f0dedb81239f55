package kb

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

func TestExtractTextPassthrough(t *testing.T) {
	got, err := ExtractText("notes.md", []byte("# Title\n\nBody."))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != "# Title\n\nBody." {
		t.Errorf("got %q", got)
	}
}

func TestExtractTextRejectsBinary(t *testing.T) {
	if _, err := ExtractText("blob.dat", []byte{0xff, 0xfe, 0x00, 0x80}); err == nil {
		t.Error("binary blob should fail extraction")
	}
}

func TestExtractTextRejectsInvalidUTF8Text(t *testing.T) {
	if _, err := ExtractText("bad.txt", []byte{'h', 'i', 0xff}); err == nil {
		t.Error("invalid UTF-8 .txt should fail")
	}
}

func TestExtractTextSizeLimit(t *testing.T) {
	big := make([]byte, MaxDocumentSize+1)
	if _, err := ExtractText("big.txt", big); err == nil {
		t.Error("oversized document should fail")
	}
}

func TestExtractDOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte(`<w:document><w:body>` +
		`<w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Second paragraph.</w:t></w:r></w:p>` +
		`</w:body></w:document>`))
	zw.Close()

	got, err := ExtractText("report.docx", buf.Bytes())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(got, "First paragraph.") || !strings.Contains(got, "Second paragraph.") {
		t.Errorf("got %q", got)
	}
}

func TestExtractDOCXMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, _ := zw.Create("other.xml")
	f.Write([]byte("<x/>"))
	zw.Close()

	if _, err := ExtractText("broken.docx", buf.Bytes()); err == nil {
		t.Error("docx without document.xml should fail")
	}
}

func TestChunkTextParagraphBoundaries(t *testing.T) {
	text := strings.Repeat("alpha ", 30) + "\n\n" + strings.Repeat("beta ", 30)
	chunks := ChunkText(text, 200)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d: %q", len(chunks), chunks)
	}
	if !strings.HasPrefix(chunks[0], "alpha") || !strings.HasPrefix(chunks[1], "beta") {
		t.Errorf("chunks split mid-paragraph: %q", chunks)
	}
}

func TestChunkTextSplitsOversizedParagraph(t *testing.T) {
	text := strings.Repeat("x", 2500)
	chunks := ChunkText(text, 1000)
	for i, c := range chunks {
		if len(c) > 1000 {
			t.Errorf("chunk %d has %d bytes", i, len(c))
		}
	}
	if total := strings.Join(chunks, ""); len(total) != 2500 {
		t.Errorf("content lost: %d bytes", len(total))
	}
}

func TestChunkTextEmpty(t *testing.T) {
	if chunks := ChunkText("   \n\n  ", 100); len(chunks) != 0 {
		t.Errorf("chunks = %q", chunks)
	}
}
