package kb

import (
	"context"
	"log/slog"
	"testing"
)

func TestIndexDocumentSkipsBlankText(t *testing.T) {
	// No client is wired up: a blank document must return before any
	// collection or embedding work happens.
	ix := &Indexer{logger: slog.Default()}

	for _, text := range []string{"", "   ", "\n\t\n"} {
		if err := ix.IndexDocument(context.Background(), "acme", "default", "empty.txt", text); err != nil {
			t.Errorf("IndexDocument(%q) = %v, want nil", text, err)
		}
	}
}

func TestCollectionName(t *testing.T) {
	if got := CollectionName("acme", "default"); got != "kb_acme_default" {
		t.Errorf("CollectionName = %q", got)
	}
}
