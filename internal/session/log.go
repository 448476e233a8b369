package session

import (
	"context"
	"log/slog"

	"go.klb.dev/mclip/internal/history"
)

const previewRunes = 120

// logCapture logs a clipboard capture at INFO (outcome, size) and DEBUG (text
// preview up to 120 runes).
func logCapture(outcome history.Outcome, text string, count int) {
	if outcome == history.RejectedEmpty {
		slog.Debug("clipboard changed, no text")
		return
	}
	slog.Info("clipboard captured", "outcome", outcome, "bytes", len(text), "entries", count)
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug("clipboard text", "preview", preview(text))
	}
}

func logCommit(index int, text string) {
	slog.Info("entry restored to clipboard", "index", index, "bytes", len(text))
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug("clipboard text", "preview", preview(text))
	}
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= previewRunes {
		return text
	}
	return string(r[:previewRunes]) + "…"
}
