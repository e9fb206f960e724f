// Package manual renders the key reference overlay from Markdown.
package manual

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

const page = `# paramlink

A console for one control endpoint. Every response is shown as it
arrives; commands are queued to the link and never wait for a reply.

## Link

| key | action |
|-----|--------|
| c | connect to the configured address |
| x | disconnect |

## Commands

| key | action |
|-----|--------|
| l | ListParameters |
| s | ListSignals |
| g | GetParameterValue for the selected row |
| e, enter | SetParameterValue for the selected row |
| w | SubscribeToSignal for the selected row |
| C | CloseListenerThread |

## Views

| key | action |
|-----|--------|
| j/k, ↑/↓ | move in the table |
| tab | switch focus between table and log |
| ? | this page |
| esc | close overlay or cancel edit |
| q | quit |
`

// Render returns the page word-wrapped to width. It falls back to the raw
// Markdown if the renderer fails.
func Render(width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(width-4, 20)),
	)
	if err != nil {
		return page
	}
	out, err := r.Render(page)
	if err != nil {
		return page
	}
	return strings.TrimRight(out, "\n")
}
