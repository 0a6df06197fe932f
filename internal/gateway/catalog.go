// ABOUTME: Catalog view of a session's tools, resources and prompts
// ABOUTME: Renders Markdown descriptions to HTML with goldmark for browser clients

package gateway

import (
	"bytes"
	"encoding/json"

	"github.com/yuin/goldmark"

	"github.com/yashraj-dudhe/mcp-client/internal/session"
)

// markdown renders descriptions. Raw HTML in server-supplied text is omitted.
var markdown = goldmark.New()

// CatalogEntry is one tool, resource or prompt as shown to clients.
type CatalogEntry struct {
	Name            string          `json:"name,omitempty"`
	URI             string          `json:"uri,omitempty"`
	MimeType        string          `json:"mimeType,omitempty"`
	Description     string          `json:"description,omitempty"`
	DescriptionHTML string          `json:"descriptionHtml,omitempty"`
	Raw             json.RawMessage `json:"raw"`
}

// Catalog groups a session's entries by kind.
type Catalog struct {
	Tools     []CatalogEntry `json:"tools"`
	Resources []CatalogEntry `json:"resources"`
	Prompts   []CatalogEntry `json:"prompts"`
}

// SessionView is a session snapshot plus its rendered catalog.
type SessionView struct {
	session.Snapshot
	Catalog Catalog `json:"catalog"`
}

func newSessionView(snap session.Snapshot) SessionView {
	return SessionView{
		Snapshot: snap,
		Catalog: Catalog{
			Tools:     catalogEntries(snap.Tools),
			Resources: catalogEntries(snap.Resources),
			Prompts:   catalogEntries(snap.Prompts),
		},
	}
}

// catalogEntries keeps entries that are not objects as raw-only entries.
func catalogEntries(items []json.RawMessage) []CatalogEntry {
	entries := make([]CatalogEntry, 0, len(items))
	for _, item := range items {
		var fields struct {
			Name        string `json:"name"`
			URI         string `json:"uri"`
			MimeType    string `json:"mimeType"`
			Description string `json:"description"`
		}
		_ = json.Unmarshal(item, &fields)

		entries = append(entries, CatalogEntry{
			Name:            fields.Name,
			URI:             fields.URI,
			MimeType:        fields.MimeType,
			Description:     fields.Description,
			DescriptionHTML: renderMarkdown(fields.Description),
			Raw:             item,
		})
	}
	return entries
}

// renderMarkdown converts src to HTML, returning "" for empty input or on
// render failure.
func renderMarkdown(src string) string {
	if src == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return ""
	}
	return buf.String()
}
