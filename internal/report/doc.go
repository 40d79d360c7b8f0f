// Package report renders crawl results for people and tools.
//
// Three writers share the Writer interface:
//   - TextWriter: a plain text summary for the terminal
//   - JSONWriter: the stats and every result as one JSON document
//   - MarkdownWriter: tables and a status chart for sharing
//
// A Report bundles what a crawl produced. When it carries a Diff against
// an earlier session, every writer adds a changes section.
//
// Writers can be combined with MultiWriter to emit several formats at once.
package report
