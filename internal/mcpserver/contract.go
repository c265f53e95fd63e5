package mcpserver

// TiddlerFormatContract describes how tiddlers are stored in a hosted
// TiddlyWiki file, for LLM consumers that read or write them.
const TiddlerFormatContract = `# twhost Tiddler Format

Every site is one self-contained TiddlyWiki HTML file. Its content is a list
of tiddlers kept in the store area of the document.

## Storage

` + "```" + `html
<div id="storeArea">
  <div title="GettingStarted" tags="docs [[first steps]]"><pre>Welcome!</pre></div>
</div>
` + "```" + `

## Rules

1. **Titles are unique.** A title that appears more than once marks the file
   as corrupt; reads and writes of that title fail until it is repaired.
2. **Writing an existing title replaces it in place.** New titles are added
   at the end of the store.
3. **Tags** use list syntax: space separated, with ` + "`" + `[[double brackets]]` + "`" + ` around
   tags that contain spaces.
4. **System tiddlers** have titles starting with ` + "`" + `$:/` + "`" + `. They are hidden from
   listings unless ` + "`" + `include_system` + "`" + ` is set, but can always be read by exact title.
5. **Text** is TiddlyWiki wikitext. It is stored as-is; HTML special characters
   are escaped when the file is saved.
6. **Encrypted sites** cannot be read or written. Writes are skipped and the
   file is left unchanged.
7. **Dialects:** TiddlyWiki 5 ("tw5") and TiddlyWiki Classic 2.x ("classic")
   are both supported. The dialect is reported by the ` + "`" + `site_info` + "`" + ` tool.

## Example

Tool ` + "`" + `write_tiddler` + "`" + `:

` + "```" + `json
{
  "site": "notes",
  "title": "Weekly standup 2025-01-20",
  "text": "Attendees: Alice, Bob.\n\n* [[Alice]] to review the [[Design Doc]]",
  "tags": "meetings [[project x]]"
}
` + "```" + `
`
