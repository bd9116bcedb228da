package mcpserver

// BookmarkContract describes the addressing and metadata conventions
// that LLM consumers should follow when working with bookmarks.
const BookmarkContract = `# Othala Bookmark Addressing Contract

## Paths

- A path is a chain of names joined with ` + "`" + `/` + "`" + `: the first segment is a
  shelf, every further segment is a folder inside it (e.g.
  ` + "`" + `research/papers/2026` + "`" + `).
- ` + "`" + `~` + "`" + ` at the start of a path is shorthand for the default shelf.
- Matching is case-insensitive; creation keeps the spelling you pass.
- Tools that take a destination path create missing segments on the fly.
- The names ` + "`" + `browser bookmarks` + "`" + ` and ` + "`" + `cloud` + "`" + ` belong to the built-in
  synchronized shelves. Do not create shelves with these names.

## Names

- Sibling names are unique per folder. A clashing name gets a numeric
  suffix automatically: ` + "`" + `paper` + "`" + `, ` + "`" + `paper (1)` + "`" + `, ` + "`" + `paper (2)` + "`" + `.

## Tags

- Tags are passed as one comma-separated string: ` + "`" + `golang, databases` + "`" + `.
- Tags are lowercase single words or hyphenated phrases.

## Node types

- ` + "`" + `shelf` + "`" + ` and ` + "`" + `folder` + "`" + ` are containers, ` + "`" + `bookmark` + "`" + ` holds a url,
  ` + "`" + `archive` + "`" + ` is a bookmark with a stored page copy, ` + "`" + `notes` + "`" + ` is a
  standalone note node.

## Archives

- Attach a page copy with the ` + "`" + `attach_archive` + "`" + ` tool. Text content is
  word-indexed and becomes searchable via ` + "`" + `search_bookmarks` + "`" + `; binary
  content is stored as-is.
- Search queries match whole words, every word must be present.

## TODO states

- Nodes carry an optional todo state: ` + "`" + `TODO` + "`" + `, ` + "`" + `WAITING` + "`" + `,
  ` + "`" + `POSTPONED` + "`" + `, ` + "`" + `DONE` + "`" + `, ` + "`" + `CANCELLED` + "`" + `.
`
