// Package dom extracts and resolves element identity on parsed HTML documents.
//
// It is the receiving side of the reflex protocol expressed over
// golang.org/x/net/html trees: the Extractor snapshots an element's
// attributes and merged dataset when an invocation is created, and Resolve
// finds the element again from that snapshot when a broadcast comes back
// and the element has no stable id.
//
// # Dataset merging
//
// The dataset attribute (default "data-reflex-dataset") holds a
// space-delimited token list. Each token selects more elements whose data-*
// attributes are merged into the snapshot:
//
//	parent       the element's parent
//	ancestors    all ancestors ("combined" is a deprecated alias)
//	siblings     preceding and following siblings
//	children     direct children
//	descendants  all descendants
//	<selector>   any other token is a CSS selector run against the document
//
// When a key is seen more than once, a pluralized key ("data-id" ->
// "data-ids") collects every value in document order.
package dom
