// Package reconcile turns freshly rendered markup into DOM mutation
// operations.
//
// For every target selector the Reconciler asks a RenderFunc for the new
// markup of that selector and compares the fragment's root element with the
// element the live Document currently holds for the same selector:
//
//   - no markup: the element is gone, nothing is emitted
//   - same tag and id: a morph of the children, keeping permanent subtrees
//   - anything else: an innerHtml replacement with the fragment verbatim
//
// When no live document is available the fragment root is compared with the
// selector instead: a root that matches the selector is morphed.
//
// With no selectors the page path applies: the rendered page body is morphed
// into the live body.
package reconcile
