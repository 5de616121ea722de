package reconcile

import (
	"golang.org/x/net/html"

	"github.com/vango-dev/reflex/pkg/dom"
)

func mustParse(src string) *html.Node {
	n, err := dom.Parse(src)
	if err != nil {
		panic(err)
	}
	return n
}
