package util

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestParseLinks(t *testing.T) {
	page := `<html><body>
	<a href="/">Parent</a>
	<a href="checkm_data_2015_01_16.tar.gz">old</a>
	<a href="https://example.com/checkm_data_2022_07_02.TAR.GZ">new</a>
	<a href="readme.txt">readme</a>
	<div><p><a href="nested/archive.tar.gz">nested</a></p></div>
	</body></html>`

	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}

	links := ParseLinks(doc, ".tar.gz")
	want := []string{
		"checkm_data_2015_01_16.tar.gz",
		"https://example.com/checkm_data_2022_07_02.TAR.GZ",
		"nested/archive.tar.gz",
	}
	if len(links) != len(want) {
		t.Fatalf("got %d links %v, want %d", len(links), links, len(want))
	}
	for i, w := range want {
		if links[i] != w {
			t.Errorf("links[%d] = %q, want %q", i, links[i], w)
		}
	}
}

func TestParseLinksNoMatches(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<a href="file.zip">zip</a>`))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	if links := ParseLinks(doc, ".tar.gz"); len(links) != 0 {
		t.Errorf("got %v, want no links", links)
	}
}
