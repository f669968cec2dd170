package api

import (
	"strings"
	"testing"
	"time"
)

var testPaper = Paper{
	ID:         "1706.03762",
	Version:    7,
	Title:      "Attention Is All You Need",
	Authors:    []string{"Ashish Vaswani", "Noam Shazeer"},
	Abstract:   "The dominant sequence transduction models.",
	Categories: []string{"cs.CL", "cs.LG"},
	Published:  time.Date(2017, 6, 12, 0, 0, 0, 0, time.UTC),
	AbsURL:     "https://arxiv.org/abs/1706.03762v7",
	PDFURL:     "https://arxiv.org/pdf/1706.03762v7",
	DOI:        "10.48550/arXiv.1706.03762",
}

func TestToMarkdown(t *testing.T) {
	md, err := ToMarkdown(testPaper, readTestFile(t, "paper.html"))
	if err != nil {
		t.Fatalf("ToMarkdown() error = %v", err)
	}

	for _, want := range []string{
		"# Attention Is All You Need\n",
		"**Authors:** Ashish Vaswani, Noam Shazeer",
		"**Categories:** cs.CL, cs.LG",
		"**Published:** 2017-06-12",
		"[1706.03762v7](https://arxiv.org/abs/1706.03762v7)",
		"**DOI:** 10.48550/arXiv.1706.03762",
		"## Abstract\n\nThe dominant sequence transduction models.",
		"1 Introduction",
		"Recurrent neural networks have been firmly established",
		"2 Background",
		"sequential computation",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("ToMarkdown() missing %q\n%s", want, md)
		}
	}

	for _, unwanted := range []string{
		"analytics",
		"Back to arXiv",
		"Generated by LaTeXML",
		"Report issue",
		"The abstract text.",
	} {
		if strings.Contains(md, unwanted) {
			t.Errorf("ToMarkdown() contains page furniture %q\n%s", unwanted, md)
		}
	}
}

func TestAbstractMarkdown(t *testing.T) {
	md := AbstractMarkdown(testPaper)

	if !strings.HasPrefix(md, "# Attention Is All You Need\n") {
		t.Errorf("AbstractMarkdown() header missing\n%s", md)
	}
	if !strings.Contains(md, "Read the PDF at https://arxiv.org/pdf/1706.03762v7") {
		t.Errorf("AbstractMarkdown() PDF pointer missing\n%s", md)
	}
}
