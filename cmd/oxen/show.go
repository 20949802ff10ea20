package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/oxen-vcs/oxen-core/internal/merkle"
	"github.com/oxen-vcs/oxen-core/internal/repo"
	"github.com/oxen-vcs/oxen-core/internal/termcolor"
)

func runShow(r *repo.Repository, args []string, cw *termcolor.Writer) int {
	render := false
	rev := ""
	for _, arg := range args {
		if arg == "--render" {
			render = true
		} else {
			rev = arg
		}
	}

	h, err := resolveRev(r, rev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	c, err := r.GetCommit(h)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	fmt.Printf("%s %s\n", cw.Yellow("commit"), h.String())
	if len(c.Parents) > 1 {
		parts := make([]string, len(c.Parents))
		for i, p := range c.Parents {
			parts[i] = p.Short(8)
		}
		fmt.Printf("Merge: %s\n", strings.Join(parts, " "))
	}
	fmt.Printf("Author: %s <%s>\n", c.AuthorName, c.AuthorEmail)
	fmt.Printf("Date:   %s\n", c.Timestamp.Format("Mon Jan 2 15:04:05 2006 -0700"))
	fmt.Println()

	if !render {
		for _, line := range strings.Split(c.Message, "\n") {
			fmt.Printf("    %s\n", line)
		}
		return 0
	}

	// --render converts the commit message to HTML, and does the same for
	// README.md at the commit's root if present, since that is the one
	// Markdown file every repository is likely to have.
	if html, err := renderMarkdown([]byte(c.Message)); err == nil {
		fmt.Print(html)
	} else {
		fmt.Println(c.Message)
	}

	node, err := merkle.GetByPath(r.Objects, c.RootHash, "README.md")
	if err != nil {
		return 0
	}
	f, ok := node.(*merkle.File)
	if !ok {
		return 0
	}
	content, err := merkle.ReadFileContent(r.Objects, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: render README.md: %v\n", err)
		return 128
	}
	html, err := renderMarkdown(content)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: render README.md: %v\n", err)
		return 128
	}
	fmt.Println("\n--- README.md ---")
	fmt.Print(html)
	return 0
}

func renderMarkdown(src []byte) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert(src, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
