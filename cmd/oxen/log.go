package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/oxen-vcs/oxen-core/internal/repo"
	"github.com/oxen-vcs/oxen-core/internal/termcolor"
)

func runLog(r *repo.Repository, args []string, cw *termcolor.Writer) int {
	oneline := false
	limit := -1

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--oneline":
			oneline = true
		case args[i] == "-n" && i+1 < len(args):
			if n, err := strconv.Atoi(args[i+1]); err == nil {
				limit = n
			}
			i++
		case strings.HasPrefix(args[i], "-n"):
			if n, err := strconv.Atoi(strings.TrimPrefix(args[i], "-n")); err == nil {
				limit = n
			}
		}
	}

	h, ok, err := r.HeadCommit()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	if !ok {
		fmt.Println("fatal: no commits yet")
		return 128
	}

	count := 0
	for !h.IsZero() {
		if limit >= 0 && count >= limit {
			break
		}
		c, err := r.GetCommit(h)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}

		if oneline {
			fmt.Printf("%s %s\n", cw.Yellow(h.Short(8)), firstLine(c.Message))
		} else {
			fmt.Printf("%s %s\n", cw.Yellow("commit"), h.String())
			fmt.Printf("Author: %s <%s>\n", c.AuthorName, c.AuthorEmail)
			fmt.Printf("Date:   %s\n", c.Timestamp.Format("Mon Jan 2 15:04:05 2006 -0700"))
			fmt.Println()
			for _, line := range strings.Split(c.Message, "\n") {
				fmt.Printf("    %s\n", line)
			}
			fmt.Println()
		}

		count++
		if len(c.Parents) == 0 {
			break
		}
		h = c.Parents[0]
	}

	return 0
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
