package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/ChamsBouzaiene/chatbridge/internal/bot"
	"github.com/ChamsBouzaiene/chatbridge/internal/reply"
)

// imagePrefix marks a terminal line as an image request.
const imagePrefix = "/image "

// runTerminal is the terminal channel: one line in, one reply out.
func runTerminal(ctx context.Context, b bot.Bot, sessionID string, in io.Reader, out io.Writer) error {
	log.Printf("[TERMINAL] session=%s (type %q followed by a prompt to create an image)", sessionID, strings.TrimSpace(imagePrefix))

	lines := make(chan string)
	go func() {
		defer close(lines)
		s := bufio.NewScanner(in)
		s.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for s.Scan() {
			lines <- s.Text()
		}
	}()

	for {
		fmt.Fprint(out, "you> ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		rc := reply.Context{Type: reply.ContextText, SessionID: sessionID}
		if rest, ok := strings.CutPrefix(line, imagePrefix); ok {
			rc.Type = reply.ContextImageCreate
			line = rest
		}

		r := b.Reply(ctx, line, rc)
		fmt.Fprintf(out, "bot> %s\n", formatReply(r))
	}
}

func formatReply(r reply.Reply) string {
	switch r.Type {
	case reply.TypeText:
		return r.Content
	case reply.TypeImageURL:
		return "[image] " + r.Content
	default:
		return fmt.Sprintf("[%s] %s", r.Type, r.Content)
	}
}
