package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/chatbridge/internal/reply"
)

type recordingBot struct {
	queries []string
	types   []reply.ContextType
}

func (b *recordingBot) Reply(ctx context.Context, query string, rc reply.Context) reply.Reply {
	b.queries = append(b.queries, query)
	b.types = append(b.types, rc.Type)
	if rc.Type == reply.ContextImageCreate {
		return reply.ImageURL("https://img/" + query)
	}
	return reply.Text("re: " + query)
}

func TestRunTerminal(t *testing.T) {
	b := &recordingBot{}
	in := strings.NewReader("hello\n\n/image cat\n#清除记忆\n")
	var out bytes.Buffer

	require.NoError(t, runTerminal(context.Background(), b, "term-1", in, &out))

	assert.Equal(t, []string{"hello", "cat", "#清除记忆"}, b.queries)
	assert.Equal(t, []reply.ContextType{reply.ContextText, reply.ContextImageCreate, reply.ContextText}, b.types)
	assert.Contains(t, out.String(), "bot> re: hello")
	assert.Contains(t, out.String(), "bot> [image] https://img/cat")
}

func TestFormatReply(t *testing.T) {
	assert.Equal(t, "hi", formatReply(reply.Text("hi")))
	assert.Equal(t, "[ERROR] 请再问我一次", formatReply(reply.Error("请再问我一次")))
	assert.Equal(t, "[INFO] 记忆已清除", formatReply(reply.Info("记忆已清除")))
}

func TestRun_Help(t *testing.T) {
	assert.NoError(t, run([]string{"--help"}))
	assert.Error(t, run([]string{"serve", "extra"}))
}
