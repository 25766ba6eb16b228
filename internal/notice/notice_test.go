package notice

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLog_Drain(t *testing.T) {
	var l Log
	l.Notify(Notice{Level: Info, Message: "one"})
	l.Notify(Notice{Level: Error, Title: "Oops", Message: "two"})

	assert.Len(t, l.All(), 2)
	drained := l.Drain()
	assert.Len(t, drained, 2)
	assert.Equal(t, "two", drained[1].Message)
	assert.Empty(t, l.All())
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{W: &buf}
	p.Notify(Notice{Level: Warning, Title: "No Entries Selected", Message: "Pick rows"})
	p.Notify(Notice{Level: Success, Message: "done"})

	assert.Equal(t, "[warning] No Entries Selected: Pick rows\n[success] done\n", buf.String())
}
