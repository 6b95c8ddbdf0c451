package logger

import (
	"bytes"
	"io"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggers(t *testing.T) {
	t.Cleanup(func() {
		Debug.SetOutput(io.Discard)
		Info.SetOutput(os.Stdout)
		Warn.SetOutput(os.Stderr)
		Err.SetOutput(os.Stderr)
		SetLogsFlags(0)
		Debug.SetFlags(log.Lshortfile)
	})

	var buf bytes.Buffer
	Info.SetOutput(&buf)
	Debug.Println("hidden")
	Info.Println("shown")
	require.Equal(t, "[Info] mbr: shown\n", buf.String())

	buf.Reset()
	SetLogsOutput(&buf)
	SetLogsFlags(0)
	Debug.Println("now visible")
	Warn.Println("careful")
	require.Equal(t, "[Debug] mbr: now visible\n[Warning] mbr: careful\n", buf.String())

	buf.Reset()
	EnableDebug(&buf)
	SetLogsPrefix("x: ")
	t.Cleanup(func() {
		Debug.SetPrefix("[Debug] mbr: ")
		Info.SetPrefix("[Info] mbr: ")
		Warn.SetPrefix("[Warning] mbr: ")
		Err.SetPrefix("[Error] mbr: ")
	})
	Err.Println("bad")
	Debug.Println("dbg")
	require.Equal(t, "x: bad\nx: dbg\n", buf.String())
}
