package msg

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Out is where all messages go. Tests swap it for a buffer.
var Out io.Writer = color.Output

// Verbose enables Debug output.
var Verbose bool

// exit is replaced in tests so Fatal can be observed.
var exit = os.Exit

func print(tag string, format string, a ...any) {
	fmt.Fprint(Out, tag)
	fmt.Fprint(Out, ": ")
	fmt.Fprintf(Out, format, a...)
	fmt.Fprint(Out, "\n")
}

func Error(format string, a ...any) {
	print(color.HiRedString("error"), format, a...)
}

func Warn(format string, a ...any) {
	print(color.YellowString("warn"), format, a...)
}

func Fatal(format string, a ...any) {
	print(color.RedString("fatal"), format, a...)
	exit(1)
}

func Info(format string, a ...any) {
	print(color.HiGreenString("info"), format, a...)
}

func Debug(format string, a ...any) {
	if !Verbose {
		return
	}
	print(color.HiBlackString("debug"), format, a...)
}

type IndentWriter struct {
	Indent    string
	W         io.Writer
	didIndent bool
}

func (w *IndentWriter) Write(p []byte) (n int, err error) {
	for _, c := range p {
		if !w.didIndent {
			if _, err := w.W.Write([]byte(w.Indent)); err != nil {
				return n, err
			}
			w.didIndent = true
		}
		if _, err := w.W.Write([]byte{c}); err != nil { // FIXME-perf: buffer this
			return n, err
		}
		n++
		if c == '\n' || c == '\r' {
			w.didIndent = false
		}
	}
	return n, nil
}
