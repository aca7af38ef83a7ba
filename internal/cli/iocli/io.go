// Package iocli abstracts terminal input/output so commands can be tested
// without a real terminal.
package iocli

//go:generate moq -out io_mock.go . IO

// IO is the terminal surface used by CLI commands.
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	ReadLine(prompt string) (string, error)
	ReadSecret(prompt string) (string, error)
}
