package output

import (
	"io"
	"time"

	"github.com/briandowns/spinner"
)

// Progress shows a spinner on a terminal while a blocking call runs.
// On anything else it does nothing.
type Progress struct {
	s *spinner.Spinner
}

// StartProgress starts a spinner on w with the given message.
func StartProgress(w io.Writer, message string) *Progress {
	if !IsTerminal(w) {
		return &Progress{}
	}
	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + message
	s.Start()
	return &Progress{s: s}
}

// Stop removes the spinner. It is safe to call more than once.
func (p *Progress) Stop() {
	if p == nil || p.s == nil {
		return
	}
	p.s.Stop()
}
