// Package sh is the operator console of a production station.
package sh

import (
	"context"
	"strings"
	"sync"

	"github.com/abiosoft/ishell"

	fx "github.com/amber-eeg/prodloader/pkg/framework"
)

// DefaultPrompt is shown while asking for a decision.
const DefaultPrompt = "Enter y to reprogram: "

// Shell provides an ishell backed operator console.
type Shell struct {
	Shell  *ishell.Shell
	Prompt string

	lock sync.Mutex
}

// New creates a console on the process terminal.
func New() *Shell {
	s := &Shell{Shell: ishell.New(), Prompt: DefaultPrompt}
	s.Shell.SetPrompt(s.Prompt)
	return s
}

// Write prints operator output through the console.
func (s *Shell) Write(p []byte) (int, error) {
	s.Shell.Print(string(p))
	return len(p), nil
}

// Confirm prints question and reads an answer; only "y" confirms. A
// canceled ctx abandons the pending read.
func (s *Shell) Confirm(ctx context.Context, question string) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.Shell.Println(question)
	var answer string
	err := fx.RunWithContext(ctx, func() error {
		answer = s.Shell.ReadLine()
		return nil
	})
	if err != nil {
		return false, err
	}
	return IsYes(answer), nil
}

// Close releases the terminal.
func (s *Shell) Close() error {
	s.Shell.Close()
	return nil
}

// IsYes reports whether answer confirms.
func IsYes(answer string) bool {
	return strings.TrimSpace(answer) == "y"
}

// Fixed answers every question the same way, for unattended stations
// and tests.
type Fixed struct {
	Answer bool

	lock      sync.Mutex
	questions []string
}

// Confirm implements the station's confirmation provider.
func (f *Fixed) Confirm(_ context.Context, question string) (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.questions = append(f.questions, question)
	return f.Answer, nil
}

// Asked returns the questions asked so far.
func (f *Fixed) Asked() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.questions...)
}
