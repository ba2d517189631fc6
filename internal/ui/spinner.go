package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// lineSpinner animates one status line until stopped. It does not take over
// the terminal, so log output before and after stays visible.
type lineSpinner struct {
	message  string
	spinner  spinner.Spinner
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func startSpinner(s spinner.Spinner, message string) func() {
	sp := &lineSpinner{message: message, spinner: s, done: make(chan struct{})}
	sp.wg.Add(1)
	go sp.run()
	return sp.stop
}

func (s *lineSpinner) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.spinner.FPS)
	defer ticker.Stop()

	for i := 0; ; i++ {
		frame := SpinnerStyle.Render(s.spinner.Frames[i%len(s.spinner.Frames)])
		fmt.Printf("\r%s %s", frame, s.message)
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
	}
}

func (s *lineSpinner) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		fmt.Print("\r\033[K") // Clear the line
	})
}

// RunConnectionSpinner starts a spinner for network operations and returns
// its stop function. Stopping twice is harmless.
func RunConnectionSpinner(message string) func() {
	return startSpinner(spinner.Globe, message)
}

// RunWaitingSpinner starts a spinner for waiting on the relay.
func RunWaitingSpinner(message string) func() {
	return startSpinner(spinner.Points, message)
}
