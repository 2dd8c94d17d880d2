package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Notifications go to stderr so stdout stays clean for answers and tables.

func printSuccess(format string, args ...any) {
	fmt.Fprintln(os.Stderr, styles.Success.Render("✓ ")+fmt.Sprintf(format, args...))
}

func printFailure(format string, args ...any) {
	fmt.Fprintln(os.Stderr, styles.Error.Render("✗ ")+fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Fprintln(os.Stderr, styles.Info.Render("• ")+fmt.Sprintf(format, args...))
}

// confirm asks a yes/no question on r. Anything but y/yes is a no.
func confirm(r io.Reader, prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	var answer string
	if _, err := fmt.Fscanln(r, &answer); err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
