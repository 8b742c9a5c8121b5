package utils

import (
	"os"
	"strings"
	"time"
)

// WaitForCondition polls condition every interval until it returns true or
// timeout elapses. It reports whether the condition was met.
func WaitForCondition(timeout, interval time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(interval)
	}
	return condition()
}

// WaitForFiles waits until every path exists.
func WaitForFiles(timeout, interval time.Duration, paths ...string) bool {
	return WaitForCondition(timeout, interval, func() bool {
		for _, path := range paths {
			if _, err := os.Stat(path); err != nil {
				return false
			}
		}
		return true
	})
}

// WaitForFileContent waits until path exists and contains every substring
// in expected.
func WaitForFileContent(timeout, interval time.Duration, path string, expected []string) bool {
	return WaitForCondition(timeout, interval, func() bool {
		content, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		for _, want := range expected {
			if !strings.Contains(string(content), want) {
				return false
			}
		}
		return true
	})
}
