// SPDX-License-Identifier: MIT
package profile

import "fmt"

// AmbiguousProfileError indicates that firmware data matched more than one
// candidate profile and no disambiguation rule resolved the tie.
type AmbiguousProfileError struct {
	ModelID    byte
	Candidates []string
}

func (e *AmbiguousProfileError) Error() string {
	return fmt.Sprintf("ambiguous device profile for model id 0x%02x: candidates %v", e.ModelID, e.Candidates)
}

// UnknownProfileError indicates firmware data couldn't be attributed to any
// registered profile at all.
type UnknownProfileError struct {
	Detail string
}

func (e *UnknownProfileError) Error() string {
	if e.Detail == "" {
		return "unknown device profile"
	}
	return fmt.Sprintf("unknown device profile: %s", e.Detail)
}
