// SPDX-License-Identifier: MIT
package codec

import "fmt"

// BadLengthError indicates an input buffer had a length the transform
// can't operate on (an Unpack input not a multiple of 8, or a checksum
// input that isn't exactly 256 bytes).
type BadLengthError struct {
	Op       string
	Got      int
	Required string
}

func (e *BadLengthError) Error() string {
	return fmt.Sprintf("%s: bad length %d, need %s", e.Op, e.Got, e.Required)
}
