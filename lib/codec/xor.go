// SPDX-License-Identifier: MIT
package codec

// XOR applies a repeating-key XOR stream cipher: out[i] = data[i] ^
// key[i % len(key)]. It is its own inverse: XOR(key, XOR(key, data)) ==
// data for any key and data.
//
// Keys here are short ASCII strings. A trailing NUL in a key literal is
// significant and must be included in the key byte slice passed in —
// callers must not treat the key as a NUL-terminated C string.
func XOR(data, key []byte) []byte {
	out := make([]byte, len(data))
	if len(key) == 0 {
		copy(out, data)
		return out
	}

	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}

	return out
}
