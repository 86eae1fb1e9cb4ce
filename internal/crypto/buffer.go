package crypto

// CiphertextLength returns the encrypted length of a file with plaintextSize
// bytes.
func CiphertextLength(plaintextSize int) int {
	return plaintextSize + Extension
}

// PlaintextLength returns the decrypted length of a file with ciphertextSize
// bytes, or -1 if the size cannot hold the crypto overhead.
func PlaintextLength(ciphertextSize int) int {
	if ciphertextSize < Extension {
		return -1
	}
	return ciphertextSize - Extension
}

// NewBlobBuffer returns a buffer that is large enough to hold size plaintext
// bytes, including the crypto overhead.
func NewBlobBuffer(size int) []byte {
	return make([]byte, size, size+Extension)
}
