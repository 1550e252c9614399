package transfer

const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// EncodeBase64 encodes raw bytes as standard base64 with padding.
//
// The encoding is done with an explicit 3-byte → 4-character loop instead of
// encoding/base64 so the algorithm is byte-for-byte identical to the
// serializer embedded in sandboxed document contexts, which have no access to
// a platform base64 primitive.
func EncodeBase64(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	out := make([]byte, 0, ((len(data)+2)/3)*4)
	i := 0

	for ; i+3 <= len(data); i += 3 {
		n := uint32(data[i])<<16 | uint32(data[i+1])<<8 | uint32(data[i+2])
		out = append(out,
			base64Alphabet[n>>18&0x3F],
			base64Alphabet[n>>12&0x3F],
			base64Alphabet[n>>6&0x3F],
			base64Alphabet[n&0x3F])
	}

	switch len(data) - i {
	case 1:
		n := uint32(data[i]) << 16
		out = append(out,
			base64Alphabet[n>>18&0x3F],
			base64Alphabet[n>>12&0x3F],
			'=', '=')
	case 2:
		n := uint32(data[i])<<16 | uint32(data[i+1])<<8
		out = append(out,
			base64Alphabet[n>>18&0x3F],
			base64Alphabet[n>>12&0x3F],
			base64Alphabet[n>>6&0x3F],
			'=')
	}

	return string(out)
}
