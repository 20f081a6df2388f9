// Package crypto provides the hash primitives behind SMB1 challenge/response
// session setup.
package crypto

import (
	"crypto/hmac"
	"crypto/md5"

	"golang.org/x/crypto/md4"
)

// MD4Hash computes the MD4 hash of data
func MD4Hash(data []byte) []byte {
	h := md4.New()
	h.Write(data)
	return h.Sum(nil)
}

// HMACMD5 computes HMAC-MD5
func HMACMD5(key []byte, data ...[]byte) []byte {
	h := hmac.New(md5.New, key)
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}
