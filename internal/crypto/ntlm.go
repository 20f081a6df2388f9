package crypto

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
)

// NTHash computes MD4(UTF-16LE(password)).
func NTHash(password string) []byte {
	return MD4Hash(encoding.ToUTF16LE(password))
}

// NTLMv2Hash computes HMAC-MD5(NT hash, UPPER(user) + domain).
func NTLMv2Hash(ntHash []byte, username, domain string) []byte {
	return HMACMD5(ntHash, encoding.ToUTF16LE(strings.ToUpper(username)+domain))
}

// ClientChallenge returns 8 random bytes.
func ClientChallenge() []byte {
	c := make([]byte, 8)
	rand.Read(c)
	return c
}

// LMv2Response is HMAC-MD5(v2 hash, server || client challenge) || client challenge.
func LMv2Response(v2Hash, serverChallenge, clientChallenge []byte) []byte {
	resp := HMACMD5(v2Hash, serverChallenge, clientChallenge)
	return append(resp, clientChallenge...)
}

// NTLMv2Response returns NTProofStr || blob and the session base key. A zero
// timestamp means now.
func NTLMv2Response(v2Hash, serverChallenge, clientChallenge []byte, timestamp time.Time, targetInfo []byte) (response, sessionKey []byte) {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	blob := ntlmv2Blob(clientChallenge, encoding.FileTime(timestamp), targetInfo)

	proof := HMACMD5(v2Hash, serverChallenge, blob)
	response = make([]byte, 0, len(proof)+len(blob))
	response = append(response, proof...)
	response = append(response, blob...)

	return response, HMACMD5(v2Hash, proof)
}

// ntlmv2Blob lays out RespType, HiRespType, reserved, timestamp, client
// challenge, reserved, target info, reserved.
func ntlmv2Blob(clientChallenge []byte, filetime uint64, targetInfo []byte) []byte {
	blob := make([]byte, 28+len(targetInfo)+4)
	blob[0] = 0x01
	blob[1] = 0x01
	encoding.PutUint64LE(blob[8:], filetime)
	copy(blob[16:24], clientChallenge)
	copy(blob[28:], targetInfo)
	return blob
}
