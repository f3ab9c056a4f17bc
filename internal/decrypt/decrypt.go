// Package decrypt implements the five Luraph string/constant decryption
// algorithms and the best-of-all scoring used in "auto" mode.
package decrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"regexp"
	"strings"
)

type Method string

const (
	XorV1        Method = "xor_v1"
	XorV2        Method = "xor_v2"
	AesCBC       Method = "aes_cbc"
	AesCBCv2     Method = "aes_cbc_v2"
	LuraphCustom Method = "luraph_custom"
	Auto         Method = "auto"
)

// Version names the Luraph build the key length invariants are checked
// against.
type Version string

const (
	V11_5  Version = "11.5"
	V11_6  Version = "11.6"
	V11_7  Version = "11.7"
	V11_8  Version = "11.8"
	V11_81 Version = "11.8.1"
)

var keyLenByVersion = map[Version]int{
	V11_5: 16, V11_6: 24, V11_7: 32, V11_8: 32, V11_81: 32,
}

// KeyLenOK reports whether key satisfies the per-version length
// invariant. An unknown/empty version is always accepted (no constraint).
func KeyLenOK(key []byte, v Version) bool {
	want, ok := keyLenByVersion[v]
	if !ok {
		return true
	}
	return len(key) == want
}

type Info struct {
	Method  Method
	Key     []byte
	IV      []byte
	Version Version
}

// Result is what every algorithm returns; AES failures set OK=false and
// Plaintext=ciphertext rather than aborting the pass.
type Result struct {
	OK        bool
	Plaintext []byte
	Method    Method
	Err       error
}

// Decrypt dispatches to the named algorithm.
func Decrypt(ciphertext, key, iv []byte, method Method) Result {
	switch method {
	case XorV1:
		return Result{OK: true, Plaintext: xorV1(ciphertext, key), Method: method}
	case XorV2:
		return Result{OK: true, Plaintext: xorV2(ciphertext, key), Method: method}
	case AesCBC:
		return aesCBC(ciphertext, key, iv)
	case AesCBCv2:
		return aesCBCv2(ciphertext, key)
	case LuraphCustom:
		return Result{OK: true, Plaintext: luraphCustomDecrypt(ciphertext, key), Method: method}
	default:
		return autoDecrypt(ciphertext, key)
	}
}

// Encrypt is the inverse used by the "Decryptor inverse" testable property
// and by tests that construct ciphertext fixtures.
func Encrypt(plaintext, key []byte, method Method) ([]byte, error) {
	switch method {
	case XorV1:
		return xorV1(plaintext, key), nil
	case XorV2:
		return xorV2InverseFriendly(plaintext, key), nil
	case LuraphCustom:
		return luraphCustomEncrypt(plaintext, key), nil
	default:
		return nil, fmt.Errorf("decrypt: Encrypt not supported for method %q", method)
	}
}

// ---- xor_v1 (v11.5): out[i] = cipher[i] XOR key[i mod |key|] ----

func xorV1(data, key []byte) []byte {
	if len(key) == 0 {
		return append([]byte(nil), data...)
	}
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ key[i%len(key)]
	}
	return out
}

// ---- xor_v2 (v11.6): rotating key, out[i] = cipher[i] XOR ((key[i%|k|]+i) mod 256) ----

func xorV2(data, key []byte) []byte {
	if len(key) == 0 {
		return append([]byte(nil), data...)
	}
	out := make([]byte, len(data))
	for i := range data {
		k := byte((int(key[i%len(key)]) + i) % 256)
		out[i] = data[i] ^ k
	}
	return out
}

// xor_v2 is a self-inverse XOR stream, so encrypt and decrypt are the same
// transform; named distinctly only for readability at call sites.
func xorV2InverseFriendly(data, key []byte) []byte { return xorV2(data, key) }

// ---- aes_cbc (v11.7): AES-128-CBC of hex-encoded ciphertext; default IV zero ----

func aesCBC(ciphertextHex, key, iv []byte) Result {
	ciphertext, err := hexDecode(ciphertextHex)
	if err != nil {
		return Result{OK: false, Plaintext: ciphertextHex, Method: AesCBC, Err: err}
	}
	if iv == nil {
		iv = make([]byte, aes.BlockSize)
	}
	plain, err := aesCBCDecrypt(ciphertext, key, iv, pkcs7Unpad)
	if err != nil {
		return Result{OK: false, Plaintext: ciphertextHex, Method: AesCBC, Err: err}
	}
	return Result{OK: true, Plaintext: plain, Method: AesCBC}
}

// ---- aes_cbc_v2 (v11.8/v11.8.1): key-derived IV + custom trailing padding ----

func aesCBCv2(ciphertextHex, key []byte) Result {
	ciphertext, err := hexDecode(ciphertextHex)
	if err != nil {
		return Result{OK: false, Plaintext: ciphertextHex, Method: AesCBCv2, Err: err}
	}
	if len(key) == 0 {
		return Result{OK: false, Plaintext: ciphertextHex, Method: AesCBCv2, Err: fmt.Errorf("decrypt: empty key")}
	}
	iv := derivedIV(key)
	plain, err := aesCBCDecrypt(ciphertext, key, iv, luraphUnpad)
	if err != nil {
		return Result{OK: false, Plaintext: ciphertextHex, Method: AesCBCv2, Err: err}
	}
	return Result{OK: true, Plaintext: plain, Method: AesCBCv2}
}

func derivedIV(key []byte) []byte {
	iv := make([]byte, aes.BlockSize)
	for i := range iv {
		iv[i] = key[i%len(key)] ^ byte(i)
	}
	return iv
}

func aesCBCDecrypt(ciphertext, key, iv []byte, unpad func([]byte) ([]byte, error)) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("decrypt: ciphertext not a multiple of the block size")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	mode := cipher.NewCBCDecrypter(block, iv)
	out := make([]byte, len(ciphertext))
	mode.CryptBlocks(out, ciphertext)
	return unpad(out)
}

// pkcs7Unpad removes standard PKCS#7 padding.
func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decrypt: empty plaintext")
	}
	n := int(data[len(data)-1])
	if n < 1 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("decrypt: invalid padding")
	}
	return data[:len(data)-n], nil
}

// luraphUnpad implements the custom trailing-byte padding scheme: the
// last byte encodes padding length in [1, 16].
func luraphUnpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decrypt: empty plaintext")
	}
	n := int(data[len(data)-1])
	if n < 1 || n > 16 || n > len(data) {
		return nil, fmt.Errorf("decrypt: invalid trailing padding length %d", n)
	}
	return data[:len(data)-n], nil
}

func hexDecode(src []byte) ([]byte, error) {
	s := strings.TrimSpace(string(src))
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("decrypt: odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		hi, ok1 := hexNibble(s[2*i])
		lo, ok2 := hexNibble(s[2*i+1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("decrypt: invalid hex digit")
		}
		out[i] = byte(hi<<4 | lo)
	}
	return out, nil
}

func hexNibble(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	}
	return 0, false
}

// ---- luraph_custom: XOR with key, rotate_left(byte, 3), then subtract key mod 256 ----

func luraphCustomDecrypt(ciphertext, key []byte) []byte {
	if len(key) == 0 {
		return append([]byte(nil), ciphertext...)
	}
	out := make([]byte, len(ciphertext))
	for i, c := range ciphertext {
		v := byte((int(c) - int(key[i%len(key)]) + 256) % 256)
		v = rotateRight(v, 3)
		out[i] = v ^ key[i%len(key)]
	}
	return out
}

func luraphCustomEncrypt(plaintext, key []byte) []byte {
	if len(key) == 0 {
		return append([]byte(nil), plaintext...)
	}
	out := make([]byte, len(plaintext))
	for i, p := range plaintext {
		v := p ^ key[i%len(key)]
		v = rotateLeft(v, 3)
		out[i] = byte((int(v) + int(key[i%len(key)])) % 256)
	}
	return out
}

func rotateLeft(b byte, n uint) byte  { return b<<n | b>>(8-n) }
func rotateRight(b byte, n uint) byte { return b>>n | b<<(8-n) }

// ---- auto: run every algorithm, pick the best-scoring plaintext ----

// algoOrder is the fixed tie-break order used when two algorithms score
// equally well in auto mode.
var algoOrder = []Method{XorV1, XorV2, AesCBC, AesCBCv2, LuraphCustom}

func autoDecrypt(ciphertext, key []byte) Result {
	var best Result
	bestScore := 0
	haveBest := false

	for _, m := range algoOrder {
		var r Result
		switch m {
		case XorV1:
			r = Result{OK: true, Plaintext: xorV1(ciphertext, key), Method: m}
		case XorV2:
			r = Result{OK: true, Plaintext: xorV2(ciphertext, key), Method: m}
		case AesCBC:
			r = aesCBC(ciphertext, key, nil)
		case AesCBCv2:
			r = aesCBCv2(ciphertext, key)
		case LuraphCustom:
			r = Result{OK: true, Plaintext: luraphCustomDecrypt(ciphertext, key), Method: m}
		}
		if !r.OK {
			continue
		}
		// Strict '>' on the deterministic Score() alone: a later candidate
		// only replaces the current best by out-scoring it, so two equally
		// scored candidates keep whichever comes first in algoOrder.
		s := Score(string(r.Plaintext))
		if !haveBest || s > bestScore {
			best, bestScore, haveBest = r, s, true
		}
	}
	if !haveBest {
		return Result{OK: false, Plaintext: ciphertext, Method: Auto, Err: fmt.Errorf("decrypt: all algorithms failed")}
	}
	// score <= 0 after best-of-all is the DecryptionFailed threshold. The
	// gopher-lua oracle gets one last say before giving up: a real
	// decryption can legitimately score low on keyword/operator density
	// (a short, mostly-data string) but still be syntactically valid Lua.
	// This never changes which candidate won above, so it can't override
	// the fixed tie-break order — it only ever turns a threshold failure
	// into a pass for the already-chosen winner.
	if bestScore <= 0 {
		if parsesAsLua(string(best.Plaintext)) {
			return best
		}
		return Result{OK: false, Plaintext: ciphertext, Method: Auto, Err: fmt.Errorf("decrypt: all algorithms scored at or below threshold")}
	}
	return best
}

var luaKeywords = []string{
	"and", "break", "do", "else", "elseif", "end", "false", "for", "function",
	"goto", "if", "in", "local", "nil", "not", "or", "repeat", "return",
	"then", "true", "until", "while",
}

var luaOperators = []string{
	"==", "~=", "<=", ">=", "..", "::", "+", "-", "*", "/", "//", "%", "^",
	"#", "&", "~", "|", "<<", ">>", "<", ">", "=",
}

// Score is the deterministic plaintext-likelihood scoring function.
func Score(s string) int {
	score := 0
	for _, kw := range luaKeywords {
		score += 10 * countWord(s, kw)
	}
	for _, op := range luaOperators {
		score += 2 * strings.Count(s, op)
	}
	if strings.Contains(s, "function") && strings.Contains(s, "end") {
		score += 20
	}
	if strings.Contains(s, "local") {
		score += 15
	}
	if strings.Contains(s, "print") {
		score += 10
	}
	score -= 5 * nonPrintableCount(s)
	return score
}

var wordBoundaryCache = map[string]*regexp.Regexp{}

func countWord(s, word string) int {
	re, ok := wordBoundaryCache[word]
	if !ok {
		re = regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
		wordBoundaryCache[word] = re
	}
	return len(re.FindAllStringIndex(s, -1))
}

func nonPrintableCount(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c >= 0x7f {
			n++
		}
	}
	return n
}

// ---- key extraction ----

var (
	reHexRun    = regexp.MustCompile(`[0-9a-fA-F]{32,}`)
	reBase64Run = regexp.MustCompile(`[A-Za-z0-9+/=]{16,}`)
	reLocalLit  = regexp.MustCompile(`local\s+\w+\s*=\s*["']([^"']{16,})["']`)
)

// KeyCandidates scans source text for strings matching the
// key-shape heuristics: 32-hex-char runs, 16+ char Base64 runs, and the
// RHS of a "local ... = \"...\"" assignment of length >= 16.
func KeyCandidates(src string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, m := range reHexRun.FindAllString(src, -1) {
		add(m)
	}
	for _, m := range reBase64Run.FindAllString(src, -1) {
		add(m)
	}
	for _, m := range reLocalLit.FindAllStringSubmatch(src, -1) {
		add(m[1])
	}
	return out
}

// looksLikeKeyShape mirrors the analyzer's key-discovery heuristic:
// 16+ Base64 chars, or 32+ hex chars.
func looksLikeKeyShape(s string) bool {
	return reHexRun.MatchString(s) || reBase64Run.MatchString(s)
}

// LooksLikeKeyShape exports looksLikeKeyShape for the VM analyzer.
func LooksLikeKeyShape(s string) bool { return looksLikeKeyShape(s) }
