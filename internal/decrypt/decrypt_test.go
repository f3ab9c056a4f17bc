package decrypt

import "testing"

func TestXorV1Inverse(t *testing.T) {
	plain := []byte("local x=1")
	key := []byte("0123456789ABCDEF")
	cipher, err := Encrypt(plain, key, XorV1)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	r := Decrypt(cipher, key, nil, XorV1)
	if !r.OK || string(r.Plaintext) != string(plain) {
		t.Fatalf("got %q ok=%v, want %q", r.Plaintext, r.OK, plain)
	}
}

func TestXorV2Inverse(t *testing.T) {
	plain := []byte("return 1 + 2")
	key := []byte("keymaterial12345")
	cipher, err := Encrypt(plain, key, XorV2)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	r := Decrypt(cipher, key, nil, XorV2)
	if !r.OK || string(r.Plaintext) != string(plain) {
		t.Fatalf("got %q ok=%v, want %q", r.Plaintext, r.OK, plain)
	}
}

func TestLuraphCustomInverse(t *testing.T) {
	plain := []byte("local function f() return 1 end")
	key := []byte("anotherkey123456")
	cipher, err := Encrypt(plain, key, LuraphCustom)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	r := Decrypt(cipher, key, nil, LuraphCustom)
	if !r.OK || string(r.Plaintext) != string(plain) {
		t.Fatalf("got %q ok=%v, want %q", r.Plaintext, r.OK, plain)
	}
}

func TestAutoDetectsXorV1(t *testing.T) {
	plain := []byte("local x=1")
	key := []byte("0123456789ABCDEF")
	cipher, _ := Encrypt(plain, key, XorV1)
	r := Decrypt(cipher, key, nil, Auto)
	if !r.OK {
		t.Fatalf("auto decrypt failed: %v", r.Err)
	}
	if string(r.Plaintext) != string(plain) {
		t.Fatalf("auto plaintext = %q, want %q", r.Plaintext, plain)
	}
	if r.Method != XorV1 {
		t.Fatalf("auto method = %v, want xor_v1", r.Method)
	}
}

func TestAutoRejectsGarbageBelowThreshold(t *testing.T) {
	noise := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	r := Decrypt(noise, nil, nil, Auto)
	if r.OK {
		t.Fatalf("auto decrypt of pure noise should fail, got plaintext %q", r.Plaintext)
	}
	if string(r.Plaintext) != string(noise) {
		t.Fatalf("failed auto result should keep ciphertext, got %q", r.Plaintext)
	}
}

func TestAutoScoreTieBreakIgnoresOracle(t *testing.T) {
	// xor_v1 and xor_v2 degenerate to an identity passthrough when no key
	// is supplied, so both candidates score identically on the same
	// plaintext; algoOrder must keep xor_v1 regardless of what the
	// gopher-lua oracle thinks of the result.
	plain := []byte("local x = 1")
	r := Decrypt(plain, nil, nil, Auto)
	if !r.OK {
		t.Fatalf("auto decrypt failed: %v", r.Err)
	}
	if r.Method != XorV1 {
		t.Fatalf("auto method = %v, want xor_v1 (first in algoOrder)", r.Method)
	}
}

func TestKeyLenOK(t *testing.T) {
	if !KeyLenOK(make([]byte, 16), V11_5) {
		t.Fatal("16-byte key should satisfy v11.5")
	}
	if KeyLenOK(make([]byte, 8), V11_5) {
		t.Fatal("8-byte key should not satisfy v11.5")
	}
	if !KeyLenOK(make([]byte, 5), "") {
		t.Fatal("unknown version should accept any key length")
	}
}

func TestScorePrefersLuaLikeText(t *testing.T) {
	lua := Score("local function f() return 1 end")
	noise := Score(string([]byte{0, 1, 2, 3, 4, 5, 6, 7}))
	if lua <= noise {
		t.Fatalf("Score(lua)=%d should exceed Score(noise)=%d", lua, noise)
	}
}

func TestKeyCandidatesFindsHexAndLocalLiteral(t *testing.T) {
	src := `local key = "0123456789abcdef0123456789abcdef"`
	cands := KeyCandidates(src)
	if len(cands) == 0 {
		t.Fatal("expected at least one key candidate")
	}
}

func TestLooksLikeKeyShape(t *testing.T) {
	if !LooksLikeKeyShape("0123456789abcdef0123456789abcdef") {
		t.Fatal("32 hex chars should look like a key")
	}
	if LooksLikeKeyShape("no") {
		t.Fatal("short non-key string should not look like a key")
	}
}
