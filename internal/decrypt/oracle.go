package decrypt

import lua "github.com/yuin/gopher-lua"

// parsesAsLua is the auxiliary syntax-validity oracle consulted by
// autoDecrypt only after the deterministic Score() ranking has already
// picked a winner and found it at or below the DecryptionFailed
// threshold: a candidate plaintext that compiles cleanly under an
// independent Lua front-end is very likely a real decryption even when
// it scores low on keyword/operator density (a short, mostly-data
// string), so it gets to rescue that one already-chosen candidate from
// the threshold failure. It never participates in picking the winner
// itself and so can't override the fixed tie-break order.
//
// gopher-lua's LoadString only lexes/parses/codegens into its own
// function prototype; it never executes the result and is never used to
// run the emitted Lua 5.3 bytecode (gopher-lua targets 5.1 opcode
// semantics and is wire-incompatible with the .luac this project emits).
func parsesAsLua(s string) bool {
	defer func() { recover() }() // gopher-lua's compiler panics on some malformed input
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	_, err := L.LoadString(s)
	return err == nil
}
