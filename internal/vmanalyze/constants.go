package vmanalyze

import (
	"strconv"

	"github.com/Spencer-png/luraph-unscrambler/internal/ast"
	"github.com/Spencer-png/luraph-unscrambler/internal/decrypt"
)

// extractConstants finds the first table constructor flagged
// ConstantTable by the parser and turns its (already dense, list-order)
// fields into the session's constant pool, indices starting at 0.
func extractConstants(block *ast.Block, ctx *Context) {
	var table *ast.TableCtor
	walkAllNodes(block, func(n ast.Node) {
		if table != nil {
			return
		}
		if tc, ok := n.(*ast.TableCtor); ok && tc.ConstantTable {
			table = tc
		}
	})
	if table == nil {
		return
	}
	for i, f := range table.Fields {
		ctx.Constants = append(ctx.Constants, fieldToConstant(f, i))
	}
}

func fieldToConstant(f *ast.TableField, idx int) Constant {
	switch v := f.Val.(type) {
	case *ast.Literal:
		return Constant{Type: v.Type, Value: v.Value, PoolIndex: idx}
	case *ast.EncryptedString:
		return Constant{Type: ast.TString, Value: v, PoolIndex: idx}
	default:
		return Constant{Type: ast.TNil, Value: nil, PoolIndex: idx}
	}
}

// decryptConstants resolves every pool slot still holding a raw
// *ast.EncryptedString into its plaintext. A slot that fails every
// algorithm keeps the ciphertext bytes as its string value and logs a
// warning in the exact format the partial-decryption scenario expects.
func decryptConstants(ctx *Context) (decrypted, total int) {
	for i := range ctx.Constants {
		es, ok := ctx.Constants[i].Value.(*ast.EncryptedString)
		if !ok {
			continue
		}
		total++
		method := ctx.Encryption.Method
		if es.Method != "" {
			method = decrypt.Method(es.Method)
		}
		r := decrypt.Decrypt(es.Bytes, ctx.Encryption.Key, ctx.Encryption.IV, method)
		if r.OK {
			ctx.Constants[i].Value = string(r.Plaintext)
			decrypted++
		} else {
			ctx.Constants[i].Value = string(es.Bytes)
			ctx.Warnings = append(ctx.Warnings, "constant #"+strconv.Itoa(ctx.Constants[i].PoolIndex)+": decryption failed, kept ciphertext")
		}
	}
	return decrypted, total
}
