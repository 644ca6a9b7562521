// Package script builds and recognizes the fixed P2PKH scriptPubKey/
// scriptSig pattern. Keeps a push/parse command-stack primitive and an
// opcode table trimmed down to what P2PKH construction and address
// derivation actually reference; there is no general opcode execution
// engine.
package script

const (
	OP_DUP         byte = 0x76
	OP_EQUAL       byte = 0x87
	OP_EQUALVERIFY byte = 0x88
	OP_HASH160     byte = 0xa9
	OP_CHECKSIG    byte = 0xac

	OP_PUSHDATA1 byte = 0x4c
	OP_PUSHDATA2 byte = 0x4d
	OP_PUSHDATA4 byte = 0x4e
)
