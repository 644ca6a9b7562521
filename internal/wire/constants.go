package wire

// TestnetPort is the default peer port for testnet3.
const TestnetPort = 18333

// TestnetSeed is the default DNS seed used for peer discovery.
const TestnetSeed = "testnet-seed.bitcoin.jonasschnelli.ch"

// ProtocolVersion is advertised in our version message.
const ProtocolVersion int32 = 70015

// Service flag bits (NODE_* constants), kept for completeness of the
// version message's services field even though this node advertises none
// of the optional ones.
const (
	NodeNetwork uint64 = 1 << 0
	NodeBloom   uint64 = 1 << 2
	NodeWitness uint64 = 1 << 3
)

// Inventory item types used by getdata/inv.
type InvType uint32

const (
	InvError InvType = iota
	InvTx
	InvBlock
)
