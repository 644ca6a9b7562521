package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"go-testnet-node/internal/chain"
	"go-testnet-node/internal/encoding"
	"go-testnet-node/internal/nodeerr"
)

// NetAddr is the 26-byte address form embedded in a version message:
// services u64 + 16-byte IP + port u16 big-endian.
type NetAddr struct {
	Services uint64
	IP       [16]byte
	Port     uint16
}

func NetAddrFromTCP(addr *net.TCPAddr, services uint64) NetAddr {
	var ip [16]byte
	if addr != nil {
		copy(ip[:], addr.IP.To16())
	}
	port := uint16(0)
	if addr != nil {
		port = uint16(addr.Port)
	}
	return NetAddr{Services: services, IP: ip, Port: port}
}

func (a NetAddr) serialize(buf *bytes.Buffer) {
	var services [8]byte
	binary.LittleEndian.PutUint64(services[:], a.Services)
	buf.Write(services[:])
	buf.Write(a.IP[:])
	var port [2]byte
	binary.BigEndian.PutUint16(port[:], a.Port)
	buf.Write(port[:])
}

func parseNetAddr(r io.Reader) (NetAddr, error) {
	var raw [26]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return NetAddr{}, err
	}
	var a NetAddr
	a.Services = binary.LittleEndian.Uint64(raw[0:8])
	copy(a.IP[:], raw[8:24])
	a.Port = binary.BigEndian.Uint16(raw[24:26])
	return a, nil
}

// VersionMsg is the "version" handshake payload.
type VersionMsg struct {
	ProtocolVersion uint32
	Services        uint64
	Timestamp       uint64
	RecvAddr        NetAddr
	TransAddr       NetAddr
	Nonce           uint64
	UserAgent       string
	StartHeight     int32
	Relay           bool
}

func (v VersionMsg) Command() string { return "version" }

func (v VersionMsg) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], v.ProtocolVersion)
	buf.Write(u32[:])

	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], v.Services)
	buf.Write(u64[:])
	binary.LittleEndian.PutUint64(u64[:], v.Timestamp)
	buf.Write(u64[:])

	v.RecvAddr.serialize(&buf)
	v.TransAddr.serialize(&buf)

	binary.LittleEndian.PutUint64(u64[:], v.Nonce)
	buf.Write(u64[:])

	uaLen, err := encoding.EncodeVarInt(uint64(len(v.UserAgent)))
	if err != nil {
		return nil, err
	}
	buf.Write(uaLen)
	buf.WriteString(v.UserAgent)

	binary.LittleEndian.PutUint32(u32[:], uint32(v.StartHeight))
	buf.Write(u32[:])

	if v.Relay {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes(), nil
}

func ParseVersionMsg(payload []byte) (VersionMsg, error) {
	r := bytes.NewReader(payload)
	var v VersionMsg

	var u32 [4]byte
	if _, err := io.ReadFull(r, u32[:]); err != nil {
		return VersionMsg{}, err
	}
	v.ProtocolVersion = binary.LittleEndian.Uint32(u32[:])

	var u64 [8]byte
	if _, err := io.ReadFull(r, u64[:]); err != nil {
		return VersionMsg{}, err
	}
	v.Services = binary.LittleEndian.Uint64(u64[:])
	if _, err := io.ReadFull(r, u64[:]); err != nil {
		return VersionMsg{}, err
	}
	v.Timestamp = binary.LittleEndian.Uint64(u64[:])

	recv, err := parseNetAddr(r)
	if err != nil {
		return VersionMsg{}, err
	}
	v.RecvAddr = recv
	trans, err := parseNetAddr(r)
	if err != nil {
		return VersionMsg{}, err
	}
	v.TransAddr = trans

	if _, err := io.ReadFull(r, u64[:]); err != nil {
		return VersionMsg{}, err
	}
	v.Nonce = binary.LittleEndian.Uint64(u64[:])

	uaLen, err := encoding.ReadVarInt(r)
	if err != nil {
		return VersionMsg{}, err
	}
	ua := make([]byte, uaLen)
	if _, err := io.ReadFull(r, ua); err != nil {
		return VersionMsg{}, err
	}
	v.UserAgent = string(ua)

	if _, err := io.ReadFull(r, u32[:]); err != nil {
		return VersionMsg{}, err
	}
	v.StartHeight = int32(binary.LittleEndian.Uint32(u32[:]))

	relay, err := readByte(r)
	if err != nil {
		return VersionMsg{}, err
	}
	v.Relay = relay != 0

	return v, nil
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// empty-payload messages.
type emptyMsg struct{ command string }

func (e emptyMsg) Command() string            { return e.command }
func (e emptyMsg) Serialize() ([]byte, error) { return nil, nil }

func VerackMsg() Message      { return emptyMsg{"verack"} }
func SendHeadersMsg() Message { return emptyMsg{"sendheaders"} }
func GetAddrMsg() Message     { return emptyMsg{"getaddr"} }

// GetHeadersMsg requests headers following the locator. This node always uses a single-hash locator.
type GetHeadersMsg struct {
	Version  uint32
	Locators [][32]byte
	StopHash [32]byte
}

func (g GetHeadersMsg) Command() string { return "getheaders" }

func (g GetHeadersMsg) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], g.Version)
	buf.Write(u32[:])

	count, err := encoding.EncodeVarInt(uint64(len(g.Locators)))
	if err != nil {
		return nil, err
	}
	buf.Write(count)
	for _, h := range g.Locators {
		buf.Write(h[:])
	}
	buf.Write(g.StopHash[:])
	return buf.Bytes(), nil
}

// HeadersMsg carries a batch of headers, each followed by a trailing
// zero tx-count byte. A single empty payload terminates
// Phase A of IBD.
type HeadersMsg struct {
	Headers []chain.BlockHeader
}

func ParseHeadersMsg(payload []byte) (HeadersMsg, error) {
	r := bytes.NewReader(payload)
	count, err := encoding.ReadVarInt(r)
	if err != nil {
		return HeadersMsg{}, err
	}
	headers := make([]chain.BlockHeader, count)
	for i := range headers {
		h, err := chain.ParseHeader(r)
		if err != nil {
			return HeadersMsg{}, fmt.Errorf("%w: header %d: %v", nodeerr.ErrWireFormat, i, err)
		}
		txCount, err := encoding.ReadVarInt(r)
		if err != nil {
			return HeadersMsg{}, err
		}
		if txCount != 0 {
			return HeadersMsg{}, fmt.Errorf("%w: header record tx count must be 0, got %d", nodeerr.ErrWireFormat, txCount)
		}
		headers[i] = h
	}
	return HeadersMsg{Headers: headers}, nil
}

func (h HeadersMsg) Command() string { return "headers" }

func (h HeadersMsg) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	count, err := encoding.EncodeVarInt(uint64(len(h.Headers)))
	if err != nil {
		return nil, err
	}
	buf.Write(count)
	for _, hdr := range h.Headers {
		buf.Write(hdr.Serialize())
		buf.WriteByte(0x00)
	}
	return buf.Bytes(), nil
}

// InvItem is one (type, hash) pair shared by getdata and inv.
type InvItem struct {
	Type InvType
	Hash [32]byte
}

func serializeInvItems(items []InvItem) ([]byte, error) {
	var buf bytes.Buffer
	count, err := encoding.EncodeVarInt(uint64(len(items)))
	if err != nil {
		return nil, err
	}
	buf.Write(count)
	var u32 [4]byte
	for _, it := range items {
		binary.LittleEndian.PutUint32(u32[:], uint32(it.Type))
		buf.Write(u32[:])
		buf.Write(it.Hash[:])
	}
	return buf.Bytes(), nil
}

func parseInvItems(payload []byte) ([]InvItem, error) {
	r := bytes.NewReader(payload)
	count, err := encoding.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	items := make([]InvItem, count)
	for i := range items {
		var u32 [4]byte
		if _, err := io.ReadFull(r, u32[:]); err != nil {
			return nil, err
		}
		items[i].Type = InvType(binary.LittleEndian.Uint32(u32[:]))
		if _, err := io.ReadFull(r, items[i].Hash[:]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// GetDataMsg requests bodies for the listed inventory items.
type GetDataMsg struct{ Items []InvItem }

func (g GetDataMsg) Command() string              { return "getdata" }
func (g GetDataMsg) Serialize() ([]byte, error)   { return serializeInvItems(g.Items) }
func ParseGetDataMsg(payload []byte) (GetDataMsg, error) {
	items, err := parseInvItems(payload)
	return GetDataMsg{Items: items}, err
}

func GetBlockDataMsg(hash [32]byte) GetDataMsg {
	return GetDataMsg{Items: []InvItem{{Type: InvBlock, Hash: hash}}}
}

// InvMsg announces new objects the sending peer has.
type InvMsg struct{ Items []InvItem }

func (m InvMsg) Command() string            { return "inv" }
func (m InvMsg) Serialize() ([]byte, error) { return serializeInvItems(m.Items) }
func ParseInvMsg(payload []byte) (InvMsg, error) {
	items, err := parseInvItems(payload)
	return InvMsg{Items: items}, err
}

// BlockMsg carries a full serialized block.
type BlockMsg struct{ Block chain.SerializedBlock }

func (b BlockMsg) Command() string            { return "block" }
func (b BlockMsg) Serialize() ([]byte, error) { return b.Block.Serialize() }
func ParseBlockMsg(payload []byte) (BlockMsg, error) {
	blk, err := chain.ParseBlock(bytes.NewReader(payload))
	return BlockMsg{Block: blk}, err
}

// TxMsg carries a single transaction.
type TxMsg struct{ Tx chain.Transaction }

func (t TxMsg) Command() string            { return "tx" }
func (t TxMsg) Serialize() ([]byte, error) { return t.Tx.Serialize() }
func ParseTxMsg(payload []byte) (TxMsg, error) {
	tx, err := chain.ParseTransaction(bytes.NewReader(payload))
	return TxMsg{Tx: tx}, err
}

// PingMsg / PongMsg carry an 8-byte nonce.
type PingMsg struct{ Nonce uint64 }

func (p PingMsg) Command() string { return "ping" }
func (p PingMsg) Serialize() ([]byte, error) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], p.Nonce)
	return buf[:], nil
}

type PongMsg struct{ Nonce uint64 }

func (p PongMsg) Command() string { return "pong" }
func (p PongMsg) Serialize() ([]byte, error) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], p.Nonce)
	return buf[:], nil
}

func parseNonce(payload []byte) (uint64, error) {
	if len(payload) != 8 {
		return 0, fmt.Errorf("%w: nonce payload must be 8 bytes, got %d", nodeerr.ErrWireFormat, len(payload))
	}
	return binary.LittleEndian.Uint64(payload), nil
}

func ParsePingMsg(payload []byte) (PingMsg, error) {
	n, err := parseNonce(payload)
	return PingMsg{Nonce: n}, err
}

func ParsePongMsg(payload []byte) (PongMsg, error) {
	n, err := parseNonce(payload)
	return PongMsg{Nonce: n}, err
}
