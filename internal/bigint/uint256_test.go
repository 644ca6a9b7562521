package bigint

import "testing"

func TestMulIdentity(t *testing.T) {
	a := FromUint64(256)
	b := FromUint64(1)
	got := a.Mul(b)
	if got.Cmp(a) != 0 {
		t.Fatalf("256*1 = %v, want %v", got, a)
	}
}

func TestCompare(t *testing.T) {
	a := FromUint64(1)
	b := FromUint64(2)
	if !a.Less(b) {
		t.Fatal("1 should be < 2")
	}
	if b.Less(a) {
		t.Fatal("2 should not be < 1")
	}
	if a.Cmp(b) == 0 {
		t.Fatal("1 should not equal 2")
	}
}

func TestCompareLarger(t *testing.T) {
	a := FromUint64(25896)
	b := FromUint64(2)
	if !b.Less(a) {
		t.Fatal("2 should be < 25896")
	}
}

func TestMul(t *testing.T) {
	a := FromUint64(256)
	b := FromUint64(16)
	got := a.Mul(b)
	want := FromUint64(4096)
	if got.Cmp(want) != 0 {
		t.Fatalf("256*16 = %v, want %v", got, want)
	}
}

func TestAdd(t *testing.T) {
	a := FromUint64(150)
	b := FromUint64(550)
	got := a.Add(b)
	want := FromUint64(700)
	if got.Cmp(want) != 0 {
		t.Fatalf("150+550 = %v, want %v", got, want)
	}
}

func TestPow(t *testing.T) {
	a := FromUint64(256)
	got := a.Pow(21)
	want := FromBEBytes([32]byte{
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	})
	if got.Cmp(want) != 0 {
		t.Fatalf("256^21 = %v, want %v", got, want)
	}
}

func TestOr(t *testing.T) {
	a := FromUint64(0xF0)
	b := FromUint64(0x0F)
	got := a.Or(b)
	want := FromUint64(0xFF)
	if got.Cmp(want) != 0 {
		t.Fatalf("0xF0|0x0F = %v, want %v", got, want)
	}
}

func TestFromLEBytes(t *testing.T) {
	var le [32]byte
	le[0] = 0xAB
	got := FromLEBytes(le)
	want := FromBEBytes([32]byte{31: 0xAB})
	if got.Cmp(want) != 0 {
		t.Fatalf("FromLEBytes mismatch: got %v want %v", got, want)
	}
}
