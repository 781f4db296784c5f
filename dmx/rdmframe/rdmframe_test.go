package rdmframe

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{
		DestUID:           UID{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		SrcUID:            UID{0x6a, 0x6a, 0x00, 0x00, 0x00, 0x01},
		TransactionNumber: 7,
		PortIDOrResponse:  1,
		SubDevice:         0,
		CommandClass:      GetCommand,
		PID:               0x0060,
	}

	pd := []byte{0xde, 0xad, 0xbe, 0xef}

	buf := make([]byte, HeaderLen+len(pd)+ChecksumLen)

	n, err := Encode(buf, h, pd)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if n != len(buf) {
		t.Fatalf("Encode wrote %d bytes, want %d", n, len(buf))
	}

	got, gotPD, err := Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.DestUID != h.DestUID || got.SrcUID != h.SrcUID {
		t.Fatalf("UID mismatch: %+v", got)
	}

	if got.TransactionNumber != h.TransactionNumber || got.PID != h.PID {
		t.Fatalf("header field mismatch: %+v", got)
	}

	if !bytes.Equal(gotPD, pd) {
		t.Fatalf("pd mismatch: %x != %x", gotPD, pd)
	}
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	h := Header{CommandClass: DiscoveryCommand, PID: 1}
	buf := make([]byte, HeaderLen+ChecksumLen)

	Encode(buf, h, nil)
	buf[len(buf)-1] ^= 0xff

	if _, _, err := Decode(buf); err != errBadChecksum {
		t.Fatalf("Decode = %v, want errBadChecksum", err)
	}
}

func TestDiscoveryResponseRoundTrip(t *testing.T) {
	uid := UID{0x7a, 0x70, 0x12, 0x34, 0x56, 0x78}

	buf := make([]byte, DiscoveryPreambleLen)

	n, err := EncodeDiscoveryResponse(buf, uid)
	if err != nil {
		t.Fatalf("EncodeDiscoveryResponse: %v", err)
	}

	got, ok := DecodeDiscoveryResponse(buf[:n])
	if !ok {
		t.Fatal("DecodeDiscoveryResponse: !ok")
	}

	if got != uid {
		t.Fatalf("got %x, want %x", got, uid)
	}
}

func TestUIDWithin(t *testing.T) {
	lower := UID{0, 0, 0, 0, 0, 0}
	upper := UID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	u := UID{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc}

	if !u.Within(lower, upper) {
		t.Fatal("expected within full range")
	}

	if u.Within(UID{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbd}, upper) {
		t.Fatal("expected not within range starting above u")
	}
}

func TestFormatFields(t *testing.T) {
	buf := make([]byte, 16)

	n, err := EncodeFields("wwa", buf, uint16(0x1234), uint16(0x4242), "hi")
	if err != nil {
		t.Fatalf("EncodeFields: %v", err)
	}

	vals, err := DecodeFields("wwa", buf[:n])
	if err != nil {
		t.Fatalf("DecodeFields: %v", err)
	}

	if vals[0].(uint16) != 0x1234 || vals[1].(uint16) != 0x4242 || vals[2].(string) != "hi" {
		t.Fatalf("unexpected values: %+v", vals)
	}
}
