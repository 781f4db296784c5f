package nvs

import "testing"

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()

	if m.Exists(0x00f0) {
		t.Fatal("expected no stored value before Set")
	}

	if !m.Set(0x00f0, []byte{0x00, 0x01}) {
		t.Fatal("Set failed")
	}

	if !m.Exists(0x00f0) {
		t.Fatal("expected stored value after Set")
	}

	buf := make([]byte, 2)

	n, ok := m.Get(0x00f0, buf)
	if !ok || n != 2 {
		t.Fatalf("Get = %d, %v", n, ok)
	}

	if buf[0] != 0x00 || buf[1] != 0x01 {
		t.Fatalf("Get returned %v", buf[:n])
	}
}

func TestMemoryGetMissing(t *testing.T) {
	m := NewMemory()

	buf := make([]byte, 4)

	if _, ok := m.Get(0x1234, buf); ok {
		t.Fatal("expected ok=false for missing pid")
	}
}

func TestMemoryOverwrite(t *testing.T) {
	m := NewMemory()

	m.Set(0x1234, []byte{0x01})
	m.Set(0x1234, []byte{0x02, 0x03})

	buf := make([]byte, 2)

	n, ok := m.Get(0x1234, buf)
	if !ok || n != 2 || buf[0] != 0x02 || buf[1] != 0x03 {
		t.Fatalf("Get after overwrite = %v, %d, %v", buf[:n], n, ok)
	}
}
