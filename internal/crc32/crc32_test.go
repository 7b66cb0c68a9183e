package crc32

import "testing"

func TestValueMatchesStandardIEEE(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint32
	}{
		{"empty", []byte{}, 0},
		{"123456789", []byte("123456789"), 0xcbf43926},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Value(tt.data, 0, 0, len(tt.data)); got != tt.want {
				t.Errorf("Value(%q, 0) = 0x%08x, want 0x%08x", tt.data, got, tt.want)
			}
		})
	}
}

func TestValueRespectsRange(t *testing.T) {
	data := []byte("xx123456789yy")
	got := Value(data, 0, 2, 11)
	want := Value([]byte("123456789"), 0, 0, 9)
	if got != want {
		t.Errorf("ranged Value = 0x%08x, want 0x%08x", got, want)
	}
}

func TestExtendIsAssociative(t *testing.T) {
	data := []byte("the quick brown fox")
	whole := Extend(0xFFFFFFFF, data)
	split := Extend(Extend(0xFFFFFFFF, data[:8]), data[8:])
	if whole != split {
		t.Errorf("Extend is not associative across a split: 0x%08x != 0x%08x", whole, split)
	}
}
