package cache

import "testing"

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "kind and id",
			key:  Key{Kind: KindChunk, ID: "/bucket/seg/00000000001.dat"},
			want: "seer:chunk:bucket/seg/00000000001.dat",
		},
		{
			name: "params sorted",
			key:  Key{Kind: "study", ID: "s1", Params: map[string]string{"to": "2", "from": "1"}},
			want: "seer:study:s1:from=1:to=2",
		},
		{
			name: "empty",
			key:  Key{},
			want: "seer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChunkKey(t *testing.T) {
	a := ChunkKey("https://data.example.com/seg-1/00000000003.dat?X-Signature=aaa")
	b := ChunkKey("https://data.example.com/seg-1/00000000003.dat?X-Signature=bbb")
	c := ChunkKey("https://data.example.com/seg-1/00000000004.dat?X-Signature=aaa")

	if a.String() != b.String() {
		t.Errorf("signature changed the key: %q vs %q", a, b)
	}
	if a.String() == c.String() {
		t.Errorf("different chunks share key %q", a)
	}
	if want := "seer:chunk:data.example.com/seg-1/00000000003.dat"; a.String() != want {
		t.Errorf("ChunkKey = %q, want %q", a.String(), want)
	}

	rel := ChunkKey("seg-1/00000000003.dat?sig=1")
	if want := "seer:chunk:seg-1/00000000003.dat"; rel.String() != want {
		t.Errorf("relative ChunkKey = %q, want %q", rel.String(), want)
	}
}
