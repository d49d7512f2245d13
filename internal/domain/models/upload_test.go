package models

import "testing"

func TestExpectedChunkSize(t *testing.T) {
	cases := []struct {
		name      string
		totalSize int64
		chunkSize int64
		chunks    int
		index     int
		want      int64
	}{
		{"middle chunk", 21, 4, 6, 2, 4},
		{"last chunk remainder", 21, 4, 6, 5, 1},
		{"last chunk even split", 16, 4, 4, 3, 4},
		{"single full chunk", 4, 4, 1, 0, 4},
		{"single partial chunk", 3, 4, 1, 0, 3},
	}
	for _, tc := range cases {
		s := &UploadSession{
			TotalSize:   tc.totalSize,
			ChunkSize:   tc.chunkSize,
			TotalChunks: tc.chunks,
		}
		if got := s.ExpectedChunkSize(tc.index); got != tc.want {
			t.Errorf("%s: ExpectedChunkSize(%d) = %d, want %d", tc.name, tc.index, got, tc.want)
		}
	}
}

func TestUploadSessionComplete(t *testing.T) {
	s := &UploadSession{TotalChunks: 3}
	if s.Complete() {
		t.Fatal("empty session reported complete")
	}
	s.ReceivedChunks = 3
	if !s.Complete() {
		t.Fatal("full session reported incomplete")
	}
}
