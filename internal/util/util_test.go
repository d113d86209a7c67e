package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024, " 0.1 MiB"},
		{5 * 1024 * 1024 * 1024, " 5.0 GiB"},
	}
	for _, tc := range testCases {
		got := FormatBytes(tc.in)
		assert.Equal(t, tc.want, got)
		assert.Len(t, got, 8)
	}
}

func TestTransferID(t *testing.T) {
	a := TransferID("10.0.0.1:5000", "a.bin")
	assert.Equal(t, a, TransferID("10.0.0.1:5000", "a.bin"))
	assert.NotEqual(t, a, TransferID("10.0.0.1:5000", "b.bin"))
	// the separator keeps ("ab","c") and ("a","bc") apart
	assert.NotEqual(t, TransferID("ab", "c"), TransferID("a", "bc"))
}

func TestStatsActive(t *testing.T) {
	s := &stats{}
	s.AddStarted()
	s.AddStarted()
	s.AddStarted()
	s.AddCompleted()
	s.AddFailed()
	s.AddSent(10)
	s.AddRecv(7)

	assert.EqualValues(t, 1, s.Active())
	assert.EqualValues(t, 10, s.BytesSent.Load())
	assert.EqualValues(t, 7, s.BytesRecv.Load())
}
