package latency

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pingmon/internal/storage/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   float64
		wantOK bool
	}{
		{"windows reply", "Reply from 10.0.0.1: bytes=32 time=45ms TTL=64", 45.0, true},
		{"windows sub-millisecond", "Reply from 10.0.0.1: bytes=32 time<1ms TTL=128", 1.0, true},
		{"linux reply", "64 bytes from 10.0.0.1: icmp_seq=1 ttl=64 time=0.045 ms", 0.045, true},
		{"upper case", "REPLY FROM 10.0.0.1: BYTES=32 TIME=12MS TTL=64", 12.0, true},
		{"decimal", "64 bytes from host: icmp_seq=3 ttl=55 time=123.456 ms", 123.456, true},
		{"timeout", "Request timed out.", 0, false},
		{"unreachable", "From 10.0.0.254 icmp_seq=1 Destination Host Unreachable", 0, false},
		{"linux header", "PING 10.0.0.1 (10.0.0.1) 56(84) bytes of data.", 0, false},
		{"summary line", "rtt min/avg/max/mdev = 0.045/0.050/0.061/0.007 ms", 0, false},
		{"unit-less", "Reply from 10.0.0.1: bytes=32 time=45 TTL=64", 0, false},
		{"other unit", "Reply from 10.0.0.1: time=45s", 0, false},
		{"malformed number", "Reply from 10.0.0.1: time=4.5.6ms", 0, false},
		{"no separator", "Reply from 10.0.0.1: time 45ms", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParsePtr(t *testing.T) {
	assert.Nil(t, ParsePtr("Request timed out."))

	v := ParsePtr("Reply from 10.0.0.1: bytes=32 time=45ms TTL=64")
	if assert.NotNil(t, v) {
		assert.Equal(t, 45.0, *v)
	}
}

func TestClassify(t *testing.T) {
	ms := func(v float64) *float64 { return &v }

	tests := []struct {
		in   *float64
		want models.Status
	}{
		{nil, models.StatusDown},
		{ms(0), models.StatusFast},
		{ms(49.9), models.StatusFast},
		{ms(50.0), models.StatusNormal},
		{ms(99.9), models.StatusNormal},
		{ms(100.0), models.StatusSlow},
		{ms(199.9), models.StatusSlow},
		{ms(200.0), models.StatusVerySlow},
		{ms(5000), models.StatusVerySlow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.in), "classify(%v)", tt.in)
	}
}

func TestParseThenClassify(t *testing.T) {
	assert.Equal(t, models.StatusFast, Classify(ParsePtr("Reply from 10.0.0.1: bytes=32 time=45ms TTL=64")))
	assert.Equal(t, models.StatusDown, Classify(ParsePtr("Request timed out.")))
}
