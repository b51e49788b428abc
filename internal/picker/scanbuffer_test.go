package picker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flush struct {
	code   string
	reason FlushReason
}

func recordFlushes(inactivity time.Duration) (*ScanBuffer, chan flush) {
	flushes := make(chan flush, 8)
	b := NewScanBuffer(inactivity, func(code string, reason FlushReason) {
		flushes <- flush{code: code, reason: reason}
	})
	return b, flushes
}

func typeString(b *ScanBuffer, s string) {
	for _, r := range s {
		b.Key(r)
	}
}

func TestScanBuffer_TerminatorFlush(t *testing.T) {
	for _, terminator := range []rune{'\n', '\r', '\t'} {
		b, flushes := recordFlushes(time.Hour)
		typeString(b, "SKU-1")
		b.Key(terminator)

		select {
		case f := <-flushes:
			assert.Equal(t, "SKU-1", f.code)
			assert.Equal(t, FlushTerminator, f.reason)
		default:
			t.Fatalf("terminator %q did not flush", terminator)
		}
		b.Stop()
	}
}

func TestScanBuffer_InactivityFlush(t *testing.T) {
	b, flushes := recordFlushes(20 * time.Millisecond)
	typeString(b, "0004")

	select {
	case f := <-flushes:
		assert.Equal(t, "0004", f.code)
		assert.Equal(t, FlushInactivity, f.reason)
	case <-time.After(2 * time.Second):
		t.Fatal("inactivity flush never fired")
	}

	select {
	case f := <-flushes:
		t.Fatalf("unexpected second flush %+v", f)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestScanBuffer_TerminatorCancelsPendingTimer(t *testing.T) {
	b, flushes := recordFlushes(20 * time.Millisecond)
	typeString(b, "ABC")
	b.Key('\n')

	f := <-flushes
	require.Equal(t, FlushTerminator, f.reason)

	select {
	case f := <-flushes:
		t.Fatalf("timer flushed after terminator: %+v", f)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestScanBuffer_EmptyTerminatorIsSilent(t *testing.T) {
	b, flushes := recordFlushes(time.Hour)
	b.Key('\n')
	b.Key('\t')
	assert.Len(t, flushes, 0)
}

func TestScanBuffer_StopDropsInput(t *testing.T) {
	b, flushes := recordFlushes(20 * time.Millisecond)
	typeString(b, "XYZ")
	b.Stop()

	select {
	case f := <-flushes:
		t.Fatalf("stopped buffer flushed %+v", f)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestDefaultScanInactivity(t *testing.T) {
	assert.Equal(t, 80*time.Millisecond, DefaultScanInactivity)
	b := NewScanBuffer(0, func(string, FlushReason) {})
	assert.Equal(t, DefaultScanInactivity, b.inactivity)
}
