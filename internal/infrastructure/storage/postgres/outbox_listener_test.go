package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutboxListener_SignalCoalesces(t *testing.T) {
	l := NewOutboxListener(nil)

	l.signal()
	l.signal()
	l.signal()

	assert.Len(t, l.Wake(), 1)
	<-l.Wake()
	assert.Len(t, l.Wake(), 0)
}

func TestOutboxListener_StopWithoutStart(t *testing.T) {
	l := NewOutboxListener(nil)
	assert.NotPanics(t, l.Stop)
}
