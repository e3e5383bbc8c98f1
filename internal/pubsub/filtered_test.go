package pubsub

import (
	"strings"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestFilteredSender_Send(t *testing.T) {
	assert := assert_.New(t)

	ch := NewChannel[string](10)
	failures := NewFilteredSender[string](ch, func(v string) bool { return strings.HasSuffix(v, "failed") })

	// Rejected messages still look delivered to the sender
	assert.True(failures.Send("fetch started"))
	assert.True(failures.Send("fetch failed"))
	assert.True(failures.Send("download started"))
	assert.True(failures.Send("download failed"))
	assert.Equal("fetch failed", <-ch.Receive())
	assert.Equal("download failed", <-ch.Receive())
	select {
	case v := <-ch.Receive():
		assert.Failf("unexpected message", "%q", v)
	default:
	}
}

func TestFilteredSender_Close(t *testing.T) {
	assert := assert_.New(t)

	ch := NewChannel[string](10)
	filtered := NewFilteredSender[string](ch, nil)
	filtered.Close()
	<-ch.Closed()
	assert.False(filtered.Send("x"))

	ch2 := NewChannel[string](10)
	filtered2 := NewFilteredSender[string](ch2, nil)
	ch2.Close()
	<-filtered2.Closed()
	assert.False(filtered2.Send("x"))
}
