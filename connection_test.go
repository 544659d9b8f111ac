package rabbit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnection_OpenWithoutBrokers(t *testing.T) {
	c := &Connection{}
	_, err := c.Open()
	assert.Equal(t, errNoBrokers, err)
}

func TestConnection_URI(t *testing.T) {
	c := &Connection{Protocol: "amqps", Username: "user", Password: "secret", Vhost: "patterns"}

	uri := c.uri("rabbit1")
	assert.Equal(t, "rabbit1", uri.Host)
	assert.Equal(t, 5671, uri.Port)

	uri = c.uri("rabbit2:5673")
	assert.Equal(t, "rabbit2", uri.Host)
	assert.Equal(t, 5673, uri.Port)
	assert.Equal(t, "secret", uri.Password)

	assert.NotContains(t, c.URI("rabbit1"), "secret")
}
