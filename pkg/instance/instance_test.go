package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDPrecedence(t *testing.T) {
	t.Setenv("WORKER_ID", "")
	t.Setenv("DYNO", "")
	assert.Equal(t, "local", ID("local"))

	t.Setenv("DYNO", "web.1")
	assert.Equal(t, "web.1", ID("local"))

	t.Setenv("WORKER_ID", "cron-2")
	assert.Equal(t, "cron-2", ID("local"))
}
