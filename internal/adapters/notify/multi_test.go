package notify

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMulti_FansOutToAllTargets(t *testing.T) {
	var a, b bytes.Buffer
	m := NewMulti(NewConsoleWriter(&a), NewConsoleWriter(&b))

	assert.NoError(t, m.Send(context.Background(), "hola"))
	assert.Contains(t, a.String(), "hola")
	assert.Contains(t, b.String(), "hola")

	m.Startup(context.Background(), 100)
	assert.Contains(t, a.String(), "100.00")
	assert.Contains(t, b.String(), "100.00")
}
