package conventions_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/wdeploy/internal/conventions"
)

func TestDBPath(t *testing.T) {
	assert.Equal(t, "/home/user/.wdeploy/wdeploy.db", conventions.DBPath("/home/user"))
}
