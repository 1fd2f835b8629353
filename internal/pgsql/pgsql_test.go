package pgsql

import (
	"database/sql"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDriverRegistered(t *testing.T) {
	assert.NotEmpty(t, Driver)
	assert.True(t, slices.Contains(sql.Drivers(), Driver))
}
