package mysqlsql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReturnsRows(t *testing.T) {
	assert.True(t, returnsRows("SELECT * FROM `ukeys`"))
	assert.True(t, returnsRows("  select 1"))
	assert.False(t, returnsRows("UPDATE `ukeys` SET `id_device` = NULL"))
	assert.False(t, returnsRows("INSERT INTO `users` VALUES (?)"))
	assert.False(t, returnsRows(""))
}

func TestOpen_BadDSN(t *testing.T) {
	_, err := Open("::not a dsn")
	assert.Error(t, err)
}

func TestOpen_Lazy(t *testing.T) {
	db, err := Open("user:pass@tcp(127.0.0.1:1)/keys")
	assert.NoError(t, err)
	assert.NoError(t, db.Close())
}
