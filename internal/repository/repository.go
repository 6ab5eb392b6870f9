package repository

import (
	"errors"
	"sync/atomic"

	"gorm.io/gorm"
)

var ErrDBNotReady = errors.New("database not initialized")

// dbConn holds a connection that may be attached after the server starts serving.
type dbConn struct {
	p atomic.Pointer[gorm.DB]
}

func (c *dbConn) set(db *gorm.DB) { c.p.Store(db) }

// get returns nil until a connection has been attached.
func (c *dbConn) get() *gorm.DB { return c.p.Load() }
