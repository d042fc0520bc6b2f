package transport

import (
	"errors"
	"sync"
)

var (
	driverMu sync.RWMutex
	driver   Dialer
)

// RegisterDriver installs the process-wide protocol driver. Driver packages
// call this from init, mirroring how database/sql drivers self-register.
func RegisterDriver(d Dialer) {
	driverMu.Lock()
	defer driverMu.Unlock()
	driver = d
}

// Driver returns the registered protocol driver.
func Driver() (Dialer, error) {
	driverMu.RLock()
	defer driverMu.RUnlock()
	if driver == nil {
		return nil, errors.New("no transport driver registered")
	}
	return driver, nil
}
