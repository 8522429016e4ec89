// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Adapted from gnunet-go's util/fs.go: EnforceDirExists backs
// store.NewFileSink's on-disk directory.

package util

import (
	"fmt"
	"os"

	"github.com/bfix/gospel/logger"
)

// EnforceDirExists make sure that the path is created
func EnforceDirExists(path string) error {
	logger.Printf(logger.DBG, "[util] Checking directory '%s'...\n", path)
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf(logger.DBG, "[util] Creating directory '%s'...\n", path)
			return os.Mkdir(path, 0770)
		}
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("Not a directory (%s)", path)
	}
	return nil
}
