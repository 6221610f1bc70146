// scanner is used to scan a directory for catalog files.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("mentions.scanner")

// IgnoreDir reports whether a directory is skipped entirely: hidden
// directories and vendored trees.
func IgnoreDir(path string) bool {
	name := filepath.Base(path)
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".") || name == "node_modules"
}

// Scan walks the entire subtree under root. Directories matched by
// IgnoreDir are skipped. For each remaining file, skip decides whether it
// is read; callback receives the path and contents of every file read.
// Callbacks run on a single worker goroutine and Scan returns once all of
// them have completed. Cancelling ctx stops the walk.
func Scan(
	ctx context.Context,
	root string,
	skip func(path string, info fs.FileInfo) bool,
	callback func(path string, contents []byte),
) error {
	fileCh := make(chan string, 100)
	var wg sync.WaitGroup

	// worker goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		for path := range fileCh {
			data, err := os.ReadFile(path)
			if err != nil {
				log.Warningf("read error: %s: %v", path, err)
				continue
			}
			callback(path, data)
		}
	}()

	log.Debugf("starting WalkDir at %q", root)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			log.Warningf("walk error: %v", err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && IgnoreDir(path) {
				log.Debugf("skipping %q", path)
				return fs.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if skip(path, info) {
			return nil
		}

		// enqueue for reading
		fileCh <- path
		return nil
	})

	// no more files to send
	close(fileCh)
	// wait for the worker to finish consuming and calling back
	wg.Wait()
	return err
}
