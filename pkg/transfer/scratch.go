package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/saracen/walker"
)

// PrepareScratch makes sure the scratch root exists, removing everything under it
// first when purge is set. It returns the expanded root.
func PrepareScratch(root string, purge bool) (string, error) {
	root, err := homedir.Expand(root)
	if err != nil {
		return "", errors.Wrapf(err, "unable to expand scratch dir %s", root)
	}

	root = filepath.Clean(root)
	if root == "." || root == string(filepath.Separator) {
		return "", fmt.Errorf("refusing to use %q as scratch dir", root)
	}

	if purge {
		log.Infof("Purging scratch dir %s", root)
		if err := os.RemoveAll(root); err != nil {
			return "", errors.Wrapf(err, "unable to purge scratch dir %s", root)
		}
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return "", errors.Wrapf(err, "unable to create scratch dir %s", root)
	}

	return root, nil
}

// datasetDir is the directory holding the files of the target dataset with the
// given numeric id.
func datasetDir(root string, targetID int) string {
	return filepath.Join(root, strconv.Itoa(targetID))
}

// validFilename rejects names that would escape the dataset directory.
func validFilename(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// localFiles returns the names of the regular files directly inside dir.
func localFiles(dir string) (map[string]bool, error) {
	dir = filepath.Clean(dir)
	present := make(map[string]bool)

	var mu sync.Mutex
	err := walker.Walk(dir, func(pathname string, fi os.FileInfo) error {
		if !fi.Mode().IsRegular() || filepath.Dir(pathname) != dir {
			return nil
		}

		mu.Lock()
		present[fi.Name()] = true
		mu.Unlock()

		return nil
	})

	if err != nil {
		return nil, errors.Wrapf(err, "unable to scan %s", dir)
	}

	return present, nil
}
