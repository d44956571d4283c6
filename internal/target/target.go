// Package target locates the sample statement and reference table for a
// bank under the data directory.
package target

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInvalidName is returned for names that are not a single path element.
var ErrInvalidName = errors.New("invalid target name")

// Document extensions tried in order. PDF is the real format; plain text is
// accepted for statements that were already extracted.
var documentExts = []string{".pdf", ".txt"}

// Target names one bank and the paths of its sample files.
type Target struct {
	Name          string
	DocumentPath  string
	ReferencePath string
}

// Info describes a discovered target directory.
type Info struct {
	Target
	HasDocument  bool
	HasReference bool
}

// Ready reports whether both sample files are present.
func (i Info) Ready() bool {
	return i.HasDocument && i.HasReference
}

// Resolve maps name to <dataDir>/<name>/<name>_sample.{pdf,csv}. When no PDF
// exists but a .txt sample does, the .txt path is used. Resolve does not
// require the files to exist; the loader reports missing files.
func Resolve(dataDir, name string) (Target, error) {
	name = strings.TrimSpace(name)
	if err := checkName(name); err != nil {
		return Target{}, err
	}
	dir := filepath.Join(dataDir, name)
	t := Target{
		Name:          name,
		DocumentPath:  filepath.Join(dir, name+"_sample"+documentExts[0]),
		ReferencePath: filepath.Join(dir, name+"_sample.csv"),
	}
	for _, ext := range documentExts {
		p := filepath.Join(dir, name+"_sample"+ext)
		if fileExists(p) {
			t.DocumentPath = p
			break
		}
	}
	return t, nil
}

// Discover lists the subdirectories of dataDir as targets, sorted by name.
// A missing data directory yields no targets.
func Discover(dataDir string) ([]Info, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading data dir: %w", err)
	}

	var infos []Info
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		t, err := Resolve(dataDir, e.Name())
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Target:       t,
			HasDocument:  fileExists(t.DocumentPath),
			HasReference: fileExists(t.ReferencePath),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, filepath.Separator) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
