package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// PathResolver finds data files relative to the places the binary is
// usually run from: the working directory, next to the executable, or the
// config directory.
type PathResolver struct {
	executableDir string
	configDir     string
	workDir       string
}

// NewPathResolver creates a resolver. configDir may be empty.
func NewPathResolver(configDir string) (*PathResolver, error) {
	execDir, err := ExecutableDir()
	if err != nil {
		return nil, err
	}
	pr := &PathResolver{executableDir: execDir, configDir: configDir}
	if cwd, err := os.Getwd(); err == nil {
		pr.workDir = cwd
	}
	log.Debugf("PathResolver initialized: execDir=%s, configDir=%s", execDir, configDir)
	return pr, nil
}

// Candidates lists where name is looked up, in order.
func (pr *PathResolver) Candidates(name string) []string {
	if filepath.IsAbs(name) {
		return []string{name}
	}
	var out []string
	if pr.workDir != "" {
		out = append(out, filepath.Join(pr.workDir, name))
	}
	out = append(out,
		filepath.Join(pr.executableDir, name),
		filepath.Join(pr.executableDir, "data", filepath.Base(name)),
	)
	if pr.configDir != "" {
		out = append(out, filepath.Join(pr.configDir, "data", filepath.Base(name)))
	}
	return out
}

// Find returns the first candidate for name that is a regular file.
func (pr *PathResolver) Find(name string) (string, error) {
	candidates := pr.Candidates(name)
	for _, path := range candidates {
		if IsFile(path) {
			log.Debugf("Resolved %s to %s", name, path)
			return path, nil
		}
		log.Debugf("Candidate not found: %s", path)
	}
	return "", fmt.Errorf("%s not found in %v", name, candidates)
}
