package lifecycle

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const templateFetchTimeout = 5 * time.Minute

// materializeTemplate copies the shared compose template directory
// into a fresh project directory. If the template directory does not
// exist yet and a source URL is configured, it is cloned once; later
// projects reuse the local copy.
func (m *Manager) materializeTemplate(ctx context.Context, projectDir string) error {
	if err := m.ensureTemplate(ctx); err != nil {
		return err
	}
	if _, err := os.Stat(projectDir); err == nil {
		return fmt.Errorf("project directory already exists: %s", projectDir)
	}
	return copyDir(m.cfg.TemplateDir, projectDir)
}

func (m *Manager) ensureTemplate(ctx context.Context) error {
	info, err := os.Stat(m.cfg.TemplateDir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("template path is not a directory: %s", m.cfg.TemplateDir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat template dir: %w", err)
	}
	if m.cfg.TemplateSourceURL == "" {
		return fmt.Errorf("template directory %s does not exist and no template source URL is configured", m.cfg.TemplateDir)
	}

	m.logger.Info("fetching compose template", "url", m.cfg.TemplateSourceURL, "dir", m.cfg.TemplateDir)

	ctx, cancel := context.WithTimeout(ctx, templateFetchTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", m.cfg.TemplateSourceURL, m.cfg.TemplateDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.RemoveAll(m.cfg.TemplateDir)
		return fmt.Errorf("clone template: %w: %s", err, string(out))
	}
	return nil
}

// copyDir recursively copies src into dst, preserving file modes.
// The template's .git directory, if any, is skipped.
func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}

		target := filepath.Join(dst, rel)
		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm())
		}
		return copyFile(path, target, d)
	})
}

func copyFile(src, dst string, d os.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
