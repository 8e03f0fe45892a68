// Package guardian sandboxes project file access: reads anywhere under the
// project root, writes only inside the incubator directory.
package guardian

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/security"
)

var (
	ErrOutsideRoot = errors.New("path is outside the project root")
	ErrReadOnly    = errors.New("write permission denied outside the incubator")
)

const maxReadBytes = 2 << 20

type Entry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Path  string `json:"relative_path"`
}

type Guardian struct {
	root      string
	incubator string
	readBox   *security.Sandbox
	writeBox  *security.Sandbox
}

// New creates root and root/incubator if missing.
func New(root, incubator string) (*Guardian, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("guardian: empty root")
	}
	if strings.TrimSpace(incubator) == "" {
		incubator = "n"
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("guardian: %w", err)
	}
	inc := filepath.Join(absRoot, filepath.Clean(incubator))
	if err := os.MkdirAll(inc, 0755); err != nil {
		return nil, fmt.Errorf("guardian: create incubator: %w", err)
	}
	return &Guardian{
		root:      absRoot,
		incubator: inc,
		readBox:   security.NewSandbox(absRoot),
		writeBox:  security.NewSandbox(inc),
	}, nil
}

func (g *Guardian) Root() string {
	return g.root
}

// Incubator is the writable directory relative to root.
func (g *Guardian) Incubator() string {
	rel, _ := filepath.Rel(g.root, g.incubator)
	return rel
}

func (g *Guardian) resolve(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" || rel == "." || rel == "./" {
		return g.root, nil
	}
	p := rel
	if !filepath.IsAbs(p) {
		p = filepath.Join(g.root, p)
	}
	p = filepath.Clean(p)
	if err := g.readBox.ValidatePath(p); err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return p, nil
}

func (g *Guardian) resolveWritable(rel string) (string, error) {
	p, err := g.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := g.writeBox.ValidatePath(p); err != nil {
		return "", fmt.Errorf("%w: %s", ErrReadOnly, rel)
	}
	return p, nil
}

func (g *Guardian) relative(abs string) string {
	rel, err := filepath.Rel(g.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

// Read returns the file content, truncated to a fixed maximum.
func (g *Guardian) Read(rel string) (string, error) {
	p, err := g.resolve(rel)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rel, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("read %s: path is a directory", rel)
	}
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rel, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxReadBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rel, err)
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

// List returns the directory entries sorted by name.
func (g *Guardian) List(rel string) ([]Entry, error) {
	p, err := g.resolve(rel)
	if err != nil {
		return nil, err
	}
	items, err := os.ReadDir(p)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", rel, err)
	}
	entries := make([]Entry, 0, len(items))
	for _, it := range items {
		entries = append(entries, Entry{
			Name:  it.Name(),
			IsDir: it.IsDir(),
			Path:  g.relative(filepath.Join(p, it.Name())),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Write overwrites the incubator file at rel and returns its root-relative path.
func (g *Guardian) Write(rel, content string) (string, error) {
	return g.write(rel, content, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
}

func (g *Guardian) Append(rel, content string) (string, error) {
	return g.write(rel, content, os.O_CREATE|os.O_WRONLY|os.O_APPEND)
}

func (g *Guardian) write(rel, content string, flag int) (string, error) {
	p, err := g.resolveWritable(g.inIncubator(rel))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	f, err := os.OpenFile(p, flag, 0644)
	if err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	return g.relative(p), nil
}

// Copy copies a file from anywhere under root into the incubator.
func (g *Guardian) Copy(source, dest string) (string, error) {
	src, err := g.resolve(source)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(src)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("source file not found: %s", source)
	}
	dst, err := g.resolveWritable(g.inIncubator(dest))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("copy: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("copy: %w", err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", fmt.Errorf("copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("copy: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("copy: %w", err)
	}
	return fmt.Sprintf("Copy successful: %s -> %s", filepath.Base(src), g.relative(dst)), nil
}

// Replace substitutes every occurrence of find in an incubator file.
func (g *Guardian) Replace(rel, find, replace string) (string, error) {
	if find == "" {
		return "", errors.New("replace: empty search text")
	}
	p, err := g.resolveWritable(g.inIncubator(rel))
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("file not found: %s", rel)
	}
	content := string(data)
	if !strings.Contains(content, find) {
		return fmt.Sprintf("The search text ('%s') was not found. No changes made.", find), nil
	}
	if err := os.WriteFile(p, []byte(strings.ReplaceAll(content, find, replace)), 0644); err != nil {
		return "", fmt.Errorf("replace %s: %w", rel, err)
	}
	return "Replacement successful in: " + g.relative(p), nil
}

// inIncubator treats bare relative paths as incubator-relative unless they
// already name the incubator.
func (g *Guardian) inIncubator(rel string) string {
	rel = strings.TrimSpace(rel)
	if filepath.IsAbs(rel) {
		return rel
	}
	inc := g.Incubator()
	clean := filepath.ToSlash(filepath.Clean(rel))
	if clean == inc || strings.HasPrefix(clean, inc+"/") {
		return rel
	}
	return filepath.Join(inc, rel)
}
