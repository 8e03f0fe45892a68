package tools

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stellarlinkco/mindloop/internal/filestore"
	"github.com/stellarlinkco/mindloop/internal/guardian"
	"github.com/stellarlinkco/mindloop/internal/logging"
)

const (
	EventLogDoc = "event_log.json"

	maxEvents = 500
)

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Mode      string    `json:"mode"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Project is the sandboxed file access behind the system.* file tools.
type Project interface {
	Read(rel string) (string, error)
	List(rel string) ([]guardian.Entry, error)
	Write(rel, content string) (string, error)
	Append(rel, content string) (string, error)
	Copy(source, dest string) (string, error)
	Replace(rel, find, replace string) (string, error)
}

type SystemDeps struct {
	Project Project
	Files   *filestore.Store
	Logger  *zap.Logger
	Now     func() time.Time
}

func SystemTools(d SystemDeps) []Spec {
	logger := logging.OrNop(d.Logger).Named("events")
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return []Spec{
		{
			Name:    "system.log_event",
			Summary: "system.log_event(level, message) - Write an entry into the event log.",
			Manual: `Params:
  level (str): info, warn or error.
  message (str): the event.`,
			Handler: func(_ context.Context, c Call) (Output, error) {
				ev := Event{
					Timestamp: now().UTC(),
					Mode:      c.Mode,
					Level:     strings.ToLower(c.Args.String("level", "info")),
					Message:   c.Args.String("message", ""),
				}
				if ev.Message == "" {
					return Visible("Error: 'message' is mandatory."), nil
				}
				if err := filestore.AppendCapped(d.Files, EventLogDoc, maxEvents, ev); err != nil {
					return Output{}, fmt.Errorf("log event: %w", err)
				}
				logger.Info(ev.Message, zap.String("level", ev.Level), zap.String("mode", ev.Mode))
				return Silent("Event logged."), nil
			},
		},
		{
			Name:    "system.read_file",
			Summary: "system.read_file(path) - Read a project file.",
			Manual: `Params:
  path (str): path relative to the project root.`,
			Handler: func(_ context.Context, c Call) (Output, error) {
				p := c.Args.String("path", "")
				if p == "" {
					return Visible("system.read_file: Error, path is mandatory."), nil
				}
				content, err := d.Project.Read(p)
				if err != nil {
					return Output{}, err
				}
				if content == "" {
					return Visible("Empty file."), nil
				}
				return Visible("%s", content), nil
			},
		},
		{
			Name:    "system.list_dir",
			Summary: "system.list_dir(path) - List a project directory.",
			Manual: `Params:
  path (str, optional): directory relative to the project root, default ".".`,
			Handler: func(_ context.Context, c Call) (Output, error) {
				entries, err := d.Project.List(c.Args.String("path", "."))
				if err != nil {
					return Output{}, err
				}
				if len(entries) == 0 {
					return Visible("Empty directory."), nil
				}
				lines := make([]string, 0, len(entries))
				for _, e := range entries {
					kind := "<FILE>"
					if e.IsDir {
						kind = "<DIR>"
					}
					lines = append(lines, kind+" "+e.Path)
				}
				sort.Strings(lines)
				return Visible("%s", strings.Join(lines, "\n")), nil
			},
		},
		{
			Name:    "system.write_file",
			Summary: "system.write_file(path, content, mode) - Write a file inside the incubator.",
			Manual: `Params:
  path (str): path inside the incubator.
  content (str): text to write.
  mode (str, optional): "overwrite" (default) or "append".`,
			Handler: func(_ context.Context, c Call) (Output, error) {
				p := c.Args.String("path", "")
				if p == "" {
					return Visible("system.write_file: missing path."), nil
				}
				content := c.Args.String("content", "")
				write := d.Project.Write
				if m := c.Args.String("mode", "overwrite"); m == "append" || m == "a" {
					write = d.Project.Append
				}
				rel, err := write(p, content)
				if err != nil {
					return Output{}, err
				}
				return Visible("Write successful: %s", rel), nil
			},
		},
		{
			Name:    "system.copy_file",
			Summary: "system.copy_file(source, dest) - Copy a project file into the incubator.",
			Manual: `Params:
  source (str): path relative to the project root.
  dest (str): destination inside the incubator.`,
			Handler: func(_ context.Context, c Call) (Output, error) {
				src, dst := c.Args.String("source", ""), c.Args.String("dest", "")
				if src == "" || dst == "" {
					return Visible("system.copy_file: missing parameters."), nil
				}
				msg, err := d.Project.Copy(src, dst)
				if err != nil {
					return Output{}, err
				}
				return Visible("%s", msg), nil
			},
		},
		{
			Name:    "system.replace_in_file",
			Summary: "system.replace_in_file(path, find, replace) - Replace text in an incubator file.",
			Manual: `Params:
  path (str): file inside the incubator.
  find (str): exact text to look for.
  replace (str): replacement text.`,
			Handler: func(_ context.Context, c Call) (Output, error) {
				p, find := c.Args.String("path", ""), c.Args.String("find", "")
				_, hasReplace := c.Args["replace"]
				if p == "" || find == "" || !hasReplace {
					return Visible("system.replace_in_file: missing parameter."), nil
				}
				msg, err := d.Project.Replace(p, find, fmt.Sprint(c.Args["replace"]))
				if err != nil {
					return Output{}, err
				}
				return Visible("%s", msg), nil
			},
		},
		{
			Name:    "system.dump",
			Summary: "system.dump(path, ext, output) - Concatenate every matching file under a directory into one incubator file.",
			Manual: `Params:
  path (str): directory relative to the project root.
  ext (str, optional): file extension filter, default ".go".
  output (str, optional): file name inside the incubator.`,
			Handler: func(_ context.Context, c Call) (Output, error) {
				dir := c.Args.String("path", "")
				if dir == "" {
					return Visible("system.dump: path is mandatory."), nil
				}
				ext := c.Args.String("ext", ".go")
				out := c.Args.String("output", "dump_"+strings.ReplaceAll(path.Clean(dir), "/", "_")+".txt")
				return dump(d.Project, dir, ext, out)
			},
		},
	}
}

func dump(p Project, dir, ext, output string) (Output, error) {
	var files []string
	var walk func(rel string) error
	walk = func(rel string) error {
		entries, err := p.List(rel)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir {
				if err := walk(e.Path); err != nil {
					return err
				}
				continue
			}
			if strings.HasSuffix(e.Path, ext) {
				files = append(files, e.Path)
			}
		}
		return nil
	}
	if err := walk(dir); err != nil {
		return Output{}, err
	}
	sort.Strings(files)

	var b strings.Builder
	fmt.Fprintf(&b, "# PROJECT DUMP (%s)\n# TOTAL %d %s FILES\n", dir, len(files), ext)
	for _, f := range files {
		fmt.Fprintf(&b, "\n%s\nFILE: %s\n%s\n\n", divider, f, divider)
		content, err := p.Read(f)
		if err != nil {
			fmt.Fprintf(&b, "[READ ERROR: %v]\n", err)
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	rel, err := p.Write(output, b.String())
	if err != nil {
		return Output{}, err
	}
	return Visible("system.dump: %d files saved to %s", len(files), rel), nil
}
