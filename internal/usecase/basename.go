package usecase

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasttemplate"
)

// DefaultBasenameTemplate reproduces the day.month.year-hour_minute_second naming.
const DefaultBasenameTemplate = "{timestamp}"

const timestampLayout = "02.01.2006-15_04_05"

// basenamer renders the per-session output prefix inside the recordings folder.
type basenamer struct {
	dir      string
	template *fasttemplate.Template
	exts     []string
}

func newBasenamer(dir string, tmpl string, exts ...string) (*basenamer, error) {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultBasenameTemplate
	}
	t, err := fasttemplate.NewTemplate(tmpl, "{", "}")
	if err != nil {
		return nil, fmt.Errorf("invalid basename template: %w", err)
	}
	return &basenamer{dir: dir, template: t, exts: exts}, nil
}

func (b *basenamer) next(now time.Time, sessionID string) string {
	name := b.template.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		switch tag {
		case "timestamp":
			return w.Write([]byte(now.Format(timestampLayout)))
		case "date":
			return w.Write([]byte(now.Format("2006-01-02")))
		case "time":
			return w.Write([]byte(now.Format("15-04-05")))
		case "unix":
			return w.Write([]byte(strconv.FormatInt(now.Unix(), 10)))
		case "id":
			return w.Write([]byte(shortID(sessionID)))
		default:
			return w.Write([]byte("{" + tag + "}"))
		}
	})
	name = strings.ReplaceAll(filepath.Clean("/"+name)[1:], string(filepath.Separator), "_")
	if name == "" {
		name = now.Format(timestampLayout)
	}

	base := filepath.Join(b.dir, name)
	candidate := base
	for i := 2; b.taken(candidate); i++ {
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return candidate
}

func (b *basenamer) taken(base string) bool {
	for _, ext := range b.exts {
		if _, err := os.Stat(base + ext); err == nil {
			return true
		}
	}
	return false
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
