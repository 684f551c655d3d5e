package techdebt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mikematt33/qgate/internal/analysis"
	"github.com/mikematt33/qgate/internal/toolchain"
	"github.com/mikematt33/qgate/pkg/models"
)

var markerRe = regexp.MustCompile(`\b(TODO|FIXME|HACK)\b`)

const maxLineBytes = 1024 * 1024

type Analyzer struct{}

func New() *Analyzer {
	return &Analyzer{}
}

func (a *Analyzer) Name() string {
	return "techDebt"
}

// Counts are the marker totals of a scan.
type Counts struct {
	Todo  int
	Fixme int
	Hack  int
}

func (c *Counts) add(o Counts) {
	c.Todo += o.Todo
	c.Fixme += o.Fixme
	c.Hack += o.Hack
}

func (a *Analyzer) Analyze(ctx context.Context, tc *toolchain.Context, cfg analysis.Config, m *models.Metrics) error {
	exts := make(map[string]bool, len(cfg.Tools.TechDebtExtensions))
	for _, e := range cfg.Tools.TechDebtExtensions {
		exts[strings.ToLower(e)] = true
	}
	excluded := make(map[string]bool, len(cfg.Tools.ExcludeDirs))
	for _, d := range cfg.Tools.ExcludeDirs {
		excluded[d] = true
	}

	var total Counts
	scanned := 0
	for _, target := range cfg.Targets {
		root := tc.Path(target)
		if _, err := os.Stat(root); err != nil {
			continue
		}
		scanned++

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() {
				if path != root && excluded[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if !exts[strings.ToLower(filepath.Ext(path))] {
				return nil
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			counts, err := Scan(f)
			if err != nil {
				return fmt.Errorf("failed to scan %s: %w", path, err)
			}
			total.add(counts)
			return nil
		})
		if err != nil {
			return err
		}
	}

	if scanned == 0 {
		return fmt.Errorf("none of the targets exist: %s", strings.Join(cfg.Targets, ", "))
	}

	m.TechDebt = models.TechDebtMetrics{
		TodoCount:  total.Todo,
		FixmeCount: total.Fixme,
		HackCount:  total.Hack,
		TotalDebt:  total.Todo + total.Fixme + total.Hack,
	}
	return nil
}

// Scan counts markers inside comments. Markers in code or string literals
// on a line without a comment are ignored.
func Scan(r io.Reader) (Counts, error) {
	var c Counts

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	inBlock := false

	for scanner.Scan() {
		var comment string
		comment, inBlock = commentText(scanner.Text(), inBlock)
		if comment == "" {
			continue
		}
		for _, match := range markerRe.FindAllString(comment, -1) {
			switch match {
			case "TODO":
				c.Todo++
			case "FIXME":
				c.Fixme++
			case "HACK":
				c.Hack++
			}
		}
	}
	return c, scanner.Err()
}

// commentText returns the comment portion of a line and whether a block
// comment is still open at its end. Comment openers inside quoted strings are
// ignored; a quote left open at the end of the line is closed there.
func commentText(line string, inBlock bool) (string, bool) {
	var b strings.Builder
	var quote byte

	for i := 0; i < len(line); i++ {
		if inBlock {
			end := strings.Index(line[i:], "*/")
			if end < 0 {
				b.WriteString(line[i:])
				return b.String(), true
			}
			b.WriteString(line[i : i+end])
			b.WriteByte(' ')
			i += end + 1
			inBlock = false
			continue
		}

		ch := line[i]
		if quote != 0 {
			switch ch {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}

		rest := line[i:]
		switch {
		case ch == '"' || ch == '\'' || ch == '`':
			quote = ch
		case strings.HasPrefix(rest, "//"):
			b.WriteString(rest[2:])
			return b.String(), false
		case strings.HasPrefix(rest, "/*"):
			inBlock = true
			i++
		case strings.HasPrefix(rest, "<!--"):
			rest = rest[4:]
			if end := strings.Index(rest, "-->"); end >= 0 {
				rest = rest[:end]
			}
			b.WriteString(rest)
			return b.String(), false
		}
	}
	return b.String(), inBlock
}

func (a *Analyzer) Skip(m *models.Metrics, reason string) {
	m.TechDebt = models.TechDebtMetrics{Collection: models.Skip(reason)}
}
