package index

import (
	"fmt"
	"html/template"
	"io"
	"path"
	"strings"
	"time"

	"github.com/tonimelisma/globus-go/internal/transfer"
)

// Output formats.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

const (
	htmlIndexName     = "index.html"
	markdownIndexName = "index.md"

	footerTimeLayout = "2006-01-02T15:04"
)

// DefaultFooter is printed at the bottom of generated HTML pages, followed by
// the generation time.
const DefaultFooter = "Globus HTTPS Server at ALCF/ANL Petrel; index generated on"

// IndexName returns the per-directory file name for a format.
func IndexName(format string) string {
	if format == FormatMarkdown {
		return markdownIndexName
	}

	return htmlIndexName
}

// 20x22 GIF icons from the Apache distribution, embedded as data URIs so the
// pages need nothing else from the server.
const (
	backGIF = "R0lGODlhFAAWAMIAAP///8z//5mZmWZmZjMzMwAAAAAAAAAAACH+TlRoaXMgYXJ0IGlzIGlu" +
		"IHRoZSBwdWJsaWMgZG9tYWluLiBLZXZpbiBIdWdoZXMsIGtldmluaEBlaXQuY29tLCBTZXB0" +
		"ZW1iZXIgMTk5NQAh+QQBAAABACwAAAAAFAAWAAADSxi63P4jEPJqEDNTu6LO3PVpnDdOFnaC" +
		"kHQGBTcqRRxuWG0v+5LrNUZQ8QPqeMakkaZsFihOpyDajMCoOoJAGNVWkt7QVfzokc+LBAA7"

	folderGIF = "R0lGODlhFAAWAMIAAP/////Mmcz//5lmMzMzMwAAAAAAAAAAACH+TlRoaXMgYXJ0IGlzIGlu" +
		"IHRoZSBwdWJsaWMgZG9tYWluLiBLZXZpbiBIdWdoZXMsIGtldmluaEBlaXQuY29tLCBTZXB0" +
		"ZW1iZXIgMTk5NQAh+QQBAAACACwAAAAAFAAWAAADVCi63P4wyklZufjOErrvRcR9ZKYpxUB6" +
		"aokGQyzHKxyO9RoTV54PPJyPBewNSUXhcWc8soJOIjTaSVJhVphWxd3CeILUbDwmgMPmtHrN" +
		"IyxM8Iw7AQA7"

	fileGIF = "R0lGODlhFAAWAMIAAP///8z//8zMzJmZmTMzMwAAAAAAAAAAACH+TlRoaXMgYXJ0IGlzIGlu" +
		"IHRoZSBwdWJsaWMgZG9tYWluLiBLZXZpbiBIdWdoZXMsIGtldmluaEBlaXQuY29tLCBTZXB0" +
		"ZW1iZXIgMTk5NQAh+QQBAAABACwAAAAAFAAWAAADaUi6vPEwEECrnSS+WQoQXSEAE6lxXgeo" +
		"pQmha+q1rhTfakHo/HaDnVFo6LMYKYPkoOADim4VJdOWkx2XvirUgqVaVcbuxCn0hKe04znr" +
		"IV/ROOvaG3+z63OYO6/uiwlKgYJJOxFDh4hTCQA7"
)

const htmlPage = `<!DOCTYPE HTML PUBLIC "-//W3C//DTD HTML 3.2 Final//EN">
<html>
<head><title>Index of {{.Title}}</title></head>
<style>
    .back {
        background: url(data:image/gif;base64,` + backGIF + `) no-repeat;
    }
    .folder {
        background: url(data:image/gif;base64,` + folderGIF + `) no-repeat;
    }
    .file {
        background: url(data:image/gif;base64,` + fileGIF + `) no-repeat;
    }
    .icon {
        width: 20px;
        height: 24px;
    }
</style>
<body>
<h1>Index of {{.Title}}</h1>
<table>
    <tr><th></th><th>Name</th><th>Last modified</th><th>Size</th></tr>
    <tr><th colspan="4"><hr></th></tr>
{{- if .Parent}}
    <tr><td class="icon back"></td><td><a href="../index.html">Parent Directory</a></td></tr>
{{- end}}
{{- range .Rows}}
{{- if .Folder}}
    <tr>
        <td class="icon folder"></td>
        <td><a href="{{.Link}}">{{.Name}}</a></td>
        <td align="right">{{.Modified}}</td>
        <td>-</td>
    </tr>
{{- else}}
    <tr>
        <td class="icon file"></td>
        <td><a href="{{.Link}}">{{.Name}}</a></td>
        <td align="right">{{.Modified}}</td>
        <td align="right">{{.Size}}</td>
    </tr>
{{- end}}
{{- end}}
    <tr><th colspan="4"><hr></th></tr>
</table>
{{.Footer}}
</body>
</html>
`

var htmlTemplate = template.Must(template.New("index").Parse(htmlPage))

// Page is the renderer-independent content of one index file.
type Page struct {
	Title  string
	Parent bool
	Rows   []Row
}

// Row is one listed entry. Link is relative to the page.
type Row struct {
	Name     string
	Link     string
	Modified string
	Size     string
	Folder   bool
}

type htmlData struct {
	Page
	Footer string
}

// RenderOptions control page decoration.
type RenderOptions struct {
	Footer string
	Now    time.Time
}

func (o RenderOptions) footer() string {
	text := o.Footer
	if text == "" {
		text = DefaultFooter
	}

	return text + " " + o.Now.UTC().Format(footerTimeLayout)
}

// DirPage builds the page for one crawled directory: folders link to their
// own index, files link directly.
func DirPage(d *Dir, format string) Page {
	p := Page{Title: d.Path, Parent: d.Path != "/"}

	for _, e := range d.Entries {
		switch e.Type {
		case transfer.EntryDir:
			p.Rows = append(p.Rows, Row{
				Name:     e.Name,
				Link:     e.Name + "/" + IndexName(format),
				Modified: e.LastModified,
				Size:     "-",
				Folder:   true,
			})
		case transfer.EntryFile:
			p.Rows = append(p.Rows, Row{
				Name:     e.Name,
				Link:     e.Name,
				Modified: e.LastModified,
				Size:     HumanSize(e.Size),
			})
		}
	}

	return p
}

// FlatPage lists every file in the tree on a single page. Each link is
// linkPrefix joined with the file's path relative to the root.
func FlatPage(root *Dir, linkPrefix string) Page {
	p := Page{Title: root.Path}

	_ = root.Walk(func(d *Dir) error {
		for _, e := range d.Files() {
			rel := strings.TrimPrefix(path.Join(strings.TrimPrefix(d.Path, root.Path), e.Name), "/")

			p.Rows = append(p.Rows, Row{
				Name:     e.Name,
				Link:     joinLink(linkPrefix, rel),
				Modified: e.LastModified,
				Size:     HumanSize(e.Size),
			})
		}

		return nil
	})

	return p
}

func joinLink(prefix, rel string) string {
	if prefix == "" {
		return rel
	}

	return path.Join(prefix, rel)
}

// RenderHTML writes p as an HTML 3.2 directory listing.
func RenderHTML(w io.Writer, p Page, opts RenderOptions) error {
	if err := htmlTemplate.Execute(w, htmlData{Page: p, Footer: opts.footer()}); err != nil {
		return fmt.Errorf("index: rendering html for %s: %w", p.Title, err)
	}

	return nil
}

// RenderMarkdown writes p as a Markdown heading followed by one link
// paragraph per entry.
func RenderMarkdown(w io.Writer, p Page) error {
	var b strings.Builder

	fmt.Fprintf(&b, "\n# Index of %s\n", p.Title)

	if p.Parent {
		fmt.Fprintf(&b, "\n[Parent Directory](../%s)\n", markdownIndexName)
	}

	for _, r := range p.Rows {
		fmt.Fprintf(&b, "\n[%s](%s)\n", escapeMarkdown(r.Name), r.Link)
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("index: rendering markdown for %s: %w", p.Title, err)
	}

	return nil
}

var markdownEscaper = strings.NewReplacer(`[`, `\[`, `]`, `\]`)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// Render writes p in the given format.
func Render(w io.Writer, p Page, format string, opts RenderOptions) error {
	switch format {
	case FormatHTML, "":
		return RenderHTML(w, p, opts)
	case FormatMarkdown:
		return RenderMarkdown(w, p)
	default:
		return fmt.Errorf("index: unknown format %q", format)
	}
}

var sizeSuffixes = []string{"", "K", "M", "G", "T", "P"}

// HumanSize formats a byte count the way the index pages always have:
// divide by 1024 while the value is at least 1000, one decimal below ten.
func HumanSize(size int64) string {
	v := float64(size)
	i := 0

	for ; i < len(sizeSuffixes); i++ {
		if v/1000.0 < 1.0 {
			break
		}

		v /= 1024.0
	}

	// Values beyond the last suffix keep dividing once more before the loop
	// ends, and are still labeled with it.
	i = min(i, len(sizeSuffixes)-1)

	if v < 10.0 && i > 0 {
		return fmt.Sprintf("%.1f%s", v, sizeSuffixes[i])
	}

	return fmt.Sprintf("%d%s", int64(v), sizeSuffixes[i])
}
