package format

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	"github.com/openshelf/bookreader/internal/entities"
)

// EPUB is ZIP-packaged XHTML. The OPF spine defines reading order; each
// spine item is one chunk (a chapter). Positions are chapter indexes.

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type epubItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type epubPackage struct {
	Metadata struct {
		Metas []struct {
			Name    string `xml:"name,attr"`
			Content string `xml:"content,attr"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Items []epubItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Itemrefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type epubChapter struct {
	href  string // zip path, OPF-relative hrefs already resolved
	title string
}

type epubDecoder struct {
	zr       *zip.ReadCloser
	chapters []epubChapter
}

func openEPUB(filePath string) (*epubDecoder, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: not a zip container: %v", entities.ErrFormat, err)
	}

	pkg, opfDir, err := readOPF(&zr.Reader)
	if err != nil {
		zr.Close()
		return nil, err
	}

	items := make(map[string]epubItem, len(pkg.Manifest.Items))
	for _, it := range pkg.Manifest.Items {
		items[it.ID] = it
	}

	var chapters []epubChapter
	for _, ref := range pkg.Spine.Itemrefs {
		it, ok := items[ref.IDRef]
		if !ok {
			continue
		}
		chapters = append(chapters, epubChapter{
			href:  resolveHref(opfDir, it.Href),
			title: strings.TrimSuffix(path.Base(it.Href), path.Ext(it.Href)),
		})
	}
	if len(chapters) == 0 {
		zr.Close()
		return nil, fmt.Errorf("%w: empty spine", entities.ErrFormat)
	}

	return &epubDecoder{zr: zr, chapters: chapters}, nil
}

// readOPF locates and parses the package document via META-INF/container.xml.
func readOPF(zr *zip.Reader) (*epubPackage, string, error) {
	data, err := readZipFile(zr, "META-INF/container.xml")
	if err != nil {
		return nil, "", fmt.Errorf("%w: missing container.xml: %v", entities.ErrFormat, err)
	}
	var c epubContainer
	if err := xml.Unmarshal(data, &c); err != nil || len(c.Rootfiles) == 0 {
		return nil, "", fmt.Errorf("%w: malformed container.xml", entities.ErrFormat)
	}

	opfPath := c.Rootfiles[0].FullPath
	data, err = readZipFile(zr, opfPath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: missing package document %s: %v", entities.ErrFormat, opfPath, err)
	}
	var pkg epubPackage
	if err := xml.Unmarshal(data, &pkg); err != nil {
		return nil, "", fmt.Errorf("%w: malformed package document: %v", entities.ErrFormat, err)
	}
	return &pkg, path.Dir(opfPath), nil
}

func resolveHref(opfDir, href string) string {
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	if opfDir == "." || opfDir == "" {
		return path.Clean(href)
	}
	return path.Clean(path.Join(opfDir, href))
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("%s not in archive", name)
}

func (d *epubDecoder) Length() int64 {
	return int64(len(d.chapters))
}

func (d *epubDecoder) Chunks() int {
	return len(d.chapters)
}

func (d *epubDecoder) PositionOfChunk(index int) int64 {
	if index < 0 {
		return 0
	}
	if index >= len(d.chapters) {
		index = len(d.chapters) - 1
	}
	return int64(index)
}

func (d *epubDecoder) ChunkAt(position int64) (Chunk, error) {
	position = entities.ClampPosition(position, int64(len(d.chapters)-1))
	idx := int(position)
	ch := d.chapters[idx]

	data, err := readZipFile(&d.zr.Reader, ch.href)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: chapter %s: %v", entities.ErrIO, ch.href, err)
	}

	text, title := extractXHTMLText(data)
	if title == "" {
		title = ch.title
	}
	return Chunk{Index: idx, Position: int64(idx), Title: title, Content: text}, nil
}

func (d *epubDecoder) Close() error {
	return d.zr.Close()
}

// extractXHTMLText renders the chapter markup down to plain text and pulls
// the document title along the way. Parsing is lenient; EPUBs in the wild
// are rarely valid XHTML.
func extractXHTMLText(data []byte) (text, title string) {
	doc, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return "", ""
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style":
				return
			case "title":
				if n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			case "p", "div", "br", "h1", "h2", "h3", "h4", "li", "tr":
				b.WriteByte('\n')
			}
		case html.TextNode:
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return collapseBlankLines(b.String()), title
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" && len(out) > 0 && out[len(out)-1] == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// ExtractEPUBCover returns the cover image bytes and their file extension,
// located via the manifest cover-image property or the legacy meta entry.
func ExtractEPUBCover(filePath string) ([]byte, string, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: not a zip container: %v", entities.ErrFormat, err)
	}
	defer zr.Close()

	pkg, opfDir, err := readOPF(&zr.Reader)
	if err != nil {
		return nil, "", err
	}

	var cover *epubItem
	for i, it := range pkg.Manifest.Items {
		if strings.Contains(it.Properties, "cover-image") {
			cover = &pkg.Manifest.Items[i]
			break
		}
	}
	if cover == nil {
		var coverID string
		for _, m := range pkg.Metadata.Metas {
			if m.Name == "cover" {
				coverID = m.Content
				break
			}
		}
		for i, it := range pkg.Manifest.Items {
			if coverID != "" && it.ID == coverID {
				cover = &pkg.Manifest.Items[i]
				break
			}
		}
	}
	if cover == nil {
		return nil, "", fmt.Errorf("%w: no cover image declared", entities.ErrFormat)
	}

	data, err := readZipFile(&zr.Reader, resolveHref(opfDir, cover.Href))
	if err != nil {
		return nil, "", fmt.Errorf("%w: cover %s: %v", entities.ErrFormat, cover.Href, err)
	}

	ext := ".jpg"
	switch cover.MediaType {
	case "image/png":
		ext = ".png"
	case "image/gif":
		ext = ".gif"
	}
	return data, ext, nil
}
