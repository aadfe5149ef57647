// Package epub renders a finished book as a minimal EPUB2 container so the
// stored PDF always has a reflowable companion.
package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"bookmill/book"
)

const (
	mimetypeContent = "application/epub+zip"
	oebpsDir        = "OEBPS"
)

const stylesheet = `body { margin: 1em; font-family: serif; }
h1.title { text-align: center; }
div.box { margin: 1em 0; padding: 0.5em 1em; border: 1px solid #888; }
blockquote { margin: 1em 2em; font-style: italic; }
p.placeholder { color: #888; font-style: italic; }
`

type chapterData struct {
	ID       string
	Filename string
	Title    string
	Doc      *etree.Document
}

// Generate writes a complete EPUB for the ready chapters to w. The output is
// derived from the same sanitized markup the print build uses, so both
// artifacts of a version describe identical content.
func Generate(meta book.Meta, frags []book.Fragment, w io.Writer, log *zap.Logger) error {
	ready := book.Ready(frags)
	if len(ready) == 0 {
		return fmt.Errorf("no chapters are ready for packaging")
	}

	log.Info("Generating EPUB companion",
		zap.String("project", meta.ProjectID),
		zap.Int("chapters", len(ready)))

	zw := zip.NewWriter(w)
	defer zw.Close()

	if err := writeMimetype(zw); err != nil {
		return fmt.Errorf("unable to write mimetype: %w", err)
	}
	if err := writeContainer(zw); err != nil {
		return fmt.Errorf("unable to write container: %w", err)
	}
	if err := writeDataToZip(zw, path.Join(oebpsDir, "stylesheet.css"), []byte(stylesheet)); err != nil {
		return fmt.Errorf("unable to write stylesheet: %w", err)
	}

	chapters := make([]chapterData, 0, len(ready))
	for i, frag := range ready {
		id := fmt.Sprintf("index%05d", i+1)
		chapters = append(chapters, chapterData{
			ID:       id,
			Filename: id + ".xhtml",
			Title:    frag.Title,
			Doc:      chapterToXHTML(&frag),
		})
	}

	for _, chapter := range chapters {
		if err := writeXMLToZip(zw, path.Join(oebpsDir, chapter.Filename), chapter.Doc); err != nil {
			return fmt.Errorf("unable to write chapter %s: %w", chapter.ID, err)
		}
	}

	if err := writeOPF(zw, &meta, chapters); err != nil {
		return fmt.Errorf("unable to write OPF: %w", err)
	}
	if err := writeNCX(zw, &meta, chapters); err != nil {
		return fmt.Errorf("unable to write NCX: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("unable to close output archive: %w", err)
	}
	return nil
}

func writeMimetype(zw *zip.Writer) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, mimetypeContent)
	return err
}

func writeContainer(zw *zip.Writer) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	container := doc.CreateElement("container")
	container.CreateAttr("version", "1.0")
	container.CreateAttr("xmlns", "urn:oasis:names:tc:opendocument:xmlns:container")

	rootfiles := container.CreateElement("rootfiles")
	rootfile := rootfiles.CreateElement("rootfile")
	rootfile.CreateAttr("full-path", path.Join(oebpsDir, "content.opf"))
	rootfile.CreateAttr("media-type", "application/oebps-package+xml")

	return writeXMLToZip(zw, "META-INF/container.xml", doc)
}

func writeOPF(zw *zip.Writer, meta *book.Meta, chapters []chapterData) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	pkg := doc.CreateElement("package")
	pkg.CreateAttr("xmlns", "http://www.idpf.org/2007/opf")
	pkg.CreateAttr("unique-identifier", "BookId")
	pkg.CreateAttr("version", "2.0")

	metadata := pkg.CreateElement("metadata")
	metadata.CreateAttr("xmlns:dc", "http://purl.org/dc/elements/1.1/")
	metadata.CreateAttr("xmlns:opf", "http://www.idpf.org/2007/opf")

	dcTitle := metadata.CreateElement("dc:title")
	dcTitle.SetText(meta.Title)

	dcIdentifier := metadata.CreateElement("dc:identifier")
	dcIdentifier.CreateAttr("id", "BookId")
	dcIdentifier.SetText(meta.ProjectID)

	dcLang := metadata.CreateElement("dc:language")
	dcLang.SetText(meta.Language)

	if meta.Author != "" {
		dcCreator := metadata.CreateElement("dc:creator")
		dcCreator.CreateAttr("opf:role", "aut")
		dcCreator.SetText(meta.Author)
	}

	manifest := pkg.CreateElement("manifest")

	ncxItem := manifest.CreateElement("item")
	ncxItem.CreateAttr("id", "ncx")
	ncxItem.CreateAttr("href", "toc.ncx")
	ncxItem.CreateAttr("media-type", "application/x-dtbncx+xml")

	cssItem := manifest.CreateElement("item")
	cssItem.CreateAttr("id", "stylesheet")
	cssItem.CreateAttr("href", "stylesheet.css")
	cssItem.CreateAttr("media-type", "text/css")

	for _, chapter := range chapters {
		item := manifest.CreateElement("item")
		item.CreateAttr("id", chapter.ID)
		item.CreateAttr("href", chapter.Filename)
		item.CreateAttr("media-type", "application/xhtml+xml")
	}

	spine := pkg.CreateElement("spine")
	spine.CreateAttr("toc", "ncx")
	for _, chapter := range chapters {
		itemref := spine.CreateElement("itemref")
		itemref.CreateAttr("idref", chapter.ID)
	}

	return writeXMLToZip(zw, path.Join(oebpsDir, "content.opf"), doc)
}

func writeNCX(zw *zip.Writer, meta *book.Meta, chapters []chapterData) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	ncx := doc.CreateElement("ncx")
	ncx.CreateAttr("xmlns", "http://www.daisy.org/z3986/2005/ncx/")
	ncx.CreateAttr("version", "2005-1")

	head := ncx.CreateElement("head")
	metaUID := head.CreateElement("meta")
	metaUID.CreateAttr("name", "dtb:uid")
	metaUID.CreateAttr("content", meta.ProjectID)
	metaDepth := head.CreateElement("meta")
	metaDepth.CreateAttr("name", "dtb:depth")
	metaDepth.CreateAttr("content", "1")

	docTitle := ncx.CreateElement("docTitle")
	text := docTitle.CreateElement("text")
	text.SetText(meta.Title)

	navMap := ncx.CreateElement("navMap")
	for i, chapter := range chapters {
		navPoint := navMap.CreateElement("navPoint")
		navPoint.CreateAttr("id", chapter.ID)
		navPoint.CreateAttr("playOrder", fmt.Sprintf("%d", i+1))

		navLabel := navPoint.CreateElement("navLabel")
		labelText := navLabel.CreateElement("text")
		labelText.SetText(chapter.Title)

		navContent := navPoint.CreateElement("content")
		navContent.CreateAttr("src", chapter.Filename)
	}

	return writeXMLToZip(zw, path.Join(oebpsDir, "toc.ncx"), doc)
}

func writeXMLToZip(zw *zip.Writer, name string, doc *etree.Document) error {
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return err
	}
	return writeDataToZip(zw, name, buf.Bytes())
}

func writeDataToZip(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
