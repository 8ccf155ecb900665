package wire

import (
	"io"
	"os"
	"path"

	"github.com/jhump/protoreflect/v2/protoprint"
)

// Render prints the .proto source of the schema to w.
func Render(s *Schema, w io.Writer) error {
	pp := protoprint.Printer{}
	return pp.PrintProtoFile(s.file, w)
}

// RenderDir writes the .proto file under outDir, at the file's own path.
func RenderDir(s *Schema, outDir string) (string, error) {
	fp := path.Join(outDir, s.file.Path())
	if err := os.MkdirAll(path.Dir(fp), 0755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(fp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := Render(s, f); err != nil {
		return "", err
	}
	return fp, nil
}
