package upscale

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Source is one entry of the ordered image list.
type Source struct {
	Dir  string
	Name string
}

// Path returns the file path of s.
func (s Source) Path() string { return filepath.Join(s.Dir, s.Name) }

// OutputName builds "{index_}{prefix_}{stem}{_suffix}.{format}" for the
// source file name. The index is only added with unique numbering.
func (cfg *ExportConfig) OutputName(name string, index int) string {
	var b strings.Builder
	if cfg.UniqueNumbering {
		b.WriteString(strconv.Itoa(index))
		b.WriteByte('_')
	}
	if cfg.Prefix != "" {
		b.WriteString(cfg.Prefix)
		b.WriteByte('_')
	}
	b.WriteString(strings.TrimSuffix(name, filepath.Ext(name)))
	if cfg.Suffix != "" {
		b.WriteByte('_')
		b.WriteString(cfg.Suffix)
	}
	b.WriteByte('.')
	b.WriteString(canonicalFormat(cfg.Format))
	return b.String()
}

// OutputPath returns where the export of src is written.
func (cfg *ExportConfig) OutputPath(src Source, index int) string {
	dir := src.Dir
	if !cfg.Destination.IsOriginal() {
		dir = cfg.Destination.Folder
	}
	return filepath.Join(dir, cfg.OutputName(src.Name, index))
}
