package command

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// File represents a command-table YAML file.
type File struct {
	Version  int      `yaml:"version"`
	Name     string   `yaml:"name"`
	Dialect  Dialect  `yaml:"dialect,omitempty"` // default for entries without one
	Commands []Record `yaml:"commands"`
}

// Records returns the file's records with the file-level dialect applied.
func (f *File) Records() []Record {
	out := make([]Record, len(f.Commands))
	for i, r := range f.Commands {
		if r.Dialect == "" {
			r.Dialect = f.Dialect
		}
		out[i] = r
	}
	return out
}

// Validate checks the file for consistency.
func (f *File) Validate() error {
	if f.Version != 1 {
		return fmt.Errorf("unsupported table version: %d", f.Version)
	}
	if f.Dialect != "" && !f.Dialect.Valid() {
		return fmt.Errorf("unknown table dialect %q", f.Dialect)
	}
	for i, r := range f.Records() {
		if _, err := NewSpec(r); err != nil {
			return fmt.Errorf("command %d: %w", i, err)
		}
	}
	return nil
}

// Table builds the command table described by the file.
func (f *File) Table() (*Table, error) {
	return NewNamed(f.Name, f.Records())
}

// LoadYAML reads a command table from a YAML file.
func LoadYAML(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read table file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse table YAML: %w", err)
	}
	if file.Version == 0 {
		file.Version = 1
	}
	if file.Name == "" {
		file.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &file, nil
}

// SaveYAML writes a command table file.
func SaveYAML(path string, file *File) error {
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal table: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write table file: %w", err)
	}
	return nil
}

// xmlTable mirrors the instrument XML command files:
//
//	<commands dialect="sum">
//	  <command>
//	    <name>query_position</name>
//	    <function_code>1A</function_code>
//	    <type>report</type>
//	  </command>
//	</commands>
type xmlTable struct {
	XMLName  xml.Name     `xml:"commands"`
	Name     string       `xml:"name,attr"`
	Dialect  string       `xml:"dialect,attr"`
	Commands []xmlCommand `xml:"command"`
}

type xmlCommand struct {
	Name            string `xml:"name"`
	Dialect         string `xml:"dialect"`
	Type            string `xml:"type"`
	FunctionCode    string `xml:"function_code"`
	Code            string `xml:"code"`
	RegisterAddress string `xml:"register_address"`
	Quantity        string `xml:"quantity"`
	Offset          string `xml:"offset"`
}

// LoadXML reads a command table from an XML file. A non-empty dialect
// replaces the root dialect attribute; commands that name their own
// dialect keep it. dialect may be empty when the file declares one.
func LoadXML(path string, dialect Dialect) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read table file: %w", err)
	}
	var doc xmlTable
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse table XML: %w", err)
	}

	file := &File{
		Version: 1,
		Name:    doc.Name,
		Dialect: dialect,
	}
	if dialect == "" && doc.Dialect != "" {
		d, err := ParseDialect(doc.Dialect)
		if err != nil {
			return nil, err
		}
		file.Dialect = d
	}
	if file.Name == "" {
		file.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	for i, c := range doc.Commands {
		r, err := c.record()
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		file.Commands = append(file.Commands, r)
	}
	return file, nil
}

func (c xmlCommand) record() (Record, error) {
	r := Record{
		Name: strings.TrimSpace(c.Name),
		Kind: Kind(strings.ToLower(strings.TrimSpace(c.Type))),
		Code: strings.TrimSpace(c.FunctionCode),
	}
	// Anything not a report is a write command.
	if r.Kind != KindReport {
		r.Kind = KindWrite
	}
	if r.Code == "" {
		r.Code = strings.TrimSpace(c.Code)
	}
	if c.Dialect != "" {
		d, err := ParseDialect(c.Dialect)
		if err != nil {
			return Record{}, err
		}
		r.Dialect = d
	}
	if s := strings.TrimSpace(c.RegisterAddress); s != "" {
		v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 16)
		if err != nil {
			return Record{}, fmt.Errorf("invalid register_address %q", s)
		}
		r.Register = uint16(v)
	}
	if s := strings.TrimSpace(c.Quantity); s != "" {
		v, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return Record{}, fmt.Errorf("invalid quantity %q", s)
		}
		r.Quantity = uint16(v)
	}
	if s := strings.TrimSpace(c.Offset); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return Record{}, fmt.Errorf("invalid offset %q", s)
		}
		r.Offset = &v
	}
	return r, nil
}

// Load reads a table file, choosing the format from the file extension.
// A non-empty dialect replaces the file-level default in either format.
func Load(path string, dialect Dialect) (*File, error) {
	var (
		file *File
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		file, err = LoadXML(path, dialect)
	case ".yaml", ".yml":
		file, err = LoadYAML(path)
		if err == nil && dialect != "" {
			file.Dialect = dialect
		}
	default:
		return nil, fmt.Errorf("unsupported table format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}

// LoadTable reads, validates and builds a table in one step.
func LoadTable(path string, dialect Dialect) (*Table, error) {
	file, err := Load(path, dialect)
	if err != nil {
		return nil, err
	}
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("validate table: %w", err)
	}
	return file.Table()
}
