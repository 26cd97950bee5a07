package naming

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"stdimage/internal/models"
)

// Instance is the record an original is uploaded for.
type Instance interface {
	ModelName() string
	FieldValue(name string) string
}

// UploadTo computes the storage key for an uploaded original from the owning
// record and the client file name. Keys are always lower case.
type UploadTo interface {
	Generate(inst Instance, filename string) string
}

// Func adapts a plain function to UploadTo.
type Func func(inst Instance, filename string) string

func (f Func) Generate(inst Instance, filename string) string { return f(inst, filename) }

// NewID returns the random name used by the UUID strategies.
var NewID = func() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func upload(name, ext, dir string) string {
	file := name
	if ext != "" {
		file += "." + ext
	}
	return strings.ToLower(path.Join(dir, file))
}

func clientParts(filename string) (stem, ext string) {
	return SplitExt(path.Base(strings.ReplaceAll(filename, "\\", "/")))
}

// Fixed stores every upload under the same key.
type Fixed struct {
	Key string
}

func (f Fixed) Generate(Instance, string) string {
	return strings.ToLower(f.Key)
}

// Named keeps the client extension and stores the file as Path/Name.ext.
// An empty Name keeps the client file name.
type Named struct {
	Name string
	Path string
}

func (n Named) Generate(_ Instance, filename string) string {
	stem, ext := clientParts(filename)
	if n.Name != "" {
		stem = n.Name
	}
	return upload(stem, ext, n.Path)
}

// UUID names the file with a random hex id.
type UUID struct {
	Path string
}

func (u UUID) Generate(_ Instance, filename string) string {
	_, ext := clientParts(filename)
	return upload(NewID(), ext, u.Path)
}

// ClassNameDir stores the file in a directory named after the record's model.
type ClassNameDir struct {
	Path string
	Name string
}

func (c ClassNameDir) Generate(inst Instance, filename string) string {
	stem, ext := clientParts(filename)
	if c.Name != "" {
		stem = c.Name
	}
	return upload(stem, ext, path.Join(c.Path, inst.ModelName()))
}

// ClassNameDirUUID combines ClassNameDir and UUID.
type ClassNameDirUUID struct {
	Path string
}

func (c ClassNameDirUUID) Generate(inst Instance, filename string) string {
	return ClassNameDir{Path: c.Path, Name: NewID()}.Generate(inst, filename)
}

// AutoSlug names the file after a slug of one of the record's fields, falling
// back to a random id when the slug is empty.
type AutoSlug struct {
	PopulateFrom string
	Path         string
	ClassDir     bool
}

func (a AutoSlug) Generate(inst Instance, filename string) string {
	_, ext := clientParts(filename)
	name := Slugify(inst.FieldValue(a.PopulateFrom))
	if name == "" {
		name = NewID()
	}
	dir := a.Path
	if a.ClassDir {
		dir = path.Join(dir, inst.ModelName())
	}
	return upload(name, ext, dir)
}

// New builds the strategy selected by configuration.
func New(cfg models.UploadToConfig) (UploadTo, error) {
	switch strings.ToLower(cfg.Strategy) {
	case "", "name":
		return Named{Name: cfg.Name, Path: cfg.Path}, nil
	case "fixed":
		if cfg.Name == "" {
			return nil, models.NewConfigError("upload_to: fixed strategy requires a name")
		}
		return Fixed{Key: path.Join(cfg.Path, cfg.Name)}, nil
	case "uuid":
		return UUID{Path: cfg.Path}, nil
	case "class_name_dir":
		return ClassNameDir{Path: cfg.Path, Name: cfg.Name}, nil
	case "class_name_dir_uuid":
		return ClassNameDirUUID{Path: cfg.Path}, nil
	case "auto_slug", "auto_slug_class_name_dir":
		if cfg.PopulateFrom == "" {
			return nil, models.NewConfigError("upload_to: " + cfg.Strategy + " requires populate_from")
		}
		return AutoSlug{
			PopulateFrom: cfg.PopulateFrom,
			Path:         cfg.Path,
			ClassDir:     strings.ToLower(cfg.Strategy) == "auto_slug_class_name_dir",
		}, nil
	}
	return nil, models.NewConfigError(fmt.Sprintf("upload_to: unknown strategy %q", cfg.Strategy))
}
