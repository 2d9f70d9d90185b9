// Package catalog loads questionnaire definitions from YAML and serves them
// as compiled questions.
package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dlovans/surveyor/pkg/survey"
)

// MaxFileSize bounds a catalog file read from disk.
const MaxFileSize = 8 << 20

//go:embed questionnaire_v1.yaml
var defaultYAML []byte

// File is the on-disk catalog format.
type File struct {
	Versions []VersionDef `yaml:"versions" validate:"required,min=1,dive"`
}

// VersionDef is one questionnaire version and its questions.
type VersionDef struct {
	ID        int64               `yaml:"id" validate:"required,gt=0"`
	Name      string              `yaml:"name" validate:"required"`
	Questions []survey.Definition `yaml:"questions" validate:"dive"`
}

// Version identifies a questionnaire version.
type Version struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type numberKey struct {
	version int64
	number  string
}

// Catalog is an immutable in-memory index of compiled questions.
type Catalog struct {
	versions  []Version
	questions map[int64][]*survey.Question // by version, in file order
	byID      map[int64]*survey.Question
	byNumber  map[numberKey]*survey.Question
}

var validate = validator.New()

// Load parses, validates and compiles a catalog file.
func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("catalog exceeds %d bytes", MaxFileSize)
	}
	return Parse(data)
}

// LoadFile loads a catalog from path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Parse compiles catalog YAML already in memory.
func Parse(data []byte) (*Catalog, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return New(file)
}

// New compiles a decoded catalog file. Questions without an id get the next free one.
func New(file File) (*Catalog, error) {
	c := &Catalog{
		questions: make(map[int64][]*survey.Question),
		byID:      make(map[int64]*survey.Question),
		byNumber:  make(map[numberKey]*survey.Question),
	}

	var next int64 = 1
	for _, v := range file.Versions {
		for _, def := range v.Questions {
			if def.ID >= next {
				next = def.ID + 1
			}
		}
	}

	for _, v := range file.Versions {
		if _, dup := c.questions[v.ID]; dup {
			return nil, fmt.Errorf("duplicate version id %d", v.ID)
		}
		c.versions = append(c.versions, Version{ID: v.ID, Name: v.Name})
		c.questions[v.ID] = make([]*survey.Question, 0, len(v.Questions))

		for _, def := range v.Questions {
			def.VersionID = v.ID
			if def.ID == 0 {
				def.ID = next
				next++
			}
			if _, dup := c.byID[def.ID]; dup {
				return nil, fmt.Errorf("version %s: duplicate question id %d", v.Name, def.ID)
			}

			q, err := survey.Compile(def)
			if err != nil {
				return nil, fmt.Errorf("version %s: %w", v.Name, err)
			}
			c.questions[v.ID] = append(c.questions[v.ID], q)
			c.byID[q.ID] = q

			// First definition wins; lint reports the duplicate.
			key := numberKey{v.ID, q.Number}
			if _, dup := c.byNumber[key]; !dup {
				c.byNumber[key] = q
			}
		}
	}
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the embedded v1 questionnaire.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(defaultYAML)
	})
	return defaultCatalog, defaultErr
}

// DefaultYAML returns the embedded questionnaire source.
func DefaultYAML() []byte { return append([]byte(nil), defaultYAML...) }

// === survey.Catalog ===

func (c *Catalog) Question(_ context.Context, id int64) (*survey.Question, error) {
	q, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("question %d: %w", id, survey.ErrNotFound)
	}
	return q, nil
}

func (c *Catalog) QuestionByNumber(_ context.Context, versionID int64, number string) (*survey.Question, error) {
	q, ok := c.byNumber[numberKey{versionID, number}]
	if !ok {
		return nil, fmt.Errorf("question %s in version %d: %w", number, versionID, survey.ErrNotFound)
	}
	return q, nil
}

// QuestionNumbers implements survey.NumberResolver. Unknown ids are skipped.
func (c *Catalog) QuestionNumbers(_ context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if q, ok := c.byID[id]; ok {
			out[id] = q.Number
		}
	}
	return out, nil
}

// === Browsing ===

// Versions lists versions in file order.
func (c *Catalog) Versions() []Version { return append([]Version(nil), c.versions...) }

// Version looks up a version by id.
func (c *Catalog) Version(id int64) (Version, bool) {
	for _, v := range c.versions {
		if v.ID == id {
			return v, true
		}
	}
	return Version{}, false
}

// Questions lists a version's questions in file order.
func (c *Catalog) Questions(versionID int64) []*survey.Question {
	return append([]*survey.Question(nil), c.questions[versionID]...)
}

// All lists every question across versions, ordered by id.
func (c *Catalog) All() []*survey.Question {
	out := make([]*survey.Question, 0, len(c.byID))
	for _, q := range c.byID {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Definitions returns the source definitions of a version, for seeding other stores.
func (c *Catalog) Definitions(versionID int64) []survey.Definition {
	qs := c.questions[versionID]
	defs := make([]survey.Definition, len(qs))
	for i, q := range qs {
		defs[i] = q.Source
	}
	return defs
}
