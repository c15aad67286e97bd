// Package template loads scoring templates from Markdown files with YAML
// frontmatter. The frontmatter declares the answer contract; the body is the
// prompt sent to the scoring model.
package template

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdaddytn/patentgraph/internal/models"
)

// frontmatter is the YAML header of a template file.
type frontmatter struct {
	ID          string              `yaml:"id"`
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Answers     []models.AnswerSpec `yaml:"answers"`
}

// Parse parses one template document: YAML frontmatter between --- markers,
// then the prompt body.
func Parse(content string) (*models.Template, error) {
	var fm frontmatter
	body := content

	if strings.HasPrefix(content, "---\n") {
		endIdx := strings.Index(content[4:], "\n---")
		if endIdx < 0 {
			return nil, fmt.Errorf("unterminated frontmatter")
		}
		if err := yaml.Unmarshal([]byte(content[4:4+endIdx]), &fm); err != nil {
			return nil, fmt.Errorf("parse frontmatter: %w", err)
		}
		body = strings.TrimPrefix(content[4+endIdx+4:], "\n")
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("template has no prompt body")
	}
	if fm.ID == "" {
		return nil, fmt.Errorf("template frontmatter requires an id")
	}
	for _, spec := range fm.Answers {
		if spec.Field == "" {
			return nil, fmt.Errorf("answer spec missing field name")
		}
		switch spec.Type {
		case models.AnswerString, models.AnswerNumber, models.AnswerBoolean, models.AnswerStringList:
		default:
			return nil, fmt.Errorf("answer field %q: unknown type %q", spec.Field, spec.Type)
		}
	}

	name := fm.Name
	if name == "" {
		name = fm.ID
	}
	tmpl := &models.Template{
		ID:      fm.ID,
		Name:    name,
		Content: body,
		Answers: fm.Answers,
	}
	if fm.Description != "" {
		description := fm.Description
		tmpl.Description = &description
	}
	return tmpl, nil
}

// LoadFile parses a template from a file on disk.
func LoadFile(path string) (*models.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	tmpl, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if info, statErr := os.Stat(path); statErr == nil {
		tmpl.UpdatedAt = info.ModTime()
	} else {
		tmpl.UpdatedAt = time.Now()
	}
	return tmpl, nil
}

// LoadDir loads every .md template under dir, sorted by id. Duplicate ids
// are an error so a directory is always an unambiguous registry.
func LoadDir(dir string) ([]*models.Template, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	byID := make(map[string]string, len(paths))
	templates := make([]*models.Template, 0, len(paths))
	for _, path := range paths {
		tmpl, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := byID[tmpl.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q in %s and %s", tmpl.ID, prev, path)
		}
		byID[tmpl.ID] = path
		templates = append(templates, tmpl)
	}

	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}
