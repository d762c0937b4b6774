package sheet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// YAMLFile stores cases in a local YAML document:
//
//	cases:
//	  - id: TC-001
//	    name: login
//	    steps: 点击登录
//	    expect: 登录成功
type YAMLFile struct {
	path string
	mu   sync.Mutex
}

type yamlDoc struct {
	Cases []Case `yaml:"cases"`
}

// NewYAMLFile returns a backend for path.
func NewYAMLFile(path string) *YAMLFile {
	return &YAMLFile{path: path}
}

func (f *YAMLFile) load() (yamlDoc, error) {
	var doc yamlDoc
	data, err := os.ReadFile(f.path)
	if err != nil {
		return doc, fmt.Errorf("read cases: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse cases %s: %w", f.path, err)
	}
	return doc, nil
}

// ReadCases returns every case in file order.
func (f *YAMLFile) ReadCases(ctx context.Context) ([]Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Cases {
		doc.Cases[i].Ref = doc.Cases[i].ID
	}
	return doc.Cases, nil
}

// WriteResult records the outcome on the matching case and rewrites the file.
func (f *YAMLFile) WriteResult(ctx context.Context, r Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.load()
	if err != nil {
		return err
	}
	found := false
	for i := range doc.Cases {
		if doc.Cases[i].ID == r.CaseID {
			doc.Cases[i].Status, doc.Cases[i].Reason = r.Status, r.Reason
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("case %s not found in %s", r.CaseID, f.path)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode cases: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cases: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return errors.Join(fmt.Errorf("replace %s: %w", f.path, err), os.Remove(tmp))
	}
	return nil
}
