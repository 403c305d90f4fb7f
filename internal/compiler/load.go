package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"gopkg.in/yaml.v3"

	"github.com/roach88/forge/internal/ir"
)

// LoadFile compiles a schema file. The format is chosen by extension:
// .cue, .yaml/.yml or .json.
func LoadFile(path string) (*ir.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return CompileCUE(data, path)
	case ".yaml", ".yml":
		return CompileYAML(data)
	case ".json":
		return CompileJSON(data)
	default:
		return nil, fmt.Errorf("unsupported schema format %q (want .cue, .yaml, .yml or .json)", filepath.Ext(path))
	}
}

// LoadDir compiles the CUE package in dir.
func LoadDir(dir string) (*ir.Schema, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", formatCUEError(inst.Err))
	}
	return CompileValue(ctx.BuildInstance(inst))
}

// CompileCUE compiles CUE source. filename is used in error positions.
func CompileCUE(data []byte, filename string) (*ir.Schema, error) {
	ctx := cuecontext.New()
	return CompileValue(ctx.CompileBytes(data, cue.Filename(filename)))
}

// CompileValue compiles an evaluated CUE value holding a schema document.
//
// entityTypes may be a list, or a struct keyed by type id:
//
//	entityTypes: character: {
//		fields: [...]
//	}
//
// Each entity type is decoded on its own so errors carry its position.
func CompileValue(v cue.Value) (*ir.Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	schema := &ir.Schema{}

	etVal := v.LookupPath(cue.ParsePath("entityTypes"))
	if !etVal.Exists() {
		return nil, &CompileError{
			Field:   "entityTypes",
			Message: "entityTypes is required",
			Pos:     v.Pos(),
		}
	}

	decode := func(path, defaultID string, elem cue.Value) error {
		var doc EntityTypeDoc
		if err := elem.Decode(&doc); err != nil {
			return &CompileError{Field: path, Message: err.Error(), Pos: elem.Pos()}
		}
		if doc.ID == "" {
			doc.ID = defaultID
		}
		et, err := buildEntityType(path, &doc)
		if err != nil {
			if ce, ok := err.(*CompileError); ok && !ce.Pos.IsValid() {
				ce.Pos = elem.Pos()
			}
			return err
		}
		schema.EntityTypes = append(schema.EntityTypes, et)
		return nil
	}

	switch etVal.IncompleteKind() {
	case cue.ListKind:
		iter, err := etVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for i := 0; iter.Next(); i++ {
			if err := decode(fmt.Sprintf("entityTypes[%d]", i), "", iter.Value()); err != nil {
				return nil, err
			}
		}
	case cue.StructKind:
		iter, err := etVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			label := iter.Selector().Unquoted()
			if err := decode("entityTypes."+label, label, iter.Value()); err != nil {
				return nil, err
			}
		}
	default:
		return nil, &CompileError{
			Field:   "entityTypes",
			Message: "must be a list or a struct keyed by type id",
			Pos:     etVal.Pos(),
		}
	}

	if grVal := v.LookupPath(cue.ParsePath("globalRules")); grVal.Exists() {
		var docs []RuleDoc
		if err := grVal.Decode(&docs); err != nil {
			return nil, &CompileError{Field: "globalRules", Message: err.Error(), Pos: grVal.Pos()}
		}
		rules, err := buildRules("globalRules", "globalRules", docs)
		if err != nil {
			if ce, ok := err.(*CompileError); ok && !ce.Pos.IsValid() {
				ce.Pos = grVal.Pos()
			}
			return nil, err
		}
		schema.GlobalRules = rules
	}

	return schema, nil
}

// CompileYAML compiles a YAML schema document. Unknown keys are rejected.
func CompileYAML(data []byte) (*ir.Schema, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing YAML schema: %w", err)
	}
	return Build(&doc)
}

// CompileJSON compiles a JSON schema document. Unknown keys are rejected.
func CompileJSON(data []byte) (*ir.Schema, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing JSON schema: %w", err)
	}
	return Build(&doc)
}
