package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/forge/internal/compiler"
	"github.com/roach88/forge/internal/ir"
)

// LoadResult contains a compiled schema and where it came from.
type LoadResult struct {
	Schema *ir.Schema
	Path   string
	Files  []string // Source files that were compiled
}

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Line returns the source line of the error, or 0 when unknown.
func (e *LoadError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// IsCompileError reports whether the schema was found but did not compile,
// as opposed to a missing path or empty directory.
func (e *LoadError) IsCompileError() bool {
	return e.Code == ErrCodeLoadFailed
}

// LoadSchema compiles the schema at path. A file is compiled by extension
// (.cue, .yaml, .yml or .json); a directory is compiled as one CUE package.
// All errors are *LoadError.
func LoadSchema(path string) (*LoadResult, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema: %v", err)}
	}

	result := &LoadResult{Path: path}
	var schema *ir.Schema

	if info.IsDir() {
		files, err := FindCUEFiles(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
		result.Files = files
		schema, err = compiler.LoadDir(path)
		if err != nil {
			return nil, convertCompileError(err)
		}
	} else {
		result.Files = []string{path}
		schema, err = compiler.LoadFile(path)
		if err != nil {
			return nil, convertCompileError(err)
		}
	}

	result.Schema = schema
	return result, nil
}

// FindCUEFiles returns the .cue files directly inside dir. CUE packages do
// not span subdirectories.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".cue") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		msg := compileErr.Message
		if compileErr.Field != "" && compileErr.Field != "cue" {
			msg = compileErr.Field + ": " + msg
		}
		return &LoadError{
			Code:    ErrCodeLoadFailed,
			Message: msg,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeLoadFailed,
		Message: err.Error(),
	}
}
